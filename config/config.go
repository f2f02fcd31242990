// Package config loads consultmesh configuration.
//
// Values are resolved in three layers, later layers winning:
//   - Default()
//   - an optional YAML file (--config flag or CONSULTMESH_CONFIG)
//   - environment variables (GEMINI_API_KEY, GEMINI_MODEL, SYSTEM_PROMPT,
//     CONSULTMESH_* ...)
//
// Command line flags are applied by the caller after Load. Configuration is
// read once at startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/engine"
)

// Supported model providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// Config is the complete consultmesh configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Context   ContextConfig   `yaml:"context"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelConfig selects and tunes the model client.
type ModelConfig struct {
	// Provider is one of gemini, anthropic, openai or mock.
	Provider string `yaml:"provider"`

	// Name is the provider's model id. Empty selects the adapter default.
	Name string `yaml:"name"`

	// APIKey is usually supplied through the environment instead.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	TopK            float64 `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`

	// Timeout bounds the rate-limit wait plus one model call.
	Timeout time.Duration `yaml:"timeout"`
}

// SessionsConfig configures session lifetime and turn scheduling.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// BusyPolicy is "queue" or "reject".
	BusyPolicy string `yaml:"busy_policy"`
}

// RateLimitConfig configures the process-wide model call gate.
type RateLimitConfig struct {
	Interval time.Duration `yaml:"interval"`

	// Policy is "block" or "reject".
	Policy string `yaml:"policy"`
}

// ContextConfig bounds prompt assembly and the context cache.
type ContextConfig struct {
	MaxPromptChars  int    `yaml:"max_prompt_chars"`
	MaxSessionBytes int    `yaml:"max_session_bytes"`
	MaxTotalBytes   int    `yaml:"max_total_bytes"`
	MaxFileBytes    int64  `yaml:"max_file_bytes"`
	SystemPrompt    string `yaml:"system_prompt"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:        ProviderGemini,
			Temperature:     0.2,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: engine.DefaultConfig.MaxOutputTokens,
			Timeout:         engine.DefaultConfig.ModelTimeout,
		},
		Sessions: SessionsConfig{
			TTL:           engine.DefaultConfig.SessionTTL,
			SweepInterval: engine.DefaultConfig.SweepInterval,
			BusyPolicy:    string(engine.BusyQueue),
		},
		RateLimit: RateLimitConfig{
			Interval: time.Second,
			Policy:   string(core.PolicyBlock),
		},
		Context: ContextConfig{
			MaxPromptChars:  50_000,
			MaxSessionBytes: 512 << 10,
			MaxTotalBytes:   64 << 20,
			MaxFileBytes:    1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Load resolves the configuration from defaults, the file at path (skipped
// when empty) and the environment, then validates it.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if path == "" {
		path, _ = lookup("CONSULTMESH_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("CONSULTMESH_PROVIDER", &c.Model.Provider)
	str("CONSULTMESH_MODEL", &c.Model.Name)
	str("CONSULTMESH_BASE_URL", &c.Model.BaseURL)
	str("CONSULTMESH_BUSY_POLICY", &c.Sessions.BusyPolicy)
	str("CONSULTMESH_RATE_POLICY", &c.RateLimit.Policy)
	str("CONSULTMESH_LOG_LEVEL", &c.Logging.Level)
	str("CONSULTMESH_LOG_FORMAT", &c.Logging.Format)
	str("SYSTEM_PROMPT", &c.Context.SystemPrompt)

	switch c.Model.Provider {
	case ProviderGemini:
		str("GEMINI_API_KEY", &c.Model.APIKey)
		str("GEMINI_MODEL", &c.Model.Name)
	case ProviderAnthropic:
		str("ANTHROPIC_API_KEY", &c.Model.APIKey)
	case ProviderOpenAI:
		str("OPENAI_API_KEY", &c.Model.APIKey)
	}

	for key, dst := range map[string]*time.Duration{
		"CONSULTMESH_SESSION_TTL":    &c.Sessions.TTL,
		"CONSULTMESH_SWEEP_INTERVAL": &c.Sessions.SweepInterval,
		"CONSULTMESH_RATE_INTERVAL":  &c.RateLimit.Interval,
		"CONSULTMESH_MODEL_TIMEOUT":  &c.Model.Timeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"CONSULTMESH_MAX_PROMPT_CHARS":  &c.Context.MaxPromptChars,
		"CONSULTMESH_MAX_OUTPUT_TOKENS": &c.Model.MaxOutputTokens,
		"CONSULTMESH_MAX_SESSION_BYTES": &c.Context.MaxSessionBytes,
		"CONSULTMESH_MAX_TOTAL_BYTES":   &c.Context.MaxTotalBytes,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI:
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for provider %q", c.Model.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if _, err := core.ParseLimitPolicy(c.RateLimit.Policy); err != nil {
		return err
	}
	if c.RateLimit.Interval < 0 {
		return errors.New("rate_limit.interval must not be negative")
	}
	if c.Context.MaxPromptChars <= 0 {
		return errors.New("context.max_prompt_chars must be positive")
	}
	if c.Context.MaxSessionBytes <= 0 || c.Context.MaxTotalBytes <= 0 {
		return errors.New("context cache ceilings must be positive")
	}
	if c.Context.MaxFileBytes <= 0 {
		return errors.New("context.max_file_bytes must be positive")
	}
	return c.Engine().Validate()
}

// Engine returns the engine configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		SessionTTL:      c.Sessions.TTL,
		SweepInterval:   c.Sessions.SweepInterval,
		ModelTimeout:    c.Model.Timeout,
		MaxOutputTokens: c.Model.MaxOutputTokens,
		BusyPolicy:      engine.BusyPolicy(c.Sessions.BusyPolicy),
	}
}
