package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/consultmesh"
	"github.com/hupe1980/consultmesh/config"
	"github.com/hupe1980/consultmesh/files"
	"github.com/hupe1980/consultmesh/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
	provider   string
	model      string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "consultmesh",
		Short: "Multi-turn consultations with a large-context model",
		Long: `consultmesh keeps consultation sessions with a model: the problem
description, code context and attached files are cached once per session,
follow-up questions reuse them together with the conversation so far.

Quick Start:
  consultmesh serve                       # JSON-lines protocol on stdio
  consultmesh chat --problem "..." -f main.go
  consultmesh --provider mock serve       # no API key needed`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (or CONSULTMESH_CONFIG)")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "Model provider: gemini, anthropic, openai or mock")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "Model id (provider specific)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newServeCmd(opts), newChatCmd(opts), newVersionCmd())
	return root
}

// lookup layers the command line flags over the process environment.
func (o *rootOptions) lookup(key string) (string, bool) {
	flags := map[string]string{
		"CONSULTMESH_PROVIDER":   o.provider,
		"CONSULTMESH_MODEL":      o.model,
		"CONSULTMESH_LOG_LEVEL":  o.logLevel,
		"CONSULTMESH_LOG_FORMAT": o.logFormat,
	}
	if v := flags[key]; v != "" {
		return v, true
	}
	return os.LookupEnv(key)
}

// build loads the configuration and assembles a Mesh from it.
func (o *rootOptions) build(ctx context.Context) (*consultmesh.Mesh, *logging.StructuredLogger, error) {
	cfg, err := config.Load(o.configPath, o.lookup)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewSlogLogger(level, cfg.Logging.Format, false)

	m, err := newModel(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	policy := cfg.RateLimit.Policy

	mesh, err := consultmesh.New(func(mo *consultmesh.Options) {
		mo.EngineConfig = cfg.Engine()
		mo.Model = m
		mo.RateInterval = cfg.RateLimit.Interval
		mo.RatePolicy = limitPolicy(policy)
		if cfg.Context.SystemPrompt != "" {
			mo.SystemPrompt = cfg.Context.SystemPrompt
		}
		mo.MaxPromptChars = cfg.Context.MaxPromptChars
		mo.MaxSessionBytes = cfg.Context.MaxSessionBytes
		mo.MaxTotalBytes = cfg.Context.MaxTotalBytes
		mo.Reader = &files.OSReader{MaxBytes: cfg.Context.MaxFileBytes}
		mo.Logger = logger
	})
	if err != nil {
		return nil, nil, err
	}

	info := m.Info()
	logger.WithComponent("cli").Info("Consultmesh ready",
		"provider", info.Provider, "model", info.Name,
		"session_ttl", cfg.Sessions.TTL, "rate_interval", cfg.RateLimit.Interval)
	return mesh, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "consultmesh %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
