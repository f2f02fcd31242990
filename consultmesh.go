// Package consultmesh provides a high-level façade over the session engine,
// the context cache and a model client, giving a calling agent multi-turn
// consultations with a stronger model. Most applications interact with this
// package by:
//  1. Creating a Mesh via New() with a model (optionally overriding the
//     default in‑memory stores and limits)
//  2. Starting the background sweeper with Start
//  3. Calling Consult, ListSessions and EndSession
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. Formatting helpers turn results into the text the
// calling agent reads.
package consultmesh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/consultmesh/cache"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/engine"
	"github.com/hupe1980/consultmesh/internal/clock"
	"github.com/hupe1980/consultmesh/logging"
	"github.com/hupe1980/consultmesh/model"
	"github.com/hupe1980/consultmesh/prompt"
)

// Options configures the Mesh instance.
type Options struct {
	// Engine configuration (TTL, sweep interval, timeouts, busy policy)
	EngineConfig engine.Config

	// Model answers the consultations. Required.
	Model model.Model

	// RateInterval is the minimum spacing between model calls across the
	// whole process; RatePolicy decides between waiting and rejecting.
	RateInterval time.Duration
	RatePolicy   core.LimitPolicy

	// Prompt assembly
	SystemPrompt   string
	MaxPromptChars int

	// Cache ceilings; used only when Cache is nil.
	MaxSessionBytes int
	MaxTotalBytes   int
	Reader          core.FileReader

	// Stores (defaults to in-memory implementations if not provided)
	SessionStore core.SessionStore
	Cache        core.ContextCache

	Callbacks *engine.CallbackManager
	Clock     clock.Clock

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the engine and its services.
type Mesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Mesh. Any unset service is initialized with an in-memory
// implementation; a model must be provided.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		EngineConfig:    engine.DefaultConfig,
		RateInterval:    time.Second,
		RatePolicy:      core.PolicyBlock,
		SystemPrompt:    prompt.DefaultSystemPrompt,
		MaxPromptChars:  prompt.DefaultMaxChars,
		MaxSessionBytes: cache.DefaultMaxSessionBytes,
		MaxTotalBytes:   cache.DefaultMaxTotalBytes,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache(func(o *cache.Options) {
			o.MaxSessionBytes = opts.MaxSessionBytes
			o.MaxTotalBytes = opts.MaxTotalBytes
			if opts.Reader != nil {
				o.Reader = opts.Reader
			}
		})
	}

	e, err := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Model = opts.Model
		o.SessionStore = opts.SessionStore
		o.Cache = opts.Cache
		o.Assembler = prompt.New(func(po *prompt.Options) {
			po.SystemPrompt = opts.SystemPrompt
			po.MaxChars = opts.MaxPromptChars
		})
		o.Limiter = core.NewRateLimiter(opts.RateInterval, opts.RatePolicy)
		o.Callbacks = opts.Callbacks
		o.Clock = opts.Clock
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Mesh{opts: opts, engine: e}, nil
}

// Engine exposes the underlying engine.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Consult runs one consultation turn, starting a new session when
// req.SessionID is empty.
func (m *Mesh) Consult(ctx context.Context, req core.ConsultRequest) (*core.ConsultResult, error) {
	return m.engine.Consult(ctx, req)
}

// ListSessions returns all live sessions.
func (m *Mesh) ListSessions() []core.SessionSummary { return m.engine.ListSessions() }

// EndSession removes a session and its cached context.
func (m *Mesh) EndSession(id string) error { return m.engine.EndSession(id) }

// Start launches the background expiry sweeper.
func (m *Mesh) Start(ctx context.Context) { m.engine.Start(ctx) }

// Close stops the sweeper.
func (m *Mesh) Close() error { return m.engine.Close() }

// FormatAnswer renders a turn result for the calling agent, including the
// session id it needs for follow-up questions.
func FormatAnswer(res *core.ConsultResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Session ID:** %s\n**Message #%d**\n\n%s\n", res.SessionID, res.TurnNumber, res.Answer)
	if len(res.FileErrors) > 0 {
		b.WriteString("\n**Files not used:**\n")
		for _, fe := range res.FileErrors {
			fmt.Fprintf(&b, "- %s (%s)\n", fe.Path, fe.Kind)
		}
	}
	fmt.Fprintf(&b, "\n---\n*Use session_id: %q for follow-up questions*", res.SessionID)
	return b.String()
}

// FormatSessions renders a session listing.
func FormatSessions(list []core.SessionSummary) string {
	if len(list) == 0 {
		return "No active sessions"
	}
	entries := make([]string, 0, len(list))
	for _, s := range list {
		code := "No"
		if s.HasCodeContext {
			code = "Yes"
		}
		entries = append(entries, fmt.Sprintf(
			"- **%s**\n  Messages: %d\n  Created: %s\n  Last used: %s\n  Files attached: %d\n  Code context: %s\n  Problem: %s",
			s.ID, s.TurnCount, s.Created.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339), s.FileCount, code, s.Summary))
	}
	return "Active sessions:\n" + strings.Join(entries, "\n\n")
}

// FriendlyError turns an error into a short message for the calling agent.
func FriendlyError(err error) string {
	switch core.KindOf(err) {
	case core.KindQuotaExceeded:
		return "Error: model API quota exceeded. Please try again later."
	case core.KindTooLarge:
		return "Error: request too large. Try reducing code context size or attaching fewer files. (" + err.Error() + ")"
	case core.KindSessionNotFound:
		return "Error: session not found or already expired. Start a new session with problem_description and code_context."
	default:
		return "Error: " + err.Error()
	}
}
