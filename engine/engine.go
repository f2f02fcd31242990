package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/consultmesh/cache"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/internal/clock"
	"github.com/hupe1980/consultmesh/logging"
	"github.com/hupe1980/consultmesh/model"
	"github.com/hupe1980/consultmesh/prompt"
	"github.com/hupe1980/consultmesh/session"
)

// BusyPolicy selects what happens when a turn arrives for a session that
// already has one in flight.
type BusyPolicy string

const (
	// BusyQueue waits for the running turn to finish (default). Turn order
	// follows arrival order at the lock.
	BusyQueue BusyPolicy = "queue"
	// BusyReject fails immediately with session_busy.
	BusyReject BusyPolicy = "reject"
)

// ParseBusyPolicy validates a policy string; empty selects BusyQueue.
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch BusyPolicy(s) {
	case "", BusyQueue:
		return BusyQueue, nil
	case BusyReject:
		return BusyReject, nil
	default:
		return "", fmt.Errorf("unknown busy policy %q", s)
	}
}

const summaryChars = 100

// Config defines tuning parameters for the Engine.
type Config struct {
	// SessionTTL is the idle time after which a session expires.
	SessionTTL time.Duration

	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration

	// ModelTimeout bounds the rate-limit wait plus the model call when the
	// request carries no timeout of its own. Zero disables it.
	ModelTimeout time.Duration

	// MaxOutputTokens is passed to the model on every call.
	MaxOutputTokens int

	// BusyPolicy decides between queueing and rejecting concurrent turns on
	// one session.
	BusyPolicy BusyPolicy
}

// DefaultConfig provides the default configuration values:
//   - SessionTTL: 1h
//   - SweepInterval: 5m
//   - ModelTimeout: 2m
//   - MaxOutputTokens: 8192
//   - BusyPolicy: queue
var DefaultConfig = Config{
	SessionTTL:      time.Hour,
	SweepInterval:   5 * time.Minute,
	ModelTimeout:    2 * time.Minute,
	MaxOutputTokens: 8192,
	BusyPolicy:      BusyQueue,
}

// Validate reports configuration values the engine cannot run with.
func (c Config) Validate() error {
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.ModelTimeout < 0 {
		return errors.New("model timeout must not be negative")
	}
	if c.MaxOutputTokens <= 0 {
		return errors.New("max output tokens must be positive")
	}
	if _, err := ParseBusyPolicy(string(c.BusyPolicy)); err != nil {
		return err
	}
	return nil
}

// Options configures an Engine instance using the functional options pattern.
//
// Every dependency except Model has an in-memory default. When SessionStore
// is nil a store is created that purges the configured Cache on delete and
// expiry; a custom SessionStore is responsible for that itself.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// SessionStore holds sessions and their turn history.
	SessionStore core.SessionStore

	// Cache holds per-session problem, code context and attached files.
	Cache core.ContextCache

	// Model answers the assembled prompts. Required.
	Model model.Model

	// Assembler builds the prompt of each turn.
	Assembler *prompt.Assembler

	// Limiter is the process-wide gate in front of the model. Share one
	// instance between engines that talk to the same provider account.
	Limiter *core.RateLimiter

	// Clock drives timestamps and the sweeper.
	Clock clock.Clock

	// Callbacks receives turn lifecycle events. Optional.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine manages consultation sessions. All methods are safe for concurrent use.
type Engine struct {
	store     core.SessionStore
	cache     core.ContextCache
	model     model.Model
	assembler *prompt.Assembler
	limiter   *core.RateLimiter
	clock     clock.Clock
	callbacks *CallbackManager
	logger    logging.Logger
	config    Config

	// Per-session turn locks, reference counted so idle ids do not pile up.
	locksMu sync.Mutex
	locks   map[string]*turnLock

	mu        sync.Mutex
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

type turnLock struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates an Engine. It fails when no model is configured or the
// configuration is invalid.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Model == nil {
		return nil, errors.New("engine: a model is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache()
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore(func(o *session.Options) {
			o.Clock = opts.Clock
			o.Cache = opts.Cache
		})
	}
	if opts.Assembler == nil {
		opts.Assembler = prompt.New()
	}
	if opts.Limiter == nil {
		opts.Limiter = core.NewRateLimiter(time.Second, core.PolicyBlock)
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Engine{
		store:     opts.SessionStore,
		cache:     opts.Cache,
		model:     opts.Model,
		assembler: opts.Assembler,
		limiter:   opts.Limiter,
		clock:     opts.Clock,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		config:    opts.Config,
		locks:     make(map[string]*turnLock),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Model returns the model the engine consults.
func (e *Engine) Model() model.Model { return e.model }

// Consult runs one turn. Without a SessionID a new session is started, which
// requires a problem description plus code context or at least one attached
// file. Per-file failures are reported in the result; every other failure
// aborts the turn and leaves the session unchanged.
func (e *Engine) Consult(ctx context.Context, req core.ConsultRequest) (*core.ConsultResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, &core.Error{Kind: core.KindInvalidRequest, SessionID: req.SessionID, Msg: "specific_question is required"}
	}
	approach, err := prompt.ParseApproach(req.PreferredApproach)
	if err != nil {
		return nil, &core.Error{Kind: core.KindInvalidRequest, SessionID: req.SessionID, Msg: err.Error()}
	}

	if req.SessionID == "" {
		return e.startSession(ctx, req, approach)
	}
	return e.continueSession(ctx, req, approach)
}

func (e *Engine) startSession(ctx context.Context, req core.ConsultRequest, approach prompt.Approach) (*core.ConsultResult, error) {
	if strings.TrimSpace(req.ProblemDescription) == "" {
		return nil, &core.Error{Kind: core.KindMissingInitialContext, Turn: 1, Msg: "problem_description is required to start a session"}
	}
	if strings.TrimSpace(req.CodeContext) == "" && len(req.FileRequests()) == 0 {
		return nil, &core.Error{Kind: core.KindMissingInitialContext, Turn: 1, Msg: "code_context or attached_files is required to start a session"}
	}

	id, err := e.store.Create()
	if err != nil {
		return nil, core.WithSession(err, "", 1)
	}
	log := e.sessionLogger(id)

	unlock, err := e.lockSession(ctx, id)
	if err != nil {
		e.rollback(id)
		return nil, discarded(err)
	}
	defer unlock()

	if err := e.store.SetSummary(id, summarize(req.ProblemDescription)); err != nil {
		e.rollback(id)
		return nil, discarded(err)
	}
	if err := e.cache.SetInitial(id, req.ProblemDescription, req.CodeContext); err != nil {
		e.rollback(id)
		return nil, discarded(err)
	}

	sess, err := e.store.Get(id)
	if err != nil {
		e.rollback(id)
		return nil, discarded(err)
	}

	res, err := e.runTurn(ctx, sess, req, approach)
	if err != nil {
		e.rollback(id)
		log.Warn("First turn failed, session discarded", "error", err)
		return nil, discarded(err)
	}

	log.Info("Session started", "files", len(res.Files), "file_errors", len(res.FileErrors))
	e.fire(ctx, CallbackSessionStart, &CallbackContext{SessionID: id, Turn: 1})
	return res, nil
}

func (e *Engine) continueSession(ctx context.Context, req core.ConsultRequest, approach prompt.Approach) (*core.ConsultResult, error) {
	id := req.SessionID
	if req.CodeContext != "" {
		// Code context is fixed for the lifetime of a session.
		if _, err := e.store.Get(id); err != nil {
			return nil, err
		}
		return nil, &core.Error{Kind: core.KindContextAlreadySet, SessionID: id, Msg: "code_context can only be provided when starting a session; attach files instead"}
	}

	unlock, err := e.lockSession(ctx, id)
	if err != nil {
		return nil, core.WithSession(err, id, 0)
	}
	defer unlock()

	// Re-read under the lock so the turn number reflects the queued turns
	// that ran before us.
	sess, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	res, err := e.runTurn(ctx, sess, req, approach)
	if err != nil {
		return nil, core.WithSession(err, id, sess.TurnCount()+1)
	}
	return res, nil
}

// runTurn executes a turn for sess, which the caller has locked. Session
// state is only mutated after the model answered.
func (e *Engine) runTurn(ctx context.Context, sess *core.Session, req core.ConsultRequest, approach prompt.Approach) (*core.ConsultResult, error) {
	id := sess.ID
	turn := sess.TurnCount() + 1

	snap, err := e.cache.Snapshot(id)
	if err != nil {
		return nil, err
	}
	staged, fileErrs := e.cache.StageFiles(ctx, id, req.FileRequests())

	text, err := e.assembler.Build(prompt.Input{
		SessionID:         id,
		Model:             e.model.Info().Name,
		Context:           snap,
		NewFiles:          staged,
		History:           sess.Turns,
		AdditionalContext: req.AdditionalContext,
		Question:          req.Question,
		Approach:          approach,
	})
	if err != nil {
		e.fire(ctx, CallbackOnError, &CallbackContext{SessionID: id, Turn: turn, Approach: string(approach), Err: err})
		return nil, err
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, &CallbackContext{
		SessionID: id, Turn: turn, Approach: string(approach), Prompt: text,
	}); err != nil {
		return nil, &core.Error{Kind: core.KindInvalidRequest, Msg: "rejected before model call", Err: err}
	}

	answer, err := e.call(ctx, id, text, req.Timeout)
	if err != nil {
		e.fire(ctx, CallbackOnError, &CallbackContext{SessionID: id, Turn: turn, Approach: string(approach), Prompt: text, Err: err})
		return nil, err
	}

	// The answer exists; from here on the turn is recorded even if the
	// staged files cannot be kept.
	if err := e.cache.CommitFiles(id, staged); err != nil {
		for _, f := range staged {
			fileErrs = append(fileErrs, core.FileError{Path: f.Path, Kind: core.KindOf(err), Message: "used for this turn but not kept in the session cache"})
		}
		staged = nil
	}

	updated, err := e.store.AppendTurn(id, core.Turn{
		Question:          req.Question,
		AdditionalContext: req.AdditionalContext,
		Approach:          string(approach),
		Answer:            answer,
		Timestamp:         e.clock.Now(),
	})
	if err != nil {
		// Ended or expired while the model was answering.
		return nil, err
	}

	e.fire(ctx, CallbackAfterModel, &CallbackContext{SessionID: id, Turn: turn, Approach: string(approach), Prompt: text, Answer: answer})

	return &core.ConsultResult{
		SessionID:  id,
		TurnNumber: updated.TurnCount(),
		Answer:     answer,
		Files:      staged,
		FileErrors: fileErrs,
	}, nil
}

// call waits for the rate limiter and invokes the model, both bounded by the
// turn timeout.
func (e *Engine) call(ctx context.Context, sessionID, text string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = e.config.ModelTimeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.limiter.Acquire(callCtx); err != nil {
		return "", e.callError(ctx, callCtx, timeout, err)
	}

	start := time.Now()
	resp, err := e.model.Complete(callCtx, model.Request{Prompt: text, MaxOutputTokens: e.config.MaxOutputTokens})
	dur := time.Since(start)
	if err != nil {
		err = e.callError(ctx, callCtx, timeout, err)
	}
	e.logModelCall(sessionID, utf8.RuneCountInString(text), dur, err)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// callError maps an expired turn deadline to timeout, distinct from failures
// the provider reported.
func (e *Engine) callError(ctx, callCtx context.Context, timeout time.Duration, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		if core.KindOf(err) == core.KindTimeout {
			return err
		}
		return &core.Error{Kind: core.KindTimeout, Msg: fmt.Sprintf("no answer within %s", timeout), Err: err}
	}
	if core.KindOf(err) == "" {
		if ctx.Err() != nil {
			return &core.Error{Kind: core.KindTransport, Msg: "request canceled", Err: err}
		}
		return &core.Error{Kind: core.KindTransport, Msg: e.model.Info().Provider + " call failed", Err: err}
	}
	return err
}

// ListSessions returns a snapshot of all live sessions, oldest first.
func (e *Engine) ListSessions() []core.SessionSummary {
	return e.store.List()
}

// EndSession removes a session and its cached context. A second call, or a
// call for an expired session, returns session_not_found. A turn still in
// flight for the session fails with session_not_found when it completes.
func (e *Engine) EndSession(id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.sessionLogger(id).Info("Session ended")
	e.fire(context.Background(), CallbackSessionEnd, &CallbackContext{SessionID: id})
	return nil
}

// Sweep expires sessions idle for longer than the configured TTL and
// returns how many were removed. Sessions with a turn running or queued are
// left alone; their activity is refreshed when the turn is recorded.
func (e *Engine) Sweep() int {
	start := time.Now()
	expired := e.store.Sweep(e.clock.Now(), e.config.SessionTTL, e.busy)
	if sl, ok := e.logger.(*logging.StructuredLogger); ok {
		sl.WithComponent("sweeper").LogSweep(len(expired), len(e.store.List()), time.Since(start))
	} else if len(expired) > 0 {
		e.logger.Info("Session sweep completed", "removed", len(expired))
	}
	for _, id := range expired {
		e.fire(context.Background(), CallbackSessionEnd, &CallbackContext{SessionID: id, Metadata: map[string]any{"reason": "expired"}})
	}
	return len(expired)
}

// busy reports whether a turn holds or waits for the session's turn lock.
func (e *Engine) busy(id string) bool {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	_, ok := e.locks[id]
	return ok
}

// Start launches the background sweeper. It returns immediately; the ticker
// exists once Start returns. Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopSweep != nil {
		return
	}

	ticker := e.clock.NewTicker(e.config.SweepInterval)
	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stopSweep = cancel
	e.sweepDone = done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				e.Sweep()
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit. Sessions stay intact.
func (e *Engine) Close() error {
	e.mu.Lock()
	stop, done := e.stopSweep, e.sweepDone
	e.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	<-done
	return nil
}

// lockSession takes the turn lock of a session according to the busy policy.
func (e *Engine) lockSession(ctx context.Context, id string) (func(), error) {
	e.locksMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &turnLock{sem: semaphore.NewWeighted(1)}
		e.locks[id] = l
	}
	l.refs++
	e.locksMu.Unlock()

	var err error
	if e.config.BusyPolicy == BusyReject {
		if !l.sem.TryAcquire(1) {
			err = &core.Error{Kind: core.KindSessionBusy, SessionID: id, Msg: "another turn is in progress"}
		}
	} else if acqErr := l.sem.Acquire(ctx, 1); acqErr != nil {
		kind := core.KindTransport
		if errors.Is(acqErr, context.DeadlineExceeded) {
			kind = core.KindTimeout
		}
		err = &core.Error{Kind: kind, SessionID: id, Msg: "waiting for the previous turn", Err: acqErr}
	}
	if err != nil {
		e.releaseRef(id, l)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			e.releaseRef(id, l)
		})
	}, nil
}

func (e *Engine) releaseRef(id string, l *turnLock) {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l.refs--
	if l.refs == 0 && e.locks[id] == l {
		delete(e.locks, id)
	}
}

func (e *Engine) rollback(id string) {
	if err := e.store.Delete(id); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		e.logger.Warn("Rollback of new session failed", "session_id", id, "error", err)
	}
}

func (e *Engine) fire(ctx context.Context, t CallbackType, cbCtx *CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cbCtx); err != nil {
		e.logger.Warn("Callback failed", "type", string(t), "session_id", cbCtx.SessionID, "error", err)
	}
}

func (e *Engine) sessionLogger(id string) logging.Logger {
	if sl, ok := e.logger.(*logging.StructuredLogger); ok {
		return sl.WithComponent("engine").WithSession(id)
	}
	return e.logger
}

func (e *Engine) logModelCall(id string, promptChars int, dur time.Duration, err error) {
	info := e.model.Info()
	if sl, ok := e.logger.(*logging.StructuredLogger); ok {
		sl.WithComponent("engine").WithSession(id).LogModelCall(info.Name, promptChars, dur, err == nil, err)
		return
	}
	if err != nil {
		e.logger.Error("Model call failed", "session_id", id, "model", info.Name, "duration", dur, "error", err)
		return
	}
	e.logger.Debug("Model call completed", "session_id", id, "model", info.Name, "prompt_chars", promptChars, "duration", dur)
}

// discarded reports a failed first turn. The session was rolled back, so
// the error names no session and always refers to turn 1.
func discarded(err error) error {
	var cerr *core.Error
	if !errors.As(err, &cerr) {
		return &core.Error{Kind: core.KindTransport, Turn: 1, Err: err}
	}
	cp := *cerr
	cp.SessionID = ""
	cp.Turn = 1
	return &cp
}

// summarize shortens a problem description for session listings.
func summarize(problem string) string {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return "No description"
	}
	if utf8.RuneCountInString(problem) > summaryChars {
		problem = string([]rune(problem)[:summaryChars])
	}
	return problem + "..."
}
