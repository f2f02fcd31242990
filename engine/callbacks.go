package engine

import (
	"context"
	"fmt"
	"sync"
)

// CallbackType defines the lifecycle points of a turn where callbacks run.
//
// Available callback types:
//   - SessionStart/SessionEnd: a session was created, or ended/expired
//   - BeforeModel/AfterModel: around the outbound model call
//   - OnError: a turn failed
//
// Callbacks are executed synchronously. An error returned from a
// BeforeModel callback aborts the turn without mutating the session; errors
// from every other type are logged and ignored.
type CallbackType string

const (
	// CallbackSessionStart is triggered after a new session received its initial context.
	CallbackSessionStart CallbackType = "session_start"

	// CallbackSessionEnd is triggered after a session was ended or swept.
	CallbackSessionEnd CallbackType = "session_end"

	// CallbackBeforeModel is triggered after prompt assembly, before the rate
	// limiter and the model call. Use for request auditing or vetoes.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered once the turn has been recorded.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackOnError is triggered when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// for a given CallbackType are left empty.
type CallbackContext struct {
	SessionID    string
	Turn         int
	Approach     string
	Prompt       string
	Answer       string
	Err          error
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for turn lifecycle hooks.
//
// Implementations should be fast: callbacks run on the caller's goroutine
// while the per-session turn lock is held.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a plain function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback wraps fn as a callback of the given type.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute invokes the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes callbacks by type. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback; callbacks of one type run in
// registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[callback.Type()] = append(cm.callbacks[callback.Type()], callback)
}

// ExecuteCallbacks runs every callback of the given type and stops at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for i, cb := range callbacks {
		if err := cb.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("callback %d (%s) failed: %w", i, callbackType, err)
		}
	}
	return nil
}

// LoggingCallback writes one line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a callback that reports events through logger.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	msg := fmt.Sprintf("[%s] session=%s turn=%d", c.callbackType, callbackCtx.SessionID, callbackCtx.Turn)
	if callbackCtx.Err != nil {
		msg += " error=" + callbackCtx.Err.Error()
	}
	c.logger(msg)
	return nil
}
