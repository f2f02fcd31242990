package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is a stable, machine readable error category. Callers branch on Kind
// (retry on rate_limited / timeout, start over on session_not_found) instead
// of parsing messages.
type Kind string

const (
	KindSessionNotFound       Kind = "session_not_found"
	KindContextAlreadySet     Kind = "context_already_set"
	KindMissingInitialContext Kind = "missing_initial_context"
	KindFileUnreadable        Kind = "file_unreadable"
	KindCacheFull             Kind = "cache_full"
	KindTooLarge              Kind = "too_large"
	KindRateLimited           Kind = "rate_limited"
	KindSessionBusy           Kind = "session_busy"
	KindTimeout               Kind = "timeout"
	KindTransport             Kind = "transport_error"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindInvalidRequest        Kind = "invalid_request"
)

// Retryable reports whether the same request may succeed if issued again
// later without changes.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindSessionBusy, KindTimeout, KindQuotaExceeded, KindTransport:
		return true
	default:
		return false
	}
}

// Error is the error type surfaced by every consultmesh component. Optional
// fields are populated when known so the calling agent can report precisely
// which session, turn, section or file failed.
type Error struct {
	Kind      Kind
	SessionID string
	// Turn is the 1-based turn number that was being attempted.
	Turn int
	// Sections names the prompt sections that exceeded the budget (too_large).
	Sections []string
	// Path is the attached file path (file_unreadable, cache_full).
	Path string
	// Wait is the remaining wait before a retry may succeed (rate_limited).
	Wait time.Duration
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.SessionID != "" {
		fmt.Fprintf(&b, " [session %s", e.SessionID)
		if e.Turn > 0 {
			fmt.Fprintf(&b, " turn %d", e.Turn)
		}
		b.WriteString("]")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if len(e.Sections) > 0 {
		fmt.Fprintf(&b, " sections=%s", strings.Join(e.Sections, ","))
	}
	if e.Wait > 0 {
		fmt.Fprintf(&b, " retry in %s", e.Wait)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind so the sentinels below work with
// errors.Is regardless of the attached details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSessionNotFound       = &Error{Kind: KindSessionNotFound}
	ErrContextAlreadySet     = &Error{Kind: KindContextAlreadySet}
	ErrMissingInitialContext = &Error{Kind: KindMissingInitialContext}
	ErrFileUnreadable        = &Error{Kind: KindFileUnreadable}
	ErrCacheFull             = &Error{Kind: KindCacheFull}
	ErrTooLarge              = &Error{Kind: KindTooLarge}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrSessionBusy           = &Error{Kind: KindSessionBusy}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrTransport             = &Error{Kind: KindTransport}
	ErrQuotaExceeded         = &Error{Kind: KindQuotaExceeded}
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
)

// NewError builds an *Error of the given kind wrapping err.
func NewError(kind Kind, sessionID string, err error) *Error {
	return &Error{Kind: kind, SessionID: sessionID, Err: err}
}

// KindOf extracts the Kind from err, or "" when err is not a consultmesh error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithSession returns err annotated with the session id and turn. Non
// consultmesh errors are wrapped as transport errors.
func WithSession(err error, sessionID string, turn int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindTransport, SessionID: sessionID, Turn: turn, Err: err}
	}
	cp := *e
	if cp.SessionID == "" {
		cp.SessionID = sessionID
	}
	if cp.Turn == 0 {
		cp.Turn = turn
	}
	return &cp
}

// FileError records a per-file failure. It never aborts a turn on its own.
type FileError struct {
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
}

func (f FileError) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Path)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Path, f.Message)
}
