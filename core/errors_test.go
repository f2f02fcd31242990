package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := &Error{Kind: KindSessionNotFound, SessionID: "abc"}
	wrapped := fmt.Errorf("lookup: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSessionNotFound))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
	assert.Equal(t, KindSessionNotFound, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindTooLarge, SessionID: "s1", Turn: 3, Sections: []string{"code_context"}}
	assert.Equal(t, "too_large [session s1 turn 3] sections=code_context", err.Error())

	inner := errors.New("boom")
	err = &Error{Kind: KindTransport, Err: inner}
	assert.Equal(t, "transport_error: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestWithSession(t *testing.T) {
	assert.NoError(t, WithSession(nil, "s1", 1))

	err := WithSession(errors.New("dial tcp: refused"), "s1", 2)
	assert.Equal(t, KindTransport, KindOf(err))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, 2, e.Turn)

	orig := &Error{Kind: KindQuotaExceeded}
	err = WithSession(orig, "s2", 5)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, orig.SessionID, "original error must not be mutated")
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.False(t, KindSessionNotFound.Retryable())
	assert.False(t, KindTooLarge.Retryable())
}
