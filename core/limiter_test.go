package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BlockSpacesCalls(t *testing.T) {
	const interval = 40 * time.Millisecond
	const n = 4
	rl := NewRateLimiter(interval, PolicyBlock)

	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), (n-1)*interval-5*time.Millisecond)
}

func TestRateLimiter_ConcurrentCallersSerialize(t *testing.T) {
	const interval = 30 * time.Millisecond
	const n = 5
	rl := NewRateLimiter(interval, PolicyBlock)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.Acquire(context.Background()))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), (n-1)*interval-5*time.Millisecond)
}

func TestRateLimiter_RejectReportsWait(t *testing.T) {
	rl := NewRateLimiter(time.Hour, PolicyReject)
	require.NoError(t, rl.Acquire(context.Background()))

	err := rl.Acquire(context.Background())
	require.ErrorIs(t, err, ErrRateLimited)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Greater(t, e.Wait, 59*time.Minute)
}

func TestRateLimiter_DeadlineIsTimeout(t *testing.T) {
	rl := NewRateLimiter(time.Hour, PolicyBlock)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Acquire(ctx), ErrTimeout)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, PolicyReject)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
}

func TestParseLimitPolicy(t *testing.T) {
	p, err := ParseLimitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	p, err = ParseLimitPolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParseLimitPolicy("drop")
	assert.Error(t, err)
}
