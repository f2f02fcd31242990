package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// LimitPolicy selects what Acquire does when called too early.
type LimitPolicy string

const (
	// PolicyBlock waits until the caller becomes eligible (default).
	PolicyBlock LimitPolicy = "block"
	// PolicyReject fails immediately with ErrRateLimited and the remaining wait.
	PolicyReject LimitPolicy = "reject"
)

// ParseLimitPolicy validates a policy string; empty selects PolicyBlock.
func ParseLimitPolicy(s string) (LimitPolicy, error) {
	switch LimitPolicy(s) {
	case "", PolicyBlock:
		return PolicyBlock, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown rate limit policy %q", s)
	}
}

// RateLimiter enforces a minimum spacing between outbound model calls across
// the whole process. It is shared by every session.
type RateLimiter struct {
	interval time.Duration
	policy   LimitPolicy
	limiter  *rate.Limiter
}

// NewRateLimiter creates a limiter permitting one call per interval.
// An interval <= 0 disables limiting.
func NewRateLimiter(interval time.Duration, policy LimitPolicy) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if policy == "" {
		policy = PolicyBlock
	}
	return &RateLimiter{interval: interval, policy: policy, limiter: rate.NewLimiter(limit, 1)}
}

// Interval returns the configured minimum spacing.
func (rl *RateLimiter) Interval() time.Duration { return rl.interval }

// Acquire claims the next slot. The slot is reserved atomically before
// Acquire returns, so concurrent callers serialize.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.policy == PolicyReject {
		r := rl.limiter.Reserve()
		if d := r.Delay(); d > 0 {
			r.Cancel()
			return &Error{Kind: KindRateLimited, Wait: d}
		}
		return nil
	}

	if err := rl.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Either the deadline passed while waiting or the wait would
		// outlast it; both mean the caller's budget ran out.
		return &Error{Kind: KindTimeout, Msg: "waiting for rate limiter", Err: err}
	}
	return nil
}
