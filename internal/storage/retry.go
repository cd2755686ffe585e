package storage

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/logger"
	"github.com/lvkv/whenfs/internal/metrics"
)

// RetryPolicy bounds the exponential backoff a Backend applies to
// TransientError before escalating to RemoteUnavailableError: rate-limit
// backoff with jitter, a bounded number of attempts, then escalation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Clock       clock.Clock
}

// DefaultRetryPolicy matches what the teacher's op rate limiter assumes
// for a remote JSON API: a handful of attempts, starting small.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Clock:       clock.RealClock{},
	}
}

// withRetry runs fn, retrying while it returns a *TransientError, with
// exponential backoff and full jitter between attempts. It returns the
// operation's result on success, the first permanent (non-transient)
// error immediately, or a *RemoteUnavailableError once the policy's
// attempt budget is exhausted.
func withRetry[T any](ctx context.Context, policy RetryPolicy, limiter *rate.Limiter, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return zero, err
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		metrics.BackendRetryCount.WithLabelValues(op).Inc()

		delay := backoffDelay(policy, attempt)
		logger.Warnf("storage: %s attempt %d/%d failed transiently, retrying in %v: %v", op, attempt, policy.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-policy.Clock.After(delay):
		}
	}

	return zero, &RemoteUnavailableError{Attempts: policy.MaxAttempts, Cause: lastErr}
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	exp := policy.BaseDelay << uint(attempt-1)
	if exp > policy.MaxDelay || exp <= 0 {
		exp = policy.MaxDelay
	}
	// Full jitter: a uniform draw in [0, exp).
	if exp <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(exp)))
}
