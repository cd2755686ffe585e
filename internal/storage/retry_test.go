package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/record"
)

// TestWithRetryRecoversFromTransientFailure drives the backoff path
// deterministically: the fake backend fails the first two Put calls
// transiently, and a simulated clock stands in for wall-clock time so
// the test never actually sleeps through the policy's backoff delays.
func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	backend := NewFakeBackend()
	backend.FailPutsRemaining = 2

	simClock := clock.NewSimulatedClock(time.Unix(0, 0))
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Clock:       simClock,
	}
	retrying := WithRetry(backend, policy)

	type result struct {
		id  string
		err error
	}
	resultC := make(chan result, 1)
	go func() {
		id, err := retrying.Put(context.Background(), record.RoleBlock, "frame", nil)
		resultC <- result{id, err}
	}()

	var res result
poll:
	for {
		select {
		case res = <-resultC:
			break poll
		case <-time.After(time.Millisecond):
			simClock.AdvanceTime(policy.MaxDelay)
		}
	}

	require.NoError(t, res.err)
	require.NotEmpty(t, res.id)
	require.Equal(t, 0, backend.FailPutsRemaining)
}

// TestWithRetryEscalatesAfterExhaustingAttempts confirms the policy
// gives up with a RemoteUnavailableError once every attempt has been
// spent, rather than retrying forever.
func TestWithRetryEscalatesAfterExhaustingAttempts(t *testing.T) {
	backend := NewFakeBackend()
	backend.FailPutsRemaining = 100

	simClock := clock.NewSimulatedClock(time.Unix(0, 0))
	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Clock:       simClock,
	}
	retrying := WithRetry(backend, policy)

	type result struct {
		id  string
		err error
	}
	resultC := make(chan result, 1)
	go func() {
		id, err := retrying.Put(context.Background(), record.RoleBlock, "frame", nil)
		resultC <- result{id, err}
	}()

	var res result
poll:
	for {
		select {
		case res = <-resultC:
			break poll
		case <-time.After(time.Millisecond):
			simClock.AdvanceTime(policy.MaxDelay)
		}
	}

	require.Error(t, res.err)
	var unavailable *RemoteUnavailableError
	require.ErrorAs(t, res.err, &unavailable)
	require.Equal(t, policy.MaxAttempts, unavailable.Attempts)
}
