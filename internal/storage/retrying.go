package storage

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/lvkv/whenfs/internal/record"
)

// retryingBackend decorates any Backend with the module's retry policy,
// so the policy applies uniformly to the real Calendar backend and to a
// fault-injecting fake alike, rather than being baked into one
// implementation.
type retryingBackend struct {
	inner   Backend
	policy  RetryPolicy
	limiter *rate.Limiter
}

// WithRetry wraps inner so every call retries TransientError with
// exponential backoff before escalating to RemoteUnavailableError.
func WithRetry(inner Backend, policy RetryPolicy) Backend {
	return &retryingBackend{
		inner:   inner,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

func (b *retryingBackend) Get(ctx context.Context, id string) (Record, error) {
	return withRetry(ctx, b.policy, b.limiter, "Get", func(ctx context.Context) (Record, error) {
		return b.inner.Get(ctx, id)
	})
}

func (b *retryingBackend) Put(ctx context.Context, role record.Role, frame string, next *string) (string, error) {
	return withRetry(ctx, b.policy, b.limiter, "Put", func(ctx context.Context) (string, error) {
		return b.inner.Put(ctx, role, frame, next)
	})
}

func (b *retryingBackend) Update(ctx context.Context, id string, frame string, next *string) error {
	_, err := withRetry(ctx, b.policy, b.limiter, "Update", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.inner.Update(ctx, id, frame, next)
	})
	return err
}

func (b *retryingBackend) Delete(ctx context.Context, id string) error {
	_, err := withRetry(ctx, b.policy, b.limiter, "Delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.inner.Delete(ctx, id)
	})
	return err
}

func (b *retryingBackend) Scan(ctx context.Context) (<-chan Record, <-chan error) {
	// Scan already streams incrementally and is only used during mount
	// recovery; retrying a partial scan would replay records already
	// seen, so it passes through unwrapped.
	return b.inner.Scan(ctx)
}

func (b *retryingBackend) RootOf(ctx context.Context, rootHint string) (string, error) {
	return withRetry(ctx, b.policy, b.limiter, "RootOf", func(ctx context.Context) (string, error) {
		return b.inner.RootOf(ctx, rootHint)
	})
}
