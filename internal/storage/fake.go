package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lvkv/whenfs/internal/record"
)

// FakeBackend is an in-memory Backend, the WhenFS analogue of the
// teacher's gcsfake bucket: it gives the cache and fs-adapter test suites
// something to run against without a network, while still going through
// the same Get/Put/Update/Delete/Scan/RootOf contract the real Calendar
// backend honors. Read-your-writes holds trivially since there is no
// remote round-trip to begin with.
type FakeBackend struct {
	mu      sync.Mutex
	records map[string]Record
	root    string

	// FailPutsRemaining, if positive, makes that many subsequent Put
	// calls return a *TransientError before succeeding. Used to exercise
	// transient-failure masking: a write should still succeed once the
	// backend's own retry budget absorbs the failures.
	FailPutsRemaining int
}

// NewFakeBackend returns an empty backend with no root record yet. RootOf
// never mints one: until a hint naming an existing record has been
// resolved, RootOf with an empty hint returns a *NotFoundError.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{records: make(map[string]Record)}
}

func (b *FakeBackend) Get(ctx context.Context, id string) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[id]
	if !ok {
		return Record{}, &NotFoundError{ID: id}
	}
	return r, nil
}

func (b *FakeBackend) Put(ctx context.Context, role record.Role, frame string, next *string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailPutsRemaining > 0 {
		b.FailPutsRemaining--
		return "", &TransientError{Cause: errInjected}
	}

	id := uuid.NewString()
	b.records[id] = Record{ID: id, Role: role, Frame: frame, Next: next}
	return id, nil
}

func (b *FakeBackend) Update(ctx context.Context, id string, frame string, next *string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.records[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	r.Frame = frame
	r.Next = next
	b.records[id] = r
	return nil
}

func (b *FakeBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.records, id)
	return nil
}

func (b *FakeBackend) Scan(ctx context.Context) (<-chan Record, <-chan error) {
	out := make(chan Record)
	errc := make(chan error, 1)

	b.mu.Lock()
	snapshot := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		snapshot = append(snapshot, r)
	}
	b.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errc)
		for _, r := range snapshot {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case out <- r:
			}
		}
	}()

	return out, errc
}

func (b *FakeBackend) RootOf(ctx context.Context, rootHint string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rootHint != "" {
		if _, ok := b.records[rootHint]; !ok {
			return "", &NotFoundError{ID: rootHint}
		}
		b.root = rootHint
		return rootHint, nil
	}

	if b.root != "" {
		return b.root, nil
	}

	return "", &NotFoundError{ID: "<no root>"}
}

var errInjected = fakeInjectedError{}

type fakeInjectedError struct{}

func (fakeInjectedError) Error() string { return "fake: injected transient failure" }
