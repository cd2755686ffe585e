// Package storage implements the backend capability set: a small CRUD
// interface over opaque "records", with one reference implementation
// against Google Calendar and one in-memory fake used by the rest of
// the module's tests.
package storage

import (
	"context"

	"github.com/lvkv/whenfs/internal/record"
)

// Record is the storage layer's view of a single calendar event: an
// opaque id, the role the codec framed it with, the already-framed frame
// text (base64 header+payload, ready to decode with record.DecodeFrame),
// and an optional pointer to the next record in the chain.
type Record struct {
	ID   string
	Role record.Role
	// Frame is the text produced by record.EncodeChain for this link of
	// the chain (exactly one entry of that returned slice).
	Frame string
	// Next is the id of the next record in the chain, or nil if this is
	// the chain's tail.
	Next *string
}

// Backend is the capability set every storage implementation exposes.
// Implementations: CalendarBackend (Google Calendar REST v3) and
// FakeBackend (in-memory, used by cache/adapter tests).
type Backend interface {
	// Get fetches a record by id. Returns a *NotFoundError if absent.
	Get(ctx context.Context, id string) (Record, error)

	// Put creates a new record and returns its backend-assigned id.
	Put(ctx context.Context, role record.Role, frame string, next *string) (id string, err error)

	// Update replaces the frame and/or next pointer of an existing
	// record in place. The record keeps its id.
	Update(ctx context.Context, id string, frame string, next *string) error

	// Delete removes a record. Deleting an absent id is not an error:
	// flush-time deletions are not expected to be retried against a
	// record some other path already reclaimed.
	Delete(ctx context.Context, id string) error

	// Scan enumerates every record in the backing calendar, used only
	// during mount-from-existing recovery. The returned channel is
	// closed when the scan completes or the context is canceled; a scan
	// error is reported on the error channel exactly once, after which
	// the record channel is closed.
	Scan(ctx context.Context) (<-chan Record, <-chan error)

	// RootOf resolves the distinguished root record for the volume. If
	// rootHint is non-empty it is used directly (the user passed
	// --root-event). Neither implementation creates a root record: with
	// an empty hint, CalendarBackend returns an error and FakeBackend
	// returns the root it last resolved, or a *NotFoundError.
	RootOf(ctx context.Context, rootHint string) (id string, err error)
}
