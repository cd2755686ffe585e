package storage

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lvkv/whenfs/internal/record"
)

// privateRoleKey and privateNextKey name the extended properties WhenFS
// attaches to every event it writes, mirroring how the teacher's GCS
// objects carry their own bookkeeping (generation, metageneration)
// alongside user-visible content. Calendar has no such built-in
// bookkeeping for arbitrary metadata, so WhenFS supplies its own via
// Event.ExtendedProperties.Private, which the API guarantees is opaque
// to other calendar clients.
const (
	privateRoleKey = "whenfs_role"
	privateNextKey = "whenfs_next"
)

// CalendarBackend is the reference storage.Backend: it maps records onto
// Google Calendar events the way the teacher's gcs.Bucket maps objects
// onto GCS, one HTTP-backed service client pre-bound to one container
// (there: a bucket; here: a calendar). It performs no retries of its
// own; wrap it with WithRetry for that.
type CalendarBackend struct {
	svc        *calendar.Service
	calendarID string

	// cache gives read-your-writes consistency: once a Put/Update has
	// returned, a subsequent Get for that id is served locally rather
	// than round-tripping to Calendar, which does not itself promise
	// read-your-writes.
	mu    sync.Mutex
	cache map[string]Record
}

// NewCalendarBackend builds a backend bound to an existing calendar. httpClient
// must already be configured for OAuth 2.0 (see internal/auth); this
// mirrors gcs.OpenConn accepting a pre-authorized *http.Client rather
// than knowing anything about how it was authorized.
func NewCalendarBackend(ctx context.Context, httpClient *http.Client, calendarID string) (*CalendarBackend, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("calendar.NewService: %w", err)
	}

	return &CalendarBackend{
		svc:        svc,
		calendarID: calendarID,
		cache:      make(map[string]Record),
	}, nil
}

// CreateCalendar creates a brand-new calendar named name and returns its
// id, for the --name flag path when the user did not pass --calendar.
func (b *CalendarBackend) CreateCalendar(ctx context.Context, name string) (string, error) {
	cal := &calendar.Calendar{Summary: name}
	created, err := b.svc.Calendars.Insert(cal).Context(ctx).Do()
	if err != nil {
		return "", classifyErr(err)
	}
	b.calendarID = created.Id
	return created.Id, nil
}

func (b *CalendarBackend) Get(ctx context.Context, id string) (Record, error) {
	b.mu.Lock()
	if r, ok := b.cache[id]; ok {
		b.mu.Unlock()
		return r, nil
	}
	b.mu.Unlock()

	ev, err := b.svc.Events.Get(b.calendarID, id).Context(ctx).Do()
	if err != nil {
		if isNotFound(classifyErr(err)) {
			return Record{}, &NotFoundError{ID: id}
		}
		return Record{}, classifyErr(err)
	}

	r, err := recordFromEvent(ev)
	if err != nil {
		return Record{}, err
	}
	b.storeInCache(r)
	return r, nil
}

func (b *CalendarBackend) Put(ctx context.Context, role record.Role, frame string, next *string) (string, error) {
	ev := eventFromRecord(role, frame, next)

	created, err := b.svc.Events.Insert(b.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", classifyErr(err)
	}

	b.storeInCache(Record{ID: created.Id, Role: role, Frame: frame, Next: next})
	return created.Id, nil
}

func (b *CalendarBackend) Update(ctx context.Context, id string, frame string, next *string) error {
	// Fetch the current role so we don't lose it across an update that
	// only intends to change the frame/next pointer.
	cur, err := b.Get(ctx, id)
	if err != nil {
		return err
	}

	ev := eventFromRecord(cur.Role, frame, next)
	_, err = b.svc.Events.Update(b.calendarID, id, ev).Context(ctx).Do()
	if err != nil {
		if isNotFound(classifyErr(err)) {
			return &NotFoundError{ID: id}
		}
		return classifyErr(err)
	}

	b.storeInCache(Record{ID: id, Role: cur.Role, Frame: frame, Next: next})
	return nil
}

func (b *CalendarBackend) Delete(ctx context.Context, id string) error {
	err := b.svc.Events.Delete(b.calendarID, id).Context(ctx).Do()
	if err != nil && !isNotFound(classifyErr(err)) {
		return classifyErr(err)
	}

	b.mu.Lock()
	delete(b.cache, id)
	b.mu.Unlock()
	return nil
}

func (b *CalendarBackend) Scan(ctx context.Context) (<-chan Record, <-chan error) {
	out := make(chan Record)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		pageToken := ""
		for {
			call := b.svc.Events.List(b.calendarID).Context(ctx).MaxResults(250)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			page, err := call.Do()
			if err != nil {
				errc <- classifyErr(err)
				return
			}

			for _, ev := range page.Items {
				r, err := recordFromEvent(ev)
				if err != nil {
					// Orphan/unparseable event: skipped rather than
					// aborting the whole scan; the cache layer logs it
					// once it sees the gap in the chain.
					select {
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					default:
					}
					continue
				}

				select {
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				case out <- r:
				}
			}

			if page.NextPageToken == "" {
				return
			}
			pageToken = page.NextPageToken
		}
	}()

	return out, errc
}

func (b *CalendarBackend) RootOf(ctx context.Context, rootHint string) (string, error) {
	if rootHint != "" {
		if _, err := b.Get(ctx, rootHint); err != nil {
			return "", err
		}
		return rootHint, nil
	}
	return "", fmt.Errorf("storage: --root-event required to mount an existing volume")
}

func (b *CalendarBackend) storeInCache(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[r.ID] = r
}

// eventTimeSlot computes the event's visible start/end. WhenFS never uses
// timestamps as a metadata side channel, so these exist only so the
// event renders sanely in a calendar UI; nothing ever decodes them back.
func eventTimeSlot() (start, end calendar.EventDateTime) {
	now := time.Now().Truncate(time.Minute)
	return calendar.EventDateTime{DateTime: now.Format(time.RFC3339)},
		calendar.EventDateTime{DateTime: now.Add(time.Minute).Format(time.RFC3339)}
}

func eventFromRecord(role record.Role, frame string, next *string) *calendar.Event {
	start, end := eventTimeSlot()
	props := map[string]string{privateRoleKey: role.String()}
	if next != nil {
		props[privateNextKey] = *next
	}

	return &calendar.Event{
		Summary:     record.Summary(role, 0),
		Description: frame,
		Start:       &start,
		End:         &end,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: props,
		},
	}
}

func recordFromEvent(ev *calendar.Event) (Record, error) {
	if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private == nil {
		return Record{}, &NotFoundError{ID: ev.Id}
	}

	role, ok := roleFromString(ev.ExtendedProperties.Private[privateRoleKey])
	if !ok {
		return Record{}, fmt.Errorf("storage: event %s: %w", ev.Id, ErrNotFound)
	}

	var next *string
	if n, ok := ev.ExtendedProperties.Private[privateNextKey]; ok && n != "" {
		next = &n
	}

	return Record{ID: ev.Id, Role: role, Frame: ev.Description, Next: next}, nil
}

func roleFromString(s string) (record.Role, bool) {
	switch s {
	case "root":
		return record.RoleRoot, true
	case "inode-file":
		return record.RoleInodeFile, true
	case "inode-dir":
		return record.RoleInodeDir, true
	case "block":
		return record.RoleBlock, true
	default:
		return 0, false
	}
}

// classifyErr turns a raw calendar API error into WhenFS's own error
// taxonomy: 5xx and network failures are Transient, 401/403 are
// AuthError, everything else (including a plain nil) passes through
// unchanged so a 404 can still be recognized by isNotFound.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if ok := asGoogleAPIError(err, &apiErr); ok {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return &AuthError{Cause: err}
		case apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests:
			return &TransientError{Cause: err}
		default:
			return err
		}
	}

	// Network-level errors (no HTTP status at all) are always transient.
	return &TransientError{Cause: err}
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	if apiErr, ok := err.(*googleapi.Error); ok {
		*target = apiErr
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if asGoogleAPIError(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
