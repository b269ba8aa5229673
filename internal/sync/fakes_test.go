package sync

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
	"github.com/pulseplan/calsync/internal/provider"
	"github.com/pulseplan/calsync/internal/queue"
	"github.com/pulseplan/calsync/internal/repository"
)

/************ accounts ************/

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*model.CalendarAccount
	due      []model.CalendarAccount
	claimErr error

	claimCutoff time.Time
	claimLimit  int

	markedSynced []uuid.UUID
	markedIdle   []uuid.UUID
	markedErrors map[uuid.UUID]string

	savedAccess  []byte
	savedRefresh []byte
	savedExpiry  time.Time
}

func newFakeAccounts(accs ...*model.CalendarAccount) *fakeAccounts {
	f := &fakeAccounts{
		byID:         make(map[uuid.UUID]*model.CalendarAccount),
		markedErrors: make(map[uuid.UUID]string),
	}
	for _, a := range accs {
		f.byID[a.ID] = a
	}
	return f
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.CalendarAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) ClaimDue(_ context.Context, cutoff time.Time, limit int) ([]model.CalendarAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCutoff, f.claimLimit = cutoff, limit
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return append([]model.CalendarAccount(nil), f.due...), nil
}

func (f *fakeAccounts) MarkSynced(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedSynced = append(f.markedSynced, id)
	if a, ok := f.byID[id]; ok {
		a.Status, a.LastError = model.StatusIdle, ""
	}
	return nil
}

func (f *fakeAccounts) MarkIdle(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedIdle = append(f.markedIdle, id)
	if a, ok := f.byID[id]; ok {
		a.Status = model.StatusIdle
	}
	return nil
}

func (f *fakeAccounts) MarkError(_ context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedErrors[id] = msg
	if a, ok := f.byID[id]; ok {
		a.Status, a.LastError = model.StatusError, msg
	}
	return nil
}

func (f *fakeAccounts) SaveTokens(_ context.Context, _ uuid.UUID, accessEnc, refreshEnc []byte, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedAccess, f.savedRefresh, f.savedExpiry = accessEnc, refreshEnc, expiresAt
	return nil
}

/************ calendars ************/

type fakeCalendars struct {
	mu          sync.Mutex
	byAccount   map[uuid.UUID][]model.Calendar
	listErr     error
	savedTokens map[uuid.UUID]string
}

func newFakeCalendars() *fakeCalendars {
	return &fakeCalendars{
		byAccount:   make(map[uuid.UUID][]model.Calendar),
		savedTokens: make(map[uuid.UUID]string),
	}
}

var _ repository.CalendarRepository = (*fakeCalendars)(nil)

func (f *fakeCalendars) ListByAccount(_ context.Context, accountID uuid.UUID) ([]model.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Calendar(nil), f.byAccount[accountID]...), nil
}

func (f *fakeCalendars) SaveSyncToken(_ context.Context, calendarID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedTokens[calendarID] = token
	return nil
}

/************ events ************/

type eventKey struct {
	calendarID uuid.UUID
	externalID string
}

// fakeEvents mirrors the postgres upsert semantics in memory: rows are keyed
// on (calendar_id, external_id) and keep their primary id across upserts.
type fakeEvents struct {
	mu        sync.Mutex
	rows      map[eventKey]model.CalendarEvent
	owner     uuid.UUID // user owning every calendar in the fake
	deleteErr error
	upsertErr error
}

func newFakeEvents(owner uuid.UUID) *fakeEvents {
	return &fakeEvents{rows: make(map[eventKey]model.CalendarEvent), owner: owner}
}

var _ repository.EventRepository = (*fakeEvents)(nil)

func (f *fakeEvents) seed(ev model.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[eventKey{ev.CalendarID, ev.ExternalID}] = ev
}

func (f *fakeEvents) ListExternalIDs(_ context.Context, calendarID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.rows {
		if k.calendarID == calendarID {
			out = append(out, k.externalID)
		}
	}
	return out, nil
}

func (f *fakeEvents) DeleteByExternalIDs(_ context.Context, userID uuid.UUID, externalIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if userID != f.owner {
		return 0, nil // wrong tenant, nothing to delete
	}
	var n int64
	for _, ext := range externalIDs {
		for k := range f.rows {
			if k.externalID == ext {
				delete(f.rows, k)
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeEvents) UpsertBatch(_ context.Context, events []model.EventUpsert) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, up := range events {
		k := eventKey{up.CalendarID, up.ExternalID}
		row, ok := f.rows[k]
		if !ok {
			row = model.CalendarEvent{
				ID:         uuid.Must(uuid.NewV4()),
				CalendarID: up.CalendarID,
				ExternalID: up.ExternalID,
			}
		}
		row.Title, row.StartsAt, row.EndsAt = up.Title, up.StartsAt, up.EndsAt
		row.AllDay, row.Recurrence, row.Status, row.ETag = up.AllDay, up.Recurrence, up.Status, up.ETag
		f.rows[k] = row
	}
	return int64(len(events)), nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeEvents) get(calendarID uuid.UUID, externalID string) (model.CalendarEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[eventKey{calendarID, externalID}]
	return ev, ok
}

/************ adapter / tokens / queue / publisher / tracker ************/

type fakeAdapter struct {
	mu        sync.Mutex
	result    *provider.FetchResult
	err       error
	gotCreds  provider.Credentials
	gotRefs   []provider.CalendarRef
	gotWindow model.SyncWindow
	calls     int
}

var _ provider.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) FetchEvents(_ context.Context, creds provider.Credentials, refs []provider.CalendarRef, window model.SyncWindow) (*provider.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotCreds, f.gotRefs, f.gotWindow = creds, refs, window
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) AccessToken(context.Context, *model.CalendarAccount) (string, error) {
	return f.token, f.err
}

type enqueued struct {
	job     string
	payload []byte
}

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []enqueued
	enqueueErr func(jobName string, payload []byte) error
}

func (f *fakeQueue) Enqueue(_ context.Context, jobName string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		if err := f.enqueueErr(jobName, payload); err != nil {
			return err
		}
	}
	f.jobs = append(f.jobs, enqueued{job: jobName, payload: payload})
	return nil
}

func (f *fakeQueue) Schedule(context.Context, string, string, []byte, queue.ScheduleOptions) error {
	return nil
}

func (f *fakeQueue) Consume(context.Context, string, int, queue.Handler) error {
	return nil
}

var _ queue.Queue = (*fakeQueue)(nil)

type published struct {
	userID  uuid.UUID
	event   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, userID uuid.UUID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{userID: userID, event: event, payload: payload})
	return f.err
}

type fakeTracker struct {
	mu        sync.Mutex
	successes []uuid.UUID
	failures  []uuid.UUID
	hold      bool
}

func (f *fakeTracker) Success(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, id)
	return nil
}

func (f *fakeTracker) Failure(_ context.Context, id uuid.UUID) (bool, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, id)
	return f.hold, time.Time{}, nil
}
