package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dek0rta/homework-bot/internal/calendar"
	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

// Monday 2025-09-01.
var monday = time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC)

type fakeSchedules struct {
	weeks map[int64]*schedule.Weekly
}

func (f *fakeSchedules) Get(_ context.Context, userID int64) (*schedule.Weekly, error) {
	w, ok := f.weeks[userID]
	if !ok {
		return nil, store.ErrNotConfigured
	}
	return w, nil
}

type eventKey struct {
	user    int64
	subject string
	date    string
}

// memEvents mimics the store's atomic upsert-by-key semantics.
type memEvents struct {
	mu     sync.Mutex
	rows   map[eventKey]*store.Event
	writes int
}

func newMemEvents() *memEvents { return &memEvents{rows: map[eventKey]*store.Event{}} }

// The store's dedup index is on lower(subject); the fake mirrors that.
func key(userID int64, subject string, date time.Time) eventKey {
	return eventKey{userID, strings.ToLower(subject), date.Format("2006-01-02")}
}

func (m *memEvents) Find(_ context.Context, userID int64, subject string, date time.Time) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[key(userID, subject, date)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) Upsert(_ context.Context, e *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.rows[key(e.UserID, e.Subject, e.Date)] = &cp
	m.writes++
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	calls   int
	errs    []error // consumed per call; nil entry = success
	last    calendar.EventInput
	deleted []string
}

func (f *fakeSink) CreateOrUpdateEvent(_ context.Context, in calendar.EventInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = in
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("ev-%d", f.calls), nil
}

func (f *fakeSink) DeleteEvent(_ context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return nil
}

func transientErr() error {
	return &calendar.SinkError{Kind: calendar.Transient, Err: errors.New("rate limited")}
}

func newTestScheduler(t *testing.T, sink calendar.Sink, events EventStore) *Scheduler {
	t.Helper()
	week, err := schedule.ParseText("Ср: Математика 8:00")
	require.NoError(t, err)
	s := New(
		&fakeSchedules{weeks: map[int64]*schedule.Weekly{7: week}},
		events, sink,
		schedule.NewSlotResolver(),
		zerolog.Nop(),
	)
	s.Backoff = time.Millisecond
	return s
}

func req(due string) Request {
	return Request{
		UserID:           7,
		SubjectHint:      "Математика",
		Task:             "стр. 45 упр. 7",
		RawDueExpression: due,
		ReceivedAt:       monday,
	}
}

func TestSubmit_SchedulesOnLessonSlot(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	out := s.Submit(context.Background(), req("к среде"))

	assert.Equal(t, Scheduled, out.Status)
	assert.Equal(t, time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC), out.Date)
	assert.Equal(t, schedule.ClockTime{Hour: 8}, out.Start)
	assert.True(t, out.SlotMatched)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, time.Date(2025, 9, 3, 8, 0, 0, 0, time.UTC), sink.last.Start)
	assert.Equal(t, 1, events.writes)
}

func TestSubmit_EmptyExpressionScansToLesson(t *testing.T) {
	s := newTestScheduler(t, &fakeSink{}, newMemEvents())

	out := s.Submit(context.Background(), req(""))

	assert.Equal(t, Scheduled, out.Status)
	assert.Equal(t, time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC), out.Date)
	assert.True(t, out.SlotMatched)
}

func TestSubmit_NotConfigured(t *testing.T) {
	s := newTestScheduler(t, &fakeSink{}, newMemEvents())

	r := req("завтра")
	r.UserID = 99
	out := s.Submit(context.Background(), r)

	assert.Equal(t, NotConfigured, out.Status)
	assert.ErrorIs(t, out.Err, store.ErrNotConfigured)
}

func TestSubmit_ResubmitIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	first := s.Submit(context.Background(), req("к среде"))
	require.Equal(t, Scheduled, first.Status)

	second := s.Submit(context.Background(), req("к среде"))
	assert.Equal(t, AlreadyScheduled, second.Status)
	assert.Equal(t, first.Date, second.Date)

	// No second calendar write, store unchanged.
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 1, events.writes)
	assert.Len(t, events.rows, 1)
}

func TestSubmit_ExactReplacesInferred(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	// Inferred submission lands on Wednesday's lesson.
	first := s.Submit(context.Background(), req(""))
	require.Equal(t, Scheduled, first.Status)

	// The exact resubmission for the same key overwrites in place.
	second := s.Submit(context.Background(), req("к среде"))
	assert.Equal(t, Scheduled, second.Status)

	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, "ev-1", sink.last.ExistingID, "overwrite must target the existing calendar event")
	assert.Len(t, events.rows, 1)
}

func TestSubmit_TransientRetriesThenFails(t *testing.T) {
	sink := &fakeSink{errs: []error{transientErr(), transientErr(), transientErr()}}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	out := s.Submit(context.Background(), req("к среде"))

	assert.Equal(t, CalendarWriteFailed, out.Status)
	assert.Equal(t, 3, sink.calls)
	assert.Equal(t, 0, events.writes, "no store write after a failed calendar write")
}

func TestSubmit_TransientThenSuccess(t *testing.T) {
	sink := &fakeSink{errs: []error{transientErr(), nil}}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	out := s.Submit(context.Background(), req("к среде"))

	assert.Equal(t, Scheduled, out.Status)
	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, 1, events.writes)
}

func TestSubmit_PermanentFailsImmediately(t *testing.T) {
	sink := &fakeSink{errs: []error{
		&calendar.SinkError{Kind: calendar.Permanent, Err: errors.New("invalid request")},
	}}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	out := s.Submit(context.Background(), req("к среде"))

	assert.Equal(t, CalendarWriteFailed, out.Status)
	assert.Equal(t, 1, sink.calls, "permanent failures are not retried")
	assert.Equal(t, 0, events.writes)
}

func TestSubmit_AuthRequired(t *testing.T) {
	sink := &fakeSink{errs: []error{
		&calendar.SinkError{Kind: calendar.Permanent, Err: calendar.ErrAuthRequired},
	}}
	s := newTestScheduler(t, sink, newMemEvents())

	out := s.Submit(context.Background(), req("к среде"))

	assert.Equal(t, AuthRequired, out.Status)
	assert.Equal(t, 1, sink.calls)
}

func TestSubmit_NoSlotMatchStillSchedules(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	r := req("во вторник") // no math on Tuesday
	out := s.Submit(context.Background(), r)

	assert.Equal(t, Scheduled, out.Status)
	assert.False(t, out.SlotMatched)
	assert.Equal(t, time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC), out.Date)
	assert.Equal(t, schedule.ClockTime{Hour: 9}, out.Start)
	assert.Equal(t, 1, events.writes)
}

func TestSubmit_DetectedDateWins(t *testing.T) {
	sink := &fakeSink{}
	s := newTestScheduler(t, sink, newMemEvents())

	r := req("непонятная фраза")
	r.DetectedDate = "2025-09-10" // Wednesday with a math lesson
	out := s.Submit(context.Background(), r)

	assert.Equal(t, Scheduled, out.Status)
	assert.Equal(t, time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), out.Date)
	assert.True(t, out.SlotMatched)
}

// The dedup key ignores subject case: a resubmission whose hint differs
// only in case overwrites the existing row instead of adding a second one.
func TestSubmit_CaseInsensitiveDedupKey(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	// No chemistry lesson anywhere: the raw hint is stored as the subject.
	r1 := req("")
	r1.SubjectHint = "Химия"
	first := s.Submit(context.Background(), r1)
	require.Equal(t, Scheduled, first.Status)
	require.False(t, first.SlotMatched)

	// Same homework, lowercased hint, higher detail: in-place overwrite.
	r2 := req("во вторник")
	r2.SubjectHint = "химия"
	second := s.Submit(context.Background(), r2)
	assert.Equal(t, Scheduled, second.Status)

	assert.Equal(t, "ev-1", sink.last.ExistingID, "overwrite must target the existing calendar event")
	assert.Len(t, events.rows, 1)
}

// racingSink injects a complete competing submission in the middle of the
// first calendar write, before the write returns.
type racingSink struct {
	*fakeSink
	s     *Scheduler
	req   Request
	fired bool
}

func (r *racingSink) CreateOrUpdateEvent(ctx context.Context, in calendar.EventInput) (string, error) {
	if !r.fired {
		r.fired = true
		r.s.Submit(ctx, r.req)
	}
	return r.fakeSink.CreateOrUpdateEvent(ctx, in)
}

// When two same-key submissions both pass the empty dedup check, the loser
// must remove its own calendar event instead of orphaning it.
func TestSubmit_DoubleWriteRaceCleansOrphan(t *testing.T) {
	inner := &fakeSink{}
	events := newMemEvents()
	sink := &racingSink{fakeSink: inner, req: req("к среде")}
	s := newTestScheduler(t, sink, events)
	sink.s = s

	out := s.Submit(context.Background(), req("к среде"))

	// The injected submission won: ev-1 is recorded, ev-2 is cleaned up.
	assert.Equal(t, AlreadyScheduled, out.Status)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"ev-2"}, inner.deleted)
	assert.Len(t, events.rows, 1)
	for _, e := range events.rows {
		assert.Equal(t, "ev-1", e.ExternalEventID)
	}
}

// Concurrent submissions for the same dedup key never produce a second
// store row.
func TestSubmit_ConcurrentSameKeySingleRow(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := s.Submit(context.Background(), req("к среде"))
			assert.Contains(t, []Status{Scheduled, AlreadyScheduled}, out.Status)
		}()
	}
	wg.Wait()

	assert.Len(t, events.rows, 1)
}

func TestSubmit_CancelledBeforeWrite(t *testing.T) {
	sink := &fakeSink{}
	events := newMemEvents()
	s := newTestScheduler(t, sink, events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Submit(ctx, req("к среде"))

	assert.Equal(t, CalendarWriteFailed, out.Status)
	assert.Equal(t, 0, sink.calls)
	assert.Equal(t, 0, events.writes, "no partial event after cancellation")
}
