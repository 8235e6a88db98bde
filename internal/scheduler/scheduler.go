// Package scheduler turns one parsed assignment into one calendar event:
// due-date resolution, slot lookup, dedup, calendar write, store record.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dek0rta/homework-bot/internal/calendar"
	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

// Request is one inbound assignment, consumed once and discarded.
type Request struct {
	UserID           int64
	SubjectHint      string
	Task             string
	RawDueExpression string
	// DetectedDate is an explicit YYYY-MM-DD the upstream parser found in
	// the text, empty otherwise. Untrusted.
	DetectedDate string
	ReceivedAt   time.Time
}

// Status is the user-visible outcome of a submission.
type Status int

const (
	Scheduled Status = iota
	AlreadyScheduled
	NotConfigured
	AuthRequired
	CalendarWriteFailed
)

func (s Status) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case AlreadyScheduled:
		return "already_scheduled"
	case NotConfigured:
		return "not_configured"
	case AuthRequired:
		return "auth_required"
	default:
		return "calendar_write_failed"
	}
}

// Outcome is what surfaces back to the chat layer.
type Outcome struct {
	Status  Status
	Subject string
	Date    time.Time
	Start   schedule.ClockTime
	// SlotMatched=false on a Scheduled outcome means the event was still
	// created but no matching lesson was found: warn the user.
	SlotMatched bool
	Err         error
}

// ScheduleStore is the slice of the store the scheduler reads timetables
// through.
type ScheduleStore interface {
	Get(ctx context.Context, userID int64) (*schedule.Weekly, error)
}

// EventStore records created events under the (user, subject, date) dedup
// key; Upsert must be atomic per key.
type EventStore interface {
	Find(ctx context.Context, userID int64, subject string, date time.Time) (*store.Event, error)
	Upsert(ctx context.Context, e *store.Event) error
}

type Scheduler struct {
	Schedules ScheduleStore
	Events    EventStore
	Sink      calendar.Sink
	Resolver  *schedule.SlotResolver
	Log       zerolog.Logger

	// Calendar write retry policy for transient failures.
	MaxAttempts int
	Backoff     time.Duration

	locks sync.Map // userID -> *sync.Mutex
}

func New(schedules ScheduleStore, events EventStore, sink calendar.Sink, resolver *schedule.SlotResolver, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Schedules:   schedules,
		Events:      events,
		Sink:        sink,
		Resolver:    resolver,
		Log:         log,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// userLock serializes the dedup check and the store record per user.
// Calendar writes happen with the lock released.
func (s *Scheduler) userLock(userID int64) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Submit runs one assignment through the state machine
// Received → DateResolved → SlotResolved → ConflictChecked → Written|Failed.
func (s *Scheduler) Submit(ctx context.Context, req Request) Outcome {
	log := s.Log.With().
		Str("submission", uuid.NewString()).
		Int64("user", req.UserID).
		Str("subject_hint", req.SubjectHint).
		Logger()
	log.Info().Str("state", "received").Str("due_expr", req.RawDueExpression).Msg("submission")

	week, err := s.Schedules.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			return Outcome{Status: NotConfigured, Err: err}
		}
		return Outcome{Status: CalendarWriteFailed, Err: fmt.Errorf("load schedule: %w", err)}
	}

	deadline := s.resolveDate(req)
	log.Info().Str("state", "date_resolved").
		Time("date", deadline.Date).
		Str("confidence", deadline.Confidence.String()).Msg("submission")

	slot := s.Resolver.Resolve(deadline, req.SubjectHint, week)
	log.Info().Str("state", "slot_resolved").
		Time("date", slot.Date).
		Str("time", slot.Start.String()).
		Str("match", slot.Match.String()).Msg("submission")

	// Dedup check under the per-user lock.
	mu := s.userLock(req.UserID)
	mu.Lock()
	existing, err := s.Events.Find(ctx, req.UserID, slot.Subject, slot.Date)
	mu.Unlock()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Outcome{Status: CalendarWriteFailed, Err: fmt.Errorf("dedup lookup: %w", err)}
	}
	if existing != nil && !supersedes(deadline.Confidence, slot.Match, existing) {
		log.Info().Str("state", "conflict_checked").Msg("duplicate, keeping existing event")
		return Outcome{
			Status:      AlreadyScheduled,
			Subject:     existing.Subject,
			Date:        existing.Date,
			Start:       existing.Start,
			SlotMatched: existing.SlotMatched,
		}
	}

	if ctx.Err() != nil {
		return Outcome{Status: CalendarWriteFailed, Err: ctx.Err()}
	}

	in := calendar.EventInput{
		Subject: slot.Subject,
		Task:    req.Task,
		Start:   slot.Start.On(slot.Date, slot.Date.Location()),
		End:     slot.End.On(slot.Date, slot.Date.Location()),
	}
	if existing != nil {
		in.ExistingID = existing.ExternalEventID
	}

	externalID, err := s.writeWithRetry(ctx, log, in)
	if err != nil {
		// No partial state: the store is only written after the sink
		// confirmed.
		if errors.Is(err, calendar.ErrAuthRequired) {
			return Outcome{Status: AuthRequired, Err: err}
		}
		return Outcome{Status: CalendarWriteFailed, Err: err}
	}

	ev := &store.Event{
		UserID:          req.UserID,
		Subject:         slot.Subject,
		Date:            slot.Date,
		Start:           slot.Start,
		End:             slot.End,
		Task:            req.Task,
		Confidence:      deadline.Confidence,
		SlotMatched:     slot.Match == schedule.SlotMatched,
		ExternalEventID: externalID,
	}

	// The lock was released during the calendar write, so a concurrent
	// same-key submission may have recorded its own event meanwhile.
	// Re-check under the lock; the loser's calendar event is removed.
	mu.Lock()
	var orphanID string
	if existing == nil {
		current, ferr := s.Events.Find(ctx, req.UserID, slot.Subject, slot.Date)
		if ferr != nil && !errors.Is(ferr, store.ErrNotFound) {
			mu.Unlock()
			return Outcome{Status: CalendarWriteFailed, Err: fmt.Errorf("dedup recheck: %w", ferr)}
		}
		if current != nil && current.ExternalEventID != externalID {
			if !supersedes(deadline.Confidence, slot.Match, current) {
				mu.Unlock()
				log.Info().Str("state", "conflict_checked").Msg("lost double-write race, dropping own event")
				if derr := s.Sink.DeleteEvent(ctx, externalID); derr != nil {
					log.Warn().Err(derr).Str("event_id", externalID).Msg("orphan cleanup failed")
				}
				return Outcome{
					Status:      AlreadyScheduled,
					Subject:     current.Subject,
					Date:        current.Date,
					Start:       current.Start,
					SlotMatched: current.SlotMatched,
				}
			}
			orphanID = current.ExternalEventID
		}
	}
	err = s.Events.Upsert(ctx, ev)
	mu.Unlock()
	if err != nil {
		return Outcome{Status: CalendarWriteFailed, Err: fmt.Errorf("record event: %w", err)}
	}
	if orphanID != "" {
		if derr := s.Sink.DeleteEvent(ctx, orphanID); derr != nil {
			log.Warn().Err(derr).Str("event_id", orphanID).Msg("orphan cleanup failed")
		}
	}

	log.Info().Str("state", "written").Str("event_id", externalID).Msg("submission")
	return Outcome{
		Status:      Scheduled,
		Subject:     slot.Subject,
		Date:        slot.Date,
		Start:       slot.Start,
		SlotMatched: slot.Match == schedule.SlotMatched,
	}
}

// resolveDate prefers an explicit date the parser extracted, falling back
// to the due-expression grammar.
func (s *Scheduler) resolveDate(req Request) schedule.ResolvedDeadline {
	if req.DetectedDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", req.DetectedDate, req.ReceivedAt.Location()); err == nil {
			if !t.Before(schedule.Midnight(req.ReceivedAt)) {
				return schedule.ResolvedDeadline{Date: t, Confidence: schedule.Exact}
			}
		}
	}
	return schedule.ResolveDueDate(req.RawDueExpression, req.ReceivedAt)
}

// writeWithRetry performs the calendar write with bounded backoff on
// transient failures. Permanent failures surface immediately.
func (s *Scheduler) writeWithRetry(ctx context.Context, log zerolog.Logger, in calendar.EventInput) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		id, err := s.Sink.CreateOrUpdateEvent(ctx, in)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !calendar.IsTransient(err) {
			log.Warn().Err(err).Msg("permanent calendar failure")
			return "", err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("transient calendar failure")
		if attempt < s.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * s.Backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("calendar write failed after %d attempts: %w", s.MaxAttempts, lastErr)
}

// supersedes decides whether a new submission carries more detail than the
// stored event for the same dedup key: Exact beats Inferred, a slot match
// beats a default-time fallback. Ties are idempotent no-ops.
func supersedes(conf schedule.Confidence, match schedule.MatchKind, old *store.Event) bool {
	return detail(conf, match == schedule.SlotMatched) > detail(old.Confidence, old.SlotMatched)
}

func detail(conf schedule.Confidence, slotMatched bool) int {
	d := 0
	if conf == schedule.Exact {
		d += 2
	}
	if slotMatched {
		d++
	}
	return d
}
