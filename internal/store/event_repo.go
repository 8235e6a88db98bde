package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dek0rta/homework-bot/internal/schedule"
)

// Event — одна строка на (user_id, lower(subject), due_date): это ключ
// дедупликации, второй записи по нему не бывает.
type Event struct {
	ID              int64
	UserID          int64
	Subject         string
	Date            time.Time // date only
	Start           schedule.ClockTime
	End             schedule.ClockTime
	Task            string
	Confidence      schedule.Confidence
	SlotMatched     bool
	ExternalEventID string
	CreatedAt       time.Time
}

type EventRepo struct{ DB *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{DB: db} }

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var (
		e          Event
		start, end string
		confidence string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Subject, &e.Date, &start, &end,
		&e.Task, &confidence, &e.SlotMatched, &e.ExternalEventID, &e.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Start, err = schedule.ParseClock(start); err != nil {
		return nil, err
	}
	if e.End, err = schedule.ParseClock(end); err != nil {
		return nil, err
	}
	if confidence == "exact" {
		e.Confidence = schedule.Exact
	}
	return &e, nil
}

const eventCols = `id, user_id, subject, due_date, start_time, end_time,
       task, confidence, slot_matched, external_event_id, created_at`

// Find looks an event up by its dedup key. ErrNotFound when absent.
func (r *EventRepo) Find(ctx context.Context, userID int64, subject string, date time.Time) (*Event, error) {
	const q = `select ` + eventCols + ` from calendar_events
where user_id = $1 and lower(subject) = lower($2) and due_date = $3`
	return scanEvent(r.DB.QueryRowContext(ctx, q, userID, subject, schedule.Midnight(date)))
}

// Upsert inserts or overwrites on the dedup key. The unique constraint on
// (user_id, subject, due_date) makes concurrent writers converge on a
// single row.
func (r *EventRepo) Upsert(ctx context.Context, e *Event) error {
	const q = `
insert into calendar_events (
  user_id, subject, due_date, start_time, end_time,
  task, confidence, slot_matched, external_event_id
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
on conflict (user_id, lower(subject), due_date) do update
set subject = excluded.subject,
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    task = excluded.task,
    confidence = excluded.confidence,
    slot_matched = excluded.slot_matched,
    external_event_id = excluded.external_event_id`
	_, err := r.DB.ExecContext(ctx, q,
		e.UserID, e.Subject, schedule.Midnight(e.Date), e.Start.HHMM(), e.End.HHMM(),
		e.Task, e.Confidence.String(), e.SlotMatched, e.ExternalEventID,
	)
	return err
}

// Upcoming lists the user's events with a due date on/after the given day.
func (r *EventRepo) Upcoming(ctx context.Context, userID int64, from time.Time, limit int) ([]*Event, error) {
	const q = `select ` + eventCols + ` from calendar_events
where user_id = $1 and due_date >= $2
order by due_date, start_time
limit $3`
	rows, err := r.DB.QueryContext(ctx, q, userID, schedule.Midnight(from), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DueOn returns every event due on the given day, for the morning digest.
func (r *EventRepo) DueOn(ctx context.Context, day time.Time) ([]*Event, error) {
	const q = `select ` + eventCols + ` from calendar_events
where due_date = $1
order by user_id, start_time`
	rows, err := r.DB.QueryContext(ctx, q, schedule.Midnight(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeBefore удаляет события с прошедшим дедлайном, чтобы не раздувать БД.
func (r *EventRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `delete from calendar_events where due_date < $1`, schedule.Midnight(cutoff))
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
