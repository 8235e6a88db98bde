package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dek0rta/homework-bot/internal/schedule"
)

type ScheduleRepo struct{ DB *sql.DB }

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{DB: db} }

// Get rehydrates the user's weekly timetable. ErrNotConfigured when the
// user never ran /schedule.
func (r *ScheduleRepo) Get(ctx context.Context, userID int64) (*schedule.Weekly, error) {
	const q = `
select day_of_week, subject, start_time, end_time
from schedule
where user_id = $1
order by day_of_week, start_time`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	w := &schedule.Weekly{}
	for rows.Next() {
		var (
			day        int
			subject    string
			start, end string
		)
		if err := rows.Scan(&day, &subject, &start, &end); err != nil {
			return nil, err
		}
		st, err := schedule.ParseClock(start)
		if err != nil {
			return nil, fmt.Errorf("schedule row user=%d: %w", userID, err)
		}
		en, err := schedule.ParseClock(end)
		if err != nil {
			return nil, fmt.Errorf("schedule row user=%d: %w", userID, err)
		}
		if err := w.Add(schedule.Day(day), schedule.Slot{Subject: subject, Start: st, End: en}); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if w.IsEmpty() {
		return nil, ErrNotConfigured
	}
	if err := w.Normalize(); err != nil {
		return nil, err
	}
	return w, nil
}

// Set replaces the user's timetable wholesale inside one transaction.
// The timetable is never partially mutated.
func (r *ScheduleRepo) Set(ctx context.Context, userID int64, w *schedule.Weekly) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from schedule where user_id = $1`, userID); err != nil {
		return err
	}
	const ins = `insert into schedule (user_id, day_of_week, subject, start_time, end_time) values ($1,$2,$3,$4,$5)`
	for d, slots := range w.Days {
		for _, s := range slots {
			if _, err := tx.ExecContext(ctx, ins, userID, d, s.Subject, s.Start.HHMM(), s.End.HHMM()); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Exists reports whether the user has any timetable rows.
func (r *ScheduleRepo) Exists(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `select 1 from schedule where user_id = $1 limit 1`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
