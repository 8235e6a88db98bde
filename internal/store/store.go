// Package store persists weekly timetables and created calendar events
// in Postgres. Shapes are small and the queries are hand-written, one
// repo per table family.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = sql.ErrNoRows
	// ErrNotConfigured: the user never set up a timetable.
	ErrNotConfigured = errors.New("schedule not configured")
)

// Migrate creates the schema. Idempotent, safe to run at every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`create table if not exists schedule (
			id          bigserial primary key,
			user_id     bigint not null,
			day_of_week int    not null,
			subject     text   not null,
			start_time  text   not null,
			end_time    text   not null
		)`,
		`create index if not exists schedule_user_idx on schedule(user_id)`,
		`create table if not exists calendar_events (
			id                bigserial primary key,
			user_id           bigint      not null,
			subject           text        not null,
			due_date          date        not null,
			start_time        text        not null,
			end_time          text        not null,
			task              text        not null default '',
			confidence        text        not null,
			slot_matched      boolean     not null,
			external_event_id text        not null default '',
			created_at        timestamptz not null default now()
		)`,
		// Dedup key. Case-insensitive on the subject: "Химия" and "химия"
		// are the same homework.
		`create unique index if not exists calendar_events_dedup_idx
on calendar_events (user_id, lower(subject), due_date)`,
		`create index if not exists calendar_events_due_idx on calendar_events(due_date)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Open connects to Postgres with the pool tuning used for this bot's
// load (single-digit rps) and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}
