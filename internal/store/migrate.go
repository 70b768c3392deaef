package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate applies the schema. Statements are idempotent so a restart against
// an existing database is a no-op. The unique index on (employee_id, day) is
// what enforces the one-record-per-user-per-day invariant; the service relies
// on the resulting conflict error rather than a read-then-insert check.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS employees (
			id           UUID PRIMARY KEY,
			employee_id  TEXT UNIQUE NOT NULL,
			name         TEXT,
			role         TEXT NOT NULL DEFAULT 'employee',
			blocked      BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS attendance_records (
			id                UUID PRIMARY KEY,
			employee_id       TEXT NOT NULL REFERENCES employees(employee_id),
			day               DATE NOT NULL,
			status            TEXT NOT NULL DEFAULT 'checked-in',
			check_in_at       TIMESTAMPTZ NOT NULL,
			check_in_lat      DOUBLE PRECISION NOT NULL,
			check_in_lng      DOUBLE PRECISION NOT NULL,
			check_in_address  TEXT NOT NULL DEFAULT '',
			check_in_captured_at TIMESTAMPTZ,
			photo_url         TEXT NOT NULL DEFAULT '',
			check_out_at      TIMESTAMPTZ,
			check_out_lat     DOUBLE PRECISION,
			check_out_lng     DOUBLE PRECISION,
			check_out_address TEXT,
			hours_worked      DOUBLE PRECISION,
			last_lat          DOUBLE PRECISION,
			last_lng          DOUBLE PRECISION,
			last_address      TEXT,
			last_captured_at  TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_employee_day
			ON attendance_records (employee_id, day)`,

		`CREATE TABLE IF NOT EXISTS location_history (
			id          UUID PRIMARY KEY,
			record_id   UUID NOT NULL REFERENCES attendance_records(id),
			employee_id TEXT NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lng         DOUBLE PRECISION NOT NULL,
			address     TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_location_history_employee
			ON location_history (employee_id, captured_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
