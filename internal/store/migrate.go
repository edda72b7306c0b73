package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		identifier     TEXT PRIMARY KEY,
		display_name   TEXT NOT NULL DEFAULT '',
		role           TEXT NOT NULL DEFAULT 'other',
		classification TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS dtr_records (
		identifier    TEXT NOT NULL,
		calendar_date DATE NOT NULL,
		first_in      TIMESTAMPTZ,
		last_out      TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (identifier, calendar_date)
	)`,
	`CREATE TABLE IF NOT EXISTS dtr_events (
		seq           BIGSERIAL PRIMARY KEY,
		id            UUID NOT NULL UNIQUE,
		identifier    TEXT NOT NULL,
		calendar_date DATE NOT NULL,
		kind          TEXT NOT NULL CHECK (kind IN ('in', 'out')),
		occurred_at   TIMESTAMPTZ NOT NULL,
		FOREIGN KEY (identifier, calendar_date) REFERENCES dtr_records (identifier, calendar_date)
	)`,
	`CREATE INDEX IF NOT EXISTS dtr_events_date_idx ON dtr_events (calendar_date, identifier)`,
	`CREATE TABLE IF NOT EXISTS location_postings (
		identifier           TEXT PRIMARY KEY,
		id                   UUID NOT NULL,
		location             TEXT NOT NULL,
		reason               TEXT NOT NULL DEFAULT '',
		posted_at            TIMESTAMPTZ NOT NULL,
		expires_at           TIMESTAMPTZ NOT NULL,
		role_at_posting      TEXT NOT NULL,
		posted_by_identifier TEXT NOT NULL,
		posted_by_name       TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the tables used by the Postgres stores when missing.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
