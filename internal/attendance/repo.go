package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staffpresence/internal/apperr"
	"staffpresence/internal/store"
)

// PostgresStore persists records in Postgres. Each Update runs in its own
// transaction holding a row lock on the (identifier, date) record.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) Update(ctx context.Context, key Key, mutate func(rec *Record) bool) (Record, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Record{}, store.Classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dtr_records (identifier, calendar_date)
		VALUES ($1, $2)
		ON CONFLICT (identifier, calendar_date) DO NOTHING
	`, key.Identifier, key.Date); err != nil {
		return Record{}, store.Classify(err)
	}

	rec := Record{Identifier: key.Identifier, Date: key.Date}
	var firstIn, lastOut sql.NullTime
	if err := tx.QueryRowContext(ctx, `
		SELECT first_in, last_out FROM dtr_records
		WHERE identifier = $1 AND calendar_date = $2
		FOR UPDATE
	`, key.Identifier, key.Date).Scan(&firstIn, &lastOut); err != nil {
		return Record{}, store.Classify(err)
	}
	rec.FirstIn = nullTimePtr(firstIn)
	rec.LastOut = nullTimePtr(lastOut)

	events, err := queryEvents(ctx, tx, key.Identifier, key.Date)
	if err != nil {
		return Record{}, err
	}
	rec.Events = events[key.Identifier]
	before := len(rec.Events)

	if !mutate(&rec) {
		return rec, nil
	}

	for _, e := range rec.Events[before:] {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dtr_events (id, identifier, calendar_date, kind, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.ID, key.Identifier, key.Date, string(e.Kind), e.At); err != nil {
			return Record{}, store.Classify(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE dtr_records SET first_in = $3, last_out = $4, updated_at = NOW()
		WHERE identifier = $1 AND calendar_date = $2
	`, key.Identifier, key.Date, rec.FirstIn, rec.LastOut); err != nil {
		return Record{}, store.Classify(err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, store.Classify(err)
	}
	return rec, nil
}

func (r *PostgresStore) Get(ctx context.Context, key Key) (Record, error) {
	rec := Record{Identifier: key.Identifier, Date: key.Date}
	var firstIn, lastOut sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT first_in, last_out FROM dtr_records
		WHERE identifier = $1 AND calendar_date = $2
	`, key.Identifier, key.Date).Scan(&firstIn, &lastOut)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.ErrNotFound
	}
	if err != nil {
		return Record{}, store.Classify(err)
	}
	rec.FirstIn = nullTimePtr(firstIn)
	rec.LastOut = nullTimePtr(lastOut)

	events, err := queryEvents(ctx, r.db, key.Identifier, key.Date)
	if err != nil {
		return Record{}, err
	}
	rec.Events = events[key.Identifier]
	return rec, nil
}

func (r *PostgresStore) ListByDate(ctx context.Context, date string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identifier, first_in, last_out FROM dtr_records
		WHERE calendar_date = $1
		ORDER BY identifier
	`, date)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec := Record{Date: date}
		var firstIn, lastOut sql.NullTime
		if err := rows.Scan(&rec.Identifier, &firstIn, &lastOut); err != nil {
			return nil, store.Classify(err)
		}
		rec.FirstIn = nullTimePtr(firstIn)
		rec.LastOut = nullTimePtr(lastOut)
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}

	events, err := queryEvents(ctx, r.db, "", date)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Events = events[res[i].Identifier]
	}
	return res, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryEvents loads events for one date in arrival order, grouped by
// identifier. An empty identifier loads every identifier for the date.
func queryEvents(ctx context.Context, q querier, identifier, date string) (map[string][]Event, error) {
	query := `SELECT identifier, id, kind, occurred_at FROM dtr_events WHERE calendar_date = $1`
	args := []any{date}
	if identifier != "" {
		query += " AND identifier = $2"
		args = append(args, identifier)
	}
	query += " ORDER BY seq"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	out := make(map[string][]Event)
	for rows.Next() {
		var id string
		var e Event
		var kind string
		if err := rows.Scan(&id, &e.ID, &kind, &e.At); err != nil {
			return nil, store.Classify(err)
		}
		e.Kind = Kind(kind)
		e.At = e.At.UTC()
		out[id] = append(out[id], e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return out, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
