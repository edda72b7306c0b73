package presence

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"staffpresence/internal/apperr"
	"staffpresence/internal/directory"
	"staffpresence/internal/store"
)

const postingColumns = `id, identifier, location, reason, posted_at, expires_at,
	role_at_posting, posted_by_identifier, posted_by_name`

// PostgresStore keeps the current posting per identifier in location_postings.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Update locks the existing row with FOR UPDATE. When there is no row yet,
// the insert uses ON CONFLICT DO NOTHING and a lost race is reported as a
// conflict so the caller re-reads the winner.
func (r *PostgresStore) Update(ctx context.Context, identifier string, decide func(cur Posting, found bool) (Posting, bool)) (Posting, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Posting{}, store.Classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanPosting(tx.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM location_postings WHERE identifier = $1 FOR UPDATE`, identifier))
	found := true
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		found = false
	case err != nil:
		return Posting{}, err
	}

	next, write := decide(cur, found)
	if !write {
		return next, nil
	}

	if found {
		_, err = tx.ExecContext(ctx, `
			UPDATE location_postings
			SET id = $2, location = $3, reason = $4, posted_at = $5, expires_at = $6,
			    role_at_posting = $7, posted_by_identifier = $8, posted_by_name = $9
			WHERE identifier = $1
		`, identifier, next.ID, next.Location, next.Reason, next.PostedAt, next.ExpiresAt,
			string(next.RoleAtPosting), next.PostedByIdentifier, next.PostedByName)
		if err != nil {
			return Posting{}, store.Classify(err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO location_postings (`+postingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (identifier) DO NOTHING
		`, next.ID, identifier, next.Location, next.Reason, next.PostedAt, next.ExpiresAt,
			string(next.RoleAtPosting), next.PostedByIdentifier, next.PostedByName)
		if err != nil {
			return Posting{}, store.Classify(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Posting{}, apperr.Conflict(errors.New("posting inserted concurrently"))
		}
	}

	if err := tx.Commit(); err != nil {
		return Posting{}, store.Classify(err)
	}
	return next, nil
}

func (r *PostgresStore) Get(ctx context.Context, identifier string) (Posting, error) {
	return scanPosting(r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM location_postings WHERE identifier = $1`, identifier))
}

func (r *PostgresStore) Scan(ctx context.Context) iter.Seq2[Posting, error] {
	return func(yield func(Posting, error) bool) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+postingColumns+` FROM location_postings ORDER BY identifier`)
		if err != nil {
			yield(Posting{}, store.Classify(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPosting(rows)
			if err != nil {
				yield(Posting{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Posting{}, store.Classify(err))
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (Posting, error) {
	var p Posting
	var role string
	err := row.Scan(&p.ID, &p.Identifier, &p.Location, &p.Reason, &p.PostedAt, &p.ExpiresAt,
		&role, &p.PostedByIdentifier, &p.PostedByName)
	if errors.Is(err, sql.ErrNoRows) {
		return Posting{}, apperr.ErrNotFound
	}
	if err != nil {
		return Posting{}, store.Classify(err)
	}
	p.RoleAtPosting = directory.ParseRole(role)
	p.PostedAt = p.PostedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	return p, nil
}
