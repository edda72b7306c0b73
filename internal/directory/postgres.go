package directory

import (
	"context"
	"database/sql"
	"errors"

	"staffpresence/internal/apperr"
	"staffpresence/internal/store"
)

// Postgres reads the persons table maintained by the surrounding application.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a directory backed by db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ListPersons returns all persons.
func (r *Postgres) ListPersons(ctx context.Context) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identifier, display_name, role, COALESCE(classification, '')
		FROM persons
		ORDER BY identifier
	`)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var p Person
		var role string
		if err := rows.Scan(&p.Identifier, &p.DisplayName, &role, &p.Classification); err != nil {
			return nil, store.Classify(err)
		}
		p.Role = ParseRole(role)
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return persons, nil
}

// GetPerson returns a single person by identifier.
func (r *Postgres) GetPerson(ctx context.Context, identifier string) (Person, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT identifier, display_name, role, COALESCE(classification, '')
		FROM persons WHERE identifier = $1
	`, identifier)
	var p Person
	var role string
	if err := row.Scan(&p.Identifier, &p.DisplayName, &role, &p.Classification); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, apperr.ErrNotFound
		}
		return Person{}, store.Classify(err)
	}
	p.Role = ParseRole(role)
	return p, nil
}
