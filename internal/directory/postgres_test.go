package directory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffpresence/internal/apperr"
)

func newMockDirectory(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func personRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"identifier", "display_name", "role", "classification"})
}

func TestPostgres_ListPersons(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM persons")).WillReturnRows(personRows().
		AddRow("E-010", "Ben Reyes", "Employee", "").
		AddRow("T-001", "Ana Cruz", "teacher", "faculty").
		AddRow("V-100", "Guard", "security", ""))

	persons, err := dir.ListPersons(context.Background())
	require.NoError(t, err)
	require.Len(t, persons, 3)
	assert.Equal(t, RoleEmployee, persons[0].Role)
	assert.Equal(t, "faculty", persons[1].Classification)
	assert.Equal(t, RoleOther, persons[2].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetPerson(t *testing.T) {
	dir, mock := newMockDirectory(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM persons WHERE identifier = $1")).WithArgs("T-001").
		WillReturnRows(personRows().AddRow("T-001", "Ana Cruz", "teacher", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM persons WHERE identifier = $1")).WithArgs("X-404").
		WillReturnRows(personRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM persons WHERE identifier = $1")).WithArgs("T-002").
		WillReturnError(errors.New("connection reset"))

	p, err := dir.GetPerson(context.Background(), "T-001")
	require.NoError(t, err)
	assert.Equal(t, "Ana Cruz", p.DisplayName)

	_, err = dir.GetPerson(context.Background(), "X-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = dir.GetPerson(context.Background(), "T-002")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
