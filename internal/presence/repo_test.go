package presence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffpresence/internal/apperr"
)

var (
	lockPostingSQL   = regexp.QuoteMeta("FROM location_postings WHERE identifier = $1 FOR UPDATE")
	insertPostingSQL = regexp.QuoteMeta("INSERT INTO location_postings")
	updatePostingSQL = regexp.QuoteMeta("UPDATE location_postings")
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func postingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "identifier", "location", "reason", "posted_at", "expires_at",
		"role_at_posting", "posted_by_identifier", "posted_by_name"})
}

func TestPostgresStore_InsertRaceIsConflict(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostingSQL).WithArgs("E-010").WillReturnRows(postingRows())
	mock.ExpectExec(insertPostingSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Update(context.Background(), "E-010", func(cur Posting, found bool) (Posting, bool) {
		assert.False(t, found)
		return Posting{ID: "p1", Identifier: "E-010", Location: "Library", PostedAt: t0, ExpiresAt: t0.Add(time.Hour)}, true
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BoardRereadsWinnerAfterInsertRace(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	winnerAt := t0.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostingSQL).WithArgs("E-010").WillReturnRows(postingRows())
	mock.ExpectExec(insertPostingSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostingSQL).WithArgs("E-010").WillReturnRows(postingRows().
		AddRow("p-win", "E-010", "Gym", "", winnerAt, winnerAt.Add(15*time.Minute), "teacher", "T-001", "Ana Cruz"))
	mock.ExpectRollback()

	b, _ := newTestBoard(store, nil)
	p, err := b.PostLocation(context.Background(), post("E-010", "employee", "Library", 30, t0))
	require.NoError(t, err)
	assert.Equal(t, "Gym", p.Location)
	assert.Equal(t, "p-win", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet(), "the older post is not written")
}

func TestPostgresStore_NewerPostUpdatesRow(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostingSQL).WithArgs("E-010").WillReturnRows(postingRows().
		AddRow("p-old", "E-010", "Library", "", t0, t0.Add(30*time.Minute), "employee", "E-010", ""))
	mock.ExpectExec(updatePostingSQL).
		WithArgs("E-010", sqlmock.AnyArg(), "Gym", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"teacher", "E-010", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, _ := newTestBoard(store, nil)
	p, err := b.PostLocation(context.Background(), post("E-010", "teacher", "Gym", 15, t0.Add(5*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "Gym", p.Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockTimeoutIsConflict(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPostingSQL).WillReturnError(&pgconn.PgError{Code: "55P03"})
	mock.ExpectRollback()

	_, err := store.Update(context.Background(), "E-010", func(Posting, bool) (Posting, bool) {
		t.Fatal("decide must not run when the row lock fails")
		return Posting{}, false
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAndScan(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM location_postings WHERE identifier = $1")).
		WithArgs("E-404").WillReturnRows(postingRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM location_postings ORDER BY identifier")).
		WillReturnRows(postingRows().
			AddRow("p1", "A", "Gym", "", t0, t0.Add(time.Hour), "teacher", "A", "Ana").
			AddRow("p2", "B", "Library", "shelving", t0, t0.Add(time.Hour), "visitor", "B", ""))

	_, err := store.Get(context.Background(), "E-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	var got []Posting
	for p, err := range store.Scan(context.Background()) {
		require.NoError(t, err)
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Identifier)
	assert.Equal(t, "other", string(got[1].RoleAtPosting))
	assert.NoError(t, mock.ExpectationsWereMet())
}
