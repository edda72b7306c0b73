package attendance

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffpresence/internal/apperr"
)

var (
	lockRecordSQL   = regexp.QuoteMeta("SELECT first_in, last_out FROM dtr_records")
	ensureRecordSQL = regexp.QuoteMeta("INSERT INTO dtr_records")
	eventsSQL       = regexp.QuoteMeta("FROM dtr_events WHERE calendar_date = $1 AND identifier = $2")
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"identifier", "id", "kind", "occurred_at"})
}

func TestPostgresStore_AppendsAndCommits(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(ensureRecordSQL).WithArgs("T-001", "2024-05-01").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockRecordSQL).WithArgs("T-001", "2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"first_in", "last_out"}).AddRow(nil, nil))
	mock.ExpectQuery(eventsSQL).WithArgs("2024-05-01", "T-001").WillReturnRows(eventRows())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dtr_events")).
		WithArgs(sqlmock.AnyArg(), "T-001", "2024-05-01", "in", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE dtr_records SET first_in")).
		WithArgs("T-001", "2024-05-01", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := newTestLedger(store).ClockIn(context.Background(), "T-001", at("08:00"))
	require.NoError(t, err)
	assert.True(t, rec.FirstIn.Equal(at("08:00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DuplicateEventWritesNothing(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(ensureRecordSQL).WithArgs("T-001", "2024-05-01").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockRecordSQL).WithArgs("T-001", "2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"first_in", "last_out"}).AddRow(at("08:00"), nil))
	mock.ExpectQuery(eventsSQL).WithArgs("2024-05-01", "T-001").
		WillReturnRows(eventRows().AddRow("T-001", "e1", "in", at("08:00")))
	mock.ExpectRollback()

	rec, err := newTestLedger(store).ClockIn(context.Background(), "T-001", at("08:00"))
	require.NoError(t, err)
	assert.Len(t, rec.Events, 1)
	assert.NoError(t, mock.ExpectationsWereMet(), "no event insert, no record update, no commit")
}

func TestPostgresStore_SerializationFailureIsConflict(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(ensureRecordSQL).WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	_, err := store.Update(context.Background(), Key{Identifier: "T-001", Date: "2024-05-01"}, func(rec *Record) bool {
		return rec.Append(Event{ID: "e1", Kind: KindIn, At: at("08:00")})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LedgerRetriesDeadlock(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(ensureRecordSQL).WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(ensureRecordSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(lockRecordSQL).
		WillReturnRows(sqlmock.NewRows([]string{"first_in", "last_out"}).AddRow(nil, nil))
	mock.ExpectQuery(eventsSQL).WillReturnRows(eventRows())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dtr_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE dtr_records SET first_in")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := newTestLedger(store).ClockOut(context.Background(), "T-001", at("17:00"))
	require.NoError(t, err)
	assert.True(t, rec.LastOut.Equal(at("17:00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT first_in, last_out FROM dtr_records")).
		WithArgs("T-404", "2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"first_in", "last_out"}))

	_, err := store.Get(context.Background(), Key{Identifier: "T-404", Date: "2024-05-01"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByDate(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT identifier, first_in, last_out FROM dtr_records")).
		WithArgs("2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "first_in", "last_out"}).
			AddRow("A", at("08:00"), at("17:00")).
			AddRow("B", nil, at("09:00")))
	mock.ExpectQuery(regexp.QuoteMeta("FROM dtr_events WHERE calendar_date = $1 ORDER BY seq")).
		WithArgs("2024-05-01").
		WillReturnRows(eventRows().
			AddRow("A", "e1", "in", at("08:00")).
			AddRow("A", "e2", "out", at("17:00")).
			AddRow("B", "e3", "out", at("09:00")))

	records, err := store.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0].Events, 2)
	assert.Equal(t, StatusPresent, DeriveStatus(&records[0]))
	assert.Equal(t, StatusIncomplete, DeriveStatus(&records[1]))
	assert.NoError(t, mock.ExpectationsWereMet())
}
