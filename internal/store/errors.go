package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"staffpresence/internal/apperr"
)

// Postgres error codes a caller can resolve by re-running the transaction.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Classify maps serialization failures, deadlocks and lock timeouts to
// apperr conflicts and every other database error to storage unavailability.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return apperr.Conflict(err)
		}
	}
	return apperr.Unavailable(err)
}
