package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"staffpresence/internal/apperr"
)

func TestRedis_Key(t *testing.T) {
	assert.Equal(t, "staffpresence:changes", (&Redis{Prefix: "staffpresence"}).Key("changes"))
	assert.Equal(t, "changes", (&Redis{}).Key("changes"))
}

func TestRedis_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", "test")
	defer r.Close()

	assert.True(t, r.Healthy(context.Background()))
	mr.Close()
	assert.False(t, r.Healthy(context.Background()))

	var missing *Redis
	assert.False(t, missing.Healthy(context.Background()))
	assert.NoError(t, missing.Close())
}

func TestDB_NilIsSafe(t *testing.T) {
	var d *DB
	assert.False(t, d.Healthy(context.Background()))
	assert.NoError(t, d.Close())
}

func TestSchema_CoversEveryTable(t *testing.T) {
	joined := ""
	for _, stmt := range schema {
		joined += stmt
	}
	for _, table := range []string{"persons", "dtr_records", "dtr_events", "location_postings"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Code
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperr.CodeConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperr.CodeConflict},
		{"lock not available", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "55P03"}), apperr.CodeConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperr.CodeStorageUnavailable},
		{"connection refused", errors.New("dial tcp: connection refused"), apperr.CodeStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.CodeOf(Classify(tt.err)))
		})
	}
	assert.NoError(t, Classify(nil))
}
