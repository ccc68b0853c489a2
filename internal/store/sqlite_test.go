package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ritgame/apiserver/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLUserStore {
	t.Helper()

	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)

	s, err := NewSQLiteUserStore(ctx, conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteUserStoreContract(t *testing.T) {
	runUserStoreContract(t, func(t *testing.T) UserStore {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteUserStoreSchemaIsIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := NewSQLiteUserStore(context.Background(), s.db)
	assert.NoError(t, err)
}

func TestSQLiteUserStoreMalformedScores(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (record_id, external_id, scores) VALUES (?, ?, ?)`,
		"rec-bad", "steam-bad", "{not json")
	require.NoError(t, err)

	_, _, err = s.GetByExternalID(ctx, "steam-bad")
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = s.List(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestSQLiteUserStoreClosedDatabase(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.db.Close())

	_, _, err := s.GetByExternalID(context.Background(), "steam-1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "get", storeErr.Op)
}
