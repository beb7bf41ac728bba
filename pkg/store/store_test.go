package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "bakerst.db")
	s, err := Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	var name string
	err := s.db.Get(&name, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'`)
	require.NoError(t, err)
	assert.Equal(t, "jobs", name)
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "bakerst.db")

	s1, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, dbPath)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	err = s2.db.Get(&count, `SELECT COUNT(*) FROM schema_migrations`)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}
