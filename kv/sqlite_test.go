package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "designer.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLite_Contract(t *testing.T) {
	runContract(t, newTestSQLite(t))
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "designer.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	resp, err := s.Run(ctx, PutRequest("edges", map[string]any{"id": "e1", "source": "a", "target": "b"}))
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	resp, err = s.Run(ctx, GetRequest("edges", "e1"))
	require.NoError(t, err)
	assert.Equal(t, "b", Item(resp.Data)["target"])
}
