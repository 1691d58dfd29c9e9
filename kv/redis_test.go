package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance and returns a connected backend.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	r, err := NewRedis(RedisOptions{
		URL:            fmt.Sprintf("redis://%s", mr.Addr()),
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = r.Close()
	})

	return r, mr
}

func TestRedis_Contract(t *testing.T) {
	r, _ := setupTestRedis(t)
	runContract(t, r)
}

func TestRedis_KeyLayout(t *testing.T) {
	r, mr := setupTestRedis(t)

	resp, err := r.Run(context.Background(), PutRequest("core-ontology-node", map[string]any{"id": "n1", "type": "contract"}))
	require.NoError(t, err)
	require.True(t, resp.Success)

	members, err := mr.Members("designer:tables")
	require.NoError(t, err)
	assert.Equal(t, []string{"core-ontology-node"}, members)

	raw := mr.HGet("designer:table:core-ontology-node", "n1")
	assert.JSONEq(t, `{"id":"n1","type":"contract"}`, raw)
}

func TestNewRedis(t *testing.T) {
	t.Run("connection failure", func(t *testing.T) {
		_, err := NewRedis(RedisOptions{
			URL:            "redis://localhost:99999",
			ConnectTimeout: 100 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRedis(RedisOptions{
			URL: "invalid://url",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse Redis URL")
	})
}
