package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/captify-io/designer/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("default is memory", func(t *testing.T) {
		b, err := Open(ctx, nil, nil)
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, b)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		b, err := Open(ctx, &config.BackendConfig{Type: "redis", URL: fmt.Sprintf("redis://%s", mr.Addr())}, nil)
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &Redis{}, b)
	})

	t.Run("sqlite", func(t *testing.T) {
		b, err := Open(ctx, &config.BackendConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "d.db")}, nil)
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &SQLite{}, b)
	})

	t.Run("grpc without address", func(t *testing.T) {
		_, err := Open(ctx, &config.BackendConfig{Type: "grpc"}, nil)
		assert.Error(t, err)
	})

	t.Run("grpc", func(t *testing.T) {
		b, err := Open(ctx, &config.BackendConfig{Type: "grpc", Address: "localhost:50051"}, nil)
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &RemoteClient{}, b)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, &config.BackendConfig{Type: "dynamo"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backend type")
	})
}
