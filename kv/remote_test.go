package kv

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// setupRemote serves backend over an in-memory listener and returns a
// connected client.
func setupRemote(t *testing.T, backend Backend) *RemoteClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterStoreServer(srv, NewService(backend, nil))
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewRemoteClientConn(conn)
}

func TestRemote_Contract(t *testing.T) {
	runContract(t, setupRemote(t, NewMemory()))
}

// sessionRecorder captures the session forwarded with each request.
type sessionRecorder struct {
	*Memory
	last *Session
}

func (s *sessionRecorder) Run(ctx context.Context, req Request) (*Response, error) {
	s.last = req.Session
	return s.Memory.Run(ctx, req)
}

func TestRemote_ForwardsSession(t *testing.T) {
	rec := &sessionRecorder{Memory: NewMemory()}
	client := setupRemote(t, rec)

	req := ScanRequest("nodes")
	req.Session = &Session{UserID: "u-1", Email: "ana@example.com", Token: "opaque"}
	_, err := client.Run(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, rec.last)
	assert.Equal(t, "u-1", rec.last.UserID)
	assert.Equal(t, "opaque", rec.last.Token)
}

func TestRemote_TypedValuesNormalized(t *testing.T) {
	client := setupRemote(t, NewMemory())
	ctx := context.Background()

	item := map[string]any{"id": "n1", "allowedTargets": []string{"a", "b"}, "count": 3}
	resp, err := client.Run(ctx, PutRequest("nodes", item))
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)

	resp, err = client.Run(ctx, GetRequest("nodes", "n1"))
	require.NoError(t, err)
	got := Item(resp.Data)
	assert.Equal(t, []any{"a", "b"}, got["allowedTargets"])
	assert.Equal(t, float64(3), got["count"])
}
