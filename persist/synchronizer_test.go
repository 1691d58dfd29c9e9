package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSync(t *testing.T, b kv.Backend, opts ...Option) (*Synchronizer, *graph.Store) {
	t.Helper()
	store := graph.NewStore()
	opts = append([]Option{WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
	s := New(b, store, opts...)
	require.NoError(t, s.EnsureTables(context.Background()))
	return s, store
}

func put(t *testing.T, b kv.Backend, table string, item map[string]any) {
	t.Helper()
	resp, err := b.Run(context.Background(), kv.PutRequest(table, item))
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
}

// seedNeighborhood persists A -> B, plus C of a type A may target and an
// unrelated D.
func seedNeighborhood(t *testing.T, b kv.Backend) {
	t.Helper()
	put(t, b, DefaultNodeTable, map[string]any{
		"id": "A", "type": "agency", "label": "Agency",
		"allowedTargets": []any{"typeX"}, "app": "core",
		"position": map[string]any{"x": 10.0, "y": 20.0},
	})
	put(t, b, DefaultNodeTable, map[string]any{"id": "B", "type": "office", "label": "Office"})
	put(t, b, DefaultNodeTable, map[string]any{"id": "C", "type": "typeX", "label": "Contract"})
	put(t, b, DefaultNodeTable, map[string]any{"id": "D", "type": "unrelated", "label": "Other"})
	put(t, b, DefaultEdgeTable, map[string]any{"id": "e-ab", "source": "A", "target": "B", "type": "funds"})
}

func nodeIDs(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestLoad_Neighborhood(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	seedNeighborhood(t, b)

	require.NoError(t, s.Load(context.Background(), "A"))

	m := store.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, nodeIDs(m.Nodes))
	require.Len(t, m.Edges, 2)
	assert.Equal(t, "e-ab", m.Edges[0].ID)
	assert.Equal(t, "funds", m.Edges[0].Type)

	synth := m.Edges[1]
	assert.Equal(t, "edge-A-C", synth.ID)
	assert.Equal(t, "A", synth.Source)
	assert.Equal(t, "C", synth.Target)
	assert.Equal(t, AllowedEdgeType, synth.Type)
	assert.Equal(t, AllowedEdgeLabel, synth.Label)

	assert.False(t, store.Dirty())
	assert.Equal(t, fixedNow.Format(time.RFC3339), m.Metadata["lastModified"])
}

func TestLoad_NoSynthesisWhenEdgeExists(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	seedNeighborhood(t, b)
	// Reverse direction still counts as connected.
	put(t, b, DefaultEdgeTable, map[string]any{"id": "e-ca", "source": "C", "target": "A", "type": "reports"})

	require.NoError(t, s.Load(context.Background(), "A"))

	m := store.Snapshot()
	assert.ElementsMatch(t, []string{"A", "B", "C"}, nodeIDs(m.Nodes))
	for _, e := range m.Edges {
		assert.NotEqual(t, AllowedEdgeType, e.Type)
	}
	assert.Len(t, m.Edges, 2)
}

func TestLoad_ConnectorsDoNotSynthesizeEdges(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	put(t, b, DefaultNodeTable, map[string]any{"id": "A", "type": "agency", "allowedConnectors": []any{"link"}})
	put(t, b, DefaultNodeTable, map[string]any{"id": "L", "type": "link"})

	require.NoError(t, s.Load(context.Background(), "A"))

	m := store.Snapshot()
	assert.Equal(t, []string{"A", "L"}, nodeIDs(m.Nodes))
	assert.Empty(t, m.Edges)
}

func TestLoad_All(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	seedNeighborhood(t, b)

	require.NoError(t, s.Load(context.Background(), ""))

	m := store.Snapshot()
	assert.Equal(t, []string{"A", "B", "C", "D"}, nodeIDs(m.Nodes))
	require.Len(t, m.Edges, 1)
	assert.Equal(t, "e-ab", m.Edges[0].ID)
}

func TestLoad_Idempotent(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	seedNeighborhood(t, b)

	for _, root := range []string{"", "A"} {
		require.NoError(t, s.Load(context.Background(), root))
		first := store.Snapshot()
		require.NoError(t, s.Load(context.Background(), root))
		second := store.Snapshot()

		assert.Equal(t, first.Nodes, second.Nodes, "root %q", root)
		assert.Equal(t, first.Edges, second.Edges, "root %q", root)
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	require.NoError(t, store.AddNode(*graph.NewNode("keep", "process")))

	err := s.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, ok := store.Node("keep")
	assert.True(t, ok)
}

func TestLoad_TableNotFound(t *testing.T) {
	s := New(kv.NewMemory(), graph.NewStore(), WithLogger(quietLogger()))

	err := s.Load(context.Background(), "")
	require.Error(t, err)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpLoad, pe.Op)
	table, ok := MissingTable(err)
	assert.True(t, ok)
	assert.Equal(t, DefaultNodeTable, table)
}

func TestLoad_ForwardsSession(t *testing.T) {
	rec := &recordingBackend{Backend: kv.NewMemory()}
	session := &kv.Session{UserID: "u-1", Email: "ada@example.com", Token: "opaque"}
	s, _ := newSync(t, rec, WithSession(session), WithService("platform.test"), WithTables("nodes", "edges"))

	require.NoError(t, s.Load(context.Background(), ""))

	reqs := rec.requests()
	require.NotEmpty(t, reqs)
	for _, r := range reqs {
		assert.Same(t, session, r.Session)
		assert.Equal(t, "platform.test", r.Service)
		assert.Contains(t, []string{"nodes", "edges"}, r.Table)
	}
}

func TestLoad_LastIssuedWins(t *testing.T) {
	b := kv.NewMemory()
	seedNeighborhood(t, b)
	gate := &gatedBackend{Backend: b, entered: make(chan struct{}), release: make(chan struct{})}
	s, store := newSync(t, gate)

	gate.arm()
	first := make(chan error, 1)
	go func() { first <- s.Load(context.Background(), "A") }()
	<-gate.entered

	require.NoError(t, s.Load(context.Background(), ""))
	close(gate.release)

	assert.ErrorIs(t, <-first, ErrStaleLoad)
	assert.Len(t, store.Snapshot().Nodes, 4)
}

func TestLoad_CancelledIsDiscarded(t *testing.T) {
	b := kv.NewMemory()
	seedNeighborhood(t, b)
	gate := &gatedBackend{Backend: b, entered: make(chan struct{}), release: make(chan struct{})}
	s, store := newSync(t, gate)

	ctx, cancel := context.WithCancel(context.Background())
	gate.arm()
	done := make(chan error, 1)
	go func() { done <- s.Load(ctx, "") }()
	<-gate.entered
	cancel()
	close(gate.release)

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, store.Snapshot().Nodes)
}

func TestLoadRelationships(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)
	seedNeighborhood(t, b)
	put(t, b, DefaultEdgeTable, map[string]any{"id": "e-bd", "source": "B", "target": "D", "type": "uses"})

	require.NoError(t, s.Load(context.Background(), "A"))
	require.NoError(t, store.UpdateNode("B", graph.NodeUpdate{Label: ptr("Local edit")}))
	store.MarkClean()

	nodes, edges, err := s.LoadRelationships(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 1, edges)

	m := store.Snapshot()
	assert.Equal(t, []string{"A", "B", "C", "D"}, nodeIDs(m.Nodes))
	b2, _ := store.Node("B")
	assert.Equal(t, "Local edit", b2.Data.Label)
	assert.False(t, store.Dirty())

	// A second expansion finds nothing new.
	nodes, edges, err = s.LoadRelationships(context.Background(), "B")
	require.NoError(t, err)
	assert.Zero(t, nodes)
	assert.Zero(t, edges)

	_, _, err = s.LoadRelationships(context.Background(), "ghost")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestSave(t *testing.T) {
	b := kv.NewMemory()
	s, store := newSync(t, b)

	require.NoError(t, store.AddNode(*graph.NewNode("g", graph.TypeGroup).WithSize(300, 200).WithLabel("Team")))
	require.NoError(t, store.AddNode(*graph.NewNode("n", "process").WithPosition(5, 6).WithParent("g").WithProperty("owner", "ops")))
	require.NoError(t, store.AddEdge(*graph.NewEdge("e", "g", "n", "flow")))
	require.True(t, store.Dirty())

	require.NoError(t, s.Save(context.Background()))
	assert.False(t, store.Dirty())

	resp, err := b.Run(context.Background(), kv.GetRequest(DefaultNodeTable, "n"))
	require.NoError(t, err)
	item := kv.Item(resp.Data)
	assert.Equal(t, "g", item["parentId"])
	assert.Equal(t, graph.ExtentParent, item["extent"])
	assert.Equal(t, map[string]any{"owner": "ops"}, item["properties"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), item["updatedAt"])

	resp, err = b.Run(context.Background(), kv.GetRequest(DefaultEdgeTable, "e"))
	require.NoError(t, err)
	assert.Equal(t, "flow", kv.Item(resp.Data)["type"])

	// What was saved loads back as the same model.
	require.NoError(t, s.Load(context.Background(), ""))
	after := store.Snapshot()
	require.Len(t, after.Nodes, 2)
	n, _ := store.Node("n")
	assert.Equal(t, "g", n.ParentID)
	assert.Equal(t, graph.Position{X: 5, Y: 6}, n.Position)
	assert.Equal(t, "ops", n.Data.Properties["owner"])
	require.Len(t, after.Edges, 1)
	assert.Equal(t, "g", after.Edges[0].Source)
	assert.Equal(t, "n", after.Edges[0].Target)
	assert.Equal(t, "flow", after.Edges[0].Type)
}

func TestSave_PartialFailure(t *testing.T) {
	b := &failingBackend{Backend: kv.NewMemory(), failAfter: 2}
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	s, store := newSync(t, b, WithTracer(tp.Tracer("test")))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.AddNode(*graph.NewNode(id, "process")))
	}

	err := s.Save(context.Background())
	require.Error(t, err)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpSave, pe.Op)
	assert.Equal(t, DefaultNodeTable, pe.Table)
	assert.Equal(t, "c", pe.ItemID)
	assert.Equal(t, 2, pe.Written)
	assert.Contains(t, err.Error(), "throttled")
	assert.True(t, store.Dirty())

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	last := spans[len(spans)-1]
	assert.Equal(t, "persist.Save", last.Name)
	assert.Equal(t, codes.Error, last.Status.Code)

	// Retrying after the backend recovers completes the save.
	b.failAfter = -1
	require.NoError(t, s.Save(context.Background()))
	assert.False(t, store.Dirty())
}

func TestSave_TransportError(t *testing.T) {
	s, store := newSync(t, &brokenBackend{})
	require.NoError(t, store.AddNode(*graph.NewNode("a", "process")))

	err := s.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnectionReset)
	assert.True(t, store.Dirty())
}

func TestSave_EditDuringSaveStaysDirty(t *testing.T) {
	b := &editingBackend{Backend: kv.NewMemory()}
	s, store := newSync(t, b)
	require.NoError(t, store.AddNode(*graph.NewNode("a", "process").WithLabel("orig")))
	b.onPut = func() {
		require.NoError(t, store.UpdateNode("a", graph.NodeUpdate{Label: ptr("edited during save")}))
	}

	require.NoError(t, s.Save(context.Background()))
	assert.True(t, store.Dirty(), "edit made during save was never persisted")

	resp, err := b.Run(context.Background(), kv.GetRequest(DefaultNodeTable, "a"))
	require.NoError(t, err)
	assert.Equal(t, "orig", kv.Item(resp.Data)["label"])

	// The next save picks the edit up and leaves the store clean.
	require.NoError(t, s.Save(context.Background()))
	assert.False(t, store.Dirty())
	resp, err = b.Run(context.Background(), kv.GetRequest(DefaultNodeTable, "a"))
	require.NoError(t, err)
	assert.Equal(t, "edited during save", kv.Item(resp.Data)["label"])
}

func TestCreateTable(t *testing.T) {
	s, _ := newSync(t, kv.NewMemory())
	require.NoError(t, s.CreateTable(context.Background(), "core-Agency"))

	s2 := New(&brokenBackend{}, graph.NewStore(), WithLogger(quietLogger()))
	assert.ErrorIs(t, s2.CreateTable(context.Background(), "x"), kv.ErrUnsupportedOperation)
	assert.NoError(t, s2.EnsureTables(context.Background()))
}

func ptr[T any](v T) *T { return &v }

// recordingBackend remembers every request it forwards.
type recordingBackend struct {
	kv.Backend
	mu   sync.Mutex
	reqs []kv.Request
}

func (r *recordingBackend) Run(ctx context.Context, req kv.Request) (*kv.Response, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.Backend.Run(ctx, req)
}

func (r *recordingBackend) CreateTable(ctx context.Context, table string) error {
	return r.Backend.(kv.TableCreator).CreateTable(ctx, table)
}

func (r *recordingBackend) requests() []kv.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kv.Request(nil), r.reqs...)
}

// gatedBackend blocks the first request issued after arm until release is
// closed.
type gatedBackend struct {
	kv.Backend
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) arm() { g.armed.Store(true) }

func (g *gatedBackend) Run(ctx context.Context, req kv.Request) (*kv.Response, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Backend.Run(ctx, req)
}

func (g *gatedBackend) CreateTable(ctx context.Context, table string) error {
	return g.Backend.(kv.TableCreator).CreateTable(ctx, table)
}

// failingBackend reports a store failure for every put after failAfter
// successful ones. A negative failAfter never fails.
type failingBackend struct {
	kv.Backend
	failAfter int
	puts      int
}

func (f *failingBackend) Run(ctx context.Context, req kv.Request) (*kv.Response, error) {
	if req.Operation == kv.OpPut && f.failAfter >= 0 {
		if f.puts >= f.failAfter {
			return &kv.Response{Success: false, Error: "ProvisionedThroughputExceededException: throttled"}, nil
		}
		f.puts++
	}
	return f.Backend.Run(ctx, req)
}

// editingBackend calls onPut once, before forwarding the first put.
type editingBackend struct {
	kv.Backend
	once  sync.Once
	onPut func()
}

func (e *editingBackend) Run(ctx context.Context, req kv.Request) (*kv.Response, error) {
	if req.Operation == kv.OpPut && e.onPut != nil {
		e.once.Do(e.onPut)
	}
	return e.Backend.Run(ctx, req)
}

func (e *editingBackend) CreateTable(ctx context.Context, table string) error {
	return e.Backend.(kv.TableCreator).CreateTable(ctx, table)
}

var errConnectionReset = errors.New("connection reset by peer")

// brokenBackend fails every call at the transport level.
type brokenBackend struct{}

func (brokenBackend) Run(context.Context, kv.Request) (*kv.Response, error) {
	return nil, errConnectionReset
}

func (brokenBackend) Close() error { return nil }
