package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/kv"
	"github.com/captify-io/designer/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Operation names carried by PersistenceError.
const (
	OpLoad              = "load"
	OpLoadRelationships = "load_relationships"
	OpSave              = "save"
	OpFetchData         = "fetch_data"
	OpAttachData        = "attach_data"
	OpSearch            = "search"
	OpGetNode           = "get_node"
	OpCreateTable       = "create_table"
)

// Default table names.
const (
	DefaultNodeTable = "core-ontology-node"
	DefaultEdgeTable = "core-ontology-edge"
)

// Synthesized edges link a root to nodes of a type it may target.
const (
	AllowedEdgeType  = "allowed"
	AllowedEdgeLabel = "can connect to"
)

// Synchronizer maps a graph store to and from a key-value backend.
//
// Thread-safety: All methods are safe for concurrent use. Concurrent loads
// resolve last-issued-wins: a load that finishes after a newer one was
// started is discarded with ErrStaleLoad.
type Synchronizer struct {
	backend   kv.Backend
	store     *graph.Store
	session   *kv.Session
	service   string
	nodeTable string
	edgeTable string
	radius    float64
	now       func() time.Time

	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics *syncMetrics

	generation atomic.Uint64
	applyMu    sync.Mutex
}

type syncMetrics struct {
	savedItems   metric.Int64Counter
	saveFailures metric.Int64Counter
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithSession sets the session forwarded with every backend request.
func WithSession(session *kv.Session) Option {
	return func(s *Synchronizer) {
		s.session = session
	}
}

// WithService overrides the service name sent with every request.
func WithService(service string) Option {
	return func(s *Synchronizer) {
		s.service = service
	}
}

// WithTables overrides the node and edge table names. Empty names keep the
// defaults.
func WithTables(nodeTable, edgeTable string) Option {
	return func(s *Synchronizer) {
		if nodeTable != "" {
			s.nodeTable = nodeTable
		}
		if edgeTable != "" {
			s.edgeTable = edgeTable
		}
	}
}

// WithDataRadius sets the radius of the circle data items are spawned on.
func WithDataRadius(r float64) Option {
	return func(s *Synchronizer) {
		if r > 0 {
			s.radius = r
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for persistence spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Synchronizer) {
		s.tracer = t
	}
}

// WithMeter sets the meter used for save metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *Synchronizer) {
		s.meter = m
	}
}

// New creates a synchronizer between store and backend.
func New(backend kv.Backend, store *graph.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		backend:   backend,
		store:     store,
		service:   kv.DefaultService,
		nodeTable: DefaultNodeTable,
		edgeTable: DefaultEdgeTable,
		radius:    200,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if s.tracer == nil {
		s.tracer = telemetry.Tracer(nil)
	}
	if s.meter == nil {
		s.meter = telemetry.Meter(nil)
	}

	metrics, err := initSyncMetrics(s.meter)
	if err != nil {
		s.logger.Warn("persistence metrics disabled", slog.String("error", err.Error()))
	}
	s.metrics = metrics
	return s
}

func initSyncMetrics(m metric.Meter) (*syncMetrics, error) {
	var (
		sm  syncMetrics
		err error
	)
	sm.savedItems, err = m.Int64Counter(
		"designer.save.items",
		metric.WithDescription("Nodes and edges written by save"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create saved items counter: %w", err)
	}
	sm.saveFailures, err = m.Int64Counter(
		"designer.save.failures",
		metric.WithDescription("Saves that stopped on a backend failure"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create save failures counter: %w", err)
	}
	return &sm, nil
}

// Tables returns the node and edge table names.
func (s *Synchronizer) Tables() (nodeTable, edgeTable string) {
	return s.nodeTable, s.edgeTable
}

// run sends one request and converts every kind of failure into a
// PersistenceError.
func (s *Synchronizer) run(ctx context.Context, op, operation, table string, data map[string]any) (*kv.Response, error) {
	req := kv.Request{
		Service:   s.service,
		Operation: operation,
		Table:     table,
		Data:      data,
		Session:   s.session,
	}
	resp, err := s.backend.Run(ctx, req)
	if err != nil {
		return nil, &PersistenceError{Op: op, Table: table, Err: err}
	}
	if resp == nil {
		return nil, &PersistenceError{Op: op, Table: table, Err: errors.New("empty response")}
	}
	if !resp.Success {
		if IsTableNotFoundMessage(resp.Error) {
			return nil, &PersistenceError{Op: op, Table: table, Err: &TableNotFoundError{Table: table, Message: resp.Error}}
		}
		return nil, &PersistenceError{Op: op, Table: table, Err: errors.New(resp.Error)}
	}
	return resp, nil
}

func (s *Synchronizer) scan(ctx context.Context, op, table string) ([]map[string]any, error) {
	resp, err := s.run(ctx, op, kv.OpScan, table, nil)
	if err != nil {
		return nil, err
	}
	return kv.Items(resp.Data), nil
}

func (s *Synchronizer) get(ctx context.Context, op, table, id string) (map[string]any, error) {
	resp, err := s.run(ctx, op, kv.OpGet, table, map[string]any{"key": map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}
	return kv.Item(resp.Data), nil
}

func (s *Synchronizer) scanNodes(ctx context.Context, op string) ([]graph.Node, error) {
	items, err := s.scan(ctx, op, s.nodeTable)
	if err != nil {
		return nil, err
	}
	nodes := make([]graph.Node, 0, len(items))
	for _, item := range items {
		n, err := graph.NodeFromItem(item)
		if err != nil {
			s.logger.Debug("skipping malformed node item", slog.String("error", err.Error()))
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (s *Synchronizer) scanEdges(ctx context.Context, op string) ([]graph.Edge, error) {
	items, err := s.scan(ctx, op, s.edgeTable)
	if err != nil {
		return nil, err
	}
	edges := make([]graph.Edge, 0, len(items))
	for _, item := range items {
		e, err := graph.EdgeFromItem(item)
		if err != nil {
			s.logger.Debug("skipping malformed edge item", slog.String("error", err.Error()))
			continue
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// GetNode fetches one persisted node. It returns graph.ErrNotFound when the
// node table has no item with that id.
func (s *Synchronizer) GetNode(ctx context.Context, id string) (graph.Node, error) {
	item, err := s.get(ctx, OpGetNode, s.nodeTable, id)
	if err != nil {
		return graph.Node{}, err
	}
	if item == nil {
		return graph.Node{}, fmt.Errorf("node %s: %w", id, graph.ErrNotFound)
	}
	return graph.NodeFromItem(item)
}

// Load replaces the store's model with persisted data and clears the dirty
// flag.
//
// With an empty rootID every node and edge is loaded. Otherwise the model is
// the root, its direct neighbors through persisted edges, and every node
// whose type the root lists as an allowed target or connector. Allowed
// targets without a persisted edge to the root get a synthesized edge of
// type AllowedEdgeType.
//
// A load whose ctx is cancelled, or that is overtaken by a newer load, leaves
// the store untouched.
func (s *Synchronizer) Load(ctx context.Context, rootID string) (err error) {
	gen := s.generation.Add(1)

	ctx, span := s.tracer.Start(ctx, "persist.Load", trace.WithAttributes(
		attribute.String("designer.root_id", rootID),
	))
	var model graph.Model
	defer func() {
		telemetry.EndSpan(span, err,
			attribute.Int("designer.nodes", len(model.Nodes)),
			attribute.Int("designer.edges", len(model.Edges)),
		)
	}()

	if rootID == "" {
		model, err = s.loadAll(ctx)
	} else {
		model, err = s.loadNeighborhood(ctx, rootID)
	}
	if err != nil {
		s.logger.Error("load failed", slog.String("root_id", rootID), slog.String("error", err.Error()))
		return err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.generation.Load() != gen {
		return ErrStaleLoad
	}

	model.Metadata = map[string]any{"lastModified": s.now().UTC().Format(time.RFC3339)}
	s.store.ReplaceClean(model)

	s.logger.Info("model loaded",
		slog.String("root_id", rootID),
		slog.Int("nodes", len(model.Nodes)),
		slog.Int("edges", len(model.Edges)),
	)
	return nil
}

func (s *Synchronizer) loadAll(ctx context.Context) (graph.Model, error) {
	nodes, err := s.scanNodes(ctx, OpLoad)
	if err != nil {
		return graph.Model{}, err
	}
	edges, err := s.scanEdges(ctx, OpLoad)
	if err != nil {
		return graph.Model{}, err
	}
	return graph.Model{Nodes: nodes, Edges: edges}, nil
}

func (s *Synchronizer) loadNeighborhood(ctx context.Context, rootID string) (graph.Model, error) {
	root, err := s.GetNode(ctx, rootID)
	if err != nil {
		return graph.Model{}, relabel(err, OpLoad)
	}

	hood, err := s.expand(ctx, OpLoad, root, map[string]bool{rootID: true})
	if err != nil {
		return graph.Model{}, err
	}
	return graph.Model{
		Nodes: append([]graph.Node{root}, hood.nodes...),
		Edges: hood.edges,
	}, nil
}

// LoadRelationships expands an existing node by one hop, exactly as Load does
// for a root, and merges the result into the current model. Nodes and edges
// already present are kept as they are.
func (s *Synchronizer) LoadRelationships(ctx context.Context, nodeID string) (addedNodes, addedEdges int, err error) {
	ctx, span := s.tracer.Start(ctx, "persist.LoadRelationships", trace.WithAttributes(
		attribute.String("designer.node_id", nodeID),
	))
	defer func() {
		telemetry.EndSpan(span, err,
			attribute.Int("designer.added_nodes", addedNodes),
			attribute.Int("designer.added_edges", addedEdges),
		)
	}()

	root, ok := s.store.Node(nodeID)
	if !ok {
		return 0, 0, fmt.Errorf("load relationships of %s: %w", nodeID, graph.ErrNotFound)
	}

	visited := make(map[string]bool)
	for _, n := range s.store.Nodes() {
		visited[n.ID] = true
	}
	hood, err := s.expand(ctx, OpLoadRelationships, root, visited)
	if err != nil {
		return 0, 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	addedNodes, addedEdges = s.store.Merge(hood.nodes, hood.edges)
	s.logger.Info("relationships loaded",
		slog.String("node_id", nodeID),
		slog.Int("added_nodes", addedNodes),
		slog.Int("added_edges", addedEdges),
	)
	return addedNodes, addedEdges, nil
}

type neighborhood struct {
	nodes []graph.Node
	edges []graph.Edge
}

// expand collects the one-hop neighborhood of root. Ids in visited are not
// fetched again; newly fetched ids are added to it.
func (s *Synchronizer) expand(ctx context.Context, op string, root graph.Node, visited map[string]bool) (neighborhood, error) {
	var hood neighborhood

	allEdges, err := s.scanEdges(ctx, op)
	if err != nil {
		return hood, err
	}

	for _, e := range allEdges {
		if e.Source != root.ID && e.Target != root.ID {
			continue
		}
		hood.edges = append(hood.edges, e)

		other := e.Target
		if e.Target == root.ID {
			other = e.Source
		}
		if visited[other] {
			continue
		}
		visited[other] = true

		item, err := s.get(ctx, op, s.nodeTable, other)
		if err != nil {
			return hood, err
		}
		if item == nil {
			continue
		}
		n, err := graph.NodeFromItem(item)
		if err != nil {
			s.logger.Debug("skipping malformed node item", slog.String("id", other), slog.String("error", err.Error()))
			continue
		}
		hood.nodes = append(hood.nodes, n)
	}

	targets := root.Data.AllowedTargets
	types := slices.Concat(targets, root.Data.AllowedConnectors)
	if len(types) == 0 {
		return hood, nil
	}

	candidates, err := s.scanNodes(ctx, op)
	if err != nil {
		return hood, err
	}
	for _, t := range types {
		for _, n := range candidates {
			if n.Type != t || visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			hood.nodes = append(hood.nodes, n)

			if !slices.Contains(targets, t) || connected(allEdges, root.ID, n.ID) {
				continue
			}
			hood.edges = append(hood.edges, *graph.NewEdge(
				fmt.Sprintf("edge-%s-%s", root.ID, n.ID), root.ID, n.ID, AllowedEdgeType,
			).WithLabel(AllowedEdgeLabel))
		}
	}
	return hood, nil
}

func connected(edges []graph.Edge, a, b string) bool {
	for _, e := range edges {
		if e.Connects(a, b) {
			return true
		}
	}
	return false
}

// relabel rewrites the Op of a PersistenceError so failures of shared
// helpers report the public operation that issued them.
func relabel(err error, op string) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		pe.Op = op
	}
	return err
}

// Save writes every node and then every edge to the backend, one put per
// item, each stamped with updatedAt. It stops at the first failure and
// returns a PersistenceError with the number of items already written; the
// store stays dirty so the save can be retried. Edits made while the save is
// in flight also leave the store dirty.
func (s *Synchronizer) Save(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "persist.Save")
	written := 0
	defer func() {
		telemetry.EndSpan(span, err, attribute.Int("designer.written", written))
		if s.metrics == nil {
			return
		}
		s.metrics.savedItems.Add(ctx, int64(written))
		if err != nil {
			s.metrics.saveFailures.Add(ctx, 1)
		}
	}()

	model, rev := s.store.SnapshotRevision()
	stamp := s.now().UTC().Format(time.RFC3339)

	fail := func(table, id string, cause error) error {
		var pe *PersistenceError
		if errors.As(cause, &pe) {
			pe.Op, pe.ItemID, pe.Written = OpSave, id, written
		} else {
			cause = &PersistenceError{Op: OpSave, Table: table, ItemID: id, Written: written, Err: cause}
		}
		s.logger.Error("save failed",
			slog.String("table", table),
			slog.String("item_id", id),
			slog.Int("written", written),
			slog.String("error", cause.Error()),
		)
		return cause
	}

	for _, n := range model.Nodes {
		item, err := n.Item()
		if err != nil {
			return fail(s.nodeTable, n.ID, err)
		}
		item["updatedAt"] = stamp
		if _, err := s.run(ctx, OpSave, kv.OpPut, s.nodeTable, map[string]any{"item": item}); err != nil {
			return fail(s.nodeTable, n.ID, err)
		}
		written++
	}
	for _, e := range model.Edges {
		item := e.Item()
		item["updatedAt"] = stamp
		if _, err := s.run(ctx, OpSave, kv.OpPut, s.edgeTable, map[string]any{"item": item}); err != nil {
			return fail(s.edgeTable, e.ID, err)
		}
		written++
	}

	if !s.store.MarkCleanIf(rev) {
		s.logger.Info("model saved, edits made during save remain unsaved", slog.Int("items", written))
		return nil
	}
	s.logger.Info("model saved", slog.Int("items", written))
	return nil
}

// EnsureTables creates the node and edge tables when the backend supports
// table creation. Backends without that capability are left alone.
func (s *Synchronizer) EnsureTables(ctx context.Context) error {
	tc, ok := s.backend.(kv.TableCreator)
	if !ok {
		return nil
	}
	for _, table := range []string{s.nodeTable, s.edgeTable} {
		if err := tc.CreateTable(ctx, table); err != nil {
			return &PersistenceError{Op: OpCreateTable, Table: table, Err: err}
		}
	}
	return nil
}

// CreateTable creates a single table, typically one reported missing by
// FetchDataItems.
func (s *Synchronizer) CreateTable(ctx context.Context, table string) error {
	tc, ok := s.backend.(kv.TableCreator)
	if !ok {
		return &PersistenceError{Op: OpCreateTable, Table: table, Err: kv.ErrUnsupportedOperation}
	}
	if err := tc.CreateTable(ctx, table); err != nil {
		return &PersistenceError{Op: OpCreateTable, Table: table, Err: err}
	}
	s.logger.Info("table created", slog.String("table", table))
	return nil
}
