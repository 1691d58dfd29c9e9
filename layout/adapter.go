package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrLayoutTimeout is reported when the engine does not finish in time.
var ErrLayoutTimeout = errors.New("layout timed out")

// Model is the part of the graph store the adapter reads and writes.
type Model interface {
	Nodes() []graph.Node
	Edges() []graph.Edge
	ApplyPositions(positions map[string]graph.Position)
}

// Adapter runs an Engine over a store and writes the result back.
//
// Failures never reach the caller: the model keeps its prior positions and
// the failure is logged and counted.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics *layoutMetrics
	after   func()

	running atomic.Bool
}

type layoutMetrics struct {
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithEngine replaces the default layered engine.
func WithEngine(e Engine) AdapterOption {
	return func(a *Adapter) {
		a.engine = e
	}
}

// WithTimeout bounds each layout computation.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithLogger sets the logger for swallowed failures.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithTracer sets the tracer used for layout.Apply spans.
func WithTracer(t trace.Tracer) AdapterOption {
	return func(a *Adapter) {
		a.tracer = t
	}
}

// WithMeter sets the meter used for layout metrics.
func WithMeter(m metric.Meter) AdapterOption {
	return func(a *Adapter) {
		a.meter = m
	}
}

// WithAfterApply sets a function called after every Apply that wrote new
// positions, such as fitting the viewport to the new layout.
func WithAfterApply(fn func()) AdapterOption {
	return func(a *Adapter) {
		a.after = fn
	}
}

// NewAdapter creates an adapter around a layered engine tuned by cfg.
func NewAdapter(cfg *config.LayoutConfig, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		engine:  NewLayered(cfg),
		timeout: cfg.GetTimeout(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if a.tracer == nil {
		a.tracer = telemetry.Tracer(nil)
	}
	if a.meter == nil {
		a.meter = telemetry.Meter(nil)
	}

	metrics, err := initLayoutMetrics(a.meter)
	if err != nil {
		a.logger.Warn("layout metrics disabled", slog.String("error", err.Error()))
	}
	a.metrics = metrics
	return a
}

func initLayoutMetrics(m metric.Meter) (*layoutMetrics, error) {
	var (
		lm  layoutMetrics
		err error
	)
	lm.duration, err = m.Float64Histogram(
		"designer.layout.duration",
		metric.WithDescription("Auto-layout computation time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	lm.failures, err = m.Int64Counter(
		"designer.layout.failures",
		metric.WithDescription("Auto-layout runs that kept the prior positions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	return &lm, nil
}

// Running reports whether a layout is in progress.
func (a *Adapter) Running() bool {
	return a.running.Load()
}

// Apply lays out the top-level nodes of m. It does nothing unless the model
// has at least one node and one edge, or while another Apply is running.
// Children of groups keep their positions relative to their parent.
//
// Apply returns true when new positions were written.
func (a *Adapter) Apply(ctx context.Context, m Model) bool {
	nodes := m.Nodes()
	edges := m.Edges()
	if len(nodes) == 0 || len(edges) == 0 {
		return false
	}
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug("layout already in progress")
		return false
	}
	defer a.running.Store(false)

	ctx, span := a.tracer.Start(ctx, "layout.Apply")
	start := time.Now()

	in := topLevelInput(nodes, edges)
	positions, err := a.run(ctx, in)

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	attrs := []attribute.KeyValue{
		attribute.Int("layout.nodes", len(in.Nodes)),
		attribute.Int("layout.links", len(in.Links)),
	}
	if a.metrics != nil {
		a.metrics.duration.Record(ctx, elapsed, metric.WithAttributes(attrs...))
	}
	telemetry.EndSpan(span, err, attrs...)

	if err != nil {
		if a.metrics != nil {
			a.metrics.failures.Add(ctx, 1)
		}
		a.logger.Warn("auto-layout failed, keeping prior positions",
			slog.String("error", err.Error()),
			slog.Int("nodes", len(in.Nodes)),
		)
		return false
	}

	m.ApplyPositions(positions)
	if a.after != nil {
		a.after()
	}
	return true
}

// run executes the engine with a timeout, converting panics into errors.
func (a *Adapter) run(ctx context.Context, in Input) (map[string]graph.Position, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type result struct {
		positions map[string]graph.Position
		err       error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("layout engine panic: %v", r)}
			}
		}()
		p, err := a.engine.Layout(ctx, in)
		done <- result{positions: p, err: err}
	}()

	select {
	case r := <-done:
		return r.positions, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLayoutTimeout
		}
		return nil, ctx.Err()
	}
}

// topLevelInput builds engine input from the top-level nodes. Edges touching
// a child are attributed to the child's top-level ancestor.
func topLevelInput(nodes []graph.Node, edges []graph.Edge) Input {
	parent := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parent[n.ID] = n.ParentID
	}
	root := func(id string) string {
		for hops := 0; parent[id] != "" && hops < len(nodes); hops++ {
			id = parent[id]
		}
		return id
	}

	var in Input
	for _, n := range nodes {
		if n.ParentID != "" {
			continue
		}
		b := Box{ID: n.ID, Position: n.Position}
		if n.Size != nil {
			b.Size = *n.Size
		}
		in.Nodes = append(in.Nodes, b)
	}
	for _, e := range edges {
		src, tgt := root(e.Source), root(e.Target)
		if src == tgt {
			continue
		}
		in.Links = append(in.Links, Link{Source: src, Target: tgt})
	}
	return in
}

// Watch re-applies the layout whenever the store reports a structural
// change. The returned function stops watching.
func (a *Adapter) Watch(ctx context.Context, s interface {
	Model
	Subscribe(fn func(graph.Change)) func()
}) func() {
	return s.Subscribe(func(c graph.Change) {
		if !c.Structural() || ctx.Err() != nil {
			return
		}
		a.Apply(ctx, s)
	})
}
