package designer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/captify-io/designer/canvas"
	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/containment"
	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/kv"
	"github.com/captify-io/designer/layout"
	"github.com/captify-io/designer/persist"
	"github.com/captify-io/designer/telemetry"
)

// Session identifies the user a designer works for. It is built by the
// caller and forwarded with every backend request; the token is opaque.
type Session = kv.Session

// Designer is one designer session: a graph store with its containment
// resolver, layout adapter, canvas controller and persistence synchronizer
// wired together.
//
// Closing the designer ends the session. Loads and saves still in flight
// are abandoned and their results discarded.
type Designer struct {
	session Session
	cfg     *config.Config
	logger  *slog.Logger
	mode    canvas.Mode

	store    *graph.Store
	resolver *containment.Resolver
	layout   *layout.Adapter
	canvas   *canvas.Controller
	sync     *persist.Synchronizer

	backend     kv.Backend
	ownsBackend bool

	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func()
	closeOnce sync.Once
	closeErr  error
}

// New creates a designer session for session.
//
// Example:
//
//	d, err := designer.New(designer.Session{UserID: "u-1", Token: token},
//	    designer.WithConfigFile("designer.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	if err := d.Load(ctx, "agency"); err != nil {
//	    log.Fatal(err)
//	}
func New(session Session, opts ...Option) (*Designer, error) {
	const op = "New"

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil && o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, NewConfigurationError(op, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.GetLogLevel(),
		}))
	}

	mode := o.mode
	if mode == "" {
		mode = canvas.ParseMode(cfg.Canvas.GetMode())
	}

	var rule *canvas.ConnectionRule
	if expr := cfg.Canvas.GetConnectionRule(); expr != "" {
		r, err := canvas.CompileConnectionRule(expr)
		if err != nil {
			return nil, NewConfigurationError(op, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
		rule = r
	}

	ctx, cancel := context.WithCancel(context.Background())

	backend, owns := o.backend, false
	if backend == nil {
		b, err := kv.Open(ctx, cfg.Backend, logger)
		if err != nil {
			cancel()
			return nil, NewConfigurationError(op, err)
		}
		backend, owns = b, true
	}

	tracer := telemetry.Tracer(o.tracerProvider)
	meter := telemetry.Meter(o.meterProvider)

	store := graph.NewStore()
	resolver := containment.NewResolver()
	sess := session

	syncer := persist.New(backend, store,
		persist.WithSession(&sess),
		persist.WithService(cfg.GetService()),
		persist.WithTables(cfg.Tables.GetNode(), cfg.Tables.GetEdge()),
		persist.WithDataRadius(cfg.Canvas.GetDataRadius()),
		persist.WithLogger(logger),
		persist.WithTracer(tracer),
		persist.WithMeter(meter),
	)

	canvasOpts := []canvas.Option{
		canvas.WithResolver(resolver),
		canvas.WithPersistence(syncer),
		canvas.WithLogger(logger),
		canvas.WithMode(mode),
		canvas.WithDefaultEdgeType(cfg.Canvas.GetDefaultEdgeType()),
		canvas.WithBannerTimeout(cfg.Canvas.GetBannerTimeout()),
	}
	if o.notifier != nil {
		canvasOpts = append(canvasOpts, canvas.WithNotifier(o.notifier))
	}
	if rule != nil {
		canvasOpts = append(canvasOpts, canvas.WithConnectionRule(rule))
	}

	ctl := canvas.New(store, canvasOpts...)

	screenW, screenH := cfg.Canvas.GetViewportSize()
	layoutOpts := []layout.AdapterOption{
		layout.WithLogger(logger),
		layout.WithTracer(tracer),
		layout.WithMeter(meter),
		layout.WithAfterApply(func() { ctl.FitView(screenW, screenH) }),
	}
	if o.engine != nil {
		layoutOpts = append(layoutOpts, layout.WithEngine(o.engine))
	}
	adapter := layout.NewAdapter(cfg.Layout, layoutOpts...)

	d := &Designer{
		session:     session,
		cfg:         cfg,
		logger:      logger,
		mode:        mode,
		store:       store,
		resolver:    resolver,
		layout:      adapter,
		canvas:      ctl,
		sync:        syncer,
		backend:     backend,
		ownsBackend: owns,
		ctx:         ctx,
		cancel:      cancel,
	}

	auto := mode == canvas.ModeOntology
	if o.autoLayout != nil {
		auto = *o.autoLayout
	}
	if auto {
		d.stopWatch = adapter.Watch(ctx, store)
	}

	if err := syncer.EnsureTables(ctx); err != nil {
		CloseWithLog(d, logger, "designer")
		return nil, wrap(op, err)
	}

	logger.Info("designer session started",
		slog.String("user_id", session.UserID),
		slog.String("mode", string(mode)),
		slog.String("backend", cfg.Backend.GetType()),
		slog.Bool("auto_layout", auto),
	)
	return d, nil
}

// Session returns the session the designer was created for.
func (d *Designer) Session() Session { return d.session }

// Config returns the effective configuration.
func (d *Designer) Config() *config.Config { return d.cfg }

// Mode returns the canvas mode.
func (d *Designer) Mode() canvas.Mode { return d.mode }

// Store returns the graph store.
func (d *Designer) Store() *graph.Store { return d.store }

// Resolver returns the containment resolver.
func (d *Designer) Resolver() *containment.Resolver { return d.resolver }

// Layout returns the layout adapter.
func (d *Designer) Layout() *layout.Adapter { return d.layout }

// Canvas returns the canvas controller.
func (d *Designer) Canvas() *canvas.Controller { return d.canvas }

// Synchronizer returns the persistence synchronizer.
func (d *Designer) Synchronizer() *persist.Synchronizer { return d.sync }

// Context returns the session context. It is cancelled by Close.
func (d *Designer) Context() context.Context { return d.ctx }

// bind derives a context that ends when either ctx or the session ends.
func (d *Designer) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(d.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (d *Designer) closed(op string) error {
	if d.ctx.Err() != nil {
		return &Error{Op: op, Kind: KindCanceled, Err: ErrClosed}
	}
	return nil
}

// finish maps err for op, reporting ErrClosed when the session ended
// while the operation was running.
func (d *Designer) finish(op string, err error) error {
	if err != nil && d.ctx.Err() != nil {
		return &Error{Op: op, Kind: KindCanceled, Err: ErrClosed}
	}
	return wrap(op, err)
}

// Load replaces the canvas with the persisted neighborhood of rootID, or
// with everything when rootID is empty.
func (d *Designer) Load(ctx context.Context, rootID string) error {
	const op = "Designer.Load"
	if err := d.closed(op); err != nil {
		return err
	}
	ctx, done := d.bind(ctx)
	defer done()
	return d.finish(op, d.sync.Load(ctx, rootID))
}

// LoadRelationships merges the persisted one-hop neighborhood of an
// existing node into the canvas.
func (d *Designer) LoadRelationships(ctx context.Context, nodeID string) (nodes, edges int, err error) {
	const op = "Designer.LoadRelationships"
	if err := d.closed(op); err != nil {
		return 0, 0, err
	}
	ctx, done := d.bind(ctx)
	defer done()
	nodes, edges, err = d.sync.LoadRelationships(ctx, nodeID)
	return nodes, edges, d.finish(op, err)
}

// Save writes every node and edge to the backend.
func (d *Designer) Save(ctx context.Context) error {
	const op = "Designer.Save"
	if err := d.closed(op); err != nil {
		return err
	}
	ctx, done := d.bind(ctx)
	defer done()
	return d.finish(op, d.sync.Save(ctx))
}

// AutoLayout runs the layout once and reports whether positions changed.
// A successful run also fits the viewport to the new layout.
func (d *Designer) AutoLayout(ctx context.Context) bool {
	if d.ctx.Err() != nil {
		return false
	}
	ctx, done := d.bind(ctx)
	defer done()
	return d.layout.Apply(ctx, d.store)
}

// Export returns the model as indented JSON.
func (d *Designer) Export() ([]byte, error) {
	data, err := d.sync.ExportJSON()
	return data, wrap("Designer.Export", err)
}

// Import replaces the model with an exported document. The canvas is left
// dirty until the next save.
func (d *Designer) Import(data []byte) error {
	const op = "Designer.Import"
	if err := d.closed(op); err != nil {
		return err
	}
	if err := d.sync.ImportJSON(data); err != nil {
		return NewValidationError(op, err)
	}
	return nil
}

// Close ends the session. It stops auto-layout, abandons in-flight
// persistence calls and closes the backend if the designer opened it.
// Close is idempotent.
func (d *Designer) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		if d.stopWatch != nil {
			d.stopWatch()
		}
		if d.ownsBackend {
			d.closeErr = d.backend.Close()
		}
		d.logger.Info("designer session closed", slog.String("user_id", d.session.UserID))
	})
	return d.closeErr
}
