package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/captify-io/designer/containment"
	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/layout"
	"github.com/captify-io/designer/persist"
	"github.com/google/uuid"
)

// Mode selects the canvas flavor.
type Mode string

const (
	// ModeDesigner is the free-form decision designer. User placement is
	// preserved and new edges are "flow" edges.
	ModeDesigner Mode = "designer"

	// ModeOntology is the ontology builder. New edges are labeled with the
	// types they connect and nodes carry ontology attributes.
	ModeOntology Mode = "ontology"
)

// ParseMode maps a configuration string onto a Mode, defaulting to
// ModeDesigner.
func ParseMode(s string) Mode {
	if Mode(s) == ModeOntology {
		return ModeOntology
	}
	return ModeDesigner
}

// DragPhase is the state of the node drag machine.
type DragPhase int

const (
	DragIdle DragPhase = iota
	DragStart
	Dragging
	DragStop
)

// String returns the phase name.
func (p DragPhase) String() string {
	switch p {
	case DragStart:
		return "drag_start"
	case Dragging:
		return "dragging"
	case DragStop:
		return "drag_stop"
	default:
		return "idle"
	}
}

// Persistence is the part of the synchronizer the canvas calls on behalf of
// menu and double-click actions.
type Persistence interface {
	GetNode(ctx context.Context, id string) (graph.Node, error)
	SearchNodes(ctx context.Context, query string, limit int) ([]persist.NodeSummary, error)
	FetchDataItems(ctx context.Context, nodeID string) (persist.DataResult, error)
	LoadRelationships(ctx context.Context, nodeID string) (int, int, error)
}

// Controller binds pointer-level interactions to graph store operations.
//
// The controller never saves: committed mutations reach the backend only
// when the caller invokes the synchronizer's Save.
type Controller struct {
	store    *graph.Store
	resolver *containment.Resolver
	persist  Persistence
	notifier Notifier
	rule     *ConnectionRule
	logger   *slog.Logger

	mode      Mode
	edgeType  string
	bannerTTL time.Duration
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	viewport layout.Viewport
	drag     dragState
	menu     *Menu
	banners  []Banner
}

type dragState struct {
	nodeID string
	phase  DragPhase
	hover  string
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolver replaces the default containment resolver.
func WithResolver(r *containment.Resolver) Option {
	return func(c *Controller) {
		c.resolver = r
	}
}

// WithPersistence enables menu search, add-existing and data expansion.
func WithPersistence(p Persistence) Option {
	return func(c *Controller) {
		c.persist = p
	}
}

// WithNotifier sets where persistence failures are reported.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithConnectionRule restricts Connect to edges the rule allows.
func WithConnectionRule(r *ConnectionRule) Option {
	return func(c *Controller) {
		c.rule = r
	}
}

// WithMode selects designer or ontology behavior.
func WithMode(m Mode) Option {
	return func(c *Controller) {
		c.mode = m
	}
}

// WithDefaultEdgeType sets the type of edges drawn in designer mode.
func WithDefaultEdgeType(t string) Option {
	return func(c *Controller) {
		if t != "" {
			c.edgeType = t
		}
	}
}

// WithBannerTimeout sets how long error banners stay visible.
func WithBannerTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.bannerTTL = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for banners and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDGenerator overrides the random part of generated node and edge ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// New creates a controller over store.
func New(store *graph.Store, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		mode:      ModeDesigner,
		edgeType:  "flow",
		bannerTTL: 3 * time.Second,
		now:       time.Now,
		newID:     uuid.NewString,
		viewport:  layout.Identity,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = containment.NewResolver()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	return c
}

// Mode returns the canvas mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// SetViewport records the current pan and zoom.
func (c *Controller) SetViewport(v layout.Viewport) {
	c.mu.Lock()
	c.viewport = v
	c.mu.Unlock()
}

// Viewport returns the current pan and zoom.
func (c *Controller) Viewport() layout.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// DragStart begins dragging a node. Only one node can be dragged at a time.
func (c *Controller) DragStart(id string) error {
	if _, ok := c.store.Node(id); !ok {
		return c.fail(id, fmt.Errorf("drag %s: %w", id, graph.ErrNotFound))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag.phase != DragIdle {
		return fmt.Errorf("%w: start while %s %s", ErrInvalidTransition, c.drag.nodeID, c.drag.phase)
	}
	c.drag = dragState{nodeID: id, phase: DragStart}
	return nil
}

// DragMove reports the dragged node's current absolute position. It only
// updates the hover hint; nothing is committed until DragStop. It returns
// the id of the group that would receive the node, or "".
func (c *Controller) DragMove(id string, abs graph.Position) (string, error) {
	c.mu.Lock()
	if err := c.checkDragLocked(id); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.drag.phase = Dragging
	c.mu.Unlock()

	hover := c.resolver.Resolve(c.store, id, abs)

	c.mu.Lock()
	if c.drag.nodeID == id {
		c.drag.hover = hover
	}
	c.mu.Unlock()
	return hover, nil
}

// DragStop ends the drag at abs and commits the containment decision.
// The drag machine returns to idle whether or not the commit succeeds.
func (c *Controller) DragStop(id string, abs graph.Position) (containment.Result, error) {
	c.mu.Lock()
	if err := c.checkDragLocked(id); err != nil {
		c.mu.Unlock()
		return containment.Result{}, err
	}
	c.drag.phase = DragStop
	c.mu.Unlock()

	res, err := c.resolver.Commit(c.store, id, abs)

	c.mu.Lock()
	c.drag = dragState{}
	c.mu.Unlock()

	if err != nil {
		return res, c.fail(id, err)
	}
	if res.Reparented {
		c.logger.Debug("node reparented", slog.String("node_id", id), slog.String("parent_id", res.ParentID))
	}
	return res, nil
}

// CancelDrag abandons the current drag without committing anything.
func (c *Controller) CancelDrag() {
	c.mu.Lock()
	c.drag = dragState{}
	c.mu.Unlock()
}

func (c *Controller) checkDragLocked(id string) error {
	switch {
	case c.drag.phase == DragIdle:
		return fmt.Errorf("%w: %s is not being dragged", ErrInvalidTransition, id)
	case c.drag.nodeID != id:
		return fmt.Errorf("%w: %s is being dragged, not %s", ErrInvalidTransition, c.drag.nodeID, id)
	case c.drag.phase == DragStop:
		return fmt.Errorf("%w: drag of %s already stopping", ErrInvalidTransition, id)
	}
	return nil
}

// Drag returns the dragged node and its phase.
func (c *Controller) Drag() (nodeID string, phase DragPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.nodeID, c.drag.phase
}

// Hover returns the dragged node and the group currently highlighted as its
// drop target. Both are empty when no drag is in progress.
func (c *Controller) Hover() (draggedID, containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.nodeID, c.drag.hover
}

func (c *Controller) dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.phase != DragIdle
}

// SelectNode selects a node, clearing any edge selection. An empty id clears
// the node selection. Selection events during a drag are ignored.
func (c *Controller) SelectNode(id string) error {
	if c.dragging() {
		return nil
	}
	if err := c.store.SetSelectedNode(id); err != nil {
		return c.fail(id, err)
	}
	return nil
}

// SelectEdge selects an edge, clearing any node selection. Selection events
// during a drag are ignored.
func (c *Controller) SelectEdge(id string) error {
	if c.dragging() {
		return nil
	}
	if err := c.store.SetSelectedEdge(id); err != nil {
		return c.fail("", err)
	}
	return nil
}

// ClickPane handles a click on empty canvas: the selection is cleared and
// any open context menu closes.
func (c *Controller) ClickPane() {
	c.CloseContextMenu()
	if c.dragging() {
		return
	}
	_ = c.store.SetSelectedNode("")
	_ = c.store.SetSelectedEdge("")
}

// Connect draws an edge from source to target. Self connections are
// rejected, and so is any edge the connection rule disallows.
//
// In designer mode the edge gets the default edge type. In ontology mode it
// is a "default" edge labeled "<source type> → <target type>".
func (c *Controller) Connect(source, target string) (graph.Edge, error) {
	if source == target {
		return graph.Edge{}, c.fail(source, ErrSelfConnection)
	}
	src, ok := c.store.Node(source)
	if !ok {
		return graph.Edge{}, c.fail(source, fmt.Errorf("connect source %s: %w", source, graph.ErrNotFound))
	}
	tgt, ok := c.store.Node(target)
	if !ok {
		return graph.Edge{}, c.fail(source, fmt.Errorf("connect target %s: %w", target, graph.ErrNotFound))
	}

	if c.rule != nil {
		allowed, err := c.rule.Allows(src, tgt)
		if err != nil {
			return graph.Edge{}, c.fail(source, err)
		}
		if !allowed {
			return graph.Edge{}, c.fail(source, fmt.Errorf("%w: %s", ErrConnectionRejected, c.rule))
		}
	}

	e := graph.NewEdge("edge-"+c.newID(), source, target, c.edgeType)
	if c.mode == ModeOntology {
		e.Type = "default"
		e.Label = src.Type + " → " + tgt.Type
	}
	if err := c.store.AddEdge(*e); err != nil {
		return graph.Edge{}, c.fail(source, err)
	}
	return *e, nil
}

// Delete removes the selected node or edge, if any.
func (c *Controller) Delete() error {
	nodeID, edgeID := c.store.Selection()
	switch {
	case nodeID != "":
		if err := c.store.DeleteNode(nodeID); err != nil {
			return c.fail(nodeID, err)
		}
	case edgeID != "":
		if err := c.store.DeleteEdge(edgeID); err != nil {
			return c.fail("", err)
		}
	}
	return nil
}

// fail records err as a banner on nodeID (when it names a node) and returns
// it unchanged.
func (c *Controller) fail(nodeID string, err error) error {
	c.mu.Lock()
	c.banners = append(c.banners, Banner{
		NodeID:  nodeID,
		Message: err.Error(),
		Expires: c.now().Add(c.bannerTTL),
	})
	c.mu.Unlock()
	c.logger.Debug("canvas action failed", slog.String("node_id", nodeID), slog.String("error", err.Error()))
	return err
}

// report forwards a persistence failure to the notifier, routing missing
// tables to the dedicated guidance.
func (c *Controller) report(op, nodeID string, err error) error {
	if table, ok := persist.MissingTable(err); ok {
		c.notifier.TableMissing(nodeID, table)
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.notifier.Error(op, err)
	return err
}

// Banners returns the banners still visible at now and forgets expired ones.
func (c *Controller) Banners(now time.Time) []Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banners = slices.DeleteFunc(c.banners, func(b Banner) bool {
		return !now.Before(b.Expires)
	})
	return slices.Clone(c.banners)
}
