package containment

import (
	"errors"
	"fmt"

	"github.com/captify-io/designer/graph"
)

// Fallback sizes used when a node carries no explicit or measured size.
var (
	DefaultGroupSize = graph.Size{Width: 300, Height: 200}
	DefaultNodeSize  = graph.Size{Width: 160, Height: 40}
)

// Model is the part of the graph store the resolver reads and commits to.
type Model interface {
	Node(id string) (graph.Node, bool)
	Nodes() []graph.Node
	AbsolutePosition(id string) (graph.Position, error)
	Reparent(id, parentID string, position graph.Position) error
}

// Rect is an axis-aligned rectangle in canvas space.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p graph.Position) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Result describes the outcome of a committed drag.
type Result struct {
	// ParentID is the node's parent after the commit ("" for top level).
	ParentID string

	// Position is the node's stored position, relative to ParentID.
	Position graph.Position

	// Reparented is true when the parent changed.
	Reparented bool
}

// Resolver decides which group, if any, spatially contains a dragged node.
//
// When the node's center lies inside several groups the topmost one wins,
// i.e. the group latest in render order. A group nested inside another and
// created after it is therefore preferred over its container.
type Resolver struct {
	groupSize graph.Size
	nodeSize  graph.Size
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaultSizes overrides the fallback group and node sizes.
func WithDefaultSizes(group, node graph.Size) Option {
	return func(r *Resolver) {
		r.groupSize = group
		r.nodeSize = node
	}
}

// NewResolver creates a resolver with the default fallback sizes.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{groupSize: DefaultGroupSize, nodeSize: DefaultNodeSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reparentable reports whether the resolver may change n's parent.
// Groups and annotations keep whatever parent they have.
func Reparentable(n graph.Node) bool {
	return n.Type != graph.TypeGroup && n.Type != graph.TypeAnnotation
}

func (r *Resolver) sizeOf(n graph.Node) graph.Size {
	if n.Size != nil && n.Size.Width > 0 && n.Size.Height > 0 {
		return *n.Size
	}
	if n.IsGroup() {
		return r.groupSize
	}
	return r.nodeSize
}

// Bounds returns n's rectangle in canvas space.
func (r *Resolver) Bounds(m Model, n graph.Node) (Rect, error) {
	abs, err := m.AbsolutePosition(n.ID)
	if err != nil {
		return Rect{}, err
	}
	sz := r.sizeOf(n)
	return Rect{X: abs.X, Y: abs.Y, Width: sz.Width, Height: sz.Height}, nil
}

// Resolve returns the id of the group containing the center of the dragged
// node when placed at absPos, or "" when no group contains it. Groups and
// annotations always resolve to "".
func (r *Resolver) Resolve(m Model, draggedID string, absPos graph.Position) string {
	dragged, ok := m.Node(draggedID)
	if !ok || !Reparentable(dragged) {
		return ""
	}

	sz := r.sizeOf(dragged)
	center := graph.Position{X: absPos.X + sz.Width/2, Y: absPos.Y + sz.Height/2}

	nodes := m.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		g := nodes[i]
		if g.ID == draggedID || !g.IsGroup() {
			continue
		}
		bounds, err := r.Bounds(m, g)
		if err != nil {
			continue
		}
		if bounds.Contains(center) {
			return g.ID
		}
	}
	return ""
}

// Commit applies the end of a drag: the node lands at absPos, and if the
// resolved container differs from its current parent the parent, relative
// position and extent hint change together. Detaching converts the position
// back to absolute coordinates.
//
// An assignment that would create a parent cycle is not applied; the node
// keeps its parent and only its position moves.
func (r *Resolver) Commit(m Model, draggedID string, absPos graph.Position) (Result, error) {
	dragged, ok := m.Node(draggedID)
	if !ok {
		return Result{}, fmt.Errorf("commit drag of %s: %w", draggedID, graph.ErrNotFound)
	}

	target := dragged.ParentID
	if Reparentable(dragged) {
		target = r.Resolve(m, draggedID, absPos)
	}

	res, err := r.place(m, draggedID, target, absPos)
	if errors.Is(err, graph.ErrCycle) && target != dragged.ParentID {
		res, err = r.place(m, draggedID, dragged.ParentID, absPos)
	}
	if err != nil {
		return Result{}, err
	}
	res.Reparented = res.ParentID != dragged.ParentID
	return res, nil
}

func (r *Resolver) place(m Model, id, parentID string, absPos graph.Position) (Result, error) {
	rel := absPos
	if parentID != "" {
		origin, err := m.AbsolutePosition(parentID)
		if err != nil {
			return Result{}, err
		}
		rel = absPos.Sub(origin)
	}
	if err := m.Reparent(id, parentID, rel); err != nil {
		return Result{}, err
	}
	return Result{ParentID: parentID, Position: rel}, nil
}
