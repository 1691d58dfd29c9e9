package canvas

import (
	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/layout"
)

// NodeView is a node as drawn: its stored state plus interaction flags.
type NodeView struct {
	graph.Node

	// Absolute is the node's position in canvas space.
	Absolute graph.Position

	// ZIndex is -1 for groups so they render beneath their children.
	ZIndex int

	Selected bool

	// Hovered marks the group highlighted as the current drop target.
	Hovered  bool
	Dragging bool

	// Banner is the message of the node's newest visible error banner.
	Banner string
}

// EdgeView is an edge as drawn.
type EdgeView struct {
	graph.Edge
	Selected bool
}

// View is the complete render state of the canvas.
type View struct {
	Nodes    []NodeView
	Edges    []EdgeView
	Viewport layout.Viewport
	Menu     *Menu
	Banners  []Banner
}

// Render derives the view from the store and the controller's interaction
// state. Nodes are in render order.
func (c *Controller) Render() View {
	selNode, selEdge := c.store.Selection()
	banners := c.Banners(c.now())

	c.mu.Lock()
	drag := c.drag
	v := View{Viewport: c.viewport, Banners: banners}
	if c.menu != nil {
		m := *c.menu
		v.Menu = &m
	}
	c.mu.Unlock()

	latest := make(map[string]string, len(banners))
	for _, b := range banners {
		if b.NodeID != "" {
			latest[b.NodeID] = b.Message
		}
	}

	nodes := c.store.Nodes()
	v.Nodes = make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		abs, err := c.store.AbsolutePosition(n.ID)
		if err != nil {
			abs = n.Position
		}
		nv := NodeView{
			Node:     n,
			Absolute: abs,
			Selected: n.ID == selNode,
			Hovered:  drag.hover != "" && n.ID == drag.hover,
			Dragging: drag.phase != DragIdle && n.ID == drag.nodeID,
			Banner:   latest[n.ID],
		}
		if n.IsGroup() {
			nv.ZIndex = -1
		}
		v.Nodes = append(v.Nodes, nv)
	}

	edges := c.store.Edges()
	v.Edges = make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		v.Edges = append(v.Edges, EdgeView{Edge: e, Selected: e.ID == selEdge})
	}
	return v
}

// FitView computes the viewport showing every node on a screen of the
// given size and makes it current.
func (c *Controller) FitView(screenW, screenH float64) layout.Viewport {
	nodes := c.store.Nodes()
	boxes := make([]layout.Box, 0, len(nodes))
	for _, n := range nodes {
		abs, err := c.store.AbsolutePosition(n.ID)
		if err != nil {
			continue
		}
		b := layout.Box{ID: n.ID, Position: abs}
		if n.Size != nil {
			b.Size = *n.Size
		}
		boxes = append(boxes, b)
	}
	v := layout.Fit(boxes, screenW, screenH, layout.DefaultFit)
	c.SetViewport(v)
	return v
}
