package canvas

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/persist"
)

// Explicit sizes for node types that need one at creation.
var (
	GroupSize      = graph.Size{Width: 300, Height: 200}
	AnnotationSize = graph.Size{Width: 200, Height: 150}
)

// Menu is an open context menu.
type Menu struct {
	// Screen is where the menu was opened, in screen pixels.
	Screen graph.Position

	// Canvas is Screen converted through the viewport. New nodes land here.
	Canvas graph.Position

	// NodeID is the node the menu was opened on, or "" for the pane.
	NodeID string
}

// OpenContextMenu opens the menu at a screen point, optionally on a node.
func (c *Controller) OpenContextMenu(screen graph.Position, nodeID string) Menu {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Menu{
		Screen: screen,
		Canvas: c.viewport.ScreenToCanvas(screen),
		NodeID: nodeID,
	}
	c.menu = &m
	return m
}

// CloseContextMenu closes the menu if it is open.
func (c *Controller) CloseContextMenu() {
	c.mu.Lock()
	c.menu = nil
	c.mu.Unlock()
}

// ContextMenu returns the open menu.
func (c *Controller) ContextMenu() (Menu, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.menu == nil {
		return Menu{}, false
	}
	return *c.menu, true
}

// takeMenu closes the menu and returns where it was.
func (c *Controller) takeMenu() (Menu, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.menu == nil {
		return Menu{}, ErrNoContextMenu
	}
	m := *c.menu
	c.menu = nil
	return m, nil
}

// CreateNode adds a new node of nodeType at the context-menu point, closes
// the menu and selects the node.
func (c *Controller) CreateNode(nodeType string) (graph.Node, error) {
	m, err := c.takeMenu()
	if err != nil {
		return graph.Node{}, err
	}
	return c.AddNode(nodeType, m.Canvas)
}

// AddNode adds a new top-level node of nodeType at a canvas point and
// selects it.
func (c *Controller) AddNode(nodeType string, pos graph.Position) (graph.Node, error) {
	n := c.newNode(nodeType)
	n.Position = pos
	if err := c.store.AddNode(n); err != nil {
		return graph.Node{}, c.fail("", err)
	}
	_ = c.store.SetSelectedNode(n.ID)
	return n, nil
}

func (c *Controller) newNode(nodeType string) graph.Node {
	n := graph.NewNode("node-"+c.newID(), nodeType)
	switch nodeType {
	case graph.TypeGroup:
		n.WithSize(GroupSize.Width, GroupSize.Height)
	case graph.TypeAnnotation:
		n.WithSize(AnnotationSize.Width, AnnotationSize.Height)
	}

	if c.mode == ModeOntology {
		stamp := c.now().UTC().Format(time.RFC3339)
		n.Data.Label = nodeType
		n.Data.Description = "New " + nodeType + " node"
		n.Data.Category = "Custom"
		n.Data.AllowedSources = []string{}
		n.Data.AllowedTargets = []string{}
		n.Data.AllowedConnectors = []string{}
		n.Data.Extra = map[string]any{
			"domain":    "Default",
			"app":       "core",
			"schema":    "captify",
			"tenantId":  "default",
			"table":     "captify-core-" + nodeType,
			"icon":      "Box",
			"color":     "bg-slate-600",
			"shape":     "rectangle",
			"createdAt": stamp,
			"updatedAt": stamp,
		}
		return *n
	}

	n.Data.Label = capitalize(nodeType)
	n.Data.Category = designerCategory(nodeType)
	return *n
}

func designerCategory(nodeType string) string {
	switch nodeType {
	case "painpoint", "opportunity", "hypothesis", "insight":
		return "discovery"
	case "person", "process", "system", "policy":
		return "people_process_tech"
	default:
		return "decision"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SearchMenu searches persisted nodes for the context menu's
// add-existing-node list.
func (c *Controller) SearchMenu(ctx context.Context, query string) ([]persist.NodeSummary, error) {
	if c.persist == nil {
		return nil, ErrNoPersistence
	}
	res, err := c.persist.SearchNodes(ctx, query, persist.DefaultSearchLimit)
	if err != nil {
		return nil, c.report(persist.OpSearch, "", err)
	}
	return res, nil
}

// AddExistingNode fetches a persisted node and places it at the context-menu
// point as a top-level node. A node already on the canvas is only selected.
func (c *Controller) AddExistingNode(ctx context.Context, id string) (graph.Node, error) {
	if c.persist == nil {
		return graph.Node{}, ErrNoPersistence
	}
	m, err := c.takeMenu()
	if err != nil {
		return graph.Node{}, err
	}
	if existing, ok := c.store.Node(id); ok {
		_ = c.store.SetSelectedNode(id)
		return existing, nil
	}

	n, err := c.persist.GetNode(ctx, id)
	if err != nil {
		return graph.Node{}, c.report(persist.OpGetNode, id, err)
	}
	n.Position = m.Canvas
	n.ParentID = ""
	n.Extent = ""
	if err := c.store.AddNode(n); err != nil {
		return graph.Node{}, c.fail(id, err)
	}
	_ = c.store.SetSelectedNode(id)
	return n, nil
}

// DoubleClick expands a node's data table into data-item nodes. Groups and
// data items themselves are not expandable and yield a zero result.
//
// A missing data table is routed to Notifier.TableMissing; other persistence
// failures to Notifier.Error.
func (c *Controller) DoubleClick(ctx context.Context, id string) (persist.DataResult, error) {
	n, ok := c.store.Node(id)
	if !ok {
		return persist.DataResult{}, c.fail(id, fmt.Errorf("double-click %s: %w", id, graph.ErrNotFound))
	}
	if n.IsGroup() || n.Type == graph.TypeDataItem {
		return persist.DataResult{}, nil
	}
	if c.persist == nil {
		return persist.DataResult{}, ErrNoPersistence
	}

	res, err := c.persist.FetchDataItems(ctx, id)
	if err != nil {
		return res, c.report(persist.OpFetchData, id, err)
	}
	return res, nil
}

// LoadRelationships pulls a node's persisted one-hop neighborhood onto the
// canvas.
func (c *Controller) LoadRelationships(ctx context.Context, id string) (nodes, edges int, err error) {
	if c.persist == nil {
		return 0, 0, ErrNoPersistence
	}
	nodes, edges, err = c.persist.LoadRelationships(ctx, id)
	if err != nil {
		return 0, 0, c.report(persist.OpLoadRelationships, id, err)
	}
	return nodes, edges, nil
}
