package graph

import (
	"encoding/json"
	"maps"
)

// Well-known node types with behavior attached to them.
const (
	// TypeGroup marks a container node that other nodes can be parented to.
	TypeGroup = "group"

	// TypeAnnotation marks a free-text annotation. Annotations are sized
	// explicitly and never reparented.
	TypeAnnotation = "textannotation"

	// TypeDataItem marks a node spawned from a data table record.
	TypeDataItem = "data-item"
)

// ExtentParent is the rendering hint set on nodes confined to their parent.
const ExtentParent = "parent"

// Position is a point in canvas space. For nodes with a parent the point is
// relative to the parent's origin.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p translated by -o.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Size is the width and height of a node's bounding box.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeData is the attribute bag carried by a node.
//
// The named fields cover what the designer itself reads and writes. Every
// other attribute (table name, permission lists, icon, timestamps) is kept in
// Extra and survives a JSON round trip untouched.
type NodeData struct {
	Label             string         `json:"label,omitempty"`
	Description       string         `json:"description,omitempty"`
	Category          string         `json:"category,omitempty"`
	Properties        map[string]any `json:"properties,omitempty"`
	AllowedSources    []string       `json:"allowedSources,omitempty"`
	AllowedTargets    []string       `json:"allowedTargets,omitempty"`
	AllowedConnectors []string       `json:"allowedConnectors,omitempty"`

	// Extra holds attributes not modeled above.
	Extra map[string]any `json:"-"`
}

// knownDataKeys lists the JSON keys owned by NodeData's named fields.
var knownDataKeys = map[string]struct{}{
	"label":             {},
	"description":       {},
	"category":          {},
	"properties":        {},
	"allowedSources":    {},
	"allowedTargets":    {},
	"allowedConnectors": {},
}

type nodeDataAlias NodeData

// MarshalJSON flattens Extra alongside the named fields.
func (d NodeData) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(nodeDataAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}

	out := make(map[string]any, len(d.Extra)+len(knownDataKeys))
	for k, v := range d.Extra {
		if _, known := knownDataKeys[k]; known {
			continue
		}
		out[k] = v
	}
	var named map[string]any
	if err := json.Unmarshal(base, &named); err != nil {
		return nil, err
	}
	maps.Copy(out, named)
	return json.Marshal(out)
}

// UnmarshalJSON reads the named fields and collects the rest into Extra.
// The property bag is always non-nil afterwards.
func (d *NodeData) UnmarshalJSON(b []byte) error {
	var alias nodeDataAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*d = NodeData(alias)
	if d.Properties == nil {
		d.Properties = make(map[string]any)
	}
	for k, v := range raw {
		if _, known := knownDataKeys[k]; known {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = v
	}
	return nil
}

// String returns the string value of an attribute, looking at the named
// fields first and Extra second. Missing or non-string values yield "".
func (d NodeData) String(key string) string {
	switch key {
	case "label":
		return d.Label
	case "description":
		return d.Description
	case "category":
		return d.Category
	}
	if s, ok := d.Extra[key].(string); ok {
		return s
	}
	return ""
}

// Node is a vertex of the designer graph.
type Node struct {
	// ID is immutable for the lifetime of the node.
	ID string `json:"id"`

	// Type selects visual shape and behavior (e.g. "group", "decision").
	Type string `json:"type"`

	Position Position `json:"position"`

	// ParentID references the containing group node, if any.
	ParentID string `json:"parentId,omitempty"`

	// Extent is a rendering hint; ExtentParent confines the node to its parent.
	Extent string `json:"extent,omitempty"`

	// Size is required for groups and annotations and measured for the rest.
	Size *Size `json:"size,omitempty"`

	Data NodeData `json:"data"`
}

// NewNode creates a node of the given type with an initialized property bag.
func NewNode(id, nodeType string) *Node {
	return &Node{
		ID:   id,
		Type: nodeType,
		Data: NodeData{Properties: make(map[string]any)},
	}
}

// WithPosition sets the position and returns the node for method chaining.
func (n *Node) WithPosition(x, y float64) *Node {
	n.Position = Position{X: x, Y: y}
	return n
}

// WithSize sets the size and returns the node for method chaining.
func (n *Node) WithSize(w, h float64) *Node {
	n.Size = &Size{Width: w, Height: h}
	return n
}

// WithParent sets the parent id and the parent extent hint.
func (n *Node) WithParent(parentID string) *Node {
	n.ParentID = parentID
	n.Extent = ExtentParent
	return n
}

// WithLabel sets the display label and returns the node for method chaining.
func (n *Node) WithLabel(label string) *Node {
	n.Data.Label = label
	return n
}

// WithProperty sets a single property and returns the node for method chaining.
func (n *Node) WithProperty(key string, value any) *Node {
	if n.Data.Properties == nil {
		n.Data.Properties = make(map[string]any)
	}
	n.Data.Properties[key] = value
	return n
}

// IsGroup reports whether the node can contain other nodes.
func (n *Node) IsGroup() bool {
	return n.Type == TypeGroup
}

// Validate checks that the node has all required fields set.
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNode
	}
	if n.Type == "" {
		return ErrInvalidNode
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Size != nil {
		s := *n.Size
		out.Size = &s
	}
	out.Data.Properties = cloneMap(n.Data.Properties)
	out.Data.Extra = cloneMap(n.Data.Extra)
	out.Data.AllowedSources = cloneStrings(n.Data.AllowedSources)
	out.Data.AllowedTargets = cloneStrings(n.Data.AllowedTargets)
	out.Data.AllowedConnectors = cloneStrings(n.Data.AllowedConnectors)
	return out
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`

	// Type is a free relationship label (e.g. "funds", "allowed").
	Type string `json:"type,omitempty"`

	Label      string         `json:"label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewEdge creates an edge with an initialized property bag.
func NewEdge(id, source, target, edgeType string) *Edge {
	return &Edge{
		ID:         id,
		Source:     source,
		Target:     target,
		Type:       edgeType,
		Properties: make(map[string]any),
	}
}

// WithLabel sets the display label and returns the edge for method chaining.
func (e *Edge) WithLabel(label string) *Edge {
	e.Label = label
	return e
}

// Validate checks that the edge has an id and both endpoints.
func (e *Edge) Validate() error {
	if e.ID == "" || e.Source == "" || e.Target == "" {
		return ErrInvalidEdge
	}
	return nil
}

// Connects reports whether the edge joins a and b in either direction.
func (e *Edge) Connects(a, b string) bool {
	return (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a)
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	out := e
	out.Properties = cloneMap(e.Properties)
	return out
}

// Model is the aggregate graph document: nodes, edges and free-form metadata.
// It is also the exported file format.
type Model struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Metadata map[string]any `json:"metadata"`
}

// Clone returns a deep copy of the model.
func (m Model) Clone() Model {
	out := Model{
		Nodes:    make([]Node, len(m.Nodes)),
		Edges:    make([]Edge, len(m.Edges)),
		Metadata: cloneMap(m.Metadata),
	}
	for i, n := range m.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range m.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// cloneMap copies a property bag. Nested maps and slices are copied through
// a JSON-shaped walk so callers never share mutable state with the store.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
