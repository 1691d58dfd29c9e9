package graph

import (
	"encoding/json"
	"fmt"

	"github.com/captify-io/designer/field"
)

// Persisted items are flat documents: the node's data attributes sit next to
// id, type and geometry. These helpers map between that shape and Node/Edge.

var structuralKeys = map[string]struct{}{
	"id":       {},
	"type":     {},
	"position": {},
	"parentId": {},
	"extent":   {},
	"size":     {},
}

// NodeFromItem converts a persisted item into a Node.
// Items that carry "name" but no "label" use the name as label.
func NodeFromItem(item map[string]any) (Node, error) {
	id := field.String(item, "id", "")
	if id == "" {
		return Node{}, fmt.Errorf("%w: item has no id", ErrInvalidNode)
	}

	n := Node{
		ID:       id,
		Type:     field.String(item, "type", ""),
		ParentID: field.String(item, "parentId", ""),
		Extent:   field.String(item, "extent", ""),
	}
	if p := field.Map(item, "position"); p != nil {
		n.Position = Position{X: field.Float(p, "x", 0), Y: field.Float(p, "y", 0)}
	}
	if s := field.Map(item, "size"); s != nil {
		n.Size = &Size{Width: field.Float(s, "width", 0), Height: field.Float(s, "height", 0)}
	}

	rest := make(map[string]any, len(item))
	for k, v := range item {
		if _, skip := structuralKeys[k]; skip {
			continue
		}
		rest[k] = v
	}
	raw, err := json.Marshal(rest)
	if err != nil {
		return Node{}, fmt.Errorf("encode node %s attributes: %w", id, err)
	}
	if err := json.Unmarshal(raw, &n.Data); err != nil {
		return Node{}, fmt.Errorf("decode node %s attributes: %w", id, err)
	}
	if n.Data.Label == "" {
		n.Data.Label = field.String(item, "name", "")
	}
	return n, nil
}

// Item converts the node into its flat persisted form.
func (n Node) Item() (map[string]any, error) {
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return nil, fmt.Errorf("encode node %s attributes: %w", n.ID, err)
	}
	item := make(map[string]any)
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode node %s attributes: %w", n.ID, err)
	}

	item["id"] = n.ID
	item["type"] = n.Type
	item["position"] = map[string]any{"x": n.Position.X, "y": n.Position.Y}
	if n.ParentID != "" {
		item["parentId"] = n.ParentID
	}
	if n.Extent != "" {
		item["extent"] = n.Extent
	}
	if n.Size != nil {
		item["size"] = map[string]any{"width": n.Size.Width, "height": n.Size.Height}
	}
	return item, nil
}

// EdgeFromItem converts a persisted item into an Edge. Older items name the
// relationship "relation" instead of "type"; both are accepted.
func EdgeFromItem(item map[string]any) (Edge, error) {
	e := Edge{
		ID:     field.String(item, "id", ""),
		Source: field.String(item, "source", ""),
		Target: field.String(item, "target", ""),
		Type:   field.First(item, "type", "relation"),
		Label:  field.String(item, "label", ""),
	}
	if props := field.Map(item, "properties"); props != nil {
		e.Properties = cloneMap(props)
	}
	if err := e.Validate(); err != nil {
		return Edge{}, fmt.Errorf("%w: item %v", err, item["id"])
	}
	return e, nil
}

// Item converts the edge into its flat persisted form.
func (e Edge) Item() map[string]any {
	item := map[string]any{
		"id":     e.ID,
		"source": e.Source,
		"target": e.Target,
	}
	if e.Type != "" {
		item["type"] = e.Type
	}
	if e.Label != "" {
		item["label"] = e.Label
	}
	if len(e.Properties) > 0 {
		item["properties"] = cloneMap(e.Properties)
	}
	return item
}
