package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/captify-io/designer/field"
	"github.com/captify-io/designer/graph"
)

// ExportJSON serializes the whole model as indented JSON with top-level
// nodes, edges and metadata keys. It does not touch the store.
func (s *Synchronizer) ExportJSON() ([]byte, error) {
	m := s.store.Snapshot()
	if m.Nodes == nil {
		m.Nodes = []graph.Node{}
	}
	if m.Edges == nil {
		m.Edges = []graph.Edge{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return json.MarshalIndent(m, "", "  ")
}

// ImportJSON replaces the model with a document produced by ExportJSON.
// The imported model is unsaved, so the store is left dirty.
func (s *Synchronizer) ImportJSON(data []byte) error {
	var m graph.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("import model: %w", err)
	}
	s.store.SetModel(m)
	s.logger.Info("model imported", slog.Int("nodes", len(m.Nodes)), slog.Int("edges", len(m.Edges)))
	return nil
}

// DataTableName derives the table holding records of a node's type:
// "{app}-{Type}" with the type's first letter capitalized.
func DataTableName(n graph.Node) string {
	t := n.Type
	if r, size := utf8.DecodeRuneInString(t); r != utf8.RuneError {
		t = string(unicode.ToUpper(r)) + t[size:]
	}
	return n.Data.String("app") + "-" + t
}

// DataResult summarizes a data-item expansion.
type DataResult struct {
	Table string
	Count int
}

// FetchDataItems scans the node's data table and spawns one data-item node
// per record, evenly spaced on a circle around the node, each linked to it by
// a "data" edge. The node's dataCount and dataSource properties are updated.
//
// A missing table is reported as a PersistenceError wrapping
// TableNotFoundError; see MissingTable.
func (s *Synchronizer) FetchDataItems(ctx context.Context, nodeID string) (DataResult, error) {
	parent, ok := s.store.Node(nodeID)
	if !ok {
		return DataResult{}, fmt.Errorf("fetch data of %s: %w", nodeID, graph.ErrNotFound)
	}
	table := DataTableName(parent)
	res := DataResult{Table: table}

	items, err := s.scan(ctx, OpFetchData, table)
	if err != nil {
		return res, err
	}
	center, err := s.store.AbsolutePosition(nodeID)
	if err != nil {
		return res, err
	}

	stamp := s.now().UTC().Format(time.RFC3339)
	step := 2 * math.Pi / float64(max(len(items), 1))
	nodes := make([]graph.Node, 0, len(items))
	edges := make([]graph.Edge, 0, len(items))
	for i, item := range items {
		angle := float64(i) * step
		id := fmt.Sprintf("data-%s-%s", nodeID, recordKey(item, i))

		n := graph.NewNode(id, graph.TypeDataItem).
			WithPosition(center.X+s.radius*math.Cos(angle), center.Y+s.radius*math.Sin(angle)).
			WithLabel(recordLabel(item, i))
		n.Data.Category = "Data"
		n.Data.Description = "Data item from " + table
		for k, v := range item {
			n.Data.Properties[k] = v
		}
		n.Data.Properties["isDataItem"] = true
		n.Data.Properties["parentNodeId"] = nodeID
		n.Data.Extra = map[string]any{
			"domain":    parent.Data.String("domain"),
			"app":       parent.Data.String("app"),
			"schema":    parent.Data.String("schema"),
			"tenantId":  parent.Data.String("tenantId"),
			"table":     table,
			"icon":      "Circle",
			"color":     "bg-blue-500",
			"shape":     "circle",
			"createdAt": stamp,
			"updatedAt": stamp,
		}
		nodes = append(nodes, *n)
		edges = append(edges, *graph.NewEdge("edge-"+nodeID+"-"+id, nodeID, id, "data").WithLabel("contains"))
	}

	s.store.Merge(nodes, edges)
	if err := s.store.UpdateNode(nodeID, graph.NodeUpdate{Properties: map[string]any{
		"dataCount":  len(items),
		"dataSource": table,
	}}); err != nil {
		return res, err
	}

	res.Count = len(items)
	s.logger.Info("data items loaded",
		slog.String("node_id", nodeID),
		slog.String("table", table),
		slog.Int("count", res.Count),
	)
	return res, nil
}

func recordKey(item map[string]any, index int) string {
	switch id := item["id"].(type) {
	case string:
		if id != "" {
			return id
		}
	case float64, int, int64:
		return fmt.Sprint(id)
	}
	return fmt.Sprint(index)
}

func recordLabel(item map[string]any, index int) string {
	if v := field.First(item, "name", "title", "label", "id"); v != "" {
		return v
	}
	return fmt.Sprintf("Item %d", index+1)
}

// AttachData scans table and stores its records on the node as the
// attachedData property, together with dataSource and dataCount.
func (s *Synchronizer) AttachData(ctx context.Context, nodeID, table string) (int, error) {
	if _, ok := s.store.Node(nodeID); !ok {
		return 0, fmt.Errorf("attach data to %s: %w", nodeID, graph.ErrNotFound)
	}
	items, err := s.scan(ctx, OpAttachData, table)
	if err != nil {
		return 0, err
	}

	records := make([]any, len(items))
	for i, item := range items {
		records[i] = item
	}
	if err := s.store.UpdateNode(nodeID, graph.NodeUpdate{Properties: map[string]any{
		"attachedData": records,
		"dataSource":   table,
		"dataCount":    len(records),
	}}); err != nil {
		return 0, err
	}
	return len(records), nil
}

// DefaultSearchLimit caps SearchNodes results when no limit is given.
const DefaultSearchLimit = 10

// NodeSummary is a search hit.
type NodeSummary struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// SearchNodes returns persisted nodes whose label or type contains query,
// ignoring case, in table order. An empty query matches every node.
func (s *Synchronizer) SearchNodes(ctx context.Context, query string, limit int) ([]NodeSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	nodes, err := s.scanNodes(ctx, OpSearch)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var out []NodeSummary
	for _, n := range nodes {
		label := n.Data.Label
		if label == "" {
			label = n.Type
		}
		if q != "" && !strings.Contains(strings.ToLower(label), q) && !strings.Contains(strings.ToLower(n.Type), q) {
			continue
		}
		out = append(out, NodeSummary{ID: n.ID, Label: label, Type: n.Type})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
