package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ChangeKind identifies the kind of mutation reported to subscribers.
type ChangeKind string

const (
	NodeAdded        ChangeKind = "node_added"
	NodeUpdated      ChangeKind = "node_updated"
	NodeDeleted      ChangeKind = "node_deleted"
	EdgeAdded        ChangeKind = "edge_added"
	EdgeUpdated      ChangeKind = "edge_updated"
	EdgeDeleted      ChangeKind = "edge_deleted"
	ModelReplaced    ChangeKind = "model_replaced"
	SelectionChanged ChangeKind = "selection_changed"
	MetadataUpdated  ChangeKind = "metadata_updated"
)

// Change describes one mutation of the store.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Structural reports whether the change alters the node or edge set.
// Position and attribute edits are not structural.
func (c Change) Structural() bool {
	switch c.Kind {
	case NodeAdded, NodeDeleted, EdgeAdded, EdgeDeleted, ModelReplaced:
		return true
	}
	return false
}

// NodeUpdate is a partial update merged into an existing node.
// Nil fields are left unchanged. Properties are merged key by key; a nil
// value deletes the key.
type NodeUpdate struct {
	Type        *string
	Position    *Position
	Size        *Size
	Label       *string
	Description *string
	Category    *string
	Properties  map[string]any
	Extra       map[string]any
}

// EdgeUpdate is a partial update merged into an existing edge.
type EdgeUpdate struct {
	Type       *string
	Label      *string
	Properties map[string]any
}

// Store holds the canonical in-memory graph for one designer session.
//
// Node order is significant: it is the render order, so later nodes are
// drawn on top of earlier ones.
//
// Thread-safety: All methods are safe for concurrent use. Subscribers are
// invoked after the store lock is released and may read from the store.
type Store struct {
	mu       sync.RWMutex
	nodes    []Node
	nodeIdx  map[string]int
	edges    []Edge
	edgeIdx  map[string]int
	metadata map[string]any

	selectedNode string
	selectedEdge string
	dirty        bool
	rev          uint64

	subMu     sync.RWMutex
	subs      map[int]func(Change)
	nextSubID int
}

// NewStore creates an empty, clean store.
func NewStore() *Store {
	return &Store{
		nodeIdx:  make(map[string]int),
		edgeIdx:  make(map[string]int),
		metadata: make(map[string]any),
		subs:     make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) emit(changes ...Change) {
	s.subMu.RLock()
	fns := slices.Collect(maps.Values(s.subs))
	s.subMu.RUnlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// AddNode appends a node. It fails with ErrDuplicateID if the id is taken,
// leaving the existing node untouched.
func (s *Store) AddNode(n Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("add node: %w", err)
	}

	s.mu.Lock()
	if _, exists := s.nodeIdx[n.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("add node %s: %w", n.ID, ErrDuplicateID)
	}
	if n.ParentID != "" {
		if err := s.checkParentLocked(n.ID, n.ParentID); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("add node %s: %w", n.ID, err)
		}
	}
	s.nodes = append(s.nodes, n.Clone())
	s.nodeIdx[n.ID] = len(s.nodes) - 1
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: NodeAdded, ID: n.ID})
	return nil
}

// UpdateNode merges u into the node with the given id.
func (s *Store) UpdateNode(id string, u NodeUpdate) error {
	s.mu.Lock()
	i, ok := s.nodeIdx[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update node %s: %w", id, ErrNotFound)
	}
	n := &s.nodes[i]
	if u.Type != nil && n.IsGroup() && *u.Type != TypeGroup && s.hasChildrenLocked(id) {
		s.mu.Unlock()
		return fmt.Errorf("update node %s: group has children: %w", id, ErrNotGroup)
	}
	if u.Type != nil {
		n.Type = *u.Type
	}
	if u.Position != nil {
		n.Position = *u.Position
	}
	if u.Size != nil {
		sz := *u.Size
		n.Size = &sz
	}
	if u.Label != nil {
		n.Data.Label = *u.Label
	}
	if u.Description != nil {
		n.Data.Description = *u.Description
	}
	if u.Category != nil {
		n.Data.Category = *u.Category
	}
	n.Data.Properties = mergeBag(n.Data.Properties, u.Properties)
	n.Data.Extra = mergeBag(n.Data.Extra, u.Extra)
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: NodeUpdated, ID: id})
	return nil
}

func (s *Store) hasChildrenLocked(id string) bool {
	for _, n := range s.nodes {
		if n.ParentID == id {
			return true
		}
	}
	return false
}

// touchLocked records a mutation: the model is dirty and the revision moves.
func (s *Store) touchLocked() {
	s.dirty = true
	s.rev++
}

func mergeBag(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

// Resize sets a node's size. Children keep their relative positions even if
// they now fall outside the new bounds; they are re-evaluated on their next drag.
func (s *Store) Resize(id string, size Size) error {
	return s.UpdateNode(id, NodeUpdate{Size: &size})
}

// SetProperty validates p at the edit boundary and stores it in the node's
// property bag.
func (s *Store) SetProperty(id string, p Property) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.UpdateNode(id, NodeUpdate{Properties: map[string]any{p.Name: p.Value}})
}

// DeleteNode removes a node and every edge that references it.
//
// Children of a deleted group are re-parented to the group's own parent, with
// positions converted so that their absolute placement does not change.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	i, ok := s.nodeIdx[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete node %s: %w", id, ErrNotFound)
	}
	removed := s.nodes[i]

	changes := make([]Change, 0, 4)
	for j := range s.nodes {
		child := &s.nodes[j]
		if child.ParentID != id {
			continue
		}
		child.ParentID = removed.ParentID
		child.Position = child.Position.Add(removed.Position)
		if child.ParentID == "" {
			child.Extent = ""
		}
		changes = append(changes, Change{Kind: NodeUpdated, ID: child.ID})
	}

	s.nodes = slices.Delete(s.nodes, i, i+1)
	s.reindexNodesLocked()

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			if s.selectedEdge == e.ID {
				s.selectedEdge = ""
			}
			changes = append(changes, Change{Kind: EdgeDeleted, ID: e.ID})
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	s.reindexEdgesLocked()

	if s.selectedNode == id {
		s.selectedNode = ""
	}
	s.touchLocked()
	s.mu.Unlock()

	s.emit(append([]Change{{Kind: NodeDeleted, ID: id}}, changes...)...)
	return nil
}

// AddEdge appends an edge. Both endpoints must exist at insertion time.
func (s *Store) AddEdge(e Edge) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("add edge: %w", err)
	}

	s.mu.Lock()
	if _, exists := s.edgeIdx[e.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("add edge %s: %w", e.ID, ErrDuplicateID)
	}
	for _, end := range []string{e.Source, e.Target} {
		if _, ok := s.nodeIdx[end]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("add edge %s: endpoint %s: %w", e.ID, end, ErrNotFound)
		}
	}
	s.edges = append(s.edges, e.Clone())
	s.edgeIdx[e.ID] = len(s.edges) - 1
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: EdgeAdded, ID: e.ID})
	return nil
}

// UpdateEdge merges u into the edge with the given id.
func (s *Store) UpdateEdge(id string, u EdgeUpdate) error {
	s.mu.Lock()
	i, ok := s.edgeIdx[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update edge %s: %w", id, ErrNotFound)
	}
	e := &s.edges[i]
	if u.Type != nil {
		e.Type = *u.Type
	}
	if u.Label != nil {
		e.Label = *u.Label
	}
	e.Properties = mergeBag(e.Properties, u.Properties)
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: EdgeUpdated, ID: id})
	return nil
}

// DeleteEdge removes the edge with the given id.
func (s *Store) DeleteEdge(id string) error {
	s.mu.Lock()
	i, ok := s.edgeIdx[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete edge %s: %w", id, ErrNotFound)
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	s.reindexEdgesLocked()
	if s.selectedEdge == id {
		s.selectedEdge = ""
	}
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: EdgeDeleted, ID: id})
	return nil
}

// Reparent moves a node under parentID (or to the top level when parentID is
// empty) and sets its position in the new parent's frame. Parent, position
// and extent change together.
func (s *Store) Reparent(id, parentID string, position Position) error {
	s.mu.Lock()
	i, ok := s.nodeIdx[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("reparent %s: %w", id, ErrNotFound)
	}
	if parentID != "" {
		if err := s.checkParentLocked(id, parentID); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("reparent %s under %s: %w", id, parentID, err)
		}
	}
	n := &s.nodes[i]
	n.ParentID = parentID
	n.Position = position
	n.Extent = ""
	if parentID != "" {
		n.Extent = ExtentParent
	}
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: NodeUpdated, ID: id})
	return nil
}

// checkParentLocked validates a parent assignment: the parent must exist, be
// a group, and must not have id anywhere in its ancestor chain.
func (s *Store) checkParentLocked(id, parentID string) error {
	pi, ok := s.nodeIdx[parentID]
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	if !s.nodes[pi].IsGroup() {
		return ErrNotGroup
	}
	seen := map[string]bool{}
	for cur := parentID; cur != ""; {
		if cur == id || seen[cur] {
			return ErrCycle
		}
		seen[cur] = true
		ci, ok := s.nodeIdx[cur]
		if !ok {
			break
		}
		cur = s.nodes[ci].ParentID
	}
	return nil
}

// ApplyPositions sets the position of every listed node in one mutation.
// Unknown ids are ignored.
func (s *Store) ApplyPositions(positions map[string]Position) {
	s.mu.Lock()
	changes := make([]Change, 0, len(positions))
	for id, p := range positions {
		i, ok := s.nodeIdx[id]
		if !ok {
			continue
		}
		s.nodes[i].Position = p
		changes = append(changes, Change{Kind: NodeUpdated, ID: id})
	}
	if len(changes) > 0 {
		s.touchLocked()
	}
	s.mu.Unlock()

	s.emit(changes...)
}

// SetSelectedNode selects a node and clears any edge selection.
// An empty id clears the node selection.
func (s *Store) SetSelectedNode(id string) error {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.nodeIdx[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("select node %s: %w", id, ErrNotFound)
		}
		s.selectedEdge = ""
	}
	s.selectedNode = id
	s.mu.Unlock()

	s.emit(Change{Kind: SelectionChanged, ID: id})
	return nil
}

// SetSelectedEdge selects an edge and clears any node selection.
// An empty id clears the edge selection.
func (s *Store) SetSelectedEdge(id string) error {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.edgeIdx[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("select edge %s: %w", id, ErrNotFound)
		}
		s.selectedNode = ""
	}
	s.selectedEdge = id
	s.mu.Unlock()

	s.emit(Change{Kind: SelectionChanged, ID: id})
	return nil
}

// Selection returns the selected node and edge ids. At most one is non-empty.
func (s *Store) Selection() (nodeID, edgeID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedNode, s.selectedEdge
}

// SetModel replaces the whole model and marks the store dirty.
// It is used for imports; loads from persistence use ReplaceClean.
func (s *Store) SetModel(m Model) {
	s.replace(m, true)
}

// ReplaceClean replaces the whole model and clears the dirty flag.
func (s *Store) ReplaceClean(m Model) {
	s.replace(m, false)
}

func (s *Store) replace(m Model, dirty bool) {
	m = m.Clone()

	s.mu.Lock()
	s.nodes = s.nodes[:0]
	s.nodeIdx = make(map[string]int, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.Validate() != nil {
			continue
		}
		if _, dup := s.nodeIdx[n.ID]; dup {
			continue
		}
		s.nodes = append(s.nodes, n)
		s.nodeIdx[n.ID] = len(s.nodes) - 1
	}
	s.sanitizeParentsLocked()

	s.edges = s.edges[:0]
	s.edgeIdx = make(map[string]int, len(m.Edges))
	s.appendEdgesLocked(m.Edges)

	s.metadata = m.Metadata
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.selectedNode = ""
	s.selectedEdge = ""
	s.dirty = dirty
	s.rev++
	s.mu.Unlock()

	s.emit(Change{Kind: ModelReplaced})
}

// Merge adds nodes and edges that are not already present, skipping ids the
// model already has. Edges whose endpoints are missing are dropped. Merge does
// not change the dirty flag. It returns the number of nodes and edges added.
func (s *Store) Merge(nodes []Node, edges []Edge) (addedNodes, addedEdges int) {
	s.mu.Lock()
	changes := make([]Change, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		if n.Validate() != nil {
			continue
		}
		if _, exists := s.nodeIdx[n.ID]; exists {
			continue
		}
		s.nodes = append(s.nodes, n.Clone())
		s.nodeIdx[n.ID] = len(s.nodes) - 1
		changes = append(changes, Change{Kind: NodeAdded, ID: n.ID})
		addedNodes++
	}
	s.sanitizeParentsLocked()

	before := len(s.edges)
	s.appendEdgesLocked(edges)
	for _, e := range s.edges[before:] {
		changes = append(changes, Change{Kind: EdgeAdded, ID: e.ID})
	}
	addedEdges = len(s.edges) - before
	s.mu.Unlock()

	s.emit(changes...)
	return addedNodes, addedEdges
}

// appendEdgesLocked adds edges with unseen ids whose endpoints both exist.
func (s *Store) appendEdgesLocked(edges []Edge) {
	for _, e := range edges {
		if e.Validate() != nil {
			continue
		}
		if _, dup := s.edgeIdx[e.ID]; dup {
			continue
		}
		_, srcOK := s.nodeIdx[e.Source]
		_, tgtOK := s.nodeIdx[e.Target]
		if !srcOK || !tgtOK {
			continue
		}
		s.edges = append(s.edges, e.Clone())
		s.edgeIdx[e.ID] = len(s.edges) - 1
	}
}

// sanitizeParentsLocked detaches nodes whose parent reference is dangling,
// points at a non-group, or is part of a cycle.
func (s *Store) sanitizeParentsLocked() {
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.ParentID == "" {
			continue
		}
		if err := s.checkParentLocked(n.ID, n.ParentID); err != nil {
			n.ParentID = ""
			n.Extent = ""
		}
	}
}

func (s *Store) reindexNodesLocked() {
	s.nodeIdx = make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		s.nodeIdx[n.ID] = i
	}
}

func (s *Store) reindexEdgesLocked() {
	s.edgeIdx = make(map[string]int, len(s.edges))
	for i, e := range s.edges {
		s.edgeIdx[e.ID] = i
	}
}

// SetMetadata sets a metadata key. A nil value deletes it.
// Like any other mutation it marks the store dirty.
func (s *Store) SetMetadata(key string, value any) {
	s.mu.Lock()
	if value == nil {
		delete(s.metadata, key)
	} else {
		s.metadata[key] = value
	}
	s.touchLocked()
	s.mu.Unlock()

	s.emit(Change{Kind: MetadataUpdated, ID: key})
}

// Dirty reports whether the model has mutations not yet saved.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkClean clears the dirty flag unconditionally.
func (s *Store) MarkClean() {
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
}

// MarkCleanIf clears the dirty flag only if no mutation happened since rev
// was observed. It reports whether the store is now clean.
func (s *Store) MarkCleanIf(rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		return false
	}
	s.dirty = false
	return true
}

// Revision returns a counter that increases with every mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Snapshot returns a deep copy of the current model.
func (s *Store) Snapshot() Model {
	m, _ := s.SnapshotRevision()
	return m
}

// SnapshotRevision returns a deep copy of the current model together with
// the revision it reflects.
func (s *Store) SnapshotRevision() (Model, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Model{Nodes: s.nodes, Edges: s.edges, Metadata: s.metadata}.Clone(), s.rev
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.nodeIdx[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.edgeIdx[id]
	if !ok {
		return Edge{}, false
	}
	return s.edges[i].Clone(), true
}

// Nodes returns copies of all nodes in render order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns copies of all edges.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.Clone()
	}
	return out
}

// Counts returns the number of nodes and edges.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// Children returns the ids of the direct children of a node.
func (s *Store) Children(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, n := range s.nodes {
		if n.ParentID == id {
			out = append(out, n.ID)
		}
	}
	return out
}

// AbsolutePosition resolves a node's position in canvas space by walking its
// parent chain.
func (s *Store) AbsolutePosition(id string) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.absoluteLocked(id)
}

func (s *Store) absoluteLocked(id string) (Position, error) {
	i, ok := s.nodeIdx[id]
	if !ok {
		return Position{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	pos := s.nodes[i].Position
	seen := map[string]bool{id: true}
	for parent := s.nodes[i].ParentID; parent != ""; {
		pi, ok := s.nodeIdx[parent]
		if !ok || seen[parent] {
			break
		}
		seen[parent] = true
		pos = pos.Add(s.nodes[pi].Position)
		parent = s.nodes[pi].ParentID
	}
	return pos, nil
}
