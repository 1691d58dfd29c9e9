// Package graph provides the in-memory graph model edited by the designer.
//
// A Model is a directed graph of nodes and edges plus free-form metadata.
// Nodes may be grouped: a node whose ParentID references a group node is
// positioned relative to that group's origin. The Store owns the canonical
// model for one designer session and exposes atomic mutations, selection
// state and a dirty flag that tracks unsaved changes.
//
// # Mutations
//
//	store := graph.NewStore()
//	_ = store.AddNode(*graph.NewNode("g1", graph.TypeGroup).WithSize(300, 200))
//	_ = store.AddNode(*graph.NewNode("n1", "decision").WithParent("g1").WithPosition(20, 20))
//	_ = store.AddEdge(*graph.NewEdge("e1", "n1", "g1", "flow"))
//
// Adding an id that already exists fails with ErrDuplicateID. Parent
// assignments that would make a node its own ancestor fail with ErrCycle.
// Deleting a node removes every edge that touches it; the children of a
// deleted group move up to the group's parent without changing their
// absolute placement.
//
// # Observing changes
//
// Subscribe registers a callback invoked after each mutation. Changes for
// which Structural returns true alter the node or edge set and are used to
// trigger auto-layout.
//
// # Persisted form
//
// NodeFromItem and Node.Item map between nodes and the flat documents kept by
// the key-value backend. Attributes the designer does not model are carried
// in NodeData.Extra and round-trip unchanged.
package graph
