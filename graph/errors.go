package graph

import "errors"

// Sentinel errors for graph model operations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrDuplicateID indicates that a node or edge with the same id already
	// exists in the model. The existing element is left untouched.
	//
	// Example:
	//	if err := store.AddNode(node); errors.Is(err, graph.ErrDuplicateID) {
	//	    log.Warn("node already on canvas", "id", node.ID)
	//	}
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound indicates that the referenced node or edge does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidNode indicates that a node is missing required fields.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge indicates that an edge is missing required fields or
	// references nodes that are not present at insertion time.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrNotGroup indicates a parent assignment to a node that is not a group.
	ErrNotGroup = errors.New("parent is not a group node")

	// ErrCycle indicates that a parent assignment would make a node its own
	// ancestor. The assignment is rejected and the model is unchanged.
	ErrCycle = errors.New("parent assignment would create a cycle")

	// ErrInvalidProperty indicates a property name or kind rejected at the
	// edit boundary.
	ErrInvalidProperty = errors.New("invalid property")
)
