package canvas

import "errors"

// Sentinel errors for canvas interactions.
var (
	// ErrInvalidTransition indicates a drag event that does not fit the
	// node's current drag phase, e.g. a move without a start.
	ErrInvalidTransition = errors.New("invalid drag transition")

	// ErrSelfConnection indicates an attempt to connect a node to itself.
	ErrSelfConnection = errors.New("cannot connect a node to itself")

	// ErrConnectionRejected indicates that the configured connection rule
	// evaluated to false for the proposed edge.
	ErrConnectionRejected = errors.New("connection rejected by rule")

	// ErrNoContextMenu indicates a menu action with no context menu open.
	ErrNoContextMenu = errors.New("no context menu open")

	// ErrNoPersistence indicates an action that needs the backend on a
	// controller built without one.
	ErrNoPersistence = errors.New("no persistence configured")
)
