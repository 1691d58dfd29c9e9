// Package canvas turns pointer-level interactions into graph store
// mutations.
//
// A Controller tracks the drag, selection and context-menu state of one
// canvas. Drags are committed through the containment resolver when they
// stop; connections may be filtered by a CEL ConnectionRule; store errors
// surface as short-lived banners on the affected node and persistence
// failures go to a Notifier.
//
// Basic usage:
//
//	store := graph.NewStore()
//	ctrl := canvas.New(store, canvas.WithPersistence(sync))
//
//	ctrl.OpenContextMenu(graph.Position{X: 320, Y: 180}, "")
//	node, err := ctrl.CreateNode("decision")
//
// The controller never saves; callers decide when to persist.
package canvas
