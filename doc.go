// Package designer is the core of the Captify graph designer: an editable
// graph of typed nodes and edges, with nested containment, automatic layout,
// and synchronization to a remote key-value store.
//
// # Core Concepts
//
// The module is organized around a handful of packages, all wired together
// by a Designer:
//
//   - graph: the canonical in-memory model (nodes, edges, selection, dirty flag)
//   - containment: decides which group a dragged node lands in
//   - layout: layered auto-layout and viewport fitting
//   - canvas: drag, selection, connection and context-menu interactions
//   - persist: load, save, export/import and data-item expansion
//   - kv: the get/scan/put backend contract and its adapters
//
// # Getting Started
//
// Create a designer for an authenticated session:
//
//	d, err := designer.New(designer.Session{UserID: "u-1", Email: "a@b.c", Token: token},
//		designer.WithConfigFile("designer.yaml"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	if err := d.Load(ctx, "agency"); err != nil {
//		log.Fatal(err)
//	}
//
// The canvas controller turns pointer events into model mutations:
//
//	c := d.Canvas()
//	c.OpenContextMenu(graph.Position{X: 320, Y: 180}, "")
//	node, _ := c.CreateNode("decision")
//	_, _ = c.Connect("agency", node.ID)
//
//	if d.Store().Dirty() {
//		err = d.Save(ctx)
//	}
//
// # Error Handling
//
// Package sentinels (graph.ErrNotFound, graph.ErrCycle, canvas.ErrSelfConnection)
// work with errors.Is. Designer methods return *Error values whose Kind
// categorizes the failure:
//
//	var derr *designer.Error
//	if errors.As(err, &derr) && derr.Kind == designer.KindPersistence {
//		// the backend rejected the request
//	}
//
// # Observability
//
// Loads, saves and layouts emit OpenTelemetry spans and metrics through the
// providers passed with WithTracerProvider and WithMeterProvider. Without
// them no-op providers are used.
//
// # Thread Safety
//
// All Designer methods are safe for concurrent use. Concurrent loads resolve
// last-issued-wins.
package designer
