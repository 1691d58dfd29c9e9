// Package layout computes automatic node placement for a designer canvas.
//
// The Adapter runs an Engine over the top-level nodes of a graph store and
// writes positions back in a single mutation. Layout failures never surface
// to callers; the canvas simply keeps its current arrangement. Viewport and
// Fit handle the screen transform and re-centering after a layout.
package layout
