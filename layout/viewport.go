package layout

import (
	"math"

	"github.com/captify-io/designer/graph"
)

// Viewport maps canvas coordinates to the screen:
// screen = canvas*Zoom + (X, Y).
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Identity is the unscrolled, unzoomed viewport.
var Identity = Viewport{Zoom: 1}

// ScreenToCanvas converts a screen point to canvas space.
func (v Viewport) ScreenToCanvas(p graph.Position) graph.Position {
	z := v.zoom()
	return graph.Position{X: (p.X - v.X) / z, Y: (p.Y - v.Y) / z}
}

// CanvasToScreen converts a canvas point to screen space.
func (v Viewport) CanvasToScreen(p graph.Position) graph.Position {
	z := v.zoom()
	return graph.Position{X: p.X*z + v.X, Y: p.Y*z + v.Y}
}

func (v Viewport) zoom() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

// FitOptions bounds a fit-to-view computation.
type FitOptions struct {
	// Padding is the fraction of the content size kept free around it.
	Padding float64
	MinZoom float64
	MaxZoom float64
}

// DefaultFit matches the designer's fit-view behavior after a layout.
var DefaultFit = FitOptions{Padding: 0.3, MinZoom: 0.5, MaxZoom: 1.5}

// Fit returns the viewport that centers boxes on a screen of the given size,
// zoomed as far as the padding and zoom range allow. Boxes with no size use
// the engine default box of 180x60.
func Fit(boxes []Box, screenW, screenH float64, opts FitOptions) Viewport {
	if len(boxes) == 0 || screenW <= 0 || screenH <= 0 {
		return Identity
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, b := range boxes {
		w, h := b.Size.Width, b.Size.Height
		if w <= 0 {
			w = 180
		}
		if h <= 0 {
			h = 60
		}
		minX = min(minX, b.Position.X)
		minY = min(minY, b.Position.Y)
		maxX = max(maxX, b.Position.X+w)
		maxY = max(maxY, b.Position.Y+h)
	}

	contentW := (maxX - minX) * (1 + opts.Padding)
	contentH := (maxY - minY) * (1 + opts.Padding)
	zoom := math.Min(screenW/contentW, screenH/contentH)
	if opts.MinZoom > 0 {
		zoom = math.Max(zoom, opts.MinZoom)
	}
	if opts.MaxZoom > 0 {
		zoom = math.Min(zoom, opts.MaxZoom)
	}

	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	return Viewport{
		X:    screenW/2 - cx*zoom,
		Y:    screenH/2 - cy*zoom,
		Zoom: zoom,
	}
}
