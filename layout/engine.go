package layout

import (
	"context"
	"slices"

	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/graph"
)

// Box is a node to be placed. A zero size falls back to the engine's
// default box.
type Box struct {
	ID       string
	Position graph.Position
	Size     graph.Size
}

// Link is a directed dependency between two boxes.
type Link struct {
	Source string
	Target string
}

// Input is the graph handed to an Engine.
type Input struct {
	Nodes []Box
	Links []Link
}

// Engine computes top-left positions for every box in the input.
// Implementations must be deterministic for identical input.
type Engine interface {
	Layout(ctx context.Context, in Input) (map[string]graph.Position, error)
}

// Layered is a left-to-right layered engine.
//
// Cycles are broken by reversing DFS back edges, nodes are assigned to
// layers by longest path, layers are reordered with barycenter sweeps and
// coordinates are assigned on a fixed grid. Ties are broken by input order.
type Layered struct {
	NodeWidth    float64
	NodeHeight   float64
	NodeSpacing  float64
	LayerSpacing float64
	Padding      float64

	// Sweeps is the number of down/up barycenter passes.
	Sweeps int
}

// NewLayered creates a layered engine tuned by cfg. A nil cfg uses defaults.
func NewLayered(cfg *config.LayoutConfig) *Layered {
	return &Layered{
		NodeWidth:    cfg.GetNodeWidth(),
		NodeHeight:   cfg.GetNodeHeight(),
		NodeSpacing:  cfg.GetNodeSpacing(),
		LayerSpacing: cfg.GetLayerSpacing(),
		Padding:      cfg.GetPadding(),
		Sweeps:       4,
	}
}

// Layout implements Engine.
func (l *Layered) Layout(ctx context.Context, in Input) (map[string]graph.Position, error) {
	g := newDigraph(in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.breakCycles()
	layers := g.assignLayers()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := 0; i < l.Sweeps; i++ {
		g.sweep(layers, true)
		g.sweep(layers, false)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return l.place(in, g, layers), nil
}

func (l *Layered) sizeOf(b Box) graph.Size {
	sz := b.Size
	if sz.Width <= 0 {
		sz.Width = l.NodeWidth
	}
	if sz.Height <= 0 {
		sz.Height = l.NodeHeight
	}
	return sz
}

// place assigns coordinates: layers advance along x, members of a layer
// stack along y and each layer is centered on the tallest one.
func (l *Layered) place(in Input, g *digraph, layers [][]int) map[string]graph.Position {
	sizes := make([]graph.Size, len(in.Nodes))
	for i, b := range in.Nodes {
		sizes[i] = l.sizeOf(b)
	}

	extents := make([]float64, len(layers))
	var tallest float64
	for li, layer := range layers {
		var h float64
		for k, v := range layer {
			if k > 0 {
				h += l.NodeSpacing
			}
			h += sizes[v].Height
		}
		extents[li] = h
		tallest = max(tallest, h)
	}

	out := make(map[string]graph.Position, len(in.Nodes))
	x := l.Padding
	for li, layer := range layers {
		y := l.Padding + (tallest-extents[li])/2
		var width float64
		for _, v := range layer {
			out[g.ids[v]] = graph.Position{X: x, Y: y}
			y += sizes[v].Height + l.NodeSpacing
			width = max(width, sizes[v].Width)
		}
		x += width + l.LayerSpacing
	}
	return out
}

// digraph is the engine's working graph, indexed by input order.
type digraph struct {
	ids  []string
	succ [][]int
	pred [][]int
	pos  []int
}

func newDigraph(in Input) *digraph {
	g := &digraph{
		ids:  make([]string, 0, len(in.Nodes)),
		succ: make([][]int, len(in.Nodes)),
		pred: make([][]int, len(in.Nodes)),
		pos:  make([]int, len(in.Nodes)),
	}
	index := make(map[string]int, len(in.Nodes))
	for _, b := range in.Nodes {
		if _, dup := index[b.ID]; dup {
			continue
		}
		index[b.ID] = len(g.ids)
		g.ids = append(g.ids, b.ID)
	}
	g.succ = g.succ[:len(g.ids)]
	g.pred = g.pred[:len(g.ids)]
	g.pos = g.pos[:len(g.ids)]

	type pair struct{ u, v int }
	seen := make(map[pair]bool, len(in.Links))
	for _, e := range in.Links {
		u, okU := index[e.Source]
		v, okV := index[e.Target]
		if !okU || !okV || u == v || seen[pair{u, v}] {
			continue
		}
		seen[pair{u, v}] = true
		g.succ[u] = append(g.succ[u], v)
	}
	return g
}

// breakCycles reverses every DFS back edge so the graph becomes acyclic,
// then derives predecessor lists.
func (g *digraph) breakCycles() {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.ids))
	dag := make([][]int, len(g.ids))

	var visit func(u int)
	visit = func(u int) {
		color[u] = grey
		for _, v := range g.succ[u] {
			switch color[v] {
			case grey:
				if !slices.Contains(dag[v], u) {
					dag[v] = append(dag[v], u)
				}
			case white:
				dag[u] = append(dag[u], v)
				visit(v)
			default:
				if !slices.Contains(dag[u], v) {
					dag[u] = append(dag[u], v)
				}
			}
		}
		color[u] = black
	}
	for u := range g.ids {
		if color[u] == white {
			visit(u)
		}
	}

	g.succ = dag
	for u := range g.pred {
		g.pred[u] = nil
	}
	for u, vs := range g.succ {
		for _, v := range vs {
			g.pred[v] = append(g.pred[v], u)
		}
	}
}

// assignLayers places every node one layer after its deepest predecessor.
func (g *digraph) assignLayers() [][]int {
	indeg := make([]int, len(g.ids))
	for u := range g.ids {
		indeg[u] = len(g.pred[u])
	}
	queue := make([]int, 0, len(g.ids))
	for u := range g.ids {
		if indeg[u] == 0 {
			queue = append(queue, u)
		}
	}

	rank := make([]int, len(g.ids))
	for i := 0; i < len(queue); i++ {
		u := queue[i]
		for _, v := range g.succ[u] {
			rank[v] = max(rank[v], rank[u]+1)
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	var layers [][]int
	for u := range g.ids {
		for len(layers) <= rank[u] {
			layers = append(layers, nil)
		}
		layers[rank[u]] = append(layers[rank[u]], u)
	}
	for _, layer := range layers {
		for k, v := range layer {
			g.pos[v] = k
		}
	}
	return layers
}

// sweep reorders each layer by the mean position of its neighbors in the
// adjacent layers. Nodes without neighbors keep their current slot.
func (g *digraph) sweep(layers [][]int, down bool) {
	if len(layers) < 2 {
		return
	}
	order := make([]int, len(layers))
	for i := range order {
		order[i] = i
	}
	if !down {
		slices.Reverse(order)
	}

	for _, li := range order[1:] {
		layer := layers[li]
		bary := make(map[int]float64, len(layer))
		for _, v := range layer {
			neighbors := g.pred[v]
			if !down {
				neighbors = g.succ[v]
			}
			if len(neighbors) == 0 {
				bary[v] = float64(g.pos[v])
				continue
			}
			var sum float64
			for _, n := range neighbors {
				sum += float64(g.pos[n])
			}
			bary[v] = sum / float64(len(neighbors))
		}
		slices.SortStableFunc(layer, func(a, b int) int {
			switch {
			case bary[a] < bary[b]:
				return -1
			case bary[a] > bary[b]:
				return 1
			}
			return 0
		})
		for k, v := range layer {
			g.pos[v] = k
		}
	}
}
