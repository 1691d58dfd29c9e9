package layout

import (
	"context"
	"testing"

	"github.com/captify-io/designer/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxes(ids ...string) []Box {
	out := make([]Box, len(ids))
	for i, id := range ids {
		out[i] = Box{ID: id}
	}
	return out
}

func TestLayered_Chain(t *testing.T) {
	l := NewLayered(nil)
	in := Input{
		Nodes: boxes("a", "b", "c"),
		Links: []Link{{"a", "b"}, {"b", "c"}},
	}

	pos, err := l.Layout(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, pos, 3)

	// 180 wide boxes, 120 between layers, 100 padding.
	assert.Equal(t, graph.Position{X: 100, Y: 100}, pos["a"])
	assert.Equal(t, graph.Position{X: 400, Y: 100}, pos["b"])
	assert.Equal(t, graph.Position{X: 700, Y: 100}, pos["c"])
}

func TestLayered_FanOut(t *testing.T) {
	l := NewLayered(nil)
	in := Input{
		Nodes: boxes("root", "x", "y"),
		Links: []Link{{"root", "x"}, {"root", "y"}},
	}

	pos, err := l.Layout(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, pos["x"].X, pos["y"].X)
	assert.Greater(t, pos["x"].X, pos["root"].X)
	// Two 60-high boxes with 80 spacing in the second layer.
	assert.Equal(t, float64(100), pos["x"].Y)
	assert.Equal(t, float64(240), pos["y"].Y)
	// The single root is centered against the 200-high layer.
	assert.Equal(t, float64(170), pos["root"].Y)
}

func TestLayered_CycleAndIsolated(t *testing.T) {
	l := NewLayered(nil)
	in := Input{
		Nodes: boxes("a", "b", "c", "lonely"),
		Links: []Link{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "a"}, {"a", "ghost"}},
	}

	pos, err := l.Layout(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, pos, 4)

	assert.Less(t, pos["a"].X, pos["b"].X)
	assert.Less(t, pos["b"].X, pos["c"].X)
	assert.Equal(t, pos["a"].X, pos["lonely"].X)
}

func TestLayered_Deterministic(t *testing.T) {
	l := NewLayered(nil)
	in := Input{
		Nodes: boxes("a", "b", "c", "d", "e"),
		Links: []Link{{"a", "d"}, {"b", "c"}, {"a", "c"}, {"e", "d"}, {"b", "e"}},
	}

	first, err := l.Layout(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := l.Layout(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLayered_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLayered(nil).Layout(ctx, Input{Nodes: boxes("a")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLayered_Empty(t *testing.T) {
	pos, err := NewLayered(nil).Layout(context.Background(), Input{})
	require.NoError(t, err)
	assert.Empty(t, pos)
}
