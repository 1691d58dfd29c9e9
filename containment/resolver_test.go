package containment

import (
	"testing"

	"github.com/captify-io/designer/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, nodes ...*graph.Node) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	for _, n := range nodes {
		require.NoError(t, s.AddNode(*n))
	}
	return s
}

func TestRect_Contains(t *testing.T) {
	r := Rect{X: 0, Y: 0, Width: 100, Height: 50}

	tests := []struct {
		name string
		p    graph.Position
		want bool
	}{
		{"inside", graph.Position{X: 50, Y: 25}, true},
		{"top left corner", graph.Position{X: 0, Y: 0}, true},
		{"bottom right corner", graph.Position{X: 100, Y: 50}, true},
		{"left of", graph.Position{X: -1, Y: 25}, false},
		{"below", graph.Position{X: 50, Y: 51}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.p))
		})
	}
}

func TestResolve(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g1", graph.TypeGroup).WithPosition(100, 100).WithSize(400, 300),
		graph.NewNode("g2", graph.TypeGroup).WithPosition(200, 200).WithSize(100, 100),
		graph.NewNode("n", "process").WithPosition(0, 0),
		graph.NewNode("note", graph.TypeAnnotation).WithPosition(0, 0),
	)
	r := NewResolver()

	tests := []struct {
		name string
		id   string
		pos  graph.Position
		want string
	}{
		{"outside every group", "n", graph.Position{X: 0, Y: 0}, ""},
		{"inside outer only", "n", graph.Position{X: 110, Y: 110}, "g1"},
		// center (250, 250) lies in both; g2 is later in render order.
		{"topmost wins", "n", graph.Position{X: 170, Y: 230}, "g2"},
		{"annotation never resolves", "note", graph.Position{X: 110, Y: 110}, ""},
		{"group never resolves", "g2", graph.Position{X: 110, Y: 110}, ""},
		{"unknown node", "ghost", graph.Position{X: 110, Y: 110}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(s, tt.id, tt.pos))
		})
	}
}

func TestResolve_DefaultGroupSize(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(0, 0),
		graph.NewNode("n", "process"),
	)
	r := NewResolver()

	// 300x200 group; a 160x40 node at (280, 0) has its center at (360, 20).
	assert.Equal(t, "g", r.Resolve(s, "n", graph.Position{X: 200, Y: 100}))
	assert.Empty(t, r.Resolve(s, "n", graph.Position{X: 280, Y: 0}))

	small := NewResolver(WithDefaultSizes(graph.Size{Width: 100, Height: 100}, graph.Size{Width: 10, Height: 10}))
	assert.Empty(t, small.Resolve(s, "n", graph.Position{X: 200, Y: 100}))
}

func TestCommit_AttachAndDetach(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(100, 100).WithSize(400, 300),
		graph.NewNode("n", "process").WithPosition(10, 10),
	)
	r := NewResolver()

	res, err := r.Commit(s, "n", graph.Position{X: 150, Y: 160})
	require.NoError(t, err)
	assert.True(t, res.Reparented)
	assert.Equal(t, "g", res.ParentID)
	assert.Equal(t, graph.Position{X: 50, Y: 60}, res.Position)

	n, _ := s.Node("n")
	assert.Equal(t, "g", n.ParentID)
	assert.Equal(t, graph.ExtentParent, n.Extent)
	abs, err := s.AbsolutePosition("n")
	require.NoError(t, err)
	assert.Equal(t, graph.Position{X: 150, Y: 160}, abs)

	// Drag out again: position returns to canvas space unchanged.
	res, err = r.Commit(s, "n", graph.Position{X: 900, Y: 900})
	require.NoError(t, err)
	assert.True(t, res.Reparented)
	assert.Empty(t, res.ParentID)

	n, _ = s.Node("n")
	assert.Empty(t, n.ParentID)
	assert.Empty(t, n.Extent)
	assert.Equal(t, graph.Position{X: 900, Y: 900}, n.Position)
}

func TestCommit_SymmetricRoundTrip(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(40, 60).WithSize(400, 300),
		graph.NewNode("n", "process").WithPosition(700, 700),
	)
	r := NewResolver()
	start, err := s.AbsolutePosition("n")
	require.NoError(t, err)

	_, err = r.Commit(s, "n", graph.Position{X: 100, Y: 100})
	require.NoError(t, err)
	_, err = r.Commit(s, "n", start)
	require.NoError(t, err)

	end, err := s.AbsolutePosition("n")
	require.NoError(t, err)
	assert.Equal(t, start, end)
	n, _ := s.Node("n")
	assert.Empty(t, n.ParentID)
}

func TestCommit_MoveWithinSameParent(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(100, 100).WithSize(400, 300),
		graph.NewNode("n", "process").WithPosition(10, 10).WithParent("g"),
	)

	res, err := NewResolver().Commit(s, "n", graph.Position{X: 200, Y: 200})
	require.NoError(t, err)
	assert.False(t, res.Reparented)
	assert.Equal(t, graph.Position{X: 100, Y: 100}, res.Position)
}

func TestCommit_GroupKeepsParent(t *testing.T) {
	s := newStore(t,
		graph.NewNode("outer", graph.TypeGroup).WithPosition(0, 0).WithSize(1000, 1000),
		graph.NewNode("inner", graph.TypeGroup).WithPosition(10, 10).WithParent("outer"),
		graph.NewNode("other", graph.TypeGroup).WithPosition(2000, 2000),
	)

	res, err := NewResolver().Commit(s, "inner", graph.Position{X: 2050, Y: 2050})
	require.NoError(t, err)
	assert.False(t, res.Reparented)
	assert.Equal(t, "outer", res.ParentID)
	assert.Equal(t, graph.Position{X: 2050, Y: 2050}, res.Position)
}

func TestCommit_GroupResizeDoesNotReparent(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(0, 0).WithSize(400, 300),
		graph.NewNode("n", "process").WithPosition(300, 200).WithParent("g"),
	)

	require.NoError(t, s.Resize("g", graph.Size{Width: 100, Height: 100}))
	n, _ := s.Node("n")
	assert.Equal(t, "g", n.ParentID)
	assert.Equal(t, graph.Position{X: 300, Y: 200}, n.Position)

	// The next drag-end re-evaluates containment against the new bounds.
	res, err := NewResolver().Commit(s, "n", graph.Position{X: 300, Y: 200})
	require.NoError(t, err)
	assert.True(t, res.Reparented)
	assert.Empty(t, res.ParentID)
}

type cycleModel struct {
	*graph.Store
	reject string
}

func (m cycleModel) Reparent(id, parentID string, pos graph.Position) error {
	if parentID == m.reject {
		return graph.ErrCycle
	}
	return m.Store.Reparent(id, parentID, pos)
}

func TestCommit_CycleKeepsParent(t *testing.T) {
	s := newStore(t,
		graph.NewNode("g", graph.TypeGroup).WithPosition(0, 0).WithSize(400, 300),
		graph.NewNode("n", "process").WithPosition(900, 900),
	)

	res, err := NewResolver().Commit(cycleModel{Store: s, reject: "g"}, "n", graph.Position{X: 10, Y: 10})
	require.NoError(t, err)
	assert.False(t, res.Reparented)
	assert.Empty(t, res.ParentID)

	n, _ := s.Node("n")
	assert.Equal(t, graph.Position{X: 10, Y: 10}, n.Position)
}

func TestCommit_UnknownNode(t *testing.T) {
	_, err := NewResolver().Commit(graph.NewStore(), "ghost", graph.Position{})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}
