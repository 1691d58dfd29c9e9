package designer_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/captify-io/designer"
	"github.com/captify-io/designer/graph"
)

func Example() {
	d, err := designer.New(designer.Session{UserID: "u-1"},
		designer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Close()

	c := d.Canvas()
	c.OpenContextMenu(graph.Position{X: 100, Y: 100}, "")
	group, _ := c.CreateNode(graph.TypeGroup)

	c.OpenContextMenu(graph.Position{X: 600, Y: 100}, "")
	node, _ := c.CreateNode("decision")

	// Drop the decision inside the group.
	_ = c.DragStart(node.ID)
	res, _ := c.DragStop(node.ID, graph.Position{X: 150, Y: 150})
	fmt.Println(res.ParentID == group.ID, res.Position)

	if err := d.Save(context.Background()); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("dirty:", d.Store().Dirty())

	// Output:
	// true {50 50}
	// dirty: false
}
