package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/captify-io/designer"
	"github.com/captify-io/designer/graph"
	"github.com/chzyer/readline"
)

// errExit ends the REPL loop.
var errExit = errors.New("exit requested")

// repl executes designer commands typed one per line.
type repl struct {
	d   *designer.Designer
	out io.Writer
}

// run reads lines from rl until EOF or exit.
func (r *repl) run(ctx context.Context, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(r.out, "Use 'exit' or 'quit' to exit the program.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = r.exec(ctx, line)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(r.out, "Error:", err)
		}
		rl.SetPrompt(r.prompt())
	}
}

func (r *repl) prompt() string {
	if r.d.Store().Dirty() {
		return "designer* > "
	}
	return "designer > "
}

// parseArgs splits a line on spaces, keeping double-quoted runs together.
func parseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, char := range input {
		switch {
		case char == '"':
			inQuotes = !inQuotes
		case char == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

type command struct {
	usage string
	min   int
	run   func(r *repl, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"load":         {usage: "load [root id]", run: (*repl).load},
	"rels":         {usage: "rels <id>", min: 1, run: (*repl).rels},
	"add":          {usage: "add <type> [x y]", min: 1, run: (*repl).add},
	"menu":         {usage: "menu <screen x> <screen y> [node id]", min: 2, run: (*repl).menu},
	"create":       {usage: "create <type>", min: 1, run: (*repl).create},
	"search":       {usage: "search [query]", run: (*repl).search},
	"existing":     {usage: "existing <id>", min: 1, run: (*repl).existing},
	"connect":      {usage: "connect <source> <target>", min: 2, run: (*repl).connect},
	"move":         {usage: "move <id> <x> <y>", min: 3, run: (*repl).move},
	"select":       {usage: "select <node id>", min: 1, run: (*repl).selectNode},
	"select-edge":  {usage: "select-edge <edge id>", min: 1, run: (*repl).selectEdge},
	"clear":        {usage: "clear", run: (*repl).clear},
	"del":          {usage: "del", run: (*repl).del},
	"label":        {usage: "label <id> <text>", min: 2, run: (*repl).label},
	"resize":       {usage: "resize <id> <width> <height>", min: 3, run: (*repl).resize},
	"set":          {usage: "set <id> <name> <string|number|date|variable> [value]", min: 3, run: (*repl).set},
	"expand":       {usage: "expand <id>", min: 1, run: (*repl).expand},
	"attach":       {usage: "attach <id> <table>", min: 2, run: (*repl).attach},
	"create-table": {usage: "create-table <table>", min: 1, run: (*repl).createTable},
	"layout":       {usage: "layout", run: (*repl).layout},
	"fit":          {usage: "fit <width> <height>", min: 2, run: (*repl).fit},
	"show":         {usage: "show", run: (*repl).show},
	"save":         {usage: "save", run: (*repl).save},
	"export":       {usage: "export [file]", run: (*repl).export},
	"import":       {usage: "import <file>", min: 1, run: (*repl).importFile},
}

// help lists commands, so it is registered after the table exists.
func init() {
	commands["help"] = command{usage: "help", run: (*repl).help}
}

// exec runs one command line.
func (r *repl) exec(ctx context.Context, line string) error {
	args := parseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	if name == "exit" || name == "quit" {
		return errExit
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	if len(args) < cmd.min {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(r, ctx, args)
}

func (r *repl) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(r.out, "Available commands:")
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(r.out, "  exit")
	return nil
}

func parseFloats(args ...string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %s", a)
		}
		out[i] = f
	}
	return out, nil
}

func (r *repl) load(ctx context.Context, args []string) error {
	root := ""
	if len(args) > 0 {
		root = args[0]
	}
	if err := r.d.Load(ctx, root); err != nil {
		return err
	}
	nodes, edges := r.d.Store().Counts()
	fmt.Fprintf(r.out, "Loaded %d nodes, %d edges\n", nodes, edges)
	return nil
}

func (r *repl) rels(ctx context.Context, args []string) error {
	nodes, edges, err := r.d.LoadRelationships(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Added %d nodes, %d edges\n", nodes, edges)
	return nil
}

func (r *repl) add(_ context.Context, args []string) error {
	var pos graph.Position
	if len(args) >= 3 {
		xy, err := parseFloats(args[1], args[2])
		if err != nil {
			return err
		}
		pos = graph.Position{X: xy[0], Y: xy[1]}
	}
	n, err := r.d.Canvas().AddNode(args[0], pos)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Added", n.ID)
	return nil
}

func (r *repl) menu(_ context.Context, args []string) error {
	xy, err := parseFloats(args[0], args[1])
	if err != nil {
		return err
	}
	nodeID := ""
	if len(args) > 2 {
		nodeID = args[2]
	}
	m := r.d.Canvas().OpenContextMenu(graph.Position{X: xy[0], Y: xy[1]}, nodeID)
	fmt.Fprintf(r.out, "Menu open at canvas (%g, %g)\n", m.Canvas.X, m.Canvas.Y)
	return nil
}

func (r *repl) create(_ context.Context, args []string) error {
	n, err := r.d.Canvas().CreateNode(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Created", n.ID)
	return nil
}

func (r *repl) search(ctx context.Context, args []string) error {
	hits, err := r.d.Canvas().SearchMenu(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Fprintf(r.out, "  %s  %s (%s)\n", h.ID, h.Label, h.Type)
	}
	if len(hits) == 0 {
		fmt.Fprintln(r.out, "No matches")
	}
	return nil
}

func (r *repl) existing(ctx context.Context, args []string) error {
	n, err := r.d.Canvas().AddExistingNode(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Placed %s at (%g, %g)\n", n.ID, n.Position.X, n.Position.Y)
	return nil
}

func (r *repl) connect(_ context.Context, args []string) error {
	e, err := r.d.Canvas().Connect(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Connected", e.ID)
	return nil
}

func (r *repl) move(_ context.Context, args []string) error {
	xy, err := parseFloats(args[1], args[2])
	if err != nil {
		return err
	}
	c := r.d.Canvas()
	pos := graph.Position{X: xy[0], Y: xy[1]}
	if err := c.DragStart(args[0]); err != nil {
		return err
	}
	if _, err := c.DragMove(args[0], pos); err != nil {
		c.CancelDrag()
		return err
	}
	res, err := c.DragStop(args[0], pos)
	if err != nil {
		return err
	}
	switch {
	case res.Reparented && res.ParentID != "":
		fmt.Fprintf(r.out, "Moved %s into %s\n", args[0], res.ParentID)
	case res.Reparented:
		fmt.Fprintf(r.out, "Moved %s out to the canvas\n", args[0])
	default:
		fmt.Fprintf(r.out, "Moved %s\n", args[0])
	}
	return nil
}

func (r *repl) selectNode(_ context.Context, args []string) error {
	return r.d.Canvas().SelectNode(args[0])
}

func (r *repl) selectEdge(_ context.Context, args []string) error {
	return r.d.Canvas().SelectEdge(args[0])
}

func (r *repl) clear(_ context.Context, _ []string) error {
	r.d.Canvas().ClickPane()
	return nil
}

func (r *repl) del(_ context.Context, _ []string) error {
	nodeID, edgeID := r.d.Store().Selection()
	if nodeID == "" && edgeID == "" {
		return errors.New("nothing selected")
	}
	return r.d.Canvas().Delete()
}

func (r *repl) label(_ context.Context, args []string) error {
	text := strings.Join(args[1:], " ")
	return r.d.Store().UpdateNode(args[0], graph.NodeUpdate{Label: &text})
}

func (r *repl) resize(_ context.Context, args []string) error {
	wh, err := parseFloats(args[1], args[2])
	if err != nil {
		return err
	}
	return r.d.Store().Resize(args[0], graph.Size{Width: wh[0], Height: wh[1]})
}

func (r *repl) set(_ context.Context, args []string) error {
	kind := graph.PropertyKind(args[2])
	p := graph.NewProperty(args[1], kind)
	if len(args) > 3 {
		raw := strings.Join(args[3:], " ")
		p.Value = raw
		if kind == graph.KindNumber {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("not a number: %s", raw)
			}
			p.Value = f
		}
	}
	return r.d.Store().SetProperty(args[0], p)
}

func (r *repl) expand(ctx context.Context, args []string) error {
	res, err := r.d.Canvas().DoubleClick(ctx, args[0])
	if err != nil {
		return err
	}
	if res.Table == "" {
		fmt.Fprintln(r.out, "Nothing to expand")
		return nil
	}
	fmt.Fprintf(r.out, "Loaded %d items from %s\n", res.Count, res.Table)
	return nil
}

func (r *repl) attach(ctx context.Context, args []string) error {
	n, err := r.d.Synchronizer().AttachData(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Attached %d records\n", n)
	return nil
}

func (r *repl) createTable(ctx context.Context, args []string) error {
	if err := r.d.Synchronizer().CreateTable(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Created table", args[0])
	return nil
}

func (r *repl) layout(ctx context.Context, _ []string) error {
	if !r.d.AutoLayout(ctx) {
		fmt.Fprintln(r.out, "Layout unchanged")
		return nil
	}
	fmt.Fprintln(r.out, "Layout applied")
	return nil
}

func (r *repl) fit(_ context.Context, args []string) error {
	wh, err := parseFloats(args[0], args[1])
	if err != nil {
		return err
	}
	v := r.d.Canvas().FitView(wh[0], wh[1])
	fmt.Fprintf(r.out, "Viewport x=%.1f y=%.1f zoom=%.2f\n", v.X, v.Y, v.Zoom)
	return nil
}

func (r *repl) show(_ context.Context, _ []string) error {
	view := r.d.Canvas().Render()

	children := make(map[string][]int)
	for i, n := range view.Nodes {
		children[n.ParentID] = append(children[n.ParentID], i)
	}
	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, i := range children[parent] {
			n := view.Nodes[i]
			mark := " "
			if n.Selected {
				mark = "*"
			}
			label := n.Data.Label
			if label == "" {
				label = n.Type
			}
			fmt.Fprintf(r.out, "%s%s %s [%s] %q at (%g, %g)\n",
				strings.Repeat("  ", depth), mark, n.ID, n.Type, label, n.Absolute.X, n.Absolute.Y)
			if n.Banner != "" {
				fmt.Fprintf(r.out, "%s  ! %s\n", strings.Repeat("  ", depth), n.Banner)
			}
			walk(n.ID, depth+1)
		}
	}
	walk("", 0)

	for _, e := range view.Edges {
		mark := " "
		if e.Selected {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%s %s: %s -> %s [%s] %s\n", mark, e.ID, e.Source, e.Target, e.Type, e.Label)
	}
	nodes, edges := r.d.Store().Counts()
	fmt.Fprintf(r.out, "%d nodes, %d edges, dirty=%t\n", nodes, edges, r.d.Store().Dirty())
	return nil
}

func (r *repl) save(ctx context.Context, _ []string) error {
	if err := r.d.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Saved")
	return nil
}

func (r *repl) export(_ context.Context, args []string) error {
	data, err := r.d.Export()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}
	fmt.Fprintln(r.out, "Exported to", args[0])
	return nil
}

func (r *repl) importFile(_ context.Context, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := r.d.Import(data); err != nil {
		return err
	}
	nodes, edges := r.d.Store().Counts()
	fmt.Fprintf(r.out, "Imported %d nodes, %d edges\n", nodes, edges)
	return nil
}

// notifier prints persistence notifications for the interactive user.
type notifier struct {
	out io.Writer
}

func (n notifier) Error(op string, err error) {
	fmt.Fprintf(n.out, "! %s failed: %v\n", op, err)
}

func (n notifier) TableMissing(nodeID, table string) {
	fmt.Fprintf(n.out, "! table %s does not exist; run 'create-table %s' and expand %s again\n", table, table, nodeID)
}
