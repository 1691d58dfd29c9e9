package canvas

import (
	"fmt"

	"github.com/captify-io/designer/graph"
	"github.com/google/cel-go/cel"
)

// ConnectionRule is a compiled CEL predicate over the proposed edge's
// endpoints. The expression sees two variables, source and target, holding
// each node's flat attribute map (id, type, label, properties, ...).
//
// Example:
//
//	source.type != target.type && target.type in source.allowedTargets
type ConnectionRule struct {
	expr string
	prg  cel.Program
}

// CompileConnectionRule parses and type-checks expr.
func CompileConnectionRule(expr string) (*ConnectionRule, error) {
	node := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("source", node),
		cel.Variable("target", node),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile connection rule %q: %w", expr, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build connection rule %q: %w", expr, err)
	}
	return &ConnectionRule{expr: expr, prg: prg}, nil
}

// String returns the rule source.
func (r *ConnectionRule) String() string {
	return r.expr
}

// Allows evaluates the rule for an edge from source to target.
func (r *ConnectionRule) Allows(source, target graph.Node) (bool, error) {
	src, err := source.Item()
	if err != nil {
		return false, err
	}
	tgt, err := target.Item()
	if err != nil {
		return false, err
	}
	for _, m := range []map[string]any{src, tgt} {
		for _, k := range []string{"allowedSources", "allowedTargets", "allowedConnectors"} {
			if _, ok := m[k]; !ok {
				m[k] = []any{}
			}
		}
		if _, ok := m["properties"]; !ok {
			m["properties"] = map[string]any{}
		}
	}

	out, _, err := r.prg.Eval(map[string]any{"source": src, "target": tgt})
	if err != nil {
		return false, fmt.Errorf("evaluate connection rule %q: %w", r.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("connection rule %q returned %T, want bool", r.expr, out.Value())
	}
	return allowed, nil
}
