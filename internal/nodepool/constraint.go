package nodepool

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/specialistvlad/dungeonjob/internal/node"
)

// Constraint is a compiled CEL predicate over a candidate node. The node is
// exposed to the expression as a map with the keys id, os, and label, e.g.
// `node.label.startsWith('gpu') && node.id != 'win-legacy'`.
type Constraint struct {
	Expression string
	program    cel.Program
}

// CompileConstraint parses and type-checks a constraint expression.
func CompileConstraint(expression string) (*Constraint, error) {
	env, err := cel.NewEnv(
		cel.Variable("node", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile constraint '%s': %w", expression, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("constraint '%s' must evaluate to bool, got %s", expression, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraint program: %w", err)
	}
	return &Constraint{Expression: expression, program: prg}, nil
}

// Allows reports whether the node satisfies the constraint. A nil constraint
// allows every node.
func (c *Constraint) Allows(n node.ExecutionNode) (bool, error) {
	if c == nil {
		return true, nil
	}
	out, _, err := c.program.Eval(map[string]any{
		"node": map[string]any{
			"id":    n.ID,
			"os":    string(n.OS),
			"label": n.Label,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate constraint on node '%s': %w", n.ID, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("constraint on node '%s' returned %T, want bool", n.ID, out.Value())
	}
	return ok, nil
}
