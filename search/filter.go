package search

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate evaluated client-side over a hit's
// attribute map. The expression sees one variable, "doc", a map of the
// stored attributes, e.g. `doc.status == "approved" && doc.category == "review"`.
type Filter struct {
	Expression string
	program    cel.Program
}

// NewFilter compiles a CEL expression into a reusable attribute filter.
func NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		// Declare the variable holding the hit attributes to evaluate against.
		cel.Variable("doc", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %v", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return &Filter{
		Expression: expression,
		program:    p,
	}, nil
}

// Matches evaluates the compiled expression against one hit's attributes.
func (f *Filter) Matches(attributes map[string]string) (bool, error) {
	doc := make(map[string]any, len(attributes))
	for k, v := range attributes {
		doc[k] = v
	}
	out, _, err := f.program.Eval(map[string]any{
		"doc": doc,
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression: %v", err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(false))
	if err != nil {
		return false, fmt.Errorf("error ConvertToNative, got err: %v", err)
	}
	b, ok := nv.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a bool", f.Expression)
	}
	return b, nil
}
