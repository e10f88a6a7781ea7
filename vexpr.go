// Package vexpr provides an embeddable expression evaluation engine.
//
// Hosts hand the engine small arithmetic expressions written by end users
// ("$u * [1, 0.5, 0.2]", "noise > 0.5 ? $a : $b") and evaluate them many
// times against host-supplied variables. The pipeline is staged and lazy:
// parsing, binding and backend compilation each run at most once per
// source text, triggered by the first query that needs them.
//
// Two execution backends implement the same contract: a tree-walking
// interpreter available everywhere, and a native backend that lowers
// expressions to machine code via wazero's compiler engine on supported
// platforms. Hosts pick a strategy at construction; results are identical.
//
// # Quick Start
//
//	// Compile once, evaluate many times
//	vars := expr.VarMap{"u": types.NewScalarVar(func() float64 { return u })}
//	e, err := vexpr.Compile("$u * 2 + 1",
//	    expr.WithResolver(vars),
//	    expr.WithDesiredReturnType(types.Numeric(1)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i := 0; i < frames; i++ {
//	    u = float64(i) / float64(frames)
//	    out := e.EvalFP()
//	    _ = out[0]
//	}
//
// # Diagnostics
//
// Binding is fail-soft: one pass reports every unresolved reference and
// type mismatch with byte offsets into the source, so authoring tools can
// underline them all at once. [Compile] folds the diagnostics into a
// [CompileError]; hosts that prefer the query surface use [expr.New]
// directly and read [expr.Expression.Errors].
//
// # More Information
//
// For detailed documentation, see:
//   - Pipeline: github.com/sandrolain/vexpr/pkg/expr
//   - Parser: github.com/sandrolain/vexpr/pkg/parser
//   - Functions: github.com/sandrolain/vexpr/pkg/functions
//   - Types: github.com/sandrolain/vexpr/pkg/types
package vexpr

import (
	"fmt"
	"strings"

	"github.com/sandrolain/vexpr/pkg/expr"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Version returns the current version of the engine.
func Version() string {
	return "v0.1.0-dev"
}

// CompileError aggregates the diagnostics of an invalid expression.
type CompileError struct {
	Source      string
	Diagnostics []*types.Error
}

// Error renders every diagnostic on its own line.
func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vexpr: %d error(s) in expression", len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		fmt.Fprintf(&b, "\n  [%s] %s (offset %d..%d)", d.Code, d.Message, d.Start, d.End)
	}
	return b.String()
}

// Compile builds an expression for repeated evaluation, forcing the full
// pipeline eagerly. An invalid expression returns a *CompileError carrying
// every diagnostic.
//
// Example:
//
//	e, err := vexpr.Compile("$u * 2", expr.WithResolver(vars))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out := e.EvalFP()
func Compile(source string, opts ...expr.Option) (*expr.Expression, error) {
	e := expr.New(source, opts...)
	if !e.IsValid() {
		return nil, &CompileError{Source: source, Diagnostics: e.Errors()}
	}
	return e, nil
}

// MustCompile is like Compile but panics if the expression is invalid.
// It simplifies safe initialization of global variables.
func MustCompile(source string, opts ...expr.Option) *expr.Expression {
	e, err := Compile(source, opts...)
	if err != nil {
		panic(fmt.Sprintf("vexpr: Compile(%q): %v", source, err))
	}
	return e
}

// Eval compiles and evaluates a numeric expression in a single call.
// For repeated evaluations of the same expression, use Compile instead.
func Eval(source string, resolver expr.Resolver, opts ...expr.Option) ([]float64, error) {
	opts = append([]expr.Option{expr.WithResolver(resolver)}, opts...)
	e, err := Compile(source, opts...)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	out := e.EvalFP()
	// Detach the result from the expression's internal buffer.
	res := make([]float64, len(out))
	copy(res, out)
	return res, nil
}

// EvalString compiles and evaluates a string expression in a single call.
func EvalString(source string, resolver expr.Resolver, opts ...expr.Option) (string, error) {
	opts = append([]expr.Option{
		expr.WithResolver(resolver),
		expr.WithDesiredReturnType(types.StringType()),
	}, opts...)
	e, err := Compile(source, opts...)
	if err != nil {
		return "", err
	}
	defer e.Close()
	return e.EvalStr(), nil
}
