// Package expr implements the staged expression pipeline.
//
// An [Expression] moves through three lazy stages:
//
//	Empty → Parsed → Prepared(Valid | Invalid)
//
// Parsing builds the tree and collects comment spans; preparing binds every
// variable and function reference through the host's [Resolver], infers the
// type of every node, and classifies thread safety. Both stages run at most
// once per source text: any query that needs a stage triggers it, and
// [Expression.SetExpr] discards all staged state.
//
// Parse and bind problems are never returned as Go errors from queries.
// They accumulate as [types.Error] diagnostics with source offsets, so an
// authoring host can batch-report every problem found in a single pass.
//
// An Expression is not safe for concurrent use without external locking.
// Distinct instances may be used concurrently, as may repeated evaluation of
// instances the host serializes itself; calls to functions classified
// thread-unsafe remain the host's responsibility to serialize (see
// [Expression.ThreadUnsafeFunctionCalls]).
//
// # Example
//
//	vars := expr.VarMap{"u": types.NewScalarVar(func() float64 { return 0.5 })}
//	e := expr.New("$u * 2", expr.WithResolver(vars), expr.WithDesiredReturnType(types.Numeric(1)))
//	if e.IsValid() {
//	    fmt.Println(e.EvalFP()[0]) // 1
//	}
package expr

import (
	"log/slog"
	"sort"

	"github.com/sandrolain/vexpr/pkg/functions"
	"github.com/sandrolain/vexpr/pkg/jit"
	"github.com/sandrolain/vexpr/pkg/parser"
	"github.com/sandrolain/vexpr/pkg/program"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Strategy selects the execution backend. It is fixed at construction; the
// platform default resolves to the native backend when available and to the
// interpreter otherwise, decided once, never at run time.
type Strategy uint8

const (
	StrategyDefault Strategy = iota
	StrategyInterpreter
	StrategyJIT
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyInterpreter:
		return "interpreter"
	case StrategyJIT:
		return "jit"
	default:
		return "default"
	}
}

// Resolver supplies external variables and functions during binding.
//
// ResolveVariable is called at most once per distinct name per prepare pass;
// returning nil makes the reference a bind error and the expression invalid.
// ResolveFunction may return nil to fall through to the built-in library.
// Returned references remain owned by the host; the pipeline borrows them
// for the duration of an evaluation only.
type Resolver interface {
	ResolveVariable(name string) types.VarRef
	ResolveFunction(name string) *functions.Def
}

// VarMap is a Resolver backed by a map of variable references, with function
// resolution falling through to the built-in library.
type VarMap map[string]types.VarRef

// ResolveVariable implements Resolver.
func (m VarMap) ResolveVariable(name string) types.VarRef { return m[name] }

// ResolveFunction implements Resolver.
func (m VarMap) ResolveFunction(name string) *functions.Def { return nil }

// state is the pipeline stage an Expression has reached.
type state uint8

const (
	stateEmpty state = iota
	stateParsed
	statePrepared
)

// Compiled is the runnable form a backend produces for a prepared
// expression. Run results are read-only and valid until the next run.
type Compiled interface {
	RunFP() []float64
	RunStr() string
	Close() error
}

// Expression is the staged compilation pipeline for one expression source.
type Expression struct {
	source   string
	desired  types.TypeDescriptor
	strategy Strategy
	useJIT   bool // resolved from strategy at construction
	resolver Resolver
	logger   *slog.Logger
	maxDepth int

	// staged state, discarded by SetExpr
	st        state
	root      *types.ASTNode
	arena     *types.NodeArena
	errs      []*types.Error
	comments  []types.Comment
	varNames  map[string]struct{}
	funcNames map[string]struct{}
	valid     bool
	retType   types.TypeDescriptor

	// binding results
	refs        []boundVar
	callDefs    []*functions.Def
	nLocals     int
	unsafeCalls []string

	// execution state
	prog     *program.Program
	compiled Compiled
	backend  string
}

// boundVar is one distinct external variable in first-encounter order.
type boundVar struct {
	name string
	ref  types.VarRef
}

// Option configures an Expression at construction.
type Option func(*Expression)

// WithDesiredReturnType sets the host's return type hint.
// The default is Numeric(3).
func WithDesiredReturnType(t types.TypeDescriptor) Option {
	return func(e *Expression) { e.desired = t }
}

// WithStrategy selects the execution backend.
func WithStrategy(s Strategy) Option {
	return func(e *Expression) { e.strategy = s }
}

// WithResolver sets the host resolver consulted during binding.
func WithResolver(r Resolver) Option {
	return func(e *Expression) { e.resolver = r }
}

// WithLogger sets a structured logger for stage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Expression) { e.logger = l }
}

// WithMaxDepth sets the maximum parse nesting depth.
func WithMaxDepth(depth int) Option {
	return func(e *Expression) { e.maxDepth = depth }
}

// New creates an Expression for the given source text. The expression is
// not parsed until a query requires it.
func New(source string, opts ...Option) *Expression {
	e := &Expression{
		source:   source,
		desired:  types.Numeric(3),
		maxDepth: 100,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	// Resolve the backend once. StrategyJIT on an unsupported platform
	// falls over to the interpreter here, not at run time.
	switch e.strategy {
	case StrategyJIT, StrategyDefault:
		e.useJIT = jit.Available()
	default:
		e.useJIT = false
	}
	return e
}

// SetExpr replaces the source text, unconditionally resetting the pipeline
// to the unparsed state and discarding all cached trees, diagnostics,
// usage sets and compiled code.
func (e *Expression) SetExpr(source string) {
	e.source = source
	e.invalidate()
}

// Reset forces a full re-parse and re-bind without changing the text.
func (e *Expression) Reset() {
	e.invalidate()
}

// SetDesiredReturnType updates the host's return type hint, resetting any
// staged state so the next query re-binds against it.
func (e *Expression) SetDesiredReturnType(t types.TypeDescriptor) {
	e.desired = t
	e.invalidate()
}

func (e *Expression) invalidate() {
	if e.compiled != nil {
		if err := e.compiled.Close(); err != nil {
			e.logger.Warn("closing compiled expression", slog.String("error", err.Error()))
		}
	}
	e.st = stateEmpty
	e.root = nil
	e.arena = nil
	e.errs = nil
	e.comments = nil
	e.varNames = nil
	e.funcNames = nil
	e.valid = false
	e.retType = types.TypeDescriptor{}
	e.refs = nil
	e.callDefs = nil
	e.nLocals = 0
	e.unsafeCalls = nil
	e.prog = nil
	e.compiled = nil
	e.backend = ""
}

// GetExpr returns the source text the expression is set to evaluate.
func (e *Expression) GetExpr() string { return e.source }

// DesiredReturnType returns the host's return type hint.
func (e *Expression) DesiredReturnType() types.TypeDescriptor { return e.desired }

// WantVec reports whether the host asked for a vector result.
func (e *Expression) WantVec() bool {
	return e.desired.IsNumeric() && e.desired.Dim > 1
}

// SyntaxOK reports whether the source parses. Triggers parsing.
func (e *Expression) SyntaxOK() bool {
	e.parseIfNeeded()
	return e.root != nil
}

// IsValid reports whether the expression parsed and every reference bound
// with consistent types. Triggers parsing and binding.
func (e *Expression) IsValid() bool {
	e.prepIfNeeded()
	return e.valid
}

// IsConstant reports whether the expression references no external
// variables and calls no functions, i.e. depends only on literals.
// Triggers parsing only; no binding is required.
func (e *Expression) IsConstant() bool {
	e.parseIfNeeded()
	return e.root != nil && len(e.varNames) == 0 && len(e.funcNames) == 0
}

// UsesVar reports whether the expression references the named external
// variable. Triggers parsing only.
func (e *Expression) UsesVar(name string) bool {
	e.parseIfNeeded()
	_, ok := e.varNames[name]
	return ok
}

// UsesFunc reports whether the expression calls the named function.
// Triggers parsing only.
func (e *Expression) UsesFunc(name string) bool {
	e.parseIfNeeded()
	_, ok := e.funcNames[name]
	return ok
}

// UsedVars returns the referenced external variable names, sorted.
func (e *Expression) UsedVars() []string {
	e.parseIfNeeded()
	return sortedKeys(e.varNames)
}

// UsedFuncs returns the called function names, sorted.
func (e *Expression) UsedFuncs() []string {
	e.parseIfNeeded()
	return sortedKeys(e.funcNames)
}

// IsThreadSafe reports whether the expression avoids functions classified
// thread-unsafe. Triggers binding.
func (e *Expression) IsThreadSafe() bool {
	e.prepIfNeeded()
	return len(e.unsafeCalls) == 0
}

// ThreadUnsafeFunctionCalls returns the names of thread-unsafe functions
// called by the expression, one entry per call site in source order. The
// pipeline only reports them; serializing the calls is the host's
// responsibility.
func (e *Expression) ThreadUnsafeFunctionCalls() []string {
	e.prepIfNeeded()
	return e.unsafeCalls
}

// ReturnType returns the inferred result type. Triggers binding.
func (e *Expression) ReturnType() types.TypeDescriptor {
	e.prepIfNeeded()
	return e.retType
}

// IsVec reports whether the expression computes a vector. May be false even
// when WantVec is true. Triggers binding.
func (e *Expression) IsVec() bool {
	e.prepIfNeeded()
	return e.retType.IsNumeric() && e.retType.Dim > 1
}

// Errors returns all diagnostics collected so far, in encounter order, with
// offsets into the exact source text. Triggers parsing and binding.
func (e *Expression) Errors() []*types.Error {
	e.prepIfNeeded()
	return e.errs
}

// Comments returns the comment spans of the source, in order, regardless of
// whether it parses. Triggers parsing.
func (e *Expression) Comments() []types.Comment {
	e.parseIfNeeded()
	return e.comments
}

// Backend returns the name of the backend that compiled the expression, or
// the empty string before first evaluation.
func (e *Expression) Backend() string { return e.backend }

// EvalFP evaluates the expression and returns a read-only numeric buffer of
// length equal to the return dimension, valid until the next evaluation or
// SetExpr. Evaluating an invalid expression returns nil; calling EvalFP on
// a string-typed expression is a contract violation and panics — check
// ReturnType first.
func (e *Expression) EvalFP() []float64 {
	e.prepIfNeeded()
	if !e.valid {
		return nil
	}
	if e.retType.IsString() {
		panic("vexpr: EvalFP called on string expression; check ReturnType")
	}
	e.compileIfNeeded()
	return e.compiled.RunFP()
}

// EvalStr evaluates the expression and returns its string result, valid
// until the next evaluation or SetExpr. Evaluating an invalid expression
// returns the empty string; calling EvalStr on a numeric expression is a
// contract violation and panics.
func (e *Expression) EvalStr() string {
	e.prepIfNeeded()
	if !e.valid {
		return ""
	}
	if !e.retType.IsString() {
		panic("vexpr: EvalStr called on numeric expression; check ReturnType")
	}
	e.compileIfNeeded()
	return e.compiled.RunStr()
}

// Close releases backend resources held by the compiled form, if any.
// The expression remains usable; the next evaluation recompiles.
func (e *Expression) Close() error {
	if e.compiled == nil {
		return nil
	}
	err := e.compiled.Close()
	e.compiled = nil
	e.backend = ""
	return err
}

// parseIfNeeded runs the parse stage at most once per text generation.
func (e *Expression) parseIfNeeded() {
	if e.st >= stateParsed {
		return
	}
	res := parser.Parse(e.source, parser.WithMaxDepth(e.maxDepth))
	e.root = res.Root
	e.arena = res.Arena
	e.comments = res.Comments
	e.errs = res.Errors
	e.varNames = make(map[string]struct{})
	e.funcNames = make(map[string]struct{})
	collectUsage(e.root, map[string]struct{}{}, e.varNames, e.funcNames)
	e.st = stateParsed

	e.logger.Debug("expression parsed",
		slog.Bool("syntax_ok", e.root != nil),
		slog.Int("errors", len(e.errs)),
		slog.Int("comments", len(e.comments)),
	)
}

// prepIfNeeded runs the bind stage at most once per text generation.
// Binding is fail-soft: it continues across the whole tree so a single pass
// collects every problem.
func (e *Expression) prepIfNeeded() {
	if e.st >= statePrepared {
		return
	}
	e.parseIfNeeded()

	if e.root == nil {
		e.valid = false
		e.retType = types.ErrorType()
		e.st = statePrepared
		return
	}

	b := &binder{ex: e, locals: make(map[string]localInfo)}
	t := b.bind(e.root)

	if !t.IsError() && t.Kind != e.desired.Kind {
		e.addError(types.ErrReturnIncompat,
			"Expression returns "+t.String()+" but "+e.desired.String()+" was requested",
			e.root.Start, e.root.End)
		t = types.ErrorType()
	}

	e.retType = t
	e.valid = len(e.errs) == 0
	e.st = statePrepared

	e.logger.Debug("expression prepared",
		slog.Bool("valid", e.valid),
		slog.String("return_type", e.retType.String()),
		slog.Int("errors", len(e.errs)),
		slog.Int("thread_unsafe_calls", len(e.unsafeCalls)),
	)
}

// compileIfNeeded builds the slot program and hands it to the resolved
// backend. Only reachable from a Prepared(Valid) expression.
func (e *Expression) compileIfNeeded() {
	if e.compiled != nil {
		return
	}
	e.prog = buildProgram(e)
	e.compiled, e.backend = compileBackend(e.prog, e.useJIT, e.logger)
}

// addError appends a bind diagnostic.
func (e *Expression) addError(code types.ErrorCode, message string, start, end int) {
	e.errs = append(e.errs, types.NewError(code, message, start, end))
}

// collectUsage walks the tree gathering external variable and function
// names. Locally assigned variables are tracked per block and excluded.
func collectUsage(n *types.ASTNode, locals, vars, funcs map[string]struct{}) {
	if n == nil {
		return
	}
	switch n.Type {
	case types.NodeVariable:
		if _, ok := locals[n.Value]; !ok {
			vars[n.Value] = struct{}{}
		}
		return
	case types.NodeCall:
		funcs[n.Value] = struct{}{}
	case types.NodeBlock:
		for _, stmt := range n.Arguments {
			if stmt.Type == types.NodeAssign {
				collectUsage(stmt.LHS, locals, vars, funcs)
				locals[stmt.Value] = struct{}{}
				continue
			}
			collectUsage(stmt, locals, vars, funcs)
		}
		return
	}
	collectUsage(n.Cond, locals, vars, funcs)
	collectUsage(n.LHS, locals, vars, funcs)
	collectUsage(n.RHS, locals, vars, funcs)
	for _, a := range n.Arguments {
		collectUsage(a, locals, vars, funcs)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
