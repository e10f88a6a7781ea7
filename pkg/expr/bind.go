package expr

import (
	"fmt"

	"github.com/sandrolain/vexpr/pkg/functions"
	"github.com/sandrolain/vexpr/pkg/types"
)

// localInfo tracks one block-local variable: its inferred type and the
// storage index assigned in definition order.
type localInfo struct {
	typ   types.TypeDescriptor
	index int
}

// binder performs the fail-soft bind pass: it resolves every reference,
// infers a type for every node, and keeps descending after errors so one
// pass reports them all. A node whose operands already failed propagates
// the error type silently rather than stacking derived diagnostics on the
// same root cause.
type binder struct {
	ex       *Expression
	locals   map[string]localInfo
	seenVars map[string]int // name -> index into ex.refs
}

// bind infers and records the type of n, returning it.
func (b *binder) bind(n *types.ASTNode) types.TypeDescriptor {
	var t types.TypeDescriptor
	switch n.Type {
	case types.NodeNumber:
		t = types.Numeric(1).WithVariability(types.Constant)
	case types.NodeString:
		t = types.StringType().WithVariability(types.Constant)
	case types.NodeVariable:
		t = b.bindVariable(n)
	case types.NodeUnary:
		t = b.bindUnary(n)
	case types.NodeBinary:
		t = b.bindBinary(n)
	case types.NodeCond:
		t = b.bindCond(n)
	case types.NodeVector:
		t = b.bindVector(n)
	case types.NodeCall:
		t = b.bindCall(n)
	case types.NodeAssign:
		t = b.bindAssign(n)
	case types.NodeBlock:
		t = b.bindBlock(n)
	default:
		t = types.ErrorType()
	}
	n.TypeDesc = t
	return t
}

// bindVariable resolves a reference, preferring block locals. Each distinct
// external name is resolved through the host at most once per pass.
func (b *binder) bindVariable(n *types.ASTNode) types.TypeDescriptor {
	if li, ok := b.locals[n.Value]; ok {
		n.LocalIndex = li.index
		return li.typ
	}
	n.LocalIndex = -1

	if b.seenVars == nil {
		b.seenVars = make(map[string]int)
	}
	if idx, ok := b.seenVars[n.Value]; ok {
		n.Ref = b.ex.refs[idx].ref
		return n.Ref.Type()
	}

	var ref types.VarRef
	if b.ex.resolver != nil {
		ref = b.ex.resolver.ResolveVariable(n.Value)
	}
	if ref == nil {
		b.errorf(n, types.ErrUnknownVariable, "Unknown variable %q", n.Value)
		return types.ErrorType()
	}
	b.seenVars[n.Value] = len(b.ex.refs)
	b.ex.refs = append(b.ex.refs, boundVar{name: n.Value, ref: ref})
	n.Ref = ref
	return ref.Type()
}

func (b *binder) bindUnary(n *types.ASTNode) types.TypeDescriptor {
	t := b.bind(n.LHS)
	if t.IsError() {
		return t
	}
	switch n.Value {
	case "!":
		if !t.IsScalar() {
			b.errorf(n, types.ErrWantScalar, "Operand of ! must be a scalar number, got %s", t.String())
			return types.ErrorType()
		}
		return types.Numeric(1).WithVariability(t.Variability)
	default: // "-"
		if !t.IsNumeric() {
			b.errorf(n, types.ErrTypeMismatch, "Operand of %s must be numeric, got %s", n.Value, t.String())
			return types.ErrorType()
		}
		return t
	}
}

func (b *binder) bindBinary(n *types.ASTNode) types.TypeDescriptor {
	l := b.bind(n.LHS)
	r := b.bind(n.RHS)
	if l.IsError() || r.IsError() {
		return types.ErrorType()
	}

	switch n.Value {
	case "+", "-", "*", "/", "%", "^":
		if !l.IsNumeric() || !r.IsNumeric() {
			b.errorf(n, types.ErrTypeMismatch, "Operands of %s must be numeric, got %s and %s", n.Value, l.String(), r.String())
			return types.ErrorType()
		}
		u := types.Unify(l, r)
		if u.IsError() {
			b.errorf(n, types.ErrTypeMismatch, "Vector dimensions mismatch in %s (%d vs %d)", n.Value, l.Dim, r.Dim)
		}
		return u

	case "==", "!=":
		if l.IsString() && r.IsString() {
			return types.Numeric(1).WithVariability(types.Unify(l, r).Variability)
		}
		if !l.IsScalar() || !r.IsScalar() {
			b.errorf(n, types.ErrWantScalar, "Operands of %s must both be scalar numbers or both strings, got %s and %s", n.Value, l.String(), r.String())
			return types.ErrorType()
		}
		return types.Numeric(1).WithVariability(types.Unify(l, r).Variability)

	default: // comparisons and logical operators
		if !l.IsScalar() || !r.IsScalar() {
			b.errorf(n, types.ErrWantScalar, "Operands of %s must be scalar numbers, got %s and %s", n.Value, l.String(), r.String())
			return types.ErrorType()
		}
		return types.Numeric(1).WithVariability(types.Unify(l, r).Variability)
	}
}

// bindCond types a conditional. Both branches are typed and unified; the
// result adopts the dominant variability of all three operands.
func (b *binder) bindCond(n *types.ASTNode) types.TypeDescriptor {
	c := b.bind(n.Cond)
	l := b.bind(n.LHS)
	r := b.bind(n.RHS)

	if !c.IsError() && !c.IsScalar() {
		b.errorf(n.Cond, types.ErrWantScalar, "Condition must be a scalar number, got %s", c.String())
		c = types.ErrorType()
	}
	if c.IsError() || l.IsError() || r.IsError() {
		return types.ErrorType()
	}

	u := types.Unify(l, r)
	if u.IsError() {
		b.errorf(n, types.ErrTypeMismatch, "Branches of conditional have incompatible types (%s vs %s)", l.String(), r.String())
		return u
	}
	if c.Variability == types.Varying {
		u = u.WithVariability(types.Varying)
	}
	return u
}

func (b *binder) bindVector(n *types.ASTNode) types.TypeDescriptor {
	variability := types.Constant
	failed := false
	for _, comp := range n.Arguments {
		t := b.bind(comp)
		if t.IsError() {
			failed = true
			continue
		}
		if !t.IsScalar() {
			b.errorf(comp, types.ErrWantScalar, "Vector component must be a scalar number, got %s", t.String())
			failed = true
			continue
		}
		if t.Variability == types.Varying {
			variability = types.Varying
		}
	}
	if failed {
		return types.ErrorType()
	}
	return types.Numeric(len(n.Arguments)).WithVariability(variability)
}

// bindCall resolves a function through the host resolver, falling through
// to the built-in library. Arguments are always bound, even when the
// function itself is unknown, so their problems surface in the same pass.
// Thread-unsafe calls are recorded here, one entry per call site, which
// yields source order because binding walks the tree pre-order.
func (b *binder) bindCall(n *types.ASTNode) types.TypeDescriptor {
	var def *functions.Def
	if b.ex.resolver != nil {
		def = b.ex.resolver.ResolveFunction(n.Value)
	}
	if def == nil {
		if builtin, ok := functions.Lookup(n.Value); ok {
			def = builtin
		}
	}
	if def != nil && !def.ThreadSafe {
		b.ex.unsafeCalls = append(b.ex.unsafeCalls, n.Value)
	}

	argTypes := make([]types.TypeDescriptor, len(n.Arguments))
	argsFailed := false
	for i, a := range n.Arguments {
		argTypes[i] = b.bind(a)
		if argTypes[i].IsError() {
			argsFailed = true
		}
	}

	if def == nil {
		b.errorf(n, types.ErrUnknownFunction, "Unknown function %q", n.Value)
		return types.ErrorType()
	}
	if !def.AcceptsArgs(len(n.Arguments)) {
		b.errorf(n, types.ErrArgumentCount, "Function %q expects %s, got %d",
			n.Value, def.ArityString(), len(n.Arguments))
		return types.ErrorType()
	}
	if argsFailed {
		return types.ErrorType()
	}

	ret := def.Return(argTypes)
	if ret.IsError() {
		b.errorf(n, types.ErrTypeMismatch, "Invalid argument types for function %q", n.Value)
		return ret
	}

	n.CallIndex = len(b.ex.callDefs)
	b.ex.callDefs = append(b.ex.callDefs, def)
	return ret
}

// bindAssign types a local definition. Later assignments to the same name
// shadow earlier ones; each definition gets its own storage index.
func (b *binder) bindAssign(n *types.ASTNode) types.TypeDescriptor {
	t := b.bind(n.LHS)
	if t.IsString() {
		b.errorf(n, types.ErrBadAssignment, "Cannot assign a string to local variable %q", n.Value)
		t = types.ErrorType()
	}
	n.LocalIndex = b.ex.nLocals
	b.locals[n.Value] = localInfo{typ: t, index: n.LocalIndex}
	b.ex.nLocals++
	return t
}

// bindBlock types an assignment block; its type is the result expression's.
func (b *binder) bindBlock(n *types.ASTNode) types.TypeDescriptor {
	last := len(n.Arguments) - 1
	for _, stmt := range n.Arguments[:last] {
		b.bind(stmt)
	}
	return b.bind(n.Arguments[last])
}

func (b *binder) errorf(n *types.ASTNode, code types.ErrorCode, format string, args ...any) {
	b.ex.addError(code, fmt.Sprintf(format, args...), n.Start, n.End)
}
