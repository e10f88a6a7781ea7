package expr

import (
	"github.com/sandrolain/vexpr/pkg/functions"
	"github.com/sandrolain/vexpr/pkg/program"
	"github.com/sandrolain/vexpr/pkg/types"
)

// progBuilder lowers a bound tree to the slot program. Slot assignment is a
// single pass: every node gets a destination, external variables get theirs
// in a prologue of load instructions so each distinct variable is read from
// the host exactly once per run, and locals alias the slot of their
// definition's value rather than copying it.
type progBuilder struct {
	fpSize     int
	strSize    int
	instrs     []program.Instr
	vars       []program.VarSite
	varSlots   map[string]program.Slot
	localSlots []program.Slot
	callDefs   []*functions.Def
}

// buildProgram compiles a prepared, valid expression.
func buildProgram(e *Expression) *program.Program {
	pb := &progBuilder{
		varSlots:   make(map[string]program.Slot, len(e.refs)),
		localSlots: make([]program.Slot, e.nLocals),
		callDefs:   e.callDefs,
	}

	for i, bv := range e.refs {
		t := bv.ref.Type()
		var dst program.Slot
		var in program.Instr
		if t.IsString() {
			dst = pb.allocStr()
			in = program.Instr{Op: program.OpStrVar, Dst: dst, Var: i}
		} else {
			dst = pb.alloc(t.Dim)
			in = program.Instr{Op: program.OpVar, Dst: dst, Var: i}
		}
		pb.instrs = append(pb.instrs, in)
		pb.vars = append(pb.vars, program.VarSite{Name: bv.name, Ref: bv.ref, Dst: dst})
		pb.varSlots[bv.name] = dst
	}

	ret := pb.gen(e.root)
	return &program.Program{
		Instrs:  pb.instrs,
		FPSize:  pb.fpSize,
		StrSize: pb.strSize,
		Vars:    pb.vars,
		Ret:     ret,
		RetType: e.retType,
	}
}

// alloc reserves a numeric slot of the given dimension.
func (pb *progBuilder) alloc(dim int) program.Slot {
	s := program.Slot{Off: pb.fpSize, Dim: dim}
	pb.fpSize += dim
	return s
}

// allocStr reserves a string slot.
func (pb *progBuilder) allocStr() program.Slot {
	s := program.Slot{Off: pb.strSize}
	pb.strSize++
	return s
}

// allocFor reserves a slot matching the node's bound type.
func (pb *progBuilder) allocFor(n *types.ASTNode) program.Slot {
	if n.TypeDesc.IsString() {
		return pb.allocStr()
	}
	return pb.alloc(n.TypeDesc.Dim)
}

var binaryOps = map[string]program.Opcode{
	"+":  program.OpAdd,
	"-":  program.OpSub,
	"*":  program.OpMul,
	"/":  program.OpDiv,
	"%":  program.OpMod,
	"^":  program.OpPow,
	"==": program.OpEq,
	"!=": program.OpNe,
	"<":  program.OpLt,
	"<=": program.OpLe,
	">":  program.OpGt,
	">=": program.OpGe,
	"&&": program.OpAnd,
	"||": program.OpOr,
}

// gen emits instructions computing n and returns the slot holding its value.
func (pb *progBuilder) gen(n *types.ASTNode) program.Slot {
	switch n.Type {
	case types.NodeNumber:
		dst := pb.alloc(1)
		pb.emit(program.Instr{Op: program.OpConst, Dst: dst, K: n.NumValue})
		return dst

	case types.NodeString:
		dst := pb.allocStr()
		pb.emit(program.Instr{Op: program.OpStrConst, Dst: dst, S: n.StrValue})
		return dst

	case types.NodeVariable:
		if n.Ref != nil {
			return pb.varSlots[n.Value]
		}
		return pb.localSlots[n.LocalIndex]

	case types.NodeUnary:
		a := pb.gen(n.LHS)
		dst := pb.alloc(n.TypeDesc.Dim)
		op := program.OpNeg
		if n.Value == "!" {
			op = program.OpNot
		}
		pb.emit(program.Instr{Op: op, Dst: dst, A: a})
		return dst

	case types.NodeBinary:
		a := pb.gen(n.LHS)
		b := pb.gen(n.RHS)
		dst := pb.alloc(n.TypeDesc.Dim)
		op := binaryOps[n.Value]
		if n.LHS.TypeDesc.IsString() {
			op = program.OpStrEq
			if n.Value == "!=" {
				op = program.OpStrNe
			}
		}
		pb.emit(program.Instr{Op: op, Dst: dst, A: a, B: b})
		return dst

	case types.NodeCond:
		c := pb.gen(n.Cond)
		a := pb.gen(n.LHS)
		b := pb.gen(n.RHS)
		dst := pb.allocFor(n)
		op := program.OpSelect
		if n.TypeDesc.IsString() {
			op = program.OpStrSelect
		}
		pb.emit(program.Instr{Op: op, Dst: dst, A: c, B: a, C: b})
		return dst

	case types.NodeVector:
		comps := make([]program.Slot, len(n.Arguments))
		for i, arg := range n.Arguments {
			comps[i] = pb.gen(arg)
		}
		dst := pb.alloc(len(comps))
		pb.emit(program.Instr{Op: program.OpVec, Dst: dst, Args: comps})
		return dst

	case types.NodeCall:
		args := make([]program.Slot, len(n.Arguments))
		for i, arg := range n.Arguments {
			args[i] = pb.gen(arg)
		}
		dst := pb.alloc(n.TypeDesc.Dim)
		pb.emit(program.Instr{Op: program.OpCall, Dst: dst, Args: args, Def: pb.callDefs[n.CallIndex]})
		return dst

	case types.NodeAssign:
		s := pb.gen(n.LHS)
		pb.localSlots[n.LocalIndex] = s
		return s

	case types.NodeBlock:
		last := len(n.Arguments) - 1
		for _, stmt := range n.Arguments[:last] {
			pb.gen(stmt)
		}
		return pb.gen(n.Arguments[last])
	}
	panic("vexpr: unreachable node type " + string(n.Type))
}

func (pb *progBuilder) emit(in program.Instr) {
	pb.instrs = append(pb.instrs, in)
}
