// Package program defines the compiled form shared by the execution
// backends: a linear instruction list over a fixed set of typed slots.
//
// Slots are register-like storage assigned once during compilation. Numeric
// slots occupy a contiguous range of a float64 array; string slots index a
// separate string array. A designated return slot holds the final result.
//
// The tree-walking backend executes the instruction list directly; the
// native backend lowers the same list to WebAssembly and maps numeric slots
// onto linear memory.
package program

import (
	"github.com/sandrolain/vexpr/pkg/functions"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Opcode identifies an instruction.
type Opcode uint8

const (
	// OpConst writes the scalar constant K to the destination.
	OpConst Opcode = iota
	// OpVar reads the variable Vars[Var] into the destination. Emitted once
	// per distinct variable at the head of the program, so every run
	// observes the host's current values.
	OpVar
	// OpVec gathers scalar component slots (Args) into a vector destination.
	OpVec

	// Unary numeric ops (A → Dst, componentwise)
	OpNeg
	OpNot

	// Binary numeric ops (A, B → Dst, componentwise with scalar broadcast)
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow

	// Scalar comparisons and logicals (A, B → Dst, all dimension 1),
	// producing 1.0 or 0.0
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr

	// OpSelect writes B or C to Dst depending on the scalar condition A
	// (non-zero selects B). Both branches are computed before selection.
	OpSelect

	// OpCall invokes Def with argument slots Args, writing to Dst.
	OpCall

	// String ops; Dst/A/B/C address string slots except where noted
	OpStrConst  // S → Dst
	OpStrVar    // Vars[Var] → Dst
	OpStrSelect // numeric scalar A selects string B or C → string Dst
	OpStrEq     // string A == string B → numeric scalar Dst
	OpStrNe     // string A != string B → numeric scalar Dst
)

// Slot addresses storage for one value.
//
// Numeric slots have Dim >= 1 and occupy Dim consecutive float64 cells
// starting at Off. String slots have Dim == 0 and Off indexes the string
// array.
type Slot struct {
	Off int
	Dim int
}

// IsString reports whether the slot addresses string storage.
func (s Slot) IsString() bool { return s.Dim == 0 }

// Instr is one instruction of the compiled program.
type Instr struct {
	Op   Opcode
	Dst  Slot
	A    Slot
	B    Slot
	C    Slot
	Args []Slot         // OpVec components, OpCall arguments
	Def  *functions.Def // OpCall target
	Var  int            // OpVar / OpStrVar index into Vars
	K    float64        // OpConst payload
	S    string         // OpStrConst payload
}

// VarSite is one distinct external variable referenced by the program.
type VarSite struct {
	Name string
	Ref  types.VarRef
	Dst  Slot
}

// Program is the executable form of a prepared expression.
//
// The instruction list is in dependency order: every slot an instruction
// reads was written by an earlier instruction (or is loaded by the OpVar
// prologue). Programs carry no mutable state of their own; each backend
// instantiates its own slot storage, so a single Program may back multiple
// compiled forms.
type Program struct {
	Instrs  []Instr
	FPSize  int // total float64 cells
	StrSize int // total string cells
	Vars    []VarSite
	Ret     Slot
	RetType types.TypeDescriptor
}

// HasStrings reports whether the program touches string storage. Programs
// with string traffic are executed by the tree-walking backend only.
func (p *Program) HasStrings() bool { return p.StrSize > 0 }

// NumCalls returns the number of call sites in the program.
func (p *Program) NumCalls() int {
	n := 0
	for i := range p.Instrs {
		if p.Instrs[i].Op == OpCall {
			n++
		}
	}
	return n
}
