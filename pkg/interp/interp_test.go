package interp_test

import (
	"math"
	"testing"

	"github.com/sandrolain/vexpr/pkg/functions"
	"github.com/sandrolain/vexpr/pkg/interp"
	"github.com/sandrolain/vexpr/pkg/program"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Programs are assembled by hand here to pin down opcode semantics without
// involving the parser or binder.

func run(t *testing.T, p *program.Program) []float64 {
	t.Helper()
	c, err := interp.New().Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c.RunFP()
}

func TestConstAndArith(t *testing.T) {
	s0 := program.Slot{Off: 0, Dim: 1}
	s1 := program.Slot{Off: 1, Dim: 1}
	s2 := program.Slot{Off: 2, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpConst, Dst: s0, K: 6},
			{Op: program.OpConst, Dst: s1, K: 7},
			{Op: program.OpMul, Dst: s2, A: s0, B: s1},
		},
		FPSize:  3,
		Ret:     s2,
		RetType: types.Numeric(1),
	}
	out := run(t, p)
	if out[0] != 42 {
		t.Errorf("6 * 7 = %v", out[0])
	}
}

func TestVectorBroadcast(t *testing.T) {
	vec := program.Slot{Off: 0, Dim: 3}
	one := program.Slot{Off: 3, Dim: 1}
	dst := program.Slot{Off: 4, Dim: 3}
	a := program.Slot{Off: 7, Dim: 1}
	b := program.Slot{Off: 8, Dim: 1}
	c := program.Slot{Off: 9, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpConst, Dst: a, K: 1},
			{Op: program.OpConst, Dst: b, K: 2},
			{Op: program.OpConst, Dst: c, K: 3},
			{Op: program.OpVec, Dst: vec, Args: []program.Slot{a, b, c}},
			{Op: program.OpConst, Dst: one, K: 10},
			{Op: program.OpAdd, Dst: dst, A: vec, B: one},
		},
		FPSize:  10,
		Ret:     dst,
		RetType: types.Numeric(3),
	}
	out := run(t, p)
	if out[0] != 11 || out[1] != 12 || out[2] != 13 {
		t.Errorf("broadcast add = %v", out)
	}
}

func TestVariableLoadedEachRun(t *testing.T) {
	v := 2.0
	ref := types.NewScalarVar(func() float64 { return v })
	s0 := program.Slot{Off: 0, Dim: 1}
	s1 := program.Slot{Off: 1, Dim: 1}
	s2 := program.Slot{Off: 2, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpVar, Dst: s0, Var: 0},
			{Op: program.OpConst, Dst: s1, K: 3},
			{Op: program.OpMul, Dst: s2, A: s0, B: s1},
		},
		FPSize:  3,
		Vars:    []program.VarSite{{Name: "v", Ref: ref, Dst: s0}},
		Ret:     s2,
		RetType: types.Numeric(1),
	}

	c, err := interp.New().Compile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.RunFP()[0]; got != 6 {
		t.Errorf("run 1 = %v", got)
	}
	v = 10
	if got := c.RunFP()[0]; got != 30 {
		t.Errorf("run 2 = %v", got)
	}
}

func TestSelect(t *testing.T) {
	cond := program.Slot{Off: 0, Dim: 1}
	a := program.Slot{Off: 1, Dim: 1}
	b := program.Slot{Off: 2, Dim: 1}
	dst := program.Slot{Off: 3, Dim: 1}
	build := func(c float64) *program.Program {
		return &program.Program{
			Instrs: []program.Instr{
				{Op: program.OpConst, Dst: cond, K: c},
				{Op: program.OpConst, Dst: a, K: 1},
				{Op: program.OpConst, Dst: b, K: 2},
				{Op: program.OpSelect, Dst: dst, A: cond, B: a, C: b},
			},
			FPSize:  4,
			Ret:     dst,
			RetType: types.Numeric(1),
		}
	}
	if out := run(t, build(1)); out[0] != 1 {
		t.Errorf("true select = %v", out[0])
	}
	if out := run(t, build(0)); out[0] != 2 {
		t.Errorf("false select = %v", out[0])
	}
}

func TestCall(t *testing.T) {
	def, ok := functions.Lookup("pow")
	if !ok {
		t.Fatal("pow missing")
	}
	a := program.Slot{Off: 0, Dim: 1}
	b := program.Slot{Off: 1, Dim: 1}
	dst := program.Slot{Off: 2, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpConst, Dst: a, K: 2},
			{Op: program.OpConst, Dst: b, K: 8},
			{Op: program.OpCall, Dst: dst, Args: []program.Slot{a, b}, Def: def},
		},
		FPSize:  3,
		Ret:     dst,
		RetType: types.Numeric(1),
	}
	if out := run(t, p); out[0] != 256 {
		t.Errorf("pow(2, 8) = %v", out[0])
	}
}

func TestModAndPowOpcodes(t *testing.T) {
	a := program.Slot{Off: 0, Dim: 1}
	b := program.Slot{Off: 1, Dim: 1}
	dst := program.Slot{Off: 2, Dim: 1}
	build := func(op program.Opcode, x, y float64) *program.Program {
		return &program.Program{
			Instrs: []program.Instr{
				{Op: program.OpConst, Dst: a, K: x},
				{Op: program.OpConst, Dst: b, K: y},
				{Op: op, Dst: dst, A: a, B: b},
			},
			FPSize:  3,
			Ret:     dst,
			RetType: types.Numeric(1),
		}
	}
	if out := run(t, build(program.OpMod, 7, 3)); out[0] != math.Mod(7, 3) {
		t.Errorf("mod = %v", out[0])
	}
	if out := run(t, build(program.OpPow, 3, 4)); out[0] != 81 {
		t.Errorf("pow = %v", out[0])
	}
}

func TestStringOps(t *testing.T) {
	ref := types.NewStringVar(func() string { return "on" })
	sv := program.Slot{Off: 0} // string slot
	sc := program.Slot{Off: 1}
	cmp := program.Slot{Off: 0, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpStrVar, Dst: sv, Var: 0},
			{Op: program.OpStrConst, Dst: sc, S: "on"},
			{Op: program.OpStrEq, Dst: cmp, A: sv, B: sc},
		},
		FPSize:  1,
		StrSize: 2,
		Vars:    []program.VarSite{{Name: "s", Ref: ref, Dst: sv}},
		Ret:     cmp,
		RetType: types.Numeric(1),
	}
	if out := run(t, p); out[0] != 1 {
		t.Errorf("string eq = %v", out[0])
	}

	sel := program.Slot{Off: 2}
	p2 := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpConst, Dst: cmp, K: 0},
			{Op: program.OpStrConst, Dst: sv, S: "yes"},
			{Op: program.OpStrConst, Dst: sc, S: "no"},
			{Op: program.OpStrSelect, Dst: sel, A: cmp, B: sv, C: sc},
		},
		FPSize:  1,
		StrSize: 3,
		Ret:     sel,
		RetType: types.StringType(),
	}
	c, err := interp.New().Compile(p2)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.RunStr(); got != "no" {
		t.Errorf("string select = %q", got)
	}
}

func TestComparisonsAndLogic(t *testing.T) {
	a := program.Slot{Off: 0, Dim: 1}
	b := program.Slot{Off: 1, Dim: 1}
	dst := program.Slot{Off: 2, Dim: 1}
	build := func(op program.Opcode, x, y float64) *program.Program {
		return &program.Program{
			Instrs: []program.Instr{
				{Op: program.OpConst, Dst: a, K: x},
				{Op: program.OpConst, Dst: b, K: y},
				{Op: op, Dst: dst, A: a, B: b},
			},
			FPSize:  3,
			Ret:     dst,
			RetType: types.Numeric(1),
		}
	}
	tests := []struct {
		op   program.Opcode
		x, y float64
		want float64
	}{
		{program.OpLt, 1, 2, 1},
		{program.OpLe, 2, 2, 1},
		{program.OpGt, 1, 2, 0},
		{program.OpGe, 2, 2, 1},
		{program.OpEq, 3, 3, 1},
		{program.OpNe, 3, 3, 0},
		{program.OpAnd, 1, 0, 0},
		{program.OpAnd, 2, 3, 1},
		{program.OpOr, 0, 0, 0},
		{program.OpOr, 0, 5, 1},
	}
	for _, tt := range tests {
		if out := run(t, build(tt.op, tt.x, tt.y)); out[0] != tt.want {
			t.Errorf("op %d (%v, %v) = %v, want %v", tt.op, tt.x, tt.y, out[0], tt.want)
		}
	}
}

func TestStrSlotOverlapWithFP(t *testing.T) {
	// String offsets index a separate array; numeric offset 0 and string
	// offset 0 must not clash.
	str := program.Slot{Off: 0}
	num := program.Slot{Off: 0, Dim: 1}
	p := &program.Program{
		Instrs: []program.Instr{
			{Op: program.OpStrConst, Dst: str, S: "x"},
			{Op: program.OpConst, Dst: num, K: 9},
		},
		FPSize:  1,
		StrSize: 1,
		Ret:     num,
		RetType: types.Numeric(1),
	}
	if out := run(t, p); out[0] != 9 {
		t.Errorf("numeric slot = %v", out[0])
	}
}
