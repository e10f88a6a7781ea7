package types_test

import (
	"testing"

	"github.com/sandrolain/vexpr/pkg/types"
)

func TestUnify(t *testing.T) {
	fp := func(dim int) types.TypeDescriptor { return types.Numeric(dim) }
	fpc := func(dim int) types.TypeDescriptor {
		return types.Numeric(dim).WithVariability(types.Constant)
	}

	tests := []struct {
		name string
		a, b types.TypeDescriptor
		want types.TypeDescriptor
	}{
		{"same scalar", fp(1), fp(1), fp(1)},
		{"same vector", fp(3), fp(3), fp(3)},
		{"scalar broadcasts left", fp(1), fp(3), fp(3)},
		{"scalar broadcasts right", fp(3), fp(1), fp(3)},
		{"dim mismatch", fp(2), fp(3), types.ErrorType()},
		{"error dominates left", types.ErrorType(), fp(3), types.ErrorType()},
		{"error dominates right", fp(3), types.ErrorType(), types.ErrorType()},
		{"kind mismatch", fp(1), types.StringType(), types.ErrorType()},
		{"strings unify", types.StringType(), types.StringType(), types.StringType()},
		{"constant + constant", fpc(3), fpc(3), fpc(3)},
		{"varying dominates", fpc(3), fp(3), fp(3)},
		{"constant scalar broadcast", fpc(1), fp(3), fp(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := types.Unify(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Unify(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTypeDescriptorPredicates(t *testing.T) {
	if !types.Numeric(1).IsScalar() {
		t.Error("Numeric(1) should be scalar")
	}
	if types.Numeric(3).IsScalar() {
		t.Error("Numeric(3) should not be scalar")
	}
	if !types.StringType().IsString() {
		t.Error("StringType should be string")
	}
	if !types.ErrorType().IsError() {
		t.Error("ErrorType should be error")
	}
	if types.Numeric(0).Dim != 1 {
		t.Errorf("Numeric(0) should clamp to dim 1, got %d", types.Numeric(0).Dim)
	}
}

func TestTypeDescriptorString(t *testing.T) {
	tests := []struct {
		td   types.TypeDescriptor
		want string
	}{
		{types.Numeric(3), "FP[3]"},
		{types.Numeric(1), "FP[1]"},
		{types.Numeric(1).WithVariability(types.Constant), "FP[1] const"},
		{types.StringType(), "STR"},
		{types.ErrorType(), "ERROR"},
	}
	for _, tt := range tests {
		if got := tt.td.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestVarRefKinds(t *testing.T) {
	vec := types.NewVectorVar(3, func(dst []float64) { dst[0], dst[1], dst[2] = 1, 2, 3 })
	if vec.Type().Dim != 3 {
		t.Fatalf("vector dim = %d, want 3", vec.Type().Dim)
	}
	buf := make([]float64, 3)
	vec.EvalFP(buf)
	if buf[0] != 1 || buf[1] != 2 || buf[2] != 3 {
		t.Errorf("EvalFP = %v", buf)
	}

	sc := types.NewScalarVar(func() float64 { return 7 })
	one := make([]float64, 1)
	sc.EvalFP(one)
	if one[0] != 7 {
		t.Errorf("scalar EvalFP = %v", one[0])
	}

	sv := types.NewStringVar(func() string { return "hi" })
	if sv.EvalStr() != "hi" {
		t.Errorf("string EvalStr = %q", sv.EvalStr())
	}
	if !sv.Type().IsString() {
		t.Error("StringVar type should be string")
	}
}

func TestVarRefWrongKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling EvalStr on a numeric reference")
		}
	}()
	types.NewScalarVar(func() float64 { return 0 }).EvalStr()
}

func TestVectorVarDefaultDim(t *testing.T) {
	v := types.NewVectorVar(0, func(dst []float64) {})
	if v.Type().Dim != 3 {
		t.Errorf("default dim = %d, want 3", v.Type().Dim)
	}
}

func TestNodeArena(t *testing.T) {
	a := types.NewNodeArena()
	// Cross a chunk boundary to exercise growth.
	nodes := make([]*types.ASTNode, 0, 200)
	for i := 0; i < 200; i++ {
		n := a.Alloc(types.NodeNumber, i)
		n.NumValue = float64(i)
		nodes = append(nodes, n)
	}
	for i, n := range nodes {
		if n.Start != i || n.NumValue != float64(i) || n.Type != types.NodeNumber {
			t.Fatalf("node %d corrupted: %+v", i, n)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	e := types.NewError(types.ErrUnknownVariable, `Unknown variable "x"`, 4, 6)
	if e.Code != types.ErrUnknownVariable {
		t.Errorf("code = %s", e.Code)
	}
	if e.Start != 4 || e.End != 6 {
		t.Errorf("span = %d..%d", e.Start, e.End)
	}
	msg := e.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
}
