package jit_test

import (
	"math"
	"testing"

	"github.com/sandrolain/vexpr/pkg/expr"
	"github.com/sandrolain/vexpr/pkg/jit"
	"github.com/sandrolain/vexpr/pkg/types"
)

// The native backend is verified against the interpreter: the same source
// compiled under both strategies must produce identical results.

func requireJIT(t *testing.T) {
	t.Helper()
	if !jit.Available() {
		t.Skip("native backend not supported on this platform")
	}
}

func evalWith(t *testing.T, source string, strategy expr.Strategy, vars expr.VarMap) []float64 {
	t.Helper()
	e := expr.New(source,
		expr.WithResolver(vars),
		expr.WithStrategy(strategy),
		expr.WithDesiredReturnType(types.Numeric(1)),
	)
	t.Cleanup(func() { e.Close() })
	if !e.IsValid() {
		t.Fatalf("%q invalid: %v", source, e.Errors())
	}
	return e.EvalFP()
}

func TestBackendEquivalence(t *testing.T) {
	requireJIT(t)

	vars := expr.VarMap{
		"u": types.NewScalarVar(func() float64 { return 0.75 }),
		"v": types.NewVectorVar(3, func(dst []float64) { dst[0], dst[1], dst[2] = 1, -2, 0.5 }),
	}

	sources := []string{
		"1 + 2 * 3 - 4 / 8",
		"$u * 10",
		"-$u ^ 2",
		"7 % 3 + 2 ^ 10",
		"$u > 0.5 ? $u : -$u",
		"$u > 0.5 && $u < 1 || $u == 0",
		"!($u == 0.75)",
		"[1, 2, 3] * $u",
		"$v + 1",
		"$v * $v",
		"length($v) > 1 ? 1 : 0",
		"clamp($u * 4, 0, 1)",
		"sqrt(pow($u, 2))",
		"lerp(0, 10, $u) + min($u, 0.5) + max($u, 0.9)",
		"length($v) + dot($v, $v)",
		"$a = $u * 2; $b = $a + 1; $a * $b",
	}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			want := evalWith(t, src, expr.StrategyInterpreter, vars)
			got := evalWith(t, src, expr.StrategyJIT, vars)
			if len(want) != len(got) {
				t.Fatalf("dims differ: interp %d, jit %d", len(want), len(got))
			}
			for i := range want {
				if math.Abs(want[i]-got[i]) > 1e-12 {
					t.Fatalf("component %d: interp %v, jit %v", i, want[i], got[i])
				}
			}
		})
	}
}

func TestJITReadsVariablesEachRun(t *testing.T) {
	requireJIT(t)

	u := 1.0
	vars := expr.VarMap{"u": types.NewScalarVar(func() float64 { return u })}
	e := expr.New("$u * 2",
		expr.WithResolver(vars),
		expr.WithStrategy(expr.StrategyJIT),
		expr.WithDesiredReturnType(types.Numeric(1)),
	)
	defer e.Close()

	if got := e.EvalFP()[0]; got != 2 {
		t.Fatalf("run 1 = %v", got)
	}
	if e.Backend() != "jit" {
		t.Fatalf("backend = %q, want jit", e.Backend())
	}
	u = 21
	if got := e.EvalFP()[0]; got != 42 {
		t.Fatalf("run 2 = %v", got)
	}
}

func TestJITHostCalls(t *testing.T) {
	requireJIT(t)

	vars := expr.VarMap{"v": types.NewVectorVar(3, func(dst []float64) {
		dst[0], dst[1], dst[2] = 3, 0, 4
	})}
	e := expr.New("length($v)",
		expr.WithResolver(vars),
		expr.WithStrategy(expr.StrategyJIT),
		expr.WithDesiredReturnType(types.Numeric(1)),
	)
	defer e.Close()

	if !e.IsValid() {
		t.Fatalf("errors: %v", e.Errors())
	}
	if got := e.EvalFP()[0]; got != 5 {
		t.Fatalf("length = %v, want 5", got)
	}
}

func TestJITVectorReturn(t *testing.T) {
	requireJIT(t)

	e := expr.New("[1, 2, 3] + [10, 20, 30]",
		expr.WithStrategy(expr.StrategyJIT),
		expr.WithDesiredReturnType(types.Numeric(3)),
	)
	defer e.Close()

	if !e.IsValid() {
		t.Fatalf("errors: %v", e.Errors())
	}
	got := e.EvalFP()
	if got[0] != 11 || got[1] != 22 || got[2] != 33 {
		t.Fatalf("vector add = %v", got)
	}
}

func TestNewFailsWhenUnavailable(t *testing.T) {
	if jit.Available() {
		if _, err := jit.New(); err != nil {
			t.Fatalf("New on supported platform: %v", err)
		}
		return
	}
	if _, err := jit.New(); err == nil {
		t.Fatal("New should fail on unsupported platforms")
	}
}
