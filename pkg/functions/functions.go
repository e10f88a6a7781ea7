// Package functions provides the built-in function library and the metadata
// the binder needs to type-check calls: arity, a return-type rule over the
// argument types, and a thread-safety flag.
//
// Hosts can supply additional functions through their resolver; the
// definitions use the same [Def] shape as the built-ins.
//
// # Example
//
//	def := &functions.Def{
//	    Name:       "gain",
//	    MinArgs:    2,
//	    MaxArgs:    2,
//	    ThreadSafe: true,
//	    Return:     functions.ComponentwiseReturn,
//	    Eval: func(args [][]float64, out []float64) {
//	        for k := range out {
//	            out[k] = functions.Arg(args[0], k) * functions.Arg(args[1], k)
//	        }
//	    },
//	}
package functions

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sandrolain/vexpr/pkg/types"
)

// Def describes a callable function: its arity bounds, the rule computing
// the call's return type from the argument types, its thread-safety
// classification, and the numeric implementation used by the interpreter.
type Def struct {
	// Name is the function name as it appears in expressions.
	Name string
	// MinArgs and MaxArgs bound the accepted argument count.
	// MaxArgs < 0 means unbounded.
	MinArgs int
	MaxArgs int
	// ThreadSafe reports whether the implementation may be called
	// concurrently from multiple evaluations. Calls to functions with
	// ThreadSafe == false are surfaced by the expression so the host can
	// serialize them; the core never serializes on its own.
	ThreadSafe bool
	// Return computes the call's type from the argument types, returning
	// the error descriptor when the arguments are unacceptable.
	Return func(args []types.TypeDescriptor) types.TypeDescriptor
	// Eval computes the result. args holds one component slice per argument
	// (length = that argument's dimension); out is sized to the return
	// dimension. Scalar arguments broadcast via [Arg].
	Eval func(args [][]float64, out []float64)
}

// ArityString renders the arity bounds for diagnostics, e.g. "2 arguments",
// "1 to 3 arguments" or "at least 1 argument".
func (d *Def) ArityString() string {
	switch {
	case d.MaxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", d.MinArgs)
	case d.MinArgs == d.MaxArgs:
		return fmt.Sprintf("%d argument(s)", d.MinArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", d.MinArgs, d.MaxArgs)
	}
}

// AcceptsArgs reports whether n arguments satisfy the arity bounds.
func (d *Def) AcceptsArgs(n int) bool {
	if n < d.MinArgs {
		return false
	}
	return d.MaxArgs < 0 || n <= d.MaxArgs
}

// Arg reads component k of an argument, broadcasting scalars.
func Arg(a []float64, k int) float64 {
	if len(a) == 1 {
		return a[0]
	}
	return a[k]
}

// ComponentwiseReturn unifies all numeric arguments with scalar broadcast:
// the result dimension is the common (largest) argument dimension.
func ComponentwiseReturn(args []types.TypeDescriptor) types.TypeDescriptor {
	if len(args) == 0 {
		return types.ErrorType()
	}
	t := args[0]
	for _, a := range args[1:] {
		t = types.Unify(t, a)
	}
	if !t.IsNumeric() {
		return types.ErrorType()
	}
	return t
}

// ScalarReturn requires every argument to be numeric and yields a scalar
// with the dominant variability.
func ScalarReturn(args []types.TypeDescriptor) types.TypeDescriptor {
	v := types.Constant
	for _, a := range args {
		if !a.IsNumeric() {
			return types.ErrorType()
		}
		if !a.IsConstant() {
			v = types.Varying
		}
	}
	return types.Numeric(1).WithVariability(v)
}

// fixedDimReturn requires every argument to have the given dimension and
// yields the same dimension.
func fixedDimReturn(dim int) func(args []types.TypeDescriptor) types.TypeDescriptor {
	return func(args []types.TypeDescriptor) types.TypeDescriptor {
		v := types.Constant
		for _, a := range args {
			if !a.IsNumeric() || a.Dim != dim {
				return types.ErrorType()
			}
			if !a.IsConstant() {
				v = types.Varying
			}
		}
		return types.Numeric(dim).WithVariability(v)
	}
}

// registry is the built-in lookup table, keyed by name.
var registry map[string]*Def

// Lookup returns the built-in definition for name, if any.
func Lookup(name string) (*Def, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names returns the names of all built-in functions.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// register adds a definition to the built-in table.
func register(d *Def) {
	registry[d.Name] = d
}

// componentwise1 registers a one-argument componentwise math function.
func componentwise1(name string, fn func(float64) float64) {
	register(&Def{
		Name:       name,
		MinArgs:    1,
		MaxArgs:    1,
		ThreadSafe: true,
		Return:     ComponentwiseReturn,
		Eval: func(args [][]float64, out []float64) {
			for k := range out {
				out[k] = fn(Arg(args[0], k))
			}
		},
	})
}

// componentwise2 registers a two-argument componentwise math function with
// scalar broadcast.
func componentwise2(name string, fn func(a, b float64) float64) {
	register(&Def{
		Name:       name,
		MinArgs:    2,
		MaxArgs:    2,
		ThreadSafe: true,
		Return:     ComponentwiseReturn,
		Eval: func(args [][]float64, out []float64) {
			for k := range out {
				out[k] = fn(Arg(args[0], k), Arg(args[1], k))
			}
		},
	})
}

// randMu serializes the process-global generator; rand stays classified
// thread-unsafe so hosts batch-evaluating expressions know to serialize or
// reseed per worker.
var randMu sync.Mutex

var randSource = rand.New(rand.NewSource(1))

func init() {
	registry = make(map[string]*Def, 32)

	componentwise1("abs", math.Abs)
	componentwise1("acos", math.Acos)
	componentwise1("asin", math.Asin)
	componentwise1("atan", math.Atan)
	componentwise1("ceil", math.Ceil)
	componentwise1("cos", math.Cos)
	componentwise1("cosh", math.Cosh)
	componentwise1("exp", math.Exp)
	componentwise1("floor", math.Floor)
	componentwise1("log", math.Log)
	componentwise1("log10", math.Log10)
	componentwise1("sin", math.Sin)
	componentwise1("sinh", math.Sinh)
	componentwise1("sqrt", math.Sqrt)
	componentwise1("tan", math.Tan)
	componentwise1("tanh", math.Tanh)

	componentwise2("atan2", math.Atan2)
	componentwise2("fmod", math.Mod)
	componentwise2("pow", math.Pow)
	componentwise2("min", math.Min)
	componentwise2("max", math.Max)

	register(&Def{
		Name:       "clamp",
		MinArgs:    3,
		MaxArgs:    3,
		ThreadSafe: true,
		Return:     ComponentwiseReturn,
		Eval: func(args [][]float64, out []float64) {
			for k := range out {
				x, lo, hi := Arg(args[0], k), Arg(args[1], k), Arg(args[2], k)
				out[k] = math.Min(math.Max(x, lo), hi)
			}
		},
	})

	register(&Def{
		Name:       "lerp",
		MinArgs:    3,
		MaxArgs:    3,
		ThreadSafe: true,
		Return:     ComponentwiseReturn,
		Eval: func(args [][]float64, out []float64) {
			for k := range out {
				a, b, t := Arg(args[0], k), Arg(args[1], k), Arg(args[2], k)
				out[k] = a + (b-a)*t
			}
		},
	})

	register(&Def{
		Name:       "length",
		MinArgs:    1,
		MaxArgs:    1,
		ThreadSafe: true,
		Return:     ScalarReturn,
		Eval: func(args [][]float64, out []float64) {
			var sum float64
			for _, c := range args[0] {
				sum += c * c
			}
			out[0] = math.Sqrt(sum)
		},
	})

	register(&Def{
		Name:       "dot",
		MinArgs:    2,
		MaxArgs:    2,
		ThreadSafe: true,
		Return:     ScalarReturn,
		Eval: func(args [][]float64, out []float64) {
			n := len(args[0])
			if len(args[1]) > n {
				n = len(args[1])
			}
			var sum float64
			for k := 0; k < n; k++ {
				sum += Arg(args[0], k) * Arg(args[1], k)
			}
			out[0] = sum
		},
	})

	register(&Def{
		Name:       "cross",
		MinArgs:    2,
		MaxArgs:    2,
		ThreadSafe: true,
		Return:     fixedDimReturn(3),
		Eval: func(args [][]float64, out []float64) {
			a, b := args[0], args[1]
			out[0] = a[1]*b[2] - a[2]*b[1]
			out[1] = a[2]*b[0] - a[0]*b[2]
			out[2] = a[0]*b[1] - a[1]*b[0]
		},
	})

	register(&Def{
		Name:       "norm",
		MinArgs:    1,
		MaxArgs:    1,
		ThreadSafe: true,
		Return:     ComponentwiseReturn,
		Eval: func(args [][]float64, out []float64) {
			var sum float64
			for _, c := range args[0] {
				sum += c * c
			}
			l := math.Sqrt(sum)
			for k := range out {
				if l == 0 {
					out[k] = 0
					continue
				}
				out[k] = Arg(args[0], k) / l
			}
		},
	})

	register(&Def{
		Name:       "rand",
		MinArgs:    0,
		MaxArgs:    0,
		ThreadSafe: false,
		Return: func(args []types.TypeDescriptor) types.TypeDescriptor {
			return types.Numeric(1).WithVariability(types.Varying)
		},
		Eval: func(args [][]float64, out []float64) {
			randMu.Lock()
			out[0] = randSource.Float64()
			randMu.Unlock()
		},
	})
}
