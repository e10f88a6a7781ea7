// Package interp implements the tree-walking execution backend.
//
// The backend executes the slot program produced for a prepared expression:
// a linear instruction list over a float64 register file and a string table,
// with a designated return slot. It performs no code generation, is
// available on every platform, and is the safe default when the native
// backend is not.
package interp

import (
	"math"

	"github.com/sandrolain/vexpr/pkg/program"
)

// Backend is the tree-walking execution strategy.
type Backend struct{}

// New creates the interpreter backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "interpreter" }

// Compile prepares a program for repeated execution. The returned form owns
// its slot storage; distinct forms never share mutable state.
func (b *Backend) Compile(p *program.Program) (*Compiled, error) {
	c := &Compiled{
		prog: p,
		fp:   make([]float64, p.FPSize),
		str:  make([]string, p.StrSize),
	}
	// Argument slices for call sites are assembled once; they alias the
	// register file directly.
	for i := range p.Instrs {
		in := &p.Instrs[i]
		if in.Op != program.OpCall {
			continue
		}
		args := make([][]float64, len(in.Args))
		for j, a := range in.Args {
			args[j] = c.fp[a.Off : a.Off+a.Dim]
		}
		c.callArgs = append(c.callArgs, args)
	}
	return c, nil
}

// Compiled is an executable form produced by the interpreter backend.
// It is not safe for concurrent use; run results are valid until the
// next run.
type Compiled struct {
	prog     *program.Program
	fp       []float64
	str      []string
	callArgs [][][]float64
}

// RunFP executes the program and returns the numeric result buffer
// (length = return dimension). The buffer is read-only and valid until the
// next run.
func (c *Compiled) RunFP() []float64 {
	c.exec()
	ret := c.prog.Ret
	return c.fp[ret.Off : ret.Off+ret.Dim]
}

// RunStr executes the program and returns the string result, valid until
// the next run.
func (c *Compiled) RunStr() string {
	c.exec()
	return c.str[c.prog.Ret.Off]
}

// Close releases backend resources. The interpreter holds none.
func (c *Compiled) Close() error { return nil }

// comp reads component k of a numeric slot, broadcasting scalars.
func (c *Compiled) comp(s program.Slot, k int) float64 {
	if s.Dim == 1 {
		return c.fp[s.Off]
	}
	return c.fp[s.Off+k]
}

func truth(v float64) bool { return v != 0 }

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (c *Compiled) exec() {
	callSite := 0
	for i := range c.prog.Instrs {
		in := &c.prog.Instrs[i]
		switch in.Op {
		case program.OpConst:
			c.fp[in.Dst.Off] = in.K
		case program.OpVar:
			site := c.prog.Vars[in.Var]
			site.Ref.EvalFP(c.fp[in.Dst.Off : in.Dst.Off+in.Dst.Dim])
		case program.OpVec:
			for k, a := range in.Args {
				c.fp[in.Dst.Off+k] = c.fp[a.Off]
			}
		case program.OpNeg:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = -c.comp(in.A, k)
			}
		case program.OpNot:
			c.fp[in.Dst.Off] = b2f(!truth(c.fp[in.A.Off]))
		case program.OpAdd:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = c.comp(in.A, k) + c.comp(in.B, k)
			}
		case program.OpSub:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = c.comp(in.A, k) - c.comp(in.B, k)
			}
		case program.OpMul:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = c.comp(in.A, k) * c.comp(in.B, k)
			}
		case program.OpDiv:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = c.comp(in.A, k) / c.comp(in.B, k)
			}
		case program.OpMod:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = math.Mod(c.comp(in.A, k), c.comp(in.B, k))
			}
		case program.OpPow:
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = math.Pow(c.comp(in.A, k), c.comp(in.B, k))
			}
		case program.OpEq:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] == c.fp[in.B.Off])
		case program.OpNe:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] != c.fp[in.B.Off])
		case program.OpLt:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] < c.fp[in.B.Off])
		case program.OpLe:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] <= c.fp[in.B.Off])
		case program.OpGt:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] > c.fp[in.B.Off])
		case program.OpGe:
			c.fp[in.Dst.Off] = b2f(c.fp[in.A.Off] >= c.fp[in.B.Off])
		case program.OpAnd:
			c.fp[in.Dst.Off] = b2f(truth(c.fp[in.A.Off]) && truth(c.fp[in.B.Off]))
		case program.OpOr:
			c.fp[in.Dst.Off] = b2f(truth(c.fp[in.A.Off]) || truth(c.fp[in.B.Off]))
		case program.OpSelect:
			src := in.C
			if truth(c.fp[in.A.Off]) {
				src = in.B
			}
			for k := 0; k < in.Dst.Dim; k++ {
				c.fp[in.Dst.Off+k] = c.comp(src, k)
			}
		case program.OpCall:
			out := c.fp[in.Dst.Off : in.Dst.Off+in.Dst.Dim]
			in.Def.Eval(c.callArgs[callSite], out)
			callSite++
		case program.OpStrConst:
			c.str[in.Dst.Off] = in.S
		case program.OpStrVar:
			c.str[in.Dst.Off] = c.prog.Vars[in.Var].Ref.EvalStr()
		case program.OpStrSelect:
			if truth(c.fp[in.A.Off]) {
				c.str[in.Dst.Off] = c.str[in.B.Off]
			} else {
				c.str[in.Dst.Off] = c.str[in.C.Off]
			}
		case program.OpStrEq:
			c.fp[in.Dst.Off] = b2f(c.str[in.A.Off] == c.str[in.B.Off])
		case program.OpStrNe:
			c.fp[in.Dst.Off] = b2f(c.str[in.A.Off] != c.str[in.B.Off])
		}
	}
}
