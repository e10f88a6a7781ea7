// Package jit implements the native-code execution backend.
//
// The backend lowers the slot program of a prepared expression to a
// WebAssembly module and runs it through wazero's compiler engine, which
// generates machine code at instantiation time. The generated function
// writes its result into linear memory; variable reads and built-in calls
// without a wasm lowering go through host imports that bridge back to the
// host's [types.VarRef] values and [functions.Def] implementations, so every
// run observes current host state exactly like the interpreter.
//
// The backend is optional: wazero's compiler supports a fixed set of
// platforms, and [Available] reports whether the current one is among them.
// Callers decide the fallback to the interpreter once, at construction,
// never at run time.
package jit

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/vexpr/pkg/program"
)

// Available reports whether the native backend supports the current
// platform. It mirrors wazero's compiler support matrix.
func Available() bool {
	return compilerSupported()
}

// Backend is the native-code execution strategy.
type Backend struct{}

// New creates the native backend, failing when the platform is unsupported.
// Callers should fall back to the interpreter backend on error.
func New() (*Backend, error) {
	if !Available() {
		return nil, fmt.Errorf("jit: native backend not supported on this platform")
	}
	return &Backend{}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "jit" }

// Compile lowers the program to a wasm module and instantiates it with the
// compiler engine. Programs with string traffic are rejected; callers route
// those to the interpreter.
func (b *Backend) Compile(p *program.Program) (*Compiled, error) {
	wasm, err := newEmitter(p).emit()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigCompiler())

	c := &Compiled{
		prog:    p,
		runtime: r,
		result:  make([]float64, p.Ret.Dim),
	}
	if err := c.instantiateHost(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	mod, err := r.InstantiateWithConfig(ctx, wasm, wazero.NewModuleConfig().WithName("expr"))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("jit: instantiate: %w", err)
	}

	c.run = mod.ExportedFunction("run")
	c.mem = mod.Memory()
	if c.run == nil || c.mem == nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("jit: generated module is missing exports")
	}
	return c, nil
}

// Compiled holds the long-lived handle to the generated function and a
// pre-allocated result buffer sized to the return dimension. It is not safe
// for concurrent use.
type Compiled struct {
	prog    *program.Program
	runtime wazero.Runtime
	run     api.Function
	mem     api.Memory
	result  []float64
}

// instantiateHost builds the "env" module backing variable reads and host
// function calls. Closures capture the program's slot layout.
func (c *Compiled) instantiateHost(ctx context.Context) error {
	env := c.runtime.NewHostModuleBuilder("env")

	for i := range c.prog.Vars {
		site := c.prog.Vars[i]
		buf := make([]float64, site.Dst.Dim)
		env = env.NewFunctionBuilder().
			WithFunc(func(_ context.Context, m api.Module) {
				site.Ref.EvalFP(buf)
				writeSlot(m.Memory(), site.Dst, buf)
			}).
			Export(fmt.Sprintf("v%d", i))
	}

	callSite := 0
	for i := range c.prog.Instrs {
		in := &c.prog.Instrs[i]
		if in.Op != program.OpCall {
			continue
		}
		def := in.Def
		argSlots := in.Args
		dst := in.Dst
		args := make([][]float64, len(argSlots))
		for j, a := range argSlots {
			args[j] = make([]float64, a.Dim)
		}
		out := make([]float64, dst.Dim)
		env = env.NewFunctionBuilder().
			WithFunc(func(_ context.Context, m api.Module) {
				mem := m.Memory()
				for j, a := range argSlots {
					readSlot(mem, a, args[j])
				}
				def.Eval(args, out)
				writeSlot(mem, dst, out)
			}).
			Export(fmt.Sprintf("c%d", callSite))
		callSite++
	}

	env = env.NewFunctionBuilder().
		WithFunc(func(a, b float64) float64 { return math.Pow(a, b) }).
		Export("pow")
	env = env.NewFunctionBuilder().
		WithFunc(func(a, b float64) float64 { return math.Mod(a, b) }).
		Export("fmod")

	if _, err := env.Instantiate(ctx); err != nil {
		return fmt.Errorf("jit: host module: %w", err)
	}
	return nil
}

// RunFP invokes the generated function and returns the numeric result
// buffer (length = return dimension), valid until the next run.
func (c *Compiled) RunFP() []float64 {
	if _, err := c.run.Call(context.Background()); err != nil {
		// Generated code has no trapping paths; a failure here means the
		// module was torn down underneath us.
		panic(fmt.Sprintf("jit: run: %v", err))
	}
	readSlot(c.mem, c.prog.Ret, c.result)
	return c.result
}

// RunStr is unsupported: string programs never reach this backend.
func (c *Compiled) RunStr() string {
	panic("jit: RunStr called on native-compiled program")
}

// Close releases the generated code and its runtime.
func (c *Compiled) Close() error {
	return c.runtime.Close(context.Background())
}

// readSlot copies a numeric slot out of wasm linear memory.
func readSlot(mem api.Memory, s program.Slot, dst []float64) {
	for k := range dst {
		v, ok := mem.ReadFloat64Le(uint32((s.Off + k) * 8))
		if !ok {
			panic("jit: slot read out of range")
		}
		dst[k] = v
	}
}

// writeSlot copies a numeric slot into wasm linear memory.
func writeSlot(mem api.Memory, s program.Slot, src []float64) {
	for k := range src {
		if !mem.WriteFloat64Le(uint32((s.Off+k)*8), src[k]) {
			panic("jit: slot write out of range")
		}
	}
}
