package jit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sandrolain/vexpr/pkg/program"
)

// The emitter lowers a slot program to a WebAssembly module:
//
//   - numeric slots map onto linear memory, 8 bytes per component, at the
//     same offsets the interpreter uses;
//   - one exported function "run" executes the instruction list as a flat
//     sequence of f64 loads, ops and stores;
//   - each distinct variable and each call site that has no native f64
//     lowering becomes a host import that reads/writes the shared memory;
//   - pow and fmod, which have no wasm opcode, are fixed (f64,f64)->f64
//     imports.
//
// Function index space (imports first, in emission order):
//   0..V-1      variable loaders  env.v0..v{V-1}
//   V..V+C-1    call sites        env.c0..c{C-1}
//   V+C         env.pow
//   V+C+1       env.fmod
//   V+C+2       the generated "run" function

// wasm opcode bytes used by the emitter
const (
	opEnd          = 0x0B
	opCall         = 0x10
	opSelect       = 0x1B
	opI32Const     = 0x41
	opF64Const     = 0x44
	opF64Load      = 0x2B
	opF64Store     = 0x39
	opF64Eq        = 0x61
	opF64Ne        = 0x62
	opF64Lt        = 0x63
	opF64Gt        = 0x64
	opF64Le        = 0x65
	opF64Ge        = 0x66
	opI32And       = 0x71
	opI32Or        = 0x72
	opF64Abs       = 0x99
	opF64Neg       = 0x9A
	opF64Add       = 0xA0
	opF64Sub       = 0xA1
	opF64Mul       = 0xA2
	opF64Div       = 0xA3
	opF64ConvI32U  = 0xB8
	valTypeF64     = 0x7C
	pageSize       = 65536
	wasmFuncType   = 0x60
	sectionType    = 1
	sectionImport  = 2
	sectionFunc    = 3
	sectionMemory  = 5
	sectionExport  = 7
	sectionCode    = 10
	exportKindFunc = 0
	exportKindMem  = 2
)

// emitter builds a wasm binary for one program.
type emitter struct {
	p         *program.Program
	buf       []byte
	nVars     int
	nCalls    int
	callIndex map[int]int // instruction index -> call-site ordinal
}

func newEmitter(p *program.Program) *emitter {
	e := &emitter{
		p:         p,
		nVars:     len(p.Vars),
		callIndex: make(map[int]int),
	}
	for i := range p.Instrs {
		if p.Instrs[i].Op == program.OpCall {
			e.callIndex[i] = e.nCalls
			e.nCalls++
		}
	}
	return e
}

func (e *emitter) powIndex() int  { return e.nVars + e.nCalls }
func (e *emitter) fmodIndex() int { return e.nVars + e.nCalls + 1 }
func (e *emitter) runIndex() int  { return e.nVars + e.nCalls + 2 }

// emit produces the complete wasm binary.
func (e *emitter) emit() ([]byte, error) {
	if e.p.HasStrings() {
		return nil, fmt.Errorf("jit: program uses string storage")
	}

	// Magic and version
	e.raw(0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00)

	e.typeSection()
	e.importSection()
	e.funcSection()
	e.memorySection()
	e.exportSection()
	if err := e.codeSection(); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// typeSection emits type 0: () -> () and type 1: (f64, f64) -> f64.
func (e *emitter) typeSection() {
	var s section
	s.u32(2) // two types
	s.raw(wasmFuncType)
	s.u32(0) // no params
	s.u32(0) // no results
	s.raw(wasmFuncType)
	s.u32(2)
	s.raw(valTypeF64, valTypeF64)
	s.u32(1)
	s.raw(valTypeF64)
	e.section(sectionType, s)
}

func (e *emitter) importSection() {
	var s section
	s.u32(uint32(e.nVars + e.nCalls + 2))
	for i := 0; i < e.nVars; i++ {
		s.name("env")
		s.name(fmt.Sprintf("v%d", i))
		s.raw(0x00) // func import
		s.u32(0)    // type 0
	}
	for i := 0; i < e.nCalls; i++ {
		s.name("env")
		s.name(fmt.Sprintf("c%d", i))
		s.raw(0x00)
		s.u32(0)
	}
	s.name("env")
	s.name("pow")
	s.raw(0x00)
	s.u32(1)
	s.name("env")
	s.name("fmod")
	s.raw(0x00)
	s.u32(1)
	e.section(sectionImport, s)
}

func (e *emitter) funcSection() {
	var s section
	s.u32(1)
	s.u32(0) // "run" has type 0
	e.section(sectionFunc, s)
}

func (e *emitter) memorySection() {
	pages := uint32((e.p.FPSize*8 + pageSize - 1) / pageSize)
	if pages == 0 {
		pages = 1
	}
	var s section
	s.u32(1)
	s.raw(0x00) // min only
	s.u32(pages)
	e.section(sectionMemory, s)
}

func (e *emitter) exportSection() {
	var s section
	s.u32(2)
	s.name("run")
	s.raw(exportKindFunc)
	s.u32(uint32(e.runIndex()))
	s.name("memory")
	s.raw(exportKindMem)
	s.u32(0)
	e.section(sectionExport, s)
}

func (e *emitter) codeSection() error {
	var body section
	body.u32(0) // no locals
	for i := range e.p.Instrs {
		if err := e.lower(&body, i); err != nil {
			return err
		}
	}
	body.raw(opEnd)

	var s section
	s.u32(1) // one body
	s.u32(uint32(len(body.buf)))
	s.buf = append(s.buf, body.buf...)
	e.section(sectionCode, s)
	return nil
}

// loadComp pushes component k of a numeric slot, broadcasting scalars.
func loadComp(s *section, sl program.Slot, k int) {
	if sl.Dim == 1 {
		k = 0
	}
	s.raw(opI32Const)
	s.s32(0)
	s.raw(opF64Load)
	s.u32(3) // alignment 2^3
	s.u32(uint32((sl.Off + k) * 8))
}

// store pops a value into component k of the destination. The address
// operand must have been pushed before the value; storeAddr emits it.
func storeAddr(s *section) {
	s.raw(opI32Const)
	s.s32(0)
}

func storeComp(s *section, sl program.Slot, k int) {
	s.raw(opF64Store)
	s.u32(3)
	s.u32(uint32((sl.Off + k) * 8))
}

// truthy pops an f64 and pushes i32 1 if it is non-zero.
func truthy(s *section) {
	s.raw(opF64Const)
	s.f64(0)
	s.raw(opF64Ne)
}

// boolToF64 converts the i32 on top of the stack to 0.0/1.0.
func boolToF64(s *section) {
	s.raw(opF64ConvI32U)
}

func (e *emitter) lower(s *section, idx int) error {
	in := &e.p.Instrs[idx]
	switch in.Op {
	case program.OpConst:
		storeAddr(s)
		s.raw(opF64Const)
		s.f64(in.K)
		storeComp(s, in.Dst, 0)

	case program.OpVar:
		s.raw(opCall)
		s.u32(uint32(in.Var))

	case program.OpVec:
		for k, a := range in.Args {
			storeAddr(s)
			loadComp(s, a, 0)
			storeComp(s, in.Dst, k)
		}

	case program.OpNeg:
		for k := 0; k < in.Dst.Dim; k++ {
			storeAddr(s)
			loadComp(s, in.A, k)
			s.raw(opF64Neg)
			storeComp(s, in.Dst, k)
		}

	case program.OpNot:
		storeAddr(s)
		loadComp(s, in.A, 0)
		s.raw(opF64Const)
		s.f64(0)
		s.raw(opF64Eq)
		boolToF64(s)
		storeComp(s, in.Dst, 0)

	case program.OpAdd, program.OpSub, program.OpMul, program.OpDiv:
		op := map[program.Opcode]byte{
			program.OpAdd: opF64Add,
			program.OpSub: opF64Sub,
			program.OpMul: opF64Mul,
			program.OpDiv: opF64Div,
		}[in.Op]
		for k := 0; k < in.Dst.Dim; k++ {
			storeAddr(s)
			loadComp(s, in.A, k)
			loadComp(s, in.B, k)
			s.raw(op)
			storeComp(s, in.Dst, k)
		}

	case program.OpMod, program.OpPow:
		fn := e.fmodIndex()
		if in.Op == program.OpPow {
			fn = e.powIndex()
		}
		for k := 0; k < in.Dst.Dim; k++ {
			storeAddr(s)
			loadComp(s, in.A, k)
			loadComp(s, in.B, k)
			s.raw(opCall)
			s.u32(uint32(fn))
			storeComp(s, in.Dst, k)
		}

	case program.OpEq, program.OpNe, program.OpLt, program.OpLe, program.OpGt, program.OpGe:
		op := map[program.Opcode]byte{
			program.OpEq: opF64Eq,
			program.OpNe: opF64Ne,
			program.OpLt: opF64Lt,
			program.OpLe: opF64Le,
			program.OpGt: opF64Gt,
			program.OpGe: opF64Ge,
		}[in.Op]
		storeAddr(s)
		loadComp(s, in.A, 0)
		loadComp(s, in.B, 0)
		s.raw(op)
		boolToF64(s)
		storeComp(s, in.Dst, 0)

	case program.OpAnd, program.OpOr:
		op := byte(opI32And)
		if in.Op == program.OpOr {
			op = opI32Or
		}
		storeAddr(s)
		loadComp(s, in.A, 0)
		truthy(s)
		loadComp(s, in.B, 0)
		truthy(s)
		s.raw(op)
		boolToF64(s)
		storeComp(s, in.Dst, 0)

	case program.OpSelect:
		for k := 0; k < in.Dst.Dim; k++ {
			storeAddr(s)
			loadComp(s, in.B, k)
			loadComp(s, in.C, k)
			loadComp(s, in.A, 0)
			truthy(s)
			s.raw(opSelect)
			storeComp(s, in.Dst, k)
		}

	case program.OpCall:
		s.raw(opCall)
		s.u32(uint32(e.nVars + e.callIndex[idx]))

	default:
		return fmt.Errorf("jit: cannot lower opcode %d", in.Op)
	}
	return nil
}

// raw appends literal bytes to the module.
func (e *emitter) raw(b ...byte) {
	e.buf = append(e.buf, b...)
}

// section appends a complete section with its size prefix.
func (e *emitter) section(id byte, s section) {
	e.buf = append(e.buf, id)
	e.buf = appendU32(e.buf, uint32(len(s.buf)))
	e.buf = append(e.buf, s.buf...)
}

// section accumulates encoded section content.
type section struct {
	buf []byte
}

func (s *section) raw(b ...byte)   { s.buf = append(s.buf, b...) }
func (s *section) u32(v uint32)    { s.buf = appendU32(s.buf, v) }
func (s *section) s32(v int32)     { s.buf = appendS32(s.buf, v) }
func (s *section) name(n string)   { s.u32(uint32(len(n))); s.buf = append(s.buf, n...) }
func (s *section) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

// appendU32 appends v in unsigned LEB128.
func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

// appendS32 appends v in signed LEB128.
func appendS32(b []byte, v int32) []byte {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
