package types

// VarRef is a host-implemented reference to an external variable.
//
// The pipeline obtains VarRefs from the host's resolver during binding and
// holds them by non-owning reference only; values are re-read on every
// evaluation so each run observes the host's current state.
//
// EvalFP and EvalStr are a closed pair of capabilities: exactly one applies
// depending on the reference's kind, and invoking the wrong one is a caller
// contract violation (the provided implementations panic).
type VarRef interface {
	// Type returns the variable's declared type.
	Type() TypeDescriptor
	// EvalFP writes the current numeric value into dst, whose length is the
	// declared dimension.
	EvalFP(dst []float64)
	// EvalStr returns the current string value.
	EvalStr() string
}

// VectorVar is a numeric variable reference of fixed dimension (default 3),
// backed by a host read callback.
type VectorVar struct {
	typ  TypeDescriptor
	read func(dst []float64)
}

// NewVectorVar creates a vector-backed reference. A dim below 1 defaults to 3.
func NewVectorVar(dim int, read func(dst []float64)) *VectorVar {
	if dim < 1 {
		dim = 3
	}
	return &VectorVar{typ: Numeric(dim), read: read}
}

// Type returns the current declared type.
func (v *VectorVar) Type() TypeDescriptor { return v.typ }

// SetType overrides the declared type, e.g. to adjust the dimension after
// construction. Must not be called once the expression is prepared.
func (v *VectorVar) SetType(t TypeDescriptor) { v.typ = t }

// EvalFP writes the current value into dst.
func (v *VectorVar) EvalFP(dst []float64) { v.read(dst) }

// EvalStr panics: vector references carry no string value.
func (v *VectorVar) EvalStr() string {
	panic("vexpr: EvalStr called on numeric variable reference")
}

// ScalarVar is a one-dimensional numeric variable reference backed by a host
// read callback.
type ScalarVar struct {
	typ  TypeDescriptor
	read func() float64
}

// NewScalarVar creates a scalar-backed reference.
func NewScalarVar(read func() float64) *ScalarVar {
	return &ScalarVar{typ: Numeric(1), read: read}
}

// Type returns the current declared type.
func (v *ScalarVar) Type() TypeDescriptor { return v.typ }

// SetType overrides the declared type.
func (v *ScalarVar) SetType(t TypeDescriptor) { v.typ = t }

// EvalFP writes the current value into dst[0].
func (v *ScalarVar) EvalFP(dst []float64) { dst[0] = v.read() }

// EvalStr panics: scalar references carry no string value.
func (v *ScalarVar) EvalStr() string {
	panic("vexpr: EvalStr called on numeric variable reference")
}

// StringVar is a string variable reference backed by a host read callback.
type StringVar struct {
	read func() string
}

// NewStringVar creates a string-backed reference.
func NewStringVar(read func() string) *StringVar {
	return &StringVar{read: read}
}

// Type returns the string descriptor.
func (v *StringVar) Type() TypeDescriptor { return StringType() }

// EvalFP panics: string references carry no numeric value.
func (v *StringVar) EvalFP(dst []float64) {
	panic("vexpr: EvalFP called on string variable reference")
}

// EvalStr returns the current value.
func (v *StringVar) EvalStr() string { return v.read() }
