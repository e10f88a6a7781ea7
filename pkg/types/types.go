// Package types defines the core type system for vexpr.
//
// This package contains type definitions for:
//   - TypeDescriptor: result shapes (scalar/vector/string) with variability
//   - ASTNode: parse tree nodes and their arena allocator
//   - VarRef: host-implemented variable references
//   - Error: structured diagnostics with source offsets
package types

import "fmt"

// Kind identifies the shape of a value computed by an expression node.
type Kind uint8

const (
	// KindError marks a node whose type could not be determined.
	// Error dominates every other kind under unification.
	KindError Kind = iota
	// KindNumeric is a floating-point value of a fixed dimension
	// (1 for scalars, 3 for the common color/point case).
	KindNumeric
	// KindString is an immutable character string.
	KindString
)

// Variability records whether a value is known at bind time (Constant)
// or depends on per-evaluation inputs (Varying).
type Variability uint8

const (
	Constant Variability = iota
	Varying
)

// TypeDescriptor describes the result shape of an expression node:
// its kind, the vector dimension for numeric values, and a variability
// qualifier. TypeDescriptors are plain values; equality is structural.
type TypeDescriptor struct {
	Kind        Kind
	Dim         int // valid only when Kind == KindNumeric
	Variability Variability
}

// Numeric returns a Varying numeric descriptor of the given dimension.
// A dimension below 1 is clamped to 1.
func Numeric(dim int) TypeDescriptor {
	if dim < 1 {
		dim = 1
	}
	return TypeDescriptor{Kind: KindNumeric, Dim: dim, Variability: Varying}
}

// ErrorType returns the error descriptor.
func ErrorType() TypeDescriptor {
	return TypeDescriptor{Kind: KindError}
}

// StringType returns a Varying string descriptor.
func StringType() TypeDescriptor {
	return TypeDescriptor{Kind: KindString, Variability: Varying}
}

// WithVariability returns a copy of t with the variability overridden.
// Used when a node is proven to depend only on compile-time constants.
func (t TypeDescriptor) WithVariability(v Variability) TypeDescriptor {
	t.Variability = v
	return t
}

// IsError reports whether t is the error type.
func (t TypeDescriptor) IsError() bool { return t.Kind == KindError }

// IsNumeric reports whether t is a numeric vector or scalar.
func (t TypeDescriptor) IsNumeric() bool { return t.Kind == KindNumeric }

// IsString reports whether t is a string.
func (t TypeDescriptor) IsString() bool { return t.Kind == KindString }

// IsScalar reports whether t is a one-dimensional numeric value.
func (t TypeDescriptor) IsScalar() bool { return t.Kind == KindNumeric && t.Dim == 1 }

// IsConstant reports whether t is known at bind time.
func (t TypeDescriptor) IsConstant() bool { return t.Variability == Constant }

// String returns a compact representation such as "FP[3]" or "STR".
func (t TypeDescriptor) String() string {
	var s string
	switch t.Kind {
	case KindNumeric:
		s = fmt.Sprintf("FP[%d]", t.Dim)
	case KindString:
		s = "STR"
	default:
		return "ERROR"
	}
	if t.Variability == Constant {
		s += " const"
	}
	return s
}

// dominantVariability returns Varying if either side is Varying.
func dominantVariability(a, b Variability) Variability {
	if a == Varying || b == Varying {
		return Varying
	}
	return Constant
}

// Unify combines the types of two sub-expressions, e.g. the operands of a
// binary operator.
//
// Rules:
//   - Error dominates: combining Error with anything yields Error.
//   - Kind mismatch (numeric vs string) yields Error.
//   - Numeric dimensions must match, or one side must be a scalar, which
//     broadcasts to the other dimension. Two distinct non-unit dimensions
//     (e.g. 2 vs 3) yield Error.
//   - Varying dominates Constant.
func Unify(a, b TypeDescriptor) TypeDescriptor {
	if a.IsError() || b.IsError() {
		return ErrorType()
	}
	if a.Kind != b.Kind {
		return ErrorType()
	}
	v := dominantVariability(a.Variability, b.Variability)
	if a.Kind == KindString {
		return TypeDescriptor{Kind: KindString, Variability: v}
	}
	switch {
	case a.Dim == b.Dim:
		return TypeDescriptor{Kind: KindNumeric, Dim: a.Dim, Variability: v}
	case a.Dim == 1:
		return TypeDescriptor{Kind: KindNumeric, Dim: b.Dim, Variability: v}
	case b.Dim == 1:
		return TypeDescriptor{Kind: KindNumeric, Dim: a.Dim, Variability: v}
	default:
		return ErrorType()
	}
}
