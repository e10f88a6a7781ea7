package types

import "fmt"

// ErrorCode classifies a diagnostic.
type ErrorCode string

// Diagnostic codes. S-codes are produced during parsing, T-codes during
// binding/type inference, U-codes for failed name resolution.
const (
	// Sxxxx: syntax errors
	ErrStringNotClosed ErrorCode = "S0101"
	ErrBadNumber       ErrorCode = "S0102"
	ErrUnexpectedEnd   ErrorCode = "S0104"
	ErrSyntax          ErrorCode = "S0201"
	ErrExpectedToken   ErrorCode = "S0202"
	ErrTooDeep         ErrorCode = "S0301"

	// Txxxx: type errors
	ErrArgumentCount  ErrorCode = "T0410"
	ErrTypeMismatch   ErrorCode = "T1001"
	ErrWantScalar     ErrorCode = "T1002"
	ErrReturnIncompat ErrorCode = "T1003"
	ErrBadAssignment  ErrorCode = "T2001"

	// Uxxxx: resolution errors
	ErrUnknownVariable ErrorCode = "U1001"
	ErrUnknownFunction ErrorCode = "U1002"
)

// Error is a parse or bind diagnostic.
//
// Start and End are byte offsets into the exact source text the expression
// was set to (End exclusive), stable across repeated queries so downstream
// tooling can underline the offending span. Errors are accumulated in
// encounter order and never deduplicated.
type Error struct {
	Code    ErrorCode
	Message string
	Start   int
	End     int
	Token   string // offending token text, when known
	Err     error  // wrapped cause, when any
}

// NewError creates a diagnostic covering [start, end).
func NewError(code ErrorCode, message string, start, end int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Start:   start,
		End:     end,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Start >= 0 {
		return fmt.Sprintf("%s at %d-%d: %s", e.Code, e.Start, e.End, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithToken attaches the offending token text.
func (e *Error) WithToken(token string) *Error {
	e.Token = token
	return e
}

// WithCause wraps another error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Comment is the span of a comment in the source text, Start inclusive and
// End exclusive, using the same offset base as Error.
type Comment struct {
	Start int
	End   int
}
