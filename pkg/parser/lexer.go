package parser

import (
	"unicode"
	"unicode/utf8"

	"github.com/sandrolain/vexpr/pkg/types"
)

const eof = -1

// Lexer converts an expression into a sequence of tokens.
// The implementation is based on Rob Pike's "Lexical Scanning in Go" technique.
//
// Line comments ("#" to end of line) are skipped as whitespace but their
// spans are recorded and remain available via Comments even when a later
// token fails to scan.
type Lexer struct {
	input    string // Input string being scanned
	length   int    // Length of input string
	start    int    // Start position of current token
	current  int    // Current position in input
	width    int    // Width of last rune read
	err      *types.Error
	comments []types.Comment
}

// NewLexer creates a new lexer from the provided input string.
// The input is tokenized by successive calls to the Next method.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		length: len(input),
	}
}

// Next returns the next token from the input.
// When the end of the input is reached, Next returns TokenEOF for all
// subsequent calls.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	ch := l.nextRune()
	if ch == eof {
		return l.eof()
	}

	// Check for two-character symbols first (e.g. ==, !=, <=, &&)
	if rts := lookupSymbol2(ch); rts != nil {
		for _, rt := range rts {
			if l.acceptRune(rt.r) {
				return l.newToken(rt.tt)
			}
		}
	}

	// '&' and '|' are only valid doubled
	if ch == '&' || ch == '|' {
		return l.error(types.ErrSyntax, "Unexpected character "+string(ch))
	}

	// Check for single-character symbols
	if tt := lookupSymbol1(ch); tt > 0 {
		return l.newToken(tt)
	}

	// String literals (single or double quoted)
	if ch == '"' || ch == '\'' {
		l.ignore()
		return l.scanString(ch)
	}

	// Number literals
	if ch >= '0' && ch <= '9' || ch == '.' {
		l.backup()
		return l.scanNumber()
	}

	// Variables. The token's span includes the '$' so diagnostics underline
	// the full reference, but its value is the bare name.
	if ch == '$' {
		pos := l.current - l.width
		l.ignore()
		t := l.scanName(TokenVariable)
		t.Position = pos
		return t
	}

	// Names
	if isNameStart(ch) {
		l.backup()
		return l.scanName(TokenName)
	}

	return l.error(types.ErrSyntax, "Unexpected character "+string(ch))
}

// Error returns the first error encountered during lexing, if any.
func (l *Lexer) Error() *types.Error {
	return l.err
}

// Comments returns the spans of all comments skipped so far, in source order.
// Each span starts at the '#' and ends one past the comment's last character,
// excluding the terminating newline.
func (l *Lexer) Comments() []types.Comment {
	return l.comments
}

// scanString reads a string literal from the current position.
// The opening quote has already been consumed.
// Supports both single and double quotes with escape sequences.
func (l *Lexer) scanString(quote rune) Token {
Loop:
	for {
		switch l.nextRune() {
		case quote:
			break Loop
		case '\\':
			// Consume escaped character
			if r := l.nextRune(); r != eof {
				break
			}
			fallthrough
		case eof:
			return l.error(types.ErrStringNotClosed, "Unterminated string literal")
		}
	}

	l.backup()
	t := l.newToken(TokenString)
	l.acceptRune(quote)
	t.End = l.current
	l.ignore()
	return t
}

// scanNumber reads a number literal from the current position.
// Supports integers, decimals, and scientific notation.
// Format: [0-9]*(\.[0-9]+)?([eE][+-]?[0-9]+)?
func (l *Lexer) scanNumber() Token {
	l.acceptAll(isDigit)

	// Decimal part
	if l.acceptRune('.') {
		if !l.acceptAll(isDigit) {
			// A bare '.' with no digits on either side is not a number.
			if l.current-l.start == 1 {
				return l.error(types.ErrBadNumber, "Malformed number")
			}
			l.backup()
			return l.newToken(TokenNumber)
		}
	}

	// Exponent part
	if l.acceptRunes2('e', 'E') {
		l.acceptRunes2('+', '-')
		if !l.acceptAll(isDigit) {
			return l.error(types.ErrBadNumber, "Malformed exponent")
		}
	}

	return l.newToken(TokenNumber)
}

// scanName reads a name or variable from the current position.
// Names start with a letter or underscore and continue with letters,
// digits, and underscores.
func (l *Lexer) scanName(tt TokenType) Token {
	if !l.accept(isNameStart) {
		return l.error(types.ErrSyntax, "Malformed name")
	}
	l.acceptAll(isNameChar)
	return l.newToken(tt)
}

// Helper methods

func (l *Lexer) eof() Token {
	return Token{
		Type:     TokenEOF,
		Position: l.current,
		End:      l.current,
	}
}

func (l *Lexer) error(code types.ErrorCode, message string) Token {
	t := l.newToken(TokenError)
	if l.err == nil {
		l.err = &types.Error{
			Code:    code,
			Message: message,
			Start:   t.Position,
			End:     t.End,
			Token:   t.Value,
		}
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:     tt,
		Value:    l.input[l.start:l.current],
		Position: l.start,
		End:      l.current,
	}
	l.width = 0
	l.start = l.current
	return t
}

func (l *Lexer) nextRune() rune {
	if l.err != nil || l.current >= l.length {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.current:])
	l.width = w
	l.current += w
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
}

func (l *Lexer) ignore() {
	l.start = l.current
}

func (l *Lexer) acceptRune(r rune) bool {
	return l.accept(func(c rune) bool {
		return c == r
	})
}

func (l *Lexer) acceptRunes2(r1, r2 rune) bool {
	return l.accept(func(c rune) bool {
		return c == r1 || c == r2
	})
}

func (l *Lexer) accept(isValid func(rune) bool) bool {
	if isValid(l.nextRune()) {
		return true
	}
	l.backup()
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	var matched bool
	for l.accept(isValid) {
		matched = true
	}
	return matched
}

// skipWhitespace skips whitespace and line comments, recording each
// comment's span.
func (l *Lexer) skipWhitespace() {
	for {
		l.acceptAll(isWhitespace)
		l.ignore()

		if !l.acceptRune('#') {
			return
		}

		// Line comment: runs to end of line or input.
		start := l.current - 1
		for {
			ch := l.nextRune()
			if ch == eof || ch == '\n' {
				break
			}
		}
		l.backup()
		l.comments = append(l.comments, types.Comment{Start: start, End: l.current})
		l.acceptRune('\n')
		l.ignore()
	}
}

// Character classification functions

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
