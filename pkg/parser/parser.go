// Package parser implements the vexpr expression parser.
//
// The parser uses a hand-written recursive descent approach with Pratt's
// "Top Down Operator Precedence" algorithm for binary operators. It produces
// a parse tree of [types.ASTNode] values allocated from a [types.NodeArena],
// and reports syntax diagnostics with exact source spans.
//
// Comment spans are collected during lexing and are returned even when the
// expression fails to parse, so authoring tools can always recover them.
//
// # Example
//
//	res := parser.Parse("$u + 1 # half-open offsets")
//	if !res.OK() {
//	    fmt.Println(res.Errors[0])
//	}
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandrolain/vexpr/pkg/types"
)

// Result is the outcome of one parse pass. Comments are populated regardless
// of success; Root is nil when Errors is non-empty.
type Result struct {
	Root     *types.ASTNode
	Comments []types.Comment
	Errors   []*types.Error

	// Arena owns the node storage; it must stay reachable while Root is.
	Arena *types.NodeArena
}

// OK reports whether the source parsed without syntax errors.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// Option configures parsing behavior.
type Option func(*Options)

// Options holds parser configuration.
type Options struct {
	// MaxDepth limits recursion depth to prevent stack overflow on
	// pathological input.
	MaxDepth int
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) Option {
	return func(opts *Options) {
		opts.MaxDepth = depth
	}
}

// Parse parses an expression source and returns the parse tree together with
// comment spans and any syntax diagnostics. It never returns nil.
func Parse(source string, opts ...Option) *Result {
	p := newParser(source, opts...)
	return p.parse()
}

// parser implements recursive descent with one token of lookahead.
type parser struct {
	lexer   *Lexer
	arena   *types.NodeArena
	current Token
	next    Token
	prev    Token
	errors  []*types.Error
	depth   int
	opts    Options
}

func newParser(source string, opts ...Option) *parser {
	options := Options{
		MaxDepth: 100,
	}
	for _, opt := range opts {
		opt(&options)
	}

	p := &parser{
		lexer: NewLexer(source),
		arena: types.NewNodeArena(),
		opts:  options,
	}

	// Fill the lookahead window
	p.advance()
	p.advance()

	return p
}

func (p *parser) parse() *Result {
	root := p.parseProgram()

	res := &Result{
		Comments: p.lexer.Comments(),
		Errors:   p.errors,
		Arena:    p.arena,
	}
	if len(res.Errors) == 0 {
		res.Root = root
	}
	return res
}

// parseProgram parses an optional run of local assignments followed by the
// result expression: "$v = e1; $w = e2; result".
func (p *parser) parseProgram() *types.ASTNode {
	if p.current.Type == TokenEOF {
		p.errorf(types.ErrUnexpectedEnd, "Empty expression")
		return nil
	}

	start := p.current.Position
	var stmts []*types.ASTNode

	for p.current.Type == TokenVariable && p.next.Type == TokenAssign {
		name := p.current.Value
		assign := p.arena.Alloc(types.NodeAssign, p.current.Position)
		assign.Value = name
		p.advance() // variable
		p.advance() // '='
		assign.LHS = p.parseExpression(0)
		assign.End = p.prev.End
		if !p.expect(TokenSemicolon) {
			return nil
		}
		stmts = append(stmts, assign)
	}

	result := p.parseExpression(0)

	if p.current.Type != TokenEOF && len(p.errors) == 0 {
		p.errorf(types.ErrSyntax, "Unexpected token %q", p.current.Value)
	}

	if len(stmts) == 0 {
		return result
	}

	block := p.arena.Alloc(types.NodeBlock, start)
	block.Arguments = append(stmts, result)
	block.End = p.prev.End
	return block
}

// Operator precedence table (binding power).
// Higher values bind more tightly.
var precedence = map[TokenType]int{
	TokenQuestion:     15, // ?:
	TokenOr:           20, // ||
	TokenAnd:          25, // &&
	TokenEqual:        30, // ==
	TokenNotEqual:     30, // !=
	TokenLess:         35, // <
	TokenLessEqual:    35, // <=
	TokenGreater:      35, // >
	TokenGreaterEqual: 35, // >=
	TokenPlus:         40, // +
	TokenMinus:        40, // -
	TokenMult:         50, // *
	TokenDiv:          50, // /
	TokenMod:          50, // %
	TokenPow:          60, // ^
}

// unaryPrecedence binds unary minus and not between multiplication and
// power, so -x^2 parses as -(x^2).
const unaryPrecedence = 55

// parseExpression parses an expression with operator precedence.
// rbp is the right binding power (minimum precedence).
func (p *parser) parseExpression(rbp int) *types.ASTNode {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxDepth {
		p.errorf(types.ErrTooDeep, "Expression exceeds maximum nesting depth %d", p.opts.MaxDepth)
		return nil
	}

	left := p.parsePrefix()

	for left != nil && rbp < precedence[p.current.Type] {
		left = p.parseInfix(left)
	}

	return left
}

// parsePrefix parses an expression that does not require a left-hand side.
func (p *parser) parsePrefix() *types.ASTNode {
	token := p.current

	switch token.Type {
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		return p.parseString()
	case TokenVariable:
		n := p.arena.Alloc(types.NodeVariable, token.Position)
		n.Value = token.Value
		n.End = token.End
		p.advance()
		return n
	case TokenName:
		if p.next.Type == TokenParenOpen {
			return p.parseCall()
		}
		// A bare name also resolves as an external variable.
		n := p.arena.Alloc(types.NodeVariable, token.Position)
		n.Value = token.Value
		n.End = token.End
		p.advance()
		return n
	case TokenMinus, TokenNot:
		n := p.arena.Alloc(types.NodeUnary, token.Position)
		n.Value = token.Type.String()
		p.advance()
		n.LHS = p.parseExpression(unaryPrecedence)
		n.End = p.prev.End
		return n
	case TokenParenOpen:
		p.advance()
		inner := p.parseExpression(0)
		if !p.expect(TokenParenClose) {
			return nil
		}
		return inner
	case TokenBracketOpen:
		return p.parseVector()
	case TokenError:
		if err := p.lexer.Error(); err != nil {
			p.errors = append(p.errors, err)
		} else {
			p.errorf(types.ErrSyntax, "Invalid token %q", token.Value)
		}
		return nil
	case TokenEOF:
		p.errorf(types.ErrUnexpectedEnd, "Unexpected end of expression")
		return nil
	default:
		p.errorf(types.ErrSyntax, "Unexpected token %q", token.Value)
		return nil
	}
}

// parseInfix parses an expression that extends a left-hand side.
func (p *parser) parseInfix(left *types.ASTNode) *types.ASTNode {
	token := p.current

	if token.Type == TokenQuestion {
		return p.parseCondition(left)
	}

	prec := precedence[token.Type]
	n := p.arena.Alloc(types.NodeBinary, left.Start)
	n.Value = token.Type.String()
	n.LHS = left
	p.advance()

	// Power is right-associative; everything else is left-associative.
	rbp := prec
	if token.Type == TokenPow {
		rbp = prec - 1
	}
	n.RHS = p.parseExpression(rbp)
	n.End = p.prev.End
	return n
}

// parseCondition parses the ternary conditional "cond ? a : b".
// The conditional is right-associative.
func (p *parser) parseCondition(cond *types.ASTNode) *types.ASTNode {
	n := p.arena.Alloc(types.NodeCond, cond.Start)
	n.Cond = cond
	p.advance() // '?'
	n.LHS = p.parseExpression(0)
	if !p.expect(TokenColon) {
		return nil
	}
	n.RHS = p.parseExpression(precedence[TokenQuestion] - 1)
	n.End = p.prev.End
	return n
}

// parseNumber parses a numeric literal.
func (p *parser) parseNumber() *types.ASTNode {
	token := p.current
	v, err := strconv.ParseFloat(token.Value, 64)
	if err != nil {
		p.errorf(types.ErrBadNumber, "Invalid number %q", token.Value)
		return nil
	}
	n := p.arena.Alloc(types.NodeNumber, token.Position)
	n.NumValue = v
	n.End = token.End
	p.advance()
	return n
}

// parseString parses a string literal, decoding escape sequences.
func (p *parser) parseString() *types.ASTNode {
	token := p.current
	n := p.arena.Alloc(types.NodeString, token.Position)
	n.StrValue = unescape(token.Value)
	n.End = token.End
	p.advance()
	return n
}

// parseCall parses a function call "name(arg, ...)".
func (p *parser) parseCall() *types.ASTNode {
	token := p.current
	n := p.arena.Alloc(types.NodeCall, token.Position)
	n.Value = token.Value
	p.advance() // name
	p.advance() // '('

	if p.current.Type != TokenParenClose {
		for {
			arg := p.parseExpression(0)
			if arg == nil {
				return nil
			}
			n.Arguments = append(n.Arguments, arg)
			if p.current.Type != TokenComma {
				break
			}
			p.advance()
		}
	}
	if !p.expect(TokenParenClose) {
		return nil
	}
	n.End = p.prev.End
	return n
}

// parseVector parses a vector constructor "[a, b, c]".
func (p *parser) parseVector() *types.ASTNode {
	token := p.current
	n := p.arena.Alloc(types.NodeVector, token.Position)
	p.advance() // '['

	for {
		elem := p.parseExpression(0)
		if elem == nil {
			return nil
		}
		n.Arguments = append(n.Arguments, elem)
		if p.current.Type != TokenComma {
			break
		}
		p.advance()
	}
	if !p.expect(TokenBracketClose) {
		return nil
	}
	n.End = p.prev.End
	return n
}

// advance moves the lookahead window forward by one token.
func (p *parser) advance() {
	p.prev = p.current
	p.current = p.next
	p.next = p.lexer.Next()
}

// expect checks that the current token matches the expected type and
// advances past it, recording a diagnostic otherwise.
func (p *parser) expect(tt TokenType) bool {
	if p.current.Type != tt {
		if p.current.Type == TokenError && p.lexer.Error() != nil {
			p.errors = append(p.errors, p.lexer.Error())
			return false
		}
		p.errorf(types.ErrExpectedToken, "Expected %s but got %s", tt, p.current.Type)
		return false
	}
	p.advance()
	return true
}

// errorf records a syntax diagnostic at the current token's span.
func (p *parser) errorf(code types.ErrorCode, format string, args ...any) {
	err := &types.Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Start:   p.current.Position,
		End:     p.current.End,
		Token:   p.current.Value,
	}
	p.errors = append(p.errors, err)
}

// unescape decodes the escape sequences supported in string literals.
// Unknown escapes are kept verbatim.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '\'':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
