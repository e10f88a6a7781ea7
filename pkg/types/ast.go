package types

// NodeType identifies the type of a parse tree node.
type NodeType string

// Parse tree node types.
const (
	NodeNumber   NodeType = "number"   // numeric literal
	NodeString   NodeType = "string"   // string literal
	NodeVariable NodeType = "variable" // $name or bare name reference
	NodeUnary    NodeType = "unary"    // -, !
	NodeBinary   NodeType = "binary"   // + - * / % ^ comparisons && ||
	NodeCall     NodeType = "call"     // name(args...)
	NodeCond     NodeType = "cond"     // cond ? a : b
	NodeVector   NodeType = "vector"   // [a, b, c]
	NodeAssign   NodeType = "assign"   // $name = expr
	NodeBlock    NodeType = "block"    // assignments followed by a result expression
)

// ASTNode is a node of the parse tree.
//
// Start and End delimit the node's span in the source text (End exclusive);
// diagnostics reported against the node reuse the same offsets.
//
// TypeDesc, Ref, CallIndex and LocalIndex are filled in during binding and
// are meaningless before the owning expression reaches the prepared state.
type ASTNode struct {
	Type     NodeType
	Value    string  // operator symbol or referenced name
	NumValue float64 // literal value for NodeNumber
	StrValue string  // literal value for NodeString
	Start    int
	End      int

	// Relations
	Cond      *ASTNode   // condition of NodeCond
	LHS       *ASTNode   // left operand, unary operand, assignment value
	RHS       *ASTNode   // right operand
	Arguments []*ASTNode // call arguments, vector components, block statements

	// Binding results
	TypeDesc   TypeDescriptor
	Ref        VarRef // resolved external reference for NodeVariable
	CallIndex  int    // call-site ordinal for NodeCall
	LocalIndex int    // local slot ordinal for NodeAssign and local NodeVariable
}

// arenaChunkSize is the number of ASTNode values pre-allocated per arena
// chunk. Most expressions fit in a single chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for ASTNode values.
//
// Instead of allocating each node individually on the heap, the arena
// pre-allocates fixed-size chunks of ASTNode structs and hands out pointers
// into them, so a typical parse performs a single allocation.
//
// The arena must stay alive as long as any pointer returned by Alloc is
// reachable; the owning expression keeps a reference to it for exactly that
// reason. NodeArena is not safe for concurrent use; each parser owns its own.
type NodeArena struct {
	chunks [][]ASTNode
	pos    int // next free index in the last chunk
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]ASTNode{make([]ASTNode, arenaChunkSize)},
	}
}

// Alloc returns a pointer to a zero-valued ASTNode inside the arena with
// Type and Start set. Remaining fields are left at their zero values for the
// caller to fill.
func (a *NodeArena) Alloc(nodeType NodeType, start int) *ASTNode {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]ASTNode, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Type = nodeType
	n.Start = start
	return n
}

// String returns a string representation of the node type.
func (n *ASTNode) String() string {
	return string(n.Type)
}
