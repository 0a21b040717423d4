// Package ast defines the node set the compiler lowers to bytecode. Nodes
// are plain structs implementing a marker interface, not a virtual
// Accept/Visit hierarchy — lowering is a type switch in internal/compiler.
package ast

import "patternvm/internal/bytecode"

// Location is the node's position in the surface source text, carried for
// compile-error reporting.
type Location struct {
	Line   int
	Column int
}

// Node is the marker interface every AST node implements.
type Node interface {
	Pos() Location
}

// Attributes attach to any node kind via a side map keyed by node identity
// rather than a "has attributes" mixin repeated on every node struct.
type Attributes map[string][]string

// base carries the fields shared by every node.
type base struct {
	Loc Location
}

func (b base) Pos() Location { return b.Loc }

// --- expressions ---

type Identifier struct {
	base
	Name string
}

type IntLiteral struct {
	base
	Value  int64
	Signed bool
}

type StringLiteral struct {
	base
	Value string
}

type BoolLiteral struct {
	base
	Value bool
}

// MemberAccess is a multi-segment rvalue path segment `.Name` chained onto
// Target; it lowers to a LOAD_FIELD.
type MemberAccess struct {
	base
	Target Node
	Name   string
}

// IndexAccess is a `[Index]` segment chained onto Target.
type IndexAccess struct {
	base
	Target Node
	Index  Node
}

// BinaryOp covers comparisons and logical and/or. Op is one of
// "==","!=","<","<=",">",">=","&&","||".
type BinaryOp struct {
	base
	Op          string
	Left, Right Node
}

type UnaryNot struct {
	base
	Operand Node
}

// --- type references ---

// TypeRef names a type used in a declaration: either a builtin scalar
// (BuiltinId set, Name is the canonical spelling) or a reference to a
// previously declared complex type (BuiltinId is Custom, Name is the type
// name).
type TypeRef struct {
	base
	Name      string
	BuiltinId bytecode.TypeId
}

// --- declarations ---

// VarDecl is `Type name [array bounds] [@ Placement];` — the placement
// offset, when present, distinguishes an outermost placed variable (which
// both binds a local and exports a pattern) from a plain field/local
// declaration.
type VarDecl struct {
	base
	Type        TypeRef
	Name        string
	Placement   Node // nil if not an absolute placement
	ArrayCount  Node // nil if not an array
	ArrayWhile  Node // condition; non-nil for "while" arrays, mutually exclusive with ArrayCount
	Attrs       Attributes
}

// StructDecl declares a complex type; Bases lists parent struct names for
// inheritance (each base's constructor is called before the derived body).
type StructDecl struct {
	base
	Name  string
	Bases []string
	Body  []Node
}

type UnionDecl struct {
	base
	Name string
	Body []Node
}

type EnumEntry struct {
	Name  string
	Value Node
}

type EnumDecl struct {
	base
	Name         string
	Underlying   TypeRef
	Entries      []EnumEntry
}

type BitfieldEntry struct {
	Name string
	Bits int
}

type BitfieldDecl struct {
	base
	Name    string
	Entries []BitfieldEntry
}

// --- control flow ---

type IfElse struct {
	base
	Cond       Node
	Then       []Node
	Else       []Node // nil if no else branch
}

type MatchCase struct {
	Cond Node // nil for the default arm
	Body []Node
}

type Match struct {
	base
	Cases []MatchCase
}

type WhileLoop struct {
	base
	Cond Node
	Body []Node
}

// Assignment is `Target = Value;` for the single-name case; multi-segment
// lvalue paths are out of scope for assignment, only for rvalue reads.
type Assignment struct {
	base
	Target string
	Value  Node
}

// FuncCall is a bare call statement/expression, e.g. `std::print(x)`.
type FuncCall struct {
	base
	Namespace []string
	Name      string
	Args      []Node
}

// Program is the top-level node set: an ordered list of declarations,
// matching the textual order the pattern export order must follow.
type Program struct {
	base
	Decls []Node
}
