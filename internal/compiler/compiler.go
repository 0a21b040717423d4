// Package compiler lowers an ast.Program to bytecode.Bytecode. Each node
// kind has a uniform emit rule dispatched by a type switch rather than a
// virtual Accept/Visit hierarchy; a single emitter flag distinguishes
// lowering inside a constructor from lowering at outer program scope.
package compiler

import (
	"fmt"

	"patternvm/internal/ast"
	"patternvm/internal/bytecode"
	plerrors "patternvm/internal/errors"
)

// complexKind records which complex TypeId a declared type name resolves
// to, discovered in a first pass over the program's declarations.
type Compiler struct {
	bc          *bytecode.Bytecode
	complexKind map[string]bytecode.TypeId
}

func New() *Compiler {
	return &Compiler{
		bc:          bytecode.NewBytecode(),
		complexKind: make(map[string]bytecode.TypeId),
	}
}

// Compile lowers a full program into loadable bytecode.
func Compile(prog *ast.Program) (*bytecode.Bytecode, error) {
	c := New()
	c.collectTypeNames(prog)

	main := c.bc.NewFunction(bytecode.MainName)
	for _, decl := range prog.Decls {
		if err := c.emitTopLevel(decl, main); err != nil {
			return nil, err
		}
	}
	main.Return()

	return c.bc, nil
}

func (c *Compiler) collectTypeNames(prog *ast.Program) {
	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *ast.StructDecl:
			c.complexKind[d.Name] = bytecode.Structure
		case *ast.UnionDecl:
			c.complexKind[d.Name] = bytecode.Union
		case *ast.EnumDecl:
			c.complexKind[d.Name] = bytecode.Enum
		case *ast.BitfieldDecl:
			c.complexKind[d.Name] = bytecode.Bitfield
		}
	}
}

func loc(n ast.Node) plerrors.Location {
	p := n.Pos()
	return plerrors.Location{Line: p.Line, Column: p.Column}
}

// resolveType decides the TypeId a TypeRef lowers to: its declared builtin
// id, or the complex kind discovered for a custom type name.
func (c *Compiler) resolveType(t ast.TypeRef) bytecode.TypeId {
	if kind, ok := c.complexKind[t.Name]; ok {
		return kind
	}
	return t.BuiltinId
}

// emitTopLevel handles the declarations that may appear at program scope:
// type declarations synthesize their constructor function; everything else
// is lowered straight into main.
func (c *Compiler) emitTopLevel(node ast.Node, main *bytecode.Emitter) error {
	switch d := node.(type) {
	case *ast.StructDecl:
		return c.emitStructDecl(d)
	case *ast.UnionDecl:
		return c.emitUnionDecl(d)
	case *ast.EnumDecl:
		return c.emitEnumDecl(d)
	case *ast.BitfieldDecl:
		return c.emitBitfieldDecl(d)
	default:
		return c.emit(node, main)
	}
}

// emitStructDecl synthesizes "<init>Name" with the ctor flag set: each base
// type's constructor runs first, then the body is lowered field by field.
func (c *Compiler) emitStructDecl(d *ast.StructDecl) error {
	e := c.bc.NewFunction(bytecode.CtorFunctionName(d.Name))
	e.Ctor = true

	for _, base := range d.Bases {
		e.LoadLocal(bytecode.ThisName)
		e.Call(bytecode.CtorFunctionName(base), 0)
	}
	for _, stmt := range d.Body {
		if err := c.emit(stmt, e); err != nil {
			return err
		}
	}
	e.Return()
	return nil
}

func (c *Compiler) emitUnionDecl(d *ast.UnionDecl) error {
	// A union reads every member at the same starting address; each member
	// re-reads from the struct's own address rather than advancing, which
	// the VM's per-field READ_FIELD already does relative to the reader
	// cursor the caller positions before CALL.
	e := c.bc.NewFunction(bytecode.CtorFunctionName(d.Name))
	e.Ctor = true
	for _, stmt := range d.Body {
		if err := c.emit(stmt, e); err != nil {
			return err
		}
	}
	e.Return()
	return nil
}

func (c *Compiler) emitEnumDecl(d *ast.EnumDecl) error {
	e := c.bc.NewFunction(bytecode.CtorFunctionName(d.Name))
	e.Ctor = true
	id := c.resolveType(d.Underlying)
	e.ReadField("value", d.Underlying.Name, id)
	e.Return()
	return nil
}

func (c *Compiler) emitBitfieldDecl(d *ast.BitfieldDecl) error {
	e := c.bc.NewFunction(bytecode.CtorFunctionName(d.Name))
	e.Ctor = true
	for _, entry := range d.Entries {
		// Bitfield members share the byte(s) their declaration spans; the
		// VM resolves bit-level packing at READ_FIELD time from the
		// pragma-configured bitfield order, so the compiler only names
		// each member and its declared width via the type name.
		typeName := fmt.Sprintf("b%d", entry.Bits)
		e.ReadField(entry.Name, typeName, bytecode.Bitfield)
	}
	e.Return()
	return nil
}

// emit dispatches a single statement/expression node to its lowering rule.
func (c *Compiler) emit(node ast.Node, e *bytecode.Emitter) error {
	switch n := node.(type) {
	case *ast.VarDecl:
		return c.emitVarDecl(n, e)
	case *ast.IfElse:
		return c.emitIfElse(n, e)
	case *ast.Match:
		return c.emitMatch(n, e)
	case *ast.WhileLoop:
		return c.emitWhileLoop(n, e)
	case *ast.Assignment:
		return c.emitAssignment(n, e)
	case *ast.FuncCall:
		return c.emitFuncCall(n, e)
	case *ast.Identifier, *ast.IntLiteral, *ast.StringLiteral, *ast.BoolLiteral,
		*ast.MemberAccess, *ast.IndexAccess, *ast.BinaryOp, *ast.UnaryNot:
		return c.emitExpr(node, e)
	default:
		return plerrors.NewCompileError(fmt.Sprintf("don't know how to emit %T", node), loc(node))
	}
}

// emitExpr lowers a pure rvalue, leaving its value on top of the stack.
func (c *Compiler) emitExpr(node ast.Node, e *bytecode.Emitter) error {
	switch n := node.(type) {
	case *ast.Identifier:
		if e.Ctor {
			if _, ok := e.LocalType(n.Name); !ok {
				e.LoadFromThis(n.Name)
				return nil
			}
		}
		e.LoadLocal(n.Name)
		return nil
	case *ast.IntLiteral:
		var id bytecode.SymbolId
		if n.Signed {
			id = e.Symbols().InternSigned(n.Value)
		} else {
			id = e.Symbols().InternUnsigned(uint64(n.Value))
		}
		e.LoadSymbol(id)
		return nil
	case *ast.StringLiteral:
		e.LoadSymbol(e.Symbols().InternString(n.Value))
		return nil
	case *ast.BoolLiteral:
		v := int64(0)
		if n.Value {
			v = 1
		}
		e.LoadSymbol(e.Symbols().InternSigned(v))
		return nil
	case *ast.MemberAccess:
		// Multi-segment rvalue path: root load then one LOAD_FIELD per
		// ".name" segment.
		if err := c.emitExpr(n.Target, e); err != nil {
			return err
		}
		e.LoadField(n.Name)
		return nil
	case *ast.IndexAccess:
		if err := c.emitExpr(n.Target, e); err != nil {
			return err
		}
		if err := c.emitExpr(n.Index, e); err != nil {
			return err
		}
		e.LoadField("[]")
		return nil
	case *ast.UnaryNot:
		if err := c.emitExpr(n.Operand, e); err != nil {
			return err
		}
		e.Not()
		return nil
	case *ast.BinaryOp:
		return c.emitBinaryOp(n, e)
	default:
		return plerrors.NewCompileError(fmt.Sprintf("don't know how to emit expression %T", node), loc(node))
	}
}

func (c *Compiler) emitBinaryOp(n *ast.BinaryOp, e *bytecode.Emitter) error {
	switch n.Op {
	case "&&", "||":
		if err := c.emitExpr(n.Left, e); err != nil {
			return err
		}
		e.Dup()
		if n.Op == "||" {
			e.Not()
		}
		end := e.Label()
		e.Cmp()
		e.Jmp(end)
		e.Pop()
		if err := c.emitExpr(n.Right, e); err != nil {
			return err
		}
		e.PlaceLabel(end)
		e.ResolveLabel(end)
		return nil
	default:
		if err := c.emitExpr(n.Left, e); err != nil {
			return err
		}
		if err := c.emitExpr(n.Right, e); err != nil {
			return err
		}
		switch n.Op {
		case "==":
			e.Eq()
		case "!=":
			e.Neq()
		case "<":
			e.Lt()
		case "<=":
			e.Lte()
		case ">":
			e.Gt()
		case ">=":
			e.Gte()
		default:
			return plerrors.NewCompileError("unknown binary operator "+n.Op, loc(n))
		}
		return nil
	}
}

// emitVarDecl lowers a declaration, dispatching on the ctor flag to choose
// between StoreInThis and the local/dup/export StoreValue idiom.
func (c *Compiler) emitVarDecl(n *ast.VarDecl, e *bytecode.Emitter) error {
	if n.Placement != nil {
		if err := c.emitExpr(n.Placement, e); err != nil {
			return err
		}
		e.StoreLocal(bytecode.Addr, "u64")
	}

	id := c.resolveType(n.Type)

	if n.ArrayCount != nil || n.ArrayWhile != nil {
		return c.emitArrayDecl(n, e, id)
	}

	if !e.Ctor {
		if n.Placement == nil && !isOutermostPlaced(n) {
			e.Local(n.Name, n.Type.Name)
			return nil
		}
		e.ReadValue(n.Type.Name, id)
		e.StoreValue(n.Name, n.Type.Name)
		return nil
	}

	if bytecode.IsComplex(id) {
		e.NewStruct(n.Type.Name)
		e.Call(bytecode.CtorFunctionName(n.Type.Name), 0)
		e.StoreField(n.Name, n.Type.Name)
		return nil
	}
	e.ReadField(n.Name, n.Type.Name, id)
	return nil
}

// isOutermostPlaced defers to the placement check already made by the
// caller; kept as a named predicate so the "no placement -> local only"
// rule reads as an explicit decision rather than an incidental fallthrough.
func isOutermostPlaced(n *ast.VarDecl) bool {
	return n.Placement != nil
}

func (c *Compiler) emitArrayDecl(n *ast.VarDecl, e *bytecode.Emitter, elementId bytecode.TypeId) error {
	complex := bytecode.IsComplex(elementId)

	if n.ArrayCount != nil {
		// probe-read one element to form the template value
		e.ReadValue(n.Type.Name, elementId)
		if err := c.emitExpr(n.ArrayCount, e); err != nil {
			return err
		}
		if complex {
			e.ReadDynamicArrayWithSize()
		} else {
			e.ReadStaticArrayWithSize()
		}
		e.StoreValue(n.Name, n.Type.Name)
		return nil
	}

	// while-conditioned array: loop label, evaluate condition, then the
	// appropriate array-read state-machine opcode continues/terminates it.
	loop := e.Label()
	e.PlaceLabel(loop)
	if err := c.emitExpr(n.ArrayWhile, e); err != nil {
		return err
	}
	if complex {
		e.ReadDynamicArray(n.Type.Name, elementId)
	} else {
		e.ReadStaticArray(n.Type.Name, elementId)
	}
	e.Jmp(loop)
	e.ResolveLabel(loop)
	e.StoreValue(n.Name, n.Type.Name)
	return nil
}

// emitIfElse lowers a conditional to the CMP+JMP shape: CMP skips the
// following JMP when the condition is true, so the JMP's target is the
// else branch.
func (c *Compiler) emitIfElse(n *ast.IfElse, e *bytecode.Emitter) error {
	if err := c.emitExpr(n.Cond, e); err != nil {
		return err
	}
	elseLabel := e.Label()
	endLabel := e.Label()
	e.Cmp()
	e.Jmp(elseLabel)
	for _, stmt := range n.Then {
		if err := c.emit(stmt, e); err != nil {
			return err
		}
	}
	e.Jmp(endLabel)
	e.PlaceLabel(elseLabel)
	e.ResolveLabel(elseLabel)
	for _, stmt := range n.Else {
		if err := c.emit(stmt, e); err != nil {
			return err
		}
	}
	e.PlaceLabel(endLabel)
	e.ResolveLabel(endLabel)
	return nil
}

// emitMatch lowers a cascade of CMP/JMP blocks sharing one end label.
func (c *Compiler) emitMatch(n *ast.Match, e *bytecode.Emitter) error {
	end := e.Label()
	for _, arm := range n.Cases {
		var next *bytecode.Label
		if arm.Cond != nil {
			if err := c.emitExpr(arm.Cond, e); err != nil {
				return err
			}
			next = e.Label()
			e.Cmp()
			e.Jmp(next)
		}
		for _, stmt := range arm.Body {
			if err := c.emit(stmt, e); err != nil {
				return err
			}
		}
		e.Jmp(end)
		if next != nil {
			e.PlaceLabel(next)
			e.ResolveLabel(next)
		}
	}
	e.PlaceLabel(end)
	e.ResolveLabel(end)
	return nil
}

func (c *Compiler) emitWhileLoop(n *ast.WhileLoop, e *bytecode.Emitter) error {
	loop := e.Label()
	end := e.Label()
	e.PlaceLabel(loop)
	if err := c.emitExpr(n.Cond, e); err != nil {
		return err
	}
	e.Cmp()
	e.Jmp(end)
	for _, stmt := range n.Body {
		if err := c.emit(stmt, e); err != nil {
			return err
		}
	}
	e.Jmp(loop)
	e.ResolveLabel(loop)
	e.PlaceLabel(end)
	e.ResolveLabel(end)
	return nil
}

// emitAssignment handles the single-name lvalue case; multi-segment
// paths are lowered only for rvalue reads, never as assignment targets.
func (c *Compiler) emitAssignment(n *ast.Assignment, e *bytecode.Emitter) error {
	if err := c.emitExpr(n.Value, e); err != nil {
		return err
	}
	typeName, ok := e.LocalType(n.Target)
	if !ok {
		typeName = "auto"
	}
	if e.Ctor {
		e.StoreInThis(n.Target, typeName)
		return nil
	}
	e.StoreLocal(n.Target, typeName)
	return nil
}

func (c *Compiler) emitFuncCall(n *ast.FuncCall, e *bytecode.Emitter) error {
	for _, arg := range n.Args {
		if err := c.emitExpr(arg, e); err != nil {
			return err
		}
	}
	name := n.Name
	for i := len(n.Namespace) - 1; i >= 0; i-- {
		name = n.Namespace[i] + "::" + name
	}
	e.Call(name, len(n.Args))
	return nil
}
