package compiler

import (
	"testing"

	"patternvm/internal/ast"
	"patternvm/internal/bytecode"
)

func placedVar(name, typeName string, id bytecode.TypeId, addr int64) *ast.VarDecl {
	return &ast.VarDecl{
		Type:      ast.TypeRef{Name: typeName, BuiltinId: id},
		Name:      name,
		Placement: &ast.IntLiteral{Value: addr},
	}
}

func TestCompileSingleU32(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		placedVar("x", "u32", bytecode.U32, 0),
	}}
	bc, err := Compile(prog)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	main := bc.FindFunction(bytecode.MainName)
	if main == nil {
		t.Fatal("expected <main> function")
	}
	var ops []bytecode.Opcode
	for _, i := range main.Instructions {
		ops = append(ops, i.Op)
	}
	want := []bytecode.Opcode{
		bytecode.LoadSymbol, bytecode.StoreLocal,
		bytecode.ReadValue, bytecode.Dup, bytecode.StoreLocal, bytecode.Export,
		bytecode.Return,
	}
	if len(ops) != len(want) {
		t.Fatalf("opcode mismatch: got %v want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("opcode[%d]: got %v want %v (full: %v)", i, ops[i], want[i], ops)
		}
	}
}

func TestCompileStructEmitsConstructor(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{
			Name: "P",
			Body: []ast.Node{
				&ast.VarDecl{Type: ast.TypeRef{Name: "u8", BuiltinId: bytecode.U8}, Name: "a"},
				&ast.VarDecl{Type: ast.TypeRef{Name: "u16", BuiltinId: bytecode.U16}, Name: "b"},
			},
		},
		placedVar("p", "P", bytecode.Structure, 0),
	}}
	bc, err := Compile(prog)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctor := bc.FindFunction(bytecode.CtorFunctionName("P"))
	if ctor == nil {
		t.Fatal("expected <init>P constructor function")
	}
	if len(ctor.Instructions) != 3 {
		t.Fatalf("expected 2 READ_FIELDs + RETURN, got %v", ctor.Instructions)
	}
	if ctor.Instructions[0].Op != bytecode.ReadField || ctor.Instructions[1].Op != bytecode.ReadField {
		t.Fatalf("expected READ_FIELD instructions, got %v", ctor.Instructions)
	}
	if ctor.Instructions[2].Op != bytecode.Return {
		t.Fatalf("expected trailing RETURN, got %v", ctor.Instructions[2])
	}
}

func TestCompileInheritanceCallsBaseCtorFirst(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{Name: "Base", Body: []ast.Node{
			&ast.VarDecl{Type: ast.TypeRef{Name: "u32", BuiltinId: bytecode.U32}, Name: "magic"},
		}},
		&ast.StructDecl{Name: "Derived", Bases: []string{"Base"}, Body: []ast.Node{
			&ast.VarDecl{Type: ast.TypeRef{Name: "u16", BuiltinId: bytecode.U16}, Name: "version"},
		}},
	}}
	bc, err := Compile(prog)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctor := bc.FindFunction(bytecode.CtorFunctionName("Derived"))
	if ctor == nil {
		t.Fatal("expected <init>Derived")
	}
	if ctor.Instructions[0].Op != bytecode.LoadLocal || ctor.Instructions[1].Op != bytecode.Call {
		t.Fatalf("expected base ctor call first, got %v", ctor.Instructions[:2])
	}
	calledName := bc.Symbols.GetString(bytecode.SymbolId(ctor.Instructions[1].Operands[0]))
	if calledName != bytecode.CtorFunctionName("Base") {
		t.Fatalf("expected call to %s, got %s", bytecode.CtorFunctionName("Base"), calledName)
	}
}

func TestCompileIfElseShape(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{Name: "M", Body: []ast.Node{
			&ast.VarDecl{Type: ast.TypeRef{Name: "u8", BuiltinId: bytecode.U8}, Name: "tag"},
			&ast.IfElse{
				Cond: &ast.BinaryOp{Op: "==", Left: &ast.Identifier{Name: "tag"}, Right: &ast.IntLiteral{Value: 1}},
				Then: []ast.Node{&ast.VarDecl{Type: ast.TypeRef{Name: "u16", BuiltinId: bytecode.U16}, Name: "a"}},
				Else: []ast.Node{&ast.VarDecl{Type: ast.TypeRef{Name: "u8", BuiltinId: bytecode.U8}, Name: "a"}},
			},
		}},
	}}
	bc, err := Compile(prog)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctor := bc.FindFunction(bytecode.CtorFunctionName("M"))
	var ops []bytecode.Opcode
	for _, i := range ctor.Instructions {
		ops = append(ops, i.Op)
	}
	// tag field, then load tag + literal + eq + cmp + jmp, then branch bodies
	foundCmp, foundJmp := false, false
	for _, op := range ops {
		if op == bytecode.Cmp {
			foundCmp = true
		}
		if op == bytecode.Jmp {
			foundJmp = true
		}
	}
	if !foundCmp || !foundJmp {
		t.Fatalf("expected CMP/JMP in if/else lowering, got %v", ops)
	}
}

func TestCompileUnknownNodeErrors(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{unknownNode{}}}
	if _, err := Compile(prog); err == nil {
		t.Fatal("expected compile error for unrecognized node")
	}
}

type unknownNode struct{}

func (unknownNode) Pos() ast.Location { return ast.Location{} }
