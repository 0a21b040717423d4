package validator

import (
	"testing"

	"patternvm/internal/ast"
)

func TestValidProgramHasNoErrors(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{Name: "Base"},
		&ast.StructDecl{Name: "Derived", Bases: []string{"Base"}},
	}}
	if errs := New().Validate(prog); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestUndeclaredBaseIsReported(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{Name: "Derived", Bases: []string{"Missing"}},
	}}
	errs := New().Validate(prog)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
}

func TestSelfInheritanceIsReported(t *testing.T) {
	prog := &ast.Program{Decls: []ast.Node{
		&ast.StructDecl{Name: "Loop", Bases: []string{"Loop"}},
	}}
	errs := New().Validate(prog)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
}
