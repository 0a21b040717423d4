// Package validator runs semantic checks over a parsed Program before it
// reaches internal/compiler: undeclared base types and self-inheriting
// structs. A type name declared twice is not reported. Grounded on the *shape* of sentra's
// compiler pre-pass (a single walk collecting declared names, then a
// second walk checking references against that set) rather than its
// scripting-language semantics.
package validator

import (
	"fmt"

	"patternvm/internal/ast"
	plerrors "patternvm/internal/errors"
)

type Validator struct {
	declared map[string]bool
}

func New() *Validator {
	return &Validator{declared: make(map[string]bool)}
}

// Validate returns every semantic error found; nil means the program is
// safe to compile.
func (v *Validator) Validate(prog *ast.Program) []error {
	v.collectDeclarations(prog)

	var errs []error
	for _, decl := range prog.Decls {
		if d, ok := decl.(*ast.StructDecl); ok {
			errs = append(errs, v.checkStruct(d)...)
		}
	}
	return errs
}

func (v *Validator) collectDeclarations(prog *ast.Program) {
	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *ast.StructDecl:
			v.declared[d.Name] = true
		case *ast.UnionDecl:
			v.declared[d.Name] = true
		case *ast.EnumDecl:
			v.declared[d.Name] = true
		case *ast.BitfieldDecl:
			v.declared[d.Name] = true
		}
	}
}

func (v *Validator) checkStruct(d *ast.StructDecl) []error {
	var errs []error
	for _, base := range d.Bases {
		if base == d.Name {
			errs = append(errs, plerrors.NewStageError(
				plerrors.StageValidator, "V0001",
				fmt.Sprintf("struct %q cannot inherit from itself", d.Name),
				plerrors.Location{Line: d.Pos().Line, Column: d.Pos().Column}))
			continue
		}
		if !v.declared[base] {
			errs = append(errs, plerrors.NewStageError(
				plerrors.StageValidator, "V0002",
				fmt.Sprintf("struct %q inherits from undeclared base %q", d.Name, base),
				plerrors.Location{Line: d.Pos().Line, Column: d.Pos().Column}))
		}
	}
	return errs
}
