package bytecode

import (
	"strconv"
	"strings"
)

// Function is a named instruction sequence. Constructors for named complex
// types are stored as regular functions whose name is the mangled
// "<init>TypeName" form; the program entry point is named "<main>".
type Function struct {
	Name         SymbolId
	Instructions []Instruction
}

// Bytecode is the compiled unit the VM loads: a symbol table shared by
// every function, plus the ordered function list produced by the emitter.
type Bytecode struct {
	Symbols   *SymbolTable
	Functions []*Function
}

func NewBytecode() *Bytecode {
	return &Bytecode{Symbols: NewSymbolTable()}
}

// NewFunction declares a function and returns an Emitter bound to it.
func (b *Bytecode) NewFunction(name string) *Emitter {
	fn := &Function{Name: b.Symbols.InternString(name)}
	b.Functions = append(b.Functions, fn)
	return NewEmitter(b.Symbols, fn)
}

func (b *Bytecode) FindFunction(name string) *Function {
	for _, fn := range b.Functions {
		if b.Symbols.GetString(fn.Name) == name {
			return fn
		}
	}
	return nil
}

// Disassemble renders every function's body as text. The format is for debugging only and is not stable across versions.
func (b *Bytecode) Disassemble() string {
	var sb strings.Builder
	for _, fn := range b.Functions {
		sb.WriteString("function " + b.Symbols.GetString(fn.Name) + " {\n")
		for pc, insn := range fn.Instructions {
			sb.WriteString("    ")
			sb.WriteString(strconv.Itoa(pc))
			sb.WriteString(": ")
			sb.WriteString(insn.Disassemble(b.Symbols))
			sb.WriteString("\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}
