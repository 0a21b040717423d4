package bytecode

import "fmt"

// Opcode is one VM instruction mnemonic. Every operand is a
// 16-bit word; which ones are symbol ids, type ids or jump offsets depends
// on the opcode.
type Opcode uint8

const (
	LoadSymbol Opcode = iota
	LoadLocal
	StoreLocal
	LoadFromThis
	StoreInThis
	LoadField
	StoreField
	StoreAttribute
	NewStruct
	ReadValue
	ReadField
	ReadArray
	ReadStaticArray
	ReadStaticArrayWithSize
	ReadDynamicArray
	ReadDynamicArrayWithSize
	Dup
	Pop
	Cmp
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	Not
	Jmp
	Call
	Export
	Return
)

var opcodeNames = [...]string{
	"load_symbol", "load_local", "store_local", "load_from_this", "store_in_this",
	"load_field", "store_field", "store_attribute", "new_struct",
	"read_value", "read_field", "read_array", "read_static_array",
	"read_static_array_with_size", "read_dynamic_array", "read_dynamic_array_with_size",
	"dup", "pop", "cmp",
	"eq", "neq", "lt", "lte", "gt", "gte", "not",
	"jmp", "call", "export", "return",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "unknown"
}

// ThisName, CtorName and MainName are the ABI names shared between the
// compiler and the VM: the receiver local, the constructor name-mangling
// convention and the program entry point.
const (
	ThisName  = "this"
	CtorName  = "<init>"
	MainName  = "<main>"
	Addr      = "address" // STORE_LOCAL to this name moves the reader cursor instead
)

// CtorFunctionName mangles a complex type's name into its constructor's
// function name, e.g. "Header" -> "<init>Header".
func CtorFunctionName(typeName string) string {
	return CtorName + typeName
}

// Instruction is one decoded bytecode op plus its raw 16-bit operands.
type Instruction struct {
	Op       Opcode
	Operands []uint16
}

// Disassemble renders one instruction with symbols resolved, matching the
// textual form used for debugging; not a stable format.
func (i Instruction) Disassemble(symbols *SymbolTable) string {
	switch i.Op {
	case LoadSymbol, LoadLocal, StoreLocal, LoadFromThis, StoreInThis,
		LoadField, StoreField, StoreAttribute, NewStruct, Export:
		var parts string
		for _, o := range i.Operands {
			parts += fmt.Sprintf(" #%d(%s)", o, symbols.Get(SymbolId(o)).String_())
		}
		return i.Op.String() + parts
	case Call:
		return fmt.Sprintf("%s #%d(%s), argc=%d", i.Op,
			i.Operands[0], symbols.Get(SymbolId(i.Operands[0])).String_(), i.Operands[1])
	case Jmp:
		off := int16(i.Operands[0])
		sign := "+"
		if off < 0 {
			sign = ""
		}
		return fmt.Sprintf("%s %s%d", i.Op, sign, off)
	case ReadValue:
		return fmt.Sprintf("%s #%d(%s), %d(%s)", i.Op,
			i.Operands[0], symbols.Get(SymbolId(i.Operands[0])).String_(),
			i.Operands[1], TypeName(TypeId(i.Operands[1])))
	case ReadField:
		return fmt.Sprintf("%s #%d(%s), #%d(%s), %d(%s)", i.Op,
			i.Operands[0], symbols.Get(SymbolId(i.Operands[0])).String_(),
			i.Operands[1], symbols.Get(SymbolId(i.Operands[1])).String_(),
			i.Operands[2], TypeName(TypeId(i.Operands[2])))
	default:
		return i.Op.String()
	}
}
