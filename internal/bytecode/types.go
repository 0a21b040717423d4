package bytecode

// TypeId is a compact enum covering every scalar and complex kind the
// pattern language can describe. Ordering matters: the classification
// predicates below are implemented as range checks over it.
type TypeId uint16

const (
	U8 TypeId = iota
	U16
	U24
	U32
	U48
	U64
	U128
	S8
	S16
	S24
	S32
	S48
	S64
	S128
	Bool
	Float
	Double
	Char
	Char16
	String
	Padding
	Auto
	CustomType
	Structure
	Union
	Enum
	Bitfield
)

// TypeInfo pairs a type id with the symbol holding its declared name.
type TypeInfo struct {
	Id   TypeId
	Name SymbolId
}

func IsBuiltin(id TypeId) bool { return id <= Char16 }
func IsComplex(id TypeId) bool { return id >= Structure }
func IsSigned(id TypeId) bool  { return id >= S8 && id <= S128 }
func IsUnsigned(id TypeId) bool {
	return id <= U128
}
func IsInteger(id TypeId) bool { return IsSigned(id) || IsUnsigned(id) }

// TypeSize returns the fixed byte width of a builtin scalar type, or 0 for
// anything without a fixed width (complex types, auto, padding, string).
func TypeSize(id TypeId) int {
	switch id {
	case U8, S8, Bool, Char:
		return 1
	case U16, S16, Char16:
		return 2
	case U24, S24:
		return 3
	case U32, S32, Float:
		return 4
	case U48, S48:
		return 6
	case U64, S64, Double:
		return 8
	case U128, S128:
		return 16
	default:
		return 0
	}
}

var typeNames = map[TypeId]string{
	U8: "u8", U16: "u16", U24: "u24", U32: "u32", U48: "u48", U64: "u64", U128: "u128",
	S8: "s8", S16: "s16", S24: "s24", S32: "s32", S48: "s48", S64: "s64", S128: "s128",
	Bool: "bool", Float: "float", Double: "double", Char: "char", Char16: "char16",
	String: "string", Padding: "padding", Auto: "auto", CustomType: "custom",
	Structure: "struct", Union: "union", Enum: "enum", Bitfield: "bitfield",
}

func TypeName(id TypeId) string {
	if n, ok := typeNames[id]; ok {
		return n
	}
	return "unknown"
}
