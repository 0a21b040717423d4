// Package vm implements the stack-based bytecode interpreter: frame stack,
// operand stack, instruction dispatch, reader-driven byte reads and
// constructor invocation.
package vm

import (
	"fmt"
	"math/big"

	"patternvm/internal/bytecode"
)

// Kind tags which alternative of Value is populated.
type Kind uint8

const (
	KindBool Kind = iota
	KindUnsigned
	KindSigned
	KindFloat
	KindNested
	KindField
	KindStruct
	KindStaticArray
	KindDynamicArray
	KindString
)

// Value is the VM's tagged runtime value. Address is 128-bit to give
// headroom for synthetic-section addressing; Unsigned/Signed use
// math/big.Int because no pack dependency offers a fixed 128-bit integer
// type (see DESIGN.md).
type Value struct {
	Size    uint16
	Address *big.Int
	Section uint64
	TypeId  bytecode.TypeId

	Kind Kind

	Bool    bool
	Uint    *big.Int
	Int     *big.Int
	Float64 float64
	Str     string

	Nested       *Value
	Field        *Field // weak: never owns its parent Struct
	Struct       *Struct
	StaticArray  *StaticArray
	DynamicArray *DynamicArray
}

// Attribute is attached via STORE_ATTRIBUTE (modeled on original_source's
// value.hpp Object.attributes).
type Attribute struct {
	Name bytecode.SymbolId
}

// objectHeader is the metadata shared by Field and Struct (original_source
// calls this `Object`): name, type name, address, section, export color and
// any attached attributes.
type objectHeader struct {
	Name       bytecode.SymbolId
	TypeName   bytecode.SymbolId
	Address    *big.Int
	Section    uint64
	Color      uint32
	Attributes map[bytecode.SymbolId]Attribute
}

func newHeader(addr *big.Int, section uint64) objectHeader {
	return objectHeader{Address: addr, Section: section, Attributes: make(map[bytecode.SymbolId]Attribute)}
}

// Field pairs an object header with the Value it names.
type Field struct {
	objectHeader
	Value *Value
}

// Struct is an ordered map of field-name symbol to Field; FieldOrder
// records insertion order since Go maps don't preserve it.
type Struct struct {
	objectHeader
	Fields     map[bytecode.SymbolId]*Field
	FieldOrder []bytecode.SymbolId
}

func NewStructValue(typeName bytecode.SymbolId, addr *big.Int, section uint64) *Struct {
	h := newHeader(addr, section)
	h.TypeName = typeName
	return &Struct{objectHeader: h, Fields: make(map[bytecode.SymbolId]*Field)}
}

func (s *Struct) SetField(name bytecode.SymbolId, f *Field) {
	if _, exists := s.Fields[name]; !exists {
		s.FieldOrder = append(s.FieldOrder, name)
	}
	s.Fields[name] = f
}

func (s *Struct) Size() int {
	total := 0
	for _, name := range s.FieldOrder {
		total += int(s.Fields[name].Value.Size)
	}
	return total
}

// StaticArray holds a single template value and a count; total size is
// template.Size * Count.
type StaticArray struct {
	Template    *Value
	ElementType bytecode.SymbolId
	Count       uint32
}

func (a *StaticArray) Size() int {
	if a.Template == nil {
		return 0
	}
	return int(a.Template.Size) * int(a.Count)
}

// DynamicArray holds individually-sized elements (structs of varying
// layout); total size is the sum of each element's size.
type DynamicArray struct {
	Values      []*Value
	ElementType bytecode.SymbolId
}

func (a *DynamicArray) Size() int {
	total := 0
	for _, v := range a.Values {
		total += int(v.Size)
	}
	return total
}

func NewBool(v bool) *Value {
	return &Value{Kind: KindBool, Bool: v, Size: 1}
}

func NewUnsigned(v *big.Int, size uint16) *Value {
	return &Value{Kind: KindUnsigned, Uint: v, Size: size}
}

func NewSigned(v *big.Int, size uint16) *Value {
	return &Value{Kind: KindSigned, Int: v, Size: size}
}

func NewFloat(v float64, size uint16) *Value {
	return &Value{Kind: KindFloat, Float64: v, Size: size}
}

// NewString wraps an interned string-literal symbol so EQ/NEQ against it
// compares by content rather than collapsing to a numeric fallback.
func NewString(v string) *Value {
	return &Value{Kind: KindString, Str: v, Size: uint16(len(v))}
}

func NewFieldValue(f *Field) *Value {
	return &Value{Kind: KindField, Field: f, Size: f.Value.Size, Address: f.Address, Section: f.Section}
}

func NewStructValueWrapper(s *Struct) *Value {
	v := &Value{Kind: KindStruct, Struct: s, Address: s.Address, Section: s.Section}
	v.Size = uint16(s.Size())
	return v
}

func NewStaticArrayValue(a *StaticArray) *Value {
	v := &Value{Kind: KindStaticArray, StaticArray: a}
	if a.Template != nil {
		v.Address = a.Template.Address
		v.Section = a.Template.Section
	}
	v.Size = uint16(a.Size())
	return v
}

func NewDynamicArrayValue(a *DynamicArray) *Value {
	v := &Value{Kind: KindDynamicArray, DynamicArray: a}
	if len(a.Values) > 0 {
		v.Address = a.Values[0].Address
		v.Section = a.Values[0].Section
	}
	v.Size = uint16(a.Size())
	return v
}

// deref follows Field indirection to the primitive/complex value it wraps,
// matching original_source's primitiveVisit recursion through Value->Field.
func (v *Value) deref() *Value {
	for v != nil && v.Kind == KindField {
		v = v.Field.Value
	}
	return v
}

func (v *Value) ToUnsigned() (*big.Int, error) {
	d := v.deref()
	switch d.Kind {
	case KindUnsigned:
		return d.Uint, nil
	case KindSigned:
		return d.Int, nil
	case KindBool:
		if d.Bool {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	default:
		return nil, fmt.Errorf("cannot convert %v to integer", d.Kind)
	}
}

func (v *Value) ToBool() (bool, error) {
	d := v.deref()
	switch d.Kind {
	case KindBool:
		return d.Bool, nil
	case KindUnsigned:
		return d.Uint.Sign() != 0, nil
	case KindSigned:
		return d.Int.Sign() != 0, nil
	case KindString:
		return d.Str != "", nil
	default:
		return false, fmt.Errorf("cannot convert %v to boolean", d.Kind)
	}
}

func (v *Value) ToStruct() *Struct {
	d := v.deref()
	if d.Kind == KindStruct {
		return d.Struct
	}
	return nil
}
