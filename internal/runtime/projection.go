package runtime

import (
	"math/big"
	"sort"
	"strconv"

	"patternvm/internal/bytecode"
	"patternvm/internal/pattern"
	"patternvm/internal/vm"
)

// projectValue turns one EXPORT-ed vm.Value into the typed, addressed
// pattern.Pattern tree an embedding tool renders, recursing into struct
// fields and array elements to build each composite pattern's children.
func projectValue(name string, v *vm.Value, symbols *bytecode.SymbolTable, counter *pattern.Counter) *pattern.Pattern {
	d := v
	for d != nil && d.Kind == vm.KindField {
		d = d.Field.Value
	}
	if d == nil {
		return nil
	}

	p := &pattern.Pattern{
		Name:    name,
		Address: addressOrZero(d.Address),
		Section: pattern.Section(d.Section),
		Size:    d.Size,
		Color:   counter.NextColor(),
	}

	switch d.Kind {
	case vm.KindBool:
		p.Kind = pattern.Boolean
		p.Bool = d.Bool
		p.TypeName = "bool"
	case vm.KindUnsigned:
		p.Kind = pattern.Unsigned
		p.Uint = d.Uint
		p.TypeName = bytecode.TypeName(d.TypeId)
	case vm.KindSigned:
		p.Kind = pattern.Signed
		p.Int = d.Int
		p.TypeName = bytecode.TypeName(d.TypeId)
	case vm.KindFloat:
		p.Kind = pattern.Float
		p.Float64 = d.Float64
		p.TypeName = bytecode.TypeName(d.TypeId)
	case vm.KindStruct:
		p.Kind = pattern.StructKind
		p.TypeName = symbols.GetString(d.Struct.TypeName)
		s := d.Struct
		children := make([]*pattern.Pattern, 0, len(s.FieldOrder))
		for _, fieldName := range s.FieldOrder {
			f := s.Fields[fieldName]
			children = append(children, projectValue(symbols.GetString(fieldName), f.Value, symbols, counter))
		}
		p.Children = children
		for attr := range s.Attributes {
			p.Attrs = append(p.Attrs, symbols.GetString(attr))
		}
		sort.Strings(p.Attrs)
	case vm.KindStaticArray:
		p.Kind = pattern.StaticArrayKind
		a := d.StaticArray
		p.TypeName = symbols.GetString(a.ElementType)
		if a.Template != nil {
			children := make([]*pattern.Pattern, 0, a.Count)
			stride := int64(a.Template.Size)
			for i := uint32(0); i < a.Count; i++ {
				addr := new(big.Int).Add(addressOrZero(a.Template.Address), big.NewInt(stride*int64(i)))
				elem := *a.Template
				elem.Address = addr
				children = append(children, projectValue(indexName(int(i)), &elem, symbols, counter))
			}
			p.Children = children
		}
	case vm.KindDynamicArray:
		p.Kind = pattern.DynamicArrayKind
		a := d.DynamicArray
		p.TypeName = symbols.GetString(a.ElementType)
		children := make([]*pattern.Pattern, 0, len(a.Values))
		for i, elem := range a.Values {
			children = append(children, projectValue(indexName(i), elem, symbols, counter))
		}
		p.Children = children
	}
	return p
}

func addressOrZero(a *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return a
}

func indexName(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
