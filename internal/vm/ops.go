package vm

import (
	"encoding/binary"
	"math"
	"math/big"

	"patternvm/internal/bytecode"
	plerrors "patternvm/internal/errors"
)

func (vm *VM) opLoadSymbol(frame *Frame, insn bytecode.Instruction) error {
	sym := vm.Symbols.Get(bytecode.SymbolId(insn.Operands[0]))
	switch sym.Kind {
	case bytecode.SymbolUnsigned:
		frame.push(NewUnsigned(new(big.Int).SetUint64(sym.Unsigned), 8))
	case bytecode.SymbolSigned:
		frame.push(NewSigned(big.NewInt(sym.Signed), 8))
	default:
		frame.push(NewString(sym.String))
	}
	return nil
}

func (vm *VM) opLoadLocal(frame *Frame, insn bytecode.Instruction) error {
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	v, ok := frame.Locals[name]
	if !ok {
		return vm.runtimeErr(plerrors.UndefinedVariable, "undefined local "+name)
	}
	frame.push(v)
	return nil
}

func (vm *VM) opStoreLocal(frame *Frame, insn bytecode.Instruction) error {
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "STORE_LOCAL on empty stack")
	}
	if name == bytecode.Addr {
		u, err := v.ToUnsigned()
		if err != nil {
			return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
		}
		vm.cursor = new(big.Int).Set(u)
		return nil
	}
	frame.Locals[name] = v
	return nil
}

func (vm *VM) opLoadFromThis(frame *Frame, insn bytecode.Instruction) error {
	this, ok := frame.Locals[bytecode.ThisName]
	if !ok || this.ToStruct() == nil {
		return vm.runtimeErr(plerrors.TypeMismatch, "LOAD_FROM_THIS outside a struct constructor")
	}
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	field, ok := this.Struct.Fields[vm.Symbols.InternString(name)]
	if !ok {
		return vm.runtimeErr(plerrors.UndefinedVariable, "no such field "+name)
	}
	frame.push(field.Value)
	return nil
}

func (vm *VM) opStoreInThis(frame *Frame, insn bytecode.Instruction) error {
	this, ok := frame.Locals[bytecode.ThisName]
	if !ok || this.ToStruct() == nil {
		return vm.runtimeErr(plerrors.TypeMismatch, "STORE_IN_THIS outside a struct constructor")
	}
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "STORE_IN_THIS on empty stack")
	}
	nameSym := bytecode.SymbolId(insn.Operands[0])
	typeSym := bytecode.SymbolId(insn.Operands[1])
	vm.setStructField(this.Struct, nameSym, typeSym, v)
	return nil
}

func (vm *VM) opLoadField(frame *Frame, insn bytecode.Instruction) error {
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "LOAD_FIELD on empty stack")
	}
	d := v.deref()
	if name == "[]" && d.Kind == KindStaticArray {
		frame.push(d.StaticArray.Template)
		return nil
	}
	if name == "[]" && d.Kind == KindDynamicArray {
		idxVal, ok := frame.pop()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "LOAD_FIELD index on empty stack")
		}
		idx, err := idxVal.ToUnsigned()
		if err != nil {
			return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
		}
		i := int(idx.Int64())
		if i < 0 || i >= len(d.DynamicArray.Values) {
			return vm.runtimeErr(plerrors.TypeMismatch, "array index out of range")
		}
		frame.push(d.DynamicArray.Values[i])
		return nil
	}
	if d.Kind != KindStruct {
		return vm.runtimeErr(plerrors.TypeMismatch, "LOAD_FIELD on a non-struct value")
	}
	field, ok := d.Struct.Fields[vm.Symbols.InternString(name)]
	if !ok {
		return vm.runtimeErr(plerrors.UndefinedVariable, "no such field "+name)
	}
	frame.push(field.Value)
	return nil
}

func (vm *VM) opStoreField(frame *Frame, insn bytecode.Instruction) error {
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "STORE_FIELD value pop")
	}
	s, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "STORE_FIELD struct pop")
	}
	if s.deref().Kind != KindStruct {
		return vm.runtimeErr(plerrors.TypeMismatch, "STORE_FIELD on a non-struct value")
	}
	vm.setStructField(s.deref().Struct, bytecode.SymbolId(insn.Operands[0]), bytecode.SymbolId(insn.Operands[1]), v)
	frame.push(s)
	return nil
}

func (vm *VM) opStoreAttribute(frame *Frame, insn bytecode.Instruction) error {
	name := bytecode.SymbolId(insn.Operands[0])
	var target *Struct
	if this, ok := frame.Locals[bytecode.ThisName]; ok && this.ToStruct() != nil {
		target = this.Struct
	} else if top, ok := frame.top(); ok && top.deref().Kind == KindStruct {
		target = top.deref().Struct
	}
	if target == nil {
		return vm.runtimeErr(plerrors.TypeMismatch, "STORE_ATTRIBUTE with no struct in scope")
	}
	target.Attributes[name] = Attribute{Name: name}
	return nil
}

func (vm *VM) setStructField(s *Struct, nameSym, typeSym bytecode.SymbolId, v *Value) {
	f := &Field{objectHeader: newHeader(v.Address, v.Section), Value: v}
	f.Name = nameSym
	f.TypeName = typeSym
	s.SetField(nameSym, f)
}

func (vm *VM) opNewStruct(frame *Frame, insn bytecode.Instruction) error {
	typeSym := bytecode.SymbolId(insn.Operands[0])
	s := NewStructValue(typeSym, new(big.Int).Set(vm.cursor), 0)
	frame.push(NewStructValueWrapper(s))
	return nil
}

// opReadValue implements the builtin/complex split of a READ_VALUE: scalar
// types decode directly, complex types invoke the type's constructor and
// resume via the named ReadState (Idle/AwaitingCtor) on frame re-entry.
func (vm *VM) opReadValue(frame *Frame, insn bytecode.Instruction) error {
	typeSym := bytecode.SymbolId(insn.Operands[0])
	id := bytecode.TypeId(insn.Operands[1])

	if bytecode.IsComplex(id) {
		if frame.State == ReadAwaitingCtor {
			frame.State = ReadIdle
			return nil
		}
		typeName := vm.Symbols.GetString(typeSym)
		fn := vm.bc.FindFunction(bytecode.CtorFunctionName(typeName))
		if fn == nil {
			return vm.runtimeErr(plerrors.MissingFunction, "no constructor for "+typeName)
		}
		if err := vm.checkDepth(); err != nil {
			return err
		}
		s := NewStructValue(typeSym, new(big.Int).Set(vm.cursor), 0)
		receiver := NewStructValueWrapper(s)
		frame.State = ReadAwaitingCtor
		frame.PC--
		vm.enterFunction(fn, receiver)
		return nil
	}

	v, err := vm.readScalar(vm.cursor, id)
	if err != nil {
		return err
	}
	vm.cursor.Add(vm.cursor, big.NewInt(int64(v.Size)))
	frame.push(v)
	return nil
}

// opReadField is the constructor-body counterpart: it both reads the value
// and attaches it to the current `this` struct under name.
func (vm *VM) opReadField(frame *Frame, insn bytecode.Instruction) error {
	nameSym := bytecode.SymbolId(insn.Operands[0])
	typeSym := bytecode.SymbolId(insn.Operands[1])
	id := bytecode.TypeId(insn.Operands[2])

	this, ok := frame.Locals[bytecode.ThisName]
	if !ok || this.ToStruct() == nil {
		return vm.runtimeErr(plerrors.TypeMismatch, "READ_FIELD outside a struct constructor")
	}

	if bytecode.IsComplex(id) {
		if frame.State == ReadAwaitingCtor {
			frame.State = ReadIdle
			v, _ := frame.top()
			vm.setStructField(this.Struct, nameSym, typeSym, v)
			frame.pop()
			return nil
		}
		typeName := vm.Symbols.GetString(typeSym)
		fn := vm.bc.FindFunction(bytecode.CtorFunctionName(typeName))
		if fn == nil {
			return vm.runtimeErr(plerrors.MissingFunction, "no constructor for "+typeName)
		}
		if err := vm.checkDepth(); err != nil {
			return err
		}
		s := NewStructValue(typeSym, new(big.Int).Set(vm.cursor), 0)
		receiver := NewStructValueWrapper(s)
		frame.State = ReadAwaitingCtor
		frame.PC--
		vm.enterFunction(fn, receiver)
		return nil
	}

	v, err := vm.readScalar(vm.cursor, id)
	if err != nil {
		return err
	}
	vm.cursor.Add(vm.cursor, big.NewInt(int64(v.Size)))
	vm.setStructField(this.Struct, nameSym, typeSym, v)
	return nil
}

func (vm *VM) checkDepth() error {
	vm.callDepth++
	if vm.limits.EvalDepth > 0 && vm.callDepth > vm.limits.EvalDepth {
		return vm.runtimeErr(plerrors.LimitExceeded, "eval_depth exceeded")
	}
	return nil
}

func (vm *VM) readScalar(address *big.Int, id bytecode.TypeId) (*Value, error) {
	size := bytecode.TypeSize(id)
	buf := make([]byte, size)
	if err := vm.read(address.Uint64(), buf); err != nil {
		return nil, vm.runtimeErr(plerrors.IOError, err.Error())
	}
	v := decodeScalar(buf, id, vm.endian)
	v.Address = new(big.Int).Set(address)
	v.TypeId = id
	return v, nil
}

func orderedBytes(buf []byte, endian Endian) []byte {
	if endian == LittleEndian {
		rev := make([]byte, len(buf))
		for i, b := range buf {
			rev[len(buf)-1-i] = b
		}
		return rev
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return cp
}

func decodeScalar(buf []byte, id bytecode.TypeId, endian Endian) *Value {
	size := uint16(len(buf))
	switch id {
	case bytecode.Bool:
		return &Value{Kind: KindBool, Bool: buf[0] != 0, Size: size}
	case bytecode.Float:
		bits := binary.BigEndian.Uint32(orderedBytes(buf, endian))
		return NewFloat(float64(math.Float32frombits(bits)), size)
	case bytecode.Double:
		bits := binary.BigEndian.Uint64(orderedBytes(buf, endian))
		return NewFloat(math.Float64frombits(bits), size)
	default:
		be := orderedBytes(buf, endian)
		magnitude := new(big.Int).SetBytes(be)
		if bytecode.IsSigned(id) {
			bits := uint(len(buf) * 8)
			threshold := new(big.Int).Lsh(big.NewInt(1), bits-1)
			if magnitude.Cmp(threshold) >= 0 {
				modulus := new(big.Int).Lsh(big.NewInt(1), bits)
				magnitude.Sub(magnitude, modulus)
			}
			return NewSigned(magnitude, size)
		}
		return NewUnsigned(magnitude, size)
	}
}

func (vm *VM) opCmp(frame *Frame) error {
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "CMP on empty stack")
	}
	b, err := v.ToBool()
	if err != nil {
		return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
	}
	if b {
		frame.PC++
	}
	return nil
}

func (vm *VM) opCompare(frame *Frame, op bytecode.Opcode) error {
	b, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "compare rhs pop")
	}
	a, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "compare lhs pop")
	}
	cmp := compareValues(a, b)
	var result bool
	switch op {
	case bytecode.Eq:
		result = !cmp.incomparable && cmp.order == 0
	case bytecode.Neq:
		result = cmp.incomparable || cmp.order != 0
	case bytecode.Lt:
		result = !cmp.incomparable && cmp.order < 0
	case bytecode.Lte:
		result = !cmp.incomparable && cmp.order <= 0
	case bytecode.Gt:
		result = !cmp.incomparable && cmp.order > 0
	case bytecode.Gte:
		result = !cmp.incomparable && cmp.order >= 0
	}
	frame.push(NewBool(result))
	return nil
}

func (vm *VM) opNot(frame *Frame) error {
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "NOT on empty stack")
	}
	b, err := v.ToBool()
	if err != nil {
		return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
	}
	frame.push(NewBool(!b))
	return nil
}

func (vm *VM) opCall(frame *Frame, insn bytecode.Instruction) error {
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	fn := vm.bc.FindFunction(name)
	if fn == nil {
		argCount := int(insn.Operands[1])
		return vm.callNative(frame, name, argCount)
	}
	if err := vm.checkDepth(); err != nil {
		return err
	}
	var receiver *Value
	if isCtorName(name) {
		v, ok := frame.pop()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "constructor call missing receiver")
		}
		receiver = v
	}
	vm.enterFunction(fn, receiver)
	return nil
}

// callNative pops argCount values off the stack (in reverse push order),
// dispatches them to the registered NativeCaller and pushes the result.
// Unlike a compiled call this never pushes a new Frame: natives run to
// completion inline.
func (vm *VM) callNative(frame *Frame, name string, argCount int) error {
	if vm.natives == nil {
		return vm.runtimeErr(plerrors.MissingFunction, "undefined function "+name)
	}
	args := make([]*Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		v, ok := frame.pop()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "native call "+name+" missing argument")
		}
		args[i] = v
	}
	result, err := vm.natives.Call(name, args, vm.allowDangerous)
	if err != nil {
		return vm.runtimeErr(plerrors.NativeCallFailed, name+": "+err.Error())
	}
	if result == nil {
		result = NewBool(false)
	}
	frame.push(result)
	return nil
}

func isCtorName(name string) bool {
	return len(name) > len(bytecode.CtorName) && name[:len(bytecode.CtorName)] == bytecode.CtorName
}

func (vm *VM) opExport(frame *Frame, insn bytecode.Instruction) error {
	v, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "EXPORT on empty stack")
	}
	if vm.limits.PatternLimit > 0 && vm.patternCount >= vm.limits.PatternLimit {
		return vm.runtimeErr(plerrors.LimitExceeded, "pattern_limit exceeded")
	}
	vm.patternCount++
	name := vm.Symbols.GetString(bytecode.SymbolId(insn.Operands[0]))
	vm.Exports = append(vm.Exports, Export{Name: name, Value: v, Section: v.Section})
	return nil
}
