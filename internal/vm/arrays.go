package vm

import (
	"math/big"

	"patternvm/internal/bytecode"
	plerrors "patternvm/internal/errors"
)

// opReadStaticArrayWithSize forms a StaticArray from a probe-read template
// and a count already on the stack: address is cursor minus one element's
// size, since the probe read already advanced the cursor by one element;
// the cursor is then advanced by the remaining elements so cumulative size
// matches.
func (vm *VM) opReadStaticArrayWithSize(frame *Frame) error {
	countVal, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "READ_STATIC_ARRAY_WITH_SIZE count pop")
	}
	template, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "READ_STATIC_ARRAY_WITH_SIZE template pop")
	}
	count, err := countVal.ToUnsigned()
	if err != nil {
		return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
	}
	n := uint32(count.Uint64())
	if vm.limits.ArrayLimit > 0 && int(n) > vm.limits.ArrayLimit {
		return vm.runtimeErr(plerrors.LimitExceeded, "array_limit exceeded")
	}

	size := int(template.Size)
	addr := new(big.Int).Sub(vm.cursor, big.NewInt(int64(size)))
	if n > 0 {
		vm.cursor.Add(vm.cursor, big.NewInt(int64(size*(int(n)-1))))
	}

	arr := &StaticArray{Template: template, Count: n}
	val := NewStaticArrayValue(arr)
	val.Address = addr
	frame.push(val)
	return nil
}

// opReadDynamicArrayWithSize reads the remaining (count-1) complex elements
// one full constructor call at a time, reusing the ReadAwaitingCtor state
// to resume this same instruction after each nested constructor returns.
func (vm *VM) opReadDynamicArrayWithSize(frame *Frame) error {
	if frame.Array != nil && frame.State == ReadAwaitingCtor {
		frame.State = ReadIdle
		v, _ := frame.pop()
		frame.Array.dynValues = append(frame.Array.dynValues, v)
		frame.Array.index++
	}
	if frame.Array == nil {
		countVal, ok := frame.pop()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "READ_DYNAMIC_ARRAY_WITH_SIZE count pop")
		}
		template, ok := frame.pop()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "READ_DYNAMIC_ARRAY_WITH_SIZE template pop")
		}
		count, err := countVal.ToUnsigned()
		if err != nil {
			return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
		}
		n := uint32(count.Uint64())
		if vm.limits.ArrayLimit > 0 && int(n) > vm.limits.ArrayLimit {
			return vm.runtimeErr(plerrors.LimitExceeded, "array_limit exceeded")
		}
		elementType := template.deref().Struct.TypeName
		frame.Array = &arrayState{index: 1, total: n, dynValues: []*Value{template}, elementType: elementType}
	}

	st := frame.Array
	if st.index >= st.total {
		arr := &DynamicArray{Values: st.dynValues, ElementType: st.elementType}
		val := NewDynamicArrayValue(arr)
		frame.Array = nil
		frame.push(val)
		return nil
	}

	typeName := vm.Symbols.GetString(st.elementType)
	fn := vm.bc.FindFunction(bytecode.CtorFunctionName(typeName))
	if fn == nil {
		return vm.runtimeErr(plerrors.MissingFunction, "no constructor for "+typeName)
	}
	if err := vm.checkDepth(); err != nil {
		return err
	}
	s := NewStructValue(st.elementType, new(big.Int).Set(vm.cursor), 0)
	receiver := NewStructValueWrapper(s)
	frame.State = ReadAwaitingCtor
	frame.PC--
	vm.enterFunction(fn, receiver)
	return nil
}

// opReadStaticArray is the "while"-conditioned state machine: on a true
// condition it reads one more scalar element itself and falls
// through into the compiler-emitted backward jump; on false it materializes
// the array and skips that jump.
func (vm *VM) opReadStaticArray(frame *Frame, insn bytecode.Instruction) error {
	condVal, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "READ_STATIC_ARRAY condition pop")
	}
	cont, err := condVal.ToBool()
	if err != nil {
		return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
	}

	if !cont {
		var arr *StaticArray
		if frame.Array != nil {
			arr = &StaticArray{Template: frame.Array.template, Count: frame.Array.index}
		} else {
			arr = &StaticArray{Count: 0}
		}
		val := NewStaticArrayValue(arr)
		frame.Array = nil
		frame.push(val)
		frame.PC++ // skip the backward JMP; the loop is done
		return nil
	}

	if vm.limits.LoopLimit > 0 && frame.Array != nil && int(frame.Array.index) >= vm.limits.LoopLimit {
		return vm.runtimeErr(plerrors.LimitExceeded, "loop_limit exceeded")
	}

	id := bytecode.TypeId(insn.Operands[1])
	v, err := vm.readScalar(vm.cursor, id)
	if err != nil {
		return err
	}
	vm.cursor.Add(vm.cursor, big.NewInt(int64(v.Size)))
	if frame.Array == nil {
		frame.Array = &arrayState{template: v}
	}
	frame.Array.index++
	return nil
}

// opReadDynamicArray is the complex-element analogue: each true iteration
// drives one full constructor call via the ReadAwaitingCtor resume state,
// then lets the natural backward JMP re-evaluate the condition.
func (vm *VM) opReadDynamicArray(frame *Frame, insn bytecode.Instruction) error {
	if frame.State == ReadAwaitingCtor {
		frame.State = ReadIdle
		v, _ := frame.pop()
		if frame.Array == nil {
			frame.Array = &arrayState{}
		}
		frame.Array.dynValues = append(frame.Array.dynValues, v)
		frame.Array.index++
		return nil
	}

	condVal, ok := frame.pop()
	if !ok {
		return vm.runtimeErr(plerrors.StackUnderflow, "READ_DYNAMIC_ARRAY condition pop")
	}
	cont, err := condVal.ToBool()
	if err != nil {
		return vm.runtimeErr(plerrors.TypeMismatch, err.Error())
	}

	if !cont {
		var arr *DynamicArray
		if frame.Array != nil {
			arr = &DynamicArray{Values: frame.Array.dynValues, ElementType: frame.Array.elementType}
		} else {
			arr = &DynamicArray{}
		}
		val := NewDynamicArrayValue(arr)
		frame.Array = nil
		frame.push(val)
		frame.PC++ // skip the backward JMP
		return nil
	}

	if vm.limits.LoopLimit > 0 && frame.Array != nil && int(frame.Array.index) >= vm.limits.LoopLimit {
		return vm.runtimeErr(plerrors.LimitExceeded, "loop_limit exceeded")
	}

	typeSym := bytecode.SymbolId(insn.Operands[0])
	typeName := vm.Symbols.GetString(typeSym)
	fn := vm.bc.FindFunction(bytecode.CtorFunctionName(typeName))
	if fn == nil {
		return vm.runtimeErr(plerrors.MissingFunction, "no constructor for "+typeName)
	}
	if err := vm.checkDepth(); err != nil {
		return err
	}
	if frame.Array == nil {
		frame.Array = &arrayState{elementType: typeSym}
	}
	s := NewStructValue(typeSym, new(big.Int).Set(vm.cursor), 0)
	receiver := NewStructValueWrapper(s)
	frame.State = ReadAwaitingCtor
	frame.PC--
	vm.enterFunction(fn, receiver)
	return nil
}
