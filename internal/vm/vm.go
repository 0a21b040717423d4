package vm

import (
	"math/big"
	goruntime "runtime"

	"patternvm/internal/bytecode"
	plerrors "patternvm/internal/errors"
	"patternvm/internal/pattern"
)

// Endian selects byte order for multi-byte reads.
type Endian uint8

const (
	LittleEndian Endian = iota
	BigEndian
)

// NativeEndian reports the host architecture's byte order, resolved from
// runtime.GOARCH, for the "native" endian pragma/config value.
func NativeEndian() Endian {
	switch goruntime.GOARCH {
	case "mips", "mips64", "mips64p32", "ppc", "ppc64", "s390", "s390x", "sparc", "sparc64":
		return BigEndian
	default:
		return LittleEndian
	}
}

// BitfieldOrder selects bit-packing direction within a byte.
type BitfieldOrder uint8

const (
	LeftToRight BitfieldOrder = iota
	RightToLeft
)

// ReadFunc reads size bytes at address into buf; this is the one callback
// an embedder must supply to drive any read from the underlying data.
type ReadFunc func(address uint64, buf []byte) error

// WriteFunc is the symmetric, optional write callback; the data source is
// read-only during execution today, reserved for future use.
type WriteFunc func(address uint64, buf []byte) error

// Limits are the pragma-driven bounds enforced by the VM: 0 means unlimited.
type Limits struct {
	EvalDepth    int
	ArrayLimit   int
	PatternLimit int
	LoopLimit    int
}

// Export is one EXPORT-ed value in program order, carrying enough to be
// projected into a pattern.Pattern by the runtime façade.
type Export struct {
	Name    string
	Value   *Value
	Section uint64
}

// NativeCaller dispatches a namespace-qualified function name to a native
// implementation, the contract internal/builtin.Registry satisfies
// structurally so this package never imports it directly.
type NativeCaller interface {
	Call(name string, args []*Value, allowDangerous bool) (*Value, error)
}

// VM is the stack-based bytecode interpreter.
type VM struct {
	bc      *bytecode.Bytecode
	Symbols *bytecode.SymbolTable

	frames []*Frame

	cursor     *big.Int
	dataBase   uint64
	dataSize   uint64
	read       ReadFunc
	write      WriteFunc
	sections   map[uint64]ReadFunc
	endian     Endian
	bitOrder   BitfieldOrder
	running    bool
	mainResult *Value

	palette  pattern.Counter
	limits   Limits
	callDepth int
	patternCount int

	natives        NativeCaller
	allowDangerous bool

	Exports []Export
}

func New() *VM {
	return &VM{
		cursor:   big.NewInt(0),
		sections: make(map[uint64]ReadFunc),
		endian:   LittleEndian,
		bitOrder: LeftToRight,
	}
}

func (vm *VM) SetLimits(l Limits) { vm.limits = l }

func (vm *VM) SetDataSource(base, size uint64, read ReadFunc, write WriteFunc) {
	vm.dataBase = base
	vm.dataSize = size
	vm.read = read
	vm.write = write
}

func (vm *VM) RegisterSection(id uint64, read ReadFunc) {
	vm.sections[id] = read
}

// SetNativeCaller wires a native function registry into the VM's CALL
// dispatch; opCall falls back to it whenever a name doesn't resolve to a
// compiled bytecode.Function.
func (vm *VM) SetNativeCaller(n NativeCaller) { vm.natives = n }

// SetAllowDangerous controls whether opCall's native fallback may invoke
// functions the registry has marked dangerous.
func (vm *VM) SetAllowDangerous(allow bool) { vm.allowDangerous = allow }

func (vm *VM) SetDefaultEndian(e Endian)            { vm.endian = e }
func (vm *VM) SetBitfieldOrder(o BitfieldOrder)      { vm.bitOrder = o }
func (vm *VM) SetStartAddress(addr uint64)           { vm.cursor = new(big.Int).SetUint64(addr) }

// LoadBytecode installs compiled functions and their shared symbol table.
// The symbol table is mutated only by the compiler; from here on the VM
// treats it as read-only.
func (vm *VM) LoadBytecode(bc *bytecode.Bytecode) {
	vm.bc = bc
	vm.Symbols = bc.Symbols
}

// Reset restores the VM to pre-execution state: empty frame stack, cleared
// exports, fresh palette counter.
func (vm *VM) Reset() {
	vm.frames = nil
	vm.Exports = nil
	vm.mainResult = nil
	vm.running = false
	vm.callDepth = 0
	vm.patternCount = 0
	vm.palette = pattern.Counter{}
	vm.cursor = new(big.Int).SetUint64(vm.dataBase)
}

// Abort stops the run and discards its results by following the same path
// Reset uses: the dispatch loop observes running=false at the top of its
// next iteration, and whatever was exported before the abort point is
// thrown away along with the frame stack and cursor. Its writes are plain
// field assignments with no locking or atomic operations.
func (vm *VM) Abort() {
	vm.Reset()
}

// Run enters "<main>" and drives the fetch-decode-execute loop to
// completion.
func (vm *VM) Run() (result *Value, err error) {
	return vm.RunFunction(bytecode.MainName)
}

// RunFunction enters the named compiled function and drives the
// fetch-decode-execute loop to completion, returning whatever value its
// outermost RETURN produced. Used both by Run (always "<main>") and by
// the runtime façade's ExecuteFunction to re-enter a single helper.
func (vm *VM) RunFunction(name string) (result *Value, err error) {
	fn := vm.bc.FindFunction(name)
	if fn == nil {
		return nil, plerrors.NewRuntimeError(plerrors.MissingFunction, "no "+name+" function", "", 0)
	}
	vm.running = true
	vm.enterFunction(fn, nil)

	for vm.running && len(vm.frames) > 0 {
		if err := vm.step(); err != nil {
			vm.running = false
			return nil, err
		}
	}
	return vm.mainResult, nil
}

func (vm *VM) currentFrame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// enterFunction pushes a new call frame. receiver is non-nil exactly when
// this call is a constructor invocation: the struct value is bound to the
// callee's "this" local and also pushed onto the callee's own stack so a
// trailing RETURN hands it back.
func (vm *VM) enterFunction(fn *bytecode.Function, receiver *Value) {
	name := vm.Symbols.GetString(fn.Name)
	frame := newFrame(name, fn.Instructions, receiver != nil)
	if receiver != nil {
		frame.Locals[bytecode.ThisName] = receiver
		frame.push(receiver)
	}
	vm.frames = append(vm.frames, frame)
}

// leaveFunction pops the current frame, handing its top-of-stack value (if
// any) to the caller's frame, or recording it as the program result when
// the frame stack is now empty.
func (vm *VM) leaveFunction() {
	frame := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	top, ok := frame.top()

	if len(vm.frames) == 0 {
		vm.running = false
		if ok {
			vm.mainResult = top
		}
		return
	}
	if vm.callDepth > 0 {
		vm.callDepth--
	}
	if ok {
		vm.frames[len(vm.frames)-1].push(top)
	}
}

func (vm *VM) runtimeErr(kind plerrors.RuntimeErrorKind, msg string) error {
	f := vm.currentFrame()
	name, pc := "", 0
	if f != nil {
		name, pc = f.FunctionName, f.PC
	}
	return plerrors.NewRuntimeError(kind, msg, name, pc)
}

// step fetches, decodes and dispatches a single instruction in the current
// frame.
func (vm *VM) step() error {
	frame := vm.currentFrame()
	if frame.PC >= len(frame.Instructions) {
		vm.leaveFunction()
		return nil
	}
	insn := frame.Instructions[frame.PC]
	frame.PC++

	switch insn.Op {
	case bytecode.LoadSymbol:
		return vm.opLoadSymbol(frame, insn)
	case bytecode.LoadLocal:
		return vm.opLoadLocal(frame, insn)
	case bytecode.StoreLocal:
		return vm.opStoreLocal(frame, insn)
	case bytecode.LoadFromThis:
		return vm.opLoadFromThis(frame, insn)
	case bytecode.StoreInThis:
		return vm.opStoreInThis(frame, insn)
	case bytecode.LoadField:
		return vm.opLoadField(frame, insn)
	case bytecode.StoreField:
		return vm.opStoreField(frame, insn)
	case bytecode.StoreAttribute:
		return vm.opStoreAttribute(frame, insn)
	case bytecode.NewStruct:
		return vm.opNewStruct(frame, insn)
	case bytecode.ReadValue:
		return vm.opReadValue(frame, insn)
	case bytecode.ReadField:
		return vm.opReadField(frame, insn)
	case bytecode.ReadStaticArrayWithSize:
		return vm.opReadStaticArrayWithSize(frame)
	case bytecode.ReadDynamicArrayWithSize:
		return vm.opReadDynamicArrayWithSize(frame)
	case bytecode.ReadStaticArray:
		return vm.opReadStaticArray(frame, insn)
	case bytecode.ReadDynamicArray:
		return vm.opReadDynamicArray(frame, insn)
	case bytecode.ReadArray:
		return nil // reserved, the compiler never emits this opcode
	case bytecode.Dup:
		v, ok := frame.top()
		if !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "DUP on empty stack")
		}
		frame.push(v)
		return nil
	case bytecode.Pop:
		if _, ok := frame.pop(); !ok {
			return vm.runtimeErr(plerrors.StackUnderflow, "POP on empty stack")
		}
		return nil
	case bytecode.Cmp:
		return vm.opCmp(frame)
	case bytecode.Eq, bytecode.Neq, bytecode.Lt, bytecode.Lte, bytecode.Gt, bytecode.Gte:
		return vm.opCompare(frame, insn.Op)
	case bytecode.Not:
		return vm.opNot(frame)
	case bytecode.Jmp:
		frame.PC += int(int16(insn.Operands[0])) - 1
		return nil
	case bytecode.Call:
		return vm.opCall(frame, insn)
	case bytecode.Export:
		return vm.opExport(frame, insn)
	case bytecode.Return:
		vm.leaveFunction()
		return nil
	default:
		return vm.runtimeErr(plerrors.InvalidType, "unknown opcode")
	}
}
