package vm

import (
	"encoding/binary"
	"testing"

	"patternvm/internal/bytecode"
)

// memReader serves READ_VALUE-family reads out of an in-memory little
// endian byte slice, standing in for a real file/process data source.
func memReader(data []byte) ReadFunc {
	return func(address uint64, buf []byte) error {
		if address+uint64(len(buf)) > uint64(len(data)) {
			return &outOfRangeError{address, len(buf)}
		}
		copy(buf, data[address:])
		return nil
	}
}

type outOfRangeError struct {
	address uint64
	size    int
}

func (e *outOfRangeError) Error() string { return "read out of range" }

func newTestVM(data []byte) *VM {
	v := New()
	v.SetDataSource(0, uint64(len(data)), memReader(data), nil)
	v.SetStartAddress(0)
	return v
}

// S1: a single little-endian u32 read and exported.
func TestVMSingleU32(t *testing.T) {
	bc := bytecode.NewBytecode()
	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("u32", bytecode.U32)
	main.StoreValue("magic", "u32")
	main.Return()

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0xdeadbeef)

	v := newTestVM(data)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.Exports) != 1 {
		t.Fatalf("expected 1 export, got %d", len(v.Exports))
	}
	got, err := v.Exports[0].Value.ToUnsigned()
	if err != nil {
		t.Fatalf("ToUnsigned: %v", err)
	}
	if got.Uint64() != 0xdeadbeef {
		t.Fatalf("got %x, want deadbeef", got.Uint64())
	}
}

// S2: a struct with two scalar fields, constructed via its "<init>" function.
func TestVMStructTwoFields(t *testing.T) {
	bc := bytecode.NewBytecode()

	ctor := bc.NewFunction(bytecode.CtorFunctionName("Header"))
	ctor.Ctor = true
	ctor.ReadField("a", "u8", bytecode.U8)
	ctor.ReadField("b", "u8", bytecode.U8)
	ctor.Return()

	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("Header", bytecode.Structure)
	main.StoreValue("hdr", "Header")
	main.Return()

	data := []byte{0x11, 0x22}
	v := newTestVM(data)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.Exports) != 1 {
		t.Fatalf("expected 1 export, got %d", len(v.Exports))
	}
	s := v.Exports[0].Value.ToStruct()
	if s == nil {
		t.Fatalf("export is not a struct")
	}
	if len(s.FieldOrder) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(s.FieldOrder))
	}
	af, _ := s.Fields[bc.Symbols.InternString("a")]
	bf, _ := s.Fields[bc.Symbols.InternString("b")]
	au, _ := af.Value.ToUnsigned()
	bu, _ := bf.Value.ToUnsigned()
	if au.Uint64() != 0x11 || bu.Uint64() != 0x22 {
		t.Fatalf("got a=%x b=%x", au.Uint64(), bu.Uint64())
	}
}

// S3: a counted static array of u8 read via READ_STATIC_ARRAY_WITH_SIZE.
func TestVMStaticArrayWithSize(t *testing.T) {
	bc := bytecode.NewBytecode()
	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("u8", bytecode.U8)
	main.LoadSymbol(bc.Symbols.InternUnsigned(4))
	main.ReadStaticArrayWithSize()
	main.StoreValue("bytes", "u8")
	main.Return()

	data := []byte{1, 2, 3, 4}
	v := newTestVM(data)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	arr := v.Exports[0].Value.deref().StaticArray
	if arr == nil {
		t.Fatalf("export is not a static array")
	}
	if arr.Count != 4 {
		t.Fatalf("got count %d, want 4", arr.Count)
	}
}

// S4: an if/else whose branch depends on a previously read field, lowered
// as CMP+JMP.
func TestVMIfElseShape(t *testing.T) {
	bc := bytecode.NewBytecode()
	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("bool", bytecode.Bool)
	main.Local("flag", "bool")
	main.Dup()
	main.StoreLocal("flag", "bool")

	elseLabel := main.Label()
	endLabel := main.Label()
	main.Cmp()
	main.Jmp(elseLabel)
	main.LoadSymbol(bc.Symbols.InternUnsigned(1))
	main.StoreValue("branch", "u8")
	main.Jmp(endLabel)
	main.PlaceLabel(elseLabel)
	main.LoadSymbol(bc.Symbols.InternUnsigned(0))
	main.StoreValue("branch", "u8")
	main.PlaceLabel(endLabel)
	main.ResolveLabel(elseLabel)
	main.ResolveLabel(endLabel)
	main.Return()

	data := []byte{1}
	v := newTestVM(data)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := v.Exports[len(v.Exports)-1].Value.ToUnsigned()
	if got.Uint64() != 1 {
		t.Fatalf("got %d, want 1 (true branch)", got.Uint64())
	}
}

// S5: a struct whose constructor chains a base type's constructor first.
func TestVMInheritanceCallsBaseCtorFirst(t *testing.T) {
	bc := bytecode.NewBytecode()

	base := bc.NewFunction(bytecode.CtorFunctionName("Base"))
	base.Ctor = true
	base.ReadField("tag", "u8", bytecode.U8)
	base.Return()

	derived := bc.NewFunction(bytecode.CtorFunctionName("Derived"))
	derived.Ctor = true
	derived.LoadLocal(bytecode.ThisName)
	derived.Call(bytecode.CtorFunctionName("Base"), 0)
	derived.ReadField("extra", "u8", bytecode.U8)
	derived.Return()

	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("Derived", bytecode.Structure)
	main.StoreValue("d", "Derived")
	main.Return()

	data := []byte{0xAA, 0xBB}
	v := newTestVM(data)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := v.Exports[0].Value.ToStruct()
	if s == nil {
		t.Fatalf("export is not a struct")
	}
	if len(s.FieldOrder) != 2 {
		t.Fatalf("expected 2 fields from base+derived, got %d", len(s.FieldOrder))
	}
}

// Abort mid-execution stops the dispatch loop without error and discards
// whatever was exported before the abort point, along with the frame
// stack and cursor.
func TestVMAbortStopsExecution(t *testing.T) {
	bc := bytecode.NewBytecode()
	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("u8", bytecode.U8)
	main.StoreValue("a", "u8")
	main.ReadValue("u8", bytecode.U8)
	main.StoreValue("b", "u8")
	main.Return()

	data := []byte{1, 2}
	v := newTestVM(data)
	v.LoadBytecode(bc)

	fn := bc.FindFunction(bytecode.MainName)
	v.running = true
	v.enterFunction(fn, nil)
	steps := 0
	for v.running && len(v.frames) > 0 {
		if err := v.step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		steps++
		if steps == 4 {
			v.Abort()
		}
	}
	if len(v.Exports) != 0 {
		t.Fatalf("expected Abort to discard exports, got %d", len(v.Exports))
	}
	if len(v.frames) != 0 {
		t.Fatalf("expected Abort to clear the frame stack, got %d frames", len(v.frames))
	}
	if v.running {
		t.Fatalf("expected Abort to stop the run")
	}
}

// Reset clears frames, exports and the cursor back to the data base so a
// VM instance is reusable across independent runs.
func TestVMResetIsIdempotentAndRepeatable(t *testing.T) {
	bc := bytecode.NewBytecode()
	main := bc.NewFunction(bytecode.MainName)
	main.IsMain = true
	main.ReadValue("u8", bytecode.U8)
	main.StoreValue("a", "u8")
	main.Return()

	data := []byte{0x42}
	v := newTestVM(data)
	v.LoadBytecode(bc)

	for i := 0; i < 3; i++ {
		v.Reset()
		if _, err := v.Run(); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(v.Exports) != 1 {
			t.Fatalf("run %d: expected 1 export, got %d", i, len(v.Exports))
		}
		got, _ := v.Exports[0].Value.ToUnsigned()
		if got.Uint64() != 0x42 {
			t.Fatalf("run %d: got %x", i, got.Uint64())
		}
	}
}

func TestVMMissingMainErrors(t *testing.T) {
	bc := bytecode.NewBytecode()
	v := newTestVM(nil)
	v.LoadBytecode(bc)
	if _, err := v.Run(); err == nil {
		t.Fatalf("expected an error for a bytecode unit with no <main>")
	}
}
