package bytecode

import "testing"

func TestLabelResolutionForward(t *testing.T) {
	bc := NewBytecode()
	e := bc.NewFunction("<main>")

	l := e.Label()
	jmpSite := e.Jmp(l)
	e.Pop() // filler instruction the jump skips over
	e.PlaceLabel(l)
	e.ResolveLabel(l)

	insn := e.fn.Instructions[jmpSite]
	got := int16(insn.Operands[0])
	want := int16(l.targetPc - jmpSite)
	if got != want {
		t.Fatalf("expected offset %d, got %d", want, got)
	}
	if jmpSite+int(got) != l.targetPc {
		t.Fatalf("pc+operand must equal target pc: %d + %d != %d", jmpSite, got, l.targetPc)
	}
}

func TestLabelResolutionBackward(t *testing.T) {
	bc := NewBytecode()
	e := bc.NewFunction("<main>")

	l := e.Label()
	e.PlaceLabel(l)
	e.Dup()
	jmpSite := e.Jmp(l)
	e.ResolveLabel(l)

	insn := e.fn.Instructions[jmpSite]
	got := int16(insn.Operands[0])
	if got >= 0 {
		t.Fatalf("expected a negative (backward) offset, got %d", got)
	}
	if jmpSite+int(got) != l.targetPc {
		t.Fatalf("pc+operand must equal target pc")
	}
}

func TestResolveBeforePlacePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected resolve_label before place_label to panic")
		}
	}()
	bc := NewBytecode()
	e := bc.NewFunction("<main>")
	l := e.Label()
	e.Jmp(l)
	e.ResolveLabel(l)
}

func TestStoreValueOutsideCtorEmitsExport(t *testing.T) {
	bc := NewBytecode()
	e := bc.NewFunction("<main>")
	e.StoreValue("x", "u32")

	ops := []Opcode{}
	for _, i := range e.fn.Instructions {
		ops = append(ops, i.Op)
	}
	want := []Opcode{Dup, StoreLocal, Export}
	if len(ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ops)
		}
	}
	if typ, ok := e.LocalType("x"); !ok || typ != "u32" {
		t.Fatalf("expected local type u32, got %q ok=%v", typ, ok)
	}
}

func TestStoreValueInsideCtorStoresInThis(t *testing.T) {
	bc := NewBytecode()
	e := bc.NewFunction(CtorFunctionName("Header"))
	e.Ctor = true
	e.StoreValue("magic", "u32")

	if len(e.fn.Instructions) != 1 || e.fn.Instructions[0].Op != StoreInThis {
		t.Fatalf("expected a single STORE_IN_THIS, got %v", e.fn.Instructions)
	}
}

func TestDisassembleDoesNotPanic(t *testing.T) {
	bc := NewBytecode()
	e := bc.NewFunction("<main>")
	e.ReadValue("u32", U32)
	e.StoreValue("x", "u32")
	e.Return()
	_ = bc.Disassemble()
}
