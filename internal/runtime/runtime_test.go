package runtime

import (
	"encoding/binary"
	"testing"

	"patternvm/internal/builtin"
	"patternvm/internal/pattern"
	"patternvm/internal/vm"
)

func byteSource(data []byte) vm.ReadFunc {
	return func(address uint64, buf []byte) error {
		copy(buf, data[address:])
		return nil
	}
}

func TestExecuteStringExportsPlacedField(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data, 0x11223344)

	r := New()
	r.SetDataSource(0, uint64(len(data)), byteSource(data), nil)

	if err := r.ExecuteString("u32 magic @ 0x0;\n"); err != nil {
		t.Fatalf("ExecuteString: %v", err)
	}

	patterns := r.GetAllPatterns()
	if len(patterns) != 1 {
		t.Fatalf("expected exactly one exported pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Name != "magic" {
		t.Fatalf("expected pattern named magic, got %q", p.Name)
	}
	if p.Kind != pattern.Unsigned {
		t.Fatalf("expected an unsigned leaf, got kind %v", p.Kind)
	}
	if p.Uint.Uint64() != 0x11223344 {
		t.Fatalf("expected 0x11223344, got %#x", p.Uint.Uint64())
	}
	if p.Address.Uint64() != 0 {
		t.Fatalf("expected address 0, got %v", p.Address)
	}
}

func TestExecuteStringHonorsPragmaEndian(t *testing.T) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data, 0x01020304)

	r := New()
	r.SetDataSource(0, uint64(len(data)), byteSource(data), nil)

	src := "#pragma endian big;\nu32 magic @ 0x0;\n"
	if err := r.ExecuteString(src); err != nil {
		t.Fatalf("ExecuteString: %v", err)
	}
	patterns := r.GetAllPatterns()
	if len(patterns) != 1 || patterns[0].Uint.Uint64() != 0x01020304 {
		t.Fatalf("expected big-endian decode of 0x01020304, got %+v", patterns)
	}
}

func TestExecuteStringCallsNativeFunction(t *testing.T) {
	r := New()
	builtin.RegisterMath(r.natives)
	r.SetDataSource(0, 16, byteSource(make([]byte, 16)), nil)

	if err := r.ExecuteString("std::math::floor(3.0);\n"); err != nil {
		t.Fatalf("ExecuteString: %v", err)
	}
}

func TestExecuteStringReportsUndeclaredBase(t *testing.T) {
	r := New()
	r.SetDataSource(0, 16, byteSource(make([]byte, 16)), nil)

	err := r.ExecuteString("struct Derived : Missing {\n}\n")
	if err == nil {
		t.Fatalf("expected a validation error for an undeclared base type")
	}
	if r.GetError() == nil {
		t.Fatalf("expected GetError to report the same failure")
	}
}

func TestAbortDiscardsExportedPatterns(t *testing.T) {
	data := make([]byte, 4)
	r := New()
	r.SetDataSource(0, uint64(len(data)), byteSource(data), nil)
	if err := r.ExecuteString("u32 magic @ 0x0;\n"); err != nil {
		t.Fatalf("ExecuteString: %v", err)
	}
	if len(r.GetAllPatterns()) == 0 {
		t.Fatalf("expected at least one pattern before Abort")
	}
	r.Abort()
	if len(r.GetAllPatterns()) != 0 {
		t.Fatalf("expected Abort to discard exported patterns")
	}
}

func TestApplyConfigNativeEndian(t *testing.T) {
	r := New()
	if err := r.ApplyConfig(Config{Endian: "native"}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if r.endian != vm.NativeEndian() {
		t.Fatalf("expected endian to resolve to NativeEndian(), got %v", r.endian)
	}
}

func TestResetClearsExportsAndError(t *testing.T) {
	data := make([]byte, 4)
	r := New()
	r.SetDataSource(0, uint64(len(data)), byteSource(data), nil)
	_ = r.ExecuteString("u32 magic @ 0x0;\n")
	if len(r.GetAllPatterns()) == 0 {
		t.Fatalf("expected at least one pattern before Reset")
	}
	r.Reset()
	if len(r.GetAllPatterns()) != 0 {
		t.Fatalf("expected Reset to clear exports")
	}
}
