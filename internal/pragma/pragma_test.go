package pragma

import (
	"testing"

	"patternvm/internal/vm"
)

func newState() *State {
	var e vm.Endian
	var b vm.BitfieldOrder
	var l vm.Limits
	return &State{Endian: &e, BitfieldOrder: &b, Limits: &l}
}

func TestDispatchEndian(t *testing.T) {
	r := NewRegistry()
	st := newState()
	if err := r.Dispatch("endian", "big", st); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if *st.Endian != vm.BigEndian {
		t.Fatalf("expected BigEndian, got %v", *st.Endian)
	}
}

func TestDispatchEndianNative(t *testing.T) {
	r := NewRegistry()
	st := newState()
	if err := r.Dispatch("endian", "native", st); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if *st.Endian != vm.NativeEndian() {
		t.Fatalf("expected NativeEndian(), got %v", *st.Endian)
	}
}

func TestDispatchUnknownPragma(t *testing.T) {
	r := NewRegistry()
	st := newState()
	if err := r.Dispatch("not_a_real_pragma", "", st); err == nil {
		t.Fatalf("expected an error for an unregistered pragma")
	}
}

func TestDispatchLimit(t *testing.T) {
	r := NewRegistry()
	st := newState()
	if err := r.Dispatch("array_limit", "100", st); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if st.Limits.ArrayLimit != 100 {
		t.Fatalf("got %d, want 100", st.Limits.ArrayLimit)
	}
}

func TestAddRemoveCustomPragma(t *testing.T) {
	r := NewRegistry()
	st := newState()
	called := false
	r.Add("custom", func(arg string, st *State) error {
		called = true
		return nil
	})
	if err := r.Dispatch("custom", "", st); err != nil || !called {
		t.Fatalf("custom pragma did not run: err=%v called=%v", err, called)
	}
	r.Remove("custom")
	if err := r.Dispatch("custom", "", st); err == nil {
		t.Fatalf("expected an error after removing the pragma")
	}
}
