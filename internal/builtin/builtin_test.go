package builtin

import (
	"testing"

	"patternvm/internal/vm"
)

func echo(args []*vm.Value) (*vm.Value, error) { return args[0], nil }

func TestParameterCountVariants(t *testing.T) {
	cases := []struct {
		p    ParameterCount
		n    int
		want bool
	}{
		{Exactly(2), 2, true},
		{Exactly(2), 1, false},
		{AtLeast(1), 5, true},
		{AtLeast(1), 0, false},
		{Between(1, 3), 2, true},
		{Between(1, 3), 4, false},
		{None(), 0, true},
		{None(), 1, false},
	}
	for _, c := range cases {
		if got := c.p.accepts(c.n); got != c.want {
			t.Fatalf("%+v.accepts(%d) = %v, want %v", c.p, c.n, got, c.want)
		}
	}
}

func TestRegistryAddCallRemove(t *testing.T) {
	r := NewRegistry()
	r.Add([]string{"std", "mem"}, "identity", Exactly(1), echo)

	out, err := r.Call("std::mem::identity", []*vm.Value{vm.NewBool(true)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !out.Bool {
		t.Fatalf("expected true back from identity")
	}

	r.Remove([]string{"std", "mem"}, "identity")
	if _, err := r.Call("std::mem::identity", nil, false); err == nil {
		t.Fatalf("expected an error calling a removed builtin")
	}
}

func TestRegistryDangerousGating(t *testing.T) {
	r := NewRegistry()
	r.AddDangerous([]string{"std", "io"}, "write_file", Exactly(2), echo)

	if _, err := r.Call("std::io::write_file", []*vm.Value{vm.NewBool(true), vm.NewBool(true)}, false); err == nil {
		t.Fatalf("expected a dangerous-builtin error without allowDangerous")
	}
	if _, err := r.Call("std::io::write_file", []*vm.Value{vm.NewBool(true), vm.NewBool(true)}, true); err != nil {
		t.Fatalf("Call with allowDangerous: %v", err)
	}
}

func TestRegistryMissingFunction(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call("nope", nil, false); err == nil {
		t.Fatalf("expected an error looking up an unregistered builtin")
	}
}

func TestRegistryArityMismatch(t *testing.T) {
	r := NewRegistry()
	r.Add(nil, "identity", Exactly(1), echo)
	if _, err := r.Call("identity", []*vm.Value{vm.NewBool(true), vm.NewBool(false)}, false); err == nil {
		t.Fatalf("expected an arity error")
	}
}
