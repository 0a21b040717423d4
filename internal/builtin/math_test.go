package builtin

import (
	"math/big"
	"testing"

	"patternvm/internal/vm"
)

func TestMathFloorCeilRound(t *testing.T) {
	r := NewRegistry()
	RegisterMath(r)

	out, err := r.Call("std::math::floor", []*vm.Value{vm.NewFloat(3.7, 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 3.0 {
		t.Fatalf("floor(3.7) = %v, want 3.0", out.Float64)
	}

	out, err = r.Call("std::math::ceil", []*vm.Value{vm.NewFloat(3.2, 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 4.0 {
		t.Fatalf("ceil(3.2) = %v, want 4.0", out.Float64)
	}
}

func TestMathPowAndFmod(t *testing.T) {
	r := NewRegistry()
	RegisterMath(r)

	out, err := r.Call("std::math::pow", []*vm.Value{vm.NewFloat(2, 8), vm.NewFloat(10, 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 1024.0 {
		t.Fatalf("pow(2,10) = %v, want 1024.0", out.Float64)
	}

	out, err = r.Call("std::math::fmod", []*vm.Value{vm.NewFloat(7.5, 8), vm.NewFloat(2, 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 1.5 {
		t.Fatalf("fmod(7.5,2) = %v, want 1.5", out.Float64)
	}
}

func TestMathWrongArityErrors(t *testing.T) {
	r := NewRegistry()
	RegisterMath(r)

	if _, err := r.Call("std::math::floor", []*vm.Value{}, false); err == nil {
		t.Fatalf("expected an arity error calling floor with no arguments")
	}
}

func TestMathAcceptsIntegerArgument(t *testing.T) {
	r := NewRegistry()
	RegisterMath(r)

	out, err := r.Call("std::math::sqrt", []*vm.Value{vm.NewUnsigned(big.NewInt(16), 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 4.0 {
		t.Fatalf("sqrt(16) = %v, want 4.0", out.Float64)
	}
}

func TestMinMax(t *testing.T) {
	r := NewRegistry()
	RegisterMath(r)

	out, err := r.Call("std::math::min", []*vm.Value{vm.NewFloat(3, 8), vm.NewFloat(5, 8)}, false)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Float64 != 3.0 {
		t.Fatalf("min(3,5) = %v, want 3.0", out.Float64)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(15, 0, 10); got != 10 {
		t.Fatalf("Clamp(15,0,10) = %d, want 10", got)
	}
	if got := Clamp(-5, 0, 10); got != 0 {
		t.Fatalf("Clamp(-5,0,10) = %d, want 0", got)
	}
	if got := Clamp(5, 0, 10); got != 5 {
		t.Fatalf("Clamp(5,0,10) = %d, want 5", got)
	}
}
