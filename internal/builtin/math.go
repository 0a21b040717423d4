package builtin

import (
	"math"
	"math/big"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"patternvm/internal/vm"
)

// RegisterMath installs the std::math namespace, grounded on
// original_source's lib/std/math.cpp registerFunctions (floor/ceil/round/
// trunc/log10/log2/ln/fmod/pow/sqrt), adapted to this Value model.
func RegisterMath(r *Registry) {
	ns := []string{"std", "math"}
	unary := func(name string, f func(float64) float64) {
		r.Add(ns, name, Exactly(1), func(args []*vm.Value) (*vm.Value, error) {
			x, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			return vm.NewFloat(f(x), 8), nil
		})
	}
	binary := func(name string, f func(a, b float64) float64) {
		r.Add(ns, name, Exactly(2), func(args []*vm.Value) (*vm.Value, error) {
			a, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			b, err := toFloat(args[1])
			if err != nil {
				return nil, err
			}
			return vm.NewFloat(f(a, b), 8), nil
		})
	}

	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("trunc", math.Trunc)
	unary("log10", math.Log10)
	unary("log2", math.Log2)
	unary("ln", math.Log)
	unary("sqrt", math.Sqrt)
	binary("fmod", math.Mod)
	binary("pow", math.Pow)

	r.Add(ns, "min", Exactly(2), func(args []*vm.Value) (*vm.Value, error) {
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return vm.NewFloat(minOf(a, b), 8), nil
	})
	r.Add(ns, "max", Exactly(2), func(args []*vm.Value) (*vm.Value, error) {
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return vm.NewFloat(maxOf(a, b), 8), nil
	})
}

// minOf/maxOf are generic over constraints.Ordered so the same helper
// backs both the float-valued std::math builtins here and Clamp.
func minOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi]. The pragma handlers and the runtime façade
// do not call it; pragma-set limits are stored as given.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return maxOf(lo, minOf(v, hi))
}

func toFloat(v *vm.Value) (float64, error) {
	d := v
	switch {
	case d.Kind == vm.KindFloat:
		return d.Float64, nil
	case d.Kind == vm.KindUnsigned:
		f := new(big.Float).SetInt(d.Uint)
		out, _ := f.Float64()
		return out, nil
	case d.Kind == vm.KindSigned:
		f := new(big.Float).SetInt(d.Int)
		out, _ := f.Float64()
		return out, nil
	case d.Kind == vm.KindBool:
		if d.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errNotNumeric
	}
}

var errNotNumeric = pkgerrors.New("argument is not a numeric value")
