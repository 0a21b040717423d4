package vm

import (
	"math/big"
	"strings"
)

// compareResult is -1/0/1 like big.Int.Cmp, or "incomparable" when the two
// values have no sensible ordering ("incompatible types" compares false).
type compareResult struct {
	order        int
	incomparable bool
}

// compareValues implements the VM's compare table: same-variant values
// delegate to the variant's own comparison; mixed integer signedness goes
// through a dedicated integer compare that never naively casts i128<->u128;
// anything else is incomparable.
func compareValues(a, b *Value) compareResult {
	da, db := a.deref(), b.deref()

	switch {
	case da.Kind == KindBool && db.Kind == KindBool:
		return compareResult{order: boolOrder(da.Bool, db.Bool)}
	case da.Kind == KindFloat && db.Kind == KindFloat:
		return compareResult{order: floatOrder(da.Float64, db.Float64)}
	case da.Kind == KindString && db.Kind == KindString:
		return compareResult{order: strings.Compare(da.Str, db.Str)}
	case isIntegerKind(da.Kind) && isIntegerKind(db.Kind):
		return compareResult{order: compareIntegers(da, db)}
	default:
		return compareResult{incomparable: true}
	}
}

func isIntegerKind(k Kind) bool { return k == KindUnsigned || k == KindSigned }

func boolOrder(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func floatOrder(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareIntegers handles every signedness pairing without conflating
// i128/u128 via a naive cast: a negative signed value is always less than
// any unsigned value, regardless of bit pattern.
func compareIntegers(a, b *Value) int {
	aNeg := a.Kind == KindSigned && a.Int.Sign() < 0
	bNeg := b.Kind == KindSigned && b.Int.Sign() < 0

	if aNeg != bNeg {
		if aNeg {
			return -1
		}
		return 1
	}

	av := integerMagnitude(a)
	bv := integerMagnitude(b)
	cmp := av.Cmp(bv)
	if aNeg && bNeg {
		return -cmp
	}
	return cmp
}

func integerMagnitude(v *Value) *big.Int {
	if v.Kind == KindSigned {
		return new(big.Int).Abs(v.Int)
	}
	return v.Uint
}
