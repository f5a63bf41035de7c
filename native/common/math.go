package common

import "math/big"

// HundredPercent is 100% expressed in basis points.
const HundredPercent uint64 = 100_00

var (
	basisPoints = new(big.Int).SetUint64(HundredPercent)
	// One is 1e18, the fixed point unit of USD values and the stablecoin.
	One = mustBigInt("1000000000000000000")
	// MaxUint256 is the sentinel returned for unbounded amounts.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// MulDiv returns floor(a*b/c). A nil or zero divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// ApplyBps returns floor(v*bps/100%).
func ApplyBps(v *big.Int, bps uint64) *big.Int {
	if v == nil || bps == 0 {
		return big.NewInt(0)
	}
	return MulDiv(v, new(big.Int).SetUint64(bps), basisPoints)
}

// BasisPoints returns 100% as a big integer.
func BasisPoints() *big.Int {
	return new(big.Int).Set(basisPoints)
}

// Min returns a copy of the smaller value. Nil arguments are treated as zero.
func Min(a, b *big.Int) *big.Int {
	a, b = orZero(a), orZero(b)
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger value. Nil arguments are treated as zero.
func Max(a, b *big.Int) *big.Int {
	a, b = orZero(a), orZero(b)
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// SubFloor returns max(a-b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(orZero(a), orZero(b))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Clone copies v, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(orZero(v))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
