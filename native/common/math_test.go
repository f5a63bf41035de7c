package common

import (
	"math/big"
	"testing"
)

func TestMulDivRoundsDown(t *testing.T) {
	if got := MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3)); got.Int64() != 3 {
		t.Fatalf("unexpected floor result: %s", got)
	}
	if got := MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("expected zero on zero divisor, got %s", got)
	}
}

func TestApplyBps(t *testing.T) {
	if got := ApplyBps(big.NewInt(50), 10_00); got.Int64() != 5 {
		t.Fatalf("unexpected bps result: %s", got)
	}
	if got := ApplyBps(big.NewInt(1), 50_00); got.Sign() != 0 {
		t.Fatalf("expected floor to zero, got %s", got)
	}
}

func TestMinMaxSubFloor(t *testing.T) {
	a, b := big.NewInt(3), big.NewInt(7)
	if Min(a, b).Int64() != 3 || Max(a, b).Int64() != 7 {
		t.Fatalf("unexpected min/max")
	}
	if SubFloor(a, b).Sign() != 0 || SubFloor(b, a).Int64() != 4 {
		t.Fatalf("unexpected SubFloor")
	}
	if Min(nil, b).Sign() != 0 {
		t.Fatalf("nil should behave as zero")
	}
}
