package state

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when a value does not fit a 256-bit word.
var ErrAmountOverflow = errors.New("state: amount exceeds 256 bits")

// ErrNegativeAmount is returned when a negative amount reaches storage.
var ErrNegativeAmount = errors.New("state: negative amount")

// CheckAmount verifies that v can be persisted as an unsigned 256-bit word.
// Nil is treated as zero.
func CheckAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return ErrNegativeAmount
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrAmountOverflow
	}
	return nil
}

// CheckAmounts runs CheckAmount over every value and returns the first error.
func CheckAmounts(values ...*big.Int) error {
	for _, v := range values {
		if err := CheckAmount(v); err != nil {
			return err
		}
	}
	return nil
}

// Amount returns a defensive copy of v, mapping nil to zero.
func Amount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
