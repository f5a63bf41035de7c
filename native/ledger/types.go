package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/mission"
)

// UserDebt is the debt record of a borrower. Amount includes interest up to
// LastBlock; Principal is the base interest accrues on.
type UserDebt struct {
	Amount        *big.Int
	Principal     *big.Int
	LastBlock     uint64
	Terms         mission.DebtTerms
	InLiquidation bool
}

// Clone returns a deep copy of the record.
func (d UserDebt) Clone() UserDebt {
	clone := d
	clone.Amount = amountOrZero(d.Amount)
	clone.Principal = amountOrZero(d.Principal)
	return clone
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// FungibleAuction is the auction state of seized collateral for one
// (user, vault, asset) position.
type FungibleAuction struct {
	LiqUser    common.Address
	VaultID    uint64
	Asset      common.Address
	StartBlock uint64
	IsActive   bool
}

// BorrowInterval is the stored sliding-window borrow counter.
type BorrowInterval struct {
	StartBlock uint64
	Amount     *big.Int
}
