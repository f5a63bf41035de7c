package teller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/auction"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/ledger"
)

// Totals is the protocol-wide debt picture.
type Totals struct {
	TotalDebt       *big.Int
	UnrealizedYield *big.Int
	BadDebt         *big.Int
	NumBorrowers    uint64
	ActiveAuctions  int
	Block           uint64
}

// AuctionView is an auction with its discount at the current block.
type AuctionView struct {
	ledger.FungibleAuction
	Discount uint64
	Live     bool
}

// Target returns the key of the auction.
func (v AuctionView) Target() auction.Target {
	return auction.Target{User: v.LiqUser, VaultID: v.VaultID, Asset: v.Asset}
}

// GetDebtSummary returns the latest debt and health flags of user.
func (t *Teller) GetDebtSummary(ctx context.Context, user common.Address) (credit.DebtSummary, error) {
	var out credit.DebtSummary
	err := t.view(ctx, "debt_summary", func() error {
		var err error
		out, err = t.credit.GetDebtSummary(user)
		return err
	})
	return out, err
}

// GetUserBorrowTerms returns the weighted borrow terms of user's
// collateral.
func (t *Teller) GetUserBorrowTerms(ctx context.Context, user common.Address) (credit.BorrowTerms, error) {
	var out credit.BorrowTerms
	err := t.view(ctx, "borrow_terms", func() error {
		var err error
		out, err = t.credit.GetUserBorrowTerms(user)
		return err
	})
	return out, err
}

// GetMaxWithdrawableForAsset returns how much of asset user can withdraw
// from vaultID.
func (t *Teller) GetMaxWithdrawableForAsset(ctx context.Context, user common.Address, vaultID uint64, asset common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.view(ctx, "max_withdraw", func() error {
		var err error
		out, err = t.credit.GetMaxWithdrawableForAsset(user, vaultID, asset)
		return err
	})
	return out, err
}

// GetMaxBorrowAmount returns how much more user can borrow.
func (t *Teller) GetMaxBorrowAmount(ctx context.Context, user common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.view(ctx, "max_borrow", func() error {
		var err error
		out, err = t.credit.GetMaxBorrowAmount(user)
		return err
	})
	return out, err
}

// GetDeleverageInfo returns how much of user's debt can be deleveraged.
func (t *Teller) GetDeleverageInfo(ctx context.Context, user common.Address) (deleverage.Info, error) {
	var out deleverage.Info
	err := t.view(ctx, "deleverage_info", func() error {
		var err error
		out, err = t.deleverage.GetDeleverageInfo(user)
		return err
	})
	return out, err
}

// UserAuctions lists the auctions over user's collateral.
func (t *Teller) UserAuctions(ctx context.Context, user common.Address) ([]AuctionView, error) {
	var out []AuctionView
	err := t.view(ctx, "user_auctions", func() error {
		auctions, err := t.ledger.UserAuctions(user)
		if err != nil {
			return err
		}
		out = make([]AuctionView, 0, len(auctions))
		for _, a := range auctions {
			discount, live := t.auctions.GetAuctionDiscount(a)
			out = append(out, AuctionView{FungibleAuction: a, Discount: discount, Live: live})
		}
		return nil
	})
	return out, err
}

// GetAuction returns the auction of target.
func (t *Teller) GetAuction(ctx context.Context, target auction.Target) (AuctionView, bool, error) {
	var (
		out AuctionView
		ok  bool
	)
	err := t.view(ctx, "auction", func() error {
		a, found, err := t.auctions.GetAuction(target)
		if err != nil || !found {
			return err
		}
		ok = true
		discount, live := t.auctions.GetAuctionDiscount(a)
		out = AuctionView{FungibleAuction: a, Discount: discount, Live: live}
		return nil
	})
	return out, ok, err
}

// Position returns user's holding of asset in vaultID.
func (t *Teller) Position(ctx context.Context, user common.Address, vaultID uint64, asset common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.view(ctx, "position", func() error {
		v, err := t.vaults.Get(vaultID)
		if err != nil {
			return err
		}
		out, err = v.GetTotalAmountForUser(user, asset)
		return err
	})
	return out, err
}

// Balance returns the token balance of owner.
func (t *Teller) Balance(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.view(ctx, "balance", func() error {
		var err error
		out, err = t.book.BalanceOf(asset, owner)
		return err
	})
	return out, err
}

// Totals returns the protocol-wide debt picture.
func (t *Teller) Totals(ctx context.Context) (Totals, error) {
	var out Totals
	err := t.view(ctx, "totals", func() error {
		var err error
		out, err = t.totals()
		return err
	})
	return out, err
}

func (t *Teller) totals() (Totals, error) {
	total, err := t.ledger.TotalDebt()
	if err != nil {
		return Totals{}, err
	}
	yield, err := t.ledger.UnrealizedYield()
	if err != nil {
		return Totals{}, err
	}
	bad, err := t.ledger.BadDebt()
	if err != nil {
		return Totals{}, err
	}
	borrowers, err := t.ledger.NumBorrowers()
	if err != nil {
		return Totals{}, err
	}
	users, err := t.ledger.AuctionedUsers()
	if err != nil {
		return Totals{}, err
	}
	active := 0
	for _, user := range users {
		auctions, err := t.ledger.UserAuctions(user)
		if err != nil {
			return Totals{}, err
		}
		for _, a := range auctions {
			if a.IsActive {
				active++
			}
		}
	}
	return Totals{
		TotalDebt:       total,
		UnrealizedYield: yield,
		BadDebt:         bad,
		NumBorrowers:    borrowers,
		ActiveAuctions:  active,
		Block:           t.block,
	}, nil
}

// IsTrusted reports whether addr may call admin operations.
func (t *Teller) IsTrusted(addr common.Address) bool {
	if t == nil || t.mission == nil {
		return false
	}
	return t.mission.IsTrusted(addr)
}
