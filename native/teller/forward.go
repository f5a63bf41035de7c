package teller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/auction"
	nativecommon "ripe/native/common"
	"ripe/native/credit"
	"ripe/native/deleverage"
)

// SetPauses installs the pause switches on every engine.
func (t *Teller) SetPauses(p nativecommon.PauseView) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit.SetPauses(p)
	t.deleverage.SetPauses(p)
	t.auctions.SetPauses(p)
}

// Borrow mints amount of new debt for user. Delegates need the borrow
// permission.
func (t *Teller) Borrow(ctx context.Context, caller, user common.Address, amount *big.Int, wantsSavings bool) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "borrow", caller, func() error {
		if err := t.authorize(caller, user, ActionBorrow); err != nil {
			return err
		}
		var err error
		out, err = t.credit.Borrow(user, amount, wantsSavings)
		return err
	})
	return out, err
}

// Repay pays down user's debt from the caller's stablecoin.
func (t *Teller) Repay(ctx context.Context, caller, user common.Address, amount *big.Int, paysWithSavings bool) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "repay", caller, func() error {
		var err error
		out, err = t.credit.Repay(caller, user, amount, paysWithSavings)
		return err
	})
	return out, err
}

// RedeemCollateral swaps the caller's stablecoin for collateral of a
// redeemable user.
func (t *Teller) RedeemCollateral(ctx context.Context, caller common.Address, req credit.RedeemRequest, greenAmount *big.Int, paysWithSavings bool) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "redeem", caller, func() error {
		var err error
		out, err = t.credit.RedeemCollateral(caller, req, greenAmount, paysWithSavings)
		return err
	})
	return out, err
}

// RedeemCollateralFromMany redeems across reqs until greenAmount is spent.
func (t *Teller) RedeemCollateralFromMany(ctx context.Context, caller common.Address, reqs []credit.RedeemRequest, greenAmount *big.Int, maxRedemptions int, paysWithSavings bool) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "redeem_many", caller, func() error {
		var err error
		out, err = t.credit.RedeemCollateralFromMany(caller, reqs, greenAmount, maxRedemptions, paysWithSavings)
		return err
	})
	return out, err
}

// LiquidateUser liquidates user and returns the keeper fee.
func (t *Teller) LiquidateUser(ctx context.Context, caller, user common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "liquidate", caller, func() error {
		var err error
		out, err = t.credit.LiquidateUser(caller, user)
		return err
	})
	return out, err
}

// LiquidateManyUsers liquidates every eligible user and returns the total
// keeper fee and how many were liquidated.
func (t *Teller) LiquidateManyUsers(ctx context.Context, caller common.Address, users []common.Address) (*big.Int, int, error) {
	var (
		out   *big.Int
		count int
	)
	err := t.mutate(ctx, "liquidate_many", caller, func() error {
		var err error
		out, count, err = t.credit.LiquidateManyUsers(caller, users)
		return err
	})
	return out, count, err
}

// DeleverageUser repays up to target of user's debt out of their
// stablecoin-like positions. A zero target means the whole debt.
func (t *Teller) DeleverageUser(ctx context.Context, caller, user common.Address, target *big.Int) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "deleverage", caller, func() error {
		var err error
		out, err = t.deleverage.DeleverageUser(caller, user, target)
		return err
	})
	return out, err
}

// DeleverageWithSpecificAssets deleverages user out of the named positions.
func (t *Teller) DeleverageWithSpecificAssets(ctx context.Context, caller, user common.Address, assets []deleverage.AssetTarget) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "deleverage_assets", caller, func() error {
		var err error
		out, err = t.deleverage.DeleverageWithSpecificAssets(caller, user, assets)
		return err
	})
	return out, err
}

// StartAuction starts or restarts one auction.
func (t *Teller) StartAuction(ctx context.Context, caller common.Address, target auction.Target) (bool, error) {
	var out bool
	err := t.mutate(ctx, "auction_start", caller, func() error {
		var err error
		out, err = t.auctions.StartAuction(caller, target)
		return err
	})
	return out, err
}

// StartManyAuctions starts every eligible target.
func (t *Teller) StartManyAuctions(ctx context.Context, caller common.Address, targets []auction.Target) (int, error) {
	var out int
	err := t.mutate(ctx, "auction_start_many", caller, func() error {
		var err error
		out, err = t.auctions.StartManyAuctions(caller, targets)
		return err
	})
	return out, err
}

// PauseAuction pauses one running auction.
func (t *Teller) PauseAuction(ctx context.Context, caller common.Address, target auction.Target) (bool, error) {
	var out bool
	err := t.mutate(ctx, "auction_pause", caller, func() error {
		var err error
		out, err = t.auctions.PauseAuction(caller, target)
		return err
	})
	return out, err
}

// PauseManyAuctions pauses every running target.
func (t *Teller) PauseManyAuctions(ctx context.Context, caller common.Address, targets []auction.Target) (int, error) {
	var out int
	err := t.mutate(ctx, "auction_pause_many", caller, func() error {
		var err error
		out, err = t.auctions.PauseManyAuctions(caller, targets)
		return err
	})
	return out, err
}

// BuyFungibleAuction spends up to greenAmount of the caller's stablecoin
// on discounted collateral and returns the collateral received.
func (t *Teller) BuyFungibleAuction(ctx context.Context, caller common.Address, target auction.Target, greenAmount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "auction_buy", caller, func() error {
		var err error
		out, err = t.auctions.BuyFungibleAuction(caller, target, greenAmount)
		return err
	})
	return out, err
}

// UpdateDebtForUser persists accrued interest of user.
func (t *Teller) UpdateDebtForUser(ctx context.Context, caller, user common.Address) (bool, error) {
	var out bool
	err := t.mutate(ctx, "update_debt", caller, func() error {
		var err error
		out, err = t.credit.UpdateDebtForUser(caller, user)
		return err
	})
	return out, err
}

// SetBuybackRatio changes the share of revenue routed to buybacks.
func (t *Teller) SetBuybackRatio(ctx context.Context, caller common.Address, ratio uint64) error {
	return t.mutate(ctx, "set_buyback_ratio", caller, func() error {
		return t.credit.SetBuybackRatio(caller, ratio)
	})
}

// ClaimFromStabilityPool pays out up to amount of the liquidated
// collateral user has been allotted in a stability pool. Delegates need
// the claim permission.
func (t *Teller) ClaimFromStabilityPool(ctx context.Context, caller, user common.Address, vaultID uint64, asset common.Address, amount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := t.mutate(ctx, "claim", caller, func() error {
		if err := t.authorize(caller, user, ActionClaim); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		pool, ok := t.vaults.StabilityPool(vaultID)
		if !ok {
			return ErrVaultAssetMismatch
		}
		taken, _, err := pool.WithdrawClaimable(user, asset, amount, user)
		if err != nil {
			return err
		}
		if taken.Sign() == 0 {
			return ErrCannotWithdrawAnything
		}
		out = taken
		return t.credit.PruneUserVault(user, vaultID)
	})
	return out, err
}
