package auction

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/ledger"
	"ripe/native/mission"
)

// CalcDiscount returns the discount in basis points of an auction started
// at startBlock, and whether the auction is live at block. The discount
// grows linearly from StartDiscount to MaxDiscount over Duration blocks
// once Delay blocks have passed, then stays at MaxDiscount.
func CalcDiscount(params mission.AuctionParams, startBlock, block uint64) (uint64, bool) {
	if block < startBlock || block-startBlock < params.Delay {
		return 0, false
	}
	if params.MaxDiscount <= params.StartDiscount {
		return params.StartDiscount, true
	}
	elapsed := block - startBlock - params.Delay
	if params.Duration == 0 || elapsed >= params.Duration {
		return params.MaxDiscount, true
	}
	span := params.MaxDiscount - params.StartDiscount
	return params.StartDiscount + span*elapsed/params.Duration, true
}

// GetAuctionDiscount returns the current discount of auction using the
// asset's auction parameters.
func (e *Engine) GetAuctionDiscount(auction ledger.FungibleAuction) (uint64, bool) {
	if e == nil || e.mission == nil || !auction.IsActive {
		return 0, false
	}
	return CalcDiscount(e.mission.GetAuctionParams(auction.Asset), auction.StartBlock, e.block)
}

// BuyFungibleAuction pays up to greenAmount of stablecoin from buyer for
// discounted collateral of user. The payment repays the user's debt. It
// returns the collateral received.
func (e *Engine) BuyFungibleAuction(buyer common.Address, t Target, greenAmount *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if t.User == (common.Address{}) || buyer == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	if greenAmount == nil || greenAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, ok := e.mission.AssetConfig(t.Asset)
	if !ok || !cfg.CanBuyInAuction {
		return nil, ErrCannotBuy
	}
	auction, ok, err := e.ledger.GetFungibleAuction(t.User, t.VaultID, t.Asset)
	if err != nil {
		return nil, err
	}
	if !ok || !auction.IsActive {
		return nil, ErrNoAuction
	}
	discount, live := e.GetAuctionDiscount(auction)
	if !live {
		return nil, ErrNotStarted
	}
	v, err := e.vaults.Get(t.VaultID)
	if err != nil {
		return nil, err
	}
	debt, _, _, err := e.credit.GetLatestUserDebtAndTerms(t.User, false)
	if err != nil {
		return nil, err
	}
	held, err := v.GetTotalAmountForUser(t.User, t.Asset)
	if err != nil {
		return nil, err
	}
	payment := nativecommon.Min(greenAmount, debt.Amount)
	if payment.Sign() == 0 || held.Sign() == 0 {
		return nil, ErrNothingToBuy
	}

	// Collateral is sold at its oracle value less the discount.
	paidShare := nativecommon.HundredPercent - discount
	collateralUsd := nativecommon.MulDiv(payment, nativecommon.BasisPoints(), new(big.Int).SetUint64(paidShare))
	units := e.credit.AssetAmount(t.Asset, collateralUsd)
	if units.Cmp(held) > 0 {
		units = new(big.Int).Set(held)
		payment = nativecommon.ApplyBps(e.credit.UsdValue(t.Asset, units), paidShare)
	}
	if units.Sign() == 0 || payment.Sign() == 0 {
		return nil, ErrNothingToBuy
	}

	if err := e.book.Burn(e.address, e.mission.Green(), buyer, payment); err != nil {
		return nil, err
	}
	taken, depleted, err := v.Withdraw(t.User, t.Asset, units, buyer)
	if err != nil {
		return nil, err
	}
	if _, err := e.credit.ApplyRepayment(t.User, payment); err != nil {
		return nil, err
	}
	if depleted {
		if _, err := e.ledger.RemoveFungibleAuction(t.User, t.VaultID, t.Asset); err != nil {
			return nil, err
		}
		if err := e.credit.PruneUserVault(t.User, t.VaultID); err != nil {
			return nil, err
		}
	}
	after, err := e.ledger.GetUserDebt(t.User)
	if err != nil {
		return nil, err
	}
	if !after.InLiquidation {
		if err := e.clearUserAuctions(t.User); err != nil {
			return nil, err
		}
	}
	e.emit(events.AuctionBought{
		Buyer:       buyer,
		User:        t.User,
		VaultID:     t.VaultID,
		Asset:       t.Asset,
		GreenPaid:   payment,
		AssetAmount: taken,
		Discount:    discount,
		IsDepleted:  depleted,
		Block:       e.block,
	})
	return taken, nil
}
