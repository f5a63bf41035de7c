package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/ledger"
)

// reduceDebt lowers debt by up to amount and returns the amount applied.
// Payments settle accrued interest first, so the principal only drops
// once the remaining amount falls below it.
func reduceDebt(debt *ledger.UserDebt, amount *big.Int) *big.Int {
	applied := nativecommon.Min(amount, debt.Amount)
	debt.Amount.Sub(debt.Amount, applied)
	if debt.Principal.Cmp(debt.Amount) > 0 {
		debt.Principal.Set(debt.Amount)
	}
	return applied
}

// settle persists debt after a repayment, clearing the liquidation flag
// once the position is healthy again. It reports whether the flag was
// cleared.
func (e *Engine) settle(user common.Address, debt ledger.UserDebt, bt BorrowTerms, newInterest *big.Int) (bool, error) {
	exited := false
	if debt.InLiquidation && hasGoodDebtHealth(debt.Amount, bt.CollateralVal, debt.Terms.Ltv) {
		debt.InLiquidation = false
		exited = true
	}
	return exited, e.ledger.SetUserDebt(user, debt, newInterest)
}

// Repay burns up to amount of stablecoin (or savings shares worth it) from
// payer and applies it to user's debt. It returns the amount applied.
func (e *Engine) Repay(payer, user common.Address, amount *big.Int, paysWithSavings bool) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, err
	}
	if debt.Amount.Sign() == 0 {
		return nil, ErrNoDebt
	}
	payment := nativecommon.Min(amount, debt.Amount)
	if err := e.collectGreen(payer, payment, paysWithSavings); err != nil {
		return nil, err
	}
	reduceDebt(&debt, payment)
	exited, err := e.settle(user, debt, bt, newInterest)
	if err != nil {
		return nil, err
	}
	e.emit(events.CreditRepay{
		Payer:             payer,
		User:              user,
		Amount:            payment,
		RemainingDebt:     debt.Amount,
		PaidWithSavings:   paysWithSavings,
		ExitedLiquidation: exited,
		Block:             e.block,
	})
	return payment, nil
}

// ApplyRepayment reduces user's debt by up to usd after value has already
// been collected elsewhere (deleverage, auction purchases). It returns the
// amount applied.
func (e *Engine) ApplyRepayment(user common.Address, usd *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	debt, _, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, err
	}
	applied := reduceDebt(&debt, usd)
	// Terms after the repayment reflect the collateral that was consumed.
	bt, err := e.GetUserBorrowTerms(user)
	if err != nil {
		return nil, err
	}
	if _, err := e.settle(user, debt, bt, newInterest); err != nil {
		return nil, err
	}
	return applied, nil
}

// RedeemRequest names the position a redeemer wants collateral from.
type RedeemRequest struct {
	User    common.Address
	VaultID uint64
	Asset   common.Address
}

// canRedeem reports whether debt has reached the redemption threshold of
// the collateral.
func canRedeem(debt, collateral *big.Int, threshold uint64, inLiquidation bool) bool {
	if inLiquidation || threshold == 0 || nativecommon.IsZero(debt) {
		return false
	}
	lhs := new(big.Int).Mul(debt, nativecommon.BasisPoints())
	rhs := new(big.Int).Mul(collateral, new(big.Int).SetUint64(threshold))
	return lhs.Cmp(rhs) >= 0
}

// CalcAmountOfDebtToRepayDuringRedemption solves for the repayment that
// brings debt/collateral down to the buffered LTV when the same USD value
// of collateral leaves with it: x = (debt - t*coll) / (1 - t).
func CalcAmountOfDebtToRepayDuringRedemption(debt, collateral *big.Int, ltv, buffer uint64) *big.Int {
	target := ltv * (nativecommon.HundredPercent - buffer) / nativecommon.HundredPercent
	if target >= nativecommon.HundredPercent {
		return nativecommon.Clone(debt)
	}
	lhs := new(big.Int).Mul(debt, nativecommon.BasisPoints())
	rhs := new(big.Int).Mul(collateral, new(big.Int).SetUint64(target))
	if lhs.Cmp(rhs) <= 0 {
		return big.NewInt(0)
	}
	out := lhs.Sub(lhs, rhs)
	out.Quo(out, new(big.Int).SetUint64(nativecommon.HundredPercent-target))
	return nativecommon.Min(out, debt)
}

// redeem runs one redemption. A position that is not redeemable returns
// zero without error when skip is set.
func (e *Engine) redeem(redeemer common.Address, req RedeemRequest, greenAmount *big.Int, paysWithSavings, skip bool) (*big.Int, error) {
	cfg, ok := e.mission.AssetConfig(req.Asset)
	if !ok || !cfg.CanRedeemCollateral {
		if skip {
			return big.NewInt(0), nil
		}
		return nil, ErrAssetNotRedeemable
	}
	if req.User == (common.Address{}) {
		if skip {
			return big.NewInt(0), nil
		}
		return nil, ErrInvalidUser
	}
	v, err := e.vaults.Get(req.VaultID)
	if err != nil {
		if skip {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(req.User, true)
	if err != nil {
		return nil, err
	}
	if !canRedeem(debt.Amount, bt.CollateralVal, debt.Terms.RedemptionThreshold, debt.InLiquidation) {
		if skip {
			return big.NewInt(0), nil
		}
		return nil, ErrCannotRedeem
	}
	gen := e.mission.GetGeneralDebtConfig()
	maxRepay := CalcAmountOfDebtToRepayDuringRedemption(debt.Amount, bt.CollateralVal, debt.Terms.Ltv, gen.LtvPaybackBuffer)
	usd := nativecommon.Min(greenAmount, maxRepay)
	assetAmount := e.parAmount(req.Asset, usd)
	if assetAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	held, err := v.GetTotalAmountForUser(req.User, req.Asset)
	if err != nil {
		return nil, err
	}
	if held.Cmp(assetAmount) < 0 {
		assetAmount = held
		usd = nativecommon.Min(e.parValue(req.Asset, held), usd)
	}
	if usd.Sign() == 0 || assetAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.collectGreen(redeemer, usd, paysWithSavings); err != nil {
		return nil, err
	}
	taken, _, err := v.Withdraw(req.User, req.Asset, assetAmount, redeemer)
	if err != nil {
		return nil, err
	}
	if err := e.PruneUserVault(req.User, req.VaultID); err != nil {
		return nil, err
	}
	reduceDebt(&debt, usd)
	if err := e.ledger.SetUserDebt(req.User, debt, newInterest); err != nil {
		return nil, err
	}
	e.emit(events.CreditRedeem{
		Redeemer:      redeemer,
		User:          req.User,
		VaultID:       req.VaultID,
		Asset:         req.Asset,
		AssetAmount:   taken,
		Repaid:        usd,
		RemainingDebt: debt.Amount,
		Block:         e.block,
	})
	return usd, nil
}

func (e *Engine) redeemPreflight(redeemer common.Address, greenAmount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !e.mission.GetGeneralDebtConfig().CanRedeem {
		return ErrRedeemNotEnabled
	}
	if redeemer == (common.Address{}) {
		return ErrInvalidUser
	}
	if greenAmount == nil || greenAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// RedeemCollateral pays up to greenAmount of user's debt on their behalf
// and receives the same USD value of collateral. Returns the stablecoin
// spent.
func (e *Engine) RedeemCollateral(redeemer common.Address, req RedeemRequest, greenAmount *big.Int, paysWithSavings bool) (*big.Int, error) {
	if err := e.redeemPreflight(redeemer, greenAmount); err != nil {
		return nil, err
	}
	spent, err := e.redeem(redeemer, req, greenAmount, paysWithSavings, false)
	if err != nil {
		return nil, err
	}
	if spent.Sign() == 0 {
		return nil, ErrNothingRedeemed
	}
	return spent, nil
}

// RedeemCollateralFromMany walks reqs in order, skipping positions that
// are not redeemable, until greenAmount is spent or maxRedemptions
// redemptions succeeded. A zero maxRedemptions means no limit.
func (e *Engine) RedeemCollateralFromMany(redeemer common.Address, reqs []RedeemRequest, greenAmount *big.Int, maxRedemptions int, paysWithSavings bool) (*big.Int, error) {
	if err := e.redeemPreflight(redeemer, greenAmount); err != nil {
		return nil, err
	}
	remaining := new(big.Int).Set(greenAmount)
	done := 0
	for _, req := range reqs {
		if remaining.Sign() == 0 || (maxRedemptions > 0 && done >= maxRedemptions) {
			break
		}
		spent, err := e.redeem(redeemer, req, remaining, paysWithSavings, true)
		if err != nil {
			return nil, err
		}
		if spent.Sign() > 0 {
			remaining.Sub(remaining, spent)
			done++
		}
	}
	spent := new(big.Int).Sub(greenAmount, remaining)
	if spent.Sign() == 0 {
		return nil, ErrNothingRedeemed
	}
	return spent, nil
}
