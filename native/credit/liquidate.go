package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/mission"
)

// hasGoodDebtHealth reports debt <= collateral * ltv.
func hasGoodDebtHealth(debt, collateral *big.Int, ltv uint64) bool {
	if nativecommon.IsZero(debt) {
		return true
	}
	return debt.Cmp(nativecommon.ApplyBps(collateral, ltv)) <= 0
}

// canLiquidate reports debt > collateral * liqThreshold.
func canLiquidate(debt, collateral *big.Int, liqThreshold uint64) bool {
	if nativecommon.IsZero(debt) {
		return false
	}
	lhs := new(big.Int).Mul(debt, nativecommon.BasisPoints())
	rhs := new(big.Int).Mul(collateral, new(big.Int).SetUint64(liqThreshold))
	return lhs.Cmp(rhs) > 0
}

// CanLiquidateUser reports whether user's latest debt exceeds the
// liquidation threshold of their collateral.
func (e *Engine) CanLiquidateUser(user common.Address) (bool, error) {
	debt, bt, _, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return false, err
	}
	return canLiquidate(debt.Amount, bt.CollateralVal, debt.Terms.LiqThreshold), nil
}

// CanRedeemUserCollateral reports whether user's latest debt reached the
// redemption threshold of their collateral.
func (e *Engine) CanRedeemUserCollateral(user common.Address) (bool, error) {
	debt, bt, _, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return false, err
	}
	return canRedeem(debt.Amount, bt.CollateralVal, debt.Terms.RedemptionThreshold, debt.InLiquidation), nil
}

// HasGoodDebtHealth reports whether user's latest debt is within the LTV
// of their collateral.
func (e *Engine) HasGoodDebtHealth(user common.Address) (bool, error) {
	debt, bt, _, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return false, err
	}
	return hasGoodDebtHealth(debt.Amount, bt.CollateralVal, debt.Terms.Ltv), nil
}

// CalcKeeperFee returns debt * KeeperFeeRatio clamped to
// [MinKeeperFee, MaxKeeperFee]. A zero MaxKeeperFee leaves the fee
// unbounded above.
func CalcKeeperFee(debt *big.Int, gen mission.GenDebtConfig) *big.Int {
	fee := nativecommon.ApplyBps(debt, gen.KeeperFeeRatio)
	if gen.MinKeeperFee != nil && fee.Cmp(gen.MinKeeperFee) < 0 {
		fee.Set(gen.MinKeeperFee)
	}
	if !nativecommon.IsZero(gen.MaxKeeperFee) && fee.Cmp(gen.MaxKeeperFee) > 0 {
		fee.Set(gen.MaxKeeperFee)
	}
	return fee
}

// CalcAmountOfDebtToRepayDuringLiq solves for the repayment x that brings
// the position back to the buffered LTV t when every unit repaid removes
// (1 + feeRatio) units of collateral:
// x = (debt - t*coll) / (1 - t*(1+feeRatio)), capped at debt.
func CalcAmountOfDebtToRepayDuringLiq(debt, collateral *big.Int, ltv, buffer, feeRatio uint64) *big.Int {
	target := ltv * (nativecommon.HundredPercent - buffer) / nativecommon.HundredPercent
	adjusted := nativecommon.ApplyBps(collateral, target)
	if debt.Cmp(adjusted) <= 0 {
		return big.NewInt(0)
	}
	scaled := target * (nativecommon.HundredPercent + feeRatio) / nativecommon.HundredPercent
	if scaled >= nativecommon.HundredPercent {
		return nativecommon.Clone(debt)
	}
	out := new(big.Int).Sub(debt, adjusted)
	out.Mul(out, nativecommon.BasisPoints())
	out.Quo(out, new(big.Int).SetUint64(nativecommon.HundredPercent-scaled))
	return nativecommon.Min(out, debt)
}

func (e *Engine) liquidatePreflight() (mission.GenDebtConfig, error) {
	if err := e.guard(); err != nil {
		return mission.GenDebtConfig{}, err
	}
	gen := e.mission.GetGeneralDebtConfig()
	if !gen.CanLiquidate {
		return mission.GenDebtConfig{}, ErrLiquidateNotEnabled
	}
	if e.waterfall == nil {
		return mission.GenDebtConfig{}, errWaterfallNotConfigured
	}
	return gen, nil
}

// LiquidateUser liquidates user and returns the keeper fee paid to keeper.
func (e *Engine) LiquidateUser(keeper, user common.Address) (*big.Int, error) {
	gen, err := e.liquidatePreflight()
	if err != nil {
		return nil, err
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	if user == keeper {
		return nil, ErrCannotLiquidateSelf
	}
	fee, ok, err := e.liquidate(keeper, user, gen)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCannotLiquidate
	}
	return fee, nil
}

// LiquidateManyUsers liquidates every eligible user in users, skipping the
// rest, and returns the total keeper fee and the number liquidated.
func (e *Engine) LiquidateManyUsers(keeper common.Address, users []common.Address) (*big.Int, int, error) {
	gen, err := e.liquidatePreflight()
	if err != nil {
		return nil, 0, err
	}
	total := new(big.Int)
	count := 0
	for _, user := range users {
		if user == (common.Address{}) || user == keeper {
			continue
		}
		fee, ok, err := e.liquidate(keeper, user, gen)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			total.Add(total, fee)
			count++
		}
	}
	return total, count, nil
}

// liquidate charges the liquidation and keeper fees on first entry into
// liquidation, runs the waterfall, realises bad debt when nothing is left
// to seize and hands remaining collateral to the auction house.
func (e *Engine) liquidate(keeper, user common.Address, gen mission.GenDebtConfig) (*big.Int, bool, error) {
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, false, err
	}
	if !canLiquidate(debt.Amount, bt.CollateralVal, debt.Terms.LiqThreshold) {
		return big.NewInt(0), false, nil
	}

	liqFee := big.NewInt(0)
	keeperFee := big.NewInt(0)
	if !debt.InLiquidation {
		liqFee = nativecommon.ApplyBps(debt.Amount, debt.Terms.LiqFee)
		if keeper != (common.Address{}) {
			keeperFee = CalcKeeperFee(debt.Amount, gen)
		}
	}
	feeRatio := debt.Terms.LiqFee
	if debt.Amount.Sign() > 0 && keeperFee.Sign() > 0 {
		feeRatio += nativecommon.MulDiv(keeperFee, nativecommon.BasisPoints(), debt.Amount).Uint64()
	}
	debt.Amount.Add(debt.Amount, liqFee)
	debt.Amount.Add(debt.Amount, keeperFee)
	debt.InLiquidation = true
	target := CalcAmountOfDebtToRepayDuringLiq(debt.Amount, bt.CollateralVal, debt.Terms.Ltv, gen.LtvPaybackBuffer, feeRatio)

	if err := e.ledger.SetUserDebt(user, debt, new(big.Int).Add(newInterest, liqFee)); err != nil {
		return nil, false, err
	}
	if err := e.mintGreen(keeper, keeperFee, false); err != nil {
		return nil, false, err
	}

	repaid := big.NewInt(0)
	if target.Sign() > 0 {
		repaid, err = e.waterfall.LiquidationWaterfall(user, target)
		if err != nil {
			return nil, false, err
		}
	}
	reduceDebt(&debt, repaid)

	after, err := e.GetUserBorrowTerms(user)
	if err != nil {
		return nil, false, err
	}
	if after.TotalMaxDebt.Sign() > 0 {
		debt.Terms = after.Terms
	}
	badDebt := big.NewInt(0)
	if debt.Amount.Sign() > 0 {
		positions, err := e.Positions(user)
		if err != nil {
			return nil, false, err
		}
		if len(positions) == 0 {
			badDebt.Set(debt.Amount)
			if err := e.ledger.AddBadDebt(badDebt); err != nil {
				return nil, false, err
			}
			debt.Amount.SetInt64(0)
			debt.Principal.SetInt64(0)
			e.log().Warn("credit: bad debt realised", "user", user.Hex(), "amount", badDebt.String())
		}
	}
	if hasGoodDebtHealth(debt.Amount, after.CollateralVal, debt.Terms.Ltv) {
		debt.InLiquidation = false
	}
	if err := e.ledger.SetUserDebt(user, debt, nil); err != nil {
		return nil, false, err
	}

	var started uint64
	if debt.InLiquidation && e.auctions != nil {
		started, err = e.auctions.StartLiquidationAuctions(user)
		if err != nil {
			return nil, false, err
		}
	}
	e.emit(events.CreditLiquidate{
		User:            user,
		Keeper:          keeper,
		TargetRepay:     target,
		Repaid:          repaid,
		LiqFee:          liqFee,
		KeeperFee:       keeperFee,
		BadDebt:         badDebt,
		InLiquidation:   debt.InLiquidation,
		AuctionsStarted: started,
		Block:           e.block,
	})
	e.log().Info("credit: user liquidated",
		"user", user.Hex(),
		"keeper", keeper.Hex(),
		"target", target.String(),
		"repaid", repaid.String(),
		"keeperFee", keeperFee.String(),
		"auctions", started)
	return keeperFee, true, nil
}
