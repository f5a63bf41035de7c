package deleverage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
	"ripe/native/credit"
)

// deleverageable reports whether the waterfall can consume asset outside
// of a liquidation.
func (e *Engine) deleverageable(asset common.Address) bool {
	if e.isGreen(asset) {
		return true
	}
	cfg, ok := e.mission.AssetConfig(asset)
	return ok && (cfg.ShouldBurnAsPayment || cfg.ShouldTransferToEndaoment)
}

// capacity sums the USD value and the borrowing capacity of the
// deleverageable positions of user.
func (e *Engine) capacity(positions []credit.Position) (*big.Int, *big.Int) {
	value := new(big.Int)
	maxDebt := new(big.Int)
	for _, pos := range positions {
		if !e.deleverageable(pos.Asset) {
			continue
		}
		usd := e.credit.UsdValue(pos.Asset, pos.Amount)
		value.Add(value, usd)
		maxDebt.Add(maxDebt, nativecommon.ApplyBps(usd, e.mission.GetDebtTerms(pos.Asset).Ltv))
	}
	return value, maxDebt
}

func effectiveLtv(value, maxDebt *big.Int) uint64 {
	if value.Sign() == 0 {
		return 0
	}
	return nativecommon.MulDiv(maxDebt, nativecommon.BasisPoints(), value).Uint64()
}

// GetDeleverageInfo reports how much debt the deleverageable positions of
// user could repay and their blended LTV. MaxDeleverageUsd is what the
// positions can actually cover, so it carries no buffer; the 1% buffer is
// applied to repayment targets in CalcRepaymentForWithdrawal.
func (e *Engine) GetDeleverageInfo(user common.Address) (Info, error) {
	if err := e.ready(); err != nil {
		return Info{}, err
	}
	debt, _, _, err := e.credit.GetLatestUserDebtAndTerms(user, false)
	if err != nil {
		return Info{}, err
	}
	positions, err := e.credit.Positions(user)
	if err != nil {
		return Info{}, err
	}
	value, maxDebt := e.capacity(positions)
	return Info{
		MaxDeleverageUsd: nativecommon.Min(value, debt.Amount),
		EffectiveLtv:     effectiveLtv(value, maxDebt),
	}, nil
}

// CalcRepaymentForWithdrawal returns the debt to repay so that removing
// lostCapacity of borrowing power does not worsen the debt to capacity
// ratio, when every repaid dollar also removes effLtv of capacity.
// The result carries a 1% buffer and never exceeds debt.
func CalcRepaymentForWithdrawal(debt, capacity, lostCapacity *big.Int, effLtv uint64) *big.Int {
	if nativecommon.IsZero(debt) || nativecommon.IsZero(lostCapacity) {
		return big.NewInt(0)
	}
	consumed := nativecommon.ApplyBps(debt, effLtv)
	denominator := new(big.Int).Sub(nativecommon.Clone(capacity), consumed)
	if denominator.Sign() <= 0 {
		return new(big.Int).Set(debt)
	}
	required := nativecommon.MulDiv(debt, lostCapacity, denominator)
	required = nativecommon.ApplyBps(required, withdrawalBuffer)
	return nativecommon.Min(required, debt)
}

// DeleverageForWithdrawal repays enough debt of user for a pending
// withdrawal of amount of asset from vaultID to keep the position as
// healthy as before. It reports false when nothing needed or could be
// done. Only trusted callers may invoke it.
func (e *Engine) DeleverageForWithdrawal(caller, user common.Address, vaultID uint64, asset common.Address, amount *big.Int) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	if !e.mission.IsTrusted(caller) {
		return false, ErrNoPerms
	}
	if user == (common.Address{}) {
		return false, ErrInvalidUser
	}
	assetLtv := e.mission.GetDebtTerms(asset).Ltv
	if assetLtv == 0 || nativecommon.IsZero(amount) {
		return false, nil
	}
	debt, bt, _, err := e.credit.GetLatestUserDebtAndTerms(user, false)
	if err != nil {
		return false, err
	}
	if debt.Amount.Sign() == 0 {
		return false, nil
	}
	positions, err := e.credit.Positions(user)
	if err != nil {
		return false, err
	}
	value, maxDebt := e.capacity(positions)
	if value.Sign() == 0 {
		return false, nil
	}
	lost := nativecommon.ApplyBps(e.credit.UsdValue(asset, amount), assetLtv)
	target := CalcRepaymentForWithdrawal(debt.Amount, bt.TotalMaxDebt, lost, effectiveLtv(value, maxDebt))
	if target.Sign() == 0 {
		return false, nil
	}
	p := e.newPass(user, target, false)
	// The withdrawn position itself is not consumed.
	p.handled[p.key(vaultID, asset)] = struct{}{}
	if err := p.run(); err != nil {
		return false, err
	}
	if p.repaid.Sign() == 0 {
		return false, nil
	}
	if _, err := e.settle(caller, user, target, p.repaid); err != nil {
		return false, err
	}
	return true, nil
}
