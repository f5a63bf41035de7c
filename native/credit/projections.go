package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
	"ripe/native/mission"
)

// withdrawBuffer keeps a withdrawal 1% inside the LTV boundary.
const withdrawBuffer = 99_00

// GetMaxWithdrawableForAsset returns how much of asset user may take out
// of vaultID without breaching the LTV of the remaining collateral.
// MaxUint256 means the withdrawal cannot affect debt health.
func (e *Engine) GetMaxWithdrawableForAsset(user common.Address, vaultID uint64, asset common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	debt, bt, _, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, err
	}
	if debt.InLiquidation {
		return big.NewInt(0), nil
	}
	assetLtv := e.mission.GetDebtTerms(asset).Ltv
	if debt.Amount.Sign() == 0 || assetLtv == 0 {
		return new(big.Int).Set(nativecommon.MaxUint256), nil
	}
	spare := nativecommon.SubFloor(bt.TotalMaxDebt, debt.Amount)
	if spare.Sign() == 0 {
		return big.NewInt(0), nil
	}
	usd := nativecommon.MulDiv(spare, nativecommon.BasisPoints(), new(big.Int).SetUint64(assetLtv))
	usd = nativecommon.ApplyBps(usd, withdrawBuffer)
	amount := e.AssetAmount(asset, usd)

	v, err := e.vaults.Get(vaultID)
	if err != nil {
		return nil, err
	}
	held, err := v.GetTotalAmountForUser(user, asset)
	if err != nil {
		return nil, err
	}
	return nativecommon.Min(amount, held), nil
}

// GetMaxBorrowAmount returns the largest amount Borrow would currently
// grant user before the origination fee, or zero when borrowing would
// fail.
func (e *Engine) GetMaxBorrowAmount(user common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	gen := e.mission.GetGeneralDebtConfig()
	if !gen.CanBorrow {
		return big.NewInt(0), nil
	}
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, err
	}
	if debt.InLiquidation {
		return big.NewInt(0), nil
	}
	limit := new(big.Int).Set(nativecommon.MaxUint256)
	amount, _, err := e.borrowCaps(user, limit, debt.Amount, bt.TotalMaxDebt, newInterest, gen)
	if err != nil {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// DebtSummary is the read model of a borrower's position.
type DebtSummary struct {
	Amount          *big.Int
	Principal       *big.Int
	NewInterest     *big.Int
	CollateralVal   *big.Int
	TotalMaxDebt    *big.Int
	Terms           mission.DebtTerms
	InLiquidation   bool
	CanLiquidate    bool
	CanRedeem       bool
	GoodDebtHealth  bool
	LastBlock       uint64
	AvailableBorrow *big.Int
}

// GetDebtSummary gathers the latest debt, terms and health flags of user.
func (e *Engine) GetDebtSummary(user common.Address) (DebtSummary, error) {
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return DebtSummary{}, err
	}
	return DebtSummary{
		Amount:          debt.Amount,
		Principal:       debt.Principal,
		NewInterest:     newInterest,
		CollateralVal:   bt.CollateralVal,
		TotalMaxDebt:    bt.TotalMaxDebt,
		Terms:           debt.Terms,
		InLiquidation:   debt.InLiquidation,
		CanLiquidate:    canLiquidate(debt.Amount, bt.CollateralVal, debt.Terms.LiqThreshold),
		CanRedeem:       canRedeem(debt.Amount, bt.CollateralVal, debt.Terms.RedemptionThreshold, debt.InLiquidation),
		GoodDebtHealth:  hasGoodDebtHealth(debt.Amount, bt.CollateralVal, debt.Terms.Ltv),
		LastBlock:       debt.LastBlock,
		AvailableBorrow: nativecommon.SubFloor(bt.TotalMaxDebt, debt.Amount),
	}, nil
}
