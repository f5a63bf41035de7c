package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/ledger"
	"ripe/native/mission"
)

// BorrowTerms is the capacity view of a user's collateral.
type BorrowTerms struct {
	CollateralVal *big.Int
	TotalMaxDebt  *big.Int
	Terms         mission.DebtTerms
}

func zeroBorrowTerms() BorrowTerms {
	return BorrowTerms{CollateralVal: big.NewInt(0), TotalMaxDebt: big.NewInt(0)}
}

// Position is one (vault, asset) holding of a user.
type Position struct {
	VaultID uint64
	Asset   common.Address
	Amount  *big.Int
}

// Positions enumerates every nonzero holding of user across the vaults the
// user participates in.
func (e *Engine) Positions(user common.Address) ([]Position, error) {
	ids, err := e.ledger.UserVaults(user)
	if err != nil {
		return nil, err
	}
	var out []Position
	for _, id := range ids {
		v, err := e.vaults.Get(id)
		if err != nil {
			continue
		}
		n, err := v.GetNumUserAssets(user)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			asset, amount, err := v.GetUserAssetAndAmountAtIndex(user, i)
			if err != nil {
				return nil, err
			}
			if amount.Sign() == 0 {
				continue
			}
			out = append(out, Position{VaultID: id, Asset: asset, Amount: amount})
		}
	}
	return out, nil
}

// GetCollateralValue sums the USD value of every position of user. Assets
// without a price contribute zero.
func (e *Engine) GetCollateralValue(user common.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	positions, err := e.Positions(user)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, pos := range positions {
		total.Add(total, e.UsdValue(pos.Asset, pos.Amount))
	}
	return total, nil
}

// termsAccumulator folds positions into USD-weighted debt terms.
type termsAccumulator struct {
	collateral  *big.Int
	maxDebt     *big.Int
	totalWeight *big.Int
	sums        [6]*big.Int
}

func newTermsAccumulator() *termsAccumulator {
	acc := &termsAccumulator{collateral: new(big.Int), maxDebt: new(big.Int), totalWeight: new(big.Int)}
	for i := range acc.sums {
		acc.sums[i] = new(big.Int)
	}
	return acc
}

func termFields(t mission.DebtTerms) [6]uint64 {
	return [6]uint64{t.Ltv, t.RedemptionThreshold, t.LiqThreshold, t.LiqFee, t.BorrowRate, t.Daowry}
}

func (acc *termsAccumulator) add(usdValue *big.Int, terms mission.DebtTerms) {
	acc.collateral.Add(acc.collateral, usdValue)
	if terms.Ltv == 0 {
		return
	}
	assetMaxDebt := nativecommon.ApplyBps(usdValue, terms.Ltv)
	acc.maxDebt.Add(acc.maxDebt, assetMaxDebt)
	// A priced-out asset still carries a minimal weight so its terms apply
	// when it is the only collateral.
	weight := nativecommon.Max(assetMaxDebt, big.NewInt(1))
	acc.totalWeight.Add(acc.totalWeight, weight)
	for i, field := range termFields(terms) {
		acc.sums[i].Add(acc.sums[i], new(big.Int).Mul(weight, new(big.Int).SetUint64(field)))
	}
}

func (acc *termsAccumulator) result() BorrowTerms {
	out := BorrowTerms{CollateralVal: acc.collateral, TotalMaxDebt: acc.maxDebt}
	if acc.totalWeight.Sign() == 0 {
		return out
	}
	var fields [6]uint64
	for i := range fields {
		fields[i] = new(big.Int).Quo(acc.sums[i], acc.totalWeight).Uint64()
	}
	out.Terms = mission.DebtTerms{
		Ltv:                 fields[0],
		RedemptionThreshold: fields[1],
		LiqThreshold:        fields[2],
		LiqFee:              fields[3],
		BorrowRate:          fields[4],
		Daowry:              fields[5],
	}.Normalize()
	return out
}

// GetUserBorrowTerms computes collateral value, borrowing capacity and the
// weighted debt terms of user at current prices.
func (e *Engine) GetUserBorrowTerms(user common.Address) (BorrowTerms, error) {
	if err := e.ready(); err != nil {
		return BorrowTerms{}, err
	}
	positions, err := e.Positions(user)
	if err != nil {
		return BorrowTerms{}, err
	}
	if len(positions) == 0 {
		return zeroBorrowTerms(), nil
	}
	acc := newTermsAccumulator()
	for _, pos := range positions {
		acc.add(e.UsdValue(pos.Asset, pos.Amount), e.mission.GetDebtTerms(pos.Asset))
	}
	return acc.result(), nil
}

// AccrueInterest returns the simple interest on principal over blocks.
func AccrueInterest(principal *big.Int, rate, blocks, blocksPerYear uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rate == 0 || blocks == 0 || blocksPerYear == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(principal, new(big.Int).SetUint64(rate))
	out.Mul(out, new(big.Int).SetUint64(blocks))
	out.Quo(out, new(big.Int).SetUint64(blocksPerYear))
	return out.Quo(out, nativecommon.BasisPoints())
}

// GetLatestUserDebtAndTerms returns the debt record of user with interest
// accrued up to the current block using the stored borrow rate, the current
// borrow terms, and the interest accrued. When shouldRefresh is set the
// returned record carries the current weighted terms. Nothing is persisted.
func (e *Engine) GetLatestUserDebtAndTerms(user common.Address, shouldRefresh bool) (ledger.UserDebt, BorrowTerms, *big.Int, error) {
	if err := e.ready(); err != nil {
		return ledger.UserDebt{}, BorrowTerms{}, nil, err
	}
	debt, err := e.ledger.GetUserDebt(user)
	if err != nil {
		return ledger.UserDebt{}, BorrowTerms{}, nil, err
	}
	bt, err := e.GetUserBorrowTerms(user)
	if err != nil {
		return ledger.UserDebt{}, BorrowTerms{}, nil, err
	}
	newInterest := big.NewInt(0)
	if debt.Amount.Sign() > 0 && e.block > debt.LastBlock {
		gen := e.mission.GetGeneralDebtConfig()
		newInterest = AccrueInterest(debt.Principal, debt.Terms.BorrowRate, e.block-debt.LastBlock, gen.BlocksPerYear)
		debt.Amount.Add(debt.Amount, newInterest)
	}
	if e.block > debt.LastBlock {
		debt.LastBlock = e.block
	}
	if shouldRefresh {
		debt.Terms = bt.Terms
	}
	return debt, bt, newInterest, nil
}

// UpdateDebtForUser persists accrued interest for user, adding it to the
// total debt and the unrealized yield. Only configured debt updaters may
// call it. It reports whether the user had debt.
func (e *Engine) UpdateDebtForUser(caller, user common.Address) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	if !e.mission.IsDebtUpdater(caller) {
		return false, ErrNoPerms
	}
	debt, _, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return false, err
	}
	if debt.Amount.Sign() == 0 {
		return false, nil
	}
	if err := e.ledger.SetUserDebt(user, debt, newInterest); err != nil {
		return false, err
	}
	e.emit(events.CreditDebtUpdated{User: user, Amount: debt.Amount, NewInterest: newInterest, Block: e.block})
	return true, nil
}
