package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/mission"
)

// borrowCaps applies every borrowing ceiling to amount. Each ceiling that
// is exhausted fails with its own error; a ceiling that merely limits the
// amount caps it.
func (e *Engine) borrowCaps(user common.Address, amount, currentDebt, totalMaxDebt, accrued *big.Int, gen mission.GenDebtConfig) (*big.Int, nativecommon.Interval, error) {
	available := nativecommon.SubFloor(totalMaxDebt, currentDebt)
	if available.Sign() == 0 {
		return nil, nativecommon.Interval{}, ErrNoDebtAvailable
	}
	out := nativecommon.Min(amount, available)

	if !nativecommon.IsZero(gen.PerUserDebtLimit) {
		room := nativecommon.SubFloor(gen.PerUserDebtLimit, currentDebt)
		if room.Sign() == 0 {
			return nil, nativecommon.Interval{}, ErrPerUserDebtLimit
		}
		out = nativecommon.Min(out, room)
	}

	if !nativecommon.IsZero(gen.GlobalDebtLimit) {
		total, err := e.ledger.TotalDebt()
		if err != nil {
			return nil, nativecommon.Interval{}, err
		}
		total.Add(total, accrued)
		room := nativecommon.SubFloor(gen.GlobalDebtLimit, total)
		if room.Sign() == 0 {
			return nil, nativecommon.Interval{}, ErrGlobalDebtLimit
		}
		out = nativecommon.Min(out, room)
	}

	limit := nativecommon.IntervalLimit{MaxPerInterval: gen.MaxBorrowPerInterval, Blocks: gen.NumBlocksPerInterval}
	prev, err := e.ledger.GetBorrowInterval(user)
	if err != nil {
		return nil, nativecommon.Interval{}, err
	}
	if room := limit.Available(e.block, prev); room != nil {
		if room.Sign() == 0 {
			return nil, nativecommon.Interval{}, ErrIntervalLimit
		}
		out = nativecommon.Min(out, room)
	}
	next, err := nativecommon.CheckInterval(limit, e.block, prev, out)
	if err != nil {
		return nil, nativecommon.Interval{}, ErrIntervalLimit
	}
	return out, next, nil
}

// Borrow mints new debt to user against the user's collateral and returns
// the amount credited to the user after the origination fee. The caller is
// trusted to have authorized user.
func (e *Engine) Borrow(user common.Address, amount *big.Int, wantsSavings bool) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	gen := e.mission.GetGeneralDebtConfig()
	if !gen.CanBorrow {
		return nil, ErrBorrowNotEnabled
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	isBorrower, err := e.ledger.IsBorrower(user)
	if err != nil {
		return nil, err
	}
	if !isBorrower && gen.NumAllowedBorrowers > 0 {
		n, err := e.ledger.NumBorrowers()
		if err != nil {
			return nil, err
		}
		if n >= gen.NumAllowedBorrowers {
			return nil, ErrMaxNumBorrowers
		}
	}
	debt, bt, newInterest, err := e.GetLatestUserDebtAndTerms(user, true)
	if err != nil {
		return nil, err
	}
	if debt.InLiquidation {
		return nil, ErrInLiquidation
	}
	borrowed, interval, err := e.borrowCaps(user, amount, debt.Amount, bt.TotalMaxDebt, newInterest, gen)
	if err != nil {
		return nil, err
	}
	newAmount := new(big.Int).Add(debt.Amount, borrowed)
	if !nativecommon.IsZero(gen.MinDebtAmount) && newAmount.Cmp(gen.MinDebtAmount) < 0 {
		return nil, ErrDebtTooSmall
	}

	daowry := big.NewInt(0)
	if gen.IsDaowryEnabled && bt.Terms.Daowry > 0 {
		daowry = nativecommon.ApplyBps(borrowed, bt.Terms.Daowry)
	}
	forUser := new(big.Int).Sub(borrowed, daowry)

	debt.Amount = newAmount
	debt.Principal.Add(debt.Principal, borrowed)
	if err := e.ledger.SetUserDebt(user, debt, newInterest); err != nil {
		return nil, err
	}
	if err := e.ledger.SetBorrowInterval(user, interval); err != nil {
		return nil, err
	}
	if err := e.mintGreen(user, forUser, wantsSavings); err != nil {
		return nil, err
	}
	if err := e.distributeRevenue(daowry); err != nil {
		return nil, err
	}
	e.emit(events.CreditBorrow{User: user, Amount: borrowed, ForUser: forUser, Daowry: daowry, WantsSavings: wantsSavings, Block: e.block})
	return forUser, nil
}

// distributeRevenue mints the origination fee together with the flushed
// unrealized yield and splits it between governance and the savings
// vault by the buyback ratio. Governance receives the floor; savings the
// remainder.
func (e *Engine) distributeRevenue(daowry *big.Int) error {
	yield, err := e.ledger.FlushUnrealizedYield()
	if err != nil {
		return err
	}
	total := new(big.Int).Add(daowry, yield)
	if total.Sign() == 0 {
		return nil
	}
	ratio, err := e.BuybackRatio()
	if err != nil {
		return err
	}
	dest := e.mission.Destinations()
	toGovernance := nativecommon.ApplyBps(total, ratio)
	toSavings := new(big.Int).Sub(total, toGovernance)
	if dest.Governance == (common.Address{}) {
		toSavings.Add(toSavings, toGovernance)
		toGovernance.SetInt64(0)
	}
	if err := e.mintGreen(dest.Governance, toGovernance, false); err != nil {
		return err
	}
	savingsDest := dest.SavingsVault
	if savingsDest == (common.Address{}) && e.savings != nil {
		savingsDest = e.savings.Account()
	}
	if savingsDest != (common.Address{}) {
		if err := e.mintGreen(savingsDest, toSavings, false); err != nil {
			return err
		}
	}
	e.emit(events.CreditRevenue{Daowry: daowry, Yield: yield, Governance: toGovernance, Savings: toSavings, Block: e.block})
	return nil
}

// BuybackRatio returns the active share of revenue routed to governance.
func (e *Engine) BuybackRatio() (uint64, error) {
	ratio, ok, err := e.ledger.BuybackRatio()
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.mission.BuybackRatio(), nil
	}
	return ratio, nil
}

// SetBuybackRatio changes the revenue split immediately. Only buyback
// admins may call it.
func (e *Engine) SetBuybackRatio(caller common.Address, ratio uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.mission.IsBuybackAdmin(caller) {
		return ErrNoPerms
	}
	if ratio > nativecommon.HundredPercent {
		return ErrInvalidBuybackRatio
	}
	if err := e.ledger.SetBuybackRatio(ratio); err != nil {
		return err
	}
	e.emit(events.CreditBuybackRatio{Caller: caller, Ratio: ratio, Block: e.block})
	return nil
}
