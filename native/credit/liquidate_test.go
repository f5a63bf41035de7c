package credit_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	"ripe/native/credit"
	"ripe/native/internal/fixture"
	"ripe/native/mission"
)

// sweepWaterfall sells WETH from the simple vault to the endowment until
// target is covered.
type sweepWaterfall struct {
	s     *fixture.Stack
	calls int
}

func (w *sweepWaterfall) LiquidationWaterfall(user common.Address, target *big.Int) (*big.Int, error) {
	w.calls++
	held, err := w.s.Simple.GetTotalAmountForUser(user, fixture.Weth)
	if err != nil {
		return nil, err
	}
	amount := w.s.Credit.AssetAmount(fixture.Weth, target)
	if amount.Cmp(held) > 0 {
		amount = held
	}
	taken, _, err := w.s.Simple.Withdraw(user, fixture.Weth, amount, fixture.Endaoment)
	if err != nil {
		return nil, err
	}
	if err := w.s.Credit.PruneUserVault(user, fixture.SimpleVaultID); err != nil {
		return nil, err
	}
	return w.s.Credit.UsdValue(fixture.Weth, taken), nil
}

type idleWaterfall struct{ calls int }

func (w *idleWaterfall) LiquidationWaterfall(common.Address, *big.Int) (*big.Int, error) {
	w.calls++
	return big.NewInt(0), nil
}

type recordingStarter struct{ users []common.Address }

func (r *recordingStarter) StartLiquidationAuctions(user common.Address) (uint64, error) {
	r.users = append(r.users, user)
	return 1, nil
}

func liquidationStack(t *testing.T, price int64) *fixture.Stack {
	t.Helper()
	cfg := fixture.Config()
	cfg.Debt.KeeperFeeRatio = 1_00
	s := fixture.New(t, cfg)
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(50), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// price is expressed in cents.
	s.SetPrice(fixture.Weth, new(big.Int).Mul(big.NewInt(price), big.NewInt(10_000_000_000_000_000)))
	return s
}

func TestLiquidationChargesFeesOnceAndStartsAuctions(t *testing.T) {
	s := liquidationStack(t, 60)
	waterfall := &idleWaterfall{}
	starter := &recordingStarter{}
	s.Credit.SetWaterfall(waterfall)
	s.Credit.SetAuctionStarter(starter)

	ok, err := s.Credit.CanLiquidateUser(fixture.Alice)
	if err != nil || !ok {
		t.Fatalf("expected liquidatable at 83%%: %v", err)
	}
	fee, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	half := new(big.Int).Quo(fixture.E18(1), big.NewInt(2))
	if fee.Cmp(half) != 0 {
		t.Fatalf("expected keeper fee 0.5, got %s", fee)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Keeper); bal.Cmp(half) != 0 {
		t.Fatalf("keeper balance %s", bal)
	}
	debt := s.Debt(t, fixture.Alice)
	want := new(big.Int).Add(fixture.E18(55), half)
	if debt.Amount.Cmp(want) != 0 || !debt.InLiquidation {
		t.Fatalf("unexpected debt after liquidation: %s in=%v", debt.Amount, debt.InLiquidation)
	}
	yield, _ := s.Ledger.UnrealizedYield()
	if yield.Cmp(fixture.E18(5)) != 0 {
		t.Fatalf("liquidation fee must accrue as yield, got %s", yield)
	}
	if waterfall.calls != 1 || len(starter.users) != 1 || starter.users[0] != fixture.Alice {
		t.Fatalf("unexpected collaborator calls: waterfall=%d starter=%v", waterfall.calls, starter.users)
	}

	fee, err = s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice)
	if err != nil {
		t.Fatalf("second liquidation: %v", err)
	}
	if fee.Sign() != 0 {
		t.Fatalf("fees are charged only on entry, got %s", fee)
	}
	if debt := s.Debt(t, fixture.Alice); debt.Amount.Cmp(want) != 0 {
		t.Fatalf("debt moved on repeat liquidation: %s", debt.Amount)
	}
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(1), false); !errors.Is(err, credit.ErrInLiquidation) {
		t.Fatalf("expected borrow blocked, got %v", err)
	}
	if n := len(s.Events.OfType(events.TypeCreditLiquidate)); n != 2 {
		t.Fatalf("expected two liquidation events, got %d", n)
	}
	s.CheckTotalDebt(t)
}

func TestLiquidationRestoresHealth(t *testing.T) {
	s := liquidationStack(t, 62)
	waterfall := &sweepWaterfall{s: s}
	starter := &recordingStarter{}
	s.Credit.SetWaterfall(waterfall)
	s.Credit.SetAuctionStarter(starter)

	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	debt := s.Debt(t, fixture.Alice)
	if debt.InLiquidation {
		t.Fatalf("expected the position to be healthy again")
	}
	if debt.Amount.Sign() <= 0 || debt.Amount.Cmp(fixture.E18(1)) >= 0 {
		t.Fatalf("expected a dust remainder of debt, got %s", debt.Amount)
	}
	if len(starter.users) != 0 {
		t.Fatalf("healthy users get no auctions")
	}
	ok, err := s.Credit.HasGoodDebtHealth(fixture.Alice)
	if err != nil || !ok {
		t.Fatalf("expected good debt health: %v", err)
	}
	s.CheckTotalDebt(t)
}

func TestLiquidationRealisesBadDebt(t *testing.T) {
	s := liquidationStack(t, 10)
	s.Credit.SetWaterfall(&sweepWaterfall{s: s})
	starter := &recordingStarter{}
	s.Credit.SetAuctionStarter(starter)

	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	bad, err := s.Ledger.BadDebt()
	if err != nil {
		t.Fatalf("bad debt: %v", err)
	}
	// 55.5 of debt with fees against 10 of collateral.
	want := new(big.Int).Add(fixture.E18(45), new(big.Int).Quo(fixture.E18(1), big.NewInt(2)))
	if bad.Cmp(want) != 0 {
		t.Fatalf("expected bad debt %s, got %s", want, bad)
	}
	isBorrower, _ := s.Ledger.IsBorrower(fixture.Alice)
	if isBorrower {
		t.Fatalf("written off user must leave the registry")
	}
	if bal := s.Balance(t, fixture.Weth, fixture.Endaoment); bal.Cmp(fixture.E18(100)) != 0 {
		t.Fatalf("expected all collateral seized, got %s", bal)
	}
	if len(starter.users) != 0 {
		t.Fatalf("nothing left to auction")
	}
	total, _ := s.Ledger.TotalDebt()
	if total.Sign() != 0 {
		t.Fatalf("expected zero total debt, got %s", total)
	}
}

func TestLiquidationPreconditions(t *testing.T) {
	s := liquidationStack(t, 100)
	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); err == nil {
		t.Fatalf("expected error without a waterfall")
	}
	s.Credit.SetWaterfall(&idleWaterfall{})
	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); !errors.Is(err, credit.ErrCannotLiquidate) {
		t.Fatalf("expected cannot liquidate, got %v", err)
	}
	if _, err := s.Credit.LiquidateUser(fixture.Alice, fixture.Alice); !errors.Is(err, credit.ErrCannotLiquidateSelf) {
		t.Fatalf("expected self liquidation rejected, got %v", err)
	}

	cfg := fixture.Config()
	cfg.Debt.CanLiquidate = false
	disabled := fixture.New(t, cfg)
	disabled.Credit.SetWaterfall(&idleWaterfall{})
	if _, err := disabled.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); !errors.Is(err, credit.ErrLiquidateNotEnabled) {
		t.Fatalf("expected liquidations disabled, got %v", err)
	}
}

func TestLiquidateManySkipsIneligible(t *testing.T) {
	s := liquidationStack(t, 60)
	s.Deposit(t, fixture.Bob, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	if _, err := s.Credit.Borrow(fixture.Bob, fixture.E18(10), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	s.Credit.SetWaterfall(&idleWaterfall{})

	fees, n, err := s.Credit.LiquidateManyUsers(fixture.Keeper, []common.Address{fixture.Bob, fixture.Alice, fixture.Keeper, {}})
	if err != nil {
		t.Fatalf("liquidate many: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one liquidation, got %d", n)
	}
	if fees.Cmp(new(big.Int).Quo(fixture.E18(1), big.NewInt(2))) != 0 {
		t.Fatalf("unexpected fees %s", fees)
	}
	if s.Debt(t, fixture.Bob).InLiquidation {
		t.Fatalf("healthy bob must not be liquidated")
	}
}

func TestCanLiquidateMatchesThreshold(t *testing.T) {
	s := liquidationStack(t, 100)
	for _, cents := range []int64{100, 70, 63, 62, 61, 20} {
		s.SetPrice(fixture.Weth, new(big.Int).Mul(big.NewInt(cents), big.NewInt(10_000_000_000_000_000)))
		debt, bt, _, err := s.Credit.GetLatestUserDebtAndTerms(fixture.Alice, true)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		ok, err := s.Credit.CanLiquidateUser(fixture.Alice)
		if err != nil {
			t.Fatalf("can liquidate: %v", err)
		}
		lhs := new(big.Int).Mul(debt.Amount, big.NewInt(100_00))
		rhs := new(big.Int).Mul(bt.CollateralVal, new(big.Int).SetUint64(debt.Terms.LiqThreshold))
		if ok != (lhs.Cmp(rhs) > 0) {
			t.Fatalf("price %d cents: canLiquidate=%v disagrees with threshold", cents, ok)
		}
	}
}

func TestKeeperFeeBounds(t *testing.T) {
	gen := mission.GenDebtConfig{KeeperFeeRatio: 1_00, MinKeeperFee: fixture.E18(1), MaxKeeperFee: fixture.E18(3)}
	cases := map[int64]*big.Int{
		50:  fixture.E18(1),
		200: fixture.E18(2),
		900: fixture.E18(3),
	}
	for debt, want := range cases {
		if got := credit.CalcKeeperFee(fixture.E18(debt), gen); got.Cmp(want) != 0 {
			t.Fatalf("debt %d: expected %s, got %s", debt, want, got)
		}
	}
	gen.MaxKeeperFee = nil
	if got := credit.CalcKeeperFee(fixture.E18(900), gen); got.Cmp(fixture.E18(9)) != 0 {
		t.Fatalf("zero max must leave the fee uncapped, got %s", got)
	}
}

func TestCalcAmountOfDebtToRepayDuringLiq(t *testing.T) {
	got := credit.CalcAmountOfDebtToRepayDuringLiq(fixture.E18(100), fixture.E18(120), 50_00, 0, 10_00)
	want, _ := new(big.Int).SetString("88888888888888888888", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got := credit.CalcAmountOfDebtToRepayDuringLiq(fixture.E18(100), fixture.E18(101), 95_00, 0, 10_00); got.Cmp(fixture.E18(100)) != 0 {
		t.Fatalf("unreachable target must repay everything, got %s", got)
	}
}
