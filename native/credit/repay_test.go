package credit_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	"ripe/native/credit"
	"ripe/native/internal/fixture"
	"ripe/native/ledger"
)

func TestRepayFullDeregistersBorrower(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(50), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	paid, err := s.Credit.Repay(fixture.Alice, fixture.Alice, fixture.E18(80), false)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Cmp(fixture.E18(50)) != 0 {
		t.Fatalf("expected repayment capped at the debt, got %s", paid)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Alice); bal.Sign() != 0 {
		t.Fatalf("expected repaid GREEN burned, balance %s", bal)
	}
	isBorrower, err := s.Ledger.IsBorrower(fixture.Alice)
	if err != nil || isBorrower {
		t.Fatalf("expected alice deregistered: %v", err)
	}
	if _, err := s.Credit.Repay(fixture.Alice, fixture.Alice, fixture.E18(1), false); !errors.Is(err, credit.ErrNoDebt) {
		t.Fatalf("expected no debt, got %v", err)
	}
	s.CheckTotalDebt(t)
}

func TestRepayByThirdPartyWithSavings(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(20), true); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := s.Credit.Repay(fixture.Alice, fixture.Alice, fixture.E18(5), true); err != nil {
		t.Fatalf("repay with savings: %v", err)
	}
	if bal := s.Balance(t, fixture.SavingsGreen, fixture.Alice); bal.Cmp(fixture.E18(15)) != 0 {
		t.Fatalf("expected 15 sGREEN left, got %s", bal)
	}

	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(5))
	if _, err := s.Credit.Repay(fixture.Bob, fixture.Alice, fixture.E18(5), false); err != nil {
		t.Fatalf("repay for alice: %v", err)
	}
	if debt := s.Debt(t, fixture.Alice); debt.Amount.Cmp(fixture.E18(10)) != 0 {
		t.Fatalf("expected 10 debt left, got %s", debt.Amount)
	}
	s.CheckTotalDebt(t)
}

func TestRepayExitsLiquidationWhenHealthy(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	seed := ledger.UserDebt{
		Amount:        fixture.E18(60),
		Principal:     fixture.E18(60),
		Terms:         s.Mission.GetDebtTerms(fixture.Weth),
		InLiquidation: true,
	}
	if err := s.Ledger.SetUserDebt(fixture.Alice, seed, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s.Fund(t, fixture.Alice, fixture.Green, fixture.E18(20))

	if _, err := s.Credit.Repay(fixture.Alice, fixture.Alice, fixture.E18(5), false); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !s.Debt(t, fixture.Alice).InLiquidation {
		t.Fatalf("55 of debt against 50 capacity is still unhealthy")
	}
	if _, err := s.Credit.Repay(fixture.Alice, fixture.Alice, fixture.E18(15), false); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if s.Debt(t, fixture.Alice).InLiquidation {
		t.Fatalf("expected liquidation flag cleared")
	}
	repays := s.Events.OfType(events.TypeCreditRepay)
	if len(repays) != 2 || repays[1].Attributes["exitedLiquidation"] != "true" {
		t.Fatalf("unexpected repay events %+v", repays)
	}
}

func TestRedemptionScenario(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(200))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(100), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	ok, err := s.Credit.CanRedeemUserCollateral(fixture.Alice)
	if err != nil || ok {
		t.Fatalf("healthy position must not be redeemable: %v", err)
	}

	s.SetPrice(fixture.Weth, big.NewInt(700_000_000_000_000_000))
	ok, err = s.Credit.CanRedeemUserCollateral(fixture.Alice)
	if err != nil || !ok {
		t.Fatalf("expected redeemable at 71.4%%: %v", err)
	}

	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(10))
	req := credit.RedeemRequest{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}
	spent, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(10), false)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if spent.Cmp(fixture.E18(10)) != 0 {
		t.Fatalf("expected 10 spent, got %s", spent)
	}
	received := s.Balance(t, fixture.Weth, fixture.Bob)
	want, _ := new(big.Int).SetString("14285714285714285714", 10)
	if received.Cmp(want) != 0 {
		t.Fatalf("expected %s WETH, got %s", want, received)
	}
	ok, err = s.Credit.CanRedeemUserCollateral(fixture.Alice)
	if err != nil || ok {
		t.Fatalf("expected 69.2%% to leave the redemption zone: %v", err)
	}
	if _, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(1), false); !errors.Is(err, credit.ErrCannotRedeem) {
		t.Fatalf("expected cannot redeem, got %v", err)
	}
	s.CheckTotalDebt(t)
}

func TestRedemptionRoundTripStopsAtTarget(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(200))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(100), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	s.SetPrice(fixture.Weth, big.NewInt(700_000_000_000_000_000))
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(1_000))

	req := credit.RedeemRequest{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}
	for i := 0; i < 5; i++ {
		ok, err := s.Credit.CanRedeemUserCollateral(fixture.Alice)
		if err != nil {
			t.Fatalf("can redeem: %v", err)
		}
		if !ok {
			break
		}
		if _, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(1_000), false); err != nil {
			t.Fatalf("redeem: %v", err)
		}
	}
	ok, err := s.Credit.CanRedeemUserCollateral(fixture.Alice)
	if err != nil || ok {
		t.Fatalf("expected redemption to stop at the target ltv: %v", err)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Bob); bal.Cmp(fixture.E18(940)) != 0 {
		t.Fatalf("expected 60 spent, balance %s", bal)
	}
}

func TestRedeemStablecoinAtPar(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(90), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	s.SetPrice(fixture.Usdc, big.NewInt(970_000_000_000_000_000))
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(5))

	req := credit.RedeemRequest{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Usdc}
	if _, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(5), false); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := s.Balance(t, fixture.Usdc, fixture.Bob); got.Cmp(fixture.Units(5, 6)) != 0 {
		t.Fatalf("expected exactly 5 USDC at par, got %s", got)
	}
}

func TestRedeemFromManySkipsHealthyUsers(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(200))
	s.Deposit(t, fixture.Carol, fixture.SimpleVaultID, fixture.Weth, fixture.E18(200))
	s.Deposit(t, fixture.Bob, fixture.SimpleVaultID, fixture.Weth, fixture.E18(200))
	for user, amount := range map[common.Address]int64{fixture.Alice: 100, fixture.Carol: 100, fixture.Bob: 50} {
		if _, err := s.Credit.Borrow(user, fixture.E18(amount), false); err != nil {
			t.Fatalf("borrow: %v", err)
		}
	}
	s.SetPrice(fixture.Weth, big.NewInt(700_000_000_000_000_000))
	s.Fund(t, fixture.Keeper, fixture.Green, fixture.E18(1_000))

	reqs := []credit.RedeemRequest{
		{User: fixture.Bob, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth},
		{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth},
		{User: fixture.Carol, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth},
	}
	spent, err := s.Credit.RedeemCollateralFromMany(fixture.Keeper, reqs, fixture.E18(100), 0, false)
	if err != nil {
		t.Fatalf("redeem many: %v", err)
	}
	if spent.Cmp(fixture.E18(100)) != 0 {
		t.Fatalf("expected 100 spent, got %s", spent)
	}
	if debt := s.Debt(t, fixture.Bob); debt.Amount.Cmp(fixture.E18(50)) != 0 {
		t.Fatalf("healthy bob must be untouched, debt %s", debt.Amount)
	}
	if debt := s.Debt(t, fixture.Carol); debt.Amount.Cmp(fixture.E18(60)) != 0 {
		t.Fatalf("expected carol at 60, got %s", debt.Amount)
	}
	s.CheckTotalDebt(t)
}

func TestRedeemPreconditions(t *testing.T) {
	cfg := fixture.Config()
	cfg.Debt.CanRedeem = false
	s := fixture.New(t, cfg)
	req := credit.RedeemRequest{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}
	if _, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(1), false); !errors.Is(err, credit.ErrRedeemNotEnabled) {
		t.Fatalf("expected redeem disabled, got %v", err)
	}

	s = fixture.New(t, fixture.Config())
	req.Asset = fixture.Steth
	if _, err := s.Credit.RedeemCollateral(fixture.Bob, req, fixture.E18(1), false); !errors.Is(err, credit.ErrAssetNotRedeemable) {
		t.Fatalf("expected asset not redeemable, got %v", err)
	}
	if _, err := s.Credit.RedeemCollateralFromMany(fixture.Bob, []credit.RedeemRequest{req}, fixture.E18(1), 0, false); !errors.Is(err, credit.ErrNothingRedeemed) {
		t.Fatalf("expected nothing redeemed, got %v", err)
	}
}

func TestCalcAmountOfDebtToRepayDuringRedemption(t *testing.T) {
	got := credit.CalcAmountOfDebtToRepayDuringRedemption(fixture.E18(100), fixture.E18(140), 50_00, 0)
	if got.Cmp(fixture.E18(60)) != 0 {
		t.Fatalf("expected 60, got %s", got)
	}
	if credit.CalcAmountOfDebtToRepayDuringRedemption(fixture.E18(40), fixture.E18(140), 50_00, 0).Sign() != 0 {
		t.Fatalf("healthy position needs no repayment")
	}
}
