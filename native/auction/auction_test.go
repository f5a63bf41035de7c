package auction_test

import (
	"errors"
	"math/big"
	"testing"

	"ripe/core/events"
	"ripe/native/auction"
	"ripe/native/internal/fixture"
	"ripe/native/ledger"
	"ripe/native/mission"
)

var wethTarget = auction.Target{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}

// liquidated returns a stack where Alice holds 100 WETH priced at 0.60
// against 55 of debt and has been put into liquidation. The stability
// pool is empty so all collateral goes to auction.
func liquidated(t *testing.T, cfg mission.Config) *fixture.Stack {
	t.Helper()
	s := fixture.New(t, cfg)
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	if _, err := s.Credit.Borrow(fixture.Alice, fixture.E18(50), false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	s.SetPrice(fixture.Weth, big.NewInt(600_000_000_000_000_000))
	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	return s
}

func TestLiquidationStartsAuctions(t *testing.T) {
	s := liquidated(t, fixture.Config())
	debt := s.Debt(t, fixture.Alice)
	if !debt.InLiquidation || debt.Amount.Cmp(fixture.E18(55)) != 0 {
		t.Fatalf("debt = %+v", debt)
	}
	a, ok, err := s.Auctions.GetAuction(wethTarget)
	if err != nil || !ok || !a.IsActive || a.StartBlock != 0 {
		t.Fatalf("auction = %+v ok=%v err=%v", a, ok, err)
	}
	started := s.Events.OfType(events.TypeAuctionStarted)
	if len(started) != 1 || started[0].Attributes["restarted"] != "false" {
		t.Fatalf("unexpected start events: %v", started)
	}
	liq := s.Events.OfType(events.TypeCreditLiquidate)
	if len(liq) != 1 || liq[0].Attributes["auctionsStarted"] != "1" {
		t.Fatalf("unexpected liquidation event: %v", liq)
	}
}

func TestPauseAuctionTwice(t *testing.T) {
	s := liquidated(t, fixture.Config())

	if _, err := s.Auctions.PauseAuction(fixture.Bob, wethTarget); !errors.Is(err, auction.ErrNoPerms) {
		t.Fatalf("expected no perms, got %v", err)
	}
	paused, err := s.Auctions.PauseAuction(fixture.Admin, wethTarget)
	if err != nil || !paused {
		t.Fatalf("first pause = %v, %v", paused, err)
	}
	paused, err = s.Auctions.PauseAuction(fixture.Admin, wethTarget)
	if err != nil || paused {
		t.Fatalf("second pause = %v, %v", paused, err)
	}
	missing := auction.Target{User: fixture.Bob, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}
	if paused, err := s.Auctions.PauseAuction(fixture.Admin, missing); err != nil || paused {
		t.Fatalf("pause of missing auction = %v, %v", paused, err)
	}
	if n := len(s.Events.OfType(events.TypeAuctionPaused)); n != 1 {
		t.Fatalf("expected 1 pause event, got %d", n)
	}
}

func TestRestartResetsStartBlock(t *testing.T) {
	s := liquidated(t, fixture.Config())
	if _, err := s.Auctions.PauseAuction(fixture.Admin, wethTarget); err != nil {
		t.Fatalf("pause: %v", err)
	}
	s.SetBlock(50)

	started, err := s.Auctions.StartAuction(fixture.Admin, wethTarget)
	if err != nil || !started {
		t.Fatalf("restart = %v, %v", started, err)
	}
	a, _, err := s.Auctions.GetAuction(wethTarget)
	if err != nil || a.StartBlock != 50 || !a.IsActive {
		t.Fatalf("auction = %+v, %v", a, err)
	}
	started, err = s.Auctions.StartAuction(fixture.Admin, wethTarget)
	if err != nil || started {
		t.Fatalf("start of running auction = %v, %v", started, err)
	}
	if _, err := s.Auctions.StartAuction(fixture.Admin, auction.Target{User: fixture.Bob, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}); !errors.Is(err, auction.ErrNotInLiquidation) {
		t.Fatalf("expected not in liquidation, got %v", err)
	}
}

func TestBatchAuctionsSkipInvalidEntries(t *testing.T) {
	s := liquidated(t, fixture.Config())
	if _, err := s.Auctions.PauseAuction(fixture.Admin, wethTarget); err != nil {
		t.Fatalf("pause: %v", err)
	}

	targets := []auction.Target{
		wethTarget,
		{},
		{User: fixture.Alice, VaultID: 99, Asset: fixture.Weth},
		{User: fixture.Bob, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth},
		{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Usdc},
	}
	n, err := s.Auctions.StartManyAuctions(fixture.Admin, targets)
	if err != nil || n != 1 {
		t.Fatalf("started %d, %v", n, err)
	}
	n, err = s.Auctions.PauseManyAuctions(fixture.Admin, []auction.Target{wethTarget, wethTarget, {}})
	if err != nil || n != 1 {
		t.Fatalf("paused %d, %v", n, err)
	}
	if _, err := s.Auctions.StartManyAuctions(fixture.Keeper, targets); !errors.Is(err, auction.ErrNoPerms) {
		t.Fatalf("expected no perms, got %v", err)
	}
}

func TestCalcDiscount(t *testing.T) {
	params := mission.AuctionParams{StartDiscount: 10_00, MaxDiscount: 50_00, Delay: 10, Duration: 100}
	cases := []struct {
		name  string
		block uint64
		want  uint64
		live  bool
	}{
		{"before delay", 109, 0, false},
		{"at delay", 110, 10_00, true},
		{"half way", 160, 30_00, true},
		{"at end", 210, 50_00, true},
		{"held at max", 1_000, 50_00, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, live := auction.CalcDiscount(params, 100, tc.block)
			if got != tc.want || live != tc.live {
				t.Fatalf("discount = %d live=%v, want %d live=%v", got, live, tc.want, tc.live)
			}
		})
	}
	flat := mission.AuctionParams{StartDiscount: 5_00, MaxDiscount: 5_00}
	if got, live := auction.CalcDiscount(flat, 0, 0); got != 5_00 || !live {
		t.Fatalf("flat discount = %d %v", got, live)
	}
}

func TestBuyFungibleAuction(t *testing.T) {
	s := liquidated(t, fixture.Config())
	s.SetBlock(50)
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(30))

	got, err := s.Auctions.BuyFungibleAuction(fixture.Bob, wethTarget, fixture.E18(30))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// 25% discount: 30 GREEN buys 40 USD of WETH at 0.60.
	want, _ := new(big.Int).SetString("66666666666666666666", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("bought %s, want %s", got, want)
	}
	if bal := s.Balance(t, fixture.Weth, fixture.Bob); bal.Cmp(want) != 0 {
		t.Fatalf("buyer weth = %s", bal)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Bob); bal.Sign() != 0 {
		t.Fatalf("buyer green = %s", bal)
	}
	if debt := s.Debt(t, fixture.Alice); debt.Amount.Cmp(fixture.E18(25)) != 0 || !debt.InLiquidation {
		t.Fatalf("debt = %+v", debt)
	}

	// The remaining collateral is worth less than the debt; the buyer pays
	// only for what is left.
	s.Fund(t, fixture.Carol, fixture.Green, fixture.E18(100))
	if _, err := s.Auctions.BuyFungibleAuction(fixture.Carol, wethTarget, fixture.E18(100)); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Carol); bal.Cmp(fixture.E18(85)) != 0 {
		t.Fatalf("carol green = %s, want 85e18", bal)
	}
	if debt := s.Debt(t, fixture.Alice); debt.Amount.Cmp(fixture.E18(10)) != 0 {
		t.Fatalf("debt = %s", debt.Amount)
	}
	if _, ok, err := s.Auctions.GetAuction(wethTarget); err != nil || ok {
		t.Fatalf("depleted auction kept: ok=%v err=%v", ok, err)
	}
	bought := s.Events.OfType(events.TypeAuctionBought)
	if len(bought) != 2 || bought[1].Attributes["isDepleted"] != "true" || bought[0].Attributes["discount"] != "2500" {
		t.Fatalf("unexpected buy events: %v", bought)
	}
	s.CheckTotalDebt(t)
}

func TestBuyClearsAuctionsOnceHealthy(t *testing.T) {
	s := liquidated(t, fixture.Config())
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(50))

	if _, err := s.Auctions.BuyFungibleAuction(fixture.Bob, wethTarget, fixture.E18(50)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	debt := s.Debt(t, fixture.Alice)
	if debt.InLiquidation || debt.Amount.Cmp(fixture.E18(5)) != 0 {
		t.Fatalf("debt = %+v", debt)
	}
	if _, ok, err := s.Auctions.GetAuction(wethTarget); err != nil || ok {
		t.Fatalf("auction kept after recovery: ok=%v err=%v", ok, err)
	}
}

func TestBuyPreconditions(t *testing.T) {
	cfg := fixture.Config()
	fixture.EditAsset(&cfg, fixture.Weth, func(a *mission.AssetConfig) {
		a.AuctionParams = &mission.AuctionParams{MaxDiscount: 50_00, Delay: 10, Duration: 100}
	})
	s := liquidated(t, cfg)
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(10))

	cases := []struct {
		name   string
		target auction.Target
		amount *big.Int
		want   error
	}{
		{"zero amount", wethTarget, big.NewInt(0), auction.ErrInvalidAmount},
		{"zero user", auction.Target{VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}, fixture.E18(1), auction.ErrInvalidUser},
		{"not auctionable", auction.Target{User: fixture.Alice, VaultID: fixture.SimpleVaultID, Asset: fixture.Usdc}, fixture.E18(1), auction.ErrCannotBuy},
		{"no auction", auction.Target{User: fixture.Carol, VaultID: fixture.SimpleVaultID, Asset: fixture.Weth}, fixture.E18(1), auction.ErrNoAuction},
		{"delay pending", wethTarget, fixture.E18(1), auction.ErrNotStarted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Auctions.BuyFungibleAuction(fixture.Bob, tc.target, tc.amount); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := s.Auctions.PauseAuction(fixture.Admin, wethTarget); err != nil {
		t.Fatalf("pause: %v", err)
	}
	s.SetBlock(20)
	if _, err := s.Auctions.BuyFungibleAuction(fixture.Bob, wethTarget, fixture.E18(1)); !errors.Is(err, auction.ErrNoAuction) {
		t.Fatalf("paused auction must not sell, got %v", err)
	}
	if bal := s.Balance(t, fixture.Green, fixture.Bob); bal.Cmp(fixture.E18(10)) != 0 {
		t.Fatalf("failed buys moved funds: %s", bal)
	}
}

func TestStartLiquidationAuctionsSkipsNonAuctionAssets(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(10, 6))
	if err := s.Ledger.SetUserDebt(fixture.Alice, debtInLiquidation(), nil); err != nil {
		t.Fatalf("seed debt: %v", err)
	}
	n, err := s.Auctions.StartLiquidationAuctions(fixture.Alice)
	if err != nil || n != 1 {
		t.Fatalf("started %d, %v", n, err)
	}
	users, err := s.Ledger.AuctionedUsers()
	if err != nil || len(users) != 1 || users[0] != fixture.Alice {
		t.Fatalf("auctioned users = %v, %v", users, err)
	}
	// Running auctions are not restarted.
	n, err = s.Auctions.StartLiquidationAuctions(fixture.Alice)
	if err != nil || n != 0 {
		t.Fatalf("restarted %d, %v", n, err)
	}
}

func debtInLiquidation() ledger.UserDebt {
	return ledger.UserDebt{Amount: fixture.E18(10), Principal: fixture.E18(10), InLiquidation: true}
}
