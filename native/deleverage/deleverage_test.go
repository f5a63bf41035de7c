package deleverage_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/deleverage"
	"ripe/native/internal/fixture"
	"ripe/native/mission"
)

func borrow(t *testing.T, s *fixture.Stack, user common.Address, amount *big.Int) {
	t.Helper()
	if _, err := s.Credit.Borrow(user, amount, false); err != nil {
		t.Fatalf("borrow: %v", err)
	}
}

// depositSavings wraps amount of stablecoin into savings shares for user
// and deposits the shares into the stability pool.
func depositSavings(t *testing.T, s *fixture.Stack, user common.Address, amount *big.Int) *big.Int {
	t.Helper()
	s.Fund(t, user, fixture.Green, amount)
	shares, err := s.Savings.Deposit(user, user, amount)
	if err != nil {
		t.Fatalf("savings deposit: %v", err)
	}
	if _, err := s.Pool.Deposit(user, user, fixture.SavingsGreen, shares); err != nil {
		t.Fatalf("pool deposit: %v", err)
	}
	if err := s.Ledger.AddVaultToUser(user, fixture.StabilityVaultID); err != nil {
		t.Fatalf("register vault: %v", err)
	}
	return shares
}

func TestDeleverageWaterfallScenario(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	// Alice's savings deposit is swapped out for stablecoin, leaving 30
	// claimable and an empty stability position.
	s.Deposit(t, fixture.Alice, fixture.StabilityVaultID, fixture.SavingsGreen, fixture.E18(30))
	s.Fund(t, fixture.Bob, fixture.Green, fixture.E18(30))
	if err := s.Pool.SwapForLiquidatedCollateral(fixture.SavingsGreen, fixture.E18(30), fixture.Green, fixture.E18(30), fixture.Bob, fixture.Bob); err != nil {
		t.Fatalf("swap: %v", err)
	}
	claimable, err := s.Pool.ClaimableOf(fixture.Alice, fixture.Green)
	if err != nil || claimable.Cmp(fixture.E18(30)) != 0 {
		t.Fatalf("claimable = %v, %v", claimable, err)
	}
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(200, 6))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(1000))
	borrow(t, s, fixture.Alice, fixture.E18(500))

	repaid, err := s.Deleverage.DeleverageUser(fixture.Admin, fixture.Alice, big.NewInt(0))
	if err != nil {
		t.Fatalf("deleverage: %v", err)
	}
	if repaid.Cmp(fixture.E18(230)) != 0 {
		t.Fatalf("repaid = %s, want 230e18", repaid)
	}
	if got := s.Debt(t, fixture.Alice).Amount; got.Cmp(fixture.E18(270)) != 0 {
		t.Fatalf("debt = %s, want 270e18", got)
	}
	if got := s.Balance(t, fixture.Usdc, fixture.Endaoment); got.Cmp(fixture.Units(200, 6)) != 0 {
		t.Fatalf("endowment usdc = %s", got)
	}
	if got := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth); got.Cmp(fixture.E18(1000)) != 0 {
		t.Fatalf("weth must be left untouched, held %s", got)
	}

	assets := s.Events.OfType(events.TypeDeleverageAsset)
	if len(assets) != 2 {
		t.Fatalf("expected 2 consumed positions, got %d", len(assets))
	}
	first := assets[0].Attributes
	if first["action"] != events.ActionBurn || first["amount"] != fixture.E18(30).String() || first["isDepleted"] != "true" {
		t.Fatalf("unexpected claimable burn: %v", first)
	}
	if assets[1].Attributes["action"] != events.ActionEndaoment {
		t.Fatalf("unexpected second action: %v", assets[1].Attributes)
	}
	s.CheckTotalDebt(t)
}

func TestDeleverageWithoutDebtFails(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))

	_, err := s.Deleverage.DeleverageUser(fixture.Alice, fixture.Alice, big.NewInt(0))
	if !errors.Is(err, deleverage.ErrCannotDeleverage) {
		t.Fatalf("expected cannot deleverage, got %v", err)
	}
	if got := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc); got.Cmp(fixture.Units(100, 6)) != 0 {
		t.Fatalf("collateral moved: %s", got)
	}
}

func TestDeleverageWithoutEligibleAssetsFails(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	borrow(t, s, fixture.Alice, fixture.E18(20))

	_, err := s.Deleverage.DeleverageUser(fixture.Alice, fixture.Alice, big.NewInt(0))
	if !errors.Is(err, deleverage.ErrCannotDeleverage) {
		t.Fatalf("expected cannot deleverage, got %v", err)
	}
}

func TestDeleverageNeverDebitsAPositionTwice(t *testing.T) {
	cfg := fixture.Config()
	// The stability pool stablecoin is listed again as priority
	// collateral; it must still be consumed once.
	cfg.PriorityLiqAssets = append(cfg.PriorityLiqAssets, mission.VaultAsset{VaultID: fixture.StabilityVaultID, Asset: fixture.Green})
	s := fixture.New(t, cfg)
	s.Deposit(t, fixture.Alice, fixture.StabilityVaultID, fixture.Green, fixture.E18(40))
	shares := depositSavings(t, s, fixture.Alice, fixture.E18(20))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Green, fixture.E18(25))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(1000))
	borrow(t, s, fixture.Alice, fixture.E18(300))

	type key struct {
		vault string
		asset string
	}
	pre := map[key]*big.Int{
		{"3", fixture.Green.Hex()}:        fixture.E18(40),
		{"3", fixture.SavingsGreen.Hex()}: shares,
		{"1", fixture.Green.Hex()}:        fixture.E18(25),
		{"1", fixture.Usdc.Hex()}:         fixture.Units(100, 6),
	}

	repaid, err := s.Deleverage.DeleverageUser(fixture.Alice, fixture.Alice, big.NewInt(0))
	if err != nil {
		t.Fatalf("deleverage: %v", err)
	}
	if repaid.Cmp(fixture.E18(185)) != 0 {
		t.Fatalf("repaid = %s, want 185e18", repaid)
	}

	consumed := make(map[key]*big.Int)
	var order []string
	for _, evt := range s.Events.OfType(events.TypeDeleverageAsset) {
		k := key{evt.Attributes["vaultId"], common.HexToAddress(evt.Attributes["asset"]).Hex()}
		if _, seen := consumed[k]; seen {
			t.Fatalf("position %v debited twice", k)
		}
		amount, _ := new(big.Int).SetString(evt.Attributes["amount"], 10)
		consumed[k] = amount
		order = append(order, evt.Attributes["vaultId"]+"/"+evt.Attributes["action"])
	}
	for k, amount := range consumed {
		before, ok := pre[k]
		if !ok {
			t.Fatalf("unexpected position %v consumed", k)
		}
		if amount.Cmp(before) > 0 {
			t.Fatalf("position %v consumed %s of %s", k, amount, before)
		}
	}
	want := []string{"3/burn", "3/burn", "1/endaoment", "1/burn"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if got := s.Debt(t, fixture.Alice).Amount; got.Cmp(fixture.E18(115)) != 0 {
		t.Fatalf("debt = %s, want 115e18", got)
	}
	s.CheckTotalDebt(t)
}

func TestDeleverageStopsAtTarget(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.StabilityVaultID, fixture.Green, fixture.E18(40))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	borrow(t, s, fixture.Alice, fixture.E18(60))

	repaid, err := s.Deleverage.DeleverageUser(fixture.Alice, fixture.Alice, fixture.E18(35))
	if err != nil {
		t.Fatalf("deleverage: %v", err)
	}
	if repaid.Cmp(fixture.E18(35)) != 0 {
		t.Fatalf("repaid = %s", repaid)
	}
	if got := s.Held(t, fixture.Alice, fixture.StabilityVaultID, fixture.Green); got.Cmp(fixture.E18(5)) != 0 {
		t.Fatalf("pool position = %s, want 5e18", got)
	}
	if got := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc); got.Cmp(fixture.Units(100, 6)) != 0 {
		t.Fatalf("priority collateral touched: %s", got)
	}
	burn := s.Events.OfType(events.TypeDeleverageAsset)[0].Attributes
	if burn["isDepleted"] != "false" {
		t.Fatalf("partial burn reported depleted: %v", burn)
	}
}

func TestDeleveragePermissions(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	borrow(t, s, fixture.Alice, fixture.E18(50))

	if _, err := s.Deleverage.DeleverageUser(fixture.Bob, fixture.Alice, big.NewInt(0)); !errors.Is(err, deleverage.ErrNoPerms) {
		t.Fatalf("expected no perms for a healthy user, got %v", err)
	}
	if _, err := s.Deleverage.DeleverageUser(fixture.Bob, common.Address{}, big.NewInt(0)); !errors.Is(err, deleverage.ErrInvalidUser) {
		t.Fatalf("expected invalid user, got %v", err)
	}

	// Once the position is redeemable anyone may deleverage it.
	s.SetPrice(fixture.Usdc, big.NewInt(500_000_000_000_000_000))
	ok, err := s.Credit.CanRedeemUserCollateral(fixture.Alice)
	if err != nil || !ok {
		t.Fatalf("expected redeemable: %v", err)
	}
	if _, err := s.Deleverage.DeleverageUser(fixture.Bob, fixture.Alice, fixture.E18(10)); err != nil {
		t.Fatalf("public deleverage: %v", err)
	}

	paused := fixture.New(t, fixture.Config())
	paused.Deleverage.SetPauses(nativecommon.Pauses{"deleverage": true})
	if _, err := paused.Deleverage.DeleverageUser(fixture.Admin, fixture.Alice, nil); !errors.Is(err, deleverage.ErrContractPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestDeleverageWithSpecificAssets(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.StabilityVaultID, fixture.Green, fixture.E18(40))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	borrow(t, s, fixture.Alice, fixture.E18(100))

	list := []deleverage.AssetTarget{
		{VaultID: fixture.SimpleVaultID, Asset: fixture.Usdc, Amount: fixture.Units(50, 6)},
		{VaultID: fixture.SimpleVaultID, Asset: fixture.Usdc},
		{VaultID: fixture.SimpleVaultID, Asset: fixture.Weth},
		{VaultID: 99, Asset: fixture.Usdc},
	}
	if _, err := s.Deleverage.DeleverageWithSpecificAssets(fixture.Alice, fixture.Alice, list); !errors.Is(err, deleverage.ErrNoPerms) {
		t.Fatalf("expected trusted-only, got %v", err)
	}
	repaid, err := s.Deleverage.DeleverageWithSpecificAssets(fixture.Admin, fixture.Alice, list)
	if err != nil {
		t.Fatalf("deleverage: %v", err)
	}
	if repaid.Cmp(fixture.E18(50)) != 0 {
		t.Fatalf("repaid = %s, want 50e18", repaid)
	}
	if got := s.Held(t, fixture.Alice, fixture.StabilityVaultID, fixture.Green); got.Cmp(fixture.E18(40)) != 0 {
		t.Fatalf("unlisted pool position consumed: %s", got)
	}
	if got := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth); got.Cmp(fixture.E18(100)) != 0 {
		t.Fatalf("weth consumed outside liquidation: %s", got)
	}
}

func TestCalcRepaymentForWithdrawal(t *testing.T) {
	cases := []struct {
		name     string
		debt     *big.Int
		capacity *big.Int
		lost     *big.Int
		effLtv   uint64
		want     *big.Int
	}{
		{"buffered", fixture.E18(100), fixture.E18(140), fixture.E18(5), 90_00, new(big.Int).Div(fixture.E18(101), big.NewInt(10))},
		{"no capacity lost", fixture.E18(100), fixture.E18(140), big.NewInt(0), 90_00, big.NewInt(0)},
		{"underwater", fixture.E18(100), fixture.E18(80), fixture.E18(5), 90_00, fixture.E18(100)},
		{"capped at debt", fixture.E18(100), fixture.E18(101), fixture.E18(200), 0, fixture.E18(100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deleverage.CalcRepaymentForWithdrawal(tc.debt, tc.capacity, tc.lost, tc.effLtv)
			if got.Cmp(tc.want) != 0 {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeleverageInfoReportsCoverageWithoutBuffer(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(50, 6))
	borrow(t, s, fixture.Alice, fixture.E18(80))

	info, err := s.Deleverage.GetDeleverageInfo(fixture.Alice)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	// Only 50 USDC is deleverageable; the debt is larger, so the coverage
	// is the position value itself.
	if info.MaxDeleverageUsd.Cmp(fixture.E18(50)) != 0 {
		t.Fatalf("max deleverage = %s, want 50e18", info.MaxDeleverageUsd)
	}
}

func TestDeleverageForWithdrawal(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Usdc, fixture.Units(100, 6))
	borrow(t, s, fixture.Alice, fixture.E18(100))

	info, err := s.Deleverage.GetDeleverageInfo(fixture.Alice)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.MaxDeleverageUsd.Cmp(fixture.E18(100)) != 0 || info.EffectiveLtv != 90_00 {
		t.Fatalf("info = %+v", info)
	}

	if _, err := s.Deleverage.DeleverageForWithdrawal(fixture.Alice, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(10)); !errors.Is(err, deleverage.ErrNoPerms) {
		t.Fatalf("expected trusted-only, got %v", err)
	}
	ok, err := s.Deleverage.DeleverageForWithdrawal(fixture.Admin, fixture.Alice, fixture.SimpleVaultID, fixture.Green, fixture.E18(10))
	if err != nil || ok {
		t.Fatalf("zero ltv asset must be a no-op: %v %v", ok, err)
	}
	ok, err = s.Deleverage.DeleverageForWithdrawal(fixture.Admin, fixture.Bob, fixture.SimpleVaultID, fixture.Weth, fixture.E18(10))
	if err != nil || ok {
		t.Fatalf("no debt must be a no-op: %v %v", ok, err)
	}

	ok, err = s.Deleverage.DeleverageForWithdrawal(fixture.Admin, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(10))
	if err != nil || !ok {
		t.Fatalf("deleverage for withdrawal: %v %v", ok, err)
	}
	want := new(big.Int).Div(fixture.E18(899), big.NewInt(10))
	if got := s.Debt(t, fixture.Alice).Amount; got.Cmp(want) != 0 {
		t.Fatalf("debt = %s, want %s", got, want)
	}
	if got := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth); got.Cmp(fixture.E18(100)) != 0 {
		t.Fatalf("withdrawn asset consumed: %s", got)
	}
}

func TestDeleverageForWithdrawalWithoutEligibleAssets(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	borrow(t, s, fixture.Alice, fixture.E18(20))

	ok, err := s.Deleverage.DeleverageForWithdrawal(fixture.Admin, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(10))
	if err != nil || ok {
		t.Fatalf("expected no-op, got %v %v", ok, err)
	}
}

func TestLiquidationSwapsIntoStabilityPool(t *testing.T) {
	s := fixture.New(t, fixture.Config())
	s.Deposit(t, fixture.Bob, fixture.StabilityVaultID, fixture.Green, fixture.E18(100))
	s.Deposit(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth, fixture.E18(100))
	borrow(t, s, fixture.Alice, fixture.E18(50))
	s.SetPrice(fixture.Weth, big.NewInt(600_000_000_000_000_000))

	if _, err := s.Credit.LiquidateUser(fixture.Keeper, fixture.Alice); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	debt := s.Debt(t, fixture.Alice)
	if debt.Amount.Sign() != 0 || debt.InLiquidation {
		t.Fatalf("debt after swap = %+v", debt)
	}
	left := s.Held(t, fixture.Alice, fixture.SimpleVaultID, fixture.Weth)
	sold := new(big.Int).Sub(fixture.E18(100), left)
	claim, err := s.Pool.ClaimableOf(fixture.Bob, fixture.Weth)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claim.Cmp(sold) != 0 {
		t.Fatalf("pool received %s weth, alice lost %s", claim, sold)
	}
	deposits, err := s.Pool.TotalDeposits(fixture.Green)
	if err != nil || deposits.Cmp(fixture.E18(45)) != 0 {
		t.Fatalf("pool deposits = %v, %v", deposits, err)
	}
	swaps := s.Events.OfType(events.TypeDeleverageAsset)
	if len(swaps) != 1 || swaps[0].Attributes["action"] != events.ActionSwap {
		t.Fatalf("unexpected waterfall events: %v", swaps)
	}
	s.CheckTotalDebt(t)
}
