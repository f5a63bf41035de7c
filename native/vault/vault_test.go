package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
	"ripe/native/token"
	"ripe/storage"
)

var (
	green   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	steth   = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	minter  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	custody = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000ca0")
)

type fixedPrices map[common.Address]int64

func (f fixedPrices) GetUsdValue(asset common.Address, amount *big.Int) *big.Int {
	return new(big.Int).Mul(amount, big.NewInt(f[asset]))
}

func (f fixedPrices) GetAssetAmount(asset common.Address, usd *big.Int) *big.Int {
	if f[asset] == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(usd, big.NewInt(f[asset]))
}

func newBook(t *testing.T) (*state.Manager, *token.Book) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	book := token.NewBook(st)
	for _, asset := range []common.Address{green, weth, steth} {
		book.GrantMinter(asset, minter)
		for _, user := range []common.Address{alice, bob, carol} {
			if err := book.Mint(minter, asset, user, big.NewInt(1_000)); err != nil {
				t.Fatalf("mint: %v", err)
			}
		}
	}
	return st, book
}

func TestSimpleVaultDepositWithdraw(t *testing.T) {
	st, book := newBook(t)
	v := NewSimpleVault(3, custody, st, book)
	if _, err := v.Deposit(alice, alice, weth, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := v.Deposit(alice, alice, steth, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	n, err := v.GetNumUserAssets(alice)
	if err != nil || n != 2 {
		t.Fatalf("expected two assets, got %d (%v)", n, err)
	}
	asset, amount, err := v.GetUserAssetAndAmountAtIndex(alice, 0)
	if err != nil || asset != weth || amount.Int64() != 100 {
		t.Fatalf("unexpected index 0: %s %v %v", asset.Hex(), amount, err)
	}
	taken, depleted, err := v.Withdraw(alice, weth, big.NewInt(500), bob)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if taken.Int64() != 100 || !depleted {
		t.Fatalf("expected capped full withdrawal, got %s depleted=%v", taken, depleted)
	}
	bal, _ := book.BalanceOf(weth, bob)
	if bal.Int64() != 1_100 {
		t.Fatalf("unexpected recipient balance %s", bal)
	}
	n, _ = v.GetNumUserAssets(alice)
	if n != 1 {
		t.Fatalf("expected depleted asset to be dropped, got %d assets", n)
	}
}

func TestRebasingVaultAccruesToHolders(t *testing.T) {
	st, book := newBook(t)
	v := NewRebasingVault(4, custody, st, book)
	if _, err := v.Deposit(alice, alice, steth, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := v.Deposit(bob, bob, steth, big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := book.Credit(steth, custody, big.NewInt(40)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	got, err := v.GetTotalAmountForUser(alice, steth)
	if err != nil || got.Int64() != 110 {
		t.Fatalf("expected 110 after rebase, got %v (%v)", got, err)
	}
	moved, _, err := v.TransferBalance(bob, carol, steth, big.NewInt(33))
	if err != nil || moved.Int64() != 33 {
		t.Fatalf("transfer: %v %v", moved, err)
	}
	got, _ = v.GetTotalAmountForUser(carol, steth)
	if got.Int64() < 33 {
		t.Fatalf("expected carol to hold at least 33, got %s", got)
	}
}

func TestStabilityPoolSwapCreditsClaimables(t *testing.T) {
	st, book := newBook(t)
	pool := NewStabilityPool(1, custody, st, book)
	if _, err := pool.Deposit(alice, alice, green, big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := pool.Deposit(bob, bob, green, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// The engine swaps 8 weth worth 200 for 200 green.
	if err := pool.SwapForLiquidatedCollateral(green, big.NewInt(200), weth, big.NewInt(8), carol, minter); err != nil {
		t.Fatalf("swap: %v", err)
	}
	aliceDeposit, _ := pool.DepositAmountOf(alice, green)
	if aliceDeposit.Int64() != 150 {
		t.Fatalf("expected alice deposit 150, got %s", aliceDeposit)
	}
	aliceClaim, _ := pool.ClaimableOf(alice, weth)
	bobClaim, _ := pool.ClaimableOf(bob, weth)
	if aliceClaim.Int64() != 6 || bobClaim.Int64() != 2 {
		t.Fatalf("unexpected claimables alice=%s bob=%s", aliceClaim, bobClaim)
	}
	n, _ := pool.GetNumUserAssets(alice)
	if n != 2 {
		t.Fatalf("expected deposit and claimable positions, got %d", n)
	}
	if err := pool.SwapForLiquidatedCollateral(green, big.NewInt(500), weth, big.NewInt(1), carol, minter); err == nil {
		t.Fatalf("expected insufficient liquidity")
	}
}

func TestStabilityPoolRedeemTurnsClaimablesIntoGreen(t *testing.T) {
	st, book := newBook(t)
	pool := NewStabilityPool(1, custody, st, book)
	if _, err := pool.Deposit(alice, alice, green, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := pool.SwapForLiquidatedCollateral(green, big.NewInt(100), weth, big.NewInt(4), carol, minter); err != nil {
		t.Fatalf("swap: %v", err)
	}
	got, err := pool.RedeemFromPool(bob, weth, green, big.NewInt(50), fixedPrices{weth: 25})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.Int64() != 2 {
		t.Fatalf("expected 2 weth, got %s", got)
	}
	claimGreen, _ := pool.ClaimableOf(alice, green)
	claimWeth, _ := pool.ClaimableOf(alice, weth)
	if claimGreen.Int64() != 50 || claimWeth.Int64() != 2 {
		t.Fatalf("unexpected claimables green=%s weth=%s", claimGreen, claimWeth)
	}
	// Deposits were fully swapped out so alice only holds claimables.
	total, _ := pool.GetTotalAmountForUser(alice, green)
	if total.Int64() != 50 {
		t.Fatalf("expected green position of 50, got %s", total)
	}
	taken, depleted, err := pool.WithdrawClaimable(alice, green, big.NewInt(80), alice)
	if err != nil || taken.Int64() != 50 || !depleted {
		t.Fatalf("withdraw claimable: %v %v %v", taken, depleted, err)
	}
}
