package mission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const sampleConfig = `
Green = "0x00000000000000000000000000000000000000a1"
SavingsGreen = "0x00000000000000000000000000000000000000a2"
BuybackRatio = 5000
DebtUpdaters = ["0x00000000000000000000000000000000000000d1"]

[destinations]
Endaoment = "0x00000000000000000000000000000000000000e2"
SavingsVault = "0x00000000000000000000000000000000000000e3"
Governance = "0x00000000000000000000000000000000000000e4"

[debt]
CanBorrow = true
CanRedeem = true
CanLiquidate = true
MinDebtAmount = "1000000000000000000"
GlobalDebtLimit = "1000000000000000000000000"
LtvPaybackBuffer = 500
KeeperFeeRatio = 100

[debt.auction]
StartDiscount = 100
MaxDiscount = 5000
Delay = 0
Duration = 100

[[asset]]
Asset = "0x00000000000000000000000000000000000000f1"
Symbol = "WETH"
Decimals = 18
CanDeposit = true
ShouldAuctionInstantly = true

[asset.terms]
Ltv = 5000
RedemptionThreshold = 7000
LiqThreshold = 9000
LiqFee = 2000
BorrowRate = 500

[[priority_stab_vault]]
VaultID = 1
Asset = "0x00000000000000000000000000000000000000a1"
`

func TestLoadFileParsesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Debt.BlocksPerYear != DefaultBlocksPerYear {
		t.Fatalf("expected default blocks per year, got %d", cfg.Debt.BlocksPerYear)
	}
	if cfg.Debt.PerUserDebtLimit == nil || cfg.Debt.PerUserDebtLimit.Sign() != 0 {
		t.Fatalf("expected zeroed per-user limit")
	}
	if cfg.Debt.MinDebtAmount.String() != "1000000000000000000" {
		t.Fatalf("unexpected min debt %s", cfg.Debt.MinDebtAmount)
	}
	control, err := New(*cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	weth := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	terms := control.GetDebtTerms(weth)
	if terms.LiqFee != 11_11 {
		t.Fatalf("expected clamped liq fee 1111, got %d", terms.LiqFee)
	}
	if !control.IsDebtUpdater(common.HexToAddress("0x00000000000000000000000000000000000000d1")) {
		t.Fatalf("expected debt updater role")
	}
	if got := control.GetAuctionParams(weth); got.MaxDiscount != 50_00 {
		t.Fatalf("expected general auction params, got %+v", got)
	}
	if len(control.GetPriorityStabVaults()) != 1 {
		t.Fatalf("expected one priority stability vault")
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.toml")
	if err := os.WriteFile(path, []byte(sampleConfig+"\nBogus = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestNormalizeClampsLiqFee(t *testing.T) {
	terms := DebtTerms{LiqThreshold: 90_00, LiqFee: 20_00}.Normalize()
	if terms.LiqFee != 11_11 {
		t.Fatalf("expected 1111, got %d", terms.LiqFee)
	}
	if !terms.Consistent() {
		t.Fatalf("expected consistent terms after clamp")
	}
	untouched := DebtTerms{LiqThreshold: 80_00, LiqFee: 10_00}.Normalize()
	if untouched.LiqFee != 10_00 {
		t.Fatalf("expected fee untouched, got %d", untouched.LiqFee)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := Config{
		Green:  common.HexToAddress("0xa1"),
		Assets: []AssetConfig{{Asset: common.HexToAddress("0xf1"), Terms: DebtTerms{Ltv: 80_00, RedemptionThreshold: 70_00, LiqThreshold: 90_00}}},
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
