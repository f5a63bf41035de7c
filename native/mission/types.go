package mission

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
)

// DebtTerms groups the risk terms of an asset, or the weighted aggregate of
// a user's collateral. Every field is expressed in basis points.
type DebtTerms struct {
	Ltv                 uint64 `toml:"Ltv"`
	RedemptionThreshold uint64 `toml:"RedemptionThreshold"`
	LiqThreshold        uint64 `toml:"LiqThreshold"`
	LiqFee              uint64 `toml:"LiqFee"`
	BorrowRate          uint64 `toml:"BorrowRate"`
	Daowry              uint64 `toml:"Daowry"`
}

// Normalize reduces LiqFee so that liqThreshold + liqThreshold*liqFee/100%
// never exceeds 100%.
func (d DebtTerms) Normalize() DebtTerms {
	if d.LiqThreshold == 0 || d.LiqThreshold > nativecommon.HundredPercent {
		return d
	}
	if !d.Consistent() {
		d.LiqFee = (nativecommon.HundredPercent - d.LiqThreshold) * nativecommon.HundredPercent / d.LiqThreshold
	}
	return d
}

// Consistent reports whether the liquidation threshold and fee fit inside
// the collateral value.
func (d DebtTerms) Consistent() bool {
	return d.LiqThreshold+d.LiqThreshold*d.LiqFee/nativecommon.HundredPercent <= nativecommon.HundredPercent
}

// AuctionParams describe the linear discount curve of collateral auctions.
// Delay and Duration are expressed in blocks.
type AuctionParams struct {
	StartDiscount uint64 `toml:"StartDiscount"`
	MaxDiscount   uint64 `toml:"MaxDiscount"`
	Delay         uint64 `toml:"Delay"`
	Duration      uint64 `toml:"Duration"`
}

// AssetConfig captures the per-asset risk parameters and feature switches.
type AssetConfig struct {
	Asset                     common.Address `toml:"Asset"`
	Symbol                    string         `toml:"Symbol"`
	Decimals                  uint8          `toml:"Decimals"`
	Terms                     DebtTerms      `toml:"terms"`
	IsStablecoinClass         bool           `toml:"IsStablecoinClass"`
	CanDeposit                bool           `toml:"CanDeposit"`
	CanWithdraw               bool           `toml:"CanWithdraw"`
	CanRedeemCollateral       bool           `toml:"CanRedeemCollateral"`
	CanBuyInAuction           bool           `toml:"CanBuyInAuction"`
	ShouldBurnAsPayment       bool           `toml:"ShouldBurnAsPayment"`
	ShouldTransferToEndaoment bool           `toml:"ShouldTransferToEndaoment"`
	ShouldSwapInStabPools     bool           `toml:"ShouldSwapInStabPools"`
	ShouldAuctionInstantly    bool           `toml:"ShouldAuctionInstantly"`
	AuctionParams             *AuctionParams `toml:"auction"`
}

// GenDebtConfig is the protocol-wide debt policy.
type GenDebtConfig struct {
	CanBorrow            bool          `toml:"CanBorrow"`
	CanRedeem            bool          `toml:"CanRedeem"`
	CanLiquidate         bool          `toml:"CanLiquidate"`
	PerUserDebtLimit     *big.Int      `toml:"PerUserDebtLimit"`
	GlobalDebtLimit      *big.Int      `toml:"GlobalDebtLimit"`
	MinDebtAmount        *big.Int      `toml:"MinDebtAmount"`
	NumAllowedBorrowers  uint64        `toml:"NumAllowedBorrowers"`
	MaxBorrowPerInterval *big.Int      `toml:"MaxBorrowPerInterval"`
	NumBlocksPerInterval uint64        `toml:"NumBlocksPerInterval"`
	LtvPaybackBuffer     uint64        `toml:"LtvPaybackBuffer"`
	KeeperFeeRatio       uint64        `toml:"KeeperFeeRatio"`
	MinKeeperFee         *big.Int      `toml:"MinKeeperFee"`
	MaxKeeperFee         *big.Int      `toml:"MaxKeeperFee"`
	IsDaowryEnabled      bool          `toml:"IsDaowryEnabled"`
	BlocksPerYear        uint64        `toml:"BlocksPerYear"`
	GenAuctionParams     AuctionParams `toml:"auction"`
}

// Clone returns a deep copy of the configuration.
func (g GenDebtConfig) Clone() GenDebtConfig {
	clone := g
	clone.PerUserDebtLimit = nativecommon.Clone(g.PerUserDebtLimit)
	clone.GlobalDebtLimit = nativecommon.Clone(g.GlobalDebtLimit)
	clone.MinDebtAmount = nativecommon.Clone(g.MinDebtAmount)
	clone.MaxBorrowPerInterval = nativecommon.Clone(g.MaxBorrowPerInterval)
	clone.MinKeeperFee = nativecommon.Clone(g.MinKeeperFee)
	clone.MaxKeeperFee = nativecommon.Clone(g.MaxKeeperFee)
	return clone
}

// VaultAsset identifies an asset position inside a vault.
type VaultAsset struct {
	VaultID uint64         `toml:"VaultID"`
	Asset   common.Address `toml:"Asset"`
}

// Destinations lists the accounts that receive protocol flows.
type Destinations struct {
	Endaoment    common.Address `toml:"Endaoment"`
	SavingsVault common.Address `toml:"SavingsVault"`
	Governance   common.Address `toml:"Governance"`
}

// Config is the complete MissionControl parameter set.
type Config struct {
	Green              common.Address   `toml:"Green"`
	SavingsGreen       common.Address   `toml:"SavingsGreen"`
	BuybackRatio       uint64           `toml:"BuybackRatio"`
	Destinations       Destinations     `toml:"destinations"`
	Debt               GenDebtConfig    `toml:"debt"`
	Assets             []AssetConfig    `toml:"asset"`
	PriorityStabVaults []VaultAsset     `toml:"priority_stab_vault"`
	PriorityLiqAssets  []VaultAsset     `toml:"priority_liq_asset"`
	DebtUpdaters       []common.Address `toml:"DebtUpdaters"`
	BuybackAdmins      []common.Address `toml:"BuybackAdmins"`
	AuctionControllers []common.Address `toml:"AuctionControllers"`
	TrustedCallers     []common.Address `toml:"TrustedCallers"`
}

// EnsureDefaults populates nil big.Int fields so arithmetic and encoding are
// safe.
func (c *Config) EnsureDefaults() {
	fields := []**big.Int{
		&c.Debt.PerUserDebtLimit,
		&c.Debt.GlobalDebtLimit,
		&c.Debt.MinDebtAmount,
		&c.Debt.MaxBorrowPerInterval,
		&c.Debt.MinKeeperFee,
		&c.Debt.MaxKeeperFee,
	}
	for _, field := range fields {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	if c.Debt.BlocksPerYear == 0 {
		c.Debt.BlocksPerYear = DefaultBlocksPerYear
	}
}

// DefaultBlocksPerYear assumes two second blocks.
const DefaultBlocksPerYear uint64 = 15_768_000
