package mission

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
)

// Validate enforces the static constraints of the parameter set. LiqFee
// overflow is not rejected here; it is clamped when terms are read.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("mission: config missing")
	}
	if c.Green == (common.Address{}) {
		return fmt.Errorf("mission: Green asset must be set")
	}
	if c.BuybackRatio > nativecommon.HundredPercent {
		return fmt.Errorf("mission: BuybackRatio must be <= %d", nativecommon.HundredPercent)
	}
	if err := c.Debt.validate(); err != nil {
		return err
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i := range c.Assets {
		asset := &c.Assets[i]
		if asset.Asset == (common.Address{}) {
			return fmt.Errorf("mission: asset[%d] address must be set", i)
		}
		if _, dup := seen[asset.Asset]; dup {
			return fmt.Errorf("mission: duplicate asset %s", asset.Asset.Hex())
		}
		seen[asset.Asset] = struct{}{}
		if err := asset.Terms.validate(); err != nil {
			return fmt.Errorf("mission: asset %s: %w", asset.Asset.Hex(), err)
		}
		if asset.AuctionParams != nil {
			if err := asset.AuctionParams.validate(); err != nil {
				return fmt.Errorf("mission: asset %s: %w", asset.Asset.Hex(), err)
			}
		}
	}
	for _, list := range [][]VaultAsset{c.PriorityStabVaults, c.PriorityLiqAssets} {
		for _, entry := range list {
			if entry.VaultID == 0 || entry.Asset == (common.Address{}) {
				return fmt.Errorf("mission: priority entry requires vault id and asset")
			}
		}
	}
	return nil
}

func (d DebtTerms) validate() error {
	const max = nativecommon.HundredPercent
	if d.Ltv > max || d.RedemptionThreshold > max || d.LiqThreshold > max {
		return fmt.Errorf("thresholds must be <= %d", max)
	}
	if d.BorrowRate > max || d.Daowry > max || d.LiqFee > max {
		return fmt.Errorf("rates must be <= %d", max)
	}
	if d.Ltv == 0 {
		return nil
	}
	if d.Ltv > d.RedemptionThreshold || d.RedemptionThreshold > d.LiqThreshold {
		return fmt.Errorf("require Ltv <= RedemptionThreshold <= LiqThreshold")
	}
	return nil
}

func (p AuctionParams) validate() error {
	if p.MaxDiscount >= nativecommon.HundredPercent || p.StartDiscount > p.MaxDiscount {
		return fmt.Errorf("auction discounts require StartDiscount <= MaxDiscount < %d", nativecommon.HundredPercent)
	}
	if p.MaxDiscount > p.StartDiscount && p.Duration == 0 {
		return fmt.Errorf("auction Duration must be positive")
	}
	return nil
}

func (g GenDebtConfig) validate() error {
	if g.LtvPaybackBuffer >= nativecommon.HundredPercent {
		return fmt.Errorf("mission: LtvPaybackBuffer must be < %d", nativecommon.HundredPercent)
	}
	if g.KeeperFeeRatio > nativecommon.HundredPercent {
		return fmt.Errorf("mission: KeeperFeeRatio must be <= %d", nativecommon.HundredPercent)
	}
	if g.BlocksPerYear == 0 {
		return fmt.Errorf("mission: BlocksPerYear must be positive")
	}
	for name, v := range map[string]*big.Int{
		"PerUserDebtLimit":     g.PerUserDebtLimit,
		"GlobalDebtLimit":      g.GlobalDebtLimit,
		"MinDebtAmount":        g.MinDebtAmount,
		"MaxBorrowPerInterval": g.MaxBorrowPerInterval,
		"MinKeeperFee":         g.MinKeeperFee,
		"MaxKeeperFee":         g.MaxKeeperFee,
	} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("mission: %s must not be negative", name)
		}
	}
	if !nativecommon.IsZero(g.MaxKeeperFee) && g.MinKeeperFee != nil && g.MinKeeperFee.Cmp(g.MaxKeeperFee) > 0 {
		return fmt.Errorf("mission: MinKeeperFee exceeds MaxKeeperFee")
	}
	if !nativecommon.IsZero(g.MaxBorrowPerInterval) && g.NumBlocksPerInterval == 0 {
		return fmt.Errorf("mission: NumBlocksPerInterval must be positive when MaxBorrowPerInterval is set")
	}
	return g.GenAuctionParams.validate()
}
