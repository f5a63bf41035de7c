package deleverage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/vault"
)

type positionKey struct {
	user    common.Address
	vaultID uint64
	asset   common.Address
}

// pass is the state of one waterfall run over a single user.
type pass struct {
	e           *Engine
	user        common.Address
	remaining   *big.Int
	repaid      *big.Int
	handled     map[positionKey]struct{}
	liquidation bool
}

func (e *Engine) newPass(user common.Address, target *big.Int, liquidation bool) *pass {
	return &pass{
		e:           e,
		user:        user,
		remaining:   new(big.Int).Set(target),
		repaid:      big.NewInt(0),
		handled:     make(map[positionKey]struct{}),
		liquidation: liquidation,
	}
}

func (p *pass) done() bool { return p.remaining.Sign() <= 0 }

func (p *pass) key(vaultID uint64, asset common.Address) positionKey {
	return positionKey{user: p.user, vaultID: vaultID, asset: asset}
}

// claim marks a position handled and reports whether it was free.
func (p *pass) claim(vaultID uint64, asset common.Address) bool {
	k := p.key(vaultID, asset)
	if _, ok := p.handled[k]; ok {
		return false
	}
	p.handled[k] = struct{}{}
	return true
}

func (p *pass) participates(vaultID uint64) (bool, error) {
	return p.e.ledger.IsParticipatingInVault(p.user, vaultID)
}

// record books usd against the target and reports the consumed position.
func (p *pass) record(vaultID uint64, asset common.Address, amount, usd *big.Int, action string, depleted bool) error {
	applied := nativecommon.Min(usd, p.remaining)
	p.remaining.Sub(p.remaining, applied)
	p.repaid.Add(p.repaid, applied)
	p.e.emit(events.DeleverageAsset{
		User:       p.user,
		VaultID:    vaultID,
		Asset:      asset,
		Amount:     amount,
		UsdValue:   usd,
		Action:     action,
		IsDepleted: depleted,
		Block:      p.e.block,
	})
	if depleted {
		return p.e.credit.PruneUserVault(p.user, vaultID)
	}
	return nil
}

// wanted returns the units of asset covering the remaining target, capped
// at held and at limit when limit is set.
func (p *pass) wanted(asset common.Address, held, limit *big.Int) *big.Int {
	units := p.e.credit.AssetAmount(asset, p.remaining)
	units = nativecommon.Min(units, held)
	if limit != nil && limit.Sign() > 0 {
		units = nativecommon.Min(units, limit)
	}
	return units
}

// run executes every phase in order until the target is met.
func (p *pass) run() error {
	phases := []func() error{
		p.claimables,
		p.stabilityPools,
		p.priorityAssets,
		p.sweep,
	}
	for _, phase := range phases {
		if p.done() {
			return nil
		}
		if err := phase(); err != nil {
			return err
		}
	}
	return nil
}

// claimables burns stablecoin already sitting as claimable in the priority
// stability pools.
func (p *pass) claimables() error {
	seen := make(map[uint64]struct{})
	for _, entry := range p.e.mission.GetPriorityStabVaults() {
		if _, ok := seen[entry.VaultID]; ok {
			continue
		}
		seen[entry.VaultID] = struct{}{}
		pool, ok := p.e.vaults.StabilityPool(entry.VaultID)
		if !ok {
			continue
		}
		member, err := p.participates(entry.VaultID)
		if err != nil {
			return err
		}
		if !member {
			continue
		}
		for _, asset := range []common.Address{p.e.mission.Green(), p.e.mission.SavingsGreen()} {
			if p.done() {
				return nil
			}
			held, err := pool.ClaimableOf(p.user, asset)
			if err != nil {
				return err
			}
			units := p.wanted(asset, held, nil)
			if units.Sign() == 0 {
				continue
			}
			taken, depleted, err := pool.WithdrawClaimable(p.user, asset, units, p.e.address)
			if err != nil {
				return err
			}
			usd, err := p.e.burn(asset, taken)
			if err != nil {
				return err
			}
			if err := p.record(entry.VaultID, asset, taken, usd, events.ActionBurn, depleted); err != nil {
				return err
			}
		}
	}
	return nil
}

// stabilityPools burns the user's stablecoin deposits in the priority
// stability pools.
func (p *pass) stabilityPools() error {
	for _, entry := range p.e.mission.GetPriorityStabVaults() {
		if p.done() {
			return nil
		}
		if !p.e.isGreen(entry.Asset) {
			continue
		}
		member, err := p.participates(entry.VaultID)
		if err != nil {
			return err
		}
		if !member {
			continue
		}
		v, err := p.e.vaults.Get(entry.VaultID)
		if err != nil {
			continue
		}
		if !p.claim(entry.VaultID, entry.Asset) {
			continue
		}
		if err := p.burnPosition(v, entry.Asset, nil); err != nil {
			return err
		}
	}
	return nil
}

// priorityAssets moves the configured priority collateral to the
// endowment.
func (p *pass) priorityAssets() error {
	for _, entry := range p.e.mission.GetPriorityLiqAssetVaults() {
		if p.done() {
			return nil
		}
		member, err := p.participates(entry.VaultID)
		if err != nil {
			return err
		}
		if !member {
			continue
		}
		v, err := p.e.vaults.Get(entry.VaultID)
		if err != nil {
			continue
		}
		if !p.claim(entry.VaultID, entry.Asset) {
			continue
		}
		if p.e.isGreen(entry.Asset) {
			err = p.burnPosition(v, entry.Asset, nil)
		} else {
			err = p.transferPosition(v, entry.Asset, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// sweep walks every remaining position of the user and applies the asset
// policy. Assets without a deleverage policy are left in place.
func (p *pass) sweep() error {
	positions, err := p.e.credit.Positions(p.user)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if p.done() {
			return nil
		}
		if _, ok := p.handled[p.key(pos.VaultID, pos.Asset)]; ok {
			continue
		}
		v, err := p.e.vaults.Get(pos.VaultID)
		if err != nil {
			continue
		}
		if err := p.consume(v, pos.Asset, nil); err != nil {
			return err
		}
	}
	return nil
}

// consume applies the deleverage policy of asset to one position.
func (p *pass) consume(v vault.Vault, asset common.Address, limit *big.Int) error {
	cfg, _ := p.e.mission.AssetConfig(asset)
	switch {
	case p.e.isGreen(asset) || cfg.ShouldBurnAsPayment:
		p.claim(v.ID(), asset)
		return p.burnPosition(v, asset, limit)
	case cfg.ShouldTransferToEndaoment:
		p.claim(v.ID(), asset)
		return p.transferPosition(v, asset, limit)
	case p.liquidation && cfg.ShouldSwapInStabPools:
		p.claim(v.ID(), asset)
		return p.swapPosition(v, asset, limit)
	}
	return nil
}

func (p *pass) burnPosition(v vault.Vault, asset common.Address, limit *big.Int) error {
	held, err := v.GetTotalAmountForUser(p.user, asset)
	if err != nil {
		return err
	}
	units := p.wanted(asset, held, limit)
	if units.Sign() == 0 {
		return nil
	}
	taken, depleted, err := v.Withdraw(p.user, asset, units, p.e.address)
	if err != nil {
		return err
	}
	usd, err := p.e.burn(asset, taken)
	if err != nil {
		return err
	}
	return p.record(v.ID(), asset, taken, usd, events.ActionBurn, depleted)
}

func (p *pass) transferPosition(v vault.Vault, asset common.Address, limit *big.Int) error {
	endaoment := p.e.mission.Destinations().Endaoment
	if endaoment == (common.Address{}) {
		return nil
	}
	held, err := v.GetTotalAmountForUser(p.user, asset)
	if err != nil {
		return err
	}
	units := p.wanted(asset, held, limit)
	if units.Sign() == 0 {
		return nil
	}
	taken, depleted, err := v.Withdraw(p.user, asset, units, endaoment)
	if err != nil {
		return err
	}
	usd := p.e.credit.UsdValue(asset, taken)
	return p.record(v.ID(), asset, taken, usd, events.ActionEndaoment, depleted)
}

// swapPosition sells collateral to the priority stability pools at oracle
// value. The stability asset received is burned, or sent to the endowment
// when it is not a green form.
func (p *pass) swapPosition(v vault.Vault, asset common.Address, limit *big.Int) error {
	budget, err := v.GetTotalAmountForUser(p.user, asset)
	if err != nil {
		return err
	}
	if limit != nil && limit.Sign() > 0 {
		budget = nativecommon.Min(budget, limit)
	}
	for _, entry := range p.e.mission.GetPriorityStabVaults() {
		if p.done() || budget.Sign() == 0 {
			return nil
		}
		pool, ok := p.e.vaults.StabilityPool(entry.VaultID)
		if !ok || entry.Asset == asset {
			continue
		}
		liquidity, err := pool.TotalDeposits(entry.Asset)
		if err != nil {
			return err
		}
		if liquidity.Sign() == 0 {
			continue
		}
		usd := nativecommon.Min(p.remaining, p.e.credit.UsdValue(asset, budget))
		stabUnits := nativecommon.Min(p.e.credit.AssetAmount(entry.Asset, usd), liquidity)
		if stabUnits.Sign() == 0 {
			continue
		}
		stabUsd := p.e.credit.UsdValue(entry.Asset, stabUnits)
		collUnits := nativecommon.Min(p.e.credit.AssetAmount(asset, stabUsd), budget)
		if collUnits.Sign() == 0 {
			continue
		}
		taken, depleted, err := v.Withdraw(p.user, asset, collUnits, p.e.address)
		if err != nil {
			return err
		}
		if err := pool.SwapForLiquidatedCollateral(entry.Asset, stabUnits, asset, taken, p.e.address, p.e.address); err != nil {
			return err
		}
		repaid := stabUsd
		if p.e.isGreen(entry.Asset) {
			if repaid, err = p.e.burn(entry.Asset, stabUnits); err != nil {
				return err
			}
		} else if err := p.e.book.Transfer(entry.Asset, p.e.address, p.e.mission.Destinations().Endaoment, stabUnits); err != nil {
			return err
		}
		budget = nativecommon.SubFloor(budget, taken)
		if err := p.record(v.ID(), asset, taken, repaid, events.ActionSwap, depleted); err != nil {
			return err
		}
		if depleted {
			return nil
		}
	}
	return nil
}
