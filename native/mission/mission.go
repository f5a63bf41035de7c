// Package mission holds the protocol parameter registry consulted by the
// credit, deleverage and auction engines on every call.
package mission

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// LoadFile decodes, defaults and validates a MissionControl TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("mission: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("mission: unknown key %q in %s", undecoded[0].String(), path)
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteFile encodes cfg as TOML at path.
func WriteFile(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Control is the read-mostly view over a Config. Reads always reflect the
// latest Update; nothing is cached by the engines across calls.
type Control struct {
	mu     sync.RWMutex
	cfg    Config
	assets map[common.Address]AssetConfig
	roles  map[role]map[common.Address]struct{}
}

type role int

const (
	roleDebtUpdater role = iota
	roleBuybackAdmin
	roleAuctionController
	roleTrusted
)

// New constructs a Control from cfg.
func New(cfg Config) (*Control, error) {
	c := &Control{}
	if err := c.Update(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Update validates and swaps in a new parameter set.
func (c *Control) Update(cfg Config) error {
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	assets := make(map[common.Address]AssetConfig, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assets[asset.Asset] = asset
	}
	roles := map[role]map[common.Address]struct{}{
		roleDebtUpdater:       toSet(cfg.DebtUpdaters),
		roleBuybackAdmin:      toSet(cfg.BuybackAdmins),
		roleAuctionController: toSet(cfg.AuctionControllers),
		roleTrusted:           toSet(cfg.TrustedCallers),
	}
	c.mu.Lock()
	c.cfg = cfg
	c.assets = assets
	c.roles = roles
	c.mu.Unlock()
	return nil
}

func toSet(addrs []common.Address) map[common.Address]struct{} {
	out := make(map[common.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		out[addr] = struct{}{}
	}
	return out
}

// SetAssetConfig adds or replaces a single asset.
func (c *Control) SetAssetConfig(asset AssetConfig) error {
	c.mu.RLock()
	cfg := c.cfg
	cfg.Assets = make([]AssetConfig, 0, len(c.cfg.Assets)+1)
	replaced := false
	for _, existing := range c.cfg.Assets {
		if existing.Asset == asset.Asset {
			cfg.Assets = append(cfg.Assets, asset)
			replaced = true
			continue
		}
		cfg.Assets = append(cfg.Assets, existing)
	}
	c.mu.RUnlock()
	if !replaced {
		cfg.Assets = append(cfg.Assets, asset)
	}
	return c.Update(cfg)
}

// SetGenDebtConfig replaces the protocol-wide debt policy.
func (c *Control) SetGenDebtConfig(debt GenDebtConfig) error {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()
	cfg.Debt = debt
	return c.Update(cfg)
}

// Config returns a copy of the active parameter set.
func (c *Control) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.cfg
	cfg.Assets = append([]AssetConfig(nil), c.cfg.Assets...)
	cfg.Debt = c.cfg.Debt.Clone()
	return cfg
}

// AssetConfig returns the configuration of asset.
func (c *Control) AssetConfig(asset common.Address) (AssetConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.assets[asset]
	return cfg, ok
}

// GetDebtTerms returns the normalized terms of asset. Unknown assets carry
// zero terms.
func (c *Control) GetDebtTerms(asset common.Address) DebtTerms {
	cfg, ok := c.AssetConfig(asset)
	if !ok {
		return DebtTerms{}
	}
	return cfg.Terms.Normalize()
}

// GetGeneralDebtConfig returns the protocol-wide debt policy.
func (c *Control) GetGeneralDebtConfig() GenDebtConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Debt.Clone()
}

// GetAuctionParams returns the asset override or the general parameters.
func (c *Control) GetAuctionParams(asset common.Address) AuctionParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cfg, ok := c.assets[asset]; ok && cfg.AuctionParams != nil {
		return *cfg.AuctionParams
	}
	return c.cfg.Debt.GenAuctionParams
}

// GetPriorityStabVaults returns the ordered stability pool positions
// consumed first by the deleverage waterfall.
func (c *Control) GetPriorityStabVaults() []VaultAsset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]VaultAsset(nil), c.cfg.PriorityStabVaults...)
}

// GetPriorityLiqAssetVaults returns the ordered priority collateral
// positions.
func (c *Control) GetPriorityLiqAssetVaults() []VaultAsset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]VaultAsset(nil), c.cfg.PriorityLiqAssets...)
}

// Green returns the protocol stablecoin.
func (c *Control) Green() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Green
}

// SavingsGreen returns the savings share token.
func (c *Control) SavingsGreen() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.SavingsGreen
}

// Destinations returns the protocol flow destinations.
func (c *Control) Destinations() Destinations {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Destinations
}

// BuybackRatio returns the configured initial buyback ratio.
func (c *Control) BuybackRatio() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.BuybackRatio
}

// IsStablecoin reports whether asset is one of the two protocol
// stablecoin forms.
func (c *Control) IsStablecoin(asset common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return asset == c.cfg.Green || asset == c.cfg.SavingsGreen
}

func (c *Control) hasRole(r role, addr common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.roles[r][addr]
	return ok
}

// IsDebtUpdater reports whether addr may persist interest for any user.
func (c *Control) IsDebtUpdater(addr common.Address) bool {
	return c.hasRole(roleDebtUpdater, addr)
}

// IsBuybackAdmin reports whether addr may change the buyback ratio.
func (c *Control) IsBuybackAdmin(addr common.Address) bool {
	return c.hasRole(roleBuybackAdmin, addr)
}

// IsAuctionController reports whether addr may start and pause auctions.
func (c *Control) IsAuctionController(addr common.Address) bool {
	return c.hasRole(roleAuctionController, addr)
}

// IsTrusted reports whether addr may use the privileged deleverage paths.
func (c *Control) IsTrusted(addr common.Address) bool {
	return c.hasRole(roleTrusted, addr)
}
