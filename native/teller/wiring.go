package teller

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ripe/core/state"
	"ripe/native/auction"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/ledger"
	"ripe/native/mission"
	"ripe/native/oracle"
	"ripe/native/savings"
	"ripe/native/token"
	"ripe/native/vault"
	"ripe/storage"
)

// Vault ids of the standard deployment. Mission configs refer to them in
// their priority lists.
const (
	SimpleVaultID    uint64 = 1
	RebasingVaultID  uint64 = 2
	StabilityVaultID uint64 = 3
)

const manualFeed = "manual"

var errNoFeed = errors.New("teller: no price feed configured")

// Accounts are the protocol-owned addresses of a deployment.
type Accounts struct {
	Credit     common.Address
	Deleverage common.Address
	Auction    common.Address
	Savings    common.Address
	Simple     common.Address
	Rebasing   common.Address
	Stability  common.Address
}

func deriveAccount(namespace, role string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("ripe/" + namespace + "/" + role)))
}

// DeriveAccounts returns deterministic protocol addresses for namespace.
func DeriveAccounts(namespace string) Accounts {
	return Accounts{
		Credit:     deriveAccount(namespace, "credit"),
		Deleverage: deriveAccount(namespace, "deleverage"),
		Auction:    deriveAccount(namespace, "auction"),
		Savings:    deriveAccount(namespace, "savings"),
		Simple:     deriveAccount(namespace, "vault/simple"),
		Rebasing:   deriveAccount(namespace, "vault/rebasing"),
		Stability:  deriveAccount(namespace, "vault/stability"),
	}
}

// Options configure Open.
type Options struct {
	DB        storage.Database
	Mission   mission.Config
	Namespace string
	// MaxPriceAge is the staleness bound of quotes in blocks. Zero
	// disables the check.
	MaxPriceAge uint64
	// Prices seeds the manual feed with one whole unit's USD price.
	Prices map[common.Address]*big.Int
}

// Open assembles the full protocol over opts.DB and returns its teller.
// The block height persisted by an earlier AdvanceBlock is restored, and
// seeded prices are quoted at that height.
func Open(opts Options) (*Teller, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("teller: database required")
	}
	opts.Mission.EnsureDefaults()
	control, err := mission.New(opts.Mission)
	if err != nil {
		return nil, fmt.Errorf("teller: mission config: %w", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = "main"
	}
	accounts := DeriveAccounts(opts.Namespace)

	st := state.NewManager(opts.DB)
	book := token.NewBook(st)
	feed := oracle.NewManualSource()
	prices := oracle.NewAggregator([]string{manualFeed}, opts.MaxPriceAge)
	prices.Register(manualFeed, feed)
	for _, asset := range opts.Mission.Assets {
		prices.SetDecimals(asset.Asset, asset.Decimals)
	}

	registry := vault.NewRegistry(
		vault.NewSimpleVault(SimpleVaultID, accounts.Simple, st, book),
		vault.NewRebasingVault(RebasingVaultID, accounts.Rebasing, st, book),
		vault.NewStabilityPool(StabilityVaultID, accounts.Stability, st, book),
	)
	green := control.Green()
	wrapper := savings.New(book, accounts.Savings, green, control.SavingsGreen())
	for _, account := range []common.Address{accounts.Credit, accounts.Deleverage, accounts.Auction} {
		book.GrantMinter(green, account)
		book.GrantBurner(green, account)
	}

	l := ledger.New(st)
	engine := credit.NewEngine(accounts.Credit, credit.Deps{
		Ledger:  l,
		Mission: control,
		Prices:  prices,
		Vaults:  registry,
		Book:    book,
		Savings: wrapper,
	})
	delev := deleverage.NewEngine(accounts.Deleverage, deleverage.Deps{
		Credit:  engine,
		Ledger:  l,
		Mission: control,
		Vaults:  registry,
		Book:    book,
		Savings: wrapper,
	})
	house := auction.NewEngine(accounts.Auction, auction.Deps{
		Credit:  engine,
		Ledger:  l,
		Mission: control,
		Vaults:  registry,
		Book:    book,
	})
	engine.SetWaterfall(delev)
	engine.SetAuctionStarter(house)

	t := New(Deps{
		State:      st,
		Book:       book,
		Mission:    control,
		Vaults:     registry,
		Ledger:     l,
		Credit:     engine,
		Deleverage: delev,
		Auctions:   house,
	})
	t.feed = feed
	t.OnBlock(prices.SetBlock)
	if err := t.restoreBlock(); err != nil {
		return nil, err
	}
	for asset, price := range opts.Prices {
		feed.Set(asset, price, t.block)
	}
	return t, nil
}

// SetPrice quotes one whole unit of asset at price on the manual feed.
// Only trusted callers may move prices.
func (t *Teller) SetPrice(ctx context.Context, caller, asset common.Address, price *big.Int) error {
	return t.mutate(ctx, "set_price", caller, func() error {
		if t.feed == nil {
			return errNoFeed
		}
		if !t.mission.IsTrusted(caller) {
			return ErrNoPerms
		}
		if asset == (common.Address{}) || price == nil || price.Sign() <= 0 {
			return ErrInvalidAmount
		}
		t.feed.Set(asset, price, t.block)
		return nil
	})
}

// Fund credits amount of a collateral token to owner, standing in for a
// bridge deposit. The stablecoin and its savings shares can only be minted
// by the engines.
func (t *Teller) Fund(ctx context.Context, caller, asset, owner common.Address, amount *big.Int) error {
	return t.mutate(ctx, "fund", caller, func() error {
		if !t.mission.IsTrusted(caller) {
			return ErrNoPerms
		}
		if owner == (common.Address{}) {
			return ErrInvalidUser
		}
		if asset == (common.Address{}) || asset == t.mission.Green() || asset == t.mission.SavingsGreen() {
			return ErrInvalidAmount
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		return t.book.Credit(asset, owner, amount)
	})
}
