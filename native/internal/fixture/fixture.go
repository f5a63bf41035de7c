// Package fixture assembles an in-memory protocol stack for engine tests.
package fixture

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
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

func addr(b byte) common.Address {
	var out common.Address
	out[18] = 0x0f
	out[19] = b
	return out
}

var (
	Green        = addr(0xa1)
	SavingsGreen = addr(0xa2)
	Weth         = addr(0xb1)
	Usdc         = addr(0xb2)
	Steth        = addr(0xb3)

	Alice      = addr(0x11)
	Bob        = addr(0x12)
	Carol      = addr(0x13)
	Keeper     = addr(0x14)
	Admin      = addr(0x15)
	Governance = addr(0x21)
	Endaoment  = addr(0x22)

	CreditAccount     = addr(0x31)
	DeleverageAccount = addr(0x32)
	AuctionAccount    = addr(0x33)
	SavingsAccount    = addr(0x34)

	SimpleCustody    = addr(0x41)
	RebasingCustody  = addr(0x42)
	StabilityCustody = addr(0x43)
)

// Vault ids registered by New.
const (
	SimpleVaultID    uint64 = 1
	RebasingVaultID  uint64 = 2
	StabilityVaultID uint64 = 3
)

// E18 returns n whole units of an 18 decimal amount.
func E18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// Units returns n whole units of an asset with the given decimals.
func Units(n int64, decimals uint8) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return unit.Mul(unit, big.NewInt(n))
}

// Config returns the default parameter set: WETH as volatile collateral,
// USDC as stablecoin-class collateral routed to the endowment, GREEN and
// sGREEN burned as payment.
func Config() mission.Config {
	return mission.Config{
		Green:        Green,
		SavingsGreen: SavingsGreen,
		Destinations: mission.Destinations{
			Endaoment:    Endaoment,
			SavingsVault: SavingsAccount,
			Governance:   Governance,
		},
		Debt: mission.GenDebtConfig{
			CanBorrow:    true,
			CanRedeem:    true,
			CanLiquidate: true,
			GenAuctionParams: mission.AuctionParams{
				StartDiscount: 0,
				MaxDiscount:   50_00,
				Delay:         0,
				Duration:      100,
			},
		},
		Assets: []mission.AssetConfig{
			{
				Asset:    Weth,
				Symbol:   "WETH",
				Decimals: 18,
				Terms: mission.DebtTerms{
					Ltv:                 50_00,
					RedemptionThreshold: 70_00,
					LiqThreshold:        80_00,
					LiqFee:              10_00,
				},
				CanDeposit:             true,
				CanWithdraw:            true,
				CanRedeemCollateral:    true,
				CanBuyInAuction:        true,
				ShouldSwapInStabPools:  true,
				ShouldAuctionInstantly: true,
			},
			{
				Asset:    Steth,
				Symbol:   "STETH",
				Decimals: 18,
				Terms: mission.DebtTerms{
					Ltv:                 40_00,
					RedemptionThreshold: 60_00,
					LiqThreshold:        70_00,
					LiqFee:              10_00,
				},
				CanDeposit:             true,
				CanWithdraw:            true,
				CanBuyInAuction:        true,
				ShouldAuctionInstantly: true,
			},
			{
				Asset:    Usdc,
				Symbol:   "USDC",
				Decimals: 6,
				Terms: mission.DebtTerms{
					Ltv:                 90_00,
					RedemptionThreshold: 92_00,
					LiqThreshold:        95_00,
					LiqFee:              5_00,
				},
				IsStablecoinClass:         true,
				CanDeposit:                true,
				CanWithdraw:               true,
				CanRedeemCollateral:       true,
				ShouldTransferToEndaoment: true,
			},
			{
				Asset:               Green,
				Symbol:              "GREEN",
				Decimals:            18,
				IsStablecoinClass:   true,
				CanDeposit:          true,
				CanWithdraw:         true,
				ShouldBurnAsPayment: true,
			},
			{
				Asset:               SavingsGreen,
				Symbol:              "sGREEN",
				Decimals:            18,
				IsStablecoinClass:   true,
				CanDeposit:          true,
				CanWithdraw:         true,
				ShouldBurnAsPayment: true,
			},
		},
		PriorityStabVaults: []mission.VaultAsset{
			{VaultID: StabilityVaultID, Asset: SavingsGreen},
			{VaultID: StabilityVaultID, Asset: Green},
		},
		PriorityLiqAssets: []mission.VaultAsset{
			{VaultID: SimpleVaultID, Asset: Usdc},
		},
		DebtUpdaters:       []common.Address{Admin},
		BuybackAdmins:      []common.Address{Admin},
		AuctionControllers: []common.Address{Admin},
		TrustedCallers:     []common.Address{Admin},
	}
}

// Stack is a fully wired protocol instance over an in-memory database.
type Stack struct {
	State      *state.Manager
	Book       *token.Book
	Mission    *mission.Control
	Prices     *oracle.Aggregator
	Feed       *oracle.ManualSource
	Vaults     *vault.Registry
	Simple     *vault.AssetVault
	Rebasing   *vault.AssetVault
	Pool       *vault.StabilityPool
	Savings    *savings.Vault
	Ledger     *ledger.Ledger
	Credit     *credit.Engine
	Deleverage *deleverage.Engine
	Auctions   *auction.Engine
	Events     *events.Recorder
	Block      uint64
	blockSets  []func(uint64)
}

// New wires a stack from cfg with every collateral price at one dollar.
func New(t testing.TB, cfg mission.Config) *Stack {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	book := token.NewBook(st)
	control, err := mission.New(cfg)
	if err != nil {
		t.Fatalf("mission: %v", err)
	}
	feed := oracle.NewManualSource()
	prices := oracle.NewAggregator([]string{"manual"}, 0)
	prices.Register("manual", feed)
	for _, asset := range cfg.Assets {
		prices.SetDecimals(asset.Asset, asset.Decimals)
	}

	simple := vault.NewSimpleVault(SimpleVaultID, SimpleCustody, st, book)
	rebasing := vault.NewRebasingVault(RebasingVaultID, RebasingCustody, st, book)
	pool := vault.NewStabilityPool(StabilityVaultID, StabilityCustody, st, book)
	registry := vault.NewRegistry(simple, rebasing, pool)

	wrapper := savings.New(book, SavingsAccount, Green, SavingsGreen)
	for _, account := range []common.Address{CreditAccount, DeleverageAccount, AuctionAccount} {
		book.GrantMinter(Green, account)
		book.GrantBurner(Green, account)
	}
	l := ledger.New(st)
	engine := credit.NewEngine(CreditAccount, credit.Deps{
		Ledger:  l,
		Mission: control,
		Prices:  prices,
		Vaults:  registry,
		Book:    book,
		Savings: wrapper,
	})
	delev := deleverage.NewEngine(DeleverageAccount, deleverage.Deps{
		Credit:  engine,
		Ledger:  l,
		Mission: control,
		Vaults:  registry,
		Book:    book,
		Savings: wrapper,
	})
	house := auction.NewEngine(AuctionAccount, auction.Deps{
		Credit:  engine,
		Ledger:  l,
		Mission: control,
		Vaults:  registry,
		Book:    book,
	})
	engine.SetWaterfall(delev)
	engine.SetAuctionStarter(house)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	delev.SetEmitter(recorder)
	house.SetEmitter(recorder)

	s := &Stack{
		State:      st,
		Book:       book,
		Mission:    control,
		Prices:     prices,
		Feed:       feed,
		Vaults:     registry,
		Simple:     simple,
		Rebasing:   rebasing,
		Pool:       pool,
		Savings:    wrapper,
		Ledger:     l,
		Credit:     engine,
		Deleverage: delev,
		Auctions:   house,
		Events:     recorder,
	}
	for _, asset := range []common.Address{Weth, Steth, Usdc} {
		s.SetPrice(asset, E18(1))
	}
	s.OnBlock(engine.SetBlockHeight)
	s.OnBlock(delev.SetBlockHeight)
	s.OnBlock(house.SetBlockHeight)
	s.OnBlock(prices.SetBlock)
	return s
}

// SetPrice quotes one whole unit of asset at price (18 decimals).
func (s *Stack) SetPrice(asset common.Address, price *big.Int) {
	s.Feed.Set(asset, price, s.Block)
}

// ClearPrice removes the quote of asset.
func (s *Stack) ClearPrice(asset common.Address) {
	s.Feed.Clear(asset)
}

// OnBlock registers a hook invoked by SetBlock.
func (s *Stack) OnBlock(fn func(uint64)) {
	s.blockSets = append(s.blockSets, fn)
}

// SetBlock advances every wired component to height.
func (s *Stack) SetBlock(height uint64) {
	s.Block = height
	for _, fn := range s.blockSets {
		fn(height)
	}
}

// Fund credits amount of asset to owner.
func (s *Stack) Fund(t testing.TB, owner, asset common.Address, amount *big.Int) {
	t.Helper()
	if err := s.Book.Credit(asset, owner, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

// Deposit funds user and deposits amount of asset into vaultID.
func (s *Stack) Deposit(t testing.TB, user common.Address, vaultID uint64, asset common.Address, amount *big.Int) {
	t.Helper()
	s.Fund(t, user, asset, amount)
	v, err := s.Vaults.Get(vaultID)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if _, err := v.Deposit(user, user, asset, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := s.Ledger.AddVaultToUser(user, vaultID); err != nil {
		t.Fatalf("register vault: %v", err)
	}
}

// Balance returns the token balance of owner.
func (s *Stack) Balance(t testing.TB, asset, owner common.Address) *big.Int {
	t.Helper()
	balance, err := s.Book.BalanceOf(asset, owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

// Debt returns the stored debt record of user.
func (s *Stack) Debt(t testing.TB, user common.Address) ledger.UserDebt {
	t.Helper()
	debt, err := s.Ledger.GetUserDebt(user)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	return debt
}

// Held returns the vault position of user in asset.
func (s *Stack) Held(t testing.TB, user common.Address, vaultID uint64, asset common.Address) *big.Int {
	t.Helper()
	v, err := s.Vaults.Get(vaultID)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	amount, err := v.GetTotalAmountForUser(user, asset)
	if err != nil {
		t.Fatalf("held: %v", err)
	}
	return amount
}

// CheckTotalDebt fails the test unless the total debt equals the sum of
// every borrower's stored amount.
func (s *Stack) CheckTotalDebt(t testing.TB) {
	t.Helper()
	borrowers, err := s.Ledger.Borrowers()
	if err != nil {
		t.Fatalf("borrowers: %v", err)
	}
	sum := new(big.Int)
	for _, user := range borrowers {
		debt := s.Debt(t, user)
		if debt.Amount.Sign() == 0 {
			t.Fatalf("borrower %s registered with zero debt", user.Hex())
		}
		sum.Add(sum, debt.Amount)
	}
	total, err := s.Ledger.TotalDebt()
	if err != nil {
		t.Fatalf("total debt: %v", err)
	}
	if total.Cmp(sum) != 0 {
		t.Fatalf("total debt %s != sum of borrowers %s", total, sum)
	}
}

// EditAsset applies edit to the config of asset inside cfg.
func EditAsset(cfg *mission.Config, asset common.Address, edit func(*mission.AssetConfig)) {
	for i := range cfg.Assets {
		if cfg.Assets[i].Asset == asset {
			edit(&cfg.Assets[i])
			return
		}
	}
}
