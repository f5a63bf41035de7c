// Package credit implements the debt accounting of the protocol: weighted
// borrow terms, lazy interest accrual, borrowing, repayment, redemption and
// liquidation against the ledger.
package credit

import (
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/ledger"
	"ripe/native/mission"
	"ripe/native/savings"
	"ripe/native/token"
	"ripe/native/vault"
)

var (
	errNilEngine = errors.New("credit: engine not configured")

	ErrInvalidUser            = errors.New("credit: invalid user")
	ErrInvalidAmount          = errors.New("credit: invalid amount")
	ErrNoPerms                = errors.New("credit: no perms")
	ErrBorrowNotEnabled       = errors.New("credit: borrow not enabled")
	ErrRedeemNotEnabled       = errors.New("credit: redemptions not enabled")
	ErrLiquidateNotEnabled    = errors.New("credit: liquidations not enabled")
	ErrContractPaused         = errors.New("credit: contract paused")
	ErrMaxNumBorrowers        = errors.New("credit: max num borrowers reached")
	ErrInLiquidation          = errors.New("credit: cannot borrow in liquidation")
	ErrNoDebtAvailable        = errors.New("credit: no debt available")
	ErrPerUserDebtLimit       = errors.New("credit: per user debt limit reached")
	ErrGlobalDebtLimit        = errors.New("credit: global debt limit reached")
	ErrIntervalLimit          = errors.New("credit: " + nativecommon.ErrIntervalLimitReached.Error())
	ErrDebtTooSmall           = errors.New("credit: debt too small")
	ErrNoDebt                 = errors.New("credit: no debt outstanding")
	ErrCannotRedeem           = errors.New("credit: cannot redeem collateral")
	ErrAssetNotRedeemable     = errors.New("credit: asset cannot be redeemed")
	ErrNothingRedeemed        = errors.New("credit: nothing redeemed")
	ErrCannotLiquidate        = errors.New("credit: cannot liquidate user")
	ErrCannotLiquidateSelf    = errors.New("credit: cannot liquidate self")
	ErrInvalidBuybackRatio    = errors.New("credit: invalid buyback ratio")
	ErrCannotPayWithSavings   = errors.New("credit: savings wrapper not configured")
	errWaterfallNotConfigured = errors.New("credit: liquidation waterfall not configured")
)

// moduleName is the pause switch guarding every mutating call.
const moduleName = "credit"

// PriceDesk converts between asset amounts and USD. Failures convert to
// zero.
type PriceDesk interface {
	GetUsdValue(asset common.Address, amount *big.Int) *big.Int
	GetAssetAmount(asset common.Address, usd *big.Int) *big.Int
}

// Waterfall consumes a user's positions to repay up to target USD of debt
// during a liquidation. It must not mutate the debt record; the engine
// applies the returned amount.
type Waterfall interface {
	LiquidationWaterfall(user common.Address, target *big.Int) (*big.Int, error)
}

// AuctionStarter opens auctions over collateral left after a liquidation.
type AuctionStarter interface {
	StartLiquidationAuctions(user common.Address) (uint64, error)
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Ledger  *ledger.Ledger
	Mission *mission.Control
	Prices  PriceDesk
	Vaults  *vault.Registry
	Book    *token.Book
	Savings *savings.Vault
}

// Engine performs the debt-mutating operations. It holds no locks; callers
// serialise access.
type Engine struct {
	ledger    *ledger.Ledger
	mission   *mission.Control
	prices    PriceDesk
	vaults    *vault.Registry
	book      *token.Book
	savings   *savings.Vault
	address   common.Address
	emitter   events.Emitter
	logger    *slog.Logger
	pauses    nativecommon.PauseView
	waterfall Waterfall
	auctions  AuctionStarter
	block     uint64
}

// NewEngine constructs a credit engine acting from address, which must hold
// mint and burn authority over the stablecoin.
func NewEngine(address common.Address, deps Deps) *Engine {
	return &Engine{
		ledger:  deps.Ledger,
		mission: deps.Mission,
		prices:  deps.Prices,
		vaults:  deps.Vaults,
		book:    deps.Book,
		savings: deps.Savings,
		address: address,
		emitter: events.NoopEmitter{},
	}
}

// Address returns the engine account.
func (e *Engine) Address() common.Address { return e.address }

// SetEmitter configures the destination of engine events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger configures the structured logger. Nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// SetPauses installs the pause switches consulted by borrow, redeem and liquidate.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetWaterfall wires the liquidation waterfall.
func (e *Engine) SetWaterfall(w Waterfall) {
	if e == nil {
		return
	}
	e.waterfall = w
}

// SetAuctionStarter wires the auction house.
func (e *Engine) SetAuctionStarter(a AuctionStarter) {
	if e == nil {
		return
	}
	e.auctions = a
}

// SetBlockHeight records the block height used for accrual and events.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.block = height
}

// BlockHeight returns the current block height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	return e.block
}

func (e *Engine) ready() error {
	if e == nil || e.ledger == nil || e.mission == nil || e.prices == nil || e.vaults == nil || e.book == nil {
		return errNilEngine
	}
	return nil
}

func (e *Engine) guard() error {
	if err := e.ready(); err != nil {
		return err
	}
	if nativecommon.Guard(e.pauses, moduleName) != nil {
		return ErrContractPaused
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// UsdValue values amount of asset. The stablecoin is worth exactly one
// dollar per unit and savings shares their underlying stablecoin.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	switch {
	case asset == e.mission.Green():
		return new(big.Int).Set(amount)
	case asset == e.mission.SavingsGreen() && e.savings != nil:
		value, err := e.savings.ConvertToAssets(amount)
		if err != nil {
			return big.NewInt(0)
		}
		return value
	}
	return e.prices.GetUsdValue(asset, amount)
}

// AssetAmount converts usd into units of asset using the same rules as
// UsdValue.
func (e *Engine) AssetAmount(asset common.Address, usd *big.Int) *big.Int {
	if usd == nil || usd.Sign() <= 0 {
		return big.NewInt(0)
	}
	switch {
	case asset == e.mission.Green():
		return new(big.Int).Set(usd)
	case asset == e.mission.SavingsGreen() && e.savings != nil:
		shares, err := e.savings.ConvertToShares(usd)
		if err != nil {
			return big.NewInt(0)
		}
		return shares
	}
	return e.prices.GetAssetAmount(asset, usd)
}

// parValue values stablecoin-class assets at exactly one dollar per unit
// regardless of oracle price. Other assets use UsdValue.
func (e *Engine) parValue(asset common.Address, amount *big.Int) *big.Int {
	cfg, ok := e.mission.AssetConfig(asset)
	if !ok || !cfg.IsStablecoinClass || asset == e.mission.SavingsGreen() {
		return e.UsdValue(asset, amount)
	}
	return nativecommon.MulDiv(amount, nativecommon.One, decimalsUnit(cfg.Decimals))
}

func (e *Engine) parAmount(asset common.Address, usd *big.Int) *big.Int {
	cfg, ok := e.mission.AssetConfig(asset)
	if !ok || !cfg.IsStablecoinClass || asset == e.mission.SavingsGreen() {
		return e.AssetAmount(asset, usd)
	}
	return nativecommon.MulDiv(usd, decimalsUnit(cfg.Decimals), nativecommon.One)
}

func decimalsUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// PruneUserVault drops vaultID from the user's participation list once the
// user holds nothing there.
func (e *Engine) PruneUserVault(user common.Address, vaultID uint64) error {
	v, err := e.vaults.Get(vaultID)
	if err != nil {
		return err
	}
	n, err := v.GetNumUserAssets(user)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return e.ledger.RemoveVaultFromUser(user, vaultID)
}

// BurnGreen destroys amount of the stablecoin held by from.
func (e *Engine) BurnGreen(from common.Address, amount *big.Int) error {
	return e.book.Burn(e.address, e.mission.Green(), from, amount)
}

// collectGreen takes amount of stablecoin from payer, either directly or by
// redeeming savings shares, and burns it.
func (e *Engine) collectGreen(payer common.Address, amount *big.Int, withSavings bool) error {
	if !withSavings {
		return e.BurnGreen(payer, amount)
	}
	if e.savings == nil {
		return ErrCannotPayWithSavings
	}
	if _, err := e.savings.Withdraw(payer, e.address, amount); err != nil {
		return err
	}
	return e.BurnGreen(e.address, amount)
}

// mintGreen creates amount of stablecoin for recipient, wrapped into
// savings shares when wantsSavings is set.
func (e *Engine) mintGreen(recipient common.Address, amount *big.Int, wantsSavings bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	green := e.mission.Green()
	if !wantsSavings {
		return e.book.Mint(e.address, green, recipient, amount)
	}
	if e.savings == nil {
		return ErrCannotPayWithSavings
	}
	if err := e.book.Mint(e.address, green, e.address, amount); err != nil {
		return err
	}
	_, err := e.savings.Deposit(e.address, recipient, amount)
	return err
}
