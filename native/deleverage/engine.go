// Package deleverage forcibly reduces a user's debt by consuming the
// user's vault positions in a fixed order: stablecoin held in the
// stability pools is burned, priority collateral is sent to the
// endowment, and the remaining positions are swept by asset policy.
package deleverage

import (
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/credit"
	"ripe/native/ledger"
	"ripe/native/mission"
	"ripe/native/savings"
	"ripe/native/token"
	"ripe/native/vault"
)

var (
	errNilEngine = errors.New("deleverage: engine not configured")

	ErrInvalidUser      = errors.New("deleverage: invalid user")
	ErrNoPerms          = errors.New("deleverage: no perms")
	ErrContractPaused   = errors.New("deleverage: contract paused")
	ErrCannotDeleverage = errors.New("deleverage: cannot deleverage")
)

const moduleName = "deleverage"

// withdrawalBuffer inflates withdrawal-triggered targets by 1%.
const withdrawalBuffer = 101_00

// Deps groups the collaborators of the engine.
type Deps struct {
	Credit  *credit.Engine
	Ledger  *ledger.Ledger
	Mission *mission.Control
	Vaults  *vault.Registry
	Book    *token.Book
	Savings *savings.Vault
}

// Engine runs the deleverage waterfall. It holds no locks; callers
// serialise access.
type Engine struct {
	credit  *credit.Engine
	ledger  *ledger.Ledger
	mission *mission.Control
	vaults  *vault.Registry
	book    *token.Book
	savings *savings.Vault
	address common.Address
	emitter events.Emitter
	logger  *slog.Logger
	pauses  nativecommon.PauseView
	block   uint64
}

// NewEngine constructs an engine acting from address. Assets taken from
// vaults pass through this account before being burned or swapped.
func NewEngine(address common.Address, deps Deps) *Engine {
	return &Engine{
		credit:  deps.Credit,
		ledger:  deps.Ledger,
		mission: deps.Mission,
		vaults:  deps.Vaults,
		book:    deps.Book,
		savings: deps.Savings,
		address: address,
		emitter: events.NoopEmitter{},
	}
}

// Address returns the engine account.
func (e *Engine) Address() common.Address { return e.address }

// SetEmitter configures the destination of deleverage events.
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

// SetPauses installs the pause switches consulted before every deleverage.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the block height stamped on events.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.block = height
}

func (e *Engine) ready() error {
	if e == nil || e.credit == nil || e.ledger == nil || e.mission == nil || e.vaults == nil || e.book == nil {
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

// isGreen reports whether asset is the stablecoin or its savings form.
func (e *Engine) isGreen(asset common.Address) bool {
	return asset == e.mission.Green() || asset == e.mission.SavingsGreen()
}

// burn destroys amount of a green-form asset held by the engine and
// returns the USD repaid. Savings shares are redeemed first.
func (e *Engine) burn(asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	green := e.mission.Green()
	if asset == e.mission.SavingsGreen() {
		if e.savings == nil {
			return nil, credit.ErrCannotPayWithSavings
		}
		assets, err := e.savings.Redeem(e.address, e.address, amount)
		if err != nil {
			return nil, err
		}
		amount = assets
		asset = green
	}
	if err := e.book.Burn(e.address, asset, e.address, amount); err != nil {
		return nil, err
	}
	if asset == green {
		return new(big.Int).Set(amount), nil
	}
	return e.credit.UsdValue(asset, amount), nil
}
