// Package auction runs discount auctions over collateral seized from
// users in liquidation. Auctions are keyed by (user, vault, asset) and
// move between active and paused; purchases pay stablecoin that repays the
// user's debt.
package auction

import (
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
	"ripe/native/credit"
	"ripe/native/ledger"
	"ripe/native/mission"
	"ripe/native/token"
	"ripe/native/vault"
)

var (
	errNilEngine = errors.New("auction: engine not configured")

	ErrNoPerms          = errors.New("auction: no perms")
	ErrContractPaused   = errors.New("auction: contract paused")
	ErrInvalidUser      = errors.New("auction: invalid user")
	ErrInvalidAmount    = errors.New("auction: invalid amount")
	ErrCannotBuy        = errors.New("auction: asset cannot be bought in auction")
	ErrNoAuction        = errors.New("auction: no active auction")
	ErrNotStarted       = errors.New("auction: auction not started")
	ErrNothingToBuy     = errors.New("auction: nothing to buy")
	ErrNotInLiquidation = errors.New("auction: user not in liquidation")
)

const moduleName = "auction"

// Deps groups the collaborators of the auction house.
type Deps struct {
	Credit  *credit.Engine
	Ledger  *ledger.Ledger
	Mission *mission.Control
	Vaults  *vault.Registry
	Book    *token.Book
}

// Engine is the auction house.
type Engine struct {
	credit  *credit.Engine
	ledger  *ledger.Ledger
	mission *mission.Control
	vaults  *vault.Registry
	book    *token.Book
	address common.Address
	emitter events.Emitter
	logger  *slog.Logger
	pauses  nativecommon.PauseView
	block   uint64
}

// NewEngine constructs an auction house acting from address, which must
// hold burn authority over the stablecoin.
func NewEngine(address common.Address, deps Deps) *Engine {
	return &Engine{
		credit:  deps.Credit,
		ledger:  deps.Ledger,
		mission: deps.Mission,
		vaults:  deps.Vaults,
		book:    deps.Book,
		address: address,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the destination of auction events.
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

// SetPauses installs the pause switches consulted before every auction call.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the block height used for start blocks and the
// discount curve.
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
