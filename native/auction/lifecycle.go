package auction

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	"ripe/native/ledger"
	"ripe/native/vault"
)

// Target names one auction position in batch calls.
type Target struct {
	User    common.Address
	VaultID uint64
	Asset   common.Address
}

// errSkip marks a target that is not eligible; batch calls count past it.
var errSkip = errors.New("auction: target skipped")

// eligible checks that user is in liquidation and still holds asset in
// vaultID.
func (e *Engine) eligible(t Target) error {
	if t.User == (common.Address{}) || t.Asset == (common.Address{}) {
		return errSkip
	}
	v, err := e.vaults.Get(t.VaultID)
	if err != nil {
		if errors.Is(err, vault.ErrUnknownVault) {
			return errSkip
		}
		return err
	}
	debt, err := e.ledger.GetUserDebt(t.User)
	if err != nil {
		return err
	}
	if !debt.InLiquidation {
		return errSkip
	}
	held, err := v.GetTotalAmountForUser(t.User, t.Asset)
	if err != nil {
		return err
	}
	if held.Sign() == 0 {
		return errSkip
	}
	return nil
}

// start creates the auction of t, or restarts it from the current block
// when paused. It reports false for an auction already running.
func (e *Engine) start(t Target) (bool, error) {
	if err := e.eligible(t); err != nil {
		return false, err
	}
	existing, ok, err := e.ledger.GetFungibleAuction(t.User, t.VaultID, t.Asset)
	if err != nil {
		return false, err
	}
	if ok && existing.IsActive {
		return false, nil
	}
	auction := ledger.FungibleAuction{
		LiqUser:    t.User,
		VaultID:    t.VaultID,
		Asset:      t.Asset,
		StartBlock: e.block,
		IsActive:   true,
	}
	if err := e.ledger.SetFungibleAuction(auction); err != nil {
		return false, err
	}
	e.emit(events.AuctionStarted{
		User:       t.User,
		VaultID:    t.VaultID,
		Asset:      t.Asset,
		StartBlock: e.block,
		Restarted:  ok,
		Block:      e.block,
	})
	return true, nil
}

func (e *Engine) pause(t Target) (bool, error) {
	existing, ok, err := e.ledger.GetFungibleAuction(t.User, t.VaultID, t.Asset)
	if err != nil {
		return false, err
	}
	if !ok || !existing.IsActive {
		return false, nil
	}
	existing.IsActive = false
	if err := e.ledger.SetFungibleAuction(existing); err != nil {
		return false, err
	}
	e.emit(events.AuctionPaused{User: t.User, VaultID: t.VaultID, Asset: t.Asset, Block: e.block})
	return true, nil
}

func (e *Engine) controller(caller common.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !e.mission.IsAuctionController(caller) {
		return ErrNoPerms
	}
	return nil
}

// StartAuction starts or restarts one auction. It reports false when the
// auction is already running.
func (e *Engine) StartAuction(caller common.Address, t Target) (bool, error) {
	if err := e.controller(caller); err != nil {
		return false, err
	}
	if t.User == (common.Address{}) {
		return false, ErrInvalidUser
	}
	started, err := e.start(t)
	if errors.Is(err, errSkip) {
		return false, ErrNotInLiquidation
	}
	return started, err
}

// StartManyAuctions starts every eligible target and returns how many
// were started. Ineligible targets are skipped.
func (e *Engine) StartManyAuctions(caller common.Address, targets []Target) (int, error) {
	if err := e.controller(caller); err != nil {
		return 0, err
	}
	count := 0
	for _, t := range targets {
		started, err := e.start(t)
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return count, err
		}
		if started {
			count++
		}
	}
	return count, nil
}

// PauseAuction pauses a running auction. Pausing an auction that is
// missing or already paused reports false.
func (e *Engine) PauseAuction(caller common.Address, t Target) (bool, error) {
	if err := e.controller(caller); err != nil {
		return false, err
	}
	return e.pause(t)
}

// PauseManyAuctions pauses every running target and returns the count.
func (e *Engine) PauseManyAuctions(caller common.Address, targets []Target) (int, error) {
	if err := e.controller(caller); err != nil {
		return 0, err
	}
	count := 0
	for _, t := range targets {
		if t.User == (common.Address{}) {
			continue
		}
		paused, err := e.pause(t)
		if err != nil {
			return count, err
		}
		if paused {
			count++
		}
	}
	return count, nil
}

// StartLiquidationAuctions opens auctions for every remaining position of
// user whose asset is configured to auction instantly.
func (e *Engine) StartLiquidationAuctions(user common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	positions, err := e.credit.Positions(user)
	if err != nil {
		return 0, err
	}
	var started uint64
	for _, pos := range positions {
		cfg, ok := e.mission.AssetConfig(pos.Asset)
		if !ok || !cfg.ShouldAuctionInstantly {
			continue
		}
		ok, err := e.start(Target{User: user, VaultID: pos.VaultID, Asset: pos.Asset})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return started, err
		}
		if ok {
			started++
		}
	}
	if started > 0 {
		e.log().Info("auction: liquidation auctions started", "user", user.Hex(), "count", started)
	}
	return started, nil
}

// GetAuction returns the auction record of t.
func (e *Engine) GetAuction(t Target) (ledger.FungibleAuction, bool, error) {
	if err := e.ready(); err != nil {
		return ledger.FungibleAuction{}, false, err
	}
	return e.ledger.GetFungibleAuction(t.User, t.VaultID, t.Asset)
}

// clearUserAuctions removes every auction of user once the user has left
// liquidation.
func (e *Engine) clearUserAuctions(user common.Address) error {
	auctions, err := e.ledger.UserAuctions(user)
	if err != nil {
		return err
	}
	for _, a := range auctions {
		if _, err := e.ledger.RemoveFungibleAuction(user, a.VaultID, a.Asset); err != nil {
			return err
		}
	}
	return nil
}
