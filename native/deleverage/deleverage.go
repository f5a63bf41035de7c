package deleverage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/events"
	nativecommon "ripe/native/common"
)

// AssetTarget is one entry of a caller-ordered deleverage. A zero Amount
// consumes as much of the position as the target needs.
type AssetTarget struct {
	VaultID uint64
	Asset   common.Address
	Amount  *big.Int
}

// Info summarises how much debt the deleverageable positions of a user
// could repay.
type Info struct {
	MaxDeleverageUsd *big.Int
	EffectiveLtv     uint64
}

// LiquidationWaterfall consumes positions of user worth up to target USD,
// including swaps into the stability pools. The debt record is left to
// the caller.
func (e *Engine) LiquidationWaterfall(user common.Address, target *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if target == nil || target.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	p := e.newPass(user, target, true)
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.repaid, nil
}

// canDeleverageFor reports whether caller may force a deleverage of user.
// Anyone may deleverage a user whose collateral is redeemable.
func (e *Engine) canDeleverageFor(caller, user common.Address) (bool, error) {
	if caller == user || e.mission.IsTrusted(caller) {
		return true, nil
	}
	return e.credit.CanRedeemUserCollateral(user)
}

// DeleverageUser runs the waterfall for user up to target USD, or the full
// debt when target is zero, and applies what was repaid.
func (e *Engine) DeleverageUser(caller, user common.Address, target *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	allowed, err := e.canDeleverageFor(caller, user)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNoPerms
	}
	debt, _, _, err := e.credit.GetLatestUserDebtAndTerms(user, false)
	if err != nil {
		return nil, err
	}
	if debt.Amount.Sign() == 0 {
		return nil, ErrCannotDeleverage
	}
	goal := new(big.Int).Set(debt.Amount)
	if target != nil && target.Sign() > 0 {
		goal = nativecommon.Min(goal, target)
	}
	p := e.newPass(user, goal, false)
	if err := p.run(); err != nil {
		return nil, err
	}
	return e.settle(caller, user, goal, p.repaid)
}

// DeleverageWithSpecificAssets consumes exactly the listed positions in
// the given order. Duplicate entries are ignored.
func (e *Engine) DeleverageWithSpecificAssets(caller, user common.Address, assets []AssetTarget) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if user == (common.Address{}) {
		return nil, ErrInvalidUser
	}
	if !e.mission.IsTrusted(caller) {
		return nil, ErrNoPerms
	}
	debt, _, _, err := e.credit.GetLatestUserDebtAndTerms(user, false)
	if err != nil {
		return nil, err
	}
	if debt.Amount.Sign() == 0 {
		return nil, ErrCannotDeleverage
	}
	p := e.newPass(user, debt.Amount, false)
	for _, entry := range assets {
		if p.done() {
			break
		}
		if _, ok := p.handled[p.key(entry.VaultID, entry.Asset)]; ok {
			continue
		}
		member, err := p.participates(entry.VaultID)
		if err != nil {
			return nil, err
		}
		if !member {
			continue
		}
		v, err := e.vaults.Get(entry.VaultID)
		if err != nil {
			continue
		}
		if err := p.consume(v, entry.Asset, entry.Amount); err != nil {
			return nil, err
		}
	}
	return e.settle(caller, user, debt.Amount, p.repaid)
}

// settle applies repaid to the debt of user once the waterfall is done.
func (e *Engine) settle(caller, user common.Address, target, repaid *big.Int) (*big.Int, error) {
	if repaid.Sign() == 0 {
		return nil, ErrCannotDeleverage
	}
	applied, err := e.credit.ApplyRepayment(user, repaid)
	if err != nil {
		return nil, err
	}
	e.emit(events.DeleverageUser{
		User:   user,
		Caller: caller,
		Target: target,
		Repaid: applied,
		Block:  e.block,
	})
	e.log().Info("deleverage: user deleveraged",
		"user", user.Hex(),
		"caller", caller.Hex(),
		"target", target.String(),
		"repaid", applied.String())
	return applied, nil
}
