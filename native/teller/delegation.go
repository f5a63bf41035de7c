package teller

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
)

// Action names a delegable operation.
type Action uint8

const (
	ActionBorrow Action = iota + 1
	ActionWithdraw
	ActionClaim
)

func (a Action) String() string {
	switch a {
	case ActionBorrow:
		return "borrow"
	case ActionWithdraw:
		return "withdraw"
	case ActionClaim:
		return "claim"
	default:
		return "unknown"
	}
}

// Permissions lists what a delegate may do for its owner.
type Permissions struct {
	CanBorrow   bool
	CanWithdraw bool
	CanClaim    bool
}

func (p Permissions) allows(a Action) bool {
	switch a {
	case ActionBorrow:
		return p.CanBorrow
	case ActionWithdraw:
		return p.CanWithdraw
	case ActionClaim:
		return p.CanClaim
	}
	return false
}

func (p Permissions) empty() bool {
	return !p.CanBorrow && !p.CanWithdraw && !p.CanClaim
}

func delegationKey(owner, delegate common.Address) []byte {
	return state.Key("teller/delegate", owner.Bytes(), delegate.Bytes())
}

// SetDelegate grants delegate the permissions perms over the positions of
// owner. Only the owner can change its delegates; empty permissions revoke.
func (t *Teller) SetDelegate(ctx context.Context, caller, owner, delegate common.Address, perms Permissions) error {
	return t.mutate(ctx, "set_delegate", caller, func() error {
		if owner == (common.Address{}) || delegate == (common.Address{}) || owner == delegate {
			return ErrInvalidUser
		}
		if caller != owner {
			return ErrNoPerms
		}
		if perms.empty() {
			return t.st.KVDelete(delegationKey(owner, delegate))
		}
		return t.st.KVPut(delegationKey(owner, delegate), perms)
	})
}

// Delegation returns the permissions of delegate over owner.
func (t *Teller) Delegation(ctx context.Context, owner, delegate common.Address) (Permissions, error) {
	var perms Permissions
	err := t.view(ctx, "delegation", func() error {
		var err error
		perms, err = t.delegation(owner, delegate)
		return err
	})
	return perms, err
}

func (t *Teller) delegation(owner, delegate common.Address) (Permissions, error) {
	var perms Permissions
	if _, err := t.st.KVGet(delegationKey(owner, delegate), &perms); err != nil {
		return Permissions{}, err
	}
	return perms, nil
}

// authorize lets caller act for user: the user itself, a trusted caller,
// or a delegate holding the action.
func (t *Teller) authorize(caller, user common.Address, action Action) error {
	if user == (common.Address{}) {
		return ErrInvalidUser
	}
	if caller == user || t.mission.IsTrusted(caller) {
		return nil
	}
	perms, err := t.delegation(user, caller)
	if err != nil {
		return err
	}
	if !perms.allows(action) {
		return ErrNoPerms
	}
	return nil
}
