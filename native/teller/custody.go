package teller

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
	"ripe/native/vault"
)

// ErrVaultAssetMismatch is returned when the vault does not take the asset.
var ErrVaultAssetMismatch = errors.New("teller: asset not supported by vault")

// CustodyRequest names a position change.
type CustodyRequest struct {
	User    common.Address
	VaultID uint64
	Asset   common.Address
	Amount  *big.Int
}

func (r CustodyRequest) validate() error {
	if r.User == (common.Address{}) {
		return ErrInvalidUser
	}
	if r.Asset == (common.Address{}) || r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit moves req.Amount of the caller's tokens into req.VaultID on
// behalf of req.User. Anyone may deposit for anyone.
func (t *Teller) Deposit(ctx context.Context, caller common.Address, req CustodyRequest) (*big.Int, error) {
	var deposited *big.Int
	err := t.mutate(ctx, "deposit", caller, func() error {
		if err := req.validate(); err != nil {
			return err
		}
		cfg, ok := t.mission.AssetConfig(req.Asset)
		if !ok || !cfg.CanDeposit {
			return ErrDepositsDisabled
		}
		v, err := t.vaults.Get(req.VaultID)
		if err != nil {
			return err
		}
		if v.Kind() == vault.KindStabilityPool && !cfg.IsStablecoinClass {
			return ErrVaultAssetMismatch
		}
		deposited, err = v.Deposit(caller, req.User, req.Asset, req.Amount)
		if err != nil {
			return err
		}
		if deposited.Sign() == 0 {
			return ErrInvalidAmount
		}
		return t.ledger.AddVaultToUser(req.User, req.VaultID)
	})
	return deposited, err
}

// Withdraw takes up to req.Amount out of req.VaultID and pays req.User,
// capped to what keeps the user's debt healthy.
func (t *Teller) Withdraw(ctx context.Context, caller common.Address, req CustodyRequest) (*big.Int, error) {
	var taken *big.Int
	err := t.mutate(ctx, "withdraw", caller, func() error {
		if err := req.validate(); err != nil {
			return err
		}
		if err := t.authorize(caller, req.User, ActionWithdraw); err != nil {
			return err
		}
		var err error
		taken, err = t.withdraw(req)
		return err
	})
	return taken, err
}

// WithdrawWithDeleverage first repays enough debt out of the user's other
// positions to keep the withdrawal healthy, then withdraws. Only trusted
// callers may use it.
func (t *Teller) WithdrawWithDeleverage(ctx context.Context, caller common.Address, req CustodyRequest) (*big.Int, error) {
	var taken *big.Int
	err := t.mutate(ctx, "withdraw_with_deleverage", caller, func() error {
		if err := req.validate(); err != nil {
			return err
		}
		if !t.mission.IsTrusted(caller) {
			return ErrNoPerms
		}
		v, err := t.vaults.Get(req.VaultID)
		if err != nil {
			return err
		}
		held, err := v.GetTotalAmountForUser(req.User, req.Asset)
		if err != nil {
			return err
		}
		pending := nativecommon.Min(req.Amount, held)
		if pending.Sign() == 0 {
			return ErrCannotWithdrawAnything
		}
		if _, err := t.deleverage.DeleverageForWithdrawal(caller, req.User, req.VaultID, req.Asset, pending); err != nil {
			return err
		}
		taken, err = t.withdraw(req)
		return err
	})
	return taken, err
}

func (t *Teller) withdraw(req CustodyRequest) (*big.Int, error) {
	cfg, ok := t.mission.AssetConfig(req.Asset)
	if !ok || !cfg.CanWithdraw {
		return nil, ErrWithdrawalsDisabled
	}
	v, err := t.vaults.Get(req.VaultID)
	if err != nil {
		return nil, err
	}
	max, err := t.credit.GetMaxWithdrawableForAsset(req.User, req.VaultID, req.Asset)
	if err != nil {
		return nil, err
	}
	held, err := v.GetTotalAmountForUser(req.User, req.Asset)
	if err != nil {
		return nil, err
	}
	amount := nativecommon.Min(nativecommon.Min(req.Amount, max), held)
	if amount.Sign() == 0 {
		return nil, ErrCannotWithdrawAnything
	}
	taken, depleted, err := v.Withdraw(req.User, req.Asset, amount, req.User)
	if err != nil {
		return nil, err
	}
	if taken.Sign() == 0 {
		return nil, ErrCannotWithdrawAnything
	}
	if depleted {
		if err := t.credit.PruneUserVault(req.User, req.VaultID); err != nil {
			return nil, err
		}
	}
	return taken, nil
}
