// Package savings implements the auto-compounding savings wrapper around the
// protocol stablecoin. Shares appreciate as stablecoin revenue is routed into
// the vault account.
package savings

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/token"
)

var (
	errNilBook = errors.New("savings: token book not configured")
	// ErrZeroShares is returned when a deposit is too small to mint a share.
	ErrZeroShares = errors.New("savings: deposit mints no shares")
)

// Vault wraps the stablecoin into savings shares. Assets are held by the
// vault account; shares are an asset of their own in the token book.
type Vault struct {
	book    *token.Book
	account common.Address
	asset   common.Address
	shares  common.Address
}

// New constructs the savings vault and grants the vault account authority
// over the share token.
func New(book *token.Book, account, asset, shares common.Address) *Vault {
	if book != nil {
		book.GrantMinter(shares, account)
		book.GrantBurner(shares, account)
	}
	return &Vault{book: book, account: account, asset: asset, shares: shares}
}

// Account returns the address holding the wrapped assets.
func (v *Vault) Account() common.Address { return v.account }

// Asset returns the underlying stablecoin.
func (v *Vault) Asset() common.Address { return v.asset }

// Shares returns the share token.
func (v *Vault) Shares() common.Address { return v.shares }

// TotalAssets returns the stablecoin held by the vault.
func (v *Vault) TotalAssets() (*big.Int, error) {
	if v == nil || v.book == nil {
		return nil, errNilBook
	}
	return v.book.BalanceOf(v.asset, v.account)
}

// ConvertToAssets returns the stablecoin value of shares, rounding down.
func (v *Vault) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	return v.convert(shares, false)
}

// ConvertToShares returns the shares minted for assets, rounding down.
func (v *Vault) ConvertToShares(assets *big.Int) (*big.Int, error) {
	return v.convert(assets, true)
}

func (v *Vault) convert(amount *big.Int, toShares bool) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	totalAssets, err := v.TotalAssets()
	if err != nil {
		return nil, err
	}
	totalShares, err := v.book.TotalSupply(v.shares)
	if err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 || totalAssets.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	out := new(big.Int)
	if toShares {
		out.Mul(amount, totalShares)
		return out.Quo(out, totalAssets), nil
	}
	out.Mul(amount, totalAssets)
	return out.Quo(out, totalShares), nil
}

// Deposit pulls assets from owner and mints shares to receiver.
func (v *Vault) Deposit(owner, receiver common.Address, assets *big.Int) (*big.Int, error) {
	shares, err := v.ConvertToShares(assets)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	if err := v.book.Transfer(v.asset, owner, v.account, assets); err != nil {
		return nil, err
	}
	if err := v.book.Mint(v.account, v.shares, receiver, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares held by owner and pays the underlying to receiver.
func (v *Vault) Redeem(owner, receiver common.Address, shares *big.Int) (*big.Int, error) {
	assets, err := v.ConvertToAssets(shares)
	if err != nil {
		return nil, err
	}
	if err := v.book.Burn(v.account, v.shares, owner, shares); err != nil {
		return nil, err
	}
	if err := v.book.Transfer(v.asset, v.account, receiver, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// Withdraw redeems the shares worth assets, rounding the share count up so
// the vault never pays out more than it burns.
func (v *Vault) Withdraw(owner, receiver common.Address, assets *big.Int) (*big.Int, error) {
	totalAssets, err := v.TotalAssets()
	if err != nil {
		return nil, err
	}
	totalShares, err := v.book.TotalSupply(v.shares)
	if err != nil {
		return nil, err
	}
	shares := new(big.Int).Set(assets)
	if totalShares.Sign() > 0 && totalAssets.Sign() > 0 {
		shares.Mul(assets, totalShares)
		shares.Add(shares, new(big.Int).Sub(totalAssets, big.NewInt(1)))
		shares.Quo(shares, totalAssets)
	}
	if err := v.book.Burn(v.account, v.shares, owner, shares); err != nil {
		return nil, err
	}
	if err := v.book.Transfer(v.asset, v.account, receiver, assets); err != nil {
		return nil, err
	}
	return shares, nil
}
