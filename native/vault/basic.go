package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
	"ripe/native/token"
)

// AssetVault holds collateral on behalf of users. A simple vault records
// balances one to one; a rebasing vault records shares of the custody
// balance so that rebases accrue to depositors.
type AssetVault struct {
	id      uint64
	kind    Kind
	address common.Address
	book    *token.Book
	pos     positions
}

// NewSimpleVault constructs a vault recording plain balances.
func NewSimpleVault(id uint64, address common.Address, st *state.Manager, book *token.Book) *AssetVault {
	return &AssetVault{id: id, kind: KindSimple, address: address, book: book, pos: newPositions(st, id)}
}

// NewRebasingVault constructs a vault whose balances follow the custody
// account.
func NewRebasingVault(id uint64, address common.Address, st *state.Manager, book *token.Book) *AssetVault {
	return &AssetVault{id: id, kind: KindRebasing, address: address, book: book, pos: newPositions(st, id)}
}

func (v *AssetVault) ID() uint64              { return v.id }
func (v *AssetVault) Kind() Kind              { return v.kind }
func (v *AssetVault) Address() common.Address { return v.address }

// ratio returns the custody balance and total shares of asset.
func (v *AssetVault) ratio(asset common.Address) (*big.Int, *big.Int, error) {
	bal, err := v.book.BalanceOf(asset, v.address)
	if err != nil {
		return nil, nil, err
	}
	total, err := v.pos.totalShares(asset)
	if err != nil {
		return nil, nil, err
	}
	return bal, total, nil
}

func (v *AssetVault) sharesToAmount(asset common.Address, shares *big.Int) (*big.Int, error) {
	if v.kind != KindRebasing || shares.Sign() == 0 {
		return new(big.Int).Set(shares), nil
	}
	bal, total, err := v.ratio(asset)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(shares, bal)
	return out.Quo(out, total), nil
}

// amountToShares converts amount into shares, rounding up when roundUp is
// set so that debits never undercharge.
func (v *AssetVault) amountToShares(asset common.Address, amount *big.Int, roundUp bool) (*big.Int, error) {
	if v.kind != KindRebasing {
		return new(big.Int).Set(amount), nil
	}
	bal, total, err := v.ratio(asset)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 || bal.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	out := new(big.Int).Mul(amount, total)
	if roundUp {
		out.Add(out, new(big.Int).Sub(bal, big.NewInt(1)))
	}
	return out.Quo(out, bal), nil
}

// GetTotalAmountForUser returns the asset amount held for user.
func (v *AssetVault) GetTotalAmountForUser(user, asset common.Address) (*big.Int, error) {
	shares, err := v.pos.shares(user, asset)
	if err != nil {
		return nil, err
	}
	return v.sharesToAmount(asset, shares)
}

// GetNumUserAssets returns the number of assets user holds.
func (v *AssetVault) GetNumUserAssets(user common.Address) (int, error) {
	return v.pos.numAssets(user)
}

// GetUserAssetAndAmountAtIndex returns the asset at the zero-based index of
// the user's asset list together with its amount.
func (v *AssetVault) GetUserAssetAndAmountAtIndex(user common.Address, index int) (common.Address, *big.Int, error) {
	asset, err := v.pos.assetAt(user, index)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := v.GetTotalAmountForUser(user, asset)
	return asset, amount, err
}

// Deposit pulls amount from the from account and credits user.
func (v *AssetVault) Deposit(from, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if user == (common.Address{}) {
		return nil, errZeroUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	shares, err := v.amountToShares(asset, amount, false)
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := v.book.Transfer(asset, from, v.address, amount); err != nil {
		return nil, err
	}
	prev, err := v.pos.shares(user, asset)
	if err != nil {
		return nil, err
	}
	if err := v.pos.setShares(user, asset, prev.Add(prev, shares)); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// debit removes up to amount from user and returns the amount removed and
// whether the position is now empty.
func (v *AssetVault) debit(user, asset common.Address, amount *big.Int) (*big.Int, *big.Int, bool, error) {
	held, err := v.pos.shares(user, asset)
	if err != nil {
		return nil, nil, false, err
	}
	available, err := v.sharesToAmount(asset, held)
	if err != nil {
		return nil, nil, false, err
	}
	if amount == nil || amount.Sign() <= 0 || available.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), held.Sign() == 0, nil
	}
	taken := new(big.Int).Set(amount)
	shares := held
	if taken.Cmp(available) >= 0 {
		taken.Set(available)
	} else {
		shares, err = v.amountToShares(asset, taken, true)
		if err != nil {
			return nil, nil, false, err
		}
		if shares.Cmp(held) > 0 {
			shares = held
		}
	}
	remaining := new(big.Int).Sub(held, shares)
	if err := v.pos.setShares(user, asset, remaining); err != nil {
		return nil, nil, false, err
	}
	return taken, shares, remaining.Sign() == 0, nil
}

// Withdraw debits up to amount from user and pays recipient.
func (v *AssetVault) Withdraw(user, asset common.Address, amount *big.Int, recipient common.Address) (*big.Int, bool, error) {
	taken, _, depleted, err := v.debit(user, asset, amount)
	if err != nil {
		return nil, false, err
	}
	if taken.Sign() > 0 {
		if err := v.book.Transfer(asset, v.address, recipient, taken); err != nil {
			return nil, false, err
		}
	}
	return taken, depleted, nil
}

// TransferBalance moves up to amount of asset from one user to another.
func (v *AssetVault) TransferBalance(from, to, asset common.Address, amount *big.Int) (*big.Int, bool, error) {
	if to == (common.Address{}) {
		return nil, false, errZeroUser
	}
	taken, shares, depleted, err := v.debit(from, asset, amount)
	if err != nil || shares.Sign() == 0 {
		return taken, depleted, err
	}
	prev, err := v.pos.shares(to, asset)
	if err != nil {
		return nil, false, err
	}
	if err := v.pos.setShares(to, asset, prev.Add(prev, shares)); err != nil {
		return nil, false, err
	}
	return taken, depleted, nil
}
