package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
	"ripe/native/token"
)

var (
	// ErrInsufficientLiquidity is returned when a swap asks for more of a
	// stability asset than the pool holds.
	ErrInsufficientLiquidity = errors.New("vault: insufficient stability pool liquidity")
	// ErrNoClaimable is returned when a redemption targets an asset nobody
	// can claim.
	ErrNoClaimable = errors.New("vault: nothing claimable")
)

// UsdConverter values assets in USD.
type UsdConverter interface {
	GetUsdValue(asset common.Address, amount *big.Int) *big.Int
	GetAssetAmount(asset common.Address, usd *big.Int) *big.Int
}

// StabilityPool holds stablecoin-class deposits that are swapped for
// liquidated collateral. Proceeds become claimable by the depositors of the
// consumed asset, pro rata to their shares.
type StabilityPool struct {
	id      uint64
	address common.Address
	book    *token.Book
	st      *state.Manager
	pos     positions
}

// NewStabilityPool constructs a stability pool.
func NewStabilityPool(id uint64, address common.Address, st *state.Manager, book *token.Book) *StabilityPool {
	return &StabilityPool{id: id, address: address, book: book, st: st, pos: newPositions(st, id)}
}

func (p *StabilityPool) ID() uint64              { return p.id }
func (p *StabilityPool) Kind() Kind              { return KindStabilityPool }
func (p *StabilityPool) Address() common.Address { return p.address }

func (p *StabilityPool) depositors(asset common.Address) state.IndexedSet {
	return state.NewIndexedSet(p.st, p.pos.prefix+"/depositors/"+asset.Hex())
}

func (p *StabilityPool) claimers(asset common.Address) state.IndexedSet {
	return state.NewIndexedSet(p.st, p.pos.prefix+"/claimers/"+asset.Hex())
}

// TotalDeposits returns the amount of asset available for swaps.
func (p *StabilityPool) TotalDeposits(asset common.Address) (*big.Int, error) {
	return p.pos.getInt(p.pos.key("deposits", asset.Bytes()))
}

func (p *StabilityPool) setTotalDeposits(asset common.Address, value *big.Int) error {
	return p.pos.putInt(p.pos.key("deposits", asset.Bytes()), value)
}

// ClaimableOf returns the amount of asset user may claim.
func (p *StabilityPool) ClaimableOf(user, asset common.Address) (*big.Int, error) {
	return p.pos.getInt(p.pos.key("claim", user.Bytes(), asset.Bytes()))
}

// TotalClaimable returns the outstanding claimable amount of asset.
func (p *StabilityPool) TotalClaimable(asset common.Address) (*big.Int, error) {
	return p.pos.getInt(p.pos.key("claimtotal", asset.Bytes()))
}

func (p *StabilityPool) setClaimable(user, asset common.Address, value *big.Int) error {
	prev, err := p.ClaimableOf(user, asset)
	if err != nil {
		return err
	}
	total, err := p.TotalClaimable(asset)
	if err != nil {
		return err
	}
	total.Sub(total, prev)
	total.Add(total, value)
	if err := p.pos.putInt(p.pos.key("claimtotal", asset.Bytes()), total); err != nil {
		return err
	}
	if err := p.pos.putInt(p.pos.key("claim", user.Bytes(), asset.Bytes()), value); err != nil {
		return err
	}
	if value.Sign() > 0 {
		_, err = p.claimers(asset).Add(user.Bytes())
	} else {
		_, err = p.claimers(asset).Remove(user.Bytes())
	}
	if err != nil {
		return err
	}
	return p.pos.touch(user, asset, value)
}

// setShares updates a deposit share balance, keeping the depositor list
// and the user asset list in sync with claimables.
func (p *StabilityPool) setShares(user, asset common.Address, value *big.Int) error {
	if err := p.pos.setShares(user, asset, value); err != nil {
		return err
	}
	var err error
	if value.Sign() > 0 {
		_, err = p.depositors(asset).Add(user.Bytes())
	} else {
		_, err = p.depositors(asset).Remove(user.Bytes())
	}
	if err != nil {
		return err
	}
	claimable, err := p.ClaimableOf(user, asset)
	if err != nil {
		return err
	}
	return p.pos.touch(user, asset, claimable)
}

// DepositAmountOf returns the stablecoin amount represented by user's
// deposit shares.
func (p *StabilityPool) DepositAmountOf(user, asset common.Address) (*big.Int, error) {
	shares, err := p.pos.shares(user, asset)
	if err != nil || shares.Sign() == 0 {
		return big.NewInt(0), err
	}
	total, err := p.pos.totalShares(asset)
	if err != nil {
		return nil, err
	}
	deposits, err := p.TotalDeposits(asset)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(shares, deposits)
	return out.Quo(out, total), nil
}

// GetTotalAmountForUser returns deposits plus claimables of asset.
func (p *StabilityPool) GetTotalAmountForUser(user, asset common.Address) (*big.Int, error) {
	deposit, err := p.DepositAmountOf(user, asset)
	if err != nil {
		return nil, err
	}
	claimable, err := p.ClaimableOf(user, asset)
	if err != nil {
		return nil, err
	}
	return deposit.Add(deposit, claimable), nil
}

func (p *StabilityPool) GetNumUserAssets(user common.Address) (int, error) {
	return p.pos.numAssets(user)
}

func (p *StabilityPool) GetUserAssetAndAmountAtIndex(user common.Address, index int) (common.Address, *big.Int, error) {
	asset, err := p.pos.assetAt(user, index)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := p.GetTotalAmountForUser(user, asset)
	return asset, amount, err
}

// Deposit pulls stablecoin-class asset from the from account and mints
// pool shares to user.
func (p *StabilityPool) Deposit(from, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if user == (common.Address{}) {
		return nil, errZeroUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	deposits, err := p.TotalDeposits(asset)
	if err != nil {
		return nil, err
	}
	total, err := p.pos.totalShares(asset)
	if err != nil {
		return nil, err
	}
	shares := new(big.Int).Set(amount)
	if total.Sign() > 0 && deposits.Sign() > 0 {
		shares.Mul(amount, total)
		shares.Quo(shares, deposits)
	}
	if shares.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := p.book.Transfer(asset, from, p.address, amount); err != nil {
		return nil, err
	}
	prev, err := p.pos.shares(user, asset)
	if err != nil {
		return nil, err
	}
	if err := p.setShares(user, asset, prev.Add(prev, shares)); err != nil {
		return nil, err
	}
	if err := p.setTotalDeposits(asset, deposits.Add(deposits, amount)); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// debitClaimable removes up to amount of claimable asset from user.
func (p *StabilityPool) debitClaimable(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	claimable, err := p.ClaimableOf(user, asset)
	if err != nil {
		return nil, err
	}
	taken := new(big.Int).Set(amount)
	if taken.Cmp(claimable) > 0 {
		taken.Set(claimable)
	}
	if taken.Sign() == 0 {
		return taken, nil
	}
	return taken, p.setClaimable(user, asset, claimable.Sub(claimable, taken))
}

// debitDeposit removes up to amount of deposited asset from user and
// returns the amount and the shares burned.
func (p *StabilityPool) debitDeposit(user, asset common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	held, err := p.pos.shares(user, asset)
	if err != nil {
		return nil, nil, err
	}
	available, err := p.DepositAmountOf(user, asset)
	if err != nil {
		return nil, nil, err
	}
	if amount.Sign() == 0 || available.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	deposits, err := p.TotalDeposits(asset)
	if err != nil {
		return nil, nil, err
	}
	total, err := p.pos.totalShares(asset)
	if err != nil {
		return nil, nil, err
	}
	taken := new(big.Int).Set(amount)
	shares := new(big.Int).Set(held)
	if taken.Cmp(available) >= 0 {
		taken.Set(available)
	} else {
		shares.Mul(taken, total)
		shares.Add(shares, new(big.Int).Sub(deposits, big.NewInt(1)))
		shares.Quo(shares, deposits)
		if shares.Cmp(held) > 0 {
			shares.Set(held)
		}
	}
	if err := p.setShares(user, asset, new(big.Int).Sub(held, shares)); err != nil {
		return nil, nil, err
	}
	return taken, shares, nil
}

func (p *StabilityPool) isDepleted(user, asset common.Address) (bool, error) {
	remaining, err := p.GetTotalAmountForUser(user, asset)
	if err != nil {
		return false, err
	}
	return remaining.Sign() == 0, nil
}

// Withdraw pays recipient up to amount, consuming claimables before
// deposits.
func (p *StabilityPool) Withdraw(user, asset common.Address, amount *big.Int, recipient common.Address) (*big.Int, bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		depleted, err := p.isDepleted(user, asset)
		return big.NewInt(0), depleted, err
	}
	fromClaim, err := p.debitClaimable(user, asset, amount)
	if err != nil {
		return nil, false, err
	}
	fromDeposit, _, err := p.debitDeposit(user, asset, new(big.Int).Sub(amount, fromClaim))
	if err != nil {
		return nil, false, err
	}
	if fromDeposit.Sign() > 0 {
		deposits, err := p.TotalDeposits(asset)
		if err != nil {
			return nil, false, err
		}
		if err := p.setTotalDeposits(asset, deposits.Sub(deposits, fromDeposit)); err != nil {
			return nil, false, err
		}
	}
	taken := new(big.Int).Add(fromClaim, fromDeposit)
	if taken.Sign() > 0 {
		if err := p.book.Transfer(asset, p.address, recipient, taken); err != nil {
			return nil, false, err
		}
	}
	depleted, err := p.isDepleted(user, asset)
	return taken, depleted, err
}

// WithdrawClaimable pays recipient up to amount of user's claimable asset
// without touching deposits.
func (p *StabilityPool) WithdrawClaimable(user, asset common.Address, amount *big.Int, recipient common.Address) (*big.Int, bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), false, nil
	}
	taken, err := p.debitClaimable(user, asset, amount)
	if err != nil {
		return nil, false, err
	}
	if taken.Sign() > 0 {
		if err := p.book.Transfer(asset, p.address, recipient, taken); err != nil {
			return nil, false, err
		}
	}
	depleted, err := p.isDepleted(user, asset)
	return taken, depleted, err
}

// TransferBalance moves up to amount of a position between users,
// claimables first.
func (p *StabilityPool) TransferBalance(from, to, asset common.Address, amount *big.Int) (*big.Int, bool, error) {
	if to == (common.Address{}) {
		return nil, false, errZeroUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), false, nil
	}
	fromClaim, err := p.debitClaimable(from, asset, amount)
	if err != nil {
		return nil, false, err
	}
	if fromClaim.Sign() > 0 {
		prev, err := p.ClaimableOf(to, asset)
		if err != nil {
			return nil, false, err
		}
		if err := p.setClaimable(to, asset, prev.Add(prev, fromClaim)); err != nil {
			return nil, false, err
		}
	}
	fromDeposit, shares, err := p.debitDeposit(from, asset, new(big.Int).Sub(amount, fromClaim))
	if err != nil {
		return nil, false, err
	}
	if shares.Sign() > 0 {
		prev, err := p.pos.shares(to, asset)
		if err != nil {
			return nil, false, err
		}
		if err := p.setShares(to, asset, prev.Add(prev, shares)); err != nil {
			return nil, false, err
		}
	}
	depleted, err := p.isDepleted(from, asset)
	return new(big.Int).Add(fromClaim, fromDeposit), depleted, err
}

// SwapForLiquidatedCollateral takes liqAmount of liqAsset from the from
// account, releases stabAmount of the stability asset to recipient and
// credits the collateral as claimable to the stability asset depositors.
func (p *StabilityPool) SwapForLiquidatedCollateral(stabAsset common.Address, stabAmount *big.Int, liqAsset common.Address, liqAmount *big.Int, from, recipient common.Address) error {
	if stabAmount == nil || stabAmount.Sign() <= 0 || liqAmount == nil || liqAmount.Sign() <= 0 {
		return nil
	}
	deposits, err := p.TotalDeposits(stabAsset)
	if err != nil {
		return err
	}
	if deposits.Cmp(stabAmount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientLiquidity, deposits, stabAmount)
	}
	if err := p.book.Transfer(liqAsset, from, p.address, liqAmount); err != nil {
		return err
	}
	members, err := p.depositors(stabAsset).Members()
	if err != nil {
		return err
	}
	weights, err := p.weigh(members, func(user common.Address) (*big.Int, error) {
		return p.pos.shares(user, stabAsset)
	})
	if err != nil {
		return err
	}
	if err := p.distribute(members, weights, liqAsset, liqAmount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(deposits, stabAmount)
	if err := p.setTotalDeposits(stabAsset, remaining); err != nil {
		return err
	}
	if remaining.Sign() == 0 {
		if err := p.clearShares(stabAsset); err != nil {
			return err
		}
	}
	return p.book.Transfer(stabAsset, p.address, recipient, stabAmount)
}

// clearShares drops worthless shares once every unit of asset has been
// swapped out.
func (p *StabilityPool) clearShares(asset common.Address) error {
	members, err := p.depositors(asset).Members()
	if err != nil {
		return err
	}
	for _, raw := range members {
		if err := p.setShares(common.BytesToAddress(raw), asset, big.NewInt(0)); err != nil {
			return err
		}
	}
	return nil
}

func (p *StabilityPool) weigh(members [][]byte, weight func(common.Address) (*big.Int, error)) ([]*big.Int, error) {
	weights := make([]*big.Int, len(members))
	for i, raw := range members {
		w, err := weight(common.BytesToAddress(raw))
		if err != nil {
			return nil, err
		}
		weights[i] = w
	}
	return weights, nil
}

// distribute credits amount of asset as claimable across members weighted
// by weights. The last weighted member receives the rounding remainder.
func (p *StabilityPool) distribute(members [][]byte, weights []*big.Int, asset common.Address, amount *big.Int) error {
	total := new(big.Int)
	last := -1
	for i, w := range weights {
		total.Add(total, w)
		if w.Sign() > 0 {
			last = i
		}
	}
	if total.Sign() == 0 {
		return ErrNoClaimable
	}
	credited := new(big.Int)
	for i, raw := range members {
		if weights[i].Sign() == 0 {
			continue
		}
		user := common.BytesToAddress(raw)
		share := new(big.Int).Mul(amount, weights[i])
		share.Quo(share, total)
		if i == last {
			share = new(big.Int).Sub(amount, credited)
		}
		credited.Add(credited, share)
		prev, err := p.ClaimableOf(user, asset)
		if err != nil {
			return err
		}
		if err := p.setClaimable(user, asset, prev.Add(prev, share)); err != nil {
			return err
		}
	}
	return nil
}

// RedeemFromPool lets redeemer buy claimable claimAsset with stablecoin at
// oracle value. The stablecoin paid becomes claimable by the previous
// claimAsset holders pro rata. Returns the claimAsset amount received.
func (p *StabilityPool) RedeemFromPool(redeemer, claimAsset, green common.Address, greenAmount *big.Int, prices UsdConverter) (*big.Int, error) {
	if greenAmount == nil || greenAmount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	available, err := p.TotalClaimable(claimAsset)
	if err != nil {
		return nil, err
	}
	if available.Sign() == 0 {
		return nil, ErrNoClaimable
	}
	wanted := prices.GetAssetAmount(claimAsset, greenAmount)
	if wanted.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if wanted.Cmp(available) > 0 {
		wanted.Set(available)
		greenAmount = prices.GetUsdValue(claimAsset, wanted)
	}
	if err := p.book.Transfer(green, redeemer, p.address, greenAmount); err != nil {
		return nil, err
	}
	members, err := p.claimers(claimAsset).Members()
	if err != nil {
		return nil, err
	}
	weights, err := p.weigh(members, func(user common.Address) (*big.Int, error) {
		return p.ClaimableOf(user, claimAsset)
	})
	if err != nil {
		return nil, err
	}
	if err := p.debitPro(members, weights, claimAsset, wanted, available); err != nil {
		return nil, err
	}
	if err := p.distribute(members, weights, green, greenAmount); err != nil {
		return nil, err
	}
	if err := p.book.Transfer(claimAsset, p.address, redeemer, wanted); err != nil {
		return nil, err
	}
	return wanted, nil
}

// debitPro removes amount of claimable asset from members pro rata to
// weights, which sum to total.
func (p *StabilityPool) debitPro(members [][]byte, weights []*big.Int, asset common.Address, amount, total *big.Int) error {
	debited := new(big.Int)
	for i, raw := range members {
		share := new(big.Int).Mul(amount, weights[i])
		share.Quo(share, total)
		if i == len(members)-1 {
			share = new(big.Int).Sub(amount, debited)
		}
		if share.Cmp(weights[i]) > 0 {
			share.Set(weights[i])
		}
		debited.Add(debited, share)
		if _, err := p.debitClaimable(common.BytesToAddress(raw), asset, share); err != nil {
			return err
		}
	}
	return nil
}
