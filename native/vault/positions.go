package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
)

// positions stores per-user share balances of a vault together with the
// list of assets each user holds.
type positions struct {
	st     *state.Manager
	prefix string
}

func newPositions(st *state.Manager, id uint64) positions {
	return positions{st: st, prefix: fmt.Sprintf("vault/%d", id)}
}

func (p positions) key(kind string, parts ...[]byte) []byte {
	return state.Key(p.prefix+"/"+kind, parts...)
}

func (p positions) getInt(key []byte) (*big.Int, error) {
	out := new(big.Int)
	ok, err := p.st.KVGet(key, out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return out, nil
}

func (p positions) putInt(key []byte, value *big.Int) error {
	if err := state.CheckAmount(value); err != nil {
		return err
	}
	if value.Sign() == 0 {
		return p.st.KVDelete(key)
	}
	return p.st.KVPut(key, value)
}

func (p positions) userAssets(user common.Address) state.IndexedSet {
	return state.NewIndexedSet(p.st, p.prefix+"/assets/"+user.Hex())
}

func (p positions) shares(user, asset common.Address) (*big.Int, error) {
	return p.getInt(p.key("shares", user.Bytes(), asset.Bytes()))
}

func (p positions) totalShares(asset common.Address) (*big.Int, error) {
	return p.getInt(p.key("total", asset.Bytes()))
}

// setShares writes the user balance and keeps the total and the user asset
// list in sync.
func (p positions) setShares(user, asset common.Address, value *big.Int) error {
	prev, err := p.shares(user, asset)
	if err != nil {
		return err
	}
	total, err := p.totalShares(asset)
	if err != nil {
		return err
	}
	total.Sub(total, prev)
	total.Add(total, value)
	if err := p.putInt(p.key("total", asset.Bytes()), total); err != nil {
		return err
	}
	if err := p.putInt(p.key("shares", user.Bytes(), asset.Bytes()), value); err != nil {
		return err
	}
	return p.touch(user, asset)
}

// touch reconciles the user asset list with the stored balances. extra
// lets wrappers report holdings that live outside the share table.
func (p positions) touch(user, asset common.Address, extra ...*big.Int) error {
	held, err := p.shares(user, asset)
	if err != nil {
		return err
	}
	present := held.Sign() > 0
	for _, v := range extra {
		if v != nil && v.Sign() > 0 {
			present = true
		}
	}
	set := p.userAssets(user)
	if present {
		_, err = set.Add(asset.Bytes())
	} else {
		_, err = set.Remove(asset.Bytes())
	}
	return err
}

func (p positions) numAssets(user common.Address) (int, error) {
	n, err := p.userAssets(user).Len()
	return int(n), err
}

func (p positions) assetAt(user common.Address, index int) (common.Address, error) {
	n, err := p.numAssets(user)
	if err != nil {
		return common.Address{}, err
	}
	if index < 0 || index >= n {
		return common.Address{}, errIndex
	}
	raw, err := p.userAssets(user).At(uint64(index) + 1)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}
