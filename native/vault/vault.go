// Package vault implements the collateral custody pools: a simple token
// vault, a rebasing vault whose balances grow with the custody account, and
// the stability pool that absorbs liquidated collateral.
package vault

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies the vault flavour.
type Kind uint8

const (
	KindSimple Kind = iota + 1
	KindRebasing
	KindStabilityPool
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindRebasing:
		return "rebasing"
	case KindStabilityPool:
		return "stability_pool"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownVault is returned for vault ids missing from the registry.
	ErrUnknownVault = errors.New("vault: unknown vault id")
	errNilVault     = errors.New("vault: not configured")
	errZeroUser     = errors.New("vault: zero user")
	errIndex        = errors.New("vault: asset index out of range")
)

// Vault is the custody surface consumed by the engines.
type Vault interface {
	ID() uint64
	Kind() Kind
	Address() common.Address
	GetTotalAmountForUser(user, asset common.Address) (*big.Int, error)
	GetNumUserAssets(user common.Address) (int, error)
	GetUserAssetAndAmountAtIndex(user common.Address, index int) (common.Address, *big.Int, error)
	// Deposit pulls amount of asset from the from account into custody and
	// credits user.
	Deposit(from, user, asset common.Address, amount *big.Int) (*big.Int, error)
	// Withdraw debits up to amount from user and pays recipient. The boolean
	// reports whether the position is depleted.
	Withdraw(user, asset common.Address, amount *big.Int, recipient common.Address) (*big.Int, bool, error)
	// TransferBalance moves up to amount of a position between users inside
	// the vault.
	TransferBalance(from, to, asset common.Address, amount *big.Int) (*big.Int, bool, error)
}

// Registry resolves vault ids.
type Registry struct {
	vaults map[uint64]Vault
}

// NewRegistry constructs a registry over the given vaults.
func NewRegistry(vaults ...Vault) *Registry {
	r := &Registry{vaults: make(map[uint64]Vault, len(vaults))}
	for _, v := range vaults {
		r.Register(v)
	}
	return r
}

// Register adds or replaces a vault.
func (r *Registry) Register(v Vault) {
	if v == nil {
		return
	}
	r.vaults[v.ID()] = v
}

// Get returns the vault registered under id.
func (r *Registry) Get(id uint64) (Vault, error) {
	if r == nil {
		return nil, errNilVault
	}
	v, ok := r.vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVault, id)
	}
	return v, nil
}

// StabilityPool returns the stability pool registered under id, if any.
func (r *Registry) StabilityPool(id uint64) (*StabilityPool, bool) {
	v, err := r.Get(id)
	if err != nil {
		return nil, false
	}
	pool, ok := v.(*StabilityPool)
	return pool, ok
}

// IDs returns every registered vault id in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.vaults))
	for id := range r.vaults {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
