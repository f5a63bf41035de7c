package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
)

var (
	errNilState = errors.New("token: state not configured")
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrNotMinter is returned when the caller holds no mint authority.
	ErrNotMinter = errors.New("token: caller cannot mint")
	// ErrNotBurner is returned when the caller holds no burn authority.
	ErrNotBurner = errors.New("token: caller cannot burn")
	errZeroAddress = errors.New("token: zero address")
)

const (
	balancePrefix = "token/balance"
	supplyPrefix  = "token/supply"
)

// Book tracks balances and supply for every asset known to the protocol.
// Mint and burn authority is granted per asset at wiring time.
type Book struct {
	state *state.Manager

	mu      sync.RWMutex
	minters map[common.Address]map[common.Address]bool
	burners map[common.Address]map[common.Address]bool
}

// NewBook constructs a balance book persisted through the state manager.
func NewBook(st *state.Manager) *Book {
	return &Book{
		state:   st,
		minters: make(map[common.Address]map[common.Address]bool),
		burners: make(map[common.Address]map[common.Address]bool),
	}
}

// GrantMinter allows minter to create units of asset.
func (b *Book) GrantMinter(asset, minter common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.minters[asset] == nil {
		b.minters[asset] = make(map[common.Address]bool)
	}
	b.minters[asset][minter] = true
}

// GrantBurner allows burner to destroy units of asset held by any account.
func (b *Book) GrantBurner(asset, burner common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.burners[asset] == nil {
		b.burners[asset] = make(map[common.Address]bool)
	}
	b.burners[asset][burner] = true
}

func (b *Book) canMint(asset, caller common.Address) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.minters[asset][caller]
}

func (b *Book) canBurn(asset, caller common.Address) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.burners[asset][caller]
}

func balanceKey(asset, owner common.Address) []byte {
	return state.Key(balancePrefix, asset.Bytes(), owner.Bytes())
}

func supplyKey(asset common.Address) []byte {
	return state.Key(supplyPrefix, asset.Bytes())
}

func (b *Book) load(key []byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	out := new(big.Int)
	ok, err := b.state.KVGet(key, out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return out, nil
}

func (b *Book) store(key []byte, value *big.Int) error {
	if err := state.CheckAmount(value); err != nil {
		return err
	}
	if value.Sign() == 0 {
		return b.state.KVDelete(key)
	}
	return b.state.KVPut(key, value)
}

// BalanceOf returns the balance of owner in asset.
func (b *Book) BalanceOf(asset, owner common.Address) (*big.Int, error) {
	return b.load(balanceKey(asset, owner))
}

// TotalSupply returns the circulating supply of asset.
func (b *Book) TotalSupply(asset common.Address) (*big.Int, error) {
	return b.load(supplyKey(asset))
}

// Transfer moves amount of asset between two accounts.
func (b *Book) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	if from == to {
		return nil
	}
	fromBal, err := b.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	toBal, err := b.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := b.store(balanceKey(asset, from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return b.store(balanceKey(asset, to), toBal.Add(toBal, amount))
}

// Mint creates amount of asset for to. The caller must hold mint authority.
func (b *Book) Mint(caller, asset, to common.Address, amount *big.Int) error {
	if !b.canMint(asset, caller) {
		return ErrNotMinter
	}
	return b.mint(asset, to, amount)
}

func (b *Book) mint(asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	bal, err := b.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	supply, err := b.TotalSupply(asset)
	if err != nil {
		return err
	}
	if err := b.store(supplyKey(asset), supply.Add(supply, amount)); err != nil {
		return err
	}
	return b.store(balanceKey(asset, to), bal.Add(bal, amount))
}

// Burn destroys amount of asset held by from. The caller must hold burn
// authority unless it burns its own balance.
func (b *Book) Burn(caller, asset, from common.Address, amount *big.Int) error {
	if caller != from && !b.canBurn(asset, caller) {
		return ErrNotBurner
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	bal, err := b.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}
	supply, err := b.TotalSupply(asset)
	if err != nil {
		return err
	}
	if err := b.store(supplyKey(asset), supply.Sub(supply, amount)); err != nil {
		return err
	}
	return b.store(balanceKey(asset, from), bal.Sub(bal, amount))
}

// Credit adds amount to owner without touching supply. It is used to seed
// balances of externally issued collateral tokens.
func (b *Book) Credit(asset, owner common.Address, amount *big.Int) error {
	return b.mint(asset, owner, amount)
}
