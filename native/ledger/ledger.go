// Package ledger is the state of record of the credit system. It performs
// no business logic; every mutator keeps the aggregate counters in step
// with the per-user record that caused the change.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/state"
	nativecommon "ripe/native/common"
)

var (
	errNilState = errors.New("ledger: state not configured")
	// ErrNegativeDebt is returned when a write would drive an aggregate
	// below zero.
	ErrNegativeDebt = errors.New("ledger: debt underflow")
	errZeroUser     = errors.New("ledger: zero user")
)

const (
	debtPrefix      = "ledger/debt"
	totalDebtKey    = "ledger/total-debt"
	yieldKey        = "ledger/unrealized-yield"
	badDebtKey      = "ledger/bad-debt"
	buybackKey      = "ledger/buyback-ratio"
	intervalPrefix  = "ledger/interval"
	borrowersPrefix = "ledger/borrowers"
	userVaultPrefix = "ledger/user-vaults/"
	auctionPrefix   = "ledger/auction"
	userAuctions    = "ledger/user-auctions/"
	auctionUsers    = "ledger/auction-users"
)

// Ledger stores debt records, aggregates and registries.
type Ledger struct {
	st *state.Manager
}

// New constructs a ledger persisted through st.
func New(st *state.Manager) *Ledger {
	return &Ledger{st: st}
}

func (l *Ledger) getInt(key string) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilState
	}
	out := new(big.Int)
	ok, err := l.st.KVGet([]byte(key), out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return out, nil
}

func (l *Ledger) putInt(key string, value *big.Int) error {
	if value.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeDebt, key)
	}
	if err := state.CheckAmount(value); err != nil {
		return err
	}
	if value.Sign() == 0 {
		return l.st.KVDelete([]byte(key))
	}
	return l.st.KVPut([]byte(key), value)
}

func (l *Ledger) addInt(key string, delta *big.Int) error {
	current, err := l.getInt(key)
	if err != nil {
		return err
	}
	return l.putInt(key, current.Add(current, delta))
}

func debtKey(user common.Address) []byte {
	return state.Key(debtPrefix, user.Bytes())
}

// GetUserDebt returns the stored debt record of user. Users without debt
// receive a zeroed record.
func (l *Ledger) GetUserDebt(user common.Address) (UserDebt, error) {
	if l == nil || l.st == nil {
		return UserDebt{}, errNilState
	}
	var debt UserDebt
	ok, err := l.st.KVGet(debtKey(user), &debt)
	if err != nil {
		return UserDebt{}, err
	}
	if !ok {
		return UserDebt{Amount: big.NewInt(0), Principal: big.NewInt(0)}, nil
	}
	return debt.Clone(), nil
}

// SetUserDebt stores the record of user, applies the amount delta to the
// total debt, adds newYield to the unrealized yield and maintains the
// borrower registry. A zero amount destroys the record, including the
// liquidation flag.
func (l *Ledger) SetUserDebt(user common.Address, debt UserDebt, newYield *big.Int) error {
	if user == (common.Address{}) {
		return errZeroUser
	}
	debt = debt.Clone()
	if debt.Amount.Sign() < 0 || debt.Principal.Sign() < 0 {
		return ErrNegativeDebt
	}
	if err := state.CheckAmounts(debt.Amount, debt.Principal); err != nil {
		return err
	}
	prev, err := l.GetUserDebt(user)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(debt.Amount, prev.Amount)
	if err := l.addInt(totalDebtKey, delta); err != nil {
		return err
	}
	if !nativecommon.IsZero(newYield) {
		if err := l.addInt(yieldKey, newYield); err != nil {
			return err
		}
	}
	borrowers := state.NewIndexedSet(l.st, borrowersPrefix)
	if debt.Amount.Sign() == 0 {
		if _, err := borrowers.Remove(user.Bytes()); err != nil {
			return err
		}
		return l.st.KVDelete(debtKey(user))
	}
	if _, err := borrowers.Add(user.Bytes()); err != nil {
		return err
	}
	return l.st.KVPut(debtKey(user), debt)
}

// TotalDebt returns the sum of all user debt amounts.
func (l *Ledger) TotalDebt() (*big.Int, error) {
	return l.getInt(totalDebtKey)
}

// UnrealizedYield returns interest accrued but not yet distributed.
func (l *Ledger) UnrealizedYield() (*big.Int, error) {
	return l.getInt(yieldKey)
}

// AddUnrealizedYield increases the undistributed yield.
func (l *Ledger) AddUnrealizedYield(amount *big.Int) error {
	if nativecommon.IsZero(amount) {
		return nil
	}
	return l.addInt(yieldKey, amount)
}

// FlushUnrealizedYield zeroes and returns the undistributed yield.
func (l *Ledger) FlushUnrealizedYield() (*big.Int, error) {
	yield, err := l.UnrealizedYield()
	if err != nil {
		return nil, err
	}
	if yield.Sign() == 0 {
		return yield, nil
	}
	return yield, l.st.KVDelete([]byte(yieldKey))
}

// BadDebt returns debt written off after collateral ran out.
func (l *Ledger) BadDebt() (*big.Int, error) {
	return l.getInt(badDebtKey)
}

// AddBadDebt records amount as unrecoverable.
func (l *Ledger) AddBadDebt(amount *big.Int) error {
	if nativecommon.IsZero(amount) {
		return nil
	}
	return l.addInt(badDebtKey, amount)
}

// ClearBadDebt reduces bad debt by up to amount and returns the amount
// cleared.
func (l *Ledger) ClearBadDebt(amount *big.Int) (*big.Int, error) {
	current, err := l.BadDebt()
	if err != nil {
		return nil, err
	}
	cleared := nativecommon.Min(current, amount)
	return cleared, l.putInt(badDebtKey, current.Sub(current, cleared))
}

// BuybackRatio returns the stored buyback ratio and whether one was set.
func (l *Ledger) BuybackRatio() (uint64, bool, error) {
	var ratio uint64
	ok, err := l.st.KVGet([]byte(buybackKey), &ratio)
	return ratio, ok, err
}

// SetBuybackRatio stores the buyback ratio.
func (l *Ledger) SetBuybackRatio(ratio uint64) error {
	return l.st.KVPut([]byte(buybackKey), ratio)
}

// NumBorrowers returns the number of users with outstanding debt.
func (l *Ledger) NumBorrowers() (uint64, error) {
	return state.NewIndexedSet(l.st, borrowersPrefix).Len()
}

// IsBorrower reports whether user has outstanding debt.
func (l *Ledger) IsBorrower(user common.Address) (bool, error) {
	return state.NewIndexedSet(l.st, borrowersPrefix).Contains(user.Bytes())
}

// BorrowerAt returns the borrower at the 1-based index.
func (l *Ledger) BorrowerAt(index uint64) (common.Address, error) {
	raw, err := state.NewIndexedSet(l.st, borrowersPrefix).At(index)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

// Borrowers returns every borrower in registry order.
func (l *Ledger) Borrowers() ([]common.Address, error) {
	return addresses(state.NewIndexedSet(l.st, borrowersPrefix))
}

func addresses(set state.IndexedSet) ([]common.Address, error) {
	members, err := set.Members()
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(members))
	for i, raw := range members {
		out[i] = common.BytesToAddress(raw)
	}
	return out, nil
}

func vaultMember(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func (l *Ledger) userVaults(user common.Address) state.IndexedSet {
	return state.NewIndexedSet(l.st, userVaultPrefix+user.Hex())
}

// AddVaultToUser registers user as a participant of vault id.
func (l *Ledger) AddVaultToUser(user common.Address, id uint64) error {
	_, err := l.userVaults(user).Add(vaultMember(id))
	return err
}

// RemoveVaultFromUser drops vault id from user's participation list.
func (l *Ledger) RemoveVaultFromUser(user common.Address, id uint64) error {
	_, err := l.userVaults(user).Remove(vaultMember(id))
	return err
}

// IsParticipatingInVault reports whether user holds a position in vault id.
func (l *Ledger) IsParticipatingInVault(user common.Address, id uint64) (bool, error) {
	return l.userVaults(user).Contains(vaultMember(id))
}

// UserVaults returns the vault ids user participates in.
func (l *Ledger) UserVaults(user common.Address) ([]uint64, error) {
	members, err := l.userVaults(user).Members()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(members))
	for i, raw := range members {
		out[i] = binary.BigEndian.Uint64(raw)
	}
	return out, nil
}

// GetBorrowInterval returns the borrow window of user.
func (l *Ledger) GetBorrowInterval(user common.Address) (nativecommon.Interval, error) {
	var stored BorrowInterval
	ok, err := l.st.KVGet(state.Key(intervalPrefix, user.Bytes()), &stored)
	if err != nil {
		return nativecommon.Interval{}, err
	}
	if !ok {
		return nativecommon.Interval{Amount: big.NewInt(0)}, nil
	}
	return nativecommon.Interval{StartBlock: stored.StartBlock, Amount: amountOrZero(stored.Amount)}, nil
}

// SetBorrowInterval stores the borrow window of user.
func (l *Ledger) SetBorrowInterval(user common.Address, interval nativecommon.Interval) error {
	amount := amountOrZero(interval.Amount)
	if err := state.CheckAmount(amount); err != nil {
		return err
	}
	return l.st.KVPut(state.Key(intervalPrefix, user.Bytes()), BorrowInterval{StartBlock: interval.StartBlock, Amount: amount})
}
