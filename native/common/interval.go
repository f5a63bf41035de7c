package common

import (
	"errors"
	"math/big"
)

var ErrIntervalLimitReached = errors.New("interval borrow limit reached")

// Interval captures the sliding borrow window for a single account. The window
// opens at StartBlock and spans the configured number of blocks.
type Interval struct {
	StartBlock uint64
	Amount     *big.Int
}

// IntervalLimit defines the maximum amount that may be drawn per window.
// A zero MaxPerInterval or zero Blocks disables the limit.
type IntervalLimit struct {
	MaxPerInterval *big.Int
	Blocks         uint64
}

func (l IntervalLimit) enabled() bool {
	return l.Blocks != 0 && l.MaxPerInterval != nil && l.MaxPerInterval.Sign() > 0
}

// current returns the window applicable at block, resetting it when the block
// falls outside the previous window.
func (l IntervalLimit) current(block uint64, prev Interval) Interval {
	if prev.Amount == nil || prev.Amount.Sign() == 0 || block >= prev.StartBlock+l.Blocks || block < prev.StartBlock {
		return Interval{StartBlock: block, Amount: big.NewInt(0)}
	}
	return Interval{StartBlock: prev.StartBlock, Amount: new(big.Int).Set(prev.Amount)}
}

// Available returns the amount still drawable in the window containing block.
// A nil result means the limit is disabled.
func (l IntervalLimit) Available(block uint64, prev Interval) *big.Int {
	if !l.enabled() {
		return nil
	}
	window := l.current(block, prev)
	if window.Amount.Cmp(l.MaxPerInterval) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(l.MaxPerInterval, window.Amount)
}

// CheckInterval adds amount to the window containing block. The returned
// Interval reflects the updated counters when the limit is not exceeded; on
// denial prev is returned unchanged.
func CheckInterval(l IntervalLimit, block uint64, prev Interval, amount *big.Int) (Interval, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	if !l.enabled() {
		if prev.Amount == nil {
			return Interval{StartBlock: block, Amount: new(big.Int).Set(amount)}, nil
		}
		return Interval{StartBlock: prev.StartBlock, Amount: new(big.Int).Add(prev.Amount, amount)}, nil
	}
	next := l.current(block, prev)
	next.Amount.Add(next.Amount, amount)
	if next.Amount.Cmp(l.MaxPerInterval) > 0 {
		return prev, ErrIntervalLimitReached
	}
	return next, nil
}
