package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Quote captures the USD price of one whole unit of an asset (18 decimal
// fixed point) together with the block it was observed at.
type Quote struct {
	Price  *big.Int
	Block  uint64
	Source string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Block: q.Block, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Source resolves a price for an asset.
type Source interface {
	Quote(asset common.Address) (Quote, error)
}

var (
	// ErrNoFreshQuote indicates that no source produced a quote within the
	// configured staleness window.
	ErrNoFreshQuote = errors.New("oracle: no fresh quote available")
	// ErrUnknownAsset is returned for assets without registered decimals.
	ErrUnknownAsset = errors.New("oracle: unknown asset")
)

// Aggregator consults registered sources in priority order until a fresh
// quote is obtained. Conversions never fail: an unavailable price converts
// to zero.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	decimals map[common.Address]uint8
	maxAge   uint64
	block    uint64
}

// NewAggregator constructs an aggregator with the given source priority and
// staleness window in blocks. A zero window disables the staleness check.
func NewAggregator(priority []string, maxAge uint64) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]Source),
		decimals: make(map[common.Address]uint8),
		maxAge:   maxAge,
	}
}

// Register adds or replaces a source under name. Unknown names are appended
// to the priority list.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// SetDecimals records the token decimals used when converting amounts.
func (a *Aggregator) SetDecimals(asset common.Address, decimals uint8) {
	a.mu.Lock()
	a.decimals[asset] = decimals
	a.mu.Unlock()
}

// SetBlock records the current block height used for staleness checks.
func (a *Aggregator) SetBlock(height uint64) {
	a.mu.Lock()
	a.block = height
	a.mu.Unlock()
}

// Price returns the freshest quote for asset following the priority order.
func (a *Aggregator) Price(asset common.Address) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	block := a.block
	a.mu.RUnlock()

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[strings.ToLower(name)]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.Quote(asset)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && block > quote.Block && block-quote.Block > maxAge {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

func (a *Aggregator) unit(asset common.Address) (*big.Int, error) {
	a.mu.RLock()
	decimals, ok := a.decimals[asset]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAsset
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil), nil
}

// GetUsdValue converts amount of asset into USD. Any failure yields zero.
func (a *Aggregator) GetUsdValue(asset common.Address, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	quote, err := a.Price(asset)
	if err != nil {
		return big.NewInt(0)
	}
	unit, err := a.unit(asset)
	if err != nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, quote.Price)
	return out.Quo(out, unit)
}

// GetAssetAmount converts a USD value into units of asset. Any failure
// yields zero.
func (a *Aggregator) GetAssetAmount(asset common.Address, usd *big.Int) *big.Int {
	if usd == nil || usd.Sign() <= 0 {
		return big.NewInt(0)
	}
	quote, err := a.Price(asset)
	if err != nil {
		return big.NewInt(0)
	}
	unit, err := a.unit(asset)
	if err != nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(usd, unit)
	return out.Quo(out, quote.Price)
}

// ManualSource provides an in-memory source used for tests and manual
// overrides during incident response.
type ManualSource struct {
	mu     sync.RWMutex
	quotes map[common.Address]Quote
}

// NewManualSource constructs an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{quotes: make(map[common.Address]Quote)}
}

// Set stores price for asset as observed at block.
func (m *ManualSource) Set(asset common.Address, price *big.Int, block uint64) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.quotes[asset] = Quote{Price: new(big.Int).Set(price), Block: block, Source: "manual"}
	m.mu.Unlock()
}

// Clear removes any stored price for asset.
func (m *ManualSource) Clear(asset common.Address) {
	m.mu.Lock()
	delete(m.quotes, asset)
	m.mu.Unlock()
}

// Quote retrieves the stored price for asset.
func (m *ManualSource) Quote(asset common.Address) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual source not configured")
	}
	m.mu.RLock()
	stored, ok := m.quotes[asset]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("manual source: no price for %s", asset.Hex())
	}
	return stored.Clone(), nil
}
