package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "ripe/native/common"
)

// SeedPrices parses the configured price seeds into runtime values.
func (p ProtocolConfig) SeedPrices() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(p.Prices))
	for key, raw := range p.Prices {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid protocol.prices key %q", key)
		}
		price, err := parseUintAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid protocol.prices[%s]: %w", key, err)
		}
		if price.Sign() == 0 {
			return nil, fmt.Errorf("invalid protocol.prices[%s]: must be positive", key)
		}
		out[common.HexToAddress(key)] = price
	}
	return out, nil
}

// PauseSet returns the configured pause switches.
func (p ProtocolConfig) PauseSet() nativecommon.Pauses {
	out := make(nativecommon.Pauses, len(p.Pauses))
	for _, module := range p.Pauses {
		out[module] = true
	}
	return out
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return value, nil
}
