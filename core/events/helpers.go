package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// FormatAmount renders an amount attribute, mapping nil to "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatAddress renders an address attribute in checksummed hex.
func FormatAddress(addr common.Address) string {
	return addr.Hex()
}

// FormatUint renders an unsigned integer attribute.
func FormatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// FormatBool renders a boolean attribute.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}
