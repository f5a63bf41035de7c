package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/types"
)

const (
	// TypeDeleverageAsset is emitted for every position consumed by the
	// deleverage waterfall.
	TypeDeleverageAsset = "deleverage.asset"
	// TypeDeleverageUser is emitted once per successful deleverage.
	TypeDeleverageUser = "deleverage.user"
)

// Deleverage actions.
const (
	ActionBurn      = "burn"
	ActionEndaoment = "endaoment"
	ActionSwap      = "swap"
)

type DeleverageAsset struct {
	User       common.Address
	VaultID    uint64
	Asset      common.Address
	Amount     *big.Int
	UsdValue   *big.Int
	Action     string
	IsDepleted bool
	Block      uint64
}

func (DeleverageAsset) EventType() string { return TypeDeleverageAsset }

func (e DeleverageAsset) Event() *types.Event {
	return &types.Event{
		Type:  TypeDeleverageAsset,
		Block: e.Block,
		Attributes: map[string]string{
			"user":       FormatAddress(e.User),
			"vaultId":    FormatUint(e.VaultID),
			"asset":      FormatAddress(e.Asset),
			"amount":     FormatAmount(e.Amount),
			"usdValue":   FormatAmount(e.UsdValue),
			"action":     e.Action,
			"isDepleted": FormatBool(e.IsDepleted),
		},
	}
}

type DeleverageUser struct {
	User   common.Address
	Caller common.Address
	Target *big.Int
	Repaid *big.Int
	Block  uint64
}

func (DeleverageUser) EventType() string { return TypeDeleverageUser }

func (e DeleverageUser) Event() *types.Event {
	return &types.Event{
		Type:  TypeDeleverageUser,
		Block: e.Block,
		Attributes: map[string]string{
			"user":   FormatAddress(e.User),
			"caller": FormatAddress(e.Caller),
			"target": FormatAmount(e.Target),
			"repaid": FormatAmount(e.Repaid),
		},
	}
}
