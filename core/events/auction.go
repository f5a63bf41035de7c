package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/types"
)

const (
	TypeAuctionStarted = "auction.started"
	TypeAuctionPaused  = "auction.paused"
	TypeAuctionBought  = "auction.bought"
)

type AuctionStarted struct {
	User       common.Address
	VaultID    uint64
	Asset      common.Address
	StartBlock uint64
	Restarted  bool
	Block      uint64
}

func (AuctionStarted) EventType() string { return TypeAuctionStarted }

func (e AuctionStarted) Event() *types.Event {
	return &types.Event{
		Type:  TypeAuctionStarted,
		Block: e.Block,
		Attributes: map[string]string{
			"user":       FormatAddress(e.User),
			"vaultId":    FormatUint(e.VaultID),
			"asset":      FormatAddress(e.Asset),
			"startBlock": FormatUint(e.StartBlock),
			"restarted":  FormatBool(e.Restarted),
		},
	}
}

type AuctionPaused struct {
	User    common.Address
	VaultID uint64
	Asset   common.Address
	Block   uint64
}

func (AuctionPaused) EventType() string { return TypeAuctionPaused }

func (e AuctionPaused) Event() *types.Event {
	return &types.Event{
		Type:  TypeAuctionPaused,
		Block: e.Block,
		Attributes: map[string]string{
			"user":    FormatAddress(e.User),
			"vaultId": FormatUint(e.VaultID),
			"asset":   FormatAddress(e.Asset),
		},
	}
}

type AuctionBought struct {
	Buyer       common.Address
	User        common.Address
	VaultID     uint64
	Asset       common.Address
	GreenPaid   *big.Int
	AssetAmount *big.Int
	Discount    uint64
	IsDepleted  bool
	Block       uint64
}

func (AuctionBought) EventType() string { return TypeAuctionBought }

func (e AuctionBought) Event() *types.Event {
	return &types.Event{
		Type:  TypeAuctionBought,
		Block: e.Block,
		Attributes: map[string]string{
			"buyer":       FormatAddress(e.Buyer),
			"user":        FormatAddress(e.User),
			"vaultId":     FormatUint(e.VaultID),
			"asset":       FormatAddress(e.Asset),
			"greenPaid":   FormatAmount(e.GreenPaid),
			"assetAmount": FormatAmount(e.AssetAmount),
			"discount":    FormatUint(e.Discount),
			"isDepleted":  FormatBool(e.IsDepleted),
		},
	}
}
