package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ripe/core/types"
)

const (
	// TypeCreditBorrow is emitted when new debt is minted to a borrower.
	TypeCreditBorrow = "credit.borrow"
	// TypeCreditRepay is emitted when debt is repaid.
	TypeCreditRepay = "credit.repay"
	// TypeCreditRedeem is emitted when collateral is redeemed against debt.
	TypeCreditRedeem = "credit.redeem"
	// TypeCreditLiquidate is emitted after a liquidation completes.
	TypeCreditLiquidate = "credit.liquidate"
	// TypeCreditDebtUpdated is emitted when accrued interest is persisted.
	TypeCreditDebtUpdated = "credit.debt_updated"
	// TypeCreditBuybackRatio is emitted when the revenue split changes.
	TypeCreditBuybackRatio = "credit.buyback_ratio"
	// TypeCreditRevenue is emitted when daowry and yield are distributed.
	TypeCreditRevenue = "credit.revenue"
)

type CreditBorrow struct {
	User         common.Address
	Amount       *big.Int
	ForUser      *big.Int
	Daowry       *big.Int
	WantsSavings bool
	Block        uint64
}

func (CreditBorrow) EventType() string { return TypeCreditBorrow }

func (e CreditBorrow) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditBorrow,
		Block: e.Block,
		Attributes: map[string]string{
			"user":         FormatAddress(e.User),
			"amount":       FormatAmount(e.Amount),
			"forUser":      FormatAmount(e.ForUser),
			"daowry":       FormatAmount(e.Daowry),
			"wantsSavings": FormatBool(e.WantsSavings),
		},
	}
}

type CreditRepay struct {
	Payer             common.Address
	User              common.Address
	Amount            *big.Int
	RemainingDebt     *big.Int
	PaidWithSavings   bool
	ExitedLiquidation bool
	Block             uint64
}

func (CreditRepay) EventType() string { return TypeCreditRepay }

func (e CreditRepay) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditRepay,
		Block: e.Block,
		Attributes: map[string]string{
			"payer":             FormatAddress(e.Payer),
			"user":              FormatAddress(e.User),
			"amount":            FormatAmount(e.Amount),
			"remainingDebt":     FormatAmount(e.RemainingDebt),
			"paidWithSavings":   FormatBool(e.PaidWithSavings),
			"exitedLiquidation": FormatBool(e.ExitedLiquidation),
		},
	}
}

type CreditRedeem struct {
	Redeemer      common.Address
	User          common.Address
	VaultID       uint64
	Asset         common.Address
	AssetAmount   *big.Int
	Repaid        *big.Int
	RemainingDebt *big.Int
	Block         uint64
}

func (CreditRedeem) EventType() string { return TypeCreditRedeem }

func (e CreditRedeem) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditRedeem,
		Block: e.Block,
		Attributes: map[string]string{
			"redeemer":      FormatAddress(e.Redeemer),
			"user":          FormatAddress(e.User),
			"vaultId":       FormatUint(e.VaultID),
			"asset":         FormatAddress(e.Asset),
			"assetAmount":   FormatAmount(e.AssetAmount),
			"repaid":        FormatAmount(e.Repaid),
			"remainingDebt": FormatAmount(e.RemainingDebt),
		},
	}
}

type CreditLiquidate struct {
	User            common.Address
	Keeper          common.Address
	TargetRepay     *big.Int
	Repaid          *big.Int
	LiqFee          *big.Int
	KeeperFee       *big.Int
	BadDebt         *big.Int
	InLiquidation   bool
	AuctionsStarted uint64
	Block           uint64
}

func (CreditLiquidate) EventType() string { return TypeCreditLiquidate }

func (e CreditLiquidate) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditLiquidate,
		Block: e.Block,
		Attributes: map[string]string{
			"user":            FormatAddress(e.User),
			"keeper":          FormatAddress(e.Keeper),
			"targetRepay":     FormatAmount(e.TargetRepay),
			"repaid":          FormatAmount(e.Repaid),
			"liqFee":          FormatAmount(e.LiqFee),
			"keeperFee":       FormatAmount(e.KeeperFee),
			"badDebt":         FormatAmount(e.BadDebt),
			"inLiquidation":   FormatBool(e.InLiquidation),
			"auctionsStarted": FormatUint(e.AuctionsStarted),
		},
	}
}

type CreditDebtUpdated struct {
	User        common.Address
	Amount      *big.Int
	NewInterest *big.Int
	Block       uint64
}

func (CreditDebtUpdated) EventType() string { return TypeCreditDebtUpdated }

func (e CreditDebtUpdated) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditDebtUpdated,
		Block: e.Block,
		Attributes: map[string]string{
			"user":        FormatAddress(e.User),
			"amount":      FormatAmount(e.Amount),
			"newInterest": FormatAmount(e.NewInterest),
		},
	}
}

type CreditBuybackRatio struct {
	Caller common.Address
	Ratio  uint64
	Block  uint64
}

func (CreditBuybackRatio) EventType() string { return TypeCreditBuybackRatio }

func (e CreditBuybackRatio) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditBuybackRatio,
		Block: e.Block,
		Attributes: map[string]string{
			"caller": FormatAddress(e.Caller),
			"ratio":  FormatUint(e.Ratio),
		},
	}
}

type CreditRevenue struct {
	Daowry     *big.Int
	Yield      *big.Int
	Governance *big.Int
	Savings    *big.Int
	Block      uint64
}

func (CreditRevenue) EventType() string { return TypeCreditRevenue }

func (e CreditRevenue) Event() *types.Event {
	return &types.Event{
		Type:  TypeCreditRevenue,
		Block: e.Block,
		Attributes: map[string]string{
			"daowry":     FormatAmount(e.Daowry),
			"yield":      FormatAmount(e.Yield),
			"governance": FormatAmount(e.Governance),
			"savings":    FormatAmount(e.Savings),
		},
	}
}
