package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/auction"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/mission"
	"ripe/native/teller"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s is not an address", errBadRequest, field)
	}
	return common.HexToAddress(raw), nil
}

// optionalAddress falls back to def when raw is empty.
func optionalAddress(field, raw string, def common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative base-10 integer", errBadRequest, field)
	}
	return value, nil
}

func optionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, raw)
}

func parseUint(field, raw string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, field)
	}
	return v, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type positionRef struct {
	User    string `json:"user"`
	VaultID uint64 `json:"vaultId"`
	Asset   string `json:"asset"`
}

func (p positionRef) target() (auction.Target, error) {
	user, err := parseAddress("user", p.User)
	if err != nil {
		return auction.Target{}, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return auction.Target{}, err
	}
	return auction.Target{User: user, VaultID: p.VaultID, Asset: asset}, nil
}

func (p positionRef) redeem() (credit.RedeemRequest, error) {
	target, err := p.target()
	if err != nil {
		return credit.RedeemRequest{}, err
	}
	return credit.RedeemRequest{User: target.User, VaultID: target.VaultID, Asset: target.Asset}, nil
}

type termsBody struct {
	Ltv                 uint64 `json:"ltv"`
	RedemptionThreshold uint64 `json:"redemptionThreshold"`
	LiqThreshold        uint64 `json:"liqThreshold"`
	LiqFee              uint64 `json:"liqFee"`
	BorrowRate          uint64 `json:"borrowRate"`
	Daowry              uint64 `json:"daowry"`
}

func termsFrom(t mission.DebtTerms) termsBody {
	return termsBody{
		Ltv:                 t.Ltv,
		RedemptionThreshold: t.RedemptionThreshold,
		LiqThreshold:        t.LiqThreshold,
		LiqFee:              t.LiqFee,
		BorrowRate:          t.BorrowRate,
		Daowry:              t.Daowry,
	}
}

type debtBody struct {
	User            string    `json:"user"`
	Amount          string    `json:"amount"`
	Principal       string    `json:"principal"`
	NewInterest     string    `json:"newInterest"`
	CollateralValue string    `json:"collateralValue"`
	TotalMaxDebt    string    `json:"totalMaxDebt"`
	AvailableBorrow string    `json:"availableBorrow"`
	Terms           termsBody `json:"terms"`
	InLiquidation   bool      `json:"inLiquidation"`
	CanLiquidate    bool      `json:"canLiquidate"`
	CanRedeem       bool      `json:"canRedeem"`
	GoodDebtHealth  bool      `json:"goodDebtHealth"`
	LastBlock       uint64    `json:"lastBlock"`
}

func debtFrom(user common.Address, s credit.DebtSummary) debtBody {
	return debtBody{
		User:            user.Hex(),
		Amount:          formatAmount(s.Amount),
		Principal:       formatAmount(s.Principal),
		NewInterest:     formatAmount(s.NewInterest),
		CollateralValue: formatAmount(s.CollateralVal),
		TotalMaxDebt:    formatAmount(s.TotalMaxDebt),
		AvailableBorrow: formatAmount(s.AvailableBorrow),
		Terms:           termsFrom(s.Terms),
		InLiquidation:   s.InLiquidation,
		CanLiquidate:    s.CanLiquidate,
		CanRedeem:       s.CanRedeem,
		GoodDebtHealth:  s.GoodDebtHealth,
		LastBlock:       s.LastBlock,
	}
}

type healthBody struct {
	User            string `json:"user"`
	Debt            string `json:"debt"`
	CollateralValue string `json:"collateralValue"`
	InLiquidation   bool   `json:"inLiquidation"`
	CanLiquidate    bool   `json:"canLiquidate"`
	CanRedeem       bool   `json:"canRedeem"`
	GoodDebtHealth  bool   `json:"goodDebtHealth"`
}

type auctionBody struct {
	User       string `json:"user"`
	VaultID    uint64 `json:"vaultId"`
	Asset      string `json:"asset"`
	StartBlock uint64 `json:"startBlock"`
	Active     bool   `json:"active"`
	Discount   uint64 `json:"discount"`
	Live       bool   `json:"live"`
}

func auctionFrom(v teller.AuctionView) auctionBody {
	return auctionBody{
		User:       v.LiqUser.Hex(),
		VaultID:    v.VaultID,
		Asset:      v.Asset.Hex(),
		StartBlock: v.StartBlock,
		Active:     v.IsActive,
		Discount:   v.Discount,
		Live:       v.Live,
	}
}

type totalsBody struct {
	TotalDebt       string `json:"totalDebt"`
	UnrealizedYield string `json:"unrealizedYield"`
	BadDebt         string `json:"badDebt"`
	NumBorrowers    uint64 `json:"numBorrowers"`
	ActiveAuctions  int    `json:"activeAuctions"`
	Block           uint64 `json:"block"`
}

type amountBody struct {
	Amount string `json:"amount"`
}

type deleverageInfoBody struct {
	MaxDeleverageUsd string `json:"maxDeleverageUsd"`
	EffectiveLtv     uint64 `json:"effectiveLtv"`
}

func deleverageInfoFrom(info deleverage.Info) deleverageInfoBody {
	return deleverageInfoBody{MaxDeleverageUsd: formatAmount(info.MaxDeleverageUsd), EffectiveLtv: info.EffectiveLtv}
}
