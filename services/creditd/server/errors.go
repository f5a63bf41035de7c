package server

import (
	"errors"
	"net/http"

	"ripe/native/auction"
	nativecommon "ripe/native/common"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/oracle"
	"ripe/native/savings"
	"ripe/native/teller"
	"ripe/native/token"
	"ripe/native/vault"
	"ripe/services/creditd/auth"
)

var errBadRequest = errors.New("bad request")

type errorClass struct {
	status int
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, []error{auth.ErrNoCaller}},
	{http.StatusForbidden, []error{
		teller.ErrNoPerms, credit.ErrNoPerms, deleverage.ErrNoPerms, auction.ErrNoPerms,
	}},
	{http.StatusLocked, []error{
		nativecommon.ErrModulePaused, credit.ErrContractPaused, deleverage.ErrContractPaused, auction.ErrContractPaused,
	}},
	{http.StatusBadRequest, []error{
		errBadRequest,
		teller.ErrInvalidUser, teller.ErrInvalidAmount,
		credit.ErrInvalidUser, credit.ErrInvalidAmount, credit.ErrInvalidBuybackRatio,
		deleverage.ErrInvalidUser,
		auction.ErrInvalidUser, auction.ErrInvalidAmount,
		vault.ErrUnknownVault, oracle.ErrUnknownAsset,
	}},
	{http.StatusUnprocessableEntity, []error{
		credit.ErrNoDebtAvailable, credit.ErrPerUserDebtLimit, credit.ErrGlobalDebtLimit,
		credit.ErrIntervalLimit, credit.ErrDebtTooSmall, credit.ErrNothingRedeemed,
		auction.ErrNothingToBuy, teller.ErrCannotWithdrawAnything,
		token.ErrInsufficientBalance, vault.ErrInsufficientLiquidity, vault.ErrNoClaimable,
		savings.ErrZeroShares,
	}},
	{http.StatusConflict, []error{
		credit.ErrBorrowNotEnabled, credit.ErrRedeemNotEnabled, credit.ErrLiquidateNotEnabled,
		credit.ErrMaxNumBorrowers, credit.ErrInLiquidation, credit.ErrNoDebt,
		credit.ErrCannotRedeem, credit.ErrAssetNotRedeemable,
		credit.ErrCannotLiquidate, credit.ErrCannotLiquidateSelf, credit.ErrCannotPayWithSavings,
		deleverage.ErrCannotDeleverage,
		auction.ErrCannotBuy, auction.ErrNoAuction, auction.ErrNotStarted, auction.ErrNotInLiquidation,
		teller.ErrDepositsDisabled, teller.ErrWithdrawalsDisabled, teller.ErrVaultAssetMismatch,
	}},
	{http.StatusServiceUnavailable, []error{oracle.ErrNoFreshQuote}},
}

// statusFor maps a protocol error to its HTTP status.
func statusFor(err error) int {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status
			}
		}
	}
	return http.StatusInternalServerError
}
