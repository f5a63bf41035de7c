package server

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"ripe/native/auction"
	nativecommon "ripe/native/common"
	"ripe/native/credit"
	"ripe/native/deleverage"
	"ripe/native/teller"
	"ripe/services/creditd/auth"
)

// mutation decodes the body into req and resolves the caller. It writes
// the error response itself and reports whether the handler should go on.
func (s *Server) mutation(w http.ResponseWriter, r *http.Request, req any) (common.Address, bool) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return common.Address{}, false
	}
	if err := decodeBody(w, r, req); err != nil {
		s.fail(w, r, err)
		return common.Address{}, false
	}
	return caller, true
}

type borrowRequest struct {
	User         string `json:"user"`
	Amount       string `json:"amount"`
	WantsSavings bool   `json:"wantsSavings"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	user, err := optionalAddress("user", req.User, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	forUser, err := s.teller.Borrow(r.Context(), caller, user, amount, req.WantsSavings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.Hex(), "received": formatAmount(forUser)})
}

type repayRequest struct {
	User            string `json:"user"`
	Amount          string `json:"amount"`
	PaysWithSavings bool   `json:"paysWithSavings"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	user, err := optionalAddress("user", req.User, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	repaid, err := s.teller.Repay(r.Context(), caller, user, amount, req.PaysWithSavings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.Hex(), "repaid": formatAmount(repaid)})
}

type redeemRequest struct {
	Positions       []positionRef `json:"positions"`
	GreenAmount     string        `json:"greenAmount"`
	MaxRedemptions  int           `json:"maxRedemptions"`
	PaysWithSavings bool          `json:"paysWithSavings"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	if len(req.Positions) == 0 {
		s.fail(w, r, errBadRequest)
		return
	}
	green, err := parseAmount("greenAmount", req.GreenAmount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reqs := make([]credit.RedeemRequest, 0, len(req.Positions))
	for _, p := range req.Positions {
		rr, err := p.redeem()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		reqs = append(reqs, rr)
	}
	var spent *big.Int
	if len(reqs) == 1 {
		spent, err = s.teller.RedeemCollateral(r.Context(), caller, reqs[0], green, req.PaysWithSavings)
	} else {
		limit := req.MaxRedemptions
		if limit <= 0 {
			limit = len(reqs)
		}
		spent, err = s.teller.RedeemCollateralFromMany(r.Context(), caller, reqs, green, limit, req.PaysWithSavings)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"greenSpent": formatAmount(spent)})
}

type liquidateRequest struct {
	Users []string `json:"users"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	if len(req.Users) == 0 {
		s.fail(w, r, errBadRequest)
		return
	}
	users := make([]common.Address, 0, len(req.Users))
	for _, raw := range req.Users {
		user, err := parseAddress("users", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		users = append(users, user)
	}
	var (
		fee   *big.Int
		count int
		err   error
	)
	if len(users) == 1 {
		fee, err = s.teller.LiquidateUser(r.Context(), caller, users[0])
		count = 1
	} else {
		fee, count, err = s.teller.LiquidateManyUsers(r.Context(), caller, users)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keeperFee": formatAmount(fee), "liquidated": count})
}

type deleverageAsset struct {
	VaultID uint64 `json:"vaultId"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type deleverageRequest struct {
	User   string            `json:"user"`
	Target string            `json:"target"`
	Assets []deleverageAsset `json:"assets"`
}

func (s *Server) handleDeleverage(w http.ResponseWriter, r *http.Request) {
	var req deleverageRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var repaid *big.Int
	if len(req.Assets) > 0 {
		targets := make([]deleverage.AssetTarget, 0, len(req.Assets))
		for _, a := range req.Assets {
			asset, err := parseAddress("asset", a.Asset)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			amount, err := optionalAmount("amount", a.Amount)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			targets = append(targets, deleverage.AssetTarget{VaultID: a.VaultID, Asset: asset, Amount: amount})
		}
		repaid, err = s.teller.DeleverageWithSpecificAssets(r.Context(), caller, user, targets)
	} else {
		target, perr := optionalAmount("target", req.Target)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		repaid, err = s.teller.DeleverageUser(r.Context(), caller, user, target)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.Hex(), "repaid": formatAmount(repaid)})
}

type custodyRequest struct {
	User       string `json:"user"`
	VaultID    uint64 `json:"vaultId"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Deleverage bool   `json:"deleverage,omitempty"`
}

func (c custodyRequest) resolve(caller common.Address) (teller.CustodyRequest, error) {
	user, err := optionalAddress("user", c.User, caller)
	if err != nil {
		return teller.CustodyRequest{}, err
	}
	asset, err := parseAddress("asset", c.Asset)
	if err != nil {
		return teller.CustodyRequest{}, err
	}
	amount, err := parseAmount("amount", c.Amount)
	if err != nil {
		return teller.CustodyRequest{}, err
	}
	return teller.CustodyRequest{User: user, VaultID: c.VaultID, Asset: asset, Amount: amount}, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	cr, err := req.resolve(caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deposited, err := s.teller.Deposit(r.Context(), caller, cr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(deposited)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	cr, err := req.resolve(caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var taken *big.Int
	if req.Deleverage {
		taken, err = s.teller.WithdrawWithDeleverage(r.Context(), caller, cr)
	} else {
		taken, err = s.teller.Withdraw(r.Context(), caller, cr)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(taken)})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	cr, err := req.resolve(caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	claimed, err := s.teller.ClaimFromStabilityPool(r.Context(), caller, cr.User, cr.VaultID, cr.Asset, cr.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(claimed)})
}

type permissionsBody struct {
	CanBorrow   bool `json:"canBorrow"`
	CanWithdraw bool `json:"canWithdraw"`
	CanClaim    bool `json:"canClaim"`
}

type delegateRequest struct {
	Delegate string `json:"delegate"`
	permissionsBody
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	delegate, err := parseAddress("delegate", req.Delegate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perms := teller.Permissions{CanBorrow: req.CanBorrow, CanWithdraw: req.CanWithdraw, CanClaim: req.CanClaim}
	if err := s.teller.SetDelegate(r.Context(), caller, caller, delegate, perms); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req.permissionsBody)
}

type userRequest struct {
	User string `json:"user"`
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.teller.UpdateDebtForUser(r.Context(), caller, user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

type auctionsRequest struct {
	Targets []positionRef `json:"targets"`
}

func (req auctionsRequest) resolve() ([]auction.Target, error) {
	if len(req.Targets) == 0 {
		return nil, errBadRequest
	}
	out := make([]auction.Target, 0, len(req.Targets))
	for _, p := range req.Targets {
		target, err := p.target()
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func (s *Server) handleStartAuctions(w http.ResponseWriter, r *http.Request) {
	var req auctionsRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	targets, err := req.resolve()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	count := 0
	if len(targets) == 1 {
		var started bool
		started, err = s.teller.StartAuction(r.Context(), caller, targets[0])
		if started {
			count = 1
		}
	} else {
		count, err = s.teller.StartManyAuctions(r.Context(), caller, targets)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"started": count})
}

func (s *Server) handlePauseAuctions(w http.ResponseWriter, r *http.Request) {
	var req auctionsRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	targets, err := req.resolve()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	count := 0
	if len(targets) == 1 {
		var paused bool
		paused, err = s.teller.PauseAuction(r.Context(), caller, targets[0])
		if paused {
			count = 1
		}
	} else {
		count, err = s.teller.PauseManyAuctions(r.Context(), caller, targets)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"paused": count})
}

type buyRequest struct {
	Target      positionRef `json:"target"`
	GreenAmount string      `json:"greenAmount"`
}

func (s *Server) handleBuyAuction(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	target, err := req.Target.target()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	green, err := parseAmount("greenAmount", req.GreenAmount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	received, err := s.teller.BuyFungibleAuction(r.Context(), caller, target, green)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"collateral": formatAmount(received)})
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.teller.SetPrice(r.Context(), caller, asset, price); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fundRequest struct {
	Asset  string `json:"asset"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.teller.Fund(r.Context(), caller, asset, owner, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockRequest struct {
	Height uint64 `json:"height"`
}

func (s *Server) handleAdvanceBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	if !s.teller.IsTrusted(caller) {
		s.fail(w, r, teller.ErrNoPerms)
		return
	}
	if err := s.teller.AdvanceBlock(req.Height); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block": s.teller.Block()})
}

type pausesRequest struct {
	Paused []string `json:"paused"`
}

func (s *Server) handleSetPauses(w http.ResponseWriter, r *http.Request) {
	var req pausesRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	if !s.teller.IsTrusted(caller) {
		s.fail(w, r, teller.ErrNoPerms)
		return
	}
	pauses := make(nativecommon.Pauses, len(req.Paused))
	for _, module := range req.Paused {
		pauses[module] = true
	}
	s.teller.SetPauses(pauses)
	s.logger.Info("creditd: pause switches updated", "caller", caller.Hex(), "paused", req.Paused)
	writeJSON(w, http.StatusOK, req)
}

type buybackRequest struct {
	Ratio uint64 `json:"ratio"`
}

func (s *Server) handleBuybackRatio(w http.ResponseWriter, r *http.Request) {
	var req buybackRequest
	caller, ok := s.mutation(w, r, &req)
	if !ok {
		return
	}
	if err := s.teller.SetBuybackRatio(r.Context(), caller, req.Ratio); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
