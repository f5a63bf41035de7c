package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ripe/services/creditd/journal"
)

func (s *Server) handleDebt(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.teller.GetDebtSummary(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debtFrom(user, summary))
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bt, err := s.teller.GetUserBorrowTerms(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":            user.Hex(),
		"collateralValue": formatAmount(bt.CollateralVal),
		"totalMaxDebt":    formatAmount(bt.TotalMaxDebt),
		"terms":           termsFrom(bt.Terms),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.teller.GetDebtSummary(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthBody{
		User:            user.Hex(),
		Debt:            formatAmount(summary.Amount),
		CollateralValue: formatAmount(summary.CollateralVal),
		InLiquidation:   summary.InLiquidation,
		CanLiquidate:    summary.CanLiquidate,
		CanRedeem:       summary.CanRedeem,
		GoodDebtHealth:  summary.GoodDebtHealth,
	})
}

func (s *Server) handleMaxBorrow(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.teller.GetMaxBorrowAmount(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(amount)})
}

func (s *Server) positionQuery(r *http.Request) (positionRef, error) {
	q := r.URL.Query()
	vaultID, err := parseUint("vault", q.Get("vault"))
	if err != nil {
		return positionRef{}, err
	}
	return positionRef{User: q.Get("user"), VaultID: vaultID, Asset: q.Get("asset")}, nil
}

func (s *Server) handleMaxWithdraw(w http.ResponseWriter, r *http.Request) {
	ref, err := s.positionQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	target, err := ref.target()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.teller.GetMaxWithdrawableForAsset(r.Context(), target.User, target.VaultID, target.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(amount)})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	ref, err := s.positionQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	target, err := ref.target()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.teller.Position(r.Context(), target.User, target.VaultID, target.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(amount)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress("asset", r.URL.Query().Get("asset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.teller.Balance(r.Context(), asset, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountBody{Amount: formatAmount(amount)})
}

func (s *Server) handleDeleverageInfo(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	info, err := s.teller.GetDeleverageInfo(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleverageInfoFrom(info))
}

func (s *Server) handleUserAuctions(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.teller.UserAuctions(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]auctionBody, 0, len(views))
	for _, v := range views {
		out = append(out, auctionFrom(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	ref, err := s.positionQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	target, err := ref.target()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, ok, err := s.teller.GetAuction(r.Context(), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "auction not found"})
		return
	}
	writeJSON(w, http.StatusOK, auctionFrom(view))
}

func (s *Server) handleDelegation(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	delegate, err := parseAddress("delegate", chi.URLParam(r, "delegate"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perms, err := s.teller.Delegation(r.Context(), owner, delegate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsBody{CanBorrow: perms.CanBorrow, CanWithdraw: perms.CanWithdraw, CanClaim: perms.CanClaim})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.teller.Totals(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalsBody{
		TotalDebt:       formatAmount(totals.TotalDebt),
		UnrealizedYield: formatAmount(totals.UnrealizedYield),
		BadDebt:         formatAmount(totals.BadDebt),
		NumBorrowers:    totals.NumBorrowers,
		ActiveAuctions:  totals.ActiveAuctions,
		Block:           totals.Block,
	})
}

type eventBody struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Block      uint64            `json:"block"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "journal disabled"})
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{Type: q.Get("type")}
	if raw := q.Get("after"); raw != "" {
		after, err := parseUint("after", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.AfterID = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.fail(w, r, errBadRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("user"); raw != "" {
		user, err := parseAddress("user", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.User = user.Hex()
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]eventBody, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, eventBody{ID: rec.ID, Type: evt.Type, Block: evt.Block, Attributes: evt.Attributes})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
