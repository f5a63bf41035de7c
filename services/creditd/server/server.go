// Package server exposes the teller over JSON/HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ripe/native/teller"
	"ripe/observability"
	"ripe/services/creditd/auth"
	"ripe/services/creditd/journal"
	creditmw "ripe/services/creditd/middleware"
	"ripe/services/creditd/stream"
)

// Config captures the dependencies of the server.
type Config struct {
	Teller   *teller.Teller
	Journal  *journal.Journal
	Hub      *stream.Hub
	Verifier *auth.Verifier
	Limiter  *creditmw.RateLimiter
	Metrics  *observability.CreditMetricsSet
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// Ready reports whether dependencies are healthy. Nil means always.
	Ready func(context.Context) error
}

// Server routes HTTP requests to the teller.
type Server struct {
	teller   *teller.Teller
	journal  *journal.Journal
	hub      *stream.Hub
	verifier *auth.Verifier
	limiter  *creditmw.RateLimiter
	metrics  *observability.CreditMetricsSet
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	ready    func(context.Context) error

	router http.Handler
}

// New constructs the router.
func New(cfg Config) *Server {
	s := &Server{
		teller:   cfg.Teller,
		journal:  cfg.Journal,
		hub:      cfg.Hub,
		verifier: cfg.Verifier,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
		ready:    cfg.Ready,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.router = otelhttp.NewHandler(s.buildRouter(), "creditd")
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(creditmw.RequestID)
	r.Use(creditmw.AccessLog(s.logger, s.metrics, routePattern))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)

		api.Get("/debt/{user}", s.handleDebt)
		api.Get("/terms/{user}", s.handleTerms)
		api.Get("/health/{user}", s.handleHealth)
		api.Get("/max-borrow/{user}", s.handleMaxBorrow)
		api.Get("/max-withdraw", s.handleMaxWithdraw)
		api.Get("/deleverage/{user}", s.handleDeleverageInfo)
		api.Get("/auctions/{user}", s.handleUserAuctions)
		api.Get("/auction", s.handleAuction)
		api.Get("/position", s.handlePosition)
		api.Get("/balance/{owner}", s.handleBalance)
		api.Get("/delegation/{owner}/{delegate}", s.handleDelegation)
		api.Get("/totals", s.handleTotals)
		api.Get("/events", s.handleEvents)
		if s.hub != nil {
			api.Get("/events/ws", s.hub.ServeWS)
		}

		api.Group(func(w chi.Router) {
			w.Use(s.verifier.Middleware)
			w.Post("/borrow", s.handleBorrow)
			w.Post("/repay", s.handleRepay)
			w.Post("/redeem", s.handleRedeem)
			w.Post("/liquidate", s.handleLiquidate)
			w.Post("/deleverage", s.handleDeleverage)
			w.Post("/deposit", s.handleDeposit)
			w.Post("/withdraw", s.handleWithdraw)
			w.Post("/claim", s.handleClaim)
			w.Post("/delegate", s.handleDelegate)
			w.Post("/debt/update", s.handleUpdateDebt)
			w.Post("/auctions/start", s.handleStartAuctions)
			w.Post("/auctions/pause", s.handlePauseAuctions)
			w.Post("/auctions/buy", s.handleBuyAuction)

			w.Route("/admin", func(admin chi.Router) {
				admin.Post("/price", s.handleSetPrice)
				admin.Post("/fund", s.handleFund)
				admin.Post("/block", s.handleAdvanceBlock)
				admin.Post("/pauses", s.handleSetPauses)
				admin.Post("/buyback-ratio", s.handleBuybackRatio)
			})
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "block": s.teller.Block()})
}

// fail writes err with the status of its class.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		attrs := []any{"route", routePattern(r), "requestId", chimw.GetReqID(r.Context()), "error", err}
		if caller, cerr := auth.CallerFromContext(r.Context()); cerr == nil {
			attrs = append(attrs, "caller", caller.Hex())
		}
		s.logger.Error("creditd: request failed", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: chimw.GetReqID(r.Context())})
}
