// Package server exposes the exchange over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/server/handler"
	"github.com/alanyoungcy/condex/internal/server/middleware"
	"github.com/alanyoungcy/condex/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards every route except health and metrics. Empty disables it.
	APIKey string
	// AdminKey additionally guards oracle writes, pause and reconcile.
	AdminKey   string
	RateLimit  int
	RateWindow time.Duration
}

// Server is the exchange API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route over ex and wraps them in the middleware
// chain. hub, limiter and metricsHandler may be nil.
func NewServer(
	cfg Config,
	ex handler.Exchange,
	hub *ws.Hub,
	limiter domain.RateLimiter,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(ex, logger)
	ledger := handler.NewLedgerHandler(ex, logger)
	bundles := handler.NewBundleHandler(ex, logger)
	proposals := handler.NewProposalHandler(ex, logger)
	liquidity := handler.NewLiquidityHandler(ex, logger)
	admin := handler.NewAdminHandler(ex, logger)
	adminOnly := func(h http.HandlerFunc) http.HandlerFunc { return middleware.AdminOnly(cfg.AdminKey, h) }

	mux.HandleFunc("GET /api/health", health.HealthCheck)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.HandleFunc("POST /api/deposits", ledger.Deposit)
	mux.HandleFunc("POST /api/withdrawals", ledger.Withdraw)
	mux.HandleFunc("GET /api/balances/{account}", ledger.ListBalances)
	mux.HandleFunc("GET /api/balances/{account}/{asset}", ledger.GetBalance)

	mux.HandleFunc("POST /api/bundles", bundles.CreateBundle)
	mux.HandleFunc("GET /api/bundles/{id}", bundles.GetBundle)
	mux.HandleFunc("DELETE /api/bundles/{id}", bundles.DissolveBundle)

	mux.HandleFunc("POST /api/proposals", proposals.CreateProposal)
	mux.HandleFunc("GET /api/proposals", proposals.ListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", proposals.GetProposal)
	mux.HandleFunc("DELETE /api/proposals/{id}", proposals.CancelProposal)
	mux.HandleFunc("GET /api/proposals/{id}/condition", proposals.GetCondition)
	mux.HandleFunc("GET /api/proposals/{id}/puzzle", proposals.GetPuzzle)
	mux.HandleFunc("POST /api/proposals/{id}/execute", proposals.ExecuteProposal)
	mux.HandleFunc("POST /api/proposals/{id}/solve", proposals.SolvePuzzle)

	mux.HandleFunc("POST /api/liquidity", liquidity.AddLiquidity)
	mux.HandleFunc("DELETE /api/liquidity", liquidity.RemoveLiquidity)
	mux.HandleFunc("GET /api/liquidity/{account}", liquidity.GetPosition)

	mux.HandleFunc("GET /api/oracle/{asset}", admin.GetPrice)
	mux.HandleFunc("PUT /api/oracle/{asset}", adminOnly(admin.SetPrice))
	mux.HandleFunc("PUT /api/admin/pause", adminOnly(admin.SetPaused))
	mux.HandleFunc("GET /api/reconcile", adminOnly(admin.Reconcile))
	mux.HandleFunc("GET /api/status", admin.Status)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
