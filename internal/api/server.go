// Package api exposes the scan entry points as a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/Sternrassler/gmgn-scan/pkg/metrics"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Scanner is the set of entry points served by the API.
type Scanner interface {
	Buyers(ctx context.Context, chain gmgn.Chain, addresses []string, opts scan.Options) ([]scan.BuyersReport, error)
	TradesInWindow(ctx context.Context, chain gmgn.Chain, address string, start, end int64, opts scan.Options) (*scan.WindowReport, error)
	EarlyBuyers(ctx context.Context, chain gmgn.Chain, addresses []string, limit int, opts scan.Options) ([]scan.EarlyBuyersReport, error)
	TopHolders(ctx context.Context, chain gmgn.Chain, addresses []string, opts scan.Options) ([]scan.HoldersReport, error)
	TopTraders(ctx context.Context, chain gmgn.Chain, addresses []string, opts scan.Options) ([]scan.TradersReport, error)
	MintTimestamp(ctx context.Context, chain gmgn.Chain, addresses []string, opts scan.Options) ([]scan.MintReport, error)
	TokenContracts(ctx context.Context, kind gmgn.RankKind, site string, fetches int, opts scan.Options) (*scan.ContractsReport, error)
	AnalyzeWallets(ctx context.Context, chain gmgn.Chain, wallets []string, filters scan.WalletFilters, opts scan.Options) (*scan.WalletsReport, error)
	WalletDetails(ctx context.Context, chain gmgn.Chain, wallet, period string, opts scan.Options) (*scan.WalletDetails, error)
	CheckWallets(ctx context.Context, chain gmgn.Chain, wallets []string, opts scan.Options) (*scan.WalletChecksReport, error)
	AnalyzeBundle(ctx context.Context, address string, opts scan.Options) (*scan.BundleReport, error)
}

// ReadyFunc reports whether dependencies (Redis) are reachable.
type ReadyFunc func(ctx context.Context) error

// Server serves the scan routes.
type Server struct {
	scanner Scanner
	ready   ReadyFunc
	logger  zerolog.Logger
}

// NewHandler creates the HTTP handler. ready may be nil.
func NewHandler(scanner Scanner, ready ReadyFunc) http.Handler {
	s := &Server{scanner: scanner, ready: ready, logger: logging.NewLogger("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	r.Get("/ready", s.readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan-transactions", s.scanTransactions)
		r.Post("/early-buyers", s.earlyBuyers)
		r.Post("/top-holders", s.topHolders)
		r.Post("/analyze-wallets", s.analyzeWallets)
		r.Post("/wallet-details", s.walletDetails)
		r.Post("/analyze-bundle", s.analyzeBundle)
		r.Post("/top-traders", s.topTraders)
		r.Post("/check-wallets", s.checkWallets)
		r.Post("/gmgn/token-contracts", s.tokenContracts)
		r.Post("/{chain}/transactions-by-time", s.transactionsByTime)
		r.Post("/{chain}/top-traders", s.topTraders)
		r.Post("/{chain}/mint-timestamp", s.mintTimestamp)
		r.Post("/{chain}/check-wallets", s.checkWallets)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

// response is the envelope of every API response.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Response encode error")
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, scan.ErrInvalidInput) || errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, response{Success: false, Message: err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

// chainParam reads the {chain} path segment. Routes without one serve sol.
func chainParam(r *http.Request) (gmgn.Chain, error) {
	return bodyChain(chi.URLParam(r, "chain"))
}

func bodyChain(raw string) (gmgn.Chain, error) {
	if strings.TrimSpace(raw) == "" {
		return gmgn.ChainSol, nil
	}
	c, err := gmgn.ParseChain(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return c, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
