package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
)

// AddressList accepts a JSON list or a comma separated string.
type AddressList []string

func (a *AddressList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*a = scan.Addresses(list...)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("addresses must be a string or a list of strings")
	}
	*a = scan.Addresses(s)
	return nil
}

// tuning holds the per-invocation overrides shared by every route.
type tuning struct {
	MaxThreads        int     `json:"max_threads"`
	MaxAttempts       int     `json:"max_attempts"`
	TimeoutSeconds    float64 `json:"timeout_seconds"`
	RetryDelaySeconds float64 `json:"retry_delay_seconds"`
	MaxPages          int     `json:"max_pages"`
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func (t tuning) options() scan.Options {
	return scan.Options{
		Workers:  t.MaxThreads,
		Attempts: t.MaxAttempts,
		Timeout:  seconds(t.TimeoutSeconds),
		Delay:    seconds(t.RetryDelaySeconds),
		MaxPages: t.MaxPages,
	}
}

// addressesRequest names its targets under "addresses", "address" or both.
type addressesRequest struct {
	tuning
	Address   AddressList `json:"address"`
	Addresses AddressList `json:"addresses"`
	Chain     string      `json:"chain"`
}

func (a addressesRequest) targets() []string {
	return scan.Addresses(append(append([]string{}, a.Address...), a.Addresses...)...)
}

type windowRequest struct {
	tuning
	Address   string `json:"address"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

type earlyBuyersRequest struct {
	addressesRequest
	Limit int `json:"limit"`
}

type contractsRequest struct {
	tuning
	Type string `json:"type"`
	Site string `json:"site"`
}

type walletsRequest struct {
	tuning
	Wallets AddressList        `json:"wallets"`
	Filters scan.WalletFilters `json:"filters"`
	Chain   string             `json:"chain"`
}

type walletDetailsRequest struct {
	tuning
	Address string      `json:"address"`
	Wallet  string      `json:"wallet"`
	Wallets AddressList `json:"wallets"`
	Period  string      `json:"period"`
	Chain   string      `json:"chain"`
}

type bundleRequest struct {
	tuning
	Address string `json:"address"`
}

func (s *Server) scanTransactions(w http.ResponseWriter, r *http.Request) {
	var req addressesRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	chain, err := bodyChain(req.Chain)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.Buyers(r.Context(), chain, req.targets(), req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) transactionsByTime(w http.ResponseWriter, r *http.Request) {
	chain, err := chainParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req windowRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.TradesInWindow(r.Context(), chain, req.Address, req.StartTime, req.EndTime, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) earlyBuyers(w http.ResponseWriter, r *http.Request) {
	var req earlyBuyersRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	chain, err := bodyChain(req.Chain)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.EarlyBuyers(r.Context(), chain, req.targets(), req.Limit, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) topHolders(w http.ResponseWriter, r *http.Request) {
	var req addressesRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	chain, err := bodyChain(req.Chain)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.TopHolders(r.Context(), chain, req.targets(), req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) topTraders(w http.ResponseWriter, r *http.Request) {
	chain, err := chainParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req addressesRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.TopTraders(r.Context(), chain, req.targets(), req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) mintTimestamp(w http.ResponseWriter, r *http.Request) {
	chain, err := chainParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req addressesRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.MintTimestamp(r.Context(), chain, req.targets(), req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) tokenContracts(w http.ResponseWriter, r *http.Request) {
	var req contractsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Site == "" {
		req.Site = gmgn.SitePumpFun
	}
	data, err := s.scanner.TokenContracts(r.Context(), gmgn.RankKind(req.Type), req.Site, req.MaxThreads, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) analyzeWallets(w http.ResponseWriter, r *http.Request) {
	var req walletsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	chain, err := bodyChain(req.Chain)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.AnalyzeWallets(r.Context(), chain, req.Wallets, req.Filters, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) walletDetails(w http.ResponseWriter, r *http.Request) {
	var req walletDetailsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	chain, err := bodyChain(req.Chain)
	if err != nil {
		s.fail(w, err)
		return
	}
	wallet := req.Address
	if wallet == "" {
		wallet = req.Wallet
	}
	if wallet == "" && len(req.Wallets) > 0 {
		wallet = req.Wallets[0]
	}
	data, err := s.scanner.WalletDetails(r.Context(), chain, wallet, req.Period, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) checkWallets(w http.ResponseWriter, r *http.Request) {
	chain, err := chainParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req walletsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.CheckWallets(r.Context(), chain, req.Wallets, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}

func (s *Server) analyzeBundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.scanner.AnalyzeBundle(r.Context(), req.Address, req.options())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, data)
}
