package gmgn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/client"
	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// TradesPageSize is the page size requested from the trade history.
const TradesPageSize = 100

// tokenInfoTTL keeps token lookups in the cache across calls.
const tokenInfoTTL = 10 * time.Minute

var (
	// ErrMissingData is returned when a response carries no usable data field.
	ErrMissingData = errors.New("response has no data")

	// ErrUnsuccessful is returned when the upstream reports a non-success msg.
	ErrUnsuccessful = errors.New("upstream reported failure")
)

// Executor runs a request with retries. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, spec client.RequestSpec, maxAttempts int) (*client.Response, error)
}

// CallOptions tunes a single upstream call. Zero values use the executor's
// configuration.
type CallOptions struct {
	MaxAttempts int
	Timeout     time.Duration
	RetryDelay  time.Duration

	// Gate, when set, is held for the whole call including retries. Calls
	// sharing a gate never exceed its weight in flight.
	Gate *semaphore.Weighted
}

// API is a typed client for the upstream endpoints.
type API struct {
	exec      Executor
	endpoints Endpoints
	site      string
}

// NewAPI creates an API over exec. An empty baseURL uses DefaultBaseURL.
func NewAPI(exec Executor, baseURL string) *API {
	e := NewEndpoints(baseURL)
	return &API{exec: exec, endpoints: e, site: DefaultBaseURL}
}

// WithTransfersURL returns a copy of the API that reads transaction
// transfers from base. An empty base uses DefaultTransfersURL.
func (a *API) WithTransfersURL(base string) *API {
	clone := *a
	clone.endpoints = a.endpoints.WithTransfers(base)
	return &clone
}

// Endpoints returns the URL builder.
func (a *API) Endpoints() Endpoints { return a.endpoints }

func (a *API) header(chain Chain) http.Header {
	h := http.Header{}
	h.Set("Referer", a.site+"/?chain="+string(chain))
	return h
}

func (a *API) call(ctx context.Context, name, url string, header http.Header, opts CallOptions, cacheTTL time.Duration, validate func(envelope) error) (envelope, error) {
	spec := client.RequestSpec{
		Name:       name,
		URL:        url,
		Header:     header,
		Timeout:    opts.Timeout,
		RetryDelay: opts.RetryDelay,
		CacheTTL:   cacheTTL,
		Validate: func(body []byte) error {
			var env envelope
			if err := json.Unmarshal(body, &env); err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}
			if !env.hasData() {
				return ErrMissingData
			}
			if validate != nil {
				return validate(env)
			}
			return nil
		},
	}

	resp, err := a.do(ctx, spec, opts)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := resp.Decode(&env); err != nil {
		return envelope{}, err
	}
	if !env.hasData() {
		return envelope{}, ErrMissingData
	}
	return env, nil
}

// do runs spec through the executor, holding opts.Gate while it does.
func (a *API) do(ctx context.Context, spec client.RequestSpec, opts CallOptions) (*client.Response, error) {
	if opts.Gate != nil {
		if err := opts.Gate.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer opts.Gate.Release(1)
	}
	return a.exec.Execute(ctx, spec, opts.MaxAttempts)
}

// historyPayload is the data field of trade history endpoints.
type historyPayload struct {
	History []json.RawMessage `json:"history"`
	Next    string            `json:"next"`
}

func requireHistory(env envelope) error {
	var p struct {
		History *[]json.RawMessage `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	if p.History == nil {
		return fmt.Errorf("%w: history", ErrMissingData)
	}
	return nil
}

// TradesPage fetches one page of a token's trade history, newest first.
func (a *API) TradesPage(ctx context.Context, chain Chain, address string, desc pagination.PageDescriptor, opts CallOptions) (*pagination.PageResult[Trade], error) {
	url := a.endpoints.Trades(chain, address, desc.Cursor, TradesPageSize)
	env, err := a.call(ctx, "trades", url, a.header(chain), opts, 0, requireHistory)
	if err != nil {
		return nil, err
	}

	var p historyPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	trades, malformed := decodeEach[Trade](p.History)
	if malformed > 0 {
		log.Debug().Str("resource", address).Int("page", desc.Index).Int("malformed", malformed).Msg("Skipped malformed trades")
	}
	return pagination.NewPageResult(desc, trades, p.Next), nil
}

// TradeSource adapts the trade history of a chain to a page source. The
// descriptor's Resource is the token address.
func (a *API) TradeSource(chain Chain, opts CallOptions) pagination.PageSource[Trade] {
	return pagination.SourceFunc[Trade](func(ctx context.Context, desc pagination.PageDescriptor) (*pagination.PageResult[Trade], error) {
		return a.TradesPage(ctx, chain, desc.Resource, desc, opts)
	})
}

// EarlyTrades returns the earliest trades of a token, oldest first.
func (a *API) EarlyTrades(ctx context.Context, chain Chain, address string, opts CallOptions) ([]Trade, error) {
	env, err := a.call(ctx, "early_trades", a.endpoints.EarlyTrades(chain, address), a.header(chain), opts, 0, requireHistory)
	if err != nil {
		return nil, err
	}
	var p historyPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	trades, _ := decodeEach[Trade](p.History)
	return trades, nil
}

// TeamTrades returns the latest trades of a token's creator and dev team
// wallets.
func (a *API) TeamTrades(ctx context.Context, chain Chain, address string, opts CallOptions) ([]Trade, error) {
	env, err := a.call(ctx, "team_trades", a.endpoints.TeamTrades(chain, address), a.header(chain), opts, 0, requireHistory)
	if err != nil {
		return nil, err
	}
	var p historyPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	trades, _ := decodeEach[Trade](p.History)
	return trades, nil
}

// transfersPayload is the body of the transfers API. It has no envelope.
type transfersPayload struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// Transfers returns the transfer actions of a transaction. A transaction the
// transfers API knows nothing about yields an empty list.
func (a *API) Transfers(ctx context.Context, txHash string, opts CallOptions) ([]Transfer, error) {
	spec := client.RequestSpec{
		Name:       "transfers",
		URL:        a.endpoints.Transfers(txHash),
		Timeout:    opts.Timeout,
		RetryDelay: opts.RetryDelay,
		Validate: func(body []byte) error {
			var p transfersPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("decode transfers: %w", err)
			}
			if p.Result == nil {
				return fmt.Errorf("%w: result", ErrMissingData)
			}
			return nil
		},
	}
	resp, err := a.do(ctx, spec, opts)
	if err != nil {
		return nil, err
	}

	var p transfersPayload
	if err := resp.Decode(&p); err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if p.Result == nil || json.Unmarshal(p.Result.Data, &raw) != nil {
		return []Transfer{}, nil
	}
	out, _ := decodeEach[Transfer](raw)
	return out, nil
}

func decodeList[T any](env envelope) ([]T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out, _ := decodeEach[T](raw)
	return out, nil
}

func requireList(env envelope) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return fmt.Errorf("%w: expected a list", ErrMissingData)
	}
	return nil
}

// TopHolders returns a token's holders ordered by share of supply.
func (a *API) TopHolders(ctx context.Context, chain Chain, address string, opts CallOptions) ([]Holder, error) {
	env, err := a.call(ctx, "top_holders", a.endpoints.TopHolders(chain, address), a.header(chain), opts, 0, requireList)
	if err != nil {
		return nil, err
	}
	return decodeList[Holder](env)
}

// TopTraders returns a token's traders ordered by profit.
func (a *API) TopTraders(ctx context.Context, chain Chain, address string, opts CallOptions) ([]Trader, error) {
	env, err := a.call(ctx, "top_traders", a.endpoints.TopTraders(chain, address), a.header(chain), opts, 0, requireList)
	if err != nil {
		return nil, err
	}
	return decodeList[Trader](env)
}

// TokenInfo returns token details. Responses are cached.
func (a *API) TokenInfo(ctx context.Context, chain Chain, address string, opts CallOptions) (*TokenInfo, error) {
	requireToken := func(env envelope) error {
		var p struct {
			Token *json.RawMessage `json:"token"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Token == nil {
			return fmt.Errorf("%w: token", ErrMissingData)
		}
		return nil
	}
	env, err := a.call(ctx, "token_info", a.endpoints.TokenInfo(chain, address), a.header(chain), opts, tokenInfoTTL, requireToken)
	if err != nil {
		return nil, err
	}
	var p struct {
		Token TokenInfo `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &p.Token, nil
}

// RankedTokens returns the contract addresses of one rank list.
func (a *API) RankedTokens(ctx context.Context, kind RankKind, site string, opts CallOptions) ([]string, error) {
	url, ok := a.endpoints.Rank(kind, site)
	if !ok {
		return nil, fmt.Errorf("unknown rank list %s/%s", kind, site)
	}
	env, err := a.call(ctx, "rank", url, a.header(ChainSol), opts, 0, nil)
	if err != nil {
		return nil, err
	}

	var p struct {
		Rank []struct {
			Address string `json:"address"`
		} `json:"rank"`
		Pairs []struct {
			BaseAddress string `json:"base_address"`
		} `json:"pairs"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode rank: %w", err)
	}

	var out []string
	if kind == RankBonded {
		for _, pair := range p.Pairs {
			if pair.BaseAddress != "" {
				out = append(out, pair.BaseAddress)
			}
		}
		return out, nil
	}
	for _, r := range p.Rank {
		if r.Address != "" {
			out = append(out, r.Address)
		}
	}
	return out, nil
}

func requireSuccess(env envelope) error {
	if env.Msg != "success" {
		return fmt.Errorf("%w: msg %q", ErrUnsuccessful, env.Msg)
	}
	return nil
}

// WalletStat returns the smart-money summary of a wallet for period.
func (a *API) WalletStat(ctx context.Context, chain Chain, wallet, period string, opts CallOptions) (*WalletStat, error) {
	raw, err := a.WalletStatRaw(ctx, chain, wallet, period, opts)
	if err != nil {
		return nil, err
	}
	var s WalletStat
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode wallet stat: %w", err)
	}
	return &s, nil
}

// WalletStatRaw returns the smart-money summary of a wallet for period as
// the upstream sent it.
func (a *API) WalletStatRaw(ctx context.Context, chain Chain, wallet, period string, opts CallOptions) (json.RawMessage, error) {
	env, err := a.call(ctx, "wallet_stat", a.endpoints.WalletStat(chain, wallet, period), a.header(chain), opts, 0, requireSuccess)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// TokenDistribution returns per-token PnL of a wallet over interval.
func (a *API) TokenDistribution(ctx context.Context, chain Chain, wallet, interval string, opts CallOptions) ([]TokenPnl, error) {
	env, err := a.call(ctx, "token_distribution", a.endpoints.TokenDistribution(chain, wallet, interval), a.header(chain), opts, 0, nil)
	if err != nil {
		return nil, err
	}
	var p struct {
		Tokens []json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	tokens, _ := decodeEach[TokenPnl](p.Tokens)
	return tokens, nil
}

func (a *API) walletHeader(chain Chain) http.Header {
	h := a.header(chain)
	h.Set("from_app", "gmgn")
	h.Set("app_lang", "en-US")
	h.Set("os", "web")
	return h
}

// WalletHoldings returns a wallet's holdings as raw upstream objects.
func (a *API) WalletHoldings(ctx context.Context, chain Chain, wallet string, recent bool, opts CallOptions) ([]json.RawMessage, error) {
	name := "wallet_holdings"
	if recent {
		name = "wallet_recent"
	}
	env, err := a.call(ctx, name, a.endpoints.WalletHoldings(chain, wallet, recent), a.walletHeader(chain), opts, 0, nil)
	if err != nil {
		return nil, err
	}
	var p struct {
		Holdings []json.RawMessage `json:"holdings"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode holdings: %w", err)
	}
	if p.Holdings == nil {
		p.Holdings = []json.RawMessage{}
	}
	return p.Holdings, nil
}

// WalletDashboard returns the raw wallet stat dashboard for period.
func (a *API) WalletDashboard(ctx context.Context, chain Chain, wallet, period string, opts CallOptions) (json.RawMessage, error) {
	env, err := a.call(ctx, "wallet_dashboard", a.endpoints.WalletDashboard(chain, wallet, period), a.walletHeader(chain), opts, 0, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}
