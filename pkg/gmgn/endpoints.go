// Package gmgn models the upstream token and wallet API: endpoint URLs,
// response envelopes and per-record decoding.
package gmgn

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the production upstream.
const DefaultBaseURL = "https://gmgn.ai"

// DefaultTransfersURL serves per-transaction transfer breakdowns on sol.
const DefaultTransfersURL = "https://api.solana.fm"

// Chain is an upstream chain identifier.
type Chain string

const (
	ChainSol Chain = "sol"
	ChainEth Chain = "eth"
	ChainBsc Chain = "bsc"
)

// ParseChain validates a chain name.
func ParseChain(s string) (Chain, error) {
	switch c := Chain(strings.ToLower(strings.TrimSpace(s))); c {
	case ChainSol, ChainEth, ChainBsc:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported chain %q", s)
	}
}

// RankKind selects a token rank list.
type RankKind string

const (
	RankNew        RankKind = "new"
	RankCompleting RankKind = "completing"
	RankSoaring    RankKind = "soaring"
	RankBonded     RankKind = "bonded"
)

// Launchpad sites with rank lists.
const (
	SitePumpFun  = "Pump.Fun"
	SiteMoonshot = "Moonshot"
)

// Endpoints builds upstream URLs against a base URL.
type Endpoints struct {
	base      string
	transfers string
}

// NewEndpoints creates an endpoint builder. An empty base uses DefaultBaseURL.
func NewEndpoints(base string) Endpoints {
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{base: strings.TrimRight(base, "/"), transfers: DefaultTransfersURL}
}

// WithTransfers returns a copy that builds Transfers URLs against base.
func (e Endpoints) WithTransfers(base string) Endpoints {
	if base == "" {
		base = DefaultTransfersURL
	}
	e.transfers = strings.TrimRight(base, "/")
	return e
}

// Base returns the base URL.
func (e Endpoints) Base() string { return e.base }

func (e Endpoints) build(path string, q url.Values) string {
	if len(q) == 0 {
		return e.base + path
	}
	return e.base + path + "?" + q.Encode()
}

// Trades is one page of the cursor-paginated trade history of a token.
func (e Endpoints) Trades(chain Chain, address, cursor string, limit int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return e.build(fmt.Sprintf("/defi/quotation/v1/trades/%s/%s", chain, url.PathEscape(address)), q)
}

// TeamTrades is the first page of trades made by the creator and dev team
// wallets of a token.
func (e Endpoints) TeamTrades(chain Chain, address string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(TradesPageSize))
	q.Set("maker", "")
	q["tag[]"] = []string{"creator", "dev_team"}
	return e.build(fmt.Sprintf("/defi/quotation/v1/trades/%s/%s", chain, url.PathEscape(address)), q)
}

// Transfers lists the transfer actions of one transaction.
func (e Endpoints) Transfers(txHash string) string {
	return e.transfers + "/v0/transfers/" + url.PathEscape(txHash)
}

// EarlyTrades lists the first trades of a token, oldest first.
func (e Endpoints) EarlyTrades(chain Chain, address string) string {
	q := url.Values{}
	q.Set("revert", "true")
	q.Set("app_lang", "en-US")
	q.Set("from_app", "gmgn")
	return e.build(fmt.Sprintf("/vas/api/v1/token_trades/%s/%s", chain, url.PathEscape(address)), q)
}

// TopHolders lists holders ordered by share of supply.
func (e Endpoints) TopHolders(chain Chain, address string) string {
	q := url.Values{}
	q.Set("orderby", "amount_percentage")
	q.Set("direction", "desc")
	return e.build(fmt.Sprintf("/defi/quotation/v1/tokens/top_holders/%s/%s", chain, url.PathEscape(address)), q)
}

// TopTraders lists traders ordered by profit.
func (e Endpoints) TopTraders(chain Chain, address string) string {
	q := url.Values{}
	q.Set("orderby", "profit")
	q.Set("direction", "desc")
	return e.build(fmt.Sprintf("/defi/quotation/v1/tokens/top_traders/%s/%s", chain, url.PathEscape(address)), q)
}

// TokenInfo describes a token: pool, creation time, supply.
func (e Endpoints) TokenInfo(chain Chain, address string) string {
	return e.build(fmt.Sprintf("/defi/quotation/v1/tokens/%s/%s", chain, url.PathEscape(address)), nil)
}

// Rank returns the rank list URL for kind and site. ok is false for unknown
// combinations.
func (e Endpoints) Rank(kind RankKind, site string) (u string, ok bool) {
	var pad string
	switch site {
	case SitePumpFun:
		pad = "pump"
	case SiteMoonshot:
		pad = "moonshot"
	default:
		return "", false
	}

	q := url.Values{}
	q.Set("limit", "100")
	q.Set("direction", "desc")

	switch kind {
	case RankNew:
		q.Set("orderby", "created_timestamp")
		q.Set("new_creation", "true")
	case RankCompleting:
		q.Set("orderby", "progress")
		q.Set(pad, "true")
	case RankSoaring:
		q.Set("orderby", "market_cap_5m")
		q.Set("soaring", "true")
	case RankBonded:
		orderBy := "market_cap"
		if pad == "moonshot" {
			orderBy = "open_timestamp"
		}
		q.Set("orderby", orderBy)
		q.Set("launchpad", pad)
		q.Set("period", "1h")
		q["filters[]"] = []string{"not_honeypot", pad}
		return e.build("/defi/quotation/v1/pairs/sol/new_pairs/1h", q), true
	default:
		return "", false
	}
	return e.build(fmt.Sprintf("/defi/quotation/v1/rank/sol/%s/1h", pad), q), true
}

// WalletStat is the smart-money summary of a wallet for period (7d, 30d).
func (e Endpoints) WalletStat(chain Chain, wallet, period string) string {
	q := url.Values{}
	q.Set("period", period)
	return e.build(fmt.Sprintf("/defi/quotation/v1/smartmoney/%s/walletNew/%s", chain, url.PathEscape(wallet)), q)
}

// TokenDistribution lists per-token PnL of a wallet over interval.
func (e Endpoints) TokenDistribution(chain Chain, wallet, interval string) string {
	q := url.Values{}
	q.Set("interval", interval)
	return e.build(fmt.Sprintf("/defi/quotation/v1/rank/%s/wallets/%s/unique_token_7d", chain, url.PathEscape(wallet)), q)
}

// WalletHoldings lists a wallet's holdings. recent includes sold-out and
// small positions active in the last 30 days.
func (e Endpoints) WalletHoldings(chain Chain, wallet string, recent bool) string {
	q := url.Values{}
	q.Set("from_app", "gmgn")
	q.Set("app_lang", "en-US")
	q.Set("os", "web")
	q.Set("limit", "50")
	q.Set("orderby", "last_active_timestamp")
	q.Set("direction", "desc")
	if recent {
		q.Set("showsmall", "true")
		q.Set("sellout", "true")
		q.Set("tx30d", "true")
	} else {
		q.Set("showsmall", "false")
		q.Set("sellout", "false")
		q.Set("hide_abnormal", "false")
	}
	return e.build(fmt.Sprintf("/api/v1/wallet_holdings/%s/%s", chain, url.PathEscape(wallet)), q)
}

// WalletDashboard is the wallet stat dashboard for period (1d, 7d, 30d, all).
func (e Endpoints) WalletDashboard(chain Chain, wallet, period string) string {
	return e.build(fmt.Sprintf("/api/v1/wallet_stat/%s/%s/%s", chain, url.PathEscape(wallet), url.PathEscape(period)), nil)
}
