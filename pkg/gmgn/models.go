package gmgn

import (
	"encoding/json"
	"slices"

	"github.com/shopspring/decimal"
)

// Event values of a trade.
const (
	EventBuy  = "buy"
	EventSell = "sell"
)

// TagCreator marks the token creator in maker_token_tags.
const TagCreator = "creator"

// Trade is one swap of a token.
type Trade struct {
	Maker          string          `json:"maker"`
	Event          string          `json:"event"`
	TxHash         string          `json:"tx_hash"`
	Timestamp      int64           `json:"timestamp"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	QuoteAmount    decimal.Decimal `json:"quote_amount"`
	MakerTags      []string        `json:"maker_tags,omitempty"`
	MakerTokenTags []string        `json:"maker_token_tags,omitempty"`
}

// Key is the transaction hash.
func (t Trade) Key() string { return t.TxHash }

// Time is the trade's unix timestamp.
func (t Trade) Time() int64 { return t.Timestamp }

// IsCreator reports whether the maker created the token.
func (t Trade) IsCreator() bool { return slices.Contains(t.MakerTokenTags, TagCreator) }

// Holder is one entry of a token's holder list.
type Holder struct {
	Address          string          `json:"address"`
	AmountCur        decimal.Decimal `json:"amount_cur"`
	AmountPercentage decimal.Decimal `json:"amount_percentage"`
	CostCur          decimal.Decimal `json:"cost_cur"`
	USDValue         decimal.Decimal `json:"usd_value"`
	Profit           decimal.Decimal `json:"profit"`
	RealizedProfit   decimal.Decimal `json:"realized_profit"`
	UnrealizedProfit decimal.Decimal `json:"unrealized_profit"`
	BuyTxCountCur    int             `json:"buy_tx_count_cur"`
	SellTxCountCur   int             `json:"sell_tx_count_cur"`
	Tags             []string        `json:"tags,omitempty"`
	MakerTokenTags   []string        `json:"maker_token_tags,omitempty"`
}

// Key is the holder address.
func (h Holder) Key() string { return h.Address }

// Trader is one entry of a token's top trader list.
type Trader struct {
	Address          string          `json:"address"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	RealizedProfit   decimal.Decimal `json:"realized_profit"`
	UnrealizedProfit decimal.Decimal `json:"unrealized_profit"`
	ProfitChange     decimal.Decimal `json:"profit_change"`
	BuyTxCountCur    int             `json:"buy_tx_count_cur"`
	SellTxCountCur   int             `json:"sell_tx_count_cur"`
}

// Key is the trader address.
func (t Trader) Key() string { return t.Address }

// TokenInfo is the token detail payload.
type TokenInfo struct {
	Address           string          `json:"address"`
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	CreationTimestamp int64           `json:"creation_timestamp"`
	OpenTimestamp     int64           `json:"open_timestamp"`
	TotalSupply       decimal.Decimal `json:"total_supply"`
	PoolInfo          struct {
		PoolAddress string `json:"pool_address"`
	} `json:"pool_info"`
}

// WalletStat is the smart-money summary of a wallet for one period.
type WalletStat struct {
	TotalProfitPnl    decimal.Decimal `json:"total_profit_pnl"`
	RealizedProfit7d  decimal.Decimal `json:"realized_profit_7d"`
	RealizedProfit30d decimal.Decimal `json:"realized_profit_30d"`
	Winrate           decimal.Decimal `json:"winrate"`
	SolBalance        decimal.Decimal `json:"sol_balance"`
	Buy7d             int             `json:"buy_7d"`
	Buy30d            int             `json:"buy_30d"`
	Tags              []string        `json:"tags"`
}

// Transfer is one action of a transaction in the transfers API.
type Transfer struct {
	Action string          `json:"action"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// IsTokenTransfer reports whether the action moves a token (not the native coin).
func (t Transfer) IsTokenTransfer() bool { return t.Action == "transfer" && t.Token != "" }

// TokenPnl is one token of a wallet's PnL distribution.
type TokenPnl struct {
	Address        string          `json:"address"`
	TotalProfitPnl decimal.Decimal `json:"total_profit_pnl"`
}

// envelope is the common response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e envelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// decodeEach decodes every element independently. Elements that do not
// decode are counted and skipped.
func decodeEach[T any](raw []json.RawMessage) (out []T, malformed int) {
	out = make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			malformed++
			continue
		}
		out = append(out, v)
	}
	return out, malformed
}
