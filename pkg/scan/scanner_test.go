package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/gmgn-scan/internal/testutil"
	"github.com/Sternrassler/gmgn-scan/pkg/client"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/Sternrassler/gmgn-scan/pkg/ratelimit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, mock *testutil.MockUpstream) *Scanner {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.MaxAttempts = 2
	cfg.EnableFallback = false
	cfg.RateLimit = ratelimit.Config{BlockCooldown: time.Millisecond, MaxWait: 10 * time.Millisecond}
	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	scfg := DefaultConfig()
	scfg.Workers = 3
	s, err := New(gmgn.NewAPI(c, mock.URL()), scfg)
	require.NoError(t, err)
	return s
}

func newMock(t *testing.T) *testutil.MockUpstream {
	t.Helper()
	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)
	return mock
}

func buy(maker, hash string, ts int64) testutil.TradeFixture {
	return testutil.TradeFixture{Maker: maker, Event: "buy", TxHash: hash, Timestamp: ts, AmountUSD: "10"}
}

func sell(maker, hash string, ts int64) testutil.TradeFixture {
	return testutil.TradeFixture{Maker: maker, Event: "sell", TxHash: hash, Timestamp: ts, AmountUSD: "5"}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)

	cfg := DefaultConfig()
	cfg.Workers = 0
	_, err = New(gmgn.NewAPI(nil, ""), cfg)
	assert.Error(t, err)
}

func TestAddresses(t *testing.T) {
	got := Addresses(" a, b ,", "b", "", "c")
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Empty(t, Addresses())
}

func TestBuyers(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("sol", "tok", [][]testutil.TradeFixture{
		{buy("w1", "h1", 900), sell("w2", "h2", 890), buy("w2", "h3", 880)},
		{buy("w1", "h4", 800), buy("w3", "h5", 790)},
		{buy("w4", "h6", 700), buy("w3", "h5", 790)},
	})
	s := newTestScanner(t, mock)

	reports, err := s.Buyers(context.Background(), gmgn.ChainSol, []string{"tok"}, Options{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, "tok", r.ContractAddress)
	assert.Equal(t, 4, r.TotalBuyers)
	assert.ElementsMatch(t, []string{"w1", "w2", "w3", "w4"}, r.BuyerAddresses)
	require.Len(t, r.Transactions, 5)
	for i := 1; i < len(r.Transactions); i++ {
		assert.GreaterOrEqual(t, r.Transactions[i-1].Timestamp, r.Transactions[i].Timestamp)
	}
	assert.Equal(t, 3, r.Summary.Pages)
	assert.Equal(t, pagination.StopNoCursor, r.Summary.StopReason)
	assert.Equal(t, 1, r.Summary.Duplicates)
	assert.Equal(t, 1, r.Summary.Filtered)
	assert.False(t, r.Summary.Failed)
}

func TestBuyers_TransientPageFailureIsRetried(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("sol", "tok", [][]testutil.TradeFixture{
		{buy("w1", "h1", 900)},
		{buy("w2", "h2", 800)},
		{buy("w3", "h3", 700)},
	}, 1)
	s := newTestScanner(t, mock)

	reports, err := s.Buyers(context.Background(), gmgn.ChainSol, []string{"tok"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, reports[0].TotalBuyers)
	assert.Equal(t, 3, reports[0].Summary.Pages)
}

func TestBuyers_UnavailableAddressDegrades(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("sol", "good", [][]testutil.TradeFixture{{buy("w1", "h1", 900)}})
	s := newTestScanner(t, mock)

	reports, err := s.Buyers(context.Background(), gmgn.ChainSol, []string{"good", "missing"}, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, 1, reports[0].TotalBuyers)
	assert.Equal(t, "missing", reports[1].ContractAddress)
	assert.True(t, reports[1].Summary.Failed)
	assert.Equal(t, pagination.StopFetchFailed, reports[1].Summary.StopReason)
	assert.Empty(t, reports[1].Transactions)
	assert.NotNil(t, reports[1].BuyerAddresses)
}

func TestBuyers_WorkerBoundCoversNestedFanOut(t *testing.T) {
	mock := newMock(t)
	mock.SetLatency(20 * time.Millisecond)
	tokens := []string{"tok-a", "tok-b", "tok-c"}
	for _, tok := range tokens {
		pages := make([][]testutil.TradeFixture, 6)
		for i := range pages {
			pages[i] = []testutil.TradeFixture{buy(tok+"-w"+string(rune('0'+i)), tok+"-h"+string(rune('0'+i)), int64(1000-i))}
		}
		mock.SetTradeHistory("sol", tok, pages)
	}
	s := newTestScanner(t, mock)

	reports, err := s.Buyers(context.Background(), gmgn.ChainSol, tokens, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, 6, r.TotalBuyers, r.ContractAddress)
		assert.Equal(t, 6, r.Summary.Pages)
	}
	assert.LessOrEqual(t, mock.PeakInFlight(), 3)
	assert.GreaterOrEqual(t, mock.PeakInFlight(), 2)
}

func TestBuyers_MaxPagesOption(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("sol", "tok", [][]testutil.TradeFixture{
		{buy("w1", "h1", 900)},
		{buy("w2", "h2", 800)},
		{buy("w3", "h3", 700)},
		{buy("w4", "h4", 600)},
	})
	s := newTestScanner(t, mock)

	reports, err := s.Buyers(context.Background(), gmgn.ChainSol, []string{"tok"}, Options{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, reports[0].Summary.Pages)
	assert.Equal(t, pagination.StopPredicate, reports[0].Summary.StopReason)
	assert.ElementsMatch(t, []string{"w1", "w2"}, reports[0].BuyerAddresses)
}

func TestBuyers_MissingInput(t *testing.T) {
	mock := newMock(t)
	s := newTestScanner(t, mock)

	_, err := s.Buyers(context.Background(), gmgn.ChainSol, []string{" ", ""}, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, mock.GetRequestCount())
}

func TestTradesInWindow(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("eth", "0xabc", [][]testutil.TradeFixture{
		{buy("w1", "h1", 1000), sell("w2", "h2", 900)},
		{buy("w3", "h3", 800), buy("w4", "h4", 700)},
		{buy("w5", "h5", 600), buy("w6", "h6", 500)},
		{buy("w7", "h7", 400), buy("w8", "h8", 300)},
	})
	s := newTestScanner(t, mock)

	r, err := s.TradesInWindow(context.Background(), gmgn.ChainEth, "0xabc", 650, 950, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Summary.Pages)
	assert.Equal(t, pagination.StopPredicate, r.Summary.StopReason)
	require.Equal(t, 3, r.TotalTrades)
	hashes := []string{r.Trades[0].TxHash, r.Trades[1].TxHash, r.Trades[2].TxHash}
	assert.Equal(t, []string{"h2", "h3", "h4"}, hashes)
	assert.Equal(t, "sell", r.Trades[0].Type)
	assert.Equal(t, int64(650), r.StartTime)
	assert.Equal(t, int64(950), r.EndTime)
}

func TestTradesInWindow_InclusiveBounds(t *testing.T) {
	mock := newMock(t)
	mock.SetTradeHistory("sol", "tok", [][]testutil.TradeFixture{
		{buy("w1", "h1", 300), buy("w2", "h2", 200), buy("w3", "h3", 100)},
	})
	s := newTestScanner(t, mock)

	r, err := s.TradesInWindow(context.Background(), gmgn.ChainSol, "tok", 100, 200, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalTrades)
}

func TestTradesInWindow_InvalidInput(t *testing.T) {
	s := newTestScanner(t, newMock(t))

	_, err := s.TradesInWindow(context.Background(), gmgn.ChainSol, "", 1, 2, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.TradesInWindow(context.Background(), gmgn.ChainSol, "tok", 5, 2, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEarlyBuyers(t *testing.T) {
	mock := newMock(t)
	creator := buy("dev", "h0", 100)
	creator.TokenTags = []string{"creator"}
	mock.SetData("/vas/api/v1/token_trades/sol/tok", map[string]any{"history": []testutil.TradeFixture{
		creator,
		buy("w1", "h1", 101),
		sell("w1", "h2", 102),
		buy("w2", "h3", 103),
		buy("w3", "h4", 104),
	}})
	s := newTestScanner(t, mock)

	reports, err := s.EarlyBuyers(context.Background(), gmgn.ChainSol, []string{"tok"}, 2, Options{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, []string{"w1", "w2"}, r.BuyerAddresses)
	require.Len(t, r.Transactions, 2)
	assert.Equal(t, "h1", r.Transactions[0].TxHash)
}

func TestTopHolders(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/tokens/sol/tok", map[string]any{"token": map[string]any{
		"address":   "tok",
		"pool_info": map[string]any{"pool_address": "curve"},
	}})
	mock.SetData("/defi/quotation/v1/tokens/top_holders/sol/tok", []map[string]any{
		{"address": DefaultHolderExclusions[0], "cost_cur": 1000},
		{"address": "curve", "cost_cur": 1000},
		{"address": "small", "cost_cur": 49.99},
		{"address": "edge", "cost_cur": 50},
		{"address": "whale", "cost_cur": "1200.5"},
	})
	s := newTestScanner(t, mock)

	reports, err := s.TopHolders(context.Background(), gmgn.ChainSol, []string{"tok"}, Options{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	require.Equal(t, 2, r.TotalHolders)
	assert.Equal(t, "edge", r.Holders[0].Address)
	assert.Equal(t, "whale", r.Holders[1].Address)
	assert.Equal(t, 3, r.Summary.Filtered)
}

func TestTopTraders(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/tokens/top_traders/sol/tok", []map[string]any{
		{"address": "a", "profit_change": 2.5},
		{"address": "b", "profit_change": 0},
		{"address": "c", "profit_change": nil},
		{"address": "d", "profit_change": -0.4},
	})
	s := newTestScanner(t, mock)

	reports, err := s.TopTraders(context.Background(), gmgn.ChainSol, []string{"tok"}, Options{})
	require.NoError(t, err)

	r := reports[0]
	require.Equal(t, 2, r.TotalTraders)
	assert.Equal(t, "a", r.Traders[0].Address)
	assert.Equal(t, "d", r.Traders[1].Address)
}

func TestMintTimestamp(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/tokens/eth/0xabc", map[string]any{"token": map[string]any{"creation_timestamp": 1700000000}})
	s := newTestScanner(t, mock)

	reports, err := s.MintTimestamp(context.Background(), gmgn.ChainEth, []string{"0xabc", "0xmissing"}, Options{})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.True(t, reports[0].Found)
	assert.Equal(t, int64(1700000000), reports[0].CreationTimestamp)
	assert.Equal(t, "2023-11-14T22:13:20Z", reports[0].CreatedAt)
	assert.False(t, reports[1].Found)
}

func TestTokenContracts_UnionAcrossFetches(t *testing.T) {
	mock := newMock(t)
	var calls atomic.Int32
	mock.SetHandler("/defi/quotation/v1/rank/sol/pump/1h", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body := `{"msg":"success","data":{"rank":[{"address":"a"},{"address":"b"}]}}`
		if n%2 == 0 {
			body = `{"msg":"success","data":{"rank":[{"address":"b"},{"address":"c"}]}}`
		}
		w.Write([]byte(body))
	})
	s := newTestScanner(t, mock)

	r, err := s.TokenContracts(context.Background(), gmgn.RankCompleting, gmgn.SitePumpFun, 4, Options{})
	require.NoError(t, err)

	assert.Equal(t, int32(4), calls.Load())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, r.Contracts)
	assert.Equal(t, 3, r.TotalContracts)
	assert.Equal(t, 4, r.Fetches)
	assert.Zero(t, r.Failed)
}

func TestTokenContracts_UnknownType(t *testing.T) {
	mock := newMock(t)
	s := newTestScanner(t, mock)

	_, err := s.TokenContracts(context.Background(), gmgn.RankKind("hot"), gmgn.SitePumpFun, 1, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, mock.GetRequestCount())
}

func TestAnalyzeWallets(t *testing.T) {
	mock := newMock(t)
	stat := func(winrate string, buys int) map[string]any {
		return map[string]any{
			"total_profit_pnl":    "0.4",
			"realized_profit_7d":  "120",
			"realized_profit_30d": "900",
			"winrate":             winrate,
			"sol_balance":         "3.5",
			"buy_7d":              buys,
			"buy_30d":             buys * 4,
			"tags":                []string{"smart_degen"},
		}
	}
	mock.SetData("/defi/quotation/v1/smartmoney/sol/walletNew/good", stat("0.65", 10))
	mock.SetData("/defi/quotation/v1/smartmoney/sol/walletNew/weak", stat("0.2", 10))
	mock.SetResponse("/defi/quotation/v1/smartmoney/sol/walletNew/broken", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"msg":"system busy","data":{}}`,
	})
	mock.SetData("/defi/quotation/v1/rank/sol/wallets/good/unique_token_7d", map[string]any{"tokens": []map[string]any{
		{"address": "t1", "total_profit_pnl": "-0.8"},
		{"address": "t2", "total_profit_pnl": "2.5"},
		{"address": "t3", "total_profit_pnl": "7"},
	}})
	s := newTestScanner(t, mock)

	filters := WalletFilters{MinWinrate7d: decimal.NewFromInt(50)}
	r, err := s.AnalyzeWallets(context.Background(), gmgn.ChainSol, []string{"good", "weak", "broken"}, filters, Options{Attempts: 1})
	require.NoError(t, err)

	require.Equal(t, 1, r.Total)
	assert.Equal(t, 1, r.Excluded)
	assert.Equal(t, 1, r.Failed)

	w := r.Wallets[0]
	assert.Equal(t, "good", w.Wallet)
	assert.Equal(t, "https://gmgn.ai/sol/address/good", w.Link)
	assert.True(t, w.Winrate7d.Equal(decimal.NewFromInt(65)))
	assert.Equal(t, 10, w.Trades7d)
	assert.Equal(t, 40, w.Trades30d)
	assert.Equal(t, 1, w.Distribution[gmgn.BucketLossOver50])
	assert.Equal(t, 1, w.Distribution[gmgn.BucketGain200to499])
	assert.Equal(t, 1, w.Distribution[gmgn.BucketGainOver600])
}

func TestWalletFilters_Accept(t *testing.T) {
	r := WalletReport{
		RealizedProfit7d:  decimal.NewFromInt(100),
		RealizedProfit30d: decimal.NewFromInt(500),
		Winrate7d:         decimal.NewFromInt(60),
		Winrate30d:        decimal.NewFromInt(55),
		Trades7d:          12,
		Trades30d:         40,
	}

	tests := []struct {
		name    string
		filters WalletFilters
		want    bool
	}{
		{"no filters", WalletFilters{}, true},
		{"min profit met", WalletFilters{MinProfit7d: decimal.NewFromInt(100)}, true},
		{"min profit missed", WalletFilters{MinProfit7d: decimal.NewFromInt(101)}, false},
		{"max profit 30d missed", WalletFilters{MaxProfit30d: decimal.NewFromInt(499)}, false},
		{"winrate range", WalletFilters{MinWinrate30d: decimal.NewFromInt(50), MaxWinrate30d: decimal.NewFromInt(60)}, true},
		{"max trades missed", WalletFilters{MaxTrades7d: 11}, false},
		{"min trades 30d met", WalletFilters{MinTrades30d: 40}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Accept(r))
		})
	}
}

func TestWalletDetails(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/api/v1/wallet_holdings/sol/w", map[string]any{"holdings": []map[string]any{{"token": "x"}, {"token": "y"}}})
	mock.SetData("/api/v1/wallet_stat/sol/w/30d", map[string]any{"pnl": 1.5})
	s := newTestScanner(t, mock)

	d, err := s.WalletDetails(context.Background(), gmgn.ChainSol, "w", "30d", Options{})
	require.NoError(t, err)
	assert.Len(t, d.Recent, 2)
	assert.Len(t, d.Holdings, 2)
	assert.JSONEq(t, `{"pnl":1.5}`, string(d.Dashboard))
	assert.Equal(t, "gmgn", mock.LastRequestHeader.Get("from_app"))
}

func TestWalletDetails_PartialFailure(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/api/v1/wallet_stat/sol/w/7d", map[string]any{"pnl": 1})
	s := newTestScanner(t, mock)

	d, err := s.WalletDetails(context.Background(), gmgn.ChainSol, "w", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "7d", d.Period)
	assert.Empty(t, d.Recent)
	assert.Empty(t, d.Holdings)
	assert.JSONEq(t, `{"pnl":1}`, string(d.Dashboard))
}

func TestWalletDetails_InvalidInput(t *testing.T) {
	s := newTestScanner(t, newMock(t))

	_, err := s.WalletDetails(context.Background(), gmgn.ChainSol, "", "7d", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.WalletDetails(context.Background(), gmgn.ChainSol, "w", "90d", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckWallets(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/smartmoney/bsc/walletNew/0xgood", map[string]any{"winrate": "0.5", "buy_7d": 3, "bnb_balance": "1.2"})
	mock.SetResponse("/defi/quotation/v1/smartmoney/bsc/walletNew/0xbusy", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"msg":"system busy","data":{}}`,
	})
	mock.SetData("/defi/quotation/v1/rank/bsc/wallets/0xgood/unique_token_7d", map[string]any{"tokens": []map[string]any{
		{"address": "t1", "total_profit_pnl": "0.1"},
		{"address": "t2", "total_profit_pnl": "-0.6"},
	}})
	s := newTestScanner(t, mock)

	r, err := s.CheckWallets(context.Background(), gmgn.ChainBsc, []string{"0xgood", "0xbusy", "0xgood"}, Options{Attempts: 1})
	require.NoError(t, err)

	require.Equal(t, 1, r.Total)
	assert.Equal(t, 1, r.Failed)

	w := r.Wallets[0]
	assert.Equal(t, "0xgood", w.Wallet)
	assert.Equal(t, "https://gmgn.ai/bsc/address/0xgood", w.Link)
	assert.JSONEq(t, `{"winrate":"0.5","buy_7d":3,"bnb_balance":"1.2"}`, string(w.Stats7d), "stats are passed through unmodified")
	assert.JSONEq(t, string(w.Stats7d), string(w.Stats30d))
	assert.Equal(t, 1, w.Distribution7d[gmgn.BucketGainUnder50])
	assert.Equal(t, 1, w.Distribution30d[gmgn.BucketLossOver50])
}

func TestCheckWallets_MissingInput(t *testing.T) {
	mock := newMock(t)
	s := newTestScanner(t, mock)

	_, err := s.CheckWallets(context.Background(), gmgn.ChainSol, nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func transfersBody(actions ...map[string]any) testutil.MockResponse {
	body, _ := json.Marshal(map[string]any{"status": "success", "result": map[string]any{"data": actions}})
	return testutil.MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

func TestAnalyzeBundle(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/tokens/sol/tok", map[string]any{"token": map[string]any{"total_supply": "1000000000"}})
	mock.SetData("/defi/quotation/v1/trades/sol/tok", map[string]any{"history": []testutil.TradeFixture{
		buy("dev", "h1", 100),
		buy("team", "h2", 101),
		sell("dev", "h3", 102),
		buy("dev", "h1", 100),
		buy("team", "h4", 103),
	}})
	mock.SetResponse("/v0/transfers/h1", transfersBody(
		map[string]any{"action": "transfer", "token": "tok", "amount": 50_000_000_000_000},
		map[string]any{"action": "transfer", "token": "", "amount": 1_000_000},
		map[string]any{"action": "createAccount", "token": "tok", "amount": 0},
	))
	mock.SetResponse("/v0/transfers/h2", transfersBody(
		map[string]any{"action": "transfer", "token": "tok", "amount": 20_000_000_000_000},
	))
	s := newTestScanner(t, mock)
	s.api = s.api.WithTransfersURL(mock.URL())

	r, err := s.AnalyzeBundle(context.Background(), " tok ", Options{Attempts: 1})
	require.NoError(t, err)

	assert.False(t, r.Failed)
	assert.Equal(t, "tok", r.ContractAddress)
	assert.True(t, r.BundleDetected)
	assert.Equal(t, 2, r.TransactionsCount)
	assert.Equal(t, 1, r.FailedTransactions, "h4 has no transfers endpoint")
	assert.True(t, r.TotalAmount.Equal(decimal.NewFromInt(70_000_000)), r.TotalAmount.String())
	assert.True(t, r.PercentageOfSupply.Equal(decimal.NewFromInt(7)), r.PercentageOfSupply.String())

	require.Len(t, r.TransactionDetails, 2)
	h1 := r.TransactionDetails["h1"]
	require.Len(t, h1.Amounts, 1)
	assert.True(t, h1.Amounts[0].Equal(decimal.NewFromInt(50_000_000)))
	assert.True(t, h1.AmountsPercentages[0].Equal(decimal.NewFromInt(5)))
	assert.Zero(t, mock.Count("/v0/transfers/h3"), "sells are not inspected")
	assert.Equal(t, 1, mock.Count("/v0/transfers/h1"), "duplicate buys are inspected once")
}

func TestAnalyzeBundle_SingleTransferIsNotBundle(t *testing.T) {
	mock := newMock(t)
	mock.SetData("/defi/quotation/v1/tokens/sol/tok", map[string]any{"token": map[string]any{"total_supply": "1000000000"}})
	mock.SetData("/defi/quotation/v1/trades/sol/tok", map[string]any{"history": []testutil.TradeFixture{buy("dev", "h1", 100)}})
	mock.SetResponse("/v0/transfers/h1", transfersBody(
		map[string]any{"action": "transfer", "token": "tok", "amount": 1_000_000},
	))
	s := newTestScanner(t, mock)
	s.api = s.api.WithTransfersURL(mock.URL())

	r, err := s.AnalyzeBundle(context.Background(), "tok", Options{Attempts: 1})
	require.NoError(t, err)
	assert.False(t, r.BundleDetected)
	assert.Equal(t, 1, r.TransactionsCount)
}

func TestAnalyzeBundle_TokenUnavailable(t *testing.T) {
	mock := newMock(t)
	s := newTestScanner(t, mock)

	r, err := s.AnalyzeBundle(context.Background(), "gone", Options{Attempts: 1})
	require.NoError(t, err)
	assert.True(t, r.Failed)
	assert.False(t, r.BundleDetected)
	assert.Empty(t, r.TransactionDetails)
	assert.Zero(t, mock.Count("/defi/quotation/v1/trades/sol/gone"))

	_, err = s.AnalyzeBundle(context.Background(), "  ", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
