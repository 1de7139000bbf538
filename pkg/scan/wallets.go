package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// WalletFilters bound the reported wallets. A zero bound is not applied.
// Winrates are percentages (0-100).
type WalletFilters struct {
	MinProfit7d   decimal.Decimal `json:"min_profit_7d"`
	MaxProfit7d   decimal.Decimal `json:"max_profit_7d"`
	MinProfit30d  decimal.Decimal `json:"min_profit_30d"`
	MaxProfit30d  decimal.Decimal `json:"max_profit_30d"`
	MinWinrate7d  decimal.Decimal `json:"min_winrate_7d"`
	MaxWinrate7d  decimal.Decimal `json:"max_winrate_7d"`
	MinWinrate30d decimal.Decimal `json:"min_winrate_30d"`
	MaxWinrate30d decimal.Decimal `json:"max_winrate_30d"`
	MinTrades7d   int             `json:"min_trades_7d"`
	MaxTrades7d   int             `json:"max_trades_7d"`
	MinTrades30d  int             `json:"min_trades_30d"`
	MaxTrades30d  int             `json:"max_trades_30d"`
}

func within(v, lo, hi decimal.Decimal) bool {
	if !lo.IsZero() && v.LessThan(lo) {
		return false
	}
	if !hi.IsZero() && v.GreaterThan(hi) {
		return false
	}
	return true
}

func withinInt(v, lo, hi int) bool {
	return (lo == 0 || v >= lo) && (hi == 0 || v <= hi)
}

// Accept reports whether r passes every configured bound.
func (f WalletFilters) Accept(r WalletReport) bool {
	return within(r.RealizedProfit7d, f.MinProfit7d, f.MaxProfit7d) &&
		within(r.RealizedProfit30d, f.MinProfit30d, f.MaxProfit30d) &&
		within(r.Winrate7d, f.MinWinrate7d, f.MaxWinrate7d) &&
		within(r.Winrate30d, f.MinWinrate30d, f.MaxWinrate30d) &&
		withinInt(r.Trades7d, f.MinTrades7d, f.MaxTrades7d) &&
		withinInt(r.Trades30d, f.MinTrades30d, f.MaxTrades30d)
}

// WalletReport is the analysis of one wallet.
type WalletReport struct {
	Wallet            string          `json:"wallet"`
	Link              string          `json:"link"`
	TotalProfitPnl    decimal.Decimal `json:"total_profit_pnl"`
	RealizedProfit7d  decimal.Decimal `json:"realized_profit_7d"`
	RealizedProfit30d decimal.Decimal `json:"realized_profit_30d"`
	Winrate7d         decimal.Decimal `json:"winrate_7d"`
	Winrate30d        decimal.Decimal `json:"winrate_30d"`
	SolBalance        decimal.Decimal `json:"sol_balance"`
	Trades7d          int             `json:"trades_7d"`
	Trades30d         int             `json:"trades_30d"`
	Tags              []string        `json:"tags"`
	Distribution      map[string]int  `json:"distribution"`
}

// WalletsReport is the result of a wallet analysis.
type WalletsReport struct {
	Wallets  []WalletReport `json:"wallets"`
	Total    int            `json:"total"`
	Excluded int            `json:"excluded"`
	Failed   int            `json:"failed"`
}

type walletOutcome struct {
	report WalletReport
	ok     bool
}

// AnalyzeWallets reports the 7d and 30d performance and token PnL
// distribution of every wallet that passes filters. Wallets whose stats are
// unavailable are counted as failed and left out.
func (s *Scanner) AnalyzeWallets(ctx context.Context, chain gmgn.Chain, wallets []string, filters WalletFilters, opts Options) (*WalletsReport, error) {
	ws, err := requireAddresses(wallets)
	if err != nil {
		return nil, err
	}
	ctx, _, logger, done := s.begin(ctx, "analyze_wallets", len(ws))
	defer done()

	call := s.callOptions(opts)
	statCall := call
	if opts.Attempts == 0 && s.config.WalletAttempts > 0 {
		statCall.MaxAttempts = s.config.WalletAttempts
	}

	outcomes := fanOut(ctx, ws, s.workers(opts), func(ctx context.Context, wallet string) walletOutcome {
		stat7d, err := s.api.WalletStat(ctx, chain, wallet, "7d", statCall)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("7d stats unavailable - wallet skipped")
			return walletOutcome{}
		}
		stat30d, err := s.api.WalletStat(ctx, chain, wallet, "30d", statCall)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("30d stats unavailable - wallet skipped")
			return walletOutcome{}
		}

		tokens, err := s.api.TokenDistribution(ctx, chain, wallet, "30d", call)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("Token distribution unavailable")
		}

		return walletOutcome{ok: true, report: WalletReport{
			Wallet:            wallet,
			Link:              fmt.Sprintf("%s/%s/address/%s", gmgn.DefaultBaseURL, chain, wallet),
			TotalProfitPnl:    stat7d.TotalProfitPnl,
			RealizedProfit7d:  stat7d.RealizedProfit7d,
			RealizedProfit30d: stat30d.RealizedProfit30d,
			Winrate7d:         stat7d.Winrate.Mul(decimal.NewFromInt(100)),
			Winrate30d:        stat30d.Winrate.Mul(decimal.NewFromInt(100)),
			SolBalance:        stat7d.SolBalance,
			Trades7d:          stat7d.Buy7d,
			Trades30d:         stat30d.Buy30d,
			Tags:              append([]string{}, stat7d.Tags...),
			Distribution:      gmgn.Distribute(tokens),
		}}
	})

	report := &WalletsReport{Wallets: []WalletReport{}}
	for _, o := range outcomes {
		switch {
		case !o.ok:
			report.Failed++
		case !filters.Accept(o.report):
			report.Excluded++
		default:
			report.Wallets = append(report.Wallets, o.report)
		}
	}
	report.Total = len(report.Wallets)
	if report.Failed > 0 {
		scanFailuresTotal.WithLabelValues("analyze_wallets").Add(float64(report.Failed))
	}

	logger.Info().Int("reported", report.Total).Int("excluded", report.Excluded).Int("failed", report.Failed).Msg("Wallet analysis complete")
	return report, nil
}

// Dashboard periods accepted by WalletDetails.
var detailPeriods = map[string]struct{}{"1d": {}, "7d": {}, "30d": {}, "all": {}}

// WalletDetails is the raw detail view of a wallet.
type WalletDetails struct {
	Wallet    string            `json:"wallet"`
	Period    string            `json:"period"`
	Recent    []json.RawMessage `json:"recent"`
	Holdings  []json.RawMessage `json:"holdings"`
	Dashboard json.RawMessage   `json:"dashboard"`
}

// WalletDetails fetches recent activity, holdings and the stat dashboard of a
// wallet concurrently. Each part that fails is left empty.
func (s *Scanner) WalletDetails(ctx context.Context, chain gmgn.Chain, wallet, period string, opts Options) (*WalletDetails, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: no wallet", ErrInvalidInput)
	}
	if period == "" {
		period = "7d"
	}
	if _, ok := detailPeriods[period]; !ok {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}
	ctx, _, logger, done := s.begin(ctx, "wallet_details", 1)
	defer done()

	call := s.callOptions(opts)
	if opts.Timeout == 0 && s.config.WalletDetailsTimeout > 0 {
		call.Timeout = s.config.WalletDetailsTimeout
	}

	details := &WalletDetails{
		Wallet:    wallet,
		Period:    period,
		Recent:    []json.RawMessage{},
		Holdings:  []json.RawMessage{},
		Dashboard: json.RawMessage("{}"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent, err := s.api.WalletHoldings(gctx, chain, wallet, true, call)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("Recent activity unavailable")
			return nil
		}
		details.Recent = recent
		return nil
	})
	g.Go(func() error {
		holdings, err := s.api.WalletHoldings(gctx, chain, wallet, false, call)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("Holdings unavailable")
			return nil
		}
		details.Holdings = holdings
		return nil
	})
	g.Go(func() error {
		dashboard, err := s.api.WalletDashboard(gctx, chain, wallet, period, call)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("Dashboard unavailable")
			return nil
		}
		details.Dashboard = dashboard
		return nil
	})
	_ = g.Wait()

	return details, nil
}
