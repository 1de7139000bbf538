package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/gmgn-scan/pkg/aggregate"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// WalletCheck is the raw 7d and 30d view of one wallet.
type WalletCheck struct {
	Wallet          string          `json:"wallet"`
	Link            string          `json:"link"`
	Stats7d         json.RawMessage `json:"wallet_7d"`
	Stats30d        json.RawMessage `json:"wallet_30d"`
	Distribution7d  map[string]int  `json:"distribution_7d"`
	Distribution30d map[string]int  `json:"distribution_30d"`
}

// WalletChecksReport is the result of a wallet check.
type WalletChecksReport struct {
	Wallets []WalletCheck `json:"wallets"`
	Total   int           `json:"total"`
	Failed  int           `json:"failed"`
}

type checkOutcome struct {
	check WalletCheck
	ok    bool
}

// CheckWallets reports the unfiltered stats of every wallet with its token
// PnL distribution for 7d and 30d. Wallets whose stats are unavailable are
// counted as failed and left out; a missing distribution is reported empty.
func (s *Scanner) CheckWallets(ctx context.Context, chain gmgn.Chain, wallets []string, opts Options) (*WalletChecksReport, error) {
	ws, err := requireAddresses(wallets)
	if err != nil {
		return nil, err
	}
	ctx, span, logger, done := s.begin(ctx, "check_wallets", len(ws))
	defer done()
	span.SetAttributes(attribute.String("chain", string(chain)))

	call := s.callOptions(opts)
	statCall := call
	if opts.Attempts == 0 && s.config.WalletAttempts > 0 {
		statCall.MaxAttempts = s.config.WalletAttempts
	}

	distribution := func(ctx context.Context, wallet, interval string) map[string]int {
		tokens, err := s.api.TokenDistribution(ctx, chain, wallet, interval, call)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Str("interval", interval).Msg("Token distribution unavailable")
			return map[string]int{}
		}
		return gmgn.Distribute(tokens)
	}

	outcomes := fanOut(ctx, ws, s.workers(opts), func(ctx context.Context, wallet string) checkOutcome {
		stat7d, err := s.api.WalletStatRaw(ctx, chain, wallet, "7d", statCall)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("7d stats unavailable - wallet skipped")
			return checkOutcome{}
		}
		stat30d, err := s.api.WalletStatRaw(ctx, chain, wallet, "30d", statCall)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("30d stats unavailable - wallet skipped")
			return checkOutcome{}
		}
		return checkOutcome{ok: true, check: WalletCheck{
			Wallet:          wallet,
			Link:            fmt.Sprintf("%s/%s/address/%s", gmgn.DefaultBaseURL, chain, wallet),
			Stats7d:         stat7d,
			Stats30d:        stat30d,
			Distribution7d:  distribution(ctx, wallet, "7d"),
			Distribution30d: distribution(ctx, wallet, "30d"),
		}}
	})

	report := &WalletChecksReport{Wallets: []WalletCheck{}}
	for _, o := range outcomes {
		if !o.ok {
			report.Failed++
			continue
		}
		report.Wallets = append(report.Wallets, o.check)
	}
	report.Total = len(report.Wallets)
	if report.Failed > 0 {
		scanFailuresTotal.WithLabelValues("check_wallets").Add(float64(report.Failed))
	}

	logger.Info().Int("reported", report.Total).Int("failed", report.Failed).Msg("Wallet check complete")
	return report, nil
}

// tokenDecimals scales raw transfer amounts to whole tokens.
var tokenDecimals = decimal.New(1, 6)

var hundred = decimal.NewFromInt(100)

// BundleTransaction is the token movement of one team buy.
type BundleTransaction struct {
	Amounts            []decimal.Decimal `json:"amounts"`
	AmountsPercentages []decimal.Decimal `json:"amounts_percentages"`
}

// BundleReport tells whether a token's team bought its supply across several
// transfers and how much of the supply they took.
type BundleReport struct {
	ContractAddress    string                       `json:"contract_address"`
	BundleDetected     bool                         `json:"bundle_detected"`
	TransactionsCount  int                          `json:"transactions_count"`
	TotalAmount        decimal.Decimal              `json:"total_amount"`
	TotalSupply        decimal.Decimal              `json:"total_supply"`
	PercentageOfSupply decimal.Decimal              `json:"percentage_of_supply"`
	TransactionDetails map[string]BundleTransaction `json:"transaction_details"`
	FailedTransactions int                          `json:"failed_transactions"`
	Failed             bool                         `json:"failed,omitempty"`
}

type bundleOutcome struct {
	amounts []decimal.Decimal
	ok      bool
}

// AnalyzeBundle inspects the buys made by the creator and dev team of a sol
// token. Every token transfer of those buys counts; more than one transfer
// is a bundle. Percentages are relative to the token's total supply. When
// the token or its team trades are unavailable the report is marked failed.
func (s *Scanner) AnalyzeBundle(ctx context.Context, address string, opts Options) (*BundleReport, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: no address", ErrInvalidInput)
	}
	ctx, _, logger, done := s.begin(ctx, "analyze_bundle", 1)
	defer done()
	call := s.callOptions(opts)

	report := &BundleReport{
		ContractAddress:    address,
		TransactionDetails: map[string]BundleTransaction{},
	}
	fail := func(err error, msg string) (*BundleReport, error) {
		scanFailuresTotal.WithLabelValues("analyze_bundle").Inc()
		logger.Warn().Err(err).Str("resource", address).Msg(msg)
		report.Failed = true
		return report, nil
	}

	info, err := s.api.TokenInfo(ctx, gmgn.ChainSol, address, call)
	if err != nil {
		return fail(err, "Token info unavailable - empty result")
	}
	report.TotalSupply = info.TotalSupply

	trades, err := s.api.TeamTrades(ctx, gmgn.ChainSol, address, call)
	if err != nil {
		return fail(err, "Team trades unavailable - empty result")
	}
	agg := aggregate.New(aggregate.EventIs(gmgn.EventBuy, tradeEvent), maker)
	agg.AddRecords(trades)
	hashes := make([]string, 0, len(trades))
	for _, t := range agg.Result().Records {
		hashes = append(hashes, t.TxHash)
	}

	outcomes := fanOut(ctx, hashes, s.workers(opts), func(ctx context.Context, hash string) bundleOutcome {
		transfers, err := s.api.Transfers(ctx, hash, call)
		if err != nil {
			logger.Warn().Err(err).Str("tx_hash", hash).Msg("Transfers unavailable - transaction skipped")
			return bundleOutcome{}
		}
		var amounts []decimal.Decimal
		for _, t := range transfers {
			if t.IsTokenTransfer() {
				amounts = append(amounts, t.Amount.Div(tokenDecimals))
			}
		}
		return bundleOutcome{amounts: amounts, ok: true}
	})

	for i, o := range outcomes {
		if !o.ok {
			report.FailedTransactions++
			continue
		}
		if len(o.amounts) == 0 {
			continue
		}
		tx := BundleTransaction{Amounts: o.amounts, AmountsPercentages: make([]decimal.Decimal, 0, len(o.amounts))}
		for _, a := range o.amounts {
			report.TotalAmount = report.TotalAmount.Add(a)
			report.TransactionsCount++
			tx.AmountsPercentages = append(tx.AmountsPercentages, shareOf(a, report.TotalSupply))
		}
		report.TransactionDetails[hashes[i]] = tx
	}
	report.PercentageOfSupply = shareOf(report.TotalAmount, report.TotalSupply)
	report.BundleDetected = report.TransactionsCount > 1

	logger.Info().
		Str("resource", address).
		Int("team_buys", len(hashes)).
		Int("transfers", report.TransactionsCount).
		Bool("bundle", report.BundleDetected).
		Msg("Bundle analysis complete")
	return report, nil
}

// shareOf is amount as a percentage of supply, zero without a supply.
func shareOf(amount, supply decimal.Decimal) decimal.Decimal {
	if !supply.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(supply).Mul(hundred)
}
