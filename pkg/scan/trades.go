package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/gmgn-scan/pkg/aggregate"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Transaction is the reported view of a trade.
type Transaction struct {
	Wallet    string          `json:"wallet"`
	TxHash    string          `json:"tx_hash"`
	Type      string          `json:"type"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Timestamp int64           `json:"timestamp"`
}

func transactionsOf(trades []gmgn.Trade) []Transaction {
	out := make([]Transaction, 0, len(trades))
	for _, t := range trades {
		out = append(out, Transaction{
			Wallet:    t.Maker,
			TxHash:    t.TxHash,
			Type:      t.Event,
			AmountUSD: t.AmountUSD,
			Timestamp: t.Timestamp,
		})
	}
	return out
}

func maker(t gmgn.Trade) string { return t.Maker }

func tradeTime(t gmgn.Trade) int64 { return t.Timestamp }

func tradeEvent(t gmgn.Trade) string { return t.Event }

// BuyersReport lists the distinct buyers of a token.
type BuyersReport struct {
	ContractAddress string        `json:"contract_address"`
	TotalBuyers     int           `json:"total_buyers"`
	BuyerAddresses  []string      `json:"buyer_addresses"`
	Transactions    []Transaction `json:"transactions"`
	Summary         Summary       `json:"summary"`
}

// WindowReport lists the trades of a token inside a time window.
type WindowReport struct {
	ContractAddress string        `json:"contract_address"`
	StartTime       int64         `json:"start_time"`
	EndTime         int64         `json:"end_time"`
	TotalTrades     int           `json:"total_trades"`
	Trades          []Transaction `json:"trades"`
	Summary         Summary       `json:"summary"`
}

// scanTrades walks the full trade history of address, fans out over the
// discovered pages and merges them through filter.
func (s *Scanner) scanTrades(ctx context.Context, logger zerolog.Logger, op string, chain gmgn.Chain, address string, stop pagination.StopFunc[gmgn.Trade], filter aggregate.Filter[gmgn.Trade], call gmgn.CallOptions, opts Options) (aggregate.Result[gmgn.Trade], Summary) {
	agg := aggregate.New(filter, maker)
	disc := s.engine(chain, call, opts).Run(ctx, address, stopAt(stop, opts), s.workers(opts), agg.Add)

	res := agg.Result()
	aggregate.SortBy(res.Records, tradeTime, true)

	summary := Summary{
		Pages:      len(disc.Pages),
		StopReason: disc.Reason,
		Duplicates: res.Duplicates,
		Malformed:  res.Malformed,
		Filtered:   res.Filtered,
		Failed:     len(disc.Pages) == 0,
	}
	if summary.Failed {
		scanFailuresTotal.WithLabelValues(op).Inc()
		logger.Error().Str("resource", address).Str("reason", string(disc.Reason)).Msg("First page unavailable - empty result")
	} else {
		logger.Info().
			Str("resource", address).
			Int("pages", summary.Pages).
			Int("records", res.Total).
			Int("actors", res.DistinctActors).
			Str("reason", string(disc.Reason)).
			Msg("Trade scan complete")
	}
	return res, summary
}

// Buyers scans the full trade history of every address and reports the
// distinct buyers.
func (s *Scanner) Buyers(ctx context.Context, chain gmgn.Chain, addresses []string, opts Options) ([]BuyersReport, error) {
	addrs, err := requireAddresses(addresses)
	if err != nil {
		return nil, err
	}
	ctx, span, logger, done := s.begin(ctx, "buyers", len(addrs))
	defer done()
	span.SetAttributes(attribute.String("chain", string(chain)))

	filter := aggregate.EventIs(gmgn.EventBuy, tradeEvent)
	call := s.callOptions(opts)
	return fanOut(ctx, addrs, s.workers(opts), func(ctx context.Context, address string) BuyersReport {
		res, summary := s.scanTrades(ctx, logger, "buyers", chain, address, nil, filter, call, opts)
		return BuyersReport{
			ContractAddress: address,
			TotalBuyers:     res.DistinctActors,
			BuyerAddresses:  res.Actors,
			Transactions:    transactionsOf(res.Records),
			Summary:         summary,
		}
	}), nil
}

// TradesInWindow reports every trade of address with start <= timestamp <= end.
// Discovery stops on the first page that reaches past start.
func (s *Scanner) TradesInWindow(ctx context.Context, chain gmgn.Chain, address string, start, end int64, opts Options) (*WindowReport, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: no address", ErrInvalidInput)
	}
	if start > end {
		return nil, fmt.Errorf("%w: start_time %d after end_time %d", ErrInvalidInput, start, end)
	}
	ctx, span, logger, done := s.begin(ctx, "trades_in_window", 1)
	defer done()
	span.SetAttributes(
		attribute.String("chain", string(chain)),
		attribute.Int64("start", start),
		attribute.Int64("end", end),
	)

	res, summary := s.scanTrades(ctx, logger, "trades_in_window", chain, address,
		pagination.OlderThan[gmgn.Trade](start),
		aggregate.InWindow[gmgn.Trade](start, end),
		s.callOptions(opts), opts)

	return &WindowReport{
		ContractAddress: address,
		StartTime:       start,
		EndTime:         end,
		TotalTrades:     res.Total,
		Trades:          transactionsOf(res.Records),
		Summary:         summary,
	}, nil
}

// EarlyBuyersReport lists the first buyers of a token, creator excluded.
type EarlyBuyersReport struct {
	ContractAddress string        `json:"contract_address"`
	TotalBuyers     int           `json:"total_buyers"`
	BuyerAddresses  []string      `json:"buyer_addresses"`
	Transactions    []Transaction `json:"transactions"`
	Summary         Summary       `json:"summary"`
}

// EarlyBuyers reports up to limit early buy trades per address. limit <= 0
// uses the configured default.
func (s *Scanner) EarlyBuyers(ctx context.Context, chain gmgn.Chain, addresses []string, limit int, opts Options) ([]EarlyBuyersReport, error) {
	addrs, err := requireAddresses(addresses)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.config.EarlyBuyersLimit
	}
	ctx, _, logger, done := s.begin(ctx, "early_buyers", len(addrs))
	defer done()

	filter := aggregate.And[gmgn.Trade](
		aggregate.EventIs(gmgn.EventBuy, tradeEvent),
		aggregate.Not[gmgn.Trade](func(t gmgn.Trade) bool { return t.IsCreator() }),
	)
	call := s.callOptions(opts)

	return fanOut(ctx, addrs, s.workers(opts), func(ctx context.Context, address string) EarlyBuyersReport {
		report := EarlyBuyersReport{ContractAddress: address, BuyerAddresses: []string{}, Transactions: []Transaction{}}

		trades, err := s.api.EarlyTrades(ctx, chain, address, call)
		if err != nil {
			scanFailuresTotal.WithLabelValues("early_buyers").Inc()
			logger.Warn().Err(err).Str("resource", address).Msg("Early trades unavailable - empty result")
			report.Summary.Failed = true
			return report
		}

		agg := aggregate.New(filter, maker).WithLimit(limit)
		agg.AddRecords(trades)
		res := agg.Result()

		report.TotalBuyers = res.DistinctActors
		report.BuyerAddresses = res.Actors
		report.Transactions = transactionsOf(res.Records)
		report.Summary = Summary{Pages: 1, Duplicates: res.Duplicates, Malformed: res.Malformed, Filtered: res.Filtered}
		return report
	}), nil
}
