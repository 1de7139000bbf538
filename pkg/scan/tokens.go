package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/aggregate"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// HoldersReport lists the qualifying holders of a token.
type HoldersReport struct {
	ContractAddress string        `json:"contract_address"`
	TotalHolders    int           `json:"total_holders"`
	Holders         []gmgn.Holder `json:"holders"`
	Summary         Summary       `json:"summary"`
}

// TopHolders reports holders with a cost basis of at least the configured
// minimum, excluding the configured addresses and the token's bonding curve.
func (s *Scanner) TopHolders(ctx context.Context, chain gmgn.Chain, addresses []string, opts Options) ([]HoldersReport, error) {
	addrs, err := requireAddresses(addresses)
	if err != nil {
		return nil, err
	}
	ctx, _, logger, done := s.begin(ctx, "top_holders", len(addrs))
	defer done()
	call := s.callOptions(opts)

	return fanOut(ctx, addrs, s.workers(opts), func(ctx context.Context, address string) HoldersReport {
		report := HoldersReport{ContractAddress: address, Holders: []gmgn.Holder{}}

		excluded := append([]string{}, s.config.HolderExclusions...)
		if info, err := s.api.TokenInfo(ctx, chain, address, call); err != nil {
			logger.Warn().Err(err).Str("resource", address).Msg("Token info unavailable - bonding curve not excluded")
		} else {
			excluded = append(excluded, info.PoolInfo.PoolAddress)
		}

		holders, err := s.api.TopHolders(ctx, chain, address, call)
		if err != nil {
			scanFailuresTotal.WithLabelValues("top_holders").Inc()
			logger.Warn().Err(err).Str("resource", address).Msg("Holders unavailable - empty result")
			report.Summary.Failed = true
			return report
		}

		agg := aggregate.New(aggregate.And(
			aggregate.NotIn(aggregate.Set(excluded...), func(h gmgn.Holder) string { return h.Address }),
			aggregate.AtLeast(s.config.MinHolderCost, func(h gmgn.Holder) decimal.Decimal { return h.CostCur }),
		), nil)
		agg.AddRecords(holders)
		res := agg.Result()

		report.TotalHolders = res.Total
		report.Holders = res.Records
		report.Summary = Summary{Pages: 1, Duplicates: res.Duplicates, Malformed: res.Malformed, Filtered: res.Filtered}
		return report
	}), nil
}

// TradersReport lists the profitable traders of a token.
type TradersReport struct {
	ContractAddress string        `json:"contract_address"`
	TotalTraders    int           `json:"total_traders"`
	Traders         []gmgn.Trader `json:"traders"`
	Summary         Summary       `json:"summary"`
}

// TopTraders reports traders with a non-zero profit multiplier.
func (s *Scanner) TopTraders(ctx context.Context, chain gmgn.Chain, addresses []string, opts Options) ([]TradersReport, error) {
	addrs, err := requireAddresses(addresses)
	if err != nil {
		return nil, err
	}
	ctx, _, logger, done := s.begin(ctx, "top_traders", len(addrs))
	defer done()
	call := s.callOptions(opts)

	hasProfitChange := aggregate.Filter[gmgn.Trader](func(t gmgn.Trader) bool { return !t.ProfitChange.IsZero() })

	return fanOut(ctx, addrs, s.workers(opts), func(ctx context.Context, address string) TradersReport {
		report := TradersReport{ContractAddress: address, Traders: []gmgn.Trader{}}

		traders, err := s.api.TopTraders(ctx, chain, address, call)
		if err != nil {
			scanFailuresTotal.WithLabelValues("top_traders").Inc()
			logger.Warn().Err(err).Str("resource", address).Msg("Traders unavailable - empty result")
			report.Summary.Failed = true
			return report
		}

		agg := aggregate.New(hasProfitChange, nil)
		agg.AddRecords(traders)
		res := agg.Result()

		report.TotalTraders = res.Total
		report.Traders = res.Records
		report.Summary = Summary{Pages: 1, Duplicates: res.Duplicates, Malformed: res.Malformed, Filtered: res.Filtered}
		return report
	}), nil
}

// MintReport is the creation time of a token.
type MintReport struct {
	ContractAddress   string `json:"contract_address"`
	CreationTimestamp int64  `json:"creation_timestamp"`
	CreatedAt         string `json:"created_at,omitempty"`
	Found             bool   `json:"found"`
}

// MintTimestamp reports the creation time of every address.
func (s *Scanner) MintTimestamp(ctx context.Context, chain gmgn.Chain, addresses []string, opts Options) ([]MintReport, error) {
	addrs, err := requireAddresses(addresses)
	if err != nil {
		return nil, err
	}
	ctx, _, logger, done := s.begin(ctx, "mint_timestamp", len(addrs))
	defer done()
	call := s.callOptions(opts)

	return fanOut(ctx, addrs, s.workers(opts), func(ctx context.Context, address string) MintReport {
		report := MintReport{ContractAddress: address}
		info, err := s.api.TokenInfo(ctx, chain, address, call)
		if err != nil || info.CreationTimestamp == 0 {
			scanFailuresTotal.WithLabelValues("mint_timestamp").Inc()
			logger.Warn().Err(err).Str("resource", address).Msg("Creation timestamp unavailable")
			return report
		}
		report.CreationTimestamp = info.CreationTimestamp
		report.CreatedAt = time.Unix(info.CreationTimestamp, 0).UTC().Format(time.RFC3339)
		report.Found = true
		return report
	}), nil
}

// ContractsReport is the union of several fetches of one rank list.
type ContractsReport struct {
	TokenType      gmgn.RankKind `json:"token_type"`
	Site           string        `json:"site"`
	TotalContracts int           `json:"total_contracts"`
	Contracts      []string      `json:"contracts"`
	Fetches        int           `json:"fetches"`
	Failed         int           `json:"failed"`
}

// TokenContracts fetches a rank list fetches times concurrently and returns
// the union of the addresses, in order of first appearance. Rank lists
// change between calls, so repeated fetches widen coverage.
func (s *Scanner) TokenContracts(ctx context.Context, kind gmgn.RankKind, site string, fetches int, opts Options) (*ContractsReport, error) {
	if _, ok := s.api.Endpoints().Rank(kind, site); !ok {
		return nil, fmt.Errorf("%w: unknown token type %q for site %q", ErrInvalidInput, kind, site)
	}
	if fetches <= 0 {
		fetches = s.workers(opts)
	}
	ctx, span, logger, done := s.begin(ctx, "token_contracts", fetches)
	defer done()
	span.SetAttributes(attribute.String("token_type", string(kind)), attribute.String("site", site))
	call := s.callOptions(opts)

	lists := make([][]string, fetches)
	failed := make([]bool, fetches)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers(opts))
	for i := range fetches {
		g.Go(func() error {
			got, err := s.api.RankedTokens(gctx, kind, site, call)
			if err != nil {
				logger.Warn().Err(err).Int("fetch", i).Msg("Rank fetch failed")
				failed[i] = true
				return nil
			}
			lists[i] = got
			return nil
		})
	}
	_ = g.Wait()

	report := &ContractsReport{TokenType: kind, Site: site, Fetches: fetches}
	var all []string
	for i, l := range lists {
		if failed[i] {
			report.Failed++
		}
		all = append(all, l...)
	}
	report.Contracts = Addresses(all...)
	report.TotalContracts = len(report.Contracts)

	logger.Info().Int("contracts", report.TotalContracts).Int("failed", report.Failed).Msg("Token contracts collected")
	return report, nil
}
