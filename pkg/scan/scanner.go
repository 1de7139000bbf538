// Package scan implements the dataset entry points: trade history scans,
// holder and trader rankings, token lists and wallet analysis. Every entry
// point degrades per-address failures to empty results; only missing input
// is an error.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/Sternrassler/gmgn-scan/pkg/tracing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidInput is returned when required identifiers are missing.
var ErrInvalidInput = errors.New("invalid input")

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_scans_total",
		Help: "Scan invocations by operation",
	}, []string{"operation"})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmgnscan_scan_duration_seconds",
		Help:    "Scan duration by operation",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"operation"})

	scanFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_scan_resource_failures_total",
		Help: "Resources that degraded to an empty result, by operation",
	}, []string{"operation"})
)

// Default exclusions for holder rankings (exchange and program accounts).
var DefaultHolderExclusions = []string{
	"5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
	"TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM",
}

// Config holds scanner configuration.
type Config struct {
	// Workers bounds concurrent page fetches and concurrent resources.
	Workers int

	// Attempts bounds attempts per request (0 uses the executor's setting).
	Attempts int

	// Timeout is the per-attempt timeout (0 uses the executor's setting).
	Timeout time.Duration

	// RetryDelay is the delay between attempts (0 uses the executor's setting).
	RetryDelay time.Duration

	// MaxPages caps discovery per resource.
	MaxPages int

	// EarlyBuyersLimit is the default number of early buyers per token.
	EarlyBuyersLimit int

	// HolderExclusions are never reported as holders.
	HolderExclusions []string

	// MinHolderCost is the minimum cost basis (USD) of a reported holder.
	MinHolderCost decimal.Decimal

	// WalletAttempts bounds attempts for wallet stat lookups.
	WalletAttempts int

	// WalletDetailsTimeout is the per-attempt timeout of wallet detail calls.
	WalletDetailsTimeout time.Duration
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{
		Workers:              5,
		MaxPages:             1000,
		EarlyBuyersLimit:     20,
		HolderExclusions:     DefaultHolderExclusions,
		MinHolderCost:        decimal.NewFromInt(50),
		WalletAttempts:       5,
		WalletDetailsTimeout: 60 * time.Second,
	}
}

// Options override the configuration for one invocation. Zero values keep
// the configured setting.
type Options struct {
	Workers  int
	Attempts int
	Timeout  time.Duration
	Delay    time.Duration

	// MaxPages ends trade history discovery after that many pages.
	MaxPages int
}

// Summary describes how a resource scan went.
type Summary struct {
	Pages      int                   `json:"pages"`
	StopReason pagination.StopReason `json:"stop_reason,omitempty"`
	Duplicates int                   `json:"duplicates"`
	Malformed  int                   `json:"malformed"`
	Filtered   int                   `json:"filtered"`
	Failed     bool                  `json:"failed,omitempty"`
}

// Scanner runs scans against the upstream API.
type Scanner struct {
	api    *gmgn.API
	config Config
	logger zerolog.Logger
}

// New creates a scanner over api.
func New(api *gmgn.API, config Config) (*Scanner, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: nil api", ErrInvalidInput)
	}
	if config.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1")
	}
	if config.Attempts < 0 {
		return nil, fmt.Errorf("attempts must be >= 0")
	}
	if config.Timeout < 0 || config.RetryDelay < 0 {
		return nil, fmt.Errorf("timeout and retry delay must be >= 0")
	}
	if config.EarlyBuyersLimit < 1 {
		config.EarlyBuyersLimit = 20
	}
	return &Scanner{
		api:    api,
		config: config,
		logger: logging.NewLogger("scanner"),
	}, nil
}

// API returns the upstream client.
func (s *Scanner) API() *gmgn.API { return s.api }

func (s *Scanner) workers(opts Options) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return s.config.Workers
}

// callOptions resolves the per-call tuning of one invocation. Every upstream
// call made with the result shares one gate of weight workers, so nested
// fan-out (addresses, then pages) stays within the worker bound.
func (s *Scanner) callOptions(opts Options) gmgn.CallOptions {
	c := gmgn.CallOptions{
		MaxAttempts: s.config.Attempts,
		Timeout:     s.config.Timeout,
		RetryDelay:  s.config.RetryDelay,
		Gate:        semaphore.NewWeighted(int64(s.workers(opts))),
	}
	if opts.Attempts > 0 {
		c.MaxAttempts = opts.Attempts
	}
	if opts.Timeout > 0 {
		c.Timeout = opts.Timeout
	}
	if opts.Delay > 0 {
		c.RetryDelay = opts.Delay
	}
	return c
}

func (s *Scanner) engine(chain gmgn.Chain, call gmgn.CallOptions, opts Options) *pagination.Engine[gmgn.Trade] {
	return pagination.NewEngine(
		s.api.TradeSource(chain, call),
		pagination.WalkerConfig{MaxPages: s.config.MaxPages, FormatCursor: gmgn.DecodeCursor},
		pagination.Config{MaxWorkers: s.workers(opts)},
	)
}

// stopAt adds the invocation's page limit to stop.
func stopAt(stop pagination.StopFunc[gmgn.Trade], opts Options) pagination.StopFunc[gmgn.Trade] {
	if opts.MaxPages <= 0 {
		return stop
	}
	return pagination.AnyOf(stop, pagination.MaxPagesStop[gmgn.Trade](opts.MaxPages))
}

// begin starts the span and logger of one invocation.
func (s *Scanner) begin(ctx context.Context, op string, resources int) (context.Context, trace.Span, zerolog.Logger, func()) {
	scanID := uuid.NewString()
	ctx, span := tracing.Tracer("scan").Start(ctx, "scan."+op,
		trace.WithAttributes(
			attribute.String("scan_id", scanID),
			attribute.Int("resources", resources),
		),
	)
	logger := s.logger.With().Str("scan_id", scanID).Str("operation", op).Logger()
	scansTotal.WithLabelValues(op).Inc()
	start := time.Now()

	return ctx, span, logger, func() {
		scanDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

// Addresses normalizes a list of identifiers: trims, drops empties and
// removes duplicates while keeping order.
func Addresses(in ...string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, a := range strings.Split(raw, ",") {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func requireAddresses(in []string) ([]string, error) {
	out := Addresses(in...)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no addresses", ErrInvalidInput)
	}
	return out, nil
}

// fanOut runs fn for every item with at most workers in flight. Results keep
// the input order.
func fanOut[T any](ctx context.Context, items []string, workers int, fn func(ctx context.Context, item string) T) []T {
	out := make([]T, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			out[i] = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
