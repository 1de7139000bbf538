// Package client executes single logical requests against the upstream API with
// bounded retries, identity rotation and a fallback transport.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/cache"
	"github.com/Sternrassler/gmgn-scan/pkg/identity"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/Sternrassler/gmgn-scan/pkg/ratelimit"
	"github.com/Sternrassler/gmgn-scan/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for executor operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_requests_total",
		Help: "Upstream requests by endpoint, status and strategy",
	}, []string{"endpoint", "status", "strategy"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmgnscan_request_duration_seconds",
		Help:    "Duration of a logical request including retries, by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_errors_total",
		Help: "Failed strategy calls by error class",
	}, []string{"class"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_fallback_total",
		Help: "Fallback strategy invocations by outcome",
	}, []string{"outcome"})
)

// Config holds the executor configuration.
type Config struct {
	// Redis shares host cooldowns and lookup cache entries across
	// processes. Optional: without it both stay process-local.
	Redis *redis.Client

	Identity identity.Config

	// MaxAttempts applies when Execute is called with maxAttempts < 1.
	MaxAttempts int

	// Timeout bounds one attempt unless the RequestSpec sets its own.
	Timeout time.Duration

	// RetryDelay is the fixed sleep between attempts.
	RetryDelay time.Duration

	// EnableFallback lets an attempt retry through the fallback strategy
	// when the primary one fails.
	EnableFallback bool

	RateLimit ratelimit.Config

	// Strategies overrides the default [fingerprint, standard] list.
	Strategies []Strategy
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		Identity:       identity.DefaultConfig(),
		MaxAttempts:    3,
		Timeout:        30 * time.Second,
		RetryDelay:     time.Second,
		EnableFallback: true,
		RateLimit:      ratelimit.DefaultConfig(),
	}
}

// RequestSpec describes one logical request.
type RequestSpec struct {
	// Name labels the request in metrics and logs (e.g. "trades").
	Name string

	Method string
	URL    string

	// Header is applied on top of the identity's header set.
	Header http.Header

	// Timeout overrides Config.Timeout for each attempt.
	Timeout time.Duration

	// Validate rejects well-formed JSON that is still unusable, such as a
	// missing data field. A rejection is retried like any other failure.
	Validate func(body []byte) error

	// RetryDelay overrides Config.RetryDelay between attempts when > 0.
	RetryDelay time.Duration

	// CacheTTL > 0 serves and stores the response in the lookup cache.
	CacheTTL time.Duration
}

// Response is a successful, fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Strategy   string
	Profile    string
	Attempts   int
	Cached     bool
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client is the resilient request executor.
type Client struct {
	rotator    *identity.Rotator
	limiter    *ratelimit.Tracker
	cache      *cache.Manager
	strategies []Strategy
	config     Config
	logger     zerolog.Logger
}

// New creates a new executor.
func New(cfg Config) (*Client, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("retry_delay must not be negative")
	}

	logger := logging.NewLogger("executor")

	strategies := cfg.Strategies
	if len(strategies) == 0 {
		strategies = []Strategy{FingerprintStrategy{}, NewStandardStrategy()}
	}

	c := &Client{
		rotator:    identity.NewRotator(cfg.Identity),
		limiter:    ratelimit.NewTracker(cfg.Redis, cfg.RateLimit, logger),
		cache:      cache.NewManager(cfg.Redis),
		strategies: strategies,
		config:     cfg,
		logger:     logger,
	}
	return c, nil
}

// Execute performs one logical request with up to maxAttempts attempts
// (Config.MaxAttempts when maxAttempts < 1). Each attempt uses a fresh
// identity and walks the strategy list. After exhaustion the returned error
// is a *FetchError carrying the last cause.
func (c *Client) Execute(ctx context.Context, spec RequestSpec, maxAttempts int) (*Response, error) {
	if maxAttempts < 1 {
		maxAttempts = c.config.MaxAttempts
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	name := spec.Name
	if name == "" {
		name = "request"
	}

	u, err := url.Parse(spec.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q", ErrInvalidRequest, spec.URL)
	}

	ctx, span := tracing.Tracer("client").Start(ctx, "client.execute",
		trace.WithAttributes(
			attribute.String("endpoint", name),
			attribute.String("http.request.method", method),
			attribute.Int("max_attempts", maxAttempts),
		),
	)
	defer span.End()

	if spec.CacheTTL <= 0 {
		return c.execute(ctx, span, u, method, name, spec, maxAttempts)
	}

	var fresh *Response
	entry, hit, err := c.cache.GetOrFetch(ctx, cache.KeyFromURL(u), func(ctx context.Context) (*cache.CacheEntry, error) {
		r, err := c.execute(ctx, span, u, method, name, spec, maxAttempts)
		if err != nil {
			return nil, err
		}
		fresh = r
		return cache.NewEntry(r.Body, r.StatusCode, spec.CacheTTL), nil
	})
	if err != nil {
		return nil, err
	}
	if !hit {
		return fresh, nil
	}
	requestsTotal.WithLabelValues(name, strconv.Itoa(entry.StatusCode), "cache").Inc()
	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &Response{StatusCode: entry.StatusCode, Body: entry.Data, Strategy: "cache", Cached: true}, nil
}

// execute runs the retry loop of one logical request.
func (c *Client) execute(ctx context.Context, span trace.Span, u *url.URL, method, name string, spec RequestSpec, maxAttempts int) (*Response, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	logger := c.logger.With().Str("endpoint", name).Str("url", spec.URL).Logger()

	delay := c.config.RetryDelay
	if spec.RetryDelay > 0 {
		delay = spec.RetryDelay
	}

	var resp *Response
	attempts, err := retryFixed(ctx, RetryPolicy{MaxAttempts: maxAttempts, Delay: delay}, logger,
		func(attempt int) error {
			r, err := c.attempt(ctx, u, method, name, spec, attempt)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrContextCancelled) {
			return nil, err
		}
		return nil, &FetchError{URL: spec.URL, Attempts: attempts, Class: Classify(err), Err: err}
	}

	resp.Attempts = attempts
	span.SetAttributes(attribute.String("strategy", resp.Strategy))
	return resp, nil
}

// attempt runs the strategy list once with a single fresh identity.
func (c *Client) attempt(ctx context.Context, u *url.URL, method, name string, spec RequestSpec, attempt int) (*Response, error) {
	id := c.rotator.NewIdentity()

	strategies := c.strategies
	if !c.config.EnableFallback {
		strategies = strategies[:1]
	}

	// One throttle wait per attempt: a cooldown raised by the primary's
	// challenge must not delay the fallback within the same attempt.
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, &AttemptError{Strategy: strategies[0].Name(), Class: ErrorClassTransport, Message: "throttle wait", Err: err}
	}

	var lastErr error
	for i, s := range strategies {
		if i > 0 {
			c.logger.Debug().
				Str("endpoint", name).
				Str("strategy", s.Name()).
				Int("attempt", attempt).
				Msg("Trying fallback strategy")
		}

		resp, err := c.try(ctx, s, id, u, method, name, spec)
		if err == nil {
			if i > 0 {
				fallbackTotal.WithLabelValues("success").Inc()
			}
			return resp, nil
		}
		if i > 0 {
			fallbackTotal.WithLabelValues("failure").Inc()
		}

		errorsTotal.WithLabelValues(string(Classify(err))).Inc()
		c.logger.Warn().
			Err(err).
			Str("endpoint", name).
			Str("strategy", s.Name()).
			Str("profile", id.Profile.Name).
			Int("attempt", attempt).
			Msg("Request attempt failed")

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// try sends the request through one strategy and validates the response.
func (c *Client) try(ctx context.Context, s Strategy, id identity.Identity, u *url.URL, method, name string, spec RequestSpec) (*Response, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header = id.Header.Clone()
	for k, v := range spec.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)
	// Host always follows the request URL.
	req.Header.Del("Host")

	resp, err := s.Do(req, id, timeout)
	if err != nil {
		requestsTotal.WithLabelValues(name, "error", s.Name()).Inc()
		return nil, &AttemptError{Strategy: s.Name(), Class: ErrorClassTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if err := c.limiter.UpdateFromResponse(ctx, u.Host, resp.StatusCode, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update throttle state")
	}
	requestsTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode), s.Name()).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &AttemptError{Strategy: s.Name(), StatusCode: resp.StatusCode, Class: ErrorClassProtocol, Message: resp.Status}
	}

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		class := ErrorClassProtocol
		if actx.Err() != nil {
			class = ErrorClassTransport
		}
		return nil, &AttemptError{Strategy: s.Name(), StatusCode: resp.StatusCode, Class: class, Message: "unreadable body", Err: err}
	}

	if !json.Valid(body) {
		return nil, &AttemptError{Strategy: s.Name(), StatusCode: resp.StatusCode, Class: ErrorClassProtocol, Message: "body is not JSON"}
	}
	if spec.Validate != nil {
		if err := spec.Validate(body); err != nil {
			return nil, &AttemptError{Strategy: s.Name(), StatusCode: resp.StatusCode, Class: ErrorClassProtocol, Message: "validation failed", Err: err}
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Strategy:   s.Name(),
		Profile:    id.Profile.Name,
	}, nil
}

// Close releases pooled connections held by the strategies.
func (c *Client) Close() error {
	for _, s := range c.strategies {
		if closer, ok := s.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	return nil
}

// Limiter returns the host throttle tracker.
func (c *Client) Limiter() *ratelimit.Tracker {
	return c.limiter
}
