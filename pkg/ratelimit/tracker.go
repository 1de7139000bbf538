package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for host throttling.
var (
	throttleWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_throttle_waits_total",
		Help: "Requests delayed by the per-host token bucket",
	}, []string{"host"})

	throttleBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_throttle_blocks_total",
		Help: "Challenge responses (403/429/503) that put a host on cooldown",
	}, []string{"host"})

	throttleCooldownSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmgnscan_throttle_cooldown_seconds",
		Help:    "Time spent waiting for a host cooldown",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"host"})
)

// Config holds tracker configuration.
type Config struct {
	// RequestsPerSecond per host; <= 0 disables the token bucket.
	RequestsPerSecond float64
	Burst             int

	// BlockCooldown applies when a challenge response carries no Retry-After.
	BlockCooldown time.Duration

	// MaxWait caps a single cooldown wait so a stuck state cannot stall scans.
	MaxWait time.Duration
}

// DefaultConfig returns the default pacing.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             5,
		BlockCooldown:     5 * time.Second,
		MaxWait:           30 * time.Second,
	}
}

// Tracker gates requests per host. Redis is optional; without it, cooldowns are
// process-local.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	local    map[string]*HostState
}

// NewTracker creates a new tracker.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Tracker{
		redis:    redisClient,
		config:   cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		local:    make(map[string]*HostState),
	}
}

// GetState returns the throttle state of a host. Missing state is healthy.
func (t *Tracker) GetState(ctx context.Context, host string) (*HostState, error) {
	host = normalizeHost(host)

	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.local[host]; ok {
			cp := *s
			return &cp, nil
		}
		return &HostState{Host: host}, nil
	}

	fields, err := t.redis.HGetAll(ctx, redisKey(host)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}

	state := &HostState{Host: host}
	if len(fields) == 0 {
		return state, nil
	}
	if v, ok := fields[fieldBlockedUntil]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			state.BlockedUntil = time.UnixMilli(ms)
		}
	}
	if v, ok := fields[fieldLastUpdate]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			state.LastUpdate = time.UnixMilli(ms)
		}
	}
	state.LastStatus, _ = strconv.Atoi(fields[fieldLastStatus])
	state.Blocks, _ = strconv.Atoi(fields[fieldBlocks])

	return state, nil
}

// UpdateFromResponse records the outcome of a request. Challenge statuses put
// the host on cooldown; anything else only refreshes LastStatus.
func (t *Tracker) UpdateFromResponse(ctx context.Context, host string, status int, headers http.Header) error {
	host = normalizeHost(host)
	now := time.Now()

	if !IsBlockStatus(status) {
		return t.store(ctx, host, stateUpdate{status: status, at: now})
	}

	cooldown := retryAfter(headers, now)
	if cooldown <= 0 {
		cooldown = t.config.BlockCooldown
	}
	until := now.Add(cooldown)

	throttleBlocksTotal.WithLabelValues(host).Inc()
	t.logger.Warn().
		Str("host", host).
		Int("status", status).
		Dur("cooldown", cooldown).
		Msg("Upstream challenge - host on cooldown")

	return t.store(ctx, host, stateUpdate{blockedUntil: until, status: status, block: true, at: now})
}

// stateUpdate is one change to a host's state. blockedUntil only ever moves
// forward.
type stateUpdate struct {
	blockedUntil time.Time
	status       int
	block        bool
	at           time.Time
}

func (u stateUpdate) apply(s *HostState) {
	if u.blockedUntil.After(s.BlockedUntil) {
		s.BlockedUntil = u.blockedUntil
	}
	s.LastStatus = u.status
	if u.block {
		s.Blocks++
	}
	s.LastUpdate = u.at
}

// storeScript applies a stateUpdate in one step so concurrent writers from
// several processes never lower blocked_until.
var storeScript = redis.NewScript(`
local key = KEYS[1]
local blocked = tonumber(ARGV[1])
local current = tonumber(redis.call("HGET", key, "` + fieldBlockedUntil + `") or "0")
if blocked > current then
	redis.call("HSET", key, "` + fieldBlockedUntil + `", ARGV[1])
end
redis.call("HSET", key, "` + fieldLastStatus + `", ARGV[2], "` + fieldLastUpdate + `", ARGV[3])
if ARGV[4] == "1" then
	redis.call("HINCRBY", key, "` + fieldBlocks + `", 1)
end
redis.call("PEXPIRE", key, ARGV[5])
return 1
`)

const stateTTL = time.Hour

func (t *Tracker) store(ctx context.Context, host string, u stateUpdate) error {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		s, ok := t.local[host]
		if !ok {
			s = &HostState{Host: host}
			t.local[host] = s
		}
		u.apply(s)
		return nil
	}

	var until int64
	if !u.blockedUntil.IsZero() {
		until = u.blockedUntil.UnixMilli()
	}
	block := "0"
	if u.block {
		block = "1"
	}
	err := storeScript.Run(ctx, t.redis, []string{redisKey(host)},
		until, u.status, u.at.UnixMilli(), block, stateTTL.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}

// Wait blocks until a request to host may be sent: first the token bucket,
// then any active cooldown (capped at MaxWait). It returns ctx.Err() on cancel.
func (t *Tracker) Wait(ctx context.Context, host string) error {
	host = normalizeHost(host)

	if lim := t.limiter(host); lim != nil {
		r := lim.Reserve()
		if !r.OK() {
			return fmt.Errorf("rate: cannot reserve token for %s", host)
		}
		if delay := r.Delay(); delay > 0 {
			throttleWaitsTotal.WithLabelValues(host).Inc()
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				r.Cancel()
				return ctx.Err()
			}
		}
	}

	state, err := t.GetState(ctx, host)
	if err != nil {
		// State lookup failures must not stop the scan.
		t.logger.Warn().Err(err).Str("host", host).Msg("Throttle state unavailable")
		return nil
	}
	if !state.IsBlocked() {
		return nil
	}

	wait := state.TimeUntilUnblock()
	if wait > t.config.MaxWait {
		wait = t.config.MaxWait
	}
	t.logger.Debug().Str("host", host).Dur("wait", wait).Msg("Waiting for host cooldown")
	throttleCooldownSeconds.WithLabelValues(host).Observe(wait.Seconds())

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) limiter(host string) *rate.Limiter {
	if t.config.RequestsPerSecond <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(t.config.RequestsPerSecond), t.config.Burst)
		t.limiters[host] = lim
	}
	return lim
}

// retryAfter parses Retry-After as seconds or an HTTP date.
func retryAfter(headers http.Header, now time.Time) time.Duration {
	if headers == nil {
		return 0
	}
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
