// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/client"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/identity"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/Sternrassler/gmgn-scan/pkg/ratelimit"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes service-specific environment overrides.
const EnvPrefix = "CHAINSCAN_"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Executor ExecutorConfig `yaml:"executor"`
	Scan     ScanConfig     `yaml:"scan"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig selects the upstream and the identities presented to it.
type UpstreamConfig struct {
	BaseURL        string   `yaml:"base_url"`
	TransfersURL   string   `yaml:"transfers_url"`
	Host           string   `yaml:"host"`
	Families       []string `yaml:"families"`
	AcceptLanguage string   `yaml:"accept_language"`
}

// ExecutorConfig bounds each logical request.
type ExecutorConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	Timeout           Duration `yaml:"timeout"`
	RetryDelay        Duration `yaml:"retry_delay"`
	EnableFallback    bool     `yaml:"enable_fallback"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	BlockCooldown     Duration `yaml:"block_cooldown"`
	MaxWait           Duration `yaml:"max_wait"`
}

// ScanConfig tunes the dataset entry points.
type ScanConfig struct {
	Workers              int      `yaml:"workers"`
	MaxPages             int      `yaml:"max_pages"`
	EarlyBuyersLimit     int      `yaml:"early_buyers_limit"`
	MinHolderCost        string   `yaml:"min_holder_cost"`
	HolderExclusions     []string `yaml:"holder_exclusions"`
	WalletAttempts       int      `yaml:"wallet_attempts"`
	WalletDetailsTimeout Duration `yaml:"wallet_details_timeout"`
}

// RedisConfig points at the shared cache and cooldown store. An empty URL
// runs without Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables it.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	exec := client.DefaultConfig()
	rl := ratelimit.DefaultConfig()
	sc := scan.DefaultConfig()

	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     DurationFrom(30 * time.Second),
			WriteTimeout:    DurationFrom(10 * time.Minute),
			ShutdownTimeout: DurationFrom(10 * time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:        gmgn.DefaultBaseURL,
			TransfersURL:   gmgn.DefaultTransfersURL,
			Families:       []string{"chrome", "firefox", "safari", "edge"},
			AcceptLanguage: identity.DefaultConfig().AcceptLanguage,
		},
		Executor: ExecutorConfig{
			MaxAttempts:       exec.MaxAttempts,
			Timeout:           DurationFrom(exec.Timeout),
			RetryDelay:        DurationFrom(exec.RetryDelay),
			EnableFallback:    exec.EnableFallback,
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			BlockCooldown:     DurationFrom(rl.BlockCooldown),
			MaxWait:           DurationFrom(rl.MaxWait),
		},
		Scan: ScanConfig{
			Workers:              sc.Workers,
			MaxPages:             sc.MaxPages,
			EarlyBuyersLimit:     sc.EarlyBuyersLimit,
			MinHolderCost:        sc.MinHolderCost.String(),
			HolderExclusions:     append([]string{}, sc.HolderExclusions...),
			WalletAttempts:       sc.WalletAttempts,
			WalletDetailsTimeout: DurationFrom(sc.WalletDetailsTimeout),
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{ServiceName: "chainscan"},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes configuration from r without environment overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		return dst.UnmarshalText([]byte(strings.TrimSpace(v)))
	}

	str("PORT", &c.Server.Port)
	str("REDIS_URL", &c.Redis.URL)
	str(EnvPrefix+"BASE_URL", &c.Upstream.BaseURL)
	str(EnvPrefix+"TRANSFERS_URL", &c.Upstream.TransfersURL)
	str(EnvPrefix+"LOG_LEVEL", &c.Logging.Level)
	str(EnvPrefix+"OTLP_ENDPOINT", &c.Tracing.Endpoint)

	if err := integer(EnvPrefix+"WORKERS", &c.Scan.Workers); err != nil {
		return err
	}
	if err := integer(EnvPrefix+"MAX_ATTEMPTS", &c.Executor.MaxAttempts); err != nil {
		return err
	}
	if err := duration(EnvPrefix+"TIMEOUT", &c.Executor.Timeout); err != nil {
		return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
	}
	if err := duration(EnvPrefix+"RETRY_DELAY", &c.Executor.RetryDelay); err != nil {
		return fmt.Errorf("%sRETRY_DELAY: %w", EnvPrefix, err)
	}
	if v, ok := lookup(EnvPrefix + "LOG_PRETTY"); ok && v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_PRETTY: %w", EnvPrefix, err)
		}
		c.Logging.Pretty = pretty
	}
	return nil
}

// Validate enforces the invariants of the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port must be set")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute URL (got %q)", c.Upstream.BaseURL)
	}
	if u, err := url.Parse(c.Upstream.TransfersURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.transfers_url must be an absolute URL (got %q)", c.Upstream.TransfersURL)
	}
	if c.Executor.MaxAttempts < 1 {
		return fmt.Errorf("executor.max_attempts must be >= 1 (got %d)", c.Executor.MaxAttempts)
	}
	if c.Executor.Timeout.Duration <= 0 {
		return fmt.Errorf("executor.timeout must be > 0 (got %s)", c.Executor.Timeout)
	}
	if c.Executor.RetryDelay.Duration < 0 {
		return fmt.Errorf("executor.retry_delay must be >= 0 (got %s)", c.Executor.RetryDelay)
	}
	if c.Executor.RequestsPerSecond < 0 {
		return fmt.Errorf("executor.requests_per_second must be >= 0 (got %v)", c.Executor.RequestsPerSecond)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be >= 1 (got %d)", c.Scan.Workers)
	}
	if c.Scan.MaxPages < 0 {
		return fmt.Errorf("scan.max_pages must be >= 0 (got %d)", c.Scan.MaxPages)
	}
	if _, err := decimal.NewFromString(c.Scan.MinHolderCost); err != nil {
		return fmt.Errorf("scan.min_holder_cost: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// upstreamHost names the site in the default referer.
func (c Config) upstreamHost() string {
	if c.Upstream.Host != "" {
		return c.Upstream.Host
	}
	if u, err := url.Parse(c.Upstream.BaseURL); err == nil {
		return u.Host
	}
	return ""
}

// ClientConfig builds the executor configuration. rdb may be nil.
func (c Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig()
	cfg.Redis = rdb
	cfg.MaxAttempts = c.Executor.MaxAttempts
	cfg.Timeout = c.Executor.Timeout.Duration
	cfg.RetryDelay = c.Executor.RetryDelay.Duration
	cfg.EnableFallback = c.Executor.EnableFallback

	cfg.Identity.Host = c.upstreamHost()
	if fams := identity.ParseFamilies(c.Upstream.Families); len(fams) > 0 {
		cfg.Identity.Families = fams
	}
	if c.Upstream.AcceptLanguage != "" {
		cfg.Identity.AcceptLanguage = c.Upstream.AcceptLanguage
	}

	cfg.RateLimit = ratelimit.Config{
		RequestsPerSecond: c.Executor.RequestsPerSecond,
		Burst:             c.Executor.Burst,
		BlockCooldown:     c.Executor.BlockCooldown.Duration,
		MaxWait:           c.Executor.MaxWait.Duration,
	}
	return cfg
}

// ScannerConfig builds the scanner configuration.
func (c Config) ScannerConfig() scan.Config {
	cfg := scan.DefaultConfig()
	cfg.Workers = c.Scan.Workers
	cfg.MaxPages = c.Scan.MaxPages
	cfg.EarlyBuyersLimit = c.Scan.EarlyBuyersLimit
	cfg.HolderExclusions = c.Scan.HolderExclusions
	cfg.WalletAttempts = c.Scan.WalletAttempts
	cfg.WalletDetailsTimeout = c.Scan.WalletDetailsTimeout.Duration
	if d, err := decimal.NewFromString(c.Scan.MinHolderCost); err == nil {
		cfg.MinHolderCost = d
	}
	return cfg
}

// LoggerConfig builds the logger configuration.
func (c Config) LoggerConfig(out io.Writer) logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{Level: level, Pretty: c.Logging.Pretty, Output: out, Service: c.Tracing.ServiceName}
}

// RedisOptions parses the Redis URL. Both "host:port" and redis:// URLs are
// accepted. ok is false when Redis is not configured.
func (c Config) RedisOptions() (opts *redis.Options, ok bool, err error) {
	raw := strings.TrimSpace(c.Redis.URL)
	if raw == "" {
		return nil, false, nil
	}
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, false, fmt.Errorf("redis.url: %w", err)
		}
		return opts, true, nil
	}
	return &redis.Options{Addr: raw}, true, nil
}
