package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/identity"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, 5, cfg.Scan.Workers)
	assert.Equal(t, "50", cfg.Scan.MinHolderCost)
}

func TestLoadFromReader(t *testing.T) {
	yml := `
server:
  port: "9090"
executor:
  max_attempts: 5
  timeout: 45s
  retry_delay: 2
scan:
  workers: 8
  min_holder_cost: "75.5"
upstream:
  base_url: http://upstream.local:8081
  families: [chrome, safari]
logging:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Executor.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Executor.Timeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.Executor.RetryDelay.Duration)
	assert.Equal(t, 8, cfg.Scan.Workers)

	cc := cfg.ClientConfig(nil)
	assert.Equal(t, 5, cc.MaxAttempts)
	assert.Equal(t, "upstream.local:8081", cc.Identity.Host)
	assert.Equal(t, []identity.Family{identity.FamilyChrome, identity.FamilySafari}, cc.Identity.Families)

	sc := cfg.ScannerConfig()
	assert.Equal(t, 8, sc.Workers)
	assert.True(t, sc.MinHolderCost.Equal(decimal.RequireFromString("75.5")))

	assert.Equal(t, logging.LevelDebug, cfg.LoggerConfig(nil).Level)
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default().Scan.Workers, cfg.Scan.Workers)
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("scan:\n  wrokers: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = " " }},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "gmgn.ai" }},
		{"relative transfers url", func(c *Config) { c.Upstream.TransfersURL = "api.solana.fm" }},
		{"zero attempts", func(c *Config) { c.Executor.MaxAttempts = 0 }},
		{"zero timeout", func(c *Config) { c.Executor.Timeout = Duration{} }},
		{"negative delay", func(c *Config) { c.Executor.RetryDelay = DurationFrom(-time.Second) }},
		{"zero workers", func(c *Config) { c.Scan.Workers = 0 }},
		{"bad cost", func(c *Config) { c.Scan.MinHolderCost = "fifty" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		"PORT":                    "7000",
		"REDIS_URL":               "redis://localhost:6379/2",
		"CHAINSCAN_WORKERS":       "12",
		"CHAINSCAN_TIMEOUT":       "10s",
		"CHAINSCAN_LOG_LEVEL":     "warn",
		"CHAINSCAN_LOG_PRETTY":    "true",
		"CHAINSCAN_BASE_URL":      "http://127.0.0.1:9999",
		"CHAINSCAN_TRANSFERS_URL": "http://127.0.0.1:9998",
		"CHAINSCAN_MAX_ATTEMPTS":  "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 12, cfg.Scan.Workers)
	assert.Equal(t, 10*time.Second, cfg.Executor.Timeout.Duration)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Upstream.BaseURL)
	assert.Equal(t, "http://127.0.0.1:9998", cfg.Upstream.TransfersURL)

	opts, ok, err := cfg.RedisOptions()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(envOf(map[string]string{"CHAINSCAN_WORKERS": "many"})))

	cfg = Default()
	assert.Error(t, cfg.ApplyEnv(envOf(map[string]string{"CHAINSCAN_TIMEOUT": "soon"})))
}

func TestRedisOptions(t *testing.T) {
	cfg := Default()
	_, ok, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.False(t, ok)

	cfg.Redis.URL = "cache:6380"
	opts, ok, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cache:6380", opts.Addr)

	cfg.Redis.URL = "redis://%zz"
	_, _, err = cfg.RedisOptions()
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, d.UnmarshalJSON([]byte(`2.5`)))
	assert.Equal(t, 2500*time.Millisecond, d.Duration)

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2.5s"`, string(b))

	assert.Error(t, d.UnmarshalJSON([]byte(`"later"`)))
}
