//go:build integration

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})

	return client
}

func TestIntegration_CooldownSharedBetweenExecutors(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var blocked atomic.Bool
	blocked.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if blocked.Swap(false) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	newExecutor := func() *Client {
		cfg := DefaultConfig()
		cfg.Redis = redisClient
		cfg.EnableFallback = false
		cfg.RetryDelay = time.Millisecond
		cfg.RateLimit = ratelimit.Config{BlockCooldown: time.Second, MaxWait: 5 * time.Second}
		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return c
	}

	first := newExecutor()
	if _, err := first.Execute(context.Background(), RequestSpec{URL: server.URL}, 1); err == nil {
		t.Fatal("expected the first request to be blocked")
	}

	// A second executor sharing Redis must wait out the cooldown.
	second := newExecutor()
	start := time.Now()
	if _, err := second.Execute(context.Background(), RequestSpec{URL: server.URL}, 1); err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if waited := time.Since(start); waited < 500*time.Millisecond {
		t.Errorf("second executor waited %v, want about 1s", waited)
	}
}

func TestIntegration_LookupCacheExpiration(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"data":{"token":{"pool_info":{"pool_address":"curve"}}}}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Redis = redisClient
	cfg.RateLimit.RequestsPerSecond = 0
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	spec := RequestSpec{URL: server.URL + "/defi/quotation/v1/tokens/sol/abc", CacheTTL: time.Second}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Execute(ctx, spec, 1); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}

	time.Sleep(1500 * time.Millisecond)

	resp, err := c.Execute(ctx, spec, 1)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Cached {
		t.Error("expected a fresh response after expiry")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}
