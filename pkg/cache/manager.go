package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultMemoryEntries bounds the process-local layer.
const DefaultMemoryEntries = 4096

const (
	layerMemory = "memory"
	layerRedis  = "redis"
)

// FetchFunc loads a value on a cache miss.
type FetchFunc func(ctx context.Context) (*CacheEntry, error)

// Manager is a two-layer lookup cache: a bounded in-process map in front of
// an optional Redis shared by every replica.
type Manager struct {
	redis *redis.Client

	mu    sync.Mutex
	mem   map[string]CacheEntry
	limit int
}

// NewManager creates a cache manager. A nil redisClient keeps the cache
// process-local.
func NewManager(redisClient *redis.Client) *Manager {
	return &Manager{
		redis: redisClient,
		mem:   make(map[string]CacheEntry),
		limit: DefaultMemoryEntries,
	}
}

// Shared reports whether entries are visible to other replicas.
func (m *Manager) Shared() bool { return m.redis != nil }

// Get returns the entry for key from the first layer holding a live copy.
// A Redis hit is promoted into memory.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	k := key.String()
	if entry, ok := m.memGet(k); ok {
		CacheHits.WithLabelValues(layerMemory).Inc()
		return &entry, nil
	}
	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	m.memPut(k, entry)
	CacheHits.WithLabelValues(layerRedis).Inc()
	return &entry, nil
}

// Set stores an entry in both layers until its Expires time. Entries already
// expired are skipped. The memory layer is written even when Redis fails.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	k := key.String()
	m.memPut(k, *entry)
	if m.redis == nil {
		CacheSize.WithLabelValues(layerMemory).Add(float64(len(entry.Data)))
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, k, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	CacheSize.WithLabelValues(layerRedis).Add(float64(len(data)))
	return nil
}

// Delete removes key from both layers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	k := key.String()
	m.mu.Lock()
	delete(m.mem, k)
	m.mu.Unlock()

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, k).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Extend pushes the expiry of an existing entry out to newExpires.
func (m *Manager) Extend(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

// GetOrFetch returns the cached entry for key, or calls fetch and stores its
// result. Redis read/write failures degrade to a plain fetch.
func (m *Manager) GetOrFetch(ctx context.Context, key CacheKey, fetch FetchFunc) (*CacheEntry, bool, error) {
	entry, err := m.Get(ctx, key)
	if err == nil {
		return entry, true, nil
	}

	entry, err = fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		_ = m.Set(ctx, key, entry)
	}
	return entry, false, nil
}

func (m *Manager) memGet(k string) (CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.mem[k]
	if !ok {
		return CacheEntry{}, false
	}
	if entry.IsExpired() {
		delete(m.mem, k)
		return CacheEntry{}, false
	}
	return entry, true
}

func (m *Manager) memPut(k string, entry CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.mem[k]; !ok && len(m.mem) >= m.limit {
		m.evictLocked()
	}
	m.mem[k] = entry
}

// evictLocked drops expired entries, then the one closest to expiry if the
// layer is still full.
func (m *Manager) evictLocked() {
	var (
		victim  string
		soonest time.Time
	)
	for k, e := range m.mem {
		if e.IsExpired() {
			delete(m.mem, k)
			continue
		}
		if victim == "" || e.Expires.Before(soonest) {
			victim, soonest = k, e.Expires
		}
	}
	if len(m.mem) >= m.limit && victim != "" {
		delete(m.mem, victim)
	}
}
