// Package cache stores upstream lookup responses in a process-local layer
// backed by Redis when one is configured.
//
// Only single-shot lookup endpoints are cached (token info such as the bonding
// curve pool, total supply and creation timestamp), never paginated list pages:
// page fan-out must observe the upstream as it is at scan time.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.KeyFromURL(u)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, time.Hour))
//	}
//
// # Metrics
//
//   - gmgnscan_cache_hits_total{layer="memory"|"redis"}
//   - gmgnscan_cache_misses_total
//   - gmgnscan_cache_size_bytes{layer="memory"|"redis"}
//   - gmgnscan_cache_errors_total{operation}
package cache
