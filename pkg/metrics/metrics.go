// Package metrics exposes the Prometheus registry shared by all packages.
// Collectors are defined next to the code they measure (client, cache,
// ratelimit, pagination, aggregate, scan) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "gmgnscan"

// Registry is the registerer used by promauto in every package.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gmgnscan_requests_total{endpoint, status, strategy} (Counter)
//   - gmgnscan_request_duration_seconds{endpoint} (Histogram): logical request incl. retries
//   - gmgnscan_errors_total{class} (Counter): failed strategy calls (transport, protocol, cancelled)
//   - gmgnscan_fallback_total{outcome} (Counter)
//
// Retry Metrics (pkg/client):
//   - gmgnscan_retries_total{error_class} (Counter)
//   - gmgnscan_retry_delay_seconds (Histogram)
//   - gmgnscan_retry_exhausted_total{error_class} (Counter)
//
// Throttle Metrics (pkg/ratelimit):
//   - gmgnscan_throttle_waits_total (Counter): token bucket delays
//   - gmgnscan_throttle_blocks_total (Counter): 403/429/503 responses that start a cooldown
//   - gmgnscan_throttle_cooldown_seconds (Histogram)
//
// Cache Metrics (pkg/cache):
//   - gmgnscan_cache_hits_total, gmgnscan_cache_misses_total (Counter)
//   - gmgnscan_cache_size_bytes (Gauge)
//   - gmgnscan_cache_errors_total{operation} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - gmgnscan_discovery_stops_total{reason} (Counter)
//   - gmgnscan_discovered_pages (Histogram)
//   - gmgnscan_page_fetches_total{outcome} (Counter)
//   - gmgnscan_fetch_workers_busy (Gauge)
//
// Aggregation and Scan Metrics (pkg/aggregate, pkg/scan):
//   - gmgnscan_aggregated_records_total{outcome} (Counter): accepted, duplicate, filtered, malformed
//   - gmgnscan_scans_total{operation} (Counter)
//   - gmgnscan_scan_duration_seconds{operation} (Histogram)
//   - gmgnscan_scan_resource_failures_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Pages lost during fan-out
//   rate(gmgnscan_page_fetches_total{outcome="failed"}[5m])
//
//   # Share of requests served by the fallback strategy
//   sum(rate(gmgnscan_requests_total{strategy="standard"}[5m])) / sum(rate(gmgnscan_requests_total[5m]))
//
//   # Discoveries cut short by the page cap
//   rate(gmgnscan_discovery_stops_total{reason="page_cap"}[1h])
