package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Host is the upstream host (e.g., "gmgn.ai")
	Host string

	// Endpoint is the request path (e.g., "/defi/quotation/v1/tokens/sol/<address>")
	Endpoint string

	// QueryParams are the query parameters
	QueryParams url.Values
}

// KeyFromURL builds a key from a request URL.
func KeyFromURL(u *url.URL) CacheKey {
	if u == nil {
		return CacheKey{}
	}
	return CacheKey{
		Host:        u.Hostname(),
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: gmgnscan:host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	gmgnscan:gmgn.ai:defi/quotation/v1/tokens/sol/abc
func (k CacheKey) String() string {
	parts := []string{"gmgnscan"}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism; repeated values joined in order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
