// Package testutil provides a mock upstream server for tests.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// MockResponse defines the behavior of a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// TradeFixture is one trade served by a mock trade history.
type TradeFixture struct {
	Maker     string   `json:"maker"`
	Event     string   `json:"event"`
	TxHash    string   `json:"tx_hash"`
	Timestamp int64    `json:"timestamp"`
	AmountUSD string   `json:"amount_usd,omitempty"`
	TokenTags []string `json:"maker_token_tags,omitempty"`
}

// MockUpstream is a configurable mock of the upstream API.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	latency  atomic.Int64
	inFlight atomic.Int32
	peak     atomic.Int32

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastRequestHost   string
}

// NewMockUpstream starts a mock server. Unknown paths answer 404.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := mock.inFlight.Add(1)
		defer mock.inFlight.Add(-1)
		for {
			p := mock.peak.Load()
			if n <= p || mock.peak.CompareAndSwap(p, n) {
				break
			}
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastRequestHost = r.Host
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if d := time.Duration(mock.latency.Load()); d > 0 {
			time.Sleep(d)
		}

		if !exists {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetData answers path with a success envelope around data.
func (m *MockUpstream) SetData(path string, data any) {
	m.SetResponse(path, NewDataResponse(data))
}

// Cursor returns the cursor that addresses page i of a mock trade history.
func Cursor(i int) string {
	if i == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("cursor-%d", i)))
}

// SetTradeHistory serves pages as a cursor-paginated trade history of
// address on chain. failFirst lists page indexes whose first request fails
// with 500.
func (m *MockUpstream) SetTradeHistory(chain, address string, pages [][]TradeFixture, failFirst ...int) {
	fail := make(map[string]bool, len(failFirst))
	for _, i := range failFirst {
		fail[Cursor(i)] = true
	}
	index := make(map[string]int, len(pages))
	for i := range pages {
		index[Cursor(i)] = i
	}

	var mu sync.Mutex
	m.SetHandler(fmt.Sprintf("/defi/quotation/v1/trades/%s/%s", chain, address), func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")

		mu.Lock()
		failNow := fail[cursor]
		fail[cursor] = false
		mu.Unlock()
		if failNow {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		i, ok := index[cursor]
		if !ok {
			writeJSON(w, http.StatusOK, envelopeOf(map[string]any{"history": []TradeFixture{}, "next": ""}))
			return
		}
		next := ""
		if i+1 < len(pages) {
			next = Cursor(i + 1)
		}
		history := pages[i]
		if history == nil {
			history = []TradeFixture{}
		}
		writeJSON(w, http.StatusOK, envelopeOf(map[string]any{"history": history, "next": next}))
	})
}

// SetLatency delays every request by d before it is handled.
func (m *MockUpstream) SetLatency(d time.Duration) {
	m.latency.Store(int64(d))
}

// PeakInFlight returns the highest number of concurrent requests seen.
func (m *MockUpstream) PeakInFlight() int {
	return int(m.peak.Load())
}

// LastHost returns the Host of the latest request.
func (m *MockUpstream) LastHost() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHost
}

// Count returns the number of requests made to path.
func (m *MockUpstream) Count(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func envelopeOf(data any) map[string]any {
	return map[string]any{"code": 0, "msg": "success", "data": data}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewDataResponse creates a 200 response with a success envelope around data.
func NewDataResponse(data any) MockResponse {
	body, err := json.Marshal(envelopeOf(data))
	if err != nil {
		panic(err)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  fmt.Sprint(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewBlockedResponse creates the 403 challenge page served to flagged clients.
func NewBlockedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `<html><title>Just a moment...</title></html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
