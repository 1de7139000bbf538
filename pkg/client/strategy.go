package client

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/identity"
)

// Strategy sends one HTTP request with a given identity. The executor tries its
// strategies in order within a single attempt.
type Strategy interface {
	Name() string
	Do(req *http.Request, id identity.Identity, timeout time.Duration) (*http.Response, error)
}

// FingerprintStrategy sends the request over a fresh transport that presents
// the identity's TLS ClientHello.
type FingerprintStrategy struct{}

// Name implements Strategy.
func (FingerprintStrategy) Name() string { return "fingerprint" }

// Do implements Strategy. The transport is discarded when the body is closed.
func (FingerprintStrategy) Do(req *http.Request, id identity.Identity, timeout time.Duration) (*http.Response, error) {
	tr := id.Profile.Transport(timeout)
	resp, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		tr.CloseIdleConnections()
		return nil, err
	}
	resp.Body = &transportBody{ReadCloser: resp.Body, tr: tr}
	return resp, nil
}

type transportBody struct {
	io.ReadCloser
	tr *http.Transport
}

func (b *transportBody) Close() error {
	err := b.ReadCloser.Close()
	b.tr.CloseIdleConnections()
	return err
}

// StandardStrategy is the fallback: the Go TLS stack with HTTP/2 and a cookie
// jar, so challenge cookies set by one response are replayed on the next.
type StandardStrategy struct {
	client *http.Client
}

// NewStandardStrategy creates the fallback strategy.
func NewStandardStrategy() *StandardStrategy {
	jar, _ := cookiejar.New(nil)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ForceAttemptHTTP2 = true
	return &StandardStrategy{client: &http.Client{Transport: tr, Jar: jar}}
}

// Name implements Strategy.
func (s *StandardStrategy) Name() string { return "standard" }

// Do implements Strategy. The per-attempt deadline comes from the request context.
func (s *StandardStrategy) Do(req *http.Request, id identity.Identity, _ time.Duration) (*http.Response, error) {
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	return s.client.Do(req)
}

// Close releases pooled connections.
func (s *StandardStrategy) Close() {
	s.client.CloseIdleConnections()
}
