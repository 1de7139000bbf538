package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile describes the TLS ClientHello an identity presents.
type Profile struct {
	Name    string
	Family  Family
	HelloID utls.ClientHelloID

	// randomized profiles are applied as-is; their hellos carry no ALPN.
	randomized bool
}

var profiles = map[Family]Profile{
	FamilyChrome:     {Name: "chrome_auto", Family: FamilyChrome, HelloID: utls.HelloChrome_Auto},
	FamilyFirefox:    {Name: "firefox_auto", Family: FamilyFirefox, HelloID: utls.HelloFirefox_Auto},
	FamilySafari:     {Name: "safari_auto", Family: FamilySafari, HelloID: utls.HelloSafari_Auto},
	FamilyEdge:       {Name: "edge_auto", Family: FamilyEdge, HelloID: utls.HelloEdge_Auto},
	FamilyIOS:        {Name: "ios_auto", Family: FamilyIOS, HelloID: utls.HelloIOS_Auto},
	FamilyRandomized: {Name: "randomized", Family: FamilyRandomized, HelloID: utls.HelloRandomizedNoALPN, randomized: true},
}

// Transport builds an HTTP/1.1 transport that performs the profile's TLS handshake.
// The transport is meant for a single logical request; callers should
// CloseIdleConnections when done.
func (p Profile) Transport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return p.dialTLS(ctx, dialer, network, addr)
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		ForceAttemptHTTP2:     false,
	}
}

func (p Profile) dialTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("split host port: %w", err)
	}

	raw, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	conn, err := p.uclient(raw, &utls.Config{ServerName: host, NextProtos: []string{"http/1.1"}})
	if err != nil {
		raw.Close()
		return nil, err
	}

	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake (%s): %w", p.Name, err)
	}
	return conn, nil
}

// uclient builds the uTLS connection. Browser presets advertise h2 in ALPN,
// which would break the http/1.1 transport, so ALPN is rewritten.
func (p Profile) uclient(raw net.Conn, cfg *utls.Config) (*utls.UConn, error) {
	if p.randomized {
		return utls.UClient(raw, cfg, p.HelloID), nil
	}

	spec, err := utls.UTLSIdToSpec(p.HelloID)
	if err != nil {
		return nil, fmt.Errorf("client hello spec (%s): %w", p.Name, err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	conn := utls.UClient(raw, cfg, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("apply client hello (%s): %w", p.Name, err)
	}
	return conn, nil
}
