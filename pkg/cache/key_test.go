package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "token info",
			key: CacheKey{
				Host:     "gmgn.ai",
				Endpoint: "/defi/quotation/v1/tokens/sol/abc",
			},
			want: "gmgnscan:gmgn.ai:defi/quotation/v1/tokens/sol/abc",
		},
		{
			name: "host is lower-cased",
			key: CacheKey{
				Host:     "GMGN.AI",
				Endpoint: "/api/v1/wallet_stat/sol/w1/7d",
			},
			want: "gmgnscan:gmgn.ai:api/v1/wallet_stat/sol/w1/7d",
		},
		{
			name: "sorted query params",
			key: CacheKey{
				Host:     "gmgn.ai",
				Endpoint: "/defi/quotation/v1/rank/sol/pump",
				QueryParams: url.Values{
					"limit":   []string{"100"},
					"orderby": []string{"created_timestamp"},
				},
			},
			want: "gmgnscan:gmgn.ai:defi/quotation/v1/rank/sol/pump:limit=100:orderby=created_timestamp",
		},
		{
			name: "repeated query values keep order",
			key: CacheKey{
				Endpoint: "/rank",
				QueryParams: url.Values{
					"filters[]": []string{"not_wash_trading", "has_social"},
				},
			},
			want: "gmgnscan:rank:filters[]=not_wash_trading,has_social",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "gmgnscan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyFromURL(t *testing.T) {
	u, err := url.Parse("https://gmgn.ai/defi/quotation/v1/tokens/sol/abc?b=2&a=1")
	if err != nil {
		t.Fatal(err)
	}

	got := KeyFromURL(u).String()
	want := "gmgnscan:gmgn.ai:defi/quotation/v1/tokens/sol/abc:a=1:b=2"
	if got != want {
		t.Errorf("KeyFromURL() = %v, want %v", got, want)
	}

	if KeyFromURL(nil).String() != "gmgnscan" {
		t.Error("KeyFromURL(nil) should produce the bare prefix")
	}
}

func TestCacheKey_Determinism(t *testing.T) {
	key := CacheKey{
		Host:     "gmgn.ai",
		Endpoint: "/vas/api/v1/token_trades/sol/abc",
		QueryParams: url.Values{
			"revert": []string{"true"},
			"limit":  []string{"20"},
			"event":  []string{"buy"},
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("iteration %d = %v, want %v (not deterministic)", i, got, first)
		}
	}
}
