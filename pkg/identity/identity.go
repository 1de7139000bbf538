// Package identity produces per-request transport identities: a TLS ClientHello
// profile paired with a browser-like header set.
//
// Every call to NewIdentity returns an independent value. Nothing is cached on
// the Rotator between calls, so concurrent callers never share a fingerprint.
package identity

import (
	"math/rand/v2"
	"net/http"
	"strings"
)

// Family names a browser family whose TLS fingerprint and user agents are mimicked.
type Family string

const (
	FamilyChrome     Family = "chrome"
	FamilyFirefox    Family = "firefox"
	FamilySafari     Family = "safari"
	FamilyEdge       Family = "edge"
	FamilyIOS        Family = "ios"
	FamilyRandomized Family = "randomized"
)

// Identity is a transport profile plus the headers to send with it.
type Identity struct {
	Profile Profile
	Header  http.Header
}

// Config holds the rotator configuration.
type Config struct {
	// Families restricts which fingerprint families may be selected.
	// Empty means every known family.
	Families []Family

	// UserAgents overrides the built-in user agent pool per family.
	UserAgents map[Family][]string

	// Host builds the default referer. The Host header itself always follows
	// the request URL.
	Host string

	// Referer overrides the default "https://<host>/?chain=sol" referer.
	Referer string

	// AcceptLanguage header value.
	AcceptLanguage string

	// ExtraHeaders are added to every identity (e.g. from_app, app_lang).
	ExtraHeaders map[string]string
}

// DefaultConfig returns a configuration targeting gmgn.ai.
func DefaultConfig() Config {
	return Config{
		Families:       []Family{FamilyChrome, FamilyFirefox, FamilySafari, FamilyEdge},
		Host:           "gmgn.ai",
		AcceptLanguage: "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
	}
}

// Rotator hands out fresh identities.
type Rotator struct {
	families   []Family
	userAgents map[Family][]string
	referer    string
	language   string
	extra      map[string]string
}

// NewRotator creates a rotator. Unknown families are ignored; if none remain,
// every call yields DefaultIdentity.
func NewRotator(cfg Config) *Rotator {
	families := make([]Family, 0, len(cfg.Families))
	for _, f := range cfg.Families {
		if _, ok := profiles[f]; ok {
			families = append(families, f)
		}
	}

	agents := make(map[Family][]string, len(builtinUserAgents))
	for f, pool := range builtinUserAgents {
		agents[f] = pool
	}
	for f, pool := range cfg.UserAgents {
		if len(pool) > 0 {
			agents[f] = append([]string(nil), pool...)
		}
	}

	extra := make(map[string]string, len(cfg.ExtraHeaders))
	for k, v := range cfg.ExtraHeaders {
		extra[k] = v
	}

	referer := cfg.Referer
	if referer == "" && cfg.Host != "" {
		referer = "https://" + cfg.Host + "/?chain=sol"
	}

	language := cfg.AcceptLanguage
	if language == "" {
		language = "en-US,en;q=0.9"
	}

	return &Rotator{
		families:   families,
		userAgents: agents,
		referer:    referer,
		language:   language,
		extra:      extra,
	}
}

// NewIdentity returns a fresh identity. It never fails.
func (r *Rotator) NewIdentity() Identity {
	if r == nil || len(r.families) == 0 {
		return DefaultIdentity()
	}

	family := r.families[rand.IntN(len(r.families))]
	profile, ok := profiles[family]
	if !ok {
		return DefaultIdentity()
	}

	ua := pick(r.userAgents[uaFamily(family)])
	if ua == "" {
		ua = defaultUserAgent
	}

	return Identity{
		Profile: profile,
		Header:  r.headers(ua),
	}
}

func (r *Rotator) headers(userAgent string) http.Header {
	h := make(http.Header, 8+len(r.extra))
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", r.language)
	h.Set("Dnt", "1")
	h.Set("Priority", "u=1, i")
	if r.referer != "" {
		h.Set("Referer", r.referer)
	}
	h.Set("User-Agent", userAgent)
	for k, v := range r.extra {
		h.Set(k, v)
	}
	return h
}

// DefaultIdentity is the fallback identity: chrome fingerprint, built-in UA.
func DefaultIdentity() Identity {
	h := make(http.Header, 4)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("User-Agent", defaultUserAgent)
	return Identity{
		Profile: profiles[FamilyChrome],
		Header:  h,
	}
}

// ParseFamilies converts configuration strings into families, skipping blanks.
func ParseFamilies(names []string) []Family {
	out := make([]Family, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		out = append(out, Family(n))
	}
	return out
}

// uaFamily maps fingerprint families without their own UA pool onto one that has.
func uaFamily(f Family) Family {
	switch f {
	case FamilyRandomized:
		return FamilyChrome
	default:
		return f
	}
}

func pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}
