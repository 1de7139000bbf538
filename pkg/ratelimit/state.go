// Package ratelimit paces requests per upstream host and shares block cooldowns
// between scanner processes through Redis.
//
// The upstream answers automated traffic with 403/429/503 challenges. When one
// arrives, the host is put on cooldown for Retry-After (or the configured
// default) and every worker in every process holding the same Redis waits it out.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"
)

// Redis key layout for per-host throttle state.
const (
	RedisKeyPrefix = "gmgnscan:throttle:"

	fieldBlockedUntil = "blocked_until"
	fieldLastStatus   = "last_status"
	fieldBlocks       = "blocks"
	fieldLastUpdate   = "last_update"
)

// HostState is the throttle state of one upstream host.
type HostState struct {
	Host string `json:"host"`

	// BlockedUntil is when requests may resume after a challenge response.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the last HTTP status reported for this host.
	LastStatus int `json:"last_status"`

	// Blocks counts challenge responses seen since the state was created.
	Blocks int `json:"blocks"`

	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether the host is cooling down.
func (s *HostState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblock returns the remaining cooldown, 0 when not blocked.
func (s *HostState) TimeUntilUnblock() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsBlockStatus reports whether a status code signals anti-bot blocking.
func IsBlockStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

func redisKey(host string) string {
	return fmt.Sprintf("%s%s", RedisKeyPrefix, host)
}
