// Package pacing spaces out page fetches against the export service. It
// enforces a fixed inter-page delay and honors Retry-After cooldowns from
// 429/503 responses, sharing cooldown state across client instances via
// Redis so a throttled service is not hammered from several processes.
package pacing

import (
	"time"
)

// Redis keys for shared pacing state.
const (
	RedisKeyCooldownUntil = "export:pacing:cooldown_until"
	RedisKeyLastUpdate    = "export:pacing:last_update"
)

// DefaultPageDelay is the delay between successive page fetches. The export
// service tolerates roughly this request spacing without throttling.
const DefaultPageDelay = 120 * time.Millisecond

// State represents the shared pacing state.
type State struct {
	// CooldownUntil is the time before which no requests should be sent.
	// Set from Retry-After headers on throttled responses.
	CooldownUntil time.Time `json:"cooldown_until"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// Cooling returns true while the cooldown window is open.
func (s *State) Cooling() bool {
	return time.Now().Before(s.CooldownUntil)
}

// TimeUntilReady returns the remaining cooldown duration.
// Returns 0 when no cooldown is active.
func (s *State) TimeUntilReady() time.Duration {
	d := time.Until(s.CooldownUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
