// Package ratelimit coordinates upstream 429 cooldowns across concurrent
// callers. When one request is told to back off, every other request that
// shares the same Store waits out the same window before its next attempt.
package ratelimit

import (
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyBlockedUntil = "ashby:rate_limit:blocked_until"
)

// MaxCooldown caps a single cooldown window. Upstream Retry-After values
// above this are clamped.
const MaxCooldown = 5 * time.Minute

// CooldownState is a snapshot of the shared cooldown.
type CooldownState struct {
	// BlockedUntil is the instant requests may resume. Zero means no cooldown
	// has been recorded.
	BlockedUntil time.Time `json:"blocked_until"`

	// ObservedAt is when the snapshot was taken.
	ObservedAt time.Time `json:"observed_at"`
}

// Active reports whether requests should still be held back.
func (s CooldownState) Active() bool {
	return s.BlockedUntil.After(s.ObservedAt)
}

// Remaining returns how long callers must still wait. Returns 0 once the
// window has passed.
func (s CooldownState) Remaining() time.Duration {
	if !s.Active() {
		return 0
	}
	return s.BlockedUntil.Sub(s.ObservedAt)
}

// clampWait bounds a requested cooldown to [0, MaxCooldown].
func clampWait(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}
