package qos

import (
	"time"

	"golang.org/x/time/rate"
)

// Config configures the per-direction packet limiter. PacketsPerSecond is
// both the sustained rate and the bucket capacity; zero disables limiting.
type Config struct {
	PacketsPerSecond int
}

// PacketLimiter is a token bucket gating the high-volume video class. The
// bucket starts full, refills at the configured rate, and a denied packet
// never consumes a token. One limiter is owned by exactly one pump
// direction; it never sleeps.
type PacketLimiter struct {
	limiter *rate.Limiter
}

func NewPacketLimiter(cfg Config) *PacketLimiter {
	l := &PacketLimiter{}
	if cfg.PacketsPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.PacketsPerSecond), cfg.PacketsPerSecond)
	}
	return l
}

// IsLimited reports whether a rate ceiling is configured.
func (l *PacketLimiter) IsLimited() bool {
	return l != nil && l.limiter != nil
}

// Allow reports whether one packet may be forwarded now. When it returns
// false the caller must drop the packet.
func (l *PacketLimiter) Allow() bool {
	if !l.IsLimited() {
		return true
	}
	return l.limiter.Allow()
}

// AllowAt is Allow with an explicit clock, for deterministic tests.
func (l *PacketLimiter) AllowAt(t time.Time) bool {
	if !l.IsLimited() {
		return true
	}
	return l.limiter.AllowN(t, 1)
}
