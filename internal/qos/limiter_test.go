package qos

import (
	"testing"
	"time"
)

func TestNewPacketLimiter(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantLimited bool
	}{
		{"unlimited when pps is 0", Config{PacketsPerSecond: 0}, false},
		{"unlimited when pps is negative", Config{PacketsPerSecond: -1}, false},
		{"limited at 25 pps", Config{PacketsPerSecond: 25}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewPacketLimiter(tt.cfg)
			if l.IsLimited() != tt.wantLimited {
				t.Errorf("IsLimited() = %v, want %v", l.IsLimited(), tt.wantLimited)
			}
			if !tt.wantLimited && !l.Allow() {
				t.Error("unlimited limiter denied a packet")
			}
		})
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *PacketLimiter
	if l.IsLimited() {
		t.Fatal("nil limiter reports limited")
	}
	if !l.Allow() || !l.AllowAt(time.Now()) {
		t.Fatal("nil limiter denied a packet")
	}
}

func TestBucketNeverExceedsCapacity(t *testing.T) {
	l := NewPacketLimiter(Config{PacketsPerSecond: 25})
	base := time.Now()

	// The bucket starts full; a burst at one instant drains exactly capacity.
	allowed := 0
	for i := 0; i < 100; i++ {
		if l.AllowAt(base) {
			allowed++
		}
	}
	if allowed != 25 {
		t.Fatalf("initial burst allowed %d packets, want 25", allowed)
	}

	// A long idle period must not accumulate more than capacity.
	later := base.Add(time.Hour)
	allowed = 0
	for i := 0; i < 100; i++ {
		if l.AllowAt(later) {
			allowed++
		}
	}
	if allowed != 25 {
		t.Fatalf("post-idle burst allowed %d packets, want 25", allowed)
	}
}

func TestDenyDoesNotConsume(t *testing.T) {
	l := NewPacketLimiter(Config{PacketsPerSecond: 25})
	base := time.Now()

	for i := 0; i < 25; i++ {
		if !l.AllowAt(base) {
			t.Fatalf("packet %d denied with tokens remaining", i)
		}
	}
	// Bucket is empty; repeated denials must not dig below zero.
	for i := 0; i < 50; i++ {
		if l.AllowAt(base) {
			t.Fatal("packet allowed with empty bucket")
		}
	}
	// 40ms at 25 pps refills exactly one token.
	if !l.AllowAt(base.Add(40 * time.Millisecond)) {
		t.Fatal("refilled token not granted")
	}
	if l.AllowAt(base.Add(40 * time.Millisecond)) {
		t.Fatal("second packet allowed from a single refilled token")
	}
}

func TestVideoRateLimitScenario(t *testing.T) {
	// 100 video packets inside 10ms of wall clock forward at most the bucket
	// capacity plus refill rounding.
	l := NewPacketLimiter(Config{PacketsPerSecond: 25})
	base := time.Now()

	allowed := 0
	for i := 0; i < 100; i++ {
		at := base.Add(time.Duration(i) * 100 * time.Microsecond)
		if l.AllowAt(at) {
			allowed++
		}
	}
	if allowed < 25 || allowed > 26 {
		t.Fatalf("allowed %d packets in 10ms, want 25 (+1 refill rounding)", allowed)
	}
}

func TestLongRunRateConvergesToCapacity(t *testing.T) {
	l := NewPacketLimiter(Config{PacketsPerSecond: 10})
	base := time.Now()

	// Offer 100 packets per second for 5 seconds.
	allowed := 0
	for i := 0; i < 500; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if l.AllowAt(at) {
			allowed++
		}
	}
	// 5 seconds at 10 pps plus the initial full bucket.
	if allowed < 50 || allowed > 61 {
		t.Fatalf("long-run allowed %d packets, want ~50-60", allowed)
	}
}
