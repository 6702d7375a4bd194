package stats

import (
	"sync/atomic"
	"time"
)

// DirectionStats counts traffic for one pump direction. All methods are safe
// for concurrent use; the pump writes, the bridge's summary ticker reads.
type DirectionStats struct {
	framesDecoded   atomic.Int64
	framesForwarded atomic.Int64
	bytesForwarded  atomic.Int64
	videoDropped    atomic.Int64

	startTime time.Time
}

func NewDirectionStats() *DirectionStats {
	return &DirectionStats{startTime: time.Now()}
}

func (s *DirectionStats) AddDecoded(n int64) { s.framesDecoded.Add(n) }

func (s *DirectionStats) AddForwarded(b int64) {
	s.framesForwarded.Add(1)
	s.bytesForwarded.Add(b)
}

func (s *DirectionStats) AddVideoDropped() { s.videoDropped.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesDecoded   int64
	FramesForwarded int64
	BytesForwarded  int64
	VideoDropped    int64
	Uptime          time.Duration
}

func (s *DirectionStats) GetSnapshot() Snapshot {
	return Snapshot{
		FramesDecoded:   s.framesDecoded.Load(),
		FramesForwarded: s.framesForwarded.Load(),
		BytesForwarded:  s.bytesForwarded.Load(),
		VideoDropped:    s.videoDropped.Load(),
		Uptime:          time.Since(s.startTime),
	}
}
