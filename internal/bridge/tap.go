package bridge

import (
	"bytes"
	"time"
)

// TapConfig is the ad-hoc debugging surface: print the first N UDP/TCP_DATA
// frames per direction, with a payload byte cap and an optional destination
// port filter. Built once at startup and handed to each pump by value.
type TapConfig struct {
	UDPFrames   int
	TCPFrames   int
	Bytes       int
	Ports       []uint16 // empty means all ports
	PrintStatic bool     // also summarize repeated command payloads
}

type tapState struct {
	udpLeft int
	tcpLeft int
	bytes   int
	ports   map[uint16]struct{} // nil means all
}

func newTapState(cfg TapConfig) tapState {
	st := tapState{udpLeft: cfg.UDPFrames, tcpLeft: cfg.TCPFrames, bytes: cfg.Bytes}
	if len(cfg.Ports) > 0 {
		st.ports = make(map[uint16]struct{}, len(cfg.Ports))
		for _, p := range cfg.Ports {
			st.ports[p] = struct{}{}
		}
	}
	return st
}

func (t *tapState) wantPort(port uint16) bool {
	if t.ports == nil {
		return true
	}
	_, ok := t.ports[port]
	return ok
}

// takeUDP consumes one UDP tap slot if available for this port.
func (t *tapState) takeUDP(port uint16) bool {
	if t.udpLeft <= 0 || !t.wantPort(port) {
		return false
	}
	t.udpLeft--
	return true
}

func (t *tapState) takeTCP(port uint16) bool {
	if t.tcpLeft <= 0 || !t.wantPort(port) {
		return false
	}
	t.tcpLeft--
	return true
}

// cmdKey identifies one phone->drone command stream.
type cmdKey struct {
	conn uint16
	port uint16
}

// cmdObservation tells the pump what to print for an observed command
// payload.
type cmdObservation struct {
	Print       bool // print the current payload line
	Repeats     int  // >0: current payload repeated this many times
	FlushedPrev int  // >0: the previous payload repeated this many times before changing
}

// cmdTracker suppresses repetitive phone->drone command output: a payload is
// printed when first seen or when it changes; static repeats are summarized
// at most once per flush interval, and only when static printing is enabled.
// Owned by a single pump; not safe for concurrent use.
type cmdTracker struct {
	last        map[cmdKey][]byte
	repeats     map[cmdKey]int
	lastPrint   map[cmdKey]time.Time
	flushEvery  time.Duration
	printStatic bool
}

func newCmdTracker(flushEvery time.Duration, printStatic bool) *cmdTracker {
	return &cmdTracker{
		last:        make(map[cmdKey][]byte),
		repeats:     make(map[cmdKey]int),
		lastPrint:   make(map[cmdKey]time.Time),
		flushEvery:  flushEvery,
		printStatic: printStatic,
	}
}

func (t *cmdTracker) observe(key cmdKey, payload []byte, now time.Time) cmdObservation {
	prev, seen := t.last[key]
	if !seen {
		t.last[key] = append([]byte(nil), payload...)
		t.repeats[key] = 1
		t.lastPrint[key] = now
		return cmdObservation{Print: true}
	}

	if bytes.Equal(prev, payload) {
		t.repeats[key]++
		if t.printStatic && now.Sub(t.lastPrint[key]) >= t.flushEvery {
			reps := t.repeats[key]
			t.repeats[key] = 0
			t.lastPrint[key] = now
			return cmdObservation{Print: true, Repeats: reps}
		}
		return cmdObservation{}
	}

	// Payload changed.
	obs := cmdObservation{Print: true}
	if t.printStatic && t.repeats[key] > 1 {
		obs.FlushedPrev = t.repeats[key]
	}
	t.last[key] = append([]byte(nil), payload...)
	t.repeats[key] = 1
	t.lastPrint[key] = now
	return obs
}
