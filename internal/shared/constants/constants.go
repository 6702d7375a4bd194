package constants

import "time"

const (
	// DefaultBaud matches the firmware flashed on both radios.
	DefaultBaud = 921600

	// ==================== Pump scheduling ====================
	// The serial transport only exposes "bytes available", so the pump
	// busy-polls with a bounded sleep. Both knobs are deliberately explicit.

	// PumpIdleSleep is how long a pump sleeps when the read side has no
	// bytes available.
	PumpIdleSleep = 500 * time.Microsecond

	// IdentifyPollInterval is the idle sleep while waiting for HELLO frames
	// during role detection.
	IdentifyPollInterval = 10 * time.Millisecond

	// ==================== Role detection ====================

	// DefaultRoleTimeout bounds role confirmation on an explicitly named
	// device pair.
	DefaultRoleTimeout = 6 * time.Second

	// DefaultScanTimeout bounds the per-device probe during auto-discovery.
	DefaultScanTimeout = 3 * time.Second

	// ==================== Traffic classes ====================

	// DefaultVideoPort is the UDP source port of the camera stream. The
	// serial links cannot carry it at native rate, so it is the one
	// rate-limited class.
	DefaultVideoPort = 7070

	// DefaultVideoPPS is the per-direction forwarded ceiling for video
	// packets. 25 pps keeps the control plane responsive and still shows a
	// few FPS in the app.
	DefaultVideoPPS = 25

	// ==================== Sinks ====================

	// LoggerQueueSize is the generic JSONL logger's bounded queue. Records
	// past this are dropped, never blocked on.
	LoggerQueueSize = 10000

	// ProtoQueueSize is the protocol logger's bounded queue.
	ProtoQueueSize = 20000

	// SinkFlushInterval is the wall-clock flush cadence for JSONL sinks;
	// flushing per record would multiply write amplification.
	SinkFlushInterval = 1 * time.Second

	// SinkWriteBufferSize buffers JSONL writes between flushes.
	SinkWriteBufferSize = 1 << 20

	// CaptureMaxBytes caps the raw capture file; further writes are
	// silently dropped once reached.
	CaptureMaxBytes = 50 << 20

	// SinkMaxLogSizeMB / SinkMaxBackups rotate the JSONL files.
	SinkMaxLogSizeMB = 100
	SinkMaxBackups   = 5

	// ==================== Console output pacing ====================

	// TelemetryPrintInterval throttles drone->phone telemetry samples on
	// the console.
	TelemetryPrintInterval = 1 * time.Second

	// CmdRepeatFlushInterval is how often a repeated command payload is
	// summarized when static printing is enabled.
	CmdRepeatFlushInterval = 1 * time.Second

	// ==================== Misc defaults ====================

	DefaultLogDir   = "logs"
	DefaultTapBytes = 48

	// StatsInterval is the cadence of the bridge's traffic summary line.
	StatsInterval = 10 * time.Second
)

// DefaultUDPPorts are the application (command/telemetry) UDP ports the
// protocol logger and capture writer care about.
func DefaultUDPPorts() []uint16 { return []uint16{40000, 50000} }

// DefaultTCPPorts are the proxied TCP ports of interest.
func DefaultTCPPorts() []uint16 { return []uint16{7060, 8060, 9060} }

// DefaultTapPorts is the default destination-port filter for tap output.
func DefaultTapPorts() []uint16 {
	return []uint16{40000, 50000, 7070, 7060, 8060, 9060}
}
