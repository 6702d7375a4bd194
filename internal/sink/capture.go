package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sfbridge/internal/metrics"
	"sfbridge/internal/protocol"
	"sfbridge/internal/shared/constants"
)

// CaptureWriter appends raw wire bytes for selected frames to a single
// growing binary file, for byte-exact offline replay through the decoder.
// TCP frames on any port and UDP frames on the application ports are kept;
// video is excluded so the capture stays small enough to diff between runs.
//
// Writes are synchronous under a mutex held only for the counter/file pair;
// each write is a few KiB to the page cache, never a blocking wait. Once the
// size cap is reached further writes are silently dropped.
type CaptureWriter struct {
	mu       sync.Mutex
	f        *os.File
	n        int64
	maxBytes int64
	udpPorts map[uint16]struct{}
	path     string
}

// NewCaptureWriter creates a capture file under dir, keeping UDP frames on
// the given ports.
func NewCaptureWriter(dir string, udpPorts []uint16) (*CaptureWriter, error) {
	return newCaptureWriter(dir, udpPorts, constants.CaptureMaxBytes)
}

func newCaptureWriter(dir string, udpPorts []uint16, maxBytes int64) (*CaptureWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("capture_%d.sf.bin", time.Now().Unix()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	return &CaptureWriter{
		f:        f,
		maxBytes: maxBytes,
		udpPorts: portSet(udpPorts),
		path:     path,
	}, nil
}

// Path returns the capture file location.
func (c *CaptureWriter) Path() string { return c.path }

// Want reports whether the frame belongs to the captured subset.
func (c *CaptureWriter) Want(fr protocol.Frame) bool {
	if fr.Type.IsTCP() {
		return true
	}
	if fr.Type == protocol.TypeUDP {
		_, ok := c.udpPorts[fr.Port]
		return ok
	}
	return false
}

// Write appends the raw wire bytes when the frame matches. Best-effort: a
// full file or write error is swallowed, capture never affects forwarding.
func (c *CaptureWriter) Write(fr protocol.Frame, raw []byte) {
	if len(raw) == 0 || !c.Want(fr) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil || c.n+int64(len(raw)) > c.maxBytes {
		return
	}
	if _, err := c.f.Write(raw); err != nil {
		return
	}
	c.n += int64(len(raw))
	metrics.CaptureBytes.Add(float64(len(raw)))
}

// Close flushes and closes the capture file. Safe to call twice.
func (c *CaptureWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
