// Package serialport is the byte-level transport consumed by the bridge:
// query availability, read what is there, write. Device discovery and
// line-control quirks live behind Open and List; everything above this
// package sees only the Port interface.
package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const readChunk = 4096

// Port is the minimal serial surface the pumps need. Reads are non-blocking
// in spirit: BytesAvailable and ReadAvailable return promptly whether or not
// data arrived. A Port is read by exactly one pump and written by exactly
// one other; the implementation must tolerate that split.
type Port interface {
	Name() string
	BytesAvailable() int
	ReadAvailable() ([]byte, error)
	Write(p []byte) error
	Close() error
}

// List enumerates candidate serial devices on this host.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}

// Open opens a serial device at the given baud rate, 8N1, configured for
// low-latency polled reads.
func Open(name string, baud int) (Port, error) {
	mode := &serial.Mode{BaudRate: baud}
	inner, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	// A short read timeout turns blocking reads into "return whatever is
	// there"; the pump provides its own idle backoff on top.
	if err := inner.SetReadTimeout(time.Millisecond); err != nil {
		inner.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &serialPort{name: name, inner: inner}, nil
}

type serialPort struct {
	name  string
	inner serial.Port

	// pending holds bytes pulled off the device during BytesAvailable, and
	// readErr latches the first device failure so it reaches the caller.
	// Both touched only by the single reading pump.
	pending []byte
	readErr error
}

func (p *serialPort) Name() string { return p.name }

// BytesAvailable pulls whatever the device has buffered and reports how many
// bytes are waiting. The underlying library exposes only timed reads, so
// availability is observed by reading into the pending buffer. A latched
// read error counts as readable; ReadAvailable returns it once the pending
// bytes are drained.
func (p *serialPort) BytesAvailable() int {
	p.fill()
	if n := len(p.pending); n > 0 {
		return n
	}
	if p.readErr != nil {
		return 1
	}
	return 0
}

func (p *serialPort) fill() {
	if p.readErr != nil {
		return
	}
	var buf [readChunk]byte
	n, err := p.inner.Read(buf[:])
	if n > 0 {
		p.pending = append(p.pending, buf[:n]...)
	}
	if err != nil {
		p.readErr = err
	}
}

func (p *serialPort) ReadAvailable() ([]byte, error) {
	if len(p.pending) > 0 {
		out := p.pending
		p.pending = nil
		return out, nil
	}
	if p.readErr != nil {
		return nil, fmt.Errorf("read %s: %w", p.name, p.readErr)
	}
	var buf [readChunk]byte
	n, err := p.inner.Read(buf[:])
	if err != nil {
		p.readErr = err
		return nil, fmt.Errorf("read %s: %w", p.name, err)
	}
	return append([]byte(nil), buf[:n]...), nil
}

func (p *serialPort) Write(b []byte) error {
	for len(b) > 0 {
		n, err := p.inner.Write(b)
		if err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
		b = b[n:]
	}
	return nil
}

func (p *serialPort) Close() error {
	return p.inner.Close()
}
