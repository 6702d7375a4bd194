// Package sink holds the logging and capture consumers fed by the pumps.
// Every sink shares one contract: the producer never waits. Records go into
// a bounded queue drained by a background worker; when the queue is full the
// record is dropped, trading logging completeness for forwarding latency.
package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"

	"sfbridge/internal/metrics"
	"sfbridge/internal/protocol"
	"sfbridge/internal/shared/constants"
	"sfbridge/internal/shared/utils"
)

// payloadPreviewBytes caps the hex preview in generic records.
const payloadPreviewBytes = 96

type genericRecord struct {
	TS         float64 `json:"ts"`
	Dir        string  `json:"dir"`
	Dev        string  `json:"dev"`
	Type       string  `json:"type"`
	Conn       uint16  `json:"conn"`
	Port       uint16  `json:"port"`
	Len        int     `json:"len"`
	PayloadHex string  `json:"payload_hex"`
}

// Logger records every frame, regardless of type or port, as one compact
// JSONL line.
type Logger struct {
	queue chan genericRecord
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	out  *bufio.Writer
	file *lumberjack.Logger
}

// NewLogger creates the generic JSONL sink writing under dir and starts its
// worker.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "bridge.jsonl"),
		MaxSize:    constants.SinkMaxLogSizeMB,
		MaxBackups: constants.SinkMaxBackups,
	}

	l := &Logger{
		queue: make(chan genericRecord, constants.LoggerQueueSize),
		done:  make(chan struct{}),
		out:   bufio.NewWriterSize(file, constants.SinkWriteBufferSize),
		file:  file,
	}

	l.wg.Add(1)
	go l.worker()
	return l, nil
}

// Offer enqueues a record for the frame. Never blocks; drops when the queue
// is full.
func (l *Logger) Offer(direction, device string, fr protocol.Frame) {
	rec := genericRecord{
		TS:         float64(time.Now().UnixNano()) / 1e9,
		Dir:        direction,
		Dev:        device,
		Type:       fr.Type.String(),
		Conn:       fr.Conn,
		Port:       fr.Port,
		Len:        len(fr.Payload),
		PayloadHex: utils.HexHead(fr.Payload, payloadPreviewBytes),
	}

	select {
	case l.queue <- rec:
	default:
		metrics.SinkRecordsDropped.WithLabelValues("jsonl").Inc()
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(constants.SinkFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.queue:
			l.writeRecord(rec)
		case <-ticker.C:
			_ = l.out.Flush()
		case <-l.done:
			// Drain what is already queued, then flush once.
			for {
				select {
				case rec := <-l.queue:
					l.writeRecord(rec)
				default:
					_ = l.out.Flush()
					return
				}
			}
		}
	}
}

func (l *Logger) writeRecord(rec genericRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = l.out.Write(data)
}

// Close stops the worker, flushes, and closes the file. Safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
	return l.file.Close()
}
