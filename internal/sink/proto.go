package sink

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"

	"sfbridge/internal/metrics"
	"sfbridge/internal/protocol"
	"sfbridge/internal/shared/constants"
)

const (
	// Full payload hex up to this size; only the head beyond it.
	protoFullHexLimit = 512
	protoHeadBytes    = 128
)

// ssidPattern finds the radio's advertised network identifier anywhere in a
// payload.
var ssidPattern = regexp.MustCompile(`RADCLOFPV_[0-9]+`)

// ProtoConfig selects the frame classes of interest: UDP on the application
// ports plus the proxied-TCP family on the TCP ports.
type ProtoConfig struct {
	UDPPorts []uint16
	TCPPorts []uint16
}

// ProtoLogger is the focused reverse-engineering sink. It writes a richer
// JSONL record per matching frame, including best-effort heuristic decodes
// of observed sub-fields. The heuristics are annotations inferred from
// traffic, never validated protocol truth.
type ProtoLogger struct {
	udpPorts map[uint16]struct{}
	tcpPorts map[uint16]struct{}

	queue chan map[string]any
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	out   *bufio.Writer
	file  *lumberjack.Logger
	start time.Time
}

// NewProtoLogger creates the protocol sink writing under dir and starts its
// worker.
func NewProtoLogger(dir string, cfg ProtoConfig) (*ProtoLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "proto.jsonl"),
		MaxSize:    constants.SinkMaxLogSizeMB,
		MaxBackups: constants.SinkMaxBackups,
	}

	p := &ProtoLogger{
		udpPorts: portSet(cfg.UDPPorts),
		tcpPorts: portSet(cfg.TCPPorts),
		queue:    make(chan map[string]any, constants.ProtoQueueSize),
		done:     make(chan struct{}),
		out:      bufio.NewWriterSize(file, constants.SinkWriteBufferSize),
		file:     file,
		start:    time.Now(),
	}

	p.wg.Add(1)
	go p.worker()
	return p, nil
}

func portSet(ports []uint16) map[uint16]struct{} {
	s := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

// Want reports whether the frame belongs to a class this sink records.
func (p *ProtoLogger) Want(fr protocol.Frame) bool {
	if fr.Type == protocol.TypeUDP {
		_, ok := p.udpPorts[fr.Port]
		return ok
	}
	if fr.Type.IsTCP() {
		_, ok := p.tcpPorts[fr.Port]
		return ok
	}
	return false
}

// Offer enqueues a record when the frame matches. Never blocks.
func (p *ProtoLogger) Offer(direction, device string, fr protocol.Frame) {
	if !p.Want(fr) {
		return
	}

	rec := p.buildRecord(direction, device, fr)

	select {
	case p.queue <- rec:
	default:
		metrics.SinkRecordsDropped.WithLabelValues("proto").Inc()
	}
}

func (p *ProtoLogger) buildRecord(direction, device string, fr protocol.Frame) map[string]any {
	now := time.Now()

	// Normalize the pump direction into a flow label.
	var flow string
	switch direction {
	case "AP->STA":
		flow = "phone->drone"
	case "STA->AP":
		flow = "drone->phone"
	default:
		flow = direction
	}

	transport := "tcp"
	if fr.Type == protocol.TypeUDP {
		transport = "udp"
	}

	rec := map[string]any{
		"ts":        float64(now.UnixNano()) / 1e9,
		"t_rel_ms":  now.Sub(p.start).Milliseconds(),
		"flow":      flow,
		"kind":      flow + ":" + transport,
		"sf_dir":    direction,
		"dev":       device,
		"transport": transport,
		"sf_type":   fr.Type.String(),
		"conn":      fr.Conn,
		"port":      fr.Port,
		"len":       len(fr.Payload),
	}

	if len(fr.Payload) > 0 {
		if len(fr.Payload) <= protoFullHexLimit {
			rec["payload_hex"] = hex.EncodeToString(fr.Payload)
		} else {
			rec["payload_head_hex"] = hex.EncodeToString(fr.Payload[:protoHeadBytes])
		}
	}

	if transport == "udp" {
		// For UDP, conn carries the phone-side port and port the drone-side
		// port; which is source and which destination depends on the flow.
		switch flow {
		case "phone->drone":
			rec["phone_src_port"] = fr.Conn
			rec["drone_dst_port"] = fr.Port
		case "drone->phone":
			rec["phone_dst_port"] = fr.Conn
			rec["drone_src_port"] = fr.Port
		}
		annotateUDPCC(rec, fr.Payload)
		if len(fr.Payload) >= 4 {
			rec["cc_opcode_u16le_2"] = binary.LittleEndian.Uint16(fr.Payload[2:4])
		}
		if m := ssidPattern.Find(fr.Payload); m != nil {
			rec["ssid"] = string(m)
		}
	} else {
		rec["tcp_port"] = fr.Port
		annotateTCPLewei(rec, fr.Payload)
	}

	return rec
}

// annotateUDPCC extracts the sub-fields observed behind the 0x63 0x63 ("cc")
// marker many UDP payloads start with.
func annotateUDPCC(rec map[string]any, payload []byte) {
	if len(payload) < 2 || payload[0] != 0x63 || payload[1] != 0x63 {
		return
	}
	rec["cc"] = true
	if len(payload) >= 3 {
		rec["cc_type_u8"] = payload[2]
	}
	if len(payload) >= 4 {
		rec["cc_b3_u8"] = payload[3]
	}
	if len(payload) >= 5 {
		rec["cc_u16le_3"] = binary.LittleEndian.Uint16(payload[3:5])
	}
	if len(payload) >= 7 {
		rec["cc_u16le_5"] = binary.LittleEndian.Uint16(payload[5:7])
		rec["cc_u32le_3"] = binary.LittleEndian.Uint32(payload[3:7])
	}
}

// annotateTCPLewei extracts the big-endian command-type field observed after
// the "lewei_cmd" text marker on proxied TCP payloads.
func annotateTCPLewei(rec map[string]any, payload []byte) {
	if len(payload) < len("lewei_cmd") || string(payload[:len("lewei_cmd")]) != "lewei_cmd" {
		return
	}
	rec["lewei_cmd"] = true
	if len(payload) >= 11 {
		rec["cmd_type_u16be"] = binary.BigEndian.Uint16(payload[9:11])
	}
	if len(payload) >= 15 {
		rec["cmd_word0_u32be"] = binary.BigEndian.Uint32(payload[11:15])
	}
}

func (p *ProtoLogger) worker() {
	defer p.wg.Done()

	ticker := time.NewTicker(constants.SinkFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-p.queue:
			p.writeRecord(rec)
		case <-ticker.C:
			_ = p.out.Flush()
		case <-p.done:
			for {
				select {
				case rec := <-p.queue:
					p.writeRecord(rec)
				default:
					_ = p.out.Flush()
					return
				}
			}
		}
	}
}

func (p *ProtoLogger) writeRecord(rec map[string]any) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = p.out.Write(data)
}

// Close stops the worker, flushes, and closes the file. Safe to call twice.
func (p *ProtoLogger) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	return p.file.Close()
}
