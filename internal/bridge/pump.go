// Package bridge wires two serial links into a bidirectional frame
// forwarder: one pump per direction, each decoding frames from its source
// link and writing the raw bytes verbatim to the opposite one.
package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sfbridge/internal/metrics"
	"sfbridge/internal/protocol"
	"sfbridge/internal/qos"
	"sfbridge/internal/serialport"
	"sfbridge/internal/shared/constants"
	"sfbridge/internal/shared/utils"
	"sfbridge/internal/sink"
	"sfbridge/internal/stats"
)

// Direction labels used in logs, metrics, and sink records.
const (
	DirAPToSTA = "AP->STA"
	DirSTAToAP = "STA->AP"
)

// Sinks groups the optional frame consumers shared by both pumps. Any field
// may be nil.
type Sinks struct {
	Generic *sink.Logger
	Proto   *sink.ProtoLogger
	Capture *sink.CaptureWriter
}

// PumpConfig carries the per-direction policy knobs.
type PumpConfig struct {
	Name string

	// VideoPort with a capable Limiter rate-limits UDP frames for that
	// destination port; frames over budget are dropped silently.
	VideoPort uint16
	Limiter   *qos.PacketLimiter

	// CmdPorts are the UDP destination ports carrying command/telemetry
	// traffic worth summarizing on the console.
	CmdPorts []uint16

	PrintLogs  bool
	PrintHello bool
	Tap        TapConfig
}

// Pump moves frames one way between two serial links. Run it in its own
// goroutine; a fatal link error cancels the shared context so the peer pump
// stops too.
type Pump struct {
	cfg    PumpConfig
	src    serialport.Port
	dst    serialport.Port
	dec    *protocol.Decoder
	sinks  Sinks
	stats  *stats.DirectionStats
	stop   context.CancelFunc
	logger *zap.Logger

	cmdPorts map[uint16]struct{}
	tap      tapState
	cmds     *cmdTracker
	telLast  time.Time
}

func NewPump(cfg PumpConfig, src, dst serialport.Port, sinks Sinks, st *stats.DirectionStats, stop context.CancelFunc, logger *zap.Logger) *Pump {
	cmdPorts := make(map[uint16]struct{}, len(cfg.CmdPorts))
	for _, p := range cfg.CmdPorts {
		cmdPorts[p] = struct{}{}
	}

	return &Pump{
		cfg:      cfg,
		src:      src,
		dst:      dst,
		dec:      protocol.NewDecoder(),
		sinks:    sinks,
		stats:    st,
		stop:     stop,
		logger:   logger,
		cmdPorts: cmdPorts,
		tap:      newTapState(cfg.Tap),
		cmds:     newCmdTracker(constants.CmdRepeatFlushInterval, cfg.Tap.PrintStatic),
	}
}

// Run drives the pump until the context is cancelled or the link dies. A
// read failure ends this pump only; the caller is expected to tear down the
// peer. A write failure cancels the shared context directly, since a bridge
// that can no longer forward one way is not worth keeping half-alive.
func (p *Pump) Run(ctx context.Context) {
	p.logger.Info("Pump started",
		zap.String("direction", p.cfg.Name),
		zap.String("source", p.src.Name()),
		zap.String("destination", p.dst.Name()))

	for ctx.Err() == nil {
		if p.src.BytesAvailable() == 0 {
			time.Sleep(constants.PumpIdleSleep)
			continue
		}

		data, err := p.src.ReadAvailable()
		if err != nil {
			p.logger.Error("Serial read failed",
				zap.String("direction", p.cfg.Name),
				zap.String("device", p.src.Name()),
				zap.Error(err))
			metrics.LinkFailures.WithLabelValues(p.cfg.Name, "read").Inc()
			return
		}

		p.dec.Feed(data)
		for {
			fr, raw, ok := p.dec.Pop()
			if !ok {
				break
			}
			if !p.handle(fr, raw) {
				return
			}
		}
	}
}

// handle dispatches one decoded frame. Returns false on a fatal write error.
func (p *Pump) handle(fr protocol.Frame, raw []byte) bool {
	p.stats.AddDecoded(1)
	metrics.FramesDecoded.WithLabelValues(p.cfg.Name, fr.Type.String()).Inc()

	// Capture sees every decoded frame, including ones dropped below.
	if p.sinks.Capture != nil && p.sinks.Capture.Want(fr) {
		p.sinks.Capture.Write(fr, raw)
	}

	forward := true
	switch fr.Type {
	case protocol.TypeLog:
		// Diagnostic chatter, never forwarded.
		p.printLog(fr)
		forward = false

	case protocol.TypeHello:
		if p.cfg.PrintHello {
			p.logger.Info("Peer hello",
				zap.String("direction", p.cfg.Name),
				zap.String("who", lossyString(fr.Payload)))
		}
		forward = false

	case protocol.TypeUDP:
		if fr.Port == p.cfg.VideoPort && p.cfg.Limiter.IsLimited() && !p.cfg.Limiter.Allow() {
			p.stats.AddVideoDropped()
			metrics.VideoDropped.WithLabelValues(p.cfg.Name).Inc()
			// Dropped frames vanish entirely: not forwarded, not logged.
			return true
		}
		p.observeUDP(fr)

	case protocol.TypeTCPData:
		if p.tap.takeTCP(fr.Port) {
			p.logger.Info("TCP tap",
				zap.String("direction", p.cfg.Name),
				zap.Uint16("port", fr.Port),
				zap.Uint16("conn", fr.Conn),
				zap.Int("len", len(fr.Payload)),
				zap.String("head", utils.HexHead(fr.Payload, p.cfg.Tap.Bytes)))
		}

	default:
		// TCP control frames and anything a newer firmware invents pass
		// through untouched.
	}

	if forward && !p.forward(fr, raw) {
		return false
	}

	// Every decoded frame that was not rate-dropped reaches the sinks, the
	// print-only types included.
	if p.sinks.Proto != nil && p.sinks.Proto.Want(fr) {
		p.sinks.Proto.Offer(p.cfg.Name, p.src.Name(), fr)
	}
	if p.sinks.Generic != nil {
		p.sinks.Generic.Offer(p.cfg.Name, p.src.Name(), fr)
	}
	return true
}

func (p *Pump) forward(fr protocol.Frame, raw []byte) bool {
	if err := p.dst.Write(raw); err != nil {
		p.logger.Error("Serial write failed, stopping bridge",
			zap.String("direction", p.cfg.Name),
			zap.String("device", p.dst.Name()),
			zap.Error(err))
		metrics.LinkFailures.WithLabelValues(p.cfg.Name, "write").Inc()
		p.stop()
		return false
	}

	p.stats.AddForwarded(int64(len(raw)))
	metrics.FramesForwarded.WithLabelValues(p.cfg.Name, fr.Type.String()).Inc()
	metrics.BytesForwarded.WithLabelValues(p.cfg.Name).Add(float64(len(raw)))
	return true
}

// observeUDP prints taps and command/telemetry summaries for UDP traffic.
// Video frames arrive here only after passing the limiter.
func (p *Pump) observeUDP(fr protocol.Frame) {
	if p.tap.takeUDP(fr.Port) {
		p.logger.Info("UDP tap",
			zap.String("direction", p.cfg.Name),
			zap.Uint16("port", fr.Port),
			zap.Uint16("conn", fr.Conn),
			zap.Int("len", len(fr.Payload)),
			zap.String("head", utils.HexHead(fr.Payload, p.cfg.Tap.Bytes)))
	}

	if _, ok := p.cmdPorts[fr.Port]; !ok {
		return
	}

	switch p.cfg.Name {
	case DirAPToSTA:
		p.observeCommand(fr)
	case DirSTAToAP:
		p.observeTelemetry(fr)
	}
}

func (p *Pump) observeCommand(fr protocol.Frame) {
	now := time.Now()
	key := cmdKey{conn: fr.Conn, port: fr.Port}
	obs := p.cmds.observe(key, fr.Payload, now)

	if obs.FlushedPrev > 0 {
		p.logger.Info("Command repeated",
			zap.String("direction", p.cfg.Name),
			zap.Uint16("port", fr.Port),
			zap.Uint16("conn", fr.Conn),
			zap.Int("times", obs.FlushedPrev))
	}
	if !obs.Print {
		return
	}

	fields := []zap.Field{
		zap.String("direction", p.cfg.Name),
		zap.Uint16("port", fr.Port),
		zap.Uint16("conn", fr.Conn),
		zap.Int("len", len(fr.Payload)),
		zap.String("head", utils.HexHead(fr.Payload, 24)),
	}
	if op, ok := udpOpcode(fr.Payload); ok {
		fields = append(fields, zap.String("op", fmt.Sprintf("0x%04x", op)))
	}
	if obs.Repeats > 0 {
		fields = append(fields, zap.Int("repeats", obs.Repeats))
	}
	p.logger.Info("Command", fields...)
}

// observeTelemetry samples drone->phone status traffic at most once per
// print interval per pump.
func (p *Pump) observeTelemetry(fr protocol.Frame) {
	now := time.Now()
	if now.Sub(p.telLast) < constants.TelemetryPrintInterval {
		return
	}
	p.telLast = now

	fields := []zap.Field{
		zap.String("direction", p.cfg.Name),
		zap.Uint16("port", fr.Port),
		zap.Uint16("conn", fr.Conn),
		zap.Int("len", len(fr.Payload)),
		zap.String("head", utils.HexHead(fr.Payload, 24)),
	}
	if op, ok := udpOpcode(fr.Payload); ok {
		fields = append(fields, zap.String("op", fmt.Sprintf("0x%04x", op)))
	}
	p.logger.Info("Telemetry", fields...)
}

func (p *Pump) printLog(fr protocol.Frame) {
	if !p.cfg.PrintLogs {
		return
	}
	text := strings.TrimRight(lossyString(fr.Payload), " \t\r\n")
	// Heartbeat lines arrive several times a second and say nothing.
	if strings.HasPrefix(text, "wifi: hb") {
		return
	}
	p.logger.Info("Radio log",
		zap.String("direction", p.cfg.Name),
		zap.String("text", text))
}

// udpOpcode extracts the little-endian opcode from a "cc"-prefixed command
// payload.
func udpOpcode(payload []byte) (uint16, bool) {
	if len(payload) < 4 || payload[0] != 0x63 || payload[1] != 0x63 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(payload[2:4]), true
}

// lossyString decodes bytes as UTF-8, replacing invalid sequences.
func lossyString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
