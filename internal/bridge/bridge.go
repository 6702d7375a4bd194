package bridge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"sfbridge/internal/qos"
	"sfbridge/internal/serialport"
	"sfbridge/internal/shared/constants"
	"sfbridge/internal/sink"
	"sfbridge/internal/stats"
	"sfbridge/pkg/config"
)

// Bridge owns the full forwarding session: two serial ports, two pumps, the
// shared sinks, and the periodic traffic summary.
type Bridge struct {
	cfg    config.Config
	logger *zap.Logger
}

func New(cfg config.Config, logger *zap.Logger) *Bridge {
	return &Bridge{cfg: cfg, logger: logger}
}

// Run blocks until the context is cancelled or the link dies. All resources
// opened here are released before returning.
func (b *Bridge) Run(ctx context.Context) error {
	apDev, staDev, err := b.resolveDevices(ctx)
	if err != nil {
		return err
	}

	apPort, err := serialport.Open(apDev, b.cfg.Baud)
	if err != nil {
		return err
	}
	defer apPort.Close()

	staPort, err := serialport.Open(staDev, b.cfg.Baud)
	if err != nil {
		return err
	}
	defer staPort.Close()

	apPort, staPort, swapped := ResolveRoles(ctx, apPort, staPort, b.cfg.RoleTimeout, b.cfg.AutoFixRoles, b.logger)
	if swapped {
		apDev, staDev = staDev, apDev
	}

	sinks, closeSinks, err := b.openSinks()
	if err != nil {
		return err
	}
	defer closeSinks()

	b.logger.Info("Bridge up",
		zap.String("ap_device", apDev),
		zap.String("sta_device", staDev),
		zap.Int("baud", b.cfg.Baud),
		zap.Uint16("video_port", b.cfg.VideoPort),
		zap.Int("video_pps", b.cfg.VideoPPS))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tap := TapConfig{
		UDPFrames:   b.cfg.TapUDP,
		TCPFrames:   b.cfg.TapTCP,
		Bytes:       b.cfg.TapBytes,
		Ports:       b.cfg.TapPorts,
		PrintStatic: b.cfg.PrintCmdStatic,
	}

	apStats := stats.NewDirectionStats()
	staStats := stats.NewDirectionStats()

	// Video flows drone->phone, so only the STA->AP pump carries a limiter.
	limiter := qos.NewPacketLimiter(qos.Config{PacketsPerSecond: b.cfg.VideoPPS})

	pumps := []*Pump{
		NewPump(PumpConfig{
			Name:       DirAPToSTA,
			VideoPort:  b.cfg.VideoPort,
			CmdPorts:   b.cfg.UDPPorts,
			PrintLogs:  b.cfg.PrintLogs,
			PrintHello: b.cfg.PrintHello,
			Tap:        tap,
		}, apPort, staPort, sinks, apStats, cancel, b.logger),
		NewPump(PumpConfig{
			Name:       DirSTAToAP,
			VideoPort:  b.cfg.VideoPort,
			Limiter:    limiter,
			CmdPorts:   b.cfg.UDPPorts,
			PrintLogs:  b.cfg.PrintLogs,
			PrintHello: b.cfg.PrintHello,
			Tap:        tap,
		}, staPort, apPort, sinks, staStats, cancel, b.logger),
	}

	var wg sync.WaitGroup
	for _, p := range pumps {
		wg.Add(1)
		go func(p *Pump) {
			defer wg.Done()
			// Either pump exiting takes the whole bridge down.
			defer cancel()
			p.Run(runCtx)
		}(p)
	}

	go b.summaryLoop(runCtx, apStats, staStats)

	wg.Wait()
	b.logger.Info("Bridge stopped")
	return nil
}

// resolveDevices returns the AP and STA device paths, scanning for them when
// not configured or when a configured path does not exist on this host.
func (b *Bridge) resolveDevices(ctx context.Context) (string, string, error) {
	apDev, staDev := b.cfg.APDevice, b.cfg.STADevice
	if apDev != "" && staDev != "" && deviceExists(apDev) && deviceExists(staDev) {
		return apDev, staDev, nil
	}

	if apDev != "" || staDev != "" {
		b.logger.Warn("Configured devices not present, falling back to scan",
			zap.String("ap_device", apDev),
			zap.String("sta_device", staDev))
	}

	candidates, err := serialport.List()
	if err != nil {
		return "", "", err
	}
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("no serial devices found")
	}
	b.logger.Info("Scanning for radios", zap.Strings("candidates", candidates))
	return Scan(ctx, candidates, b.cfg.Baud, b.cfg.ScanTimeout, b.logger)
}

func deviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openSinks builds the enabled sinks and a single close function that shuts
// them all down.
func (b *Bridge) openSinks() (Sinks, func(), error) {
	var sinks Sinks
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if b.cfg.EnableJSONL {
		l, err := sink.NewLogger(b.cfg.LogDir)
		if err != nil {
			closeAll()
			return Sinks{}, nil, err
		}
		sinks.Generic = l
		closers = append(closers, l.Close)
	}

	if b.cfg.EnableProto {
		p, err := sink.NewProtoLogger(b.cfg.LogDir, sink.ProtoConfig{
			UDPPorts: b.cfg.UDPPorts,
			TCPPorts: b.cfg.TCPPorts,
		})
		if err != nil {
			closeAll()
			return Sinks{}, nil, err
		}
		sinks.Proto = p
		closers = append(closers, p.Close)
	}

	if b.cfg.EnableCapture {
		c, err := sink.NewCaptureWriter(b.cfg.LogDir, b.cfg.UDPPorts)
		if err != nil {
			closeAll()
			return Sinks{}, nil, err
		}
		sinks.Capture = c
		closers = append(closers, c.Close)
		b.logger.Info("Capturing raw frames", zap.String("path", c.Path()))
	}

	return sinks, closeAll, nil
}

func (b *Bridge) summaryLoop(ctx context.Context, apStats, staStats *stats.DirectionStats) {
	ticker := time.NewTicker(constants.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.logSummary(DirAPToSTA, apStats)
			b.logSummary(DirSTAToAP, staStats)
		}
	}
}

func (b *Bridge) logSummary(direction string, st *stats.DirectionStats) {
	snap := st.GetSnapshot()
	b.logger.Info("Traffic summary",
		zap.String("direction", direction),
		zap.Int64("decoded", snap.FramesDecoded),
		zap.Int64("forwarded", snap.FramesForwarded),
		zap.Int64("bytes", snap.BytesForwarded),
		zap.Int64("video_dropped", snap.VideoDropped),
		zap.Duration("uptime", snap.Uptime.Round(time.Second)))
}
