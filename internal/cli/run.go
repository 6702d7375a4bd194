package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfbridge/internal/bridge"
	"sfbridge/internal/metrics"
	"sfbridge/internal/shared/utils"
	"sfbridge/pkg/config"
)

var (
	runConfigPath string
	runAPDevice   string
	runSTADevice  string
	runBaud       int
	runVideoPPS   int
	runVideoPort  int
	runLogDir     string
	runNoJSONL    bool
	runNoProto    bool
	runNoCapture  bool
	runNoAutofix  bool
	runPrintHello bool
	runQuietLogs  bool
	runCmdStatic  bool
	runTapUDP     int
	runTapTCP     int
	runTapBytes   int
	runMetrics    string
	runDebug      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bridge",
	Long:  `Open both radios, confirm their roles, and forward frames until interrupted`,
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Command line flags with environment variable defaults
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", getEnvString("SFBRIDGE_CONFIG", "sfbridge.yaml"), "Config file path (env: SFBRIDGE_CONFIG)")
	runCmd.Flags().StringVar(&runAPDevice, "ap", getEnvString("SFBRIDGE_AP", ""), "AP-side serial device (env: SFBRIDGE_AP)")
	runCmd.Flags().StringVar(&runSTADevice, "sta", getEnvString("SFBRIDGE_STA", ""), "STA-side serial device (env: SFBRIDGE_STA)")
	runCmd.Flags().IntVarP(&runBaud, "baud", "b", getEnvInt("SFBRIDGE_BAUD", 0), "Serial baud rate (env: SFBRIDGE_BAUD)")
	runCmd.Flags().IntVar(&runVideoPPS, "video-pps", getEnvInt("SFBRIDGE_VIDEO_PPS", -1), "Video packets per second, 0 disables limiting (env: SFBRIDGE_VIDEO_PPS)")
	runCmd.Flags().IntVar(&runVideoPort, "video-port", 0, "UDP destination port carrying video")
	runCmd.Flags().StringVar(&runLogDir, "logdir", getEnvString("SFBRIDGE_LOGDIR", ""), "Directory for JSONL logs and captures (env: SFBRIDGE_LOGDIR)")
	runCmd.Flags().BoolVar(&runNoJSONL, "no-jsonl", false, "Disable the generic JSONL sink")
	runCmd.Flags().BoolVar(&runNoProto, "no-proto", false, "Disable the protocol analysis sink")
	runCmd.Flags().BoolVar(&runNoCapture, "no-capture", false, "Disable the raw frame capture")
	runCmd.Flags().BoolVar(&runNoAutofix, "no-autofix", false, "Do not swap ports when roles come up reversed")
	runCmd.Flags().BoolVar(&runPrintHello, "print-hello", false, "Print peer hello frames")
	runCmd.Flags().BoolVar(&runQuietLogs, "quiet-logs", false, "Suppress radio LOG frame output")
	runCmd.Flags().BoolVar(&runCmdStatic, "cmd-static", false, "Summarize repeated command payloads")
	runCmd.Flags().IntVar(&runTapUDP, "tap-udp", 0, "Print the first N UDP frames per direction")
	runCmd.Flags().IntVar(&runTapTCP, "tap-tcp", 0, "Print the first N TCP data frames per direction")
	runCmd.Flags().IntVar(&runTapBytes, "tap-bytes", 0, "Payload bytes shown per tapped frame")
	runCmd.Flags().StringVar(&runMetrics, "metrics", getEnvString("SFBRIDGE_METRICS", ""), "Prometheus listen address, empty disables (env: SFBRIDGE_METRICS)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := utils.InitLogger(cfg.Debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.Sync()

	logger := utils.Logger()

	logger.Info("Starting sfbridge",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
	)

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return bridge.New(cfg, logger).Run(ctx)
}

// applyFlags overlays explicitly set flags onto the file-based configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if runAPDevice != "" {
		cfg.APDevice = runAPDevice
	}
	if runSTADevice != "" {
		cfg.STADevice = runSTADevice
	}
	if runBaud > 0 {
		cfg.Baud = runBaud
	}
	if runVideoPPS >= 0 {
		cfg.VideoPPS = runVideoPPS
	}
	if runVideoPort > 0 {
		cfg.VideoPort = uint16(runVideoPort)
	}
	if runLogDir != "" {
		cfg.LogDir = runLogDir
	}
	if runMetrics != "" {
		cfg.MetricsAddr = runMetrics
	}

	if runNoJSONL {
		cfg.EnableJSONL = false
	}
	if runNoProto {
		cfg.EnableProto = false
	}
	if runNoCapture {
		cfg.EnableCapture = false
	}
	if runNoAutofix {
		cfg.AutoFixRoles = false
	}
	if runPrintHello {
		cfg.PrintHello = true
	}
	if runQuietLogs {
		cfg.PrintLogs = false
	}
	if runCmdStatic {
		cfg.PrintCmdStatic = true
	}
	if runDebug {
		cfg.Debug = true
	}

	if flags.Changed("tap-udp") {
		cfg.TapUDP = runTapUDP
	}
	if flags.Changed("tap-tcp") {
		cfg.TapTCP = runTapTCP
	}
	if flags.Changed("tap-bytes") {
		cfg.TapBytes = runTapBytes
	}
}

// getEnvInt returns the environment variable value as int, or defaultVal if not set
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvString returns the environment variable value, or defaultVal if not set
func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
