package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfbridge/internal/cli/ui"
)

var (
	// Version information
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sfbridge",
	Short: "sfbridge - Serial bridge between two WiFi radios",
	Long: `sfbridge - Bidirectional serial bridge for framed radio links

Shuttles frames between an AP-side radio and a STA-side radio over
their USB serial ports, rate-limiting video so commands stay
responsive, and recording traffic for protocol analysis.

Examples:
  sfbridge run                                   # auto-discover both radios
  sfbridge run --ap /dev/ttyUSB0 --sta /dev/ttyUSB1
  sfbridge run --video-pps 15 --no-capture       # throttle video harder
  sfbridge ports                                 # list serial candidates
  sfbridge replay logs/capture_1700000000.sf.bin # decode a capture offline`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	// run, ports, and replay are added in their respective init() functions
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(ui.Info(
			"sfbridge",
			"",
			ui.KeyValue("Version", Version),
			ui.KeyValue("Git Commit", GitCommit),
			ui.KeyValue("Build Time", BuildTime),
		))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version information
func SetVersion(version, commit, buildTime string) {
	Version = version
	GitCommit = commit
	BuildTime = buildTime
}
