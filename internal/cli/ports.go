package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfbridge/internal/cli/ui"
	"sfbridge/internal/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate serial devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := serialport.List()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println(ui.Warning("No serial devices found"))
			return nil
		}
		lines := make([]string, 0, len(devices))
		for _, dev := range devices {
			lines = append(lines, ui.KeyValue("Device", dev))
		}
		fmt.Println(ui.Info("Serial Devices", lines...))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
