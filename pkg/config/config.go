package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sfbridge/internal/shared/constants"
)

// Config is the complete bridge configuration, constructed once at startup
// and passed by value into the bridge. Every field can come from the YAML
// file or be overridden by CLI flags.
type Config struct {
	// Serial endpoints. Empty device names mean auto-discovery by HELLO
	// probing across all candidate ports.
	Baud      int    `yaml:"baud"`
	APDevice  string `yaml:"ap_device"`
	STADevice string `yaml:"sta_device"`

	// Role detection
	AutoFixRoles bool          `yaml:"autofix_roles"`
	RoleTimeout  time.Duration `yaml:"role_timeout"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`

	// Sinks
	LogDir        string `yaml:"logdir"`
	EnableJSONL   bool   `yaml:"enable_jsonl"`
	EnableProto   bool   `yaml:"enable_proto"`
	EnableCapture bool   `yaml:"enable_capture"`

	// Console output
	PrintLogs      bool `yaml:"print_logs"`
	PrintHello     bool `yaml:"print_hello"`
	PrintCmdStatic bool `yaml:"print_cmd_static"`

	// Ad-hoc debugging taps
	TapUDP   int      `yaml:"tap_udp"`
	TapTCP   int      `yaml:"tap_tcp"`
	TapBytes int      `yaml:"tap_bytes"`
	TapPorts []uint16 `yaml:"tap_ports"`

	// Traffic classes
	VideoPort uint16   `yaml:"video_port"`
	VideoPPS  int      `yaml:"video_pps"`
	UDPPorts  []uint16 `yaml:"udp_ports"`
	TCPPorts  []uint16 `yaml:"tcp_ports"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Default returns the "debug but flyable" configuration: every sink on,
// LOG frames printed, video capped, no explicit devices.
func Default() Config {
	return Config{
		Baud:          constants.DefaultBaud,
		AutoFixRoles:  true,
		RoleTimeout:   constants.DefaultRoleTimeout,
		ScanTimeout:   constants.DefaultScanTimeout,
		LogDir:        constants.DefaultLogDir,
		EnableJSONL:   true,
		EnableProto:   true,
		EnableCapture: true,
		PrintLogs:     true,
		TapBytes:      constants.DefaultTapBytes,
		TapPorts:      constants.DefaultTapPorts(),
		VideoPort:     constants.DefaultVideoPort,
		VideoPPS:      constants.DefaultVideoPPS,
		UDPPorts:      constants.DefaultUDPPorts(),
		TCPPorts:      constants.DefaultTCPPorts(),
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error;
// the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration is runnable.
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud %d: must be positive", c.Baud)
	}
	if c.VideoPPS < 0 {
		return fmt.Errorf("invalid video_pps %d: must be >= 0 (0 disables limiting)", c.VideoPPS)
	}
	if c.LogDir == "" && (c.EnableJSONL || c.EnableProto || c.EnableCapture) {
		return fmt.Errorf("logdir is required when any sink is enabled")
	}
	if c.RoleTimeout <= 0 {
		return fmt.Errorf("invalid role_timeout %v: must be positive", c.RoleTimeout)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("invalid scan_timeout %v: must be positive", c.ScanTimeout)
	}
	if c.TapBytes < 0 {
		return fmt.Errorf("invalid tap_bytes %d: must be >= 0", c.TapBytes)
	}
	if (c.APDevice == "") != (c.STADevice == "") {
		return fmt.Errorf("ap_device and sta_device must be set together (or both empty for auto-scan)")
	}
	return nil
}
