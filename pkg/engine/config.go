package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/discovery"
	"github.com/germanamz/ledgerd/pkg/selector"
	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Control   ControlConfig   `yaml:"control"`
	Log       LogConfig       `yaml:"log"`
	HostCheck HostCheckConfig `yaml:"hostcheck"`
}

// DeviceConfig selects the device driver and the handshake policy.
type DeviceConfig struct {
	Driver     string    `yaml:"driver"`
	RetryDelay string    `yaml:"retry_delay"` // Duration string (e.g. "4s").
	Security   int       `yaml:"security"`
	Sim        SimConfig `yaml:"sim"`
}

// SimConfig configures the simulated driver.
type SimConfig struct {
	AppOpenAfter  int `yaml:"app_open_after"`
	MaxBundleSize int `yaml:"max_bundle_size"`
}

// DiscoveryConfig selects how device presence is detected.
type DiscoveryConfig struct {
	Kind              string `yaml:"kind"`          // "sysfs" or "manual".
	PollInterval      string `yaml:"poll_interval"` // Duration string.
	SysfsRoot         string `yaml:"sysfs_root"`
	VendorID          string `yaml:"vendor_id"` // Hex, e.g. "0x2c97".
	InitiallyAttached bool   `yaml:"initially_attached"`
}

// ControlConfig configures the websocket control server.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error.
	Format string `yaml:"format"` // text or json.
}

// HostCheckConfig lists process names known to hold the device.
type HostCheckConfig struct {
	Processes []string `yaml:"processes"`
}

// DefaultConfig returns the configuration used for any field a file leaves
// unset.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Driver:     "sim",
			RetryDelay: selector.DefaultRetryDelay.String(),
			Security:   device.DefaultSecurity,
		},
		Discovery: DiscoveryConfig{
			Kind:         "sysfs",
			PollInterval: discovery.DefaultPollInterval.String(),
			SysfsRoot:    discovery.DefaultSysfsRoot,
			VendorID:     fmt.Sprintf("0x%04x", discovery.LedgerVendorID),
		},
		Control: ControlConfig{Listen: "127.0.0.1:7342"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Environment variables
// referenced as ${VAR} or $VAR are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration over DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Device.Driver == "" {
		return fmt.Errorf("engine: config: device driver is required")
	}
	if _, ok := getDriverFactory(c.Device.Driver); !ok {
		return fmt.Errorf("engine: config: unknown device driver %q", c.Device.Driver)
	}
	if _, err := c.RetryDelay(); err != nil {
		return err
	}
	if c.Device.Security < 0 {
		return fmt.Errorf("engine: config: device security must not be negative")
	}
	if c.Device.Sim.AppOpenAfter < 0 {
		return fmt.Errorf("engine: config: device sim app_open_after must not be negative")
	}

	switch c.Discovery.Kind {
	case "sysfs", "manual":
	default:
		return fmt.Errorf("engine: config: unknown discovery kind %q", c.Discovery.Kind)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.VendorID(); err != nil {
		return err
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("engine: config: unknown log format %q", c.Log.Format)
	}

	return nil
}

// RetryDelay returns the parsed retry delay, defaulting when unset.
func (c Config) RetryDelay() (time.Duration, error) {
	return parseDuration("device retry_delay", c.Device.RetryDelay, selector.DefaultRetryDelay)
}

// PollInterval returns the parsed discovery poll interval, defaulting when
// unset.
func (c Config) PollInterval() (time.Duration, error) {
	return parseDuration("discovery poll_interval", c.Discovery.PollInterval, discovery.DefaultPollInterval)
}

// VendorID returns the parsed USB vendor id, defaulting when unset.
func (c Config) VendorID() (uint16, error) {
	s := strings.TrimSpace(c.Discovery.VendorID)
	if s == "" {
		return discovery.LedgerVendorID, nil
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("engine: config: invalid discovery vendor_id %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("engine: config: invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("engine: config: %s must be positive", field)
	}
	return d, nil
}
