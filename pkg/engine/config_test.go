package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
device:
  driver: sim
  retry_delay: 2s
  security: 1
  sim:
    app_open_after: 3
    max_bundle_size: 16
discovery:
  kind: manual
  poll_interval: 250ms
  vendor_id: "0x1234"
  initially_attached: true
control:
  listen: 127.0.0.1:9000
log:
  level: debug
  format: json
hostcheck:
  processes:
    - Ledger Live
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Device.Driver)
	assert.Equal(t, 1, cfg.Device.Security)
	assert.Equal(t, 3, cfg.Device.Sim.AppOpenAfter)
	assert.Equal(t, 16, cfg.Device.Sim.MaxBundleSize)
	assert.Equal(t, "manual", cfg.Discovery.Kind)
	assert.True(t, cfg.Discovery.InitiallyAttached)
	assert.Equal(t, "127.0.0.1:9000", cfg.Control.Listen)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"Ledger Live"}, cfg.HostCheck.Processes)

	d, err := cfg.RetryDelay()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	p, err := cfg.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, p)

	v, err := cfg.VendorID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)

	require.NoError(t, cfg.Validate())
}

func TestParseConfig_KeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("log:\n  level: warn\n"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Device, cfg.Device)
	assert.Equal(t, def.Discovery, cfg.Discovery)
	assert.Equal(t, def.Control, cfg.Control)
	assert.Equal(t, "warn", cfg.Log.Level)

	d, err := cfg.RetryDelay()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, d)

	v, err := cfg.VendorID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2c97), v)
}

func TestParseConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("LEDGERD_TEST_LISTEN", "0.0.0.0:1234")

	cfg, err := ParseConfig([]byte("control:\n  listen: ${LEDGERD_TEST_LISTEN}\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:1234", cfg.Control.Listen)
}

func TestParseConfig_InvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("device: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: parse config")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "manual", cfg.Discovery.Kind)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"empty driver", func(c *Config) { c.Device.Driver = "" }, "device driver is required"},
		{"unknown driver", func(c *Config) { c.Device.Driver = "hid" }, `unknown device driver "hid"`},
		{"bad retry delay", func(c *Config) { c.Device.RetryDelay = "soon" }, "invalid device retry_delay"},
		{"negative retry delay", func(c *Config) { c.Device.RetryDelay = "-1s" }, "retry_delay must be positive"},
		{"negative security", func(c *Config) { c.Device.Security = -1 }, "security must not be negative"},
		{"negative app_open_after", func(c *Config) { c.Device.Sim.AppOpenAfter = -2 }, "app_open_after"},
		{"unknown discovery", func(c *Config) { c.Discovery.Kind = "udev" }, `unknown discovery kind "udev"`},
		{"bad poll interval", func(c *Config) { c.Discovery.PollInterval = "0s" }, "poll_interval must be positive"},
		{"bad vendor", func(c *Config) { c.Discovery.VendorID = "0xzz" }, "invalid discovery vendor_id"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, `unknown log level "loud"`},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, `unknown log format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}
