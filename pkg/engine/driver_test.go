package engine

import (
	"context"
	"testing"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/device/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct{}

func (stubDriver) Open(context.Context) (device.Transport, error) { return nil, device.ErrNoDevice }

func (stubDriver) ActivateSeed(context.Context, device.Transport, device.Path, int) (device.App, error) {
	return nil, device.ErrNoDevice
}

func TestBuildDriver_Sim(t *testing.T) {
	d, err := buildDriver(DeviceConfig{Driver: "sim", Sim: SimConfig{MaxBundleSize: 4}})
	require.NoError(t, err)
	assert.IsType(t, &sim.Driver{}, d)
}

func TestBuildDriver_Unknown(t *testing.T) {
	_, err := buildDriver(DeviceConfig{Driver: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown device driver "nope"`)
}

func TestRegisterDriver(t *testing.T) {
	RegisterDriver("stub-test", func(DeviceConfig) (device.Driver, error) { return stubDriver{}, nil })

	cfg := DefaultConfig()
	cfg.Device.Driver = "stub-test"
	require.NoError(t, cfg.Validate())

	d, err := buildDriver(cfg.Device)
	require.NoError(t, err)
	assert.Equal(t, stubDriver{}, d)
}
