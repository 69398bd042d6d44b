package engine

import (
	"fmt"
	"sync"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/device/sim"
)

// DriverFactory creates a device.Driver from a DeviceConfig.
type DriverFactory func(cfg DeviceConfig) (device.Driver, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]DriverFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["sim"] = newSim
	})
}

// RegisterDriver registers a driver factory under the given name. It can be
// called before New to plug in a hardware transport.
func RegisterDriver(name string, factory DriverFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[name] = factory
}

func getDriverFactory(name string) (DriverFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[name]
	return f, ok
}

func newSim(cfg DeviceConfig) (device.Driver, error) {
	return sim.New(sim.Options{
		AppOpenAfter:  cfg.Sim.AppOpenAfter,
		MaxBundleSize: cfg.Sim.MaxBundleSize,
	}), nil
}

func buildDriver(cfg DeviceConfig) (device.Driver, error) {
	factory, ok := getDriverFactory(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("engine: unknown device driver %q", cfg.Driver)
	}
	return factory(cfg)
}
