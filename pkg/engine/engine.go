package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/germanamz/ledgerd/pkg/control"
	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/discovery"
	"github.com/germanamz/ledgerd/pkg/hostcheck"
	"github.com/germanamz/ledgerd/pkg/selector"
	"github.com/germanamz/ledgerd/pkg/session"
	"github.com/germanamz/ledgerd/pkg/tracker"
)

// manualBuffer bounds pending Attach/Detach calls on the manual source.
const manualBuffer = 16

// Options overrides pieces the engine would otherwise build from Config.
type Options struct {
	Logger *slog.Logger
	// Driver replaces the driver named by Config.Device.Driver.
	Driver device.Driver
	// Source replaces the discovery source named by Config.Discovery.Kind.
	Source discovery.Source
	// HostCheck replaces the checker built from Config.HostCheck.
	HostCheck *hostcheck.Checker
}

// Engine is the composition root that wires discovery, the connection
// tracker, the device session, the control channel and the seed selector.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	driver    device.Driver
	source    discovery.Source
	manual    *discovery.Manual
	tracker   *tracker.Tracker
	session   *session.Session
	control   *control.Channel
	selector  *selector.Selector
	hostcheck *hostcheck.Checker

	mu     sync.Mutex
	closed bool
}

// New creates an Engine from the given configuration.
func New(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		driver:    opts.Driver,
		source:    opts.Source,
		hostcheck: opts.HostCheck,
	}

	if e.driver == nil {
		d, err := buildDriver(cfg.Device)
		if err != nil {
			return nil, err
		}
		e.driver = d
	}

	if e.source == nil {
		src, err := e.buildSource()
		if err != nil {
			return nil, err
		}
		e.source = src
	}
	if m, ok := e.source.(*discovery.Manual); ok {
		e.manual = m
	}

	if e.hostcheck == nil {
		e.hostcheck = hostcheck.New(cfg.HostCheck.Processes)
	}

	retryDelay, err := cfg.RetryDelay()
	if err != nil {
		return nil, err
	}

	e.tracker = tracker.New(log.With("component", "tracker"))
	e.session = session.New(log.With("component", "session"))
	e.control = control.NewChannel()
	e.selector = selector.New(e.driver, e.tracker, e.control, e.session, selector.Options{
		RetryDelay:    retryDelay,
		Logger:        log.With("component", "selector"),
		OnOpenFailure: e.reportConflicts,
	})

	// A detached device invalidates any installed application handle.
	e.tracker.OnDisconnect(func() {
		if err := e.session.Close(); err != nil {
			e.log.Warn("engine: close session on disconnect", "error", err)
		}
	})

	if cfg.Discovery.Kind == "manual" && cfg.Discovery.InitiallyAttached {
		e.tracker.HandleEvent(discovery.Attach)
	}

	return e, nil
}

func (e *Engine) buildSource() (discovery.Source, error) {
	switch e.cfg.Discovery.Kind {
	case "manual":
		return discovery.NewManual(manualBuffer), nil
	case "sysfs":
		interval, err := e.cfg.PollInterval()
		if err != nil {
			return nil, err
		}
		vendor, err := e.cfg.VendorID()
		if err != nil {
			return nil, err
		}
		return &discovery.SysfsWatcher{
			Root:     e.cfg.Discovery.SysfsRoot,
			VendorID: vendor,
			Interval: interval,
			Logger:   e.log.With("component", "discovery"),
		}, nil
	default:
		return nil, fmt.Errorf("engine: unknown discovery kind %q", e.cfg.Discovery.Kind)
	}
}

// reportConflicts logs processes that commonly hold the device when a
// transport cannot be opened.
func (e *Engine) reportConflicts(ctx context.Context, openErr error) {
	names, err := e.hostcheck.Conflicts(ctx)
	if err != nil {
		e.log.Debug("engine: host check failed", "error", err)
		return
	}
	if len(names) > 0 {
		e.log.Warn("engine: device may be held by another application",
			"processes", names, "error", openErr)
	}
}

// Run feeds discovery events into the tracker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine: watching for devices", "discovery", e.cfg.Discovery.Kind)
	e.tracker.Run(ctx, e.source.Watch(ctx))
	return nil
}

// SelectSeed runs a seed selection. See selector.Selector.SelectSeed.
func (e *Engine) SelectSeed(ctx context.Context, req selector.Request) (device.App, error) {
	if req.Security == 0 {
		req.Security = e.cfg.Device.Security
	}
	return e.selector.SelectSeed(ctx, req)
}

// Status returns a snapshot of the current or most recent selection.
func (e *Engine) Status() selector.Status { return e.selector.Status() }

// Present reports whether the device is attached.
func (e *Engine) Present() bool { return e.tracker.Present() }

// MaxBundleSize asks the active signing application for its bundle limit.
func (e *Engine) MaxBundleSize(ctx context.Context) (int, error) {
	return e.session.MaxBundleSize(ctx)
}

// Abort requests cancellation of the in-flight selection, if any.
func (e *Engine) Abort() { e.control.Abort() }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Tracker returns the connection tracker.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Session returns the device session.
func (e *Engine) Session() *session.Session { return e.session }

// Control returns the control channel.
func (e *Engine) Control() *control.Channel { return e.control }

// Selector returns the seed selector.
func (e *Engine) Selector() *selector.Selector { return e.selector }

// Driver returns the device driver.
func (e *Engine) Driver() device.Driver { return e.driver }

// Manual returns the manual discovery source, or nil when presence comes from
// another source.
func (e *Engine) Manual() *discovery.Manual { return e.manual }

// Close releases the device session and closes the control channel. It is
// safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.session.Close()
	e.control.Close()
	return err
}
