// Package sim provides a simulated signing device. It keeps the bookkeeping a
// real driver would (open transports, activation attempts) and lets callers
// script how activation behaves, which makes it useful both for demos without
// hardware and for tests of the session lifecycle.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/germanamz/ledgerd/pkg/device"
)

var _ device.Driver = (*Driver)(nil)

// ErrClosed is returned when a transport is used or closed after it was
// already closed.
var ErrClosed = errors.New("sim: transport closed")

// DefaultMaxBundleSize mirrors what the signing application reports.
const DefaultMaxBundleSize = 8

// ActivateFunc decides the outcome of one activation attempt. attempt starts
// at 1.
type ActivateFunc func(attempt int, path device.Path, security int) error

// Options configures a Driver.
type Options struct {
	// AppOpenAfter is the number of activation attempts that fail with
	// device.StatusAppNotOpen before activation succeeds.
	AppOpenAfter int
	// MaxBundleSize reported by the app (default DefaultMaxBundleSize).
	MaxBundleSize int
}

// Driver is a simulated device.Driver. It is safe for concurrent use.
type Driver struct {
	mu         sync.Mutex
	activate   ActivateFunc
	openErr    error
	bundleSize int
	attempts   int
	opened     int
	live       map[int]*Transport
	nextID     int
}

// New creates a simulated driver.
func New(opts Options) *Driver {
	if opts.MaxBundleSize <= 0 {
		opts.MaxBundleSize = DefaultMaxBundleSize
	}

	openAfter := opts.AppOpenAfter

	return &Driver{
		bundleSize: opts.MaxBundleSize,
		live:       make(map[int]*Transport),
		activate: func(attempt int, _ device.Path, _ int) error {
			if attempt <= openAfter {
				return &device.StatusError{Code: device.StatusAppNotOpen, Message: "application not open"}
			}
			return nil
		},
	}
}

// SetActivateFunc replaces the activation script.
func (d *Driver) SetActivateFunc(fn ActivateFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activate = fn
}

// SetOpenError makes every subsequent Open fail with err. A nil err restores
// normal behaviour.
func (d *Driver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// Open implements device.Driver.
func (d *Driver) Open(ctx context.Context) (device.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}

	d.nextID++
	d.opened++
	t := &Transport{id: d.nextID, driver: d}
	d.live[t.id] = t

	return t, nil
}

// ActivateSeed implements device.Driver.
func (d *Driver) ActivateSeed(ctx context.Context, t device.Transport, path device.Path, security int) (device.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, ok := t.(*Transport)
	if !ok {
		return nil, fmt.Errorf("sim: foreign transport %T", t)
	}

	d.mu.Lock()
	if _, live := d.live[st.id]; !live {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.attempts++
	attempt := d.attempts
	fn := d.activate
	d.mu.Unlock()

	if err := fn(attempt, path, security); err != nil {
		return nil, err
	}

	return &App{transport: st, bundleSize: d.bundleSize, path: path}, nil
}

// Attempts returns the number of activation attempts so far.
func (d *Driver) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Opened returns the number of transports opened so far.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Live returns the number of transports currently open.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Driver) release(t *Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.live[t.id]; !ok {
		return ErrClosed
	}
	delete(d.live, t.id)
	return nil
}

func (d *Driver) isLive(t *Transport) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[t.id]
	return ok
}

// Transport is a simulated device.Transport.
type Transport struct {
	id     int
	driver *Driver
}

// Close releases the transport. Closing twice returns ErrClosed.
func (t *Transport) Close() error {
	return t.driver.release(t)
}

// App is a simulated signing application handle.
type App struct {
	transport  *Transport
	bundleSize int
	path       device.Path
}

// Path returns the seed path the app was activated with.
func (a *App) Path() device.Path { return a.path }

// MaxBundleSize implements device.App.
func (a *App) MaxBundleSize(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !a.transport.driver.isLive(a.transport) {
		return 0, ErrClosed
	}
	return a.bundleSize, nil
}
