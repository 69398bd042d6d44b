// Package selector drives the seed selection handshake: wait for the device,
// open a transport, activate the requested seed on the signing application,
// and retry while the application is not open. A selection can be aborted
// through the control channel while it waits for the device or between
// retries.
package selector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/germanamz/ledgerd/pkg/control"
	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/session"
	"github.com/germanamz/ledgerd/pkg/tracker"
)

// DefaultRetryDelay is the pause between activation attempts while the
// signing application is not open.
const DefaultRetryDelay = 4 * time.Second

var (
	// ErrConnection is returned when the device is not present after the
	// connection wait.
	ErrConnection = errors.New("selector: device connection error")
	// ErrCancelled is returned when the selection was aborted.
	ErrCancelled = errors.New("selector: cancelled")
	// ErrBusy is returned when a selection is already in flight.
	ErrBusy = errors.New("selector: another selection is in progress")
)

// Presence reports and notifies device presence. *tracker.Tracker satisfies
// it.
type Presence interface {
	Present() bool
	Subscribe(fn tracker.Listener) tracker.Token
	Unsubscribe(tok tracker.Token)
}

// Control publishes prompt updates and delivers commands. *control.Channel
// satisfies it.
type Control interface {
	Publish(s control.Status)
	SubscribeCommands(bufSize int) *control.Subscription[control.Command]
	UnsubscribeCommands(sub *control.Subscription[control.Command])
}

// Options configures a Selector.
type Options struct {
	RetryDelay time.Duration // default DefaultRetryDelay
	Logger     *slog.Logger
	// OnOpenFailure is called when opening a transport fails, before the
	// failure is handled. It may be used for diagnostics.
	OnOpenFailure func(ctx context.Context, err error)
}

// Selector runs seed selections against a single device session. Only one
// selection may be in flight at a time.
type Selector struct {
	driver   device.Driver
	presence Presence
	control  Control
	session  *session.Session

	retryDelay    time.Duration
	log           *slog.Logger
	onOpenFailure func(ctx context.Context, err error)

	mu     sync.Mutex
	active bool
	status Status
	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Selector.
func New(driver device.Driver, presence Presence, ctrl Control, sess *session.Session, opts Options) *Selector {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Selector{
		driver:        driver,
		presence:      presence,
		control:       ctrl,
		session:       sess,
		retryDelay:    opts.RetryDelay,
		log:           opts.Logger,
		onOpenFailure: opts.OnOpenFailure,
		sleepFunc:     contextSleep,
	}
}

// SetSleepFunc overrides the retry wait (for testing). A selection already
// in flight keeps the function it started with.
func (s *Selector) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleepFunc = fn
}

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status returns a snapshot of the current or most recent selection.
func (s *Selector) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Session returns the device session the selector installs into.
func (s *Selector) Session() *session.Session { return s.session }

// MaxBundleSize delegates to the active session.
func (s *Selector) MaxBundleSize(ctx context.Context) (int, error) {
	return s.session.MaxBundleSize(ctx)
}

// SelectSeed waits for the device, activates the requested seed and returns
// the signing application handle. It fails with ErrConnection, ErrCancelled,
// ErrBusy, or the device error for failures other than the application not
// being open.
func (s *Selector) SelectSeed(ctx context.Context, req Request) (device.App, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	r := s.start(ctx, req.withDefaults())
	defer r.stop()

	app, err := r.execute()
	r.finish(err)

	return app, err
}

func (s *Selector) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrBusy
	}
	s.active = true
	return nil
}

func (s *Selector) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}

func (s *Selector) updateStatus(fn func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// start records a new selection and begins watching for abort commands.
func (s *Selector) start(ctx context.Context, req Request) *run {
	waitCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	sleep := s.sleepFunc
	s.mu.Unlock()

	r := &run{
		sel:         s,
		req:         req,
		ctx:         ctx,
		waitCtx:     waitCtx,
		cancelWait:  cancel,
		sleep:       sleep,
		state:       Idle,
		sub:         s.control.SubscribeCommands(1),
		watcherDone: make(chan struct{}),
	}

	s.updateStatus(func(st *Status) { *st = Status{State: Idle, Request: req} })

	go r.watch()

	return r
}
