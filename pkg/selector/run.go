package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/ledgerd/pkg/control"
	"github.com/germanamz/ledgerd/pkg/device"
)

// run is the state of one selection. The caller's goroutine drives it; the
// watch goroutine only records aborts and interrupts waits.
type run struct {
	sel *Selector
	req Request

	// ctx is the caller's context and bounds device calls. waitCtx is
	// additionally cancelled by an abort and bounds the connection wait and
	// the retry delay.
	ctx        context.Context
	waitCtx    context.Context
	cancelWait context.CancelFunc
	sleep      func(ctx context.Context, d time.Duration) error

	sub         *control.Subscription[control.Command]
	watcherDone chan struct{}

	mu       sync.Mutex
	state    State
	aborted  bool
	attempts int
}

func (r *run) watch() {
	defer close(r.watcherDone)
	for cmd := range r.sub.C {
		if cmd.Abort {
			r.abort()
		}
	}
}

// abort records a cancellation unless the selection already ended.
func (r *run) abort() {
	r.mu.Lock()
	if r.state.Terminal() || r.aborted {
		r.mu.Unlock()
		return
	}
	r.aborted = true
	state := r.state
	r.mu.Unlock()

	r.sel.log.Info("selector: abort requested", "state", state)
	r.sel.updateStatus(func(st *Status) { st.Aborted = true })
	r.cancelWait()
}

func (r *run) stop() {
	r.sel.control.UnsubscribeCommands(r.sub)
	<-r.watcherDone
	r.cancelWait()
}

// cancelled returns the cancellation error if the selection was aborted or
// the caller's context ended, nil otherwise.
func (r *run) cancelled() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aborted {
		return ErrCancelled
	}
	return nil
}

// notify publishes a prompt update unless the selection already ended or was
// aborted.
func (r *run) notify(st control.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aborted || r.state.Terminal() {
		return
	}
	r.sel.control.Publish(st)
}

func (r *run) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	r.sel.log.Debug("selector: state", "state", state, "path", r.req.Path().String())
	r.sel.updateStatus(func(st *Status) { st.State = state })
}

func (r *run) finish(err error) {
	state := Ready
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		state = Cancelled
	default:
		state = Failed
	}

	r.mu.Lock()
	r.state = state
	attempts := r.attempts
	r.mu.Unlock()

	r.sel.updateStatus(func(st *Status) {
		st.State = state
		st.Attempts = attempts
		st.Err = err
	})

	if err != nil {
		r.sel.log.Info("selector: selection ended", "state", state, "attempts", attempts, "err", err)
		return
	}
	r.sel.log.Info("selector: seed selected", "path", r.req.Path().String(), "attempts", attempts)
}

func (r *run) execute() (device.App, error) {
	if err := r.awaitConnection(); err != nil {
		return nil, err
	}

	// At most one live session: drop the previous one before opening anew.
	if err := r.sel.session.Close(); err != nil {
		r.sel.log.Warn("selector: close previous session", "err", err)
	}

	r.setState(AwaitingApplication)

	for {
		app, retry, err := r.attempt()
		if !retry {
			return app, err
		}

		if err := r.cancelled(); err != nil {
			return nil, err
		}

		r.sel.log.Info("selector: application not open, retrying", "delay", r.sel.retryDelay, "attempt", r.attemptCount())

		if err := r.sleep(r.waitCtx, r.sel.retryDelay); err != nil {
			if cerr := r.cancelled(); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}
}

func (r *run) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *run) awaitConnection() error {
	p := r.sel.presence
	if p.Present() {
		return nil
	}

	r.setState(AwaitingConnection)
	r.notify(control.AwaitingConnection(true))

	connected := make(chan struct{}, 1)
	tok := p.Subscribe(func(present bool) {
		if !present {
			return
		}
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer p.Unsubscribe(tok)

	select {
	case <-connected:
	case <-r.waitCtx.Done():
	}

	if err := r.cancelled(); err != nil {
		return err
	}

	r.notify(control.AwaitingConnection(false))

	if !p.Present() {
		return ErrConnection
	}
	return nil
}

// attempt performs one open+activate handshake. retry is true when the
// application is not open and another attempt should follow.
func (r *run) attempt() (app device.App, retry bool, err error) {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()

	r.sel.updateStatus(func(st *Status) { st.Attempts++ })

	drv := r.sel.driver
	path := r.req.Path()

	t, err := drv.Open(r.ctx)
	if err != nil {
		if r.sel.onOpenFailure != nil {
			r.sel.onOpenFailure(r.ctx, err)
		}
		err = fmt.Errorf("selector: open transport: %w", err)
	} else {
		app, err = drv.ActivateSeed(r.ctx, t, path, r.req.Security)
		if err == nil {
			app, err = r.succeed(t, app)
			return app, false, err
		}
		err = fmt.Errorf("selector: activate seed %s: %w", path, err)
	}

	if t != nil {
		if cerr := t.Close(); cerr != nil {
			r.sel.log.Warn("selector: close transport", "err", cerr)
		}
	}

	r.notify(control.AwaitingApplication(true))

	if cerr := r.cancelled(); cerr != nil {
		return nil, false, cerr
	}

	if device.IsAppNotOpen(err) {
		return nil, true, nil
	}

	r.notify(control.AwaitingApplication(false))
	return nil, false, err
}

// succeed installs the session unless an abort was recorded while the
// handshake was in flight or the device is gone, in which case the fresh
// transport is released. Presence is checked under the session lock so a
// concurrent disconnect cleanup cannot miss the new pair.
func (r *run) succeed(t device.Transport, app device.App) (device.App, error) {
	r.mu.Lock()

	if r.aborted || r.ctx.Err() != nil {
		r.mu.Unlock()
		r.closeTransport(t)
		return nil, r.cancelled()
	}

	installed := r.sel.session.InstallIf(r.sel.presence.Present, t, app)
	r.sel.control.Publish(control.AwaitingApplication(false))
	if !installed {
		r.mu.Unlock()
		r.closeTransport(t)
		return nil, ErrConnection
	}

	r.state = Ready
	r.mu.Unlock()
	return app, nil
}

func (r *run) closeTransport(t device.Transport) {
	if err := t.Close(); err != nil {
		r.sel.log.Warn("selector: close transport", "err", err)
	}
}
