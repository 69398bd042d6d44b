// Package tracker keeps the process-wide "device present" state derived from
// discovery events and fans every transition out to registered listeners.
package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/germanamz/ledgerd/pkg/discovery"
)

// Listener receives the presence state after every discovery event.
type Listener func(present bool)

// Token identifies one listener registration.
type Token uint64

type registration struct {
	token Token
	fn    Listener
}

// Tracker maintains device presence. Listeners are invoked synchronously, in
// subscription order, without any Tracker lock held, so they may call
// Unsubscribe and Present. They must not call Subscribe or HandleEvent.
type Tracker struct {
	log *slog.Logger

	// notifyMu serializes broadcasts so that notifications for two events are
	// never interleaved.
	notifyMu sync.Mutex

	mu           sync.Mutex
	present      bool
	listeners    []registration
	nextToken    Token
	onDisconnect func()
}

// New creates a Tracker with no device present. A nil logger uses
// slog.Default().
func New(log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{log: log}
}

// OnDisconnect sets a hook run after listeners have been notified of a
// transition to not present.
func (t *Tracker) OnDisconnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// Present reports whether the most recent discovery event was an attach.
func (t *Tracker) Present() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present
}

// Subscribe registers fn. If a device is already present, fn(true) is called
// before Subscribe returns.
func (t *Tracker) Subscribe(fn Listener) Token {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	t.nextToken++
	tok := t.nextToken
	t.listeners = append(t.listeners, registration{token: tok, fn: fn})
	present := t.present
	t.mu.Unlock()

	if present {
		t.invoke(tok, fn, true)
	}

	return tok
}

// Unsubscribe removes the registration identified by tok. Unknown tokens are
// ignored.
func (t *Tracker) Unsubscribe(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, r := range t.listeners {
		if r.token == tok {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// HandleEvent applies a discovery event: presence is updated and broadcast
// first, then the disconnect hook runs when the device is gone.
func (t *Tracker) HandleEvent(kind discovery.Kind) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	present := kind == discovery.Attach

	t.mu.Lock()
	t.present = present
	snapshot := make([]registration, len(t.listeners))
	copy(snapshot, t.listeners)
	hook := t.onDisconnect
	t.mu.Unlock()

	t.log.Debug("tracker: discovery event", "kind", kind, "listeners", len(snapshot))

	for _, r := range snapshot {
		t.invoke(r.token, r.fn, present)
	}

	if !present && hook != nil {
		hook()
	}
}

// Run feeds events into HandleEvent until events is closed or ctx is done.
func (t *Tracker) Run(ctx context.Context, events <-chan discovery.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			t.HandleEvent(e.Kind)
		}
	}
}

func (t *Tracker) invoke(tok Token, fn Listener, present bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tracker: listener panicked", "token", tok, "panic", r)
		}
	}()
	fn(present)
}
