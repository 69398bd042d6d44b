// Package session owns the open transport to the signing device and the
// signing application handle activated on it. Both are always released
// together: the application handle never outlives its transport.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/germanamz/ledgerd/pkg/device"
)

// ErrNoSession is returned when an operation needs an active application
// handle and none is installed.
var ErrNoSession = errors.New("session: no active session")

// Session holds at most one transport/app pair. It is safe for concurrent
// use.
type Session struct {
	log *slog.Logger

	mu        sync.Mutex
	transport device.Transport
	app       device.App
}

// New creates an empty Session. A nil logger uses slog.Default().
func New(log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{log: log}
}

// Install closes any previous pair and takes ownership of t and app.
func (s *Session) Install(t device.Transport, app device.App) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.transport = t
	s.app = app
}

// InstallIf is Install guarded by present, which is evaluated under the
// session lock. A disconnect hook that calls Close therefore either runs
// after the pair is installed and releases it, or before the check and
// makes it fail. On false the caller still owns t.
func (s *Session) InstallIf(present func() bool, t device.Transport, app device.App) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !present() {
		return false
	}

	s.closeLocked()
	s.transport = t
	s.app = app
	return true
}

// Active reports whether an application handle is installed.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app != nil
}

// App returns the installed application handle.
func (s *Session) App() (device.App, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app, s.app != nil
}

// Close drops the application handle and releases the transport. Closing an
// empty session is a no-op. Transport close errors are logged, not returned.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	t := s.transport
	s.app = nil
	s.transport = nil

	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.log.Warn("session: close transport", "err", err)
	}
}

// MaxBundleSize asks the signing application for the largest bundle it can
// sign.
func (s *Session) MaxBundleSize(ctx context.Context) (int, error) {
	app, ok := s.App()
	if !ok {
		return 0, ErrNoSession
	}
	return app.MaxBundleSize(ctx)
}
