package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/device/sim"
	"github.com/germanamz/ledgerd/pkg/discovery"
	"github.com/germanamz/ledgerd/pkg/hostcheck"
	"github.com/germanamz/ledgerd/pkg/selector"
	"github.com/germanamz/ledgerd/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func manualConfig(attached bool) Config {
	cfg := DefaultConfig()
	cfg.Discovery.Kind = "manual"
	cfg.Discovery.InitiallyAttached = attached
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discovery.Kind = "bogus"

	_, err := New(cfg, Options{Logger: quietLogger()})
	require.Error(t, err)
}

func TestNew_SysfsSource(t *testing.T) {
	e, err := New(DefaultConfig(), Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Nil(t, e.Manual())
	assert.False(t, e.Tracker().Present())
}

func TestEngine_SelectSeed(t *testing.T) {
	e, err := New(manualConfig(true), Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	require.NotNil(t, e.Manual())
	assert.True(t, e.Tracker().Present())

	app, err := e.SelectSeed(context.Background(), selector.Request{Index: 2, Page: 1})
	require.NoError(t, err)

	simApp, ok := app.(*sim.App)
	require.True(t, ok)
	assert.Equal(t, device.Path{Index: 2, Page: 1}, simApp.Path())

	n, err := e.Session().MaxBundleSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultMaxBundleSize, n)
	assert.Equal(t, selector.Ready, e.Selector().Status().State)
	assert.Equal(t, device.DefaultSecurity, e.Selector().Status().Request.Security)
}

func TestEngine_ConfigSecurityApplied(t *testing.T) {
	cfg := manualConfig(true)
	cfg.Device.Security = 1

	e, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.SelectSeed(context.Background(), selector.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Selector().Status().Request.Security)
}

func TestEngine_DetachClosesSession(t *testing.T) {
	e, err := New(manualConfig(false), Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()

	e.Manual().Attach()
	require.Eventually(t, e.Tracker().Present, time.Second, 5*time.Millisecond)

	_, err = e.SelectSeed(context.Background(), selector.Request{})
	require.NoError(t, err)
	require.True(t, e.Session().Active())

	e.Manual().Detach()
	require.Eventually(t, func() bool { return !e.Session().Active() }, time.Second, 5*time.Millisecond)

	_, err = e.Session().MaxBundleSize(context.Background())
	require.ErrorIs(t, err, session.ErrNoSession)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_OpenFailureReportsConflicts(t *testing.T) {
	drv := sim.New(sim.Options{})
	drv.SetOpenError(errors.New("device busy"))

	checked := make(chan struct{}, 1)
	hc := hostcheck.New(nil)
	hc.SetListFunc(func(context.Context) ([]string, error) {
		checked <- struct{}{}
		return []string{"Ledger Live"}, nil
	})

	e, err := New(manualConfig(true), Options{Logger: quietLogger(), Driver: drv, HostCheck: hc})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.SelectSeed(context.Background(), selector.Request{})
	require.Error(t, err)

	select {
	case <-checked:
	default:
		t.Fatal("host check was not consulted")
	}
}

func TestEngine_CustomSource(t *testing.T) {
	src := discovery.NewManual(1)

	e, err := New(DefaultConfig(), Options{Logger: quietLogger(), Source: src})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Same(t, src, e.Manual())
}

func TestEngine_CloseIdempotent(t *testing.T) {
	e, err := New(manualConfig(true), Options{Logger: quietLogger()})
	require.NoError(t, err)

	_, err = e.SelectSeed(context.Background(), selector.Request{})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.False(t, e.Session().Active())
}
