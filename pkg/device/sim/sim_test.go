package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_AppOpenAfter(t *testing.T) {
	d := New(Options{AppOpenAfter: 2})
	ctx := context.Background()

	for i := range 2 {
		tr, err := d.Open(ctx)
		require.NoError(t, err)

		_, err = d.ActivateSeed(ctx, tr, device.Path{}, device.DefaultSecurity)
		require.Error(t, err, "attempt %d", i+1)
		assert.True(t, device.IsAppNotOpen(err))
		require.NoError(t, tr.Close())
	}

	tr, err := d.Open(ctx)
	require.NoError(t, err)
	app, err := d.ActivateSeed(ctx, tr, device.Path{Index: 1}, device.DefaultSecurity)
	require.NoError(t, err)

	n, err := app.MaxBundleSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBundleSize, n)
	assert.Equal(t, 3, d.Attempts())
	assert.Equal(t, 3, d.Opened())
	assert.Equal(t, 1, d.Live())
}

func TestTransport_DoubleClose(t *testing.T) {
	d := New(Options{})
	tr, err := d.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Close(), ErrClosed)
	assert.Equal(t, 0, d.Live())
}

func TestApp_InvalidAfterClose(t *testing.T) {
	d := New(Options{MaxBundleSize: 4})
	ctx := context.Background()

	tr, err := d.Open(ctx)
	require.NoError(t, err)
	app, err := d.ActivateSeed(ctx, tr, device.Path{}, 2)
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = app.MaxBundleSize(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDriver_OpenError(t *testing.T) {
	d := New(Options{})
	d.SetOpenError(device.ErrNoDevice)

	_, err := d.Open(context.Background())
	assert.ErrorIs(t, err, device.ErrNoDevice)
	assert.Equal(t, 0, d.Opened())
}

func TestDriver_SetActivateFunc(t *testing.T) {
	d := New(Options{})
	boom := errors.New("boom")
	var gotPath device.Path
	var gotSecurity int
	d.SetActivateFunc(func(_ int, p device.Path, s int) error {
		gotPath, gotSecurity = p, s
		return boom
	})

	tr, err := d.Open(context.Background())
	require.NoError(t, err)
	_, err = d.ActivateSeed(context.Background(), tr, device.Path{Index: 2, Page: 5}, 3)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, device.Path{Index: 2, Page: 5}, gotPath)
	assert.Equal(t, 3, gotSecurity)
}
