package wsbridge

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/germanamz/ledgerd/pkg/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*control.Channel, *Server, string) {
	t.Helper()

	ch := control.NewChannel()
	srv := NewServer(ch, ServerOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	t.Cleanup(ch.Close)

	return ch, srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, srv *Server, url string) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return c
}

func nextStatus(t *testing.T, c *Client) control.Status {
	t.Helper()

	select {
	case st, ok := <-c.Statuses():
		require.True(t, ok, "status stream closed")
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return control.Status{}
	}
}

func TestStatusesForwarded(t *testing.T) {
	ch, srv, url := setup(t)
	c := dial(t, srv, url)

	ch.Publish(control.AwaitingConnection(true))
	ch.Publish(control.AwaitingApplication(false))

	st := nextStatus(t, c)
	require.NotNil(t, st.AwaitingConnection)
	assert.True(t, *st.AwaitingConnection)
	assert.Nil(t, st.AwaitingApplication)

	st = nextStatus(t, c)
	require.NotNil(t, st.AwaitingApplication)
	assert.False(t, *st.AwaitingApplication)
	assert.Nil(t, st.AwaitingConnection)
}

func TestWireFormat(t *testing.T) {
	ch, srv, url := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	ch.Publish(control.AwaitingConnection(true))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"awaitingConnection":true}`, string(data))

	sub := ch.SubscribeCommands(1)
	defer ch.UnsubscribeCommands(sub)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"abort":true}`)))

	select {
	case cmd := <-sub.C:
		assert.True(t, cmd.Abort)
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestEmptyFrameDoesNotDisplaceAbort(t *testing.T) {
	ch, srv, url := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow() //nolint:errcheck

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	sub := ch.SubscribeCommands(1)
	defer ch.UnsubscribeCommands(sub)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"abort":false}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"abort":true}`)))

	select {
	case cmd := <-sub.C:
		assert.True(t, cmd.Abort)
	case <-time.After(2 * time.Second):
		t.Fatal("abort not delivered")
	}
}

func TestAbortDelivered(t *testing.T) {
	ch, srv, url := setup(t)
	c := dial(t, srv, url)

	sub := ch.SubscribeCommands(1)
	defer ch.UnsubscribeCommands(sub)

	require.NoError(t, c.Abort(context.Background()))

	select {
	case cmd := <-sub.C:
		assert.True(t, cmd.Abort)
	case <-time.After(2 * time.Second):
		t.Fatal("abort not delivered")
	}
}

func TestChannelCloseEndsStream(t *testing.T) {
	ch, srv, url := setup(t)
	c := dial(t, srv, url)

	ch.Close()

	select {
	case _, ok := <-c.Statuses():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("status stream not closed")
	}
	assert.NoError(t, c.Err())
}

func TestClientCloseUnsubscribes(t *testing.T) {
	_, srv, url := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	_ = c.Close()

	require.Eventually(t, func() bool { return srv.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/control")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wsbridge: dial")
}
