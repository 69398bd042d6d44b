package control

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

func TestChannel_PublishFanOut(t *testing.T) {
	c := NewChannel()
	sub1 := c.SubscribeStatus(4)
	sub2 := c.SubscribeStatus(4)
	defer c.UnsubscribeStatus(sub1)
	defer c.UnsubscribeStatus(sub2)

	c.Publish(AwaitingConnection(true))

	got := recv(t, sub1)
	require.NotNil(t, got.AwaitingConnection)
	assert.True(t, *got.AwaitingConnection)
	assert.Nil(t, got.AwaitingApplication)

	got = recv(t, sub2)
	require.NotNil(t, got.AwaitingConnection)
}

func TestChannel_StatusJSON(t *testing.T) {
	data, err := json.Marshal(AwaitingApplication(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"awaitingApplication":false}`, string(data))

	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"abort":true}`), &cmd))
	assert.True(t, cmd.Abort)
}

func TestChannel_CommandsIdempotentDrop(t *testing.T) {
	c := NewChannel()
	sub := c.SubscribeCommands(1)
	defer c.UnsubscribeCommands(sub)

	c.Abort()
	c.Abort() // dropped, one abort is already pending

	assert.True(t, recv(t, sub).Abort)

	select {
	case <-sub.C:
		t.Fatal("expected no second command")
	default:
	}
}

func TestChannel_EmptyCommandDoesNotDisplaceAbort(t *testing.T) {
	c := NewChannel()
	sub := c.SubscribeCommands(1)
	defer c.UnsubscribeCommands(sub)

	c.Send(Command{})
	c.Send(Command{Abort: false})
	c.Abort()

	assert.True(t, recv(t, sub).Abort)
}

func TestChannel_Unsubscribe(t *testing.T) {
	c := NewChannel()
	sub := c.SubscribeCommands(1)
	c.UnsubscribeCommands(sub)
	c.UnsubscribeCommands(sub)

	_, ok := <-sub.C
	assert.False(t, ok)

	c.Abort() // no subscribers, must not panic
}

func TestChannel_Close(t *testing.T) {
	c := NewChannel()
	st := c.SubscribeStatus(1)
	cmd := c.SubscribeCommands(1)

	c.Close()
	c.Close()

	_, ok := <-st.C
	assert.False(t, ok)
	_, ok = <-cmd.C
	assert.False(t, ok)

	c.Publish(AwaitingConnection(true))
	c.Abort()

	late := c.SubscribeStatus(1)
	_, ok = <-late.C
	assert.False(t, ok, "subscriptions after Close are closed immediately")
}
