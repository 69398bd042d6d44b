package wsbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/ledgerd/pkg/control"
)

// Client is the UI-process end of the bridge.
type Client struct {
	conn     *websocket.Conn
	statuses chan control.Status
	cancel   context.CancelFunc
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: dial %s: %w", url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		statuses: make(chan control.Status, DefaultBufferSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.readStatuses(readCtx)

	return c, nil
}

// Statuses returns the stream of status updates. It is closed when the
// connection ends.
func (c *Client) Statuses() <-chan control.Status { return c.statuses }

// Err returns the error that ended the connection, or nil if it ended with a
// normal close or is still open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes a command to the server.
func (c *Client) Send(ctx context.Context, cmd control.Command) error {
	if err := wsjson.Write(ctx, c.conn, cmd); err != nil {
		return fmt.Errorf("wsbridge: send: %w", err)
	}
	return nil
}

// Abort asks the server to cancel the pending seed selection.
func (c *Client) Abort(ctx context.Context) error {
	return c.Send(ctx, control.Command{Abort: true})
}

// Close closes the connection and waits for the status stream to end.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.done
	return err
}

func (c *Client) readStatuses(ctx context.Context) {
	defer close(c.done)
	defer close(c.statuses)

	for {
		var st control.Status
		if err := wsjson.Read(ctx, c.conn, &st); err != nil {
			if !isNormalClose(err) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}

		select {
		case c.statuses <- st:
		case <-ctx.Done():
			return
		}
	}
}
