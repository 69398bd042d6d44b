// Package control is the boundary between the device session core and the UI
// process. Status updates flow out to subscribers (so the UI can show or clear
// its prompts) and commands flow in (so the UI can abort a pending seed
// selection). Both directions are typed streams with explicit close.
package control

import "sync"

// Status is an outbound prompt update. Nil fields are unchanged.
type Status struct {
	AwaitingConnection  *bool `json:"awaitingConnection,omitempty"`
	AwaitingApplication *bool `json:"awaitingApplication,omitempty"`
}

// AwaitingConnection builds a status toggling the "connect your device" prompt.
func AwaitingConnection(v bool) Status { return Status{AwaitingConnection: &v} }

// AwaitingApplication builds a status toggling the "open the application"
// prompt.
func AwaitingApplication(v bool) Status { return Status{AwaitingApplication: &v} }

// Command is an inbound request from the UI process.
type Command struct {
	Abort bool `json:"abort,omitempty"`
}

// Subscription receives values from one direction of a Channel.
type Subscription[T any] struct {
	C  <-chan T
	ch chan T
}

// bus fans values out to subscribers. A subscriber whose buffer is full
// misses the value.
type bus[T any] struct {
	subs map[*Subscription[T]]struct{}
}

func newBus[T any]() bus[T] {
	return bus[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (b *bus[T]) subscribe(bufSize int) *Subscription[T] {
	ch := make(chan T, bufSize)
	sub := &Subscription[T]{C: ch, ch: ch}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *bus[T]) unsubscribe(sub *Subscription[T]) {
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *bus[T]) publish(v T) {
	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
		}
	}
}

func (b *bus[T]) closeAll() {
	for sub := range b.subs {
		b.unsubscribe(sub)
	}
}

// Channel carries statuses out and commands in. It is safe for concurrent
// use.
type Channel struct {
	mu       sync.Mutex
	statuses bus[Status]
	commands bus[Command]
	closed   bool
}

// NewChannel creates an open Channel.
func NewChannel() *Channel {
	return &Channel{
		statuses: newBus[Status](),
		commands: newBus[Command](),
	}
}

// Publish sends a status to every status subscriber.
func (c *Channel) Publish(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.statuses.publish(s)
}

// SubscribeStatus registers a status subscriber. The caller should drain
// sub.C and eventually call UnsubscribeStatus.
func (c *Channel) SubscribeStatus(bufSize int) *Subscription[Status] {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.statuses.subscribe(bufSize)
	if c.closed {
		c.statuses.unsubscribe(sub)
	}
	return sub
}

// UnsubscribeStatus removes the subscription and closes its channel.
func (c *Channel) UnsubscribeStatus(sub *Subscription[Status]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses.unsubscribe(sub)
}

// Send delivers a command to every command subscriber. Aborts are idempotent,
// so a subscriber that already has one pending loses nothing when a second is
// dropped. A command that requests nothing is ignored and never takes the
// place of a later abort.
func (c *Channel) Send(cmd Command) {
	if cmd == (Command{}) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.commands.publish(cmd)
}

// Abort is shorthand for Send(Command{Abort: true}).
func (c *Channel) Abort() { c.Send(Command{Abort: true}) }

// SubscribeCommands registers a command subscriber.
func (c *Channel) SubscribeCommands(bufSize int) *Subscription[Command] {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.commands.subscribe(bufSize)
	if c.closed {
		c.commands.unsubscribe(sub)
	}
	return sub
}

// UnsubscribeCommands removes the subscription and closes its channel.
func (c *Channel) UnsubscribeCommands(sub *Subscription[Command]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands.unsubscribe(sub)
}

// Close ends both directions: every subscription channel is closed and later
// Publish/Send calls are dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.statuses.closeAll()
	c.commands.closeAll()
}
