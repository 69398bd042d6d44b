package discovery

import (
	"context"
	"sync"
)

var _ Source = (*Manual)(nil)

// Manual is a Source driven by explicit Attach/Detach calls. It backs the
// simulator and tests.
type Manual struct {
	mu     sync.Mutex
	events chan Event
}

// NewManual creates a Manual source buffering up to bufSize pending events.
func NewManual(bufSize int) *Manual {
	return &Manual{events: make(chan Event, bufSize)}
}

// Attach emits an attach event. It blocks if the buffer is full.
func (m *Manual) Attach() { m.emit(Event{Kind: Attach, Path: "manual"}) }

// Detach emits a detach event. It blocks if the buffer is full.
func (m *Manual) Detach() { m.emit(Event{Kind: Detach, Path: "manual"}) }

func (m *Manual) emit(e Event) {
	m.mu.Lock()
	ch := m.events
	m.mu.Unlock()
	ch <- e
}

// Watch forwards emitted events until ctx is done.
func (m *Manual) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-m.events:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
