// Package discovery reports when a signing device is attached to or detached
// from the host. Sources emit edge events only; no event is guaranteed when a
// watch starts, so consumers infer presence from the event sequence.
package discovery

import "context"

// Kind is the type of a discovery event.
type Kind string

const (
	Attach Kind = "attach"
	Detach Kind = "detach"
)

// Event is a single attach or detach notification.
type Event struct {
	Kind Kind
	// Path identifies the device when the source knows it (e.g. a sysfs
	// entry). It may be empty.
	Path string
}

// Source produces discovery events until ctx is done, then closes the
// returned channel.
type Source interface {
	Watch(ctx context.Context) <-chan Event
}
