package device

import (
	"context"
	"io"
)

// DefaultSecurity is the security level used when a request leaves it unset.
const DefaultSecurity = 2

// Transport is an open channel to a physical device. Closing it releases the
// underlying handle.
type Transport interface {
	io.Closer
}

// App is the signing application handle obtained after a seed has been
// activated. It is only valid while the Transport it was created on is open.
type App interface {
	MaxBundleSize(ctx context.Context) (int, error)
}

// Driver opens transports and activates seeds on them.
type Driver interface {
	Open(ctx context.Context) (Transport, error)
	ActivateSeed(ctx context.Context, t Transport, path Path, security int) (App, error)
}
