package selector

import (
	"fmt"

	"github.com/germanamz/ledgerd/pkg/device"
)

// State is the lifecycle stage of a seed selection.
type State int

const (
	Idle State = iota
	AwaitingConnection
	AwaitingApplication
	Ready
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConnection:
		return "awaiting_connection"
	case AwaitingApplication:
		return "awaiting_application"
	case Ready:
		return "ready"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Ready || s == Cancelled || s == Failed
}

// Request selects a seed on the device.
type Request struct {
	Index uint32 `json:"index"`
	Page  uint32 `json:"page"`
	// Security level; zero means device.DefaultSecurity.
	Security int `json:"security,omitempty"`
}

// Path returns the derivation path of the requested seed.
func (r Request) Path() device.Path {
	return device.Path{Index: r.Index, Page: r.Page}
}

func (r Request) withDefaults() Request {
	if r.Security == 0 {
		r.Security = device.DefaultSecurity
	}
	return r
}

// Status is a snapshot of the current or most recent selection.
type Status struct {
	State    State
	Request  Request
	Attempts int
	Aborted  bool
	Err      error
}
