package device

import (
	"errors"
	"fmt"
)

// StatusAppNotOpen is reported when the device is reachable but the signing
// application is not open on it.
const StatusAppNotOpen uint16 = 0x6e00

// ErrNoDevice is returned by drivers when no device can be opened.
var ErrNoDevice = errors.New("device: no device found")

// StatusError is a failure reported by the device with a status word.
type StatusError struct {
	Code    uint16
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device: status 0x%04x", e.Code)
	}
	return fmt.Sprintf("device: status 0x%04x: %s", e.Code, e.Message)
}

// StatusCode extracts the status word from err. The boolean is false when err
// carries no status.
func StatusCode(err error) (uint16, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsAppNotOpen reports whether err means the signing application is not open.
func IsAppNotOpen(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == StatusAppNotOpen
}
