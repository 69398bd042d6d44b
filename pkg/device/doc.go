// Package device defines the boundary to the signing device: opening a
// transport, activating a seed on the signing application, and the status
// errors the device reports. Concrete drivers live in sub-packages; the wire
// format spoken to the hardware is owned by those drivers and never leaks
// through these interfaces.
package device
