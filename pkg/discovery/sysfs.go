package discovery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSysfsRoot is where the kernel lists USB devices.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// LedgerVendorID is the USB vendor id of Ledger devices.
const LedgerVendorID uint16 = 0x2c97

// DefaultPollInterval is used when SysfsWatcher.Interval is zero.
const DefaultPollInterval = 500 * time.Millisecond

var _ Source = (*SysfsWatcher)(nil)

// SysfsWatcher polls the sysfs USB device list for devices with a matching
// vendor id and emits an event whenever the device appears or disappears.
type SysfsWatcher struct {
	Root     string
	VendorID uint16
	Interval time.Duration
	Logger   *slog.Logger
}

// Watch implements Source. A device already present when the watch starts
// produces an initial Attach event.
func (w *SysfsWatcher) Watch(ctx context.Context) <-chan Event {
	root := w.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	vendor := w.VendorID
	if vendor == 0 {
		vendor = LedgerVendorID
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}

	out := make(chan Event, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var current string
		for {
			found, err := scanVendor(root, vendor)
			if err != nil {
				log.Debug("discovery: scan failed", "root", root, "err", err)
			}

			switch {
			case found != "" && current == "":
				if !send(ctx, out, Event{Kind: Attach, Path: found}) {
					return
				}
			case found == "" && current != "":
				if !send(ctx, out, Event{Kind: Detach, Path: current}) {
					return
				}
			}
			current = found

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Event, e Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// scanVendor returns the sysfs path of the first device whose idVendor
// matches, or "" when none does.
func scanVendor(root string, vendor uint16) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		name := entry.Name()

		// Root hubs (usb1) and interfaces (1-1:1.0) carry no idVendor of
		// interest.
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		devPath := filepath.Join(root, name)
		id, err := readHexUint16(filepath.Join(devPath, "idVendor"))
		if err != nil {
			continue
		}
		if id == vendor {
			return devPath, nil
		}
	}

	return "", nil
}

func readHexUint16(path string) (uint16, error) {
	data, err := os.ReadFile(path) //nolint:gosec // sysfs path built from a directory listing
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
