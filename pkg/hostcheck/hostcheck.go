// Package hostcheck looks for other processes on the host that are known to
// hold the signing device open, which makes opening a transport fail.
package hostcheck

import (
	"context"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultProcesses are names of applications that commonly claim the device.
var DefaultProcesses = []string{"Ledger Live", "ledger-live"}

// Checker matches running process names against a list of known conflicts.
type Checker struct {
	names []string

	// listFunc is used for testing; defaults to listing host processes.
	listFunc func(ctx context.Context) ([]string, error)
}

// New creates a Checker. An empty names list uses DefaultProcesses.
func New(names []string) *Checker {
	if len(names) == 0 {
		names = DefaultProcesses
	}

	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}

	return &Checker{names: lower, listFunc: processNames}
}

// SetListFunc overrides the process lister (for testing).
func (c *Checker) SetListFunc(fn func(ctx context.Context) ([]string, error)) { c.listFunc = fn }

// Conflicts returns the sorted, de-duplicated names of running processes that
// match a known conflict.
func (c *Checker) Conflicts(ctx context.Context) ([]string, error) {
	running, err := c.listFunc(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, name := range running {
		ln := strings.ToLower(name)
		for _, want := range c.names {
			if !strings.Contains(ln, want) {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				out = append(out, name)
			}
			break
		}
	}

	sort.Strings(out)
	return out, nil
}

func processNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// Processes may exit between listing and inspection.
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
