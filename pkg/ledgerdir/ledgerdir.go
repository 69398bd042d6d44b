// Package ledgerdir encapsulates path knowledge for the .ledgerd/ directory:
// the config file, the local runtime directory and config resolution.
package ledgerdir

import (
	"os"
	"path/filepath"
)

// DefaultRoot is the directory name used when none is given.
const DefaultRoot = ".ledgerd"

// LegacyConfigName is the config file looked up in the working directory when
// the .ledgerd/ directory has none.
const LegacyConfigName = "ledgerd.yaml"

// Dir resolves paths within a .ledgerd/ directory.
type Dir struct {
	root string
}

// New creates a Dir rooted at root, made absolute. No I/O is performed.
func New(root string) Dir {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	return Dir{root: abs}
}

// Root returns the absolute path to the directory.
func (d Dir) Root() string { return d.root }

// ConfigPath returns the path to the config file.
func (d Dir) ConfigPath() string { return filepath.Join(d.root, "config.yaml") }

// EnvPath returns the path to the directory's .env file.
func (d Dir) EnvPath() string { return filepath.Join(d.root, ".env") }

// LocalDir returns the path to the gitignored runtime directory.
func (d Dir) LocalDir() string { return filepath.Join(d.root, "local") }

// GitignorePath returns the path to the directory's .gitignore.
func (d Dir) GitignorePath() string { return filepath.Join(d.root, ".gitignore") }

// Exists reports whether the root directory exists.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.root)

	return err == nil && info.IsDir()
}

// ResolveConfig returns the config file to load and whether it exists.
// Priority: explicit path, then the directory's config.yaml, then
// ledgerd.yaml in the working directory. An explicit path is returned even if
// missing so the caller reports the error.
func (d Dir) ResolveConfig(explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}

	if fileExists(d.ConfigPath()) {
		return d.ConfigPath(), true
	}

	if fileExists(LegacyConfigName) {
		return LegacyConfigName, true
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
