package ledgerdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const gitignoreContent = "local/\n.env\n"

// EnsureStructure creates the root, local/ and .gitignore if missing. It is
// idempotent.
func EnsureStructure(d Dir) error {
	if err := os.MkdirAll(d.LocalDir(), 0o750); err != nil {
		return fmt.Errorf("ledgerdir: create local dir: %w", err)
	}

	if err := ensureGitignore(d); err != nil {
		return fmt.Errorf("ledgerdir: gitignore: %w", err)
	}

	return nil
}

func ensureGitignore(d Dir) error {
	path := d.GitignorePath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(gitignoreContent), 0o600)
}

// WriteConfig ensures the directory structure and replaces config.yaml with
// data. The file is written to a temporary name first and renamed into place.
func WriteConfig(d Dir, data []byte) error {
	if err := EnsureStructure(d); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.Root(), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("ledgerdir: write config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("ledgerdir: write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledgerdir: write config: %w", err)
	}

	if err := os.Rename(tmp.Name(), d.ConfigPath()); err != nil {
		return fmt.Errorf("ledgerdir: write config: %w", err)
	}

	return nil
}

// ReadConfig returns the current config.yaml contents, or nil if there is
// none.
func ReadConfig(d Dir) ([]byte, error) {
	data, err := os.ReadFile(d.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledgerdir: read config: %w", err)
	}
	return data, nil
}

// MigrateLegacyConfig moves ledgerd.yaml from workDir into the directory. It
// is a no-op if there is no legacy file or config.yaml already exists.
func MigrateLegacyConfig(d Dir, workDir string) (bool, error) {
	oldPath := filepath.Join(workDir, LegacyConfigName)

	if _, err := os.Stat(oldPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ledgerdir: migrate config: stat legacy path: %w", err)
	}

	if _, err := os.Stat(d.ConfigPath()); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("ledgerdir: migrate config: stat config: %w", err)
	}

	if err := EnsureStructure(d); err != nil {
		return false, err
	}

	if err := os.Rename(oldPath, d.ConfigPath()); err != nil {
		return false, fmt.Errorf("ledgerdir: migrate config: %w", err)
	}

	return true, nil
}
