// Package filex holds small file helpers shared by the blob store and the
// CLI.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and its parents with owner-only permissions.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// WriteAtomic copies r into a temporary file next to dest and renames it
// into place. commit runs after the data is synced and before the rename;
// if it fails the temporary file is removed and dest is untouched. A nil
// commit always succeeds.
func WriteAtomic(dest string, r io.Reader, commit func(written int64) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if commit != nil {
		if err = commit(n); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), dest)
}
