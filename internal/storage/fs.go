// Package storage covers the controller's file-system needs: absolute
// path checks used by request validation, a sandbox for managed output
// and temp directories, and the persistent settings store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// FS implements the file-system checks request validation needs. All
// paths are absolute and caller supplied; sandboxing applies only to
// the managed directories, not to user inputs.
type FS struct{}

func NewFS() *FS { return &FS{} }

func (FS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (FS) Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}

func (FS) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// FreeSpace reports the free bytes on the filesystem holding path. The
// nearest existing ancestor is measured when the path itself does not
// exist yet.
func (FS) FreeSpace(path string) (uint64, error) {
	probe := path
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	usage, err := disk.Usage(probe)
	if err != nil {
		return 0, fmt.Errorf("measuring free space at %s: %w", probe, err)
	}
	return usage.Free, nil
}
