package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const probeFile = ".storage_probe"

// probeMount verifies that root exists, is a distinct mount point (not a
// plain directory silently standing in for an unmounted share), and
// accepts a small write-and-delete probe.
func probeMount(root string) error {
	fi, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, root)
	}

	mounted, err := isMountPoint(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !mounted {
		return fmt.Errorf("%w: %s is not a mount point", ErrUnavailable, root)
	}

	probe := filepath.Join(root, probeFile)
	payload := []byte(fmt.Sprintf("probe_%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, payload, 0o644); err != nil {
		return fmt.Errorf("%w: write probe: %v", ErrUnavailable, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: remove probe: %v", ErrUnavailable, err)
	}
	return nil
}

// isMountPoint reports whether path sits on a different device than its
// parent directory.
func isMountPoint(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	parent, err := os.Stat(filepath.Dir(filepath.Clean(path)))
	if err != nil {
		return false, err
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("no stat info for %s", path)
	}
	pst, ok := parent.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("no stat info for parent of %s", path)
	}
	return st.Dev != pst.Dev, nil
}
