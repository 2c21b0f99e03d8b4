package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/labelscan/go-labelscan/internal/log"
)

// Sweep removes captured images older than maxAge from the local root and
// returns how many files were deleted. Only the local root is swept; the
// network share has its own retention policy.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	cutoff := m.clk.Now().Add(-maxAge)

	matches, err := filepath.Glob(filepath.Join(m.opts.LocalRoot, "*.jpg"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range matches {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				log.Warn("retention sweep could not remove file", "path", p, "err", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Info("retention sweep removed old captures", "count", removed, "max_age", maxAge)
	}
	return removed, nil
}
