// Package storage resolves a destination for every save, locate and list
// operation, preferring a network mount and falling back to a local
// directory when the mount is absent or misbehaving.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/log"
)

var (
	// ErrWriteFailed is returned when a save could not be completed on
	// any target.
	ErrWriteFailed = errors.New("storage: write failed")

	// ErrUnavailable marks a network-target failure that triggered the
	// local fallback.
	ErrUnavailable = errors.New("storage: network storage unavailable")

	// ErrNotFound is returned by Locate when the file exists on no target.
	ErrNotFound = errors.New("storage: file not found")
)

// DebugMarker tags decode-pipeline debug artifacts. Names containing it
// are never reported as real captures.
const DebugMarker = "_debug"

// Target is one storage destination.
type Target struct {
	Root    string `json:"root"`
	Network bool   `json:"network"`
}

// Health is the cached view of the network target.
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Available bool      `json:"available"`
	Failures  int       `json:"consecutive_failures"`
}

// Status is a point-in-time snapshot for operators.
type Status struct {
	NetworkEnabled bool   `json:"network_enabled"`
	NetworkRoot    string `json:"network_root"`
	LocalRoot      string `json:"local_root"`
	Health         Health `json:"health"`
	UsingFallback  bool   `json:"using_fallback"`
}

// Options configures a Manager.
type Options struct {
	NetworkEnabled bool
	NetworkRoot    string
	LocalRoot      string
	CheckInterval  time.Duration
	MaxFailures    int
	WriteWorkers   int
}

// Manager owns the storage health state for the process lifetime.
type Manager struct {
	opts Options
	clk  clock.Clock
	pool *Pool

	// probe verifies the network root is a usable, distinct mount.
	probe func(root string) error

	mu     sync.Mutex
	health Health
}

// NewManager creates a Manager and ensures the local root exists.
func NewManager(opts Options, clk clock.Clock) (*Manager, error) {
	if opts.MaxFailures < 1 {
		opts.MaxFailures = 3
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	if err := os.MkdirAll(opts.LocalRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}
	m := &Manager{
		opts:  opts,
		clk:   clk,
		pool:  NewPool(opts.WriteWorkers),
		probe: probeMount,
	}
	if opts.NetworkEnabled {
		m.checkNetwork()
	} else {
		log.Info("network storage disabled, local only", "root", opts.LocalRoot)
	}
	return m, nil
}

// SetProbe replaces the network probe, for tests.
func (m *Manager) SetProbe(probe func(root string) error) { m.probe = probe }

// Close drains the write pool.
func (m *Manager) Close() { m.pool.Close() }

// ResolveTarget picks the destination for the next operation. Demotion to
// local after repeated failures persists until Reset is called.
func (m *Manager) ResolveTarget() Target {
	local := Target{Root: m.opts.LocalRoot}
	if !m.opts.NetworkEnabled {
		return local
	}

	m.mu.Lock()
	failures := m.health.Failures
	m.mu.Unlock()
	if failures >= m.opts.MaxFailures {
		log.Warn("network storage demoted after repeated failures",
			"failures", failures, "max", m.opts.MaxFailures)
		return local
	}

	if m.checkNetwork() {
		return Target{Root: m.opts.NetworkRoot, Network: true}
	}
	return local
}

// checkNetwork runs the cached availability probe.
func (m *Manager) checkNetwork() bool {
	m.mu.Lock()
	now := m.clk.Now()
	if !m.health.LastCheck.IsZero() && now.Sub(m.health.LastCheck) < m.opts.CheckInterval {
		avail := m.health.Available
		m.mu.Unlock()
		return avail
	}
	m.health.LastCheck = now
	m.mu.Unlock()

	err := m.probe(m.opts.NetworkRoot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		log.Warn("network storage probe failed", "root", m.opts.NetworkRoot, "err", err)
		m.health.Available = false
		return false
	}
	m.health.Available = true
	m.health.Failures = 0
	return true
}

// Save resolves a target and invokes write with the full destination
// path. A write failure on the network target increments the failure
// counter and is retried once on the local target; a local failure is
// surfaced directly. The write runs on the worker pool.
func (m *Manager) Save(name string, write func(path string) error) (string, error) {
	target := m.ResolveTarget()
	path := filepath.Join(target.Root, name)

	err := m.pool.Do(func() error {
		if err := os.MkdirAll(target.Root, 0o755); err != nil {
			return err
		}
		return write(path)
	})
	if err == nil {
		m.mu.Lock()
		m.health.Failures = 0
		m.mu.Unlock()
		log.Info("file saved", "path", path, "network", target.Network)
		return path, nil
	}

	if !target.Network {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}

	// Network write failed: count it and fall back to local once.
	m.mu.Lock()
	m.health.Failures++
	m.health.Available = false
	failures := m.health.Failures
	m.mu.Unlock()
	log.Warn("network save failed, falling back to local",
		"name", name, "failures", failures, "err", err)

	localPath := filepath.Join(m.opts.LocalRoot, name)
	ferr := m.pool.Do(func() error {
		if err := os.MkdirAll(m.opts.LocalRoot, 0o755); err != nil {
			return err
		}
		return write(localPath)
	})
	if ferr != nil {
		return "", fmt.Errorf("%w: fallback after %v: %v", ErrWriteFailed, err, ferr)
	}

	// Fallback success: the capture is safe, but the network failure
	// stays counted so repeated incidents still demote to local-only.
	log.Info("file saved on local fallback", "path", localPath)
	return localPath, nil
}

// SaveBytes is a convenience wrapper writing a byte slice.
func (m *Manager) SaveBytes(name string, data []byte) (string, error) {
	return m.Save(name, func(path string) error {
		return os.WriteFile(path, data, 0o644)
	})
}

// OnNetwork reports whether a stored path lives under the network root.
func (m *Manager) OnNetwork(path string) bool {
	return m.opts.NetworkEnabled && filepath.Dir(path) == filepath.Clean(m.opts.NetworkRoot)
}

// Locate finds an existing file, checking the network target first when
// it is enabled and healthy, then the local target.
func (m *Manager) Locate(name string) (string, error) {
	if m.opts.NetworkEnabled && m.checkNetwork() {
		p := filepath.Join(m.opts.NetworkRoot, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p := filepath.Join(m.opts.LocalRoot, name)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Entry is one listed file.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Network bool      `json:"network"`
}

// List returns files matching pattern from both roots, deduplicated by
// name (most recently modified copy wins), sorted newest first and
// truncated to limit when limit > 0. Debug artifacts are filtered out.
func (m *Manager) List(pattern string, limit int) ([]Entry, error) {
	byName := make(map[string]Entry)

	collect := func(root string, network bool) {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			log.Warn("list glob failed", "root", root, "err", err)
			return
		}
		for _, p := range matches {
			name := filepath.Base(p)
			if strings.Contains(name, DebugMarker) {
				continue
			}
			fi, err := os.Stat(p)
			if err != nil {
				continue
			}
			e := Entry{Name: name, Path: p, ModTime: fi.ModTime(), Network: network}
			if prev, ok := byName[name]; !ok || e.ModTime.After(prev.ModTime) {
				byName[name] = e
			}
		}
	}

	if m.opts.NetworkEnabled && m.checkNetwork() {
		collect(m.opts.NetworkRoot, true)
	}
	collect(m.opts.LocalRoot, false)

	out := make([]Entry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Status returns the current storage state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	health := m.health
	m.mu.Unlock()
	return Status{
		NetworkEnabled: m.opts.NetworkEnabled,
		NetworkRoot:    m.opts.NetworkRoot,
		LocalRoot:      m.opts.LocalRoot,
		Health:         health,
		UsingFallback:  !m.opts.NetworkEnabled || !health.Available || health.Failures >= m.opts.MaxFailures,
	}
}

// Reset clears the failure counter and forces a fresh probe on the next
// resolution.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.health.Failures = 0
	m.health.LastCheck = time.Time{}
	m.mu.Unlock()
	log.Info("storage failure counter reset")
}
