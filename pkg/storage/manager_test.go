package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labelscan/go-labelscan/internal/clock"
)

func newTestManager(t *testing.T, networkEnabled bool) (*Manager, string, string, *clock.Fake) {
	t.Helper()
	netRoot := filepath.Join(t.TempDir(), "net")
	localRoot := filepath.Join(t.TempDir(), "local")
	if err := os.MkdirAll(netRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	fake := clock.NewFake()
	m, err := NewManager(Options{
		NetworkEnabled: networkEnabled,
		NetworkRoot:    netRoot,
		LocalRoot:      localRoot,
		CheckInterval:  time.Minute,
		MaxFailures:    3,
		WriteWorkers:   1,
	}, fake)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Close)
	// Temp dirs are not mount points, so tests drive the probe directly.
	m.SetProbe(func(string) error { return nil })
	return m, netRoot, localRoot, fake
}

func TestResolveTargetLocalWhenNetworkDisabled(t *testing.T) {
	m, _, localRoot, _ := newTestManager(t, false)
	target := m.ResolveTarget()
	if target.Network {
		t.Error("target.Network = true, want local")
	}
	if target.Root != localRoot {
		t.Errorf("target.Root = %q, want %q", target.Root, localRoot)
	}
}

func TestResolveTargetPrefersHealthyNetwork(t *testing.T) {
	m, netRoot, _, _ := newTestManager(t, true)
	m.Reset() // force a fresh probe through the test probe
	target := m.ResolveTarget()
	if !target.Network {
		t.Fatal("target.Network = false, want network")
	}
	if target.Root != netRoot {
		t.Errorf("target.Root = %q, want %q", target.Root, netRoot)
	}
}

func TestResolveTargetDemotesAfterMaxFailures(t *testing.T) {
	m, _, _, _ := newTestManager(t, true)
	m.Reset()

	// Probe reports healthy, but the failure counter has hit the max:
	// resolution must still yield local until an explicit reset.
	m.mu.Lock()
	m.health.Failures = 3
	m.mu.Unlock()

	if target := m.ResolveTarget(); target.Network {
		t.Error("demoted manager resolved network target")
	}

	m.Reset()
	if target := m.ResolveTarget(); !target.Network {
		t.Error("after Reset, healthy network target should be resolved again")
	}
}

func TestHealthCheckIsCached(t *testing.T) {
	m, _, _, fake := newTestManager(t, true)
	m.Reset()

	probes := 0
	m.SetProbe(func(string) error {
		probes++
		return nil
	})

	m.ResolveTarget()
	m.ResolveTarget()
	if probes != 1 {
		t.Fatalf("probe ran %d times within cache window, want 1", probes)
	}

	fake.Advance(2 * time.Minute)
	m.ResolveTarget()
	if probes != 2 {
		t.Errorf("probe ran %d times after cache expiry, want 2", probes)
	}
}

func TestSaveSuccessResetsFailures(t *testing.T) {
	m, _, _, _ := newTestManager(t, false)

	m.mu.Lock()
	m.health.Failures = 2
	m.mu.Unlock()

	path, err := m.SaveBytes("a.jpg", []byte("data"))
	if err != nil {
		t.Fatalf("SaveBytes() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	m.mu.Lock()
	failures := m.health.Failures
	m.mu.Unlock()
	if failures != 0 {
		t.Errorf("failures after successful local write = %d, want 0", failures)
	}
}

func TestSaveFallsBackToLocalOnce(t *testing.T) {
	m, netRoot, localRoot, _ := newTestManager(t, true)
	m.Reset()

	calls := 0
	path, err := m.Save("b.jpg", func(p string) error {
		calls++
		if filepath.Dir(p) == netRoot {
			return errors.New("mount gone")
		}
		return os.WriteFile(p, []byte("data"), 0o644)
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("writer called %d times, want 2 (network then local)", calls)
	}
	if filepath.Dir(path) != localRoot {
		t.Errorf("saved path %q, want under local root %q", path, localRoot)
	}

	m.mu.Lock()
	failures := m.health.Failures
	m.mu.Unlock()
	if failures != 1 {
		t.Errorf("failures after network write failure = %d, want 1", failures)
	}
}

func TestSaveLocalFailureSurfacesDirectly(t *testing.T) {
	m, _, _, _ := newTestManager(t, false)

	calls := 0
	_, err := m.Save("c.jpg", func(string) error {
		calls++
		return errors.New("disk full")
	})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Save() error = %v, want ErrWriteFailed", err)
	}
	if calls != 1 {
		t.Errorf("writer called %d times, want 1 (no fallback from local)", calls)
	}
}

func TestLocateChecksNetworkThenLocal(t *testing.T) {
	m, netRoot, localRoot, _ := newTestManager(t, true)
	m.Reset()

	if err := os.WriteFile(filepath.Join(netRoot, "n.jpg"), []byte("n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(localRoot, "l.jpg"), []byte("l"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := m.Locate("n.jpg")
	if err != nil || filepath.Dir(p) != netRoot {
		t.Errorf("Locate(n.jpg) = %q, %v, want network copy", p, err)
	}
	p, err = m.Locate("l.jpg")
	if err != nil || filepath.Dir(p) != localRoot {
		t.Errorf("Locate(l.jpg) = %q, %v, want local copy", p, err)
	}
	if _, err := m.Locate("missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Locate(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListDedupsAndFiltersDebug(t *testing.T) {
	m, netRoot, localRoot, _ := newTestManager(t, true)
	m.Reset()

	old := time.Now().Add(-time.Hour)
	write := func(dir, name string, mtime time.Time) {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	write(netRoot, "dup.jpg", old)
	write(localRoot, "dup.jpg", time.Now()) // newer copy wins
	write(localRoot, "solo.jpg", old)
	write(localRoot, "shot_label_debug.jpg", time.Now())

	entries, err := m.List("*.jpg", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Name != "dup.jpg" || entries[0].Network {
		t.Errorf("entries[0] = %+v, want newer local dup.jpg", entries[0])
	}
	if entries[1].Name != "solo.jpg" {
		t.Errorf("entries[1] = %+v, want solo.jpg", entries[1])
	}

	limited, err := m.List("*.jpg", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("List(limit=1) returned %d entries, want 1", len(limited))
	}
}

func TestSweepRemovesOldLocalFiles(t *testing.T) {
	m, _, localRoot, fake := newTestManager(t, false)

	oldFile := filepath.Join(localRoot, "old.jpg")
	newFile := filepath.Join(localRoot, "new.jpg")
	if err := os.WriteFile(oldFile, []byte("o"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newFile, []byte("n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := fake.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(oldFile, stale, stale); err != nil {
		t.Fatal(err)
	}
	fresh := fake.Now().Add(-time.Hour)
	if err := os.Chtimes(newFile, fresh, fresh); err != nil {
		t.Fatal(err)
	}

	removed, err := m.Sweep(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("old file still present after sweep")
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Error("fresh file removed by sweep")
	}
}
