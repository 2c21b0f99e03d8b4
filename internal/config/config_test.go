package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Camera.StreamWidth != 1280 {
		t.Errorf("stream_width = %d, want default 1280", cfg.Camera.StreamWidth)
	}
	if cfg.Storage.MaxFailures != 3 {
		t.Errorf("max_failures = %d, want default 3", cfg.Storage.MaxFailures)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelscan.toml")
	body := `
[camera]
jpeg_quality = 70

[storage]
network_enabled = false
local_root = "captures"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Camera.JPEGQuality != 70 {
		t.Errorf("jpeg_quality = %d, want 70", cfg.Camera.JPEGQuality)
	}
	if cfg.Storage.NetworkEnabled {
		t.Error("network_enabled = true, want false")
	}
	if cfg.Storage.LocalRoot != "captures" {
		t.Errorf("local_root = %q, want captures", cfg.Storage.LocalRoot)
	}
	// Untouched sections keep defaults.
	if cfg.Camera.Framerate != 30 {
		t.Errorf("framerate = %d, want 30", cfg.Camera.Framerate)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MOUNT_POINT", "/mnt/other")
	t.Setenv("NETWORK_STORAGE_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.NetworkRoot != "/mnt/other" {
		t.Errorf("network_root = %q, want /mnt/other", cfg.Storage.NetworkRoot)
	}
	if cfg.Storage.NetworkEnabled {
		t.Error("network_enabled = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   int // number of problems
	}{
		{"defaults are valid", func(c *Config) {}, 0},
		{"bad quality", func(c *Config) { c.Camera.JPEGQuality = 0 }, 1},
		{"bad threshold", func(c *Config) { c.Pipeline.WhiteThreshold = 300 }, 1},
		{"missing local root", func(c *Config) { c.Storage.LocalRoot = "" }, 1},
		{"network root required", func(c *Config) { c.Storage.NetworkRoot = "" }, 1},
		{"network root optional when disabled", func(c *Config) {
			c.Storage.NetworkEnabled = false
			c.Storage.NetworkRoot = ""
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			problems := cfg.Validate()
			if len(problems) != tt.want {
				t.Errorf("Validate() = %v, want %d problems", problems, tt.want)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelscan.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Error("WriteSample() on existing file succeeded, want error")
	}
}
