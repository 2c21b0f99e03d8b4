// Package config loads and validates the labelscan station configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP/WebSocket listener configuration.
type Server struct {
	Bind     string `toml:"bind"`
	LogLevel string `toml:"log_level"`
}

// Camera contains capture device configuration.
type Camera struct {
	Device        string  `toml:"device"`
	StreamWidth   int     `toml:"stream_width"`
	StreamHeight  int     `toml:"stream_height"`
	StillWidth    int     `toml:"still_width"`
	StillHeight   int     `toml:"still_height"`
	Framerate     int     `toml:"framerate"`
	JPEGQuality   int     `toml:"jpeg_quality"`
	ZoomFactor    float64 `toml:"zoom_factor"`
	AutofocusSecs int     `toml:"autofocus_timeout_seconds"`
	RefocusSecs   int     `toml:"refocus_timeout_seconds"`
}

// Pipeline contains label segmentation and decode tuning.
type Pipeline struct {
	WhiteThreshold int  `toml:"white_threshold"`
	MinContourArea int  `toml:"min_contour_area"`
	LabelMargin    int  `toml:"label_margin"`
	DebugArtifacts bool `toml:"debug_artifacts"`
}

// Storage contains the network/local destination configuration.
type Storage struct {
	NetworkEnabled bool   `toml:"network_enabled"`
	NetworkRoot    string `toml:"network_root"`
	LocalRoot      string `toml:"local_root"`
	CheckSeconds   int    `toml:"check_interval_seconds"`
	MaxFailures    int    `toml:"max_failures"`
	RetentionDays  int    `toml:"retention_days"`
	WriteWorkers   int    `toml:"write_workers"`
}

// Lighting contains the serial lighting controller configuration.
type Lighting struct {
	Enabled  bool     `toml:"enabled"`
	Ports    []string `toml:"ports"`
	BaudRate int      `toml:"baud_rate"`
}

// History contains the scan history store configuration.
type History struct {
	Path string `toml:"path"`
}

// Config is the root configuration document.
type Config struct {
	Server   Server   `toml:"server"`
	Camera   Camera   `toml:"camera"`
	Pipeline Pipeline `toml:"pipeline"`
	Storage  Storage  `toml:"storage"`
	Lighting Lighting `toml:"lighting"`
	History  History  `toml:"history"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Bind:     "0.0.0.0:8000",
			LogLevel: "info",
		},
		Camera: Camera{
			Device:        "/dev/video0",
			StreamWidth:   1280,
			StreamHeight:  720,
			StillWidth:    4624,
			StillHeight:   3472,
			Framerate:     30,
			JPEGQuality:   85,
			ZoomFactor:    2.0,
			AutofocusSecs: 8,
			RefocusSecs:   5,
		},
		Pipeline: Pipeline{
			WhiteThreshold: 220,
			MinContourArea: 2000,
			LabelMargin:    10,
			DebugArtifacts: false,
		},
		Storage: Storage{
			NetworkEnabled: true,
			NetworkRoot:    "/mnt/labelshare",
			LocalRoot:      "images",
			CheckSeconds:   60,
			MaxFailures:    3,
			RetentionDays:  30,
			WriteWorkers:   2,
		},
		Lighting: Lighting{
			Enabled:  true,
			Ports:    []string{"/dev/ttyUSB0", "/dev/ttyUSB1"},
			BaudRate: 9600,
		},
		History: History{
			Path: "labelscan.db",
		},
	}
}

// DefaultPath returns the config file location, honoring LABELSCAN_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("LABELSCAN_CONFIG"); p != "" {
		return p
	}
	return "labelscan.toml"
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if problems := cfg.Validate(); len(problems) > 0 {
		return cfg, fmt.Errorf("invalid config: %v", problems)
	}
	return cfg, nil
}

// applyEnv layers environment variable overrides over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LABELSCAN_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("LABELSCAN_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("NETWORK_STORAGE_ENABLED"); v != "" {
		cfg.Storage.NetworkEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MOUNT_POINT"); v != "" {
		cfg.Storage.NetworkRoot = v
	}
	if v := os.Getenv("LOCAL_FALLBACK_DIR"); v != "" {
		cfg.Storage.LocalRoot = v
	}
	if v := os.Getenv("LABELSCAN_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("LABELSCAN_HISTORY"); v != "" {
		cfg.History.Path = v
	}
	if v, err := strconv.Atoi(os.Getenv("LABELSCAN_MAX_FAILURES")); err == nil && v > 0 {
		cfg.Storage.MaxFailures = v
	}
}

// Validate checks the config values are within usable ranges.
// Returns a list of problems, or nil if valid.
func (c *Config) Validate() []string {
	var problems []string

	if c.Camera.StreamWidth <= 0 || c.Camera.StreamHeight <= 0 {
		problems = append(problems, "camera stream resolution must be positive")
	}
	if c.Camera.StillWidth <= 0 || c.Camera.StillHeight <= 0 {
		problems = append(problems, "camera still resolution must be positive")
	}
	if c.Camera.Framerate < 1 || c.Camera.Framerate > 120 {
		problems = append(problems, "framerate must be between 1 and 120")
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		problems = append(problems, "jpeg_quality must be between 1 and 100")
	}
	if c.Camera.ZoomFactor < 1.0 || c.Camera.ZoomFactor > 8.0 {
		problems = append(problems, "zoom_factor must be between 1.0 and 8.0")
	}
	if c.Pipeline.WhiteThreshold < 0 || c.Pipeline.WhiteThreshold > 255 {
		problems = append(problems, "white_threshold must be between 0 and 255")
	}
	if c.Pipeline.MinContourArea <= 0 {
		problems = append(problems, "min_contour_area must be positive")
	}
	if c.Storage.LocalRoot == "" {
		problems = append(problems, "storage local_root is required")
	}
	if c.Storage.NetworkEnabled && c.Storage.NetworkRoot == "" {
		problems = append(problems, "storage network_root is required when network storage is enabled")
	}
	if c.Storage.MaxFailures < 1 {
		problems = append(problems, "storage max_failures must be at least 1")
	}
	if c.Storage.WriteWorkers < 1 {
		problems = append(problems, "storage write_workers must be at least 1")
	}

	return problems
}

// AutofocusTimeout returns the initial autofocus deadline as a duration.
func (c *Camera) AutofocusTimeout() time.Duration {
	return time.Duration(c.AutofocusSecs) * time.Second
}

// RefocusTimeout returns the on-demand refocus deadline as a duration.
func (c *Camera) RefocusTimeout() time.Duration {
	return time.Duration(c.RefocusSecs) * time.Second
}

// CheckInterval returns the storage health check cache window.
func (c *Storage) CheckInterval() time.Duration {
	return time.Duration(c.CheckSeconds) * time.Second
}

// WriteSample writes the embedded sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
