package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/config"
	"github.com/labelscan/go-labelscan/internal/history"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/capture"
	"github.com/labelscan/go-labelscan/pkg/decode"
	"github.com/labelscan/go-labelscan/pkg/hub"
	"github.com/labelscan/go-labelscan/pkg/lighting"
	"github.com/labelscan/go-labelscan/pkg/station"
	"github.com/labelscan/go-labelscan/pkg/storage"
	"github.com/labelscan/go-labelscan/pkg/web"
)

func newServeCommand(configFlag *string) *cobra.Command {
	var staticDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan station",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			return runServe(cfg, staticDir)
		},
	}
	cmd.Flags().StringVar(&staticDir, "static", "", "directory with operator console assets")
	return cmd
}

func runServe(cfg config.Config, staticDir string) error {
	log.Init(cfg.Server.LogLevel)

	// One station per host: the camera device cannot be shared.
	lock := flock.New(filepath.Join(os.TempDir(), "labelscan.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return errors.New("another labelscan instance is already running")
	}
	defer lock.Unlock()

	device, err := camera.OpenDevice(cfg.Camera.Device, camera.StreamConfig{
		Width:     cfg.Camera.StreamWidth,
		Height:    cfg.Camera.StreamHeight,
		Framerate: cfg.Camera.Framerate,
	})
	if err != nil {
		return err
	}
	defer device.Close()
	if err := device.Start(); err != nil {
		return err
	}

	buf := camera.NewRingBuffer()
	defer buf.Drain()
	loop := camera.NewAcquisitionLoop(device, buf, cfg.Camera.Framerate)
	loop.Start()
	defer loop.Stop(camera.DefaultJoinTimeout)

	renderer := camera.NewRenderer(buf,
		cfg.Camera.StreamWidth, cfg.Camera.StreamHeight,
		cfg.Camera.JPEGQuality, cfg.Camera.ZoomFactor)

	store, err := storage.NewManager(storage.Options{
		NetworkEnabled: cfg.Storage.NetworkEnabled,
		NetworkRoot:    cfg.Storage.NetworkRoot,
		LocalRoot:      cfg.Storage.LocalRoot,
		CheckInterval:  cfg.Storage.CheckInterval(),
		MaxFailures:    cfg.Storage.MaxFailures,
		WriteWorkers:   cfg.Storage.WriteWorkers,
	}, clock.Real{})
	if err != nil {
		return err
	}
	defer store.Close()

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	var lamp *lighting.Controller
	if cfg.Lighting.Enabled {
		lamp, err = lighting.Open(cfg.Lighting.Ports, cfg.Lighting.BaudRate)
		if err != nil {
			// The station scans fine under ambient light.
			log.Warn("lamp board unavailable", "err", err)
		} else {
			defer lamp.Close()
		}
	}

	pipeline := decode.New(decode.NewDataMatrixDecoder(), decode.Options{
		WhiteThreshold: cfg.Pipeline.WhiteThreshold,
		MinContourArea: cfg.Pipeline.MinContourArea,
		LabelMargin:    cfg.Pipeline.LabelMargin,
		DebugArtifacts: cfg.Pipeline.DebugArtifacts,
	})
	pipeline.SetArtifactSaver(func(name string, data []byte) {
		if _, err := store.SaveBytes(name, data); err != nil {
			log.Warn("could not save debug artifact", "name", name, "err", err)
		}
	})

	orch := capture.New(device, loop, store, clock.Real{})
	events := hub.New("events")

	stationOpts := station.Options{
		Capture:      orch,
		Focus:        device,
		Zoom:         renderer,
		Decoder:      pipeline,
		History:      hist,
		Settings:     station.NewSettingsStore(),
		FocusTimeout: cfg.Camera.RefocusTimeout(),
		Reporter: func(rep station.Report) {
			if err := events.BroadcastEvent("report", rep); err != nil {
				log.Warn("could not broadcast report", "err", err)
			}
		},
	}
	if lamp != nil {
		stationOpts.Lamp = lamp
	}
	controller := station.NewController(stationOpts)

	server := web.NewServer(web.Options{
		Bind:         cfg.Server.Bind,
		Controller:   controller,
		Renderer:     renderer,
		Store:        store,
		History:      hist,
		Events:       events,
		CaptureState: func() string { return orch.State().String() },
		StaticDir:    staticDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Let the lens settle once at startup; captures latch this position.
	go device.Focus(cfg.Camera.AutofocusTimeout())

	go sweepRetention(ctx, store, cfg.Storage.RetentionDays)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return server.Shutdown()
	}
}

// sweepRetention prunes old local captures once a day.
func sweepRetention(ctx context.Context, store *storage.Manager, days int) {
	if days <= 0 {
		return
	}
	maxAge := time.Duration(days) * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := store.Sweep(maxAge); err != nil {
			log.Warn("retention sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
