package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/config"
	"github.com/labelscan/go-labelscan/internal/history"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/lighting"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

type checkResult struct {
	component string
	ok        bool
	detail    string
}

// newCheckCommand runs the hardware and storage preflight so operators
// can verify a station before a shift.
func newCheckCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Preflight the camera, storage, lamp board and history DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			log.Init("error") // keep preflight output clean

			results := runChecks(cfg)

			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				state := "ok"
				if !r.ok {
					state = "FAIL"
					failed++
				}
				rows = append(rows, []string{r.component, state, r.detail})
			}
			fmt.Println(renderTable([]string{"Component", "State", "Detail"}, rows))

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func runChecks(cfg config.Config) []checkResult {
	var results []checkResult
	add := func(component string, err error, okDetail string) {
		if err != nil {
			results = append(results, checkResult{component, false, err.Error()})
			return
		}
		results = append(results, checkResult{component, true, okDetail})
	}

	add("camera", checkCamera(cfg), cfg.Camera.Device)
	add("local storage", checkLocalRoot(cfg.Storage.LocalRoot), cfg.Storage.LocalRoot)

	if cfg.Storage.NetworkEnabled {
		add("network storage", checkNetworkRoot(cfg), cfg.Storage.NetworkRoot)
	} else {
		results = append(results, checkResult{"network storage", true, "disabled"})
	}

	if cfg.Lighting.Enabled {
		add("lamp board", checkLamp(cfg), "connected")
	} else {
		results = append(results, checkResult{"lamp board", true, "disabled"})
	}

	add("history db", checkHistory(cfg.History.Path), cfg.History.Path)
	return results
}

func checkCamera(cfg config.Config) error {
	device, err := camera.OpenDevice(cfg.Camera.Device, camera.StreamConfig{
		Width:     cfg.Camera.StreamWidth,
		Height:    cfg.Camera.StreamHeight,
		Framerate: cfg.Camera.Framerate,
	})
	if err != nil {
		return err
	}
	return device.Close()
}

func checkLocalRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(root, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func checkNetworkRoot(cfg config.Config) error {
	store, err := storage.NewManager(storage.Options{
		NetworkEnabled: true,
		NetworkRoot:    cfg.Storage.NetworkRoot,
		LocalRoot:      cfg.Storage.LocalRoot,
		CheckInterval:  cfg.Storage.CheckInterval(),
		MaxFailures:    cfg.Storage.MaxFailures,
		WriteWorkers:   1,
	}, clock.Real{})
	if err != nil {
		return err
	}
	defer store.Close()

	if status := store.Status(); !status.Health.Available {
		return fmt.Errorf("network root %s failed its probe", cfg.Storage.NetworkRoot)
	}
	return nil
}

func checkLamp(cfg config.Config) error {
	lamp, err := lighting.Open(cfg.Lighting.Ports, cfg.Lighting.BaudRate)
	if err != nil {
		return err
	}
	return lamp.Close()
}

func checkHistory(path string) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	return store.Close()
}
