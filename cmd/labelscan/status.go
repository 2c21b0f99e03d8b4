package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/labelscan/go-labelscan/internal/history"
	"github.com/labelscan/go-labelscan/internal/httpc"
	"github.com/labelscan/go-labelscan/pkg/station"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running station's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := apiBase(configFlag, server)
			if err != nil {
				return err
			}

			var status struct {
				CaptureState string           `json:"capture_state"`
				Settings     station.Settings `json:"settings"`
				Storage      storage.Status   `json:"storage"`
				Clients      int              `json:"clients"`
			}
			if err := getJSON(base+"/api/status", &status); err != nil {
				return err
			}

			target := "local"
			if !status.Storage.UsingFallback && status.Storage.Health.Available {
				target = "network"
			}
			rows := [][]string{
				{"capture state", status.CaptureState},
				{"scan mode", string(status.Settings.ScanMode)},
				{"detection mode", string(status.Settings.DetectionMode)},
				{"quality mode", status.Settings.QualityMode},
				{"storage target", target},
				{"storage failures", strconv.Itoa(status.Storage.Health.Failures)},
				{"connected consoles", strconv.Itoa(status.Clients)},
			}
			fmt.Println(renderTable([]string{"Field", "Value"}, rows))

			var scans []history.Scan
			if err := getJSON(base+"/api/scans?limit=10", &scans); err != nil {
				return err
			}
			if len(scans) == 0 {
				return nil
			}
			scanRows := make([][]string, 0, len(scans))
			for _, s := range scans {
				scanRows = append(scanRows, []string{
					s.Timestamp.Local().Format("2006-01-02 15:04:05"),
					s.Filename,
					s.Outcome,
					s.Payload,
					s.Target,
				})
			}
			fmt.Println(renderTable([]string{"Time", "File", "Outcome", "Payload", "Target"}, scanRows))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "station address (host:port)")
	return cmd
}

func newImagesCommand(configFlag *string) *cobra.Command {
	var server string
	var limit int

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List stored captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := apiBase(configFlag, server)
			if err != nil {
				return err
			}

			var entries []storage.Entry
			if err := getJSON(fmt.Sprintf("%s/api/images?limit=%d", base, limit), &entries); err != nil {
				return err
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				where := "local"
				if e.Network {
					where = "network"
				}
				rows = append(rows, []string{
					e.Name,
					e.ModTime.Format(time.RFC3339),
					where,
				})
			}
			fmt.Println(renderTable([]string{"Name", "Modified", "Target"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "station address (host:port)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to list")
	return cmd
}

// apiBase resolves the station address from the flag or the config file.
func apiBase(configFlag *string, server string) (string, error) {
	if server == "" {
		cfg, err := loadConfig(configFlag)
		if err != nil {
			return "", err
		}
		server = serverURL(cfg.Server.Bind)
	}
	return "http://" + server, nil
}

func getJSON(url string, v any) error {
	resp, err := httpc.Get(url)
	if err != nil {
		return fmt.Errorf("is the station running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("station returned %s for %s", resp.Status, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
