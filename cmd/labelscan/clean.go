package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/labelscan/go-labelscan/internal/clock"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

func newCleanCommand(configFlag *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete local captures past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			log.Init(cfg.Server.LogLevel)

			if days <= 0 {
				days = cfg.Storage.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("retention is disabled; pass --days to sweep anyway")
			}

			// Local only: the network share has its own retention policy.
			store, err := storage.NewManager(storage.Options{
				LocalRoot:    cfg.Storage.LocalRoot,
				WriteWorkers: 1,
			}, clock.Real{})
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Sweep(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d capture(s) older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default from config)")
	return cmd
}
