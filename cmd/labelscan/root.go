package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/labelscan/go-labelscan/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "labelscan",
		Short:         "Label scan station: camera preview, capture and matrix decode",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "configuration file path")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newStatusCommand(&configFlag))
	rootCmd.AddCommand(newImagesCommand(&configFlag))
	rootCmd.AddCommand(newSendCommand(&configFlag))
	rootCmd.AddCommand(newCleanCommand(&configFlag))
	rootCmd.AddCommand(newCheckCommand(&configFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))

	return rootCmd
}

func loadConfig(flag *string) (config.Config, error) {
	path := config.DefaultPath()
	if flag != nil && *flag != "" {
		path = *flag
	}
	return config.Load(path)
}

// serverURL turns the listen address into something a client can dial.
func serverURL(bind string) string {
	host := bind
	if strings.HasPrefix(host, "0.0.0.0") || strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host[strings.Index(host, ":"):]
	}
	return host
}
