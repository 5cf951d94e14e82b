package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "scraper",
		Short: "Collect social posts for tracked businesses and classify them",
		Long: `Run one pipeline job and exit.

Failures inside a job (a broken source, a model outage) are recorded as
heartbeats and do not change the exit code. The command only exits non-zero
when it cannot start: bad config, unreachable database.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default $CONFIG_PATH or configs/config.yaml)")

	root.AddCommand(
		newRunCmd(&configPath),
		newClassifyCmd(&configPath),
		newHealthCmd(&configPath),
	)
	return root
}
