package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-lead-radar/internal/app"
	"go-lead-radar/internal/config"
	"go-lead-radar/internal/jobs"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

// jobDeadline bounds a whole CLI invocation; per-run timeouts are shorter.
const jobDeadline = 30 * time.Minute

func setup(cmd *cobra.Command, configPath string) (context.Context, context.CancelFunc, *app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewServiceLogger("scraper", cfg.LogLevel)
	logger.WithField("businesses", len(cfg.Businesses)).Info("🔧 Config loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, jobDeadline)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		stop()
		return nil, nil, nil, err
	}
	return ctx, func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("⚠️ Shutdown error")
		}
		cancel()
		stop()
	}, a, nil
}

func printResults(cmd *cobra.Command, results ...jobs.Result) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, r := range results {
		_ = enc.Encode(r)
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run [source...]",
		Short: "Fetch, filter and store posts from sources",
		Long: `Fetch, filter and store posts for every active business.

With no arguments every source runs in parallel. Sources:
reddit, twitter, hackernews, tiktok, instagram.`,
		Example: `  # All sources
  scraper run

  # Only reddit, at most 20 candidates per business
  scraper run reddit --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if _, err := models.ParseSource(name); err != nil {
					return err
				}
			}

			ctx, done, a, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			defer done()

			if len(args) == 0 {
				printResults(cmd, a.Runner.RunAll(ctx, limit)...)
				return nil
			}
			for _, name := range args {
				res, err := a.Runner.Run(ctx, name, limit)
				if err != nil {
					return err
				}
				printResults(cmd, res)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max candidates per business (default from config)")
	return cmd
}

func newClassifyCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Score pending posts with the language model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, a, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			defer done()

			res, err := a.Runner.Run(ctx, models.JobClassifier, limit)
			if err != nil {
				return err
			}
			printResults(cmd, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max posts to classify (default classifier.batch_size)")
	return cmd
}

func newHealthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check every job's last heartbeat and alert on stale or failing ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, a, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			defer done()

			report, err := a.Checker.Check(ctx)
			if err != nil {
				// already logged and recorded as a failed health heartbeat
				fmt.Fprintf(cmd.ErrOrStderr(), "health check failed: %v\n", err)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
