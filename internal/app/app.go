// Package app assembles the pipeline from config. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-lead-radar/internal/ai"
	"go-lead-radar/internal/browser"
	"go-lead-radar/internal/classifier"
	"go-lead-radar/internal/config"
	"go-lead-radar/internal/coordinator"
	"go-lead-radar/internal/database"
	"go-lead-radar/internal/dedup"
	"go-lead-radar/internal/filter"
	"go-lead-radar/internal/health"
	"go-lead-radar/internal/jobs"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/reporter"
	"go-lead-radar/internal/scraper"
	"go-lead-radar/internal/scraper/hackernews"
	"go-lead-radar/internal/scraper/instagram"
	"go-lead-radar/internal/scraper/reddit"
	"go-lead-radar/internal/scraper/tiktok"
	"go-lead-radar/internal/scraper/twitter"
)

const (
	fetchBaseDelay = 2 * time.Second
	fetchMaxDelay  = 30 * time.Second
)

type App struct {
	Config   *config.Config
	Store    database.Store
	Runner   *jobs.Runner
	Checker  *health.Checker
	Metrics  *health.Metrics
	Registry *prometheus.Registry
	Coord    *coordinator.Coordinator
	Stage    *classifier.Stage
	Reporter *reporter.TelegramReporter
	closers  []func() error
	logger   logging.Logger
}

// New wires storage, adapters, the classifier and the health job.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Store = repo
		a.closers = append(a.closers, repo.Close)
		logger.Info("🗄️ Connected to PostgreSQL")
	} else {
		a.Store = database.NewMemoryStore(cfg.SeedBusinesses())
		logger.Warn("⚠️ DATABASE_URL not set, using in-memory store seeded from config")
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = health.NewMetrics(a.Registry)
	recorder := health.NewRecorder(a.Store, a.Metrics, logger)

	if cfg.TelegramToken != "" {
		rep, err := reporter.NewTelegramReporter(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			// alerts are optional; the pipeline runs without them
			logger.WithError(err).Warn("⚠️ Telegram disabled")
		} else {
			a.Reporter = rep
			logger.Info("🤖 Telegram reporter initialized")
		}
	}

	policy, err := filter.ParsePolicy(cfg.Filter.Mode)
	if err != nil {
		return nil, err
	}
	a.Coord = coordinator.New(
		a.Store,
		filter.NewMatcher(policy),
		dedup.NewDeduplicator(a.Store, cfg.Runner.DedupTTL),
		recorder,
		coordinator.Config{
			RunTimeout:   cfg.Runner.RunTimeout,
			Workers:      cfg.Runner.Workers,
			DefaultLimit: cfg.Runner.DefaultLimit,
			MaxAge:       cfg.Filter.MaxAge,
		},
		logger,
	)

	client := ai.NewOpenAIClient(cfg.Classifier.APIURL, cfg.Classifier.APIKey, cfg.Classifier.Model,
		&http.Client{Timeout: cfg.Classifier.CallTimeout + 5*time.Second})
	var alerter classifier.Alerter
	if a.Reporter != nil {
		alerter = a.Reporter
	}
	a.Stage = classifier.NewStage(client, a.Store, recorder, alerter, classifier.Config{
		BatchSize:      cfg.Classifier.BatchSize,
		Workers:        cfg.Classifier.Workers,
		MaxRetries:     cfg.Classifier.MaxRetries,
		BaseDelay:      cfg.Classifier.BaseDelay,
		MaxDelay:       cfg.Classifier.MaxDelay,
		CallTimeout:    cfg.Classifier.CallTimeout,
		RunTimeout:     cfg.Classifier.RunTimeout,
		AlertThreshold: cfg.Classifier.AlertThreshold,
	}, logger)

	var sender health.ReportSender
	if a.Reporter != nil {
		sender = a.Reporter
	}
	a.Checker = health.NewChecker(a.Store, recorder, sender, cfg.Health.StaleAfter, logger)

	adapters := a.buildAdapters(logger)
	a.Runner = jobs.NewRunner(a.Coord, adapters, a.Stage, a.Checker, logger)
	for _, src := range models.AllSources() {
		if limit := cfg.Sources.For(src).Limit; limit > 0 {
			a.Runner.SetLimit(src, limit)
		}
	}
	return a, nil
}

func (a *App) buildAdapters(logger logging.Logger) []scraper.Adapter {
	cfg := a.Config
	httpClient := &http.Client{}

	fetcher := func(src models.Source) *scraper.Fetcher {
		sc := cfg.Sources.For(src)
		return scraper.NewFetcher(src, scraper.FetcherConfig{
			RatePerSecond: sc.RatePerSecond,
			Timeout:       sc.Timeout,
			MaxRetries:    sc.MaxRetries,
			BaseDelay:     fetchBaseDelay,
			MaxDelay:      fetchMaxDelay,
		}, httpClient, logger)
	}

	build := map[models.Source]func() scraper.Adapter{
		models.SourceReddit: func() scraper.Adapter {
			return reddit.NewRedditScraper(cfg.Sources.Reddit.BaseURL, fetcher(models.SourceReddit), logger)
		},
		models.SourceTwitter: func() scraper.Adapter {
			return twitter.NewTwitterScraper(cfg.Sources.Twitter.BaseURL, cfg.Sources.Twitter.Token, fetcher(models.SourceTwitter), logger)
		},
		models.SourceHackerNews: func() scraper.Adapter {
			return hackernews.NewHackerNewsScraper(cfg.Sources.HackerNews.BaseURL, fetcher(models.SourceHackerNews), logger)
		},
		models.SourceTikTok: func() scraper.Adapter {
			return tiktok.NewTikTokScraper(cfg.Sources.TikTok.BaseURL, cfg.Sources.TikTok.Token, fetcher(models.SourceTikTok), logger)
		},
		models.SourceInstagram: func() scraper.Adapter {
			headless := cfg.Browser.Headless == nil || *cfg.Browser.Headless
			pw := browser.NewPlaywright(browser.Options{Headless: headless}, logger)
			a.closers = append(a.closers, pw.Close)
			return instagram.NewInstagramScraper(instagram.Config{
				Enabled:       cfg.Browser.Enabled,
				BaseURL:       cfg.Sources.Instagram.BaseURL,
				CookiesFile:   filepath.Join(cfg.Browser.CookiesPath, "cookies-instagram.json"),
				RatePerSecond: cfg.Sources.Instagram.RatePerSecond,
				Timeout:       cfg.Sources.Instagram.Timeout,
			}, pw, browser.NewScreenshotDebugger(cfg.Browser.ScreenshotDir, logger), logger)
		},
	}

	adapters := make([]scraper.Adapter, 0, len(build))
	for _, src := range models.AllSources() {
		if !cfg.Sources.For(src).IsEnabled() {
			adapters = append(adapters, scraper.Disabled(src))
			continue
		}
		adapters = append(adapters, build[src]())
	}
	return adapters
}

// Close releases the database handle and the browser.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close: %w", err)
		}
	}
	return firstErr
}
