// Load envs from .env
// Load YAML config
// Apply env overrides and defaults
// Validate config

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go-lead-radar/internal/models"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`

	TelegramToken  string `yaml:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`

	// Businesses seed the in-memory store when no database is configured.
	Businesses []BusinessConfig `yaml:"businesses"`

	Sources    SourcesConfig    `yaml:"sources"`
	Filter     FilterConfig     `yaml:"filter"`
	Runner     RunnerConfig     `yaml:"runner"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Health     HealthConfig     `yaml:"health"`
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`

	// Schedule maps a job name to its trigger interval for the in-process scheduler.
	Schedule map[string]time.Duration `yaml:"schedule"`
}

type BusinessConfig struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Domain      string   `yaml:"domain"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Disabled    bool     `yaml:"disabled"`
}

type SourceConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	Limit         int           `yaml:"limit"`
	Token         string        `yaml:"token"`
}

// IsEnabled reports whether the source is switched on (default true).
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type SourcesConfig struct {
	Reddit     SourceConfig `yaml:"reddit"`
	Twitter    SourceConfig `yaml:"twitter"`
	HackerNews SourceConfig `yaml:"hackernews"`
	TikTok     SourceConfig `yaml:"tiktok"`
	Instagram  SourceConfig `yaml:"instagram"`
}

// For returns the config block of a source.
func (s SourcesConfig) For(src models.Source) SourceConfig {
	switch src {
	case models.SourceReddit:
		return s.Reddit
	case models.SourceTwitter:
		return s.Twitter
	case models.SourceHackerNews:
		return s.HackerNews
	case models.SourceTikTok:
		return s.TikTok
	case models.SourceInstagram:
		return s.Instagram
	}
	return SourceConfig{}
}

type FilterConfig struct {
	// Mode is "all" (every word of a keyword must appear) or "any".
	Mode string `yaml:"mode"`
	// MaxAge drops candidates posted longer ago than this; 0 keeps everything.
	MaxAge time.Duration `yaml:"max_age"`
}

type RunnerConfig struct {
	RunTimeout   time.Duration `yaml:"run_timeout"`
	Workers      int           `yaml:"workers"`
	DefaultLimit int           `yaml:"default_limit"`
	DedupTTL     time.Duration `yaml:"dedup_ttl"`
}

type ClassifierConfig struct {
	APIKey         string        `yaml:"api_key" env:"OPENROUTER_API_KEY"`
	APIURL         string        `yaml:"api_url"`
	Model          string        `yaml:"model"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	AlertThreshold int           `yaml:"alert_threshold"`
}

type HealthConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
}

type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Headless    *bool  `yaml:"headless"`
	CookiesPath string `yaml:"cookies_path"`
	// ScreenshotDir receives debug captures when a page is blocked.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// Load reads .env, then the YAML file at path (missing file is not an error),
// then environment overrides, then defaults, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Classifier.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Classifier.Model, "CLASSIFIER_MODEL")
	setString(&c.Sources.Twitter.Token, "TWITTER_BEARER_TOKEN")
	setString(&c.Sources.TikTok.Token, "APIFY_API_TOKEN")
	setString(&c.Server.Port, "PORT")

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.TelegramChatID = id
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Filter.Mode == "" {
		c.Filter.Mode = "all"
	}

	if c.Runner.RunTimeout <= 0 {
		c.Runner.RunTimeout = 5 * time.Minute
	}
	if c.Runner.Workers <= 0 {
		c.Runner.Workers = 2
	}
	if c.Runner.DefaultLimit <= 0 {
		c.Runner.DefaultLimit = 50
	}
	if c.Runner.DedupTTL <= 0 {
		c.Runner.DedupTTL = 30 * 24 * time.Hour
	}

	if c.Classifier.APIURL == "" {
		c.Classifier.APIURL = "https://openrouter.ai/api/v1"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "google/gemini-flash-1.5"
	}
	if c.Classifier.BatchSize <= 0 {
		c.Classifier.BatchSize = 10
	}
	if c.Classifier.Workers <= 0 {
		c.Classifier.Workers = 2
	}
	if c.Classifier.MaxRetries < 0 {
		c.Classifier.MaxRetries = 0
	} else if c.Classifier.MaxRetries == 0 {
		c.Classifier.MaxRetries = 3
	}
	if c.Classifier.BaseDelay <= 0 {
		c.Classifier.BaseDelay = 2 * time.Second
	}
	if c.Classifier.MaxDelay <= 0 {
		c.Classifier.MaxDelay = 30 * time.Second
	}
	if c.Classifier.CallTimeout <= 0 {
		c.Classifier.CallTimeout = 30 * time.Second
	}
	if c.Classifier.RunTimeout <= 0 {
		c.Classifier.RunTimeout = 10 * time.Minute
	}
	if c.Classifier.AlertThreshold <= 0 {
		c.Classifier.AlertThreshold = 7
	}

	if c.Health.StaleAfter <= 0 {
		c.Health.StaleAfter = 24 * time.Hour
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Browser.CookiesPath == "" {
		c.Browser.CookiesPath = "../.cookies"
	}
	if c.Browser.ScreenshotDir == "" {
		c.Browser.ScreenshotDir = "logs/screenshots"
	}

	defaultSource(&c.Sources.Reddit, 0.5, 3)
	defaultSource(&c.Sources.Twitter, 0.33, 2)
	defaultSource(&c.Sources.HackerNews, 2, 3)
	if c.Sources.TikTok.Timeout <= 0 {
		// run-sync actor calls wait for the whole scrape
		c.Sources.TikTok.Timeout = 3 * time.Minute
	}
	defaultSource(&c.Sources.TikTok, 0.5, 2)
	defaultSource(&c.Sources.Instagram, 0.2, 1)
}

// defaultSource fills polite request cadence defaults.
func defaultSource(s *SourceConfig, rps float64, retries int) {
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = rps
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = retries
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
}

// Validate checks fields that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Filter.Mode) {
	case "all", "any":
	default:
		errs = append(errs, fmt.Errorf("filter.mode must be \"all\" or \"any\", got %q", c.Filter.Mode))
	}
	if c.Filter.MaxAge < 0 {
		errs = append(errs, errors.New("filter.max_age must not be negative"))
	}
	if c.Classifier.AlertThreshold > models.ScoreMax {
		errs = append(errs, fmt.Errorf("classifier.alert_threshold must be <= %d", models.ScoreMax))
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}
	seen := make(map[string]bool)
	for i, b := range c.Businesses {
		if b.Slug == "" {
			errs = append(errs, fmt.Errorf("businesses[%d]: slug is required", i))
			continue
		}
		if seen[b.Slug] {
			errs = append(errs, fmt.Errorf("businesses[%d]: duplicate slug %q", i, b.Slug))
		}
		seen[b.Slug] = true
	}
	for job := range c.Schedule {
		if !IsJobName(job) {
			errs = append(errs, fmt.Errorf("schedule: unknown job %q", job))
		}
	}
	return errors.Join(errs...)
}

// IsJobName reports whether name is a triggerable job.
func IsJobName(name string) bool {
	if name == models.JobClassifier || name == models.JobHealth {
		return true
	}
	_, err := models.ParseSource(name)
	return err == nil
}

// SeedBusinesses converts the YAML business list into domain businesses.
// Keyword pairs are de-duplicated per business, case-insensitively.
func (c *Config) SeedBusinesses() []models.Business {
	out := make([]models.Business, 0, len(c.Businesses))
	for _, bc := range c.Businesses {
		b := models.Business{
			ID:          bc.Slug,
			Slug:        bc.Slug,
			Name:        bc.Name,
			Domain:      bc.Domain,
			Description: bc.Description,
			Active:      !bc.Disabled,
		}
		if b.Name == "" {
			b.Name = bc.Slug
		}
		seen := make(map[string]bool)
		for _, kw := range bc.Keywords {
			key := strings.ToLower(strings.Join(strings.Fields(kw), " "))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			b.Keywords = append(b.Keywords, models.Keyword{
				ID:         fmt.Sprintf("%s-%d", bc.Slug, len(b.Keywords)+1),
				BusinessID: b.ID,
				Text:       kw,
			})
		}
		out = append(out, b)
	}
	return out
}
