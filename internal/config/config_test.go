package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Filter.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Runner.RunTimeout)
	assert.Equal(t, 10, cfg.Classifier.BatchSize)
	assert.Equal(t, 3, cfg.Classifier.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Health.StaleAfter)
	assert.Equal(t, 0.5, cfg.Sources.Reddit.RatePerSecond)
	assert.True(t, cfg.Sources.Reddit.IsEnabled())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
filter:
  mode: any
  max_age: 168h
runner:
  run_timeout: 90s
classifier:
  model: some/model
sources:
  instagram:
    enabled: false
businesses:
  - slug: acme
    keywords: ["supply chain software", "Supply  Chain Software", "freight"]
`)
	t.Setenv("TWITTER_BEARER_TOKEN", "tw-token")
	t.Setenv("CLASSIFIER_MODEL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "any", cfg.Filter.Mode)
	assert.Equal(t, 7*24*time.Hour, cfg.Filter.MaxAge)
	assert.Equal(t, 90*time.Second, cfg.Runner.RunTimeout)
	assert.Equal(t, "some/model", cfg.Classifier.Model)
	assert.Equal(t, "tw-token", cfg.Sources.Twitter.Token)
	assert.False(t, cfg.Sources.Instagram.IsEnabled())

	businesses := cfg.SeedBusinesses()
	require.Len(t, businesses, 1)
	assert.Equal(t, "acme", businesses[0].Name, "name falls back to slug")
	assert.True(t, businesses[0].Active)
	assert.Equal(t, []string{"supply chain software", "freight"}, businesses[0].KeywordTexts(),
		"keywords are unique per business")
}

func TestLoad_InvalidTelegramChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{Filter: FilterConfig{Mode: "all"}}},
		{name: "bad filter mode", cfg: Config{Filter: FilterConfig{Mode: "fuzzy"}}, wantErr: true},
		{name: "negative max age", cfg: Config{Filter: FilterConfig{Mode: "all", MaxAge: -time.Hour}}, wantErr: true},
		{name: "telegram without chat", cfg: Config{Filter: FilterConfig{Mode: "all"}, TelegramToken: "x"}, wantErr: true},
		{
			name:    "duplicate business slug",
			cfg:     Config{Filter: FilterConfig{Mode: "all"}, Businesses: []BusinessConfig{{Slug: "a"}, {Slug: "a"}}},
			wantErr: true,
		},
		{
			name:    "unknown scheduled job",
			cfg:     Config{Filter: FilterConfig{Mode: "all"}, Schedule: map[string]time.Duration{"facebook": time.Hour}},
			wantErr: true,
		},
		{
			name: "known scheduled jobs",
			cfg: Config{Filter: FilterConfig{Mode: "all"}, Schedule: map[string]time.Duration{
				"reddit": time.Hour, "classifier": time.Hour, "health": time.Hour,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_LogLevelEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
