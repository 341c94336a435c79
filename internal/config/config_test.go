package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgreddit/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
telegram_bot_token = "123:abc"
database_dsn = "/var/lib/tgreddit/db.sqlite"
check_interval = "5m"
skip_initial_send = false
default_time = "week"
default_filter = "video"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "/var/lib/tgreddit/db.sqlite", cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	assert.False(t, cfg.SkipInitialSend)
	assert.Equal(t, 1, cfg.DefaultLimit)
	assert.Equal(t, model.PeriodWeek, cfg.Time())
	require.NotNil(t, cfg.Filter())
	assert.Equal(t, model.KindVideo, *cfg.Filter())
	assert.Equal(t, "yt-dlp", cfg.YtDlpPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `telegram_bot_token = "123:abc"`)
	t.Setenv("TGR_DEFAULT_LIMIT", "3")
	t.Setenv("TGR_LINKS_BASE_URL", "https://teddit.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.DefaultLimit)
	assert.Equal(t, "https://teddit.example", cfg.LinksBaseURL)
	assert.True(t, cfg.SkipInitialSend)
	assert.Nil(t, cfg.Filter())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseDriver: "sqlite",
		CheckInterval:  time.Minute,
		DefaultLimit:   1,
		DefaultTime:    "day",
		LogLevel:       "info",
		LogFormat:      "text",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
		{"interval", func(c *Config) { c.CheckInterval = 0 }},
		{"limit", func(c *Config) { c.DefaultLimit = 0 }},
		{"time", func(c *Config) { c.DefaultTime = "decade" }},
		{"filter", func(c *Config) { c.DefaultFilter = "audio" }},
		{"unknown filter", func(c *Config) { c.DefaultFilter = "unknown" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsAuthorized(t *testing.T) {
	cfg := Config{AuthorizedUserIDs: []int64{1, 2}}

	assert.True(t, cfg.IsAuthorized(2))
	assert.False(t, cfg.IsAuthorized(3))
}
