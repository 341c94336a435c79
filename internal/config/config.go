package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/model"
)

var defaultFiles = []string{"./config.hcl", "./config.local.hcl"}

type Config struct {
	TelegramBotToken  string        `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN" required:"true"`
	TelegramEndpoint  string        `hcl:"telegram_endpoint" env:"TELEGRAM_ENDPOINT" default:"https://api.telegram.org/bot%s/%s"`
	AuthorizedUserIDs []int64       `hcl:"authorized_user_ids" env:"AUTHORIZED_USER_IDS"`
	DatabaseDriver    string        `hcl:"database_driver" env:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN       string        `hcl:"database_dsn" env:"DATABASE_DSN" default:"tgreddit.db"`
	CheckInterval     time.Duration `hcl:"check_interval" env:"CHECK_INTERVAL" default:"10m"`
	SkipInitialSend   bool          `hcl:"skip_initial_send" env:"SKIP_INITIAL_SEND" default:"true"`
	LinksBaseURL      string        `hcl:"links_base_url" env:"LINKS_BASE_URL"`
	DefaultLimit      int           `hcl:"default_limit" env:"DEFAULT_LIMIT" default:"1"`
	DefaultTime       string        `hcl:"default_time" env:"DEFAULT_TIME" default:"day"`
	DefaultFilter     string        `hcl:"default_filter" env:"DEFAULT_FILTER"`
	LinkSummaries     bool          `hcl:"link_summaries" env:"LINK_SUMMARIES" default:"false"`
	YtDlpPath         string        `hcl:"ytdlp_path" env:"YTDLP_PATH" default:"yt-dlp"`
	RedditBaseURL     string        `hcl:"reddit_base_url" env:"REDDIT_BASE_URL" default:"https://www.reddit.com"`
	MetricsAddr       string        `hcl:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel          string        `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat         string        `hcl:"log_format" env:"LOG_FORMAT" default:"text"`
}

// Load reads the config from file, or from ./config.hcl and
// ./config.local.hcl when file is empty. TGR_ prefixed environment
// variables override both.
func Load(file string) (Config, error) {
	var cfg Config

	files := defaultFiles
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		files = []string{file}
	}

	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TGR",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})

	if err := loader.Load(); err != nil {
		return cfg, fmt.Errorf("config load fail: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		errs = append(errs, fmt.Errorf("database_driver must be sqlite or postgres, got %q", c.DatabaseDriver))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, errors.New("check_interval must be positive"))
	}
	if c.DefaultLimit <= 0 {
		errs = append(errs, errors.New("default_limit must be positive"))
	}
	if _, err := model.ParseTimePeriod(c.DefaultTime); err != nil {
		errs = append(errs, fmt.Errorf("default_time: %w", err))
	}
	if c.DefaultFilter != "" {
		if _, err := model.ParseFilter(c.DefaultFilter); err != nil {
			errs = append(errs, fmt.Errorf("default_filter: %w", err))
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Time is the parsed default time period.
func (c Config) Time() model.TimePeriod {
	period, err := model.ParseTimePeriod(c.DefaultTime)
	if err != nil {
		return model.PeriodDay
	}

	return period
}

// Filter is the parsed default filter, nil when unset.
func (c Config) Filter() *model.MediaKind {
	if c.DefaultFilter == "" {
		return nil
	}

	kind, err := model.ParseFilter(c.DefaultFilter)
	if err != nil {
		return nil
	}

	return &kind
}

// IsAuthorized reports whether a user may talk to the bot.
func (c Config) IsAuthorized(userID int64) bool {
	return lo.Contains(c.AuthorizedUserIDs, userID)
}

func (c Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
