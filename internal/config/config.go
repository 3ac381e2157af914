package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	Supabase struct {
		URL            string        `split_words:"true" default:"https://pjpllpocwyuuvgacbbot.supabase.co"`
		Key            string        `split_words:"true"`
		CollectionPath string        `split_words:"true" default:"/rest/v1"`
		Select         string        `split_words:"true" default:"*"`
		PageSize       int           `split_words:"true" default:"1000"`
		Timeout        time.Duration `split_words:"true" default:"30s"`
	}

	AssetBase       string   `envconfig:"ASSET_BASE" default:"https://seiya2.vercel.app"`
	Tables          []string `envconfig:"TABLES"`
	HarvestParallel int      `envconfig:"HARVEST_PARALLEL" default:"1"`
	DataDir         string   `envconfig:"DATA_DIR" default:"data"`
	AssetsDir       string   `envconfig:"ASSETS_DIR" default:"assets"`

	Download struct {
		Timeout  time.Duration `split_words:"true" default:"30s"`
		Retries  int           `split_words:"true" default:"3"`
		Backoff  time.Duration `split_words:"true" default:"1.5s"`
		Delay    time.Duration `split_words:"true" default:"0s"`
		Force    bool          `split_words:"true" default:"false"`
		Parallel int           `split_words:"true" default:"1"`
	}

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"false"`
		ServiceName  string `split_words:"true" default:"asset_harvester"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	// Web configures the optional status server. An empty bind address disables it.
	Web struct {
		BindAddress     string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigurationError{Field: "env", Reason: "cannot process environment", Err: err}
	}

	return &cfg, nil
}

// RequireSupabase checks the settings needed to talk to the remote tables.
func (c *Config) RequireSupabase() error {
	if strings.TrimSpace(c.Supabase.URL) == "" {
		return &ConfigurationError{Field: "SUPABASE_URL", Reason: "must not be empty"}
	}

	if strings.TrimSpace(c.Supabase.Key) == "" {
		return &ConfigurationError{Field: "SUPABASE_KEY", Reason: "must not be empty"}
	}

	if c.Supabase.PageSize <= 0 {
		return &ConfigurationError{Field: "SUPABASE_PAGE_SIZE", Reason: fmt.Sprintf("must be positive, got %d", c.Supabase.PageSize)}
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
