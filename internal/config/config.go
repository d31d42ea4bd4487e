// Package config loads application settings from config.yaml and the
// environment and configures the global logger.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/countries-visited/internal/country"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Country CountryConfig `yaml:"country" mapstructure:"country"`
	Zones   ZonesConfig   `yaml:"zones" mapstructure:"zones"`
	Tracker TrackerConfig `yaml:"tracker" mapstructure:"tracker"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the history store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CountryConfig locates the country reference data.
type CountryConfig struct {
	DataPath string `yaml:"data_path" mapstructure:"data_path"`
	DataURL  string `yaml:"data_url" mapstructure:"data_url"`
	TieBreak string `yaml:"tie_break" mapstructure:"tie_break"`
}

// ZonesConfig locates the optional zone registry file.
type ZonesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// TrackerConfig tunes evaluation.
type TrackerConfig struct {
	HistoryWindowDays int      `yaml:"history_window_days" mapstructure:"history_window_days"`
	Concurrency       int      `yaml:"concurrency" mapstructure:"concurrency"`
	IntervalSecs      int      `yaml:"interval_secs" mapstructure:"interval_secs"`
	Persons           []string `yaml:"persons" mapstructure:"persons"`
}

// HistoryWindow returns the history window as a duration. Zero means all
// history.
func (c TrackerConfig) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowDays) * 24 * time.Hour
}

// Interval returns the re-evaluation interval.
func (c TrackerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int     `yaml:"port" mapstructure:"port"`
	IngestRPS   float64 `yaml:"ingest_rps" mapstructure:"ingest_rps"`
	IngestBurst int     `yaml:"ingest_burst" mapstructure:"ingest_burst"`
}

// RetryConfig configures history lookup retries and the breaker around them.
type RetryConfig struct {
	MaxAttempts         int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISITED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visited.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("country.data_path", "countries-data.json")
	v.SetDefault("country.data_url", "")
	v.SetDefault("country.tie_break", string(country.FirstMatch))
	v.SetDefault("zones.path", "")
	v.SetDefault("tracker.history_window_days", 0)
	v.SetDefault("tracker.concurrency", 4)
	v.SetDefault("tracker.interval_secs", 300)
	v.SetDefault("tracker.persons", []string{})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ingest_rps", 20.0)
	v.SetDefault("server.ingest_burst", 40)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.breaker_threshold", 5)
	v.SetDefault("retry.breaker_cooldown_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings the given mode depends on. Modes are
// "evaluate" (every command that reads history), "serve" and "watch".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if _, err := country.ParseTieBreak(c.Country.TieBreak); err != nil {
		errs = append(errs, "country.tie_break must be first_match or nearest_center")
	}
	if c.Tracker.HistoryWindowDays < 0 {
		errs = append(errs, "tracker.history_window_days must be >= 0")
	}
	if c.Tracker.Concurrency < 1 || c.Tracker.Concurrency > 64 {
		errs = append(errs, "tracker.concurrency must be between 1 and 64")
	}

	switch mode {
	case "evaluate":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.IngestRPS > 0 && c.Server.IngestBurst < 1 {
			errs = append(errs, "server.ingest_burst must be >= 1 when ingest_rps is set")
		}
	case "watch":
		if c.Tracker.IntervalSecs <= 0 {
			errs = append(errs, "tracker.interval_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
