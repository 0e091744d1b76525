package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	SearXNG SearXNGConfig `yaml:"searxng" mapstructure:"searxng"`
	Parse   ParseConfig   `yaml:"parse" mapstructure:"parse"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SearXNGConfig configures the search backend.
type SearXNGConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DisallowedDomain string `yaml:"disallowed_domain" mapstructure:"disallowed_domain"`
}

// Timeout returns the per-request search timeout.
func (c SearXNGConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ParseConfig holds the orchestrator defaults. Per-request values override
// MinParsed and MaxAttempts.
type ParseConfig struct {
	MinParsed   int `yaml:"min_parsed" mapstructure:"min_parsed"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ExtractConfig configures article extractors.
type ExtractConfig struct {
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MSNLocale      string `yaml:"msn_locale" mapstructure:"msn_locale"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
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
	v.SetEnvPrefix("SEARCHPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("searxng.base_url", "http://localhost:8080")
	v.SetDefault("searxng.timeout_secs", 10)
	v.SetDefault("searxng.disallowed_domain", "wikinews.org")
	v.SetDefault("parse.min_parsed", 5)
	v.SetDefault("parse.max_attempts", 30)
	v.SetDefault("parse.batch_size", 5)
	v.SetDefault("extract.timeout_secs", 10)
	v.SetDefault("extract.msn_locale", "zh-tw")
	v.SetDefault("extract.retry_attempts", 3)
	v.SetDefault("extract.retry_backoff_ms", 2000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "search-parser.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.requests_per_sec", 2.0)
	v.SetDefault("server.burst", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by mode are present and sane.
// Modes: "search", "serve", "store" (migrate and article listing).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "search", "serve":
		errs = append(errs, c.validateSearch()...)
		errs = append(errs, c.validateStore()...)
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be between 1 and 65535")
			}
			if c.Server.RequestsPerSec <= 0 {
				errs = append(errs, "server.requests_per_sec must be > 0")
			}
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSearch() []string {
	var errs []string
	u, err := url.Parse(c.SearXNG.BaseURL)
	if c.SearXNG.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "searxng.base_url must be an absolute URL")
	}
	if c.Parse.MinParsed < 1 {
		errs = append(errs, "parse.min_parsed must be >= 1")
	}
	if c.Parse.MaxAttempts < 1 {
		errs = append(errs, "parse.max_attempts must be >= 1")
	}
	if c.Parse.BatchSize < 1 || c.Parse.BatchSize > 50 {
		errs = append(errs, "parse.batch_size must be between 1 and 50")
	}
	if c.Extract.TimeoutSecs < 1 {
		errs = append(errs, "extract.timeout_secs must be >= 1")
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, `store.driver must be "postgres" or "sqlite"`)
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
