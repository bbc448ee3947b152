package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Realtime   RealtimeConfig   `yaml:"realtime" mapstructure:"realtime"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// UserHeader carries the caller's owner id on API requests.
	UserHeader string `yaml:"user_header" mapstructure:"user_header"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AIConfig holds the credential that gates generation and validation.
type AIConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ScoringConfig selects the classification variant and its defaults.
type ScoringConfig struct {
	Scheme     string `yaml:"scheme" mapstructure:"scheme"`
	Keywords   string `yaml:"keywords" mapstructure:"keywords"`
	Strictness int    `yaml:"strictness" mapstructure:"strictness"`
	Seed       uint64 `yaml:"seed" mapstructure:"seed"`
	Criteria   string `yaml:"criteria" mapstructure:"criteria"`
}

// ScrapeConfig configures the simulated lead finder.
type ScrapeConfig struct {
	UseProxies       bool     `yaml:"use_proxies" mapstructure:"use_proxies"`
	Proxies          []string `yaml:"proxies" mapstructure:"proxies"`
	RequestDelaySecs int      `yaml:"request_delay_secs" mapstructure:"request_delay_secs"`
	RespectRobotsTxt bool     `yaml:"respect_robots_txt" mapstructure:"respect_robots_txt"`
	DefaultSource    string   `yaml:"default_source" mapstructure:"default_source"`
	Limit            int      `yaml:"limit" mapstructure:"limit"`
}

// SessionConfig identifies the owner CLI commands act for.
type SessionConfig struct {
	UserID string `yaml:"user_id" mapstructure:"user_id"`
}

// RetryConfig configures retries of transient store errors.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// RealtimeConfig configures the change feed.
type RealtimeConfig struct {
	Buffer int `yaml:"buffer" mapstructure:"buffer"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DefaultProxies is the simulated proxy rotation list.
var DefaultProxies = []string{
	"192.168.1.1:8080",
	"45.86.231.76:3128",
	"103.152.34.230:80",
	"218.32.241.119:8080",
	"91.243.35.42:3128",
}

// DefaultCriteria is the high-priority rule set used when none is given.
const DefaultCriteria = "CEO OR Chief Executive Officer OR Founder OR Owner"

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lead-harvest.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.user_header", "X-User-ID")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.key_prefix", "sk-")
	v.SetDefault("scoring.scheme", "fixed_range")
	v.SetDefault("scoring.keywords", "lead")
	v.SetDefault("scoring.strictness", 5)
	v.SetDefault("scoring.seed", 0)
	v.SetDefault("scoring.criteria", DefaultCriteria)
	v.SetDefault("scrape.use_proxies", true)
	v.SetDefault("scrape.proxies", DefaultProxies)
	v.SetDefault("scrape.request_delay_secs", 2)
	v.SetDefault("scrape.respect_robots_txt", true)
	v.SetDefault("scrape.default_source", "linkedin")
	v.SetDefault("scrape.limit", 10)
	v.SetDefault("session.user_id", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 50)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("realtime.buffer", 64)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)

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

// Validate checks the settings a command mode depends on. Modes: "cli",
// "serve" and "salesforce". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(msg string) { errs = append(errs, msg) }

	switch mode {
	case "cli", "serve", "salesforce":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 || (c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
		add("store.min_conns must be between 0 and store.max_conns")
	}

	switch c.Scoring.Scheme {
	case "strictness", "fixed_range":
	default:
		add("scoring.scheme must be strictness or fixed_range")
	}
	switch c.Scoring.Keywords {
	case "director", "lead":
	default:
		add("scoring.keywords must be director or lead")
	}
	if c.Scoring.Strictness < 1 || c.Scoring.Strictness > 10 {
		add("scoring.strictness must be between 1 and 10")
	}
	if c.Scrape.RequestDelaySecs < 1 || c.Scrape.RequestDelaySecs > 10 {
		add("scrape.request_delay_secs must be between 1 and 10")
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be >= 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Server.UserHeader == "" {
			add("server.user_header is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			add("salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			add("salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			add("salesforce.key_path is required")
		}
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
