package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	Environment string

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	// embedded sqlite database
	DBPath string `toml:"db_path"`

	// redis (login session tokens, login rate limiting)
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	SentryEnabled bool `toml:"sentry_enabled"`

	// identity cookie; forced to true on detected serverless platforms
	CookieSecure bool `toml:"cookie_secure"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var envConfigs Toml
	if _, err := toml.DecodeFile(path, &envConfigs); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := envConfigs.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config table for env: %s", env)
	}

	cfg.Environment = env
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides mirrors the storage resolution order of the deployed app:
// an explicit GYMLOG_DB path wins, otherwise a detected serverless platform
// moves the database to its only writable location (and forces secure cookies),
// otherwise the configured path is kept.
func (c *Config) applyEnvOverrides() {
	if dbPath := os.Getenv("GYMLOG_DB"); dbPath != "" {
		c.DBPath = dbPath
	} else if OnServerlessPlatform() {
		c.DBPath = "/tmp/gymlog.db"
	}

	if OnServerlessPlatform() {
		c.CookieSecure = true
	}
}

// OnServerlessPlatform reports whether the service runs on a detected
// serverless deployment platform.
func OnServerlessPlatform() bool {
	return os.Getenv("VERCEL") != ""
}
