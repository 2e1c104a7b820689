package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigContent = `
[development]
host = "localhost"
port = 8080
log_level = "trace"
log_to_stdout = true
db_path = "./data/gymlog.db"
redis_host = "localhost"
redis_port = "6379"
prometheus_metrics_host = "localhost"
prometheus_metrics_port = "2112"
login_rate_limit_allowed_per_min = 15

[production]
host = ""
port = 9000
log_level = "debug"
logs_path = "/var/log/gymlog/service.log"
db_path = "/var/lib/gymlog/gymlog.db"
redis_host = "localhost"
redis_port = "6379"
prometheus_metrics_host = "localhost"
prometheus_metrics_port = "2112"
login_rate_limit_allowed_per_min = 15
sentry_enabled = true
cookie_secure = true
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigContent), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTestConfig(t)

	cfg, err := Load("development", path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./data/gymlog.db", cfg.DBPath)
	assert.False(t, cfg.CookieSecure)

	cfg, err = Load("production", path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.SentryEnabled)
	assert.True(t, cfg.CookieSecure)

	_, err = Load("staging", path)
	assert.Error(t, err)
}

func TestLoad_DBPathOverride(t *testing.T) {
	path := writeTestConfig(t)

	t.Setenv("GYMLOG_DB", "/custom/place/gymlog.db")
	cfg, err := Load("development", path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/place/gymlog.db", cfg.DBPath)
}

func TestLoad_ServerlessPlatform(t *testing.T) {
	path := writeTestConfig(t)

	t.Setenv("VERCEL", "1")
	cfg, err := Load("development", path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/gymlog.db", cfg.DBPath)
	assert.True(t, cfg.CookieSecure)

	// explicit override beats platform detection
	t.Setenv("GYMLOG_DB", "/elsewhere/gymlog.db")
	cfg, err = Load("development", path)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/gymlog.db", cfg.DBPath)
	assert.True(t, cfg.CookieSecure)
}
