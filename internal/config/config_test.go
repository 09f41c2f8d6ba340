package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://status.aws.amazon.com/rss/all.rss", cfg.Feed.URL)
	assert.Equal(t, "https://api.allorigins.win/get", cfg.Feed.ProxyURL)
	assert.Equal(t, 15*time.Second, cfg.Feed.Timeout)

	assert.Equal(t, 10*time.Minute, cfg.Poll.NormalInterval)
	assert.Equal(t, 5*time.Minute, cfg.Poll.ElevatedInterval)

	assert.Equal(t, 7*24*time.Hour, cfg.Window.Retention)
	assert.Equal(t, 50, cfg.Window.MaxEvents)
	assert.Equal(t, 24*time.Hour, cfg.Window.StatusWindow)

	assert.Equal(t, "health:refresh", cfg.Notify.Stream)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	// Optional collaborators stay off unless explicitly enabled.
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("FEED_URL", "https://example.com/status.rss")
	t.Setenv("POLL_NORMAL_INTERVAL", "2m")
	t.Setenv("POLL_ELEVATED_INTERVAL", "30s")
	t.Setenv("EVENT_MAX_COUNT", "25")
	t.Setenv("STATUS_WINDOW", "12h")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/status.rss", cfg.Feed.URL)
	assert.Equal(t, 2*time.Minute, cfg.Poll.NormalInterval)
	assert.Equal(t, 30*time.Second, cfg.Poll.ElevatedInterval)
	assert.Equal(t, 25, cfg.Window.MaxEvents)
	assert.Equal(t, 12*time.Hour, cfg.Window.StatusWindow)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("POLL_NORMAL_INTERVAL", "soon")
	t.Setenv("EVENT_RETENTION", "-24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10*time.Minute, cfg.Poll.NormalInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Window.Retention)
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "healthmap",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=healthmap sslmode=disable",
		db.GetDSN())
}
