package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig is the optional Postgres persistence collaborator.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig is the local window cache plus the change-notification stream.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// MQTTConfig is the optional outbound status-transition publisher.
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Feed struct {
		URL      string
		ProxyURL string        // envelope proxy used when the direct fetch fails; empty disables the fallback
		Timeout  time.Duration // guards a single transport attempt
	}

	Poll struct {
		NormalInterval   time.Duration // all regions operational
		ElevatedInterval time.Duration // at least one region degraded
	}

	Window struct {
		Retention    time.Duration // how long events stay in the log
		MaxEvents    int           // hard cap on retained events
		StatusWindow time.Duration // sub-window considered for region status; 0 = full retention window
	}

	Notify struct {
		Stream string // Redis stream carrying refresh signals between instances
	}

	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults suitable
// for local development.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Feed.URL = getEnv("FEED_URL", "https://status.aws.amazon.com/rss/all.rss")
	cfg.Feed.ProxyURL = getEnv("FEED_PROXY_URL", "https://api.allorigins.win/get")
	cfg.Feed.Timeout = getEnvDuration("FEED_TIMEOUT", 15*time.Second)

	cfg.Poll.NormalInterval = getEnvDuration("POLL_NORMAL_INTERVAL", 10*time.Minute)
	cfg.Poll.ElevatedInterval = getEnvDuration("POLL_ELEVATED_INTERVAL", 5*time.Minute)

	cfg.Window.Retention = getEnvDuration("EVENT_RETENTION", 7*24*time.Hour)
	cfg.Window.MaxEvents = getEnvInt("EVENT_MAX_COUNT", 50)
	cfg.Window.StatusWindow = getEnvDuration("STATUS_WINDOW", 24*time.Hour)

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "health:refresh")

	cfg.Database.Enabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthmap")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "cloud-health-map")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "healthmap/status")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
