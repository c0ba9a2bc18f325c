package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PushBackendPostgres = "postgres"
	PushBackendNATS     = "nats"
	PushBackendMemory   = "memory"
)

type Config struct {
	Port               string
	DBUrl              string
	JWTSecret          string
	AppEnv             string
	LogLevel           string
	PushBackend        string
	NATSUrl            string
	NATSSubjectPrefix  string
	PGNotifyChannel    string
	NetworkSettleDelay time.Duration
	ChannelBuffer      int
	EnableMetrics      bool
	EnableDocs         bool
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBUrl:              getEnv("DB_URL", ""),
		JWTSecret:          jwtSecret,
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		PushBackend:        strings.ToLower(getEnv("PUSH_BACKEND", PushBackendPostgres)),
		NATSUrl:            getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "medlink.changes"),
		PGNotifyChannel:    getEnv("PG_NOTIFY_CHANNEL", "realtime_changes"),
		NetworkSettleDelay: getEnvDuration("NETWORK_SETTLE_DELAY", time.Second),
		ChannelBuffer:      getEnvInt("CHANNEL_BUFFER", 256),
		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
		EnableDocs:         getEnvBool("ENABLE_DOCS", true),
	}

	switch cfg.PushBackend {
	case PushBackendPostgres, PushBackendNATS, PushBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported PUSH_BACKEND %q", cfg.PushBackend)
	}
	if cfg.UseMemoryStore() {
		cfg.PushBackend = PushBackendMemory
	}

	return cfg, nil
}

// UseMemoryStore reports whether the server should run against the
// in-process store instead of Postgres.
func (c *Config) UseMemoryStore() bool {
	return c != nil && c.DBUrl == "" && c.AppEnv == "development"
}

// DocsEnabled reports whether the route index is served. It is never
// served outside development.
func (c *Config) DocsEnabled() bool {
	return c != nil && c.EnableDocs && c.AppEnv == "development"
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
