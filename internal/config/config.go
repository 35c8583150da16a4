package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
)

// Config holds all configuration for the tracker
type Config struct {
	Server     ServerConfig
	Codeforces CodeforcesConfig
	Telegram   TelegramConfig
	Sheets     SheetsConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Tracking   TrackingConfig
	Log        LogConfig
}

// ServerConfig holds HTTP admin API configuration
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
	APIKey  string
}

// CodeforcesConfig holds Codeforces API configuration
type CodeforcesConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// TelegramConfig holds bot configuration
type TelegramConfig struct {
	Token        string
	AllowedUsers []int64
}

// SheetsConfig holds Google Sheets configuration
type SheetsConfig struct {
	CredentialsFile     string
	ServiceAccountEmail string
	ReadRange           string
	AppendRange         string
}

// StoreConfig selects the tabular store backend
type StoreConfig struct {
	Backend string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	DSN   string
	Table string
}

// RedisConfig holds Redis configuration. An empty address disables session persistence.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// KafkaConfig holds Kafka configuration. No brokers disables event publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TrackingConfig holds polling and dialog configuration
type TrackingConfig struct {
	PollInterval   time.Duration
	FetchCount     int
	CycleTimeout   time.Duration
	HandleTimeout  time.Duration
	SheetIDTimeout time.Duration
	ReapInterval   time.Duration
	File           string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Enabled: getEnvAsBool("SERVER_ENABLED", true),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8080),
			APIKey:  getEnv("SERVER_API_KEY", ""),
		},
		Codeforces: CodeforcesConfig{
			BaseURL:   getEnv("CF_BASE_URL", "https://codeforces.com/api"),
			APIKey:    getEnv("CF_API_KEY", ""),
			APISecret: getEnv("CF_API_SECRET", ""),
			Timeout:   getEnvAsDuration("CF_TIMEOUT", 15*time.Second),
		},
		Telegram: TelegramConfig{
			Token:        getEnv("TELEGRAM_TOKEN", ""),
			AllowedUsers: getEnvAsInt64List("TELEGRAM_ALLOWED_USERS"),
		},
		Sheets: SheetsConfig{
			CredentialsFile:     getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			ServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
			ReadRange:           getEnv("SHEET_READ_RANGE", "Sheet1!A2:F"),
			AppendRange:         getEnv("SHEET_APPEND_RANGE", "Sheet1!A2"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", StoreSheets),
		},
		Database: DatabaseConfig{
			DSN:   getEnv("DATABASE_DSN", ""),
			Table: getEnv("DATABASE_TABLE", "submission_rows"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "cftracker:session:"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "codeforces.submissions"),
		},
		Tracking: TrackingConfig{
			PollInterval:   getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
			FetchCount:     getEnvAsInt("FETCH_COUNT", 5),
			CycleTimeout:   getEnvAsDuration("CYCLE_TIMEOUT", 30*time.Second),
			HandleTimeout:  getEnvAsDuration("HANDLE_TIMEOUT", 2*time.Minute),
			SheetIDTimeout: getEnvAsDuration("SHEET_ID_TIMEOUT", 10*time.Minute),
			ReapInterval:   getEnvAsDuration("REAP_INTERVAL", 15*time.Second),
			File:           getEnv("TRACKING_FILE", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	if (c.Codeforces.APIKey == "") != (c.Codeforces.APISecret == "") {
		return fmt.Errorf("codeforces api key and secret must be set together")
	}

	switch c.Store.Backend {
	case StoreSheets:
		if c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("google credentials file is required for the sheets store")
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.Tracking.PollInterval)
	}

	if c.Tracking.FetchCount < 1 {
		return fmt.Errorf("fetch count must be at least 1: %d", c.Tracking.FetchCount)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}

	return nil
}

// SlogLevel maps the configured level name to a slog level
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvAsInt64List(key string) []int64 {
	var ids []int64
	for _, item := range getEnvAsList(key) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			slog.Warn("ignoring invalid id", "key", key, "value", item)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
