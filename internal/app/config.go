package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type Config struct {
	BaseURL              string        // Required: backend base URL
	AppURL               string        // Optional: URL reported as the current page for SSO round trips (default: BaseURL)
	ProtectedPrefix      string        // Optional: path prefix whose 401s trigger a refresh (default: /service)
	RefreshTimeout       time.Duration // Optional: bound on one refresh probe (default: 30s)
	HTTPTimeout          time.Duration // Optional: overall timeout of one HTTP call, refresh included (default: 60s)
	Storage              string        // Optional: memory or sqlite (default: memory)
	DatabaseFile         string        // Optional: SQLite database path (default: ./tenantauth.db)
	SessionScope         string        // Optional: ULID of the session scope to resume (default: new scope)
	SessionTTL           time.Duration // Optional: sliding lifetime of stored session values (default: 12h)
	MasterKey            string        // Required for sqlite: secret the sealing key is derived from
	LoginRate            int           // Optional: interactive logins allowed per minute, 0 for unlimited (default: 0)
	LoginBurst           int           // Optional: login burst size (default: 3)
	HousekeepingInterval time.Duration // Optional: expired value purge interval (default: 1h)
	MetricsFile          string        // Optional: textfile collector path written on exit (default: none)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	cfg := Config{
		BaseURL:              os.Getenv("TENANTAUTH_BASE_URL"),
		AppURL:               os.Getenv("TENANTAUTH_APP_URL"),
		ProtectedPrefix:      getEnvOrDefault("TENANTAUTH_PROTECTED_PREFIX", "/service"),
		RefreshTimeout:       getEnvDurationOrDefault("TENANTAUTH_REFRESH_TIMEOUT", 30*time.Second),
		HTTPTimeout:          getEnvDurationOrDefault("HTTP_TIMEOUT", 60*time.Second),
		Storage:              getEnvOrDefault("TENANTAUTH_STORAGE", StorageMemory),
		DatabaseFile:         getEnvOrDefault("TENANTAUTH_DATABASE_FILE", "tenantauth.db"),
		SessionScope:         os.Getenv("TENANTAUTH_SESSION_SCOPE"),
		SessionTTL:           getEnvDurationOrDefault("TENANTAUTH_SESSION_TTL", 12*time.Hour),
		MasterKey:            os.Getenv("TENANTAUTH_MASTER_KEY"),
		LoginRate:            getEnvIntOrDefault("TENANTAUTH_LOGIN_RATE", 0),
		LoginBurst:           getEnvIntOrDefault("TENANTAUTH_LOGIN_BURST", 3),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		MetricsFile:          os.Getenv("TENANTAUTH_METRICS_FILE"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.AppURL == "" {
		cfg.AppURL = cfg.BaseURL
	}

	return cfg
}

// Validate reports the first configuration problem that would stop New.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("TENANTAUTH_BASE_URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("TENANTAUTH_BASE_URL %q is not an absolute URL", c.BaseURL)
	}

	switch c.Storage {
	case StorageMemory:
	case StorageSQLite:
		if c.MasterKey == "" {
			return errors.New("TENANTAUTH_MASTER_KEY is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown TENANTAUTH_STORAGE %q (want %s or %s)", c.Storage, StorageMemory, StorageSQLite)
	}

	if c.LoginRate < 0 {
		return fmt.Errorf("TENANTAUTH_LOGIN_RATE must not be negative, got %d", c.LoginRate)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
