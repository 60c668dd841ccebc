// Package config loads application configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	Environment string
	LogLevel    string
	HTTPAddr    string

	// Upstream collaborators. Empty EMR/pharmacy URLs degrade to empty
	// result sets, never an error.
	APIBaseURL      string
	EMRBaseURL      string
	PharmacyBaseURL string
	UpstreamTimeout time.Duration

	// Discount catalog file lookup directory ("" uses the default paths).
	CatalogPath string

	// Ledger automation tuning.
	AutoVoidDays       int
	AutomationInterval time.Duration

	// Reconciliation poller tick interval.
	PollInterval time.Duration

	// Archive mirror of ledger records (SQLite file).
	ArchiveDSN string
}

// Load reads configuration from the environment, with a best-effort .env
// load for local development.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: skipping .env: %v", err)
	}

	return Config{
		AppName:     getenv("CARELINK_APP_NAME", "carelink-billing"),
		Environment: getenv("CARELINK_ENV", "development"),
		LogLevel:    getenv("CARELINK_LOG_LEVEL", "info"),
		HTTPAddr:    getenv("CARELINK_HTTP_ADDR", ":8080"),

		APIBaseURL:      getenv("CARELINK_API_BASE_URL", "http://localhost:5000/api"),
		EMRBaseURL:      getenv("CARELINK_EMR_BASE_URL", ""),
		PharmacyBaseURL: getenv("CARELINK_PHARMACY_BASE_URL", ""),
		UpstreamTimeout: getenvDuration("CARELINK_UPSTREAM_TIMEOUT", 10*time.Second),

		CatalogPath: getenv("CARELINK_CATALOG_PATH", ""),

		AutoVoidDays:       int(getenvInt64("CARELINK_AUTO_VOID_DAYS", 30)),
		AutomationInterval: getenvDuration("CARELINK_AUTOMATION_INTERVAL", 5*time.Minute),

		PollInterval: getenvDuration("CARELINK_POLL_INTERVAL", 2*time.Second),

		ArchiveDSN: getenv("CARELINK_ARCHIVE_DSN", "file:carelink.db"),
	}
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// Module wires configuration loading for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
)
