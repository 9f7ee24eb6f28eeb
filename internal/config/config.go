package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const minSecretLength = 32

type Config struct {
	// HTTP server
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	DataBackend  string `env:"DATA_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/farmledger.db"`

	// Sessions
	AuthSecret      string        `env:"AUTH_TOKEN_SECRET"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// SessionPurgeInterval is how often the web server deletes dead sessions.
	SessionPurgeInterval time.Duration `env:"SESSION_PURGE_INTERVAL" envDefault:"1h"`

	// Farm defaults
	DefaultFarmName string `env:"DEFAULT_FARM_NAME" envDefault:"My Farm"`
	SeedEnabled     bool   `env:"ADMIN_SEED_ENABLED" envDefault:"true"`

	// HTTP hardening and caching
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	DashboardCacheTTL  time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"5m"`

	// AMQP; an empty URL disables ledger sync publishing.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"farmledger"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"ledger_sync"`

	// Google Sheets ledger mirror
	GoogleSpreadsheetID          string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleRevenueSheet           string `env:"GOOGLE_REVENUE_SHEET" envDefault:"Revenue"`
	GoogleExpenseSheet           string `env:"GOOGLE_EXPENSE_SHEET" envDefault:"Expenses"`
	GoogleServiceAccountJSON     string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile     string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleApplicationCredentials string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Worker
	SyncBatchSize int           `env:"SYNC_BATCH_SIZE" envDefault:"10"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
}

// Load parses the process environment. Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SheetsEnabled reports whether the Sheets mirror has enough configuration to run.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate checks the settings needed by the web server.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errs = append(errs, c.validateStorage()...)

	if len(c.AuthSecret) < minSecretLength {
		errs = append(errs, fmt.Sprintf("AUTH_TOKEN_SECRET must be at least %d characters", minSecretLength))
	}
	if c.AccessTokenTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid access token TTL %v: must be at least 1 minute", c.AccessTokenTTL))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, fmt.Sprintf("refresh token TTL %v must be longer than access token TTL %v", c.RefreshTokenTTL, c.AccessTokenTTL))
	}
	if c.SessionPurgeInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session purge interval %v: must be at least 1 minute", c.SessionPurgeInterval))
	}
	if strings.TrimSpace(c.DefaultFarmName) == "" {
		errs = append(errs, "DEFAULT_FARM_NAME cannot be blank")
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.DashboardCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid dashboard cache TTL %v: cannot be negative", c.DashboardCacheTTL))
	}

	errs = append(errs, c.validateAMQP(false)...)

	return joinErrors(errs)
}

// ValidateWorker checks the settings needed by the ledger sync worker.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.DataBackend != BackendSQLite {
		errs = append(errs, fmt.Sprintf("worker requires the sqlite backend, got '%s'", c.DataBackend))
	}
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateAMQP(true)...)

	if c.SheetsEnabled() {
		if c.GoogleRevenueSheet == "" || c.GoogleExpenseSheet == "" {
			errs = append(errs, "GOOGLE_REVENUE_SHEET and GOOGLE_EXPENSE_SHEET cannot be empty")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleApplicationCredentials == "" {
			errs = append(errs, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if f := c.GoogleServiceAccountFile; f != "" {
			if _, err := os.Stat(f); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", f))
			}
		}
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	return joinErrors(errs)
}

func (c *Config) validateStorage() []string {
	var errs []string
	valid := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(valid, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, valid))
	}
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}
	return errs
}

func (c *Config) validateAMQP(required bool) []string {
	var errs []string
	if c.AMQPURL == "" {
		if required {
			errs = append(errs, "AMQP_URL is required")
		}
		return errs
	}
	if u, err := url.Parse(c.AMQPURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
	}
	if c.AMQPExchange == "" {
		errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errs
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}
