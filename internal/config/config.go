package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Ledger and pass store backends.
const (
	LedgerStoreXLSX = "xlsx"
	LedgerStoreBolt = "bolt"

	PassStoreSQLite   = "sqlite"
	PassStorePostgres = "postgres"
	PassStoreMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"text"`
	Port                 string        `env:"PORT" envDefault:"8080"`
	PrometheusPort       string        `env:"PROMETHEUS_PORT" envDefault:"9090"`
	DataDir              string        `env:"DATA_DIR" envDefault:"./data"`
	GroupsFile           string        `env:"GROUPS_FILE" envDefault:"./groups.yaml"`
	Timezone             string        `env:"TIMEZONE" envDefault:"America/Chicago"`
	DefaultPassMinutes   int           `env:"DEFAULT_PASS_MINUTES" envDefault:"10"`
	LedgerStore          string        `env:"LEDGER_STORE" envDefault:"xlsx"`
	PassStore            string        `env:"PASS_STORE" envDefault:"sqlite"`
	DatabaseURL          string        `env:"DATABASE_URL"`
	OverdueSweepInterval time.Duration `env:"OVERDUE_SWEEP_INTERVAL" envDefault:"30s"`
	AdminPassword        string        `env:"ADMIN_PASSWORD"`
	TelegramToken        string        `env:"TELEGRAM_TOKEN"`

	location *time.Location
}

// Load loads configuration from an optional .env file and the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	c.location = loc

	if c.DefaultPassMinutes <= 0 {
		result = multierror.Append(result, fmt.Errorf("DEFAULT_PASS_MINUTES must be positive, got %d", c.DefaultPassMinutes))
	}
	if c.OverdueSweepInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("OVERDUE_SWEEP_INTERVAL must not be negative"))
	}

	switch c.LedgerStore {
	case LedgerStoreXLSX, LedgerStoreBolt:
	default:
		result = multierror.Append(result, fmt.Errorf("LEDGER_STORE must be %q or %q, got %q", LedgerStoreXLSX, LedgerStoreBolt, c.LedgerStore))
	}

	switch c.PassStore {
	case PassStoreSQLite, PassStoreMemory:
	case PassStorePostgres:
		if c.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_URL is required when PASS_STORE=%s", PassStorePostgres))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("PASS_STORE must be one of sqlite, postgres, memory, got %q", c.PassStore))
	}

	return result.ErrorOrNil()
}

// Location is the civil time zone every day boundary is computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// MetricsAddr is the listen address of the metrics server. PROMETHEUS_PORT
// set to "off", "0" or left blank disables metrics.
func (c *Config) MetricsAddr() (string, bool) {
	switch strings.ToLower(strings.TrimSpace(c.PrometheusPort)) {
	case "", "0", "off", "false", "disabled":
		return "", false
	}
	return ":" + strings.TrimSpace(c.PrometheusPort), true
}

// PassDSN returns the connection string for the hall pass database.
func (c *Config) PassDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.DataDir, "attendance.db")
}

// LedgerDir is where spreadsheet ledgers live.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "attendance")
}

// RosterDir is where roster workbooks referenced by groups are resolved.
func (c *Config) RosterDir() string {
	return filepath.Join(c.DataDir, "rosters")
}

// PhotosDir is where evidence images are stored.
func (c *Config) PhotosDir() string {
	return filepath.Join(c.DataDir, "photos")
}

// BoltPath is the ledger database file used when LEDGER_STORE=bolt.
func (c *Config) BoltPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}
