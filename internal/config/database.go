package config

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Kerhoff/rollcall/migrations"
)

// Database holds database connection and configuration
type Database struct {
	*sql.DB
	driver string
	dsn    string
	logger *logrus.Logger
}

// NewDatabase opens the hall pass database. Driver is "postgres" or "sqlite";
// for sqlite dsn is a file path.
func NewDatabase(driver, dsn string, logger *logrus.Logger) (*Database, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case PassStorePostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case PassStoreSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithField("driver", driver).Info("Database connection established successfully")

	return &Database{
		DB:     db,
		driver: driver,
		dsn:    dsn,
		logger: logger,
	}, nil
}

// migrateURL turns the connection string into the URL golang-migrate expects.
func (d *Database) migrateURL() (string, error) {
	switch d.driver {
	case PassStorePostgres:
		u, err := url.Parse(d.dsn)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			return "", fmt.Errorf("DATABASE_URL must be a postgres:// URL to run migrations")
		}
		return d.dsn, nil
	case PassStoreSQLite:
		return "sqlite://" + filepath.ToSlash(d.dsn), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", d.driver)
}

// Migrate applies the embedded migrations for the database's driver. The
// migrator uses its own connection and releases it before returning.
func (d *Database) Migrate() (err error) {
	src, err := iofs.New(migrations.FS, d.driver)
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	target, err := d.migrateURL()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if closeErr := errors.Join(srcErr, dbErr); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migrator: %w", closeErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.WithField("driver", d.driver).Info("Database migrations completed successfully")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// CloseAll closes every closer and reports all failures together.
func CloseAll(closers ...interface{ Close() error }) error {
	var result *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
