package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"weather-query-service/pkg/metrics"
)

// Supported driver names. The station store ships as SQLite; larger
// deployments put the same tables in PostgreSQL.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DB wraps sqlx.DB with monitoring and metrics
type DB struct {
	db      *sqlx.DB
	logger  zerolog.Logger
	metrics *metrics.Collector
	config  *Config
}

// Open establishes a database connection for the configured driver
func Open(cfg *Config, logger zerolog.Logger, metricsCollector *metrics.Collector) (*DB, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Msg("[DB_INIT] Database connection established")

	return &DB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
	}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	d.logger.Info().Str("driver", d.config.Driver).Msg("[DB_CLOSE] Closing database connection")
	return d.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// Driver returns the configured driver name
func (d *DB) Driver() string {
	return d.config.Driver
}

// Rebind translates ?-style placeholders into the driver's bindvar form
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

// QueryxContext executes a query with context and duration metrics
func (d *DB) QueryxContext(ctx context.Context, queryType, query string, args ...interface{}) (*sqlx.Rows, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.QueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		d.logger.Debug().
			Str("query_type", queryType).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("[DB_QUERY] Query executed")
	}()

	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("query_type", queryType).
			Msg("[DB_QUERY_ERROR] Query failed")
		return nil, err
	}

	return rows, nil
}

// SelectContext executes a query that returns multiple rows
func (d *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.QueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	}()

	if err := d.db.SelectContext(ctx, dest, query, args...); err != nil {
		d.logger.Error().
			Err(err).
			Str("query_type", queryType).
			Msg("[DB_SELECT_ERROR] Select query failed")
		return err
	}

	return nil
}

// HealthCheck performs a database health check
func (d *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
