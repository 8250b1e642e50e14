package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the application configuration structure
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Query    QueryConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP transport settings
type ServerConfig struct {
	Host         string        `default:"0.0.0.0"`
	Port         int           `default:"8080"`
	ReadTimeout  time.Duration `split_words:"true" default:"15s"`
	WriteTimeout time.Duration `split_words:"true" default:"30s"`
	IdleTimeout  time.Duration `split_words:"true" default:"60s"`
}

// DatabaseConfig holds the backing-store settings. The default points at the
// bundled SQLite station file; set driver=postgres with a matching DSN for a
// server deployment.
type DatabaseConfig struct {
	Driver          string        `default:"sqlite3"`
	DSN             string        `default:"./data/knmi_etmgeg_320.sqlite"`
	MaxOpenConns    int           `split_words:"true" default:"10"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	ConnMaxIdleTime time.Duration `split_words:"true" default:"5m"`
}

// QueryConfig bounds statement execution
type QueryConfig struct {
	DefaultLimit   int           `split_words:"true" default:"200"`
	MaxLimit       int           `split_words:"true" default:"10000"`
	ExecTimeout    time.Duration `split_words:"true" default:"10s"`
	BusyRetryDelay time.Duration `split_words:"true" default:"100ms"`
}

// CacheConfig bounds the result cache
type CacheConfig struct {
	TTL        time.Duration `default:"5m"`
	MaxEntries int           `split_words:"true" default:"1024"`
}

// LoggingConfig holds the log settings
type LoggingConfig struct {
	Level string `default:"info"`
}

// LoadFromEnv loads the configuration from environment variables and an
// optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	config := new(Config)
	if err := envconfig.Process("wq", config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must not be empty")
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("default limit %d must be between 1 and the max limit %d",
			c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries)
	}
	return nil
}
