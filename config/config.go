// Package config loads server and CLI settings from an optional TOML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Driver selects the model store.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Config is the settings shared by the server and the CLI.
type Config struct {
	HTTPAddr string `toml:"http_addr"`

	DBDriver Driver `toml:"db_driver"`
	DBDSN    string `toml:"db_dsn"`

	// Workers bounds batch evaluation goroutines; 0 means GOMAXPROCS.
	Workers int `toml:"workers"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // json|console
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr:  ":3000",
		DBDriver:  DriverSQLite,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBDriver = Driver(strings.ToLower(envOr("DB_DRIVER", string(cfg.DBDriver))))
	cfg.DBDSN = envOr("DATABASE_URL", cfg.DBDSN)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: WORKERS: %w", err)
		}
		cfg.Workers = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that is missing or unsupported.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("config: db_dsn (DATABASE_URL) is required for postgres")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported db_driver %q", c.DBDriver)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: unsupported log_format %q", c.LogFormat)
	}
	return nil
}

// Logger builds the zap logger described by c.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
