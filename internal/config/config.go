package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const EnvPrefix = "POS"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	BindAddr      string `envconfig:"BIND_ADDR" default:"127.0.0.1"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"file:bakery.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"30s"`

	Timezone        string          `envconfig:"TIMEZONE" default:"Local"`
	RetentionDays   int             `envconfig:"RETENTION_DAYS" default:"30"`
	DisplayCurrency string          `envconfig:"DISPLAY_CURRENCY" default:"LBP"`
	DisplayRate     decimal.Decimal `envconfig:"DISPLAY_RATE" default:"90000"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load reads an optional .env file, then the POS_* environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	return cfg, nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("POS_DB_DRIVER must be one of sqlite, postgres, memory (got %q)", c.DBDriver)
	}
	if c.DBDriver != DriverMemory && strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("POS_DB_DSN must be set for driver %s", c.DBDriver)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("POS_RETENTION_DAYS must be at least 1")
	}
	if !c.DisplayRate.IsPositive() {
		return fmt.Errorf("POS_DISPLAY_RATE must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("POS_TIMEZONE: %w", err)
	}
	return nil
}
