// Package config reads the process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	ServerAddr     string

	JWTSecret string
	TokenTTL  time.Duration

	// ReconcileInterval enables the periodic counter audit in serve when positive.
	ReconcileInterval time.Duration

	TxMaxAttempts int
	TxBaseDelay   time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load reads the configuration, applying defaults for unset variables. DATABASE_URL is
// validated by the commands that need a database, not here.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDriver: getenv("DATABASE_DRIVER", DriverPostgres),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServerAddr:     getenv("SERVER_ADDR", ":8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.TxBaseDelay, err = durationEnv("TX_BASE_DELAY", 10*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ConnMaxLifetime, err = durationEnv("DB_CONN_MAX_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.TxMaxAttempts, err = intEnv("TX_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 20); err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns, err = intEnv("DB_MAX_IDLE_CONNS", 10); err != nil {
		return nil, err
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("config: DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.DatabaseDriver)
	}
	if cfg.TxMaxAttempts < 1 {
		return nil, fmt.Errorf("config: TX_MAX_ATTEMPTS must be at least 1, got %d", cfg.TxMaxAttempts)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
