package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "SERVER_ADDR", "JWT_SECRET", "TOKEN_TTL",
		"RECONCILE_INTERVAL", "TX_MAX_ATTEMPTS", "TX_BASE_DELAY",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Zero(t, cfg.ReconcileInterval)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:lending.db")
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("RECONCILE_INTERVAL", "1m")
	t.Setenv("TX_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "file:lending.db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddr)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 3, cfg.TxMaxAttempts)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"bad duration", "TOKEN_TTL", "soon"},
		{"bad integer", "TX_MAX_ATTEMPTS", "many"},
		{"zero attempts", "TX_MAX_ATTEMPTS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
