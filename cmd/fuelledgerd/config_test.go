package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FUELLEDGER_DB_DRIVER", "memory")

	cfg, err := loadConfig(t.TempDir() + "/missing.env")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, "@every 15m", cfg.ReconcileSpec)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FUELLEDGER_DB_DRIVER", "pg")
	t.Setenv("FUELLEDGER_DB_DSN", "postgres://fuel@localhost/fuel")
	t.Setenv("FUELLEDGER_LOG_LEVEL", "debug")
	t.Setenv("FUELLEDGER_STALENESS_WINDOW", "90s")
	t.Setenv("FUELLEDGER_TRUST_OPERATOR_HEADER", "true")

	cfg, err := loadConfig(t.TempDir() + "/missing.env")
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.StalenessWindow)
	assert.True(t, cfg.TrustOperatorHeader)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string][2]string{
		"driver":      {"FUELLEDGER_DB_DRIVER", "oracle"},
		"duration":    {"FUELLEDGER_OPERATION_TIMEOUT", "soon"},
		"concurrency": {"FUELLEDGER_RECONCILE_CONCURRENCY", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("FUELLEDGER_DB_DRIVER", "memory")
			t.Setenv(kv[0], kv[1])
			_, err := loadConfig(t.TempDir() + "/missing.env")
			assert.Error(t, err)
		})
	}
}
