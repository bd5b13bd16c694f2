package extension

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/fuelledger/store/sqlite"
)

func TestMergeWithDefaults(t *testing.T) {
	e := New()
	cfg := e.mergeWithDefaults(Config{OperationTimeout: time.Second})

	assert.Equal(t, "/fuelledger", cfg.BasePath)
	assert.Equal(t, "@every 15m", cfg.ReconcileSpec)
	assert.Equal(t, time.Second, cfg.OperationTimeout)
	assert.Equal(t, 10*time.Minute, cfg.StalenessWindow)
	assert.Equal(t, 4, cfg.ReconcileConcurrency)
}

func TestMergeConfigurations(t *testing.T) {
	e := New()
	file := Config{BasePath: "/fuel", ReconcileSpec: "0 * * * *"}
	prog := Config{
		BasePath:         "/ignored",
		DisableScheduler: true,
		GroveDatabase:    "ops",
		StalenessWindow:  time.Minute,
	}

	cfg := e.mergeConfigurations(file, prog)

	assert.Equal(t, "/fuel", cfg.BasePath, "file value wins")
	assert.Equal(t, "0 * * * *", cfg.ReconcileSpec)
	assert.True(t, cfg.DisableScheduler, "programmatic flag fills in")
	assert.Equal(t, "ops", cfg.GroveDatabase)
	assert.Equal(t, time.Minute, cfg.StalenessWindow)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout, "default fills the rest")
}

func TestOptions(t *testing.T) {
	e := New(
		WithBasePath("/api/fuel"),
		WithDisableRoutes(),
		WithReconcileSpec("@hourly"),
		WithGroveDatabase("fuel"),
		WithPrometheus(nil),
	)

	assert.Equal(t, "/api/fuel", e.config.BasePath)
	assert.True(t, e.config.DisableRoutes)
	assert.Equal(t, "@hourly", e.config.ReconcileSpec)
	assert.Equal(t, "fuel", e.config.GroveDatabase)
	assert.True(t, e.useGrove)
	assert.True(t, e.metrics)
	assert.Nil(t, e.Ledger(), "ledger is built on Register")
}

func TestStoreForSQLite(t *testing.T) {
	ctx := context.Background()
	sdb := sqlitedriver.New()
	require.NoError(t, sdb.Open(ctx, "file:"+filepath.Join(t.TempDir(), "fuel.db")+"?_txlock=immediate"))
	db, err := grove.Open(sdb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := StoreFor(db)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
}
