// Command fuelledgerd serves the fuel ledger over HTTP and runs scheduled
// reconciliation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/api"
	audithook "github.com/xraph/fuelledger/audit_hook"
	"github.com/xraph/fuelledger/cache/redis"
	"github.com/xraph/fuelledger/extension"
	"github.com/xraph/fuelledger/observability"
	"github.com/xraph/fuelledger/operation/httplookup"
	"github.com/xraph/fuelledger/operator"
	"github.com/xraph/fuelledger/plugin/natspub"
	"github.com/xraph/fuelledger/scheduler"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/store/memory"
)

func main() {
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := loadConfig(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fuelledgerd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []fuelledger.Option{
		fuelledger.WithLogger(logger),
		fuelledger.WithConfig(ledgerConfig(cfg)),
		fuelledger.WithPlugin(observability.NewMetricsExtension(
			observability.NewPrometheusFactory(prometheus.DefaultRegisterer),
		)),
		fuelledger.WithPlugin(audithook.New(auditLog(logger.With("component", "audit")),
			audithook.WithLogger(logger),
		)),
	}

	if cfg.RedisAddr != "" {
		rc, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		opts = append(opts, fuelledger.WithStatusCache(rc))
		logger.Info("redis status cache enabled", "addr", cfg.RedisAddr)
	}

	if cfg.NATSURL != "" {
		pub, err := natspub.Connect(cfg.NATSURL, "fuelledgerd", natspub.WithPrefix(cfg.NATSPrefix))
		if err != nil {
			return err
		}
		opts = append(opts, fuelledger.WithPlugin(pub))
		logger.Info("nats publisher enabled", "url", cfg.NATSURL, "prefix", cfg.NATSPrefix)
	}

	if cfg.OperationsURL != "" {
		opts = append(opts, fuelledger.WithOperationLookup(httplookup.New(httplookup.Config{
			BaseURL: cfg.OperationsURL,
			Token:   cfg.OperationsToken,
		})))
	} else {
		logger.Warn("operations service not configured, movements referencing operations will be rejected")
	}

	l := fuelledger.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Stop(); err != nil {
			logger.Error("ledger stop failed", "error", err)
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("FUELLEDGER_TIMEZONE: %w", err)
	}
	sched := scheduler.New(l,
		scheduler.WithLocation(loc),
		scheduler.WithSpec(cfg.ReconcileSpec),
		scheduler.WithTimeout(cfg.ReconcileTimeout),
		scheduler.WithLogger(logger.With("component", "scheduler")),
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := api.New(l,
		api.WithLogger(logger.With("component", "http")),
		api.WithBasePath(cfg.BasePath),
		api.WithOperatorConfig(operator.Config{
			Secret:      []byte(cfg.JWTSecret),
			Issuer:      cfg.JWTIssuer,
			TrustHeader: cfg.TrustOperatorHeader,
		}),
	).Router()
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}
	return nil
}

// openStore opens the configured grove driver and wraps it in the
// matching store backend.
func openStore(ctx context.Context, cfg *config) (store.Store, error) {
	var drv grove.GroveDriver
	switch cfg.DBDriver {
	case "memory":
		return memory.New(), nil
	case "pg":
		pg := pgdriver.New()
		if err := pg.Open(ctx, cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		drv = pg
	case "sqlite":
		sq := sqlitedriver.New()
		if err := sq.Open(ctx, cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		drv = sq
	case "mongo":
		mg := mongodriver.New()
		if err := mg.Open(ctx, cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		drv = mg
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}

	db, err := grove.Open(drv)
	if err != nil {
		return nil, err
	}
	return extension.StoreFor(db)
}

func ledgerConfig(cfg *config) fuelledger.Config {
	c := fuelledger.DefaultConfig()
	c.OperationTimeout = cfg.OperationTimeout
	c.StalenessWindow = cfg.StalenessWindow
	c.ReconcileConcurrency = cfg.Concurrency
	return c
}

// auditLog writes audit events to the structured log.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		level := slog.LevelInfo
		switch ev.Severity {
		case audithook.SeverityWarning:
			level = slog.LevelWarn
		case audithook.SeverityCritical:
			level = slog.LevelError
		}
		logger.Log(ctx, level, ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"category", ev.Category,
			"outcome", ev.Outcome,
			"reason", ev.Reason,
			"metadata", ev.Metadata,
		)
		return nil
	})
}
