package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// config is the daemon configuration, read from the environment.
type config struct {
	Addr     string
	LogLevel slog.Level

	DBDriver string
	DBDSN    string

	BasePath            string
	JWTSecret           string
	JWTIssuer           string
	TrustOperatorHeader bool

	OperationTimeout time.Duration
	StalenessWindow  time.Duration
	Concurrency      int

	ReconcileSpec    string
	ReconcileTimeout time.Duration
	Timezone         string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL    string
	NATSPrefix string

	OperationsURL   string
	OperationsToken string
}

// loadConfig reads an optional .env file, then the environment.
func loadConfig(envFile string) (*config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &config{
		Addr:                getenv("FUELLEDGER_ADDR", ":8080"),
		DBDriver:            getenv("FUELLEDGER_DB_DRIVER", "sqlite"),
		DBDSN:               getenv("FUELLEDGER_DB_DSN", "file:fuelledger.db?_txlock=immediate"),
		BasePath:            os.Getenv("FUELLEDGER_BASE_PATH"),
		JWTSecret:           os.Getenv("FUELLEDGER_JWT_SECRET"),
		JWTIssuer:           os.Getenv("FUELLEDGER_JWT_ISSUER"),
		ReconcileSpec:       getenv("FUELLEDGER_RECONCILE_SPEC", "@every 15m"),
		Timezone:            getenv("FUELLEDGER_TIMEZONE", "UTC"),
		RedisAddr:           os.Getenv("FUELLEDGER_REDIS_ADDR"),
		RedisPassword:       os.Getenv("FUELLEDGER_REDIS_PASSWORD"),
		NATSURL:             os.Getenv("FUELLEDGER_NATS_URL"),
		NATSPrefix:          getenv("FUELLEDGER_NATS_PREFIX", "fuelledger"),
		OperationsURL:       os.Getenv("FUELLEDGER_OPERATIONS_URL"),
		OperationsToken:     os.Getenv("FUELLEDGER_OPERATIONS_TOKEN"),
		TrustOperatorHeader: os.Getenv("FUELLEDGER_TRUST_OPERATOR_HEADER") == "true",
	}

	var err error
	if err = cfg.LogLevel.UnmarshalText([]byte(getenv("FUELLEDGER_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("FUELLEDGER_LOG_LEVEL: %w", err)
	}
	if cfg.OperationTimeout, err = durationEnv("FUELLEDGER_OPERATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.StalenessWindow, err = durationEnv("FUELLEDGER_STALENESS_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconcileTimeout, err = durationEnv("FUELLEDGER_RECONCILE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = intEnv("FUELLEDGER_RECONCILE_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("FUELLEDGER_REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.DBDriver {
	case "pg", "sqlite", "mongo", "memory":
	default:
		return fmt.Errorf("FUELLEDGER_DB_DRIVER must be pg, sqlite, mongo or memory, got %q", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return errors.New("FUELLEDGER_DB_DSN must be provided")
	}
	if c.Addr == "" {
		return errors.New("FUELLEDGER_ADDR must not be empty")
	}
	if c.Concurrency < 1 {
		return errors.New("FUELLEDGER_RECONCILE_CONCURRENCY must be at least 1")
	}
	return nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
		return 0, fmt.Errorf("%s: %w", key, err)
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
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
