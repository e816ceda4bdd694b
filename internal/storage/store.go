package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/config"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// SampleStore defines operations on the price time series.
type SampleStore interface {
	// InsertPriceSample appends one observation to the series.
	InsertPriceSample(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	// SamplesSince returns samples with timestamp >= since, ascending.
	SamplesSince(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error)
	// RecentSamples returns samples with timestamp >= since, descending.
	RecentSamples(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error)
	// EarliestSampleSince returns the minimal-timestamp sample with
	// timestamp >= since, or nil if no sample qualifies. Absence is not
	// an error: it signals insufficient history.
	EarliestSampleSince(ctx context.Context, symbol string, since time.Time) (*PriceSample, error)
}

// AlertStore defines operations on target-price alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, symbol string, targetPrice decimal.Decimal, email string) (Alert, error)
	// PendingAlerts returns all alerts with triggered = false.
	PendingAlerts(ctx context.Context) ([]Alert, error)
	// MarkAlertTriggered flips triggered to true for the given alert.
	MarkAlertTriggered(ctx context.Context, id int64) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
