package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	insertSampleSQL = `INSERT INTO price_samples (symbol, price, ts)
    VALUES ($1, $2, $3);`

	samplesSinceSQL = `SELECT id, symbol, price, ts
    FROM price_samples
    WHERE symbol = $1
      AND ts >= $2
    ORDER BY ts ASC, id ASC;`

	recentSamplesSQL = `SELECT id, symbol, price, ts
    FROM price_samples
    WHERE symbol = $1
      AND ts >= $2
    ORDER BY ts DESC, id DESC;`

	earliestSampleSinceSQL = `SELECT id, symbol, price, ts
    FROM price_samples
    WHERE symbol = $1
      AND ts >= $2
    ORDER BY ts ASC, id ASC
    LIMIT 1;`

	insertAlertSQL = `INSERT INTO alerts (symbol, target_price, email, triggered)
    VALUES ($1, $2, $3, FALSE)
    RETURNING id, symbol, target_price, email, triggered, created_at;`

	pendingAlertsSQL = `SELECT id, symbol, target_price, email, triggered, created_at
    FROM alerts
    WHERE NOT triggered
    ORDER BY id ASC;`

	markAlertTriggeredSQL = `UPDATE alerts
    SET triggered = TRUE
    WHERE id = $1
      AND NOT triggered;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store persists samples and alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPriceSample appends one price observation.
func (s *Store) InsertPriceSample(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertSampleSQL, symbol, price.String(), ts); execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// SamplesSince lists samples at or after the cutoff, oldest first.
func (s *Store) SamplesSince(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error) {
	return s.querySamples(ctx, samplesSinceSQL, symbol, since)
}

// RecentSamples lists samples at or after the cutoff, newest first.
func (s *Store) RecentSamples(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error) {
	return s.querySamples(ctx, recentSamplesSQL, symbol, since)
}

func (s *Store) querySamples(ctx context.Context, sql, symbol string, since time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql, symbol, since)
	if queryErr != nil {
		return nil, fmt.Errorf("query samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// EarliestSampleSince returns the oldest sample at or after the cutoff,
// or nil when no sample qualifies.
func (s *Store) EarliestSampleSince(ctx context.Context, symbol string, since time.Time) (*PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, earliestSampleSinceSQL, symbol, since)
	if queryErr != nil {
		return nil, fmt.Errorf("query earliest sample: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}

	sample, scanErr := scanPriceSample(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &sample, nil
}

// CreateAlert persists a new pending alert.
func (s *Store) CreateAlert(ctx context.Context, symbol string, targetPrice decimal.Decimal, email string) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL, symbol, targetPrice.String(), email)
	alert, scanErr := scanAlertRow(row)
	if scanErr != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// PendingAlerts lists alerts not yet triggered.
func (s *Store) PendingAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pendingAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("query pending alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlertRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// MarkAlertTriggered flips the triggered flag. Already-triggered alerts are
// left untouched.
func (s *Store) MarkAlertTriggered(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertTriggeredSQL, id); execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the lock is session scoped and drops with the conn.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)
	if err := rows.Scan(&sample.ID, &sample.Symbol, &priceStr, &sample.Timestamp); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	sample.Price = price
	return sample, nil
}

func scanAlertRow(row pgx.Row) (Alert, error) {
	var (
		alert     Alert
		targetStr string
	)
	if err := row.Scan(&alert.ID, &alert.Symbol, &targetStr, &alert.Email, &alert.Triggered, &alert.CreatedAt); err != nil {
		return Alert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse target price: %w", err)
	}
	alert.TargetPrice = target
	return alert, nil
}

var (
	_ SampleStore    = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
