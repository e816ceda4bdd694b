package storage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is an in-process store used when no database is configured and by
// tests. Samples are held per symbol in append order; appends for different
// symbols do not contend beyond the map lock.
type Memory struct {
	mu      sync.RWMutex
	samples map[string][]PriceSample
	alerts  []Alert
	nextID  int64
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{samples: make(map[string][]PriceSample)}
}

// InsertPriceSample appends one observation, keeping per-symbol order.
func (m *Memory) InsertPriceSample(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	series := m.samples[symbol]

	sample := PriceSample{ID: m.nextID, Symbol: symbol, Price: price, Timestamp: ts}

	// Appends normally arrive in timestamp order; a clock-skewed insert is
	// placed to keep the series sorted.
	idx := len(series)
	for idx > 0 && series[idx-1].Timestamp.After(ts) {
		idx--
	}
	series = append(series, PriceSample{})
	copy(series[idx+1:], series[idx:])
	series[idx] = sample
	m.samples[symbol] = series
	return nil
}

// SamplesSince returns samples at or after the cutoff, oldest first.
func (m *Memory) SamplesSince(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PriceSample, 0)
	for _, sample := range m.samples[symbol] {
		if !sample.Timestamp.Before(since) {
			out = append(out, sample)
		}
	}
	return out, nil
}

// RecentSamples returns samples at or after the cutoff, newest first.
func (m *Memory) RecentSamples(ctx context.Context, symbol string, since time.Time) ([]PriceSample, error) {
	asc, err := m.SamplesSince(ctx, symbol, since)
	if err != nil {
		return nil, err
	}
	out := make([]PriceSample, len(asc))
	for i, sample := range asc {
		out[len(asc)-1-i] = sample
	}
	return out, nil
}

// EarliestSampleSince returns the oldest sample at or after the cutoff, or
// nil when no sample qualifies.
func (m *Memory) EarliestSampleSince(ctx context.Context, symbol string, since time.Time) (*PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sample := range m.samples[symbol] {
		if !sample.Timestamp.Before(since) {
			found := sample
			return &found, nil
		}
	}
	return nil, nil
}

// CreateAlert stores a new pending alert.
func (m *Memory) CreateAlert(ctx context.Context, symbol string, targetPrice decimal.Decimal, email string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	alert := Alert{
		ID:          m.nextID,
		Symbol:      symbol,
		TargetPrice: targetPrice,
		Email:       email,
		Triggered:   false,
		CreatedAt:   time.Now().UTC(),
	}
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// PendingAlerts lists alerts not yet triggered.
func (m *Memory) PendingAlerts(ctx context.Context) ([]Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0)
	for _, alert := range m.alerts {
		if !alert.Triggered {
			out = append(out, alert)
		}
	}
	return out, nil
}

// MarkAlertTriggered flips the triggered flag for the given alert.
func (m *Memory) MarkAlertTriggered(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Triggered = true
			return nil
		}
	}
	return nil
}

var (
	_ SampleStore = (*Memory)(nil)
	_ AlertStore  = (*Memory)(nil)
)
