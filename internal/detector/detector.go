package detector

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Event describes an upward price movement that crossed the threshold.
// It is a decision, not a delivery: the caller decides how to notify.
type Event struct {
	Symbol        string
	BaselinePrice decimal.Decimal
	BaselineTime  time.Time
	CurrentPrice  decimal.Decimal
	CurrentTime   time.Time
	// ChangePct is the percentage change versus the baseline, rounded to
	// two decimals.
	ChangePct decimal.Decimal
}

// Detector compares fresh samples against the earliest sample inside a
// trailing window.
type Detector struct {
	store     storage.SampleStore
	logger    zerolog.Logger
	window    time.Duration
	threshold decimal.Decimal
}

// New constructs a Detector. threshold is the percentage above which an
// event fires; window is the trailing comparison span.
func New(store storage.SampleStore, window time.Duration, threshold decimal.Decimal, logger zerolog.Logger) *Detector {
	return &Detector{
		store:     store,
		logger:    logger.With().Str("component", "detector").Logger(),
		window:    window,
		threshold: threshold,
	}
}

// Evaluate compares current against the earliest stored sample within the
// window ending at now. It returns a non-nil Event only when the upward
// change exceeds the threshold. Missing history and a zero baseline are
// both quiet no-ops; only storage failures surface as errors.
func (d *Detector) Evaluate(ctx context.Context, symbol string, current decimal.Decimal, now time.Time) (*Event, error) {
	baseline, err := d.store.EarliestSampleSince(ctx, symbol, now.Add(-d.window))
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		d.logger.Debug().Str("symbol", symbol).Msg("no baseline inside window, skipping detection")
		return nil, nil
	}
	if baseline.Price.IsZero() {
		d.logger.Warn().Str("symbol", symbol).Time("baseline_ts", baseline.Timestamp).
			Msg("baseline price is zero, skipping detection")
		return nil, nil
	}

	// The threshold cut uses the exact quotient; rounding is display only,
	// so a 3.004% rise still fires.
	change := current.Sub(baseline.Price).Div(baseline.Price).Mul(hundred)
	d.logger.Debug().Str("symbol", symbol).
		Str("baseline", baseline.Price.String()).
		Str("current", current.String()).
		Str("change_pct", change.String()).
		Msg("price change evaluated")

	// Upward moves only; a drop of any size stays silent.
	if change.LessThanOrEqual(d.threshold) {
		return nil, nil
	}

	return &Event{
		Symbol:        symbol,
		BaselinePrice: baseline.Price,
		BaselineTime:  baseline.Timestamp,
		CurrentPrice:  current,
		CurrentTime:   now,
		ChangePct:     change.Round(2),
	}, nil
}

// ChangePct computes (current - baseline) / baseline * 100 rounded to two
// decimals. The baseline must be non-zero.
func ChangePct(baseline, current decimal.Decimal) decimal.Decimal {
	return current.Sub(baseline).Div(baseline).Mul(hundred).Round(2)
}
