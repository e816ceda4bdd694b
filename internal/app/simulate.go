package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/detector"
	"price-track-alerts/internal/storage"
)

// SimulateMove runs one synthetic detection cycle against the configured
// notification channels: a baseline sample is planted half an hour back and
// the given current price evaluated against it.
func (a *App) SimulateMove(ctx context.Context, chain string, baseline, current decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if a.Config.Alerting.Recipient == "" {
		return errors.New("alerting.recipient is not configured")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channels configured")
	}

	registry := a.newRegistry()
	if _, ok := registry.Resolve(chain); !ok {
		return errors.New("unknown chain: " + chain)
	}

	store := storage.NewMemory()
	now := time.Now().UTC()
	if err := store.InsertPriceSample(ctx, chain, baseline, now.Add(-30*time.Minute)); err != nil {
		return err
	}

	det := detector.New(store, a.Config.Alerting.Window, decimal.NewFromFloat(a.Config.Alerting.ThresholdPct), a.Logger)
	event, err := det.Evaluate(ctx, chain, current, now)
	if err != nil {
		return err
	}
	if event == nil {
		a.Logger.Info().Str("chain", chain).Msg("simulated change stayed below the threshold, nothing sent")
		return nil
	}

	note := alerting.PriceMoveNotification(
		a.Config.Alerting.Recipient, event.Symbol, event.ChangePct,
		event.BaselinePrice, event.CurrentPrice,
		event.BaselineTime, event.CurrentTime,
	)
	return notifier.Notify(ctx, note)
}
