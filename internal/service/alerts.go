package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/storage"
)

// Alerts evaluates user-created target-price alerts against fresh prices.
type Alerts struct {
	store    storage.AlertStore
	fetcher  oracle.PriceFetcher
	notifier alerting.Notifier
	logger   zerolog.Logger
}

// NewAlerts constructs the alert evaluation service.
func NewAlerts(store storage.AlertStore, fetcher oracle.PriceFetcher, notifier alerting.Notifier, logger zerolog.Logger) *Alerts {
	return &Alerts{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger.With().Str("component", "alerts").Logger(),
	}
}

// Create registers a new pending alert. Input validation happens at the API
// boundary; creation itself always succeeds for valid input.
func (a *Alerts) Create(ctx context.Context, symbol string, targetPrice decimal.Decimal, email string) (storage.Alert, error) {
	alert, err := a.store.CreateAlert(ctx, symbol, targetPrice, email)
	if err != nil {
		return storage.Alert{}, err
	}
	a.logger.Info().Str("symbol", symbol).
		Str("target_price", targetPrice.String()).
		Int64("alert_id", alert.ID).
		Msg("alert created")
	return alert, nil
}

// EvaluateAll runs one evaluation cycle over all pending alerts. Each
// distinct symbol is fetched once per cycle and the price shared across its
// alerts. An alert fires when the current price reaches or passes its
// target; the notification is sent first and triggered is persisted only on
// send success, so a failed send retries next cycle. Per-alert failures are
// isolated.
func (a *Alerts) EvaluateAll(ctx context.Context, now time.Time) error {
	if a.notifier == nil {
		a.logger.Debug().Msg("no notification channels configured, skipping alert cycle")
		return nil
	}

	pending, err := a.store.PendingAlerts(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	prices := make(map[string]decimal.Decimal)
	failed := make(map[string]bool)

	for _, alert := range pending {
		price, ok := prices[alert.Symbol]
		if !ok {
			if failed[alert.Symbol] {
				continue
			}
			fetched, fetchErr := a.fetcher.FetchPrice(ctx, alert.Symbol)
			if fetchErr != nil {
				a.logger.Error().Err(fetchErr).Str("symbol", alert.Symbol).Msg("price fetch failed, alerts for symbol deferred")
				failed[alert.Symbol] = true
				continue
			}
			prices[alert.Symbol] = fetched
			price = fetched
		}

		if price.LessThan(alert.TargetPrice) {
			continue
		}

		note := alerting.TargetHitNotification(alert.Email, alert.Symbol, price, alert.TargetPrice)
		if err := a.notifier.Notify(ctx, note); err != nil {
			// Leave the alert pending so the next cycle retries.
			a.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("notification failed, alert stays pending")
			continue
		}

		// A send that succeeds but fails to persist re-notifies next
		// cycle: accepted at-least-once window.
		if err := a.store.MarkAlertTriggered(ctx, alert.ID); err != nil {
			a.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to persist triggered flag")
			continue
		}

		a.logger.Info().Int64("alert_id", alert.ID).
			Str("symbol", alert.Symbol).
			Str("target_price", alert.TargetPrice.String()).
			Str("current_price", price.String()).
			Time("evaluated_at", now).
			Msg("alert triggered")
	}

	return nil
}
