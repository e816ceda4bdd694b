package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/detector"
	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/storage"
	"price-track-alerts/internal/tokens"
)

// Tracker runs one ingestion cycle: fetch, append, detect, notify, for every
// tracked symbol. Symbols are processed concurrently; a failure for one never
// aborts the others.
type Tracker struct {
	fetcher   oracle.PriceFetcher
	store     storage.SampleStore
	detector  *detector.Detector
	notifier  alerting.Notifier
	registry  *tokens.Registry
	logger    zerolog.Logger
	recipient string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker constructs the ingestion service. recipient is where
// hourly-movement notifications are routed; an empty recipient disables them.
func NewTracker(fetcher oracle.PriceFetcher, store storage.SampleStore, det *detector.Detector, notifier alerting.Notifier, registry *tokens.Registry, recipient string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		fetcher:   fetcher,
		store:     store,
		detector:  det,
		notifier:  notifier,
		registry:  registry,
		logger:    logger.With().Str("component", "tracker").Logger(),
		recipient: recipient,
		locks:     make(map[string]*sync.Mutex),
	}
}

// ProcessTick sweeps all tracked symbols for one cycle. A symbol whose
// previous cycle is still in flight is skipped rather than run concurrently.
func (t *Tracker) ProcessTick(ctx context.Context, now time.Time) error {
	var wg sync.WaitGroup
	for _, symbol := range t.registry.Tracked() {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.processSymbol(ctx, symbol, now)
		}()
	}
	wg.Wait()
	return nil
}

func (t *Tracker) processSymbol(ctx context.Context, symbol string, now time.Time) {
	lock := t.symbolLock(symbol)
	if !lock.TryLock() {
		t.logger.Debug().Str("symbol", symbol).Msg("previous cycle still in flight, skipping")
		return
	}
	defer lock.Unlock()

	price, err := t.fetcher.FetchPrice(ctx, symbol)
	if err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("price fetch failed")
		return
	}

	if err := t.store.InsertPriceSample(ctx, symbol, price, now); err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to persist sample")
		return
	}

	event, err := t.detector.Evaluate(ctx, symbol, price, now)
	if err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("change detection failed")
		return
	}
	if event == nil {
		return
	}

	t.logger.Info().Str("symbol", symbol).
		Str("change_pct", event.ChangePct.String()).
		Msg("hourly movement detected")

	if t.notifier == nil || t.recipient == "" {
		return
	}

	note := alerting.PriceMoveNotification(
		t.recipient, event.Symbol, event.ChangePct,
		event.BaselinePrice, event.CurrentPrice,
		event.BaselineTime, event.CurrentTime,
	)
	// Send failures do not roll back the sample and are not retried this
	// cycle.
	if err := t.notifier.Notify(ctx, note); err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to dispatch movement notification")
	}
}

func (t *Tracker) symbolLock(symbol string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[symbol] = lock
	}
	return lock
}
