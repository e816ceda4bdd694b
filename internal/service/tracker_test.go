package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/detector"
	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/storage"
	"price-track-alerts/internal/tokens"
)

type stubFetcher struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
	gates  map[string]chan struct{}
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		gates:  make(map[string]chan struct{}),
	}
}

func (f *stubFetcher) set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	delete(f.errs, symbol)
}

func (f *stubFetcher) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *stubFetcher) gate(symbol string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[symbol] = gate
	return gate
}

func (f *stubFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *stubFetcher) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	f.calls[symbol]++
	gate := f.gates[symbol]
	err := f.errs[symbol]
	price, ok := f.prices[symbol]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", oracle.ErrUnsupportedSymbol, symbol)
	}
	return price, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) sent() []alerting.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]alerting.Notification, len(n.notes))
	copy(out, n.notes)
	return out
}

func (n *recordingNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func newTracker(fetcher oracle.PriceFetcher, store *storage.Memory, notifier alerting.Notifier) *Tracker {
	det := detector.New(store, time.Hour, decimal.NewFromFloat(3.0), zerolog.Nop())
	registry := tokens.NewRegistry(tokens.Defaults(), tokens.DefaultTracked())
	return NewTracker(fetcher, store, det, notifier, registry, "ops@example.com", zerolog.Nop())
}

func TestProcessTickAppendsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	fetcher := newStubFetcher()
	notifier := &recordingNotifier{}
	tracker := newTracker(fetcher, store, notifier)

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(100), now.Add(-55*time.Minute)); err != nil {
		t.Fatalf("seed baseline: %v", err)
	}

	fetcher.set("ethereum", decimal.NewFromInt(104))
	fetcher.set("polygon", decimal.NewFromFloat(0.52))

	if err := tracker.ProcessTick(ctx, now); err != nil {
		t.Fatalf("process tick: %v", err)
	}

	for _, symbol := range []string{"ethereum", "polygon"} {
		samples, err := store.SamplesSince(ctx, symbol, now)
		if err != nil {
			t.Fatalf("samples since: %v", err)
		}
		if len(samples) != 1 {
			t.Fatalf("%s: expected one fresh sample, got %d", symbol, len(samples))
		}
	}

	notes := notifier.sent()
	if len(notes) != 1 {
		t.Fatalf("expected one movement notification, got %d", len(notes))
	}
	if !strings.Contains(notes[0].Body, "increased by 4.00%") {
		t.Fatalf("unexpected notification body: %q", notes[0].Body)
	}
}

func TestProcessTickIsolatesSymbolFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	fetcher := newStubFetcher()
	tracker := newTracker(fetcher, store, &recordingNotifier{})

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	fetcher.fail("ethereum", fmt.Errorf("%w: rpc down", oracle.ErrUnavailable))
	fetcher.set("polygon", decimal.NewFromFloat(0.52))

	if err := tracker.ProcessTick(ctx, now); err != nil {
		t.Fatalf("one symbol failing must not fail the tick: %v", err)
	}

	ethSamples, _ := store.SamplesSince(ctx, "ethereum", now)
	if len(ethSamples) != 0 {
		t.Fatal("failed fetch must not append a sample")
	}
	polySamples, _ := store.SamplesSince(ctx, "polygon", now)
	if len(polySamples) != 1 {
		t.Fatal("healthy symbol must still be processed")
	}
}

func TestProcessTickNotifyFailureKeepsSample(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	fetcher := newStubFetcher()
	notifier := &recordingNotifier{}
	notifier.setErr(errors.New("smtp down"))
	tracker := newTracker(fetcher, store, notifier)

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(100), now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("seed baseline: %v", err)
	}
	fetcher.set("ethereum", decimal.NewFromInt(110))
	fetcher.set("polygon", decimal.NewFromFloat(0.52))

	if err := tracker.ProcessTick(ctx, now); err != nil {
		t.Fatalf("notify failure must not fail the tick: %v", err)
	}

	samples, _ := store.SamplesSince(ctx, "ethereum", now)
	if len(samples) != 1 {
		t.Fatal("sample append must not be rolled back on notify failure")
	}
}

func TestSameSymbolCyclesNeverOverlap(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	fetcher := newStubFetcher()
	tracker := newTracker(fetcher, store, &recordingNotifier{})

	gate := fetcher.gate("ethereum")
	fetcher.set("ethereum", decimal.NewFromInt(100))
	fetcher.set("polygon", decimal.NewFromFloat(0.52))

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tracker.ProcessTick(ctx, now)
	}()

	// Wait for the first cycle to be blocked inside the ethereum fetch and
	// for its polygon leg to have run.
	deadline := time.After(2 * time.Second)
	for fetcher.callCount("ethereum") == 0 || fetcher.callCount("polygon") == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never reached the fetch")
		case <-time.After(time.Millisecond):
		}
	}

	// A second tick while the first is in flight must skip ethereum.
	if err := tracker.ProcessTick(ctx, now.Add(5*time.Minute)); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if got := fetcher.callCount("ethereum"); got != 1 {
		t.Fatalf("overlapping cycle must not re-enter the fetch, got %d calls", got)
	}
	// Polygon is independent and ran in both ticks.
	if got := fetcher.callCount("polygon"); got != 2 {
		t.Fatalf("other symbols must not be blocked, got %d polygon calls", got)
	}

	close(gate)
	<-done
}
