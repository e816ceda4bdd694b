package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemorySamplesSinceOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	prices := []int64{100, 102, 101, 105}
	for i, p := range prices {
		ts := base.Add(time.Duration(i) * 5 * time.Minute)
		if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(p), ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	samples, err := store.SamplesSince(ctx, "ethereum", base)
	if err != nil {
		t.Fatalf("samples since: %v", err)
	}
	if len(samples) != len(prices) {
		t.Fatalf("expected %d samples, got %d", len(prices), len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			t.Fatalf("samples not ascending at index %d", i)
		}
	}

	recent, err := store.RecentSamples(ctx, "ethereum", base)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if !recent[0].Timestamp.Equal(samples[len(samples)-1].Timestamp) {
		t.Fatal("recent samples should be newest first")
	}
}

func TestMemoryEarliestSampleSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	got, err := store.EarliestSampleSince(ctx, "ethereum", base)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got != nil {
		t.Fatal("empty store should yield no sample")
	}

	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(int64(100+i)), ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cutoff := base.Add(20 * time.Minute)
	got, err = store.EarliestSampleSince(ctx, "ethereum", cutoff)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got == nil {
		t.Fatal("expected a qualifying sample")
	}
	// The first sample at or after the cutoff, not the latest.
	if !got.Timestamp.Equal(base.Add(30 * time.Minute)) {
		t.Fatalf("expected sample at +30m, got %s", got.Timestamp)
	}
	if !got.Price.Equal(decimal.NewFromInt(102)) {
		t.Fatalf("expected price 102, got %s", got.Price)
	}

	got, err = store.EarliestSampleSince(ctx, "ethereum", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got != nil {
		t.Fatal("cutoff beyond newest sample should yield no sample")
	}

	got, err = store.EarliestSampleSince(ctx, "polygon", base)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got != nil {
		t.Fatal("unknown symbol should yield no sample")
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	const perSymbol = 50
	var wg sync.WaitGroup
	for _, symbol := range []string{"ethereum", "polygon"} {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSymbol; i++ {
				ts := base.Add(time.Duration(i) * time.Minute)
				if err := store.InsertPriceSample(ctx, symbol, decimal.NewFromInt(int64(i)), ts); err != nil {
					t.Errorf("insert %s: %v", symbol, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, symbol := range []string{"ethereum", "polygon"} {
		samples, err := store.SamplesSince(ctx, symbol, base)
		if err != nil {
			t.Fatalf("samples since: %v", err)
		}
		if len(samples) != perSymbol {
			t.Fatalf("%s: expected %d samples, got %d", symbol, perSymbol, len(samples))
		}
		for i := 1; i < len(samples); i++ {
			if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
				t.Fatalf("%s: ordering corrupted at %d", symbol, i)
			}
		}
	}
}

func TestMemoryAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	alert, err := store.CreateAlert(ctx, "ethereum", decimal.NewFromInt(1000), "user@example.com")
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if alert.Triggered {
		t.Fatal("new alert should not be triggered")
	}

	pending, err := store.PendingAlerts(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending alert, got %d", len(pending))
	}

	if err := store.MarkAlertTriggered(ctx, alert.ID); err != nil {
		t.Fatalf("mark triggered: %v", err)
	}

	pending, err = store.PendingAlerts(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatal("triggered alert must leave the pending set")
	}
}
