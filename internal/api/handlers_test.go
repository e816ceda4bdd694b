package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/service"
	"price-track-alerts/internal/storage"
	"price-track-alerts/internal/tokens"
)

type fixedFetcher struct {
	prices map[string]decimal.Decimal
}

func (f *fixedFetcher) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", oracle.ErrUnavailable, symbol)
	}
	return price, nil
}

func newTestHandler(t *testing.T, store *storage.Memory, fetcher oracle.PriceFetcher) *Handler {
	t.Helper()
	registry := tokens.NewRegistry(tokens.Defaults(), tokens.DefaultTracked())
	alerts := service.NewAlerts(store, fetcher, nopNotifier{}, zerolog.Nop())
	quoter := service.NewSwapQuoter(fetcher, "ethereum", "bitcoin", decimal.NewFromFloat(0.03), zerolog.Nop())
	return NewHandler(alerts, store, quoter, registry, zerolog.Nop())
}

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, note alerting.Notification) error { return nil }

func TestCreateAlertEndpoint(t *testing.T) {
	store := storage.NewMemory()
	handler := newTestHandler(t, store, &fixedFetcher{})

	body := `{"chain":"ethereum","targetPrice":1000,"email":"user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		ID        int64  `json:"id"`
		Chain     string `json:"chain"`
		Triggered bool   `json:"triggered"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Chain != "ethereum" || res.Triggered {
		t.Fatalf("unexpected response %+v", res)
	}

	pending, err := store.PendingAlerts(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatal("alert must be persisted")
	}
}

func TestCreateAlertValidation(t *testing.T) {
	handler := newTestHandler(t, storage.NewMemory(), &fixedFetcher{})

	cases := []string{
		`{"chain":"dogecoin","targetPrice":1000,"email":"user@example.com"}`,
		`{"chain":"ethereum","targetPrice":-5,"email":"user@example.com"}`,
		`{"chain":"ethereum","targetPrice":1000,"email":"not-an-email"}`,
		`{not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHourlyPricesEndpoint(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	handler := newTestHandler(t, store, &fixedFetcher{})

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ts := now.Add(-time.Duration(i) * time.Hour)
		if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(int64(2000+i)), ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Outside the 24h window, must not appear.
	if err := store.InsertPriceSample(ctx, "ethereum", decimal.NewFromInt(1), now.Add(-30*time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/prices/hourly?chain=ethereum", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var res []struct {
		Chain     string    `json:"chain"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 samples inside 24h, got %d", len(res))
	}
	for i := 1; i < len(res); i++ {
		if res[i].Timestamp.After(res[i-1].Timestamp) {
			t.Fatal("samples must be newest first")
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/prices/hourly", nil)
	rec = httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing chain should be 400, got %d", rec.Code)
	}
}

func TestSwapRateEndpoint(t *testing.T) {
	fetcher := &fixedFetcher{prices: map[string]decimal.Decimal{
		"ethereum": decimal.NewFromInt(2000),
		"bitcoin":  decimal.NewFromInt(40000),
	}}
	handler := newTestHandler(t, storage.NewMemory(), fetcher)

	req := httptest.NewRequest(http.MethodGet, "/prices/swap-rate?ethAmount=1", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		BTCAmount decimal.Decimal `json:"btcAmount"`
		Fees      struct {
			ETH    decimal.Decimal `json:"eth"`
			Dollar decimal.Decimal `json:"dollar"`
		} `json:"fees"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.BTCAmount.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("expected btcAmount 0.05, got %s", res.BTCAmount)
	}
	if !res.Fees.ETH.Equal(decimal.NewFromFloat(0.03)) || !res.Fees.Dollar.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected fees %+v", res.Fees)
	}
}

func TestSwapRateOracleDown(t *testing.T) {
	handler := newTestHandler(t, storage.NewMemory(), &fixedFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/prices/swap-rate?ethAmount=1", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/prices/swap-rate?ethAmount=-2", nil)
	rec = httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount should be 400, got %d", rec.Code)
	}
}
