package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/oracle"
)

func TestSwapQuoteNumbers(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("ethereum", decimal.NewFromInt(2000))
	fetcher.set("bitcoin", decimal.NewFromInt(40000))

	quoter := NewSwapQuoter(fetcher, "ethereum", "bitcoin", decimal.NewFromFloat(0.03), zerolog.Nop())
	quote, err := quoter.Quote(context.Background(), decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if !quote.ConvertedAmount.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("expected converted 0.05, got %s", quote.ConvertedAmount)
	}
	if !quote.FeeBase.Equal(decimal.NewFromFloat(0.03)) {
		t.Fatalf("expected fee 0.03 ETH, got %s", quote.FeeBase)
	}
	if !quote.FeeUSD.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected fee $60, got %s", quote.FeeUSD)
	}
}

func TestSwapQuoteFailsWhenEitherFetchFails(t *testing.T) {
	for _, broken := range []string{"ethereum", "bitcoin"} {
		fetcher := newStubFetcher()
		fetcher.set("ethereum", decimal.NewFromInt(2000))
		fetcher.set("bitcoin", decimal.NewFromInt(40000))
		fetcher.fail(broken, fmt.Errorf("%w: offline", oracle.ErrUnavailable))

		quoter := NewSwapQuoter(fetcher, "ethereum", "bitcoin", decimal.NewFromFloat(0.03), zerolog.Nop())
		_, err := quoter.Quote(context.Background(), decimal.NewFromInt(1))
		if !errors.Is(err, oracle.ErrUnavailable) {
			t.Fatalf("broken %s: expected ErrUnavailable, got %v", broken, err)
		}
	}
}

func TestSwapQuoteZeroQuotePrice(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set("ethereum", decimal.NewFromInt(2000))
	fetcher.set("bitcoin", decimal.Zero)

	quoter := NewSwapQuoter(fetcher, "ethereum", "bitcoin", decimal.NewFromFloat(0.03), zerolog.Nop())
	if _, err := quoter.Quote(context.Background(), decimal.NewFromInt(1)); err == nil {
		t.Fatal("zero quote price must not divide")
	}
}
