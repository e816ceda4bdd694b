package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/oracle"
)

// SwapQuote is a point-in-time conversion estimate between the base and
// quote assets. Fees are charged on the input amount.
type SwapQuote struct {
	ConvertedAmount decimal.Decimal
	FeeBase         decimal.Decimal
	FeeUSD          decimal.Decimal
}

// SwapQuoter derives cross-asset quotes from two independent price fetches.
// The fetches are not atomic; both are assumed close enough in time.
type SwapQuoter struct {
	fetcher     oracle.PriceFetcher
	baseSymbol  string
	quoteSymbol string
	feePct      decimal.Decimal
	logger      zerolog.Logger
}

// NewSwapQuoter constructs a quoter for the configured asset pair.
func NewSwapQuoter(fetcher oracle.PriceFetcher, baseSymbol, quoteSymbol string, feePct decimal.Decimal, logger zerolog.Logger) *SwapQuoter {
	return &SwapQuoter{
		fetcher:     fetcher,
		baseSymbol:  baseSymbol,
		quoteSymbol: quoteSymbol,
		feePct:      feePct,
		logger:      logger.With().Str("component", "swap").Logger(),
	}
}

// Quote converts amount of the base asset into the quote asset. Either
// fetch failing fails the whole quote; there is no partial result.
func (q *SwapQuoter) Quote(ctx context.Context, amount decimal.Decimal) (SwapQuote, error) {
	basePrice, err := q.fetcher.FetchPrice(ctx, q.baseSymbol)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("fetch %s price: %w", q.baseSymbol, err)
	}

	quotePrice, err := q.fetcher.FetchPrice(ctx, q.quoteSymbol)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("fetch %s price: %w", q.quoteSymbol, err)
	}
	if quotePrice.IsZero() {
		return SwapQuote{}, fmt.Errorf("%w: zero %s price", oracle.ErrUnavailable, q.quoteSymbol)
	}

	converted := amount.Mul(basePrice).Div(quotePrice)
	feeBase := amount.Mul(q.feePct)
	feeUSD := feeBase.Mul(basePrice)

	q.logger.Debug().
		Str("amount", amount.String()).
		Str("converted", converted.String()).
		Str("fee_base", feeBase.String()).
		Msg("swap quote computed")

	return SwapQuote{
		ConvertedAmount: converted,
		FeeBase:         feeBase,
		FeeUSD:          feeUSD,
	}, nil
}
