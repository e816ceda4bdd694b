package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedSymbol indicates the symbol does not resolve in the token
	// registry. Returned before any network call is made.
	ErrUnsupportedSymbol = errors.New("oracle: unsupported symbol")

	// ErrUnavailable wraps transport or provider failures. Callers treat it as
	// transient and must not let one symbol's failure abort a cycle.
	ErrUnavailable = errors.New("oracle: price source unavailable")
)

// PriceFetcher retrieves the current USD price for a tracked symbol.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
