package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/tokens"
)

// MoralisOptions parameterise the Moralis token-price fetcher.
type MoralisOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Moralis fetches ERC-20 USD prices from the Moralis Web3 API.
type Moralis struct {
	opts     MoralisOptions
	registry *tokens.Registry
	logger   zerolog.Logger
	client   *http.Client
	baseURL  string
}

// NewMoralis constructs a Moralis price fetcher.
func NewMoralis(opts MoralisOptions, registry *tokens.Registry, logger zerolog.Logger) *Moralis {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://deep-index.moralis.io/api/v2.2"
	}

	return &Moralis{
		opts:     opts,
		registry: registry,
		logger:   logger.With().Str("component", "moralis_fetcher").Logger(),
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
	}
}

// FetchPrice retrieves the current USD price for symbol.
func (m *Moralis) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	token, ok := m.registry.Resolve(symbol)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if m.opts.APIKey == "" {
		return decimal.Decimal{}, errors.New("moralis api key not configured")
	}

	endpoint := fmt.Sprintf("%s/erc20/%s/price?chain=%s", m.baseURL, token.Address, url.QueryEscape(token.Chain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", m.opts.APIKey)
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricewatcher/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, parseHTTPError(resp.StatusCode, payload))
	}

	var priceRes tokenPriceResponse
	if err := json.Unmarshal(payload, &priceRes); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	price := decimal.NewFromFloat(priceRes.USDPrice)
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative usd price for %s", ErrUnavailable, symbol)
	}

	m.logger.Debug().Str("symbol", symbol).Str("usd_price", price.String()).Msg("price fetched")
	return price, nil
}

type tokenPriceResponse struct {
	USDPrice     float64 `json:"usdPrice"`
	TokenSymbol  string  `json:"tokenSymbol"`
	ExchangeName string  `json:"exchangeName"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("moralis api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("moralis api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("moralis api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("moralis api error (%d)", status)
}

var _ PriceFetcher = (*Moralis)(nil)
