package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/service"
	"price-track-alerts/internal/storage"
	"price-track-alerts/internal/tokens"
)

// Handler serves the alert and price endpoints.
type Handler struct {
	alerts   *service.Alerts
	samples  storage.SampleStore
	quoter   *service.SwapQuoter
	registry *tokens.Registry
	logger   zerolog.Logger
}

// NewHandler wires the services behind the HTTP surface.
func NewHandler(alerts *service.Alerts, samples storage.SampleStore, quoter *service.SwapQuoter, registry *tokens.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		alerts:   alerts,
		samples:  samples,
		quoter:   quoter,
		registry: registry,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the endpoint mux.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /alerts", h.CreateAlert)
	mux.HandleFunc("GET /prices/hourly", h.HourlyPrices)
	mux.HandleFunc("GET /prices/swap-rate", h.SwapRate)
	mux.HandleFunc("GET /healthz", h.Health)
	return mux
}

type createAlertRequest struct {
	Chain       string          `json:"chain"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
	Email       string          `json:"email"`
}

type alertResponse struct {
	ID          int64           `json:"id"`
	Chain       string          `json:"chain"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
	Email       string          `json:"email"`
	Triggered   bool            `json:"triggered"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CreateAlert registers a target-price alert.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chain := strings.ToLower(strings.TrimSpace(req.Chain))
	if _, ok := h.registry.Resolve(chain); !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain")
		return
	}
	if req.TargetPrice.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "targetPrice must be positive")
		return
	}
	if !plausibleEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}

	alert, err := h.alerts.Create(r.Context(), chain, req.TargetPrice, req.Email)
	if err != nil {
		h.logger.Error().Err(err).Str("chain", chain).Msg("failed to create alert")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, alertResponse{
		ID:          alert.ID,
		Chain:       alert.Symbol,
		TargetPrice: alert.TargetPrice,
		Email:       alert.Email,
		Triggered:   alert.Triggered,
		CreatedAt:   alert.CreatedAt,
	})
}

type priceResponse struct {
	ID        int64           `json:"id"`
	Chain     string          `json:"chain"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// HourlyPrices returns the last 24 hours of samples, newest first.
func (h *Handler) HourlyPrices(w http.ResponseWriter, r *http.Request) {
	chain := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("chain")))
	if chain == "" {
		writeError(w, http.StatusBadRequest, "chain is required")
		return
	}
	if _, ok := h.registry.Resolve(chain); !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain")
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	samples, err := h.samples.RecentSamples(r.Context(), chain, since)
	if err != nil {
		h.logger.Error().Err(err).Str("chain", chain).Msg("failed to list samples")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]priceResponse, 0, len(samples))
	for _, sample := range samples {
		out = append(out, priceResponse{
			ID:        sample.ID,
			Chain:     sample.Symbol,
			Price:     sample.Price,
			Timestamp: sample.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type swapRateResponse struct {
	BTCAmount decimal.Decimal `json:"btcAmount"`
	Fees      swapFees        `json:"fees"`
}

type swapFees struct {
	ETH    decimal.Decimal `json:"eth"`
	Dollar decimal.Decimal `json:"dollar"`
}

// SwapRate quotes an ETH to BTC conversion.
func (h *Handler) SwapRate(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ethAmount"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ethAmount is required")
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "ethAmount must be a positive number")
		return
	}

	quote, err := h.quoter.Quote(r.Context(), amount)
	if err != nil {
		if errors.Is(err, oracle.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "unable to calculate swap rate")
			return
		}
		h.logger.Error().Err(err).Msg("swap quote failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, swapRateResponse{
		BTCAmount: quote.ConvertedAmount,
		Fees: swapFees{
			ETH:    quote.FeeBase,
			Dollar: quote.FeeUSD,
		},
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func plausibleEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\n")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
