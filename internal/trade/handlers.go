package trade

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/adapter"
	"github.com/oddsboard/market-engine/internal/ledger"
	"github.com/oddsboard/market-engine/internal/limits"
	"github.com/oddsboard/market-engine/internal/lmsr"
	"github.com/oddsboard/market-engine/internal/market"
	"github.com/oddsboard/market-engine/internal/model"
	"github.com/oddsboard/market-engine/internal/odds"
	"github.com/oddsboard/market-engine/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler exposes a Service over HTTP.
type Handler struct {
	svc *Service
	hub *WSHub
}

// NewHandler creates HTTP handlers for svc. hub may be nil.
func NewHandler(svc *Service, hub *WSHub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// Routes registers the API on r, which is expected to be mounted at
// /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/markets", h.ListMarkets)
	r.Post("/markets", h.CreateMarket)
	r.Get("/markets/trending", h.TrendingMarkets)
	r.Get("/markets/{marketID}", h.GetMarket)
	r.Get("/markets/{marketID}/quote", h.Quote)
	r.Get("/markets/{marketID}/bets", h.ListBets)
	r.Post("/markets/{marketID}/bets", h.PlaceBet)
	r.Post("/markets/{marketID}/sell", h.Sell)
	r.Post("/markets/{marketID}/resolve", h.Resolve)

	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts/{userID}", h.GetAccount)
	r.Get("/users/{userID}/holdings", h.Holdings)
	r.Get("/users/{userID}/profit", h.Profit)
	r.Get("/leaderboard", h.Leaderboard)

	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}
}

// ListMarkets handles GET /api/v1/markets.
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.svc.ListMarkets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

// CreateMarket handles POST /api/v1/markets.
func (h *Handler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req market.Params
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := h.svc.CreateMarket(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// TrendingMarkets handles GET /api/v1/markets/trending?window=24h&limit=10.
func (h *Handler) TrendingMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var window time.Duration
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, "window must be a positive duration such as 24h", http.StatusBadRequest)
			return
		}
		window = d
	}
	var limit int
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	markets, err := h.svc.TrendingMarkets(r.Context(), window, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Quote handles GET /api/v1/markets/{marketID}/quote?side=YES&amount=100.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side, ok := model.ParseSide(q.Get("side"))
	if !ok {
		writeError(w, "side must be YES or NO", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, "amount must be a decimal number", http.StatusBadRequest)
		return
	}
	quote, err := h.svc.Quote(r.Context(), chi.URLParam(r, "marketID"), side, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ListBets handles GET /api/v1/markets/{marketID}/bets.
func (h *Handler) ListBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.svc.MarketBets(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

// PlaceBet handles POST /api/v1/markets/{marketID}/bets.
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBetRequest(w, r)
	if !ok {
		return
	}
	res, err := h.svc.PlaceBet(r.Context(), chi.URLParam(r, "marketID"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Sell handles POST /api/v1/markets/{marketID}/sell. Amount is the value
// to sell, always positive.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBetRequest(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Sell(r.Context(), chi.URLParam(r, "marketID"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve handles POST /api/v1/markets/{marketID}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome, ok := model.ParseSide(req.Outcome)
	if !ok {
		writeError(w, "outcome must be YES or NO", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "marketID"), outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type accountRequest struct {
	UserID  string           `json:"user_id"`
	Balance *decimal.Decimal `json:"balance"`
}

// CreateAccount handles POST /api/v1/accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	a, err := h.svc.CreateAccount(r.Context(), req.UserID, req.Balance)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAccount handles GET /api/v1/accounts/{userID}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAccount(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Holdings handles GET /api/v1/users/{userID}/holdings.
func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.Holdings(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// Profit handles GET /api/v1/users/{userID}/profit.
func (h *Handler) Profit(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Profit(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Leaderboard handles GET /api/v1/leaderboard.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Leaderboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// fail maps a service error to a status code. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, market.ErrMarketClosed),
		errors.Is(err, ledger.ErrOverSell),
		errors.Is(err, limits.ErrInsufficientBalance),
		errors.Is(err, limits.ErrPerMarketLimitExceeded),
		errors.Is(err, limits.ErrTotalLimitExceeded),
		errors.Is(err, lmsr.ErrPriceBoundExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, adapter.ErrInvalidPayload),
		errors.Is(err, market.ErrInvalidMarket),
		errors.Is(err, odds.ErrInvalidAmount),
		errors.Is(err, odds.ErrInvalidSide),
		errors.Is(err, odds.ErrInvalidOdds):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeBetRequest(w http.ResponseWriter, r *http.Request) (adapter.BetRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return adapter.BetRequest{}, false
	}
	req, err := adapter.DecodeBetRequest(body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return adapter.BetRequest{}, false
	}
	return req, true
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
