package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gamesync-backend/internal/auth"
	"github.com/gamesync-backend/internal/domain"
	"github.com/gamesync-backend/internal/service"
	"github.com/gamesync-backend/internal/websocket"
)

// Handler provides HTTP handlers for the sync and wallet API
type Handler struct {
	sync     *service.SyncService
	wallet   *service.WalletService
	verifier *auth.Verifier
	hub      *websocket.Hub
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sync *service.SyncService, wallet *service.WalletService, verifier *auth.Verifier, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		sync:     sync,
		wallet:   wallet,
		verifier: verifier,
		hub:      hub,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MergeRequest carries the client-submitted partial document
type MergeRequest struct {
	Data map[string]any `json:"data"`
}

// PurchaseRequest carries a store purchase to credit
type PurchaseRequest struct {
	ProductID     string `json:"product_id"`
	PurchaseToken string `json:"purchase_token"`
}

// SpendRequest carries a coin debit
type SpendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Middleware)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/snapshot", h.GetSnapshot)
			r.Post("/merge", h.MergeSnapshot)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Post("/purchase", h.CreditPurchase)
			r.Post("/spend", h.Spend)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps a domain error to its stable machine-readable code.
// Internal detail never reaches the caller.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientBalanceError
	switch {
	case domain.IsInvalidInput(err):
		h.writeJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Code:    "invalid_input",
			Error:   err.Error(),
		})
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeJSON(w, http.StatusUnauthorized, APIResponse{
			Success: false,
			Code:    "unauthorized",
			Error:   err.Error(),
		})
	case domain.IsConflict(err):
		h.writeJSON(w, http.StatusConflict, APIResponse{
			Success: false,
			Code:    "purchase_conflict",
			Error:   err.Error(),
		})
	case errors.As(err, &insufficient):
		h.writeJSON(w, http.StatusConflict, APIResponse{
			Success: false,
			Code:    "insufficient_balance",
			Error:   insufficient.Error(),
			Data:    map[string]int64{"balance": insufficient.Balance},
		})
	case errors.Is(err, domain.ErrVerificationFailed):
		h.writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Success: false,
			Code:    "verification_failed",
			Error:   err.Error(),
		})
	default:
		h.logger.Error("request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Code:    "internal_error",
			Error:   domain.ErrInternalError.Error(),
		})
	}
}

// playerID extracts the authenticated player from the request context
func (h *Handler) playerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	playerID, ok := auth.PlayerFromContext(r.Context())
	if !ok {
		h.writeError(w, domain.ErrUnauthorized)
		return 0, false
	}
	return playerID, true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetSnapshot returns the player's stored document
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.sync.GetSnapshot(r.Context(), playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, snapshot)
}

// MergeSnapshot merges a client-submitted document into the stored one
func (h *Handler) MergeSnapshot(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidDocument)
		return
	}
	if req.Data == nil {
		h.writeError(w, domain.ErrInvalidDocument)
		return
	}

	snapshot, err := h.sync.MergeSnapshot(r.Context(), playerID, req.Data)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, snapshot)
}

// GetBalance returns the player's coin balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, map[string]int64{"balance": balance})
}

// CreditPurchase verifies a purchase token and credits coins
func (h *Handler) CreditPurchase(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidPurchaseToken)
		return
	}

	result, err := h.wallet.CreditFromPurchase(r.Context(), playerID, req.ProductID, req.PurchaseToken)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// Spend debits coins from the player's balance
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}

	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidAmount)
		return
	}

	result, err := h.wallet.Debit(r.Context(), playerID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, result)
}
