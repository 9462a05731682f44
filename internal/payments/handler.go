package payments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// Handler exposes order creation and checkout verification.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateOrder handles POST /payments/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	resp, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Verify handles POST /payments/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	tx, err := h.service.Verify(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":    true,
		"transaction": tx,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		writeJSON(w, http.StatusBadRequest, map[string]any{"verified": false, "error": "payment verification failed"})
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrTransactionNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, ErrGatewayFailure):
		h.logger.Error("payment gateway error", "error", err)
		http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("payment request failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
