package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

type transactionReader interface {
	GetByOrderID(ctx context.Context, orderID string) (*payments.Transaction, error)
}

// AdminPaymentsHandler lets operators look up a transaction by gateway order.
type AdminPaymentsHandler struct {
	transactions transactionReader
	logger       *logging.Logger
}

// NewAdminPaymentsHandler panics on a nil reader.
func NewAdminPaymentsHandler(transactions transactionReader, logger *logging.Logger) *AdminPaymentsHandler {
	if transactions == nil {
		panic("handlers: transaction reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminPaymentsHandler{transactions: transactions, logger: logger}
}

// GetTransaction handles GET /admin/payments/{orderID}.
func (h *AdminPaymentsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		jsonError(w, "order id is required", http.StatusBadRequest)
		return
	}
	tx, err := h.transactions.GetByOrderID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			jsonError(w, "transaction not found", http.StatusNotFound)
			return
		}
		h.logger.Error("admin: load transaction", "order_id", orderID, "error", err)
		jsonError(w, "failed to load transaction", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin viewed transaction", "order_id", orderID, "operator", operator(r))
	writeJSON(w, http.StatusOK, tx)
}
