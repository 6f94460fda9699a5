package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack-api/internal/auth"
	"github.com/fintrackhq/fintrack-api/internal/httputil"
	"github.com/fintrackhq/fintrack-api/internal/logging"
)

// Handler contains HTTP handlers for ledger and dashboard endpoints
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// CreateTransactionRequest represents the transaction creation body. Pointers
// distinguish missing fields from zero values.
type CreateTransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	Category    string           `json:"category"`
}

// CreateTransactionResponse carries the new record and the post-update balance
type CreateTransactionResponse struct {
	Transaction *Transaction    `json:"transaction"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

// DeleteTransactionResponse carries the post-update balance
type DeleteTransactionResponse struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// List handles transaction listing
// @Summary      List transactions
// @Description  List the authenticated user's transactions, newest first, with optional category/type filters
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Page size (default 50)"
// @Param        offset query int false "Page offset (default 0)"
// @Param        category query string false "Exact category filter"
// @Param        type query string false "Exact type filter (income or expense)"
// @Success      200 {array} Transaction
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Router       /api/transactions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	opts := ListOptions{
		Limit:    parseIntQuery(r, "limit", defaultListLimit),
		Offset:   parseIntQuery(r, "offset", 0),
		Category: r.URL.Query().Get("category"),
		Type:     r.URL.Query().Get("type"),
	}

	txs, err := h.service.List(r.Context(), userID, opts)
	if err != nil {
		logger.Error("failed to list transactions", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to list transactions", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, txs, http.StatusOK)
}

// Create handles transaction creation
// @Summary      Create a transaction
// @Description  Append an income or expense record to the ledger and return the updated balance
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateTransactionRequest true "Transaction details"
// @Success      201 {object} CreateTransactionResponse
// @Failure      400 {object} ErrorResponse "Missing field, invalid amount, or invalid type"
// @Failure      500 {object} ErrorResponse "Internal error or balance reconciliation failure"
// @Router       /api/transactions [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid create transaction request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if req.Amount == nil {
		respondMissingField(w, "amount")
		return
	}
	if req.Description == nil {
		respondMissingField(w, "description")
		return
	}
	if req.Type == nil {
		respondMissingField(w, "type")
		return
	}

	tx, newBalance, err := h.service.Append(r.Context(), userID, *req.Amount, *req.Description, Type(*req.Type), req.Category)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			logger.Warn("create transaction failed: invalid amount")
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidAmount, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidType):
			logger.Warn("create transaction failed: invalid type", "type", *req.Type)
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidType, http.StatusBadRequest)
		case errors.Is(err, ErrBalanceReconciliation):
			logger.Error("create transaction: balance reconciliation failed", "transaction_id", tx.ID, "error", err.Error())
			httputil.RespondErrorWithCode(w, "transaction recorded but balance update failed", httputil.CodeBalanceReconciliation, http.StatusInternalServerError)
		default:
			logger.Error("create transaction failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to create transaction", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("transaction created", "transaction_id", tx.ID, "type", tx.Type, "amount", tx.Amount)

	httputil.RespondJSON(w, CreateTransactionResponse{
		Transaction: tx,
		NewBalance:  newBalance,
	}, http.StatusCreated)
}

// Delete handles transaction removal
// @Summary      Delete a transaction
// @Description  Remove a transaction from the ledger and reverse its contribution to the balance
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Transaction ID"
// @Success      200 {object} DeleteTransactionResponse
// @Failure      404 {object} ErrorResponse "Transaction not found"
// @Failure      500 {object} ErrorResponse "Internal error or balance reconciliation failure"
// @Router       /api/transactions/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// An unparseable id can't name an existing transaction
		httputil.RespondErrorWithCode(w, "transaction not found", httputil.CodeTransactionNotFound, http.StatusNotFound)
		return
	}

	tx, newBalance, err := h.service.Remove(r.Context(), userID, transactionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Warn("delete transaction failed: not found", "transaction_id", transactionID)
			httputil.RespondErrorWithCode(w, "transaction not found", httputil.CodeTransactionNotFound, http.StatusNotFound)
		case errors.Is(err, ErrBalanceReconciliation):
			logger.Error("delete transaction: balance reconciliation failed", "transaction_id", transactionID, "error", err.Error())
			httputil.RespondErrorWithCode(w, "transaction deleted but balance update failed", httputil.CodeBalanceReconciliation, http.StatusInternalServerError)
		default:
			logger.Error("delete transaction failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to delete transaction", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("transaction deleted", "transaction_id", tx.ID)

	httputil.RespondJSON(w, DeleteTransactionResponse{
		Message:    "Transaction deleted",
		NewBalance: newBalance,
	}, http.StatusOK)
}

// GetDashboard handles the dashboard summary
// @Summary      Dashboard summary
// @Description  Cached balance, five most recent transactions, and month-to-date totals
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} Dashboard
// @Failure      401 {object} ErrorResponse "Unauthorized"
// @Router       /api/dashboard [get]
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	dashboard, err := h.service.GetDashboard(r.Context(), userID)
	if err != nil {
		logger.Error("failed to build dashboard", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to build dashboard", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, dashboard, http.StatusOK)
}

func respondMissingField(w http.ResponseWriter, field string) {
	httputil.RespondErrorWithCode(w, fmt.Sprintf("missing field: %s", field), httputil.CodeMissingField, http.StatusBadRequest)
}

func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
