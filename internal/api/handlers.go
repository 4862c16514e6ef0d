/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cashtrack/ledger-service/internal/app"
	"github.com/cashtrack/ledger-service/internal/domain"
	"github.com/cashtrack/ledger-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// mapLedgerError translates service and store errors into an HTTP status and
// a client-safe message. Unexpected errors collapse to a generic 500; the
// caller is responsible for logging those with full detail.
func mapLedgerError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrMissingRequiredFields),
		errors.Is(err, app.ErrNonPositiveAmount),
		errors.Is(err, app.ErrInvalidTransferType),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrZeroAmount),
		errors.Is(err, app.ErrAccountNameRequired),
		errors.Is(err, app.ErrNegativeInitialBalance),
		errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotAccountOwner):
		return http.StatusForbidden, "You do not have access to this resource."
	case errors.Is(err, store.ErrSavingsAccountNotFound):
		return http.StatusNotFound, "Savings account not found."
	case errors.Is(err, store.ErrTransferNotFound):
		return http.StatusNotFound, "Transfer not found."
	case errors.Is(err, store.ErrTransactionNotFound):
		return http.StatusNotFound, "Transaction not found."
	case errors.Is(err, app.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests. Please try again later."
	}
	return http.StatusInternalServerError, "Could not process request."
}

// CreateTransferHandler handles POST /transfers.
func (h *LedgerHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	transfer, err := h.service.CreateTransfer(r.Context(), userID, req)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=create_transfer outcome=failed user_id=%s err=%v", userID, err)
		}
		h.writeRateLimitHeader(w, err)
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, transfer)
}

// ListTransfersHandler handles GET /transfers. Optional query parameters
// startDate, endDate, savingsAccountId and type narrow the result set.
func (h *LedgerHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	filters, err := parseTransferFilters(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transfers, err := h.service.GetUserTransfers(r.Context(), userID, filters)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transfers outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transfers.")
		return
	}

	h.writeJSON(w, http.StatusOK, transfers)
}

// UpdateTransferHandler handles PUT /transfers/{id}.
func (h *LedgerHandlers) UpdateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Transfer not found.")
		return
	}

	var req domain.UpdateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	transfer, err := h.service.UpdateTransfer(r.Context(), userID, transferID, req)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=update_transfer outcome=failed user_id=%s transfer_id=%s err=%v", userID, transferID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// DeleteTransferHandler handles DELETE /transfers/{id}.
func (h *LedgerHandlers) DeleteTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Transfer not found.")
		return
	}

	if err := h.service.DeleteTransfer(r.Context(), userID, transferID); err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=delete_transfer outcome=failed user_id=%s transfer_id=%s err=%v", userID, transferID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// CreateSavingsAccountHandler handles POST /savings-accounts.
func (h *LedgerHandlers) CreateSavingsAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.CreateSavingsAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	account, err := h.service.CreateSavingsAccount(r.Context(), userID, req)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=create_savings_account outcome=failed user_id=%s err=%v", userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// ListSavingsAccountsHandler handles GET /savings-accounts.
func (h *LedgerHandlers) ListSavingsAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	accounts, err := h.service.ListSavingsAccounts(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_savings_accounts outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve savings accounts.")
		return
	}

	h.writeJSON(w, http.StatusOK, accounts)
}

// GetSavingsAccountHandler handles GET /savings-accounts/{id}.
func (h *LedgerHandlers) GetSavingsAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Savings account not found.")
		return
	}

	account, err := h.service.GetSavingsAccount(r.Context(), userID, accountID)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_savings_account outcome=failed user_id=%s account_id=%s err=%v", userID, accountID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// DeleteSavingsAccountHandler handles DELETE /savings-accounts/{id}.
func (h *LedgerHandlers) DeleteSavingsAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Savings account not found.")
		return
	}

	if err := h.service.DeleteSavingsAccount(r.Context(), userID, accountID); err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=delete_savings_account outcome=failed user_id=%s account_id=%s err=%v", userID, accountID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// CreateTransactionHandler handles POST /transactions.
func (h *LedgerHandlers) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	tx, err := h.service.CreateTransaction(r.Context(), userID, req)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=create_transaction outcome=failed user_id=%s err=%v", userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

// ListTransactionsHandler handles GET /transactions.
func (h *LedgerHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transactions.")
		return
	}

	h.writeJSON(w, http.StatusOK, txs)
}

// DeleteTransactionHandler handles DELETE /transactions/{id}.
func (h *LedgerHandlers) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Transaction not found.")
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), userID, transactionID); err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=delete_transaction outcome=failed user_id=%s transaction_id=%s err=%v", userID, transactionID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// MainAccountBalanceHandler handles GET /balance. The balance is computed
// on demand from the user's transactions and transfers.
func (h *LedgerHandlers) MainAccountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	balance, err := h.service.CalculateMainAccountBalance(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=main_account_balance outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not calculate balance.")
		return
	}

	h.writeJSON(w, http.StatusOK, domain.MainAccountBalance{Balance: balance})
}

// parseTransferFilters reads the optional list filters from the query string.
// Dates accept RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseTransferFilters(r *http.Request) (domain.TransferFilters, error) {
	var filters domain.TransferFilters
	q := r.URL.Query()

	if raw := q.Get("startDate"); raw != "" {
		t, err := parseDateParam(raw)
		if err != nil {
			return filters, errors.New("invalid startDate")
		}
		filters.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := parseDateParam(raw)
		if err != nil {
			return filters, errors.New("invalid endDate")
		}
		filters.EndDate = &t
	}
	if raw := q.Get("savingsAccountId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, errors.New("invalid savingsAccountId")
		}
		filters.SavingsAccountID = &id
	}
	if raw := q.Get("type"); raw != "" {
		t := domain.TransferType(raw)
		if !t.Valid() {
			return filters, errors.New("invalid type")
		}
		filters.Type = &t
	}

	return filters, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// writeRateLimitHeader sets Retry-After when the error is a rate-limit
// rejection carrying a retry hint.
func (h *LedgerHandlers) writeRateLimitHeader(w http.ResponseWriter, err error) {
	var rle *app.RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
	}
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
