/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Transfer endpoints
		r.Post("/transfers", h.CreateTransferHandler)
		r.Get("/transfers", h.ListTransfersHandler)
		r.Put("/transfers/{id}", h.UpdateTransferHandler)
		r.Delete("/transfers/{id}", h.DeleteTransferHandler)

		// Savings account endpoints
		r.Post("/savings-accounts", h.CreateSavingsAccountHandler)
		r.Get("/savings-accounts", h.ListSavingsAccountsHandler)
		r.Get("/savings-accounts/{id}", h.GetSavingsAccountHandler)
		r.Delete("/savings-accounts/{id}", h.DeleteSavingsAccountHandler)

		// Transaction endpoints
		r.Post("/transactions", h.CreateTransactionHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Delete("/transactions/{id}", h.DeleteTransactionHandler)

		// Main account balance
		r.Get("/balance", h.MainAccountBalanceHandler)
	})

	return r
}
