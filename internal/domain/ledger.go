/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests and database models keeps the web
 *   layer and the persistence layer decoupled.
 * - Amounts use shopspring/decimal to avoid floating-point inaccuracies with
 *   financial data; they map to NUMERIC columns in Postgres.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferType distinguishes deposits into a savings account from withdrawals
// back to the main account.
type TransferType string

const (
	TransferToSavings   TransferType = "TO_SAVINGS"
	TransferFromSavings TransferType = "FROM_SAVINGS"
)

// Valid reports whether t is one of the two enumerated transfer types.
func (t TransferType) Valid() bool {
	return t == TransferToSavings || t == TransferFromSavings
}

// SavingsAccount represents a named savings bucket. `CurrentAmount` is a
// cached value derived from the account's transfer history; the transfer
// history plus `InitialBalance` is the source of truth.
type SavingsAccount struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"user_id"`
	Name           string           `json:"name"`
	Description    *string          `json:"description,omitempty"`
	TargetAmount   *decimal.Decimal `json:"target_amount,omitempty"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	CurrentAmount  decimal.Decimal  `json:"current_amount"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Transfer is a movement of funds between a user's main account and one of
// their savings accounts. This struct maps directly to the `transfers` table.
type Transfer struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	SavingsAccountID uuid.UUID       `json:"savings_account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Description      *string         `json:"description,omitempty"`
	Date             time.Time       `json:"date"`
	Type             TransferType    `json:"type"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// SavingsAccountName is resolved on reads for display purposes and is not
	// a column of the transfers table.
	SavingsAccountName string `json:"savings_account_name,omitempty"`
}

// Signed returns the transfer amount with its sign relative to the savings
// account: positive for deposits, negative for withdrawals.
func (t *Transfer) Signed() decimal.Decimal {
	if t.Type == TransferFromSavings {
		return t.Amount.Neg()
	}
	return t.Amount
}

// CreateTransferRequest is the DTO for incoming transfer creation requests.
// Amount arrives as a string so that clients cannot smuggle float rounding
// into monetary values.
type CreateTransferRequest struct {
	Amount           string     `json:"amount"`
	Description      *string    `json:"description,omitempty"`
	Date             *time.Time `json:"date,omitempty"`
	Type             string     `json:"type"`
	SavingsAccountID string     `json:"savings_account_id"`
}

// UpdateTransferRequest carries a partial update; only non-nil fields
// overwrite the stored transfer.
type UpdateTransferRequest struct {
	Amount      *string    `json:"amount,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Type        *string    `json:"type,omitempty"`
}

// TransferFilters narrows GetUserTransfers results. All fields are optional
// and combine with AND semantics; the date bounds are inclusive.
type TransferFilters struct {
	StartDate        *time.Time
	EndDate          *time.Time
	SavingsAccountID *uuid.UUID
	Type             *TransferType
}

// CreateSavingsAccountRequest is the DTO for creating a savings account.
type CreateSavingsAccountRequest struct {
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	TargetAmount   *string `json:"target_amount,omitempty"`
	InitialBalance *string `json:"initial_balance,omitempty"`
}

// MainAccountBalance is the on-demand computed balance of the user's implicit
// main account. Unlike a savings balance it may legitimately be negative.
type MainAccountBalance struct {
	Balance decimal.Decimal `json:"balance"`
}
