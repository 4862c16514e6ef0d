package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one entry of the user's main-account log. Positive amounts
// are income, negative amounts are expenses; the main-account balance is the
// plain sum of these, adjusted by savings transfers.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	CategoryID  *uuid.UUID      `json:"category_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateTransactionRequest is the DTO for logging an income or expense.
type CreateTransactionRequest struct {
	Amount      string     `json:"amount"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	CategoryID  *string    `json:"category_id,omitempty"`
}
