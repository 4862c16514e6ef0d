package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferEventPayload is published to RabbitMQ after a transfer mutation
// has been committed.
type TransferEventPayload struct {
	TransferID       uuid.UUID       `json:"transfer_id"`
	UserID           uuid.UUID       `json:"user_id"`
	SavingsAccountID uuid.UUID       `json:"savings_account_id"`
	Type             TransferType    `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        time.Time       `json:"timestamp"`
}

// BalanceRefreshedPayload is published after a savings account's cached
// balance has been recomputed from its transfer history.
type BalanceRefreshedPayload struct {
	SavingsAccountID uuid.UUID       `json:"savings_account_id"`
	CurrentAmount    decimal.Decimal `json:"current_amount"`
	Timestamp        time.Time       `json:"timestamp"`
}

// RefreshRequestedPayload asks the balance-refresh consumer to re-run the
// idempotent recomputation for one account. It is published by tooling or
// sibling services when a cached balance may have gone stale out of band.
type RefreshRequestedPayload struct {
	SavingsAccountID uuid.UUID `json:"savings_account_id"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}
