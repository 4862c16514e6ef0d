/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For monetary amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Savings account methods
	FindSavingsAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.SavingsAccount, error)
	FindSavingsAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.SavingsAccount, error)
	CreateSavingsAccount(ctx context.Context, account *domain.SavingsAccount) error
	DeleteSavingsAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) (bool, error)

	// RefreshSavingsAccountBalance recomputes the cached balance from the
	// account's full transfer history in a single statement and returns the
	// stored value. Idempotent.
	RefreshSavingsAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// Transfer methods. The guarded mutations each run inside one database
	// transaction that locks the savings-account row before touching the
	// transfer history, so two concurrent withdrawals cannot both pass the
	// balance check. Each returns the refreshed balance of the affected
	// account alongside its primary result.
	CreateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error)
	UpdateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error)
	DeleteTransferGuarded(ctx context.Context, transferID uuid.UUID) (uuid.UUID, decimal.Decimal, error)
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error)
	FindTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error)
	FindTransfersByUser(ctx context.Context, userID uuid.UUID, filters domain.TransferFilters) ([]domain.Transfer, error)

	// Transaction (main account) methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID) (bool, error)
}
