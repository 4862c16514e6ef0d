/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL queries for savings accounts, transfers, and main-account
 * transactions. The balance-critical transfer mutations live in
 * postgres_repository_guard.go.
 *
 * @dependencies
 * - context, errors, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Monetary amounts (NUMERIC columns).
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/ledger-service/internal/domain"
)

var (
	ErrSavingsAccountNotFound = errors.New("savings account not found")
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrNotAccountOwner        = errors.New("not authorized for this account")
	ErrInsufficientFunds      = errors.New("insufficient funds")
)

// InsufficientBalanceError reports a rejected withdrawal together with the
// balance that was available at the time of the check. It matches
// ErrInsufficientFunds under errors.Is.
type InsufficientBalanceError struct {
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance, available: %s", e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// signedTransferSum is the SQL expression deriving a savings balance delta
// from the transfer history: deposits add, withdrawals subtract.
const signedTransferSum = `COALESCE(SUM(CASE WHEN type = 'TO_SAVINGS' THEN amount ELSE -amount END), 0)`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same helpers
// can run inside or outside an explicit transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// FindSavingsAccountByID retrieves a savings account regardless of owner.
// Ownership checks are the caller's concern.
func (r *PostgresRepository) FindSavingsAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.SavingsAccount, error) {
	return findSavingsAccount(ctx, r.db, accountID, false)
}

func findSavingsAccount(ctx context.Context, q querier, accountID uuid.UUID, forUpdate bool) (*domain.SavingsAccount, error) {
	query := `
		SELECT id, user_id, name, description, target_amount, initial_balance, current_amount, created_at, updated_at
		FROM savings_accounts
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var account domain.SavingsAccount
	var target decimal.NullDecimal
	err := q.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.UserID, &account.Name, &account.Description,
		&target, &account.InitialBalance, &account.CurrentAmount,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSavingsAccountNotFound
		}
		return nil, err
	}
	if target.Valid {
		account.TargetAmount = &target.Decimal
	}
	return &account, nil
}

// FindSavingsAccountsByUserID retrieves all savings accounts owned by a user.
func (r *PostgresRepository) FindSavingsAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.SavingsAccount, error) {
	query := `
		SELECT id, user_id, name, description, target_amount, initial_balance, current_amount, created_at, updated_at
		FROM savings_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.SavingsAccount
	for rows.Next() {
		var account domain.SavingsAccount
		var target decimal.NullDecimal
		err := rows.Scan(
			&account.ID, &account.UserID, &account.Name, &account.Description,
			&target, &account.InitialBalance, &account.CurrentAmount,
			&account.CreatedAt, &account.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if target.Valid {
			account.TargetAmount = &target.Decimal
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// CreateSavingsAccount inserts a new savings account row. The cached balance
// starts at the initial balance since there is no history yet.
func (r *PostgresRepository) CreateSavingsAccount(ctx context.Context, account *domain.SavingsAccount) error {
	query := `
		INSERT INTO savings_accounts (id, user_id, name, description, target_amount, initial_balance, current_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING current_amount, created_at, updated_at
	`
	var target decimal.NullDecimal
	if account.TargetAmount != nil {
		target = decimal.NullDecimal{Decimal: *account.TargetAmount, Valid: true}
	}
	return r.db.QueryRow(ctx, query,
		account.ID, account.UserID, account.Name, account.Description, target, account.InitialBalance,
	).Scan(&account.CurrentAmount, &account.CreatedAt, &account.UpdatedAt)
}

// DeleteSavingsAccount deletes an account owned by the given user. The
// transfers referencing it are removed by the ON DELETE CASCADE constraint.
func (r *PostgresRepository) DeleteSavingsAccount(ctx context.Context, accountID uuid.UUID, userID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM savings_accounts WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// FindTransferByID retrieves a transfer together with its account name.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	query := `
		SELECT t.id, t.user_id, t.savings_account_id, t.amount, t.description, t.date, t.type,
		       t.created_at, t.updated_at, sa.name
		FROM transfers t
		JOIN savings_accounts sa ON sa.id = t.savings_account_id
		WHERE t.id = $1
	`
	var transfer domain.Transfer
	err := r.db.QueryRow(ctx, query, transferID).Scan(
		&transfer.ID, &transfer.UserID, &transfer.SavingsAccountID, &transfer.Amount,
		&transfer.Description, &transfer.Date, &transfer.Type,
		&transfer.CreatedAt, &transfer.UpdatedAt, &transfer.SavingsAccountName,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &transfer, nil
}

// FindTransfersByAccount retrieves the full transfer history of one account.
// Order does not matter for balance derivation, but date descending keeps the
// result directly usable for display.
func (r *PostgresRepository) FindTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error) {
	query := `
		SELECT t.id, t.user_id, t.savings_account_id, t.amount, t.description, t.date, t.type,
		       t.created_at, t.updated_at, sa.name
		FROM transfers t
		JOIN savings_accounts sa ON sa.id = t.savings_account_id
		WHERE t.savings_account_id = $1
		ORDER BY t.date DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// FindTransfersByUser retrieves a user's transfers with optional AND-combined
// filters; date bounds are inclusive and results are ordered by date descending.
func (r *PostgresRepository) FindTransfersByUser(ctx context.Context, userID uuid.UUID, filters domain.TransferFilters) ([]domain.Transfer, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT t.id, t.user_id, t.savings_account_id, t.amount, t.description, t.date, t.type,
		       t.created_at, t.updated_at, sa.name
		FROM transfers t
		JOIN savings_accounts sa ON sa.id = t.savings_account_id
		WHERE t.user_id = $1
	`)
	args := []any{userID}

	if filters.StartDate != nil {
		args = append(args, *filters.StartDate)
		fmt.Fprintf(&sb, " AND t.date >= $%d", len(args))
	}
	if filters.EndDate != nil {
		args = append(args, *filters.EndDate)
		fmt.Fprintf(&sb, " AND t.date <= $%d", len(args))
	}
	if filters.SavingsAccountID != nil {
		args = append(args, *filters.SavingsAccountID)
		fmt.Fprintf(&sb, " AND t.savings_account_id = $%d", len(args))
	}
	if filters.Type != nil {
		args = append(args, string(*filters.Type))
		fmt.Fprintf(&sb, " AND t.type = $%d", len(args))
	}
	sb.WriteString(" ORDER BY t.date DESC")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

func scanTransfers(rows pgx.Rows) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	for rows.Next() {
		var transfer domain.Transfer
		err := rows.Scan(
			&transfer.ID, &transfer.UserID, &transfer.SavingsAccountID, &transfer.Amount,
			&transfer.Description, &transfer.Date, &transfer.Type,
			&transfer.CreatedAt, &transfer.UpdatedAt, &transfer.SavingsAccountName,
		)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}
	return transfers, rows.Err()
}

// CreateTransaction inserts a main-account income or expense entry.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, category_id, amount, description, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		tx.ID, tx.UserID, tx.CategoryID, tx.Amount, tx.Description, tx.Date,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

// FindTransactionsByUserID retrieves all of a user's main-account entries,
// newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, category_id, amount, description, date, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.CategoryID, &tx.Amount, &tx.Description,
			&tx.Date, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// DeleteTransaction deletes a main-account entry owned by the given user.
func (r *PostgresRepository) DeleteTransaction(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, transactionID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
