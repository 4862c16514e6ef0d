/**
 * @description
 * Balance-critical transfer mutations. Every write that touches a savings
 * account's transfer history runs inside one database transaction that first
 * locks the account row with SELECT ... FOR UPDATE, then validates against
 * the balance derived from the persisted history, then applies the write and
 * recomputes the cached balance. Two concurrent withdrawals against the same
 * account therefore serialize on the row lock and cannot both pass the
 * sufficient-balance check.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/ledger-service/internal/domain"
)

// refreshBalanceQuery recomputes current_amount from the full transfer
// history, clamped at zero. Running it twice with no intervening history
// change stores the same value.
const refreshBalanceQuery = `
	UPDATE savings_accounts sa
	SET current_amount = GREATEST(
	        sa.initial_balance + COALESCE((
	            SELECT SUM(CASE WHEN t.type = 'TO_SAVINGS' THEN t.amount ELSE -t.amount END)
	            FROM transfers t
	            WHERE t.savings_account_id = sa.id
	        ), 0),
	        0),
	    updated_at = NOW()
	WHERE sa.id = $1
	RETURNING current_amount
`

// RefreshSavingsAccountBalance recomputes and persists the cached balance of
// one account outside any caller-held transaction.
func (r *PostgresRepository) RefreshSavingsAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return refreshBalance(ctx, r.db, accountID)
}

func refreshBalance(ctx context.Context, q querier, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := q.QueryRow(ctx, refreshBalanceQuery, accountID).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, ErrSavingsAccountNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// availableBalance derives the spendable balance of a locked account from its
// persisted history, optionally excluding one transfer (used when that
// transfer is itself being rewritten).
func availableBalance(ctx context.Context, q querier, account *domain.SavingsAccount, exclude *uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT ` + signedTransferSum + ` FROM transfers WHERE savings_account_id = $1`
	args := []any{account.ID}
	if exclude != nil {
		query += ` AND id <> $2`
		args = append(args, *exclude)
	}

	var delta decimal.Decimal
	if err := q.QueryRow(ctx, query, args...).Scan(&delta); err != nil {
		return decimal.Zero, err
	}

	available := account.InitialBalance.Add(delta)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return available, nil
}

// CreateTransferGuarded validates ownership and, for withdrawals, sufficient
// balance, then inserts the transfer and refreshes the cached balance, all
// under the account row lock. Returns the refreshed balance.
func (r *PostgresRepository) CreateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := findSavingsAccount(ctx, tx, transfer.SavingsAccountID, true)
	if err != nil {
		return decimal.Zero, err
	}
	if account.UserID != transfer.UserID {
		return decimal.Zero, ErrNotAccountOwner
	}

	if transfer.Type == domain.TransferFromSavings {
		available, err := availableBalance(ctx, tx, account, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("derive balance: %w", err)
		}
		if available.LessThan(transfer.Amount) {
			return decimal.Zero, &InsufficientBalanceError{Available: available}
		}
	}

	insertQuery := `
		INSERT INTO transfers (id, user_id, savings_account_id, amount, description, date, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, insertQuery,
		transfer.ID, transfer.UserID, transfer.SavingsAccountID, transfer.Amount,
		transfer.Description, transfer.Date, string(transfer.Type),
	).Scan(&transfer.CreatedAt, &transfer.UpdatedAt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("insert transfer: %w", err)
	}

	balance, err := refreshBalance(ctx, tx, transfer.SavingsAccountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refresh balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	transfer.SavingsAccountName = account.Name
	return balance, nil
}

// UpdateTransferGuarded persists an already-merged transfer and refreshes the
// balance under the account row lock. The sufficient-balance check excludes
// the transfer being rewritten, so growing an existing withdrawal is held to
// the same standard as creating it fresh.
func (r *PostgresRepository) UpdateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := findSavingsAccount(ctx, tx, transfer.SavingsAccountID, true)
	if err != nil {
		return decimal.Zero, err
	}

	if transfer.Type == domain.TransferFromSavings {
		available, err := availableBalance(ctx, tx, account, &transfer.ID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("derive balance: %w", err)
		}
		if available.LessThan(transfer.Amount) {
			return decimal.Zero, &InsufficientBalanceError{Available: available}
		}
	}

	updateQuery := `
		UPDATE transfers
		SET amount = $2, description = $3, date = $4, type = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, updateQuery,
		transfer.ID, transfer.Amount, transfer.Description, transfer.Date, string(transfer.Type),
	).Scan(&transfer.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, ErrTransferNotFound
		}
		return decimal.Zero, fmt.Errorf("update transfer: %w", err)
	}

	balance, err := refreshBalance(ctx, tx, transfer.SavingsAccountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refresh balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	transfer.SavingsAccountName = account.Name
	return balance, nil
}

// DeleteTransferGuarded removes a transfer and refreshes the balance of the
// account it referenced. Returns that account's id and refreshed balance.
func (r *PostgresRepository) DeleteTransferGuarded(ctx context.Context, transferID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT savings_account_id FROM transfers WHERE id = $1 FOR UPDATE`, transferID).Scan(&accountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, decimal.Zero, ErrTransferNotFound
		}
		return uuid.Nil, decimal.Zero, err
	}

	if _, err := findSavingsAccount(ctx, tx, accountID, true); err != nil {
		return uuid.Nil, decimal.Zero, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transfers WHERE id = $1`, transferID); err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("delete transfer: %w", err)
	}

	balance, err := refreshBalance(ctx, tx, accountID)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("refresh balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, decimal.Zero, err
	}
	return accountID, balance, nil
}
