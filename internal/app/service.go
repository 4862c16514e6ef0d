/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct implements the Balance Ledger: it derives savings-account balances from
 * persisted transfer history, validates mutations against the derived balance,
 * and keeps the cached balance on each account consistent across transfer
 * create/update/delete operations.
 *
 * Key features:
 * - Balance derivation is recompute-from-history; the stored current_amount is
 *   a cache, never the source of truth.
 * - Withdrawal validation and the insert/refresh pair execute atomically in the
 *   repository under an account row lock.
 * - Publishes events to RabbitMQ for asynchronous consumers after commits.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Monetary arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/ledger-service/internal/domain"
	"github.com/cashtrack/ledger-service/internal/store"
	"github.com/cashtrack/ledger-service/pkg/rabbitmq"
)

const (
	EventsExchange         = "cashtrack.events"
	transferRateLimitScope = "transfer_write"
)

// RateLimiter is the contract for the optional distributed write limiter.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the balance ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher

	rateLimiter       RateLimiter
	transferRateLimit int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
	}
}

// SetTransferRateLimiter enables per-user rate limiting on transfer writes.
// A nil limiter or non-positive limit disables it.
func (s *Service) SetTransferRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.transferRateLimit = perMinute
}

// ComputeBalance derives a savings account's current balance from its stored
// initial balance and its full transfer history. The result is clamped at
// zero: negative sums can only arise from data edited outside the ledger and
// are reported as an empty account rather than propagated. Pure read.
func (s *Service) ComputeBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.repo.FindSavingsAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	transfers, err := s.repo.FindTransfersByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := account.InitialBalance
	for i := range transfers {
		balance = balance.Add(transfers[i].Signed())
	}
	if balance.IsNegative() {
		return decimal.Zero, nil
	}
	return balance, nil
}

// RefreshBalance recomputes and persists the cached balance of one account.
// Idempotent: with no intervening history change the stored value is stable.
func (s *Service) RefreshBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.repo.RefreshSavingsAccountBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	s.publishBalanceRefreshed(ctx, accountID, balance)
	return balance, nil
}

// CreateTransfer validates and persists a new transfer, then refreshes the
// affected account's balance. Validation failures are reported in a fixed
// order: required fields, positive amount, enumerated type, account
// existence, ownership, and (for withdrawals) sufficient balance.
func (s *Service) CreateTransfer(ctx context.Context, userID uuid.UUID, req domain.CreateTransferRequest) (*domain.Transfer, error) {
	if err := s.consumeTransferRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Amount) == "" || strings.TrimSpace(req.Type) == "" ||
		strings.TrimSpace(req.SavingsAccountID) == "" || req.Date == nil || userID == uuid.Nil {
		return nil, ErrMissingRequiredFields
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	transferType := domain.TransferType(strings.TrimSpace(req.Type))
	if !transferType.Valid() {
		return nil, ErrInvalidTransferType
	}

	accountID, err := uuid.Parse(strings.TrimSpace(req.SavingsAccountID))
	if err != nil {
		return nil, store.ErrSavingsAccountNotFound
	}

	transfer := &domain.Transfer{
		ID:               uuid.New(),
		UserID:           userID,
		SavingsAccountID: accountID,
		Amount:           amount,
		Description:      req.Description,
		Date:             *req.Date,
		Type:             transferType,
	}

	balance, err := s.repo.CreateTransferGuarded(ctx, transfer)
	if err != nil {
		return nil, err
	}

	s.publishTransferEvent(ctx, "transfer.created", transfer)
	s.publishBalanceRefreshed(ctx, accountID, balance)
	return transfer, nil
}

// UpdateTransfer applies a field-level merge: only provided fields overwrite
// the stored transfer. A changed amount or type on a withdrawal is
// re-validated against the balance derived from the history excluding the
// transfer being modified, so an update cannot overdraw the account.
func (s *Service) UpdateTransfer(ctx context.Context, userID uuid.UUID, transferID uuid.UUID, req domain.UpdateTransferRequest) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, store.ErrNotAccountOwner
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
		if err != nil || !amount.IsPositive() {
			return nil, ErrNonPositiveAmount
		}
		transfer.Amount = amount
	}
	if req.Type != nil {
		transferType := domain.TransferType(strings.TrimSpace(*req.Type))
		if !transferType.Valid() {
			return nil, ErrInvalidTransferType
		}
		transfer.Type = transferType
	}
	if req.Description != nil {
		transfer.Description = req.Description
	}
	if req.Date != nil {
		transfer.Date = *req.Date
	}

	balance, err := s.repo.UpdateTransferGuarded(ctx, transfer)
	if err != nil {
		return nil, err
	}

	s.publishTransferEvent(ctx, "transfer.updated", transfer)
	s.publishBalanceRefreshed(ctx, transfer.SavingsAccountID, balance)
	return transfer, nil
}

// DeleteTransfer removes a transfer and refreshes the balance of the account
// it had referenced, restoring the balance to its pre-creation value.
func (s *Service) DeleteTransfer(ctx context.Context, userID uuid.UUID, transferID uuid.UUID) error {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.UserID != userID {
		return store.ErrNotAccountOwner
	}

	accountID, balance, err := s.repo.DeleteTransferGuarded(ctx, transferID)
	if err != nil {
		return err
	}

	s.publishTransferEvent(ctx, "transfer.deleted", transfer)
	s.publishBalanceRefreshed(ctx, accountID, balance)
	return nil
}

// GetUserTransfers lists a user's transfers with optional AND-combined
// filters, ordered by date descending. Pure read.
func (s *Service) GetUserTransfers(ctx context.Context, userID uuid.UUID, filters domain.TransferFilters) ([]domain.Transfer, error) {
	return s.repo.FindTransfersByUser(ctx, userID, filters)
}

// CalculateMainAccountBalance derives the user's main-account balance on
// demand: the signed sum of all plain transactions, minus money moved to
// savings and plus money returned from savings. Unlike a savings balance it
// is not clamped and may legitimately be negative.
func (s *Service) CalculateMainAccountBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	transactions, err := s.repo.FindTransactionsByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for i := range transactions {
		balance = balance.Add(transactions[i].Amount)
	}

	transfers, err := s.repo.FindTransfersByUser(ctx, userID, domain.TransferFilters{})
	if err != nil {
		return decimal.Zero, err
	}
	for i := range transfers {
		// Money that left for a savings account reduces the main balance;
		// money withdrawn from savings returns to it.
		balance = balance.Sub(transfers[i].Signed())
	}

	return balance, nil
}

// CreateSavingsAccount creates a new savings bucket for a user. The cached
// balance starts at the initial balance.
func (s *Service) CreateSavingsAccount(ctx context.Context, userID uuid.UUID, req domain.CreateSavingsAccountRequest) (*domain.SavingsAccount, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrAccountNameRequired
	}

	account := &domain.SavingsAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           name,
		Description:    req.Description,
		InitialBalance: decimal.Zero,
	}

	if req.InitialBalance != nil && strings.TrimSpace(*req.InitialBalance) != "" {
		initial, err := decimal.NewFromString(strings.TrimSpace(*req.InitialBalance))
		if err != nil {
			return nil, ErrInvalidAmount
		}
		if initial.IsNegative() {
			return nil, ErrNegativeInitialBalance
		}
		account.InitialBalance = initial
	}
	if req.TargetAmount != nil && strings.TrimSpace(*req.TargetAmount) != "" {
		target, err := decimal.NewFromString(strings.TrimSpace(*req.TargetAmount))
		if err != nil || !target.IsPositive() {
			return nil, ErrInvalidAmount
		}
		account.TargetAmount = &target
	}

	if err := s.repo.CreateSavingsAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ListSavingsAccounts lists a user's savings accounts, newest first.
func (s *Service) ListSavingsAccounts(ctx context.Context, userID uuid.UUID) ([]domain.SavingsAccount, error) {
	return s.repo.FindSavingsAccountsByUserID(ctx, userID)
}

// GetSavingsAccount resolves one account and enforces ownership.
func (s *Service) GetSavingsAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) (*domain.SavingsAccount, error) {
	account, err := s.repo.FindSavingsAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, store.ErrNotAccountOwner
	}
	return account, nil
}

// DeleteSavingsAccount removes an account and, through the schema's cascade,
// its transfer history.
func (s *Service) DeleteSavingsAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) error {
	deleted, err := s.repo.DeleteSavingsAccount(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrSavingsAccountNotFound
	}
	return nil
}

// CreateTransaction logs a main-account income (positive) or expense
// (negative) entry.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if strings.TrimSpace(req.Amount) == "" {
		return nil, ErrMissingRequiredFields
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}

	tx := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Description: req.Description,
		Date:        time.Now().UTC(),
	}
	if req.Date != nil {
		tx.Date = *req.Date
	}
	if req.CategoryID != nil && strings.TrimSpace(*req.CategoryID) != "" {
		categoryID, err := uuid.Parse(strings.TrimSpace(*req.CategoryID))
		if err != nil {
			return nil, ErrMissingRequiredFields
		}
		tx.CategoryID = &categoryID
	}

	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions lists a user's main-account entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID)
}

// DeleteTransaction removes a main-account entry owned by the user.
func (s *Service) DeleteTransaction(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) error {
	deleted, err := s.repo.DeleteTransaction(ctx, transactionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrTransactionNotFound
	}
	return nil
}

// BalanceRefreshConsumer returns the handler for asynchronous refresh
// requests, wired to this service.
func (s *Service) BalanceRefreshConsumer() *BalanceRefreshConsumer {
	return NewBalanceRefreshConsumer(s)
}

func (s *Service) consumeTransferRateLimit(ctx context.Context, userID uuid.UUID) error {
	if s.rateLimiter == nil || s.transferRateLimit <= 0 {
		return nil
	}

	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, transferRateLimitScope, userID.String(), s.transferRateLimit, time.Minute)
	if err != nil {
		// Fail open: a degraded limiter must not block legitimate writes.
		log.Printf("level=warn component=ledger msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > s.transferRateLimit {
		return &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishTransferEvent(ctx context.Context, routingKey string, transfer *domain.Transfer) {
	if s.eventProducer == nil {
		return
	}
	err := s.eventProducer.Publish(ctx, EventsExchange, routingKey, domain.TransferEventPayload{
		TransferID:       transfer.ID,
		UserID:           transfer.UserID,
		SavingsAccountID: transfer.SavingsAccountID,
		Type:             transfer.Type,
		Amount:           transfer.Amount,
		Timestamp:        time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=%s transfer_id=%s err=%v", routingKey, transfer.ID, err)
	}
}

func (s *Service) publishBalanceRefreshed(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) {
	if s.eventProducer == nil {
		return
	}
	err := s.eventProducer.Publish(ctx, EventsExchange, "savings.balance.refreshed", domain.BalanceRefreshedPayload{
		SavingsAccountID: accountID,
		CurrentAmount:    balance,
		Timestamp:        time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=savings.balance.refreshed account_id=%s err=%v", accountID, err)
	}
}

// IsNotFound reports whether err is one of the ledger's not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrSavingsAccountNotFound) ||
		errors.Is(err, store.ErrTransferNotFound) ||
		errors.Is(err, store.ErrTransactionNotFound)
}
