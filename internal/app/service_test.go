package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/ledger-service/internal/domain"
	"github.com/cashtrack/ledger-service/internal/store"
)

// ledgerRepoStub is an in-memory repository that mirrors the guard semantics
// of the Postgres implementation: guarded mutations validate account
// existence, ownership and available balance before touching the history.
type ledgerRepoStub struct {
	store.Repository

	accounts  map[uuid.UUID]*domain.SavingsAccount
	transfers []domain.Transfer
	txs       []domain.Transaction

	refreshCalls int
}

func newLedgerRepoStub() *ledgerRepoStub {
	return &ledgerRepoStub{accounts: map[uuid.UUID]*domain.SavingsAccount{}}
}

func (s *ledgerRepoStub) addAccount(userID uuid.UUID, initial string) *domain.SavingsAccount {
	account := &domain.SavingsAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           "Vacation",
		InitialBalance: mustDecimal(initial),
		CurrentAmount:  mustDecimal(initial),
	}
	s.accounts[account.ID] = account
	return account
}

func (s *ledgerRepoStub) FindSavingsAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.SavingsAccount, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrSavingsAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *ledgerRepoStub) FindTransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transfer, error) {
	var out []domain.Transfer
	for _, tr := range s.transfers {
		if tr.SavingsAccountID == accountID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (s *ledgerRepoStub) FindTransfersByUser(ctx context.Context, userID uuid.UUID, filters domain.TransferFilters) ([]domain.Transfer, error) {
	var out []domain.Transfer
	for _, tr := range s.transfers {
		if tr.UserID != userID {
			continue
		}
		if filters.SavingsAccountID != nil && tr.SavingsAccountID != *filters.SavingsAccountID {
			continue
		}
		if filters.Type != nil && tr.Type != *filters.Type {
			continue
		}
		if filters.StartDate != nil && tr.Date.Before(*filters.StartDate) {
			continue
		}
		if filters.EndDate != nil && tr.Date.After(*filters.EndDate) {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *ledgerRepoStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	for i := range s.transfers {
		if s.transfers[i].ID == transferID {
			copied := s.transfers[i]
			return &copied, nil
		}
	}
	return nil, store.ErrTransferNotFound
}

// available mirrors the SQL derivation: initial balance plus the signed sum
// of the account's transfers, clamped at zero, optionally excluding one
// transfer.
func (s *ledgerRepoStub) available(accountID uuid.UUID, exclude *uuid.UUID) decimal.Decimal {
	balance := s.accounts[accountID].InitialBalance
	for i := range s.transfers {
		if s.transfers[i].SavingsAccountID != accountID {
			continue
		}
		if exclude != nil && s.transfers[i].ID == *exclude {
			continue
		}
		balance = balance.Add(s.transfers[i].Signed())
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

func (s *ledgerRepoStub) refresh(accountID uuid.UUID) decimal.Decimal {
	s.refreshCalls++
	balance := s.available(accountID, nil)
	s.accounts[accountID].CurrentAmount = balance
	return balance
}

func (s *ledgerRepoStub) RefreshSavingsAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if _, ok := s.accounts[accountID]; !ok {
		return decimal.Zero, store.ErrSavingsAccountNotFound
	}
	return s.refresh(accountID), nil
}

func (s *ledgerRepoStub) CreateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error) {
	account, ok := s.accounts[transfer.SavingsAccountID]
	if !ok {
		return decimal.Zero, store.ErrSavingsAccountNotFound
	}
	if account.UserID != transfer.UserID {
		return decimal.Zero, store.ErrNotAccountOwner
	}
	if transfer.Type == domain.TransferFromSavings {
		available := s.available(transfer.SavingsAccountID, nil)
		if transfer.Amount.GreaterThan(available) {
			return decimal.Zero, &store.InsufficientBalanceError{Available: available}
		}
	}
	transfer.CreatedAt = time.Now().UTC()
	transfer.UpdatedAt = transfer.CreatedAt
	transfer.SavingsAccountName = account.Name
	s.transfers = append(s.transfers, *transfer)
	return s.refresh(transfer.SavingsAccountID), nil
}

func (s *ledgerRepoStub) UpdateTransferGuarded(ctx context.Context, transfer *domain.Transfer) (decimal.Decimal, error) {
	account, ok := s.accounts[transfer.SavingsAccountID]
	if !ok {
		return decimal.Zero, store.ErrSavingsAccountNotFound
	}
	if account.UserID != transfer.UserID {
		return decimal.Zero, store.ErrNotAccountOwner
	}
	if transfer.Type == domain.TransferFromSavings {
		available := s.available(transfer.SavingsAccountID, &transfer.ID)
		if transfer.Amount.GreaterThan(available) {
			return decimal.Zero, &store.InsufficientBalanceError{Available: available}
		}
	}
	for i := range s.transfers {
		if s.transfers[i].ID == transfer.ID {
			transfer.UpdatedAt = time.Now().UTC()
			s.transfers[i] = *transfer
			return s.refresh(transfer.SavingsAccountID), nil
		}
	}
	return decimal.Zero, store.ErrTransferNotFound
}

func (s *ledgerRepoStub) DeleteTransferGuarded(ctx context.Context, transferID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	for i := range s.transfers {
		if s.transfers[i].ID == transferID {
			accountID := s.transfers[i].SavingsAccountID
			s.transfers = append(s.transfers[:i], s.transfers[i+1:]...)
			return accountID, s.refresh(accountID), nil
		}
	}
	return uuid.Nil, decimal.Zero, store.ErrTransferNotFound
}

func (s *ledgerRepoStub) CreateSavingsAccount(ctx context.Context, account *domain.SavingsAccount) error {
	account.CurrentAmount = account.InitialBalance
	s.accounts[account.ID] = account
	return nil
}

func (s *ledgerRepoStub) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.txs = append(s.txs, *tx)
	return nil
}

func (s *ledgerRepoStub) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func mustDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(v string) *string { return &v }

func datePtr(t time.Time) *time.Time { return &t }

func createRequest(accountID uuid.UUID, amount, transferType string) domain.CreateTransferRequest {
	return domain.CreateTransferRequest{
		Amount:           amount,
		Date:             datePtr(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)),
		Type:             transferType,
		SavingsAccountID: accountID.String(),
	}
}

func TestComputeBalance_SumsHistoryOverInitialBalance(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "250")
	service := NewService(repo, nil)

	ctx := context.Background()
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "100", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "40.50", "FROM_SAVINGS")); err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}

	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("309.50")) {
		t.Fatalf("expected balance 309.50, got %s", balance)
	}
}

func TestComputeBalance_ClampsNegativeHistoryToZero(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	// An orphaned withdrawal can only arise from history edited outside the
	// guarded path; seed it directly.
	repo.transfers = append(repo.transfers, domain.Transfer{
		ID:               uuid.New(),
		UserID:           userID,
		SavingsAccountID: account.ID,
		Amount:           mustDecimal("75"),
		Date:             time.Now().UTC(),
		Type:             domain.TransferFromSavings,
	})
	service := NewService(repo, nil)

	balance, err := service.ComputeBalance(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected clamped zero balance, got %s", balance)
	}
}

func TestComputeBalance_UnknownAccount(t *testing.T) {
	service := NewService(newLedgerRepoStub(), nil)

	_, err := service.ComputeBalance(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrSavingsAccountNotFound) {
		t.Fatalf("expected ErrSavingsAccountNotFound, got %v", err)
	}
}

func TestRefreshBalance_IsIdempotent(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "100")
	service := NewService(repo, nil)

	ctx := context.Background()
	first, err := service.RefreshBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("RefreshBalance returned error: %v", err)
	}
	second, err := service.RefreshBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("RefreshBalance returned error: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("expected stable balance across refreshes, got %s then %s", first, second)
	}
	if !repo.accounts[account.ID].CurrentAmount.Equal(first) {
		t.Fatalf("expected cached balance %s, got %s", first, repo.accounts[account.ID].CurrentAmount)
	}
}

func TestCreateTransfer_ValidationOrder(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "100")
	service := NewService(repo, nil)
	ctx := context.Background()

	// Missing fields win over everything else, even when the amount is also bad.
	_, err := service.CreateTransfer(ctx, userID, domain.CreateTransferRequest{Amount: "-5"})
	if !errors.Is(err, ErrMissingRequiredFields) {
		t.Fatalf("expected ErrMissingRequiredFields, got %v", err)
	}

	// A non-positive amount is rejected before the type is inspected.
	req := createRequest(account.ID, "-5", "BOGUS")
	if _, err := service.CreateTransfer(ctx, userID, req); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}
	req = createRequest(account.ID, "abc", "TO_SAVINGS")
	if _, err := service.CreateTransfer(ctx, userID, req); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount for unparseable amount, got %v", err)
	}

	// An invalid type is rejected before the account is resolved.
	req = createRequest(uuid.New(), "10", "SIDEWAYS")
	if _, err := service.CreateTransfer(ctx, userID, req); !errors.Is(err, ErrInvalidTransferType) {
		t.Fatalf("expected ErrInvalidTransferType, got %v", err)
	}

	// A well-formed request against a missing account fails on existence.
	req = createRequest(uuid.New(), "10", "TO_SAVINGS")
	if _, err := service.CreateTransfer(ctx, userID, req); !errors.Is(err, store.ErrSavingsAccountNotFound) {
		t.Fatalf("expected ErrSavingsAccountNotFound, got %v", err)
	}
}

func TestCreateTransfer_RoundTripVisibleInBalance(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	transfer, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "1000", "TO_SAVINGS"))
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}
	if transfer.SavingsAccountName != account.Name {
		t.Fatalf("expected resolved account name %q, got %q", account.Name, transfer.SavingsAccountName)
	}

	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("1000")) {
		t.Fatalf("expected balance 1000 after deposit, got %s", balance)
	}
}

func TestCreateTransfer_WithdrawalGuard(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "1000", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "300", "FROM_SAVINGS")); err != nil {
		t.Fatalf("withdrawal of 300 failed: %v", err)
	}

	// 800 exceeds the remaining 700 and must be rejected with the available
	// amount formatted to two decimals.
	_, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "800", "FROM_SAVINGS"))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := err.Error(); got != "insufficient balance, available: 700.00" {
		t.Fatalf("unexpected error message: %q", got)
	}

	// The failed withdrawal must not have changed the balance.
	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("700")) {
		t.Fatalf("expected balance 700, got %s", balance)
	}
}

func TestCreateTransfer_WithdrawalOfExactBalanceSucceeds(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "150.25", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// One cent more than the balance fails.
	_, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "150.26", "FROM_SAVINGS"))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The exact balance succeeds and drains the account to zero.
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "150.25", "FROM_SAVINGS")); err != nil {
		t.Fatalf("withdrawal of exact balance failed: %v", err)
	}
	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}

func TestCreateTransfer_CrossUserIsRejected(t *testing.T) {
	repo := newLedgerRepoStub()
	owner := uuid.New()
	intruder := uuid.New()
	account := repo.addAccount(owner, "500")
	service := NewService(repo, nil)

	_, err := service.CreateTransfer(context.Background(), intruder, createRequest(account.ID, "10", "TO_SAVINGS"))
	if !errors.Is(err, store.ErrNotAccountOwner) {
		t.Fatalf("expected ErrNotAccountOwner, got %v", err)
	}
	if len(repo.transfers) != 0 {
		t.Fatalf("expected no transfer persisted, got %d", len(repo.transfers))
	}
}

func TestUpdateTransfer_MergesOnlyProvidedFields(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	created, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "200", "TO_SAVINGS"))
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}

	updated, err := service.UpdateTransfer(ctx, userID, created.ID, domain.UpdateTransferRequest{
		Description: strPtr("monthly top-up"),
	})
	if err != nil {
		t.Fatalf("UpdateTransfer returned error: %v", err)
	}
	if updated.Description == nil || *updated.Description != "monthly top-up" {
		t.Fatalf("expected updated description, got %v", updated.Description)
	}
	if !updated.Amount.Equal(mustDecimal("200")) || updated.Type != domain.TransferToSavings {
		t.Fatalf("expected untouched amount and type, got %s %s", updated.Amount, updated.Type)
	}
}

func TestUpdateTransfer_RevalidatesBalanceExcludingSelf(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	created, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "100", "TO_SAVINGS"))
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}

	// Flipping the only deposit into a withdrawal would overdraw: without the
	// deposit the account holds nothing to withdraw.
	_, err = service.UpdateTransfer(ctx, userID, created.ID, domain.UpdateTransferRequest{
		Type: strPtr("FROM_SAVINGS"),
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Shrinking the deposit is fine.
	updated, err := service.UpdateTransfer(ctx, userID, created.ID, domain.UpdateTransferRequest{
		Amount: strPtr("60"),
	})
	if err != nil {
		t.Fatalf("UpdateTransfer returned error: %v", err)
	}
	if !updated.Amount.Equal(mustDecimal("60")) {
		t.Fatalf("expected amount 60, got %s", updated.Amount)
	}

	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("60")) {
		t.Fatalf("expected balance 60 after update, got %s", balance)
	}
}

func TestUpdateTransfer_CrossUserIsRejected(t *testing.T) {
	repo := newLedgerRepoStub()
	owner := uuid.New()
	account := repo.addAccount(owner, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	created, err := service.CreateTransfer(ctx, owner, createRequest(account.ID, "100", "TO_SAVINGS"))
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}

	_, err = service.UpdateTransfer(ctx, uuid.New(), created.ID, domain.UpdateTransferRequest{
		Amount: strPtr("5"),
	})
	if !errors.Is(err, store.ErrNotAccountOwner) {
		t.Fatalf("expected ErrNotAccountOwner, got %v", err)
	}
}

func TestDeleteTransfer_RestoresPriorBalance(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "500")
	service := NewService(repo, nil)
	ctx := context.Background()

	created, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "120", "FROM_SAVINGS"))
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}

	if err := service.DeleteTransfer(ctx, userID, created.ID); err != nil {
		t.Fatalf("DeleteTransfer returned error: %v", err)
	}

	balance, err := service.ComputeBalance(ctx, account.ID)
	if err != nil {
		t.Fatalf("ComputeBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("500")) {
		t.Fatalf("expected restored balance 500, got %s", balance)
	}

	if err := service.DeleteTransfer(ctx, userID, created.ID); !errors.Is(err, store.ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound on second delete, got %v", err)
	}
}

func TestGetUserTransfers_AppliesFiltersWithAndSemantics(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	other := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	mk := func(accountID uuid.UUID, amount, transferType string, date time.Time) {
		req := createRequest(accountID, amount, transferType)
		req.Date = datePtr(date)
		if _, err := service.CreateTransfer(ctx, userID, req); err != nil {
			t.Fatalf("CreateTransfer returned error: %v", err)
		}
	}
	mk(account.ID, "100", "TO_SAVINGS", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	mk(account.ID, "50", "FROM_SAVINGS", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	mk(other.ID, "30", "TO_SAVINGS", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))

	all, err := service.GetUserTransfers(ctx, userID, domain.TransferFilters{})
	if err != nil {
		t.Fatalf("GetUserTransfers returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(all))
	}

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	depositType := domain.TransferToSavings
	filtered, err := service.GetUserTransfers(ctx, userID, domain.TransferFilters{
		StartDate: &start,
		Type:      &depositType,
	})
	if err != nil {
		t.Fatalf("GetUserTransfers returned error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].SavingsAccountID != other.ID {
		t.Fatalf("expected only the February deposit, got %d transfers", len(filtered))
	}
}

func TestCalculateMainAccountBalance_AdjustsForTransfers(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	logTx := func(amount string) {
		if _, err := service.CreateTransaction(ctx, userID, domain.CreateTransactionRequest{Amount: amount}); err != nil {
			t.Fatalf("CreateTransaction returned error: %v", err)
		}
	}
	logTx("6000")
	logTx("-1000")

	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "1200", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "500", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	balance, err := service.CalculateMainAccountBalance(ctx, userID)
	if err != nil {
		t.Fatalf("CalculateMainAccountBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("3300")) {
		t.Fatalf("expected main balance 3300, got %s", balance)
	}

	// Money returned from savings flows back to the main account.
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "700", "FROM_SAVINGS")); err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}
	balance, err = service.CalculateMainAccountBalance(ctx, userID)
	if err != nil {
		t.Fatalf("CalculateMainAccountBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("4000")) {
		t.Fatalf("expected main balance 4000, got %s", balance)
	}
}

func TestCalculateMainAccountBalance_MayGoNegative(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	ctx := context.Background()

	if _, err := service.CreateTransaction(ctx, userID, domain.CreateTransactionRequest{Amount: "100"}); err != nil {
		t.Fatalf("CreateTransaction returned error: %v", err)
	}
	if _, err := service.CreateTransfer(ctx, userID, createRequest(account.ID, "250", "TO_SAVINGS")); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	balance, err := service.CalculateMainAccountBalance(ctx, userID)
	if err != nil {
		t.Fatalf("CalculateMainAccountBalance returned error: %v", err)
	}
	if !balance.Equal(mustDecimal("-150")) {
		t.Fatalf("expected main balance -150, got %s", balance)
	}
}

func TestCreateSavingsAccount_Validation(t *testing.T) {
	repo := newLedgerRepoStub()
	service := NewService(repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.CreateSavingsAccount(ctx, userID, domain.CreateSavingsAccountRequest{Name: "  "}); !errors.Is(err, ErrAccountNameRequired) {
		t.Fatalf("expected ErrAccountNameRequired, got %v", err)
	}

	req := domain.CreateSavingsAccountRequest{Name: "House", InitialBalance: strPtr("-10")}
	if _, err := service.CreateSavingsAccount(ctx, userID, req); !errors.Is(err, ErrNegativeInitialBalance) {
		t.Fatalf("expected ErrNegativeInitialBalance, got %v", err)
	}

	req = domain.CreateSavingsAccountRequest{Name: "House", InitialBalance: strPtr("2500"), TargetAmount: strPtr("10000")}
	account, err := service.CreateSavingsAccount(ctx, userID, req)
	if err != nil {
		t.Fatalf("CreateSavingsAccount returned error: %v", err)
	}
	if !account.InitialBalance.Equal(mustDecimal("2500")) {
		t.Fatalf("expected initial balance 2500, got %s", account.InitialBalance)
	}
	if account.TargetAmount == nil || !account.TargetAmount.Equal(mustDecimal("10000")) {
		t.Fatalf("expected target amount 10000, got %v", account.TargetAmount)
	}
	if !account.CurrentAmount.Equal(account.InitialBalance) {
		t.Fatalf("expected cached balance to start at the initial balance")
	}
}

func TestGetSavingsAccount_EnforcesOwnership(t *testing.T) {
	repo := newLedgerRepoStub()
	owner := uuid.New()
	account := repo.addAccount(owner, "100")
	service := NewService(repo, nil)

	if _, err := service.GetSavingsAccount(context.Background(), uuid.New(), account.ID); !errors.Is(err, store.ErrNotAccountOwner) {
		t.Fatalf("expected ErrNotAccountOwner, got %v", err)
	}
	got, err := service.GetSavingsAccount(context.Background(), owner, account.ID)
	if err != nil {
		t.Fatalf("GetSavingsAccount returned error: %v", err)
	}
	if got.ID != account.ID {
		t.Fatalf("expected account %s, got %s", account.ID, got.ID)
	}
}

func TestCreateTransaction_RejectsZeroAmount(t *testing.T) {
	service := NewService(newLedgerRepoStub(), nil)

	_, err := service.CreateTransaction(context.Background(), uuid.New(), domain.CreateTransactionRequest{Amount: "0"})
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

type fixedRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (f *fixedRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return f.count, f.retryAfter, f.err
}

func TestCreateTransfer_RateLimited(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	service.SetTransferRateLimiter(&fixedRateLimiter{count: 11, retryAfter: 42}, 10)

	_, err := service.CreateTransfer(context.Background(), userID, createRequest(account.ID, "10", "TO_SAVINGS"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitedError
	if !errors.As(err, &rle) || rle.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry-after 42, got %v", err)
	}
}

func TestCreateTransfer_RateLimiterFailureFailsOpen(t *testing.T) {
	repo := newLedgerRepoStub()
	userID := uuid.New()
	account := repo.addAccount(userID, "0")
	service := NewService(repo, nil)
	service.SetTransferRateLimiter(&fixedRateLimiter{err: errors.New("redis down")}, 10)

	if _, err := service.CreateTransfer(context.Background(), userID, createRequest(account.ID, "10", "TO_SAVINGS")); err != nil {
		t.Fatalf("expected fail-open create, got %v", err)
	}
}
