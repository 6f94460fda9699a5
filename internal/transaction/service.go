package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack-api/internal/logging"
	"github.com/fintrackhq/fintrack-api/internal/user"
)

var (
	ErrInvalidAmount = errors.New("amount must be a non-negative number")
	ErrInvalidType   = errors.New("type must be income or expense")
	// ErrBalanceReconciliation means the ledger mutated but the cached balance
	// could not be updated. The ledger remains the source of truth; the cache
	// needs reconciliation before it can be trusted again.
	ErrBalanceReconciliation = errors.New("transaction recorded but balance update failed")
)

const (
	defaultListLimit = 50
	dashboardRecent  = 5
	defaultCategory  = "uncategorized"
)

// Ledger is the slice of the transaction repository the service depends on.
type Ledger interface {
	Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, txType Type, category string) (*Transaction, error)
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*Transaction, error)
	Delete(ctx context.Context, userID, transactionID uuid.UUID) (*Transaction, error)
	MonthlyTotals(ctx context.Context, userID uuid.UUID, monthStart time.Time) (MonthlyTotals, error)
}

// BalanceStore is the slice of the user repository holding the cached balance.
type BalanceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// Dashboard aggregates the user's financial position for the summary view.
type Dashboard struct {
	Balance            decimal.Decimal `json:"balance"`
	RecentTransactions []*Transaction  `json:"recent_transactions"`
	MonthlyIncome      decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses    decimal.Decimal `json:"monthly_expenses"`
	MonthlyNet         decimal.Decimal `json:"monthly_net"`
}

// Service ties ledger mutations to the cached balance. After every successful
// append or remove it applies the signed delta through BalanceStore, keeping
// balance == sum(income) - sum(expense) at every quiescent point.
type Service struct {
	ledger   Ledger
	balances BalanceStore
	logger   *logging.Logger
}

func NewService(ledger Ledger, balances BalanceStore, logger *logging.Logger) *Service {
	return &Service{
		ledger:   ledger,
		balances: balances,
		logger:   logger,
	}
}

// Append validates and records a new transaction, then applies its signed
// contribution to the cached balance. The returned balance is the post-update
// value observed by the increment itself.
func (s *Service) Append(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, txType Type, category string) (*Transaction, decimal.Decimal, error) {
	if amount.IsNegative() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	if !txType.Valid() {
		return nil, decimal.Zero, ErrInvalidType
	}
	if category == "" {
		category = defaultCategory
	}

	tx, err := s.ledger.Create(ctx, userID, amount, description, txType, category)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to append transaction: %w", err)
	}

	newBalance, err := s.balances.AdjustBalance(ctx, userID, tx.SignedAmount())
	if err != nil {
		s.logger.Error("balance reconciliation failed after append",
			"user_id", userID,
			"transaction_id", tx.ID,
			"delta", tx.SignedAmount(),
			"error", err,
		)
		return tx, decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceReconciliation, err)
	}

	return tx, newBalance, nil
}

// Remove deletes a transaction owned by the user and reverses its original
// contribution to the balance.
func (s *Service) Remove(ctx context.Context, userID, transactionID uuid.UUID) (*Transaction, decimal.Decimal, error) {
	tx, err := s.ledger.Delete(ctx, userID, transactionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, ErrNotFound
		}
		return nil, decimal.Zero, fmt.Errorf("failed to remove transaction: %w", err)
	}

	newBalance, err := s.balances.AdjustBalance(ctx, userID, tx.SignedAmount().Neg())
	if err != nil {
		s.logger.Error("balance reconciliation failed after remove",
			"user_id", userID,
			"transaction_id", tx.ID,
			"delta", tx.SignedAmount().Neg(),
			"error", err,
		)
		return tx, decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceReconciliation, err)
	}

	return tx, newBalance, nil
}

// List returns a page of the user's ledger, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*Transaction, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	return s.ledger.List(ctx, userID, opts)
}

// GetDashboard builds the summary view: cached balance, the five most recent
// transactions, and month-to-date totals from the first of the current UTC month.
func (s *Service) GetDashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	owner, err := s.balances.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	recent, err := s.ledger.List(ctx, userID, ListOptions{Limit: dashboardRecent})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	totals, err := s.ledger.MonthlyTotals(ctx, userID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly totals: %w", err)
	}

	return &Dashboard{
		Balance:            owner.Balance,
		RecentTransactions: recent,
		MonthlyIncome:      totals.Income,
		MonthlyExpenses:    totals.Expense,
		MonthlyNet:         totals.Income.Sub(totals.Expense),
	}, nil
}
