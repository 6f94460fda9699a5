package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/fintrackhq/fintrack-api/internal/database"
)

var ErrNotFound = errors.New("transaction not found")

// Repository handles ledger persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create appends a new transaction to the user's ledger. Date and CreatedAt
// are both set to now; backdating is not supported.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, txType Type, category string) (*Transaction, error) {
	now := time.Now()
	dbTx := &database.Transaction{
		UserID:      userID,
		Amount:      amount,
		Description: description,
		Type:        string(txType),
		Category:    category,
		Date:        now,
		CreatedAt:   now,
	}

	_, err := r.db.NewInsert().
		Model(dbTx).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return mapDBTransactionToModel(dbTx), nil
}

// List returns the user's transactions ordered by date descending, with the
// record id as the tie-break so pagination stays deterministic.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*Transaction, error) {
	q := r.db.NewSelect().
		Model((*database.Transaction)(nil)).
		Where("user_id = ?", userID)

	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}

	var dbTxs []*database.Transaction
	err := q.
		Order("date DESC", "id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Scan(ctx, &dbTxs)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txs := make([]*Transaction, 0, len(dbTxs))
	for _, dbTx := range dbTxs {
		txs = append(txs, mapDBTransactionToModel(dbTx))
	}

	return txs, nil
}

// Delete removes a transaction and returns the deleted record. The user id is
// part of the predicate, so a non-owner gets ErrNotFound and never learns
// whether the id exists.
func (r *Repository) Delete(ctx context.Context, userID, transactionID uuid.UUID) (*Transaction, error) {
	dbTx := new(database.Transaction)
	res, err := r.db.NewDelete().
		Model(dbTx).
		Where("id = ?", transactionID).
		Where("user_id = ?", userID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete transaction: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return mapDBTransactionToModel(dbTx), nil
}

// MonthlyTotals sums amounts grouped by type over transactions dated at or
// after monthStart. Absent groups come back as zero.
func (r *Repository) MonthlyTotals(ctx context.Context, userID uuid.UUID, monthStart time.Time) (MonthlyTotals, error) {
	var rows []struct {
		Type  string          `bun:"type"`
		Total decimal.Decimal `bun:"total"`
	}

	err := r.db.NewSelect().
		Model((*database.Transaction)(nil)).
		ColumnExpr("type").
		ColumnExpr("SUM(amount) AS total").
		Where("user_id = ?", userID).
		Where("date >= ?", monthStart).
		Group("type").
		Scan(ctx, &rows)
	if err != nil {
		return MonthlyTotals{}, fmt.Errorf("failed to aggregate monthly totals: %w", err)
	}

	totals := MonthlyTotals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, row := range rows {
		switch Type(row.Type) {
		case TypeIncome:
			totals.Income = row.Total
		case TypeExpense:
			totals.Expense = row.Total
		}
	}

	return totals, nil
}

// mapDBTransactionToModel converts database model to domain model
func mapDBTransactionToModel(dbt *database.Transaction) *Transaction {
	return &Transaction{
		ID:          dbt.ID,
		UserID:      dbt.UserID,
		Amount:      dbt.Amount,
		Description: dbt.Description,
		Type:        Type(dbt.Type),
		Category:    dbt.Category,
		Date:        dbt.Date,
		CreatedAt:   dbt.CreatedAt,
	}
}
