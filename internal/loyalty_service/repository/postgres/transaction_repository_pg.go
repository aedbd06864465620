package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

type pgTransactionRepository struct {
	logger *slog.Logger
}

// NewPgTransactionRepository creates the ledger repository for PostgreSQL.
func NewPgTransactionRepository(logger *slog.Logger) repository.TransactionRepository {
	return &pgTransactionRepository{logger: logger.With("component", "transaction_repository_pg")}
}

// Create appends a ledger entry. ID and CreatedAt are assigned when empty.
func (r *pgTransactionRepository) Create(ctx context.Context, q repository.Querier, txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO transactions (id, user_id, merchant_id, type, amount, source_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.ID, txn.UserID, txn.MerchantID, string(txn.Type), txn.Amount, txn.SourceID, txn.Description, txn.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating ledger transaction", "error", err, "type", txn.Type, "user_id", txn.UserID)
		return fmt.Errorf("creating transaction: %w", err)
	}
	return nil
}

func (r *pgTransactionRepository) ListByUser(ctx context.Context, q repository.Querier, userID string, limit, offset int) ([]domain.Transaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, merchant_id, type, amount, source_id, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.MerchantID, &t.Type, &t.Amount, &t.SourceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return transactions, nil
}

func (r *pgTransactionRepository) CountByUserAndType(ctx context.Context, q repository.Querier, userID string, txType domain.TransactionType) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE user_id = $1 AND type = $2`, userID, string(txType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}
