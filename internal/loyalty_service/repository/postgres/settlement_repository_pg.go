package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

type PgSettlementRepository struct {
	logger *slog.Logger
}

func NewPgSettlementRepository(logger *slog.Logger) repository.SettlementRepository {
	return &PgSettlementRepository{logger: logger.With("component", "settlement_repository_pg")}
}

// Claim reserves the key inside the caller's transaction. A concurrent claimer blocks
// on the unique index until this transaction finishes, then sees the conflict.
func (r *PgSettlementRepository) Claim(ctx context.Context, q repository.Querier, key string) error {
	tag, err := q.Exec(ctx, `INSERT INTO settlements (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming settlement key", "error", err, "key", key)
		return fmt.Errorf("claiming settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

func (r *PgSettlementRepository) Complete(ctx context.Context, q repository.Querier, s *domain.Settlement) error {
	err := q.QueryRow(ctx, `
		UPDATE settlements
		SET purchase_transaction_id = $2, points_awarded = $3, boost_credited_paise = $4,
		    commission_count = $5, lucky_draw_entry_id = $6
		WHERE key = $1
		RETURNING created_at`,
		s.Key, s.PurchaseTransactionID, s.PointsAwarded, s.BoostCreditedPaise, s.CommissionCount, s.LuckyDrawEntryID,
	).Scan(&s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("settlement %s: %w", s.Key, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error completing settlement", "error", err, "key", s.Key)
		return fmt.Errorf("completing settlement: %w", err)
	}
	return nil
}

func (r *PgSettlementRepository) Get(ctx context.Context, q repository.Querier, key string) (*domain.Settlement, error) {
	var s domain.Settlement
	var purchaseID *string
	err := q.QueryRow(ctx, `
		SELECT key, purchase_transaction_id, points_awarded, boost_credited_paise,
		       commission_count, lucky_draw_entry_id, created_at
		FROM settlements WHERE key = $1`, key).
		Scan(&s.Key, &purchaseID, &s.PointsAwarded, &s.BoostCreditedPaise, &s.CommissionCount, &s.LuckyDrawEntryID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("settlement %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting settlement: %w", err)
	}
	if purchaseID != nil {
		s.PurchaseTransactionID = *purchaseID
	}
	return &s, nil
}
