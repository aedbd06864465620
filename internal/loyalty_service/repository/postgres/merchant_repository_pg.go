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

type PgMerchantRepository struct {
	logger *slog.Logger
}

func NewPgMerchantRepository(logger *slog.Logger) repository.MerchantRepository {
	return &PgMerchantRepository{logger: logger.With("component", "merchant_repository_pg")}
}

func (r *PgMerchantRepository) GetByID(ctx context.Context, q repository.Querier, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := q.QueryRow(ctx, `
		SELECT id, owner_user_id, linked_agent_id, commission_rate, boost_balance_paise,
		       category, industry, created_at, updated_at
		FROM merchants WHERE id = $1`, id).
		Scan(&m.ID, &m.OwnerUserID, &m.LinkedAgentID, &m.CommissionRate, &m.BoostBalancePaise,
			&m.Category, &m.Industry, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("merchant %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error getting merchant by ID", "error", err, "merchant_id", id)
		return nil, fmt.Errorf("getting merchant by ID: %w", err)
	}
	return &m, nil
}

func (r *PgMerchantRepository) CreditBoost(ctx context.Context, q repository.Querier, id string, amount int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		UPDATE merchants SET boost_balance_paise = boost_balance_paise + $2, updated_at = now()
		WHERE id = $1 RETURNING boost_balance_paise`, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("merchant %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error crediting boost balance", "error", err, "merchant_id", id)
		return 0, fmt.Errorf("crediting boost balance: %w", err)
	}
	return balance, nil
}

func (r *PgMerchantRepository) DebitBoost(ctx context.Context, q repository.Querier, id string, amount int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		UPDATE merchants SET boost_balance_paise = boost_balance_paise - $2, updated_at = now()
		WHERE id = $1 AND boost_balance_paise >= $2 RETURNING boost_balance_paise`, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.ErrorContext(ctx, "Error debiting boost balance", "error", err, "merchant_id", id)
		return 0, fmt.Errorf("debiting boost balance: %w", err)
	}
	if _, getErr := r.GetByID(ctx, q, id); getErr != nil {
		return 0, getErr
	}
	return 0, domain.ErrInsufficientBalance
}
