package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

const referralColumns = `id, referrer_id, referred_id, level, commission_amount_paise, status,
	source_transaction_id, created_at, reviewed_at, reviewed_by`

type PgReferralRepository struct {
	logger *slog.Logger
}

func NewPgReferralRepository(logger *slog.Logger) repository.ReferralRepository {
	return &PgReferralRepository{logger: logger.With("component", "referral_repository_pg")}
}

func scanReferral(row pgx.Row) (*domain.Referral, error) {
	var ref domain.Referral
	var status string
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Level, &ref.CommissionAmountPaise,
		&status, &ref.SourceTransactionID, &ref.CreatedAt, &ref.ReviewedAt, &ref.ReviewedBy)
	if err != nil {
		return nil, err
	}
	ref.Status = domain.ReferralStatus(status)
	return &ref, nil
}

func (r *PgReferralRepository) Create(ctx context.Context, q repository.Querier, ref *domain.Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, level, commission_amount_paise, status,
		                       source_transaction_id, created_at, reviewed_at, reviewed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ref.ID, ref.ReferrerID, ref.ReferredID, ref.Level, ref.CommissionAmountPaise, string(ref.Status),
		ref.SourceTransactionID, ref.CreatedAt, ref.ReviewedAt, ref.ReviewedBy,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating referral", "error", err, "referrer_id", ref.ReferrerID, "level", ref.Level)
		return fmt.Errorf("creating referral: %w", err)
	}
	return nil
}

func (r *PgReferralRepository) GetByIDForUpdate(ctx context.Context, q repository.Querier, id string) (*domain.Referral, error) {
	ref, err := scanReferral(q.QueryRow(ctx, `SELECT `+referralColumns+` FROM referrals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("referral %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error locking referral", "error", err, "referral_id", id)
		return nil, fmt.Errorf("getting referral for update: %w", err)
	}
	return ref, nil
}

func (r *PgReferralRepository) UpdateStatus(ctx context.Context, q repository.Querier, ref *domain.Referral) error {
	tag, err := q.Exec(ctx, `
		UPDATE referrals SET status = $2, reviewed_at = $3, reviewed_by = $4 WHERE id = $1`,
		ref.ID, string(ref.Status), ref.ReviewedAt, ref.ReviewedBy)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating referral status", "error", err, "referral_id", ref.ID)
		return fmt.Errorf("updating referral status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral %s: %w", ref.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PgReferralRepository) ListByReferrer(ctx context.Context, q repository.Querier, referrerID string, limit, offset int) ([]domain.Referral, error) {
	rows, err := q.Query(ctx, `
		SELECT `+referralColumns+` FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, referrerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing referrals: %w", err)
	}
	defer rows.Close()

	var referrals []domain.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning referral: %w", err)
		}
		referrals = append(referrals, *ref)
	}
	return referrals, rows.Err()
}
