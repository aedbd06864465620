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

// PgBoostWithdrawalRepository stores merchant Boost withdrawal requests.
type PgBoostWithdrawalRepository struct {
	logger *slog.Logger
}

func NewPgBoostWithdrawalRepository(logger *slog.Logger) repository.BoostWithdrawalRepository {
	return &PgBoostWithdrawalRepository{logger: logger.With("component", "boost_withdrawal_repository_pg")}
}

func (r *PgBoostWithdrawalRepository) Create(ctx context.Context, q repository.Querier, w *domain.BoostWithdrawal) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO boost_withdrawals (id, merchant_id, requested_by, amount_paise, status, auto_approved,
		                               note, reviewed_by, reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.MerchantID, w.RequestedBy, w.AmountPaise, string(w.Status), w.AutoApproved,
		w.Note, w.ReviewedBy, w.ReviewedAt, w.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating boost withdrawal", "error", err, "merchant_id", w.MerchantID)
		return fmt.Errorf("creating boost withdrawal: %w", err)
	}
	return nil
}

func (r *PgBoostWithdrawalRepository) GetByIDForUpdate(ctx context.Context, q repository.Querier, id string) (*domain.BoostWithdrawal, error) {
	var w domain.BoostWithdrawal
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, merchant_id, requested_by, amount_paise, status, auto_approved, note,
		       reviewed_by, reviewed_at, created_at
		FROM boost_withdrawals WHERE id = $1 FOR UPDATE`, id).
		Scan(&w.ID, &w.MerchantID, &w.RequestedBy, &w.AmountPaise, &status, &w.AutoApproved, &w.Note,
			&w.ReviewedBy, &w.ReviewedAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("boost withdrawal %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error locking boost withdrawal", "error", err, "withdrawal_id", id)
		return nil, fmt.Errorf("getting boost withdrawal for update: %w", err)
	}
	w.Status = domain.RequestStatus(status)
	return &w, nil
}

func (r *PgBoostWithdrawalRepository) UpdateStatus(ctx context.Context, q repository.Querier, w *domain.BoostWithdrawal) error {
	tag, err := q.Exec(ctx, `
		UPDATE boost_withdrawals
		SET status = $2, auto_approved = $3, note = $4, reviewed_by = $5, reviewed_at = $6
		WHERE id = $1`,
		w.ID, string(w.Status), w.AutoApproved, w.Note, w.ReviewedBy, w.ReviewedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating boost withdrawal", "error", err, "withdrawal_id", w.ID)
		return fmt.Errorf("updating boost withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("boost withdrawal %s: %w", w.ID, domain.ErrNotFound)
	}
	return nil
}

// PgPayoutRepository stores wallet payout requests from agents and members.
type PgPayoutRepository struct {
	logger *slog.Logger
}

func NewPgPayoutRepository(logger *slog.Logger) repository.PayoutRepository {
	return &PgPayoutRepository{logger: logger.With("component", "payout_repository_pg")}
}

func (r *PgPayoutRepository) Create(ctx context.Context, q repository.Querier, p *domain.Payout) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO payouts (id, user_id, amount_paise, status, note, reviewed_by, reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.AmountPaise, string(p.Status), p.Note, p.ReviewedBy, p.ReviewedAt, p.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating payout", "error", err, "user_id", p.UserID)
		return fmt.Errorf("creating payout: %w", err)
	}
	return nil
}

func (r *PgPayoutRepository) GetByIDForUpdate(ctx context.Context, q repository.Querier, id string) (*domain.Payout, error) {
	var p domain.Payout
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, user_id, amount_paise, status, note, reviewed_by, reviewed_at, created_at
		FROM payouts WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.UserID, &p.AmountPaise, &status, &p.Note, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error locking payout", "error", err, "payout_id", id)
		return nil, fmt.Errorf("getting payout for update: %w", err)
	}
	p.Status = domain.RequestStatus(status)
	return &p, nil
}

func (r *PgPayoutRepository) UpdateStatus(ctx context.Context, q repository.Querier, p *domain.Payout) error {
	tag, err := q.Exec(ctx, `
		UPDATE payouts SET status = $2, note = $3, reviewed_by = $4, reviewed_at = $5 WHERE id = $1`,
		p.ID, string(p.Status), p.Note, p.ReviewedBy, p.ReviewedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating payout", "error", err, "payout_id", p.ID)
		return fmt.Errorf("updating payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// PgBoostLedgerRepository appends Boost balance movements.
type PgBoostLedgerRepository struct {
	logger *slog.Logger
}

func NewPgBoostLedgerRepository(logger *slog.Logger) repository.BoostLedgerRepository {
	return &PgBoostLedgerRepository{logger: logger.With("component", "boost_ledger_repository_pg")}
}

func (r *PgBoostLedgerRepository) Create(ctx context.Context, q repository.Querier, e *domain.BoostLedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO boost_ledger (id, merchant_id, type, amount_paise, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.MerchantID, string(e.Type), e.AmountPaise, e.SourceID, e.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending boost ledger entry", "error", err, "merchant_id", e.MerchantID, "type", e.Type)
		return fmt.Errorf("creating boost ledger entry: %w", err)
	}
	return nil
}
