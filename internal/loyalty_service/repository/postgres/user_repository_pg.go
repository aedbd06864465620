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

// ReferralGraphLockKey is the transaction-scoped advisory lock taken before any
// referred_by write.
const ReferralGraphLockKey int64 = 0x52454647 // "REFG"

const userColumns = `id, role, referred_by, referral_chain, wallet_balance_paise, points_balance, status, created_at, updated_at`

type PgUserRepository struct {
	logger *slog.Logger
}

func NewPgUserRepository(logger *slog.Logger) repository.UserRepository {
	return &PgUserRepository{logger: logger.With("component", "user_repository_pg")}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Role, &u.ReferredBy, &u.ReferralChain,
		&u.WalletBalancePaise, &u.PointsBalance, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, q repository.Querier, id string) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error getting user by ID", "error", err, "user_id", id)
		return nil, fmt.Errorf("getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetReferrerID(ctx context.Context, q repository.Querier, id string) (string, error) {
	var referrer *string
	err := q.QueryRow(ctx, `SELECT referred_by FROM users WHERE id = $1`, id).Scan(&referrer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return "", fmt.Errorf("getting referrer: %w", err)
	}
	if referrer == nil {
		return "", nil
	}
	return *referrer, nil
}

func (r *PgUserRepository) ListReferredBy(ctx context.Context, q repository.Querier, referrerIDs []string) ([]domain.User, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE referred_by = ANY($1) ORDER BY created_at`, referrerIDs)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing referred users", "error", err)
		return nil, fmt.Errorf("listing referred users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning referred user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating referred users: %w", err)
	}
	return users, nil
}

func (r *PgUserRepository) SetReferrer(ctx context.Context, q repository.Querier, id, referrerID string, chain []string) error {
	tag, err := q.Exec(ctx,
		`UPDATE users SET referred_by = $2, referral_chain = $3, updated_at = now() WHERE id = $1`,
		id, referrerID, chain)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error setting referrer", "error", err, "user_id", id, "referrer_id", referrerID)
		return fmt.Errorf("setting referrer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgUserRepository) SetReferralChain(ctx context.Context, q repository.Querier, id string, chain []string) error {
	tag, err := q.Exec(ctx, `UPDATE users SET referral_chain = $2, updated_at = now() WHERE id = $1`, id, chain)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating referral chain", "error", err, "user_id", id)
		return fmt.Errorf("updating referral chain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgUserRepository) LockReferralGraph(ctx context.Context, q repository.Querier) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ReferralGraphLockKey); err != nil {
		r.logger.ErrorContext(ctx, "Error locking referral graph", "error", err)
		return fmt.Errorf("locking referral graph: %w", err)
	}
	return nil
}

func (r *PgUserRepository) AddWallet(ctx context.Context, q repository.Querier, id string, delta int64) (int64, error) {
	return r.returningBalance(ctx, q, "adding to wallet", id,
		`UPDATE users SET wallet_balance_paise = wallet_balance_paise + $2, updated_at = now()
		 WHERE id = $1 RETURNING wallet_balance_paise`, delta)
}

func (r *PgUserRepository) DebitWallet(ctx context.Context, q repository.Querier, id string, amount int64) (int64, error) {
	balance, err := r.returningBalance(ctx, q, "debiting wallet", id,
		`UPDATE users SET wallet_balance_paise = wallet_balance_paise - $2, updated_at = now()
		 WHERE id = $1 AND wallet_balance_paise >= $2 RETURNING wallet_balance_paise`, amount)
	if errors.Is(err, domain.ErrNotFound) {
		// Either the user is gone or the guard failed; tell them apart.
		if _, getErr := r.GetByID(ctx, q, id); getErr != nil {
			return 0, getErr
		}
		return 0, domain.ErrInsufficientBalance
	}
	return balance, err
}

func (r *PgUserRepository) AddPoints(ctx context.Context, q repository.Querier, id string, delta int64) (int64, error) {
	return r.returningBalance(ctx, q, "adding points", id,
		`UPDATE users SET points_balance = points_balance + $2, updated_at = now()
		 WHERE id = $1 RETURNING points_balance`, delta)
}

func (r *PgUserRepository) returningBalance(ctx context.Context, q repository.Querier, op, id, sql string, amount int64) (int64, error) {
	var balance int64
	if err := q.QueryRow(ctx, sql, id, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error updating user balance", "op", op, "error", err, "user_id", id)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return balance, nil
}
