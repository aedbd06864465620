package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// Querier defines a common interface for pgxpool.Pool and pgx.Tx for repository methods
// that need to run within or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UnitOfWork runs fn inside a single database transaction. Returning an error from fn
// rolls back every write made through the Querier.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(q Querier) error) error
}

type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id string) (*domain.User, error)
	// GetReferrerID returns "" when the user has no referrer.
	GetReferrerID(ctx context.Context, q Querier, id string) (string, error)
	ListReferredBy(ctx context.Context, q Querier, referrerIDs []string) ([]domain.User, error)
	SetReferrer(ctx context.Context, q Querier, id, referrerID string, chain []string) error
	SetReferralChain(ctx context.Context, q Querier, id string, chain []string) error
	// LockReferralGraph serialises referrer changes until the surrounding transaction ends.
	LockReferralGraph(ctx context.Context, q Querier) error
	// AddWallet atomically adds delta and returns the new balance.
	AddWallet(ctx context.Context, q Querier, id string, delta int64) (int64, error)
	// DebitWallet atomically subtracts amount, failing with domain.ErrInsufficientBalance
	// rather than going negative.
	DebitWallet(ctx context.Context, q Querier, id string, amount int64) (int64, error)
	AddPoints(ctx context.Context, q Querier, id string, delta int64) (int64, error)
}

type MerchantRepository interface {
	GetByID(ctx context.Context, q Querier, id string) (*domain.Merchant, error)
	CreditBoost(ctx context.Context, q Querier, id string, amount int64) (int64, error)
	// DebitBoost fails with domain.ErrInsufficientBalance rather than going negative.
	DebitBoost(ctx context.Context, q Querier, id string, amount int64) (int64, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, q Querier, txn *domain.Transaction) error
	ListByUser(ctx context.Context, q Querier, userID string, limit, offset int) ([]domain.Transaction, error)
	CountByUserAndType(ctx context.Context, q Querier, userID string, txType domain.TransactionType) (int, error)
}

type ReferralRepository interface {
	Create(ctx context.Context, q Querier, r *domain.Referral) error
	GetByIDForUpdate(ctx context.Context, q Querier, id string) (*domain.Referral, error)
	UpdateStatus(ctx context.Context, q Querier, r *domain.Referral) error
	ListByReferrer(ctx context.Context, q Querier, referrerID string, limit, offset int) ([]domain.Referral, error)
}

type BoostWithdrawalRepository interface {
	Create(ctx context.Context, q Querier, w *domain.BoostWithdrawal) error
	GetByIDForUpdate(ctx context.Context, q Querier, id string) (*domain.BoostWithdrawal, error)
	UpdateStatus(ctx context.Context, q Querier, w *domain.BoostWithdrawal) error
}

type BoostLedgerRepository interface {
	Create(ctx context.Context, q Querier, e *domain.BoostLedgerEntry) error
}

type PayoutRepository interface {
	Create(ctx context.Context, q Querier, p *domain.Payout) error
	GetByIDForUpdate(ctx context.Context, q Querier, id string) (*domain.Payout, error)
	UpdateStatus(ctx context.Context, q Querier, p *domain.Payout) error
}

type SlabRepository interface {
	// ListByCategory returns slabs sorted ascending by min amount.
	ListByCategory(ctx context.Context, q Querier, categoryKey string) ([]domain.LoyaltySlab, error)
}

type LuckyDrawRepository interface {
	// GetConfig returns nil, nil when no draw is configured for the date.
	GetConfig(ctx context.Context, q Querier, drawDate string) (*domain.LuckyDrawConfig, error)
	CreateEntry(ctx context.Context, q Querier, e *domain.LuckyDrawEntry) error
}

type SettlementRepository interface {
	// Claim inserts the settlement key. It returns domain.ErrAlreadySettled when the key exists.
	Claim(ctx context.Context, q Querier, key string) error
	Complete(ctx context.Context, q Querier, s *domain.Settlement) error
	Get(ctx context.Context, q Querier, key string) (*domain.Settlement, error)
}

type SettingsRepository interface {
	// LoadSettlementSettings returns nil, nil when nothing is stored.
	LoadSettlementSettings(ctx context.Context, q Querier) (*domain.SettlementSettings, error)
}

type PaymentOrderRepository interface {
	Create(ctx context.Context, q Querier, o *domain.PaymentOrder) error
	Get(ctx context.Context, q Querier, merchantOrderID string) (*domain.PaymentOrder, error)
	GetForUpdate(ctx context.Context, q Querier, merchantOrderID string) (*domain.PaymentOrder, error)
	UpdateStatus(ctx context.Context, q Querier, o *domain.PaymentOrder) error
}
