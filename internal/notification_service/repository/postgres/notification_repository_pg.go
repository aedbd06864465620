package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rewardhub/loyalty_services/internal/notification_service/domain"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PgNotificationRepository struct {
	db     Execer
	logger *slog.Logger
}

func NewPgNotificationRepository(db Execer, logger *slog.Logger) domain.NotificationRepository {
	return &PgNotificationRepository{db: db, logger: logger.With("component", "notification_repository_pg")}
}

func (r *PgNotificationRepository) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, subject, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, dedupe_key) WHERE dedupe_key <> '' DO NOTHING`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, n.Subject, n.DedupeKey, n.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting notification", "error", err, "user_id", n.UserID, "dedupe_key", n.DedupeKey)
		return false, fmt.Errorf("inserting notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
