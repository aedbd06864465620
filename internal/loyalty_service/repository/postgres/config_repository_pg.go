package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// SettlementSettingsKey is the app_settings row holding the loyalty configuration.
const SettlementSettingsKey = "loyalty"

type PgSlabRepository struct {
	logger *slog.Logger
}

func NewPgSlabRepository(logger *slog.Logger) repository.SlabRepository {
	return &PgSlabRepository{logger: logger.With("component", "slab_repository_pg")}
}

func (r *PgSlabRepository) ListByCategory(ctx context.Context, q repository.Querier, categoryKey string) ([]domain.LoyaltySlab, error) {
	rows, err := q.Query(ctx, `
		SELECT category_key, min_amount_paise, max_amount_paise, points
		FROM loyalty_slabs
		WHERE category_key = $1
		ORDER BY min_amount_paise ASC`, categoryKey)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing loyalty slabs", "error", err, "category_key", categoryKey)
		return nil, fmt.Errorf("listing loyalty slabs: %w", err)
	}
	defer rows.Close()

	var slabs []domain.LoyaltySlab
	for rows.Next() {
		var s domain.LoyaltySlab
		if err := rows.Scan(&s.CategoryKey, &s.MinAmountPaise, &s.MaxAmountPaise, &s.Points); err != nil {
			return nil, fmt.Errorf("scanning loyalty slab: %w", err)
		}
		slabs = append(slabs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating loyalty slabs: %w", err)
	}
	return slabs, nil
}

type PgLuckyDrawRepository struct {
	logger *slog.Logger
}

func NewPgLuckyDrawRepository(logger *slog.Logger) repository.LuckyDrawRepository {
	return &PgLuckyDrawRepository{logger: logger.With("component", "lucky_draw_repository_pg")}
}

func (r *PgLuckyDrawRepository) GetConfig(ctx context.Context, q repository.Querier, drawDate string) (*domain.LuckyDrawConfig, error) {
	var cfg domain.LuckyDrawConfig
	err := q.QueryRow(ctx, `
		SELECT to_char(draw_date, 'YYYY-MM-DD'), enabled, min_purchase_rupees
		FROM lucky_draw_configs WHERE draw_date = $1::date`, drawDate).
		Scan(&cfg.DrawDate, &cfg.Enabled, &cfg.MinPurchaseRupees)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error loading lucky draw config", "error", err, "draw_date", drawDate)
		return nil, fmt.Errorf("getting lucky draw config: %w", err)
	}
	return &cfg, nil
}

func (r *PgLuckyDrawRepository) CreateEntry(ctx context.Context, q repository.Querier, e *domain.LuckyDrawEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO lucky_draw_entries (id, draw_date, user_id, merchant_id, transaction_id, amount_paise, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)`,
		e.ID, e.DrawDate, e.UserID, e.MerchantID, e.TransactionID, e.AmountPaise, e.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating lucky draw entry", "error", err, "user_id", e.UserID, "draw_date", e.DrawDate)
		return fmt.Errorf("creating lucky draw entry: %w", err)
	}
	return nil
}

type PgSettingsRepository struct {
	logger *slog.Logger
}

func NewPgSettingsRepository(logger *slog.Logger) repository.SettingsRepository {
	return &PgSettingsRepository{logger: logger.With("component", "settings_repository_pg")}
}

func (r *PgSettingsRepository) LoadSettlementSettings(ctx context.Context, q repository.Querier) (*domain.SettlementSettings, error) {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, SettlementSettingsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error loading settlement settings", "error", err)
		return nil, fmt.Errorf("loading settlement settings: %w", err)
	}

	settings := domain.DefaultSettlementSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decoding settlement settings: %w", err)
	}
	return &settings, nil
}
