package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

const paymentOrderColumns = `merchant_order_id, gateway_order_id, user_id, merchant_id, offer_id, quantity,
	amount_paise, status, redirect_url, expire_at, gateway_transaction_id, created_at, updated_at`

type PgPaymentOrderRepository struct {
	logger *slog.Logger
}

func NewPgPaymentOrderRepository(logger *slog.Logger) repository.PaymentOrderRepository {
	return &PgPaymentOrderRepository{logger: logger.With("component", "payment_order_repository_pg")}
}

func (r *PgPaymentOrderRepository) Create(ctx context.Context, q repository.Querier, o *domain.PaymentOrder) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	_, err := q.Exec(ctx, `
		INSERT INTO payment_orders (`+paymentOrderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.MerchantOrderID, o.GatewayOrderID, o.UserID, o.MerchantID, o.OfferID, o.Quantity,
		o.AmountPaise, string(o.Status), o.RedirectURL, o.ExpireAt, o.GatewayTransactionID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating payment order", "error", err, "merchant_order_id", o.MerchantOrderID)
		return fmt.Errorf("creating payment order: %w", err)
	}
	return nil
}

func (r *PgPaymentOrderRepository) Get(ctx context.Context, q repository.Querier, merchantOrderID string) (*domain.PaymentOrder, error) {
	return r.get(ctx, q, `SELECT `+paymentOrderColumns+` FROM payment_orders WHERE merchant_order_id = $1`, merchantOrderID)
}

func (r *PgPaymentOrderRepository) GetForUpdate(ctx context.Context, q repository.Querier, merchantOrderID string) (*domain.PaymentOrder, error) {
	return r.get(ctx, q, `SELECT `+paymentOrderColumns+` FROM payment_orders WHERE merchant_order_id = $1 FOR UPDATE`, merchantOrderID)
}

func (r *PgPaymentOrderRepository) get(ctx context.Context, q repository.Querier, sql, merchantOrderID string) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	var status string
	err := q.QueryRow(ctx, sql, merchantOrderID).Scan(
		&o.MerchantOrderID, &o.GatewayOrderID, &o.UserID, &o.MerchantID, &o.OfferID, &o.Quantity,
		&o.AmountPaise, &status, &o.RedirectURL, &o.ExpireAt, &o.GatewayTransactionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment order %s: %w", merchantOrderID, domain.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Error getting payment order", "error", err, "merchant_order_id", merchantOrderID)
		return nil, fmt.Errorf("getting payment order: %w", err)
	}
	o.Status = domain.PaymentOrderStatus(status)
	return &o, nil
}

func (r *PgPaymentOrderRepository) UpdateStatus(ctx context.Context, q repository.Querier, o *domain.PaymentOrder) error {
	o.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, `
		UPDATE payment_orders SET status = $2, gateway_transaction_id = $3, updated_at = $4
		WHERE merchant_order_id = $1`,
		o.MerchantOrderID, string(o.Status), o.GatewayTransactionID, o.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating payment order", "error", err, "merchant_order_id", o.MerchantOrderID)
		return fmt.Errorf("updating payment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment order %s: %w", o.MerchantOrderID, domain.ErrNotFound)
	}
	return nil
}
