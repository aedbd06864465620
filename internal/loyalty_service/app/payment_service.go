package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// Locker serialises work on one key across service instances. acquired is false when
// another holder owns the key; release must be called only when acquired is true.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}

// PaymentService bridges purchases paid through the external gateway into settlement.
type PaymentService struct {
	uow        repository.UnitOfWork
	repos      Repositories
	gateway    domain.PaymentGatewayAdapter
	settlement *SettlementService
	locker     Locker
	lockTTL    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewPaymentService(
	uow repository.UnitOfWork,
	repos Repositories,
	gateway domain.PaymentGatewayAdapter,
	settlement *SettlementService,
	locker Locker,
	lockTTL time.Duration,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		uow:        uow,
		repos:      repos,
		gateway:    gateway,
		settlement: settlement,
		locker:     locker,
		lockTTL:    lockTTL,
		logger:     logger.With("service", "payment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func newMerchantOrderID() string {
	return "MO" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *PaymentService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		if _, err := s.repos.Users.GetByID(ctx, q, req.UserID); err != nil {
			return err
		}
		_, err := s.repos.Merchants.GetByID(ctx, q, req.MerchantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	merchantOrderID := newMerchantOrderID()
	gwOrder, err := s.gateway.CreateOrder(ctx, domain.GatewayOrderRequest{
		MerchantOrderID: merchantOrderID,
		AmountPaise:     req.AmountPaise,
		RedirectURL:     req.RedirectURL,
		CallbackURL:     req.CallbackURL,
		UserID:          req.UserID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Gateway order creation failed", "merchant_order_id", merchantOrderID, "error", err)
		return nil, asExternal("create order", err)
	}

	order := &domain.PaymentOrder{
		MerchantOrderID: merchantOrderID,
		GatewayOrderID:  gwOrder.OrderID,
		UserID:          req.UserID,
		MerchantID:      req.MerchantID,
		OfferID:         req.OfferID,
		Quantity:        req.Quantity,
		AmountPaise:     req.AmountPaise,
		Status:          domain.PaymentOrderStatusPending,
		RedirectURL:     gwOrder.RedirectURL,
		ExpireAt:        gwOrder.ExpireAt,
	}
	err = s.uow.WithinTx(ctx, func(q repository.Querier) error {
		return s.repos.PaymentOrders.Create(ctx, q, order)
	})
	if err != nil {
		return nil, err
	}

	paymentOrdersTotal.WithLabelValues(string(order.Status)).Inc()
	s.logger.InfoContext(ctx, "Payment order created",
		"merchant_order_id", merchantOrderID, "gateway_order_id", gwOrder.OrderID, "amount_paise", req.AmountPaise)

	return &domain.CreateOrderResult{
		Success:         true,
		RedirectURL:     gwOrder.RedirectURL,
		MerchantOrderID: merchantOrderID,
		OrderID:         gwOrder.OrderID,
		ExpireAt:        gwOrder.ExpireAt,
	}, nil
}

// GetStatus returns the caller's order, asking the gateway when it is still pending locally.
// A success reported by the gateway settles the purchase before returning.
func (s *PaymentService) GetStatus(ctx context.Context, p domain.Principal, merchantOrderID string) (*domain.PaymentOrder, error) {
	if merchantOrderID == "" {
		return nil, domain.NewValidationError("merchantOrderId", "is required")
	}

	order, err := s.loadOrder(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if !p.CanView(order.UserID) {
		// Someone else's order is reported as absent and never reconciled.
		return nil, fmt.Errorf("payment order %s: %w", merchantOrderID, domain.ErrNotFound)
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	release, acquired := s.lock(ctx, merchantOrderID)
	if !acquired {
		// Another instance is reconciling this order; the client polls again.
		return order, nil
	}
	defer release(ctx)

	status, err := s.gateway.OrderStatus(ctx, merchantOrderID)
	if err != nil {
		s.logger.WarnContext(ctx, "Gateway status check failed", "merchant_order_id", merchantOrderID, "error", err)
		return nil, asExternal("order status", err)
	}
	if !status.State.IsTerminal() {
		return order, nil
	}

	return s.applyGatewayState(ctx, merchantOrderID, status.State, status.TransactionID, status.AmountPaise)
}

// HandleWebhook verifies and applies a gateway callback. Repeated callbacks for an
// order that is already final change nothing.
func (s *PaymentService) HandleWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.PaymentOrder, error) {
	event, err := s.gateway.ParseWebhook(ctx, rawBody, authorization, xVerify)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			webhookEventsTotal.WithLabelValues("signature_invalid").Inc()
			s.logger.WarnContext(ctx, "Rejected webhook with invalid signature")
			return nil, err
		}
		webhookEventsTotal.WithLabelValues("malformed").Inc()
		return nil, domain.NewValidationError("body", err.Error())
	}
	if event.MerchantOrderID == "" {
		webhookEventsTotal.WithLabelValues("malformed").Inc()
		return nil, domain.NewValidationError("merchantOrderId", "is required")
	}

	s.logger.InfoContext(ctx, "Payment webhook received",
		"type", event.Type, "merchant_order_id", event.MerchantOrderID, "state", event.State)

	if !event.State.IsTerminal() {
		webhookEventsTotal.WithLabelValues("ignored").Inc()
		return s.loadOrder(ctx, event.MerchantOrderID)
	}

	// The row lock and settlement key keep this correct without the distributed lock.
	release, acquired := s.lock(ctx, event.MerchantOrderID)
	if acquired {
		defer release(ctx)
	}

	order, err := s.applyGatewayState(ctx, event.MerchantOrderID, event.State, event.TransactionID, event.AmountPaise)
	if err != nil {
		webhookEventsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	webhookEventsTotal.WithLabelValues("applied").Inc()
	return order, nil
}

func (s *PaymentService) loadOrder(ctx context.Context, merchantOrderID string) (*domain.PaymentOrder, error) {
	var order *domain.PaymentOrder
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = s.repos.PaymentOrders.Get(ctx, q, merchantOrderID)
		return err
	})
	return order, err
}

// applyGatewayState moves a pending order to its final state, settling it on success.
func (s *PaymentService) applyGatewayState(ctx context.Context, merchantOrderID string, state domain.PaymentOrderStatus, gatewayTxnID string, amountPaise int64) (*domain.PaymentOrder, error) {
	var (
		order   *domain.PaymentOrder
		outcome *settlementOutcome
		changed bool
	)
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = s.repos.PaymentOrders.GetForUpdate(ctx, q, merchantOrderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return nil
		}
		if state == domain.PaymentOrderStatusSuccess && amountPaise > 0 && amountPaise != order.AmountPaise {
			return domain.NewValidationError("amount", fmt.Sprintf("gateway reported %d paise for an order of %d", amountPaise, order.AmountPaise))
		}

		if gatewayTxnID != "" {
			order.GatewayTransactionID = &gatewayTxnID
		}
		order.Status = state

		if state == domain.PaymentOrderStatusSuccess {
			outcome, err = s.settlement.settleInTx(ctx, q, domain.SettlementInput{
				Key:              order.MerchantOrderID,
				UserID:           order.UserID,
				MerchantID:       order.MerchantID,
				GrossAmountPaise: order.AmountPaise,
				OfferID:          order.OfferID,
				OccurredAt:       s.now(),
			})
			if err != nil {
				return fmt.Errorf("settling order %s: %w", merchantOrderID, err)
			}
		}
		changed = true
		return s.repos.PaymentOrders.UpdateStatus(ctx, q, order)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		s.logger.InfoContext(ctx, "Payment order already final", "merchant_order_id", merchantOrderID, "status", order.Status)
		return order, nil
	}

	paymentOrdersTotal.WithLabelValues(string(order.Status)).Inc()
	if outcome != nil {
		s.settlement.afterCommit(ctx, outcome)
	}
	s.logger.InfoContext(ctx, "Payment order resolved", "merchant_order_id", merchantOrderID, "status", order.Status)
	return order, nil
}

// lock takes the distributed lock when one is configured. Lock backend errors are
// logged and treated as acquired.
func (s *PaymentService) lock(ctx context.Context, key string) (func(context.Context), bool) {
	noop := func(context.Context) {}
	if s.locker == nil {
		return noop, true
	}
	release, acquired, err := s.locker.TryLock(ctx, "payment:"+key, s.lockTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "Settlement lock unavailable; relying on database guards", "merchant_order_id", key, "error", err)
		return noop, true
	}
	if !acquired {
		return noop, false
	}
	return release, true
}

func asExternal(op string, err error) error {
	var ext *domain.ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &domain.ExternalServiceError{Op: op, Err: err}
}
