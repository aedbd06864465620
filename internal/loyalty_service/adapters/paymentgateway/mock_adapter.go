package paymentgateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// MockPaymentGatewayAdapter is an in-process gateway for local runs. Orders settle as
// successful on the first status check unless SimulatePaymentFailure is set. Webhooks
// are verified with the same verifier as the real adapter.
type MockPaymentGatewayAdapter struct {
	logger                 *slog.Logger
	verifier               WebhookVerifier
	SimulateCreateFailure  bool
	SimulatePaymentFailure bool

	mu     sync.Mutex
	orders map[string]mockOrder
}

type mockOrder struct {
	orderID     string
	amountPaise int64
}

func NewMockPaymentGatewayAdapter(logger *slog.Logger, verifier WebhookVerifier, createFail, paymentFail bool) *MockPaymentGatewayAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockPaymentGatewayAdapter{
		logger:                 logger.With("adapter", "mock_payment_gateway"),
		verifier:               verifier,
		SimulateCreateFailure:  createFail,
		SimulatePaymentFailure: paymentFail,
		orders:                 make(map[string]mockOrder),
	}
}

func (m *MockPaymentGatewayAdapter) CreateOrder(ctx context.Context, req domain.GatewayOrderRequest) (*domain.GatewayOrder, error) {
	m.logger.InfoContext(ctx, "Mock gateway CreateOrder called", "merchant_order_id", req.MerchantOrderID, "amount_paise", req.AmountPaise)

	if m.SimulateCreateFailure {
		return nil, &domain.ExternalServiceError{Op: "create order", Err: errors.New("mock gateway simulated failure")}
	}

	orderID := "OMO" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	m.mu.Lock()
	m.orders[req.MerchantOrderID] = mockOrder{orderID: orderID, amountPaise: req.AmountPaise}
	m.mu.Unlock()

	return &domain.GatewayOrder{
		OrderID:     orderID,
		RedirectURL: "https://mockgateway.dev/checkout/" + orderID,
		ExpireAt:    time.Now().Add(20 * time.Minute).UTC(),
		State:       domain.PaymentOrderStatusPending,
	}, nil
}

func (m *MockPaymentGatewayAdapter) OrderStatus(ctx context.Context, merchantOrderID string) (*domain.GatewayOrderStatus, error) {
	m.mu.Lock()
	o, ok := m.orders[merchantOrderID]
	m.mu.Unlock()
	if !ok {
		return nil, &domain.ExternalServiceError{Op: "order status", Err: errors.New("mock gateway has no such order")}
	}

	state := domain.PaymentOrderStatusSuccess
	if m.SimulatePaymentFailure {
		state = domain.PaymentOrderStatusFailed
	}
	m.logger.InfoContext(ctx, "Mock gateway OrderStatus called", "merchant_order_id", merchantOrderID, "state", state)
	return &domain.GatewayOrderStatus{
		MerchantOrderID: merchantOrderID,
		OrderID:         o.orderID,
		State:           state,
		TransactionID:   "MT" + o.orderID,
		AmountPaise:     o.amountPaise,
	}, nil
}

func (m *MockPaymentGatewayAdapter) ParseWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.GatewayEvent, error) {
	if err := m.verifier.Verify(rawBody, authorization, xVerify); err != nil {
		m.logger.WarnContext(ctx, "Mock gateway webhook signature verification failed")
		return nil, err
	}
	return decodeWebhook(rawBody)
}
