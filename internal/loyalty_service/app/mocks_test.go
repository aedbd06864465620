package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// --- Mocks ---

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, req domain.GatewayOrderRequest) (*domain.GatewayOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOrder), args.Error(1)
}

func (m *MockGateway) OrderStatus(ctx context.Context, merchantOrderID string) (*domain.GatewayOrderStatus, error) {
	args := m.Called(ctx, merchantOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOrderStatus), args.Error(1)
}

func (m *MockGateway) ParseWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.GatewayEvent, error) {
	args := m.Called(ctx, rawBody, authorization, xVerify)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayEvent), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	args := m.Called(ctx, key, ttl)
	release, _ := args.Get(0).(func(context.Context))
	return release, args.Bool(1), args.Error(2)
}

// --- Fixtures ---

var (
	fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	admin    = domain.Principal{UserID: "admin-1", Role: domain.RoleSuperAdmin}
	buyer    = domain.Principal{UserID: "buyer", Role: domain.RoleMember}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	db        *memDB
	publisher *MockPublisher
	settings  *SettingsProvider

	settlement *SettlementService
	referrals  *ReferralService
	boost      *BoostWithdrawalService
	payouts    *PayoutService
}

// newTestEnv builds every service over one in-memory store. Publishing always succeeds.
func newTestEnv(settings domain.SettlementSettings) *testEnv {
	db := newMemDB()
	repos := db.repositories()
	logger := testLogger()

	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	provider := NewSettingsProvider(memSettings{db}, settings, logger)
	env := &testEnv{
		db:         db,
		publisher:  pub,
		settings:   provider,
		settlement: NewSettlementService(db, repos, provider, pub, logger),
		referrals:  NewReferralService(db, repos, pub, logger),
		boost:      NewBoostWithdrawalService(db, repos, provider, pub, logger),
		payouts:    NewPayoutService(db, repos, provider, pub, logger),
	}
	clock := func() time.Time { return fixedNow }
	env.settlement.now = clock
	env.referrals.now = clock
	env.boost.now = clock
	env.payouts.now = clock
	return env
}

// seedChain creates buyer <- l1 <- l2 <- l3 <- l4 and one merchant with a slab table.
func (e *testEnv) seedChain() {
	e.db.addUser("l4", domain.RoleAgent, "")
	e.db.addUser("l3", domain.RoleAgent, "l4")
	e.db.addUser("l2", domain.RoleAgent, "l3")
	e.db.addUser("l1", domain.RoleMember, "l2")
	e.db.addUser("buyer", domain.RoleMember, "l1")
	e.db.addUser("shop-owner", domain.RoleMerchant, "")

	industry := "Food"
	e.db.merchants["m1"] = domain.Merchant{ID: "m1", OwnerUserID: "shop-owner", Industry: &industry}

	upper := int64(99_999)
	e.db.slabs["food"] = []domain.LoyaltySlab{
		{CategoryKey: "food", MinAmountPaise: 10_000, MaxAmountPaise: &upper, Points: 10},
		{CategoryKey: "food", MinAmountPaise: 100_000, Points: 75.9},
	}
}

func purchase(key string, grossPaise int64) domain.SettlementInput {
	return domain.SettlementInput{
		Key:              key,
		UserID:           "buyer",
		MerchantID:       "m1",
		GrossAmountPaise: grossPaise,
		OccurredAt:       fixedNow,
	}
}
