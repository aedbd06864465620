package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/app"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/platform/auth"
)

type MockPaymentService struct{ mock.Mock }

func (m *MockPaymentService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*domain.CreateOrderResult)
	return res, args.Error(1)
}

func (m *MockPaymentService) GetStatus(ctx context.Context, p domain.Principal, merchantOrderID string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, p, merchantOrderID)
	o, _ := args.Get(0).(*domain.PaymentOrder)
	return o, args.Error(1)
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, rawBody, authorization, xVerify)
	o, _ := args.Get(0).(*domain.PaymentOrder)
	return o, args.Error(1)
}

type MockReferralService struct{ mock.Mock }

func (m *MockReferralService) GetNetwork(ctx context.Context, p domain.Principal, userID string) (*app.NetworkSummary, error) {
	args := m.Called(ctx, p, userID)
	s, _ := args.Get(0).(*app.NetworkSummary)
	return s, args.Error(1)
}

func (m *MockReferralService) AssignReferrer(ctx context.Context, p domain.Principal, userID, referrerID string) (*domain.User, error) {
	args := m.Called(ctx, p, userID, referrerID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *MockReferralService) ApproveReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error) {
	args := m.Called(ctx, p, referralID)
	r, _ := args.Get(0).(*domain.Referral)
	return r, args.Error(1)
}

func (m *MockReferralService) RejectReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error) {
	args := m.Called(ctx, p, referralID)
	r, _ := args.Get(0).(*domain.Referral)
	return r, args.Error(1)
}

type MockBoostService struct{ mock.Mock }

func (m *MockBoostService) RequestWithdrawal(ctx context.Context, p domain.Principal, merchantID string, amountPaise int64) (*domain.BoostWithdrawal, error) {
	args := m.Called(ctx, p, merchantID, amountPaise)
	w, _ := args.Get(0).(*domain.BoostWithdrawal)
	return w, args.Error(1)
}

func (m *MockBoostService) Approve(ctx context.Context, p domain.Principal, id string) (*domain.BoostWithdrawal, error) {
	args := m.Called(ctx, p, id)
	w, _ := args.Get(0).(*domain.BoostWithdrawal)
	return w, args.Error(1)
}

func (m *MockBoostService) Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.BoostWithdrawal, error) {
	args := m.Called(ctx, p, id, note)
	w, _ := args.Get(0).(*domain.BoostWithdrawal)
	return w, args.Error(1)
}

type MockPayoutService struct{ mock.Mock }

func (m *MockPayoutService) RequestPayout(ctx context.Context, p domain.Principal, amountPaise int64) (*domain.Payout, error) {
	args := m.Called(ctx, p, amountPaise)
	po, _ := args.Get(0).(*domain.Payout)
	return po, args.Error(1)
}

func (m *MockPayoutService) Approve(ctx context.Context, p domain.Principal, id string) (*domain.Payout, error) {
	args := m.Called(ctx, p, id)
	po, _ := args.Get(0).(*domain.Payout)
	return po, args.Error(1)
}

func (m *MockPayoutService) Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.Payout, error) {
	args := m.Called(ctx, p, id, note)
	po, _ := args.Get(0).(*domain.Payout)
	return po, args.Error(1)
}

// staticTokens maps literal bearer tokens to claims.
type staticTokens map[string]*auth.Claims

func (s staticTokens) Validate(token string) (*auth.Claims, error) {
	c, ok := s[token]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return c, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

const (
	memberToken   = "member-token"
	adminToken    = "admin-token"
	merchantToken = "merchant-token"
)

var (
	memberPrincipal   = domain.Principal{UserID: "u-member", Role: domain.RoleMember}
	adminPrincipal    = domain.Principal{UserID: "u-admin", Role: domain.RoleSuperAdmin}
	merchantPrincipal = domain.Principal{UserID: "u-shop", Role: domain.RoleMerchant}
)

type routerEnv struct {
	payments  *MockPaymentService
	referrals *MockReferralService
	boost     *MockBoostService
	payouts   *MockPayoutService
	handler   http.Handler
}

func newRouterEnv(t *testing.T, signatureStatus int) *routerEnv {
	t.Helper()
	env := &routerEnv{
		payments:  new(MockPaymentService),
		referrals: new(MockReferralService),
		boost:     new(MockBoostService),
		payouts:   new(MockPayoutService),
	}
	env.handler = NewRouter(RouterConfig{
		Payments:  env.payments,
		Referrals: env.referrals,
		Boost:     env.boost,
		Payouts:   env.payouts,
		Tokens: staticTokens{
			memberToken:   {UserID: memberPrincipal.UserID, Role: string(domain.RoleMember)},
			adminToken:    {UserID: adminPrincipal.UserID, Role: string(domain.RoleSuperAdmin)},
			merchantToken: {UserID: merchantPrincipal.UserID, Role: string(domain.RoleMerchant)},
			"odd-role":    {UserID: "u-x", Role: "owner"},
		},
		Logger:                 testLogger(),
		SignatureFailureStatus: signatureStatus,
	})
	t.Cleanup(func() {
		env.payments.AssertExpectations(t)
		env.referrals.AssertExpectations(t)
		env.boost.AssertExpectations(t)
		env.payouts.AssertExpectations(t)
	})
	return env
}

func (e *routerEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}
