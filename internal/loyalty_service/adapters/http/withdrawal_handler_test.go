package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

func TestRequestBoostWithdrawal(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.boost.On("RequestWithdrawal", mock.Anything, merchantPrincipal, "m1", int64(60000)).
			Return(&domain.BoostWithdrawal{ID: "w1", MerchantID: "m1", AmountPaise: 60000, Status: domain.RequestStatusPending}, nil).Once()

		rr := env.do(http.MethodPost, "/boost/withdrawals", merchantToken, `{"merchantId":"m1","amount":60000}`)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"pending"`)
	})

	t.Run("below threshold reports shortfall", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.boost.On("RequestWithdrawal", mock.Anything, merchantPrincipal, "m1", int64(10000)).
			Return(nil, &domain.ThresholdNotMetError{ThresholdPaise: 55500, BalancePaise: 50000}).Once()

		rr := env.do(http.MethodPost, "/boost/withdrawals", merchantToken, `{"merchantId":"m1","amount":10000}`)

		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.NotNil(t, body.ShortfallPaise)
		assert.Equal(t, int64(5500), *body.ShortfallPaise)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		env := newRouterEnv(t, 0)

		rr := env.do(http.MethodPost, "/boost/withdrawals", merchantToken, `{"merchantId":"m1","amount":0}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestReviewBoostWithdrawal(t *testing.T) {
	env := newRouterEnv(t, 0)
	env.boost.On("Approve", mock.Anything, adminPrincipal, "w1").
		Return(&domain.BoostWithdrawal{ID: "w1", Status: domain.RequestStatusCompleted}, nil).Once()
	env.boost.On("Reject", mock.Anything, adminPrincipal, "w2", "bank details missing").
		Return(&domain.BoostWithdrawal{ID: "w2", Status: domain.RequestStatusRejected}, nil).Once()
	env.boost.On("Reject", mock.Anything, adminPrincipal, "w3", "").
		Return(nil, domain.ErrInvalidStatusTransition).Once()

	rr := env.do(http.MethodPost, "/boost/withdrawals/w1/approve", adminToken, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, "/boost/withdrawals/w2/reject", adminToken, `{"note":"bank details missing"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	// A reject without a body is allowed.
	rr = env.do(http.MethodPost, "/boost/withdrawals/w3/reject", adminToken, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestPayouts(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.payouts.On("RequestPayout", mock.Anything, memberPrincipal, int64(15000)).
			Return(&domain.Payout{ID: "p1", UserID: "u-member", AmountPaise: 15000, Status: domain.RequestStatusPending}, nil).Once()

		rr := env.do(http.MethodPost, "/payouts", memberToken, `{"amount":15000}`)
		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("insufficient wallet", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.payouts.On("RequestPayout", mock.Anything, memberPrincipal, int64(900000)).
			Return(nil, domain.ErrInsufficientBalance).Once()

		rr := env.do(http.MethodPost, "/payouts", memberToken, `{"amount":900000}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("merchant forbidden", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.payouts.On("RequestPayout", mock.Anything, merchantPrincipal, int64(15000)).
			Return(nil, &domain.PermissionError{Action: "request a payout"}).Once()

		rr := env.do(http.MethodPost, "/payouts", merchantToken, `{"amount":15000}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("review", func(t *testing.T) {
		env := newRouterEnv(t, 0)
		env.payouts.On("Approve", mock.Anything, adminPrincipal, "p1").
			Return(&domain.Payout{ID: "p1", Status: domain.RequestStatusCompleted}, nil).Once()
		env.payouts.On("Reject", mock.Anything, adminPrincipal, "p2", "duplicate").
			Return(nil, domain.ErrNotFound).Once()

		rr := env.do(http.MethodPost, "/payouts/p1/approve", adminToken, "")
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(http.MethodPost, "/payouts/p2/reject", adminToken, `{"note":"duplicate"}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
