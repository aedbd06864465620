package paymentgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	statusCalls atomic.Int32
	statusCode  int
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	fg := &fakeGateway{statusCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		fg.tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_at":   time.Now().Add(time.Hour).Unix(),
		})
	})
	mux.HandleFunc(payPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "O-Bearer tok-1", r.Header.Get("Authorization"))
		var body payRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PG_CHECKOUT", body.PaymentFlow.Type)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":     "OMO-" + body.MerchantOrderID,
			"state":       "PENDING",
			"expireAt":    int64(1_710_000_000_000),
			"redirectUrl": "https://pay.example/checkout",
		})
	})
	mux.HandleFunc("/checkout/v2/order/MO1/status", func(w http.ResponseWriter, r *http.Request) {
		fg.statusCalls.Add(1)
		if fg.statusCode != http.StatusOK {
			w.WriteHeader(fg.statusCode)
			_, _ = w.Write([]byte(`{"code":"INTERNAL_SERVER_ERROR"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId": "OMO-MO1",
			"state":   "COMPLETED",
			"amount":  50_000,
			"paymentDetails": []map[string]any{
				{"transactionId": "T-old", "state": "FAILED"},
				{"transactionId": "T-new", "state": "COMPLETED"},
			},
		})
	})
	fg.server = httptest.NewServer(mux)
	t.Cleanup(fg.server.Close)
	return fg
}

func newTestAdapter(fg *fakeGateway) *PhonePeAdapter {
	return newPhonePeAdapter(Config{
		BaseURL:      fg.server.URL + "/",
		ClientID:     "client-1",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
	}, testLogger())
}

func TestPhonePeAdapter_CreateOrder(t *testing.T) {
	fg := newFakeGateway(t)
	a := newTestAdapter(fg)

	order, err := a.CreateOrder(context.Background(), domain.GatewayOrderRequest{
		MerchantOrderID: "MO1", AmountPaise: 50_000, RedirectURL: "https://shop.example/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "OMO-MO1", order.OrderID)
	assert.Equal(t, "https://pay.example/checkout", order.RedirectURL)
	assert.Equal(t, domain.PaymentOrderStatusPending, order.State)
	assert.Equal(t, int64(1_710_000_000_000), order.ExpireAt.UnixMilli())
}

func TestPhonePeAdapter_OrderStatusReusesToken(t *testing.T) {
	fg := newFakeGateway(t)
	a := newTestAdapter(fg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := a.OrderStatus(ctx, "MO1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentOrderStatusSuccess, st.State)
		assert.Equal(t, "T-new", st.TransactionID)
		assert.Equal(t, int64(50_000), st.AmountPaise)
	}
	assert.Equal(t, int32(1), fg.tokenCalls.Load())
}

func TestPhonePeAdapter_UpstreamErrorIsExternal(t *testing.T) {
	fg := newFakeGateway(t)
	fg.statusCode = http.StatusBadGateway
	a := newTestAdapter(fg)

	_, err := a.OrderStatus(context.Background(), "MO1")
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "order status", ext.Op)
	assert.Equal(t, int32(1), fg.statusCalls.Load(), "calls are not retried")
}

func TestPhonePeAdapter_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	fg := newFakeGateway(t)
	fg.statusCode = http.StatusServiceUnavailable
	a := newTestAdapter(fg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = a.OrderStatus(ctx, "MO1")
	}
	assert.True(t, a.breaker.IsOpen())

	calls := fg.statusCalls.Load()
	_, err := a.OrderStatus(ctx, "MO1")
	require.Error(t, err)
	assert.Equal(t, calls, fg.statusCalls.Load(), "open breaker short-circuits")
}

func TestPhonePeAdapter_ParseWebhook(t *testing.T) {
	v := WebhookVerifier{Username: "hook", Password: "pass"}
	a := newPhonePeAdapter(Config{BaseURL: "http://unused", Verifier: v}, testLogger())
	body := []byte(`{"event":"checkout.order.completed","payload":{"merchantOrderId":"MO1","orderId":"OMO1","state":"COMPLETED","amount":50000,"paymentDetails":[{"transactionId":"T1"}]}}`)
	ctx := context.Background()

	ev, err := a.ParseWebhook(ctx, body, v.AuthorizationHeader(), "")
	require.NoError(t, err)
	assert.Equal(t, "checkout.order.completed", ev.Type)
	assert.Equal(t, "MO1", ev.MerchantOrderID)
	assert.Equal(t, domain.PaymentOrderStatusSuccess, ev.State)
	assert.Equal(t, "T1", ev.TransactionID)
	assert.Equal(t, int64(50_000), ev.AmountPaise)

	_, err = a.ParseWebhook(ctx, body, "deadbeef", "")
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestDecodeWebhook_LegacyResponse(t *testing.T) {
	inner := `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"MO9","transactionId":"T9","amount":1200}}`
	body := []byte(`{"response":"` + base64.StdEncoding.EncodeToString([]byte(inner)) + `"}`)

	ev, err := decodeWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "MO9", ev.MerchantOrderID)
	assert.Equal(t, domain.PaymentOrderStatusSuccess, ev.State)
	assert.Equal(t, int64(1200), ev.AmountPaise)

	_, err = decodeWebhook([]byte(`{}`))
	assert.Error(t, err)
	_, err = decodeWebhook([]byte(`{"response":"%%%"}`))
	assert.Error(t, err)
}

func TestMapState(t *testing.T) {
	cases := map[string]domain.PaymentOrderStatus{
		"COMPLETED":       domain.PaymentOrderStatusSuccess,
		"payment_success": domain.PaymentOrderStatusSuccess,
		"FAILED":          domain.PaymentOrderStatusFailed,
		"PAYMENT_ERROR":   domain.PaymentOrderStatusFailed,
		"PENDING":         domain.PaymentOrderStatusPending,
		"":                domain.PaymentOrderStatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapState(in), in)
	}
}
