package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

const (
	tokenPath  = "/v1/oauth/token"
	payPath    = "/checkout/v2/pay"
	statusPath = "/checkout/v2/order/%s/status"

	maxResponseBody = 1 << 20
	// tokenRefreshSkew renews the access token before the gateway expires it.
	tokenRefreshSkew = 60 * time.Second
)

// Config configures the checkout client.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	ClientVersion int
	Timeout       time.Duration
	Verifier      WebhookVerifier
}

// statusError is a non-2xx answer from the gateway.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Body)
}

// PhonePeAdapter talks to the PhonePe standard checkout API. Calls go through a
// circuit breaker and are never retried here; callers poll again.
type PhonePeAdapter struct {
	cfg     Config
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewPhonePeAdapter(cfg Config, logger *slog.Logger) domain.PaymentGatewayAdapter {
	return newPhonePeAdapter(cfg, logger)
}

func newPhonePeAdapter(cfg Config, logger *slog.Logger) *PhonePeAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ClientVersion <= 0 {
		cfg.ClientVersion = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	logger = logger.With("adapter", "phonepe_gateway")

	breaker := circuitbreaker.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return isUpstreamFailure(err) }).
		WithFailureThresholdRatio(5, 10).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.Warn("Gateway circuit breaker state change", "from", stateName(e.OldState), "to", stateName(e.NewState))
		}).
		Build()

	return &PhonePeAdapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	}
	return "closed"
}

// isUpstreamFailure reports whether err says the gateway is unhealthy, as opposed to
// rejecting this particular request.
func isUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type payRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	MetaInfo        payMetaInfo `json:"metaInfo"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type payMetaInfo struct {
	UDF1 string `json:"udf1,omitempty"`
	UDF2 string `json:"udf2,omitempty"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type payResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

func (a *PhonePeAdapter) CreateOrder(ctx context.Context, req domain.GatewayOrderRequest) (*domain.GatewayOrder, error) {
	body, err := json.Marshal(payRequest{
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.AmountPaise,
		MetaInfo:        payMetaInfo{UDF1: req.UserID, UDF2: req.CallbackURL},
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			MerchantURLs: merchantURLs{RedirectURL: req.RedirectURL},
		},
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.authorizedCall(ctx, http.MethodPost, a.cfg.BaseURL+payPath, body)
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "create order", Err: err}
	}
	var resp payResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.ExternalServiceError{Op: "create order", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if resp.OrderID == "" || resp.RedirectURL == "" {
		return nil, &domain.ExternalServiceError{Op: "create order", Err: errors.New("response missing orderId or redirectUrl")}
	}

	a.logger.InfoContext(ctx, "Gateway order created", "merchant_order_id", req.MerchantOrderID, "order_id", resp.OrderID)
	return &domain.GatewayOrder{
		OrderID:     resp.OrderID,
		RedirectURL: resp.RedirectURL,
		ExpireAt:    time.UnixMilli(resp.ExpireAt).UTC(),
		State:       mapState(resp.State),
	}, nil
}

func (a *PhonePeAdapter) OrderStatus(ctx context.Context, merchantOrderID string) (*domain.GatewayOrderStatus, error) {
	endpoint := a.cfg.BaseURL + fmt.Sprintf(statusPath, url.PathEscape(merchantOrderID))
	raw, err := a.authorizedCall(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "order status", Err: err}
	}
	var resp orderPayload
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.ExternalServiceError{Op: "order status", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &domain.GatewayOrderStatus{
		MerchantOrderID: merchantOrderID,
		OrderID:         resp.OrderID,
		State:           mapState(resp.State),
		TransactionID:   resp.lastTransactionID(),
		AmountPaise:     resp.Amount,
	}, nil
}

func (a *PhonePeAdapter) ParseWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.GatewayEvent, error) {
	if err := a.cfg.Verifier.Verify(rawBody, authorization, xVerify); err != nil {
		return nil, err
	}
	return decodeWebhook(rawBody)
}

func (a *PhonePeAdapter) authorizedCall(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}
	return failsafe.With[[]byte](a.breaker).Get(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "O-Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return a.do(req)
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// accessToken returns a cached OAuth token, fetching a new one shortly before expiry.
func (a *PhonePeAdapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && a.now().Add(tokenRefreshSkew).Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("client_version", strconv.Itoa(a.cfg.ClientVersion))
	form.Set("grant_type", "client_credentials")

	raw, err := failsafe.With[[]byte](a.breaker).Get(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return a.do(req)
	})
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}
	a.token = tr.AccessToken
	a.tokenExpiry = time.Unix(tr.ExpiresAt, 0)
	return a.token, nil
}

func (a *PhonePeAdapter) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
