package domain

import (
	"context"
	"net/url"
	"time"
)

// MinOrderAmountPaise is the smallest order the gateway accepts (1 rupee).
const MinOrderAmountPaise = 100

// CreateOrderRequest is a purchase the caller wants to pay for through the gateway.
type CreateOrderRequest struct {
	AmountPaise int64
	UserID      string
	MerchantID  string
	RedirectURL string
	CallbackURL string
	OfferID     *string
	Quantity    int
}

func (r CreateOrderRequest) Validate() error {
	verr := &ValidationError{}
	if r.AmountPaise < MinOrderAmountPaise {
		verr.Add("amount", "must be at least 100 paise")
	}
	if r.UserID == "" {
		verr.Add("userId", "is required")
	}
	if r.MerchantID == "" {
		verr.Add("merchantId", "is required")
	}
	if !isAbsoluteURL(r.RedirectURL) {
		verr.Add("redirectUrl", "must be an absolute URL")
	}
	if !isAbsoluteURL(r.CallbackURL) {
		verr.Add("callbackUrl", "must be an absolute URL")
	}
	if r.Quantity < 0 {
		verr.Add("quantity", "must not be negative")
	}
	return verr.OrNil()
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// CreateOrderResult is returned to the caller after the gateway accepted the order.
type CreateOrderResult struct {
	Success         bool      `json:"success"`
	RedirectURL     string    `json:"redirectUrl"`
	MerchantOrderID string    `json:"merchantOrderId"`
	OrderID         string    `json:"orderId"`
	ExpireAt        time.Time `json:"expireAt"`
}

// GatewayOrderRequest is what the gateway adapter sends upstream.
type GatewayOrderRequest struct {
	MerchantOrderID string
	AmountPaise     int64
	RedirectURL     string
	CallbackURL     string
	UserID          string
}

// GatewayOrder is the gateway's answer to an order creation.
type GatewayOrder struct {
	OrderID     string
	RedirectURL string
	ExpireAt    time.Time
	State       PaymentOrderStatus
}

// GatewayOrderStatus is the gateway's view of an order.
type GatewayOrderStatus struct {
	MerchantOrderID string
	OrderID         string
	State           PaymentOrderStatus
	TransactionID   string
	AmountPaise     int64
}

// GatewayEvent is a verified webhook callback.
type GatewayEvent struct {
	Type            string
	MerchantOrderID string
	OrderID         string
	State           PaymentOrderStatus
	TransactionID   string
	AmountPaise     int64
}

// PaymentGatewayAdapter abstracts the external payment provider.
type PaymentGatewayAdapter interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	OrderStatus(ctx context.Context, merchantOrderID string) (*GatewayOrderStatus, error)
	// ParseWebhook verifies the signature headers against the raw body and decodes it.
	// It returns ErrSignatureInvalid when verification fails.
	ParseWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*GatewayEvent, error)
}
