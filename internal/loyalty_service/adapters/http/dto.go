package http

import (
	"time"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// Amounts on the wire are integer paise.

type CreatePaymentRequestDTO struct {
	Amount      int64   `json:"amount" validate:"required,gte=100"`
	UserID      string  `json:"userId" validate:"required"`
	MerchantID  string  `json:"merchantId" validate:"required"`
	RedirectURL string  `json:"redirectUrl" validate:"required,url"`
	CallbackURL string  `json:"callbackUrl" validate:"required,url"`
	OfferID     *string `json:"offerId,omitempty" validate:"omitempty,min=1"`
	Quantity    int     `json:"quantity,omitempty" validate:"gte=0,lte=1000"`
}

type PaymentStatusResponseDTO struct {
	MerchantOrderID string    `json:"merchantOrderId"`
	OrderID         string    `json:"orderId"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	TransactionID   string    `json:"transactionId,omitempty"`
	ExpireAt        time.Time `json:"expireAt"`
}

func toPaymentStatusDTO(o *domain.PaymentOrder) PaymentStatusResponseDTO {
	dto := PaymentStatusResponseDTO{
		MerchantOrderID: o.MerchantOrderID,
		OrderID:         o.GatewayOrderID,
		Status:          string(o.Status),
		Amount:          o.AmountPaise,
		ExpireAt:        o.ExpireAt,
	}
	if o.GatewayTransactionID != nil {
		dto.TransactionID = *o.GatewayTransactionID
	}
	return dto
}

type AssignReferrerRequestDTO struct {
	ReferrerID string `json:"referrerId" validate:"required"`
}

type BoostWithdrawalRequestDTO struct {
	MerchantID string `json:"merchantId" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

type PayoutRequestDTO struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type ReviewRequestDTO struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error          string            `json:"error"`
	Fields         map[string]string `json:"fields,omitempty"`
	ShortfallPaise *int64            `json:"shortfallPaise,omitempty"`
}
