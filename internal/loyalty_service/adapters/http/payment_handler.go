package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// PaymentService is the subset of app.PaymentService the handlers call.
type PaymentService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResult, error)
	GetStatus(ctx context.Context, p domain.Principal, merchantOrderID string) (*domain.PaymentOrder, error)
	HandleWebhook(ctx context.Context, rawBody []byte, authorization, xVerify string) (*domain.PaymentOrder, error)
}

type PaymentHandler struct {
	service PaymentService
	rs      *responder
	logger  *slog.Logger
}

func NewPaymentHandler(service PaymentService, rs *responder, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, rs: rs, logger: logger.With("handler", "payment")}
}

// CreatePayment handles POST /payment/create.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		h.rs.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req CreatePaymentRequestDTO
	if !h.rs.decode(w, r, &req) {
		return
	}
	if !p.CanView(req.UserID) {
		h.rs.writeError(w, r, &domain.PermissionError{Action: "create a payment for another user"})
		return
	}

	res, err := h.service.CreateOrder(r.Context(), domain.CreateOrderRequest{
		AmountPaise: req.Amount,
		UserID:      req.UserID,
		MerchantID:  req.MerchantID,
		RedirectURL: req.RedirectURL,
		CallbackURL: req.CallbackURL,
		OfferID:     req.OfferID,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, res)
}

// PaymentStatus handles GET /payment/status?merchantOrderId=.
func (h *PaymentHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		h.rs.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	merchantOrderID := r.URL.Query().Get("merchantOrderId")
	if merchantOrderID == "" {
		h.rs.writeError(w, r, domain.NewValidationError("merchantOrderId", "is required"))
		return
	}

	order, err := h.service.GetStatus(r.Context(), p, merchantOrderID)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, toPaymentStatusDTO(order))
}

// Webhook handles POST /payment/webhook. The raw body is kept intact for signature checks.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rs.writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
			return
		}
		h.logger.WarnContext(r.Context(), "Failed to read webhook body", "error", err)
		h.rs.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Could not read request body"})
		return
	}

	order, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get("Authorization"), r.Header.Get("X-VERIFY"))
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Webhook processed", "merchant_order_id", order.MerchantOrderID, "status", order.Status)
	w.WriteHeader(http.StatusOK)
}
