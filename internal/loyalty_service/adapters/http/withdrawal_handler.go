package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

type BoostWithdrawalService interface {
	RequestWithdrawal(ctx context.Context, p domain.Principal, merchantID string, amountPaise int64) (*domain.BoostWithdrawal, error)
	Approve(ctx context.Context, p domain.Principal, id string) (*domain.BoostWithdrawal, error)
	Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.BoostWithdrawal, error)
}

type PayoutService interface {
	RequestPayout(ctx context.Context, p domain.Principal, amountPaise int64) (*domain.Payout, error)
	Approve(ctx context.Context, p domain.Principal, id string) (*domain.Payout, error)
	Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.Payout, error)
}

// WithdrawalHandler serves Boost withdrawals for merchants and wallet payouts for
// agents and members.
type WithdrawalHandler struct {
	boost   BoostWithdrawalService
	payouts PayoutService
	rs      *responder
	logger  *slog.Logger
}

func NewWithdrawalHandler(boost BoostWithdrawalService, payouts PayoutService, rs *responder, logger *slog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{boost: boost, payouts: payouts, rs: rs, logger: logger.With("handler", "withdrawal")}
}

func (h *WithdrawalHandler) RequestBoostWithdrawal(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req BoostWithdrawalRequestDTO
	if !h.rs.decode(w, r, &req) {
		return
	}

	wd, err := h.boost.RequestWithdrawal(r.Context(), p, req.MerchantID, req.Amount)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusCreated, wd)
}

func (h *WithdrawalHandler) ApproveBoostWithdrawal(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	wd, err := h.boost.Approve(r.Context(), p, chi.URLParam(r, "withdrawalID"))
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, wd)
}

func (h *WithdrawalHandler) RejectBoostWithdrawal(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req ReviewRequestDTO
	if !h.rs.decodeOptional(w, r, &req) {
		return
	}
	wd, err := h.boost.Reject(r.Context(), p, chi.URLParam(r, "withdrawalID"), req.Note)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, wd)
}

func (h *WithdrawalHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req PayoutRequestDTO
	if !h.rs.decode(w, r, &req) {
		return
	}

	payout, err := h.payouts.RequestPayout(r.Context(), p, req.Amount)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusCreated, payout)
}

func (h *WithdrawalHandler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	payout, err := h.payouts.Approve(r.Context(), p, chi.URLParam(r, "payoutID"))
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, payout)
}

func (h *WithdrawalHandler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req ReviewRequestDTO
	if !h.rs.decodeOptional(w, r, &req) {
		return
	}
	payout, err := h.payouts.Reject(r.Context(), p, chi.URLParam(r, "payoutID"), req.Note)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, payout)
}
