package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/app"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

type ReferralService interface {
	GetNetwork(ctx context.Context, p domain.Principal, userID string) (*app.NetworkSummary, error)
	AssignReferrer(ctx context.Context, p domain.Principal, userID, referrerID string) (*domain.User, error)
	ApproveReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error)
	RejectReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error)
}

type ReferralHandler struct {
	service ReferralService
	rs      *responder
	logger  *slog.Logger
}

func NewReferralHandler(service ReferralService, rs *responder, logger *slog.Logger) *ReferralHandler {
	return &ReferralHandler{service: service, rs: rs, logger: logger.With("handler", "referral")}
}

func (h *ReferralHandler) Network(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	userID := chi.URLParam(r, "userID")
	if userID == "me" {
		userID = p.UserID
	}

	summary, err := h.service.GetNetwork(r.Context(), p, userID)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, summary)
}

func (h *ReferralHandler) AssignReferrer(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req AssignReferrerRequestDTO
	if !h.rs.decode(w, r, &req) {
		return
	}

	user, err := h.service.AssignReferrer(r.Context(), p, chi.URLParam(r, "userID"), req.ReferrerID)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, user)
}

func (h *ReferralHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	ref, err := h.service.ApproveReferral(r.Context(), p, chi.URLParam(r, "referralID"))
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, ref)
}

func (h *ReferralHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	ref, err := h.service.RejectReferral(r.Context(), p, chi.URLParam(r, "referralID"))
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	h.rs.writeJSON(w, http.StatusOK, ref)
}
