package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rewardhub/loyalty_services/internal/platform/middleware"
)

// Pinger reports whether a backing store is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Payments  PaymentService
	Referrals ReferralService
	Boost     BoostWithdrawalService
	Payouts   PayoutService
	Tokens    TokenValidator
	DB        Pinger
	Logger    *slog.Logger

	// SignatureFailureStatus is returned when a webhook fails verification. Zero means 401.
	SignatureFailureStatus int
}

func NewRouter(cfg RouterConfig) http.Handler {
	signatureStatus := cfg.SignatureFailureStatus
	if signatureStatus == 0 {
		signatureStatus = http.StatusUnauthorized
	}
	rs := &responder{logger: cfg.Logger, validate: NewValidator(), signatureStatus: signatureStatus}

	payments := NewPaymentHandler(cfg.Payments, rs, cfg.Logger)
	referrals := NewReferralHandler(cfg.Referrals, rs, cfg.Logger)
	withdrawals := NewWithdrawalHandler(cfg.Boost, cfg.Payouts, rs, cfg.Logger)

	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(middleware.HTTPLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics)
	r.Use(chi_middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.DB.Ping(ctx); err != nil {
				cfg.Logger.WarnContext(ctx, "Health check failed", "error", err)
				rs.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		rs.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The gateway authenticates with its own signature, not a bearer token.
	r.Post("/payment/webhook", payments.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Post("/payment/create", payments.CreatePayment)
		r.Get("/payment/status", payments.PaymentStatus)

		r.Get("/users/{userID}/network", referrals.Network)
		r.Post("/users/{userID}/referrer", referrals.AssignReferrer)
		r.Post("/referrals/{referralID}/approve", referrals.Approve)
		r.Post("/referrals/{referralID}/reject", referrals.Reject)

		r.Route("/boost/withdrawals", func(r chi.Router) {
			r.Post("/", withdrawals.RequestBoostWithdrawal)
			r.Post("/{withdrawalID}/approve", withdrawals.ApproveBoostWithdrawal)
			r.Post("/{withdrawalID}/reject", withdrawals.RejectBoostWithdrawal)
		})
		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", withdrawals.RequestPayout)
			r.Post("/{payoutID}/approve", withdrawals.ApprovePayout)
			r.Post("/{payoutID}/reject", withdrawals.RejectPayout)
		})
	})

	return r
}
