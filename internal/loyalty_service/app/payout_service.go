package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// PayoutService handles wallet withdrawals for agents and members.
type PayoutService struct {
	uow       repository.UnitOfWork
	repos     Repositories
	settings  *SettingsProvider
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewPayoutService(
	uow repository.UnitOfWork,
	repos Repositories,
	settings *SettingsProvider,
	publisher EventPublisher,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		uow:       uow,
		repos:     repos,
		settings:  settings,
		publisher: publisher,
		logger:    logger.With("service", "payout"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PayoutService) RequestPayout(ctx context.Context, p domain.Principal, amountPaise int64) (*domain.Payout, error) {
	if !p.CanRequestPayout() {
		return nil, &domain.PermissionError{Action: "request payout"}
	}
	if amountPaise <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	var payout *domain.Payout
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		settings, err := s.settings.Load(ctx, q)
		if err != nil {
			return err
		}
		if amountPaise < settings.MinPayoutPaise {
			return domain.NewValidationError("amount", fmt.Sprintf("must be at least %d paise", settings.MinPayoutPaise))
		}
		if _, err := s.repos.Users.DebitWallet(ctx, q, p.UserID, amountPaise); err != nil {
			return err
		}

		now := s.now()
		payout = &domain.Payout{
			UserID:      p.UserID,
			AmountPaise: amountPaise,
			Status:      domain.RequestStatusPending,
			CreatedAt:   now,
		}
		if err := s.repos.Payouts.Create(ctx, q, payout); err != nil {
			return err
		}
		sourceID := payout.ID
		return s.repos.Transactions.Create(ctx, q, &domain.Transaction{
			UserID:      p.UserID,
			Type:        domain.TransactionTypePayout,
			Amount:      amountPaise,
			SourceID:    &sourceID,
			Description: "Wallet payout requested",
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	withdrawalRequestsTotal.WithLabelValues("payout", string(payout.Status)).Inc()
	publishEvent(ctx, s.publisher, s.logger, domain.SubjectPayoutRequested, payoutEvent(payout))
	s.logger.InfoContext(ctx, "Payout requested", "payout_id", payout.ID, "user_id", p.UserID, "amount_paise", amountPaise)
	return payout, nil
}

func (s *PayoutService) Approve(ctx context.Context, p domain.Principal, id string) (*domain.Payout, error) {
	return s.review(ctx, p, id, domain.RequestStatusCompleted, "")
}

// Reject returns the requested amount to the user's wallet.
func (s *PayoutService) Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.Payout, error) {
	return s.review(ctx, p, id, domain.RequestStatusRejected, note)
}

func (s *PayoutService) review(ctx context.Context, p domain.Principal, id string, to domain.RequestStatus, note string) (*domain.Payout, error) {
	if !p.IsAdmin() {
		return nil, &domain.PermissionError{Action: "review payout"}
	}

	var payout *domain.Payout
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		payout, err = s.repos.Payouts.GetByIDForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if payout.Status != domain.RequestStatusPending {
			return fmt.Errorf("payout %s is %s: %w", id, payout.Status, domain.ErrInvalidStatusTransition)
		}

		now := s.now()
		reviewer := p.UserID
		payout.Status = to
		payout.ReviewedAt = &now
		payout.ReviewedBy = &reviewer
		if note != "" {
			payout.Note = note
		}

		if to == domain.RequestStatusRejected {
			if _, err := s.repos.Users.AddWallet(ctx, q, payout.UserID, payout.AmountPaise); err != nil {
				return err
			}
			sourceID := payout.ID
			if err := s.repos.Transactions.Create(ctx, q, &domain.Transaction{
				UserID:      payout.UserID,
				Type:        domain.TransactionTypeRefund,
				Amount:      payout.AmountPaise,
				SourceID:    &sourceID,
				Description: "Wallet payout rejected",
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		return s.repos.Payouts.UpdateStatus(ctx, q, payout)
	})
	if err != nil {
		return nil, err
	}

	withdrawalRequestsTotal.WithLabelValues("payout", string(payout.Status)).Inc()
	subject := domain.SubjectPayoutCompleted
	if payout.Status == domain.RequestStatusRejected {
		subject = domain.SubjectPayoutRejected
	}
	publishEvent(ctx, s.publisher, s.logger, subject, payoutEvent(payout))
	s.logger.InfoContext(ctx, "Payout reviewed", "payout_id", payout.ID, "status", payout.Status, "reviewer", p.UserID)
	return payout, nil
}

func payoutEvent(p *domain.Payout) domain.RequestEvent {
	occurred := p.CreatedAt
	if p.ReviewedAt != nil {
		occurred = *p.ReviewedAt
	}
	return domain.RequestEvent{
		RequestID:   p.ID,
		UserID:      p.UserID,
		AmountPaise: p.AmountPaise,
		Status:      p.Status,
		OccurredAt:  occurred,
	}
}
