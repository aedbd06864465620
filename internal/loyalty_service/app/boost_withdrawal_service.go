package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// BoostWithdrawalService moves merchant Boost balance through request, approval and rejection.
// The balance is debited when the request is made and refunded in full on rejection.
type BoostWithdrawalService struct {
	uow       repository.UnitOfWork
	repos     Repositories
	settings  *SettingsProvider
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewBoostWithdrawalService(
	uow repository.UnitOfWork,
	repos Repositories,
	settings *SettingsProvider,
	publisher EventPublisher,
	logger *slog.Logger,
) *BoostWithdrawalService {
	return &BoostWithdrawalService{
		uow:       uow,
		repos:     repos,
		settings:  settings,
		publisher: publisher,
		logger:    logger.With("service", "boost_withdrawal"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *BoostWithdrawalService) RequestWithdrawal(ctx context.Context, p domain.Principal, merchantID string, amountPaise int64) (*domain.BoostWithdrawal, error) {
	if amountPaise <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	var w *domain.BoostWithdrawal
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		merchant, err := s.repos.Merchants.GetByID(ctx, q, merchantID)
		if err != nil {
			return err
		}
		if !p.OwnsMerchant(merchant) {
			return &domain.PermissionError{Action: "request boost withdrawal"}
		}

		settings, err := s.settings.Load(ctx, q)
		if err != nil {
			return err
		}
		if threshold := settings.Boost.MinRedemptionPaise; merchant.BoostBalancePaise < threshold {
			return &domain.ThresholdNotMetError{ThresholdPaise: threshold, BalancePaise: merchant.BoostBalancePaise}
		}
		if amountPaise > merchant.BoostBalancePaise {
			return domain.ErrInsufficientBalance
		}

		// The conditional decrement is the real guard against concurrent requests.
		if _, err := s.repos.Merchants.DebitBoost(ctx, q, merchantID, amountPaise); err != nil {
			return err
		}

		now := s.now()
		w = &domain.BoostWithdrawal{
			MerchantID:  merchantID,
			RequestedBy: p.UserID,
			AmountPaise: amountPaise,
			Status:      domain.RequestStatusPending,
			CreatedAt:   now,
		}
		if limit := settings.Boost.AutoApproveThresholdPaise; limit > 0 && amountPaise <= limit {
			w.Status = domain.RequestStatusCompleted
			w.AutoApproved = true
			w.ReviewedAt = &now
		}
		if err := s.repos.Withdrawals.Create(ctx, q, w); err != nil {
			return err
		}
		return s.repos.BoostLedger.Create(ctx, q, &domain.BoostLedgerEntry{
			MerchantID:  merchantID,
			Type:        domain.BoostEntryDebit,
			AmountPaise: amountPaise,
			SourceID:    w.ID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	withdrawalRequestsTotal.WithLabelValues("boost", string(w.Status)).Inc()
	subject := domain.SubjectBoostWithdrawalRequested
	if w.AutoApproved {
		subject = domain.SubjectBoostWithdrawalCompleted
	}
	publishEvent(ctx, s.publisher, s.logger, subject, withdrawalEvent(w))
	s.logger.InfoContext(ctx, "Boost withdrawal requested",
		"withdrawal_id", w.ID, "merchant_id", merchantID, "amount_paise", amountPaise, "auto_approved", w.AutoApproved)
	return w, nil
}

func (s *BoostWithdrawalService) Approve(ctx context.Context, p domain.Principal, id string) (*domain.BoostWithdrawal, error) {
	return s.review(ctx, p, id, domain.RequestStatusCompleted, "")
}

// Reject refunds the exact requested amount to the merchant's Boost balance.
func (s *BoostWithdrawalService) Reject(ctx context.Context, p domain.Principal, id, note string) (*domain.BoostWithdrawal, error) {
	return s.review(ctx, p, id, domain.RequestStatusRejected, note)
}

func (s *BoostWithdrawalService) review(ctx context.Context, p domain.Principal, id string, to domain.RequestStatus, note string) (*domain.BoostWithdrawal, error) {
	if !p.IsAdmin() {
		return nil, &domain.PermissionError{Action: "review boost withdrawal"}
	}

	var w *domain.BoostWithdrawal
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		w, err = s.repos.Withdrawals.GetByIDForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if w.Status != domain.RequestStatusPending {
			return fmt.Errorf("boost withdrawal %s is %s: %w", id, w.Status, domain.ErrInvalidStatusTransition)
		}

		now := s.now()
		reviewer := p.UserID
		w.Status = to
		w.ReviewedAt = &now
		w.ReviewedBy = &reviewer
		if note != "" {
			w.Note = note
		}

		if to == domain.RequestStatusRejected {
			if _, err := s.repos.Merchants.CreditBoost(ctx, q, w.MerchantID, w.AmountPaise); err != nil {
				return err
			}
			if err := s.repos.BoostLedger.Create(ctx, q, &domain.BoostLedgerEntry{
				MerchantID:  w.MerchantID,
				Type:        domain.BoostEntryRefund,
				AmountPaise: w.AmountPaise,
				SourceID:    w.ID,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		return s.repos.Withdrawals.UpdateStatus(ctx, q, w)
	})
	if err != nil {
		return nil, err
	}

	withdrawalRequestsTotal.WithLabelValues("boost", string(w.Status)).Inc()
	subject := domain.SubjectBoostWithdrawalCompleted
	if w.Status == domain.RequestStatusRejected {
		subject = domain.SubjectBoostWithdrawalRejected
	}
	publishEvent(ctx, s.publisher, s.logger, subject, withdrawalEvent(w))
	s.logger.InfoContext(ctx, "Boost withdrawal reviewed", "withdrawal_id", w.ID, "status", w.Status, "reviewer", p.UserID)
	return w, nil
}

func withdrawalEvent(w *domain.BoostWithdrawal) domain.RequestEvent {
	occurred := w.CreatedAt
	if w.ReviewedAt != nil {
		occurred = *w.ReviewedAt
	}
	return domain.RequestEvent{
		RequestID:    w.ID,
		UserID:       w.RequestedBy,
		MerchantID:   w.MerchantID,
		AmountPaise:  w.AmountPaise,
		Status:       w.Status,
		AutoApproved: w.AutoApproved,
		OccurredAt:   occurred,
	}
}
