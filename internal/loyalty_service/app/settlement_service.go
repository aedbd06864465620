package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// SettlementService credits everything a completed purchase earns in one transaction.
type SettlementService struct {
	uow       repository.UnitOfWork
	repos     Repositories
	settings  *SettingsProvider
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewSettlementService(
	uow repository.UnitOfWork,
	repos Repositories,
	settings *SettingsProvider,
	publisher EventPublisher,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		uow:       uow,
		repos:     repos,
		settings:  settings,
		publisher: publisher,
		logger:    logger.With("service", "settlement"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type settlementOutcome struct {
	result    domain.SettlementResult
	event     *domain.PurchaseSettledEvent
	plan      domain.SettlementPlan
	referrals []domain.Referral
}

// Settle records a purchase. Settling the same key twice returns the first summary
// with Replayed set and credits nothing.
func (s *SettlementService) Settle(ctx context.Context, in domain.SettlementInput) (*domain.SettlementResult, error) {
	var out *settlementOutcome
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		out, err = s.settleInTx(ctx, q, in)
		return err
	})
	if err != nil {
		settlementsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	s.afterCommit(ctx, out)
	return &out.result, nil
}

// afterCommit records metrics and publishes the events of a committed outcome.
func (s *SettlementService) afterCommit(ctx context.Context, out *settlementOutcome) {
	if out.result.Replayed {
		settlementsTotal.WithLabelValues("replayed").Inc()
		return
	}
	settlementsTotal.WithLabelValues("settled").Inc()
	pointsAwardedTotal.Add(float64(out.plan.Points))
	boostCreditedPaiseTotal.Add(float64(out.plan.BoostCreditPaise))
	for _, c := range out.plan.Commissions {
		commissionPaiseTotal.WithLabelValues(strconv.Itoa(c.Level)).Add(float64(c.AmountPaise))
	}
	publishEvent(ctx, s.publisher, s.logger, domain.SubjectPurchaseSettled, out.event)
	for _, ref := range out.referrals {
		if ref.Status == domain.ReferralStatusApproved {
			publishEvent(ctx, s.publisher, s.logger, domain.SubjectReferralApproved, referralEvent(ref))
		}
	}
}

func (s *SettlementService) settleInTx(ctx context.Context, q repository.Querier, in domain.SettlementInput) (*settlementOutcome, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = s.now()
	}

	if err := s.repos.Settlements.Claim(ctx, q, in.Key); err != nil {
		if !errors.Is(err, domain.ErrAlreadySettled) {
			return nil, err
		}
		prior, getErr := s.repos.Settlements.Get(ctx, q, in.Key)
		if getErr != nil {
			return nil, fmt.Errorf("loading prior settlement: %w", getErr)
		}
		s.logger.InfoContext(ctx, "Settlement key already processed", "key", in.Key)
		return &settlementOutcome{result: domain.SettlementResult{Settlement: *prior, Replayed: true}}, nil
	}

	sc, err := s.loadContext(ctx, q, in)
	if err != nil {
		return nil, err
	}
	plan := domain.PlanSettlement(in, sc)

	settlement, referrals, err := s.execute(ctx, q, in, plan)
	if err != nil {
		return nil, err
	}

	commissions := make([]domain.CommissionNotice, 0, len(referrals))
	for _, ref := range referrals {
		commissions = append(commissions, domain.CommissionNotice{
			ReferralID:  ref.ID,
			ReferrerID:  ref.ReferrerID,
			Level:       ref.Level,
			AmountPaise: ref.CommissionAmountPaise,
			Status:      ref.Status,
		})
	}
	event := &domain.PurchaseSettledEvent{
		SettlementKey:      in.Key,
		UserID:             in.UserID,
		MerchantID:         in.MerchantID,
		AmountPaise:        in.FinalAmountPaise(),
		PointsAwarded:      plan.Points,
		BoostCreditedPaise: plan.BoostCreditPaise,
		Commissions:        commissions,
		LuckyDrawEntry:     settlement.LuckyDrawEntryID != nil,
		OccurredAt:         in.OccurredAt,
	}

	s.logger.InfoContext(ctx, "Purchase settled",
		"key", in.Key,
		"user_id", in.UserID,
		"merchant_id", in.MerchantID,
		"points", plan.Points,
		"commissions", len(plan.Commissions),
		"boost_paise", plan.BoostCreditPaise,
		"lucky_draw", plan.LuckyDraw,
	)
	return &settlementOutcome{
		result:    domain.SettlementResult{Settlement: *settlement},
		event:     event,
		plan:      plan,
		referrals: referrals,
	}, nil
}

func (s *SettlementService) loadContext(ctx context.Context, q repository.Querier, in domain.SettlementInput) (domain.SettlementContext, error) {
	var sc domain.SettlementContext

	if _, err := s.repos.Users.GetByID(ctx, q, in.UserID); err != nil {
		return sc, err
	}
	merchant, err := s.repos.Merchants.GetByID(ctx, q, in.MerchantID)
	if err != nil {
		return sc, err
	}

	sc.Settings, err = s.settings.Load(ctx, q)
	if err != nil {
		return sc, fmt.Errorf("loading settlement settings: %w", err)
	}

	sc.Slabs, err = s.slabsFor(ctx, q, merchant)
	if err != nil {
		return sc, err
	}

	sc.Upline, err = domain.Upline(in.UserID, domain.MaxReferralDepth, func(userID string) (string, error) {
		return s.repos.Users.GetReferrerID(ctx, q, userID)
	})
	if err != nil {
		return sc, fmt.Errorf("resolving upline: %w", err)
	}

	if sc.Settings.CommissionFirstPurchaseOnly {
		sc.PriorPurchases, err = s.repos.Transactions.CountByUserAndType(ctx, q, in.UserID, domain.TransactionTypePurchase)
		if err != nil {
			return sc, err
		}
	}

	sc.LuckyDraw, err = s.repos.LuckyDraws.GetConfig(ctx, q, in.DrawDate())
	if err != nil {
		return sc, err
	}
	return sc, nil
}

// slabsFor returns the merchant's category slabs, or the default table when the
// category has none.
func (s *SettlementService) slabsFor(ctx context.Context, q repository.Querier, m *domain.Merchant) ([]domain.LoyaltySlab, error) {
	key := domain.SlabCategoryKey(m.Industry, m.Category)
	slabs, err := s.repos.Slabs.ListByCategory(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if len(slabs) == 0 && key != domain.DefaultSlabCategory {
		return s.repos.Slabs.ListByCategory(ctx, q, domain.DefaultSlabCategory)
	}
	return slabs, nil
}

func (s *SettlementService) execute(ctx context.Context, q repository.Querier, in domain.SettlementInput, plan domain.SettlementPlan) (*domain.Settlement, []domain.Referral, error) {
	now := s.now()
	merchantID := in.MerchantID
	final := in.FinalAmountPaise()

	purchase := &domain.Transaction{
		UserID:      in.UserID,
		MerchantID:  &merchantID,
		Type:        domain.TransactionTypePurchase,
		Amount:      final,
		SourceID:    in.OfferID,
		Description: "Purchase " + in.Key,
		CreatedAt:   now,
	}
	if err := s.repos.Transactions.Create(ctx, q, purchase); err != nil {
		return nil, nil, err
	}
	sourceID := purchase.ID

	if plan.Points > 0 {
		if _, err := s.repos.Users.AddPoints(ctx, q, in.UserID, plan.Points); err != nil {
			return nil, nil, err
		}
		if err := s.repos.Transactions.Create(ctx, q, &domain.Transaction{
			UserID:      in.UserID,
			MerchantID:  &merchantID,
			Type:        domain.TransactionTypePointsEarned,
			Amount:      plan.Points,
			SourceID:    &sourceID,
			Description: "Loyalty points",
			CreatedAt:   now,
		}); err != nil {
			return nil, nil, err
		}
	}

	referrals := make([]domain.Referral, 0, len(plan.Commissions))
	for _, c := range plan.Commissions {
		ref, err := s.recordCommission(ctx, q, in, c, sourceID, now)
		if err != nil {
			return nil, nil, err
		}
		referrals = append(referrals, *ref)
	}

	if plan.BoostCreditPaise > 0 {
		if _, err := s.repos.Merchants.CreditBoost(ctx, q, in.MerchantID, plan.BoostCreditPaise); err != nil {
			return nil, nil, err
		}
		if err := s.repos.BoostLedger.Create(ctx, q, &domain.BoostLedgerEntry{
			MerchantID:  in.MerchantID,
			Type:        domain.BoostEntryCredit,
			AmountPaise: plan.BoostCreditPaise,
			SourceID:    sourceID,
			CreatedAt:   now,
		}); err != nil {
			return nil, nil, err
		}
	}

	settlement := &domain.Settlement{
		Key:                   in.Key,
		PurchaseTransactionID: sourceID,
		PointsAwarded:         plan.Points,
		BoostCreditedPaise:    plan.BoostCreditPaise,
		CommissionCount:       len(plan.Commissions),
	}

	if plan.LuckyDraw {
		entry := &domain.LuckyDrawEntry{
			DrawDate:      plan.DrawDate,
			UserID:        in.UserID,
			MerchantID:    in.MerchantID,
			TransactionID: sourceID,
			AmountPaise:   final,
			CreatedAt:     now,
		}
		if err := s.repos.LuckyDraws.CreateEntry(ctx, q, entry); err != nil {
			return nil, nil, err
		}
		settlement.LuckyDrawEntryID = &entry.ID
	}

	if err := s.repos.Settlements.Complete(ctx, q, settlement); err != nil {
		return nil, nil, err
	}
	return settlement, referrals, nil
}

// recordCommission writes the commission row for one upline member. An auto-approved
// commission is credited exactly as a manual approval would credit it.
func (s *SettlementService) recordCommission(ctx context.Context, q repository.Querier, in domain.SettlementInput, c domain.CommissionAward, sourceID string, now time.Time) (*domain.Referral, error) {
	merchantID := in.MerchantID
	if err := s.repos.Transactions.Create(ctx, q, &domain.Transaction{
		UserID:      c.ReferrerID,
		MerchantID:  &merchantID,
		Type:        domain.TransactionTypeCommission,
		Amount:      c.AmountPaise,
		SourceID:    &sourceID,
		Description: fmt.Sprintf("Level %d referral commission", c.Level),
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	ref := &domain.Referral{
		ReferrerID:            c.ReferrerID,
		ReferredID:            in.UserID,
		Level:                 c.Level,
		CommissionAmountPaise: c.AmountPaise,
		Status:                c.Status,
		SourceTransactionID:   sourceID,
		CreatedAt:             now,
	}
	if c.Status == domain.ReferralStatusApproved {
		ref.ReviewedAt = &now
	}
	if err := s.repos.Referrals.Create(ctx, q, ref); err != nil {
		return nil, err
	}
	if c.Status == domain.ReferralStatusApproved {
		if err := creditCommission(ctx, q, s.repos, ref, now); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// creditCommission moves an approved commission into the referrer's wallet and records
// the matching credit transaction, sourced on the referral.
func creditCommission(ctx context.Context, q repository.Querier, repos Repositories, ref *domain.Referral, at time.Time) error {
	if _, err := repos.Users.AddWallet(ctx, q, ref.ReferrerID, ref.CommissionAmountPaise); err != nil {
		return err
	}
	refID := ref.ID
	return repos.Transactions.Create(ctx, q, &domain.Transaction{
		UserID:      ref.ReferrerID,
		Type:        domain.TransactionTypeCredit,
		Amount:      ref.CommissionAmountPaise,
		SourceID:    &refID,
		Description: fmt.Sprintf("Level %d commission approved", ref.Level),
		CreatedAt:   at,
	})
}

func referralEvent(ref domain.Referral) domain.ReferralEvent {
	ev := domain.ReferralEvent{
		ReferralID:  ref.ID,
		ReferrerID:  ref.ReferrerID,
		Level:       ref.Level,
		AmountPaise: ref.CommissionAmountPaise,
		Status:      ref.Status,
		OccurredAt:  ref.CreatedAt,
	}
	if ref.ReviewedAt != nil {
		ev.OccurredAt = *ref.ReviewedAt
	}
	return ev
}
