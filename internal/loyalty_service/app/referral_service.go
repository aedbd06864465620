package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
)

// maxAncestorWalk bounds the upline walk used for cycle detection on assignment.
const maxAncestorWalk = 10000

// NetworkSummary is a user's downline grouped by depth.
type NetworkSummary struct {
	UserID string                `json:"userId"`
	Levels domain.ReferralLevels `json:"levels"`
	Total  int                   `json:"total"`
}

type ReferralService struct {
	uow       repository.UnitOfWork
	repos     Repositories
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewReferralService(uow repository.UnitOfWork, repos Repositories, publisher EventPublisher, logger *slog.Logger) *ReferralService {
	return &ReferralService{
		uow:       uow,
		repos:     repos,
		publisher: publisher,
		logger:    logger.With("service", "referral"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetNetwork returns the users referred by userID, up to three levels deep.
func (s *ReferralService) GetNetwork(ctx context.Context, p domain.Principal, userID string) (*NetworkSummary, error) {
	if !p.CanView(userID) {
		return nil, &domain.PermissionError{Action: "view referral network"}
	}

	var levels domain.ReferralLevels
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		if _, err := s.repos.Users.GetByID(ctx, q, userID); err != nil {
			return err
		}

		var all []domain.User
		frontier := []string{userID}
		for depth := 0; depth < domain.MaxReferralDepth && len(frontier) > 0; depth++ {
			users, err := s.repos.Users.ListReferredBy(ctx, q, frontier)
			if err != nil {
				return err
			}
			all = append(all, users...)
			frontier = frontier[:0]
			for _, u := range users {
				frontier = append(frontier, u.ID)
			}
		}
		levels = domain.ComputeReferralLevels(all, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &NetworkSummary{UserID: userID, Levels: levels, Total: levels.Total()}, nil
}

// AssignReferrer links userID under referrerID. The cycle check and every chain rewrite
// run while the referral graph lock is held, so concurrent assignments cannot interleave.
func (s *ReferralService) AssignReferrer(ctx context.Context, p domain.Principal, userID, referrerID string) (*domain.User, error) {
	if !p.IsAdmin() {
		return nil, &domain.PermissionError{Action: "assign referrer"}
	}
	if referrerID == "" {
		return nil, domain.NewValidationError("referrerId", "is required")
	}

	var (
		updated   *domain.User
		rewritten int
	)
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		if err := s.repos.Users.LockReferralGraph(ctx, q); err != nil {
			return err
		}
		if _, err := s.repos.Users.GetByID(ctx, q, userID); err != nil {
			return err
		}
		if _, err := s.repos.Users.GetByID(ctx, q, referrerID); err != nil {
			return err
		}

		ancestors, err := domain.Upline(referrerID, maxAncestorWalk, func(id string) (string, error) {
			return s.repos.Users.GetReferrerID(ctx, q, id)
		})
		if err != nil {
			return fmt.Errorf("resolving referrer upline: %w", err)
		}
		if err := domain.CheckReferrerAssignment(userID, referrerID, ancestors); err != nil {
			return err
		}

		chain := append([]string{referrerID}, ancestors...)
		if err := s.repos.Users.SetReferrer(ctx, q, userID, referrerID, chain); err != nil {
			return err
		}
		rewritten, err = s.rewriteDescendantChains(ctx, q, userID, chain)
		if err != nil {
			return err
		}
		updated, err = s.repos.Users.GetByID(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Referrer assigned", "user_id", userID, "referrer_id", referrerID, "descendants_updated", rewritten)
	return updated, nil
}

// rewriteDescendantChains recomputes referral_chain for everyone below rootID, level by
// level, and returns how many users were updated.
func (s *ReferralService) rewriteDescendantChains(ctx context.Context, q repository.Querier, rootID string, rootChain []string) (int, error) {
	chains := map[string][]string{rootID: rootChain}
	frontier := []string{rootID}
	count := 0
	for len(frontier) > 0 {
		children, err := s.repos.Users.ListReferredBy(ctx, q, frontier)
		if err != nil {
			return count, err
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := chains[child.ID]; seen || child.ReferredBy == nil {
				continue
			}
			parent := *child.ReferredBy
			chain := append([]string{parent}, chains[parent]...)
			if err := s.repos.Users.SetReferralChain(ctx, q, child.ID, chain); err != nil {
				return count, err
			}
			chains[child.ID] = chain
			next = append(next, child.ID)
			count++
		}
		frontier = next
	}
	return count, nil
}

// ApproveReferral credits the referrer's wallet for a pending commission.
func (s *ReferralService) ApproveReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error) {
	return s.review(ctx, p, referralID, domain.ReferralStatusApproved)
}

// RejectReferral closes a pending commission without crediting anything.
func (s *ReferralService) RejectReferral(ctx context.Context, p domain.Principal, referralID string) (*domain.Referral, error) {
	return s.review(ctx, p, referralID, domain.ReferralStatusRejected)
}

func (s *ReferralService) review(ctx context.Context, p domain.Principal, referralID string, to domain.ReferralStatus) (*domain.Referral, error) {
	if !p.IsAdmin() {
		return nil, &domain.PermissionError{Action: "review referral commission"}
	}

	var ref *domain.Referral
	err := s.uow.WithinTx(ctx, func(q repository.Querier) error {
		var err error
		ref, err = s.repos.Referrals.GetByIDForUpdate(ctx, q, referralID)
		if err != nil {
			return err
		}
		if ref.Status != domain.ReferralStatusPending {
			return fmt.Errorf("referral %s is %s: %w", referralID, ref.Status, domain.ErrInvalidStatusTransition)
		}

		now := s.now()
		reviewer := p.UserID
		ref.Status = to
		ref.ReviewedAt = &now
		ref.ReviewedBy = &reviewer

		if to == domain.ReferralStatusApproved {
			if err := creditCommission(ctx, q, s.repos, ref, now); err != nil {
				return err
			}
		}
		return s.repos.Referrals.UpdateStatus(ctx, q, ref)
	})
	if err != nil {
		return nil, err
	}

	subject := domain.SubjectReferralRejected
	if to == domain.ReferralStatusApproved {
		subject = domain.SubjectReferralApproved
	}
	publishEvent(ctx, s.publisher, s.logger, subject, referralEvent(*ref))
	s.logger.InfoContext(ctx, "Referral reviewed", "referral_id", ref.ID, "status", ref.Status, "reviewer", p.UserID)
	return ref, nil
}
