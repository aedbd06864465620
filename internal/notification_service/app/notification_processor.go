package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	loyalty "github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/notification_service/domain"
)

// ErrUndecodable marks an event payload that will never decode; redelivery cannot help.
var ErrUndecodable = errors.New("undecodable event payload")

// NotificationProcessor turns loyalty events into per-user notifications.
type NotificationProcessor struct {
	repo   domain.NotificationRepository
	logger *slog.Logger
}

func NewNotificationProcessor(repo domain.NotificationRepository, logger *slog.Logger) *NotificationProcessor {
	return &NotificationProcessor{repo: repo, logger: logger.With("component", "notification_processor")}
}

// Process stores the notifications for one event. Unknown subjects are ignored.
func (p *NotificationProcessor) Process(ctx context.Context, subject string, data []byte) error {
	notes, err := p.build(subject, data)
	if err != nil {
		eventsProcessedTotal.WithLabelValues(subject, "error_decode").Inc()
		return err
	}
	if len(notes) == 0 {
		eventsProcessedTotal.WithLabelValues(subject, "ignored").Inc()
		p.logger.DebugContext(ctx, "No notifications for event", "subject", subject)
		return nil
	}

	for _, n := range notes {
		n.Subject = subject
		created, err := p.repo.Create(ctx, n)
		if err != nil {
			eventsProcessedTotal.WithLabelValues(subject, "error_db_save").Inc()
			return fmt.Errorf("saving notification for %s: %w", n.UserID, err)
		}
		if !created {
			p.logger.DebugContext(ctx, "Duplicate notification skipped", "user_id", n.UserID, "dedupe_key", n.DedupeKey)
			continue
		}
		notificationsCreatedTotal.WithLabelValues(string(n.Kind)).Inc()
	}
	eventsProcessedTotal.WithLabelValues(subject, "success").Inc()
	return nil
}

func (p *NotificationProcessor) build(subject string, data []byte) ([]*domain.Notification, error) {
	switch {
	case subject == loyalty.SubjectPurchaseSettled:
		var ev loyalty.PurchaseSettledEvent
		if err := decode(data, &ev); err != nil {
			return nil, err
		}
		return purchaseNotifications(ev), nil

	case strings.HasPrefix(subject, "loyalty.boost_withdrawal."):
		var ev loyalty.RequestEvent
		if err := decode(data, &ev); err != nil {
			return nil, err
		}
		return []*domain.Notification{requestNotification(domain.KindBoostWithdrawal, "Boost withdrawal", subject, ev)}, nil

	case strings.HasPrefix(subject, "loyalty.payout."):
		var ev loyalty.RequestEvent
		if err := decode(data, &ev); err != nil {
			return nil, err
		}
		return []*domain.Notification{requestNotification(domain.KindPayout, "Payout", subject, ev)}, nil

	case subject == loyalty.SubjectReferralApproved || subject == loyalty.SubjectReferralRejected:
		var ev loyalty.ReferralEvent
		if err := decode(data, &ev); err != nil {
			return nil, err
		}
		return []*domain.Notification{referralNotification(ev)}, nil
	}
	return nil, nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}

func purchaseNotifications(ev loyalty.PurchaseSettledEvent) []*domain.Notification {
	if ev.UserID == "" {
		return nil
	}
	body := fmt.Sprintf("Your purchase of %s earned %d points.", rupees(ev.AmountPaise), ev.PointsAwarded)
	if ev.LuckyDrawEntry {
		body += " You are entered in today's lucky draw."
	}
	notes := []*domain.Notification{{
		UserID:    ev.UserID,
		Kind:      domain.KindPurchase,
		Title:     "Purchase rewarded",
		Body:      body,
		DedupeKey: "purchase:" + ev.SettlementKey,
	}}
	for _, c := range ev.Commissions {
		// Approved commissions arrive separately on the referral approved subject.
		if c.Status != loyalty.ReferralStatusPending {
			continue
		}
		notes = append(notes, &domain.Notification{
			UserID: c.ReferrerID,
			Kind:   domain.KindCommission,
			Title:  "Referral commission",
			Body: fmt.Sprintf("A purchase in your network earned you a level %d commission of %s. It is pending approval.",
				c.Level, rupees(c.AmountPaise)),
			DedupeKey: "commission:" + ev.SettlementKey,
		})
	}
	return notes
}

func requestNotification(kind domain.Kind, label, subject string, ev loyalty.RequestEvent) *domain.Notification {
	var title, body string
	amount := rupees(ev.AmountPaise)
	switch ev.Status {
	case loyalty.RequestStatusCompleted:
		title = label + " completed"
		body = fmt.Sprintf("Your %s of %s has been paid out.", strings.ToLower(label), amount)
		if ev.AutoApproved {
			body = fmt.Sprintf("Your %s of %s was approved automatically.", strings.ToLower(label), amount)
		}
	case loyalty.RequestStatusRejected:
		title = label + " rejected"
		body = fmt.Sprintf("Your %s of %s was rejected and the amount returned to your balance.", strings.ToLower(label), amount)
	default:
		title = label + " requested"
		body = fmt.Sprintf("Your %s of %s is awaiting review.", strings.ToLower(label), amount)
	}
	return &domain.Notification{
		UserID:    ev.UserID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		DedupeKey: subject + ":" + ev.RequestID,
	}
}

func referralNotification(ev loyalty.ReferralEvent) *domain.Notification {
	n := &domain.Notification{
		UserID:    ev.ReferrerID,
		Kind:      domain.KindReferral,
		DedupeKey: "referral:" + ev.ReferralID + ":" + string(ev.Status),
	}
	if ev.Status == loyalty.ReferralStatusApproved {
		n.Title = "Commission approved"
		n.Body = fmt.Sprintf("Your level %d commission of %s was credited to your wallet.", ev.Level, rupees(ev.AmountPaise))
	} else {
		n.Title = "Commission rejected"
		n.Body = fmt.Sprintf("Your level %d commission of %s was not approved.", ev.Level, rupees(ev.AmountPaise))
	}
	return n
}

// rupees renders paise as a rupee amount with two decimals.
func rupees(paise int64) string {
	return "₹" + decimal.New(paise, -2).StringFixed(2)
}
