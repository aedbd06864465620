package domain

import (
	"context"
	"time"
)

// Kind classifies a notification for clients that render them differently.
type Kind string

const (
	KindPurchase        Kind = "purchase"
	KindCommission      Kind = "commission"
	KindBoostWithdrawal Kind = "boost_withdrawal"
	KindPayout          Kind = "payout"
	KindReferral        Kind = "referral"
)

// Notification is an in-app message for one user derived from a loyalty event.
type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Subject   string // NATS subject the event arrived on
	DedupeKey string // identical for redeliveries of the same event
	CreatedAt time.Time
}

// NotificationRepository persists notifications. Create reports false when a row with the
// same user and dedupe key already exists.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) (bool, error)
}
