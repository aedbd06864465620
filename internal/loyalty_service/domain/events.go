package domain

import "time"

// NATS subjects published by the loyalty service after a unit of work commits.
const (
	SubjectPurchaseSettled          = "loyalty.purchase.settled"
	SubjectBoostWithdrawalRequested = "loyalty.boost_withdrawal.requested"
	SubjectBoostWithdrawalCompleted = "loyalty.boost_withdrawal.completed"
	SubjectBoostWithdrawalRejected  = "loyalty.boost_withdrawal.rejected"
	SubjectPayoutRequested          = "loyalty.payout.requested"
	SubjectPayoutCompleted          = "loyalty.payout.completed"
	SubjectPayoutRejected           = "loyalty.payout.rejected"
	SubjectReferralApproved         = "loyalty.referral.approved"
	SubjectReferralRejected         = "loyalty.referral.rejected"
	SubjectAllLoyaltyEvents         = "loyalty.>"
)

// PurchaseSettledEvent is published once per settlement key.
type PurchaseSettledEvent struct {
	SettlementKey      string             `json:"settlement_key"`
	UserID             string             `json:"user_id"`
	MerchantID         string             `json:"merchant_id"`
	AmountPaise        int64              `json:"amount_paise"`
	PointsAwarded      int64              `json:"points_awarded"`
	BoostCreditedPaise int64              `json:"boost_credited_paise"`
	Commissions        []CommissionNotice `json:"commissions,omitempty"`
	LuckyDrawEntry     bool               `json:"lucky_draw_entry"`
	OccurredAt         time.Time          `json:"occurred_at"`
}

// CommissionNotice is one commission line of a settled purchase. Approved lines are
// also announced on SubjectReferralApproved.
type CommissionNotice struct {
	ReferralID  string         `json:"referral_id"`
	ReferrerID  string         `json:"referrer_id"`
	Level       int            `json:"level"`
	AmountPaise int64          `json:"amount_paise"`
	Status      ReferralStatus `json:"status"`
}

// RequestEvent describes a payout or Boost withdrawal state change.
type RequestEvent struct {
	RequestID    string        `json:"request_id"`
	UserID       string        `json:"user_id"`
	MerchantID   string        `json:"merchant_id,omitempty"`
	AmountPaise  int64         `json:"amount_paise"`
	Status       RequestStatus `json:"status"`
	AutoApproved bool          `json:"auto_approved,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// ReferralEvent describes a commission decision.
type ReferralEvent struct {
	ReferralID  string         `json:"referral_id"`
	ReferrerID  string         `json:"referrer_id"`
	Level       int            `json:"level"`
	AmountPaise int64          `json:"amount_paise"`
	Status      ReferralStatus `json:"status"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
