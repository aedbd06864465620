package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LuckyDrawDateLayout is the draw date format, evaluated in server local time.
const LuckyDrawDateLayout = "2006-01-02"

// SettlementInput is a completed purchase waiting to be settled into the ledger.
type SettlementInput struct {
	// Key makes settlement idempotent; for gateway payments it is the merchant order id.
	Key              string
	UserID           string
	MerchantID       string
	GrossAmountPaise int64
	DiscountPaise    int64
	OfferID          *string
	OccurredAt       time.Time
}

// FinalAmountPaise is the amount actually paid after discount.
func (in SettlementInput) FinalAmountPaise() int64 {
	if f := in.GrossAmountPaise - in.DiscountPaise; f > 0 {
		return f
	}
	return 0
}

// DrawDate is the lucky draw day the purchase falls on.
func (in SettlementInput) DrawDate() string {
	return in.OccurredAt.In(time.Local).Format(LuckyDrawDateLayout)
}

func (in SettlementInput) Validate() error {
	verr := &ValidationError{}
	if in.Key == "" {
		verr.Add("key", "is required")
	}
	if in.UserID == "" {
		verr.Add("user_id", "is required")
	}
	if in.MerchantID == "" {
		verr.Add("merchant_id", "is required")
	}
	if in.GrossAmountPaise <= 0 {
		verr.Add("gross_amount_paise", "must be positive")
	}
	if in.DiscountPaise < 0 || in.DiscountPaise > in.GrossAmountPaise {
		verr.Add("discount_paise", "must be between 0 and the gross amount")
	}
	return verr.OrNil()
}

// CommissionAward is the commission owed to one upline member.
type CommissionAward struct {
	Level       int
	ReferrerID  string
	AmountPaise int64
	Status      ReferralStatus
}

// SettlementPlan is everything a purchase earns, before anything is written.
type SettlementPlan struct {
	Points           int64
	Commissions      []CommissionAward
	BoostCreditPaise int64
	LuckyDraw        bool
	DrawDate         string
}

// SettlementContext carries the state a plan is computed from. All of it is loaded
// by the caller, so planning needs no I/O.
type SettlementContext struct {
	Settings SettlementSettings
	// Slabs for the merchant's category, sorted by MinAmountPaise.
	Slabs []LoyaltySlab
	// Upline is the buyer's referrers, nearest first.
	Upline []string
	// PriorPurchases counts the buyer's earlier settled purchases.
	PriorPurchases int
	LuckyDraw      *LuckyDrawConfig
}

// PlanSettlement computes the points, commissions, Boost credit and draw entry for a purchase.
func PlanSettlement(in SettlementInput, sc SettlementContext) SettlementPlan {
	final := in.FinalAmountPaise()
	plan := SettlementPlan{
		Points:   SlabPoints(final, sc.Slabs),
		DrawDate: in.DrawDate(),
	}

	if !sc.Settings.CommissionFirstPurchaseOnly || sc.PriorPurchases == 0 {
		status := ReferralStatusPending
		if sc.Settings.AutoApproveReferrals {
			status = ReferralStatusApproved
		}
		for i, referrerID := range sc.Upline {
			level := i + 1
			if level > MaxReferralDepth {
				break
			}
			amount := sc.Settings.CommissionForLevel(level)
			if amount == 0 {
				continue
			}
			plan.Commissions = append(plan.Commissions, CommissionAward{
				Level:       level,
				ReferrerID:  referrerID,
				AmountPaise: amount,
				Status:      status,
			})
		}
	}

	plan.BoostCreditPaise = BoostCredit(sc.Settings.Boost, in.GrossAmountPaise, final)

	if ld := sc.LuckyDraw; ld != nil && ld.Enabled && ld.DrawDate == plan.DrawDate {
		plan.LuckyDraw = final >= ld.MinPurchaseRupees*100
	}
	return plan
}

// BoostCredit is the cashback owed to a merchant, floored to whole paise.
func BoostCredit(bs BoostSettings, grossPaise, finalPaise int64) int64 {
	if !bs.Enabled || !bs.Percentage.IsPositive() {
		return 0
	}
	base := finalPaise
	if bs.ApplyOn == BoostBaseGross {
		base = grossPaise
	}
	credit := decimal.NewFromInt(base).Mul(bs.Percentage).Div(decimal.NewFromInt(100)).Floor()
	if !credit.IsPositive() {
		return 0
	}
	return credit.IntPart()
}

// SettlementResult is what a caller gets back from settling a purchase.
type SettlementResult struct {
	Settlement Settlement
	// Replayed is true when the key had already been settled and nothing was credited.
	Replayed bool
}
