package domain

import (
	"github.com/shopspring/decimal"
)

// BoostBase selects the amount the Boost percentage is applied to.
type BoostBase string

const (
	BoostBaseGross BoostBase = "gross"
	BoostBaseNet   BoostBase = "net"
)

// BoostSettings configures merchant cashback and withdrawals.
type BoostSettings struct {
	Enabled    bool            `json:"enabled"`
	Percentage decimal.Decimal `json:"percentage"`
	ApplyOn    BoostBase       `json:"apply_on"`
	// MinRedemptionPaise is the balance a merchant must hold before requesting a withdrawal.
	MinRedemptionPaise int64 `json:"min_redemption_paise"`
	// AutoApproveThresholdPaise completes requests up to this amount without review. 0 disables it.
	AutoApproveThresholdPaise int64 `json:"auto_approve_threshold_paise"`
}

// SettlementSettings is the loyalty configuration passed into each settlement.
type SettlementSettings struct {
	// CommissionPaise is indexed by level-1; entries past MaxReferralDepth are ignored.
	CommissionPaise             []int64       `json:"commission_paise"`
	AutoApproveReferrals        bool          `json:"auto_approve_referrals"`
	CommissionFirstPurchaseOnly bool          `json:"commission_first_purchase_only"`
	MinPayoutPaise              int64         `json:"min_payout_paise"`
	Boost                       BoostSettings `json:"boost"`
}

// DefaultSettlementSettings mirrors the amounts observed in production data:
// 50/30/20 rupees of commission and a 555 rupee Boost redemption minimum.
func DefaultSettlementSettings() SettlementSettings {
	return SettlementSettings{
		CommissionPaise: []int64{5000, 3000, 2000},
		MinPayoutPaise:  10000,
		Boost: BoostSettings{
			Enabled:            true,
			Percentage:         decimal.NewFromInt(1),
			ApplyOn:            BoostBaseNet,
			MinRedemptionPaise: 55500,
		},
	}
}

// CommissionForLevel returns the configured commission for a 1-based level.
func (s SettlementSettings) CommissionForLevel(level int) int64 {
	if level < 1 || level > MaxReferralDepth || level > len(s.CommissionPaise) {
		return 0
	}
	if v := s.CommissionPaise[level-1]; v > 0 {
		return v
	}
	return 0
}

// Validate checks settings loaded from storage or config.
func (s SettlementSettings) Validate() error {
	verr := &ValidationError{}
	for i, v := range s.CommissionPaise {
		if v < 0 {
			verr.Add("commission_paise", "level amounts must not be negative")
			break
		}
		if i >= MaxReferralDepth {
			break
		}
	}
	if s.Boost.Percentage.IsNegative() || s.Boost.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		verr.Add("boost.percentage", "must be between 0 and 100")
	}
	switch s.Boost.ApplyOn {
	case BoostBaseGross, BoostBaseNet:
	default:
		verr.Add("boost.apply_on", "must be gross or net")
	}
	if s.Boost.MinRedemptionPaise < 0 {
		verr.Add("boost.min_redemption_paise", "must not be negative")
	}
	if s.Boost.AutoApproveThresholdPaise < 0 {
		verr.Add("boost.auto_approve_threshold_paise", "must not be negative")
	}
	if s.MinPayoutPaise < 0 {
		verr.Add("min_payout_paise", "must not be negative")
	}
	return verr.OrNil()
}
