package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository"
	"github.com/rewardhub/loyalty_services/internal/platform/config"
)

// SettlementDefaultsFromConfig converts the rupee values in cfg into settlement settings.
func SettlementDefaultsFromConfig(cfg *config.Config) (domain.SettlementSettings, error) {
	pct, err := decimal.NewFromString(cfg.BoostPercentage)
	if err != nil {
		return domain.SettlementSettings{}, fmt.Errorf("parsing boost percentage %q: %w", cfg.BoostPercentage, err)
	}
	s := domain.SettlementSettings{
		CommissionPaise: []int64{
			cfg.CommissionLevel1Rupees * 100,
			cfg.CommissionLevel2Rupees * 100,
			cfg.CommissionLevel3Rupees * 100,
		},
		AutoApproveReferrals:        cfg.AutoApproveReferrals,
		CommissionFirstPurchaseOnly: cfg.CommissionFirstPurchaseOnly,
		MinPayoutPaise:              cfg.MinPayoutRupees * 100,
		Boost: domain.BoostSettings{
			Enabled:                   cfg.BoostEnabled,
			Percentage:                pct,
			ApplyOn:                   domain.BoostBase(cfg.BoostApplyOn),
			MinRedemptionPaise:        cfg.BoostMinRedemptionRupees * 100,
			AutoApproveThresholdPaise: cfg.BoostAutoApproveThresholdRupees * 100,
		},
	}
	if err := s.Validate(); err != nil {
		return domain.SettlementSettings{}, err
	}
	return s, nil
}

// SettingsProvider loads the live settlement settings, falling back to the configured
// defaults when nothing is stored or the stored row is invalid.
type SettingsProvider struct {
	repo     repository.SettingsRepository
	defaults domain.SettlementSettings
	logger   *slog.Logger
}

func NewSettingsProvider(repo repository.SettingsRepository, defaults domain.SettlementSettings, logger *slog.Logger) *SettingsProvider {
	return &SettingsProvider{repo: repo, defaults: defaults, logger: logger.With("component", "settings_provider")}
}

func (p *SettingsProvider) Load(ctx context.Context, q repository.Querier) (domain.SettlementSettings, error) {
	stored, err := p.repo.LoadSettlementSettings(ctx, q)
	if err != nil {
		return domain.SettlementSettings{}, err
	}
	if stored == nil {
		return p.defaults, nil
	}
	if err := stored.Validate(); err != nil {
		p.logger.WarnContext(ctx, "Stored settlement settings are invalid; using defaults", "error", err)
		return p.defaults, nil
	}
	return *stored, nil
}
