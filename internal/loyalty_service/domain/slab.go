package domain

import (
	"math"
	"strings"
)

// DefaultSlabCategory is the slab set used when a merchant has no category of its own.
const DefaultSlabCategory = "default"

// SlabPoints returns the Points for the first slab whose range contains totalAmountPaise.
// slabs must already be sorted ascending by MinAmountPaise; they are not re-sorted here.
// The result is floored and never negative.
func SlabPoints(totalAmountPaise int64, slabs []LoyaltySlab) int64 {
	for _, s := range slabs {
		if totalAmountPaise < s.MinAmountPaise {
			continue
		}
		if s.MaxAmountPaise != nil && totalAmountPaise > *s.MaxAmountPaise {
			continue
		}
		p := math.Floor(s.Points)
		if p <= 0 || math.IsNaN(p) {
			return 0
		}
		return int64(p)
	}
	return 0
}

// SlabCategoryKey picks the slab set key for a merchant: industry, then category,
// then DefaultSlabCategory. Each value is trimmed and lowercased on its own, so a
// blank industry falls through to the category.
func SlabCategoryKey(industry, category *string) string {
	for _, v := range []*string{industry, category} {
		if v == nil {
			continue
		}
		if k := strings.ToLower(strings.TrimSpace(*v)); k != "" {
			return k
		}
	}
	return DefaultSlabCategory
}
