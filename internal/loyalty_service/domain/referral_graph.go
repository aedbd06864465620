package domain

// MaxReferralDepth is the deepest upline level that earns commission.
const MaxReferralDepth = 3

// ReferralLevels holds the downline of a user split by depth.
type ReferralLevels struct {
	Level1 []string `json:"level1"`
	Level2 []string `json:"level2"`
	Level3 []string `json:"level3"`
}

// Total is the network size across all three levels.
func (l ReferralLevels) Total() int {
	return len(l.Level1) + len(l.Level2) + len(l.Level3)
}

// ComputeReferralLevels returns the level 1..3 downline of rootID from a flat user list.
// Users already placed (including the root) are never revisited, so cyclic data
// cannot loop or count anyone twice.
func ComputeReferralLevels(users []User, rootID string) ReferralLevels {
	children := make(map[string][]string, len(users))
	for _, u := range users {
		if u.ReferredBy != nil {
			children[*u.ReferredBy] = append(children[*u.ReferredBy], u.ID)
		}
	}

	seen := map[string]bool{rootID: true}
	next := func(parents []string) []string {
		var out []string
		for _, p := range parents {
			for _, c := range children[p] {
				if seen[c] {
					continue
				}
				seen[c] = true
				out = append(out, c)
			}
		}
		return out
	}

	var levels ReferralLevels
	levels.Level1 = next([]string{rootID})
	levels.Level2 = next(levels.Level1)
	levels.Level3 = next(levels.Level2)
	return levels
}

// ReferrerLookup returns the referrer of a user, or "" when the user has none.
type ReferrerLookup func(userID string) (string, error)

// Upline walks referredBy pointers from userID, returning at most maxDepth ancestors,
// nearest first. The walk stops early on a repeated id.
func Upline(userID string, maxDepth int, lookup ReferrerLookup) ([]string, error) {
	seen := map[string]bool{userID: true}
	var chain []string
	current := userID
	for len(chain) < maxDepth {
		ref, err := lookup(current)
		if err != nil {
			return nil, err
		}
		if ref == "" || seen[ref] {
			break
		}
		seen[ref] = true
		chain = append(chain, ref)
		current = ref
	}
	return chain, nil
}

// CheckReferrerAssignment validates making referrerID the referrer of userID, given the
// referrer's own ancestor chain. It rejects self-referral and cycles.
func CheckReferrerAssignment(userID, referrerID string, referrerAncestors []string) error {
	if userID == referrerID {
		return ErrReferralCycle
	}
	for _, a := range referrerAncestors {
		if a == userID {
			return ErrReferralCycle
		}
	}
	return nil
}
