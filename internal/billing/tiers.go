package billing

import (
	"fmt"

	decimal "github.com/shopspring/decimal"
)

// PricingTier is a user-count bracket with a flat monthly price per user.
// MaxUsers == 0 marks the unbounded top tier.
type PricingTier struct {
	Range        string
	MinUsers     int
	MaxUsers     int
	PricePerUser decimal.Decimal
}

// Unbounded reports whether the tier has no upper user limit.
func (t PricingTier) Unbounded() bool { return t.MaxUsers == 0 }

// Contains reports whether totalUsers falls inside the tier, both ends inclusive.
func (t PricingTier) Contains(totalUsers int) bool {
	if totalUsers < t.MinUsers {
		return false
	}
	return t.Unbounded() || totalUsers <= t.MaxUsers
}

// Tiers is an ordered tier table.
type Tiers []PricingTier

// DefaultTiers returns the reference table: 1-3 @79, 4-9 @69, 10-19 @59, 20+ @54.
func DefaultTiers() Tiers {
	return Tiers{
		{Range: "1-3 users", MinUsers: 1, MaxUsers: 3, PricePerUser: decimal.NewFromInt(79)},
		{Range: "4-9 users", MinUsers: 4, MaxUsers: 9, PricePerUser: decimal.NewFromInt(69)},
		{Range: "10-19 users", MinUsers: 10, MaxUsers: 19, PricePerUser: decimal.NewFromInt(59)},
		{Range: "20+ users", MinUsers: 20, PricePerUser: decimal.NewFromInt(54)},
	}
}

// Validate checks the table is contiguous from one user upward, ordered,
// unbounded only at the top, and priced with a strict volume discount.
func (tt Tiers) Validate() error {
	if len(tt) == 0 {
		return invalidArgument("tiers", "at least one tier is required")
	}
	for i, tier := range tt {
		if tier.Range == "" {
			return invalidArgument("tiers", "tier %d has no range label", i)
		}
		if !tier.PricePerUser.IsPositive() {
			return invalidArgument("tiers", "tier %q price must be > 0", tier.Range)
		}
		if i == 0 && tier.MinUsers != 1 {
			return invalidArgument("tiers", "first tier must start at 1 user, got %d", tier.MinUsers)
		}
		last := i == len(tt)-1
		if tier.Unbounded() != last {
			if last {
				return invalidArgument("tiers", "top tier %q must be unbounded", tier.Range)
			}
			return invalidArgument("tiers", "only the top tier may be unbounded, %q is not last", tier.Range)
		}
		if !tier.Unbounded() && tier.MaxUsers < tier.MinUsers {
			return invalidArgument("tiers", "tier %q max_users below min_users", tier.Range)
		}
		if i == 0 {
			continue
		}
		prev := tt[i-1]
		if tier.MinUsers != prev.MaxUsers+1 {
			return invalidArgument("tiers", "tier %q must start at %d", tier.Range, prev.MaxUsers+1)
		}
		if !tier.PricePerUser.LessThan(prev.PricePerUser) {
			return invalidArgument("tiers", "tier %q price must be below %s", tier.Range, prev.PricePerUser)
		}
	}
	return nil
}

// ResolveTier returns the tier containing totalUsers. Zero users resolves to
// no tier (ok == false) and is not an error.
func ResolveTier(totalUsers int, tiers Tiers) (PricingTier, bool, error) {
	idx, err := tiers.index(totalUsers)
	if err != nil || idx < 0 {
		return PricingTier{}, false, err
	}
	return tiers[idx], true, nil
}

func (tt Tiers) index(totalUsers int) (int, error) {
	if totalUsers < 0 {
		return -1, invalidArgument("total_users", "must be >= 0, got %d", totalUsers)
	}
	for i, tier := range tt {
		if tier.Contains(totalUsers) {
			return i, nil
		}
	}
	return -1, nil
}

// Label renders the tier boundaries, e.g. "4-9" or "20+".
func (t PricingTier) Label() string {
	if t.Unbounded() {
		return fmt.Sprintf("%d+", t.MinUsers)
	}
	return fmt.Sprintf("%d-%d", t.MinUsers, t.MaxUsers)
}
