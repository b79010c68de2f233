package billing

import (
	"sort"
	"time"

	decimal "github.com/shopspring/decimal"
)

// OrganizationUser is the billing input for one account of an organization.
type OrganizationUser struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	// CreatedAt is a Unix timestamp in seconds.
	CreatedAt int64 `json:"created_at"`
}

// UserBilling is a per-user line of a billing month.
type UserBilling struct {
	User                   OrganizationUser
	CreatedDate            time.Time
	DaysRemainingWhenAdded int
	BillingProportion      decimal.Decimal
	MonthlyCost            decimal.Decimal
}

// TierUsage flags which tier the whole organization is billed at.
type TierUsage struct {
	Tier            PricingTier
	IsCurrentTier   bool
	UserCountInTier int
}

// BillingMonth is the computed bill of one organization for one month.
type BillingMonth struct {
	Year             int
	Month            int
	DaysInMonth      int
	TotalUsers       int
	CurrentTier      *PricingTier
	CurrentTierPrice decimal.Decimal
	TotalCost        decimal.Decimal
	TierBreakdown    []TierUsage
	UserDetails      []UserBilling
}

// CalculatorOptions tune how dates and costs are derived.
type CalculatorOptions struct {
	// Location derives calendar dates from timestamps. Defaults to UTC.
	Location *time.Location
	Basis    ProrationBasis
}

// Calculator computes billing months against a validated tier table. It holds
// no mutable state and is safe for concurrent use.
type Calculator struct {
	tiers Tiers
	loc   *time.Location
	basis ProrationBasis
}

// NewCalculator validates the tier table and options.
func NewCalculator(tiers Tiers, opts CalculatorOptions) (*Calculator, error) {
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	basis, err := ParseProrationBasis(string(opts.Basis))
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cloned := make(Tiers, len(tiers))
	copy(cloned, tiers)
	return &Calculator{tiers: cloned, loc: loc, basis: basis}, nil
}

// Tiers returns a copy of the calculator's tier table.
func (c *Calculator) Tiers() Tiers {
	out := make(Tiers, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Location returns the zone used for calendar dates.
func (c *Calculator) Location() *time.Location { return c.loc }

// ComputeBillingMonth bills users for (year, month) with UTC dates and exact proration.
func ComputeBillingMonth(users []OrganizationUser, tiers Tiers, year, month int) (BillingMonth, error) {
	calc, err := NewCalculator(tiers, CalculatorOptions{})
	if err != nil {
		return BillingMonth{}, err
	}
	return calc.ComputeBillingMonth(users, year, month)
}

// ComputeBillingMonth bills users for (year, month). Users created after the
// month ends are not counted. An empty organization yields a zero report.
// CreatedAt 0 is treated as missing; earlier timestamps are valid dates.
func (c *Calculator) ComputeBillingMonth(users []OrganizationUser, year, month int) (BillingMonth, error) {
	daysInMonth, err := DaysInMonth(year, month)
	if err != nil {
		return BillingMonth{}, err
	}
	_, end := monthBounds(year, month, c.loc)

	eligible := make([]OrganizationUser, 0, len(users))
	for i, user := range users {
		if user.CreatedAt == 0 {
			return BillingMonth{}, invalidArgument("created_at", "missing for user %d (%q)", i, user.UserID)
		}
		if time.Unix(user.CreatedAt, 0).Before(end) {
			eligible = append(eligible, user)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt != eligible[j].CreatedAt {
			return eligible[i].CreatedAt > eligible[j].CreatedAt
		}
		return eligible[i].UserID < eligible[j].UserID
	})

	result := BillingMonth{
		Year:             year,
		Month:            month,
		DaysInMonth:      daysInMonth,
		TotalUsers:       len(eligible),
		CurrentTierPrice: decimal.Zero,
		TotalCost:        decimal.Zero,
		UserDetails:      []UserBilling{},
	}

	current, err := c.tiers.index(result.TotalUsers)
	if err != nil {
		return BillingMonth{}, err
	}
	result.TierBreakdown = make([]TierUsage, len(c.tiers))
	for i, tier := range c.tiers {
		usage := TierUsage{Tier: tier, IsCurrentTier: i == current}
		if usage.IsCurrentTier {
			usage.UserCountInTier = result.TotalUsers
		}
		result.TierBreakdown[i] = usage
	}
	if current < 0 {
		return result, nil
	}

	tier := c.tiers[current]
	result.CurrentTier = &tier
	result.CurrentTierPrice = tier.PricePerUser

	sum := decimal.Zero
	for _, user := range eligible {
		created := time.Unix(user.CreatedAt, 0).In(c.loc)
		share, err := Prorate(created, year, month, tier.PricePerUser, c.basis)
		if err != nil {
			return BillingMonth{}, err
		}
		result.UserDetails = append(result.UserDetails, UserBilling{
			User:                   user,
			CreatedDate:            created,
			DaysRemainingWhenAdded: share.DaysRemainingWhenAdded,
			BillingProportion:      share.ReportedProportion(),
			MonthlyCost:            share.Cost,
		})
		sum = sum.Add(share.Cost)
	}
	result.TotalCost = sum.Round(currencyPlaces)
	return result, nil
}
