package billing

import (
	"strings"
	"time"

	decimal "github.com/shopspring/decimal"
)

// ProrationBasis selects which proportion the per-user cost is computed from.
type ProrationBasis string

const (
	// BasisExact multiplies the price by the unrounded days ratio.
	BasisExact ProrationBasis = "exact"
	// BasisReportedProportion multiplies the price by the proportion as
	// reported (three decimals). Older invoices were produced this way.
	BasisReportedProportion ProrationBasis = "reported_proportion"
)

const (
	proportionPlaces = 3
	currencyPlaces   = 2
)

// ParseProrationBasis normalizes a configured basis. Empty means BasisExact.
func ParseProrationBasis(value string) (ProrationBasis, error) {
	switch ProrationBasis(strings.ToLower(strings.TrimSpace(value))) {
	case "", BasisExact:
		return BasisExact, nil
	case BasisReportedProportion:
		return BasisReportedProportion, nil
	default:
		return "", invalidArgument("proration_basis", "unknown basis %q", value)
	}
}

// Proration is one user's share of the billing month.
type Proration struct {
	DaysRemainingWhenAdded int
	// Proportion is unrounded; use ReportedProportion for output.
	Proportion decimal.Decimal
	Cost       decimal.Decimal
}

// ReportedProportion is the proportion rounded to three decimals.
func (p Proration) ReportedProportion() decimal.Decimal {
	return p.Proportion.Round(proportionPlaces)
}

// Prorate computes the share of month (year, month) a user created at
// createdAt is billed for, and the resulting cost at pricePerUser. The
// creation day counts as a billed day. Users created in an earlier month pay
// the full month; users created after the month are rejected.
func Prorate(createdAt time.Time, year, month int, pricePerUser decimal.Decimal, basis ProrationBasis) (Proration, error) {
	daysInMonth, err := DaysInMonth(year, month)
	if err != nil {
		return Proration{}, err
	}
	if createdAt.IsZero() {
		return Proration{}, invalidArgument("created_at", "missing")
	}
	if pricePerUser.IsNegative() {
		return Proration{}, invalidArgument("price_per_user", "must be >= 0, got %s", pricePerUser)
	}

	start, end := monthBounds(year, month, createdAt.Location())
	var remaining int
	switch {
	case createdAt.Before(start):
		remaining = daysInMonth
	case createdAt.Before(end):
		remaining = daysInMonth - createdAt.Day() + 1
	default:
		return Proration{}, invalidArgument("created_at", "%s is after %04d-%02d", createdAt.Format(time.RFC3339), year, month)
	}

	days := decimal.NewFromInt(int64(remaining))
	total := decimal.NewFromInt(int64(daysInMonth))
	p := Proration{
		DaysRemainingWhenAdded: remaining,
		Proportion:             days.Div(total),
	}
	switch basis {
	case BasisReportedProportion:
		p.Cost = pricePerUser.Mul(p.ReportedProportion()).Round(currencyPlaces)
	default:
		// Rounded once from the exact quotient price*days/total.
		p.Cost = pricePerUser.Mul(days).DivRound(total, currencyPlaces)
	}
	return p, nil
}
