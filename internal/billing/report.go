package billing

import (
	decimal "github.com/shopspring/decimal"
)

const createdDateLayout = "2006-01-02"

// BillingReport is the JSON document returned by the subscription billing API.
type BillingReport struct {
	Success          bool              `json:"success"`
	ClientID         string            `json:"client_id"`
	ClientName       string            `json:"client_name"`
	SubscriptionData *SubscriptionData `json:"subscription_data"`
}

type SubscriptionData struct {
	CurrentMonth *MonthReport `json:"current_month"`
	PricingTiers []TierPrice  `json:"pricing_tiers"`
}

type MonthReport struct {
	Month               int                  `json:"month"`
	Year                int                  `json:"year"`
	DaysInMonth         int                  `json:"days_in_month"`
	TotalUsers          int                  `json:"total_users"`
	CurrentTierPricePLN float64              `json:"current_tier_price_pln"`
	TotalCostPLN        float64              `json:"total_cost_pln"`
	TierBreakdown       []TierBreakdownEntry `json:"tier_breakdown"`
	UserDetails         []UserDetail         `json:"user_details"`
}

type TierBreakdownEntry struct {
	TierRange       string  `json:"tier_range"`
	PricePerUserPLN float64 `json:"price_per_user_pln"`
	IsCurrentTier   bool    `json:"is_current_tier"`
	UserCountInTier int     `json:"user_count_in_tier"`
}

type UserDetail struct {
	UserID                 string  `json:"user_id"`
	UserName               string  `json:"user_name"`
	UserEmail              string  `json:"user_email"`
	CreatedAt              int64   `json:"created_at"`
	CreatedDate            string  `json:"created_date"`
	DaysRemainingWhenAdded int     `json:"days_remaining_when_added"`
	BillingProportion      float64 `json:"billing_proportion"`
	MonthlyCostPLN         float64 `json:"monthly_cost_pln"`
}

type TierPrice struct {
	Range    string  `json:"range"`
	PricePLN float64 `json:"price_pln"`
}

// NewReport wraps a computed month into a successful report.
func NewReport(clientID, clientName string, month BillingMonth, tiers Tiers) BillingReport {
	current := month.Report()
	return BillingReport{
		Success:    true,
		ClientID:   clientID,
		ClientName: clientName,
		SubscriptionData: &SubscriptionData{
			CurrentMonth: &current,
			PricingTiers: TierPrices(tiers),
		},
	}
}

// Report converts the month into its wire representation.
func (m BillingMonth) Report() MonthReport {
	out := MonthReport{
		Month:               m.Month,
		Year:                m.Year,
		DaysInMonth:         m.DaysInMonth,
		TotalUsers:          m.TotalUsers,
		CurrentTierPricePLN: amount(m.CurrentTierPrice),
		TotalCostPLN:        amount(m.TotalCost),
		TierBreakdown:       make([]TierBreakdownEntry, 0, len(m.TierBreakdown)),
		UserDetails:         make([]UserDetail, 0, len(m.UserDetails)),
	}
	for _, usage := range m.TierBreakdown {
		out.TierBreakdown = append(out.TierBreakdown, TierBreakdownEntry{
			TierRange:       usage.Tier.Range,
			PricePerUserPLN: amount(usage.Tier.PricePerUser),
			IsCurrentTier:   usage.IsCurrentTier,
			UserCountInTier: usage.UserCountInTier,
		})
	}
	for _, line := range m.UserDetails {
		out.UserDetails = append(out.UserDetails, UserDetail{
			UserID:                 line.User.UserID,
			UserName:               line.User.UserName,
			UserEmail:              line.User.UserEmail,
			CreatedAt:              line.User.CreatedAt,
			CreatedDate:            line.CreatedDate.Format(createdDateLayout),
			DaysRemainingWhenAdded: line.DaysRemainingWhenAdded,
			BillingProportion:      amount(line.BillingProportion),
			MonthlyCostPLN:         amount(line.MonthlyCost),
		})
	}
	return out
}

// TierPrices lists the tier table as range/price pairs.
func TierPrices(tiers Tiers) []TierPrice {
	out := make([]TierPrice, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, TierPrice{Range: tier.Range, PricePLN: amount(tier.PricePerUser)})
	}
	return out
}

func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
