package service

// Plan is one purchasable subscription tier. Price ids point at the Stripe
// dashboard objects; the catalog itself is static.
type Plan struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MonthlyPriceID string `json:"monthly_price_id"`
	AnnualPriceID  string `json:"annual_price_id"`
}

var plans = []Plan{
	{ID: "starter", Name: "Starter", MonthlyPriceID: "price_starter_monthly", AnnualPriceID: "price_starter_annual"},
	{ID: "professional", Name: "Professional", MonthlyPriceID: "price_professional_monthly", AnnualPriceID: "price_professional_annual"},
	{ID: "agency", Name: "Agency", MonthlyPriceID: "price_agency_monthly", AnnualPriceID: "price_agency_annual"},
}

// Plans returns the purchasable catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PriceIDFor resolves a plan id and billing interval to a Stripe price id.
func PriceIDFor(planID string, annual bool) (string, error) {
	for _, p := range plans {
		if p.ID == planID {
			if annual {
				return p.AnnualPriceID, nil
			}
			return p.MonthlyPriceID, nil
		}
	}
	return "", ErrUnknownPlan
}
