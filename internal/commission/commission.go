// Package commission splits revenue between the platform and a vendor.
//
// All amounts are integer minor units. The commission is rounded to the
// nearest unit (half away from zero) and the net payout is derived by
// subtraction, so commission + net always equals revenue.
package commission

import (
	"fmt"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/shopspring/decimal"
)

// DefaultRate applies when neither the company nor configuration sets one.
var DefaultRate = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// Split is the result of applying a commission rate to revenue.
type Split struct {
	RevenueCents    int64           `json:"revenueCents"`
	CommissionCents int64           `json:"commissionCents"`
	NetCents        int64           `json:"netCents"`
	Rate            decimal.Decimal `json:"rate"`
}

// ValidateRate checks a percentage lies in [0, 100].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return fmt.Errorf("commission rate %s outside [0, 100]", rate)
	}
	return nil
}

// Of returns rate percent of amountCents, rounded to a whole minor unit.
func Of(amountCents int64, rate decimal.Decimal) (int64, error) {
	if err := ValidateRate(rate); err != nil {
		return 0, err
	}
	if amountCents < 0 {
		return 0, fmt.Errorf("amount must not be negative, got %d", amountCents)
	}
	return decimal.NewFromInt(amountCents).Mul(rate).Div(hundred).Round(0).IntPart(), nil
}

// Calculate splits revenueCents at rate percent.
func Calculate(revenueCents int64, rate decimal.Decimal) (Split, error) {
	commission, err := Of(revenueCents, rate)
	if err != nil {
		return Split{}, err
	}
	return Split{
		RevenueCents:    revenueCents,
		CommissionCents: commission,
		NetCents:        revenueCents - commission,
		Rate:            rate,
	}, nil
}

// Calculator resolves per-company rates against a configured fallback.
type Calculator struct {
	fallback decimal.Decimal
}

// NewCalculator validates the fallback rate.
func NewCalculator(fallback decimal.Decimal) (*Calculator, error) {
	if err := ValidateRate(fallback); err != nil {
		return nil, err
	}
	return &Calculator{fallback: fallback}, nil
}

// Fallback is the rate used for companies without one.
func (c *Calculator) Fallback() decimal.Decimal {
	if c == nil {
		return DefaultRate
	}
	return c.fallback
}

// RateFor returns the company's rate or the fallback.
func (c *Calculator) RateFor(company models.Company) decimal.Decimal {
	return company.RateOr(c.Fallback())
}

// SplitFor splits revenue at the company's effective rate.
func (c *Calculator) SplitFor(company models.Company, revenueCents int64) (Split, error) {
	return Calculate(revenueCents, c.RateFor(company))
}
