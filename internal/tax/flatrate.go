package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

var maxRate = decimal.NewFromInt(100)

// FlatRateCalculator applies one configured rate to every taxable invoice.
type FlatRateCalculator struct {
	rate decimal.Decimal
}

// NewFlatRateCalculator creates a calculator for rate, given in percent.
func NewFlatRateCalculator(rate decimal.Decimal) (*FlatRateCalculator, error) {
	if rate.IsNegative() || rate.GreaterThan(maxRate) {
		return nil, ErrInvalidTaxRate
	}
	return &FlatRateCalculator{rate: rate.Round(2)}, nil
}

// CalculateRate returns the configured rate, or zero for exempt entities.
func (c *FlatRateCalculator) CalculateRate(ctx context.Context, params TaxParams) (*TaxResult, error) {
	if params.TaxExempt {
		return &TaxResult{Rate: decimal.Zero, Exempt: true}, nil
	}
	country := strings.ToUpper(strings.TrimSpace(params.Jurisdiction.Country))
	if country == "" {
		return nil, ErrMissingJurisdiction
	}
	return &TaxResult{Rate: c.rate, Jurisdiction: country}, nil
}
