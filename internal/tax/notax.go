package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// NoTaxCalculator returns a zero rate for every invoice.
// Used when the platform operator is not VAT registered.
type NoTaxCalculator struct{}

// NewNoTaxCalculator creates a new no-tax calculator.
func NewNoTaxCalculator() *NoTaxCalculator {
	return &NoTaxCalculator{}
}

// CalculateRate always returns zero.
func (c *NoTaxCalculator) CalculateRate(ctx context.Context, params TaxParams) (*TaxResult, error) {
	return &TaxResult{Rate: decimal.Zero, Exempt: params.TaxExempt}, nil
}
