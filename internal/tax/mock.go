package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// MockCalculator is a test implementation of Calculator.
type MockCalculator struct {
	CalculateRateFunc func(ctx context.Context, params TaxParams) (*TaxResult, error)
	Calls             []TaxParams
}

// NewMockCalculator creates a mock that returns rate for taxable entities.
func NewMockCalculator(rate decimal.Decimal) *MockCalculator {
	return &MockCalculator{
		CalculateRateFunc: func(ctx context.Context, params TaxParams) (*TaxResult, error) {
			if params.TaxExempt {
				return &TaxResult{Rate: decimal.Zero, Exempt: true}, nil
			}
			return &TaxResult{Rate: rate, Jurisdiction: params.Jurisdiction.Country}, nil
		},
	}
}

// CalculateRate delegates to the configured function.
func (m *MockCalculator) CalculateRate(ctx context.Context, params TaxParams) (*TaxResult, error) {
	m.Calls = append(m.Calls, params)
	return m.CalculateRateFunc(ctx, params)
}
