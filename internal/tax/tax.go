package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// Calculator resolves the tax rate for an invoice.
// Implementations: FlatRateCalculator, NoTaxCalculator, MockCalculator
type Calculator interface {
	// CalculateRate returns the rate in percent (19 means 19%).
	CalculateRate(ctx context.Context, params TaxParams) (*TaxResult, error)
}

// TaxParams contains all information needed to pick a rate.
type TaxParams struct {
	Jurisdiction Address
	EntityType   string // "club" or "tenant"
	TaxExempt    bool
	VATNumber    string
}

// Address is the billing address that determines the tax jurisdiction.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// TaxResult contains the resolved rate.
type TaxResult struct {
	Rate   decimal.Decimal
	Exempt bool

	// Jurisdiction is the country the rate applies to, empty when exempt.
	Jurisdiction string
}
