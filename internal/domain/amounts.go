package domain

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// YearlyDiscount is applied to twelve monthly prices for yearly plans.
	YearlyDiscount = decimal.RequireFromString("0.9")
)

// Amounts is the result of CalculateAmounts.
type Amounts struct {
	Net     decimal.Decimal
	TaxRate decimal.Decimal
	Tax     decimal.Decimal
	Gross   decimal.Decimal
}

// CalculateAmounts computes tax and gross for a net amount. Tax is rounded
// half up to two decimals; exempt entities always get a zero rate.
func CalculateAmounts(net, taxRate decimal.Decimal, taxExempt bool) (Amounts, error) {
	const op = "invoice.calculate_amounts"

	if !net.IsPositive() {
		return Amounts{}, WrapError(ErrInvalidAmount, EINVALID, op, "net amount must be positive")
	}
	if taxExempt {
		taxRate = decimal.Zero
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		return Amounts{}, WrapError(ErrInvalidAmount, EINVALID, op, "tax rate must be between 0 and 100")
	}

	net = net.Round(2)
	// decimal.Round rounds half away from zero, which is half up for the
	// non-negative values allowed here.
	tax := net.Mul(taxRate).Div(hundred).Round(2)

	return Amounts{
		Net:     net,
		TaxRate: taxRate.Round(2),
		Tax:     tax,
		Gross:   net.Add(tax),
	}, nil
}

// YearlyPrice returns twelve monthly prices with the yearly discount, rounded
// to currency precision.
func YearlyPrice(monthly decimal.Decimal) decimal.Decimal {
	return monthly.Mul(decimal.NewFromInt(12)).Mul(YearlyDiscount).Round(2)
}

// ToCents converts an amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
