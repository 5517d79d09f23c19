package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateAmounts(t *testing.T) {
	tests := []struct {
		name      string
		net       string
		rate      string
		exempt    bool
		wantRate  string
		wantTax   string
		wantGross string
	}{
		{name: "standard rate", net: "100.00", rate: "19", wantRate: "19", wantTax: "19.00", wantGross: "119.00"},
		{name: "reduced rate", net: "100.00", rate: "7", wantRate: "7", wantTax: "7.00", wantGross: "107.00"},
		{name: "tax exempt forces zero rate", net: "100.00", rate: "19", exempt: true, wantRate: "0", wantTax: "0", wantGross: "100.00"},
		{name: "rounds half up", net: "0.50", rate: "5", wantRate: "5", wantTax: "0.03", wantGross: "0.53"},
		{name: "rounds down below half", net: "10.01", rate: "19", wantRate: "19", wantTax: "1.90", wantGross: "11.91"},
		{name: "fractional rate", net: "49.99", rate: "16.5", wantRate: "16.5", wantTax: "8.25", wantGross: "58.24"},
		{name: "smallest amount", net: "0.01", rate: "19", wantRate: "19", wantTax: "0.00", wantGross: "0.01"},
		{name: "full rate", net: "12.34", rate: "100", wantRate: "100", wantTax: "12.34", wantGross: "24.68"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateAmounts(dec(tt.net), dec(tt.rate), tt.exempt)
			require.NoError(t, err)

			assert.True(t, dec(tt.wantRate).Equal(got.TaxRate), "rate: got %s", got.TaxRate)
			assert.True(t, dec(tt.wantTax).Equal(got.Tax), "tax: got %s", got.Tax)
			assert.True(t, dec(tt.wantGross).Equal(got.Gross), "gross: got %s", got.Gross)
			assert.True(t, got.Net.Add(got.Tax).Equal(got.Gross))
		})
	}
}

func TestCalculateAmounts_GrossIsNetPlusTax(t *testing.T) {
	rates := []string{"0", "5", "7", "16", "19", "20", "21.5", "100"}
	for cents := int64(1); cents <= 5000; cents += 37 {
		net := FromCents(cents)
		for _, r := range rates {
			rate := dec(r)
			got, err := CalculateAmounts(net, rate, false)
			require.NoError(t, err)

			want := net.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
			require.True(t, want.Equal(got.Tax), "net=%s rate=%s tax=%s", net, rate, got.Tax)
			require.True(t, net.Add(want).Equal(got.Gross))
		}
	}
}

func TestCalculateAmounts_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		net  string
		rate string
	}{
		{name: "zero net", net: "0", rate: "19"},
		{name: "negative net", net: "-10", rate: "19"},
		{name: "negative rate", net: "10", rate: "-1"},
		{name: "rate above 100", net: "10", rate: "100.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateAmounts(dec(tt.net), dec(tt.rate), false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAmount))
			assert.Equal(t, EINVALID, ErrorCode(err))
		})
	}
}

func TestYearlyPrice(t *testing.T) {
	assert.True(t, dec("1080.00").Equal(YearlyPrice(dec("100.00"))))
	assert.True(t, dec("107.89").Equal(YearlyPrice(dec("9.99"))))
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(11900), ToCents(dec("119.00")))
	assert.Equal(t, int64(1), ToCents(dec("0.005")))
	assert.True(t, dec("1.99").Equal(FromCents(199)))
}
