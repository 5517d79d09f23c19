package document

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/domain"
)

const dateLayout = "2006-01-02"

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

func formatAddress(a domain.Address) string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	city := strings.TrimSpace(a.PostalCode + " " + a.City)
	if a.State != "" {
		city += ", " + a.State
	}
	parts = append(parts, city, a.Country)
	return strings.Join(parts, "\n")
}

// generatePDF lays out a single-page invoice.
func generatePDF(inv *domain.Invoice, issuer Issuer) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, issuer.Name, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "INVOICE", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)

	meta := col.New(6).Add(
		text.New("Invoice number: "+inv.InvoiceNumber, props.Text{Top: 0}),
		text.New("Date of issue: "+inv.IssueDate.Format(dateLayout), props.Text{Top: 4}),
		text.New("Date due: "+inv.DueDate.Format(dateLayout), props.Text{Top: 8}),
	)
	if inv.BillingPeriod != nil {
		meta.Add(text.New(fmt.Sprintf("Service period: %s to %s",
			inv.BillingPeriod.Start.Format(dateLayout), inv.BillingPeriod.End.Format(dateLayout)), props.Text{Top: 12}))
	}
	m.AddRow(20, meta, col.New(6))

	billTo := col.New(6).Add(
		text.New("Bill to", props.Text{Style: fontstyle.Bold}),
		text.New(inv.Billing.Name, props.Text{Top: 5}),
		text.New(formatAddress(inv.Billing.Address), props.Text{Top: 9}),
		text.New(inv.Billing.Email, props.Text{Top: 25}),
	)
	if inv.Billing.VATNumber != "" {
		billTo.Add(text.New("VAT: "+inv.Billing.VATNumber, props.Text{Top: 29}))
	}
	from := col.New(6).Add(
		text.New("From", props.Text{Style: fontstyle.Bold}),
		text.New(issuer.Address, props.Text{Top: 5}),
		text.New(issuer.Email, props.Text{Top: 25}),
	)
	if issuer.VATNumber != "" {
		from.Add(text.New("VAT: "+issuer.VATNumber, props.Text{Top: 29}))
	}
	m.AddRow(40, from, billTo)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s due %s", money(inv.GrossAmount, inv.Currency), inv.DueDate.Format(dateLayout)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(1, line.NewCol(12))

	items := inv.LineItems
	if len(items) == 0 {
		items = []domain.LineItem{domain.NewLineItem("Services", 1, inv.NetAmount)}
	}
	for _, item := range items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.UnitPrice, inv.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.Total, inv.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct {
		label string
		value string
		bold  bool
	}{
		{"Net", money(inv.NetAmount, inv.Currency), false},
		{fmt.Sprintf("Tax (%s%%)", inv.TaxRate.StringFixed(2)), money(inv.TaxAmount, inv.Currency), false},
		{"Amount due", money(inv.GrossAmount, inv.Currency), true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if issuer.BankDetails != "" && inv.Gateway.IsZero() {
		m.AddRow(20, text.NewCol(12, issuer.BankDetails, props.Text{Size: 9, Top: 5}))
	}
	if inv.Gateway.HostedURL != "" {
		m.AddRow(10, text.NewCol(12, "Pay online: "+inv.Gateway.HostedURL, props.Text{Size: 9, Top: 3}))
	}
	if inv.Notes != "" {
		m.AddRow(15, text.NewCol(12, inv.Notes, props.Text{Size: 8, Top: 5}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
