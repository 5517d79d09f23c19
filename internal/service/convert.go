package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// invoiceFromRow maps a database row to the domain invoice.
func invoiceFromRow(row repository.Invoice) (*domain.Invoice, error) {
	inv := &domain.Invoice{
		ID:            repository.FromUUID(row.ID),
		TenantID:      repository.FromUUID(row.TenantID),
		EntityType:    domain.EntityType(row.EntityType),
		EntityID:      repository.FromUUID(row.EntityID),
		InvoiceNumber: row.InvoiceNumber,
		Status:        domain.Status(row.Status),

		NetAmount:   repository.Decimal(row.NetAmount),
		TaxRate:     repository.Decimal(row.TaxRate),
		TaxAmount:   repository.Decimal(row.TaxAmount),
		GrossAmount: repository.Decimal(row.GrossAmount),
		Currency:    row.Currency,

		Billing: domain.BillingSnapshot{
			Name:      row.BillingName,
			Email:     row.BillingEmail,
			VATNumber: row.BillingVatNumber.String,
		},

		IssueDate:          row.IssueDate.Time,
		DueDate:            row.DueDate.Time,
		SentAt:             repository.FromTimestamptz(row.SentAt),
		PaidAt:             repository.FromTimestamptz(row.PaidAt),
		PaymentReference:   row.PaymentReference.String,
		PaymentNotes:       row.PaymentNotes.String,
		ReminderCount:      int(row.ReminderCount),
		LastReminderSentAt: repository.FromTimestamptz(row.LastReminderSentAt),
		CancelledAt:        repository.FromTimestamptz(row.CancelledAt),
		CancellationReason: row.CancellationReason.String,

		Gateway: domain.GatewayReference{
			InvoiceID: row.GatewayInvoiceID.String,
			HostedURL: row.GatewayHostedUrl.String,
			PDFURL:    row.GatewayPdfUrl.String,
		},
		DocumentKey: row.DocumentKey.String,
		Notes:       row.Notes.String,

		CreatedBy: repository.FromNullableUUID(row.CreatedBy),
		UpdatedBy: repository.FromNullableUUID(row.UpdatedBy),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}

	if row.PlanType.Valid && row.PlanID.Valid {
		inv.Plan = &domain.PlanRef{Type: row.PlanType.String, ID: repository.FromUUID(row.PlanID)}
	}
	if row.BillingPeriodStart.Valid && row.BillingPeriodEnd.Valid {
		inv.BillingPeriod = &domain.BillingPeriod{Start: row.BillingPeriodStart.Time, End: row.BillingPeriodEnd.Time}
	}

	if len(row.LineItems) > 0 {
		if err := json.Unmarshal(row.LineItems, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("decode line items of invoice %s: %w", inv.ID, err)
		}
	}
	if len(row.BillingAddress) > 0 {
		if err := json.Unmarshal(row.BillingAddress, &inv.Billing.Address); err != nil {
			return nil, fmt.Errorf("decode billing address of invoice %s: %w", inv.ID, err)
		}
	}
	return inv, nil
}

func invoicesFromRows(rows []repository.Invoice) ([]domain.Invoice, error) {
	out := make([]domain.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := invoiceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, nil
}

// createParams maps a new, unnumbered invoice to insert parameters.
func createParams(inv *domain.Invoice) (repository.CreateInvoiceParams, error) {
	items, err := encodeLineItems(inv.LineItems)
	if err != nil {
		return repository.CreateInvoiceParams{}, err
	}
	address, err := json.Marshal(inv.Billing.Address)
	if err != nil {
		return repository.CreateInvoiceParams{}, fmt.Errorf("encode billing address: %w", err)
	}

	arg := repository.CreateInvoiceParams{
		TenantID:         repository.UUID(inv.TenantID),
		EntityType:       string(inv.EntityType),
		EntityID:         repository.UUID(inv.EntityID),
		NetAmount:        repository.Numeric(inv.NetAmount),
		TaxRate:          repository.Numeric(inv.TaxRate),
		TaxAmount:        repository.Numeric(inv.TaxAmount),
		GrossAmount:      repository.Numeric(inv.GrossAmount),
		Currency:         inv.Currency,
		LineItems:        items,
		BillingName:      inv.Billing.Name,
		BillingEmail:     inv.Billing.Email,
		BillingAddress:   address,
		BillingVatNumber: repository.Text(inv.Billing.VATNumber),
		IssueDate:        repository.Date(inv.IssueDate),
		DueDate:          repository.Date(inv.DueDate),
		GatewayInvoiceID: repository.Text(inv.Gateway.InvoiceID),
		GatewayHostedUrl: repository.Text(inv.Gateway.HostedURL),
		GatewayPdfUrl:    repository.Text(inv.Gateway.PDFURL),
		Notes:            repository.Text(inv.Notes),
		CreatedBy:        repository.NullableUUID(inv.CreatedBy),
	}
	if inv.Plan != nil {
		arg.PlanType = repository.Text(inv.Plan.Type)
		arg.PlanID = repository.UUID(inv.Plan.ID)
	}
	if inv.BillingPeriod != nil {
		arg.BillingPeriodStart = repository.Date(inv.BillingPeriod.Start)
		arg.BillingPeriodEnd = repository.Date(inv.BillingPeriod.End)
	}
	return arg, nil
}

func encodeLineItems(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return data, nil
}

// listParams maps a filter to query parameters. A zero limit means 50.
func listParams(f domain.InvoiceFilter) (repository.ListInvoicesParams, repository.CountInvoicesParams) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	count := repository.CountInvoicesParams{
		TenantID:   repository.UUID(f.TenantID),
		Status:     string(f.Status),
		EntityType: string(f.EntityType),
		EntityID:   repository.UUID(f.EntityID),
		IssuedFrom: optionalDate(f.IssuedFrom),
		IssuedTo:   optionalDate(f.IssuedTo),
		Search:     f.Search,
	}
	return repository.ListInvoicesParams{
		TenantID:   count.TenantID,
		Status:     count.Status,
		EntityType: count.EntityType,
		EntityID:   count.EntityID,
		IssuedFrom: count.IssuedFrom,
		IssuedTo:   count.IssuedTo,
		Search:     count.Search,
		Limit:      limit,
		Offset:     offset,
	}, count
}

func optionalDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return repository.Date(*t)
}

func actorID(id *uuid.UUID) string {
	if id == nil {
		return "system"
	}
	return id.String()
}
