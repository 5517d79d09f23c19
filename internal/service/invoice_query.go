package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// Get retrieves an invoice by ID.
func (s *invoiceService) Get(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	const op = "invoice.get"

	row, err := s.store.GetInvoice(ctx, repository.UUID(id))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "invoice", id.String())
		}
		return nil, domain.Internal(err, op, "failed to get invoice")
	}
	return s.fromRow(op, row)
}

// GetByGatewayID retrieves the invoice linked to a gateway invoice.
func (s *invoiceService) GetByGatewayID(ctx context.Context, gatewayInvoiceID string) (*domain.Invoice, error) {
	const op = "invoice.get_by_gateway_id"

	if gatewayInvoiceID == "" {
		return nil, domain.NewValidationError(op, "gateway_invoice_id", "is required")
	}
	row, err := s.store.GetInvoiceByGatewayID(ctx, repository.Text(gatewayInvoiceID))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "invoice", gatewayInvoiceID)
		}
		return nil, domain.Internal(err, op, "failed to get invoice")
	}
	return s.fromRow(op, row)
}

// List returns a page of invoices matching filter, newest first.
func (s *invoiceService) List(ctx context.Context, filter domain.InvoiceFilter) (*domain.InvoicePage, error) {
	const op = "invoice.list"

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError(op, "status", "must be one of: draft sent paid overdue cancelled")
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, domain.NewValidationError(op, "entity_type", "must be one of: club tenant")
	}

	listArg, countArg := listParams(filter)

	rows, err := s.store.ListInvoices(ctx, listArg)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list invoices")
	}
	total, err := s.store.CountInvoices(ctx, countArg)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count invoices")
	}

	invoices, err := invoicesFromRows(rows)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode invoices")
	}
	return &domain.InvoicePage{Invoices: invoices, Total: total}, nil
}

// Statistics aggregates a tenant's invoices by status.
func (s *invoiceService) Statistics(ctx context.Context, tenantID uuid.UUID) (*domain.InvoiceStatistics, error) {
	const op = "invoice.statistics"

	rows, err := s.store.GetInvoiceStatistics(ctx, repository.UUID(tenantID))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load invoice statistics")
	}

	stats := &domain.InvoiceStatistics{
		TenantID:    tenantID,
		ByStatus:    make(map[domain.Status]domain.StatusStatistics, len(rows)),
		Outstanding: decimal.Zero,
	}
	for _, row := range rows {
		status := domain.Status(row.Status)
		gross := repository.Decimal(row.GrossTotal)
		stats.ByStatus[status] = domain.StatusStatistics{Count: row.InvoiceCount, Gross: gross}
		if status == domain.StatusSent || status == domain.StatusOverdue {
			stats.Outstanding = stats.Outstanding.Add(gross)
		}
	}
	return stats, nil
}

// ListOverdueCandidates returns sent invoices whose due date is before asOf.
func (s *invoiceService) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]domain.Invoice, error) {
	const op = "invoice.list_overdue_candidates"

	rows, err := s.store.ListSentInvoicesDueBefore(ctx, repository.Date(asOf))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list overdue candidates")
	}
	invoices, err := invoicesFromRows(rows)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode invoices")
	}
	return invoices, nil
}

// ListOverdue returns every overdue invoice, oldest due date first.
func (s *invoiceService) ListOverdue(ctx context.Context) ([]domain.Invoice, error) {
	const op = "invoice.list_overdue"

	rows, err := s.store.ListOverdueInvoices(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list overdue invoices")
	}
	invoices, err := invoicesFromRows(rows)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode invoices")
	}
	return invoices, nil
}
