// Package gatewaysync keeps local invoices and their payment gateway copies
// in step: Pusher sends local invoices out, Reconciler applies gateway
// webhook events back through the invoice service.
package gatewaysync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/billing"
	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/service"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// customerRegistrar is implemented by entities that can persist their
// gateway customer id.
type customerRegistrar interface {
	SetGatewayCustomerID(ctx context.Context, customerID string) error
}

// Pusher publishes local invoices to the payment gateway.
type Pusher struct {
	provider billing.Provider
	logger   zerolog.Logger
	metrics  *telemetry.InvoicingMetrics

	// Now is overridable in tests.
	Now func() time.Time

	// NewAttemptID scopes gateway idempotency keys to one Push call.
	NewAttemptID func() string
}

var _ service.GatewayPublisher = (*Pusher)(nil)

// NewPusher creates a Pusher.
func NewPusher(provider billing.Provider, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) *Pusher {
	return &Pusher{
		provider: provider,
		logger:   logger.With().Str("component", "gateway_push").Logger(),
		metrics:  metrics,
		Now:      time.Now,

		NewAttemptID: uuid.NewString,
	}
}

// Push registers the customer if needed, then creates, finalizes and sends
// the gateway invoice. A finalized invoice that cannot be sent is voided.
func (p *Pusher) Push(ctx context.Context, inv *domain.Invoice, e domain.Invoiceable) (*domain.GatewayReference, error) {
	customerID, err := p.ensureCustomer(ctx, e)
	if err != nil {
		return nil, err
	}

	created, err := p.provider.CreateInvoice(ctx, billing.CreateInvoiceParams{
		CustomerID:     customerID,
		Currency:       inv.Currency,
		DaysUntilDue:   p.daysUntilDue(inv),
		Description:    "Invoice " + inv.InvoiceNumber,
		Lines:          gatewayLines(inv),
		TaxCents:       domain.ToCents(inv.TaxAmount),
		TaxDescription: fmt.Sprintf("Tax %s%%", inv.TaxRate.StringFixed(2)),
		Metadata:       InvoiceMetadata(inv),
		IdempotencyKey: p.idempotencyKey(inv),
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway invoice: %w", err)
	}

	finalized, err := p.provider.FinalizeInvoice(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize gateway invoice %s: %w", created.ID, err)
	}

	if _, err := p.provider.SendInvoice(ctx, finalized.ID); err != nil {
		if verr := p.Void(ctx, finalized.ID); verr != nil {
			p.logger.Error().Err(verr).Str("gateway_invoice_id", finalized.ID).Msg("failed to void unsent gateway invoice")
		}
		return nil, fmt.Errorf("send gateway invoice %s: %w", finalized.ID, err)
	}

	p.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("gateway_invoice_id", finalized.ID).
		Int64("total_cents", finalized.TotalCents).
		Msg("invoice pushed to gateway")

	return &domain.GatewayReference{
		InvoiceID: finalized.ID,
		HostedURL: finalized.HostedURL,
		PDFURL:    finalized.PDFURL,
	}, nil
}

// idempotencyKey is unique per Push, so the provider's own retries replay
// while a later Push of the same invoice, e.g. after the first gateway
// invoice was voided, creates a fresh one.
func (p *Pusher) idempotencyKey(inv *domain.Invoice) string {
	return fmt.Sprintf("courtbill-invoice-%s-%s", inv.ID, p.NewAttemptID())
}

// Void voids an open gateway invoice.
func (p *Pusher) Void(ctx context.Context, gatewayInvoiceID string) error {
	if _, err := p.provider.VoidInvoice(ctx, gatewayInvoiceID); err != nil {
		return fmt.Errorf("void gateway invoice %s: %w", gatewayInvoiceID, err)
	}
	p.logger.Info().Str("gateway_invoice_id", gatewayInvoiceID).Msg("gateway invoice voided")
	return nil
}

func (p *Pusher) ensureCustomer(ctx context.Context, e domain.Invoiceable) (string, error) {
	if id := e.GatewayCustomerID(); id != "" {
		return id, nil
	}

	customer, err := p.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email: e.BillingEmail(),
		Name:  e.BillingName(),
		Metadata: map[string]string{
			billing.MetaTenantID:   e.OwningTenantID().String(),
			billing.MetaEntityType: string(e.InvoiceableType()),
			billing.MetaEntityID:   e.InvoiceableID().String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create gateway customer: %w", err)
	}

	reg, ok := e.(customerRegistrar)
	if !ok {
		p.logger.Warn().
			Str("entity_type", string(e.InvoiceableType())).
			Str("entity_id", e.InvoiceableID().String()).
			Msg("entity cannot store its gateway customer id")
		return customer.ID, nil
	}
	if err := reg.SetGatewayCustomerID(ctx, customer.ID); err != nil {
		return "", err
	}

	p.logger.Info().
		Str("entity_type", string(e.InvoiceableType())).
		Str("entity_id", e.InvoiceableID().String()).
		Str("customer_id", customer.ID).
		Msg("gateway customer created")
	return customer.ID, nil
}

// daysUntilDue counts from today so an invoice sent late keeps its due date.
func (p *Pusher) daysUntilDue(inv *domain.Invoice) int64 {
	y, m, d := p.Now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int64(inv.DueDate.Sub(today).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// InvoiceMetadata is the metadata stored on a gateway invoice so webhook
// events can be matched back to the local invoice.
func InvoiceMetadata(inv *domain.Invoice) map[string]string {
	return map[string]string{
		billing.MetaLocalInvoiceID: inv.ID.String(),
		billing.MetaTenantID:       inv.TenantID.String(),
		billing.MetaEntityType:     string(inv.EntityType),
		billing.MetaEntityID:       inv.EntityID.String(),
		billing.MetaInvoiceNumber:  inv.InvoiceNumber,
	}
}

func gatewayLines(inv *domain.Invoice) []billing.InvoiceLine {
	if len(inv.LineItems) == 0 {
		return []billing.InvoiceLine{{
			Description: "Invoice " + inv.InvoiceNumber,
			Quantity:    1,
			AmountCents: domain.ToCents(inv.NetAmount),
		}}
	}
	lines := make([]billing.InvoiceLine, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		lines = append(lines, billing.InvoiceLine{
			Description: item.Description,
			Quantity:    int64(item.Quantity),
			AmountCents: domain.ToCents(item.Total),
		})
	}
	return lines
}
