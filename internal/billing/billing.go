// Package billing abstracts the payment gateway used to collect invoices.
//
// Local invoices stay the source of truth for amounts and numbering; the
// gateway copy only exists so entities paying by card get a hosted payment
// page. Everything the gateway tells us flows back through ParseWebhook.
package billing

import (
	"context"
	"time"
)

// Provider is the gateway operations the invoice engine needs.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// CreateCustomer registers a billable entity with the gateway.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// CreateInvoice creates a draft gateway invoice with one item per line
	// and a separate tax line.
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)

	// FinalizeInvoice moves a draft gateway invoice to open. Finalized
	// invoices get their hosted URL and PDF.
	FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// SendInvoice asks the gateway to email the hosted invoice to the customer.
	SendInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// VoidInvoice voids an open gateway invoice.
	VoidInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	ListInvoices(ctx context.Context, params ListInvoicesParams) ([]Invoice, error)

	// UpcomingInvoice previews the next invoice for a customer.
	UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error)

	// ParseWebhook verifies the signature and decodes an invoice event.
	// Returns ErrInvalidWebhookSignature when verification fails and
	// ErrUnsupportedEvent for events that do not carry an invoice.
	ParseWebhook(payload []byte, signature string) (*InvoiceEvent, error)
}

// Metadata keys stored on gateway invoices.
const (
	MetaLocalInvoiceID = "local_invoice_id"
	MetaTenantID       = "tenant_id"
	MetaEntityType     = "entity_type"
	MetaEntityID       = "entity_id"
	MetaInvoiceNumber  = "invoice_number"
)

// Gateway invoice statuses.
const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusOpen          = "open"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusVoid          = "void"
	InvoiceStatusUncollectible = "uncollectible"
)

// Invoice event types handled by the reconciler.
const (
	EventInvoiceFinalized     = "invoice.finalized"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoiceVoided        = "invoice.voided"
)

// CreateCustomerParams contains parameters for registering a customer.
type CreateCustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// Customer is a gateway customer.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// InvoiceLine is one gateway invoice item. Amounts are in minor units.
type InvoiceLine struct {
	Description string
	Quantity    int64
	AmountCents int64
}

// CreateInvoiceParams contains parameters for CreateInvoice.
type CreateInvoiceParams struct {
	CustomerID   string
	Currency     string
	DaysUntilDue int64
	Description  string
	Lines        []InvoiceLine

	// TaxCents is added as its own line so the gateway total matches the
	// local gross amount without gateway-side tax.
	TaxCents       int64
	TaxDescription string

	Metadata map[string]string

	// IdempotencyKey makes repeated creates for the same local invoice
	// return the first result.
	IdempotencyKey string
}

// ListInvoicesParams narrows ListInvoices.
type ListInvoicesParams struct {
	CustomerID string
	Status     string
	Limit      int64
}

// Invoice is the gateway's view of an invoice.
type Invoice struct {
	ID          string
	CustomerID  string
	Number      string
	Status      string
	Currency    string
	TotalCents  int64
	AmountPaid  int64
	HostedURL   string
	PDFURL      string
	DueDate     *time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	Lines       []InvoiceLine
	Metadata    map[string]string
	Description string
}

// LocalInvoiceID returns the local invoice id from metadata, if any.
func (i *Invoice) LocalInvoiceID() string {
	return i.Metadata[MetaLocalInvoiceID]
}

// InvoiceEvent is a verified gateway webhook event carrying an invoice.
type InvoiceEvent struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Invoice   Invoice
}

// IsHandled reports whether the reconciler acts on this event type.
func (e *InvoiceEvent) IsHandled() bool {
	switch e.Type {
	case EventInvoiceFinalized, EventInvoicePaid, EventInvoicePaymentFailed, EventInvoiceVoided:
		return true
	}
	return false
}
