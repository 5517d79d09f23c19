package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// LineItem is one row on an invoice. UnitPrice is held to two decimals and
// Total is exactly Quantity * UnitPrice.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// NewLineItem builds a line item and computes its total.
func NewLineItem(description string, quantity int32, unitPrice decimal.Decimal) LineItem {
	price := unitPrice.Round(2)
	return LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   price,
		Total:       price.Mul(decimal.NewFromInt32(quantity)),
	}
}

// SumLineItems returns the sum of all line totals.
func SumLineItems(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Total)
	}
	return sum
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country"`
}

// BillingSnapshot is the billing identity captured when the invoice is
// created. It is never re-derived from the live entity.
type BillingSnapshot struct {
	Name      string
	Email     string
	Address   Address
	VATNumber string
}

// PlanRef points to a subscription plan. Plans live in different tables per
// entity variant, so the reference carries its type.
type PlanRef struct {
	Type string // "club_plan" or "tenant_plan"
	ID   uuid.UUID
}

// BillingPeriod is the service period an invoice covers.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// GatewayReference links a local invoice to its payment gateway counterpart.
type GatewayReference struct {
	InvoiceID string
	HostedURL string
	PDFURL    string
}

// IsZero reports whether the invoice is not gateway collected.
func (r GatewayReference) IsZero() bool {
	return r.InvoiceID == ""
}

// Invoice is the variant-agnostic invoice record. It is mutated only through
// InvoiceService operations.
type Invoice struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EntityType    EntityType
	EntityID      uuid.UUID
	Plan          *PlanRef
	InvoiceNumber string
	Status        Status

	NetAmount   decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	GrossAmount decimal.Decimal
	Currency    string
	LineItems   []LineItem

	Billing       BillingSnapshot
	BillingPeriod *BillingPeriod

	IssueDate          time.Time
	DueDate            time.Time
	SentAt             *time.Time
	PaidAt             *time.Time
	PaymentReference   string
	PaymentNotes       string
	ReminderCount      int
	LastReminderSentAt *time.Time
	CancelledAt        *time.Time
	CancellationReason string

	Gateway     GatewayReference
	DocumentKey string
	Notes       string

	CreatedBy *uuid.UUID
	UpdatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DaysOverdue returns the number of whole days between the due date and now.
// Returns 0 when the invoice is not yet due.
func (inv *Invoice) DaysOverdue(now time.Time) int {
	due := truncateDay(inv.DueDate)
	today := truncateDay(now)
	if !today.After(due) {
		return 0
	}
	return int(today.Sub(due).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Service params
// =============================================================================

// LineItemInput is a caller-supplied line item.
type LineItemInput struct {
	Description string          `validate:"required,max=500"`
	Quantity    int32           `validate:"gt=0,lte=100000"`
	UnitPrice   decimal.Decimal `validate:"-"`
}

// CreateInvoiceParams holds the input for InvoiceService.Create.
// Either LineItems or NetAmount must be provided.
type CreateInvoiceParams struct {
	EntityType EntityType      `validate:"required,oneof=club tenant"`
	EntityID   uuid.UUID       `validate:"-"`
	LineItems  []LineItemInput `validate:"omitempty,max=200,dive"`
	NetAmount  *decimal.Decimal `validate:"-"`

	// TaxRate overrides the configured rate. Ignored for tax-exempt entities.
	TaxRate *decimal.Decimal `validate:"-"`

	// IssueDate defaults to today, DueDate to IssueDate + payment terms.
	IssueDate time.Time
	DueDate   time.Time

	BillingPeriod *BillingPeriod `validate:"-"`
	Plan          *PlanRef       `validate:"-"`
	Notes         string         `validate:"max=2000"`

	// Gateway is set when the invoice is imported from the payment gateway.
	Gateway *GatewayReference `validate:"-"`
}

// SubscriptionInvoiceParams creates an invoice for an entity's current plan.
type SubscriptionInvoiceParams struct {
	EntityType  EntityType
	EntityID    uuid.UUID
	PeriodStart time.Time
	IssueDate   time.Time
	Notes       string
}

// UpdateInvoiceParams holds optional changes to a draft invoice.
// Nil fields are left unchanged.
type UpdateInvoiceParams struct {
	LineItems *[]LineItemInput `validate:"omitempty,max=200,dive"`
	NetAmount *decimal.Decimal `validate:"-"`
	TaxRate   *decimal.Decimal `validate:"-"`
	DueDate   *time.Time
	Notes     *string `validate:"omitempty,max=2000"`
}

// SendOptions controls InvoiceService.Send.
type SendOptions struct {
	// Notify dispatches the invoice notification to the entity's recipients.
	Notify bool

	// GatewayManaged marks a send that originated at the gateway, so the
	// invoice is not pushed back to it.
	GatewayManaged bool
}

// MarkPaidParams holds payment details.
type MarkPaidParams struct {
	Reference string `validate:"max=255"`
	Notes     string `validate:"max=2000"`

	// PaidAt defaults to now.
	PaidAt *time.Time
}

// CancelParams holds cancellation details.
type CancelParams struct {
	Reason string `validate:"max=1000"`

	// GatewayManaged marks a cancel that originated at the gateway (voided
	// there already).
	GatewayManaged bool
}

// InvoiceFilter narrows InvoiceService.List. Zero values mean "any".
type InvoiceFilter struct {
	TenantID   uuid.UUID
	Status     Status
	EntityType EntityType
	EntityID   uuid.UUID
	IssuedFrom *time.Time
	IssuedTo   *time.Time

	// Search matches invoice number and billing name, case-insensitive.
	Search string
	Limit  int32
	Offset int32
}

// InvoicePage is a page of List results.
type InvoicePage struct {
	Invoices []Invoice
	Total    int64
}

// StatusStatistics aggregates invoices in one status.
type StatusStatistics struct {
	Count int64
	Gross decimal.Decimal
}

// InvoiceStatistics aggregates a tenant's invoices by status.
type InvoiceStatistics struct {
	TenantID uuid.UUID
	ByStatus map[Status]StatusStatistics

	// Outstanding is the gross sum of sent and overdue invoices.
	Outstanding decimal.Decimal
}

// InvoiceService is the single entry point for invoice mutations. Every state
// change goes through one of these operations.
type InvoiceService interface {
	// Create validates, prices, numbers and persists a draft invoice.
	Create(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)

	// CreateSubscriptionInvoice creates a draft from the entity's current plan.
	CreateSubscriptionInvoice(ctx context.Context, params SubscriptionInvoiceParams) (*Invoice, error)

	// Update changes a draft invoice and recomputes amounts.
	Update(ctx context.Context, id uuid.UUID, params UpdateInvoiceParams) (*Invoice, error)

	// Delete removes a draft invoice.
	Delete(ctx context.Context, id uuid.UUID) error

	Send(ctx context.Context, id uuid.UUID, opts SendOptions) (*Invoice, error)

	// MarkPaid records a payment. The bool is false when the invoice already
	// was paid.
	MarkPaid(ctx context.Context, id uuid.UUID, params MarkPaidParams) (*Invoice, bool, error)

	// MarkOverdue transitions a sent invoice to overdue. The bool is false
	// when the invoice already was overdue.
	MarkOverdue(ctx context.Context, id uuid.UUID) (*Invoice, bool, error)

	Cancel(ctx context.Context, id uuid.UUID, params CancelParams) (*Invoice, error)
	SendReminder(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// SendDueReminder sends the next reminder only if the reminder policy
	// still calls for one at asOf. The bool is false when it does not.
	SendDueReminder(ctx context.Context, id uuid.UUID, asOf time.Time) (*Invoice, bool, error)

	// SuspendForNonPayment suspends the billed entity of an overdue invoice.
	// Returns false when the entity already was suspended.
	SuspendForNonPayment(ctx context.Context, id uuid.UUID) (bool, error)

	AttachGatewayReference(ctx context.Context, id uuid.UUID, ref GatewayReference) (*Invoice, error)
	RegenerateDocument(ctx context.Context, id uuid.UUID) (*Invoice, error)

	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByGatewayID(ctx context.Context, gatewayInvoiceID string) (*Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) (*InvoicePage, error)
	Statistics(ctx context.Context, tenantID uuid.UUID) (*InvoiceStatistics, error)

	// ListOverdueCandidates returns sent invoices due before asOf.
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error)
	ListOverdue(ctx context.Context) ([]Invoice, error)
}
