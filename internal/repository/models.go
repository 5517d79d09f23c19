package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Invoice struct {
	ID                 pgtype.UUID        `json:"id"`
	TenantID           pgtype.UUID        `json:"tenant_id"`
	EntityType         string             `json:"entity_type"`
	EntityID           pgtype.UUID        `json:"entity_id"`
	PlanType           pgtype.Text        `json:"plan_type"`
	PlanID             pgtype.UUID        `json:"plan_id"`
	InvoiceNumber      string             `json:"invoice_number"`
	Status             string             `json:"status"`
	NetAmount          pgtype.Numeric     `json:"net_amount"`
	TaxRate            pgtype.Numeric     `json:"tax_rate"`
	TaxAmount          pgtype.Numeric     `json:"tax_amount"`
	GrossAmount        pgtype.Numeric     `json:"gross_amount"`
	Currency           string             `json:"currency"`
	LineItems          []byte             `json:"line_items"`
	BillingName        string             `json:"billing_name"`
	BillingEmail       string             `json:"billing_email"`
	BillingAddress     []byte             `json:"billing_address"`
	BillingVatNumber   pgtype.Text        `json:"billing_vat_number"`
	BillingPeriodStart pgtype.Date        `json:"billing_period_start"`
	BillingPeriodEnd   pgtype.Date        `json:"billing_period_end"`
	IssueDate          pgtype.Date        `json:"issue_date"`
	DueDate            pgtype.Date        `json:"due_date"`
	SentAt             pgtype.Timestamptz `json:"sent_at"`
	PaidAt             pgtype.Timestamptz `json:"paid_at"`
	PaymentReference   pgtype.Text        `json:"payment_reference"`
	PaymentNotes       pgtype.Text        `json:"payment_notes"`
	ReminderCount      int32              `json:"reminder_count"`
	LastReminderSentAt pgtype.Timestamptz `json:"last_reminder_sent_at"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
	CancellationReason pgtype.Text        `json:"cancellation_reason"`
	GatewayInvoiceID   pgtype.Text        `json:"gateway_invoice_id"`
	GatewayHostedUrl   pgtype.Text        `json:"gateway_hosted_url"`
	GatewayPdfUrl      pgtype.Text        `json:"gateway_pdf_url"`
	DocumentKey        pgtype.Text        `json:"document_key"`
	Notes              pgtype.Text        `json:"notes"`
	CreatedBy          pgtype.UUID        `json:"created_by"`
	UpdatedBy          pgtype.UUID        `json:"updated_by"`
	CreatedAt          pgtype.Timestamptz `json:"created_at"`
	UpdatedAt          pgtype.Timestamptz `json:"updated_at"`
}

type GatewayEvent struct {
	EventID          string             `json:"event_id"`
	EventType        string             `json:"event_type"`
	GatewayInvoiceID pgtype.Text        `json:"gateway_invoice_id"`
	ProcessedAt      pgtype.Timestamptz `json:"processed_at"`
}

// BillingAccount is the joined row of a club or tenant with its plan. Both
// variants share the column shape; ContactEmail holds the club contact or
// the tenant owner.
type BillingAccount struct {
	ID                     pgtype.UUID        `json:"id"`
	TenantID               pgtype.UUID        `json:"tenant_id"`
	Name                   string             `json:"name"`
	BillingName            string             `json:"billing_name"`
	BillingEmail           string             `json:"billing_email"`
	ContactEmail           pgtype.Text        `json:"contact_email"`
	AddressLine1           string             `json:"address_line1"`
	AddressLine2           pgtype.Text        `json:"address_line2"`
	City                   string             `json:"city"`
	PostalCode             string             `json:"postal_code"`
	State                  pgtype.Text        `json:"state"`
	Country                string             `json:"country"`
	VatNumber              pgtype.Text        `json:"vat_number"`
	TaxExempt              bool               `json:"tax_exempt"`
	Currency               string             `json:"currency"`
	PreferredPaymentMethod string             `json:"preferred_payment_method"`
	StripeCustomerID       pgtype.Text        `json:"stripe_customer_id"`
	BillingInterval        string             `json:"billing_interval"`
	SubscriptionEndsAt     pgtype.Date        `json:"subscription_ends_at"`
	PaymentOverdueSince    pgtype.Timestamptz `json:"payment_overdue_since"`
	SuspendedAt            pgtype.Timestamptz `json:"suspended_at"`
	SuspensionReason       pgtype.Text        `json:"suspension_reason"`
	PlanID                 pgtype.UUID        `json:"plan_id"`
	PlanName               pgtype.Text        `json:"plan_name"`
	PlanMonthlyPrice       pgtype.Numeric     `json:"plan_monthly_price"`
	PlanCurrency           pgtype.Text        `json:"plan_currency"`
}
