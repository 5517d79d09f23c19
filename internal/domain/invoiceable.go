package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityType tags the variant of a billable entity.
type EntityType string

const (
	EntityClub   EntityType = "club"
	EntityTenant EntityType = "tenant"
)

// Valid reports whether t is a known entity variant.
func (t EntityType) Valid() bool {
	return t == EntityClub || t == EntityTenant
}

// PaymentMethod is how an entity prefers to settle invoices.
type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentGateway      PaymentMethod = "gateway"
)

// BillingInterval is the plan's billing cycle.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// PeriodEnd returns the last day covered by a period starting at start.
func (i BillingInterval) PeriodEnd(start time.Time) time.Time {
	if i == IntervalYearly {
		return start.AddDate(1, 0, -1)
	}
	return start.AddDate(0, 1, -1)
}

// Plan is the subscription plan an entity is billed for.
type Plan struct {
	Ref          PlanRef
	Name         string
	MonthlyPrice decimal.Decimal
	Currency     string
	Interval     BillingInterval
}

// Invoiceable is implemented by every billable account. Only the entity
// strategies know the concrete types behind it.
type Invoiceable interface {
	InvoiceableType() EntityType
	InvoiceableID() uuid.UUID
	OwningTenantID() uuid.UUID

	BillingName() string
	BillingEmail() string
	BillingAddress() Address
	VATNumber() string
	IsTaxExempt() bool
	Currency() string

	// CurrentPlan returns nil when the entity has no active plan.
	CurrentPlan() *Plan
	PreferredPaymentMethod() PaymentMethod

	// GatewayCustomerID is empty until the entity has been registered with
	// the payment gateway.
	GatewayCustomerID() string
	IsSuspended() bool

	// OnInvoicePaid and OnInvoiceOverdue are called after the corresponding
	// transition has committed.
	OnInvoicePaid(ctx context.Context, inv *Invoice) error
	OnInvoiceOverdue(ctx context.Context, inv *Invoice) error
}

// SnapshotBilling captures the entity's current billing identity.
func SnapshotBilling(e Invoiceable) BillingSnapshot {
	return BillingSnapshot{
		Name:      e.BillingName(),
		Email:     e.BillingEmail(),
		Address:   e.BillingAddress(),
		VATNumber: e.VATNumber(),
	}
}
