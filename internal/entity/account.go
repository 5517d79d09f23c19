package entity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// accountOps binds the variant-specific account queries.
type accountOps struct {
	get          func(ctx context.Context, id pgtype.UUID) (repository.BillingAccount, error)
	suspend      func(ctx context.Context, arg repository.SuspendAccountParams) (int64, error)
	reactivate   func(ctx context.Context, id pgtype.UUID) (int64, error)
	setOverdue   func(ctx context.Context, arg repository.SetPaymentOverdueParams) error
	clearOverdue func(ctx context.Context, id pgtype.UUID) error
	extend       func(ctx context.Context, arg repository.ExtendSubscriptionParams) error
	setCustomer  func(ctx context.Context, arg repository.SetStripeCustomerParams) error
}

func clubOps(q repository.Querier) accountOps {
	return accountOps{
		get:          q.GetClubAccount,
		suspend:      q.SuspendClub,
		reactivate:   q.ReactivateClub,
		setOverdue:   q.SetClubPaymentOverdue,
		clearOverdue: q.ClearClubPaymentOverdue,
		extend:       q.ExtendClubSubscription,
		setCustomer:  q.SetClubStripeCustomer,
	}
}

func tenantOps(q repository.Querier) accountOps {
	return accountOps{
		get:          q.GetTenantAccount,
		suspend:      q.SuspendTenant,
		reactivate:   q.ReactivateTenant,
		setOverdue:   q.SetTenantPaymentOverdue,
		clearOverdue: q.ClearTenantPaymentOverdue,
		extend:       q.ExtendTenantSubscription,
		setCustomer:  q.SetTenantStripeCustomer,
	}
}

// Account is a club or tenant billing account. It implements
// domain.Invoiceable.
type Account struct {
	row        repository.BillingAccount
	entityType domain.EntityType
	planType   string

	q   repository.Querier
	ops accountOps
	now func() time.Time
}

var _ domain.Invoiceable = (*Account)(nil)

func (a *Account) InvoiceableType() domain.EntityType { return a.entityType }
func (a *Account) InvoiceableID() uuid.UUID           { return repository.FromUUID(a.row.ID) }

// OwningTenantID is the tenant that issues the account's invoices. A tenant
// owns its own invoices.
func (a *Account) OwningTenantID() uuid.UUID {
	if a.entityType == domain.EntityTenant {
		return repository.FromUUID(a.row.ID)
	}
	return repository.FromUUID(a.row.TenantID)
}

func (a *Account) Name() string { return a.row.Name }

func (a *Account) BillingName() string {
	if a.row.BillingName != "" {
		return a.row.BillingName
	}
	return a.row.Name
}

func (a *Account) BillingEmail() string { return a.row.BillingEmail }

// ContactEmail is the club contact or the tenant owner.
func (a *Account) ContactEmail() string { return a.row.ContactEmail.String }

func (a *Account) BillingAddress() domain.Address {
	return domain.Address{
		Line1:      a.row.AddressLine1,
		Line2:      a.row.AddressLine2.String,
		City:       a.row.City,
		PostalCode: a.row.PostalCode,
		State:      a.row.State.String,
		Country:    a.row.Country,
	}
}

func (a *Account) VATNumber() string { return a.row.VatNumber.String }
func (a *Account) IsTaxExempt() bool { return a.row.TaxExempt }

func (a *Account) Currency() string {
	if a.row.PlanCurrency.Valid && a.row.PlanCurrency.String != "" {
		return strings.ToUpper(a.row.PlanCurrency.String)
	}
	return strings.ToUpper(a.row.Currency)
}

func (a *Account) CurrentPlan() *domain.Plan {
	if !a.row.PlanID.Valid {
		return nil
	}
	interval := domain.BillingInterval(a.row.BillingInterval)
	if interval != domain.IntervalYearly {
		interval = domain.IntervalMonthly
	}
	return &domain.Plan{
		Ref:          domain.PlanRef{Type: a.planType, ID: repository.FromUUID(a.row.PlanID)},
		Name:         a.row.PlanName.String,
		MonthlyPrice: repository.Decimal(a.row.PlanMonthlyPrice),
		Currency:     a.Currency(),
		Interval:     interval,
	}
}

func (a *Account) PreferredPaymentMethod() domain.PaymentMethod {
	if domain.PaymentMethod(a.row.PreferredPaymentMethod) == domain.PaymentGateway {
		return domain.PaymentGateway
	}
	return domain.PaymentBankTransfer
}

func (a *Account) GatewayCustomerID() string { return a.row.StripeCustomerID.String }
func (a *Account) IsSuspended() bool         { return a.row.SuspendedAt.Valid }

// SubscriptionEndsAt returns nil when the account has never been billed for
// a period.
func (a *Account) SubscriptionEndsAt() *time.Time {
	if !a.row.SubscriptionEndsAt.Valid {
		return nil
	}
	t := a.row.SubscriptionEndsAt.Time
	return &t
}

// SetGatewayCustomerID persists the payment gateway customer id.
func (a *Account) SetGatewayCustomerID(ctx context.Context, customerID string) error {
	if err := a.ops.setCustomer(ctx, repository.SetStripeCustomerParams{
		ID:               a.row.ID,
		StripeCustomerID: repository.Text(customerID),
	}); err != nil {
		return fmt.Errorf("set gateway customer for %s %s: %w", a.entityType, a.InvoiceableID(), err)
	}
	a.row.StripeCustomerID = repository.Text(customerID)
	return nil
}

// OnInvoicePaid clears the overdue marker once no overdue invoices remain
// and lifts a suspension that was caused by non-payment.
func (a *Account) OnInvoicePaid(ctx context.Context, inv *domain.Invoice) error {
	remaining, err := a.q.CountOverdueInvoicesForEntity(ctx, repository.CountOverdueInvoicesForEntityParams{
		EntityType: string(a.entityType),
		EntityID:   a.row.ID,
	})
	if err != nil {
		return fmt.Errorf("count overdue invoices: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	if err := a.ops.clearOverdue(ctx, a.row.ID); err != nil {
		return fmt.Errorf("clear payment overdue: %w", err)
	}
	a.row.PaymentOverdueSince = pgtype.Timestamptz{}

	if a.IsSuspended() {
		if _, err := a.ops.reactivate(ctx, a.row.ID); err != nil {
			return fmt.Errorf("reactivate: %w", err)
		}
		a.row.SuspendedAt = pgtype.Timestamptz{}
		a.row.SuspensionReason = pgtype.Text{}
	}
	return nil
}

// OnInvoiceOverdue stamps payment_overdue_since unless already set.
func (a *Account) OnInvoiceOverdue(ctx context.Context, inv *domain.Invoice) error {
	if a.row.PaymentOverdueSince.Valid {
		return nil
	}
	since := repository.Timestamptz(a.now())
	if err := a.ops.setOverdue(ctx, repository.SetPaymentOverdueParams{ID: a.row.ID, Since: since}); err != nil {
		return fmt.Errorf("set payment overdue: %w", err)
	}
	a.row.PaymentOverdueSince = since
	return nil
}
