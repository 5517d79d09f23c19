// source: accounts.sql

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanBillingAccount(row pgx.Row) (BillingAccount, error) {
	var i BillingAccount
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Name,
		&i.BillingName,
		&i.BillingEmail,
		&i.ContactEmail,
		&i.AddressLine1,
		&i.AddressLine2,
		&i.City,
		&i.PostalCode,
		&i.State,
		&i.Country,
		&i.VatNumber,
		&i.TaxExempt,
		&i.Currency,
		&i.PreferredPaymentMethod,
		&i.StripeCustomerID,
		&i.BillingInterval,
		&i.SubscriptionEndsAt,
		&i.PaymentOverdueSince,
		&i.SuspendedAt,
		&i.SuspensionReason,
		&i.PlanID,
		&i.PlanName,
		&i.PlanMonthlyPrice,
		&i.PlanCurrency,
	)
	return i, err
}

const getClubAccount = `-- name: GetClubAccount :one
SELECT c.id, c.tenant_id, c.name, c.billing_name, c.billing_email, c.contact_email,
       c.address_line1, c.address_line2, c.city, c.postal_code, c.state, c.country,
       c.vat_number, c.tax_exempt, c.currency, c.preferred_payment_method, c.stripe_customer_id,
       c.billing_interval, c.subscription_ends_at, c.payment_overdue_since, c.suspended_at, c.suspension_reason,
       p.id AS plan_id, p.name AS plan_name, p.monthly_price AS plan_monthly_price, p.currency AS plan_currency
FROM clubs c
LEFT JOIN club_plans p ON p.id = c.plan_id
WHERE c.id = $1`

func (q *Queries) GetClubAccount(ctx context.Context, id pgtype.UUID) (BillingAccount, error) {
	return scanBillingAccount(q.db.QueryRow(ctx, getClubAccount, id))
}

const getTenantAccount = `-- name: GetTenantAccount :one
SELECT t.id, t.id AS tenant_id, t.name, t.billing_name, t.billing_email, t.owner_email AS contact_email,
       t.address_line1, t.address_line2, t.city, t.postal_code, t.state, t.country,
       t.vat_number, t.tax_exempt, t.currency, t.preferred_payment_method, t.stripe_customer_id,
       t.billing_interval, t.subscription_ends_at, t.payment_overdue_since, t.suspended_at, t.suspension_reason,
       p.id AS plan_id, p.name AS plan_name, p.monthly_price AS plan_monthly_price, p.currency AS plan_currency
FROM tenants t
LEFT JOIN tenant_plans p ON p.id = t.plan_id
WHERE t.id = $1`

func (q *Queries) GetTenantAccount(ctx context.Context, id pgtype.UUID) (BillingAccount, error) {
	return scanBillingAccount(q.db.QueryRow(ctx, getTenantAccount, id))
}

type SuspendAccountParams struct {
	ID     pgtype.UUID `json:"id"`
	Reason pgtype.Text `json:"reason"`
}

const suspendClub = `-- name: SuspendClub :execrows
UPDATE clubs
SET suspended_at = NOW(), suspension_reason = $2, updated_at = NOW()
WHERE id = $1 AND suspended_at IS NULL`

// SuspendClub only affects a club that is not suspended yet; zero rows means
// it already was.
func (q *Queries) SuspendClub(ctx context.Context, arg SuspendAccountParams) (int64, error) {
	result, err := q.db.Exec(ctx, suspendClub, arg.ID, arg.Reason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const suspendTenant = `-- name: SuspendTenant :execrows
UPDATE tenants
SET suspended_at = NOW(), suspension_reason = $2, updated_at = NOW()
WHERE id = $1 AND suspended_at IS NULL`

func (q *Queries) SuspendTenant(ctx context.Context, arg SuspendAccountParams) (int64, error) {
	result, err := q.db.Exec(ctx, suspendTenant, arg.ID, arg.Reason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const reactivateClub = `-- name: ReactivateClub :execrows
UPDATE clubs
SET suspended_at = NULL, suspension_reason = NULL, updated_at = NOW()
WHERE id = $1 AND suspended_at IS NOT NULL`

func (q *Queries) ReactivateClub(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, reactivateClub, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const reactivateTenant = `-- name: ReactivateTenant :execrows
UPDATE tenants
SET suspended_at = NULL, suspension_reason = NULL, updated_at = NOW()
WHERE id = $1 AND suspended_at IS NOT NULL`

func (q *Queries) ReactivateTenant(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, reactivateTenant, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

type SetPaymentOverdueParams struct {
	ID    pgtype.UUID        `json:"id"`
	Since pgtype.Timestamptz `json:"since"`
}

const setClubPaymentOverdue = `-- name: SetClubPaymentOverdue :exec
UPDATE clubs
SET payment_overdue_since = COALESCE(payment_overdue_since, $2), updated_at = NOW()
WHERE id = $1`

func (q *Queries) SetClubPaymentOverdue(ctx context.Context, arg SetPaymentOverdueParams) error {
	_, err := q.db.Exec(ctx, setClubPaymentOverdue, arg.ID, arg.Since)
	return err
}

const setTenantPaymentOverdue = `-- name: SetTenantPaymentOverdue :exec
UPDATE tenants
SET payment_overdue_since = COALESCE(payment_overdue_since, $2), updated_at = NOW()
WHERE id = $1`

func (q *Queries) SetTenantPaymentOverdue(ctx context.Context, arg SetPaymentOverdueParams) error {
	_, err := q.db.Exec(ctx, setTenantPaymentOverdue, arg.ID, arg.Since)
	return err
}

const clearClubPaymentOverdue = `-- name: ClearClubPaymentOverdue :exec
UPDATE clubs
SET payment_overdue_since = NULL, updated_at = NOW()
WHERE id = $1`

func (q *Queries) ClearClubPaymentOverdue(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, clearClubPaymentOverdue, id)
	return err
}

const clearTenantPaymentOverdue = `-- name: ClearTenantPaymentOverdue :exec
UPDATE tenants
SET payment_overdue_since = NULL, updated_at = NOW()
WHERE id = $1`

func (q *Queries) ClearTenantPaymentOverdue(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, clearTenantPaymentOverdue, id)
	return err
}

type ExtendSubscriptionParams struct {
	ID     pgtype.UUID `json:"id"`
	EndsAt pgtype.Date `json:"ends_at"`
}

const extendClubSubscription = `-- name: ExtendClubSubscription :exec
UPDATE clubs
SET subscription_ends_at = GREATEST(COALESCE(subscription_ends_at, $2), $2), updated_at = NOW()
WHERE id = $1`

func (q *Queries) ExtendClubSubscription(ctx context.Context, arg ExtendSubscriptionParams) error {
	_, err := q.db.Exec(ctx, extendClubSubscription, arg.ID, arg.EndsAt)
	return err
}

const extendTenantSubscription = `-- name: ExtendTenantSubscription :exec
UPDATE tenants
SET subscription_ends_at = GREATEST(COALESCE(subscription_ends_at, $2), $2), updated_at = NOW()
WHERE id = $1`

func (q *Queries) ExtendTenantSubscription(ctx context.Context, arg ExtendSubscriptionParams) error {
	_, err := q.db.Exec(ctx, extendTenantSubscription, arg.ID, arg.EndsAt)
	return err
}

type SetStripeCustomerParams struct {
	ID               pgtype.UUID `json:"id"`
	StripeCustomerID pgtype.Text `json:"stripe_customer_id"`
}

const setClubStripeCustomer = `-- name: SetClubStripeCustomer :exec
UPDATE clubs
SET stripe_customer_id = $2, updated_at = NOW()
WHERE id = $1`

func (q *Queries) SetClubStripeCustomer(ctx context.Context, arg SetStripeCustomerParams) error {
	_, err := q.db.Exec(ctx, setClubStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}

const setTenantStripeCustomer = `-- name: SetTenantStripeCustomer :exec
UPDATE tenants
SET stripe_customer_id = $2, updated_at = NOW()
WHERE id = $1`

func (q *Queries) SetTenantStripeCustomer(ctx context.Context, arg SetStripeCustomerParams) error {
	_, err := q.db.Exec(ctx, setTenantStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}
