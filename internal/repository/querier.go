package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	// Invoices
	CancelInvoice(ctx context.Context, arg CancelInvoiceParams) (Invoice, error)
	CountInvoices(ctx context.Context, arg CountInvoicesParams) (int64, error)
	CountOverdueInvoicesForEntity(ctx context.Context, arg CountOverdueInvoicesForEntityParams) (int64, error)
	CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error)
	DeleteDraftInvoice(ctx context.Context, id pgtype.UUID) (int64, error)
	GetInvoice(ctx context.Context, id pgtype.UUID) (Invoice, error)
	GetInvoiceByGatewayID(ctx context.Context, gatewayInvoiceID pgtype.Text) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id pgtype.UUID) (Invoice, error)
	GetInvoiceStatistics(ctx context.Context, tenantID pgtype.UUID) ([]GetInvoiceStatisticsRow, error)
	ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error)
	ListOverdueInvoices(ctx context.Context) ([]Invoice, error)
	ListSentInvoicesDueBefore(ctx context.Context, dueBefore pgtype.Date) ([]Invoice, error)
	MarkInvoiceOverdue(ctx context.Context, arg MarkInvoiceOverdueParams) (Invoice, error)
	MarkInvoicePaid(ctx context.Context, arg MarkInvoicePaidParams) (Invoice, error)
	MarkInvoiceSent(ctx context.Context, arg MarkInvoiceSentParams) (Invoice, error)
	RecordInvoiceReminder(ctx context.Context, arg RecordInvoiceReminderParams) (Invoice, error)
	SetInvoiceDocument(ctx context.Context, arg SetInvoiceDocumentParams) (Invoice, error)
	SetInvoiceGatewayReference(ctx context.Context, arg SetInvoiceGatewayReferenceParams) (Invoice, error)
	UpdateDraftInvoice(ctx context.Context, arg UpdateDraftInvoiceParams) (Invoice, error)

	// Numbering
	NextInvoiceSequence(ctx context.Context, arg NextInvoiceSequenceParams) (int32, error)
	SyncInvoiceSequence(ctx context.Context, arg SyncInvoiceSequenceParams) (int32, error)

	// Billing accounts
	ClearClubPaymentOverdue(ctx context.Context, id pgtype.UUID) error
	ClearTenantPaymentOverdue(ctx context.Context, id pgtype.UUID) error
	ExtendClubSubscription(ctx context.Context, arg ExtendSubscriptionParams) error
	ExtendTenantSubscription(ctx context.Context, arg ExtendSubscriptionParams) error
	GetClubAccount(ctx context.Context, id pgtype.UUID) (BillingAccount, error)
	GetTenantAccount(ctx context.Context, id pgtype.UUID) (BillingAccount, error)
	ReactivateClub(ctx context.Context, id pgtype.UUID) (int64, error)
	ReactivateTenant(ctx context.Context, id pgtype.UUID) (int64, error)
	SetClubPaymentOverdue(ctx context.Context, arg SetPaymentOverdueParams) error
	SetClubStripeCustomer(ctx context.Context, arg SetStripeCustomerParams) error
	SetTenantPaymentOverdue(ctx context.Context, arg SetPaymentOverdueParams) error
	SetTenantStripeCustomer(ctx context.Context, arg SetStripeCustomerParams) error
	SuspendClub(ctx context.Context, arg SuspendAccountParams) (int64, error)
	SuspendTenant(ctx context.Context, arg SuspendAccountParams) (int64, error)

	// Gateway events
	GetGatewayEvent(ctx context.Context, eventID string) (GatewayEvent, error)
	RecordGatewayEvent(ctx context.Context, arg RecordGatewayEventParams) (int64, error)
}

var _ Querier = (*Queries)(nil)

// Store is a Querier that can also run a function inside a transaction.
// Row locks taken with the *ForUpdate queries are held until fn returns.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}
