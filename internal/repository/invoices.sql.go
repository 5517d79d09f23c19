// source: invoices.sql

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, tenant_id, entity_type, entity_id, plan_type, plan_id, invoice_number, status,
    net_amount, tax_rate, tax_amount, gross_amount, currency, line_items,
    billing_name, billing_email, billing_address, billing_vat_number,
    billing_period_start, billing_period_end, issue_date, due_date,
    sent_at, paid_at, payment_reference, payment_notes, reminder_count, last_reminder_sent_at,
    cancelled_at, cancellation_reason, gateway_invoice_id, gateway_hosted_url, gateway_pdf_url,
    document_key, notes, created_by, updated_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.EntityType,
		&i.EntityID,
		&i.PlanType,
		&i.PlanID,
		&i.InvoiceNumber,
		&i.Status,
		&i.NetAmount,
		&i.TaxRate,
		&i.TaxAmount,
		&i.GrossAmount,
		&i.Currency,
		&i.LineItems,
		&i.BillingName,
		&i.BillingEmail,
		&i.BillingAddress,
		&i.BillingVatNumber,
		&i.BillingPeriodStart,
		&i.BillingPeriodEnd,
		&i.IssueDate,
		&i.DueDate,
		&i.SentAt,
		&i.PaidAt,
		&i.PaymentReference,
		&i.PaymentNotes,
		&i.ReminderCount,
		&i.LastReminderSentAt,
		&i.CancelledAt,
		&i.CancellationReason,
		&i.GatewayInvoiceID,
		&i.GatewayHostedUrl,
		&i.GatewayPdfUrl,
		&i.DocumentKey,
		&i.Notes,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanInvoices(rows pgx.Rows, err error) ([]Invoice, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Invoice{}
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createInvoice = `-- name: CreateInvoice :one
INSERT INTO invoices (
    tenant_id, entity_type, entity_id, plan_type, plan_id, invoice_number, status,
    net_amount, tax_rate, tax_amount, gross_amount, currency, line_items,
    billing_name, billing_email, billing_address, billing_vat_number,
    billing_period_start, billing_period_end, issue_date, due_date,
    gateway_invoice_id, gateway_hosted_url, gateway_pdf_url, notes, created_by, updated_by
) VALUES (
    $1, $2, $3, $4, $5, $6, 'draft',
    $7, $8, $9, $10, $11, $12,
    $13, $14, $15, $16,
    $17, $18, $19, $20,
    $21, $22, $23, $24, $25, $25
)
RETURNING ` + invoiceColumns

type CreateInvoiceParams struct {
	TenantID           pgtype.UUID    `json:"tenant_id"`
	EntityType         string         `json:"entity_type"`
	EntityID           pgtype.UUID    `json:"entity_id"`
	PlanType           pgtype.Text    `json:"plan_type"`
	PlanID             pgtype.UUID    `json:"plan_id"`
	InvoiceNumber      string         `json:"invoice_number"`
	NetAmount          pgtype.Numeric `json:"net_amount"`
	TaxRate            pgtype.Numeric `json:"tax_rate"`
	TaxAmount          pgtype.Numeric `json:"tax_amount"`
	GrossAmount        pgtype.Numeric `json:"gross_amount"`
	Currency           string         `json:"currency"`
	LineItems          []byte         `json:"line_items"`
	BillingName        string         `json:"billing_name"`
	BillingEmail       string         `json:"billing_email"`
	BillingAddress     []byte         `json:"billing_address"`
	BillingVatNumber   pgtype.Text    `json:"billing_vat_number"`
	BillingPeriodStart pgtype.Date    `json:"billing_period_start"`
	BillingPeriodEnd   pgtype.Date    `json:"billing_period_end"`
	IssueDate          pgtype.Date    `json:"issue_date"`
	DueDate            pgtype.Date    `json:"due_date"`
	GatewayInvoiceID   pgtype.Text    `json:"gateway_invoice_id"`
	GatewayHostedUrl   pgtype.Text    `json:"gateway_hosted_url"`
	GatewayPdfUrl      pgtype.Text    `json:"gateway_pdf_url"`
	Notes              pgtype.Text    `json:"notes"`
	CreatedBy          pgtype.UUID    `json:"created_by"`
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, createInvoice,
		arg.TenantID,
		arg.EntityType,
		arg.EntityID,
		arg.PlanType,
		arg.PlanID,
		arg.InvoiceNumber,
		arg.NetAmount,
		arg.TaxRate,
		arg.TaxAmount,
		arg.GrossAmount,
		arg.Currency,
		arg.LineItems,
		arg.BillingName,
		arg.BillingEmail,
		arg.BillingAddress,
		arg.BillingVatNumber,
		arg.BillingPeriodStart,
		arg.BillingPeriodEnd,
		arg.IssueDate,
		arg.DueDate,
		arg.GatewayInvoiceID,
		arg.GatewayHostedUrl,
		arg.GatewayPdfUrl,
		arg.Notes,
		arg.CreatedBy,
	)
	return scanInvoice(row)
}

const getInvoice = `-- name: GetInvoice :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1`

func (q *Queries) GetInvoice(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoice, id))
}

const getInvoiceForUpdate = `-- name: GetInvoiceForUpdate :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetInvoiceForUpdate(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceForUpdate, id))
}

const getInvoiceByGatewayID = `-- name: GetInvoiceByGatewayID :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE gateway_invoice_id = $1`

func (q *Queries) GetInvoiceByGatewayID(ctx context.Context, gatewayInvoiceID pgtype.Text) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByGatewayID, gatewayInvoiceID))
}

const updateDraftInvoice = `-- name: UpdateDraftInvoice :one
UPDATE invoices
SET net_amount = $2,
    tax_rate = $3,
    tax_amount = $4,
    gross_amount = $5,
    line_items = $6,
    due_date = $7,
    notes = $8,
    updated_by = $9,
    updated_at = NOW()
WHERE id = $1 AND status = 'draft'
RETURNING ` + invoiceColumns

type UpdateDraftInvoiceParams struct {
	ID          pgtype.UUID    `json:"id"`
	NetAmount   pgtype.Numeric `json:"net_amount"`
	TaxRate     pgtype.Numeric `json:"tax_rate"`
	TaxAmount   pgtype.Numeric `json:"tax_amount"`
	GrossAmount pgtype.Numeric `json:"gross_amount"`
	LineItems   []byte         `json:"line_items"`
	DueDate     pgtype.Date    `json:"due_date"`
	Notes       pgtype.Text    `json:"notes"`
	UpdatedBy   pgtype.UUID    `json:"updated_by"`
}

func (q *Queries) UpdateDraftInvoice(ctx context.Context, arg UpdateDraftInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, updateDraftInvoice,
		arg.ID,
		arg.NetAmount,
		arg.TaxRate,
		arg.TaxAmount,
		arg.GrossAmount,
		arg.LineItems,
		arg.DueDate,
		arg.Notes,
		arg.UpdatedBy,
	)
	return scanInvoice(row)
}

const markInvoiceSent = `-- name: MarkInvoiceSent :one
UPDATE invoices
SET status = 'sent',
    sent_at = $2,
    updated_by = $3,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type MarkInvoiceSentParams struct {
	ID        pgtype.UUID        `json:"id"`
	SentAt    pgtype.Timestamptz `json:"sent_at"`
	UpdatedBy pgtype.UUID        `json:"updated_by"`
}

func (q *Queries) MarkInvoiceSent(ctx context.Context, arg MarkInvoiceSentParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, markInvoiceSent, arg.ID, arg.SentAt, arg.UpdatedBy))
}

const markInvoicePaid = `-- name: MarkInvoicePaid :one
UPDATE invoices
SET status = 'paid',
    paid_at = $2,
    payment_reference = $3,
    payment_notes = $4,
    updated_by = $5,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type MarkInvoicePaidParams struct {
	ID               pgtype.UUID        `json:"id"`
	PaidAt           pgtype.Timestamptz `json:"paid_at"`
	PaymentReference pgtype.Text        `json:"payment_reference"`
	PaymentNotes     pgtype.Text        `json:"payment_notes"`
	UpdatedBy        pgtype.UUID        `json:"updated_by"`
}

func (q *Queries) MarkInvoicePaid(ctx context.Context, arg MarkInvoicePaidParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, markInvoicePaid,
		arg.ID,
		arg.PaidAt,
		arg.PaymentReference,
		arg.PaymentNotes,
		arg.UpdatedBy,
	)
	return scanInvoice(row)
}

const markInvoiceOverdue = `-- name: MarkInvoiceOverdue :one
UPDATE invoices
SET status = 'overdue',
    updated_by = $2,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type MarkInvoiceOverdueParams struct {
	ID        pgtype.UUID `json:"id"`
	UpdatedBy pgtype.UUID `json:"updated_by"`
}

func (q *Queries) MarkInvoiceOverdue(ctx context.Context, arg MarkInvoiceOverdueParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, markInvoiceOverdue, arg.ID, arg.UpdatedBy))
}

const cancelInvoice = `-- name: CancelInvoice :one
UPDATE invoices
SET status = 'cancelled',
    cancelled_at = $2,
    cancellation_reason = $3,
    updated_by = $4,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type CancelInvoiceParams struct {
	ID                 pgtype.UUID        `json:"id"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
	CancellationReason pgtype.Text        `json:"cancellation_reason"`
	UpdatedBy          pgtype.UUID        `json:"updated_by"`
}

func (q *Queries) CancelInvoice(ctx context.Context, arg CancelInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, cancelInvoice,
		arg.ID,
		arg.CancelledAt,
		arg.CancellationReason,
		arg.UpdatedBy,
	)
	return scanInvoice(row)
}

const recordInvoiceReminder = `-- name: RecordInvoiceReminder :one
UPDATE invoices
SET reminder_count = reminder_count + 1,
    last_reminder_sent_at = $2,
    updated_by = $3,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type RecordInvoiceReminderParams struct {
	ID        pgtype.UUID        `json:"id"`
	SentAt    pgtype.Timestamptz `json:"sent_at"`
	UpdatedBy pgtype.UUID        `json:"updated_by"`
}

func (q *Queries) RecordInvoiceReminder(ctx context.Context, arg RecordInvoiceReminderParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, recordInvoiceReminder, arg.ID, arg.SentAt, arg.UpdatedBy))
}

const setInvoiceDocument = `-- name: SetInvoiceDocument :one
UPDATE invoices
SET document_key = $2,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type SetInvoiceDocumentParams struct {
	ID          pgtype.UUID `json:"id"`
	DocumentKey pgtype.Text `json:"document_key"`
}

func (q *Queries) SetInvoiceDocument(ctx context.Context, arg SetInvoiceDocumentParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, setInvoiceDocument, arg.ID, arg.DocumentKey))
}

const setInvoiceGatewayReference = `-- name: SetInvoiceGatewayReference :one
UPDATE invoices
SET gateway_invoice_id = $2,
    gateway_hosted_url = $3,
    gateway_pdf_url = $4,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns

type SetInvoiceGatewayReferenceParams struct {
	ID               pgtype.UUID `json:"id"`
	GatewayInvoiceID pgtype.Text `json:"gateway_invoice_id"`
	GatewayHostedUrl pgtype.Text `json:"gateway_hosted_url"`
	GatewayPdfUrl    pgtype.Text `json:"gateway_pdf_url"`
}

func (q *Queries) SetInvoiceGatewayReference(ctx context.Context, arg SetInvoiceGatewayReferenceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, setInvoiceGatewayReference,
		arg.ID,
		arg.GatewayInvoiceID,
		arg.GatewayHostedUrl,
		arg.GatewayPdfUrl,
	)
	return scanInvoice(row)
}

const deleteDraftInvoice = `-- name: DeleteDraftInvoice :execrows
DELETE FROM invoices
WHERE id = $1 AND status = 'draft'`

func (q *Queries) DeleteDraftInvoice(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteDraftInvoice, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const invoiceFilter = `
WHERE ($1::uuid IS NULL OR tenant_id = $1)
  AND ($2::text = '' OR status = $2)
  AND ($3::text = '' OR entity_type = $3)
  AND ($4::uuid IS NULL OR entity_id = $4)
  AND ($5::date IS NULL OR issue_date >= $5)
  AND ($6::date IS NULL OR issue_date <= $6)
  AND ($7::text = '' OR invoice_number ILIKE '%' || $7 || '%' OR billing_name ILIKE '%' || $7 || '%')`

const listInvoices = `-- name: ListInvoices :many
SELECT ` + invoiceColumns + `
FROM invoices` + invoiceFilter + `
ORDER BY issue_date DESC, invoice_number DESC
LIMIT $8 OFFSET $9`

type ListInvoicesParams struct {
	TenantID   pgtype.UUID `json:"tenant_id"`
	Status     string      `json:"status"`
	EntityType string      `json:"entity_type"`
	EntityID   pgtype.UUID `json:"entity_id"`
	IssuedFrom pgtype.Date `json:"issued_from"`
	IssuedTo   pgtype.Date `json:"issued_to"`
	Search     string      `json:"search"`
	Limit      int32       `json:"limit"`
	Offset     int32       `json:"offset"`
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	return scanInvoices(q.db.Query(ctx, listInvoices,
		arg.TenantID,
		arg.Status,
		arg.EntityType,
		arg.EntityID,
		arg.IssuedFrom,
		arg.IssuedTo,
		arg.Search,
		arg.Limit,
		arg.Offset,
	))
}

const countInvoices = `-- name: CountInvoices :one
SELECT COUNT(*)
FROM invoices` + invoiceFilter

type CountInvoicesParams struct {
	TenantID   pgtype.UUID `json:"tenant_id"`
	Status     string      `json:"status"`
	EntityType string      `json:"entity_type"`
	EntityID   pgtype.UUID `json:"entity_id"`
	IssuedFrom pgtype.Date `json:"issued_from"`
	IssuedTo   pgtype.Date `json:"issued_to"`
	Search     string      `json:"search"`
}

func (q *Queries) CountInvoices(ctx context.Context, arg CountInvoicesParams) (int64, error) {
	row := q.db.QueryRow(ctx, countInvoices,
		arg.TenantID,
		arg.Status,
		arg.EntityType,
		arg.EntityID,
		arg.IssuedFrom,
		arg.IssuedTo,
		arg.Search,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getInvoiceStatistics = `-- name: GetInvoiceStatistics :many
SELECT status, COUNT(*) AS invoice_count, COALESCE(SUM(gross_amount), 0)::numeric(14,2) AS gross_total
FROM invoices
WHERE tenant_id = $1
GROUP BY status`

type GetInvoiceStatisticsRow struct {
	Status       string         `json:"status"`
	InvoiceCount int64          `json:"invoice_count"`
	GrossTotal   pgtype.Numeric `json:"gross_total"`
}

func (q *Queries) GetInvoiceStatistics(ctx context.Context, tenantID pgtype.UUID) ([]GetInvoiceStatisticsRow, error) {
	rows, err := q.db.Query(ctx, getInvoiceStatistics, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetInvoiceStatisticsRow{}
	for rows.Next() {
		var i GetInvoiceStatisticsRow
		if err := rows.Scan(&i.Status, &i.InvoiceCount, &i.GrossTotal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSentInvoicesDueBefore = `-- name: ListSentInvoicesDueBefore :many
SELECT ` + invoiceColumns + `
FROM invoices
WHERE status = 'sent' AND due_date < $1
ORDER BY due_date`

func (q *Queries) ListSentInvoicesDueBefore(ctx context.Context, dueBefore pgtype.Date) ([]Invoice, error) {
	return scanInvoices(q.db.Query(ctx, listSentInvoicesDueBefore, dueBefore))
}

const listOverdueInvoices = `-- name: ListOverdueInvoices :many
SELECT ` + invoiceColumns + `
FROM invoices
WHERE status = 'overdue'
ORDER BY due_date`

func (q *Queries) ListOverdueInvoices(ctx context.Context) ([]Invoice, error) {
	return scanInvoices(q.db.Query(ctx, listOverdueInvoices))
}

const countOverdueInvoicesForEntity = `-- name: CountOverdueInvoicesForEntity :one
SELECT COUNT(*)
FROM invoices
WHERE entity_type = $1 AND entity_id = $2 AND status = 'overdue'`

type CountOverdueInvoicesForEntityParams struct {
	EntityType string      `json:"entity_type"`
	EntityID   pgtype.UUID `json:"entity_id"`
}

func (q *Queries) CountOverdueInvoicesForEntity(ctx context.Context, arg CountOverdueInvoicesForEntityParams) (int64, error) {
	row := q.db.QueryRow(ctx, countOverdueInvoicesForEntity, arg.EntityType, arg.EntityID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
