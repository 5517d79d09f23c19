// source: numbering.sql

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const nextInvoiceSequence = `-- name: NextInvoiceSequence :one
INSERT INTO invoice_number_counters (tenant_id, entity_type, year, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (tenant_id, entity_type, year)
DO UPDATE SET last_value = invoice_number_counters.last_value + 1
RETURNING last_value`

type NextInvoiceSequenceParams struct {
	TenantID   pgtype.UUID `json:"tenant_id"`
	EntityType string      `json:"entity_type"`
	Year       int32       `json:"year"`
}

// NextInvoiceSequence atomically increments and returns the counter for the
// (tenant, entity type, year) scope.
func (q *Queries) NextInvoiceSequence(ctx context.Context, arg NextInvoiceSequenceParams) (int32, error) {
	row := q.db.QueryRow(ctx, nextInvoiceSequence, arg.TenantID, arg.EntityType, arg.Year)
	var lastValue int32
	err := row.Scan(&lastValue)
	return lastValue, err
}

const syncInvoiceSequence = `-- name: SyncInvoiceSequence :one
INSERT INTO invoice_number_counters (tenant_id, entity_type, year, last_value)
SELECT $1, $2, $3, COALESCE(MAX(CAST(substring(invoice_number FROM '([0-9]+)$') AS INTEGER)), 0)
FROM invoices
WHERE tenant_id = $1 AND entity_type = $2 AND invoice_number LIKE $4
ON CONFLICT (tenant_id, entity_type, year)
DO UPDATE SET last_value = GREATEST(invoice_number_counters.last_value, EXCLUDED.last_value)
RETURNING last_value`

type SyncInvoiceSequenceParams struct {
	TenantID   pgtype.UUID `json:"tenant_id"`
	EntityType string      `json:"entity_type"`
	Year       int32       `json:"year"`
	// NumberPattern is a LIKE pattern selecting the scope's numbers,
	// e.g. CLB-2026-%.
	NumberPattern string `json:"number_pattern"`
}

// SyncInvoiceSequence raises the counter to the highest sequence already
// used by an invoice in the scope.
func (q *Queries) SyncInvoiceSequence(ctx context.Context, arg SyncInvoiceSequenceParams) (int32, error) {
	row := q.db.QueryRow(ctx, syncInvoiceSequence, arg.TenantID, arg.EntityType, arg.Year, arg.NumberPattern)
	var lastValue int32
	err := row.Scan(&lastValue)
	return lastValue, err
}
