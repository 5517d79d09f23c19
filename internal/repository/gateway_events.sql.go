// source: gateway_events.sql

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getGatewayEvent = `-- name: GetGatewayEvent :one
SELECT event_id, event_type, gateway_invoice_id, processed_at
FROM gateway_events
WHERE event_id = $1`

func (q *Queries) GetGatewayEvent(ctx context.Context, eventID string) (GatewayEvent, error) {
	row := q.db.QueryRow(ctx, getGatewayEvent, eventID)
	var i GatewayEvent
	err := row.Scan(
		&i.EventID,
		&i.EventType,
		&i.GatewayInvoiceID,
		&i.ProcessedAt,
	)
	return i, err
}

const recordGatewayEvent = `-- name: RecordGatewayEvent :execrows
INSERT INTO gateway_events (event_id, event_type, gateway_invoice_id, processed_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (event_id) DO NOTHING`

type RecordGatewayEventParams struct {
	EventID          string      `json:"event_id"`
	EventType        string      `json:"event_type"`
	GatewayInvoiceID pgtype.Text `json:"gateway_invoice_id"`
}

func (q *Queries) RecordGatewayEvent(ctx context.Context, arg RecordGatewayEventParams) (int64, error) {
	result, err := q.db.Exec(ctx, recordGatewayEvent, arg.EventID, arg.EventType, arg.GatewayInvoiceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
