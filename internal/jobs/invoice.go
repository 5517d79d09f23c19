package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/service"
)

// Job type constants for invoice jobs
const (
	JobTypeRenderInvoice = "invoice:render"
)

// RenderInvoicePayload represents the payload for rendering an invoice PDF
type RenderInvoicePayload struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

var _ service.RenderQueue = (*Queue)(nil)

// EnqueueRender enqueues a job to render the document of an invoice.
func (q *Queue) EnqueueRender(ctx context.Context, invoiceID uuid.UUID) error {
	return q.Enqueue(ctx, JobTypeRenderInvoice, RenderInvoicePayload{InvoiceID: invoiceID})
}

// DocumentRegenerator re-renders the document of an invoice.
type DocumentRegenerator interface {
	RegenerateDocument(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
}

// ProcessRenderJob renders the invoice named in job. A missing invoice is
// not an error: a deleted draft has nothing left to render.
func ProcessRenderJob(ctx context.Context, job Job, invoices DocumentRegenerator) error {
	var payload RenderInvoicePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal render payload: %w", err)
	}
	if payload.InvoiceID == uuid.Nil {
		return fmt.Errorf("render job %s has no invoice id", job.ID)
	}

	_, err := invoices.RegenerateDocument(ctx, payload.InvoiceID)
	if domain.IsCode(err, domain.ENOTFOUND) {
		return nil
	}
	return err
}
