// Package document renders invoice documents and keeps them in storage.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/storage"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// Renderer produces the stored document for an invoice.
type Renderer interface {
	// Render writes the document and returns its storage key.
	Render(ctx context.Context, inv *domain.Invoice) (string, error)

	// Regenerate replaces the existing document, if any.
	Regenerate(ctx context.Context, inv *domain.Invoice) (string, error)

	// Delete removes a document. Missing documents are not an error.
	Delete(ctx context.Context, key string) error

	// Open returns the document content. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Issuer is printed as the seller on every invoice.
type Issuer struct {
	Name        string
	Address     string
	Email       string
	VATNumber   string
	BankDetails string
}

// PDFRenderer renders invoices as PDF documents.
type PDFRenderer struct {
	store   storage.Storage
	issuer  Issuer
	logger  zerolog.Logger
	metrics *telemetry.InvoicingMetrics
}

var _ Renderer = (*PDFRenderer)(nil)

// NewPDFRenderer creates a renderer that writes into store.
func NewPDFRenderer(store storage.Storage, issuer Issuer, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) *PDFRenderer {
	return &PDFRenderer{
		store:   store,
		issuer:  issuer,
		logger:  logger.With().Str("component", "document").Logger(),
		metrics: metrics,
	}
}

// Key returns the storage key of an invoice's document.
func Key(inv *domain.Invoice) string {
	return fmt.Sprintf("invoices/%s/%s/%s.pdf", inv.TenantID, inv.EntityType, inv.InvoiceNumber)
}

func (r *PDFRenderer) Render(ctx context.Context, inv *domain.Invoice) (string, error) {
	data, err := generatePDF(inv, r.issuer)
	if err != nil {
		return "", fmt.Errorf("generate invoice pdf %s: %w", inv.InvoiceNumber, err)
	}

	key := Key(inv)
	if _, err := r.store.Put(ctx, key, bytes.NewReader(data), "application/pdf"); err != nil {
		return "", fmt.Errorf("store invoice pdf %s: %w", inv.InvoiceNumber, err)
	}

	r.metrics.DocumentRendered()
	r.logger.Debug().
		Str("invoice_id", inv.ID.String()).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("invoice document rendered")
	return key, nil
}

func (r *PDFRenderer) Regenerate(ctx context.Context, inv *domain.Invoice) (string, error) {
	if inv.DocumentKey != "" && inv.DocumentKey != Key(inv) {
		if err := r.Delete(ctx, inv.DocumentKey); err != nil {
			return "", err
		}
	}
	return r.Render(ctx, inv)
}

func (r *PDFRenderer) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	return nil
}

func (r *PDFRenderer) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return r.store.Get(ctx, key)
}
