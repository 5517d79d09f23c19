package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// numberGenerator allocates invoice numbers of the form PREFIX-YYYY-NNNNNN.
//
// Sequences are scoped per (tenant, entity type, year) and come from an
// upsert counter, so Next must run inside the transaction that inserts the
// invoice: a rollback also rolls the counter back. A counter that fell
// behind the stored numbers (imports, manual fixes) is repaired by Resync.
type numberGenerator struct{}

func (numberGenerator) Next(ctx context.Context, q repository.Querier, tenantID uuid.UUID, entityType domain.EntityType, prefix string, year int) (string, error) {
	seq, err := q.NextInvoiceSequence(ctx, repository.NextInvoiceSequenceParams{
		TenantID:   repository.UUID(tenantID),
		EntityType: string(entityType),
		Year:       int32(year),
	})
	if err != nil {
		return "", fmt.Errorf("next invoice sequence: %w", err)
	}
	return FormatInvoiceNumber(prefix, year, seq), nil
}

// Resync moves the counter past the highest number already stored for the
// scope.
func (numberGenerator) Resync(ctx context.Context, q repository.Querier, tenantID uuid.UUID, entityType domain.EntityType, prefix string, year int) error {
	_, err := q.SyncInvoiceSequence(ctx, repository.SyncInvoiceSequenceParams{
		TenantID:      repository.UUID(tenantID),
		EntityType:    string(entityType),
		Year:          int32(year),
		NumberPattern: fmt.Sprintf("%s-%04d-%%", prefix, year),
	})
	if err != nil {
		return fmt.Errorf("sync invoice sequence: %w", err)
	}
	return nil
}

// FormatInvoiceNumber renders an invoice number, e.g. CLB-2026-000042.
func FormatInvoiceNumber(prefix string, year int, seq int32) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}
