package entity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// ClubStrategy bills clubs on behalf of their tenant.
type ClubStrategy struct {
	accountStrategy
}

// NewClubStrategy creates a club strategy backed by q.
func NewClubStrategy(q repository.Querier, logger zerolog.Logger) *ClubStrategy {
	return &ClubStrategy{accountStrategy{
		entityType:  domain.EntityClub,
		prefix:      "CLB",
		planType:    "club_plan",
		description: "Club membership",
		q:           q,
		ops:         clubOps(q),
		logger:      logger.With().Str("strategy", "club").Logger(),
	}}
}

// ValidateCreation additionally refuses invoices issued by a suspended tenant.
func (s *ClubStrategy) ValidateCreation(ctx context.Context, e domain.Invoiceable, params domain.CreateInvoiceParams) error {
	err := s.accountStrategy.ValidateCreation(ctx, e, params)

	tenant, terr := s.q.GetTenantAccount(ctx, repository.UUID(e.OwningTenantID()))
	switch {
	case terr != nil && repository.IsNotFound(terr):
		err = domain.AddFieldError(err, "tenant_id", "owning tenant does not exist")
	case terr != nil:
		return domain.Internal(terr, "club.validate_creation", "failed to load owning tenant")
	case tenant.SuspendedAt.Valid:
		err = domain.AddFieldError(err, "tenant_id", "owning tenant is suspended")
	}

	if ve, ok := err.(*domain.ValidationError); ok && ve.Op == "" {
		ve.Op = "club.validate_creation"
	}
	return err
}
