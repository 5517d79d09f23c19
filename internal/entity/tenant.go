package entity

import (
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// TenantStrategy bills tenants on behalf of the platform.
type TenantStrategy struct {
	accountStrategy
}

// NewTenantStrategy creates a tenant strategy backed by q.
func NewTenantStrategy(q repository.Querier, logger zerolog.Logger) *TenantStrategy {
	return &TenantStrategy{accountStrategy{
		entityType:  domain.EntityTenant,
		prefix:      "TNT",
		planType:    "tenant_plan",
		description: "Platform subscription",
		q:           q,
		ops:         tenantOps(q),
		logger:      logger.With().Str("strategy", "tenant").Logger(),
	}}
}
