// Package entity holds the per-variant invoicing rules for clubs and tenants.
//
// The orchestrator only sees domain.Invoiceable and Strategy; the concrete
// account type and its queries stay inside this package.
package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
)

// Strategy encapsulates the differences between billable entity variants.
type Strategy interface {
	EntityType() domain.EntityType

	// NumberPrefix is the invoice number prefix, e.g. "CLB".
	NumberPrefix() string

	// Load resolves the entity. Returns a not found error for unknown ids.
	Load(ctx context.Context, id uuid.UUID) (domain.Invoiceable, error)

	// ValidateCreation checks that the entity can be invoiced at all.
	ValidateCreation(ctx context.Context, e domain.Invoiceable, params domain.CreateInvoiceParams) error

	// BuildSubscriptionLineItems prices the entity's current plan for the
	// period. The result is deterministic for a given plan and period.
	BuildSubscriptionLineItems(e domain.Invoiceable, period domain.BillingPeriod) ([]domain.LineItemInput, error)

	AfterCreate(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error
	AfterSend(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error
	AfterPayment(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error
	AfterOverdue(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error
	AfterCancel(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error

	// Suspend suspends the entity for non-payment of inv. Returns false when
	// it already was suspended.
	Suspend(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) (bool, error)

	// ResolveNotificationRecipients returns unique addresses, primary first.
	ResolveNotificationRecipients(e domain.Invoiceable, inv *domain.Invoice) []string
}

// Registry maps entity types to their strategy.
type Registry struct {
	strategies map[domain.EntityType]Strategy
}

// NewRegistry builds a registry from strategies. Later entries win.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[domain.EntityType]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.EntityType()] = s
	}
	return r
}

// NewDefaultRegistry wires the club and tenant strategies against q.
func NewDefaultRegistry(q repository.Querier, logger zerolog.Logger) *Registry {
	return NewRegistry(NewClubStrategy(q, logger), NewTenantStrategy(q, logger))
}

// Get returns the strategy for t, or a validation error for unknown types.
func (r *Registry) Get(t domain.EntityType) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, domain.NewValidationError("entity.registry", "entity_type", fmt.Sprintf("unsupported entity type %q", t))
	}
	return s, nil
}

// =============================================================================
// Shared implementation
// =============================================================================

// accountStrategy implements the behaviour common to both variants.
type accountStrategy struct {
	entityType  domain.EntityType
	prefix      string
	planType    string
	description string

	q      repository.Querier
	ops    accountOps
	logger zerolog.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *accountStrategy) EntityType() domain.EntityType { return s.entityType }
func (s *accountStrategy) NumberPrefix() string          { return s.prefix }

func (s *accountStrategy) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *accountStrategy) Load(ctx context.Context, id uuid.UUID) (domain.Invoiceable, error) {
	return s.load(ctx, id)
}

func (s *accountStrategy) load(ctx context.Context, id uuid.UUID) (*Account, error) {
	op := string(s.entityType) + ".load"

	row, err := s.ops.get(ctx, repository.UUID(id))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, string(s.entityType), id.String())
		}
		return nil, domain.Internal(err, op, "failed to load billing account")
	}
	return &Account{
		row:        row,
		entityType: s.entityType,
		planType:   s.planType,
		q:          s.q,
		ops:        s.ops,
		now:        s.now,
	}, nil
}

func (s *accountStrategy) ValidateCreation(ctx context.Context, e domain.Invoiceable, params domain.CreateInvoiceParams) error {
	var err error
	if e.BillingEmail() == "" {
		err = domain.AddFieldError(err, "billing_email", "entity has no billing email configured")
	}
	if e.BillingAddress().Country == "" {
		err = domain.AddFieldError(err, "country", "entity has no tax jurisdiction configured")
	}
	if e.Currency() == "" {
		err = domain.AddFieldError(err, "currency", "entity has no billing currency configured")
	}
	if err != nil {
		if ve, ok := err.(*domain.ValidationError); ok {
			ve.Op = string(s.entityType) + ".validate_creation"
		}
	}
	return err
}

func (s *accountStrategy) BuildSubscriptionLineItems(e domain.Invoiceable, period domain.BillingPeriod) ([]domain.LineItemInput, error) {
	plan := e.CurrentPlan()
	if plan == nil {
		return nil, domain.NewValidationError(string(s.entityType)+".subscription_items", "plan", "entity has no active plan")
	}

	price := plan.MonthlyPrice.Round(2)
	if plan.Interval == domain.IntervalYearly {
		price = domain.YearlyPrice(plan.MonthlyPrice)
	}

	return []domain.LineItemInput{{
		Description: fmt.Sprintf("%s %s (%s, %s to %s)",
			s.description, plan.Name, plan.Interval,
			period.Start.Format("2006-01-02"), period.End.Format("2006-01-02")),
		Quantity:  1,
		UnitPrice: price,
	}}, nil
}

func (s *accountStrategy) AfterCreate(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error {
	s.logger.Debug().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Msg("invoice created")
	return nil
}

func (s *accountStrategy) AfterSend(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error {
	return nil
}

// AfterPayment extends the subscription to the end of the paid period.
func (s *accountStrategy) AfterPayment(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error {
	if inv.BillingPeriod == nil {
		return nil
	}
	err := s.ops.extend(ctx, repository.ExtendSubscriptionParams{
		ID:     repository.UUID(e.InvoiceableID()),
		EndsAt: repository.Date(inv.BillingPeriod.End),
	})
	if err != nil {
		return fmt.Errorf("extend subscription: %w", err)
	}
	s.logger.Info().
		Str("entity_id", e.InvoiceableID().String()).
		Time("ends_at", inv.BillingPeriod.End).
		Msg("subscription extended")
	return nil
}

func (s *accountStrategy) AfterOverdue(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error {
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("entity_id", e.InvoiceableID().String()).
		Msg("invoice overdue")
	return nil
}

func (s *accountStrategy) AfterCancel(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) error {
	return nil
}

func (s *accountStrategy) Suspend(ctx context.Context, e domain.Invoiceable, inv *domain.Invoice) (bool, error) {
	n, err := s.ops.suspend(ctx, repository.SuspendAccountParams{
		ID:     repository.UUID(e.InvoiceableID()),
		Reason: repository.Text(fmt.Sprintf("non-payment of invoice %s", inv.InvoiceNumber)),
	})
	if err != nil {
		return false, fmt.Errorf("suspend %s: %w", s.entityType, err)
	}
	return n > 0, nil
}

func (s *accountStrategy) ResolveNotificationRecipients(e domain.Invoiceable, inv *domain.Invoice) []string {
	primary := inv.Billing.Email
	if primary == "" {
		primary = e.BillingEmail()
	}
	candidates := []string{primary}
	if acc, ok := e.(*Account); ok {
		candidates = append(candidates, acc.ContactEmail())
	}
	return uniqueAddresses(candidates)
}

func uniqueAddresses(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, addr := range in {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
