package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/document"
	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/entity"
	"github.com/dukerupert/courtbill/internal/notification"
	"github.com/dukerupert/courtbill/internal/repository"
	"github.com/dukerupert/courtbill/internal/tax"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// InvoiceService is re-exported from domain so callers wiring the service
// only need this package.
type InvoiceService = domain.InvoiceService

// GatewayPublisher pushes invoices to the payment gateway.
type GatewayPublisher interface {
	// Push creates, finalizes and sends the gateway invoice and returns its
	// reference.
	Push(ctx context.Context, inv *domain.Invoice, e domain.Invoiceable) (*domain.GatewayReference, error)

	// Void voids a previously pushed gateway invoice.
	Void(ctx context.Context, gatewayInvoiceID string) error
}

// RenderQueue renders invoice documents in the background.
type RenderQueue interface {
	EnqueueRender(ctx context.Context, invoiceID uuid.UUID) error
}

// InvoiceConfig holds the tunables of the invoice lifecycle.
type InvoiceConfig struct {
	PaymentTerms PaymentTerms

	// Reminders is the dunning reminder policy. A zero MaxReminders disables
	// reminders.
	Reminders domain.ReminderPolicy
}

// InvoiceDeps are the collaborators of the invoice service. Gateway and
// Renders are optional.
type InvoiceDeps struct {
	Store      repository.Store
	Strategies *entity.Registry
	Tax        tax.Calculator
	Documents  document.Renderer
	Notifier   notification.Sender
	Gateway    GatewayPublisher
	Renders    RenderQueue
	Metrics    *telemetry.InvoicingMetrics
	Logger     zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type invoiceService struct {
	store      repository.Store
	strategies *entity.Registry
	tax        tax.Calculator
	docs       document.Renderer
	notifier   notification.Sender
	gateway    GatewayPublisher
	renders    RenderQueue
	metrics    *telemetry.InvoicingMetrics
	logger     zerolog.Logger
	now        func() time.Time
	numbers    numberGenerator
	cfg        InvoiceConfig
}

// NewInvoiceService creates a new InvoiceService instance.
func NewInvoiceService(deps InvoiceDeps, cfg InvoiceConfig) (InvoiceService, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("invoice service: store is required")
	case deps.Strategies == nil:
		return nil, errors.New("invoice service: strategy registry is required")
	case deps.Tax == nil:
		return nil, errors.New("invoice service: tax calculator is required")
	case deps.Documents == nil:
		return nil, errors.New("invoice service: document renderer is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NopSender{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.PaymentTerms.Code == "" {
		cfg.PaymentTerms = DefaultPaymentTerms
	}

	return &invoiceService{
		store:      deps.Store,
		strategies: deps.Strategies,
		tax:        deps.Tax,
		docs:       deps.Documents,
		notifier:   deps.Notifier,
		gateway:    deps.Gateway,
		renders:    deps.Renders,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With().Str("component", "invoice").Logger(),
		now:        deps.Now,
		cfg:        cfg,
	}, nil
}

func (s *invoiceService) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Creation
// =============================================================================

// Create validates, prices, numbers and persists a draft invoice.
func (s *invoiceService) Create(ctx context.Context, params domain.CreateInvoiceParams) (*domain.Invoice, error) {
	const op = "invoice.create"

	if err := validateStruct(op, params); err != nil {
		return nil, err
	}
	if params.EntityID == uuid.Nil {
		return nil, domain.NewValidationError(op, "entity_id", "is required")
	}

	strategy, e, err := s.loadEntity(ctx, params.EntityType, params.EntityID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, op, params, strategy, e)
}

// CreateSubscriptionInvoice creates a draft for the entity's current plan
// covering one billing interval from PeriodStart.
func (s *invoiceService) CreateSubscriptionInvoice(ctx context.Context, params domain.SubscriptionInvoiceParams) (*domain.Invoice, error) {
	const op = "invoice.create_subscription"

	if !params.EntityType.Valid() {
		return nil, domain.NewValidationError(op, "entity_type", "must be one of: club tenant")
	}
	if params.EntityID == uuid.Nil {
		return nil, domain.NewValidationError(op, "entity_id", "is required")
	}
	if params.PeriodStart.IsZero() {
		return nil, domain.NewValidationError(op, "period_start", "is required")
	}

	strategy, e, err := s.loadEntity(ctx, params.EntityType, params.EntityID)
	if err != nil {
		return nil, err
	}
	plan := e.CurrentPlan()
	if plan == nil {
		return nil, domain.NewValidationError(op, "plan", "entity has no active plan")
	}

	period := domain.BillingPeriod{
		Start: params.PeriodStart,
		End:   plan.Interval.PeriodEnd(params.PeriodStart),
	}
	items, err := strategy.BuildSubscriptionLineItems(e, period)
	if err != nil {
		return nil, err
	}

	ref := plan.Ref
	return s.create(ctx, op, domain.CreateInvoiceParams{
		EntityType:    params.EntityType,
		EntityID:      params.EntityID,
		LineItems:     items,
		IssueDate:     params.IssueDate,
		BillingPeriod: &period,
		Plan:          &ref,
		Notes:         params.Notes,
	}, strategy, e)
}

func (s *invoiceService) create(ctx context.Context, op string, params domain.CreateInvoiceParams, strategy entity.Strategy, e domain.Invoiceable) (*domain.Invoice, error) {
	if err := strategy.ValidateCreation(ctx, e, params); err != nil {
		return nil, err
	}

	items, err := buildLineItems(op, params.LineItems)
	if err != nil {
		return nil, err
	}
	net, err := netAmount(op, items, params.NetAmount)
	if err != nil {
		return nil, err
	}

	rate, err := s.resolveTaxRate(ctx, op, e, params.TaxRate)
	if err != nil {
		return nil, err
	}
	amounts, err := domain.CalculateAmounts(net, rate, e.IsTaxExempt())
	if err != nil {
		return nil, err
	}

	issue := params.IssueDate
	if issue.IsZero() {
		issue = s.today()
	}
	due := params.DueDate
	if due.IsZero() {
		due = CalculateDueDateFromTerms(s.cfg.PaymentTerms, issue)
	}
	if due.Before(issue) {
		return nil, domain.NewValidationError(op, "due_date", domain.ErrorMessage(ErrDueBeforeIssue))
	}

	inv := &domain.Invoice{
		TenantID:      e.OwningTenantID(),
		EntityType:    e.InvoiceableType(),
		EntityID:      e.InvoiceableID(),
		Plan:          params.Plan,
		NetAmount:     amounts.Net,
		TaxRate:       amounts.TaxRate,
		TaxAmount:     amounts.Tax,
		GrossAmount:   amounts.Gross,
		Currency:      e.Currency(),
		LineItems:     items,
		Billing:       domain.SnapshotBilling(e),
		BillingPeriod: params.BillingPeriod,
		IssueDate:     issue,
		DueDate:       due,
		Notes:         params.Notes,
		CreatedBy:     domain.ActorIDFromContext(ctx),
	}
	if params.Gateway != nil {
		inv.Gateway = *params.Gateway
	}

	created, err := s.insert(ctx, op, strategy, inv)
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceCreated(created.TenantID.String(), string(created.EntityType))
	s.logger.Info().
		Str("invoice_id", created.ID.String()).
		Str("invoice_number", created.InvoiceNumber).
		Str("entity_type", string(created.EntityType)).
		Str("entity_id", created.EntityID.String()).
		Str("gross", created.GrossAmount.StringFixed(2)).
		Str("actor", actorID(created.CreatedBy)).
		Msg("invoice created")

	s.runHook("after_create", created, func() error { return strategy.AfterCreate(ctx, e, created) })
	return s.scheduleRender(ctx, created, false), nil
}

// insert numbers and persists inv. A number collision is retried once in a
// fresh transaction that first resyncs the counter with the stored numbers.
func (s *invoiceService) insert(ctx context.Context, op string, strategy entity.Strategy, inv *domain.Invoice) (*domain.Invoice, error) {
	arg, err := createParams(inv)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode invoice")
	}

	attempt := func(resync bool) (repository.Invoice, error) {
		var row repository.Invoice
		err := s.store.ExecTx(ctx, func(q repository.Querier) error {
			if resync {
				if err := s.numbers.Resync(ctx, q, inv.TenantID, inv.EntityType, strategy.NumberPrefix(), inv.IssueDate.Year()); err != nil {
					return err
				}
			}
			number, err := s.numbers.Next(ctx, q, inv.TenantID, inv.EntityType, strategy.NumberPrefix(), inv.IssueDate.Year())
			if err != nil {
				return err
			}
			arg.InvoiceNumber = number

			row, err = q.CreateInvoice(ctx, arg)
			if repository.IsUniqueViolation(err, repository.ConstraintInvoiceNumber) {
				return fmt.Errorf("%w: %s", domain.ErrNumberingCollision, number)
			}
			return err
		})
		return row, err
	}

	row, err := attempt(false)
	if errors.Is(err, domain.ErrNumberingCollision) {
		s.metrics.NumberCollision()
		s.logger.Warn().Err(err).Str("entity_type", string(inv.EntityType)).Msg("invoice number collision, resyncing counter")
		row, err = attempt(true)
	}
	switch {
	case errors.Is(err, domain.ErrNumberingCollision):
		s.metrics.NumberCollision()
		return nil, domain.WrapError(err, domain.ECONFLICT, op, domain.ErrorMessage(ErrNumberUnavailable))
	case repository.IsUniqueViolation(err, repository.ConstraintGatewayInvoiceID):
		return nil, domain.WrapError(err, domain.ECONFLICT, op, "gateway invoice is already linked to another invoice")
	case err != nil:
		return nil, domain.Internal(err, op, "failed to create invoice")
	}

	return s.fromRow(op, row)
}

// =============================================================================
// Draft editing
// =============================================================================

// Update changes a draft invoice and recomputes its amounts.
func (s *invoiceService) Update(ctx context.Context, id uuid.UUID, params domain.UpdateInvoiceParams) (*domain.Invoice, error) {
	const op = "invoice.update"

	if err := validateStruct(op, params); err != nil {
		return nil, err
	}

	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckTransition(domain.OpUpdate, inv); err != nil {
		return nil, err
	}
	_, e, err := s.loadEntity(ctx, inv.EntityType, inv.EntityID)
	if err != nil {
		return nil, err
	}

	var newItems []domain.LineItem
	if params.LineItems != nil {
		if newItems, err = buildLineItems(op, *params.LineItems); err != nil {
			return nil, err
		}
	}

	updated, _, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if err := domain.CheckTransition(domain.OpUpdate, cur); err != nil {
			return nil, err
		}

		items := cur.LineItems
		if params.LineItems != nil {
			items = newItems
		}
		net := cur.NetAmount
		if len(items) > 0 {
			net = domain.SumLineItems(items)
		}
		if params.NetAmount != nil {
			if len(items) > 0 && !params.NetAmount.Round(2).Equal(net) {
				return nil, domain.NewValidationError(op, "net_amount", domain.ErrorMessage(ErrNetAmountMismatch))
			}
			net = *params.NetAmount
		}
		rate := cur.TaxRate
		if params.TaxRate != nil {
			rate = *params.TaxRate
		}
		amounts, err := domain.CalculateAmounts(net, rate, e.IsTaxExempt())
		if err != nil {
			return nil, err
		}

		due := cur.DueDate
		if params.DueDate != nil {
			due = *params.DueDate
		}
		if due.Before(cur.IssueDate) {
			return nil, domain.NewValidationError(op, "due_date", domain.ErrorMessage(ErrDueBeforeIssue))
		}
		notes := cur.Notes
		if params.Notes != nil {
			notes = *params.Notes
		}

		encoded, err := encodeLineItems(items)
		if err != nil {
			return nil, err
		}
		row, err := q.UpdateDraftInvoice(ctx, repository.UpdateDraftInvoiceParams{
			ID:          repository.UUID(id),
			NetAmount:   repository.Numeric(amounts.Net),
			TaxRate:     repository.Numeric(amounts.TaxRate),
			TaxAmount:   repository.Numeric(amounts.Tax),
			GrossAmount: repository.Numeric(amounts.Gross),
			LineItems:   encoded,
			DueDate:     repository.Date(due),
			Notes:       repository.Text(notes),
			UpdatedBy:   repository.NullableUUID(domain.ActorIDFromContext(ctx)),
		})
		return &row, err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("invoice_id", id.String()).Str("gross", updated.GrossAmount.StringFixed(2)).Msg("draft invoice updated")
	return s.scheduleRender(ctx, updated, true), nil
}

// Delete removes a draft invoice and its stored document.
func (s *invoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "invoice.delete"

	var deleted *domain.Invoice
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cur, err := s.lock(ctx, op, q, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(domain.OpDelete, cur); err != nil {
			return err
		}
		n, err := q.DeleteDraftInvoice(ctx, repository.UUID(id))
		if err != nil {
			return domain.Internal(err, op, "failed to delete invoice")
		}
		if n == 0 {
			return ErrInvoiceNotFound
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return err
	}

	if deleted.DocumentKey != "" {
		if err := s.docs.Delete(ctx, deleted.DocumentKey); err != nil {
			s.logger.Warn().Err(err).Str("invoice_id", id.String()).Msg("failed to delete invoice document")
		}
	}
	s.logger.Info().Str("invoice_id", id.String()).Str("invoice_number", deleted.InvoiceNumber).Msg("draft invoice deleted")
	return nil
}

// =============================================================================
// Lifecycle transitions
// =============================================================================

// Send issues a draft invoice. Gateway-paying entities get the invoice pushed
// to the gateway first; the document must exist before the status changes.
func (s *invoiceService) Send(ctx context.Context, id uuid.UUID, opts domain.SendOptions) (*domain.Invoice, error) {
	const op = "invoice.send"

	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckTransition(domain.OpSend, inv); err != nil {
		return nil, err
	}
	strategy, e, err := s.loadEntity(ctx, inv.EntityType, inv.EntityID)
	if err != nil {
		return nil, err
	}

	var pushed *domain.GatewayReference
	if !opts.GatewayManaged && inv.Gateway.IsZero() && e.PreferredPaymentMethod() == domain.PaymentGateway {
		if s.gateway == nil {
			return nil, domain.WrapError(ErrGatewayRequired, domain.EUNAVAILABLE, op, "entity pays through the gateway but none is configured")
		}
		pushed, err = s.gateway.Push(ctx, inv, e)
		if err != nil {
			return nil, fmt.Errorf("%s: push invoice %s to gateway: %w", op, inv.InvoiceNumber, err)
		}
	}

	documentKey := ""
	if inv.DocumentKey == "" {
		documentKey, err = s.docs.Render(ctx, inv)
		if err != nil {
			s.voidPushed(ctx, pushed)
			return nil, domain.WrapError(err, domain.EUNAVAILABLE, op, domain.ErrorMessage(ErrDocumentRequired))
		}
	}

	updated, changed, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		// The gateway webhook for the pushed invoice can win the race and
		// send the invoice first.
		if pushed != nil && cur.Status == domain.StatusSent && cur.Gateway.InvoiceID == pushed.InvoiceID {
			return nil, nil
		}
		if err := domain.CheckTransition(domain.OpSend, cur); err != nil {
			return nil, err
		}
		if pushed != nil {
			if _, err := q.SetInvoiceGatewayReference(ctx, repository.SetInvoiceGatewayReferenceParams{
				ID:               repository.UUID(id),
				GatewayInvoiceID: repository.Text(pushed.InvoiceID),
				GatewayHostedUrl: repository.Text(pushed.HostedURL),
				GatewayPdfUrl:    repository.Text(pushed.PDFURL),
			}); err != nil {
				return nil, err
			}
		}
		if documentKey != "" {
			if _, err := q.SetInvoiceDocument(ctx, repository.SetInvoiceDocumentParams{
				ID:          repository.UUID(id),
				DocumentKey: repository.Text(documentKey),
			}); err != nil {
				return nil, err
			}
		}
		row, err := q.MarkInvoiceSent(ctx, repository.MarkInvoiceSentParams{
			ID:        repository.UUID(id),
			SentAt:    repository.Timestamptz(s.now()),
			UpdatedBy: repository.NullableUUID(domain.ActorIDFromContext(ctx)),
		})
		return &row, err
	})
	if err != nil {
		s.voidPushed(ctx, pushed)
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.metrics.Transition(string(updated.EntityType), string(updated.Status))
	s.logger.Info().
		Str("invoice_id", id.String()).
		Str("invoice_number", updated.InvoiceNumber).
		Bool("gateway", !updated.Gateway.IsZero()).
		Msg("invoice sent")

	s.runHook("after_send", updated, func() error { return strategy.AfterSend(ctx, e, updated) })
	if opts.Notify {
		s.notify(ctx, notification.KindInvoice, updated, func(to []string) error {
			return s.notifier.SendInvoice(ctx, updated, to)
		}, strategy.ResolveNotificationRecipients(e, updated))
	}
	return updated, nil
}

// MarkPaid records a payment. Paying a paid invoice is a no-op so gateway
// replays stay harmless.
func (s *invoiceService) MarkPaid(ctx context.Context, id uuid.UUID, params domain.MarkPaidParams) (*domain.Invoice, bool, error) {
	const op = "invoice.mark_paid"

	if err := validateStruct(op, params); err != nil {
		return nil, false, err
	}
	paidAt := s.now()
	if params.PaidAt != nil {
		paidAt = *params.PaidAt
	}

	updated, changed, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if cur.Status == domain.StatusPaid {
			return nil, nil
		}
		if err := domain.CheckTransition(domain.OpMarkPaid, cur); err != nil {
			return nil, err
		}
		row, err := q.MarkInvoicePaid(ctx, repository.MarkInvoicePaidParams{
			ID:               repository.UUID(id),
			PaidAt:           repository.Timestamptz(paidAt),
			PaymentReference: repository.Text(params.Reference),
			PaymentNotes:     repository.Text(params.Notes),
			UpdatedBy:        repository.NullableUUID(domain.ActorIDFromContext(ctx)),
		})
		return &row, err
	})
	if err != nil || !changed {
		return updated, false, err
	}

	s.metrics.Transition(string(updated.EntityType), string(updated.Status))
	s.metrics.Revenue(updated.TenantID.String(), updated.Currency, updated.GrossAmount.InexactFloat64())
	s.logger.Info().
		Str("invoice_id", id.String()).
		Str("invoice_number", updated.InvoiceNumber).
		Str("reference", updated.PaymentReference).
		Msg("invoice paid")

	strategy, e, err := s.loadEntity(ctx, updated.EntityType, updated.EntityID)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", id.String()).Msg("failed to load entity after payment")
		return updated, true, nil
	}
	s.runHook("after_payment", updated, func() error { return strategy.AfterPayment(ctx, e, updated) })
	s.runHook("on_invoice_paid", updated, func() error { return e.OnInvoicePaid(ctx, updated) })
	s.notify(ctx, notification.KindPaymentConfirmation, updated, func(to []string) error {
		return s.notifier.SendPaymentConfirmation(ctx, updated, to)
	}, strategy.ResolveNotificationRecipients(e, updated))
	return updated, true, nil
}

// MarkOverdue transitions a sent invoice to overdue.
func (s *invoiceService) MarkOverdue(ctx context.Context, id uuid.UUID) (*domain.Invoice, bool, error) {
	const op = "invoice.mark_overdue"

	updated, changed, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if cur.Status == domain.StatusOverdue {
			return nil, nil
		}
		if err := domain.CheckTransition(domain.OpMarkOverdue, cur); err != nil {
			return nil, err
		}
		row, err := q.MarkInvoiceOverdue(ctx, repository.MarkInvoiceOverdueParams{
			ID:        repository.UUID(id),
			UpdatedBy: repository.NullableUUID(domain.ActorIDFromContext(ctx)),
		})
		return &row, err
	})
	if err != nil || !changed {
		return updated, false, err
	}

	s.metrics.Transition(string(updated.EntityType), string(updated.Status))
	s.logger.Info().
		Str("invoice_id", id.String()).
		Str("invoice_number", updated.InvoiceNumber).
		Time("due_date", updated.DueDate).
		Msg("invoice overdue")

	strategy, e, err := s.loadEntity(ctx, updated.EntityType, updated.EntityID)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", id.String()).Msg("failed to load entity after overdue")
		return updated, true, nil
	}
	s.runHook("after_overdue", updated, func() error { return strategy.AfterOverdue(ctx, e, updated) })
	s.runHook("on_invoice_overdue", updated, func() error { return e.OnInvoiceOverdue(ctx, updated) })
	return updated, true, nil
}

// Cancel cancels an unpaid invoice. A gateway invoice is voided first unless
// the cancellation came from the gateway.
func (s *invoiceService) Cancel(ctx context.Context, id uuid.UUID, params domain.CancelParams) (*domain.Invoice, error) {
	const op = "invoice.cancel"

	if err := validateStruct(op, params); err != nil {
		return nil, err
	}
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckTransition(domain.OpCancel, inv); err != nil {
		return nil, err
	}

	if !params.GatewayManaged && !inv.Gateway.IsZero() {
		if s.gateway == nil {
			return nil, domain.WrapError(ErrGatewayRequired, domain.EUNAVAILABLE, op, "invoice is gateway collected but no gateway is configured")
		}
		if err := s.gateway.Void(ctx, inv.Gateway.InvoiceID); err != nil {
			return nil, fmt.Errorf("%s: void gateway invoice %s: %w", op, inv.Gateway.InvoiceID, err)
		}
	}

	var previous domain.Status
	updated, _, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if err := domain.CheckTransition(domain.OpCancel, cur); err != nil {
			return nil, err
		}
		previous = cur.Status
		row, err := q.CancelInvoice(ctx, repository.CancelInvoiceParams{
			ID:                 repository.UUID(id),
			CancelledAt:        repository.Timestamptz(s.now()),
			CancellationReason: repository.Text(params.Reason),
			UpdatedBy:          repository.NullableUUID(domain.ActorIDFromContext(ctx)),
		})
		return &row, err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(updated.EntityType), string(updated.Status))
	s.logger.Info().
		Str("invoice_id", id.String()).
		Str("invoice_number", updated.InvoiceNumber).
		Str("reason", params.Reason).
		Bool("gateway_managed", params.GatewayManaged).
		Msg("invoice cancelled")

	strategy, e, err := s.loadEntity(ctx, updated.EntityType, updated.EntityID)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", id.String()).Msg("failed to load entity after cancel")
		return updated, nil
	}
	s.runHook("after_cancel", updated, func() error { return strategy.AfterCancel(ctx, e, updated) })

	// Drafts were never delivered, so there is nobody to tell.
	if previous != domain.StatusDraft {
		s.notify(ctx, notification.KindCancellation, updated, func(to []string) error {
			return s.notifier.SendCancellation(ctx, updated, to)
		}, strategy.ResolveNotificationRecipients(e, updated))
	}
	return updated, nil
}

// SendReminder records and delivers the next payment reminder.
func (s *invoiceService) SendReminder(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	const op = "invoice.send_reminder"

	updated, _, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if err := domain.CheckTransition(domain.OpSendReminder, cur); err != nil {
			return nil, err
		}
		if s.cfg.Reminders.Exhausted(cur) {
			return nil, &domain.InvalidStateTransitionError{
				Operation: domain.OpSendReminder,
				Status:    cur.Status,
				InvoiceID: cur.ID.String(),
				Cause:     domain.ErrMaxRemindersReached,
			}
		}
		return s.recordReminder(ctx, q, id)
	})
	if err != nil {
		return nil, err
	}
	s.deliverReminder(ctx, updated)
	return updated, nil
}

// SendDueReminder is the scheduler's variant of SendReminder. Eligibility is
// decided on the locked row, so runs working from stale lists cannot send
// the same reminder twice.
func (s *invoiceService) SendDueReminder(ctx context.Context, id uuid.UUID, asOf time.Time) (*domain.Invoice, bool, error) {
	const op = "invoice.send_due_reminder"

	updated, sent, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if !s.cfg.Reminders.Due(cur, asOf) {
			return nil, nil
		}
		return s.recordReminder(ctx, q, id)
	})
	if err != nil || !sent {
		return updated, false, err
	}
	s.deliverReminder(ctx, updated)
	return updated, true, nil
}

func (s *invoiceService) recordReminder(ctx context.Context, q repository.Querier, id uuid.UUID) (*repository.Invoice, error) {
	row, err := q.RecordInvoiceReminder(ctx, repository.RecordInvoiceReminderParams{
		ID:        repository.UUID(id),
		SentAt:    repository.Timestamptz(s.now()),
		UpdatedBy: repository.NullableUUID(domain.ActorIDFromContext(ctx)),
	})
	return &row, err
}

func (s *invoiceService) deliverReminder(ctx context.Context, updated *domain.Invoice) {
	level := updated.ReminderCount
	s.metrics.ReminderSent(strconv.Itoa(level))
	s.logger.Info().
		Str("invoice_id", updated.ID.String()).
		Str("invoice_number", updated.InvoiceNumber).
		Int("level", level).
		Msg("payment reminder recorded")

	strategy, e, err := s.loadEntity(ctx, updated.EntityType, updated.EntityID)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", updated.ID.String()).Msg("failed to load entity for reminder")
		return
	}
	s.notify(ctx, notification.KindReminder, updated, func(to []string) error {
		return s.notifier.SendReminder(ctx, updated, to, level)
	}, strategy.ResolveNotificationRecipients(e, updated))
}

// SuspendForNonPayment suspends the entity billed by an overdue invoice.
func (s *invoiceService) SuspendForNonPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "invoice.suspend"

	inv, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := domain.CheckTransition(domain.OpSuspend, inv); err != nil {
		return false, err
	}
	strategy, e, err := s.loadEntity(ctx, inv.EntityType, inv.EntityID)
	if err != nil {
		return false, err
	}
	if e.IsSuspended() {
		return false, nil
	}

	suspended, err := strategy.Suspend(ctx, e, inv)
	if err != nil {
		return false, domain.Internal(err, op, "failed to suspend entity")
	}
	if !suspended {
		return false, nil
	}

	s.metrics.Suspended(string(inv.EntityType))
	s.logger.Warn().
		Str("invoice_id", id.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("entity_type", string(inv.EntityType)).
		Str("entity_id", inv.EntityID.String()).
		Int("days_overdue", inv.DaysOverdue(s.now())).
		Msg("entity suspended for non-payment")

	s.notify(ctx, notification.KindSuspensionWarning, inv, func(to []string) error {
		return s.notifier.SendSuspensionWarning(ctx, inv, to)
	}, strategy.ResolveNotificationRecipients(e, inv))
	return true, nil
}

// AttachGatewayReference links the invoice to a gateway invoice. Attaching
// the same reference again only refreshes the URLs.
func (s *invoiceService) AttachGatewayReference(ctx context.Context, id uuid.UUID, ref domain.GatewayReference) (*domain.Invoice, error) {
	const op = "invoice.attach_gateway_reference"

	if ref.IsZero() {
		return nil, domain.NewValidationError(op, "gateway_invoice_id", "is required")
	}

	updated, _, err := s.withLockedInvoice(ctx, op, id, func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error) {
		if !cur.Gateway.IsZero() && cur.Gateway.InvoiceID != ref.InvoiceID {
			return nil, domain.Conflict(op, fmt.Sprintf("invoice %s is already linked to gateway invoice %s", cur.InvoiceNumber, cur.Gateway.InvoiceID))
		}
		if cur.Gateway == ref {
			return nil, nil
		}
		row, err := q.SetInvoiceGatewayReference(ctx, repository.SetInvoiceGatewayReferenceParams{
			ID:               repository.UUID(id),
			GatewayInvoiceID: repository.Text(ref.InvoiceID),
			GatewayHostedUrl: repository.Text(ref.HostedURL),
			GatewayPdfUrl:    repository.Text(ref.PDFURL),
		})
		return &row, err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RegenerateDocument renders the document again and stores its key.
func (s *invoiceService) RegenerateDocument(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	const op = "invoice.regenerate_document"

	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := s.docs.Regenerate(ctx, inv)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, op, domain.ErrorMessage(ErrDocumentRequired))
	}

	row, err := s.store.SetInvoiceDocument(ctx, repository.SetInvoiceDocumentParams{
		ID:          repository.UUID(id),
		DocumentKey: repository.Text(key),
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "invoice", id.String())
		}
		return nil, domain.Internal(err, op, "failed to store document key")
	}
	return s.fromRow(op, row)
}

// =============================================================================
// Helpers
// =============================================================================

// withLockedInvoice runs fn in a transaction holding the invoice row lock.
// fn returns the updated row, or nil when nothing changed; the bool reports
// which of the two happened.
func (s *invoiceService) withLockedInvoice(ctx context.Context, op string, id uuid.UUID, fn func(q repository.Querier, cur *domain.Invoice) (*repository.Invoice, error)) (*domain.Invoice, bool, error) {
	var (
		result  *domain.Invoice
		changed bool
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cur, err := s.lock(ctx, op, q, id)
		if err != nil {
			return err
		}
		row, err := fn(q, cur)
		if err != nil {
			return classifyTxError(op, err)
		}
		if row == nil {
			result = cur
			return nil
		}
		result, err = s.fromRow(op, *row)
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (s *invoiceService) lock(ctx context.Context, op string, q repository.Querier, id uuid.UUID) (*domain.Invoice, error) {
	row, err := q.GetInvoiceForUpdate(ctx, repository.UUID(id))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "invoice", id.String())
		}
		return nil, domain.Internal(err, op, "failed to lock invoice")
	}
	return s.fromRow(op, row)
}

// classifyTxError keeps domain errors and wraps everything else as internal.
func classifyTxError(op string, err error) error {
	var (
		de *domain.Error
		ve *domain.ValidationError
		te *domain.InvalidStateTransitionError
	)
	if errors.As(err, &de) || errors.As(err, &ve) || errors.As(err, &te) {
		return err
	}
	if repository.IsNotFound(err) {
		return domain.Conflict(op, "invoice changed concurrently")
	}
	return domain.Internal(err, op, "failed to update invoice")
}

func (s *invoiceService) fromRow(op string, row repository.Invoice) (*domain.Invoice, error) {
	inv, err := invoiceFromRow(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode invoice")
	}
	return inv, nil
}

func (s *invoiceService) loadEntity(ctx context.Context, t domain.EntityType, id uuid.UUID) (entity.Strategy, domain.Invoiceable, error) {
	strategy, err := s.strategies.Get(t)
	if err != nil {
		return nil, nil, err
	}
	e, err := strategy.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return strategy, e, nil
}

func (s *invoiceService) resolveTaxRate(ctx context.Context, op string, e domain.Invoiceable, override *decimal.Decimal) (decimal.Decimal, error) {
	if e.IsTaxExempt() {
		return decimal.Zero, nil
	}
	if override != nil {
		return *override, nil
	}

	addr := e.BillingAddress()
	res, err := s.tax.CalculateRate(ctx, tax.TaxParams{
		Jurisdiction: tax.Address{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		},
		EntityType: string(e.InvoiceableType()),
		TaxExempt:  e.IsTaxExempt(),
		VATNumber:  e.VATNumber(),
	})
	if err != nil {
		if errors.Is(err, tax.ErrMissingJurisdiction) {
			return decimal.Zero, domain.NewValidationError(op, "country", err.Error())
		}
		return decimal.Zero, domain.Internal(err, op, "failed to resolve tax rate")
	}
	return res.Rate, nil
}

// scheduleRender queues the document render, or renders inline when no
// queue is configured. Failures are logged; the invoice is returned as is
// when rendering did not complete.
func (s *invoiceService) scheduleRender(ctx context.Context, inv *domain.Invoice, regenerate bool) *domain.Invoice {
	if s.renders != nil {
		err := s.renders.EnqueueRender(ctx, inv.ID)
		if err == nil {
			return inv
		}
		s.logger.Warn().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to enqueue render, rendering inline")
	}

	render := s.docs.Render
	if regenerate {
		render = s.docs.Regenerate
	}
	key, err := render(ctx, inv)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to render invoice document")
		return inv
	}

	row, err := s.store.SetInvoiceDocument(ctx, repository.SetInvoiceDocumentParams{
		ID:          repository.UUID(inv.ID),
		DocumentKey: repository.Text(key),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to store document key")
		return inv
	}
	if updated, err := invoiceFromRow(row); err == nil {
		return updated
	}
	inv.DocumentKey = key
	return inv
}

func (s *invoiceService) voidPushed(ctx context.Context, ref *domain.GatewayReference) {
	if ref == nil || s.gateway == nil {
		return
	}
	if err := s.gateway.Void(ctx, ref.InvoiceID); err != nil {
		s.logger.Error().Err(err).Str("gateway_invoice_id", ref.InvoiceID).Msg("failed to void orphaned gateway invoice")
	}
}

// runHook runs a post-commit hook. The transition has already committed, so
// errors are only logged.
func (s *invoiceService) runHook(name string, inv *domain.Invoice, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error().
			Err(err).
			Str("hook", name).
			Str("invoice_id", inv.ID.String()).
			Str("entity_type", string(inv.EntityType)).
			Str("entity_id", inv.EntityID.String()).
			Msg("post-commit hook failed")
	}
}

// notify delivers a notification and logs failures. Notifications never
// fail the operation that triggered them.
func (s *invoiceService) notify(ctx context.Context, kind string, inv *domain.Invoice, send func(to []string) error, recipients []string) {
	if len(recipients) == 0 {
		s.logger.Warn().Str("kind", kind).Str("invoice_id", inv.ID.String()).Msg("no notification recipients")
		return
	}
	err := send(recipients)
	s.metrics.Notification(kind, err)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("kind", kind).
			Str("invoice_id", inv.ID.String()).
			Strs("recipients", recipients).
			Msg("notification delivery failed")
	}
}

func buildLineItems(op string, in []domain.LineItemInput) ([]domain.LineItem, error) {
	if len(in) == 0 {
		return nil, nil
	}
	ve := &domain.ValidationError{Op: op, Fields: map[string]string{}}
	items := make([]domain.LineItem, 0, len(in))
	for i, item := range in {
		if item.UnitPrice.IsNegative() {
			ve.Fields[fmt.Sprintf("line_items[%d].unit_price", i)] = "must not be negative"
			continue
		}
		items = append(items, domain.NewLineItem(item.Description, item.Quantity, item.UnitPrice))
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}
	return items, nil
}

func netAmount(op string, items []domain.LineItem, explicit *decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case len(items) > 0 && explicit != nil:
		sum := domain.SumLineItems(items)
		if !explicit.Round(2).Equal(sum) {
			return decimal.Zero, domain.NewValidationError(op, "net_amount", domain.ErrorMessage(ErrNetAmountMismatch))
		}
		return sum, nil
	case len(items) > 0:
		return domain.SumLineItems(items), nil
	case explicit != nil:
		return *explicit, nil
	default:
		return decimal.Zero, domain.NewValidationError(op, "line_items", domain.ErrorMessage(ErrNoAmount))
	}
}
