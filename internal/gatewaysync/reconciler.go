package gatewaysync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/billing"
	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/repository"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// Outcome describes what the reconciler did with an event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// ErrUnmatchedInvoice is returned for events whose gateway invoice cannot be
// matched to, or imported as, a local invoice.
var ErrUnmatchedInvoice = errors.New("gateway invoice has no local counterpart")

// EventLedger records processed gateway events.
type EventLedger interface {
	GetGatewayEvent(ctx context.Context, eventID string) (repository.GatewayEvent, error)
	RecordGatewayEvent(ctx context.Context, arg repository.RecordGatewayEventParams) (int64, error)
}

// Reconciler applies gateway invoice events to local invoices. Every change
// goes through the invoice service, so the state machine guards replays
// even when the ledger misses one.
type Reconciler struct {
	invoices domain.InvoiceService
	ledger   EventLedger
	logger   zerolog.Logger
	metrics  *telemetry.InvoicingMetrics

	// Now is overridable in tests.
	Now func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(invoices domain.InvoiceService, ledger EventLedger, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) *Reconciler {
	return &Reconciler{
		invoices: invoices,
		ledger:   ledger,
		logger:   logger.With().Str("component", "gateway_reconcile").Logger(),
		metrics:  metrics,
		Now:      time.Now,
	}
}

// HandleEvent applies one verified event. The event id is recorded only
// after the event was applied, so a failed event is retried by the gateway.
func (r *Reconciler) HandleEvent(ctx context.Context, event *billing.InvoiceEvent) (Outcome, error) {
	r.metrics.Webhook(event.Type)
	ctx = domain.NewContextWithActor(ctx, domain.SystemActor("gateway"))

	lc := r.logger.With().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("gateway_invoice_id", event.Invoice.ID)
	if id := domain.RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	log := lc.Logger()

	outcome, err := r.handle(ctx, event, log)
	if err != nil {
		outcome = OutcomeFailed
		r.metrics.WebhookFailure(event.Type)
		ev := log.Error()
		if !IsRetryable(err) {
			ev = log.Warn()
		}
		ev.Err(err).Bool("retryable", IsRetryable(err)).Msg("gateway event failed")
	}
	r.metrics.WebhookOutcome(event.Type, string(outcome))
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, event *billing.InvoiceEvent, log zerolog.Logger) (Outcome, error) {
	if !event.IsHandled() {
		log.Debug().Msg("ignoring unhandled event type")
		return OutcomeIgnored, nil
	}

	if _, err := r.ledger.GetGatewayEvent(ctx, event.ID); err == nil {
		log.Info().Msg("event already processed")
		return OutcomeDuplicate, nil
	} else if !repository.IsNotFound(err) {
		return OutcomeFailed, domain.Internal(err, "gateway.reconcile", "failed to read event ledger")
	}

	inv, err := r.locate(ctx, &event.Invoice)
	if err != nil {
		return OutcomeFailed, err
	}

	var applied bool
	switch event.Type {
	case billing.EventInvoiceFinalized:
		applied, err = r.finalized(ctx, event, inv, log)
	case billing.EventInvoicePaid:
		applied, err = r.paid(ctx, event, inv, log)
	case billing.EventInvoicePaymentFailed:
		applied, err = r.paymentFailed(ctx, event, inv, log)
	case billing.EventInvoiceVoided:
		applied, err = r.voided(ctx, event, inv, log)
	}
	if err != nil {
		return OutcomeFailed, err
	}

	if _, err := r.ledger.RecordGatewayEvent(ctx, repository.RecordGatewayEventParams{
		EventID:          event.ID,
		EventType:        event.Type,
		GatewayInvoiceID: repository.Text(event.Invoice.ID),
	}); err != nil {
		return OutcomeFailed, domain.Internal(err, "gateway.reconcile", "failed to record event")
	}

	if !applied {
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}

// locate finds the local invoice by gateway id, then by the local id in the
// gateway metadata. Returns nil when neither matches.
func (r *Reconciler) locate(ctx context.Context, gi *billing.Invoice) (*domain.Invoice, error) {
	inv, err := r.invoices.GetByGatewayID(ctx, gi.ID)
	if err == nil {
		return inv, nil
	}
	if !domain.IsCode(err, domain.ENOTFOUND) {
		return nil, err
	}

	local := gi.LocalInvoiceID()
	if local == "" {
		return nil, nil
	}
	id, err := uuid.Parse(local)
	if err != nil {
		return nil, nil
	}
	inv, err = r.invoices.Get(ctx, id)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// importInvoice creates a draft for a gateway invoice that was created
// outside this service. The gateway total becomes the net amount with a
// zero tax rate, since the gateway already charged it in full.
func (r *Reconciler) importInvoice(ctx context.Context, gi *billing.Invoice, log zerolog.Logger) (*domain.Invoice, error) {
	entityType := domain.EntityType(gi.Metadata[billing.MetaEntityType])
	entityID, err := uuid.Parse(gi.Metadata[billing.MetaEntityID])
	if !entityType.Valid() || err != nil {
		return nil, fmt.Errorf("%w: %s carries no billable entity", ErrUnmatchedInvoice, gi.ID)
	}

	zero := domain.FromCents(0)
	params := domain.CreateInvoiceParams{
		EntityType: entityType,
		EntityID:   entityID,
		TaxRate:    &zero,
		Notes:      "Imported from payment gateway invoice " + gi.ID,
		Gateway: &domain.GatewayReference{
			InvoiceID: gi.ID,
			HostedURL: gi.HostedURL,
			PDFURL:    gi.PDFURL,
		},
	}
	if !gi.CreatedAt.IsZero() {
		params.IssueDate = gi.CreatedAt.UTC()
	}
	if gi.DueDate != nil {
		params.DueDate = gi.DueDate.UTC()
	}
	for _, line := range gi.Lines {
		if line.AmountCents <= 0 {
			continue
		}
		params.LineItems = append(params.LineItems, domain.LineItemInput{
			Description: line.Description,
			Quantity:    1,
			UnitPrice:   domain.FromCents(line.AmountCents),
		})
	}
	if len(params.LineItems) == 0 {
		net := domain.FromCents(gi.TotalCents)
		params.NetAmount = &net
	}

	inv, err := r.invoices.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("import gateway invoice %s: %w", gi.ID, err)
	}
	log.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Msg("gateway invoice imported")
	return inv, nil
}

func (r *Reconciler) ensureLocal(ctx context.Context, event *billing.InvoiceEvent, inv *domain.Invoice, log zerolog.Logger) (*domain.Invoice, error) {
	if inv != nil {
		return r.attach(ctx, inv, &event.Invoice)
	}
	return r.importInvoice(ctx, &event.Invoice, log)
}

// attach links inv to the gateway invoice unless it already is.
func (r *Reconciler) attach(ctx context.Context, inv *domain.Invoice, gi *billing.Invoice) (*domain.Invoice, error) {
	if inv.Gateway.InvoiceID == gi.ID {
		return inv, nil
	}
	return r.invoices.AttachGatewayReference(ctx, inv.ID, domain.GatewayReference{
		InvoiceID: gi.ID,
		HostedURL: gi.HostedURL,
		PDFURL:    gi.PDFURL,
	})
}

// sendDraft sends a draft as gateway managed; other states pass through.
func (r *Reconciler) sendDraft(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	if inv.Status != domain.StatusDraft {
		return inv, nil
	}
	return r.invoices.Send(ctx, inv.ID, domain.SendOptions{GatewayManaged: true})
}

func (r *Reconciler) finalized(ctx context.Context, event *billing.InvoiceEvent, inv *domain.Invoice, log zerolog.Logger) (bool, error) {
	inv, err := r.ensureLocal(ctx, event, inv, log)
	if err != nil {
		return false, err
	}
	if inv.Status != domain.StatusDraft {
		return false, nil
	}
	if _, err := r.sendDraft(ctx, inv); err != nil {
		return false, err
	}
	log.Info().Str("invoice_id", inv.ID.String()).Msg("invoice sent from gateway finalization")
	return true, nil
}

func (r *Reconciler) paid(ctx context.Context, event *billing.InvoiceEvent, inv *domain.Invoice, log zerolog.Logger) (bool, error) {
	inv, err := r.ensureLocal(ctx, event, inv, log)
	if err != nil {
		return false, err
	}
	if inv.Status == domain.StatusPaid {
		return false, nil
	}
	if inv, err = r.sendDraft(ctx, inv); err != nil {
		return false, err
	}

	paidAt := event.CreatedAt
	if event.Invoice.PaidAt != nil {
		paidAt = *event.Invoice.PaidAt
	}
	if paidAt.IsZero() {
		paidAt = r.Now()
	}
	paid, changed, err := r.invoices.MarkPaid(ctx, inv.ID, domain.MarkPaidParams{
		Reference: event.Invoice.ID,
		Notes:     "Paid through payment gateway",
		PaidAt:    &paidAt,
	})
	if err != nil || !changed {
		return false, err
	}
	log.Info().
		Str("invoice_id", paid.ID.String()).
		Str("invoice_number", paid.InvoiceNumber).
		Int64("amount_paid", event.Invoice.AmountPaid).
		Msg("invoice paid through gateway")
	return true, nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, event *billing.InvoiceEvent, inv *domain.Invoice, log zerolog.Logger) (bool, error) {
	if inv == nil {
		log.Warn().Msg("payment failed for unknown gateway invoice")
		return false, nil
	}
	log.Warn().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("status", string(inv.Status)).
		Msg("gateway payment attempt failed")

	if inv.Status != domain.StatusSent || inv.DaysOverdue(r.Now()) == 0 {
		return false, nil
	}
	_, changed, err := r.invoices.MarkOverdue(ctx, inv.ID)
	return changed, err
}

func (r *Reconciler) voided(ctx context.Context, event *billing.InvoiceEvent, inv *domain.Invoice, log zerolog.Logger) (bool, error) {
	if inv == nil {
		log.Info().Msg("voided gateway invoice has no local counterpart")
		return false, nil
	}
	if inv.Status == domain.StatusCancelled {
		return false, nil
	}
	if _, err := r.invoices.Cancel(ctx, inv.ID, domain.CancelParams{
		Reason:         "Voided at payment gateway",
		GatewayManaged: true,
	}); err != nil {
		return false, err
	}
	log.Info().Str("invoice_id", inv.ID.String()).Msg("invoice cancelled from gateway void")
	return true, nil
}

// IsRetryable reports whether a failed event should be redelivered by the
// gateway: infrastructure failures are, business rule rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if billing.IsTemporary(err) {
		return true
	}
	if errors.Is(err, ErrUnmatchedInvoice) {
		return false
	}
	switch domain.ErrorCode(err) {
	case domain.EINVALID, domain.ECONFLICT, domain.ENOTFOUND:
		return false
	}
	return true
}
