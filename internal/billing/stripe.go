package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/courtbill/internal/telemetry"
)

// StripeProvider implements Provider using Stripe invoices.
//
// Calls use per-provider clients rather than the package-level stripe.Key so
// tests can point the provider at a fake backend.
type StripeProvider struct {
	config    StripeConfig
	invoices  invoice.Client
	items     invoiceitem.Client
	customers customer.Client
	logger    zerolog.Logger
	metrics   *telemetry.InvoicingMetrics

	// newBackOff is overridable in tests.
	newBackOff func() backoff.BackOff
}

// NewStripeProvider creates a Stripe-backed provider. metrics may be nil.
func NewStripeProvider(config StripeConfig, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	cfg := config.withDefaults()

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
		// Retries are ours so they are visible in logs and metrics.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	p := &StripeProvider{
		config:    cfg,
		invoices:  invoice.Client{B: backend, Key: cfg.APIKey},
		items:     invoiceitem.Client{B: backend, Key: cfg.APIKey},
		customers: customer.Client{B: backend, Key: cfg.APIKey},
		logger:    logger.With().Str("component", "stripe").Logger(),
		metrics:   metrics,
	}
	p.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 250 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		return b
	}
	return p, nil
}

// call runs fn with retries for transient failures. Every attempt gets its
// own timeout so a hung connection cannot hold the caller forever.
func (p *StripeProvider) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() { p.metrics.ObserveGateway(op, time.Since(start)) }()

	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.config.MaxRetries)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.config.timeout())
		defer cancel()

		err := classify(op, fn(attemptCtx))
		if err == nil {
			return nil
		}
		if !err.Transient {
			return backoff.Permanent(err)
		}
		p.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Msg("transient gateway failure, retrying")
		return err
	}, b)
	if err != nil {
		gerr := classify(op, err)
		p.metrics.GatewayError(op, gerr.Transient)
		return gerr
	}
	return nil
}

// CreateCustomer registers a customer.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	var out *stripe.Customer
	err := p.call(ctx, "customer.create", func(ctx context.Context) error {
		sp := &stripe.CustomerParams{
			Email: stripe.String(params.Email),
			Name:  stripe.String(params.Name),
		}
		sp.Context = ctx
		for k, v := range params.Metadata {
			sp.AddMetadata(k, v)
		}
		var err error
		out, err = p.customers.New(sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Customer{ID: out.ID, Email: out.Email, Name: out.Name}, nil
}

// CreateInvoice creates a draft invoice, then attaches one item per line and
// the tax line. The invoice is not finalized.
func (p *StripeProvider) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	if params.CustomerID == "" {
		return nil, &GatewaySyncError{Op: "invoice.create", Err: ErrCustomerRequired}
	}
	currency := strings.ToLower(params.Currency)
	days := params.DaysUntilDue
	if days <= 0 {
		days = p.config.DefaultDaysUntilDue
	}

	var created *stripe.Invoice
	err := p.call(ctx, "invoice.create", func(ctx context.Context) error {
		sp := &stripe.InvoiceParams{
			Customer:                    stripe.String(params.CustomerID),
			Currency:                    stripe.String(currency),
			CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
			DaysUntilDue:                stripe.Int64(days),
			AutoAdvance:                 stripe.Bool(false),
			PendingInvoiceItemsBehavior: stripe.String("exclude"),
		}
		if params.Description != "" {
			sp.Description = stripe.String(params.Description)
		}
		sp.Context = ctx
		if params.IdempotencyKey != "" {
			sp.SetIdempotencyKey(params.IdempotencyKey + ":invoice")
		}
		for k, v := range params.Metadata {
			sp.AddMetadata(k, v)
		}
		var err error
		created, err = p.invoices.New(sp)
		return err
	})
	if err != nil {
		return nil, err
	}

	lines := params.Lines
	if params.TaxCents > 0 {
		desc := params.TaxDescription
		if desc == "" {
			desc = "Tax"
		}
		lines = append(lines[:len(lines):len(lines)], InvoiceLine{Description: desc, Quantity: 1, AmountCents: params.TaxCents})
	}

	for i, line := range lines {
		line := line
		err := p.call(ctx, "invoiceitem.create", func(ctx context.Context) error {
			sp := &stripe.InvoiceItemParams{
				Customer:    stripe.String(params.CustomerID),
				Invoice:     stripe.String(created.ID),
				Currency:    stripe.String(currency),
				Amount:      stripe.Int64(line.AmountCents),
				Description: stripe.String(lineDescription(line)),
			}
			sp.Context = ctx
			if params.IdempotencyKey != "" {
				sp.SetIdempotencyKey(fmt.Sprintf("%s:item:%d", params.IdempotencyKey, i))
			}
			_, err := p.items.New(sp)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	p.logger.Info().
		Str("gateway_invoice_id", created.ID).
		Str("customer_id", params.CustomerID).
		Int("lines", len(lines)).
		Msg("gateway invoice created")

	return p.GetInvoice(ctx, created.ID)
}

func lineDescription(line InvoiceLine) string {
	if line.Quantity > 1 {
		return fmt.Sprintf("%s (x%d)", line.Description, line.Quantity)
	}
	return line.Description
}

// FinalizeInvoice finalizes a draft invoice.
func (p *StripeProvider) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var out *stripe.Invoice
	err := p.call(ctx, "invoice.finalize", func(ctx context.Context) error {
		sp := &stripe.InvoiceFinalizeInvoiceParams{AutoAdvance: stripe.Bool(false)}
		sp.Context = ctx
		var err error
		out, err = p.invoices.FinalizeInvoice(invoiceID, sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeInvoice(out), nil
}

// SendInvoice emails the hosted invoice.
func (p *StripeProvider) SendInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var out *stripe.Invoice
	err := p.call(ctx, "invoice.send", func(ctx context.Context) error {
		sp := &stripe.InvoiceSendInvoiceParams{}
		sp.Context = ctx
		var err error
		out, err = p.invoices.SendInvoice(invoiceID, sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeInvoice(out), nil
}

// VoidInvoice voids an open invoice.
func (p *StripeProvider) VoidInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var out *stripe.Invoice
	err := p.call(ctx, "invoice.void", func(ctx context.Context) error {
		sp := &stripe.InvoiceVoidInvoiceParams{}
		sp.Context = ctx
		var err error
		out, err = p.invoices.VoidInvoice(invoiceID, sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeInvoice(out), nil
}

// GetInvoice retrieves an invoice with its lines.
func (p *StripeProvider) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var out *stripe.Invoice
	err := p.call(ctx, "invoice.get", func(ctx context.Context) error {
		sp := &stripe.InvoiceParams{}
		sp.Context = ctx
		var err error
		out, err = p.invoices.Get(invoiceID, sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeInvoice(out), nil
}

// ListInvoices lists invoices, newest first.
func (p *StripeProvider) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]Invoice, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var out []Invoice
	err := p.call(ctx, "invoice.list", func(ctx context.Context) error {
		out = out[:0]
		sp := &stripe.InvoiceListParams{}
		sp.Context = ctx
		sp.Limit = stripe.Int64(limit)
		if params.CustomerID != "" {
			sp.Customer = stripe.String(params.CustomerID)
		}
		if params.Status != "" {
			sp.Status = stripe.String(params.Status)
		}
		iter := p.invoices.List(sp)
		for iter.Next() {
			out = append(out, *fromStripeInvoice(iter.Invoice()))
			if int64(len(out)) >= limit {
				break
			}
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpcomingInvoice previews the customer's next invoice.
func (p *StripeProvider) UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	var out *stripe.Invoice
	err := p.call(ctx, "invoice.preview", func(ctx context.Context) error {
		sp := &stripe.InvoiceCreatePreviewParams{Customer: stripe.String(customerID)}
		sp.Context = ctx
		var err error
		out, err = p.invoices.CreatePreview(sp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeInvoice(out), nil
}

// ParseWebhook verifies and decodes an invoice webhook event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*InvoiceEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return decodeInvoiceEvent(event)
}

func decodeInvoiceEvent(event stripe.Event) (*InvoiceEvent, error) {
	if !strings.HasPrefix(string(event.Type), "invoice.") || event.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}
	var si stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &si); err != nil {
		return nil, fmt.Errorf("decode invoice payload: %w", err)
	}
	return &InvoiceEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
		Invoice:   *fromStripeInvoice(&si),
	}, nil
}

func fromStripeInvoice(si *stripe.Invoice) *Invoice {
	if si == nil {
		return nil
	}
	out := &Invoice{
		ID:          si.ID,
		Number:      si.Number,
		Status:      string(si.Status),
		Currency:    strings.ToUpper(string(si.Currency)),
		TotalCents:  si.Total,
		AmountPaid:  si.AmountPaid,
		HostedURL:   si.HostedInvoiceURL,
		PDFURL:      si.InvoicePDF,
		Metadata:    si.Metadata,
		Description: si.Description,
		CreatedAt:   time.Unix(si.Created, 0).UTC(),
	}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	if si.DueDate > 0 {
		due := time.Unix(si.DueDate, 0).UTC()
		out.DueDate = &due
	}
	if si.StatusTransitions != nil && si.StatusTransitions.PaidAt > 0 {
		paid := time.Unix(si.StatusTransitions.PaidAt, 0).UTC()
		out.PaidAt = &paid
	}
	if si.Lines != nil {
		for _, l := range si.Lines.Data {
			qty := l.Quantity
			if qty == 0 {
				qty = 1
			}
			out.Lines = append(out.Lines, InvoiceLine{
				Description: l.Description,
				Quantity:    qty,
				AmountCents: l.Amount,
			})
		}
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}
