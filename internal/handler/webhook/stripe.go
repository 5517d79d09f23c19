package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/billing"
	"github.com/dukerupert/courtbill/internal/gatewaysync"
)

// MaxPayloadBytes caps the webhook body. Stripe invoice events are well
// below this.
const MaxPayloadBytes = 64 << 10

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookParser verifies and decodes a raw webhook payload.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*billing.InvoiceEvent, error)
}

// EventHandler applies a verified invoice event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *billing.InvoiceEvent) (gatewaysync.Outcome, error)
}

// Response is the acknowledgement body.
type Response struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StripeHandler handles Stripe webhook events
type StripeHandler struct {
	parser WebhookParser
	events EventHandler
	logger zerolog.Logger
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(parser WebhookParser, events EventHandler, logger zerolog.Logger) *StripeHandler {
	return &StripeHandler{
		parser: parser,
		events: events,
		logger: logger.With().Str("component", "stripe_webhook").Logger(),
	}
}

// Register mounts the handler on e.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger invoice.paid
func (h *StripeHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.HandleWebhook)
}

// HandleWebhook verifies the payload and hands the event to the reconciler.
//
// Status codes tell Stripe whether to redeliver: 400 for payloads that can
// never succeed, 500 for retryable failures, 200 for everything else,
// including events that were rejected by a business rule.
func (h *StripeHandler) HandleWebhook(c echo.Context) error {
	start := time.Now()
	req := c.Request()

	payload, err := io.ReadAll(io.LimitReader(req.Body, MaxPayloadBytes+1))
	if err != nil {
		h.logger.Warn().Err(err).Msg("error reading webhook payload")
		return c.JSON(http.StatusBadRequest, Response{Error: "error reading request body"})
	}
	if len(payload) > MaxPayloadBytes {
		h.logger.Warn().Int("limit", MaxPayloadBytes).Msg("webhook payload too large")
		return c.JSON(http.StatusRequestEntityTooLarge, Response{Error: "payload too large"})
	}

	signature := req.Header.Get(SignatureHeader)
	if signature == "" {
		h.logger.Warn().Msg("missing Stripe-Signature header")
		return c.JSON(http.StatusBadRequest, Response{Error: "missing signature"})
	}

	event, err := h.parser.ParseWebhook(payload, signature)
	switch {
	case errors.Is(err, billing.ErrUnsupportedEvent):
		h.logger.Debug().Err(err).Msg("ignoring non-invoice event")
		return c.JSON(http.StatusOK, Response{Received: true, Outcome: string(gatewaysync.OutcomeIgnored)})
	case errors.Is(err, billing.ErrInvalidWebhookSignature):
		h.logger.Warn().Err(err).Msg("webhook signature verification failed")
		return c.JSON(http.StatusBadRequest, Response{Error: "invalid signature"})
	case err != nil:
		h.logger.Warn().Err(err).Msg("webhook payload could not be decoded")
		return c.JSON(http.StatusBadRequest, Response{Error: "invalid payload"})
	}

	outcome, err := h.events.HandleEvent(req.Context(), event)

	log := h.logger.With().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("outcome", string(outcome)).
		Dur("elapsed", time.Since(start)).
		Logger()

	if err != nil && gatewaysync.IsRetryable(err) {
		log.Error().Err(err).Msg("webhook processing failed, gateway will retry")
		return c.JSON(http.StatusInternalServerError, Response{Outcome: string(outcome), Error: "processing failed"})
	}
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected permanently")
		return c.JSON(http.StatusOK, Response{Received: true, Outcome: string(outcome), Error: "rejected"})
	}

	log.Info().Msg("webhook processed")
	return c.JSON(http.StatusOK, Response{Received: true, Outcome: string(outcome)})
}
