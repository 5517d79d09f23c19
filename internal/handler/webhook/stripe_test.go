package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courtbill/internal/billing"
	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/gatewaysync"
)

// stubEvents implements EventHandler for testing
type stubEvents struct {
	outcome gatewaysync.Outcome
	err     error
	got     []*billing.InvoiceEvent
}

func (s *stubEvents) HandleEvent(ctx context.Context, event *billing.InvoiceEvent) (gatewaysync.Outcome, error) {
	s.got = append(s.got, event)
	return s.outcome, s.err
}

func invoicePaidPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(billing.InvoiceEvent{
		ID:        "evt_123",
		Type:      billing.EventInvoicePaid,
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Invoice: billing.Invoice{
			ID:         "in_123",
			Status:     billing.InvoiceStatusPaid,
			TotalCents: 11900,
		},
	})
	require.NoError(t, err)
	return payload
}

func serve(h *StripeHandler, body []byte, signature string) *httptest.ResponseRecorder {
	e := echo.New()
	h.Register(e)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStripeHandler_HandleWebhook(t *testing.T) {
	tests := []struct {
		name           string
		body           []byte
		signature      string
		outcome        gatewaysync.Outcome
		handlerErr     error
		expectedStatus int
		expectedCalls  int
		expectReceived bool
	}{
		{
			name:           "processed",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeProcessed,
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
			expectReceived: true,
		},
		{
			name:           "duplicate",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeDuplicate,
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
			expectReceived: true,
		},
		{
			name:           "missing signature",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid signature",
			signature:      "t=0,v1=forged",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed payload",
			body:           []byte(`{not json`),
			signature:      billing.MockSignature,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-invoice event",
			body:           []byte(`{"ID":"evt_1","Type":"customer.created"}`),
			signature:      billing.MockSignature,
			expectedStatus: http.StatusOK,
			expectReceived: true,
		},
		{
			name:           "retryable failure",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeFailed,
			handlerErr:     domain.Internal(errors.New("connection reset"), "gateway.reconcile", "failed to read event ledger"),
			expectedStatus: http.StatusInternalServerError,
			expectedCalls:  1,
		},
		{
			name:           "transient gateway failure",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeFailed,
			handlerErr:     &billing.GatewaySyncError{Op: "invoice.void", Transient: true, StatusCode: 503, Err: errors.New("unavailable")},
			expectedStatus: http.StatusInternalServerError,
			expectedCalls:  1,
		},
		{
			name:           "permanent rejection is acknowledged",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeFailed,
			handlerErr:     &domain.InvalidStateTransitionError{Operation: domain.OpMarkPaid, Status: domain.StatusCancelled},
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
			expectReceived: true,
		},
		{
			name:           "unmatched invoice is acknowledged",
			signature:      billing.MockSignature,
			outcome:        gatewaysync.OutcomeFailed,
			handlerErr:     gatewaysync.ErrUnmatchedInvoice,
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
			expectReceived: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil {
				body = invoicePaidPayload(t)
			}
			events := &stubEvents{outcome: tt.outcome, err: tt.handlerErr}
			h := NewStripeHandler(billing.NewMockProvider(), events, zerolog.Nop())

			rec := serve(h, body, tt.signature)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Len(t, events.got, tt.expectedCalls)
			assert.Equal(t, tt.expectReceived, decode(t, rec).Received)
		})
	}
}

func TestStripeHandler_PassesDecodedEvent(t *testing.T) {
	events := &stubEvents{outcome: gatewaysync.OutcomeProcessed}
	h := NewStripeHandler(billing.NewMockProvider(), events, zerolog.Nop())

	rec := serve(h, invoicePaidPayload(t), billing.MockSignature)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.got, 1)

	ev := events.got[0]
	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, billing.EventInvoicePaid, ev.Type)
	assert.Equal(t, "in_123", ev.Invoice.ID)
	assert.Equal(t, int64(11900), ev.Invoice.TotalCents)
	assert.Equal(t, string(gatewaysync.OutcomeProcessed), decode(t, rec).Outcome)
}

func TestStripeHandler_PayloadTooLarge(t *testing.T) {
	events := &stubEvents{}
	h := NewStripeHandler(billing.NewMockProvider(), events, zerolog.Nop())

	body := []byte(`{"ID":"evt_big","Description":"` + strings.Repeat("x", MaxPayloadBytes) + `"}`)
	rec := serve(h, body, billing.MockSignature)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, events.got)
}
