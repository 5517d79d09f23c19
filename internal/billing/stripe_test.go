package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// fakeStripe is a minimal Stripe API double recording form posts.
type fakeStripe struct {
	mu       sync.Mutex
	requests []string
	forms    []map[string][]string

	// failures makes the next N requests fail with status.
	failures atomic.Int32
	status   int
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.forms = append(f.forms, r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		w.WriteHeader(f.status)
		fmt.Fprintf(w, `{"error":{"type":"api_error","code":"boom","message":"failure %d"}}`, f.status)
		return
	}

	switch {
	case r.URL.Path == "/v1/customers":
		fmt.Fprintf(w, `{"id":"cus_1","object":"customer","email":%q,"name":%q}`, r.PostForm.Get("email"), r.PostForm.Get("name"))
	case r.URL.Path == "/v1/invoiceitems":
		fmt.Fprint(w, `{"id":"ii_1","object":"invoiceitem"}`)
	case r.URL.Path == "/v1/invoices" && r.Method == http.MethodPost:
		fmt.Fprint(w, invoiceJSON("draft"))
	case strings.HasSuffix(r.URL.Path, "/finalize"):
		fmt.Fprint(w, invoiceJSON("open"))
	case strings.HasSuffix(r.URL.Path, "/send"):
		fmt.Fprint(w, invoiceJSON("open"))
	case strings.HasSuffix(r.URL.Path, "/void"):
		fmt.Fprint(w, invoiceJSON("void"))
	case r.URL.Path == "/v1/invoices/in_missing":
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such invoice"}}`)
	default:
		fmt.Fprint(w, invoiceJSON("draft"))
	}
}

func (f *fakeStripe) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func invoiceJSON(status string) string {
	return fmt.Sprintf(`{
		"id": "in_1",
		"object": "invoice",
		"status": %q,
		"customer": "cus_1",
		"currency": "eur",
		"total": 11900,
		"hosted_invoice_url": "https://invoice.stripe.com/i/in_1",
		"invoice_pdf": "https://pay.stripe.com/in_1.pdf",
		"metadata": {"local_invoice_id": "b1c4b5e0-0000-4000-8000-000000000001"},
		"lines": {"object": "list", "data": [
			{"id": "il_1", "object": "line_item", "description": "Club membership", "amount": 10000, "quantity": 1},
			{"id": "il_2", "object": "line_item", "description": "VAT 19%%", "amount": 1900, "quantity": 1}
		]}
	}`, status)
}

func newTestProvider(t *testing.T, fake *fakeStripe) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, err := NewStripeProvider(StripeConfig{
		APIKey:         "sk_test_123",
		WebhookSecret:  testWebhookSecret,
		MaxRetries:     2,
		TimeoutSeconds: 5,
		BaseURL:        srv.URL,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	p.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return p
}

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StripeConfig
		wantErr bool
	}{
		{name: "valid", config: StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec_1"}},
		{name: "missing key", config: StripeConfig{WebhookSecret: "whsec_1"}, wantErr: true},
		{name: "missing secret", config: StripeConfig{APIKey: "sk_test_1"}, wantErr: true},
		{name: "negative retries", config: StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec_1", MaxRetries: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.True(t, (&StripeConfig{APIKey: "sk_test_abc"}).IsTestMode())
	assert.False(t, (&StripeConfig{APIKey: "sk_live_abc"}).IsTestMode())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantStatus    int
	}{
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: 429, Msg: "slow down"}, wantTransient: true, wantStatus: 429},
		{name: "server error", err: &stripe.Error{HTTPStatusCode: 502, Msg: "bad gateway"}, wantTransient: true, wantStatus: 502},
		{name: "bad request", err: &stripe.Error{HTTPStatusCode: 400, Code: stripe.ErrorCodeParameterMissing}, wantStatus: 400},
		{name: "not found", err: &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}, wantStatus: 404},
		{name: "network", err: &netTimeout{}, wantTransient: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gerr := classify("invoice.get", tt.err)
			require.NotNil(t, gerr)
			assert.Equal(t, tt.wantTransient, gerr.Temporary())
			assert.Equal(t, tt.wantStatus, gerr.StatusCode)
			assert.Equal(t, tt.wantTransient, IsTemporary(gerr))
		})
	}

	t.Run("not found wraps sentinel", func(t *testing.T) {
		gerr := classify("invoice.get", &stripe.Error{HTTPStatusCode: 404})
		assert.ErrorIs(t, gerr, ErrInvoiceNotFound)
	})
}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestStripeProvider_CreateInvoice(t *testing.T) {
	fake := &fakeStripe{}
	p := newTestProvider(t, fake)

	inv, err := p.CreateInvoice(context.Background(), CreateInvoiceParams{
		CustomerID: "cus_1",
		Currency:   "EUR",
		Lines: []InvoiceLine{
			{Description: "Club membership", Quantity: 1, AmountCents: 10000},
		},
		TaxCents:       1900,
		TaxDescription: "VAT 19%",
		Metadata:       map[string]string{MetaLocalInvoiceID: "b1c4b5e0-0000-4000-8000-000000000001"},
		IdempotencyKey: "inv-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "in_1", inv.ID)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, int64(11900), inv.TotalCents)
	assert.Equal(t, "b1c4b5e0-0000-4000-8000-000000000001", inv.LocalInvoiceID())
	assert.Len(t, inv.Lines, 2)

	assert.Equal(t, []string{
		"POST /v1/invoices",
		"POST /v1/invoiceitems",
		"POST /v1/invoiceitems",
		"GET /v1/invoices/in_1",
	}, fake.calls())

	fake.mu.Lock()
	created := fake.forms[0]
	fake.mu.Unlock()
	assert.Equal(t, "eur", created["currency"][0])
	assert.Equal(t, "send_invoice", created["collection_method"][0])
	assert.Equal(t, "14", created["days_until_due"][0])
	assert.Equal(t, "b1c4b5e0-0000-4000-8000-000000000001", created["metadata[local_invoice_id]"][0])
}

func TestStripeProvider_CreateInvoice_RequiresCustomer(t *testing.T) {
	p := newTestProvider(t, &fakeStripe{})

	_, err := p.CreateInvoice(context.Background(), CreateInvoiceParams{Currency: "EUR"})
	assert.ErrorIs(t, err, ErrCustomerRequired)
}

func TestStripeProvider_Retries(t *testing.T) {
	t.Run("transient failures are retried", func(t *testing.T) {
		fake := &fakeStripe{status: http.StatusServiceUnavailable}
		fake.failures.Store(2)
		p := newTestProvider(t, fake)

		inv, err := p.FinalizeInvoice(context.Background(), "in_1")
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusOpen, inv.Status)
		assert.Len(t, fake.calls(), 3)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		fake := &fakeStripe{status: http.StatusInternalServerError}
		fake.failures.Store(10)
		p := newTestProvider(t, fake)

		_, err := p.VoidInvoice(context.Background(), "in_1")
		var gerr *GatewaySyncError
		require.ErrorAs(t, err, &gerr)
		assert.True(t, gerr.Temporary())
		assert.Equal(t, "invoice.void", gerr.Op)
		assert.Len(t, fake.calls(), 3, "one attempt plus two retries")
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		fake := &fakeStripe{status: http.StatusBadRequest}
		fake.failures.Store(1)
		p := newTestProvider(t, fake)

		_, err := p.SendInvoice(context.Background(), "in_1")
		var gerr *GatewaySyncError
		require.ErrorAs(t, err, &gerr)
		assert.False(t, gerr.Temporary())
		assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
		assert.Len(t, fake.calls(), 1)
	})

	t.Run("missing invoice", func(t *testing.T) {
		p := newTestProvider(t, &fakeStripe{})

		_, err := p.GetInvoice(context.Background(), "in_missing")
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	p := newTestProvider(t, &fakeStripe{})

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "invoice.paid",
		"created": %d,
		"data": {"object": %s}
	}`, time.Now().Unix(), invoiceJSON("paid")))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	t.Run("valid signature", func(t *testing.T) {
		event, err := p.ParseWebhook(payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventInvoicePaid, event.Type)
		assert.True(t, event.IsHandled())
		assert.Equal(t, "in_1", event.Invoice.ID)
		assert.Equal(t, InvoiceStatusPaid, event.Invoice.Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, err := p.ParseWebhook(payload, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, ErrInvalidWebhookSignature)
	})

	t.Run("non invoice event", func(t *testing.T) {
		other := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
		s := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: other, Secret: testWebhookSecret, Timestamp: time.Now()})
		_, err := p.ParseWebhook(other, s.Header)
		assert.ErrorIs(t, err, ErrUnsupportedEvent)
	})
}

func TestMockProvider_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider()

	cust, err := m.CreateCustomer(ctx, CreateCustomerParams{Email: "treasurer@club.example"})
	require.NoError(t, err)

	inv, err := m.CreateInvoice(ctx, CreateInvoiceParams{
		CustomerID: cust.ID,
		Currency:   "EUR",
		Lines:      []InvoiceLine{{Description: "Membership", Quantity: 1, AmountCents: 5000}},
		TaxCents:   950,
		Metadata:   map[string]string{MetaLocalInvoiceID: "local-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5950), inv.TotalCents)

	opened, err := m.FinalizeInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, opened.HostedURL)

	event, err := m.SimulateEvent(EventInvoicePaid, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, event.Invoice.Status)
	assert.NotNil(t, event.Invoice.PaidAt)

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	parsed, err := m.ParseWebhook(payload, MockSignature)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)

	_, err = m.ParseWebhook(payload, "wrong")
	assert.ErrorIs(t, err, ErrInvalidWebhookSignature)

	_, err = m.VoidInvoice(ctx, "in_unknown")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	assert.Equal(t, "CreateCustomer(treasurer@club.example)", m.Calls()[0])
}
