package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockSignature is the only webhook signature MockProvider accepts.
const MockSignature = "t=0,v1=mock"

// MockProvider is a mock billing provider for testing.
// It keeps gateway invoices in memory and never calls Stripe.
type MockProvider struct {
	// CreateCustomerFunc allows customizing customer creation behavior
	CreateCustomerFunc func(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// CreateInvoiceFunc allows customizing invoice creation behavior
	CreateInvoiceFunc func(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)

	// FinalizeInvoiceFunc allows customizing finalize behavior
	FinalizeInvoiceFunc func(ctx context.Context, invoiceID string) (*Invoice, error)

	// SendInvoiceFunc allows customizing send behavior
	SendInvoiceFunc func(ctx context.Context, invoiceID string) (*Invoice, error)

	// VoidInvoiceFunc allows customizing void behavior
	VoidInvoiceFunc func(ctx context.Context, invoiceID string) (*Invoice, error)

	// ParseWebhookFunc allows customizing webhook parsing
	ParseWebhookFunc func(payload []byte, signature string) (*InvoiceEvent, error)

	// Invoices stores created invoices for retrieval
	Invoices map[string]*Invoice

	// Customers stores created customers for retrieval
	Customers map[string]*Customer

	// CallLog tracks method calls for test assertions
	CallLog []string

	// byIdempotencyKey replays creates the way Stripe does within its
	// idempotency window.
	byIdempotencyKey map[string]string

	mu sync.Mutex
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Invoices:         make(map[string]*Invoice),
		Customers:        make(map[string]*Customer),
		CallLog:          []string{},
		byIdempotencyKey: make(map[string]string),
	}
}

func (m *MockProvider) log(call string) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, call)
	m.mu.Unlock()
}

// Calls returns a copy of the call log.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CreateCustomer creates a mock customer.
func (m *MockProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	m.log(fmt.Sprintf("CreateCustomer(%s)", params.Email))

	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}

	c := &Customer{ID: "cus_" + uuid.New().String()[:8], Email: params.Email, Name: params.Name}
	m.mu.Lock()
	m.Customers[c.ID] = c
	m.mu.Unlock()
	return c, nil
}

// CreateInvoice creates a mock draft invoice.
func (m *MockProvider) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	m.log(fmt.Sprintf("CreateInvoice(%s)", params.Metadata[MetaLocalInvoiceID]))

	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, params)
	}
	if params.CustomerID == "" {
		return nil, &GatewaySyncError{Op: "invoice.create", Err: ErrCustomerRequired}
	}
	if params.IdempotencyKey != "" {
		m.mu.Lock()
		id, seen := m.byIdempotencyKey[params.IdempotencyKey]
		var replay Invoice
		if seen {
			replay = *m.Invoices[id]
		}
		m.mu.Unlock()
		if seen {
			return &replay, nil
		}
	}

	lines := append([]InvoiceLine(nil), params.Lines...)
	if params.TaxCents > 0 {
		lines = append(lines, InvoiceLine{Description: "Tax", Quantity: 1, AmountCents: params.TaxCents})
	}
	var total int64
	for _, l := range lines {
		total += l.AmountCents
	}

	meta := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		meta[k] = v
	}
	inv := &Invoice{
		ID:         "in_" + uuid.New().String()[:8],
		CustomerID: params.CustomerID,
		Status:     InvoiceStatusDraft,
		Currency:   params.Currency,
		TotalCents: total,
		Lines:      lines,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.Invoices[inv.ID] = inv
	if params.IdempotencyKey != "" {
		m.byIdempotencyKey[params.IdempotencyKey] = inv.ID
	}
	m.mu.Unlock()
	cp := *inv
	return &cp, nil
}

// FinalizeInvoice opens a draft mock invoice.
func (m *MockProvider) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.log(fmt.Sprintf("FinalizeInvoice(%s)", invoiceID))

	if m.FinalizeInvoiceFunc != nil {
		return m.FinalizeInvoiceFunc(ctx, invoiceID)
	}
	m.mu.Lock()
	cur, ok := m.Invoices[invoiceID]
	void := ok && cur.Status == InvoiceStatusVoid
	m.mu.Unlock()
	if void {
		return nil, &GatewaySyncError{Op: "invoice.finalize", StatusCode: 400, Code: "invoice_not_editable", Err: fmt.Errorf("invoice %s is void", invoiceID)}
	}
	return m.update(invoiceID, func(inv *Invoice) {
		inv.Status = InvoiceStatusOpen
		inv.HostedURL = "https://invoice.example/" + inv.ID
		inv.PDFURL = "https://invoice.example/" + inv.ID + "/pdf"
	})
}

// SendInvoice records the send.
func (m *MockProvider) SendInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.log(fmt.Sprintf("SendInvoice(%s)", invoiceID))

	if m.SendInvoiceFunc != nil {
		return m.SendInvoiceFunc(ctx, invoiceID)
	}
	return m.update(invoiceID, func(inv *Invoice) {})
}

// VoidInvoice voids a mock invoice.
func (m *MockProvider) VoidInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.log(fmt.Sprintf("VoidInvoice(%s)", invoiceID))

	if m.VoidInvoiceFunc != nil {
		return m.VoidInvoiceFunc(ctx, invoiceID)
	}
	return m.update(invoiceID, func(inv *Invoice) { inv.Status = InvoiceStatusVoid })
}

// GetInvoice returns a stored mock invoice.
func (m *MockProvider) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.log(fmt.Sprintf("GetInvoice(%s)", invoiceID))
	return m.update(invoiceID, func(inv *Invoice) {})
}

// ListInvoices returns stored invoices matching params.
func (m *MockProvider) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]Invoice, error) {
	m.log("ListInvoices")

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.Invoices {
		if params.CustomerID != "" && inv.CustomerID != params.CustomerID {
			continue
		}
		if params.Status != "" && inv.Status != params.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

// UpcomingInvoice returns an empty preview.
func (m *MockProvider) UpcomingInvoice(ctx context.Context, customerID string) (*Invoice, error) {
	m.log(fmt.Sprintf("UpcomingInvoice(%s)", customerID))
	return &Invoice{CustomerID: customerID, Status: InvoiceStatusDraft, Metadata: map[string]string{}}, nil
}

// ParseWebhook accepts JSON-encoded InvoiceEvents signed with MockSignature.
func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*InvoiceEvent, error) {
	m.log("ParseWebhook")

	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}
	if signature != MockSignature {
		return nil, ErrInvalidWebhookSignature
	}
	var event InvoiceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode mock event: %w", err)
	}
	if event.Invoice.ID == "" {
		return nil, ErrUnsupportedEvent
	}
	return &event, nil
}

// SimulateEvent builds an event for a stored invoice and applies the status
// change the gateway would have made.
func (m *MockProvider) SimulateEvent(eventType, invoiceID string) (*InvoiceEvent, error) {
	inv, err := m.update(invoiceID, func(inv *Invoice) {
		switch eventType {
		case EventInvoicePaid:
			now := time.Now().UTC()
			inv.Status = InvoiceStatusPaid
			inv.AmountPaid = inv.TotalCents
			inv.PaidAt = &now
		case EventInvoiceVoided:
			inv.Status = InvoiceStatusVoid
		case EventInvoiceFinalized:
			inv.Status = InvoiceStatusOpen
		}
	})
	if err != nil {
		return nil, err
	}
	return &InvoiceEvent{
		ID:        "evt_" + uuid.New().String()[:8],
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Invoice:   *inv,
	}, nil
}

func (m *MockProvider) update(invoiceID string, fn func(inv *Invoice)) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.Invoices[invoiceID]
	if !ok {
		return nil, &GatewaySyncError{Op: "invoice.get", StatusCode: 404, Code: "resource_missing", Err: ErrInvoiceNotFound}
	}
	fn(inv)
	cp := *inv
	return &cp, nil
}
