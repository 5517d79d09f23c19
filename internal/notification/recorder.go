package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/courtbill/internal/domain"
)

// Sent is one notification captured by Recorder.
type Sent struct {
	Kind       string
	InvoiceID  uuid.UUID
	Recipients []string
	Level      int
}

// Recorder is a Sender that records notifications instead of delivering
// them. Set Err to make every send fail with a *DeliveryError.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

var _ Sender = (*Recorder)(nil)

func (r *Recorder) record(kind string, inv *domain.Invoice, to []string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return &DeliveryError{Kind: kind, InvoiceID: inv.ID, Recipients: to, Err: r.Err}
	}
	r.sent = append(r.sent, Sent{Kind: kind, InvoiceID: inv.ID, Recipients: append([]string(nil), to...), Level: level})
	return nil
}

func (r *Recorder) SendInvoice(ctx context.Context, inv *domain.Invoice, to []string) error {
	return r.record(KindInvoice, inv, to, 0)
}

func (r *Recorder) SendReminder(ctx context.Context, inv *domain.Invoice, to []string, level int) error {
	return r.record(KindReminder, inv, to, level)
}

func (r *Recorder) SendPaymentConfirmation(ctx context.Context, inv *domain.Invoice, to []string) error {
	return r.record(KindPaymentConfirmation, inv, to, 0)
}

func (r *Recorder) SendCancellation(ctx context.Context, inv *domain.Invoice, to []string) error {
	return r.record(KindCancellation, inv, to, 0)
}

func (r *Recorder) SendSuspensionWarning(ctx context.Context, inv *domain.Invoice, to []string) error {
	return r.record(KindSuspensionWarning, inv, to, 0)
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
