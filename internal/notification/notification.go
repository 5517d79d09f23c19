// Package notification delivers invoice lifecycle messages to the billed
// entity's recipients.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/courtbill/internal/domain"
)

// Kinds of notifications, used in errors and metrics.
const (
	KindInvoice             = "invoice"
	KindReminder            = "reminder"
	KindPaymentConfirmation = "payment_confirmation"
	KindCancellation        = "cancellation"
	KindSuspensionWarning   = "suspension_warning"
)

// Sender delivers invoice notifications. Every failure is a *DeliveryError.
type Sender interface {
	SendInvoice(ctx context.Context, inv *domain.Invoice, recipients []string) error

	// SendReminder sends the level-th reminder, starting at 1.
	SendReminder(ctx context.Context, inv *domain.Invoice, recipients []string, level int) error

	SendPaymentConfirmation(ctx context.Context, inv *domain.Invoice, recipients []string) error
	SendCancellation(ctx context.Context, inv *domain.Invoice, recipients []string) error
	SendSuspensionWarning(ctx context.Context, inv *domain.Invoice, recipients []string) error
}

// DeliveryError reports a notification that could not be delivered. It is
// never fatal to the invoice operation that triggered it.
type DeliveryError struct {
	Kind       string
	InvoiceID  uuid.UUID
	Recipients []string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s notification for invoice %s to %s: %v",
		e.Kind, e.InvoiceID, strings.Join(e.Recipients, ","), e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NopSender discards all notifications.
type NopSender struct{}

func (NopSender) SendInvoice(context.Context, *domain.Invoice, []string) error { return nil }
func (NopSender) SendReminder(context.Context, *domain.Invoice, []string, int) error {
	return nil
}
func (NopSender) SendPaymentConfirmation(context.Context, *domain.Invoice, []string) error {
	return nil
}
func (NopSender) SendCancellation(context.Context, *domain.Invoice, []string) error { return nil }
func (NopSender) SendSuspensionWarning(context.Context, *domain.Invoice, []string) error {
	return nil
}
