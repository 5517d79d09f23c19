package email

import (
	"time"
)

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// InvoiceSummary is the invoice data shared by all invoice emails.
type InvoiceSummary struct {
	Number      string
	EntityName  string
	IssueDate   time.Time
	DueDate     time.Time
	Net         string // formatted with currency, e.g. "50.00 EUR"
	Tax         string
	Gross       string
	PaymentLink string // gateway hosted page, empty for bank transfer
}

// InvoiceEmail announces a newly sent invoice.
type InvoiceEmail struct {
	Invoice     InvoiceSummary
	BankDetails string
}

func (e InvoiceEmail) Subject() string {
	return "Invoice " + e.Invoice.Number
}

func (e InvoiceEmail) TemplateName() string {
	return "invoice.html"
}

// ReminderEmail is a payment reminder. Level starts at 1 and the tone
// escalates with it.
type ReminderEmail struct {
	Invoice     InvoiceSummary
	Level       int
	DaysOverdue int
	FinalNotice bool
}

func (e ReminderEmail) Subject() string {
	if e.FinalNotice {
		return "Final reminder: invoice " + e.Invoice.Number + " is overdue"
	}
	return "Payment reminder: invoice " + e.Invoice.Number
}

func (e ReminderEmail) TemplateName() string {
	return "reminder.html"
}

// PaymentConfirmationEmail confirms receipt of a payment.
type PaymentConfirmationEmail struct {
	Invoice   InvoiceSummary
	PaidAt    time.Time
	Reference string
}

func (e PaymentConfirmationEmail) Subject() string {
	return "Payment received for invoice " + e.Invoice.Number
}

func (e PaymentConfirmationEmail) TemplateName() string {
	return "payment_confirmation.html"
}

// CancellationEmail tells the recipient an invoice was cancelled.
type CancellationEmail struct {
	Invoice InvoiceSummary
	Reason  string
}

func (e CancellationEmail) Subject() string {
	return "Invoice " + e.Invoice.Number + " cancelled"
}

func (e CancellationEmail) TemplateName() string {
	return "cancellation.html"
}

// SuspensionWarningEmail tells the recipient the account was suspended for
// non-payment.
type SuspensionWarningEmail struct {
	Invoice     InvoiceSummary
	DaysOverdue int
}

func (e SuspensionWarningEmail) Subject() string {
	return "Account suspended: invoice " + e.Invoice.Number + " unpaid"
}

func (e SuspensionWarningEmail) TemplateName() string {
	return "suspension_warning.html"
}
