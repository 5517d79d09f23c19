package notification

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/email"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// DocumentOpener reads a stored invoice document.
type DocumentOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EmailConfig configures EmailSender.
type EmailConfig struct {
	Cc          []string
	Bcc         []string
	BankDetails string

	// FinalReminderLevel marks the reminder that warns about suspension.
	FinalReminderLevel int
}

// EmailSender sends notifications as templated emails.
type EmailSender struct {
	svc     *email.Service
	docs    DocumentOpener
	cfg     EmailConfig
	logger  zerolog.Logger
	metrics *telemetry.InvoicingMetrics

	// Now is overridable in tests.
	Now func() time.Time
}

var _ Sender = (*EmailSender)(nil)

// NewEmailSender creates an EmailSender. docs may be nil, in which case no
// document is attached.
func NewEmailSender(svc *email.Service, docs DocumentOpener, cfg EmailConfig, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) *EmailSender {
	return &EmailSender{
		svc:     svc,
		docs:    docs,
		cfg:     cfg,
		logger:  logger.With().Str("component", "notification").Logger(),
		metrics: metrics,
		Now:     time.Now,
	}
}

func summarize(inv *domain.Invoice) email.InvoiceSummary {
	format := func(d decimal.Decimal) string { return d.StringFixed(2) + " " + inv.Currency }
	return email.InvoiceSummary{
		Number:      inv.InvoiceNumber,
		EntityName:  inv.Billing.Name,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		Net:         format(inv.NetAmount),
		Tax:         format(inv.TaxAmount),
		Gross:       format(inv.GrossAmount),
		PaymentLink: inv.Gateway.HostedURL,
	}
}

func (s *EmailSender) SendInvoice(ctx context.Context, inv *domain.Invoice, recipients []string) error {
	msg := email.Message{To: recipients, Cc: s.cfg.Cc, Bcc: s.cfg.Bcc}
	if att, err := s.attachment(ctx, inv); err != nil {
		s.logger.Warn().Err(err).Str("invoice_id", inv.ID.String()).Msg("sending invoice without document")
	} else if att != nil {
		msg.Attachments = []email.Attachment{*att}
	}
	return s.send(ctx, KindInvoice, inv, email.InvoiceEmail{
		Invoice:     summarize(inv),
		BankDetails: s.cfg.BankDetails,
	}, msg)
}

func (s *EmailSender) SendReminder(ctx context.Context, inv *domain.Invoice, recipients []string, level int) error {
	return s.send(ctx, KindReminder, inv, email.ReminderEmail{
		Invoice:     summarize(inv),
		Level:       level,
		DaysOverdue: inv.DaysOverdue(s.Now()),
		FinalNotice: s.cfg.FinalReminderLevel > 0 && level >= s.cfg.FinalReminderLevel,
	}, email.Message{To: recipients, Cc: s.cfg.Cc, Bcc: s.cfg.Bcc})
}

func (s *EmailSender) SendPaymentConfirmation(ctx context.Context, inv *domain.Invoice, recipients []string) error {
	paidAt := s.Now()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return s.send(ctx, KindPaymentConfirmation, inv, email.PaymentConfirmationEmail{
		Invoice:   summarize(inv),
		PaidAt:    paidAt,
		Reference: inv.PaymentReference,
	}, email.Message{To: recipients, Bcc: s.cfg.Bcc})
}

func (s *EmailSender) SendCancellation(ctx context.Context, inv *domain.Invoice, recipients []string) error {
	return s.send(ctx, KindCancellation, inv, email.CancellationEmail{
		Invoice: summarize(inv),
		Reason:  inv.CancellationReason,
	}, email.Message{To: recipients, Cc: s.cfg.Cc, Bcc: s.cfg.Bcc})
}

func (s *EmailSender) SendSuspensionWarning(ctx context.Context, inv *domain.Invoice, recipients []string) error {
	return s.send(ctx, KindSuspensionWarning, inv, email.SuspensionWarningEmail{
		Invoice:     summarize(inv),
		DaysOverdue: inv.DaysOverdue(s.Now()),
	}, email.Message{To: recipients, Cc: s.cfg.Cc, Bcc: s.cfg.Bcc})
}

func (s *EmailSender) send(ctx context.Context, kind string, inv *domain.Invoice, tmpl email.EmailTemplate, msg email.Message) error {
	var err error
	if len(msg.To) == 0 {
		err = errors.New("no recipients")
	} else {
		_, err = s.svc.Send(ctx, tmpl, msg)
	}
	s.metrics.Notification(kind, err)

	if err != nil {
		return &DeliveryError{Kind: kind, InvoiceID: inv.ID, Recipients: msg.To, Err: err}
	}
	s.logger.Info().
		Str("kind", kind).
		Str("invoice_id", inv.ID.String()).
		Strs("to", msg.To).
		Msg("notification sent")
	return nil
}

func (s *EmailSender) attachment(ctx context.Context, inv *domain.Invoice) (*email.Attachment, error) {
	if s.docs == nil || inv.DocumentKey == "" {
		return nil, nil
	}
	rc, err := s.docs.Open(ctx, inv.DocumentKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return &email.Attachment{
		Filename:    path.Base(inv.DocumentKey),
		ContentType: "application/pdf",
		Content:     data,
	}, nil
}
