package email

import "context"

// Email is one outgoing message as handed to a Sender.
type Email struct {
	To      []string
	Cc      []string
	Bcc     []string
	From    string
	ReplyTo string
	Subject string

	TextBody string
	HTMLBody string

	// Tag groups messages by kind ("invoice", "reminder") in the provider's
	// reporting. Senders without tag support put it in a header.
	Tag string

	Attachments []Attachment
	Headers     map[string]string
}

// Attachment is a file sent with an email, typically the invoice PDF.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Sender delivers emails. Implementations: SMTPSender, PostmarkSender,
// MockSender.
type Sender interface {
	// Send returns the provider message ID. Failures the provider reports as
	// retryable are returned as *SendError with Temporary set.
	Send(ctx context.Context, email *Email) (string, error)
}
