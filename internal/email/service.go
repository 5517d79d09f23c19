package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// DefaultMaxAttempts bounds delivery attempts for temporary failures.
const DefaultMaxAttempts = 3

// Service handles email composition and sending
type Service struct {
	sender      Sender
	fromAddress string
	fromName    string
	templates   map[string]*template.Template

	// newBackOff is overridable in tests.
	newBackOff func() backoff.BackOff
}

// NewService creates a new email service with the embedded templates.
func NewService(sender Sender, fromAddress, fromName string) (*Service, error) {
	if !strings.Contains(fromAddress, "@") {
		return nil, ErrInvalidFromAddress
	}

	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list email templates: %w", err)
	}

	templates := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		tmpl, err := template.ParseFS(templateFS, layoutFile, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email template %s: %w", name, err)
		}
		templates[strings.TrimPrefix(name, "templates/")] = tmpl
	}

	return &Service{
		sender:      sender,
		fromAddress: fromAddress,
		fromName:    fromName,
		templates:   templates,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}, nil
}

// Message addresses a templated email.
type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     string
	Attachments []Attachment
}

// Send renders tmpl and sends it. Temporary provider failures are retried
// up to DefaultMaxAttempts times. Returns the provider message ID.
func (s *Service) Send(ctx context.Context, tmpl EmailTemplate, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrInvalidToAddress
	}

	htmlBody, textBody, err := s.renderTemplate(tmpl.TemplateName(), tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.TemplateName(), err)
	}

	email := &Email{
		To:          msg.To,
		Cc:          msg.Cc,
		Bcc:         msg.Bcc,
		From:        s.from(),
		ReplyTo:     msg.ReplyTo,
		Subject:     tmpl.Subject(),
		Tag:         strings.TrimSuffix(tmpl.TemplateName(), ".html"),
		HTMLBody:    htmlBody,
		TextBody:    textBody,
		Attachments: msg.Attachments,
	}

	var id string
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), DefaultMaxAttempts-1), ctx)
	err = backoff.Retry(func() error {
		var sendErr error
		id, sendErr = s.sender.Send(ctx, email)
		if sendErr != nil && !IsTemporary(sendErr) {
			return backoff.Permanent(sendErr)
		}
		return sendErr
	}, b)
	if err != nil {
		return "", fmt.Errorf("failed to send %s: %w", tmpl.TemplateName(), err)
	}
	return id, nil
}

func (s *Service) from() string {
	if s.fromName == "" {
		return s.fromAddress
	}
	return fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
}

// Helper method to render a template
func (s *Service) renderTemplate(templateName string, data interface{}) (string, string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", "", ErrTemplateNotFound(templateName)
	}

	var htmlBuf bytes.Buffer
	err := tmpl.ExecuteTemplate(&htmlBuf, "email_layout", data)
	if err != nil {
		return "", "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	htmlBody := htmlBuf.String()

	plainText := generatePlainText(htmlBody)

	return htmlBody, plainText, nil
}

// generatePlainText creates a simple plain text version from HTML
func generatePlainText(html string) string {
	text := html

	text = strings.ReplaceAll(text, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")
	text = strings.ReplaceAll(text, "</h1>", "\n\n")
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")

	for strings.Contains(text, "<") && strings.Contains(text, ">") {
		start := strings.Index(text, "<")
		end := strings.Index(text, ">")
		if start >= 0 && end > start {
			text = text[:start] + text[end+1:]
		} else {
			break
		}
	}

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
