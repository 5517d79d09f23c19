package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	postmarkBaseURL = "https://api.postmarkapp.com"

	// Invoices and reminders are transactional mail.
	postmarkStream = "outbound"
)

// PostmarkSender implements Sender with the Postmark email API.
type PostmarkSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type postmarkEmail struct {
	From          string           `json:"From"`
	To            string           `json:"To"`
	Cc            string           `json:"Cc,omitempty"`
	Bcc           string           `json:"Bcc,omitempty"`
	ReplyTo       string           `json:"ReplyTo,omitempty"`
	Subject       string           `json:"Subject"`
	Tag           string           `json:"Tag,omitempty"`
	HtmlBody      string           `json:"HtmlBody,omitempty"`
	TextBody      string           `json:"TextBody,omitempty"`
	MessageStream string           `json:"MessageStream"`
	Headers       []postmarkHeader `json:"Headers,omitempty"`
	Attachments   []postmarkAttach `json:"Attachments,omitempty"`
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkAttach struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// NewPostmarkSender creates a Postmark sender. from is used when a message
// carries no sender of its own.
func NewPostmarkSender(apiKey, from string) *PostmarkSender {
	return &PostmarkSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: postmarkBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the sender at a different API host.
func (p *PostmarkSender) WithBaseURL(url string) *PostmarkSender {
	p.baseURL = strings.TrimRight(url, "/")
	return p
}

func (p *PostmarkSender) Send(ctx context.Context, email *Email) (string, error) {
	payload := p.payload(email)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		// Connection level failures are retryable unless the caller gave up.
		return "", &SendError{Provider: "postmark", Temporary: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &SendError{Provider: "postmark", StatusCode: resp.StatusCode, Temporary: true, Err: err}
	}

	var result postmarkResponse
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode != http.StatusOK || result.ErrorCode != 0 {
		msg := result.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", &SendError{
			Provider:   "postmark",
			StatusCode: resp.StatusCode,
			Code:       result.ErrorCode,
			Temporary:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:        errors.New(msg),
		}
	}

	return result.MessageID, nil
}

func (p *PostmarkSender) payload(email *Email) postmarkEmail {
	from := email.From
	if from == "" {
		from = p.from
	}

	payload := postmarkEmail{
		From:          from,
		To:            strings.Join(email.To, ","),
		Cc:            strings.Join(email.Cc, ","),
		Bcc:           strings.Join(email.Bcc, ","),
		ReplyTo:       email.ReplyTo,
		Subject:       email.Subject,
		Tag:           email.Tag,
		HtmlBody:      email.HTMLBody,
		TextBody:      email.TextBody,
		MessageStream: postmarkStream,
	}

	if len(email.Headers) > 0 {
		names := make([]string, 0, len(email.Headers))
		for name := range email.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			payload.Headers = append(payload.Headers, postmarkHeader{Name: name, Value: email.Headers[name]})
		}
	}

	for _, att := range email.Attachments {
		payload.Attachments = append(payload.Attachments, postmarkAttach{
			Name:        att.Filename,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			ContentType: att.ContentType,
		})
	}
	return payload
}
