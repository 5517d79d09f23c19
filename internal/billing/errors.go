package billing

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

var (
	// ErrInvalidAPIKey is returned when Stripe API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrUnsupportedEvent is returned for verified events without an invoice payload.
	ErrUnsupportedEvent = errors.New("billing: unsupported webhook event")

	// ErrInvoiceNotFound is returned when the gateway has no such invoice.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")

	// ErrCustomerRequired is returned when an invoice is created without a customer.
	ErrCustomerRequired = errors.New("billing: customer is required")
)

// GatewaySyncError wraps a failed gateway call. Transient failures
// (network, rate limiting, 5xx) may be retried; everything else is permanent.
type GatewaySyncError struct {
	Op         string // e.g. "invoice.finalize"
	Transient  bool
	StatusCode int    // HTTP status from the gateway, 0 on network errors
	Code       string // gateway error code, e.g. "resource_missing"
	Err        error
}

func (e *GatewaySyncError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Code != "" {
		return fmt.Sprintf("billing %s: %s failure (status %d, code %s): %v", e.Op, kind, e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("billing %s: %s failure (status %d): %v", e.Op, kind, e.StatusCode, e.Err)
}

func (e *GatewaySyncError) Unwrap() error {
	return e.Err
}

// Temporary returns true if the call may succeed when retried.
func (e *GatewaySyncError) Temporary() bool {
	return e.Transient
}

// IsTemporary reports whether err is a transient gateway failure.
func IsTemporary(err error) bool {
	var gerr *GatewaySyncError
	return errors.As(err, &gerr) && gerr.Transient
}

// classify turns an SDK error into a GatewaySyncError.
func classify(op string, err error) *GatewaySyncError {
	if err == nil {
		return nil
	}
	var gerr *GatewaySyncError
	if errors.As(err, &gerr) {
		return gerr
	}

	out := &GatewaySyncError{Op: op, Err: err}

	var serr *stripe.Error
	if errors.As(err, &serr) {
		out.StatusCode = serr.HTTPStatusCode
		out.Code = string(serr.Code)
		switch {
		case serr.HTTPStatusCode == http.StatusTooManyRequests:
			out.Transient = true
		case serr.HTTPStatusCode >= 500:
			out.Transient = true
		case serr.HTTPStatusCode == 0:
			// The SDK reports connection problems without a status.
			out.Transient = true
		case serr.HTTPStatusCode == http.StatusNotFound:
			out.Err = fmt.Errorf("%w: %s", ErrInvoiceNotFound, serr.Msg)
		}
		return out
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		out.Transient = true
	}
	return out
}
