package service

import (
	"github.com/dukerupert/courtbill/internal/domain"
)

// Invoice errors
var (
	ErrInvoiceNotFound   = domain.Errorf(domain.ENOTFOUND, "", "Invoice not found")
	ErrEntityNotFound    = domain.Errorf(domain.ENOTFOUND, "", "Billed entity not found")
	ErrDocumentRequired  = domain.Errorf(domain.EUNAVAILABLE, "", "Invoice document could not be rendered")
	ErrGatewayRequired   = domain.Errorf(domain.EUNAVAILABLE, "", "Payment gateway is not configured")
	ErrNumberUnavailable = domain.Errorf(domain.ECONFLICT, "", "Could not allocate a unique invoice number")
)

// Validation errors - use domain.EINVALID
var (
	ErrNoAmount           = domain.Errorf(domain.EINVALID, "", "Either line items or a net amount is required")
	ErrNetAmountMismatch  = domain.Errorf(domain.EINVALID, "", "Net amount does not match the sum of line items")
	ErrDueBeforeIssue     = domain.Errorf(domain.EINVALID, "", "Due date must not be before the issue date")
	ErrMissingEntityID    = domain.Errorf(domain.EINVALID, "", "Entity ID is required")
	ErrInvalidPeriodStart = domain.Errorf(domain.EINVALID, "", "Billing period start is required")
)
