package email

import (
	"errors"
	"fmt"

	"github.com/dukerupert/courtbill/internal/domain"
)

var (
	ErrInvalidFromAddress = &domain.Error{Code: domain.EINVALID, Op: "email.send", Message: "Invalid from email address"}
	ErrInvalidToAddress   = &domain.Error{Code: domain.EINVALID, Op: "email.send", Message: "Invalid to email address"}
)

// ErrTemplateNotFound reports a template missing from the embedded set.
func ErrTemplateNotFound(templateName string) error {
	return domain.Errorf(domain.EINTERNAL, "email.render", "email template %s not found", templateName)
}

// SendError is a delivery failure reported by the mail provider.
type SendError struct {
	Provider   string
	StatusCode int // HTTP status or SMTP reply code, 0 when unknown
	Code       int // provider error code, Postmark only
	Temporary  bool
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is worth another delivery attempt.
func IsTemporary(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Temporary
}
