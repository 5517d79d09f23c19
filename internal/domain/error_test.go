package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: EINVALID, Message: "invalid input"},
			expected: "invalid input",
		},
		{
			name:     "with operation",
			err:      &Error{Code: EINVALID, Op: "invoice.create", Message: "invalid input"},
			expected: "invoice.create: invalid input",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    EINTERNAL,
				Op:      "invoice.create",
				Message: "failed to save",
				Err:     errors.New("database connection failed"),
			},
			expected: "invoice.create: failed to save: database connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: EINTERNAL},
		{name: "domain error", err: NotFound("invoice.get", "invoice", "x"), want: ENOTFOUND},
		{name: "wrapped domain error", err: fmt.Errorf("outer: %w", Conflict("op", "taken")), want: ECONFLICT},
		{name: "validation error", err: NewValidationError("invoice.create", "entity_id", "required"), want: EINVALID},
		{
			name: "invalid transition",
			err:  &InvalidStateTransitionError{Operation: OpSend, Status: StatusPaid},
			want: ECONFLICT,
		},
		{
			name: "invalid amount",
			err:  WrapError(ErrInvalidAmount, EINVALID, "invoice.calculate_amounts", "net amount must be positive"),
			want: EINVALID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestErrorMessage_HidesInternalDetails(t *testing.T) {
	err := Internal(errors.New("pq: password authentication failed"), "invoice.create", "failed to save")
	assert.Equal(t, "An internal error occurred. Please try again later.", ErrorMessage(err))

	err = Invalid("invoice.update", "due date before issue date")
	assert.Equal(t, "due date before issue date", ErrorMessage(err))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, EINTERNAL, "op", "msg"))

	err := WrapError(ErrNumberingCollision, ECONFLICT, "invoice.create", "could not allocate invoice number")
	assert.True(t, errors.Is(err, ErrNumberingCollision))
	assert.True(t, IsCode(err, ECONFLICT))
}

func TestValidationError(t *testing.T) {
	t.Run("single field", func(t *testing.T) {
		err := NewValidationError("invoice.create", "billing_email", "is required")
		assert.Equal(t, "invoice.create: billing_email: is required", err.Error())
		assert.True(t, IsValidationError(err))
	})

	t.Run("AddFieldError accumulates", func(t *testing.T) {
		var err error
		err = AddFieldError(err, "net_amount", "must be positive")
		err = AddFieldError(err, "due_date", "must not be before issue date")

		fields := GetValidationFields(err)
		assert.Len(t, fields, 2)
		assert.Equal(t, "validation failed for 2 fields", err.Error())
	})

	t.Run("non validation error has no fields", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(errors.New("x")))
		assert.False(t, IsValidationError(errors.New("x")))
	})
}

func TestInvalidStateTransitionError(t *testing.T) {
	err := &InvalidStateTransitionError{Operation: OpCancel, Status: StatusPaid, InvoiceID: "abc"}
	assert.Equal(t, "invoice abc: cannot cancel an invoice in status paid", err.Error())
	assert.True(t, IsInvalidStateTransition(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsInvalidStateTransition(errors.New("other")))
}
