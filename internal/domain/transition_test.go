package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled}

	allowed := map[Operation][]Status{
		OpUpdate:       {StatusDraft},
		OpDelete:       {StatusDraft},
		OpSend:         {StatusDraft},
		OpMarkPaid:     {StatusSent, StatusOverdue},
		OpMarkOverdue:  {StatusSent},
		OpCancel:       {StatusDraft, StatusSent, StatusOverdue},
		OpSendReminder: {StatusOverdue},
	}

	for op, from := range allowed {
		for _, status := range all {
			want := false
			for _, s := range from {
				if s == status {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(op, status), "%s from %s", op, status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	ops := []Operation{OpUpdate, OpDelete, OpSend, OpMarkPaid, OpMarkOverdue, OpCancel, OpSendReminder, OpSuspend}
	for _, status := range []Status{StatusPaid, StatusCancelled} {
		assert.True(t, status.IsTerminal())
		for _, op := range ops {
			assert.False(t, CanTransition(op, status), "%s must not leave %s", op, status)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	inv := &Invoice{ID: uuid.New(), Status: StatusSent}

	assert.NoError(t, CheckTransition(OpMarkOverdue, inv))

	err := CheckTransition(OpSend, inv)
	var te *InvalidStateTransitionError
	if assert.ErrorAs(t, err, &te) {
		assert.Equal(t, OpSend, te.Operation)
		assert.Equal(t, StatusSent, te.Status)
		assert.Equal(t, inv.ID.String(), te.InvoiceID)
	}
}
