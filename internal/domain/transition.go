package domain

// Operation names an orchestrator operation guarded by the state machine.
type Operation string

const (
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpSend         Operation = "send"
	OpMarkPaid     Operation = "mark_paid"
	OpMarkOverdue  Operation = "mark_overdue"
	OpCancel       Operation = "cancel"
	OpSendReminder Operation = "send_reminder"
	OpSuspend      Operation = "suspend"
)

// allowedFrom lists the statuses each operation may start from.
var allowedFrom = map[Operation][]Status{
	OpUpdate:       {StatusDraft},
	OpDelete:       {StatusDraft},
	OpSend:         {StatusDraft},
	OpMarkPaid:     {StatusSent, StatusOverdue},
	OpMarkOverdue:  {StatusSent},
	OpCancel:       {StatusDraft, StatusSent, StatusOverdue},
	OpSendReminder: {StatusOverdue},
	OpSuspend:      {StatusOverdue},
}

// CanTransition reports whether op is permitted from status.
func CanTransition(op Operation, status Status) bool {
	for _, s := range allowedFrom[op] {
		if s == status {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidStateTransitionError if op is not
// permitted on inv.
func CheckTransition(op Operation, inv *Invoice) error {
	if CanTransition(op, inv.Status) {
		return nil
	}
	return &InvalidStateTransitionError{
		Operation: op,
		Status:    inv.Status,
		InvoiceID: inv.ID.String(),
	}
}
