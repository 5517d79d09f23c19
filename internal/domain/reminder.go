package domain

import "time"

// ReminderPolicy decides when an overdue invoice gets its next payment
// reminder. The dunning scheduler uses it to pick candidates and the invoice
// service re-checks it under the row lock.
type ReminderPolicy struct {
	// ReminderThresholds are days overdue, ascending. Reminder n is due once
	// the invoice is ReminderThresholds[n] days overdue.
	ReminderThresholds []int

	MaxReminders int

	// ReminderCooldown is the minimum gap between two reminders for the same
	// invoice.
	ReminderCooldown time.Duration
}

// DefaultReminderPolicy reminds at 7, 14 and 21 days overdue, at most once a
// day.
func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{
		ReminderThresholds: []int{7, 14, 21},
		MaxReminders:       3,
		ReminderCooldown:   24 * time.Hour,
	}
}

// Exhausted reports whether inv has used up its reminders.
func (p ReminderPolicy) Exhausted(inv *Invoice) bool {
	return inv.ReminderCount >= p.MaxReminders
}

// Due reports whether inv is owed its next reminder at now.
func (p ReminderPolicy) Due(inv *Invoice, now time.Time) bool {
	if inv.Status != StatusOverdue {
		return false
	}
	n := inv.ReminderCount
	if p.Exhausted(inv) || n >= len(p.ReminderThresholds) {
		return false
	}
	if inv.DaysOverdue(now) < p.ReminderThresholds[n] {
		return false
	}
	if inv.LastReminderSentAt != nil && now.Sub(*inv.LastReminderSentAt) < p.ReminderCooldown {
		return false
	}
	return true
}
