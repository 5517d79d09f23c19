package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PaymentTerms define when invoices are due (Net 14, Net 30, etc.).
type PaymentTerms struct {
	Code string
	Days int
}

// DefaultPaymentTerms is used when nothing is configured.
var DefaultPaymentTerms = PaymentTerms{Code: "net_14", Days: 14}

// ParsePaymentTerms accepts "due_on_receipt", "net_<days>" or a bare number
// of days.
func ParsePaymentTerms(s string) (PaymentTerms, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return DefaultPaymentTerms, nil
	case s == "due_on_receipt":
		return PaymentTerms{Code: s, Days: 0}, nil
	case strings.HasPrefix(s, "net_"):
		s = strings.TrimPrefix(s, "net_")
	}

	days, err := strconv.Atoi(s)
	if err != nil || days < 0 || days > 365 {
		return PaymentTerms{}, fmt.Errorf("invalid payment terms %q", s)
	}
	return PaymentTerms{Code: fmt.Sprintf("net_%d", days), Days: days}, nil
}

// CalculateDueDateFromTerms calculates the due date from payment terms.
// invoiceDate + terms.Days = due date
func CalculateDueDateFromTerms(terms PaymentTerms, invoiceDate time.Time) time.Time {
	return invoiceDate.AddDate(0, 0, terms.Days)
}
