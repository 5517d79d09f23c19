package memstore

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/courtbill/internal/repository"
)

// TenantAccount returns a billable tenant on a monthly 100.00 EUR plan.
func TenantAccount(id uuid.UUID, name string) repository.BillingAccount {
	return repository.BillingAccount{
		ID:                     repository.UUID(id),
		TenantID:               repository.UUID(id),
		Name:                   name,
		BillingName:            name,
		BillingEmail:           "billing@" + slug(name) + ".example",
		ContactEmail:           repository.Text("owner@" + slug(name) + ".example"),
		AddressLine1:           "1 Main Street",
		City:                   "Berlin",
		PostalCode:             "10115",
		Country:                "DE",
		Currency:               "EUR",
		PreferredPaymentMethod: "bank_transfer",
		BillingInterval:        "monthly",
		PlanID:                 repository.UUID(uuid.New()),
		PlanName:               repository.Text("Pro"),
		PlanMonthlyPrice:       repository.Numeric(decimal.NewFromInt(100)),
		PlanCurrency:           repository.Text("EUR"),
	}
}

// ClubAccount returns a billable club of tenantID on a monthly 50.00 EUR plan.
func ClubAccount(tenantID, id uuid.UUID, name string) repository.BillingAccount {
	return repository.BillingAccount{
		ID:                     repository.UUID(id),
		TenantID:               repository.UUID(tenantID),
		Name:                   name,
		BillingName:            name,
		BillingEmail:           "treasurer@" + slug(name) + ".example",
		ContactEmail:           repository.Text("contact@" + slug(name) + ".example"),
		AddressLine1:           "5 Court Lane",
		City:                   "Hamburg",
		PostalCode:             "20095",
		Country:                "DE",
		Currency:               "EUR",
		PreferredPaymentMethod: "bank_transfer",
		BillingInterval:        "monthly",
		PlanID:                 repository.UUID(uuid.New()),
		PlanName:               repository.Text("Standard"),
		PlanMonthlyPrice:       repository.Numeric(decimal.NewFromInt(50)),
		PlanCurrency:           repository.Text("EUR"),
	}
}

func slug(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		}
	}
	return string(out)
}
