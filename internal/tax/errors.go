package tax

import "github.com/dukerupert/courtbill/internal/domain"

var (
	// ErrInvalidTaxRate also matches domain.ErrInvalidAmount.
	ErrInvalidTaxRate = &domain.Error{
		Code:    domain.EINVALID,
		Op:      "tax.rate",
		Message: "Tax rate must be between 0 and 100",
		Err:     domain.ErrInvalidAmount,
	}

	// ErrMissingJurisdiction is returned for a taxable entity without a
	// billing country.
	ErrMissingJurisdiction = &domain.Error{
		Code:    domain.EINVALID,
		Op:      "tax.calculate",
		Message: "No tax jurisdiction configured for entity",
	}
)
