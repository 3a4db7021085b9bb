package app

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"banking-ledger/domain"
)

var validate = validator.New()

// validateCommand checks struct tags and reports the first failing field as
// a VALIDATION domain error.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		f := fieldErrs[0]
		if f.Param() != "" {
			return domain.NewDomainError(domain.CodeValidation, "%s failed %s=%s", f.Field(), f.Tag(), f.Param())
		}
		return domain.NewDomainError(domain.CodeValidation, "%s failed %s", f.Field(), f.Tag())
	}
	return domain.NewDomainError(domain.CodeValidation, "invalid command: %v", err)
}

// checkAmount requires a positive amount with at most two fractional digits.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewDomainError(domain.CodeInvalidAmount, "amount must be positive: %s", amount.String())
	}
	if !amount.Equal(amount.Round(domain.AmountPlaces)) {
		return domain.NewDomainError(domain.CodeInvalidAmount, "amount %s has more than %d decimal places", amount.String(), domain.AmountPlaces)
	}
	return nil
}
