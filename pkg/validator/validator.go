package validator

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// Validate is the shared validator instance, safe for concurrent use.
	Validate *validator.Validate

	reDecimal = regexp.MustCompile(`^\s*\+?\d+(?:[.,]\d{1,2})?\s*$`)
)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("rfc3339", validateRFC3339)
	_ = Validate.RegisterValidation("decimal2", validateDecimal2)
}

// validateRFC3339 accepts a valid RFC3339 timestamp.
func validateRFC3339(fl validator.FieldLevel) bool {
	dateStr := fl.Field().String()
	if dateStr == "" {
		return false
	}
	_, err := time.Parse(time.RFC3339, dateStr)
	return err == nil
}

// validateDecimal2 accepts a non-negative money amount with at most two
// fractional digits, matching NUMERIC(18,2) columns.
func validateDecimal2(fl validator.FieldLevel) bool {
	return reDecimal.MatchString(fl.Field().String())
}
