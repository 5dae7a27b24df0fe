package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/solana-sniper-bot/autotrader/internal/address"
)

// ErrInvalidPolicy is the sentinel wrapped by every ValidationError.
var ErrInvalidPolicy = errors.New("invalid policy")

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPolicy, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPolicy
}

// NewValidator returns a validator with the solana_address tag registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := address.RegisterValidation(v); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", address.Tag, err))
	}
	return v
}

func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Problems: []string{err.Error()}}
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, formatFieldError(fe))
	}
	return &ValidationError{Problems: problems}
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "gt":
		return fmt.Sprintf("field '%s' must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("field '%s' must be at least %s", field, param)
	case "lte":
		return fmt.Sprintf("field '%s' must be at most %s", field, param)
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", field, param)
	case address.Tag:
		return fmt.Sprintf("field '%s' must be a valid Solana address", field)
	default:
		return fmt.Sprintf("field '%s' failed validation '%s'", field, fe.Tag())
	}
}
