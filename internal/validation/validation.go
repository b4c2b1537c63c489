// Package validation contains the logic for validating
// request data.
//
// It uses the `validator` library to enforce rules (like
// required fields or string lengths) defined in struct tags
// and extracts validation errors into a format the client can
// understand
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/go-playground/validator/v10"
)

// Validatable is implemented by form payloads that know how to validate themselves.
//
// Typical pattern:
// - Define a payload struct with validator tags (`validate:"required,max=120"`)
// - Implement Validate() error that runs validation.Struct-style checks
// - Return validator.ValidationErrors (or CustomValidationErrors for custom cases)
type Validatable interface {
	Validate() error
}

// CustomValidationError represents a single validation issue for a specific field.
// This is used for validation errors that cannot be expressed via validator tags.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors is a slice of custom validation errors that satisfies error.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "Validation failed"
}

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator instance.
//
// Field names in errors are taken from the `form` tag, then the `json` tag,
// so clients see the same names they submitted.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return strings.ToLower(fld.Name)
		})
	})
	return validate
}

// Struct validates v against its tags. A nil result means v is valid.
func Struct(v any) errs.FieldErrors {
	if err := Validator().Struct(v); err != nil {
		return FieldErrors(err)
	}
	return nil
}

// Check runs v.Validate() and groups any failure by field.
func Check(v Validatable) errs.FieldErrors {
	if err := v.Validate(); err != nil {
		return FieldErrors(err)
	}
	return nil
}

// FieldErrors converts a validation failure into field messages.
//
// Errors that carry no field information are reported under errs.NonFieldKey.
func FieldErrors(err error) errs.FieldErrors {
	out := errs.FieldErrors{}

	var custom CustomValidationErrors
	if errors.As(err, &custom) {
		for _, e := range custom {
			out.Add(e.Field, e.Message)
		}
		return out
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		out.Add(errs.NonFieldKey, err.Error())
		return out
	}

	for _, fe := range validationErrors {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

// message turns one validator failure into a user-friendly sentence.
func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"

	case "min":
		// min tag means:
		// - for strings: minimum length
		// - for numbers: minimum value
		if err.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", err.Param())
		}
		return fmt.Sprintf("must be at least %s", err.Param())

	case "max":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", err.Param())
		}
		return fmt.Sprintf("must not exceed %s", err.Param())

	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())

	case "email":
		return "must be a valid email address"

	case "uuid":
		return "must be a valid UUID"

	case "dive":
		// dive is used when validating slices/arrays and one of the nested items fails.
		return "some items are invalid"
	}

	// Fallback for tags not explicitly handled above.
	if err.Param() != "" {
		return fmt.Sprintf("failed %s:%s", err.Tag(), err.Param())
	}
	return fmt.Sprintf("failed %s", err.Tag())
}
