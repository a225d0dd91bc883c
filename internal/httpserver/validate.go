package httpserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestValidator wraps go-playground/validator for request payloads.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// check validates i and flattens field errors into one message.
func (rv *requestValidator) check(i any) error {
	if err := rv.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
