package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// NewThreadKeyword asks the server to allocate a fresh thread id.
const NewThreadKeyword = "new"

// Enhanced validator instance with custom validations
var (
	// Validate is the main validator instance
	Validate *validator.Validate

	routingPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)
)

func init() {
	Validate = validator.New()

	// Register custom validation functions
	Validate.RegisterValidation("thread_ref", validateThreadRef)
	Validate.RegisterValidation("routing", validateRouting)
	Validate.RegisterValidation("role", validateRole)

	// Register tag name function to use JSON tags for field names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateWithPlayground validates using go-playground/validator
func ValidateWithPlayground(s any) error {
	err := Validate.Struct(s)
	if err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator errors to our custom format
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	var out ValidationErrors
	for _, fieldError := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fieldError.Field(),
			Value:   fieldError.Value(),
			Message: getErrorMessage(fieldError),
		})
	}
	return out
}

// getErrorMessage returns a human-readable error message
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "required_if":
		return fmt.Sprintf("field is required when %s", fe.Param())
	case "thread_ref":
		return `must be "new" or a valid UUID`
	case "routing":
		return "must contain only letters, digits and _ . : @ -"
	case "role":
		return "must be a valid message role (human, agent, system, tool)"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// IsThreadRef reports whether s is "new" (any case) or a UUID.
func IsThreadRef(s string) bool {
	if strings.EqualFold(s, NewThreadKeyword) {
		return true
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// validateThreadRef validates a thread reference from a request path
func validateThreadRef(fl validator.FieldLevel) bool {
	return IsThreadRef(fl.Field().String())
}

// validateRouting validates a routing attribute (platform, user or project id)
func validateRouting(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return len(value) <= 255 && routingPattern.MatchString(value)
}

// validateRole validates message role values
func validateRole(fl validator.FieldLevel) bool {
	return snapshot.Role(fl.Field().String()).Valid()
}

// MarshalValidationErrors marshals validation errors to JSON
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	type ErrorResponse struct {
		Error  string            `json:"error"`
		Errors []ValidationError `json:"errors"`
		Count  int               `json:"count"`
	}

	return json.Marshal(ErrorResponse{
		Error:  "validation failed",
		Errors: errs,
		Count:  len(errs),
	})
}
