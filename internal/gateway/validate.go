package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nhle/classroom/internal/model"
)

var validate = validator.New()

// ValidateMessage checks an outgoing message before it is sent.
func ValidateMessage(msg model.OutgoingMessage) error {
	msg.Body = strings.TrimSpace(msg.Body)
	return toValidationError(validate.Struct(msg))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}

	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = fmt.Sprintf("needs at least %s entries", fe.Param())
	case "max":
		reason = fmt.Sprintf("exceeds %s characters", fe.Param())
	default:
		reason = "fails " + fe.Tag()
	}
	return &ValidationError{Field: fe.Field(), Reason: reason}
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}
