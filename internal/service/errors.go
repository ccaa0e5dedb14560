package service

import (
	"errors"
	"fmt"
)

// ValidationError marks a malformed or incomplete inbound event. It is always
// raised before any store or ledger call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid event: %s (%s)", e.Msg, e.Field)
	}
	return "invalid event: " + e.Msg
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Msg: "missing " + field}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
