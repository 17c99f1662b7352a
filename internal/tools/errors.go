package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailpilot/mailpilot/internal/gmail"
)

// Error kinds carried on every structured error object.
const (
	KindValidation = "validation_error"
	KindTransient  = "transient_upstream_error"
	KindPermanent  = "permanent_upstream_error"
	KindCancelled  = "cancelled"
	KindInternal   = "internal_error"
)

// ValidationError reports a bad or missing tool argument. It is returned
// synchronously and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named argument.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorObject is the client-visible structured error payload.
type ErrorObject struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Classify maps an error to its taxonomy kind.
func Classify(err error) *ErrorObject {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &ErrorObject{Kind: KindValidation, Message: ve.Error()}
	}
	if gmail.IsTransient(err) {
		return &ErrorObject{Kind: KindTransient, Message: err.Error()}
	}
	if gmail.IsPermanent(err) {
		return &ErrorObject{Kind: KindPermanent, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ErrorObject{Kind: KindCancelled, Message: err.Error()}
	}
	return &ErrorObject{Kind: KindInternal, Message: err.Error()}
}
