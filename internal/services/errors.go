// Package services defines the business logic for deposits and webhook
// reconciliation. This file centralizes service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import (
	"errors"
	"strings"

	"github.com/tbourn/go-deposit-backend/internal/payments"
	"github.com/tbourn/go-deposit-backend/internal/repo"
)

var (
	// ErrDepositNotFound indicates that the requested deposit does not exist.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrUnknownProvider is returned for a provider name the registry does not know.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrConflict means a provider reference could not be bound because a
	// different one is already attached.
	ErrConflict = repo.ErrConflict

	// ErrIdempotencyInProgress means another request with the same
	// Idempotency-Key has not finished yet.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")

	// ErrInvalidTransition matches every refused status change.
	ErrInvalidTransition = repo.ErrInvalidTransition

	// ErrAuthentication means a webhook failed signature verification.
	ErrAuthentication = payments.ErrSignature
)

// ProviderError is the failure of a payment provider call. Retryable errors
// map to 503, the rest to 502.
type ProviderError = payments.ProviderError

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports rejected deposit input. Message is safe to show to
// the player as-is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
