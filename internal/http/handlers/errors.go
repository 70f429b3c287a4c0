// Error codes carried in ErrorResponse.Code. Clients branch on these, never
// on messages.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deposit-backend/internal/http/middleware"
	"github.com/tbourn/go-deposit-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// deposit flow
	ErrCodeValidation          = "validation_failed"
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeProviderError       = "provider_error"
	ErrCodeUnknownProvider     = "unknown_provider"
	ErrCodeListFailed          = "list_failed"

	ErrCodeIdempotencyInProgress = "idempotency_in_progress"
)

// failService maps a service error onto the envelope. Provider messages are
// not echoed; they can contain upstream response bodies.
func failService(c *gin.Context, err error) {
	var (
		ve *services.ValidationError
		pe *services.ProviderError
	)
	switch {
	case errors.As(err, &ve):
		failWith(c, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: ve.Error(),
			Fields:  ve.Fields,
		})
	case errors.As(err, &pe) && pe.Retryable:
		c.Header("Retry-After", "5")
		fail(c, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "payment provider unavailable, try again shortly")
	case errors.As(err, &pe):
		fail(c, http.StatusBadGateway, ErrCodeProviderError, "payment provider rejected the request")
	case errors.Is(err, services.ErrDepositNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "deposit not found")
	case errors.Is(err, services.ErrUnknownProvider):
		fail(c, http.StatusNotFound, ErrCodeUnknownProvider, "unknown payment provider")
	case errors.Is(err, services.ErrIdempotencyInProgress):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeIdempotencyInProgress, "a request with this Idempotency-Key is still in progress")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "deposit already bound to another session")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
