package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-deposit-backend/internal/domain"
	"github.com/tbourn/go-deposit-backend/internal/http/middleware"
	"github.com/tbourn/go-deposit-backend/internal/services"
)

// WebhookAck acknowledges a delivery. Known providers always get 200 so they
// stop retrying; the verdict is in Outcome and in the audit log.
type WebhookAck struct {
	Received bool                  `json:"received" example:"true"`
	Outcome  domain.WebhookOutcome `json:"outcome"  example:"applied"`
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive a payment provider webhook
// @Description Verifies the provider signature over the raw body, records the delivery and applies the status change to the matching deposit. Oversized bodies are recorded as malformed.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       provider  path      string  true  "Provider name"  Enums(stripe,speed,wert,paidly,vert)
// @Success     200       {object}  handlers.WebhookAck
// @Failure     404       {object}  handlers.ErrorResponse  "Unknown provider"
// @Router      /webhooks/{provider} [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	var res *services.Result
	body, err := io.ReadAll(c.Request.Body)
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		// body holds what was read before the limit
		res, err = h.reconciler.RecordOversized(c.Request.Context(), c.Param("provider"), body, tooBig.Limit)
	case err != nil:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	default:
		res, err = h.reconciler.Handle(c.Request.Context(), c.Param("provider"), c.Request.Header, body)
	}
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			failService(c, err)
			return
		}
		// recorded where possible; acknowledge so the provider does not hammer us
		middleware.LoggerFrom(c).Error().Err(err).Msg("webhook handling failed")
		ok(c, http.StatusOK, WebhookAck{Received: true, Outcome: domain.OutcomeStoreError})
		return
	}
	ok(c, http.StatusOK, WebhookAck{Received: true, Outcome: res.Outcome})
}
