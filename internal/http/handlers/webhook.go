package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1thousandframework/go-gift-backend/internal/http/middleware"
	"github.com/1thousandframework/go-gift-backend/internal/pay"
	"github.com/1thousandframework/go-gift-backend/internal/services"
)

// WebhookHandler receives paid-invoice confirmations from the payment
// provider. Unlike the API surface it speaks plain HTTP statuses: the
// provider redelivers on anything but 2xx, which is exactly the retry
// behavior reconciliation is built around.
type WebhookHandler struct {
	Reconcile *services.ReconcileService

	// Token is the secret path segment; requests with a different token are
	// rejected before the body is read.
	Token string
}

// Handle is mounted at POST /webhooks/pay/:token.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(h.Token)) != 1 {
		c.String(http.StatusNotFound, "not found")
		return
	}

	var upd pay.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}

	if err := h.Reconcile.HandleUpdate(c.Request.Context(), upd); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Int64("invoice_id", upd.Payload.InvoiceID).Msg("webhook reconciliation failed")
		// An unparseable payload is fatal for this event: redelivery would
		// fail identically, so acknowledge it instead of asking for a retry.
		if errors.Is(err, services.ErrBadPayload) {
			c.String(http.StatusOK, "Ok")
			return
		}
		c.String(http.StatusInternalServerError, "error")
		return
	}
	c.String(http.StatusOK, "Ok")
}
