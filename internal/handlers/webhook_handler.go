package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/models"
	"github.com/estatevista/booking-backend/internal/services"
	"github.com/estatevista/booking-backend/internal/utils"
)

// WebhookHandler receives asynchronous provider notifications. These routes
// are unauthenticated; authenticity comes from signature verification (card)
// or transaction resolution plus amount matching (wallet).
type WebhookHandler struct {
	reconciler *services.WebhookReconcilerService
	logger     *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler *services.WebhookReconcilerService, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleCardWebhook processes card provider events
// @Summary Card provider webhook
// @Description Verifies the Stripe-Signature header and applies the event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Invalid signature"
// @Router /webhooks/card [post]
func (h *WebhookHandler) HandleCardWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read request body"})
		return
	}

	meta := h.webhookMeta(c)
	err = h.reconciler.HandleCardEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"), meta)
	if err != nil {
		if models.IsKind(err, models.KindSignatureInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		// Processing failures are acknowledged so the provider retries;
		// retries are safe because settlement is idempotent.
		h.logger.WithError(err).Error("Card webhook processing failed")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// HandleWalletWebhook processes wallet provider callbacks
// @Summary Wallet provider webhook
// @Description Resolves the callback to a known payment and applies the outcome
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Malformed payload"
// @Router /webhooks/wallet [post]
func (h *WebhookHandler) HandleWalletWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read request body"})
		return
	}

	meta := h.webhookMeta(c)
	err = h.reconciler.HandleWalletNotification(c.Request.Context(), payload, meta)
	if err != nil {
		if models.IsKind(err, models.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed notification"})
			return
		}
		h.logger.WithError(err).Error("Wallet webhook processing failed")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) webhookMeta(c *gin.Context) services.WebhookMeta {
	userAgent := utils.GetUserAgent(c)
	return services.WebhookMeta{
		IPAddress:     utils.GetRealIP(c),
		UserAgent:     userAgent,
		DeviceSummary: utils.ParseUserAgent(userAgent).Summary(),
	}
}
