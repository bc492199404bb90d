package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/middleware"
	"github.com/imyashkale/previewserver/internal/models"
	"github.com/imyashkale/previewserver/internal/services"
)

// WebhookHandler handles Azure DevOps service hook deliveries
type WebhookHandler struct {
	webhooks *services.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
	}
}

// PrComment handles pull request comment events carrying slash commands
func (h *WebhookHandler) PrComment(c *gin.Context) {
	var event models.PrCommentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}
	// Event types this endpoint does not act on are accepted and ignored
	if event.EventType != models.EventTypePrComment {
		c.JSON(http.StatusOK, gin.H{
			"status": "ignored",
		})
		return
	}

	if err := h.webhooks.HandlePrComment(c.Request.Context(), middleware.APIKey(c), &event); err != nil {
		respondWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "processed",
	})
}

// PrUpdated handles pull request update events (pushes and completion)
func (h *WebhookHandler) PrUpdated(c *gin.Context) {
	var event models.PrUpdatedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}
	// Event types this endpoint does not act on are accepted and ignored
	if event.EventType != models.EventTypePrUpdated {
		c.JSON(http.StatusOK, gin.H{
			"status": "ignored",
		})
		return
	}

	if err := h.webhooks.HandlePrUpdated(c.Request.Context(), middleware.APIKey(c), &event); err != nil {
		respondWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "processed",
	})
}

// BuildCompleted handles build completion events for regression detection
func (h *WebhookHandler) BuildCompleted(c *gin.Context) {
	var event models.BuildCompletedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}
	// Event types this endpoint does not act on are accepted and ignored
	if event.EventType != models.EventTypeBuildComplete && event.EventType != models.EventTypeBuildCompleted {
		c.JSON(http.StatusOK, gin.H{
			"status": "ignored",
		})
		return
	}

	if err := h.webhooks.HandleBuildCompleted(c.Request.Context(), &event); err != nil {
		respondWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "processed",
	})
}

func respondWebhookError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrMalformedEvent) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_event",
			"message": err.Error(),
		})
		return
	}
	logger.WithField("error", err.Error()).Error("Webhook processing failed")
	respondPreviewError(c, err)
}
