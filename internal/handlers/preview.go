package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/previewserver/internal/identifier"
	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/middleware"
	"github.com/imyashkale/previewserver/internal/models"
	"github.com/imyashkale/previewserver/internal/services"
)

// PreviewHandler handles preview lifecycle requests
type PreviewHandler struct {
	previews *services.PreviewService
}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler(previews *services.PreviewService) *PreviewHandler {
	return &PreviewHandler{
		previews: previews,
	}
}

// Upsert handles creating or redeploying a preview for a branch/PR
func (h *PreviewHandler) Upsert(c *gin.Context) {
	var req models.PreviewUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	resp, err := h.previews.Upsert(c.Request.Context(), middleware.APIKey(c), req.GitBranch, req.PrId)
	if err != nil {
		respondPreviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete handles tearing down a preview. Deleting a preview that does not
// exist succeeds.
func (h *PreviewHandler) Delete(c *gin.Context) {
	var req models.PreviewUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	if err := h.previews.Delete(c.Request.Context(), middleware.APIKey(c), req.GitBranch, req.PrId); err != nil {
		respondPreviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
	})
}

// List handles listing all previews with their derived status
func (h *PreviewHandler) List(c *gin.Context) {
	resp, err := h.previews.List(c.Request.Context(), middleware.APIKey(c))
	if err != nil {
		respondPreviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Detail handles fetching one preview with its deployment history
func (h *PreviewHandler) Detail(c *gin.Context) {
	resp, err := h.previews.Detail(c.Request.Context(), middleware.APIKey(c), c.Param("identifier"))
	if err != nil {
		respondPreviewError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// respondPreviewError maps service errors onto HTTP statuses
func respondPreviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identifier.ErrMissingIdentitySource), errors.Is(err, identifier.ErrEmptyIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_identifier",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrPreviewNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "preview_not_found",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrAmbiguousIdentifier):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "ambiguous_identifier",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrDokployAPI):
		logger.WithField("error", err.Error()).Error("Deployment platform call failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "platform_error",
			"message": "The deployment platform rejected the request",
		})
	default:
		logger.WithField("error", err.Error()).Error("Preview operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
