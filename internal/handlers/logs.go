package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/previewserver/internal/config"
	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/middleware"
	"github.com/imyashkale/previewserver/internal/services"
)

// LogsHandler handles container inspection and log streaming requests
type LogsHandler struct {
	docker   *services.DockerService
	previews *services.PreviewService
	cfg      *config.Config
}

// NewLogsHandler creates a new logs handler. docker may be nil when the
// daemon was unreachable at startup; requests then fail with 503.
func NewLogsHandler(docker *services.DockerService, previews *services.PreviewService, cfg *config.Config) *LogsHandler {
	return &LogsHandler{
		docker:   docker,
		previews: previews,
		cfg:      cfg,
	}
}

// ListContainers handles listing containers on the local daemon
func (h *LogsHandler) ListContainers(c *gin.Context) {
	if h.docker == nil {
		respondDockerUnavailable(c)
		return
	}

	containers, err := h.docker.ListContainers(c.Request.Context(), c.Query("name"))
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to list containers")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"containers": containers,
	})
}

// ContainerLogs streams one container's logs as server-sent events
func (h *LogsHandler) ContainerLogs(c *gin.Context) {
	h.streamContainer(c, c.Param("name"))
}

// PreviewServiceLogs streams the logs of one service container belonging to
// a preview. The container is addressed by its compose naming convention.
func (h *LogsHandler) PreviewServiceLogs(c *gin.Context) {
	if h.docker == nil {
		respondDockerUnavailable(c)
		return
	}

	appName, err := h.previews.ResolveAppName(c.Request.Context(), middleware.APIKey(c), c.Param("identifier"))
	if err != nil {
		respondPreviewError(c, err)
		return
	}

	containerName := fmt.Sprintf("%s-%s-1", appName, c.Param("service"))
	h.streamContainer(c, containerName)
}

func (h *LogsHandler) streamContainer(c *gin.Context, containerName string) {
	if h.docker == nil {
		respondDockerUnavailable(c)
		return
	}

	tail := c.DefaultQuery("tail", "100")
	follow, _ := strconv.ParseBool(c.DefaultQuery("follow", "true"))

	bridge, err := h.docker.StreamLogs(c.Request.Context(), containerName, tail, follow)
	if err != nil {
		if errors.Is(err, services.ErrContainerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "container_not_found",
				"message": err.Error(),
			})
			return
		}
		logger.WithFields(map[string]interface{}{
			"container": containerName,
			"error":     err.Error(),
		}).Error("Failed to open log stream")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	defer bridge.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		line, ok := <-bridge.Lines()
		if !ok {
			return false
		}
		if line.Err != nil {
			c.SSEvent("error", line.Err.Error())
			return false
		}
		c.SSEvent("log", line.Text)
		return true
	})
}

func respondDockerUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "docker_unavailable",
		"message": "The Docker daemon is not reachable from this instance",
	})
}
