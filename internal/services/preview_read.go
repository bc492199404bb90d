package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
)

// List returns a summary of every live preview, newest activity first
func (s *PreviewService) List(ctx context.Context, apiKey string) (*models.PreviewListResponse, error) {
	composes, err := s.platform.ListComposesWithPrefix(ctx, apiKey, s.cfg.EnvironmentID, s.cfg.AppNamePrefix)
	if err != nil {
		return nil, err
	}

	previews := make([]models.PreviewSummary, 0, len(composes))
	for _, compose := range composes {
		detail, err := s.platform.GetComposeDetail(ctx, apiKey, compose.ComposeId)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"compose_id": compose.ComposeId,
				"error":      err.Error(),
			}).Warn("Failed to get compose detail")
			detail = nil
		}
		previews = append(previews, s.summarize(ctx, apiKey, compose, detail))
	}

	sort.SliceStable(previews, func(a, b int) bool {
		return sortKey(previews[a]) > sortKey(previews[b])
	})

	return &models.PreviewListResponse{Previews: previews}, nil
}

// Detail returns the full view of one preview including deployment history
func (s *PreviewService) Detail(ctx context.Context, apiKey, id string) (*models.PreviewDetailResponse, error) {
	compose, err := s.platform.FindComposeByName(ctx, apiKey, s.cfg.EnvironmentID, id)
	if err != nil {
		return nil, err
	}
	if compose == nil {
		return nil, fmt.Errorf("%w: %q", ErrPreviewNotFound, id)
	}

	detail, err := s.platform.GetComposeDetail(ctx, apiKey, compose.ComposeId)
	if err != nil {
		return nil, err
	}

	deployments := make([]models.DeploymentInfo, 0, len(detail.Deployments))
	for _, d := range detail.Deployments {
		deployments = append(deployments, models.DeploymentInfo{
			DeploymentId:    d.DeploymentId,
			Status:          d.Status,
			CreatedAt:       d.CreatedAt,
			StartedAt:       d.StartedAt,
			FinishedAt:      d.FinishedAt,
			DurationSeconds: durationSeconds(d.StartedAt, d.FinishedAt),
		})
	}

	return &models.PreviewDetailResponse{
		PreviewSummary: s.summarize(ctx, apiKey, *compose, detail),
		Deployments:    deployments,
	}, nil
}

// ResolveAppName returns the platform-side app name for a preview identifier.
// Used to locate the preview's containers for log streaming.
func (s *PreviewService) ResolveAppName(ctx context.Context, apiKey, id string) (string, error) {
	compose, err := s.platform.FindComposeByName(ctx, apiKey, s.cfg.EnvironmentID, id)
	if err != nil {
		return "", err
	}
	if compose == nil {
		return "", fmt.Errorf("%w: %q", ErrPreviewNotFound, id)
	}
	return compose.AppName, nil
}

func (s *PreviewService) summarize(ctx context.Context, apiKey string, compose models.DokployCompose, detail *models.DokployComposeDetail) models.PreviewSummary {
	id := compose.Name
	prID := strings.TrimPrefix(id, "pr-")
	if prID == id {
		prID = ""
	}

	summary := models.PreviewSummary{
		Identifier: id,
		ComposeId:  compose.ComposeId,
		PrId:       prID,
		Branch:     id,
		Status:     models.StatusUnknown,
		CreatedAt:  compose.CreatedAt,
		Containers: s.containersFor(ctx, compose.AppName),
	}

	if detail != nil {
		if detail.CustomGitBranch != "" {
			summary.Branch = detail.CustomGitBranch
		}
		summary.Status = s.deriveStatus(ctx, detail, compose.AppName)
		if len(detail.Deployments) > 0 {
			latest := detail.Deployments[0]
			summary.LastDeployedAt = firstNonEmpty(latest.FinishedAt, latest.StartedAt, latest.CreatedAt)
		}
	}

	domains, err := s.platform.ListDomainsByComposeID(ctx, apiKey, compose.ComposeId)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"compose_id": compose.ComposeId,
			"error":      err.Error(),
		}).Warn("Failed to list domains")
	}
	for _, d := range domains {
		switch d.ServiceName {
		case s.cfg.FrontendServiceName:
			summary.FrontendURL = "https://" + d.Host
		case s.cfg.BackendServiceName:
			summary.BackendURL = "https://" + d.Host
		}
	}

	if prID != "" {
		summary.PrURL = fmt.Sprintf("https://dev.azure.com/%s/%s/_git/%s/pullrequest/%s",
			s.cfg.AzdoOrg, s.cfg.AzdoProject, s.cfg.AzdoRepositoryID, prID)
	}

	return summary
}

// deriveStatus computes a preview's status. The most recent deployment's
// explicit status wins; absent that, started-but-unfinished timestamps mean
// Building; then live container state decides; then any deployment history at
// all counts as Running.
func (s *PreviewService) deriveStatus(ctx context.Context, detail *models.DokployComposeDetail, appName string) models.PreviewStatus {
	if len(detail.Deployments) > 0 {
		latest := detail.Deployments[0]
		switch latest.Status {
		case "error":
			return models.StatusFailed
		case "running":
			return models.StatusBuilding
		case "done":
			return models.StatusRunning
		}
		// Any other status with a started-but-unfinished deployment is
		// still mid-build
		if latest.StartedAt != "" && latest.FinishedAt == "" {
			return models.StatusBuilding
		}
	}

	if s.inspector != nil {
		containers, err := s.inspector.ListContainers(ctx, appName)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"app_name": appName,
				"error":    err.Error(),
			}).Warn("Failed to list containers")
			return models.StatusUnknown
		}
		if len(containers) == 0 {
			return models.StatusUnknown
		}
		for _, c := range containers {
			if c.State != "running" {
				return models.StatusFailed
			}
		}
		return models.StatusRunning
	}

	if len(detail.Deployments) > 0 {
		return models.StatusRunning
	}
	return models.StatusUnknown
}

func (s *PreviewService) containersFor(ctx context.Context, appName string) []models.ContainerSummary {
	if s.inspector == nil {
		return []models.ContainerSummary{}
	}
	containers, err := s.inspector.ListContainers(ctx, appName)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"app_name": appName,
			"error":    err.Error(),
		}).Warn("Failed to list containers")
		return []models.ContainerSummary{}
	}

	summaries := make([]models.ContainerSummary, 0, len(containers))
	for _, c := range containers {
		name := c.Id
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		summaries = append(summaries, models.ContainerSummary{
			Name:    name,
			Service: inferService(name),
			State:   c.State,
		})
	}
	return summaries
}

// inferService extracts the compose service from an isolated-deployment
// container name of the form <appName>-<service>-<replica>
func inferService(containerName string) string {
	parts := strings.Split(containerName, "-")
	if len(parts) >= 4 {
		return parts[len(parts)-2]
	}
	return "unknown"
}

// durationSeconds computes finished minus started, clamped to zero. Nil when
// either timestamp is missing or unparsable.
func durationSeconds(startedAt, finishedAt string) *int64 {
	started, ok := parseTimestamp(startedAt)
	if !ok {
		return nil
	}
	finished, ok := parseTimestamp(finishedAt)
	if !ok {
		return nil
	}
	secs := int64(finished.Sub(started).Seconds())
	if secs < 0 {
		secs = 0
	}
	return &secs
}

func sortKey(p models.PreviewSummary) string {
	if p.LastDeployedAt != "" {
		return p.LastDeployedAt
	}
	return p.CreatedAt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
