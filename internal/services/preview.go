package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imyashkale/previewserver/internal/config"
	"github.com/imyashkale/previewserver/internal/identifier"
	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
)

var ErrPreviewNotFound = errors.New("preview not found")

// composeAPI is the slice of the deployment platform the orchestrator needs
type composeAPI interface {
	FindComposeByName(ctx context.Context, apiKey, environmentID, name string) (*models.DokployCompose, error)
	ListComposesWithPrefix(ctx context.Context, apiKey, environmentID, prefix string) ([]models.DokployCompose, error)
	CreateCompose(ctx context.Context, apiKey string, req models.CreateComposeRequest) (*models.DokployCompose, error)
	UpdateCompose(ctx context.Context, apiKey string, req models.UpdateComposeRequest) error
	DeployCompose(ctx context.Context, apiKey, composeID string) error
	DeleteCompose(ctx context.Context, apiKey, composeID string, deleteVolumes bool) error
	GetComposeDetail(ctx context.Context, apiKey, composeID string) (*models.DokployComposeDetail, error)
	ListDomainsByComposeID(ctx context.Context, apiKey, composeID string) ([]models.DokployDomain, error)
	CreateDomain(ctx context.Context, apiKey string, req models.CreateDomainRequest) error
	UpdateDomain(ctx context.Context, apiKey string, req models.UpdateDomainRequest) error
}

// ContainerInspector reports live container state for a preview's app name
type ContainerInspector interface {
	ListContainers(ctx context.Context, nameFilter string) ([]models.ContainerInfo, error)
}

// PreviewService owns the create/redeploy/delete orchestration against the
// deployment platform, the post-create pruning policy and the read paths
// (listing, detail, status derivation).
type PreviewService struct {
	platform  composeAPI
	inspector ContainerInspector // nil when Docker is unavailable
	cfg       *config.Config
}

// NewPreviewService creates a new PreviewService instance. inspector may be
// nil; status derivation then falls back to deployment history alone.
func NewPreviewService(platform composeAPI, inspector ContainerInspector, cfg *config.Config) *PreviewService {
	return &PreviewService{
		platform:  platform,
		inspector: inspector,
		cfg:       cfg,
	}
}

// FrontendURL returns the public URL a preview's frontend is served on
func (s *PreviewService) FrontendURL(id string) string {
	return fmt.Sprintf("https://%s.%s", id, s.cfg.BaseDomain)
}

// BackendURL returns the public URL a preview's backend is served on
func (s *PreviewService) BackendURL(id string) string {
	return fmt.Sprintf("https://api-%s.%s", id, s.cfg.BaseDomain)
}

// Upsert makes the platform state match "a preview exists and is deployed for
// this PR/branch". An existing compose is only redeployed; a missing one is
// created, configured, bound to its domains and deployed, after which the
// pruning policy runs. Safe to retry: a partially-created compose is found by
// the lookup on the next call.
func (s *PreviewService) Upsert(ctx context.Context, apiKey, branch, prID string) (*models.PreviewUpsertResponse, error) {
	id, err := identifier.Derive(prID, branch)
	if err != nil {
		return nil, err
	}

	compose, err := s.platform.FindComposeByName(ctx, apiKey, s.cfg.EnvironmentID, id)
	if err != nil {
		return nil, err
	}

	if compose != nil {
		logger.WithFields(map[string]interface{}{
			"identifier": id,
			"compose_id": compose.ComposeId,
		}).Info("Redeploying existing preview")

		if err := s.platform.DeployCompose(ctx, apiKey, compose.ComposeId); err != nil {
			return nil, err
		}
		return s.upsertResponse(ctx, apiKey, compose.ComposeId)
	}

	logger.WithField("identifier", id).Info("Creating new preview")

	appName := s.cfg.AppNamePrefix + id
	created, err := s.platform.CreateCompose(ctx, apiKey, models.CreateComposeRequest{
		Name:          id,
		EnvironmentId: s.cfg.EnvironmentID,
		ComposeType:   "docker-compose",
		AppName:       appName,
	})
	if err != nil {
		return nil, err
	}

	frontendHost := fmt.Sprintf("%s.%s", id, s.cfg.BaseDomain)
	backendHost := fmt.Sprintf("api-%s.%s", id, s.cfg.BaseDomain)

	if err := s.platform.UpdateCompose(ctx, apiKey, models.UpdateComposeRequest{
		ComposeId:          created.ComposeId,
		Name:               id,
		AppName:            appName,
		Env:                s.buildEnv(frontendHost, backendHost),
		EnvironmentId:      s.cfg.EnvironmentID,
		SourceType:         "git",
		ComposeType:        "docker-compose",
		ComposePath:        s.cfg.ComposePath,
		CustomGitURL:       s.cfg.CustomGitURL,
		CustomGitBranch:    branch,
		CustomGitSSHKeyId:  s.cfg.CustomGitSSHKeyID,
		AutoDeploy:         true,
		IsolatedDeployment: true,
	}); err != nil {
		return nil, err
	}

	// Frontend first, then backend; each bind is independently retryable
	if err := s.ensureDomain(ctx, apiKey, created.ComposeId, frontendHost, s.cfg.FrontendServiceName, s.cfg.FrontendPort); err != nil {
		return nil, fmt.Errorf("binding frontend domain: %w", err)
	}
	if err := s.ensureDomain(ctx, apiKey, created.ComposeId, backendHost, s.cfg.BackendServiceName, s.cfg.BackendPort); err != nil {
		return nil, fmt.Errorf("binding backend domain: %w", err)
	}

	if err := s.platform.DeployCompose(ctx, apiKey, created.ComposeId); err != nil {
		return nil, err
	}

	resp, err := s.upsertResponse(ctx, apiKey, created.ComposeId)
	if err != nil {
		return nil, err
	}

	// Best-effort: pruning never fails the creation that triggered it
	s.pruneIfOverLimit(ctx, apiKey, created.ComposeId)

	return resp, nil
}

// Delete removes the preview for the PR/branch together with its volumes.
// A missing preview is a no-op success.
func (s *PreviewService) Delete(ctx context.Context, apiKey, branch, prID string) error {
	id, err := identifier.Derive(prID, branch)
	if err != nil {
		return err
	}

	compose, err := s.platform.FindComposeByName(ctx, apiKey, s.cfg.EnvironmentID, id)
	if err != nil {
		return err
	}
	if compose == nil {
		logger.WithField("identifier", id).Info("No preview to delete")
		return nil
	}

	return s.platform.DeleteCompose(ctx, apiKey, compose.ComposeId, true)
}

// RedeployIfExists re-triggers deployment of an existing preview. A missing
// preview is a no-op, not an error.
func (s *PreviewService) RedeployIfExists(ctx context.Context, apiKey, branch, prID string) error {
	id, err := identifier.Derive(prID, branch)
	if err != nil {
		return err
	}

	compose, err := s.platform.FindComposeByName(ctx, apiKey, s.cfg.EnvironmentID, id)
	if err != nil {
		return err
	}
	if compose == nil {
		logger.WithField("identifier", id).Info("No existing preview to redeploy; skipping")
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"identifier": id,
		"compose_id": compose.ComposeId,
	}).Info("Redeploying existing preview")

	return s.platform.DeployCompose(ctx, apiKey, compose.ComposeId)
}

func (s *PreviewService) upsertResponse(ctx context.Context, apiKey, composeID string) (*models.PreviewUpsertResponse, error) {
	domains, err := s.platform.ListDomainsByComposeID(ctx, apiKey, composeID)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(domains))
	for _, d := range domains {
		hosts = append(hosts, d.Host)
	}
	return &models.PreviewUpsertResponse{ComposeId: composeID, Domains: hosts}, nil
}

// ensureDomain updates the service's existing domain in place or creates one
func (s *PreviewService) ensureDomain(ctx context.Context, apiKey, composeID, host, serviceName string, port int) error {
	domains, err := s.platform.ListDomainsByComposeID(ctx, apiKey, composeID)
	if err != nil {
		return err
	}

	for _, d := range domains {
		if d.ServiceName == serviceName {
			return s.platform.UpdateDomain(ctx, apiKey, models.UpdateDomainRequest{
				DomainId:        d.DomainId,
				Host:            host,
				Path:            "/",
				Port:            port,
				HTTPS:           true,
				CertificateType: "none",
				ServiceName:     serviceName,
				DomainType:      "compose",
			})
		}
	}

	return s.platform.CreateDomain(ctx, apiKey, models.CreateDomainRequest{
		ComposeId:       composeID,
		Host:            host,
		Path:            "/",
		Port:            port,
		HTTPS:           true,
		CertificateType: "none",
		ServiceName:     serviceName,
		DomainType:      "compose",
	})
}

// buildEnv assembles the environment block injected into a preview compose
func (s *PreviewService) buildEnv(frontendHost, backendHost string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "APP_URL=https://%s\n", frontendHost)
	fmt.Fprintf(&b, "BACKEND_API_URL=https://%s\n", backendHost)
	if s.cfg.CookieDomain != "" {
		fmt.Fprintf(&b, "COOKIE_DOMAIN=%s\n", s.cfg.CookieDomain)
	}
	for _, name := range s.cfg.PassthroughEnvVars {
		fmt.Fprintf(&b, "%s=${{project.%s}}\n", name, name)
	}
	return b.String()
}

// pruneIfOverLimit deletes the oldest previews once the live count exceeds
// the configured limit. Individual failures are logged and skipped; the
// caller's creation result is never affected.
func (s *PreviewService) pruneIfOverLimit(ctx context.Context, apiKey, excludeComposeID string) {
	composes, err := s.platform.ListComposesWithPrefix(ctx, apiKey, s.cfg.EnvironmentID, s.cfg.AppNamePrefix)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Failed to list previews for pruning")
		return
	}

	remaining := composes[:0]
	for _, c := range composes {
		if c.ComposeId != excludeComposeID {
			remaining = append(remaining, c)
		}
	}

	totalAfterCreation := len(remaining) + 1
	if totalAfterCreation <= s.cfg.PreviewLimit {
		return
	}
	toDelete := totalAfterCreation - s.cfg.PreviewLimit

	type candidate struct {
		compose      models.DokployCompose
		lastActivity time.Time
		resolved     bool
	}
	candidates := make([]candidate, len(remaining))

	// Detail fetches run concurrently; selection waits for all of them
	var wg sync.WaitGroup
	for i, c := range remaining {
		wg.Add(1)
		go func(i int, c models.DokployCompose) {
			defer wg.Done()
			candidates[i].compose = c
			detail, err := s.platform.GetComposeDetail(ctx, apiKey, c.ComposeId)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"compose_id": c.ComposeId,
					"error":      err.Error(),
				}).Warn("Failed to fetch compose detail for pruning")
				return
			}
			candidates[i].lastActivity, candidates[i].resolved = lastActivity(detail)
		}(i, c)
	}
	wg.Wait()

	// Oldest first; unresolvable timestamps sort before any timestamp
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].resolved != candidates[b].resolved {
			return !candidates[a].resolved
		}
		return candidates[a].lastActivity.Before(candidates[b].lastActivity)
	})

	var deleteWG sync.WaitGroup
	for _, victim := range candidates[:toDelete] {
		deleteWG.Add(1)
		go func(c models.DokployCompose) {
			defer deleteWG.Done()
			logger.WithFields(map[string]interface{}{
				"compose_id": c.ComposeId,
				"name":       c.Name,
			}).Info("Pruning old preview")
			if err := s.platform.DeleteCompose(ctx, apiKey, c.ComposeId, true); err != nil {
				logger.WithFields(map[string]interface{}{
					"compose_id": c.ComposeId,
					"error":      err.Error(),
				}).Warn("Failed to prune preview")
			}
		}(victim.compose)
	}
	deleteWG.Wait()
}

// lastActivity resolves a compose's most recent activity instant: the latest
// finishedAt across deployments, else the latest startedAt, else the latest
// createdAt, else the compose's own creation timestamp.
func lastActivity(detail *models.DokployComposeDetail) (time.Time, bool) {
	pick := func(field func(models.DokployDeployment) string) (time.Time, bool) {
		var latest time.Time
		found := false
		for _, d := range detail.Deployments {
			if ts, ok := parseTimestamp(field(d)); ok && ts.After(latest) {
				latest = ts
				found = true
			}
		}
		return latest, found
	}

	if ts, ok := pick(func(d models.DokployDeployment) string { return d.FinishedAt }); ok {
		return ts, true
	}
	if ts, ok := pick(func(d models.DokployDeployment) string { return d.StartedAt }); ok {
		return ts, true
	}
	if ts, ok := pick(func(d models.DokployDeployment) string { return d.CreatedAt }); ok {
		return ts, true
	}
	return parseTimestamp(detail.CreatedAt)
}

// parseTimestamp parses the RFC3339 timestamps the platform emits
func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
