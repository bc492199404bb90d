package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
)

var (
	ErrDokployAPI          = errors.New("dokploy api error")
	ErrAmbiguousIdentifier = errors.New("multiple composes share the same name")
)

// APIError carries the HTTP status of a failed remote call so callers can
// distinguish authentication failures from transient ones.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a remote 401/403 response
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// DokployClient is a thin wrapper around the Dokploy REST API. The API key is
// passed per call and injected as the x-api-key header. Response models carry
// only the fields this service reads; extra fields are ignored.
type DokployClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDokployClient creates a new DokployClient instance
func NewDokployClient(baseURL string) *DokployClient {
	return &DokployClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchProjects lists all projects visible to the API key. Also used as the
// key validation probe by the auth layer.
func (c *DokployClient) FetchProjects(ctx context.Context, apiKey string) ([]models.DokployProject, error) {
	var projects []models.DokployProject
	if err := c.get(ctx, apiKey, "/api/project.all", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// FindComposeByName locates the compose resource named name within the given
// environment. Zero matches returns (nil, nil). More than one match is a
// misconfiguration and returns ErrAmbiguousIdentifier rather than guessing.
func (c *DokployClient) FindComposeByName(ctx context.Context, apiKey, environmentID, name string) (*models.DokployCompose, error) {
	projects, err := c.FetchProjects(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var matches []models.DokployCompose
	for _, project := range projects {
		for _, env := range project.Environments {
			if env.EnvironmentId != environmentID {
				continue
			}
			for _, compose := range env.Compose {
				if compose.Name == name {
					matches = append(matches, compose)
				}
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		compose := matches[0]
		return &compose, nil
	default:
		return nil, fmt.Errorf("%w: %q has %d matches", ErrAmbiguousIdentifier, name, len(matches))
	}
}

// ListComposesWithPrefix lists all composes in the environment whose app name
// starts with prefix
func (c *DokployClient) ListComposesWithPrefix(ctx context.Context, apiKey, environmentID, prefix string) ([]models.DokployCompose, error) {
	projects, err := c.FetchProjects(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var composes []models.DokployCompose
	for _, project := range projects {
		for _, env := range project.Environments {
			if env.EnvironmentId != environmentID {
				continue
			}
			for _, compose := range env.Compose {
				if strings.HasPrefix(compose.AppName, prefix) {
					composes = append(composes, compose)
				}
			}
		}
	}
	return composes, nil
}

// CreateCompose creates a compose resource and returns its summary. Dokploy
// versions differ in where the new id appears in the response, so several
// shapes are accepted.
func (c *DokployClient) CreateCompose(ctx context.Context, apiKey string, req models.CreateComposeRequest) (*models.DokployCompose, error) {
	var created struct {
		ComposeId string `json:"composeId"`
		Id        string `json:"id"`
		Compose   *struct {
			ComposeId string `json:"composeId"`
		} `json:"compose"`
	}
	if err := c.post(ctx, apiKey, "/api/compose.create", req, &created); err != nil {
		return nil, err
	}

	composeID := created.ComposeId
	if composeID == "" {
		composeID = created.Id
	}
	if composeID == "" && created.Compose != nil {
		composeID = created.Compose.ComposeId
	}
	if composeID == "" {
		return nil, fmt.Errorf("%w: compose.create response missing composeId", ErrDokployAPI)
	}

	return &models.DokployCompose{
		ComposeId:     composeID,
		Name:          req.Name,
		AppName:       req.AppName,
		EnvironmentId: req.EnvironmentId,
	}, nil
}

// UpdateCompose updates a compose's git source, environment and deploy flags
func (c *DokployClient) UpdateCompose(ctx context.Context, apiKey string, req models.UpdateComposeRequest) error {
	return c.post(ctx, apiKey, "/api/compose.update", req, nil)
}

// DeployCompose triggers a deployment of the compose
func (c *DokployClient) DeployCompose(ctx context.Context, apiKey, composeID string) error {
	body := map[string]string{"composeId": composeID}
	return c.post(ctx, apiKey, "/api/compose.deploy", body, nil)
}

// DeleteCompose deletes the compose, optionally together with its volumes
func (c *DokployClient) DeleteCompose(ctx context.Context, apiKey, composeID string, deleteVolumes bool) error {
	body := map[string]interface{}{
		"composeId":     composeID,
		"deleteVolumes": deleteVolumes,
	}
	return c.post(ctx, apiKey, "/api/compose.delete", body, nil)
}

// GetComposeDetail fetches a compose including its deployment history
func (c *DokployClient) GetComposeDetail(ctx context.Context, apiKey, composeID string) (*models.DokployComposeDetail, error) {
	var detail models.DokployComposeDetail
	query := url.Values{"composeId": {composeID}}
	if err := c.get(ctx, apiKey, "/api/compose.one", query, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListDomainsByComposeID lists the domains bound to a compose
func (c *DokployClient) ListDomainsByComposeID(ctx context.Context, apiKey, composeID string) ([]models.DokployDomain, error) {
	var domains []models.DokployDomain
	query := url.Values{"composeId": {composeID}}
	if err := c.get(ctx, apiKey, "/api/domain.byComposeId", query, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// CreateDomain binds a new domain to a compose service
func (c *DokployClient) CreateDomain(ctx context.Context, apiKey string, req models.CreateDomainRequest) error {
	return c.post(ctx, apiKey, "/api/domain.create", req, nil)
}

// UpdateDomain updates an existing domain binding in place
func (c *DokployClient) UpdateDomain(ctx context.Context, apiKey string, req models.UpdateDomainRequest) error {
	return c.post(ctx, apiKey, "/api/domain.update", req, nil)
}

func (c *DokployClient) get(ctx context.Context, apiKey, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, apiKey, path, out)
}

func (c *DokployClient) post(ctx context.Context, apiKey, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, apiKey, path, out)
}

func (c *DokployClient) do(req *http.Request, apiKey, path string, out interface{}) error {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"endpoint": path,
			"error":    err.Error(),
		}).Error("Dokploy request failed")
		return fmt.Errorf("dokploy request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.WithFields(map[string]interface{}{
			"endpoint":    path,
			"status_code": resp.StatusCode,
		}).Warn("Dokploy returned non-OK status")
		return fmt.Errorf("%w: %w", ErrDokployAPI, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
