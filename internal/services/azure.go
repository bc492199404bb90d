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
	"time"

	"github.com/imyashkale/previewserver/internal/models"
)

// ErrAzureAPI indicates an Azure DevOps REST call returned a non-success status
var ErrAzureAPI = errors.New("azure devops api error")

// AzureDevOpsClient talks to the Azure DevOps REST API for one organization
// and project, authenticating with a personal access token.
type AzureDevOpsClient struct {
	org        string
	project    string
	pat        string
	httpClient *http.Client
}

// NewAzureDevOpsClient creates a client scoped to an organization and project
func NewAzureDevOpsClient(org, project, pat string) *AzureDevOpsClient {
	return &AzureDevOpsClient{
		org:     org,
		project: project,
		pat:     pat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ReplyInThread posts a comment into an existing pull request thread
func (c *AzureDevOpsClient) ReplyInThread(ctx context.Context, repositoryID string, prID int64, threadID int64, content string) error {
	path := fmt.Sprintf("/_apis/git/repositories/%s/pullRequests/%d/threads/%d/comments",
		url.PathEscape(repositoryID), prID, threadID)
	body := map[string]interface{}{
		"content":     content,
		"commentType": "text",
	}
	return c.post(ctx, path, "7.1-preview.1", body, nil)
}

// GetBuild fetches a single build by ID
func (c *AzureDevOpsClient) GetBuild(ctx context.Context, buildID int64) (*models.Build, error) {
	var build models.Build
	path := fmt.Sprintf("/_apis/build/builds/%d", buildID)
	if err := c.get(ctx, path, "7.1-preview.7", nil, &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// GetBuildTimeline fetches the stage/job timeline of a build
func (c *AzureDevOpsClient) GetBuildTimeline(ctx context.Context, buildID int64) (*models.BuildTimeline, error) {
	var timeline models.BuildTimeline
	path := fmt.Sprintf("/_apis/build/builds/%d/timeline", buildID)
	if err := c.get(ctx, path, "7.1-preview.2", nil, &timeline); err != nil {
		return nil, err
	}
	return &timeline, nil
}

// ListBuilds returns the most recent builds of a definition on a branch,
// newest first
func (c *AzureDevOpsClient) ListBuilds(ctx context.Context, definitionID int64, branch string, top int) ([]models.Build, error) {
	query := url.Values{}
	query.Set("definitions", fmt.Sprintf("%d", definitionID))
	query.Set("branchName", branch)
	query.Set("$top", fmt.Sprintf("%d", top))
	query.Set("queryOrder", "finishTimeDescending")

	var result struct {
		Value []models.Build `json:"value"`
	}
	if err := c.get(ctx, "/_apis/build/builds", "7.1-preview.7", query, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// GetCommit fetches a commit, primarily for its author metadata
func (c *AzureDevOpsClient) GetCommit(ctx context.Context, repositoryID, commitID string) (*models.Commit, error) {
	var commit models.Commit
	path := fmt.Sprintf("/_apis/git/repositories/%s/commits/%s",
		url.PathEscape(repositoryID), url.PathEscape(commitID))
	if err := c.get(ctx, path, "7.1-preview.2", nil, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (c *AzureDevOpsClient) get(ctx context.Context, path, apiVersion string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, apiVersion, query), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *AzureDevOpsClient) post(ctx context.Context, path, apiVersion string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path, apiVersion, nil), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *AzureDevOpsClient) buildURL(path, apiVersion string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	return fmt.Sprintf("https://dev.azure.com/%s/%s%s?%s",
		url.PathEscape(c.org), url.PathEscape(c.project), path, query.Encode())
}

func (c *AzureDevOpsClient) do(req *http.Request, path string, out interface{}) error {
	// PAT goes in the password slot of basic auth, username stays empty
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", ErrAzureAPI, path, resp.StatusCode, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
