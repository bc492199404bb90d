package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/imyashkale/previewserver/internal/config"
	"github.com/imyashkale/previewserver/internal/models"
)

// fakePlatform is an in-memory stand-in for the deployment platform
type fakePlatform struct {
	mu          sync.Mutex
	composes    map[string]models.DokployCompose
	details     map[string]*models.DokployComposeDetail
	domains     map[string][]models.DokployDomain
	nextID      int
	createCalls int
	deployCalls int
	deleted     []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		composes: make(map[string]models.DokployCompose),
		details:  make(map[string]*models.DokployComposeDetail),
		domains:  make(map[string][]models.DokployDomain),
	}
}

func (f *fakePlatform) addCompose(name, appName string, detail *models.DokployComposeDetail) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("compose-%d", f.nextID)
	f.composes[id] = models.DokployCompose{ComposeId: id, Name: name, AppName: appName}
	if detail == nil {
		detail = &models.DokployComposeDetail{}
	}
	detail.ComposeId = id
	f.details[id] = detail
	return id
}

func (f *fakePlatform) FindComposeByName(ctx context.Context, apiKey, environmentID, name string) (*models.DokployCompose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.composes {
		if c.Name == name {
			compose := c
			return &compose, nil
		}
	}
	return nil, nil
}

func (f *fakePlatform) ListComposesWithPrefix(ctx context.Context, apiKey, environmentID, prefix string) ([]models.DokployCompose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DokployCompose
	for _, c := range f.composes {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakePlatform) CreateCompose(ctx context.Context, apiKey string, req models.CreateComposeRequest) (*models.DokployCompose, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	id := f.addCompose(req.Name, req.AppName, nil)
	f.mu.Lock()
	defer f.mu.Unlock()
	compose := f.composes[id]
	return &compose, nil
}

func (f *fakePlatform) UpdateCompose(ctx context.Context, apiKey string, req models.UpdateComposeRequest) error {
	return nil
}

func (f *fakePlatform) DeployCompose(ctx context.Context, apiKey, composeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployCalls++
	return nil
}

func (f *fakePlatform) DeleteCompose(ctx context.Context, apiKey, composeID string, deleteVolumes bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.composes, composeID)
	f.deleted = append(f.deleted, composeID)
	return nil
}

func (f *fakePlatform) GetComposeDetail(ctx context.Context, apiKey, composeID string) (*models.DokployComposeDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.details[composeID]
	if !ok {
		return nil, fmt.Errorf("compose %s not found", composeID)
	}
	return detail, nil
}

func (f *fakePlatform) ListDomainsByComposeID(ctx context.Context, apiKey, composeID string) ([]models.DokployDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.domains[composeID], nil
}

func (f *fakePlatform) CreateDomain(ctx context.Context, apiKey string, req models.CreateDomainRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[req.ComposeId] = append(f.domains[req.ComposeId], models.DokployDomain{
		DomainId:    fmt.Sprintf("domain-%d", len(f.domains[req.ComposeId])+1),
		Host:        req.Host,
		ServiceName: req.ServiceName,
		ComposeId:   req.ComposeId,
		Port:        req.Port,
	})
	return nil
}

func (f *fakePlatform) UpdateDomain(ctx context.Context, apiKey string, req models.UpdateDomainRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for composeID, domains := range f.domains {
		for i, d := range domains {
			if d.DomainId == req.DomainId {
				f.domains[composeID][i].Host = req.Host
				f.domains[composeID][i].Port = req.Port
				return nil
			}
		}
	}
	return fmt.Errorf("domain %s not found", req.DomainId)
}

func testConfig() *config.Config {
	return &config.Config{
		EnvironmentID:       "env-1",
		CustomGitURL:        "git@example.com:org/repo.git",
		CustomGitSSHKeyID:   "ssh-key-1",
		ComposePath:         "docker-compose.yml",
		BaseDomain:          "preview.example.com",
		AppNamePrefix:       "preview-",
		FrontendServiceName: "frontend",
		FrontendPort:        3000,
		BackendServiceName:  "backend",
		BackendPort:         8080,
		CookieDomain:        ".preview.example.com",
		PreviewLimit:        3,
		TrunkBranch:         "main",
		AzdoOrg:             "org",
		AzdoProject:         "project",
		AzdoRepositoryID:    "repo-1",
	}
}

// TestUpsertCreatesThenRedeploys verifies that the second upsert for the same
// identifier takes the redeploy branch instead of creating a second compose
func TestUpsertCreatesThenRedeploys(t *testing.T) {
	platform := newFakePlatform()
	svc := NewPreviewService(platform, nil, testConfig())
	ctx := context.Background()

	first, err := svc.Upsert(ctx, "key", "feature/login", "42")
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	second, err := svc.Upsert(ctx, "key", "feature/login", "42")
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	if platform.createCalls != 1 {
		t.Errorf("Expected exactly 1 compose creation, got %d", platform.createCalls)
	}
	if len(platform.composes) != 1 {
		t.Errorf("Expected exactly 1 compose, got %d", len(platform.composes))
	}
	if first.ComposeId != second.ComposeId {
		t.Errorf("Expected both upserts to target the same compose, got %q and %q", first.ComposeId, second.ComposeId)
	}
	if platform.deployCalls != 2 {
		t.Errorf("Expected 2 deploy triggers, got %d", platform.deployCalls)
	}
}

// TestUpsertBindsDomains verifies frontend and backend domain creation on the
// create path
func TestUpsertBindsDomains(t *testing.T) {
	platform := newFakePlatform()
	svc := NewPreviewService(platform, nil, testConfig())

	resp, err := svc.Upsert(context.Background(), "key", "feature/login", "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	domains := platform.domains[resp.ComposeId]
	if len(domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(domains))
	}
	wantHosts := map[string]string{
		"frontend": "br-feature-login.preview.example.com",
		"backend":  "api-br-feature-login.preview.example.com",
	}
	for _, d := range domains {
		if want := wantHosts[d.ServiceName]; d.Host != want {
			t.Errorf("Service %q bound to %q, want %q", d.ServiceName, d.Host, want)
		}
	}
}

// TestDeleteMissingPreviewIsNoop verifies deleting an unknown preview succeeds
func TestDeleteMissingPreviewIsNoop(t *testing.T) {
	platform := newFakePlatform()
	svc := NewPreviewService(platform, nil, testConfig())

	if err := svc.Delete(context.Background(), "key", "nothing/here", ""); err != nil {
		t.Fatalf("Expected no-op success, got %v", err)
	}
	if len(platform.deleted) != 0 {
		t.Errorf("Expected no deletions, got %v", platform.deleted)
	}
}

// TestRedeployIfExists covers both the hit and miss paths
func TestRedeployIfExists(t *testing.T) {
	platform := newFakePlatform()
	platform.addCompose("pr-7", "preview-pr-7", nil)
	svc := NewPreviewService(platform, nil, testConfig())
	ctx := context.Background()

	if err := svc.RedeployIfExists(ctx, "key", "feature/x", "7"); err != nil {
		t.Fatalf("Redeploy failed: %v", err)
	}
	if platform.deployCalls != 1 {
		t.Errorf("Expected 1 deploy trigger, got %d", platform.deployCalls)
	}

	if err := svc.RedeployIfExists(ctx, "key", "feature/y", "99"); err != nil {
		t.Fatalf("Expected no-op for missing preview, got %v", err)
	}
	if platform.deployCalls != 1 {
		t.Errorf("Expected no additional deploy for missing preview, got %d", platform.deployCalls)
	}
}

func detailWithFinishedAt(ts string) *models.DokployComposeDetail {
	return &models.DokployComposeDetail{
		Deployments: []models.DokployDeployment{
			{DeploymentId: "d1", Status: "done", FinishedAt: ts},
		},
	}
}

// TestPruneSelectsOldest verifies that creating a preview beyond the limit
// deletes exactly the oldest candidates
func TestPruneSelectsOldest(t *testing.T) {
	platform := newFakePlatform()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	oldest := platform.addCompose("pr-1", "preview-pr-1", detailWithFinishedAt(base.Format(time.RFC3339)))
	secondOldest := platform.addCompose("pr-2", "preview-pr-2", detailWithFinishedAt(base.Add(1*time.Hour).Format(time.RFC3339)))
	platform.addCompose("pr-3", "preview-pr-3", detailWithFinishedAt(base.Add(2*time.Hour).Format(time.RFC3339)))
	platform.addCompose("pr-4", "preview-pr-4", detailWithFinishedAt(base.Add(3*time.Hour).Format(time.RFC3339)))

	svc := NewPreviewService(platform, nil, testConfig())

	// Creating the 5th preview with a limit of 3 must prune the 2 oldest
	if _, err := svc.Upsert(context.Background(), "key", "feature/new", "5"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if len(platform.deleted) != 2 {
		t.Fatalf("Expected 2 pruned previews, got %d (%v)", len(platform.deleted), platform.deleted)
	}
	deleted := map[string]bool{}
	for _, id := range platform.deleted {
		deleted[id] = true
	}
	if !deleted[oldest] || !deleted[secondOldest] {
		t.Errorf("Expected %q and %q to be pruned, got %v", oldest, secondOldest, platform.deleted)
	}
}

// TestPruneMissingTimestampSortsOldest verifies that an unresolvable
// timestamp makes a preview the first pruning victim
func TestPruneMissingTimestampSortsOldest(t *testing.T) {
	platform := newFakePlatform()

	noTimestamps := platform.addCompose("pr-1", "preview-pr-1", &models.DokployComposeDetail{})
	platform.addCompose("pr-2", "preview-pr-2", detailWithFinishedAt("2025-05-01T00:00:00Z"))
	platform.addCompose("pr-3", "preview-pr-3", detailWithFinishedAt("2025-05-02T00:00:00Z"))

	svc := NewPreviewService(platform, nil, testConfig())

	if _, err := svc.Upsert(context.Background(), "key", "feature/new", "4"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if len(platform.deleted) != 1 {
		t.Fatalf("Expected 1 pruned preview, got %d", len(platform.deleted))
	}
	if platform.deleted[0] != noTimestamps {
		t.Errorf("Expected %q (no timestamps) to be pruned first, got %q", noTimestamps, platform.deleted[0])
	}
}

// fakeInspector returns canned container listings
type fakeInspector struct {
	containers []models.ContainerInfo
	err        error
}

func (f *fakeInspector) ListContainers(ctx context.Context, nameFilter string) ([]models.ContainerInfo, error) {
	return f.containers, f.err
}

// TestDeriveStatus walks the status derivation fallback chain
func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		detail    *models.DokployComposeDetail
		inspector ContainerInspector
		want      models.PreviewStatus
	}{
		{
			name:   "Explicit error status",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "error"}}},
			want:   models.StatusFailed,
		},
		{
			name:   "Explicit running status means building",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "running"}}},
			want:   models.StatusBuilding,
		},
		{
			name:   "Explicit done status",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "done"}}},
			want:   models.StatusRunning,
		},
		{
			name:   "Started without finished infers building",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{StartedAt: "2025-05-01T00:00:00Z"}}},
			want:   models.StatusBuilding,
		},
		{
			name:   "Unrecognized status with an unfinished deployment infers building",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "queued", StartedAt: "2025-05-01T00:00:00Z"}}},
			want:   models.StatusBuilding,
		},
		{
			name:   "All containers running",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "weird"}}},
			inspector: &fakeInspector{containers: []models.ContainerInfo{
				{State: "running"}, {State: "running"},
			}},
			want: models.StatusRunning,
		},
		{
			name:   "Some container stopped",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "weird"}}},
			inspector: &fakeInspector{containers: []models.ContainerInfo{
				{State: "running"}, {State: "exited"},
			}},
			want: models.StatusFailed,
		},
		{
			name:      "No containers",
			detail:    &models.DokployComposeDetail{},
			inspector: &fakeInspector{},
			want:      models.StatusUnknown,
		},
		{
			name:   "No inspector falls back to history",
			detail: &models.DokployComposeDetail{Deployments: []models.DokployDeployment{{Status: "weird"}}},
			want:   models.StatusRunning,
		},
		{
			name:   "No inspector and no history",
			detail: &models.DokployComposeDetail{},
			want:   models.StatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPreviewService(newFakePlatform(), tt.inspector, testConfig())
			got := svc.deriveStatus(context.Background(), tt.detail, "preview-pr-1")
			if got != tt.want {
				t.Errorf("Expected status %v, got %v", tt.want, got)
			}
		})
	}
}

// TestDurationSeconds covers clamping and missing timestamps
func TestDurationSeconds(t *testing.T) {
	tests := []struct {
		name     string
		started  string
		finished string
		want     *int64
	}{
		{
			name:     "Normal duration",
			started:  "2025-05-01T00:00:00Z",
			finished: "2025-05-01T00:02:30Z",
			want:     int64Ptr(150),
		},
		{
			name:     "Clamped to zero",
			started:  "2025-05-01T00:05:00Z",
			finished: "2025-05-01T00:00:00Z",
			want:     int64Ptr(0),
		},
		{
			name:     "Missing started",
			finished: "2025-05-01T00:00:00Z",
			want:     nil,
		},
		{
			name:    "Unparsable finished",
			started: "2025-05-01T00:00:00Z",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := durationSeconds(tt.started, tt.finished)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Expected %d, got %d", *tt.want, *got)
			}
		})
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
