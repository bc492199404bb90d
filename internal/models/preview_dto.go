package models

// PreviewStatus is the derived lifecycle state of a preview deployment
type PreviewStatus string

const (
	StatusBuilding PreviewStatus = "Building"
	StatusRunning  PreviewStatus = "Running"
	StatusFailed   PreviewStatus = "Failed"
	StatusUnknown  PreviewStatus = "Unknown"
)

// PreviewUpsertRequest is the inbound payload for creating or redeploying a
// preview
type PreviewUpsertRequest struct {
	GitBranch string `json:"gitBranch" binding:"required"`
	PrId      string `json:"prId,omitempty"`
}

// PreviewUpsertResponse reports the compose backing a preview and its bound
// hostnames
type PreviewUpsertResponse struct {
	ComposeId string   `json:"composeId"`
	Domains   []string `json:"domains"`
}

// ContainerSummary is one live container of a preview
type ContainerSummary struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	State   string `json:"state"`
}

// PreviewSummary is the listing view of one preview
type PreviewSummary struct {
	Identifier     string             `json:"identifier"`
	ComposeId      string             `json:"composeId"`
	PrId           string             `json:"prId,omitempty"`
	Branch         string             `json:"branch"`
	Status         PreviewStatus      `json:"status"`
	CreatedAt      string             `json:"createdAt,omitempty"`
	LastDeployedAt string             `json:"lastDeployedAt,omitempty"`
	FrontendURL    string             `json:"frontendUrl,omitempty"`
	BackendURL     string             `json:"backendUrl,omitempty"`
	PrURL          string             `json:"prUrl,omitempty"`
	Containers     []ContainerSummary `json:"containers"`
}

// PreviewListResponse wraps the preview listing
type PreviewListResponse struct {
	Previews []PreviewSummary `json:"previews"`
}

// DeploymentInfo is one deployment attempt with its computed duration
type DeploymentInfo struct {
	DeploymentId    string `json:"deploymentId"`
	Status          string `json:"status,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	StartedAt       string `json:"startedAt,omitempty"`
	FinishedAt      string `json:"finishedAt,omitempty"`
	DurationSeconds *int64 `json:"durationSeconds,omitempty"`
}

// PreviewDetailResponse is the detail view: the summary plus full deployment
// history
type PreviewDetailResponse struct {
	PreviewSummary
	Deployments []DeploymentInfo `json:"deployments"`
}

// ContainerInfo is the raw container listing entry
type ContainerInfo struct {
	Id     string   `json:"id"`
	Names  []string `json:"names"`
	Image  string   `json:"image"`
	State  string   `json:"state"`
	Status string   `json:"status"`
}
