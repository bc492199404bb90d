package models

// Dokploy API shapes. Each struct carries only the fields this service reads;
// unknown fields in responses are ignored on decode.

// DokployProject represents a project as returned by project.all
type DokployProject struct {
	ProjectId      string               `json:"projectId"`
	Name           string               `json:"name"`
	OrganizationId string               `json:"organizationId,omitempty"`
	Environments   []DokployEnvironment `json:"environments,omitempty"`
}

// DokployEnvironment represents an environment within a project
type DokployEnvironment struct {
	EnvironmentId string           `json:"environmentId"`
	Name          string           `json:"name"`
	ProjectId     string           `json:"projectId"`
	Compose       []DokployCompose `json:"compose,omitempty"`
}

// DokployCompose represents a compose resource summary
type DokployCompose struct {
	ComposeId     string `json:"composeId"`
	Name          string `json:"name"`
	AppName       string `json:"appName"`
	EnvironmentId string `json:"environmentId,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// DokployComposeDetail represents compose.one, including deployment history
// ordered newest-first
type DokployComposeDetail struct {
	ComposeId       string              `json:"composeId"`
	Name            string              `json:"name"`
	AppName         string              `json:"appName"`
	CustomGitBranch string              `json:"customGitBranch,omitempty"`
	CreatedAt       string              `json:"createdAt,omitempty"`
	Deployments     []DokployDeployment `json:"deployments,omitempty"`
}

// DokployDeployment is one deployment attempt within a compose's history
type DokployDeployment struct {
	DeploymentId string `json:"deploymentId"`
	Status       string `json:"status,omitempty"` // "running", "done", "error"
	CreatedAt    string `json:"createdAt,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
}

// DokployDomain represents a hostname bound to a service on a compose
type DokployDomain struct {
	DomainId    string `json:"domainId"`
	Host        string `json:"host"`
	ServiceName string `json:"serviceName"`
	ComposeId   string `json:"composeId"`
	Port        int    `json:"port,omitempty"`
}

// CreateComposeRequest is the payload for compose.create
type CreateComposeRequest struct {
	Name          string `json:"name"`
	EnvironmentId string `json:"environmentId"`
	ComposeType   string `json:"composeType"`
	AppName       string `json:"appName"`
}

// UpdateComposeRequest is the payload for compose.update, configuring git
// source, injected environment and deployment flags
type UpdateComposeRequest struct {
	ComposeId          string `json:"composeId"`
	Name               string `json:"name"`
	AppName            string `json:"appName"`
	Env                string `json:"env"`
	EnvironmentId      string `json:"environmentId"`
	SourceType         string `json:"sourceType"`
	ComposeType        string `json:"composeType"`
	ComposePath        string `json:"composePath"`
	CustomGitURL       string `json:"customGitUrl"`
	CustomGitBranch    string `json:"customGitBranch"`
	CustomGitSSHKeyId  string `json:"customGitSSHKeyId"`
	AutoDeploy         bool   `json:"autoDeploy"`
	IsolatedDeployment bool   `json:"isolatedDeployment"`
}

// CreateDomainRequest is the payload for domain.create
type CreateDomainRequest struct {
	ComposeId       string `json:"composeId"`
	Host            string `json:"host"`
	Path            string `json:"path"`
	Port            int    `json:"port"`
	HTTPS           bool   `json:"https"`
	CertificateType string `json:"certificateType"`
	ServiceName     string `json:"serviceName"`
	DomainType      string `json:"domainType"`
}

// UpdateDomainRequest is the payload for domain.update
type UpdateDomainRequest struct {
	DomainId        string `json:"domainId"`
	Host            string `json:"host"`
	Path            string `json:"path"`
	Port            int    `json:"port"`
	HTTPS           bool   `json:"https"`
	CertificateType string `json:"certificateType"`
	ServiceName     string `json:"serviceName"`
	DomainType      string `json:"domainType"`
}
