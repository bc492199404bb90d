package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port     string
	LogLevel string

	// Dokploy platform configuration
	DokployURL    string
	ProjectID     string
	EnvironmentID string

	// Git source for preview composes
	CustomGitURL      string
	CustomGitSSHKeyID string
	ComposePath       string

	// Preview naming and routing
	BaseDomain          string
	AppNamePrefix       string
	FrontendServiceName string
	FrontendPort        int
	BackendServiceName  string
	BackendPort         int
	CookieDomain        string
	PreviewLimit        int
	TrunkBranch         string
	PreviewStatusURL    string

	// Passthrough environment variables injected into every preview as
	// ${{project.NAME}} references, loaded from an optional YAML manifest
	PassthroughEnvVars []string

	// Azure DevOps configuration
	AzdoOrg          string
	AzdoProject      string
	AzdoRepositoryID string
	AzdoPAT          string

	// Regression alerting
	SlackWebhookURL    string
	E2EStageName       string
	RegressionLookback int

	// Authentication cache
	AuthCacheTTL         time.Duration
	AuthCacheNegativeTTL time.Duration
	AuthCacheMaxKeys     int

	// Docker (optional; container listing and log streaming degrade
	// gracefully when unset and the default socket is unavailable)
	DockerHost string
}

// envManifest is the YAML shape of the passthrough variable manifest
type envManifest struct {
	Passthrough []string `yaml:"passthrough"`
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values.
// Panics if required configuration values are missing or invalid.
func New() *Config {
	// Load .env file from project root (silently ignore if not found)
	envPath := filepath.Join(".", ".env")
	_ = godotenv.Load(envPath)

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		DokployURL:    os.Getenv("DOKPLOY_URL"),
		ProjectID:     os.Getenv("DOKPLOY_PROJECT_ID"),
		EnvironmentID: os.Getenv("DOKPLOY_ENVIRONMENT_ID"),

		CustomGitURL:      os.Getenv("CUSTOM_GIT_URL"),
		CustomGitSSHKeyID: os.Getenv("CUSTOM_GIT_SSH_KEY_ID"),
		ComposePath:       getEnvOrDefault("COMPOSE_PATH", "docker-compose.yml"),

		BaseDomain:          os.Getenv("BASE_DOMAIN"),
		AppNamePrefix:       getEnvOrDefault("APP_NAME_PREFIX", "preview-"),
		FrontendServiceName: getEnvOrDefault("FRONTEND_SERVICE_NAME", "frontend"),
		FrontendPort:        getEnvIntOrDefault("FRONTEND_PORT", 3000),
		BackendServiceName:  getEnvOrDefault("BACKEND_SERVICE_NAME", "backend"),
		BackendPort:         getEnvIntOrDefault("BACKEND_PORT", 8080),
		CookieDomain:        os.Getenv("COOKIE_DOMAIN"),
		PreviewLimit:        getEnvIntOrDefault("PREVIEW_LIMIT", 3),
		TrunkBranch:         getEnvOrDefault("TRUNK_BRANCH", "main"),
		PreviewStatusURL:    os.Getenv("PREVIEW_STATUS_URL"),

		AzdoOrg:          os.Getenv("AZDO_ORG"),
		AzdoProject:      os.Getenv("AZDO_PROJECT"),
		AzdoRepositoryID: os.Getenv("AZDO_REPOSITORY_ID"),
		AzdoPAT:          os.Getenv("AZDO_PAT"),

		SlackWebhookURL:    os.Getenv("SLACK_WEBHOOK_URL"),
		E2EStageName:       getEnvOrDefault("E2E_STAGE_NAME", "Run E2E tests"),
		RegressionLookback: getEnvIntOrDefault("REGRESSION_LOOKBACK", 10),

		AuthCacheTTL:         getEnvDurationOrDefault("AUTH_CACHE_TTL_SECS", 60*time.Second),
		AuthCacheNegativeTTL: getEnvDurationOrDefault("AUTH_CACHE_NEGATIVE_TTL_SECS", 10*time.Second),
		AuthCacheMaxKeys:     getEnvIntOrDefault("AUTH_CACHE_MAX_KEYS", 1024),

		DockerHost: os.Getenv("DOCKER_HOST"),
	}

	cfg.PassthroughEnvVars = loadPassthroughManifest(os.Getenv("PASSTHROUGH_ENV_FILE"))

	cfg.validate()

	return cfg
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() {
	var missing []string

	if c.DokployURL == "" {
		missing = append(missing, "DOKPLOY_URL")
	}
	if c.EnvironmentID == "" {
		missing = append(missing, "DOKPLOY_ENVIRONMENT_ID")
	}
	if c.CustomGitURL == "" {
		missing = append(missing, "CUSTOM_GIT_URL")
	}
	if c.CustomGitSSHKeyID == "" {
		missing = append(missing, "CUSTOM_GIT_SSH_KEY_ID")
	}
	if c.BaseDomain == "" {
		missing = append(missing, "BASE_DOMAIN")
	}
	if c.AzdoOrg == "" {
		missing = append(missing, "AZDO_ORG")
	}
	if c.AzdoProject == "" {
		missing = append(missing, "AZDO_PROJECT")
	}
	if c.AzdoRepositoryID == "" {
		missing = append(missing, "AZDO_REPOSITORY_ID")
	}
	if c.AzdoPAT == "" {
		missing = append(missing, "AZDO_PAT")
	}

	if len(missing) > 0 {
		panic(fmt.Sprintf("Missing required configuration values: %v", missing))
	}

	if c.PreviewLimit < 1 {
		panic(fmt.Sprintf("PREVIEW_LIMIT must be at least 1 (got %d)", c.PreviewLimit))
	}
}

// loadPassthroughManifest reads the optional YAML manifest listing the
// project-scoped variables injected into every preview. A missing path or
// unreadable file yields no passthrough variables.
func loadPassthroughManifest(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var manifest envManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		panic(fmt.Sprintf("Invalid passthrough env manifest %s: %v", path, err))
	}
	return manifest.Passthrough
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns an integer environment variable or a default value
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer (got '%s')", key, value))
	}
	return parsed
}

// getEnvDurationOrDefault returns a seconds-valued environment variable as a
// duration, or a default value
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	secs, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer number of seconds (got '%s')", key, value))
	}
	return time.Duration(secs) * time.Second
}
