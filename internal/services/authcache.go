package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
)

var (
	ErrInvalidAPIKey         = errors.New("invalid api key")
	ErrValidationUnavailable = errors.New("unable to validate api key")
)

// AuthDecision is a cached validation outcome for an API key
type AuthDecision int

const (
	DecisionValid AuthDecision = iota
	DecisionInvalid
)

type authCacheEntry struct {
	decision  AuthDecision
	expiresAt time.Time
}

// AuthCache caches API key validation decisions with per-decision TTLs.
// Entries expire lazily; there is no background sweep. When the cache reaches
// maxKeys the whole map is cleared before the next insert. The key space is
// expected to stay tiny, so this coarse eviction beats tracking recency.
type AuthCache struct {
	mu          sync.RWMutex
	entries     map[string]authCacheEntry
	ttl         time.Duration
	negativeTTL time.Duration
	maxKeys     int
	now         func() time.Time
}

// NewAuthCache creates a new AuthCache with the given TTLs and capacity
func NewAuthCache(ttl, negativeTTL time.Duration, maxKeys int) *AuthCache {
	return &AuthCache{
		entries:     make(map[string]authCacheEntry, maxKeys),
		ttl:         ttl,
		negativeTTL: negativeTTL,
		maxKeys:     maxKeys,
		now:         time.Now,
	}
}

// Get returns the cached decision for key if one exists and has not expired
func (c *AuthCache) Get(key string) (AuthDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.now()) {
		return 0, false
	}
	return entry.decision, true
}

// Insert caches a decision for key, selecting the TTL by decision kind
func (c *AuthCache) Insert(key string, decision AuthDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxKeys {
		c.entries = make(map[string]authCacheEntry, c.maxKeys)
	}

	ttl := c.ttl
	if decision == DecisionInvalid {
		ttl = c.negativeTTL
	}

	c.entries[key] = authCacheEntry{
		decision:  decision,
		expiresAt: c.now().Add(ttl),
	}
}

// keyProbe is the remote call used to test whether an API key is accepted
type keyProbe interface {
	FetchProjects(ctx context.Context, apiKey string) ([]models.DokployProject, error)
}

// AuthService validates API keys against the deployment platform, caching
// positive and negative decisions
type AuthService struct {
	cache *AuthCache
	probe keyProbe
}

// NewAuthService creates a new AuthService instance
func NewAuthService(cache *AuthCache, probe keyProbe) *AuthService {
	return &AuthService{cache: cache, probe: probe}
}

// Validate checks the API key, consulting the cache first. An authentication
// rejection from the platform caches an Invalid decision; any other failure
// (network, 5xx, timeout) is surfaced as ErrValidationUnavailable and is not
// cached, so an ambiguous outcome never poisons the cache.
func (s *AuthService) Validate(ctx context.Context, apiKey string) error {
	if decision, ok := s.cache.Get(apiKey); ok {
		if decision == DecisionValid {
			return nil
		}
		return ErrInvalidAPIKey
	}

	_, err := s.probe.FetchProjects(ctx, apiKey)
	if err == nil {
		s.cache.Insert(apiKey, DecisionValid)
		return nil
	}

	if IsAuthError(err) {
		s.cache.Insert(apiKey, DecisionInvalid)
		return ErrInvalidAPIKey
	}

	logger.WithField("error", err.Error()).Error("Failed to validate API key against Dokploy")
	return ErrValidationUnavailable
}
