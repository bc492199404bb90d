package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/imyashkale/previewserver/internal/models"
)

// fakeClock provides a controllable time source for cache tests
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.current
}

func (f *fakeClock) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func newTestCache(ttl, negativeTTL time.Duration, maxKeys int) (*AuthCache, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewAuthCache(ttl, negativeTTL, maxKeys)
	cache.now = clock.Now
	return cache, clock
}

// TestAuthCacheTTLBoundary verifies entries are returned strictly before
// their expiry instant and absent at or after it
func TestAuthCacheTTLBoundary(t *testing.T) {
	cache, clock := newTestCache(60*time.Second, 10*time.Second, 16)

	cache.Insert("key", DecisionValid)

	clock.Advance(59 * time.Second)
	if decision, ok := cache.Get("key"); !ok || decision != DecisionValid {
		t.Fatalf("Expected cached Valid decision before expiry, got ok=%v decision=%v", ok, decision)
	}

	clock.Advance(1 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatal("Expected entry to be absent at the expiry instant")
	}
}

// TestAuthCacheNegativeTTL verifies the shorter TTL applies to Invalid decisions
func TestAuthCacheNegativeTTL(t *testing.T) {
	cache, clock := newTestCache(60*time.Second, 10*time.Second, 16)

	cache.Insert("bad", DecisionInvalid)

	clock.Advance(9 * time.Second)
	if decision, ok := cache.Get("bad"); !ok || decision != DecisionInvalid {
		t.Fatalf("Expected cached Invalid decision before expiry, got ok=%v decision=%v", ok, decision)
	}

	clock.Advance(1 * time.Second)
	if _, ok := cache.Get("bad"); ok {
		t.Fatal("Expected negative entry to expire after the negative TTL")
	}
}

// TestAuthCacheEviction verifies the clear-all eviction at capacity
func TestAuthCacheEviction(t *testing.T) {
	cache, _ := newTestCache(60*time.Second, 10*time.Second, 3)

	for i := 0; i < 3; i++ {
		cache.Insert(fmt.Sprintf("key-%d", i), DecisionValid)
	}
	if _, ok := cache.Get("key-0"); !ok {
		t.Fatal("Expected key-0 to be cached before eviction")
	}

	// The 4th distinct key clears everything before inserting
	cache.Insert("key-3", DecisionValid)

	for i := 0; i < 3; i++ {
		if _, ok := cache.Get(fmt.Sprintf("key-%d", i)); ok {
			t.Errorf("Expected key-%d to be evicted", i)
		}
	}
	if _, ok := cache.Get("key-3"); !ok {
		t.Error("Expected key-3 to be cached after eviction")
	}
}

// fakeProbe is a configurable key validation backend
type fakeProbe struct {
	err   error
	calls int
}

func (f *fakeProbe) FetchProjects(ctx context.Context, apiKey string) ([]models.DokployProject, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []models.DokployProject{}, nil
}

// TestAuthServiceValidate covers the three validation outcomes and their
// caching behavior
func TestAuthServiceValidate(t *testing.T) {
	tests := []struct {
		name        string
		probeErr    error
		wantErr     error
		wantCached  bool
		secondCalls int
	}{
		{
			name:        "Valid key cached",
			probeErr:    nil,
			wantErr:     nil,
			wantCached:  true,
			secondCalls: 1, // second Validate hits the cache
		},
		{
			name:        "Auth rejection cached negative",
			probeErr:    &APIError{StatusCode: 401, Endpoint: "/api/project.all"},
			wantErr:     ErrInvalidAPIKey,
			wantCached:  true,
			secondCalls: 1,
		},
		{
			name:        "Transient failure not cached",
			probeErr:    errors.New("connection refused"),
			wantErr:     ErrValidationUnavailable,
			wantCached:  false,
			secondCalls: 2, // second Validate probes again
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _ := newTestCache(60*time.Second, 10*time.Second, 16)
			probe := &fakeProbe{err: tt.probeErr}
			svc := NewAuthService(cache, probe)

			err := svc.Validate(context.Background(), "some-key")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}

			_, cached := cache.Get("some-key")
			if cached != tt.wantCached {
				t.Errorf("Expected cached=%v, got %v", tt.wantCached, cached)
			}

			if err := svc.Validate(context.Background(), "some-key"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v on second call, got %v", tt.wantErr, err)
			}
			if probe.calls != tt.secondCalls {
				t.Errorf("Expected %d probe calls, got %d", tt.secondCalls, probe.calls)
			}
		})
	}
}
