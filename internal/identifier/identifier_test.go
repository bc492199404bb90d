package identifier

import (
	"errors"
	"testing"
)

// TestDerive covers precedence and sanitization of preview identifiers
func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		prNumber string
		branch   string
		want     string
		wantErr  error
	}{
		{
			name:     "PR number wins over branch",
			prNumber: "42",
			branch:   "feature/whatever",
			want:     "pr-42",
		},
		{
			name:     "PR number alone",
			prNumber: "7",
			want:     "pr-7",
		},
		{
			name:   "Branch with path separator",
			branch: "Feature/Branch",
			want:   "br-feature-branch",
		},
		{
			name:   "Branch with refs and underscores",
			branch: "hotfix_2024.01",
			want:   "br-hotfix-2024-01",
		},
		{
			name:    "Neither PR nor branch",
			wantErr: ErrMissingIdentitySource,
		},
		{
			name:    "Branch empty after sanitization",
			branch:  "///",
			wantErr: ErrEmptyIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.prNumber, tt.branch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestDeriveDeterministic verifies that repeated calls with identical inputs
// always produce the same identifier
func TestDeriveDeterministic(t *testing.T) {
	first, err := Derive("", "Feature/Branch")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Derive("", "Feature/Branch")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("Expected %q on call %d, got %q", first, i, again)
		}
	}
}

// TestSanitizeIdempotent verifies that sanitizing an already-sanitized value
// is a no-op
func TestSanitizeIdempotent(t *testing.T) {
	once := Sanitize("Feature/Branch")
	twice := Sanitize(once)
	if once != twice {
		t.Errorf("Expected sanitization to be idempotent, got %q then %q", once, twice)
	}
}

// TestStripRefsHeads verifies branch ref normalization
func TestStripRefsHeads(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"refs/heads/main", "main"},
		{"refs/heads/feature/x", "feature/x"},
		{"main", "main"},
	}

	for _, tt := range tests {
		if got := StripRefsHeads(tt.ref); got != tt.want {
			t.Errorf("StripRefsHeads(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
