package identifier

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingIdentitySource = errors.New("missing pr number and branch name")
	ErrEmptyIdentifier       = errors.New("branch name empty after sanitization")
)

// Derive computes the canonical preview identifier for a pull request or
// branch. A non-empty PR number always wins and yields "pr-<number>";
// otherwise the branch name is sanitized and prefixed with "br-". The result
// is stable for identical inputs, which is what makes upserts safe to retry.
func Derive(prNumber, branchName string) (string, error) {
	if prNumber != "" {
		return "pr-" + prNumber, nil
	}
	if branchName == "" {
		return "", ErrMissingIdentitySource
	}
	safe := Sanitize(branchName)
	if safe == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyIdentifier, branchName)
	}
	return "br-" + safe, nil
}

// Sanitize lower-cases a branch name and replaces every character outside
// [a-z0-9-] with '-', making the result usable as a DNS label and as a
// compose resource name. Leading and trailing dashes are trimmed.
func Sanitize(branch string) string {
	lowered := strings.ToLower(branch)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// StripRefsHeads removes the "refs/heads/" prefix that source-control
// webhooks use for branch refs.
func StripRefsHeads(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
