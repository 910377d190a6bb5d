// Package types contains shared data structures used across the recommender.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// avatarURLFormat builds a small avatar URL that does not require an API call.
const avatarURLFormat = "https://github.com/%s.png?size=40"

// maxNameLength bounds owner and repository names.
const maxNameLength = 100

// Reviewer is a suggested reviewer as shown to the user.
type Reviewer struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// NewReviewer returns a Reviewer with its avatar URL derived from the login.
func NewReviewer(login string) Reviewer {
	return Reviewer{
		Login:     login,
		AvatarURL: AvatarURL(login),
	}
}

// AvatarURL returns the avatar URL for a login.
func AvatarURL(login string) string {
	return fmt.Sprintf(avatarURLFormat, login)
}

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
}

// PullRequest holds the details of a pull request needed for suggestions.
type PullRequest struct {
	Title              string `json:"title"`
	State              string `json:"state"`
	Author             string `json:"author"`
	Owner              string `json:"owner"`
	Repository         string `json:"repository"`
	RequestedReviewers []User `json:"requested_reviewers"`
	Number             int    `json:"number"`
	Draft              bool   `json:"draft"`
	Merged             bool   `json:"merged"`
}

// RequestedLogins returns the logins of the currently requested reviewers.
func (pr *PullRequest) RequestedLogins() []string {
	logins := make([]string, 0, len(pr.RequestedReviewers))
	for _, u := range pr.RequestedReviewers {
		logins = append(logins, u.Login)
	}
	return logins
}

// PullRequestRef identifies a pull request.
type PullRequestRef struct {
	Owner  string
	Repo   string
	Number int
}

// String returns the owner/repo#number shorthand.
func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ParsePullRequestRef parses a PR URL or shorthand into a reference.
// Accepted forms: https://github.com/owner/repo/pull/123 and owner/repo#123.
func ParsePullRequestRef(s string) (PullRequestRef, error) {
	// Handle shorthand: owner/repo#123
	if strings.Contains(s, "#") && !strings.Contains(s, "://") {
		parts := strings.Split(s, "#")
		if len(parts) != 2 {
			return PullRequestRef{}, errors.New("invalid PR shorthand format (expected owner/repo#number)")
		}
		owner, repo, err := ParseRepo(parts[0])
		if err != nil {
			return PullRequestRef{}, err
		}
		n, err := parseNumber(parts[1])
		if err != nil {
			return PullRequestRef{}, err
		}
		return PullRequestRef{Owner: owner, Repo: repo, Number: n}, nil
	}

	// Handle full URL: https://github.com/owner/repo/pull/123
	if strings.HasPrefix(s, "https://github.com/") || strings.HasPrefix(s, "http://github.com/") {
		s = strings.TrimPrefix(s, "https://github.com/")
		s = strings.TrimPrefix(s, "http://github.com/")
		parts := strings.Split(s, "/")
		if len(parts) < 4 || parts[2] != "pull" || parts[0] == "" || parts[1] == "" {
			return PullRequestRef{}, errors.New("invalid GitHub PR URL format")
		}
		if err := ValidateRepo(parts[0], parts[1]); err != nil {
			return PullRequestRef{}, err
		}
		n, err := parseNumber(parts[3])
		if err != nil {
			return PullRequestRef{}, err
		}
		return PullRequestRef{Owner: parts[0], Repo: parts[1], Number: n}, nil
	}

	return PullRequestRef{}, errors.New("invalid PR URL format (use: https://github.com/owner/repo/pull/123 or owner/repo#123)")
}

// ParseRepo splits and validates an owner/repo string.
func ParseRepo(s string) (owner, repo string, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid repository path (expected owner/repo)")
	}
	if err := ValidateRepo(parts[0], parts[1]); err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

// ValidateRepo checks that owner and repo are GitHub names: ASCII letters,
// digits, '-', '_' and '.', and neither "." nor "..". Both end up in API
// paths and cache keys.
func ValidateRepo(owner, repo string) error {
	if !validName(owner) {
		return fmt.Errorf("invalid owner name %q", owner)
	}
	if !validName(repo) {
		return fmt.Errorf("invalid repository name %q", repo)
	}
	return nil
}

func validName(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > maxNameLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid PR number: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid PR number: %d", n)
	}
	return n, nil
}
