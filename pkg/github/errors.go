package github

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCredentialMissing is returned when no access token is configured.
	ErrCredentialMissing = errors.New("GitHub PAT not configured or is empty; set it with the token command")

	// ErrCredentialInvalid is returned when a configured token is malformed.
	ErrCredentialInvalid = errors.New("GitHub token is invalid")

	// ErrReviewerNotListed is returned when a review request succeeds but the
	// reviewer is absent from the pull request's updated reviewer list.
	ErrReviewerNotListed = errors.New("reviewer not found in updated list post-request")
)

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Op         string
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the response indicates a transient condition.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NetworkError is a transport-level failure talking to the GitHub API.
type NetworkError struct {
	Err error
	Op  string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsCredentialError reports whether err means the call cannot be authenticated.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrCredentialMissing) || errors.Is(err, ErrCredentialInvalid)
}

// Operation names carried by APIError.Op.
const (
	OpPRDetails     = "fetch PR details"
	OpSearch        = "search PRs"
	OpRequestReview = "request review"
	OpRequested     = "fetch requested reviewers"
	OpReviews       = "fetch reviews"
)

// UserMessage converts an error into the short message shown to users.
// API errors name the status and hint at token scopes.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrReviewerNotListed) {
		return "Reviewer not found in updated list post-request."
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Op {
	case OpSearch:
		return fmt.Sprintf("GitHub Search API error (%d). Check PAT scopes.", apiErr.StatusCode)
	case OpPRDetails:
		return fmt.Sprintf("Failed to fetch PR details (%d). Ensure PAT is valid and has repo scope.", apiErr.StatusCode)
	case OpRequestReview:
		return fmt.Sprintf("Failed to request review (%d). Ensure PAT is valid and has repo scope.", apiErr.StatusCode)
	default:
		return fmt.Sprintf("GitHub API error (%d) during %s.", apiErr.StatusCode, apiErr.Op)
	}
}
