package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// Actions understood by Handle.
const (
	ActionPRDetailsAndSuggest = "getPrDetailsAndSuggestIfOwnPR"
	ActionRecentReviewers     = "getRecentReviewers"
	ActionRequestReview       = "requestReview"
	ActionRequestAllReviews   = "requestAllReviews"
)

// User-facing messages for malformed requests.
const (
	msgMissingOperation = "Missing parameters for operation."
	msgMissingRepo      = "Missing repository/author information."
	msgMissingRequest   = "Missing parameters for review request."
	msgInvalidRepo      = "Invalid repository owner or name."
)

// PRNumber is a pull request number that accepts both JSON numbers and
// numeric strings, since callers usually lift it straight out of a URL.
type PRNumber int

// UnmarshalJSON implements json.Unmarshaler.
func (n *PRNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid prNumber %q: %w", s, err)
		}
		*n = PRNumber(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid prNumber: %w", err)
	}
	*n = PRNumber(v)
	return nil
}

// Request is a message from a client.
type Request struct {
	Action         string   `json:"action"`
	LoggedInUser   string   `json:"loggedInUser,omitempty"`
	Owner          string   `json:"owner,omitempty"`
	Repo           string   `json:"repo,omitempty"`
	Author         string   `json:"author,omitempty"`
	ReviewerLogin  string   `json:"reviewerLogin,omitempty"`
	ReviewerLogins []string `json:"reviewerLogins,omitempty"`
	PRNumber       PRNumber `json:"prNumber,omitempty"`
}

// RequestResult is the outcome of one review request within requestAllReviews.
type RequestResult struct {
	Login   string `json:"login"`
	Skipped string `json:"skipped,omitempty"` // "requested" or "reviewed"
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// Response is the reply to a Request. Absent fields are omitted; an empty
// but present list is encoded as [].
type Response struct {
	SuggestionsApplicable     *bool            `json:"suggestionsApplicable,omitempty"`
	Success                   *bool            `json:"success,omitempty"`
	Error                     string           `json:"error,omitempty"`
	Reviewers                 []types.Reviewer `json:"reviewers,omitzero"`
	CurrentRequestedReviewers []types.User     `json:"currentRequestedReviewers,omitzero"`
	SubmittedReviewerLogins   []string         `json:"submittedReviewerLogins,omitzero"`
	Results                   []RequestResult  `json:"results,omitzero"`
}

func ptr[T any](v T) *T {
	return &v
}

func notApplicable(errMsg string) Response {
	return Response{SuggestionsApplicable: ptr(false), Error: errMsg}
}

func failure(errMsg string) Response {
	return Response{Success: ptr(false), Error: errMsg}
}
