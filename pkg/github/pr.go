package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// PullRequest fetches a single pull request, using the cached copy when present.
// The credential is checked even when the details are cached.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error) {
	if _, err := c.Token(ctx); err != nil {
		return nil, err
	}
	key := cache.PRDetailsKey(owner, repo, prNumber)

	var cached types.PullRequest
	if c.cache.Get(ctx, key, &cached) {
		slog.Debug("PR details cache hit", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)
		return &cached, nil
	}

	slog.Info("Fetching PR details to get title, state, author and requested reviewers", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)
	var prData struct {
		Title string `json:"title"`
		State string `json:"state"`
		User  struct {
			Login string `json:"login"`
		} `json:"user"`
		RequestedReviewers []types.User `json:"requested_reviewers"`
		Number             int          `json:"number"`
		Draft              bool         `json:"draft"`
		Merged             bool         `json:"merged"`
	}
	if err := c.getJSON(ctx, OpPRDetails, c.url("/repos/%s/%s/pulls/%d", owner, repo, prNumber), &prData); err != nil {
		return nil, err
	}

	requested := prData.RequestedReviewers
	if requested == nil {
		requested = []types.User{}
	}
	pr := &types.PullRequest{
		Number:             prData.Number,
		Title:              prData.Title,
		State:              prData.State,
		Draft:              prData.Draft,
		Merged:             prData.Merged,
		Author:             prData.User.Login,
		Owner:              owner,
		Repository:         repo,
		RequestedReviewers: requested,
	}

	c.cache.Set(ctx, key, pr, cache.TTLPRDetails)
	return pr, nil
}

// InvalidatePullRequest drops the cached details for a pull request.
func (c *Client) InvalidatePullRequest(ctx context.Context, owner, repo string, prNumber int) {
	slog.Debug("Invalidating PR details", "component", "api", "owner", owner, "repo", repo, "pr", prNumber)
	c.cache.Delete(ctx, cache.PRDetailsKey(owner, repo, prNumber))
}

// RequestedReviewers returns the user logins currently requested on a PR.
// Team review requests are ignored.
func (c *Client) RequestedReviewers(ctx context.Context, owner, repo string, prNumber int) ([]string, error) {
	var data struct {
		Users []types.User `json:"users"`
	}
	op := OpRequested
	if err := c.getJSON(ctx, op, c.url("/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, prNumber), &data); err != nil {
		return nil, err
	}

	logins := make([]string, 0, len(data.Users))
	for _, u := range data.Users {
		if u.Login != "" {
			logins = append(logins, u.Login)
		}
	}
	return logins, nil
}

// SubmittedReviewers returns the login of each submitted review in API order.
// A login appears once per review; reviews from deleted accounts are skipped.
func (c *Client) SubmittedReviewers(ctx context.Context, owner, repo string, prNumber int) ([]string, error) {
	var reviews []struct {
		User *types.User `json:"user"`
	}
	op := OpReviews
	if err := c.getJSON(ctx, op, c.url("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber), &reviews); err != nil {
		return nil, err
	}

	logins := make([]string, 0, len(reviews))
	for _, r := range reviews {
		if r.User != nil && r.User.Login != "" {
			logins = append(logins, r.User.Login)
		}
	}
	return logins, nil
}

// RequestReview asks login to review a pull request. A 2xx response that
// does not list login among the requested reviewers yields ErrReviewerNotListed.
func (c *Client) RequestReview(ctx context.Context, owner, repo string, prNumber int, login string) error {
	slog.Info("Requesting review", "component", "api", "owner", owner, "repo", repo, "pr", prNumber, "reviewer", login)

	op := OpRequestReview
	payload := map[string][]string{"reviewers": {login}}
	resp, err := c.doRequest(ctx, op, http.MethodPost, c.url("/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, prNumber), payload)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		apiErr := newAPIError(op, resp)
		slog.Error("Review request failed", "component", "api", "status", apiErr.StatusCode, "body", apiErr.Body)
		return apiErr
	}

	var result struct {
		RequestedReviewers []types.User `json:"requested_reviewers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	for _, u := range result.RequestedReviewers {
		if u.Login == login {
			return nil
		}
	}

	slog.Warn("Reviewer missing from updated requested reviewers", "component", "api", "owner", owner, "repo", repo, "pr", prNumber, "reviewer", login)
	return ErrReviewerNotListed
}
