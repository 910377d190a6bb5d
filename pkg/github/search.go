package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// SearchMergedPullRequests returns the numbers of the author's most recently
// updated merged pull requests in a repository, at most limit of them.
// Search results that are plain issues are skipped.
func (c *Client) SearchMergedPullRequests(ctx context.Context, owner, repo, author string, limit int) ([]int, error) {
	query := fmt.Sprintf("repo:%s/%s is:pr is:merged author:%s sort:updated-desc", owner, repo, author)
	apiURL := fmt.Sprintf("%s/search/issues?q=%s&per_page=%d", c.baseURL, url.QueryEscape(query), limit)

	slog.Info("Searching merged PRs by author", "component", "api", "owner", owner, "repo", repo, "author", author, "limit", limit)

	var result struct {
		Items []struct {
			PullRequest *struct {
				URL string `json:"url"`
			} `json:"pull_request"`
			Number int `json:"number"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, OpSearch, apiURL, &result); err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(result.Items))
	for _, item := range result.Items {
		if item.PullRequest == nil {
			continue
		}
		numbers = append(numbers, item.Number)
		if limit > 0 && len(numbers) == limit {
			break
		}
	}
	return numbers, nil
}
