package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// MockGitHubClient is a programmable stand-in for github.Client.
// Errors are keyed by "Method:owner/repo#n", "Search:owner/repo:author",
// or "RequestReview:owner/repo#n:login".
type MockGitHubClient struct {
	pullRequests   map[string]*types.PullRequest
	searchResults  map[string][]int
	requested      map[string][]string
	reviews        map[string][]string
	errors         map[string]error
	TokenErr       error
	requestCalls   []RequestReviewCall
	invalidated    []string
	searchCalls    int
	requestedCalls int
	mu             sync.RWMutex
}

// RequestReviewCall records a call to RequestReview.
type RequestReviewCall struct {
	Owner    string
	Repo     string
	Login    string
	PRNumber int
}

// NewMockGitHubClient creates a new MockGitHubClient.
func NewMockGitHubClient() *MockGitHubClient {
	return &MockGitHubClient{
		pullRequests:  make(map[string]*types.PullRequest),
		searchResults: make(map[string][]int),
		requested:     make(map[string][]string),
		reviews:       make(map[string][]string),
		errors:        make(map[string]error),
	}
}

func prKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// Token returns a mock token unless TokenErr is set.
func (m *MockGitHubClient) Token(_ context.Context) (string, error) {
	if m.TokenErr != nil {
		return "", m.TokenErr
	}
	return "mock-token", nil
}

// PullRequest returns a configured pull request.
func (m *MockGitHubClient) PullRequest(_ context.Context, owner, repo string, number int) (*types.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := prKey(owner, repo, number)
	if err := m.errors["PullRequest:"+key]; err != nil {
		return nil, err
	}
	pr, ok := m.pullRequests[key]
	if !ok {
		return nil, fmt.Errorf("PR not found: %s", key)
	}
	cp := *pr
	return &cp, nil
}

// SearchMergedPullRequests returns the configured PR numbers for an author.
func (m *MockGitHubClient) SearchMergedPullRequests(_ context.Context, owner, repo, author string, limit int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searchCalls++
	key := fmt.Sprintf("%s/%s:%s", owner, repo, author)
	if err := m.errors["Search:"+key]; err != nil {
		return nil, err
	}
	numbers := m.searchResults[key]
	if limit > 0 && len(numbers) > limit {
		numbers = numbers[:limit]
	}
	return numbers, nil
}

// RequestedReviewers returns the configured requested reviewers.
func (m *MockGitHubClient) RequestedReviewers(_ context.Context, owner, repo string, number int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestedCalls++
	key := prKey(owner, repo, number)
	if err := m.errors["RequestedReviewers:"+key]; err != nil {
		return nil, err
	}
	return m.requested[key], nil
}

// SubmittedReviewers returns the configured review authors.
func (m *MockGitHubClient) SubmittedReviewers(_ context.Context, owner, repo string, number int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := prKey(owner, repo, number)
	if err := m.errors["SubmittedReviewers:"+key]; err != nil {
		return nil, err
	}
	return m.reviews[key], nil
}

// RequestReview records the call and returns the configured outcome.
func (m *MockGitHubClient) RequestReview(_ context.Context, owner, repo string, number int, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCalls = append(m.requestCalls, RequestReviewCall{Owner: owner, Repo: repo, PRNumber: number, Login: login})
	key := prKey(owner, repo, number)
	if err := m.errors["RequestReview:"+key+":"+login]; err != nil {
		return err
	}
	if err := m.errors["RequestReview:"+key]; err != nil {
		return err
	}
	return nil
}

// InvalidatePullRequest records the invalidation.
func (m *MockGitHubClient) InvalidatePullRequest(_ context.Context, owner, repo string, number int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidated = append(m.invalidated, prKey(owner, repo, number))
}

// SetPullRequest configures a pull request.
func (m *MockGitHubClient) SetPullRequest(pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[prKey(pr.Owner, pr.Repository, pr.Number)] = pr
}

// SetSearchResults configures the merged PRs returned for an author.
func (m *MockGitHubClient) SetSearchResults(owner, repo, author string, numbers ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchResults[fmt.Sprintf("%s/%s:%s", owner, repo, author)] = numbers
}

// SetRequestedReviewers configures the requested reviewers of a PR.
func (m *MockGitHubClient) SetRequestedReviewers(owner, repo string, number int, logins ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested[prKey(owner, repo, number)] = logins
}

// SetSubmittedReviewers configures the review authors of a PR.
func (m *MockGitHubClient) SetSubmittedReviewers(owner, repo string, number int, logins ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[prKey(owner, repo, number)] = logins
}

// SetError configures an error, keyed as described on MockGitHubClient.
func (m *MockGitHubClient) SetError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

// SearchCalls returns how many searches were made.
func (m *MockGitHubClient) SearchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchCalls
}

// RequestedCalls returns how many requested-reviewer lookups were made.
func (m *MockGitHubClient) RequestedCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestedCalls
}

// RequestReviewCalls returns the recorded review requests.
func (m *MockGitHubClient) RequestReviewCalls() []RequestReviewCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]RequestReviewCall, len(m.requestCalls))
	copy(calls, m.requestCalls)
	return calls
}

// Invalidated returns the PRs whose cached details were dropped.
func (m *MockGitHubClient) Invalidated() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.invalidated))
	copy(out, m.invalidated)
	return out
}
