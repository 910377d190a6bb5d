package reviewer

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// GitHub is the part of the GitHub client the finder uses.
type GitHub interface {
	Token(ctx context.Context) (string, error)
	SearchMergedPullRequests(ctx context.Context, owner, repo, author string, limit int) ([]int, error)
	RequestedReviewers(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
	SubmittedReviewers(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
}

// Finder builds reviewer suggestions from an author's recent merged PRs.
type Finder struct {
	client         GitHub
	cache          *cache.Cache
	recentPRs      int
	maxConcurrency int64
}

// Config holds configuration for the reviewer finder.
type Config struct {
	Cache          *cache.Cache // Suggestion cache (nil = in-memory)
	RecentPRs      int          // Merged PRs to examine (default 5)
	MaxConcurrency int          // In-flight per-PR lookups (default 10)
}

// New creates a new Finder with the given GitHub client and configuration.
func New(client GitHub, cfg Config) *Finder {
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	recent := cfg.RecentPRs
	if recent <= 0 {
		recent = defaultRecentPRs
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Finder{
		client:         client,
		cache:          c,
		recentPRs:      recent,
		maxConcurrency: int64(maxConcurrency),
	}
}

// Suggest returns the people who requested or submitted reviews on the
// author's most recent merged PRs in owner/repo, excluding the author and
// bots, sorted by login. Results are cached for 15 minutes.
func (f *Finder) Suggest(ctx context.Context, owner, repo, author string) ([]types.Reviewer, error) {
	if _, err := f.client.Token(ctx); err != nil {
		return nil, err
	}

	key := cache.SuggestionsKey(owner, repo, author)
	var cached []types.Reviewer
	if f.cache.Get(ctx, key, &cached) {
		slog.Info("Using cached reviewer suggestions", "component", "reviewer", "owner", owner, "repo", repo, "author", author, "count", len(cached))
		return cached, nil
	}

	slog.Info("Fetching reviewer suggestions", "component", "reviewer", "owner", owner, "repo", repo, "author", author)
	numbers, err := f.client.SearchMergedPullRequests(ctx, owner, repo, author, f.recentPRs)
	if err != nil {
		return nil, fmt.Errorf("failed to search merged PRs: %w", err)
	}

	reviewers := []types.Reviewer{}
	if len(numbers) > 0 {
		lists, err := f.collect(ctx, owner, repo, numbers)
		if err != nil {
			return nil, err
		}
		reviewers = merge(lists, author)
	}

	f.cache.Set(ctx, key, reviewers, cache.TTLSuggestions)
	slog.Info("Reviewer suggestions ready", "component", "reviewer", "owner", owner, "repo", repo, "author", author, "prs", len(numbers), "count", len(reviewers))
	return reviewers, nil
}

// Recent serves the direct "recent reviewers" lookup. It has its own cache
// entry in front of Suggest.
func (f *Finder) Recent(ctx context.Context, owner, repo, author string) ([]types.Reviewer, error) {
	key := cache.DirectSuggestionsKey(owner, repo, author)
	var cached []types.Reviewer
	if f.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	reviewers, err := f.Suggest(ctx, owner, repo, author)
	if err != nil {
		return nil, err
	}
	f.cache.Set(ctx, key, reviewers, cache.TTLSuggestions)
	return reviewers, nil
}

// collect fetches requested and submitted reviewers for every PR. Each lookup
// writes only its own slot; failed lookups leave their slot empty. The only
// error returned is context cancellation.
func (f *Finder) collect(ctx context.Context, owner, repo string, numbers []int) ([][]string, error) {
	lists := make([][]string, 2*len(numbers))
	sem := semaphore.NewWeighted(f.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, n := range numbers {
		lookups := []struct {
			fetch func(context.Context, string, string, int) ([]string, error)
			what  string
		}{
			{fetch: f.client.RequestedReviewers, what: "requested reviewers"},
			{fetch: f.client.SubmittedReviewers, what: "submitted reviews"},
		}
		for j, l := range lookups {
			slot := 2*i + j
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				logins, err := l.fetch(gctx, owner, repo, n)
				if err != nil {
					slog.Warn("Could not fetch "+l.what+" (skipping)", "component", "reviewer", "owner", owner, "repo", repo, "pr", n, "error", err)
					return nil
				}
				lists[slot] = logins
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Lookups cut short by cancellation must not be cached as empty.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}
