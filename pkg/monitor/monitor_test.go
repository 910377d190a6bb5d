package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/sprinkler/pkg/client"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

type fakeRecorder struct {
	seen      []string
	refreshed []string
	mu        sync.Mutex
}

func (r *fakeRecorder) RecordPRSeen(owner, repo string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, types.PullRequestRef{Owner: owner, Repo: repo, Number: n}.String())
}

func (r *fakeRecorder) RecordPRRefreshed(owner, repo string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, types.PullRequestRef{Owner: owner, Repo: repo, Number: n}.String())
}

func (r *fakeRecorder) counts() (seen, refreshed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen), len(r.refreshed)
}

func newTestController(t *testing.T) (*Controller, *testutil.MockGitHubClient, *fakeRecorder, *testutil.Clock) {
	t.Helper()
	gh := testutil.NewMockGitHubClient()
	gh.SetPullRequest(&types.PullRequest{Owner: "acme", Repository: "api", Number: 1, Author: "bob"})
	rec := &fakeRecorder{}
	clock := testutil.NewClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	c, err := New(gh, Config{
		Org:      "acme",
		Recorder: rec,
		Now:      clock.Now,
		Debounce: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, gh, rec, clock
}

func prEvent(url string) client.Event {
	return client.Event{Type: "pull_request", URL: url}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{Org: "acme"}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := New(testutil.NewMockGitHubClient(), Config{}); err == nil {
		t.Error("expected error for missing org")
	}
}

func TestController_EventRefreshesPR(t *testing.T) {
	c, gh, rec, _ := newTestController(t)
	ctx := context.Background()

	c.handleEvent(ctx, prEvent("https://github.com/acme/api/pull/1"))
	c.Wait()

	if got := gh.Invalidated(); len(got) != 1 || got[0] != "acme/api#1" {
		t.Errorf("Invalidated() = %v", got)
	}
	if seen, refreshed := rec.counts(); seen != 1 || refreshed != 1 {
		t.Errorf("seen = %d, refreshed = %d, want 1, 1", seen, refreshed)
	}
}

func TestController_DedupWindow(t *testing.T) {
	c, gh, rec, clock := newTestController(t)
	ctx := context.Background()
	url := "https://github.com/acme/api/pull/1"

	c.handleEvent(ctx, prEvent(url))
	c.handleEvent(ctx, prEvent(url))
	c.Wait()
	if got := len(gh.Invalidated()); got != 1 {
		t.Fatalf("invalidations = %d, want 1", got)
	}

	clock.Advance(6 * time.Second)
	c.handleEvent(ctx, prEvent(url))
	c.Wait()
	if got := len(gh.Invalidated()); got != 2 {
		t.Errorf("invalidations after window = %d, want 2", got)
	}
	if seen, _ := rec.counts(); seen != 2 {
		t.Errorf("seen = %d, want 2", seen)
	}
}

func TestController_DebounceCollapsesBurst(t *testing.T) {
	c, gh, _, _ := newTestController(t)
	ctx := context.Background()

	// Different URL forms for the same PR pass the dedup check but share a timer.
	c.handleEvent(ctx, prEvent("https://github.com/acme/api/pull/1"))
	c.handleEvent(ctx, prEvent("https://github.com/acme/api/pull/1/files"))
	c.Wait()

	if got := len(gh.Invalidated()); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}
}

func TestController_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name  string
		event client.Event
	}{
		{name: "other type", event: client.Event{Type: "check_run", URL: "https://github.com/acme/api/pull/1"}},
		{name: "empty url", event: client.Event{Type: "pull_request"}},
		{name: "bad url", event: prEvent("https://example.com/acme/api")},
		{name: "other org", event: prEvent("https://github.com/other/api/pull/1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, gh, rec, _ := newTestController(t)
			c.handleEvent(context.Background(), tt.event)
			c.Wait()
			if got := gh.Invalidated(); len(got) != 0 {
				t.Errorf("Invalidated() = %v, want none", got)
			}
			if seen, _ := rec.counts(); seen != 0 {
				t.Errorf("seen = %d, want 0", seen)
			}
		})
	}
}

func TestController_SkipsPrewarmWhileRefreshing(t *testing.T) {
	c, gh, rec, _ := newTestController(t)
	c.refreshing.Store(true)

	c.handleEvent(context.Background(), prEvent("https://github.com/acme/api/pull/1"))
	c.Wait()

	if got := len(gh.Invalidated()); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}
	if _, refreshed := rec.counts(); refreshed != 0 {
		t.Errorf("refreshed = %d, want 0", refreshed)
	}
}

func TestController_PrewarmFailure(t *testing.T) {
	c, gh, rec, _ := newTestController(t)
	gh.SetError("PullRequest:acme/api#1", errors.New("boom"))

	c.handleEvent(context.Background(), prEvent("https://github.com/acme/api/pull/1"))
	c.Wait()

	if got := len(gh.Invalidated()); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}
	if _, refreshed := rec.counts(); refreshed != 0 {
		t.Errorf("refreshed = %d, want 0", refreshed)
	}
	if c.refreshing.Load() {
		t.Error("guard should be released after a failed prewarm")
	}
}

func TestController_StopCancelsPending(t *testing.T) {
	gh := testutil.NewMockGitHubClient()
	c, err := New(gh, Config{Org: "acme", Debounce: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.handleEvent(context.Background(), prEvent("https://github.com/acme/api/pull/1"))
	c.Stop()
	c.Wait()

	if got := gh.Invalidated(); len(got) != 0 {
		t.Errorf("Invalidated() = %v, want none", got)
	}
}

func TestController_TokenProvider(t *testing.T) {
	c, gh, _, _ := newTestController(t)
	ctx := context.Background()

	token, err := c.tokenProvider(ctx)()
	if err != nil || token != "mock-token" {
		t.Errorf("token = %q, err = %v", token, err)
	}

	gh.TokenErr = errors.New("no credential")
	if _, err := c.tokenProvider(ctx)(); err == nil {
		t.Error("expected token error")
	}
}
