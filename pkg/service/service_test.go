package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/github"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/reviewer"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

func newService(t *testing.T) (*Service, *testutil.MockGitHubClient) {
	t.Helper()
	client := testutil.NewMockGitHubClient()
	finder := reviewer.New(client, reviewer.Config{Cache: cache.New(testutil.NewMockStore())})
	return New(client, finder), client
}

func ownPR(client *testutil.MockGitHubClient) {
	client.SetPullRequest(&types.PullRequest{
		Owner:              "o",
		Repository:         "r",
		Number:             42,
		Author:             "bob",
		State:              "open",
		RequestedReviewers: []types.User{{Login: "carol"}},
	})
	client.SetSearchResults("o", "r", "bob", 1, 2)
	client.SetRequestedReviewers("o", "r", 1, "alice")
	client.SetSubmittedReviewers("o", "r", 2, "bob", "alice[bot]", "dave")
	client.SetSubmittedReviewers("o", "r", 42, "dave", "bob", "renovate[bot]", "dave")
}

func encode(t *testing.T, resp Response) map[string]any {
	t.Helper()
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestHandle_PRDetailsAndSuggest_OwnPR(t *testing.T) {
	svc, client := newService(t)
	ownPR(client)

	resp := svc.Handle(context.Background(), Request{
		Action:       ActionPRDetailsAndSuggest,
		LoggedInUser: "bob",
		Owner:        "o",
		Repo:         "r",
		PRNumber:     42,
	})

	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	if resp.SuggestionsApplicable == nil || !*resp.SuggestionsApplicable {
		t.Fatal("expected suggestions to be applicable")
	}
	var got []string
	for _, r := range resp.Reviewers {
		got = append(got, r.Login)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "dave" {
		t.Errorf("reviewers = %v", got)
	}
	if len(resp.CurrentRequestedReviewers) != 1 || resp.CurrentRequestedReviewers[0].Login != "carol" {
		t.Errorf("current requested = %+v", resp.CurrentRequestedReviewers)
	}
	if len(resp.SubmittedReviewerLogins) != 1 || resp.SubmittedReviewerLogins[0] != "dave" {
		t.Errorf("submitted = %v", resp.SubmittedReviewerLogins)
	}
}

func TestHandle_PRDetailsAndSuggest_NotOwnPR(t *testing.T) {
	svc, client := newService(t)
	ownPR(client)

	resp := svc.Handle(context.Background(), Request{
		Action:       ActionPRDetailsAndSuggest,
		LoggedInUser: "mallory",
		Owner:        "o",
		Repo:         "r",
		PRNumber:     42,
	})

	m := encode(t, resp)
	if len(m) != 1 || m["suggestionsApplicable"] != false {
		t.Errorf("expected only suggestionsApplicable=false, got %v", m)
	}
	if client.SearchCalls() != 0 {
		t.Error("suggestions should not be computed for someone else's PR")
	}
}

func TestHandle_PRDetailsAndSuggest_SubmittedFailureIsEmpty(t *testing.T) {
	svc, client := newService(t)
	ownPR(client)
	client.SetError("SubmittedReviewers:o/r#42", &github.APIError{Op: github.OpReviews, StatusCode: 500})

	resp := svc.Handle(context.Background(), Request{
		Action: ActionPRDetailsAndSuggest, LoggedInUser: "bob", Owner: "o", Repo: "r", PRNumber: 42,
	})

	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	m := encode(t, resp)
	logins, ok := m["submittedReviewerLogins"].([]any)
	if !ok || len(logins) != 0 {
		t.Errorf("expected empty submittedReviewerLogins, got %v", m["submittedReviewerLogins"])
	}
}

func TestHandle_PRDetailsAndSuggest_Errors(t *testing.T) {
	tests := []struct {
		setup   func(*testutil.MockGitHubClient)
		name    string
		wantErr string
		req     Request
	}{
		{
			name:    "missing parameters",
			req:     Request{Action: ActionPRDetailsAndSuggest, Owner: "o", Repo: "r", PRNumber: 42},
			wantErr: "Missing parameters for operation.",
		},
		{
			name: "PR fetch failure",
			setup: func(c *testutil.MockGitHubClient) {
				c.SetError("PullRequest:o/r#42", &github.APIError{Op: github.OpPRDetails, StatusCode: 404})
			},
			req:     Request{Action: ActionPRDetailsAndSuggest, LoggedInUser: "bob", Owner: "o", Repo: "r", PRNumber: 42},
			wantErr: "Failed to fetch PR details (404). Ensure PAT is valid and has repo scope.",
		},
		{
			name: "search failure",
			setup: func(c *testutil.MockGitHubClient) {
				c.SetError("Search:o/r:bob", &github.APIError{Op: github.OpSearch, StatusCode: 403})
			},
			req:     Request{Action: ActionPRDetailsAndSuggest, LoggedInUser: "bob", Owner: "o", Repo: "r", PRNumber: 42},
			wantErr: "GitHub Search API error (403). Check PAT scopes.",
		},
		{
			name: "missing credential",
			setup: func(c *testutil.MockGitHubClient) {
				c.TokenErr = github.ErrCredentialMissing
			},
			req:     Request{Action: ActionPRDetailsAndSuggest, LoggedInUser: "bob", Owner: "o", Repo: "r", PRNumber: 42},
			wantErr: github.ErrCredentialMissing.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, client := newService(t)
			ownPR(client)
			if tt.setup != nil {
				tt.setup(client)
			}

			resp := svc.Handle(context.Background(), tt.req)
			if resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
			if resp.SuggestionsApplicable == nil || *resp.SuggestionsApplicable {
				t.Error("expected suggestionsApplicable=false")
			}
		})
	}
}

func TestHandle_RecentReviewers(t *testing.T) {
	svc, client := newService(t)
	ownPR(client)

	resp := svc.Handle(context.Background(), Request{Action: ActionRecentReviewers, Owner: "o", Repo: "r", Author: "bob"})
	if resp.Error != "" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	if len(resp.Reviewers) != 2 {
		t.Errorf("reviewers = %+v", resp.Reviewers)
	}
}

func TestHandle_RecentReviewers_Missing(t *testing.T) {
	svc, _ := newService(t)

	resp := svc.Handle(context.Background(), Request{Action: ActionRecentReviewers, Owner: "o", Repo: "r"})
	m := encode(t, resp)
	if m["error"] != "Missing repository/author information." {
		t.Errorf("error = %v", m["error"])
	}
	reviewers, ok := m["reviewers"].([]any)
	if !ok || len(reviewers) != 0 {
		t.Errorf("expected reviewers: [], got %v", m["reviewers"])
	}
}

func TestHandle_RequestReview(t *testing.T) {
	tests := []struct {
		err         error
		name        string
		wantErr     string
		wantSuccess bool
	}{
		{name: "success", wantSuccess: true},
		{
			name:    "not listed",
			err:     github.ErrReviewerNotListed,
			wantErr: "Reviewer not found in updated list post-request.",
		},
		{
			name:    "api error",
			err:     &github.APIError{Op: github.OpRequestReview, StatusCode: 422},
			wantErr: "Failed to request review (422). Ensure PAT is valid and has repo scope.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, client := newService(t)
			if tt.err != nil {
				client.SetError("RequestReview:o/r#42:alice", tt.err)
			}

			resp := svc.Handle(context.Background(), Request{
				Action: ActionRequestReview, Owner: "o", Repo: "r", PRNumber: 42, ReviewerLogin: "alice",
			})

			if resp.Success == nil || *resp.Success != tt.wantSuccess {
				t.Fatalf("success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
			invalidated := client.Invalidated()
			if tt.wantSuccess && (len(invalidated) != 1 || invalidated[0] != "o/r#42") {
				t.Errorf("expected PR details invalidation, got %v", invalidated)
			}
			if !tt.wantSuccess && len(invalidated) != 0 {
				t.Errorf("failed request should not invalidate, got %v", invalidated)
			}
		})
	}
}

func TestHandle_RequestReview_Missing(t *testing.T) {
	svc, client := newService(t)

	resp := svc.Handle(context.Background(), Request{Action: ActionRequestReview, Owner: "o", Repo: "r", PRNumber: 42})
	if resp.Success == nil || *resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error != "Missing parameters for review request." {
		t.Errorf("error = %q", resp.Error)
	}
	if len(client.RequestReviewCalls()) != 0 {
		t.Error("no request should be made")
	}
}

func TestHandle_RequestAllReviews(t *testing.T) {
	svc, client := newService(t)
	ownPR(client)
	client.SetError("RequestReview:o/r#42:erin", errors.New("boom"))

	resp := svc.Handle(context.Background(), Request{
		Action:         ActionRequestAllReviews,
		Owner:          "o",
		Repo:           "r",
		PRNumber:       42,
		ReviewerLogins: []string{"alice", "carol", "dave", "erin", "alice"},
	})

	if resp.Success == nil || *resp.Success {
		t.Error("expected overall failure because erin failed")
	}
	want := []RequestResult{
		{Login: "alice", Success: true},
		{Login: "carol", Skipped: "requested"},
		{Login: "dave", Skipped: "reviewed"},
		{Login: "erin", Error: "boom"},
	}
	if len(resp.Results) != len(want) {
		t.Fatalf("results = %+v", resp.Results)
	}
	for i := range want {
		if resp.Results[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, resp.Results[i], want[i])
		}
	}

	var requested []string
	for _, c := range client.RequestReviewCalls() {
		requested = append(requested, c.Login)
	}
	if len(requested) != 2 {
		t.Errorf("expected requests for alice and erin only, got %v", requested)
	}
	if inv := client.Invalidated(); len(inv) != 1 {
		t.Errorf("expected one invalidation, got %v", inv)
	}
}

func TestHandle_RequestAllReviews_Missing(t *testing.T) {
	svc, _ := newService(t)

	resp := svc.Handle(context.Background(), Request{Action: ActionRequestAllReviews, Owner: "o", Repo: "r", PRNumber: 42})
	if resp.Error != "Missing parameters for review request." {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHandle_RejectsInvalidRepo(t *testing.T) {
	tests := []struct {
		req Request
	}{
		{Request{Action: ActionPRDetailsAndSuggest, LoggedInUser: "bob", Owner: "o", Repo: "r/../../orgs/evil", PRNumber: 42}},
		{Request{Action: ActionRecentReviewers, Owner: "..", Repo: "r", Author: "bob"}},
		{Request{Action: ActionRequestReview, Owner: "o", Repo: "teams?x=", PRNumber: 42, ReviewerLogin: "alice"}},
		{Request{Action: ActionRequestAllReviews, Owner: "o#x", Repo: "r", PRNumber: 42, ReviewerLogins: []string{"alice"}}},
	}

	for _, tt := range tests {
		t.Run(tt.req.Action, func(t *testing.T) {
			svc, client := newService(t)
			ownPR(client)

			resp := svc.Handle(context.Background(), tt.req)
			if resp.Error != "Invalid repository owner or name." {
				t.Errorf("error = %q", resp.Error)
			}
			if resp.Success != nil && *resp.Success {
				t.Error("success reported for invalid repository")
			}
			if n := len(client.RequestReviewCalls()); n != 0 {
				t.Errorf("made %d review requests", n)
			}
			if client.SearchCalls() != 0 || client.RequestedCalls() != 0 {
				t.Error("GitHub was queried for an invalid repository")
			}
		})
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	svc, _ := newService(t)

	resp := svc.Handle(context.Background(), Request{Action: "doSomethingElse"})
	if resp.Error != "Unknown action: doSomethingElse" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRequest_PRNumberForms(t *testing.T) {
	tests := []struct {
		body    string
		want    PRNumber
		wantErr bool
	}{
		{body: `{"prNumber": 12}`, want: 12},
		{body: `{"prNumber": "34"}`, want: 34},
		{body: `{"prNumber": ""}`, want: 0},
		{body: `{"prNumber": null}`, want: 0},
		{body: `{}`, want: 0},
		{body: `{"prNumber": "abc"}`, wantErr: true},
	}
	for _, tt := range tests {
		var req Request
		err := json.Unmarshal([]byte(tt.body), &req)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.body)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.body, err)
			continue
		}
		if req.PRNumber != tt.want {
			t.Errorf("%s: got %d, want %d", tt.body, req.PRNumber, tt.want)
		}
	}
}
