package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/service"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// recordingHandler answers every message with a fixed response and keeps the requests.
type recordingHandler struct {
	resp service.Response
	reqs []service.Request
	mu   sync.Mutex
}

func (h *recordingHandler) Handle(_ context.Context, req service.Request) service.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return h.resp
}

func (h *recordingHandler) last(t *testing.T) service.Request {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reqs) == 0 {
		t.Fatal("handler was not called")
	}
	return h.reqs[len(h.reqs)-1]
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Messages(t *testing.T) {
	h := &recordingHandler{resp: service.Response{Reviewers: []types.Reviewer{types.NewReviewer("alice")}}}
	s := New(h, nil)

	rec := do(t, s, http.MethodPost, "/v1/messages", `{"action":"getRecentReviewers","owner":"o","repo":"r","author":"bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := h.last(t)
	if got.Action != service.ActionRecentReviewers || got.Author != "bob" || got.Owner != "o" {
		t.Errorf("request = %+v", got)
	}

	var resp service.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reviewers) != 1 || resp.Reviewers[0].Login != "alice" {
		t.Errorf("response = %+v", resp)
	}
}

func TestServer_Messages_BadJSON(t *testing.T) {
	h := &recordingHandler{}
	s := New(h, nil)

	rec := do(t, s, http.MethodPost, "/v1/messages", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if len(h.reqs) != 0 {
		t.Error("handler should not be called for bad JSON")
	}
}

func TestServer_RESTRoutes(t *testing.T) {
	tests := []struct {
		want   service.Request
		name   string
		method string
		target string
		body   string
	}{
		{
			name:   "recent reviewers",
			method: http.MethodGet,
			target: "/v1/repos/o/r/reviewers?author=bob",
			want:   service.Request{Action: service.ActionRecentReviewers, Owner: "o", Repo: "r", Author: "bob"},
		},
		{
			name:   "suggestions",
			method: http.MethodGet,
			target: "/v1/repos/o/r/pulls/42/suggestions?user=bob",
			want:   service.Request{Action: service.ActionPRDetailsAndSuggest, Owner: "o", Repo: "r", PRNumber: 42, LoggedInUser: "bob"},
		},
		{
			name:   "request one",
			method: http.MethodPost,
			target: "/v1/repos/o/r/pulls/42/reviewers",
			body:   `{"reviewer":"alice"}`,
			want:   service.Request{Action: service.ActionRequestReview, Owner: "o", Repo: "r", PRNumber: 42, ReviewerLogin: "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			s := New(h, nil)

			rec := do(t, s, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			got := h.last(t)
			if got.Action != tt.want.Action || got.Owner != tt.want.Owner || got.Repo != tt.want.Repo ||
				got.PRNumber != tt.want.PRNumber || got.Author != tt.want.Author ||
				got.LoggedInUser != tt.want.LoggedInUser || got.ReviewerLogin != tt.want.ReviewerLogin {
				t.Errorf("request = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestServer_RequestAll(t *testing.T) {
	h := &recordingHandler{}
	s := New(h, nil)

	rec := do(t, s, http.MethodPost, "/v1/repos/o/r/pulls/7/reviewers", `{"reviewers":["alice","carol"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := h.last(t)
	if got.Action != service.ActionRequestAllReviews || len(got.ReviewerLogins) != 2 {
		t.Errorf("request = %+v", got)
	}
}

func TestServer_NonNumericPRIsNotRouted(t *testing.T) {
	s := New(&recordingHandler{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/repos/o/r/pulls/abc/suggestions", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestServer_HealthCounters(t *testing.T) {
	h := &recordingHandler{resp: service.Response{Error: "Unknown action: x"}}
	metrics := NewMetrics()
	s := New(h, metrics)

	do(t, s, http.MethodPost, "/v1/messages", `{"action":"x"}`)
	metrics.RecordPRSeen("o", "r", 1)
	metrics.RecordPRSeen("o", "r", 1)
	metrics.RecordPRRefreshed("o", "r", 1)

	rec := do(t, s, http.MethodGet, "/_-_/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status       string `json:"status"`
		Requests     int64  `json:"requests"`
		Errors       int64  `json:"errors"`
		PRsSeen      int    `json:"prs_seen"`
		PRsRefreshed int    `json:"prs_refreshed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Requests != 1 || body.Errors != 1 || body.PRsSeen != 1 || body.PRsRefreshed != 1 {
		t.Errorf("health = %+v", body)
	}
}
