// Package service answers reviewer-recommendation messages.
package service

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/github"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/reviewer"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

const defaultMaxConcurrency = 10

// GitHub is the part of the GitHub client the service uses.
type GitHub interface {
	PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error)
	SubmittedReviewers(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
	RequestReview(ctx context.Context, owner, repo string, prNumber int, login string) error
	InvalidatePullRequest(ctx context.Context, owner, repo string, prNumber int)
}

// Suggester produces reviewer suggestions.
type Suggester interface {
	Suggest(ctx context.Context, owner, repo, author string) ([]types.Reviewer, error)
	Recent(ctx context.Context, owner, repo, author string) ([]types.Reviewer, error)
}

// Service dispatches messages to the suggestion and review-request flows.
type Service struct {
	github         GitHub
	suggester      Suggester
	maxConcurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrency bounds parallel review requests in requestAllReviews.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// New creates a Service.
func New(gh GitHub, suggester Suggester, opts ...Option) *Service {
	s := &Service{
		github:         gh,
		suggester:      suggester,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle answers one message. Failures are reported in the response, never
// as a Go error.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	slog.Debug("Handling message", "component", "service", "action", req.Action, "owner", req.Owner, "repo", req.Repo, "pr", int(req.PRNumber))

	switch req.Action {
	case ActionPRDetailsAndSuggest:
		return s.prDetailsAndSuggest(ctx, req)
	case ActionRecentReviewers:
		return s.recentReviewers(ctx, req)
	case ActionRequestReview:
		return s.requestReview(ctx, req)
	case ActionRequestAllReviews:
		return s.requestAllReviews(ctx, req)
	default:
		slog.Warn("Unknown action", "component", "service", "action", req.Action)
		return Response{Error: "Unknown action: " + req.Action}
	}
}

// validRepo reports whether owner and repo are usable GitHub names.
func validRepo(req Request) bool {
	if err := types.ValidateRepo(req.Owner, req.Repo); err != nil {
		slog.Warn("Rejected request", "component", "service", "action", req.Action, "error", err)
		return false
	}
	return true
}

func (s *Service) prDetailsAndSuggest(ctx context.Context, req Request) Response {
	if req.LoggedInUser == "" || req.Owner == "" || req.Repo == "" || req.PRNumber <= 0 {
		slog.Error("Missing parameters for getPrDetailsAndSuggestIfOwnPR", "component", "service")
		return notApplicable(msgMissingOperation)
	}
	if !validRepo(req) {
		return notApplicable(msgInvalidRepo)
	}
	owner, repo, number := req.Owner, req.Repo, int(req.PRNumber)

	pr, err := s.github.PullRequest(ctx, owner, repo, number)
	if err != nil {
		slog.Error("Failed to fetch PR details", "component", "service", "owner", owner, "repo", repo, "pr", number, "error", err)
		return notApplicable(github.UserMessage(err))
	}
	if pr.Author != req.LoggedInUser {
		return Response{SuggestionsApplicable: ptr(false)}
	}

	reviewers, err := s.suggester.Suggest(ctx, owner, repo, pr.Author)
	if err != nil {
		slog.Error("Failed to build suggestions", "component", "service", "owner", owner, "repo", repo, "pr", number, "error", err)
		return notApplicable(github.UserMessage(err))
	}

	submitted, err := s.github.SubmittedReviewers(ctx, owner, repo, number)
	if err != nil {
		slog.Warn("Failed to fetch submitted reviews (continuing without)", "component", "service", "owner", owner, "repo", repo, "pr", number, "error", err)
	}

	requested := pr.RequestedReviewers
	if requested == nil {
		requested = []types.User{}
	}
	return Response{
		SuggestionsApplicable:     ptr(true),
		Reviewers:                 reviewers,
		CurrentRequestedReviewers: requested,
		SubmittedReviewerLogins:   reviewer.HumanLogins(submitted, pr.Author),
	}
}

func (s *Service) recentReviewers(ctx context.Context, req Request) Response {
	if req.Owner == "" || req.Repo == "" || req.Author == "" {
		slog.Error("Missing owner, repo or author for getRecentReviewers", "component", "service")
		return Response{Reviewers: []types.Reviewer{}, Error: msgMissingRepo}
	}
	if !validRepo(req) {
		return Response{Reviewers: []types.Reviewer{}, Error: msgInvalidRepo}
	}

	reviewers, err := s.suggester.Recent(ctx, req.Owner, req.Repo, req.Author)
	if err != nil {
		slog.Error("Failed to fetch recent reviewers", "component", "service", "owner", req.Owner, "repo", req.Repo, "author", req.Author, "error", err)
		return Response{Reviewers: []types.Reviewer{}, Error: github.UserMessage(err)}
	}
	return Response{Reviewers: reviewers}
}

func (s *Service) requestReview(ctx context.Context, req Request) Response {
	if req.Owner == "" || req.Repo == "" || req.PRNumber <= 0 || req.ReviewerLogin == "" {
		slog.Error("Missing parameters for requestReview", "component", "service")
		return failure(msgMissingRequest)
	}
	if !validRepo(req) {
		return failure(msgInvalidRepo)
	}
	owner, repo, number := req.Owner, req.Repo, int(req.PRNumber)

	if err := s.github.RequestReview(ctx, owner, repo, number, req.ReviewerLogin); err != nil {
		slog.Error("Review request failed", "component", "service", "owner", owner, "repo", repo, "pr", number, "reviewer", req.ReviewerLogin, "error", err)
		return failure(github.UserMessage(err))
	}

	s.github.InvalidatePullRequest(ctx, owner, repo, number)
	return Response{Success: ptr(true)}
}

// requestAllReviews requests every listed reviewer who has not already been
// requested or already reviewed, in parallel.
func (s *Service) requestAllReviews(ctx context.Context, req Request) Response {
	if req.Owner == "" || req.Repo == "" || req.PRNumber <= 0 || len(req.ReviewerLogins) == 0 {
		slog.Error("Missing parameters for requestAllReviews", "component", "service")
		return failure(msgMissingRequest)
	}
	if !validRepo(req) {
		return failure(msgInvalidRepo)
	}
	owner, repo, number := req.Owner, req.Repo, int(req.PRNumber)

	pr, err := s.github.PullRequest(ctx, owner, repo, number)
	if err != nil {
		return failure(github.UserMessage(err))
	}
	requested := pr.RequestedLogins()
	submitted, err := s.github.SubmittedReviewers(ctx, owner, repo, number)
	if err != nil {
		slog.Warn("Failed to fetch submitted reviews (continuing without)", "component", "service", "owner", owner, "repo", repo, "pr", number, "error", err)
	}

	logins := make([]string, 0, len(req.ReviewerLogins))
	for _, l := range req.ReviewerLogins {
		if l != "" && !slices.Contains(logins, l) {
			logins = append(logins, l)
		}
	}

	results := make([]RequestResult, len(logins))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, login := range logins {
		results[i].Login = login
		switch {
		case slices.Contains(requested, login):
			results[i].Skipped = "requested"
			continue
		case slices.Contains(submitted, login):
			results[i].Skipped = "reviewed"
			continue
		}
		g.Go(func() error {
			if err := s.github.RequestReview(gctx, owner, repo, number, login); err != nil {
				slog.Warn("Review request failed", "component", "service", "owner", owner, "repo", repo, "pr", number, "reviewer", login, "error", err)
				results[i].Error = github.UserMessage(err)
				return nil
			}
			results[i].Success = true
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines record failures in results

	allOK := true
	anyRequested := false
	for _, r := range results {
		if r.Skipped != "" {
			continue
		}
		if r.Success {
			anyRequested = true
		} else {
			allOK = false
		}
	}
	if anyRequested {
		s.github.InvalidatePullRequest(ctx, owner, repo, number)
	}

	slog.Info("Requested reviews", "component", "service", "owner", owner, "repo", repo, "pr", number, "logins", len(logins), "all_ok", allOK)
	return Response{Success: ptr(allOK), Results: results}
}
