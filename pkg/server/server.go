// Package server exposes the recommender service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/service"
)

// Server constants.
const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 60 * time.Second // suggestions fan out to GitHub
	serverIdleTimeout  = 120 * time.Second
	shutdownTimeout    = 10 * time.Second
	maxBodyBytes       = 1 << 20
)

// Handler answers service messages.
type Handler interface {
	Handle(ctx context.Context, req service.Request) service.Response
}

// Server routes HTTP requests to the service.
type Server struct {
	svc     Handler
	metrics *Metrics
	router  *mux.Router
}

// New creates a Server. A nil metrics collector gets a fresh one.
func New(svc Handler, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{svc: svc, metrics: metrics}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/_-_/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/messages", s.message).Methods(http.MethodPost)
	v1.HandleFunc("/repos/{owner}/{repo}/reviewers", s.recentReviewers).Methods(http.MethodGet)
	v1.HandleFunc("/repos/{owner}/{repo}/pulls/{number:[0-9]+}/suggestions", s.suggestions).Methods(http.MethodGet)
	v1.HandleFunc("/repos/{owner}/{repo}/pulls/{number:[0-9]+}/reviewers", s.requestReviewers).Methods(http.MethodPost)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[SERVER] Starting HTTP server", "component", "http", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("[SERVER] Shutting down", "component", "http")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req service.Request) {
	resp := s.svc.Handle(r.Context(), req)
	s.metrics.RecordAction(req.Action, resp.Error != "")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, service.Response{Error: "invalid JSON: " + err.Error()})
		return
	}
	s.dispatch(w, r, req)
}

func (s *Server) recentReviewers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.dispatch(w, r, service.Request{
		Action: service.ActionRecentReviewers,
		Owner:  vars["owner"],
		Repo:   vars["repo"],
		Author: r.URL.Query().Get("author"),
	})
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.dispatch(w, r, service.Request{
		Action:       service.ActionPRDetailsAndSuggest,
		Owner:        vars["owner"],
		Repo:         vars["repo"],
		PRNumber:     prNumber(vars["number"]),
		LoggedInUser: r.URL.Query().Get("user"),
	})
}

// requestReviewers accepts {"reviewer": "login"} or {"reviewers": ["a", "b"]}.
func (s *Server) requestReviewers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reviewer  string   `json:"reviewer"`
		Reviewers []string `json:"reviewers"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, service.Response{Error: "invalid JSON: " + err.Error()})
		return
	}

	vars := mux.Vars(r)
	req := service.Request{
		Action:        service.ActionRequestReview,
		Owner:         vars["owner"],
		Repo:          vars["repo"],
		PRNumber:      prNumber(vars["number"]),
		ReviewerLogin: body.Reviewer,
	}
	if len(body.Reviewers) > 0 {
		req.Action = service.ActionRequestAllReviews
		req.ReviewerLogins = body.Reviewers
	}
	s.dispatch(w, r, req)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Stats
	}{Status: "ok", Stats: s.metrics.Stats()})
}

func prNumber(s string) service.PRNumber {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return service.PRNumber(n)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "component", "http", "error", err)
	}
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("HTTP request served", "component", "http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
