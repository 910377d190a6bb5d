// Package monitor keeps cached pull request details fresh by watching
// pull_request events from the sprinkler hub.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

const (
	eventTypePullRequest = "pull_request"
	defaultDebounce      = 300 * time.Millisecond
	defaultDedupWindow   = 5 * time.Second
	eventMapMaxSize      = 1000
	eventMapCleanupAge   = time.Hour
	prewarmMaxDelay      = 10 * time.Second
	reconnectBackoff     = 30 * time.Second
	maxReconnectBackoff  = 5 * time.Minute
)

// GitHub is the part of the GitHub client the watcher uses.
type GitHub interface {
	Token(ctx context.Context) (string, error)
	PullRequest(ctx context.Context, owner, repo string, prNumber int) (*types.PullRequest, error)
	InvalidatePullRequest(ctx context.Context, owner, repo string, prNumber int)
}

// Recorder receives watcher activity. server.Metrics satisfies it.
type Recorder interface {
	RecordPRSeen(owner, repo string, prNumber int)
	RecordPRRefreshed(owner, repo string, prNumber int)
}

// Config configures a Controller.
type Config struct {
	Recorder      Recorder
	Now           func() time.Time
	Org           string
	Debounce      time.Duration
	DedupWindow   time.Duration
	RetryAttempts uint
}

// pending is a scheduled refresh for one pull request.
type pending struct {
	timer *time.Timer
}

// Controller subscribes to one organization's PR events and refreshes the
// affected cache entries.
type Controller struct {
	github    GitHub
	recorder  Recorder
	now       func() time.Time
	wsClient  *client.Client
	lastEvent map[string]time.Time
	timers    map[string]*pending
	org       string
	wg        sync.WaitGroup
	debounce  time.Duration
	dedup     time.Duration
	attempts  uint
	mu        sync.Mutex
	// refreshing is held while a prewarm runs; overlapping prewarms are skipped.
	refreshing atomic.Bool
	connected  atomic.Bool
}

// New creates a Controller.
func New(gh GitHub, cfg Config) (*Controller, error) {
	if gh == nil {
		return nil, errors.New("github client is required")
	}
	if cfg.Org == "" {
		return nil, errors.New("organization is required")
	}
	c := &Controller{
		github:    gh,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
		org:       cfg.Org,
		debounce:  cfg.Debounce,
		dedup:     cfg.DedupWindow,
		attempts:  cfg.RetryAttempts,
		lastEvent: make(map[string]time.Time),
		timers:    make(map[string]*pending),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.debounce <= 0 {
		c.debounce = defaultDebounce
	}
	if c.dedup <= 0 {
		c.dedup = defaultDedupWindow
	}
	if c.attempts == 0 {
		c.attempts = 1
	}
	return c, nil
}

// Connected reports whether the event stream is currently connected.
func (c *Controller) Connected() bool {
	return c.connected.Load()
}

// Run subscribes to events until ctx is canceled. The sprinkler client
// reconnects on its own; Run only restarts it when it gives up.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("Starting event monitor for org", "component", "sprinkler", "org", c.org)
	defer c.Stop()

	attempts := 0
	for {
		err := c.connect(ctx)
		if ctx.Err() != nil {
			slog.Info("Event monitor stopped", "component", "sprinkler", "org", c.org)
			return nil
		}

		backoff := reconnectBackoff
		if err != nil {
			attempts++
			backoff = min(reconnectBackoff*time.Duration(attempts), maxReconnectBackoff)
			slog.Warn("WebSocket client gave up, will restart after backoff",
				"component", "sprinkler", "org", c.org, "attempt", attempts, "backoff", backoff, "error", err)
		} else {
			attempts = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func (c *Controller) connect(ctx context.Context) error {
	ws, err := client.New(client.Config{
		ServerURL:      "wss://" + client.DefaultServerAddress + "/ws",
		Organization:   c.org,
		TokenProvider:  c.tokenProvider(ctx),
		EventTypes:     []string{eventTypePullRequest},
		UserEventsOnly: false,
		Verbose:        false,
		NoReconnect:    false,
		OnConnect: func() {
			c.connected.Store(true)
			slog.Info("WebSocket connected", "component", "sprinkler", "org", c.org)
		},
		OnDisconnect: func(err error) {
			wasConnected := c.connected.Swap(false)
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "org", c.org, "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			c.handleEvent(ctx, event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	c.mu.Lock()
	c.wsClient = ws
	c.mu.Unlock()

	start := time.Now()
	if err := ws.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error",
			"component", "sprinkler", "org", c.org, "uptime", time.Since(start).Round(time.Second), "error", err)
		return err
	}
	return nil
}

func (c *Controller) tokenProvider(ctx context.Context) func() (string, error) {
	return func() (string, error) {
		token, err := c.github.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get token: %w", err)
		}
		return token, nil
	}
}

// handleEvent dedupes an event and schedules a debounced refresh of its PR.
func (c *Controller) handleEvent(ctx context.Context, event client.Event) {
	if event.Type != eventTypePullRequest {
		return
	}
	if event.URL == "" {
		slog.Warn("Received PR event with empty URL", "component", "sprinkler")
		return
	}
	ref, err := types.ParsePullRequestRef(event.URL)
	if err != nil {
		slog.Warn("Failed to parse PR URL", "component", "sprinkler", "url", event.URL, "error", err)
		return
	}
	if ref.Owner != c.org {
		slog.Debug("Ignoring event for different org", "component", "sprinkler", "event_org", ref.Owner, "monitor_org", c.org)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.lastEvent[event.URL]; ok && now.Sub(last) < c.dedup {
		return
	}
	c.lastEvent[event.URL] = now
	if len(c.lastEvent) > eventMapMaxSize {
		cutoff := now.Add(-eventMapCleanupAge)
		for u, ts := range c.lastEvent {
			if ts.Before(cutoff) {
				delete(c.lastEvent, u)
			}
		}
	}

	if c.recorder != nil {
		c.recorder.RecordPRSeen(ref.Owner, ref.Repo, ref.Number)
	}
	slog.Info("PR event received", "component", "sprinkler", "url", event.URL, "org", c.org)

	key := ref.String()
	if p, ok := c.timers[key]; ok && p.timer.Stop() {
		p.timer.Reset(c.debounce)
		return
	}
	p := &pending{}
	c.wg.Add(1)
	p.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.mu.Lock()
		if c.timers[key] == p {
			delete(c.timers, key)
		}
		c.mu.Unlock()
		c.refresh(ctx, ref)
	})
	c.timers[key] = p
}

// refresh drops the cached details for ref and fetches them again unless
// another refresh is in flight.
func (c *Controller) refresh(ctx context.Context, ref types.PullRequestRef) {
	if ctx.Err() != nil {
		return
	}
	c.github.InvalidatePullRequest(ctx, ref.Owner, ref.Repo, ref.Number)

	if !c.refreshing.CompareAndSwap(false, true) {
		slog.Debug("Refresh already running, skipping prewarm", "component", "sprinkler", "pr", ref.String())
		return
	}
	defer c.refreshing.Store(false)

	start := time.Now()
	err := retry.Do(func() error {
		_, err := c.github.PullRequest(ctx, ref.Owner, ref.Repo, ref.Number)
		return err
	},
		retry.Attempts(c.attempts),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxDelay(prewarmMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retrying PR prewarm", "component", "sprinkler", "attempt", n+1, "pr", ref.String(), "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		slog.Error("Failed to prewarm PR details", "component", "sprinkler", "pr", ref.String(), "error", err)
		return
	}

	if c.recorder != nil {
		c.recorder.RecordPRRefreshed(ref.Owner, ref.Repo, ref.Number)
	}
	slog.Info("Refreshed PR details", "component", "sprinkler", "pr", ref.String(), "elapsed", time.Since(start).Round(time.Millisecond))
}

// Wait blocks until every scheduled refresh has run.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stop cancels pending refreshes and closes the event stream.
func (c *Controller) Stop() {
	c.mu.Lock()
	for key, p := range c.timers {
		if p.timer.Stop() {
			c.wg.Done()
		}
		delete(c.timers, key)
	}
	ws := c.wsClient
	c.wsClient = nil
	c.mu.Unlock()

	if ws != nil {
		ws.Stop()
	}
}
