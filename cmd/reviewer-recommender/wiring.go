package main

import (
	"context"

	"go.trai.ch/zerr"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/cache/postgres"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/config"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/github"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/reviewer"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/service"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/settings"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	github *github.Client
	svc    *service.Service
	close  func() error
}

func (c *CLI) settingsStore() (*settings.FileStore, error) {
	path := c.opts.settingsPath
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.NewFileStore(path), nil
}

func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.opts.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// newApp wires the cache, credential source, GitHub client, finder and
// service from configuration.
func (c *CLI) newApp(ctx context.Context) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.settingsStore()
	if err != nil {
		return nil, err
	}

	tokens, err := newTokenSource(cfg, store)
	if err != nil {
		return nil, err
	}

	cc, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gh, err := github.New(github.Config{
		Tokens:        tokens,
		Cache:         cc,
		BaseURL:       cfg.GitHubAPIURL,
		HTTPTimeout:   cfg.HTTPTimeout,
		RetryAttempts: cfg.RetryAttempts,
	})
	if err != nil {
		_ = closeCache() //nolint:errcheck // already failing
		return nil, zerr.Wrap(err, "failed to create GitHub client")
	}

	finder := reviewer.New(gh, reviewer.Config{
		Cache:          cc,
		RecentPRs:      cfg.RecentPRs,
		MaxConcurrency: cfg.MaxConcurrency,
	})

	return &app{
		cfg:    cfg,
		github: gh,
		svc:    service.New(gh, finder, service.WithMaxConcurrency(cfg.MaxConcurrency)),
		close:  closeCache,
	}, nil
}

// newTokenSource prefers GitHub App credentials when configured, otherwise
// the stored PAT followed by $GITHUB_TOKEN.
func newTokenSource(cfg *config.Config, store *settings.FileStore) (github.TokenSource, error) {
	if !cfg.App.Enabled() {
		return github.ChainTokenSource{store, github.EnvTokenSource{}}, nil
	}

	key, err := github.ReadPrivateKeyFile(cfg.App.KeyPath)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read app private key"), "path", cfg.App.KeyPath)
	}
	src, err := github.NewAppTokenSource(github.AppConfig{
		AppID:          cfg.App.ID,
		BaseURL:        cfg.GitHubAPIURL,
		PrivateKey:     key,
		InstallationID: cfg.App.InstallationID,
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid GitHub App configuration"), "app_id", cfg.App.ID)
	}
	return src, nil
}

func newCache(ctx context.Context, cfg *config.Config) (*cache.Cache, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache {
	case config.CacheMemory:
		return cache.NewMemory(), noop, nil

	case config.CachePostgres:
		store, err := postgres.NewFromDSN(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to open postgres cache")
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close() //nolint:errcheck // already failing
			return nil, nil, zerr.Wrap(err, "failed to migrate postgres cache")
		}
		return cache.New(store), store.Close, nil

	default:
		dir := cfg.CacheDir
		if dir == "" {
			var err error
			if dir, err = config.DefaultCacheDir(); err != nil {
				return nil, nil, err
			}
		}
		store, err := cache.NewDiskStore(dir)
		if err != nil {
			return nil, nil, zerr.With(zerr.Wrap(err, "failed to open disk cache"), "dir", dir)
		}
		return cache.New(store), noop, nil
	}
}
