package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/github"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/monitor"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/server"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/service"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/settings"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// handle wires the app for a single message and closes it afterwards.
func (c *CLI) handle(ctx context.Context, req service.Request) (service.Response, error) {
	a, err := c.newApp(ctx)
	if err != nil {
		return service.Response{}, err
	}
	defer a.close() //nolint:errcheck // best-effort on exit

	resp := a.svc.Handle(ctx, req)
	if c.opts.json {
		if err := writeJSON(c.out, resp); err != nil {
			return resp, zerr.Wrap(err, "failed to write response")
		}
	}
	return resp, nil
}

func (c *CLI) newSuggestCmd() *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "suggest OWNER/REPO",
		Short: "List people who reviewed an author's recent merged pull requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := types.ParseRepo(args[0])
			if err != nil {
				return err
			}
			resp, err := c.handle(cmd.Context(), service.Request{
				Action: service.ActionRecentReviewers,
				Owner:  owner,
				Repo:   repo,
				Author: author,
			})
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			if !c.opts.json {
				fmt.Fprint(c.out, formatHeader(fmt.Sprintf("%s/%s by @%s", owner, repo, author)))
				fmt.Fprint(c.out, formatReviewers(resp.Reviewers, nil, nil))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "PR author whose history is used")
	_ = cmd.MarkFlagRequired("author") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *CLI) newPRCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "pr PR_URL|OWNER/REPO#N",
		Short: "Suggest reviewers for a pull request you authored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := types.ParsePullRequestRef(args[0])
			if err != nil {
				return err
			}
			resp, err := c.handle(cmd.Context(), service.Request{
				Action:       service.ActionPRDetailsAndSuggest,
				Owner:        ref.Owner,
				Repo:         ref.Repo,
				PRNumber:     service.PRNumber(ref.Number),
				LoggedInUser: user,
			})
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			if c.opts.json {
				return nil
			}
			fmt.Fprint(c.out, formatHeader("PR "+ref.String()))
			if resp.SuggestionsApplicable == nil || !*resp.SuggestionsApplicable {
				fmt.Fprintf(c.out, "\n  @%s is not the author; no suggestions.\n", user)
				return nil
			}
			fmt.Fprint(c.out, formatReviewers(resp.Reviewers, resp.CurrentRequestedReviewers, resp.SubmittedReviewerLogins))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Login of the person viewing the PR")
	_ = cmd.MarkFlagRequired("user") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *CLI) newRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request PR_URL|OWNER/REPO#N LOGIN",
		Short: "Request a review from one person",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := types.ParsePullRequestRef(args[0])
			if err != nil {
				return err
			}
			resp, err := c.handle(cmd.Context(), service.Request{
				Action:        service.ActionRequestReview,
				Owner:         ref.Owner,
				Repo:          ref.Repo,
				PRNumber:      service.PRNumber(ref.Number),
				ReviewerLogin: args[1],
			})
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			if !c.opts.json {
				fmt.Fprintf(c.out, "\n  ✅ Requested review from @%s on %s\n", args[1], ref)
			}
			return nil
		},
	}
}

func (c *CLI) newRequestAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request-all PR_URL|OWNER/REPO#N LOGIN...",
		Short: "Request reviews from everyone listed who has not been asked or reviewed yet",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := types.ParsePullRequestRef(args[0])
			if err != nil {
				return err
			}
			resp, err := c.handle(cmd.Context(), service.Request{
				Action:         service.ActionRequestAllReviews,
				Owner:          ref.Owner,
				Repo:           ref.Repo,
				PRNumber:       service.PRNumber(ref.Number),
				ReviewerLogins: args[1:],
			})
			if err != nil {
				return err
			}
			if !c.opts.json && len(resp.Results) > 0 {
				fmt.Fprint(c.out, formatResults(resp.Results))
			}
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			if resp.Success == nil || !*resp.Success {
				return errors.New("some review requests failed")
			}
			return nil
		},
	}
}

func (c *CLI) newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored GitHub personal access token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set TOKEN",
		Short: "Validate and store a personal access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := c.settingsStore()
			if err != nil {
				return err
			}
			if err := store.SetToken(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Token saved to %s\n", store.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := c.settingsStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Token cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored token, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.settingsStore()
			if err != nil {
				return err
			}
			token, err := store.Token(cmd.Context())
			if errors.Is(err, github.ErrCredentialMissing) {
				fmt.Fprintln(c.out, "No token set")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, settings.Mask(token))
			return nil
		},
	})

	return cmd
}

func (c *CLI) newServeCmd() *cobra.Command {
	var addr, watchOrg string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the message API over HTTP, optionally refreshing PRs from live events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(c.errOut, c.opts.verbose, true)
			ctx := cmd.Context()

			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close() //nolint:errcheck // best-effort on exit

			if addr == "" {
				addr = a.cfg.Addr
			}
			if watchOrg == "" {
				watchOrg = a.cfg.WatchOrg
			}

			metrics := server.NewMetrics()
			srv := server.New(a.svc, metrics)

			var mon *monitor.Controller
			if watchOrg != "" {
				mon, err = monitor.New(a.github, monitor.Config{
					Org:           watchOrg,
					Recorder:      metrics,
					RetryAttempts: uint(a.cfg.RetryAttempts),
				})
				if err != nil {
					return zerr.With(zerr.Wrap(err, "failed to create event monitor"), "org", watchOrg)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, addr)
			})
			if mon != nil {
				g.Go(func() error {
					return mon.Run(gctx)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8080; callers are not authenticated)")
	cmd.Flags().StringVar(&watchOrg, "watch-org", "", "Organization whose pull_request events refresh the cache")
	return cmd
}
