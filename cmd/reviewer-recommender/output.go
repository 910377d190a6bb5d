package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/service"
	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// formatHeader formats a boxed title line.
func formatHeader(title string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("  " + title + "\n")
	b.WriteString(rule)
	return b.String()
}

// formatReviewers lists suggestions, marking people already requested or
// who already reviewed.
func formatReviewers(reviewers []types.Reviewer, requested []types.User, reviewed []string) string {
	if len(reviewers) == 0 {
		return "\n  ⚠️  No recent reviewers found\n"
	}

	requestedLogins := make([]string, 0, len(requested))
	for _, u := range requested {
		requestedLogins = append(requestedLogins, u.Login)
	}

	var b strings.Builder
	b.WriteString("\n  🎯 Suggested reviewers:\n\n")
	for i, r := range reviewers {
		fmt.Fprintf(&b, "  %d. @%s", i+1, r.Login)
		switch {
		case slices.Contains(requestedLogins, r.Login):
			b.WriteString("  (requested)")
		case slices.Contains(reviewed, r.Login):
			b.WriteString("  (reviewed)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatResults summarizes a batch of review requests.
func formatResults(results []service.RequestResult) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range results {
		switch {
		case r.Skipped != "":
			fmt.Fprintf(&b, "  ⏭️  @%s skipped (already %s)\n", r.Login, r.Skipped)
		case r.Success:
			fmt.Fprintf(&b, "  ✅ @%s requested\n", r.Login)
		default:
			fmt.Fprintf(&b, "  ❌ @%s failed: %s\n", r.Login, r.Error)
		}
	}
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
