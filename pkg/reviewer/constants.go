// Package reviewer suggests reviewers from an author's recent merged pull requests.
package reviewer

// Configuration constants.
const (
	defaultRecentPRs      = 5  // Merged PRs examined per suggestion
	defaultMaxConcurrency = 10 // In-flight per-PR lookups
	botSuffix             = "[bot]"
)
