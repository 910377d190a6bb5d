package cache

import (
	"fmt"
	"time"
)

// Recommended TTLs for the cached data types.
const (
	// TTLSuggestions is for computed reviewer suggestion lists.
	TTLSuggestions = 15 * time.Minute

	// TTLPRDetails is for pull request detail payloads.
	TTLPRDetails = 60 * time.Minute
)

// PRDetailsKey is the cache key for a pull request's details.
func PRDetailsKey(owner, repo string, prNumber int) string {
	return fmt.Sprintf("pr_details_%s_%s_%d", owner, repo, prNumber)
}

// SuggestionsKey is the cache key for suggestions computed by the aggregator.
func SuggestionsKey(owner, repo, author string) string {
	return fmt.Sprintf("suggestions_%s_%s_%s", owner, repo, author)
}

// DirectSuggestionsKey is the cache key for suggestions served by the
// getRecentReviewers action.
func DirectSuggestionsKey(owner, repo, author string) string {
	return fmt.Sprintf("suggestions_direct_%s_%s_%s", owner, repo, author)
}
