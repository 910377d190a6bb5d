package reviewer

import (
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/reviewer-recommender/pkg/types"
)

// IsBot reports whether login belongs to a GitHub App bot account.
func IsBot(login string) bool {
	return strings.HasSuffix(login, botSuffix)
}

// loginSet collects distinct logins.
type loginSet map[string]struct{}

func (s loginSet) add(logins ...string) {
	for _, l := range logins {
		if l != "" {
			s[l] = struct{}{}
		}
	}
}

// sorted returns the logins in alphabetical order.
func (s loginSet) sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// HumanLogins returns logins in input order with duplicates,
// bots and the excluded login removed.
func HumanLogins(logins []string, exclude string) []string {
	seen := make(loginSet, len(logins))
	out := make([]string, 0, len(logins))
	for _, l := range logins {
		if l == "" || l == exclude || IsBot(l) {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen.add(l)
		out = append(out, l)
	}
	return out
}

// merge combines per-PR login lists into the final suggestion list.
func merge(lists [][]string, author string) []types.Reviewer {
	set := make(loginSet)
	for _, logins := range lists {
		for _, l := range logins {
			if l == author || IsBot(l) {
				continue
			}
			set.add(l)
		}
	}

	logins := set.sorted()
	reviewers := make([]types.Reviewer, 0, len(logins))
	for _, l := range logins {
		reviewers = append(reviewers, types.NewReviewer(l))
	}
	return reviewers
}
