package server

import (
	"fmt"
	"sync"
	"time"
)

// Metrics tracks counters for the health endpoint.
type Metrics struct {
	start        time.Time
	lastEvent    time.Time
	actions      map[string]int64
	prsSeen      map[string]bool
	prsRefreshed map[string]bool
	errors       int64
	mu           sync.RWMutex
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		start:        time.Now(),
		actions:      make(map[string]int64),
		prsSeen:      make(map[string]bool),
		prsRefreshed: make(map[string]bool),
	}
}

// RecordAction records a handled message and whether it reported an error.
func (m *Metrics) RecordAction(action string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[action]++
	if failed {
		m.errors++
	}
}

// RecordPRSeen records a pull request event.
func (m *Metrics) RecordPRSeen(owner, repo string, prNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prsSeen[fmt.Sprintf("%s/%s#%d", owner, repo, prNumber)] = true
	m.lastEvent = time.Now()
}

// RecordPRRefreshed records a pull request whose cached details were refreshed.
func (m *Metrics) RecordPRRefreshed(owner, repo string, prNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prsRefreshed[fmt.Sprintf("%s/%s#%d", owner, repo, prNumber)] = true
}

// Stats represents collected metrics.
type Stats struct {
	Start        time.Time        `json:"start"`
	LastEvent    time.Time        `json:"last_event,omitzero"`
	Actions      map[string]int64 `json:"actions"`
	Requests     int64            `json:"requests"`
	Errors       int64            `json:"errors"`
	PRsSeen      int              `json:"prs_seen"`
	PRsRefreshed int              `json:"prs_refreshed"`
}

// Stats returns the current statistics.
func (m *Metrics) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make(map[string]int64, len(m.actions))
	var total int64
	for k, v := range m.actions {
		actions[k] = v
		total += v
	}
	return Stats{
		Start:        m.start,
		LastEvent:    m.lastEvent,
		Actions:      actions,
		Requests:     total,
		Errors:       m.errors,
		PRsSeen:      len(m.prsSeen),
		PRsRefreshed: len(m.prsRefreshed),
	}
}
