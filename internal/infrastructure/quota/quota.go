// Package quota tracks per-installation daily usage counters. Counters are
// process-local and last-write-wins: a small amount of over-admission under
// concurrent requests is acceptable, added synchronization latency is not.
package quota

import (
	"sync"
	"time"
)

// Scopes partition the daily budget. Insight and COA calls never share a counter.
const (
	ScopeInsight = "insight"
	ScopeCOA     = "coa"
)

type counter struct {
	usedToday int
	resetDate string // local calendar day, ISO format
}

// Store holds daily counters keyed by (installationID, scope).
type Store struct {
	mutex    sync.Mutex
	counters map[string]counter
	ceilings map[string]int
	now      func() time.Time
}

// NewStore creates a quota store with per-scope daily ceilings.
func NewStore(ceilings map[string]int) *Store {
	return NewStoreWithClock(ceilings, time.Now)
}

// NewStoreWithClock creates a quota store with an injected clock for tests.
func NewStoreWithClock(ceilings map[string]int, now func() time.Time) *Store {
	return &Store{
		counters: make(map[string]counter),
		ceilings: ceilings,
		now:      now,
	}
}

func (s *Store) key(installationID, scope string) string {
	return installationID + "|" + scope
}

func (s *Store) today() string {
	return s.now().Format("2006-01-02")
}

// Check reports whether another call is allowed and how many remain.
// A stored reset date that is not today reads as zero usage, but Check never
// writes the reset: read-only calls must not mutate state.
func (s *Store) Check(installationID, scope string) (bool, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ceiling := s.ceilings[scope]
	c := s.counters[s.key(installationID, scope)]

	used := c.usedToday
	if c.resetDate != s.today() {
		used = 0
	}

	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining > 0, remaining
}

// Increment records one use. It re-derives the day boundary itself rather
// than assuming Check was just called.
func (s *Store) Increment(installationID, scope string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := s.key(installationID, scope)
	today := s.today()

	c := s.counters[key]
	if c.resetDate != today {
		c = counter{usedToday: 0, resetDate: today}
	}
	c.usedToday++
	s.counters[key] = c
}
