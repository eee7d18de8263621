package quota

import (
	"testing"
	"time"
)

func testCeilings() map[string]int {
	return map[string]int{ScopeInsight: 50, ScopeCOA: 10}
}

func TestCheck_FullBudgetInitially(t *testing.T) {
	s := NewStore(testCeilings())

	allowed, remaining := s.Check("ks_test", ScopeInsight)
	if !allowed {
		t.Error("Check() allowed = false for fresh installation")
	}
	if remaining != 50 {
		t.Errorf("remaining = %d, want 50", remaining)
	}
}

func TestCheck_ReadOnly(t *testing.T) {
	s := NewStore(testCeilings())

	_, first := s.Check("ks_test", ScopeInsight)
	_, second := s.Check("ks_test", ScopeInsight)
	if first != second {
		t.Errorf("two Checks without an Increment disagree: %d vs %d", first, second)
	}
}

func TestIncrement_CountsDown(t *testing.T) {
	s := NewStore(testCeilings())

	for i := 0; i < 3; i++ {
		s.Increment("ks_test", ScopeInsight)
	}

	_, remaining := s.Check("ks_test", ScopeInsight)
	if remaining != 47 {
		t.Errorf("remaining = %d after 3 increments, want 47", remaining)
	}
}

func TestCheck_DeniesAtCeiling(t *testing.T) {
	s := NewStore(testCeilings())

	for i := 0; i < 50; i++ {
		s.Increment("ks_test", ScopeInsight)
	}

	allowed, remaining := s.Check("ks_test", ScopeInsight)
	if allowed {
		t.Error("Check() allowed = true at ceiling")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d at ceiling, want 0", remaining)
	}
}

func TestScopes_Independent(t *testing.T) {
	s := NewStore(testCeilings())

	for i := 0; i < 10; i++ {
		s.Increment("ks_test", ScopeCOA)
	}

	if allowed, _ := s.Check("ks_test", ScopeCOA); allowed {
		t.Error("COA scope should be exhausted")
	}
	if allowed, remaining := s.Check("ks_test", ScopeInsight); !allowed || remaining != 50 {
		t.Errorf("insight scope affected by COA usage: allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestInstallations_Independent(t *testing.T) {
	s := NewStore(testCeilings())

	s.Increment("ks_a", ScopeInsight)

	if _, remaining := s.Check("ks_b", ScopeInsight); remaining != 50 {
		t.Errorf("installation b remaining = %d, want 50", remaining)
	}
}

func TestDayBoundary_LazyReset(t *testing.T) {
	current := time.Date(2025, 3, 1, 23, 0, 0, 0, time.Local)
	s := NewStoreWithClock(testCeilings(), func() time.Time { return current })

	for i := 0; i < 50; i++ {
		s.Increment("ks_test", ScopeInsight)
	}
	if allowed, _ := s.Check("ks_test", ScopeInsight); allowed {
		t.Fatal("should be exhausted before midnight")
	}

	// Cross midnight; no scheduled job runs, the next read must self-reset
	current = current.Add(2 * time.Hour)

	allowed, remaining := s.Check("ks_test", ScopeInsight)
	if !allowed || remaining != 50 {
		t.Errorf("after day boundary: allowed=%v remaining=%d, want true/50", allowed, remaining)
	}

	// Increment must also re-derive the day on its own
	s.Increment("ks_test", ScopeInsight)
	if _, remaining := s.Check("ks_test", ScopeInsight); remaining != 49 {
		t.Errorf("remaining = %d after first increment of new day, want 49", remaining)
	}
}

func TestIncrement_ResetsWithoutPriorCheck(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	s := NewStoreWithClock(testCeilings(), func() time.Time { return current })

	s.Increment("ks_test", ScopeInsight)
	s.Increment("ks_test", ScopeInsight)

	current = current.AddDate(0, 0, 1)

	// Straight to Increment on the new day, no Check in between
	s.Increment("ks_test", ScopeInsight)

	if _, remaining := s.Check("ks_test", ScopeInsight); remaining != 49 {
		t.Errorf("remaining = %d, want 49 (yesterday's usage discarded)", remaining)
	}
}
