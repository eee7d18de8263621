package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kushscan/kushscan/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleInsight() *domain.InsightResponse {
	return &domain.InsightResponse{
		Effects: []string{"relaxed", "euphoric"},
		Dosing:  domain.Dosing{Suggestion: "Start with one puff"},
		Tier:    "tier1",
	}
}

func TestInstallationID_GenerateOnce(t *testing.T) {
	s := newTestStore(t)

	first, err := s.InstallationID()
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if !strings.HasPrefix(first, "ks_") {
		t.Errorf("expected ks_ prefix, got %q", first)
	}

	second, err := s.InstallationID()
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if first != second {
		t.Errorf("installation id must be stable: %q vs %q", first, second)
	}
}

func TestPreferences_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	prefs, err := s.Preferences()
	if err != nil {
		t.Fatalf("read before onboarding failed: %v", err)
	}
	if prefs != nil {
		t.Fatal("expected nil preferences before onboarding")
	}

	want := &domain.UserPreferences{
		ExperienceLevel:    "beginner",
		DesiredEffects:     []string{"sleep", "relaxation"},
		THCSensitivity:     "low",
		OnboardingComplete: true,
	}
	if err := s.SetPreferences(want); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := s.Preferences()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got == nil || got.ExperienceLevel != "beginner" || len(got.DesiredEffects) != 2 || !got.OnboardingComplete {
		t.Errorf("preferences did not round-trip: %+v", got)
	}
}

func TestAgeVerified(t *testing.T) {
	s := newTestStore(t)

	verified, err := s.AgeVerified()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if verified {
		t.Error("age gate should default to false")
	}

	if err := s.SetAgeVerified(true); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	verified, err = s.AgeVerified()
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if !verified {
		t.Error("expected age gate true after set")
	}
}

func TestCachedInsight_MissAndHit(t *testing.T) {
	s := newTestStore(t)
	fp := domain.Fingerprint("Blue Dream", domain.CategoryFlower)

	if _, err := s.CachedInsight(fp); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	if err := s.SetCachedInsight(fp, sampleInsight(), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := s.CachedInsight(fp)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got.Effects) != 2 || got.Tier != "tier1" {
		t.Errorf("insight did not round-trip: %+v", got)
	}
}

func TestCachedInsight_ExpiredReadPrunes(t *testing.T) {
	s := newTestStore(t)
	fp := domain.Fingerprint("Blue Dream", domain.CategoryFlower)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	if err := s.SetCachedInsight(fp, sampleInsight(), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Still valid just inside the TTL
	current = base.Add(59 * time.Minute)
	if _, err := s.CachedInsight(fp); err != nil {
		t.Fatalf("read inside TTL failed: %v", err)
	}

	// First read past the TTL misses and prunes
	current = base.Add(2 * time.Hour)
	if _, err := s.CachedInsight(fp); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected miss past TTL, got %v", err)
	}

	// Second read misses because the row is gone, even at the old time
	current = base
	if _, err := s.CachedInsight(fp); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected miss after prune, got %v", err)
	}
}

func TestSetCachedInsight_Overwrites(t *testing.T) {
	s := newTestStore(t)
	fp := domain.Fingerprint("Blue Dream", domain.CategoryFlower)

	if err := s.SetCachedInsight(fp, sampleInsight(), time.Hour); err != nil {
		t.Fatalf("first set failed: %v", err)
	}

	updated := sampleInsight()
	updated.Tier = "tier2"
	if err := s.SetCachedInsight(fp, updated, time.Hour); err != nil {
		t.Fatalf("second set failed: %v", err)
	}

	got, err := s.CachedInsight(fp)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Tier != "tier2" {
		t.Errorf("expected overwrite to win, got tier %q", got.Tier)
	}
}

func TestCheckQuota_ReadOnly(t *testing.T) {
	s := newTestStore(t)

	if err := s.IncrementUsage(ScopeInsight); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	_, first, err := s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	_, second, err := s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if first != second {
		t.Errorf("check must not mutate state: remaining went %d to %d", first, second)
	}
	if first != 49 {
		t.Errorf("expected 49 remaining, got %d", first)
	}
}

func TestQuota_DenyAtCeiling(t *testing.T) {
	s := newTestStore(t)
	s.ceilings = map[string]int{ScopeInsight: 2, ScopeCOA: 10}

	for i := 0; i < 2; i++ {
		allowed, _, err := s.CheckQuota(ScopeInsight)
		if err != nil || !allowed {
			t.Fatalf("call %d should be allowed, err=%v", i+1, err)
		}
		if err := s.IncrementUsage(ScopeInsight); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	allowed, remaining, err := s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if allowed || remaining != 0 {
		t.Errorf("expected deny with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}

	// COA scope is a separate partition
	allowed, _, err = s.CheckQuota(ScopeCOA)
	if err != nil || !allowed {
		t.Errorf("coa scope should be unaffected, allowed=%v err=%v", allowed, err)
	}
}

func TestQuota_LazyDayReset(t *testing.T) {
	s := newTestStore(t)

	current := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		if err := s.IncrementUsage(ScopeInsight); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	_, remaining, err := s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if remaining != 45 {
		t.Fatalf("expected 45 remaining before midnight, got %d", remaining)
	}

	// Cross midnight: usage is treated as zero with no scheduled reset
	current = current.Add(2 * time.Hour)
	_, remaining, err = s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("check after midnight failed: %v", err)
	}
	if remaining != 50 {
		t.Errorf("expected full budget after day boundary, got %d", remaining)
	}

	// Increment re-derives the day on its own
	if err := s.IncrementUsage(ScopeInsight); err != nil {
		t.Fatalf("increment after midnight failed: %v", err)
	}
	_, remaining, err = s.CheckQuota(ScopeInsight)
	if err != nil {
		t.Fatalf("final check failed: %v", err)
	}
	if remaining != 49 {
		t.Errorf("expected 49 after first increment of new day, got %d", remaining)
	}
}
