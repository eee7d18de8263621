package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kushscan/kushscan/internal/domain"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	insight := &domain.InsightResponse{
		Effects: []string{"relaxed", "euphoric"},
		Dosing:  domain.Dosing{Suggestion: "start with one puff"},
		Tier:    "tier1",
	}

	key := domain.Fingerprint("Blue Dream", domain.CategoryFlower)
	if err := cache.Set(ctx, key, insight, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Effects) != 2 || got.Effects[0] != "relaxed" {
		t.Errorf("Get() effects = %v, want [relaxed euphoric]", got.Effects)
	}
	if got.Tier != "tier1" {
		t.Errorf("Get() tier = %q, want tier1", got.Tier)
	}
}

func TestMemoryCache_Get_CacheMiss(t *testing.T) {
	cache := NewMemoryCache()

	_, err := cache.Get(context.Background(), "non-existent-key")
	if err != domain.ErrCacheMiss {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_ExpiredReadDeletes(t *testing.T) {
	current := time.Now()
	cache := newMemoryCacheWithClock(func() time.Time { return current })
	ctx := context.Background()

	key := "stale-key"
	if err := cache.Set(ctx, key, &domain.InsightResponse{}, 24*time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Fresh read within TTL
	if _, err := cache.Get(ctx, key); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}
	if cache.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", cache.Size())
	}

	// Cross the TTL boundary; the read itself must prune the entry
	current = current.Add(24*time.Hour + time.Second)
	if _, err := cache.Get(ctx, key); err != domain.ErrCacheMiss {
		t.Errorf("Get() after expiry error = %v, want %v", err, domain.ErrCacheMiss)
	}
	if cache.Size() != 0 {
		t.Errorf("Size() = %d after expired read, want 0 (lazy prune)", cache.Size())
	}
}

func TestMemoryCache_SetOverwrites(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := "overwrite"
	if err := cache.Set(ctx, key, &domain.InsightResponse{Tier: "tier1"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set(ctx, key, &domain.InsightResponse{Tier: "tier2"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Tier != "tier2" {
		t.Errorf("Tier = %q, want tier2 (unconditional overwrite)", got.Tier)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := "delete-test"
	if err := cache.Set(ctx, key, &domain.InsightResponse{}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	if _, err := cache.Get(ctx, key); err != domain.ErrCacheMiss {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := string(rune('a' + id))
			if err := cache.Set(ctx, key, &domain.InsightResponse{}, time.Minute); err != nil {
				t.Errorf("Concurrent Set() error = %v", err)
			}
			if _, err := cache.Get(ctx, key); err != nil {
				t.Errorf("Concurrent Get() error = %v", err)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
