package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/detector"
	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/relay"
	"github.com/kushscan/kushscan/internal/store"
)

const productPage = `<html><body>
	<nav aria-label="breadcrumb">Shop / Flower</nav>
	<h1 data-testid="product-name">Blue Dream</h1>
</body></html>`

func parsePage(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("failed to parse markup: %v", err)
	}
	return doc
}

// fakeStore is an in-memory localStore.
type fakeStore struct {
	prefs      *domain.UserPreferences
	cache      map[string]*domain.InsightResponse
	quotaLeft  int
	increments int
	setCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: make(map[string]*domain.InsightResponse), quotaLeft: 50}
}

func (f *fakeStore) InstallationID() (string, error) { return "ks_test-install", nil }

func (f *fakeStore) Preferences() (*domain.UserPreferences, error) { return f.prefs, nil }

func (f *fakeStore) CachedInsight(fp string) (*domain.InsightResponse, error) {
	if insight, ok := f.cache[fp]; ok {
		return insight, nil
	}
	return nil, domain.ErrCacheMiss
}

func (f *fakeStore) SetCachedInsight(fp string, insight *domain.InsightResponse, ttl time.Duration) error {
	f.setCalls++
	f.cache[fp] = insight
	return nil
}

func (f *fakeStore) CheckQuota(scope string) (bool, int, error) {
	return f.quotaLeft > 0, f.quotaLeft, nil
}

func (f *fakeStore) IncrementUsage(scope string) error {
	f.increments++
	f.quotaLeft--
	return nil
}

// fakeAPI returns a canned insight and records requests.
type fakeAPI struct {
	insight  *domain.InsightResponse
	err      error
	requests []*domain.InsightRequest
	onCall   func()
}

func (f *fakeAPI) RequestInsight(ctx context.Context, req *domain.InsightRequest) (*domain.InsightResponse, error) {
	f.requests = append(f.requests, req)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.insight, nil
}

// fakeHub records broadcast messages.
type fakeHub struct {
	sent []relay.Message
}

func (f *fakeHub) Send(role relay.Role, msg relay.Message) int {
	f.sent = append(f.sent, msg)
	return 1
}

func newTestPipeline(st *fakeStore, api *fakeAPI, hub *fakeHub) *Pipeline {
	return NewPipeline(detector.NewChain(), detector.NewState(), st, api, hub, store.ClientCacheTTL)
}

func TestHandleDocument_FullFlow(t *testing.T) {
	st := newFakeStore()
	api := &fakeAPI{insight: &domain.InsightResponse{Effects: []string{"relaxed"}, Tier: "tier1"}}
	hub := &fakeHub{}
	p := newTestPipeline(st, api, hub)

	insight, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(insight.Effects) != 1 {
		t.Errorf("unexpected insight: %+v", insight)
	}

	if len(api.requests) != 1 {
		t.Fatalf("expected one backend call, got %d", len(api.requests))
	}
	req := api.requests[0]
	if req.InstallationID != "ks_test-install" {
		t.Errorf("installation id not threaded through, got %q", req.InstallationID)
	}
	if req.Product.Name != "Blue Dream" {
		t.Errorf("unexpected product %+v", req.Product)
	}

	if st.increments != 1 {
		t.Errorf("expected one usage increment, got %d", st.increments)
	}
	if st.setCalls != 1 {
		t.Errorf("expected one cache write, got %d", st.setCalls)
	}

	if len(hub.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(hub.sent))
	}
	if _, ok := hub.sent[0].(relay.ProductDetected); !ok {
		t.Errorf("expected ProductDetected broadcast, got %T", hub.sent[0])
	}
}

func TestHandleDocument_LocalCacheHitSkipsBackend(t *testing.T) {
	st := newFakeStore()
	fp := domain.Fingerprint("Blue Dream", domain.CategoryFlower)
	st.cache[fp] = &domain.InsightResponse{Effects: []string{"relaxed"}, Tier: "tier1"}

	api := &fakeAPI{}
	p := newTestPipeline(st, api, &fakeHub{})

	insight, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if !insight.Cached {
		t.Error("local hit should be marked cached")
	}
	if len(api.requests) != 0 {
		t.Errorf("local hit must not call the backend, got %d calls", len(api.requests))
	}
	if st.increments != 0 {
		t.Errorf("local hit must not burn quota, got %d increments", st.increments)
	}
}

func TestHandleDocument_QuotaGateBeforeBackend(t *testing.T) {
	st := newFakeStore()
	st.quotaLeft = 0
	api := &fakeAPI{}
	p := newTestPipeline(st, api, &fakeHub{})

	_, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Errorf("denied request must not reach the backend, got %d calls", len(api.requests))
	}
}

func TestHandleDocument_NoProduct(t *testing.T) {
	st := newFakeStore()
	api := &fakeAPI{}
	p := newTestPipeline(st, api, &fakeHub{})

	_, err := p.HandleDocument(context.Background(), parsePage(t, `<html><body><p>blog post</p></body></html>`), "https://blog.example.com/post")
	if !errors.Is(err, domain.ErrNoProduct) {
		t.Fatalf("expected ErrNoProduct, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Errorf("no product must mean no backend call, got %d", len(api.requests))
	}
}

func TestHandleDocument_StaleResponseDropped(t *testing.T) {
	st := newFakeStore()
	api := &fakeAPI{insight: &domain.InsightResponse{Effects: []string{"relaxed"}}}
	p := newTestPipeline(st, api, &fakeHub{})

	// Navigation happens while the backend call is in flight
	api.onCall = p.OnNavigate

	_, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale drop, got %v", err)
	}
	if st.setCalls != 0 {
		t.Errorf("stale response must not be cached, got %d writes", st.setCalls)
	}
	if st.increments != 0 {
		t.Errorf("stale response must not burn quota, got %d increments", st.increments)
	}
}

func TestHandleDocument_PreferencesForwarded(t *testing.T) {
	st := newFakeStore()
	st.prefs = &domain.UserPreferences{ExperienceLevel: "beginner", OnboardingComplete: true}
	api := &fakeAPI{insight: &domain.InsightResponse{Effects: []string{"relaxed"}}}
	p := newTestPipeline(st, api, &fakeHub{})

	_, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(api.requests) != 1 || api.requests[0].Preferences == nil {
		t.Fatal("stored preferences should be forwarded to the backend")
	}
	if api.requests[0].Preferences.ExperienceLevel != "beginner" {
		t.Errorf("preferences mangled: %+v", api.requests[0].Preferences)
	}
}

func TestHandleDocument_BackendErrorPropagates(t *testing.T) {
	st := newFakeStore()
	api := &fakeAPI{err: domain.ErrBackendUnavailable}
	p := newTestPipeline(st, api, &fakeHub{})

	_, err := p.HandleDocument(context.Background(), parsePage(t, productPage), "https://dutchie.com/product/blue-dream")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if st.setCalls != 0 {
		t.Error("failed request must not write the cache")
	}
}
