// Package agent glues the client-side pipeline together: parser chain,
// local store, backend client and relay hub.
package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/detector"
	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/relay"
	"github.com/kushscan/kushscan/internal/store"
)

// ErrStaleResponse marks an insight that arrived after the user navigated
// away. The pipeline drops it instead of caching or broadcasting it.
var ErrStaleResponse = errors.New("insight arrived after navigation")

// insightFetcher is the slice of APIClient the pipeline needs.
type insightFetcher interface {
	RequestInsight(ctx context.Context, req *domain.InsightRequest) (*domain.InsightResponse, error)
}

// localStore is the slice of store.Store the pipeline needs.
type localStore interface {
	InstallationID() (string, error)
	Preferences() (*domain.UserPreferences, error)
	CachedInsight(fingerprint string) (*domain.InsightResponse, error)
	SetCachedInsight(fingerprint string, insight *domain.InsightResponse, ttl time.Duration) error
	CheckQuota(scope string) (bool, int, error)
	IncrementUsage(scope string) error
}

// broadcaster is the slice of relay.Hub the pipeline needs.
type broadcaster interface {
	Send(role relay.Role, msg relay.Message) int
}

// Pipeline runs detection through to a cached, broadcast insight.
type Pipeline struct {
	chain     *detector.Chain
	state     *detector.State
	store     localStore
	api       insightFetcher
	hub       broadcaster
	clientTTL time.Duration

	mu    sync.Mutex
	epoch int
}

// NewPipeline wires the client pipeline. hub may be nil when running
// headless (the detect subcommand).
func NewPipeline(chain *detector.Chain, state *detector.State, st localStore, api insightFetcher, hub broadcaster, clientTTL time.Duration) *Pipeline {
	if clientTTL <= 0 {
		clientTTL = store.ClientCacheTTL
	}
	return &Pipeline{
		chain:     chain,
		state:     state,
		store:     st,
		api:       api,
		hub:       hub,
		clientTTL: clientTTL,
	}
}

// OnNavigate resets per-page state and invalidates in-flight requests.
func (p *Pipeline) OnNavigate() {
	p.state.Reset()
	p.mu.Lock()
	p.epoch++
	p.mu.Unlock()
}

func (p *Pipeline) currentEpoch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// HandleDocument runs the full client pipeline on one captured page:
// detect, local cache check, local quota gate, backend call, cache write,
// broadcast. Returns ErrNoProduct when the page has no product, and
// ErrStaleResponse when the answer arrived after a navigation.
func (p *Pipeline) HandleDocument(ctx context.Context, doc *html.Node, pageURL string) (*domain.InsightResponse, error) {
	record, pageText := p.chain.DetectAndParse(doc, pageURL)
	if record == nil {
		return nil, domain.ErrNoProduct
	}

	p.state.SetCurrent(record)
	p.broadcast(relay.ProductDetected{Product: record})

	fingerprint := domain.FingerprintRecord(record)

	if cached, err := p.store.CachedInsight(fingerprint); err == nil {
		log.Printf("[Agent] local cache hit for %s", fingerprint)
		copied := *cached
		copied.Cached = true
		return &copied, nil
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[Agent] local cache read failed: %v", err)
	}

	// Advisory gate; the server enforces the real ceiling
	allowed, _, err := p.store.CheckQuota(store.ScopeInsight)
	if err != nil {
		log.Printf("[Agent] quota check failed: %v", err)
	} else if !allowed {
		return nil, domain.ErrQuotaExceeded
	}

	installationID, err := p.store.InstallationID()
	if err != nil {
		return nil, err
	}
	prefs, err := p.store.Preferences()
	if err != nil {
		log.Printf("[Agent] preferences read failed, requesting anonymous insight: %v", err)
		prefs = nil
	}

	epoch := p.currentEpoch()

	insight, err := p.api.RequestInsight(ctx, &domain.InsightRequest{
		Product:        record,
		Preferences:    prefs,
		InstallationID: installationID,
		PageText:       pageText,
	})
	if err != nil {
		return nil, err
	}

	if p.currentEpoch() != epoch {
		log.Printf("[Agent] dropping stale insight for %s", fingerprint)
		return nil, ErrStaleResponse
	}

	if err := p.store.IncrementUsage(store.ScopeInsight); err != nil {
		log.Printf("[Agent] usage increment failed: %v", err)
	}
	if err := p.store.SetCachedInsight(fingerprint, insight, p.clientTTL); err != nil {
		log.Printf("[Agent] cache write failed: %v", err)
	}

	return insight, nil
}

func (p *Pipeline) broadcast(msg relay.Message) {
	if p.hub == nil {
		return
	}
	p.hub.Send(relay.RolePanel, msg)
}
