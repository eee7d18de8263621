package usecase

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/infrastructure/quota"
)

// generatedInsight is the JSON shape the insight prompt asks the model for.
type generatedInsight struct {
	Effects        []string             `json:"effects"`
	Terpenes       []domain.TerpeneNote `json:"terpenes"`
	Dosing         domain.Dosing        `json:"dosing"`
	MatchScore     *int                 `json:"matchScore,omitempty"`
	SimilarStrains []string             `json:"similarStrains"`
	TrustSignal    string               `json:"trustSignal"`
}

// InsightServiceConfig holds configuration for the insight service.
type InsightServiceConfig struct {
	CacheTTL time.Duration
}

// InsightService orchestrates the product-insight pipeline: validation,
// quota, shared cache, enrichment, tiered generation, response shaping.
type InsightService struct {
	cache    domain.CacheRepository
	quota    domain.QuotaStore
	engine   *TieredEngine
	enricher *Enricher
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewInsightService creates the orchestrator with its dependencies.
func NewInsightService(
	cache domain.CacheRepository,
	quotaStore domain.QuotaStore,
	engine *TieredEngine,
	enricher *Enricher,
	cfg InsightServiceConfig,
) *InsightService {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}

	return &InsightService{
		cache:    cache,
		quota:    quotaStore,
		engine:   engine,
		enricher: enricher,
		cacheTTL: cacheTTL,
	}
}

// GetInsight runs the full pipeline for one request.
// Flow: validate -> quota -> shared cache -> enrich -> generate -> shape -> cache
func (s *InsightService) GetInsight(ctx context.Context, req *domain.InsightRequest) (*domain.InsightResponse, error) {
	if req == nil || req.Product == nil || req.Product.Name == "" || req.InstallationID == "" {
		return nil, domain.ErrInvalidRequest
	}

	// Quota comes first: a denied caller must never cost a backend call.
	allowed, remaining := s.quota.Check(req.InstallationID, quota.ScopeInsight)
	if !allowed {
		return nil, domain.ErrQuotaExceeded
	}
	s.quota.Increment(req.InstallationID, quota.ScopeInsight)
	log.Printf("[Insight] Request admitted: installation=%s product=%q remaining=%d",
		req.InstallationID, req.Product.Name, remaining-1)

	fingerprint := domain.FingerprintRecord(req.Product)

	// The shared cache is only safe for non-personalized responses: a match
	// score derived from one user's preferences must never reach another.
	personalized := req.Preferences != nil

	if !personalized {
		if cached, err := s.cache.Get(ctx, fingerprint); err == nil {
			response := *cached
			response.Cached = true
			log.Printf("[Insight] Shared cache hit: %s", fingerprint)
			return &response, nil
		}
	}

	product := req.Product
	if product.Category == domain.CategoryUnknown && req.PageText != "" {
		product = s.enricher.Enrich(ctx, product, req.PageText)
	}

	response, err := s.generate(ctx, fingerprint, product, req.Preferences)
	if err != nil {
		return nil, err
	}

	if !personalized {
		// Fire-and-forget: a cache write failure never changes the outcome
		// generation already determined.
		if err := s.cache.Set(ctx, fingerprint, response, s.cacheTTL); err != nil {
			log.Printf("[Insight] Shared cache write failed (ignored): %v", err)
		}
	}

	return response, nil
}

// generate runs tiered generation plus response shaping. Anonymous requests
// for one fingerprint are collapsed through singleflight; personalized ones
// always run alone.
func (s *InsightService) generate(ctx context.Context, fingerprint string, product *domain.ProductRecord, prefs *domain.UserPreferences) (*domain.InsightResponse, error) {
	run := func() (interface{}, error) {
		var generated generatedInsight
		tier, err := s.engine.GenerateStructured(ctx, insightSystemPrompt, buildInsightPrompt(product, prefs), &generated)
		if err != nil {
			return nil, err
		}
		return s.shapeResponse(&generated, tier, prefs != nil), nil
	}

	if prefs != nil {
		result, err := run()
		if err != nil {
			return nil, err
		}
		return result.(*domain.InsightResponse), nil
	}

	result, err, shared := s.group.Do(fingerprint, run)
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("[Insight] Generation collapsed with concurrent request: %s", fingerprint)
	}

	// Copy so concurrent sharers of one generation never alias a response
	response := *result.(*domain.InsightResponse)
	return &response, nil
}

// shapeResponse applies server-side post-processing to the raw generation.
func (s *InsightService) shapeResponse(generated *generatedInsight, tier string, personalized bool) *domain.InsightResponse {
	response := &domain.InsightResponse{
		Effects:     generated.Effects,
		Terpenes:    generated.Terpenes,
		Dosing:      generated.Dosing,
		TrustSignal: generated.TrustSignal,
		Cached:      false,
		Tier:        tier,
	}

	if personalized {
		response.MatchScore = generated.MatchScore
	}

	for _, name := range generated.SimilarStrains {
		if name == "" {
			continue
		}
		response.SimilarStrains = append(response.SimilarStrains, domain.SimilarStrain{
			Name: name,
			URL:  affiliateSearchURL(name),
		})
	}

	return response
}

// affiliateSearchURL synthesizes a deterministic search link from a strain name.
func affiliateSearchURL(strainName string) string {
	return fmt.Sprintf("https://www.leafly.com/search?q=%s&utm_source=kushscan", url.QueryEscape(strainName))
}
