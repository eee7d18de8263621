package usecase

import (
	"context"
	"log"
	"strings"

	"github.com/kushscan/kushscan/internal/domain"
	"github.com/kushscan/kushscan/internal/infrastructure/quota"
)

// COAService is the lower-volume lab-report pipeline. It shares the quota
// mechanism with insights under its own smaller ceiling and uses the strong
// tier exclusively.
type COAService struct {
	quota   domain.QuotaStore
	engine  *TieredEngine
	fetcher domain.DocumentFetcher
}

// NewCOAService creates the COA analysis service.
func NewCOAService(quotaStore domain.QuotaStore, engine *TieredEngine, fetcher domain.DocumentFetcher) *COAService {
	return &COAService{
		quota:   quotaStore,
		engine:  engine,
		fetcher: fetcher,
	}
}

// Analyze validates and runs one COA request. Exactly one of COAURL/COAText
// must be present; a URL fetch failure degrades to URL-only analysis rather
// than failing the request.
func (s *COAService) Analyze(ctx context.Context, req *domain.COARequest) (*domain.COAResult, error) {
	if req == nil || req.ProductName == "" || req.InstallationID == "" {
		return nil, domain.ErrInvalidRequest
	}
	hasURL := req.COAURL != ""
	hasText := req.COAText != ""
	if hasURL == hasText {
		return nil, domain.ErrInvalidRequest
	}

	allowed, _ := s.quota.Check(req.InstallationID, quota.ScopeCOA)
	if !allowed {
		return nil, domain.ErrQuotaExceeded
	}
	s.quota.Increment(req.InstallationID, quota.ScopeCOA)

	var fetchedText string
	if hasURL && s.fetcher != nil {
		text, err := s.fetcher.FetchText(ctx, req.COAURL)
		if err != nil {
			// Degrade gracefully: the URL itself still goes to the model for
			// naming-convention reasoning.
			log.Printf("[COA] Document fetch failed, analyzing URL only: %v", err)
		} else {
			fetchedText = text
		}
	}

	var result domain.COAResult
	tier, err := s.engine.GenerateStrongTier(ctx, coaSystemPrompt, buildCOAPrompt(req, fetchedText), &result)
	if err != nil {
		return nil, err
	}

	result.Grade = normalizeGrade(result.Grade)
	result.Tier = tier
	log.Printf("[COA] Analysis complete: product=%q grade=%s", req.ProductName, result.Grade)
	return &result, nil
}

// normalizeGrade clamps model output onto the A-F scale.
func normalizeGrade(grade string) string {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if len(g) > 0 {
		switch g[0] {
		case 'A', 'B', 'C', 'D', 'F':
			return string(g[0])
		}
	}
	return "C"
}
