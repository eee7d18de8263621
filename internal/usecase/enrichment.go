package usecase

import (
	"context"
	"log"

	"github.com/kushscan/kushscan/internal/domain"
)

// enrichedFields is the JSON shape the extraction prompt asks for.
type enrichedFields struct {
	Category   string `json:"category"`
	StrainType string `json:"strainType"`
	THC        string `json:"thc"`
	CBD        string `json:"cbd"`
	Brand      string `json:"brand"`
	Weight     string `json:"weight"`
}

// Enricher asks the low-cost model to pull structured fields out of raw page
// text when the client's parser chain could only find a name.
type Enricher struct {
	generator domain.TextGenerator
	model     string
}

// NewEnricher creates an enricher bound to the tier1 model.
func NewEnricher(generator domain.TextGenerator, model string) *Enricher {
	return &Enricher{generator: generator, model: model}
}

// Enrich returns a copy of p with missing fields filled from pageText.
// Fields the parser chain already extracted are never overwritten. Any
// failure returns the original record untouched; enrichment is best-effort.
func (e *Enricher) Enrich(ctx context.Context, p *domain.ProductRecord, pageText string) *domain.ProductRecord {
	if e.generator == nil || pageText == "" {
		return p
	}

	text, err := e.generator.Generate(ctx, e.model, enrichmentSystemPrompt, buildEnrichmentPrompt(p.Name, pageText))
	if err != nil {
		log.Printf("[Enrich] Extraction call failed (continuing with partial data): %v", err)
		return p
	}

	var fields enrichedFields
	if err := extractJSON(text, &fields); err != nil {
		log.Printf("[Enrich] Extraction output unparseable (continuing with partial data): %v", err)
		return p
	}

	enriched := *p
	if enriched.Category == domain.CategoryUnknown && fields.Category != "" {
		enriched.Category = domain.ParseCategory(fields.Category)
	}
	if enriched.StrainType == "" {
		enriched.StrainType = fields.StrainType
	}
	if enriched.THC == "" {
		enriched.THC = fields.THC
	}
	if enriched.CBD == "" {
		enriched.CBD = fields.CBD
	}
	if enriched.Brand == "" {
		enriched.Brand = fields.Brand
	}
	if enriched.Weight == "" {
		enriched.Weight = fields.Weight
	}

	return &enriched
}
