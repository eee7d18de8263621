package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"

	"github.com/kushscan/kushscan/internal/domain"
)

// Tier markers recorded on every response for observability.
const (
	TierOne = "tier1"
	TierTwo = "tier2"
)

// jsonObjectRegex pulls the first top-level JSON object out of model text,
// tolerating leading/trailing prose and markdown fences.
var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// TieredEngine routes generation across the two backend tiers. Tier1 is the
// low-cost default; any tier1 failure, malformed output included, earns
// exactly one retry against tier2. Tier2 failures are fatal, never retried.
type TieredEngine struct {
	generator  domain.TextGenerator
	tier1Model string
	tier2Model string
}

// NewTieredEngine creates the engine over a single generation backend port.
func NewTieredEngine(generator domain.TextGenerator, tier1Model, tier2Model string) *TieredEngine {
	return &TieredEngine{
		generator:  generator,
		tier1Model: tier1Model,
		tier2Model: tier2Model,
	}
}

// GenerateStructured runs the tiered call sequence and unmarshals the first
// JSON object in the winning response into out. The returned tier names the
// backend that actually served the request.
func (e *TieredEngine) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, out interface{}) (string, error) {
	if e.generator == nil {
		return "", domain.ErrBackendUnavailable
	}

	text, err := e.generator.Generate(ctx, e.tier1Model, systemPrompt, userPrompt)
	if err == nil {
		err = extractJSON(text, out)
		if err == nil {
			return TierOne, nil
		}
	}

	log.Printf("[Engine] Tier1 (%s) failed, falling back to tier2: %v", e.tier1Model, err)

	text, err = e.generator.Generate(ctx, e.tier2Model, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: tier2 (%s): %v", domain.ErrGenerationFailure, e.tier2Model, err)
	}
	if err := extractJSON(text, out); err != nil {
		return "", err
	}
	return TierTwo, nil
}

// GenerateStrongTier calls tier2 directly with no fallback; the COA pipeline
// uses the strong model exclusively.
func (e *TieredEngine) GenerateStrongTier(ctx context.Context, systemPrompt, userPrompt string, out interface{}) (string, error) {
	if e.generator == nil {
		return "", domain.ErrBackendUnavailable
	}

	text, err := e.generator.Generate(ctx, e.tier2Model, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: tier2 (%s): %v", domain.ErrGenerationFailure, e.tier2Model, err)
	}
	if err := extractJSON(text, out); err != nil {
		return "", err
	}
	return TierTwo, nil
}

// extractJSON locates the first top-level JSON object in free-form model
// text and unmarshals it. Extraction failure is a typed parsing-boundary
// error, not a raw json.Unmarshal escape.
func extractJSON(text string, out interface{}) error {
	match := jsonObjectRegex.FindString(text)
	if match == "" {
		return fmt.Errorf("%w: no JSON object in response", domain.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(match), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	return nil
}
