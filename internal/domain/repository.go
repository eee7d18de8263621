package domain

import (
	"context"
	"time"
)

// CacheRepository defines the shared fingerprint-keyed insight cache.
type CacheRepository interface {
	Get(ctx context.Context, key string) (*InsightResponse, error)
	Set(ctx context.Context, key string, value *InsightResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// QuotaStore enforces the per-installation daily ceilings. Scope partitions
// the counter ("insight" and "coa" are independent budgets).
type QuotaStore interface {
	// Check reports whether another call is allowed and how many remain.
	// Read-only: it must not mutate stored state.
	Check(installationID, scope string) (allowed bool, remaining int)
	// Increment records one use, re-deriving the day boundary itself.
	Increment(installationID, scope string)
}

// TextGenerator is the port to one generation backend model. Implementations
// return the raw model text; JSON extraction happens at the usecase layer.
type TextGenerator interface {
	Generate(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// DocumentFetcher retrieves a lab-report document with a hard timeout,
// returning sanitized text only for HTML content.
type DocumentFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}
