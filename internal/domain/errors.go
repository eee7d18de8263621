package domain

import "errors"

var (
	// ErrNoProduct is returned when no parser could extract a product name.
	// It is a valid terminal state for a page, not a failure.
	ErrNoProduct = errors.New("no product found on page")

	// ErrQuotaExceeded is returned when the daily per-installation ceiling
	// is reached. Never retried automatically.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrInvalidRequest is returned when required request fields are missing.
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrGenerationFailure is returned when both generation tiers failed.
	ErrGenerationFailure = errors.New("generation backend request failed")

	// ErrMalformedOutput is returned when no parseable JSON object could be
	// extracted from a model response. Surfaced as a 500, never defaulted.
	ErrMalformedOutput = errors.New("malformed generation output")

	// ErrBackendUnavailable is returned when no generation backend is
	// configured at all.
	ErrBackendUnavailable = errors.New("generation backend not configured")

	// ErrDocumentFetch is returned when a COA document could not be
	// retrieved. Non-fatal: analysis degrades to URL-only context.
	ErrDocumentFetch = errors.New("document fetch failed")
)
