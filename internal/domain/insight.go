package domain

import "time"

// UserPreferences is owned by the client; the server receives a read-only
// copy per request and never persists it.
type UserPreferences struct {
	ExperienceLevel    string   `json:"experienceLevel,omitempty"` // beginner/casual/experienced
	DesiredEffects     []string `json:"desiredEffects,omitempty"`
	THCSensitivity     string   `json:"thcSensitivity,omitempty"` // low/medium/high
	ProductTypes       []string `json:"productTypes,omitempty"`
	OnboardingComplete bool     `json:"onboardingComplete"`
}

// Dosing describes a suggested starting dose and pacing guidance.
type Dosing struct {
	Suggestion string `json:"suggestion"`
	Caution    string `json:"caution,omitempty"`
}

// TerpeneNote pairs a terpene with the effect it contributes.
type TerpeneNote struct {
	Name   string `json:"name"`
	Effect string `json:"effect,omitempty"`
}

// SimilarStrain is a related strain plus a deterministic affiliate search
// link synthesized server-side from the strain name.
type SimilarStrain struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// InsightResponse is the structured insight delivered to the panel. The
// orchestrator treats it as opaque apart from MatchScore: a response with a
// match score was personalized and must never enter the shared cache.
type InsightResponse struct {
	Effects        []string        `json:"effects"`
	Terpenes       []TerpeneNote   `json:"terpenes,omitempty"`
	Dosing         Dosing          `json:"dosing"`
	MatchScore     *int            `json:"matchScore,omitempty"` // 0-100, preferences-derived
	SimilarStrains []SimilarStrain `json:"similarStrains,omitempty"`
	TrustSignal    string          `json:"trustSignal,omitempty"`
	Cached         bool            `json:"cached"`
	Tier           string          `json:"tier,omitempty"` // which backend served it
}

// CachedInsight wraps an InsightResponse with cache bookkeeping. Entries are
// pruned lazily: the first read after CachedAt+TTL deletes them.
type CachedInsight struct {
	Data     InsightResponse `json:"data"`
	CachedAt time.Time       `json:"cachedAt"`
	TTL      time.Duration   `json:"ttl"`
}

// Expired reports whether the entry is stale at the given instant.
func (c *CachedInsight) Expired(now time.Time) bool {
	return now.Sub(c.CachedAt) > c.TTL
}

// RateLimitState is the day-bounded usage counter. If ResetDate is not
// today's local calendar date the counter reads as zero; nothing rewrites
// ResetDate until an increment happens.
type RateLimitState struct {
	UsedToday int    `json:"usedToday"`
	ResetDate string `json:"resetDate"` // ISO date, local calendar day
}

// InsightRequest is the wire shape accepted by POST /insights.
type InsightRequest struct {
	Product        *ProductRecord   `json:"product"`
	Preferences    *UserPreferences `json:"preferences,omitempty"`
	InstallationID string           `json:"installationId"`
	PageText       string           `json:"pageText,omitempty"`
}

// COARequest is the wire shape accepted by POST /coa. Exactly one of COAURL
// and COAText must be present.
type COARequest struct {
	COAURL         string `json:"coaUrl,omitempty"`
	COAText        string `json:"coaText,omitempty"`
	ProductName    string `json:"productName"`
	ClaimedTHC     string `json:"claimedThc,omitempty"`
	InstallationID string `json:"installationId"`
}

// COAFinding is a single contaminant or potency observation from a lab report.
type COAFinding struct {
	Analyte string `json:"analyte"`
	Result  string `json:"result"`
	Concern string `json:"concern,omitempty"` // none/low/moderate/high
}

// COAResult is the graded safety assessment of a Certificate of Analysis.
// Grading policy is fixed server-side and never user-influenced.
type COAResult struct {
	Grade          string       `json:"grade"` // A-F
	PotencyVerdict string       `json:"potencyVerdict,omitempty"`
	Findings       []COAFinding `json:"findings,omitempty"`
	Summary        string       `json:"summary"`
	Tier           string       `json:"tier,omitempty"`
}
