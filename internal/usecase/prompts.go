package usecase

import (
	"fmt"
	"strings"

	"github.com/kushscan/kushscan/internal/domain"
)

// insightSystemPrompt is fixed for every insight generation, both tiers.
const insightSystemPrompt = `You are a cannabis product analyst for a consumer browser extension.
Given a dispensary product, respond with a single JSON object and nothing else, using this shape:
{
  "effects": ["..."],
  "terpenes": [{"name": "...", "effect": "..."}],
  "dosing": {"suggestion": "...", "caution": "..."},
  "matchScore": 0,
  "similarStrains": ["..."],
  "trustSignal": "..."
}
Rules:
- effects: 3-5 commonly reported effects for this strain/product type.
- terpenes: the dominant terpenes you would expect, with one-line effects.
- dosing: a conservative starting-dose suggestion appropriate to the product category.
- matchScore: include ONLY when user preferences are provided; omit the field entirely otherwise.
- similarStrains: 2-3 strain names a fan of this product would also enjoy.
- trustSignal: one sentence on lab-testing/brand reputation signals a buyer should look for.
Never recommend exceeding label doses. Never include medical claims.`

// enrichmentSystemPrompt drives the fallback parser for unrecognized sites.
const enrichmentSystemPrompt = `You extract structured cannabis product fields from raw page text.
Respond with a single JSON object and nothing else:
{"category": "...", "strainType": "...", "thc": "...", "cbd": "...", "brand": "...", "weight": ""}
category must be one of: flower, vape, edible, concentrate, preroll, tincture, topical, accessory, unknown.
Use "" for any field the text does not support. Do not guess potency numbers.`

// coaSystemPrompt produces the graded lab-report assessment. The grading
// policy is fixed here; nothing the user sends can change it.
const coaSystemPrompt = `You are a cannabis lab-report auditor. Assess the Certificate of Analysis below.
Respond with a single JSON object and nothing else:
{
  "grade": "A",
  "potencyVerdict": "...",
  "findings": [{"analyte": "...", "result": "...", "concern": "none"}],
  "summary": "..."
}
Grading policy (fixed):
- A: all contaminant panels passed with wide margins, potency within 10% of label claim.
- B: all panels passed, potency within 20% of claim or minor data gaps.
- C: panels passed but potency deviates more than 20%, or key panels missing.
- D: a contaminant detected near its action limit, or the report is stale/unverifiable.
- F: any failed panel, or clear signs the document is not a genuine lab report.
concern must be one of: none, low, moderate, high.
If you only have a URL, reason from its naming conventions (lab domain, batch id patterns) and say so in the summary.`

// buildInsightPrompt renders the per-product user prompt.
func buildInsightPrompt(p *domain.ProductRecord, prefs *domain.UserPreferences) string {
	var sb strings.Builder

	sb.WriteString("Product:\n")
	fmt.Fprintf(&sb, "- name: %s\n", p.Name)
	fmt.Fprintf(&sb, "- category: %s\n", p.Category)
	if p.Brand != "" {
		fmt.Fprintf(&sb, "- brand: %s\n", p.Brand)
	}
	if p.StrainType != "" {
		fmt.Fprintf(&sb, "- strain type: %s\n", p.StrainType)
	}
	if p.THC != "" {
		fmt.Fprintf(&sb, "- THC: %s\n", p.THC)
	}
	if p.CBD != "" {
		fmt.Fprintf(&sb, "- CBD: %s\n", p.CBD)
	}
	if len(p.Terpenes) > 0 {
		fmt.Fprintf(&sb, "- listed terpenes: %s\n", strings.Join(p.Terpenes, ", "))
	}
	if p.Weight != "" {
		fmt.Fprintf(&sb, "- weight: %s\n", p.Weight)
	}
	if p.Dispensary != "" {
		fmt.Fprintf(&sb, "- dispensary: %s\n", p.Dispensary)
	}
	if p.RawDescription != "" {
		fmt.Fprintf(&sb, "- description: %s\n", p.RawDescription)
	}

	if prefs != nil {
		sb.WriteString("\nUser preferences (include matchScore):\n")
		if prefs.ExperienceLevel != "" {
			fmt.Fprintf(&sb, "- experience level: %s\n", prefs.ExperienceLevel)
		}
		if len(prefs.DesiredEffects) > 0 {
			fmt.Fprintf(&sb, "- desired effects: %s\n", strings.Join(prefs.DesiredEffects, ", "))
		}
		if prefs.THCSensitivity != "" {
			fmt.Fprintf(&sb, "- THC sensitivity: %s\n", prefs.THCSensitivity)
		}
		if len(prefs.ProductTypes) > 0 {
			fmt.Fprintf(&sb, "- preferred product types: %s\n", strings.Join(prefs.ProductTypes, ", "))
		}
	}

	return sb.String()
}

// buildEnrichmentPrompt renders the page-text extraction prompt.
func buildEnrichmentPrompt(name, pageText string) string {
	var sb strings.Builder
	if name != "" {
		fmt.Fprintf(&sb, "The product is believed to be named %q.\n\n", name)
	}
	sb.WriteString("Page text:\n")
	sb.WriteString(pageText)
	return sb.String()
}

// buildCOAPrompt renders the lab-report prompt. The URL is always included
// even when text was fetched, so the model can reason about naming
// conventions.
func buildCOAPrompt(req *domain.COARequest, fetchedText string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Product: %s\n", req.ProductName)
	if req.ClaimedTHC != "" {
		fmt.Fprintf(&sb, "Label THC claim: %s\n", req.ClaimedTHC)
	}
	if req.COAURL != "" {
		fmt.Fprintf(&sb, "Report URL: %s\n", req.COAURL)
	}

	text := fetchedText
	if text == "" {
		text = req.COAText
	}
	if text != "" {
		sb.WriteString("\nReport text:\n")
		sb.WriteString(text)
	} else {
		sb.WriteString("\nNo report text available; assess from the URL alone.")
	}

	return sb.String()
}
