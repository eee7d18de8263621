package domain

import (
	"regexp"
	"strings"
)

// Category classifies a dispensary product. The set is closed; anything a
// parser cannot place lands on CategoryUnknown.
type Category string

const (
	CategoryFlower      Category = "flower"
	CategoryVape        Category = "vape"
	CategoryEdible      Category = "edible"
	CategoryConcentrate Category = "concentrate"
	CategoryPreroll     Category = "preroll"
	CategoryTincture    Category = "tincture"
	CategoryTopical     Category = "topical"
	CategoryAccessory   Category = "accessory"
	CategoryUnknown     Category = "unknown"
)

// ParseCategory maps free-form category text onto the closed set.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryFlower, CategoryVape, CategoryEdible, CategoryConcentrate,
		CategoryPreroll, CategoryTincture, CategoryTopical, CategoryAccessory:
		return c
	}
	return CategoryUnknown
}

// ProductRecord is the structured product extracted from a dispensary page.
// A record is only considered "found" when Name is non-empty; every other
// field is independently best-effort. Records are immutable once built.
type ProductRecord struct {
	Name           string   `json:"name"`
	Brand          string   `json:"brand,omitempty"`
	StrainType     string   `json:"strainType,omitempty"` // indica/sativa/hybrid
	THC            string   `json:"thc,omitempty"`
	CBD            string   `json:"cbd,omitempty"`
	Terpenes       []string `json:"terpenes,omitempty"`
	Weight         string   `json:"weight,omitempty"`
	Price          string   `json:"price,omitempty"`
	Dispensary     string   `json:"dispensary,omitempty"`
	RawDescription string   `json:"rawDescription,omitempty"`
	COALink        string   `json:"coaLink,omitempty"`
	Category       Category `json:"category"`
	Source         string   `json:"source"` // site tag, e.g. "dutchie" or "generic"
	PageURL        string   `json:"pageUrl,omitempty"`
}

// Package-level compiled regex for fingerprint normalization
var whitespaceRunRegex = regexp.MustCompile(`\s+`)

// Fingerprint derives the dedup key shared by the client and server caches.
// Two records with the same name and category always collide regardless of
// which site they came from; that collision is the point.
func Fingerprint(name string, category Category) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = whitespaceRunRegex.ReplaceAllString(normalized, "_")
	if category == "" {
		category = CategoryUnknown
	}
	return normalized + ":" + string(category)
}

// FingerprintRecord is a convenience over Fingerprint for a full record.
func FingerprintRecord(p *ProductRecord) string {
	return Fingerprint(p.Name, p.Category)
}
