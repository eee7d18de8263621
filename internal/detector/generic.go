package detector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/domain"
)

// Last-resort percentage extraction over full page text. Only consulted
// when no labeled element carried the value.
var (
	thcRegex = regexp.MustCompile(`(?i)\bTHC\b[:\s]*([0-9]+(?:\.[0-9]+)?)\s*%`)
	cbdRegex = regexp.MustCompile(`(?i)\bCBD\b[:\s]*([0-9]+(?:\.[0-9]+)?)\s*%`)
)

// genericParser handles unrecognized sites: embedded structured metadata
// first, then heuristic selectors, then the first heading on the page.
type genericParser struct{}

func (g *genericParser) Name() string { return "generic" }

func (g *genericParser) Parse(doc *html.Node, pageURL string) *domain.ProductRecord {
	record := g.parseJSONLD(doc)
	if record == nil {
		record = g.parseHeuristics(doc)
	}
	if record == nil {
		return nil
	}

	pageText := visibleText(doc, 4000)
	if record.THC == "" {
		if m := thcRegex.FindStringSubmatch(pageText); m != nil {
			record.THC = m[1] + "%"
		}
	}
	if record.CBD == "" {
		if m := cbdRegex.FindStringSubmatch(pageText); m != nil {
			record.CBD = m[1] + "%"
		}
	}
	if record.Category == domain.CategoryUnknown {
		record.Category = inferCategory(pageText)
	}
	if record.StrainType == "" {
		record.StrainType = inferStrainType(pageText)
	}

	record.Source = g.Name()
	record.PageURL = pageURL
	return record
}

// jsonLDProduct mirrors the subset of the schema.org Product shape the
// parser cares about. Brand arrives as either a string or an object.
type jsonLDProduct struct {
	Type        string          `json:"@type"`
	Name        string          `json:"name"`
	Brand       json.RawMessage `json:"brand"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Offers      struct {
		Price json.RawMessage `json:"price"`
	} `json:"offers"`
	Graph []json.RawMessage `json:"@graph"`
}

// parseJSONLD scans ld+json script blocks for a Product entry. Malformed
// blocks are skipped, never fatal.
func (g *genericParser) parseJSONLD(doc *html.Node) *domain.ProductRecord {
	scripts := findAll(doc, func(n *html.Node) bool {
		return n.Data == "script" && attr(n, "type") == "application/ld+json"
	})

	for _, script := range scripts {
		if script.FirstChild == nil {
			continue
		}
		raw := script.FirstChild.Data

		for _, blob := range splitJSONLD(raw) {
			if record := productFromJSONLD(blob); record != nil {
				return record
			}
		}
	}
	return nil
}

// splitJSONLD expands a raw ld+json payload into candidate object blobs:
// the payload itself, its array elements, or its @graph entries.
func splitJSONLD(raw string) []json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil
		}
		return arr
	}

	var probe jsonLDProduct
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil
	}
	if len(probe.Graph) > 0 {
		return probe.Graph
	}
	return []json.RawMessage{json.RawMessage(trimmed)}
}

func productFromJSONLD(blob json.RawMessage) *domain.ProductRecord {
	var p jsonLDProduct
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil
	}
	if !strings.EqualFold(p.Type, "Product") || strings.TrimSpace(p.Name) == "" {
		return nil
	}

	record := &domain.ProductRecord{
		Name:           strings.TrimSpace(p.Name),
		Brand:          brandName(p.Brand),
		RawDescription: strings.TrimSpace(p.Description),
		Category:       domain.ParseCategory(p.Category),
		Price:          rawScalar(p.Offers.Price),
	}
	return record
}

// brandName handles schema.org's two brand encodings.
func brandName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// rawScalar renders a JSON string or number as text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
	}
	return ""
}

// Heuristic selectors in priority order: explicit test hooks, then common
// class-name patterns, then the first page heading.
func (g *genericParser) parseHeuristics(doc *html.Node) *domain.ProductRecord {
	nameNode := findByAttr(doc, "data-kushscan", "product-name")
	if nameNode == nil {
		nameNode = findFirst(doc, func(n *html.Node) bool {
			return classContains(n, "product-name") ||
				classContains(n, "product-title") ||
				classContains(n, "product__title") ||
				attr(n, "itemprop") == "name"
		})
	}
	if nameNode == nil {
		nameNode = findByTag(doc, "h1")
	}
	if nameNode == nil {
		return nil
	}

	name := textContent(nameNode)
	if name == "" {
		return nil
	}

	record := &domain.ProductRecord{
		Name:     name,
		Category: domain.CategoryUnknown,
	}

	if brandNode := findByAttr(doc, "data-kushscan", "product-brand"); brandNode != nil {
		record.Brand = textContent(brandNode)
	} else if brandNode := findFirst(doc, func(n *html.Node) bool {
		return classContains(n, "product-brand") || attr(n, "itemprop") == "brand"
	}); brandNode != nil {
		record.Brand = textContent(brandNode)
	}

	if priceNode := findFirst(doc, func(n *html.Node) bool {
		return classContains(n, "product-price") || attr(n, "itemprop") == "price"
	}); priceNode != nil {
		record.Price = textContent(priceNode)
	}

	return record
}

// categoryKeywords maps page-text cues to the closed category set. Order
// matters: "pre-roll" must win over "flower" on pre-roll pages.
var categoryKeywords = []struct {
	keyword  string
	category domain.Category
}{
	{"pre-roll", domain.CategoryPreroll},
	{"preroll", domain.CategoryPreroll},
	{"cartridge", domain.CategoryVape},
	{"vape", domain.CategoryVape},
	{"gummies", domain.CategoryEdible},
	{"gummy", domain.CategoryEdible},
	{"chocolate", domain.CategoryEdible},
	{"edible", domain.CategoryEdible},
	{"tincture", domain.CategoryTincture},
	{"topical", domain.CategoryTopical},
	{"lotion", domain.CategoryTopical},
	{"concentrate", domain.CategoryConcentrate},
	{"live resin", domain.CategoryConcentrate},
	{"rosin", domain.CategoryConcentrate},
	{"shatter", domain.CategoryConcentrate},
	{"flower", domain.CategoryFlower},
	{"eighth", domain.CategoryFlower},
}

func inferCategory(pageText string) domain.Category {
	lower := strings.ToLower(pageText)
	for _, ck := range categoryKeywords {
		if strings.Contains(lower, ck.keyword) {
			return ck.category
		}
	}
	return domain.CategoryUnknown
}

func inferStrainType(pageText string) string {
	lower := strings.ToLower(pageText)
	switch {
	case strings.Contains(lower, "sativa"):
		return "sativa"
	case strings.Contains(lower, "indica"):
		return "indica"
	case strings.Contains(lower, "hybrid"):
		return "hybrid"
	}
	return ""
}
