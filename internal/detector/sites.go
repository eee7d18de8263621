package detector

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/domain"
)

// siteParser extracts a product from one known dispensary platform. The
// supported set is deliberately small and fixed.
type siteParser struct {
	name  string
	hosts []string
	parse func(doc *html.Node, pageURL string) *domain.ProductRecord
}

func (s *siteParser) Matches(host string) bool {
	host = strings.ToLower(host)
	for _, h := range s.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (s *siteParser) Parse(doc *html.Node, pageURL string) *domain.ProductRecord {
	record := s.parse(doc, pageURL)
	if record == nil || record.Name == "" {
		return nil
	}
	record.Source = s.name
	record.PageURL = pageURL
	return record
}

// siteParsers in chain priority order. Hosts cover both the platforms'
// own storefronts and the embedded menus dispensaries serve under them.
func siteParsers() []*siteParser {
	return []*siteParser{
		{
			name:  "dutchie",
			hosts: []string{"dutchie.com"},
			parse: parseDutchie,
		},
		{
			name:  "weedmaps",
			hosts: []string{"weedmaps.com"},
			parse: parseWeedmaps,
		},
		{
			name:  "leafly",
			hosts: []string{"leafly.com"},
			parse: parseLeafly,
		},
		{
			name:  "iheartjane",
			hosts: []string{"iheartjane.com"},
			parse: parseJane,
		},
	}
}

// Dutchie menus expose stable data-testid hooks.
func parseDutchie(doc *html.Node, pageURL string) *domain.ProductRecord {
	nameNode := findByAttr(doc, "data-testid", "product-name")
	if nameNode == nil {
		nameNode = findFirst(doc, func(n *html.Node) bool {
			return classContains(n, "product__Name") || classContains(n, "products-title")
		})
	}
	if nameNode == nil {
		return nil
	}

	record := &domain.ProductRecord{
		Name:     textContent(nameNode),
		Category: domain.CategoryUnknown,
	}

	if n := findByAttr(doc, "data-testid", "brand-name"); n != nil {
		record.Brand = textContent(n)
	}
	if n := findByAttr(doc, "data-testid", "product-strain-type"); n != nil {
		record.StrainType = strings.ToLower(textContent(n))
	}
	if n := findByAttr(doc, "data-testid", "product-price"); n != nil {
		record.Price = textContent(n)
	}

	fillPotencyFromLabels(doc, record)
	record.Category = categoryFromBreadcrumb(doc)
	return record
}

// Weedmaps uses hashed styled-component classes; substring matching on the
// stable prefix is the only selector that survives deploys.
func parseWeedmaps(doc *html.Node, pageURL string) *domain.ProductRecord {
	nameNode := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "h1" && classContains(n, "ProductName")
	})
	if nameNode == nil {
		nameNode = findFirst(doc, func(n *html.Node) bool {
			return classContains(n, "product-name")
		})
	}
	if nameNode == nil {
		return nil
	}

	record := &domain.ProductRecord{
		Name:     textContent(nameNode),
		Category: domain.CategoryUnknown,
	}

	if n := findFirst(doc, func(n *html.Node) bool { return classContains(n, "BrandLink") }); n != nil {
		record.Brand = textContent(n)
	}
	if n := findFirst(doc, func(n *html.Node) bool { return classContains(n, "GeneticTag") }); n != nil {
		record.StrainType = strings.ToLower(textContent(n))
	}

	fillPotencyFromLabels(doc, record)
	record.Category = categoryFromBreadcrumb(doc)
	return record
}

// Leafly marks its product pages up with itemprop microdata.
func parseLeafly(doc *html.Node, pageURL string) *domain.ProductRecord {
	nameNode := findFirst(doc, func(n *html.Node) bool {
		return attr(n, "itemprop") == "name" && n.Data != "meta"
	})
	if nameNode == nil {
		nameNode = findByTag(doc, "h1")
	}
	if nameNode == nil {
		return nil
	}

	record := &domain.ProductRecord{
		Name:     textContent(nameNode),
		Category: domain.CategoryUnknown,
	}

	if n := findByAttr(doc, "itemprop", "brand"); n != nil {
		record.Brand = textContent(n)
	}
	if n := findFirst(doc, func(n *html.Node) bool { return classContains(n, "strain-lineage") }); n != nil {
		record.StrainType = inferStrainType(textContent(n))
	}

	fillPotencyFromLabels(doc, record)
	record.Category = categoryFromBreadcrumb(doc)
	return record
}

// Jane embeds its menus in an iframe; the hooks below match the rendered
// product detail card.
func parseJane(doc *html.Node, pageURL string) *domain.ProductRecord {
	nameNode := findFirst(doc, func(n *html.Node) bool {
		return classContains(n, "product-name") || attr(n, "data-cy") == "productName"
	})
	if nameNode == nil {
		return nil
	}

	record := &domain.ProductRecord{
		Name:     textContent(nameNode),
		Category: domain.CategoryUnknown,
	}

	if n := findFirst(doc, func(n *html.Node) bool { return classContains(n, "product-brand") }); n != nil {
		record.Brand = textContent(n)
	}
	if n := findFirst(doc, func(n *html.Node) bool { return classContains(n, "product-lineage") }); n != nil {
		record.StrainType = strings.ToLower(textContent(n))
	}

	fillPotencyFromLabels(doc, record)
	record.Category = categoryFromBreadcrumb(doc)
	return record
}

// fillPotencyFromLabels scans small labeled elements of the form
// "THC: 24.5%" that every supported platform renders in some wrapper.
func fillPotencyFromLabels(doc *html.Node, record *domain.ProductRecord) {
	labels := findAll(doc, func(n *html.Node) bool {
		return classContains(n, "potency") || classContains(n, "cannabinoid")
	})
	for _, label := range labels {
		text := textContent(label)
		if record.THC == "" {
			if m := thcRegex.FindStringSubmatch(text); m != nil {
				record.THC = m[1] + "%"
			}
		}
		if record.CBD == "" {
			if m := cbdRegex.FindStringSubmatch(text); m != nil {
				record.CBD = m[1] + "%"
			}
		}
	}
}

// categoryFromBreadcrumb reads the menu breadcrumb trail, the most
// reliable category signal the platforms share.
func categoryFromBreadcrumb(doc *html.Node) domain.Category {
	crumb := findFirst(doc, func(n *html.Node) bool {
		return classContains(n, "breadcrumb") || attr(n, "aria-label") == "breadcrumb"
	})
	if crumb == nil {
		return domain.CategoryUnknown
	}
	return inferCategory(textContent(crumb))
}
