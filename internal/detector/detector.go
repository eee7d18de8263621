// Package detector turns captured dispensary pages into structured
// product records. A fixed set of site parsers runs first; a generic
// parser backstops unrecognized sites with embedded metadata and
// heuristic selectors.
package detector

import (
	"log"
	"net/url"
	"sync"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/domain"
)

// defaultSnapshotChars caps the sanitized page-text snapshot shipped to
// the server for enrichment.
const defaultSnapshotChars = 15000

// Chain runs parsers in fixed priority order against one document.
type Chain struct {
	sites            []*siteParser
	generic          *genericParser
	maxSnapshotChars int
}

// NewChain builds the default parser chain.
func NewChain() *Chain {
	return &Chain{
		sites:            siteParsers(),
		generic:          &genericParser{},
		maxSnapshotChars: defaultSnapshotChars,
	}
}

// DetectAndParse extracts a product record from the document. A nil record
// means no product was found, which is a valid terminal state, not an
// error. The returned page text is non-empty only when server-side
// enrichment could use it: a generic-parser record with unknown category,
// or a total miss.
func (c *Chain) DetectAndParse(doc *html.Node, pageURL string) (*domain.ProductRecord, string) {
	host := hostOf(pageURL)

	for _, site := range c.sites {
		if !site.Matches(host) {
			continue
		}
		if record := site.Parse(doc, pageURL); record != nil {
			log.Printf("[Detector] %s parser matched: %q (%s)", site.name, record.Name, record.Category)
			return record, ""
		}
	}

	record := c.generic.Parse(doc, pageURL)
	if record == nil {
		log.Printf("[Detector] no product on %s, returning snapshot only", host)
		return nil, visibleText(doc, c.maxSnapshotChars)
	}

	log.Printf("[Detector] generic parser matched: %q (%s)", record.Name, record.Category)
	if record.Category == domain.CategoryUnknown {
		return record, visibleText(doc, c.maxSnapshotChars)
	}
	return record, ""
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// State is the per-page detection context. It replaces module-level
// mutable state so the watcher and message handlers always read the same
// instance they were handed.
type State struct {
	mu             sync.Mutex
	current        *domain.ProductRecord
	indicatorShown bool
}

// NewState returns an empty detection context.
func NewState() *State {
	return &State{}
}

// SetCurrent records the product detected on the current page.
func (s *State) SetCurrent(record *domain.ProductRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = record
}

// Current returns the product detected on the current page, or nil.
func (s *State) Current() *domain.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// MarkIndicatorShown flags the on-page indicator as injected; it returns
// false if it was already shown so callers inject at most once per page.
func (s *State) MarkIndicatorShown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indicatorShown {
		return false
	}
	s.indicatorShown = true
	return true
}

// Reset clears per-page state on navigation.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.indicatorShown = false
}
