// Package coafetch retrieves user-supplied lab-report documents. Because the
// URL comes straight from an untrusted page, fetches are guarded: http(s)
// only, no private or loopback targets, hard timeout, capped body size.
package coafetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kushscan/kushscan/internal/domain"
)

// Fetcher downloads a COA document and reduces it to plain text.
type Fetcher struct {
	httpClient   *http.Client
	maxBodyBytes int64
	maxTextChars int
}

// NewFetcher creates a fetcher with a hard timeout distinct from the
// generation call's own timeout.
func NewFetcher(timeout time.Duration, maxBodyBytes int64, maxTextChars int) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 2 << 20
	}
	if maxTextChars <= 0 {
		maxTextChars = 15000
	}

	transport := &http.Transport{
		DialContext: guardedDial,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxBodyBytes: maxBodyBytes,
		maxTextChars: maxTextChars,
	}
}

// FetchText retrieves the document at rawURL. Only text/HTML content is
// reduced to text; anything else (PDF included) is reported as a fetch
// failure so the caller degrades to URL-only analysis.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL: %v", domain.ErrDocumentFetch, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", domain.ErrDocumentFetch, parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDocumentFetch, err)
	}
	req.Header.Set("User-Agent", "KushScan/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Printf("[COAFetch] Request error: %v", err)
		return "", fmt.Errorf("%w: %v", domain.ErrDocumentFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrDocumentFetch, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		// PDFs and other binary reports are not parsed; the URL alone goes
		// to the model for naming-convention reasoning.
		return "", fmt.Errorf("%w: unsupported content type %q", domain.ErrDocumentFetch, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDocumentFetch, err)
	}

	text := string(body)
	if strings.Contains(contentType, "text/html") {
		text = stripTags(text)
	}
	text = collapseWhitespace(text)
	if len(text) > f.maxTextChars {
		// cut on a rune boundary so prompts never carry broken UTF-8
		cut := f.maxTextChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	log.Printf("[COAFetch] Fetched %s: %d chars after sanitization", parsed.Host, len(text))
	return text, nil
}

// guardedDial refuses connections to private, loopback, and link-local
// targets at dial time, after resolution, so DNS tricks cannot route a
// fetch into the local network.
func guardedDial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	var target net.IP
	for _, ip := range ips {
		if isForbiddenIP(ip.IP) {
			return nil, fmt.Errorf("refusing to fetch from non-public address %s", ip.IP)
		}
		if target == nil {
			target = ip.IP
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no addresses for %s", host)
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return dialer.DialContext(ctx, network, net.JoinHostPort(target.String(), port))
}

func isForbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// stripTags drops markup, script, and style content from an HTML document.
func stripTags(doc string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	var sb strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func skippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
