package detector

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// attr returns the value of the named attribute, or "" when absent.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// classContains reports whether any class token contains the substring,
// case-insensitively. Dispensary frameworks hash their class names, so
// substring matching is the only stable selector.
func classContains(n *html.Node, substr string) bool {
	lower := strings.ToLower(substr)
	for _, c := range strings.Fields(attr(n, "class")) {
		if strings.Contains(strings.ToLower(c), lower) {
			return true
		}
	}
	return false
}

// findFirst walks the tree pre-order and returns the first element node
// matching the predicate.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// findAll collects every element node matching the predicate, pre-order.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && pred(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return out
}

// findByTag returns the first element with the given tag name.
func findByTag(n *html.Node, tag string) *html.Node {
	return findFirst(n, func(node *html.Node) bool {
		return node.Data == tag
	})
}

// findByAttr returns the first element carrying attribute key=val.
func findByAttr(n *html.Node, key, val string) *html.Node {
	return findFirst(n, func(node *html.Node) bool {
		return attr(node, key) == val
	})
}

// textContent concatenates all text under the node with whitespace runs
// collapsed to single spaces.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// skippedTags are elements whose text never belongs in a visible-page
// snapshot.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"svg":      true,
}

// visibleText extracts the page's visible text, skipping scripts, styles
// and chrome, with whitespace collapsed and a hard character cap.
func visibleText(n *html.Node, maxChars int) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && skippedTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if maxChars > 0 && len(text) > maxChars {
		text = truncateOnRune(text, maxChars)
	}
	return text
}

// truncateOnRune cuts s to at most max bytes without splitting a rune.
func truncateOnRune(s string, max int) string {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
