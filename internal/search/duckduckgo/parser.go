package duckduckgo

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/helixir/research-report-service/internal/search"
)

// parseResults extracts search results from the DuckDuckGo HTML result page.
// Each result is a block containing an anchor with class "result__a" (title
// and link) and an element with class "result__snippet".
func parseResults(r io.Reader, limit int) ([]search.Item, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var items []search.Item
	var current *search.Item

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(items) >= limit {
			return
		}

		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result"):
				if current != nil && current.URL != "" {
					items = append(items, *current)
				}
				current = &search.Item{}
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil {
					current.Title = strings.TrimSpace(textContent(n))
					current.URL = resolveResultURL(attrValue(n, "href"))
				}
			case hasClass(n, "result__snippet"):
				if current != nil {
					current.Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if current != nil && current.URL != "" && len(items) < limit {
		items = append(items, *current)
	}

	return items, nil
}

// resolveResultURL decodes DuckDuckGo's redirect links. Result anchors point
// at //duckduckgo.com/l/?uddg=<escaped target>; the target URL is recovered
// from the uddg parameter. Direct links are returned unchanged.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}

	// Query() already unescapes the parameter value.
	if uddg := parsed.Query().Get("uddg"); uddg != "" {
		return uddg
	}

	return href
}

// hasClass reports whether the node's class attribute contains the given class.
func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// attrValue returns the value of the named attribute, or empty string.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent returns the concatenated text of the node and its descendants.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
