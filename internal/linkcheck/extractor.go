// Package linkcheck verifies the rendered site: every link between pages
// must point at a file that exists in the output, fragments must match an
// element id on the target page. External URLs are collected for the report
// but never fetched.
package linkcheck

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link is one reference extracted from a rendered page.
type Link struct {
	URL       string // raw attribute value
	Text      string // link text or alt text
	Tag       string // a, img, link, script
	Attribute string // href or src
	Page      string // site-relative path of the page it appears on
}

// pageData is what one parsed HTML file contributes to the check: its
// outgoing links and the element ids fragments can target.
type pageData struct {
	links []Link
	ids   map[string]bool
}

// extractPage parses a rendered page, collecting the link-bearing elements
// and every element id.
func extractPage(r io.Reader, page string) (*pageData, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page, err)
	}

	data := &pageData{ids: make(map[string]bool)}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := getAttr(n, "id"); id != "" {
				data.ids[id] = true
			}
			collectElementLink(n, page, &data.links)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return data, nil
}

func collectElementLink(n *html.Node, page string, links *[]Link) {
	switch n.Data {
	case "a":
		if href := getAttr(n, "href"); href != "" {
			*links = append(*links, Link{URL: href, Text: nodeText(n), Tag: "a", Attribute: "href", Page: page})
		}
	case "img":
		if src := getAttr(n, "src"); src != "" {
			*links = append(*links, Link{URL: src, Text: getAttr(n, "alt"), Tag: "img", Attribute: "src", Page: page})
		}
	case "link":
		if href := getAttr(n, "href"); href != "" {
			*links = append(*links, Link{URL: href, Text: getAttr(n, "rel"), Tag: "link", Attribute: "href", Page: page})
		}
	case "script":
		if src := getAttr(n, "src"); src != "" {
			*links = append(*links, Link{URL: src, Tag: "script", Attribute: "src", Page: page})
		}
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(nodeText(c))
	}
	return strings.TrimSpace(text.String())
}

// skipLink reports whether a destination is outside the checker's scope:
// pseudo-protocols and inline data.
func skipLink(raw string) bool {
	return raw == "" ||
		strings.HasPrefix(raw, "mailto:") ||
		strings.HasPrefix(raw, "tel:") ||
		strings.HasPrefix(raw, "javascript:") ||
		strings.HasPrefix(raw, "data:")
}

// isExternal reports whether a parsed URL leaves the site.
func isExternal(u *url.URL) bool {
	return u.Scheme != "" || u.Host != ""
}
