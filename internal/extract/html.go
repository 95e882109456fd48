package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/fairmeter/internal/fetch"
)

// attr gets an attribute value from a node
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

// text extracts the whitespace-collapsed text content of a node
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// findAll finds all nodes matching a predicate, in document order
func findAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}

// metaTag is a <meta> element keyed by name or property
type metaTag struct {
	Name    string
	Content string
	Scheme  string
}

// metaTags returns the meta tags of a document. The key is the name attribute,
// or the property attribute when name is absent.
func metaTags(doc *html.Node) []metaTag {
	var tags []metaTag
	for _, n := range findAll(doc, func(n *html.Node) bool { return isElement(n, "meta") }) {
		name := attr(n, "name")
		if name == "" {
			name = attr(n, "property")
		}
		content := strings.TrimSpace(attr(n, "content"))
		if name == "" || content == "" {
			continue
		}
		tags = append(tags, metaTag{Name: strings.TrimSpace(name), Content: content, Scheme: attr(n, "scheme")})
	}
	return tags
}

// TypedLinks returns the <link rel> elements of a document as typed links
func TypedLinks(doc *html.Node, base string) []fetch.TypedLink {
	baseURL, _ := url.Parse(base)

	var links []fetch.TypedLink
	for _, n := range findAll(doc, func(n *html.Node) bool { return isElement(n, "link") }) {
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" {
			continue
		}
		target := resolve(baseURL, href)
		for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
			links = append(links, fetch.TypedLink{
				URL:     target,
				Rel:     rel,
				Type:    strings.ToLower(strings.TrimSpace(attr(n, "type"))),
				Profile: attr(n, "profile"),
				Source:  fetch.SourceHTML,
			})
		}
	}
	return links
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
