package fetch

import (
	"net/url"
	"strings"

	"github.com/tomnomnom/linkheader"
)

// Link sources
const (
	SourceHeader  = "header"
	SourceHTML    = "html"
	SourceLinkset = "linkset"
)

// SignpostingRels are the relation types that make up signposting
var SignpostingRels = []string{
	"describedby", "item", "license", "type", "collection", "author", "linkset", "cite-as",
}

// TypedLink is a link with a relation type, from a Link header, HTML head or linkset
type TypedLink struct {
	URL     string `json:"url"`
	Rel     string `json:"rel"`
	Type    string `json:"type,omitempty"`
	Profile string `json:"profile,omitempty"`
	Anchor  string `json:"anchor,omitempty"`
	Source  string `json:"source,omitempty"`
}

// IsSignposting reports whether the link relation is a signposting relation
func (l TypedLink) IsSignposting() bool {
	return contains(SignpostingRels, l.Rel)
}

// ParseLinkHeader parses RFC 8288 Link header values. Relative targets are
// resolved against base. A link with several relation types yields one
// TypedLink per relation.
func ParseLinkHeader(values []string, base string) []TypedLink {
	baseURL, _ := url.Parse(base)

	var links []TypedLink
	for _, l := range linkheader.ParseMultiple(shieldSeparators(values)) {
		target := resolveRef(baseURL, unshield(l.URL))
		rels := strings.Fields(strings.ToLower(unshield(l.Rel)))
		if target == "" || len(rels) == 0 {
			continue
		}
		anchor := param(l, "anchor")
		if anchor != "" {
			anchor = resolveRef(baseURL, anchor)
		}
		for _, rel := range rels {
			links = append(links, TypedLink{
				URL:     target,
				Rel:     rel,
				Type:    param(l, "type"),
				Profile: param(l, "profile"),
				Anchor:  anchor,
				Source:  SourceHeader,
			})
		}
	}
	return links
}

// linkheader splits on every comma and semicolon, so the ones inside <> and
// quoted strings are swapped for control characters no header may carry
const (
	shieldComma     = "\x00"
	shieldSemicolon = "\x01"
)

var unshieldReplacer = strings.NewReplacer(shieldComma, ",", shieldSemicolon, ";")

func shieldSeparators(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		var b strings.Builder
		inURL, inQuote := false, false
		for _, r := range value {
			switch {
			case r == '<' && !inQuote:
				inURL = true
			case r == '>' && !inQuote:
				inURL = false
			case r == '"' && !inURL:
				inQuote = !inQuote
			case r == ',' && (inURL || inQuote):
				b.WriteString(shieldComma)
				continue
			case r == ';' && (inURL || inQuote):
				b.WriteString(shieldSemicolon)
				continue
			}
			b.WriteRune(r)
		}
		out = append(out, b.String())
	}
	return out
}

func unshield(s string) string {
	return strings.TrimSpace(unshieldReplacer.Replace(s))
}

// param returns a link parameter by case-insensitive name
func param(l linkheader.Link, name string) string {
	for k, v := range l.Params {
		if strings.EqualFold(k, name) {
			return unshield(v)
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	if base == nil || ref == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// FilterRel returns the links with one of the given relation types, preserving order
func FilterRel(links []TypedLink, rels ...string) []TypedLink {
	var out []TypedLink
	for _, l := range links {
		if contains(rels, l.Rel) {
			out = append(out, l)
		}
	}
	return out
}

// Signposting returns the signposting links that apply to anchor (or have no anchor)
func Signposting(links []TypedLink, anchor string) []TypedLink {
	var out []TypedLink
	for _, l := range links {
		if !l.IsSignposting() {
			continue
		}
		if l.Anchor != "" && anchor != "" && !sameURL(l.Anchor, anchor) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// DedupeLinks drops repeated (url, rel) pairs, keeping the first
func DedupeLinks(links []TypedLink) []TypedLink {
	seen := make(map[string]bool, len(links))
	out := make([]TypedLink, 0, len(links))
	for _, l := range links {
		key := l.Rel + " " + l.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
