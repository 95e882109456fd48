package fetch

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type linksetTarget struct {
	Href    string `json:"href"`
	Type    string `json:"type"`
	Profile any    `json:"profile"`
}

// ParseLinkset parses a linkset document (application/linkset+json or the
// Link-header style application/linkset) into typed links
func ParseLinkset(body []byte, contentType, base string) ([]TypedLink, error) {
	if MediaType(contentType) == "application/linkset" {
		text := strings.ReplaceAll(string(body), "\n", " ")
		links := ParseLinkHeader([]string{text}, base)
		for i := range links {
			links[i].Source = SourceLinkset
		}
		return links, nil
	}

	var doc struct {
		Linkset []map[string]json.RawMessage `json:"linkset"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode linkset: %w", err)
	}

	baseURL, _ := url.Parse(base)

	var links []TypedLink
	for _, ctx := range doc.Linkset {
		var anchor string
		if raw, ok := ctx["anchor"]; ok {
			_ = json.Unmarshal(raw, &anchor)
			anchor = resolveRef(baseURL, anchor)
		}

		rels := make([]string, 0, len(ctx))
		for rel := range ctx {
			if rel != "anchor" {
				rels = append(rels, rel)
			}
		}
		// map iteration order is random
		sort.Strings(rels)

		for _, rel := range rels {
			var targets []linksetTarget
			if err := json.Unmarshal(ctx[rel], &targets); err != nil {
				continue
			}
			for _, t := range targets {
				if t.Href == "" {
					continue
				}
				links = append(links, TypedLink{
					URL:     resolveRef(baseURL, t.Href),
					Rel:     relName(rel),
					Type:    t.Type,
					Profile: profileString(t.Profile),
					Anchor:  anchor,
					Source:  SourceLinkset,
				})
			}
		}
	}
	return links, nil
}

// relName shortens IANA relation URIs to their registered names
func relName(rel string) string {
	rel = strings.ToLower(rel)
	return strings.TrimPrefix(rel, "http://www.iana.org/assignments/relation/")
}

func profileString(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
