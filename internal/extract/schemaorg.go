package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// SchemaOrgNamespace is recorded for every schema.org fragment
const SchemaOrgNamespace = "http://schema.org/"

// SchemaOrgCollector reads schema.org JSON-LD, embedded as islands in HTML or negotiated
type SchemaOrgCollector struct {
	ref  *refdata.Provider
	proj *Projector
}

// Name returns the collector tag
func (c *SchemaOrgCollector) Name() string { return TagSchemaOrg }

// CanHandle accepts HTML pages and JSON documents with a schema.org context
func (c *SchemaOrgCollector) CanHandle(in *Input) bool {
	if isHTML(in) {
		return true
	}
	switch in.Class() {
	case fetch.ClassSchemaOrgJSONLD, fetch.ClassJSONLD, fetch.ClassJSON:
	default:
		return false
	}
	var doc any
	if err := json.Unmarshal(in.Body, &doc); err != nil {
		return false
	}
	return hasSchemaContext(contextOf(doc))
}

// Collect maps the first schema.org object of an accepted type
func (c *SchemaOrgCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	format := FormatJSONLD
	var islands [][]byte
	if isHTML(in) {
		doc, err := in.Doc()
		if err != nil {
			return nil, apperr.Parse("schemaorg", err)
		}
		islands = jsonLDIslands(doc)
		format = FormatHTML
	} else {
		islands = [][]byte{in.Body}
	}
	if len(islands) == 0 {
		return nil, ErrNoMetadata
	}

	var parseErr error
	var rejected []string
	for _, island := range islands {
		var doc any
		if err := json.Unmarshal(island, &doc); err != nil {
			parseErr = err
			continue
		}
		obj, types := c.findObject(doc)
		if obj == nil {
			rejected = append(rejected, types...)
			continue
		}
		frag := c.fragment(obj, in)
		frag.Format = format
		for _, uri := range contextURIs(contextOf(doc)) {
			if !isSchemaOrgURL(uri) {
				frag.Namespaces = append(frag.Namespaces, uri)
			}
		}
		return frag, nil
	}

	if parseErr != nil {
		return nil, apperr.Parse("schemaorg", fmt.Errorf("invalid JSON-LD: %w", parseErr))
	}
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: schema.org type %s not accepted", ErrNoMetadata, strings.Join(dedupe(rejected), ", "))
	}
	return nil, ErrNoMetadata
}

// MapObject projects a normalized schema.org object onto the reference vocabulary
func (c *SchemaOrgCollector) MapObject(obj map[string]any) (model.Properties, error) {
	raw, err := c.proj.Project(c.ref.Projection("schemaorg"), obj)
	if err != nil {
		return nil, err
	}
	if rels := c.proj.Relations(c.ref.Projection("schemaorg"), obj); len(rels) > 0 {
		raw[model.KeyRelatedResources] = rels
	}
	// licenses are URLs or ids, not display names
	if lic, ok := obj["license"]; ok {
		if ids := identifierValues(lic); len(ids) > 0 {
			raw[model.KeyLicense] = ids
		}
	}
	if types := stringValues(obj["@type"]); len(types) > 0 {
		raw[model.KeyObjectType] = types[0]
	}
	return toProperties(raw, defaultListKeys), nil
}

func (c *SchemaOrgCollector) fragment(obj map[string]any, in *Input) *model.MetadataFragment {
	frag := newFragment(TagSchemaOrg, FormatJSONLD, in)
	frag.Schema = "https://schema.org"
	frag.Namespaces = []string{SchemaOrgNamespace}
	props, err := c.MapObject(obj)
	if err == nil {
		frag.Properties = props
	}
	return frag
}

// findObject walks top-level objects, arrays and @graph members. It returns the
// first object of an accepted type and the types it rejected otherwise.
func (c *SchemaOrgCollector) findObject(doc any) (map[string]any, []string) {
	var rejected []string
	var visit func(v any, inherited bool) map[string]any
	visit = func(v any, inherited bool) map[string]any {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if found := visit(item, inherited); found != nil {
					return found
				}
			}
		case map[string]any:
			ok := inherited || hasSchemaContext(t["@context"])
			if !ok {
				return nil
			}
			obj := normalizeKeys(t).(map[string]any)
			if graph, has := obj["@graph"]; has {
				return visit(graph, true)
			}
			if c.accepted(obj) {
				return obj
			}
			// landing pages wrap the record
			if main, has := obj["mainEntity"].(map[string]any); has && c.accepted(main) {
				return main
			}
			rejected = append(rejected, stringValues(obj["@type"])...)
		}
		return nil
	}
	return visit(doc, false), rejected
}

func (c *SchemaOrgCollector) accepted(obj map[string]any) bool {
	for _, t := range stringValues(obj["@type"]) {
		if c.ref.IsSchemaOrgType(t) {
			return true
		}
	}
	return false
}

func jsonLDIslands(doc *html.Node) [][]byte {
	var islands [][]byte
	for _, n := range findAll(doc, func(n *html.Node) bool { return isElement(n, "script") }) {
		if fetch.MediaType(attr(n, "type")) != "application/ld+json" {
			continue
		}
		var b strings.Builder
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			b.WriteString(ch.Data)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			islands = append(islands, []byte(s))
		}
	}
	return islands
}

func contextOf(doc any) any {
	switch t := doc.(type) {
	case map[string]any:
		return t["@context"]
	case []any:
		for _, item := range t {
			if ctx := contextOf(item); ctx != nil {
				return ctx
			}
		}
	}
	return nil
}

func hasSchemaContext(ctx any) bool {
	switch t := ctx.(type) {
	case string:
		return isSchemaOrgURL(t) || isCodeMetaURL(t)
	case []any:
		for _, item := range t {
			if hasSchemaContext(item) {
				return true
			}
		}
	case map[string]any:
		if v, ok := t["@vocab"].(string); ok && isSchemaOrgURL(v) {
			return true
		}
		for _, v := range t {
			if s, ok := v.(string); ok && isSchemaOrgURL(s) {
				return true
			}
		}
	}
	return false
}

// contextURIs lists the string entries of a JSON-LD @context
func contextURIs(ctx any) []string {
	var out []string
	switch t := ctx.(type) {
	case string:
		if t != "" {
			out = append(out, t)
		}
	case []any:
		for _, item := range t {
			out = append(out, contextURIs(item)...)
		}
	case map[string]any:
		if v, ok := t["@vocab"].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CodeMeta contexts extend schema.org
func isCodeMetaURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Contains(s, "w3id.org/codemeta") ||
		strings.Contains(s, "codemeta.github.io") ||
		strings.Contains(s, "10.5063/schema/codemeta")
}

func isSchemaOrgURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://schema.org") || strings.HasPrefix(s, "https://schema.org")
}

// normalizeKeys strips schema.org prefixes from keys and types
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			nk := stripSchemaPrefix(k)
			if nk == "@type" {
				val = normalizeTypes(val)
			}
			if _, exists := out[nk]; exists && nk != k {
				continue
			}
			out[nk] = normalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeKeys(item)
		}
		return out
	default:
		return v
	}
}

func normalizeTypes(v any) any {
	switch t := v.(type) {
	case string:
		return stripSchemaPrefix(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeTypes(item)
		}
		return out
	default:
		return v
	}
}

func stripSchemaPrefix(s string) string {
	for _, p := range []string{"http://schema.org/", "https://schema.org/", "schema:"} {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):]
		}
	}
	return s
}
