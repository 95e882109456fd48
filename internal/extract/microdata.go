package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/model"
)

// MicrodataCollector reads schema.org items from HTML microdata
type MicrodataCollector struct {
	schema *SchemaOrgCollector
}

// Name returns the collector tag
func (c *MicrodataCollector) Name() string { return TagMicrodata }

// CanHandle accepts HTML pages
func (c *MicrodataCollector) CanHandle(in *Input) bool { return isHTML(in) }

// Collect maps the first top-level schema.org item of an accepted type
func (c *MicrodataCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	doc, err := in.Doc()
	if err != nil {
		return nil, apperr.Parse("microdata", err)
	}

	top := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasAttr(n, "itemscope") && !hasAttr(n, "itemprop")
	})
	for _, n := range top {
		if !isSchemaOrgURL(attr(n, "itemtype")) {
			continue
		}
		item := microdataItem(n)
		if !c.schema.accepted(item) {
			continue
		}
		props, err := c.schema.MapObject(item)
		if err != nil {
			return nil, err
		}
		frag := newFragment(TagMicrodata, FormatHTML, in)
		frag.Schema = "https://schema.org"
		frag.Namespaces = []string{SchemaOrgNamespace}
		frag.Properties = props
		return frag, nil
	}
	return nil, ErrNoMetadata
}

// microdataItem builds a JSON-like object from an itemscope element
func microdataItem(n *html.Node) map[string]any {
	item := map[string]any{}
	var types []any
	for _, t := range strings.Fields(attr(n, "itemtype")) {
		types = append(types, stripSchemaPrefix(t))
	}
	if len(types) == 1 {
		item["@type"] = types[0]
	} else if len(types) > 1 {
		item["@type"] = types
	}
	if id := attr(n, "itemid"); id != "" {
		item["@id"] = id
	}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for ch := node.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type != html.ElementNode {
				continue
			}
			names := strings.Fields(attr(ch, "itemprop"))
			scoped := hasAttr(ch, "itemscope")
			if len(names) > 0 {
				var value any
				if scoped {
					value = microdataItem(ch)
				} else {
					value = propertyValue(ch)
				}
				for _, name := range names {
					appendValue(item, stripSchemaPrefix(name), value)
				}
			}
			if !scoped {
				walk(ch)
			}
		}
	}
	walk(n)
	return item
}

// propertyValue returns the value of a microdata or RDFa property element
func propertyValue(n *html.Node) string {
	if v, ok := attrValue(n, "content"); ok {
		return v
	}
	switch n.Data {
	case "a", "link", "area":
		return strings.TrimSpace(attr(n, "href"))
	case "img", "audio", "video", "source", "embed", "iframe", "track":
		return strings.TrimSpace(attr(n, "src"))
	case "object":
		return strings.TrimSpace(attr(n, "data"))
	case "data", "meter":
		return strings.TrimSpace(attr(n, "value"))
	case "time":
		if v := attr(n, "datetime"); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return text(n)
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}

func appendValue(obj map[string]any, key string, value any) {
	if s, ok := value.(string); ok && s == "" {
		return
	}
	switch cur := obj[key].(type) {
	case nil:
		obj[key] = value
	case []any:
		obj[key] = append(cur, value)
	default:
		obj[key] = []any{cur, value}
	}
}

// rdfaInitialContext holds the prefixes predefined for RDFa documents
var rdfaInitialContext = map[string]string{
	"schema":  SchemaOrgNamespace,
	"dc":      DCTermsNamespace,
	"dcterms": DCTermsNamespace,
	"dc11":    DCElementsNamespace,
	"og":      OpenGraphNamespace,
	"foaf":    "http://xmlns.com/foaf/0.1/",
	"dcat":    "http://www.w3.org/ns/dcat#",
	"prov":    "http://www.w3.org/ns/prov#",
	"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",
	"skos":    "http://www.w3.org/2004/02/skos/core#",
}

// RDFaCollector reads RDFa (Lite) annotations with schema.org or Dublin Core terms
type RDFaCollector struct {
	schema *SchemaOrgCollector
}

// Name returns the collector tag
func (c *RDFaCollector) Name() string { return TagRDFa }

// CanHandle accepts HTML pages
func (c *RDFaCollector) CanHandle(in *Input) bool { return isHTML(in) }

type rdfaScope struct {
	vocab    string
	prefixes map[string]string
}

type rdfaResult struct {
	objects    []map[string]any
	root       map[string]any
	namespaces map[string]bool
	annotated  bool
}

// Collect maps the first schema.org subject of an accepted type and Dublin Core properties
func (c *RDFaCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	doc, err := in.Doc()
	if err != nil {
		return nil, apperr.Parse("rdfa", err)
	}

	res := &rdfaResult{root: map[string]any{}, namespaces: map[string]bool{}}
	rdfaWalk(doc, rdfaScope{prefixes: rdfaInitialContext}, nil, res)
	if !res.annotated {
		return nil, ErrNoMetadata
	}

	props := model.Properties{}
	for _, obj := range res.objects {
		if !c.schema.accepted(obj) {
			continue
		}
		mapped, err := c.schema.MapObject(obj)
		if err != nil {
			return nil, err
		}
		props = mapped
		break
	}

	raw := make(map[model.Key]any)
	for _, obj := range append([]map[string]any{res.root}, res.objects...) {
		for k, v := range obj {
			term, ok := strings.CutPrefix(k, "dc:")
			if !ok {
				continue
			}
			if key, known := dcTerms[strings.ToLower(term)]; known {
				for _, s := range stringValues(v) {
					addValue(raw, key, s)
				}
			}
		}
	}
	for k, v := range toProperties(raw, multiValued(raw)) {
		if !props.Has(k) {
			props[k] = v
		}
	}
	if len(props) == 0 {
		return nil, ErrNoMetadata
	}

	frag := newFragment(TagRDFa, FormatHTML, in)
	frag.Schema = "rdfa"
	frag.Namespaces = sortedKeys(res.namespaces)
	frag.Properties = props
	return frag, nil
}

func rdfaWalk(n *html.Node, scope rdfaScope, cur map[string]any, res *rdfaResult) {
	if n.Type == html.ElementNode {
		if v, ok := attrValue(n, "vocab"); ok {
			scope.vocab = v
			if v != "" {
				res.namespaces[v] = true
			}
		}
		if p := attr(n, "prefix"); p != "" {
			declared := parsePrefixes(p)
			scope.prefixes = withPrefixes(scope.prefixes, declared)
			for _, ns := range declared {
				res.namespaces[ns] = true
			}
		}

		props := strings.Fields(attr(n, "property"))
		if hasAttr(n, "typeof") {
			obj := map[string]any{}
			var types []any
			for _, t := range strings.Fields(attr(n, "typeof")) {
				ns, local := expandTerm(t, scope)
				if ns != "" {
					res.namespaces[ns] = true
				}
				types = append(types, local)
			}
			if len(types) == 1 {
				obj["@type"] = types[0]
			} else if len(types) > 1 {
				obj["@type"] = types
			}
			if id := attr(n, "resource"); id != "" {
				obj["@id"] = id
			}
			res.annotated = true
			if len(props) > 0 && cur != nil {
				for _, p := range props {
					appendValue(cur, rdfaKey(p, scope, res), obj)
				}
			} else {
				res.objects = append(res.objects, obj)
			}
			cur = obj
		} else if len(props) > 0 {
			target := cur
			if target == nil {
				target = res.root
			}
			value := propertyValue(n)
			if r := attr(n, "resource"); r != "" {
				value = r
			}
			for _, p := range props {
				appendValue(target, rdfaKey(p, scope, res), value)
			}
			res.annotated = true
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		rdfaWalk(ch, scope, cur, res)
	}
}

// rdfaKey names a property: schema.org terms by local name, Dublin Core terms
// as dc:<term>, everything else by full IRI
func rdfaKey(term string, scope rdfaScope, res *rdfaResult) string {
	ns, local := expandTerm(term, scope)
	if ns != "" {
		res.namespaces[ns] = true
	}
	switch {
	case isSchemaOrgURL(ns):
		return local
	case ns == DCTermsNamespace || ns == DCElementsNamespace:
		return "dc:" + local
	default:
		return ns + local
	}
}

func expandTerm(term string, scope rdfaScope) (ns, local string) {
	if strings.HasPrefix(term, "http://") || strings.HasPrefix(term, "https://") {
		if i := strings.LastIndexAny(term, "#/"); i >= 0 {
			return term[:i+1], term[i+1:]
		}
		return term, ""
	}
	if prefix, rest, ok := strings.Cut(term, ":"); ok {
		if ns, known := scope.prefixes[prefix]; known {
			return ns, rest
		}
	}
	if isSchemaOrgURL(scope.vocab) {
		return SchemaOrgNamespace, term
	}
	return scope.vocab, term
}

// parsePrefixes reads a prefix attribute ("dc: http://purl.org/dc/terms/ ...")
func parsePrefixes(decl string) map[string]string {
	out := make(map[string]string)
	fields := strings.Fields(decl)
	for i := 0; i+1 < len(fields); i += 2 {
		out[strings.TrimSuffix(fields[i], ":")] = fields[i+1]
	}
	return out
}

func withPrefixes(base, declared map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(declared))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range declared {
		out[k] = v
	}
	return out
}
