package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// Vocabulary namespaces used by the RDF collector
const (
	RDFNamespace    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace   = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace    = "http://www.w3.org/2002/07/owl#"
	SKOSNamespace   = "http://www.w3.org/2004/02/skos/core#"
	DCATNamespace   = "http://www.w3.org/ns/dcat#"
	PROVNamespace   = "http://www.w3.org/ns/prov#"
	FOAFNamespace   = "http://xmlns.com/foaf/0.1/"
	VCardNamespace  = "http://www.w3.org/2006/vcard/ns#"
	httpsSchemaOrg  = "https://schema.org/"
	ianaMediaTypes  = "http://www.iana.org/assignments/media-types/"
	ianaMediaTypesS = "https://www.iana.org/assignments/media-types/"
)

const rdfType = RDFNamespace + "type"

// schemaPredicates maps schema.org properties to reference keys in RDF graphs
var schemaPredicates = map[string]model.Key{
	"name":                 model.KeyTitle,
	"headline":             model.KeyTitle,
	"description":          model.KeySummary,
	"creator":              model.KeyCreator,
	"author":               model.KeyCreator,
	"contributor":          model.KeyContributor,
	"publisher":            model.KeyPublisher,
	"datePublished":        model.KeyPublicationDate,
	"dateCreated":          model.KeyCreatedDate,
	"dateModified":         model.KeyModifiedDate,
	"keywords":             model.KeyKeywords,
	"identifier":           model.KeyObjectIdentifier,
	"license":              model.KeyLicense,
	"url":                  model.KeyLandingPage,
	"inLanguage":           model.KeyLanguage,
	"variableMeasured":     model.KeyMeasuredVariable,
	"measurementTechnique": model.KeyMethod,
	"conditionsOfAccess":   model.KeyAccessLevel,
	"isAccessibleForFree":  model.KeyAccessFree,
	"codeRepository":       model.KeyCodeRepository,
}

// otherPredicates maps full predicate IRIs outside schema.org and Dublin Core
var otherPredicates = map[string]model.Key{
	DCATNamespace + "keyword":         model.KeyKeywords,
	DCATNamespace + "landingPage":     model.KeyLandingPage,
	RDFSNamespace + "label":           model.KeyTitle,
	RDFSNamespace + "comment":         model.KeySummary,
	SKOSNamespace + "prefLabel":       model.KeyTitle,
	SKOSNamespace + "definition":      model.KeySummary,
	PROVNamespace + "wasGeneratedBy":  model.KeyProvenanceGeneral,
	PROVNamespace + "wasAttributedTo": model.KeyCreator,
	OWLNamespace + "versionInfo":      model.KeyModifiedDate,
}

// otherRelations maps full predicate IRIs to relation types
var otherRelations = map[string]string{
	PROVNamespace + "wasDerivedFrom":    "IsDerivedFrom",
	PROVNamespace + "wasRevisionOf":     "IsNewVersionOf",
	PROVNamespace + "wasQuotedFrom":     "References",
	OWLNamespace + "imports":            "References",
	OWLNamespace + "sameAs":             "IsIdenticalTo",
	DCATNamespace + "qualifiedRelation": "Relation",
}

// names are looked up for blank nodes and IRIs of agents
var namePredicates = []string{
	FOAFNamespace + "name", SchemaOrgNamespace + "name", httpsSchemaOrg + "name",
	VCardNamespace + "fn", RDFSNamespace + "label",
}

var (
	downloadPredicates = []string{
		DCATNamespace + "downloadURL", DCATNamespace + "accessURL",
		SchemaOrgNamespace + "contentUrl", httpsSchemaOrg + "contentUrl",
	}
	mediaTypePredicates = []string{
		DCATNamespace + "mediaType", DCTermsNamespace + "format",
		SchemaOrgNamespace + "encodingFormat", httpsSchemaOrg + "encodingFormat",
	}
)

// main subject kinds, in order of preference
var subjectKinds = []struct {
	types  []string
	schema string
	object string
}{
	{[]string{DCATNamespace + "Dataset"}, DCATNamespace, ""},
	{[]string{SchemaOrgNamespace + "Dataset", httpsSchemaOrg + "Dataset"}, SchemaOrgNamespace, ""},
	{[]string{DCATNamespace + "Catalog"}, DCATNamespace, ""},
	{[]string{OWLNamespace + "Ontology"}, OWLNamespace, "Ontology"},
	{[]string{SKOSNamespace + "ConceptScheme"}, SKOSNamespace, "ConceptScheme"},
}

// RDFCollector parses Turtle, RDF/XML, N-Triples, N-Quads and JSON-LD graphs
type RDFCollector struct {
	ref    *refdata.Provider
	loader ld.DocumentLoader
}

// Name returns the collector tag
func (c *RDFCollector) Name() string { return TagRDF }

// CanHandle accepts RDF media types and XML documents rooted at rdf:RDF
func (c *RDFCollector) CanHandle(in *Input) bool {
	switch in.Class() {
	case fetch.ClassRDF, fetch.ClassJSONLD:
		return true
	case fetch.ClassXML:
		root, err := rootElement(in.Body)
		return err == nil && root.Space == RDFNamespace && root.Local == "RDF"
	}
	return false
}

// Collect decodes the graph and maps its main subject
func (c *RDFCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	triples, err := c.Decode(in)
	if err != nil {
		return nil, apperr.Parse("rdf", err)
	}
	if len(triples) == 0 {
		return nil, ErrNoMetadata
	}

	g := newGraph(triples)
	frag := newFragment(TagRDF, FormatRDF, in)
	frag.Namespaces = g.namespaces()

	subject, schema, objectType := g.mainSubject(in.URL)
	frag.Schema = schema
	if subject == "" {
		return frag, nil
	}

	raw := c.mapSubject(g, subject)
	if objectType != "" {
		raw[model.KeyObjectType] = objectType
	} else if types := g.objects(subject, rdfType); len(types) > 0 {
		raw[model.KeyObjectType] = localName(types[0].String())
	}
	if items := g.distributions(subject); len(items) > 0 {
		raw[model.KeyObjectContentIdentifier] = items
	}
	if _, ok := raw[model.KeyObjectIdentifier]; !ok && !isBlank(subject) {
		raw[model.KeyObjectIdentifier] = subject
	}
	frag.Properties = toProperties(raw, defaultListKeys)
	return frag, nil
}

// Decode parses the input into triples according to its media type
func (c *RDFCollector) Decode(in *Input) ([]rdf.Triple, error) {
	mt := in.mediaType()
	switch {
	case mt == "application/ld+json" || mt == "application/vnd.schemaorg.ld+json":
		return c.decodeJSONLD(in)
	case mt == "application/n-quads" || mt == "application/trig":
		return decodeQuads(in.Body)
	case mt == "application/n-triples":
		return rdf.NewTripleDecoder(bytes.NewReader(in.Body), rdf.NTriples).DecodeAll()
	case mt == "application/rdf+xml" || in.Class() == fetch.ClassXML:
		return rdf.NewTripleDecoder(bytes.NewReader(in.Body), rdf.RDFXML).DecodeAll()
	default:
		return rdf.NewTripleDecoder(bytes.NewReader(in.Body), rdf.Turtle).DecodeAll()
	}
}

func (c *RDFCollector) decodeJSONLD(in *Input) ([]rdf.Triple, error) {
	var doc any
	if err := json.Unmarshal(in.Body, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON-LD: %w", err)
	}
	opts := ld.NewJsonLdOptions(in.URL)
	opts.Format = "application/n-quads"
	opts.DocumentLoader = c.loader

	out, err := ld.NewJsonLdProcessor().ToRDF(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("JSON-LD to RDF: %w", err)
	}
	nquads, _ := out.(string)
	return decodeQuads([]byte(nquads))
}

func decodeQuads(body []byte) ([]rdf.Triple, error) {
	quads, err := rdf.NewQuadDecoder(bytes.NewReader(body), rdf.NQuads).DecodeAll()
	if err != nil {
		return nil, err
	}
	triples := make([]rdf.Triple, len(quads))
	for i, q := range quads {
		triples[i] = q.Triple
	}
	return triples, nil
}

func (c *RDFCollector) mapSubject(g *graph, subject string) map[model.Key]any {
	raw := make(map[model.Key]any)
	var rels []model.RelatedResource
	schemaRels := c.ref.Projection("schemaorg").Relations

	for _, t := range g.bySubject[subject] {
		pred := t.Pred.String()
		ns, local := splitIRI(pred)

		if rt, ok := relationType(ns, local, pred, schemaRels); ok {
			for _, v := range g.render(t.Obj) {
				rels = append(rels, model.RelatedResource{RelationType: rt, Identifier: v})
			}
			continue
		}

		var key model.Key
		var known bool
		switch {
		case ns == DCTermsNamespace || ns == DCElementsNamespace:
			key, known = dcTerms[strings.ToLower(local)]
		case ns == SchemaOrgNamespace || ns == httpsSchemaOrg:
			key, known = schemaPredicates[local]
		default:
			key, known = otherPredicates[pred]
		}
		if !known {
			continue
		}
		for _, v := range g.render(t.Obj) {
			addValue(raw, key, v)
		}
	}
	if len(rels) > 0 {
		raw[model.KeyRelatedResources] = rels
	}
	return raw
}

func relationType(ns, local, pred string, schemaRels map[string]string) (string, bool) {
	switch {
	case ns == DCTermsNamespace || ns == DCElementsNamespace:
		rt, ok := dcRelations[strings.ToLower(local)]
		return rt, ok
	case ns == SchemaOrgNamespace || ns == httpsSchemaOrg:
		rt, ok := schemaRels[local]
		return rt, ok
	default:
		rt, ok := otherRelations[pred]
		return rt, ok
	}
}

// graph indexes triples by subject
type graph struct {
	triples   []rdf.Triple
	bySubject map[string][]rdf.Triple
	order     []string
}

func newGraph(triples []rdf.Triple) *graph {
	g := &graph{triples: triples, bySubject: make(map[string][]rdf.Triple)}
	for _, t := range triples {
		k := termKey(t.Subj)
		if _, seen := g.bySubject[k]; !seen {
			g.order = append(g.order, k)
		}
		g.bySubject[k] = append(g.bySubject[k], t)
	}
	return g
}

func termKey(t rdf.Term) string {
	if t.Type() == rdf.TermBlank {
		return "_:" + strings.TrimPrefix(t.String(), "_:")
	}
	return t.String()
}

func isBlank(key string) bool {
	return strings.HasPrefix(key, "_:")
}

func (g *graph) objects(subject, pred string) []rdf.Term {
	var out []rdf.Term
	for _, t := range g.bySubject[subject] {
		if t.Pred.String() == pred {
			out = append(out, t.Obj)
		}
	}
	return out
}

func (g *graph) first(subject string, preds ...string) string {
	for _, p := range preds {
		for _, o := range g.objects(subject, p) {
			if v := g.render(o); len(v) > 0 {
				return v[0]
			}
		}
	}
	return ""
}

// render turns an object into strings; agents become their names
func (g *graph) render(o rdf.Term) []string {
	switch o.Type() {
	case rdf.TermLiteral:
		if s := strings.TrimSpace(o.String()); s != "" {
			return []string{s}
		}
		return nil
	case rdf.TermBlank:
		if name := g.name(termKey(o)); name != "" {
			return []string{name}
		}
		return nil
	default:
		if name := g.name(o.String()); name != "" {
			return []string{name}
		}
		return []string{o.String()}
	}
}

func (g *graph) name(subject string) string {
	for _, p := range namePredicates {
		for _, o := range g.objects(subject, p) {
			if o.Type() == rdf.TermLiteral {
				return strings.TrimSpace(o.String())
			}
		}
	}
	return ""
}

// mainSubject picks the described resource: a typed dataset, catalog or
// ontology, else the subject named by the document URL
func (g *graph) mainSubject(docURL string) (subject, schema, objectType string) {
	for _, kind := range subjectKinds {
		for _, s := range g.order {
			for _, o := range g.objects(s, rdfType) {
				if contains(kind.types, o.String()) {
					return s, kind.schema, kind.object
				}
			}
		}
	}
	if _, ok := g.bySubject[docURL]; ok && docURL != "" {
		return docURL, "", ""
	}
	return "", "", ""
}

// distributions returns the data links of DCAT or schema.org distributions
func (g *graph) distributions(subject string) []model.ContentItem {
	var items []model.ContentItem
	for _, pred := range []string{DCATNamespace + "distribution", SchemaOrgNamespace + "distribution", httpsSchemaOrg + "distribution"} {
		for _, o := range g.objects(subject, pred) {
			d := termKey(o)
			item := model.ContentItem{
				URL:         g.first(d, downloadPredicates...),
				Name:        g.first(d, DCTermsNamespace+"title", SchemaOrgNamespace+"name", httpsSchemaOrg+"name"),
				ClaimedType: mediaTypeValue(g.first(d, mediaTypePredicates...)),
				ClaimedSize: g.first(d, DCATNamespace+"byteSize", SchemaOrgNamespace+"contentSize", httpsSchemaOrg+"contentSize"),
			}
			if item.URL == "" && !isBlank(d) {
				item.URL = d
			}
			if item.URL != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

// namespaces returns the namespaces of all predicates and types, sorted
func (g *graph) namespaces() []string {
	seen := make(map[string]bool)
	for _, t := range g.triples {
		pred := t.Pred.String()
		if ns, _ := splitIRI(pred); ns != "" {
			seen[ns] = true
		}
		if pred == rdfType && t.Obj.Type() == rdf.TermIRI {
			if ns, _ := splitIRI(t.Obj.String()); ns != "" {
				seen[ns] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func splitIRI(iri string) (ns, local string) {
	i := strings.LastIndexAny(iri, "#/")
	if i < 0 || i == len(iri)-1 && !strings.HasSuffix(iri, "#") {
		return "", iri
	}
	return iri[:i+1], iri[i+1:]
}

func localName(iri string) string {
	_, local := splitIRI(iri)
	return local
}

// mediaTypeValue turns IANA media type IRIs into plain media types
func mediaTypeValue(v string) string {
	for _, p := range []string{ianaMediaTypes, ianaMediaTypesS} {
		if strings.HasPrefix(v, p) {
			return strings.TrimPrefix(v, p)
		}
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
