package extract

import (
	"sort"
	"strings"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/model"
)

// Dublin Core namespaces
const (
	DCElementsNamespace = "http://purl.org/dc/elements/1.1/"
	DCTermsNamespace    = "http://purl.org/dc/terms/"
	OpenGraphNamespace  = "http://ogp.me/ns#"
)

// dcTerms maps Dublin Core element and term names (lowercased) to reference keys
var dcTerms = map[string]model.Key{
	"identifier":   model.KeyObjectIdentifier,
	"title":        model.KeyTitle,
	"creator":      model.KeyCreator,
	"contributor":  model.KeyContributor,
	"publisher":    model.KeyPublisher,
	"date":         model.KeyPublicationDate,
	"issued":       model.KeyPublicationDate,
	"created":      model.KeyCreatedDate,
	"modified":     model.KeyModifiedDate,
	"available":    model.KeyDateAvailable,
	"description":  model.KeySummary,
	"abstract":     model.KeySummary,
	"subject":      model.KeyKeywords,
	"type":         model.KeyObjectType,
	"rights":       model.KeyLicense,
	"license":      model.KeyLicense,
	"accessrights": model.KeyAccessLevel,
	"language":     model.KeyLanguage,
	"format":       model.KeyObjectFormat,
	"extent":       model.KeyObjectSize,
	"provenance":   model.KeyProvenanceGeneral,
	"rightsholder": model.KeyRightHolder,
}

// dcRelations maps Dublin Core relation terms (lowercased) to relation types
var dcRelations = map[string]string{
	"relation":       "Relation",
	"source":         "IsDerivedFrom",
	"ispartof":       "IsPartOf",
	"haspart":        "HasPart",
	"isversionof":    "IsVersionOf",
	"hasversion":     "HasVersion",
	"isformatof":     "IsVariantFormOf",
	"hasformat":      "IsOriginalFormOf",
	"references":     "References",
	"isreferencedby": "IsReferencedBy",
	"replaces":       "Replaces",
	"isreplacedby":   "IsReplacedBy",
	"requires":       "Requires",
	"isrequiredby":   "IsRequiredBy",
	"conformsto":     "ConformsTo",
}

// DublinCoreCollector reads DC.* and DCTERMS.* meta tags
type DublinCoreCollector struct{}

// Name returns the collector tag
func (c *DublinCoreCollector) Name() string { return TagDublinCore }

// CanHandle accepts HTML pages
func (c *DublinCoreCollector) CanHandle(in *Input) bool { return isHTML(in) }

// Collect maps Dublin Core meta tags; repeated tags become lists
func (c *DublinCoreCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	doc, err := in.Doc()
	if err != nil {
		return nil, apperr.Parse("dublincore", err)
	}

	raw := make(map[model.Key]any)
	var rels []model.RelatedResource
	namespaces := map[string]bool{}

	for _, tag := range metaTags(doc) {
		prefix, term, ok := strings.Cut(strings.ToLower(tag.Name), ".")
		if !ok {
			prefix, term, ok = strings.Cut(strings.ToLower(tag.Name), ":")
		}
		if !ok {
			continue
		}
		switch prefix {
		case "dc":
			namespaces[DCElementsNamespace] = true
		case "dcterms", "dct":
			namespaces[DCTermsNamespace] = true
		default:
			continue
		}
		if rt, isRel := dcRelations[term]; isRel {
			rels = append(rels, model.RelatedResource{RelationType: rt, Identifier: tag.Content})
			continue
		}
		if key, known := dcTerms[term]; known {
			addValue(raw, key, tag.Content)
		}
	}

	if len(raw) == 0 && len(rels) == 0 {
		return nil, ErrNoMetadata
	}
	if len(rels) > 0 {
		raw[model.KeyRelatedResources] = rels
	}

	frag := newFragment(TagDublinCore, FormatHTML, in)
	frag.Schema = DCTermsNamespace
	frag.Namespaces = sortedKeys(namespaces)
	frag.Properties = toProperties(raw, multiValued(raw))
	return frag, nil
}

// multiValued keeps repeated meta tags as lists
func multiValued(raw map[model.Key]any) map[model.Key]bool {
	out := make(map[model.Key]bool, len(defaultListKeys))
	for k, v := range defaultListKeys {
		out[k] = v
	}
	for k, v := range raw {
		if list, ok := v.([]any); ok && len(list) > 1 {
			out[k] = true
		}
	}
	return out
}

// openGraph maps og:* and article:* properties to reference keys
var openGraph = map[string]model.Key{
	"og:title":               model.KeyTitle,
	"og:description":         model.KeySummary,
	"og:type":                model.KeyObjectType,
	"og:url":                 model.KeyObjectIdentifier,
	"og:site_name":           model.KeyPublisher,
	"og:locale":              model.KeyLanguage,
	"article:published_time": model.KeyPublicationDate,
	"article:modified_time":  model.KeyModifiedDate,
	"article:author":         model.KeyCreator,
	"article:tag":            model.KeyKeywords,
}

// OpenGraphCollector reads OpenGraph meta tags
type OpenGraphCollector struct{}

// Name returns the collector tag
func (c *OpenGraphCollector) Name() string { return TagOpenGraph }

// CanHandle accepts HTML pages
func (c *OpenGraphCollector) CanHandle(in *Input) bool { return isHTML(in) }

// Collect maps the small OpenGraph subset
func (c *OpenGraphCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	doc, err := in.Doc()
	if err != nil {
		return nil, apperr.Parse("opengraph", err)
	}

	raw := make(map[model.Key]any)
	for _, tag := range metaTags(doc) {
		if key, ok := openGraph[strings.ToLower(tag.Name)]; ok {
			addValue(raw, key, tag.Content)
		}
	}
	if len(raw) == 0 {
		return nil, ErrNoMetadata
	}

	frag := newFragment(TagOpenGraph, FormatHTML, in)
	frag.Schema = "https://ogp.me"
	frag.Namespaces = []string{OpenGraphNamespace}
	frag.Properties = toProperties(raw, multiValued(raw))
	return frag, nil
}

// highwireTags and eprintsTags list the meta tags per reference key; they are
// flipped into lookup tables once
var (
	highwireTags = map[model.Key][]string{
		model.KeyTitle:                   {"citation_title"},
		model.KeyCreator:                 {"citation_author"},
		model.KeyPublisher:               {"citation_publisher", "citation_technical_report_institution", "citation_dissertation_institution"},
		model.KeyPublicationDate:         {"citation_publication_date", "citation_date", "citation_online_date"},
		model.KeySummary:                 {"citation_abstract"},
		model.KeyKeywords:                {"citation_keywords"},
		model.KeyObjectIdentifier:        {"citation_doi"},
		model.KeyObjectContentIdentifier: {"citation_pdf_url"},
		model.KeyLanguage:                {"citation_language"},
		model.KeyLandingPage:             {"citation_abstract_html_url", "citation_public_url"},
		model.KeyObjectType:              {"citation_type"},
	}
	eprintsTags = map[model.Key][]string{
		model.KeyTitle:                   {"eprints.title"},
		model.KeyCreator:                 {"eprints.creators_name"},
		model.KeyPublisher:               {"eprints.publisher"},
		model.KeyPublicationDate:         {"eprints.date"},
		model.KeySummary:                 {"eprints.abstract"},
		model.KeyKeywords:                {"eprints.keywords"},
		model.KeyObjectIdentifier:        {"eprints.id_number", "eprints.doi"},
		model.KeyObjectContentIdentifier: {"eprints.document_url"},
		model.KeyObjectType:              {"eprints.type"},
		model.KeyLandingPage:             {"eprints.official_url"},
	}

	citationLookup = flip(highwireTags, eprintsTags)
)

func flip(tables ...map[model.Key][]string) map[string]model.Key {
	out := make(map[string]model.Key)
	for _, table := range tables {
		for key, tags := range table {
			for _, t := range tags {
				out[t] = key
			}
		}
	}
	return out
}

// HighwireCollector reads Highwire Press citation_* and Eprints eprints.* meta tags
type HighwireCollector struct{}

// Name returns the collector tag
func (c *HighwireCollector) Name() string { return TagHighwire }

// CanHandle accepts HTML pages
func (c *HighwireCollector) CanHandle(in *Input) bool { return isHTML(in) }

// Collect maps citation meta tags
func (c *HighwireCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	doc, err := in.Doc()
	if err != nil {
		return nil, apperr.Parse("highwire", err)
	}

	raw := make(map[model.Key]any)
	eprints := false
	for _, tag := range metaTags(doc) {
		name := strings.ToLower(tag.Name)
		key, ok := citationLookup[name]
		if !ok {
			continue
		}
		if strings.HasPrefix(name, "eprints.") {
			eprints = true
		}
		if key == model.KeyKeywords && strings.Contains(tag.Content, ";") {
			for _, kw := range strings.Split(tag.Content, ";") {
				addValue(raw, key, kw)
			}
			continue
		}
		addValue(raw, key, tag.Content)
	}
	if len(raw) == 0 {
		return nil, ErrNoMetadata
	}

	frag := newFragment(TagHighwire, FormatHTML, in)
	frag.Schema = "highwire"
	if eprints {
		frag.Schema = "eprints"
	}
	frag.Properties = toProperties(raw, multiValued(raw))
	return frag, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
