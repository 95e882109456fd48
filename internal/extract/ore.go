package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

// Atom and OAI-ORE namespaces
const (
	AtomNamespace = "http://www.w3.org/2005/Atom"
	ORENamespace  = "http://www.openarchives.org/ore/terms/"
)

const (
	relAggregates = ORENamespace + "aggregates"
	relDescribes  = ORENamespace + "describes"
)

var xmlDeclRe = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)

// OREAtomCollector reads OAI-ORE resource maps serialized as Atom
type OREAtomCollector struct{}

// Name returns the collector tag
func (c *OREAtomCollector) Name() string { return TagOREAtom }

// CanHandle accepts Atom documents that use the ORE vocabulary
func (c *OREAtomCollector) CanHandle(in *Input) bool {
	switch in.Class() {
	case fetch.ClassAtom, fetch.ClassXML:
	default:
		return false
	}
	if !bytes.Contains(in.Body, []byte(ORENamespace)) {
		return false
	}
	root, err := rootElement(in.Body)
	return err == nil && root.Space == AtomNamespace
}

// Collect maps the resource map; aggregated resources become content items
func (c *OREAtomCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	body := in.Body
	root, err := rootElement(body)
	if err != nil {
		return nil, apperr.Parse("ore", err)
	}
	// resource maps are usually a bare atom:entry
	if root.Local == "entry" {
		inner := xmlDeclRe.ReplaceAll(body, nil)
		body = append(append([]byte(`<feed xmlns="`+AtomNamespace+`">`), inner...), []byte("</feed>")...)
	}

	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Parse("ore", err)
	}

	title, id, summary, published, updated := feed.Title, feed.ID, feed.Subtitle, "", feed.Updated
	authors, categories, links := feed.Authors, feed.Categories, feed.Links
	rights := feed.Rights
	extSources := []ext.Extensions{feed.Extensions}
	if len(feed.Entries) > 0 {
		e := feed.Entries[0]
		title = firstNonEmpty(e.Title, title)
		id = firstNonEmpty(e.ID, id)
		summary = firstNonEmpty(e.Summary, summary)
		published = e.Published
		updated = firstNonEmpty(e.Updated, updated)
		rights = firstNonEmpty(e.Rights, rights)
		if len(e.Authors) > 0 {
			authors = e.Authors
		}
		categories = append(categories, e.Categories...)
		links = append(links, e.Links...)
		extSources = append([]ext.Extensions{e.Extensions}, extSources...)
	}

	raw := make(map[model.Key]any)
	addValue(raw, model.KeyTitle, title)
	addValue(raw, model.KeySummary, summary)
	addValue(raw, model.KeyPublicationDate, published)
	addValue(raw, model.KeyModifiedDate, updated)
	for _, a := range authors {
		if a != nil {
			addValue(raw, model.KeyCreator, a.Name)
		}
	}
	for _, cat := range categories {
		if cat != nil {
			addValue(raw, model.KeyKeywords, firstNonEmpty(cat.Label, cat.Term))
		}
	}
	for _, exts := range extSources {
		for _, prefix := range []string{"dcterms", "dc"} {
			for _, v := range exts[prefix]["publisher"] {
				addValue(raw, model.KeyPublisher, v.Value)
			}
			for _, v := range exts[prefix]["creator"] {
				addValue(raw, model.KeyCreator, v.Value)
			}
		}
	}

	var items []model.ContentItem
	var rels []model.RelatedResource
	for _, l := range links {
		if l == nil || l.Href == "" {
			continue
		}
		switch l.Rel {
		case relAggregates:
			items = append(items, model.ContentItem{URL: l.Href, Name: l.Title, ClaimedType: l.Type, ClaimedSize: l.Length})
		case relDescribes:
			addValue(raw, model.KeyObjectIdentifier, l.Href)
		case "license":
			addValue(raw, model.KeyLicense, l.Href)
		case "alternate":
			addValue(raw, model.KeyLandingPage, l.Href)
		case "related":
			rels = append(rels, model.RelatedResource{RelationType: "References", Identifier: l.Href})
		}
	}
	addValue(raw, model.KeyObjectIdentifier, id)
	if rights != "" && !hasKey(raw, model.KeyLicense) {
		addValue(raw, model.KeyLicense, rights)
	}
	if len(items) > 0 {
		raw[model.KeyObjectContentIdentifier] = items
	}
	if len(rels) > 0 {
		raw[model.KeyRelatedResources] = rels
	}
	if len(raw) == 0 {
		return nil, ErrNoMetadata
	}

	frag := newFragment(TagOREAtom, FormatAtom, in)
	frag.Schema = ORENamespace
	frag.Namespaces = []string{AtomNamespace, ORENamespace}
	if bytes.Contains(in.Body, []byte(DCTermsNamespace)) {
		frag.Namespaces = append(frag.Namespaces, DCTermsNamespace)
	}
	frag.Properties = toProperties(raw, defaultListKeys)
	return frag, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func hasKey(raw map[model.Key]any, k model.Key) bool {
	_, ok := raw[k]
	return ok
}
