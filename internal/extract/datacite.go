package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// DataCiteNamespace is recorded for DataCite fragments
const DataCiteNamespace = "http://datacite.org/schema/kernel-4"

// only these keys stay lists; other list values are comma-joined
var dataciteListKeys = map[model.Key]bool{
	model.KeyCreator:                 true,
	model.KeyLicense:                 true,
	model.KeyRelatedResources:        true,
	model.KeyObjectContentIdentifier: true,
}

// DataCiteCollector reads DataCite JSON, plain or wrapped by the REST API
type DataCiteCollector struct {
	ref  *refdata.Provider
	proj *Projector
}

// Name returns the collector tag
func (c *DataCiteCollector) Name() string { return TagDataCite }

// CanHandle accepts the DataCite media types and JSON documents shaped like DataCite records
func (c *DataCiteCollector) CanHandle(in *Input) bool {
	switch in.Class() {
	case fetch.ClassDataCiteJSON:
		return true
	case fetch.ClassJSON:
		var doc map[string]any
		if err := json.Unmarshal(in.Body, &doc); err != nil {
			return false
		}
		attrs, _ := unwrapDataCite(doc)
		return attrs != nil
	}
	return false
}

// Collect projects the record onto the reference vocabulary
func (c *DataCiteCollector) Collect(in *Input) (*model.MetadataFragment, error) {
	var doc map[string]any
	if err := json.Unmarshal(in.Body, &doc); err != nil {
		return nil, apperr.Parse("datacite", fmt.Errorf("invalid JSON: %w", err))
	}
	attrs, client := unwrapDataCite(doc)
	if attrs == nil {
		return nil, ErrNoMetadata
	}

	raw, err := c.proj.Project(c.ref.Projection("datacite"), attrs)
	if err != nil {
		return nil, err
	}

	delete(raw, model.KeyCreator)
	if names := agentNames(attrs["creators"]); len(names) > 0 {
		raw[model.KeyCreator] = names
	}
	delete(raw, model.KeyContributor)
	if names := agentNames(attrs["contributors"]); len(names) > 0 {
		raw[model.KeyContributor] = names
	}

	delete(raw, model.KeyRelatedResources)
	if rels := relatedIdentifiers(attrs["relatedIdentifiers"]); len(rels) > 0 {
		raw[model.KeyRelatedResources] = rels
	}

	licenses, access := c.splitRights(attrs["rightsList"])
	delete(raw, model.KeyLicense)
	delete(raw, model.KeyAccessLevel)
	if len(licenses) > 0 {
		raw[model.KeyLicense] = licenses
	}
	if len(access) > 0 {
		raw[model.KeyAccessLevel] = access
	}

	if items := dataciteContent(attrs); len(items) > 0 {
		raw[model.KeyObjectContentIdentifier] = items
	}
	if client != "" {
		raw[model.KeyDataCiteClient] = client
	}

	frag := newFragment(TagDataCite, FormatDataCite, in)
	frag.Schema = DataCiteNamespace
	if v, ok := attrs["schemaVersion"].(string); ok && v != "" {
		frag.Schema = v
	}
	frag.Namespaces = []string{DataCiteNamespace}
	frag.Properties = toProperties(raw, dataciteListKeys)
	return frag, nil
}

// splitRights separates license URIs from access-rights URIs
func (c *DataCiteCollector) splitRights(v any) (licenses, access []string) {
	list, _ := v.([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		uri, _ := m["rightsUri"].(string)
		uri = strings.TrimSpace(uri)
		switch {
		case uri != "" && c.ref.IsAccessRightsURI(uri):
			access = append(access, uri)
		case uri != "":
			licenses = append(licenses, uri)
		default:
			if id, ok := m["rightsIdentifier"].(string); ok && id != "" {
				licenses = append(licenses, id)
			} else if text, ok := m["rights"].(string); ok && text != "" {
				licenses = append(licenses, text)
			}
		}
	}
	return licenses, access
}

// unwrapDataCite returns the record attributes and the DataCite client id
func unwrapDataCite(doc map[string]any) (map[string]any, string) {
	if data, ok := doc["data"].(map[string]any); ok {
		attrs, _ := data["attributes"].(map[string]any)
		if attrs == nil || (attrs["doi"] == nil && attrs["titles"] == nil) {
			return nil, ""
		}
		client, _ := attrs["clientId"].(string)
		if rel, ok := data["relationships"].(map[string]any); ok {
			if cl, ok := rel["client"].(map[string]any); ok {
				if d, ok := cl["data"].(map[string]any); ok {
					if id, ok := d["id"].(string); ok && id != "" {
						client = id
					}
				}
			}
		}
		return attrs, client
	}
	if doc["doi"] != nil || (doc["titles"] != nil && doc["creators"] != nil) {
		client, _ := doc["clientId"].(string)
		return doc, client
	}
	return nil, ""
}

// agentNames flattens DataCite creators and contributors
func agentNames(v any) []string {
	list, _ := v.([]any)
	var names []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name := personName(m); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func relatedIdentifiers(v any) []model.RelatedResource {
	list, _ := v.([]any)
	var rels []model.RelatedResource
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["relatedIdentifier"].(string)
		rt, _ := m["relationType"].(string)
		if id = strings.TrimSpace(id); id != "" {
			rels = append(rels, model.RelatedResource{RelationType: rt, Identifier: id})
		}
	}
	return rels
}

// dataciteContent pairs contentUrl entries with formats and sizes when the lists line up
func dataciteContent(attrs map[string]any) []model.ContentItem {
	urls := stringValues(attrs["contentUrl"])
	formats := stringValues(attrs["formats"])
	sizes := stringValues(attrs["sizes"])

	items := make([]model.ContentItem, 0, len(urls))
	for i, u := range urls {
		item := model.ContentItem{URL: u}
		if len(formats) == len(urls) {
			item.ClaimedType = formats[i]
		}
		if len(sizes) == len(urls) {
			item.ClaimedSize = sizes[i]
		}
		items = append(items, item)
	}
	return items
}
