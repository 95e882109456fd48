package model

import (
	"fmt"
	"sort"
	"strings"
)

// Key is a term of the reference metadata vocabulary
type Key string

const (
	KeyObjectIdentifier        Key = "object_identifier"
	KeyTitle                   Key = "title"
	KeyCreator                 Key = "creator"
	KeyContributor             Key = "contributor"
	KeyPublisher               Key = "publisher"
	KeyPublicationDate         Key = "publication_date"
	KeyCreatedDate             Key = "created_date"
	KeyModifiedDate            Key = "modified_date"
	KeyDateAvailable           Key = "date_available"
	KeySummary                 Key = "summary"
	KeyKeywords                Key = "keywords"
	KeyObjectType              Key = "object_type"
	KeyObjectContentIdentifier Key = "object_content_identifier"
	KeyLicense                 Key = "license"
	KeyAccessLevel             Key = "access_level"
	KeyAccessFree              Key = "access_free"
	KeyRelatedResources        Key = "related_resources"
	KeyMeasuredVariable        Key = "measured_variable"
	KeyMethod                  Key = "method"
	KeyProvenanceGeneral       Key = "provenance_general"
	KeyObjectSize              Key = "object_size"
	KeyObjectFormat            Key = "object_format"
	KeyLanguage                Key = "language"
	KeyLandingPage             Key = "landing_page"
	KeyDataCiteClient          Key = "datacite_client"
	KeyCodeRepository          Key = "code_repository"
	KeyRightHolder             Key = "right_holder"
)

// ReferenceVocabulary lists every key a collector may emit, in canonical order
var ReferenceVocabulary = []Key{
	KeyObjectIdentifier, KeyTitle, KeyCreator, KeyContributor, KeyPublisher,
	KeyPublicationDate, KeyCreatedDate, KeyModifiedDate, KeyDateAvailable,
	KeySummary, KeyKeywords, KeyObjectType, KeyObjectContentIdentifier,
	KeyLicense, KeyAccessLevel, KeyAccessFree, KeyRelatedResources,
	KeyMeasuredVariable, KeyMethod, KeyProvenanceGeneral, KeyObjectSize,
	KeyObjectFormat, KeyLanguage, KeyLandingPage, KeyDataCiteClient,
	KeyCodeRepository, KeyRightHolder,
}

// ListKeys are appended and de-duplicated across fragments instead of first-writer-wins
var ListKeys = map[Key]bool{
	KeyCreator:                 true,
	KeyLicense:                 true,
	KeyRelatedResources:        true,
	KeyObjectContentIdentifier: true,
}

// CitationKeys is the citation subset of the core metadata
var CitationKeys = []Key{
	KeyCreator, KeyTitle, KeyObjectIdentifier, KeyPublicationDate, KeyPublisher, KeyObjectType,
}

// CoreKeys is the full required core metadata set
var CoreKeys = []Key{
	KeyCreator, KeyTitle, KeyPublisher, KeyPublicationDate, KeySummary,
	KeyKeywords, KeyObjectIdentifier, KeyObjectType,
}

// OfferingMethod is how a fragment was obtained
type OfferingMethod string

const (
	MethodEmbedded           OfferingMethod = "embedded"
	MethodTypedLink          OfferingMethod = "typed-link"
	MethodSignposting        OfferingMethod = "signposting"
	MethodContentNegotiation OfferingMethod = "content-negotiation"
	MethodRegistryLookup     OfferingMethod = "registry-lookup"
	MethodGuessed            OfferingMethod = "guessed"
	MethodMetadataService    OfferingMethod = "metadata-service"
)

// ContentItem is a data link found in metadata
type ContentItem struct {
	URL               string   `json:"url"`
	Name              string   `json:"name,omitempty"`
	ClaimedType       string   `json:"claimed_type,omitempty"`
	ClaimedSize       string   `json:"claimed_size,omitempty"`
	HeaderContentType string   `json:"header_content_type,omitempty"`
	HeaderContentSize int64    `json:"header_content_size,omitempty"`
	DownloadedSize    int64    `json:"downloaded_size,omitempty"`
	Truncated         bool     `json:"truncated,omitempty"`
	SniffedTypes      []string `json:"sniffed_types,omitempty"`
	Verified          bool     `json:"verified"`
	Scheme            Scheme   `json:"scheme,omitempty"`
	IsPersistent      bool     `json:"is_persistent"`
	Sampled           bool     `json:"sampled,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// RelatedResource is a typed relation to another resource
type RelatedResource struct {
	RelationType string `json:"relation_type"`
	Identifier   string `json:"related_resource"`
}

// Properties holds reference-vocabulary values. Values are string, []string,
// []ContentItem or []RelatedResource.
type Properties map[Key]any

// String returns the value of key as a single string
func (p Properties) String(key Key) string {
	switch v := p[key].(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns the value of key as a list
func (p Properties) Strings(key Key) []string {
	switch v := p[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

// ContentItems returns the object_content_identifier list
func (p Properties) ContentItems() []ContentItem {
	items, _ := p[KeyObjectContentIdentifier].([]ContentItem)
	return items
}

// RelatedResources returns the related_resources list
func (p Properties) RelatedResources() []RelatedResource {
	rels, _ := p[KeyRelatedResources].([]RelatedResource)
	return rels
}

// Has reports whether key holds a non-empty value
func (p Properties) Has(key Key) bool {
	switch v := p[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []ContentItem:
		return len(v) > 0
	case []RelatedResource:
		return len(v) > 0
	default:
		return true
	}
}

// Keys returns the non-empty keys in sorted order
func (p Properties) Keys() []Key {
	keys := make([]Key, 0, len(p))
	for k := range p {
		if p.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// MetadataFragment is one provenanced piece of metadata from one source
type MetadataFragment struct {
	Method     OfferingMethod `json:"method"`
	Tag        string         `json:"source"` // collector tag, e.g. schemaorg_embedded
	SourceURL  string         `json:"url,omitempty"`
	Format     string         `json:"format"`
	Schema     string         `json:"schema,omitempty"`
	Namespaces []string       `json:"namespaces,omitempty"`
	Properties Properties     `json:"-"`
}

// MergedMetadata is the flattened record used by evaluators
type MergedMetadata struct {
	Properties Properties       `json:"properties"`
	Sources    map[Key][]string `json:"sources"` // key -> fragment tags that contributed
}

// SourcesOf returns the fragment tags that contributed key
func (m MergedMetadata) SourcesOf(key Key) []string {
	if m.Sources == nil {
		return nil
	}
	return m.Sources[key]
}
