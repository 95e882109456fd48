// Package extract implements the metadata collectors.
//
// Every collector turns one source document into a model.MetadataFragment whose
// properties use the reference metadata vocabulary. Collectors are pure: they do
// not fetch anything, and the harvester decides which of them run and in which order.
package extract

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/piprate/json-gold/ld"
	"golang.org/x/net/html"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// Collector tags, recorded as MetadataFragment.Tag
const (
	TagSchemaOrg  = "schemaorg"
	TagDublinCore = "dublincore"
	TagOpenGraph  = "opengraph"
	TagHighwire   = "highwire_eprints"
	TagMicrodata  = "microdata"
	TagRDFa       = "rdfa"
	TagRDF        = "rdf"
	TagDataCite   = "datacite"
	TagXML        = "xml"
	TagOREAtom    = "ore_atom"
	TagGitHub     = "github"
)

// Fragment formats
const (
	FormatHTML     = "html"
	FormatJSONLD   = "json-ld"
	FormatRDF      = "rdf"
	FormatXML      = "xml"
	FormatAtom     = "atom"
	FormatDataCite = "datacite-json"
	FormatJSON     = "json"
)

// ErrNoMetadata is returned when a document parses but holds nothing a collector maps
var ErrNoMetadata = errors.New("no metadata found")

// Input is one source document
type Input struct {
	URL         string
	ContentType string
	Body        []byte

	doc    *html.Node
	docErr error
	parsed bool
}

// NewInput builds an input from a negotiator response
func NewInput(resp *fetch.Response) *Input {
	return &Input{URL: resp.FinalURL, ContentType: resp.ContentType, Body: resp.Body}
}

// Doc parses the body as HTML once
func (in *Input) Doc() (*html.Node, error) {
	if !in.parsed {
		in.doc, in.docErr = html.Parse(bytes.NewReader(in.Body))
		in.parsed = true
	}
	return in.doc, in.docErr
}

// Class returns the MIME class of the input
func (in *Input) Class() fetch.MimeClass {
	return fetch.ClassOf(in.ContentType)
}

// IsHTML reports an HTML page, sniffing untyped bodies
func (in *Input) IsHTML() bool {
	return isHTML(in)
}

func (in *Input) mediaType() string {
	return fetch.MediaType(in.ContentType)
}

// Collector extracts metadata from one kind of document
type Collector interface {
	// Name returns the collector tag
	Name() string

	// CanHandle checks if the collector understands the input
	CanHandle(in *Input) bool

	// Collect extracts a fragment; ErrNoMetadata when there is nothing to map
	Collect(in *Input) (*model.MetadataFragment, error)
}

// Option configures a Registry
type Option func(*options)

type options struct {
	loader ld.DocumentLoader
}

// WithHTTPClient sets the client used by the JSON-LD processor to load remote contexts
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.loader = ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(c))
	}
}

// WithDocumentLoader sets the JSON-LD document loader
func WithDocumentLoader(l ld.DocumentLoader) Option {
	return func(o *options) { o.loader = l }
}

// Registry holds the collectors
type Registry struct {
	byName     map[string]Collector
	embedded   []Collector
	negotiated []Collector
	github     *GitHubCollector
}

// NewRegistry creates the collectors backed by ref
func NewRegistry(ref *refdata.Provider, opts ...Option) *Registry {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		o.loader = ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(http.DefaultClient))
	}

	proj := NewProjector()
	schema := &SchemaOrgCollector{ref: ref, proj: proj}

	r := &Registry{byName: make(map[string]Collector)}
	// embedded collectors, in harvest order
	r.embedded = []Collector{
		schema,
		&HighwireCollector{},
		&DublinCoreCollector{},
		&MicrodataCollector{schema: schema},
		&RDFaCollector{schema: schema},
		&OpenGraphCollector{},
	}
	// negotiated documents, most specific first
	r.negotiated = []Collector{
		&OREAtomCollector{},
		&DataCiteCollector{ref: ref, proj: proj},
		schema,
		&RDFCollector{ref: ref, loader: o.loader},
		&XMLCollector{},
	}
	r.github = &GitHubCollector{ref: ref, proj: proj}

	for _, c := range append(append([]Collector{r.github}, r.embedded...), r.negotiated...) {
		r.byName[c.Name()] = c
	}
	return r
}

// Get returns a collector by tag
func (r *Registry) Get(name string) Collector {
	return r.byName[name]
}

// Embedded returns the HTML collectors in harvest order
func (r *Registry) Embedded() []Collector {
	return r.embedded
}

// Find returns the first collector for a negotiated document, nil if none fits
func (r *Registry) Find(in *Input) Collector {
	for _, c := range r.negotiated {
		if c.CanHandle(in) {
			return c
		}
	}
	return nil
}

// GitHub returns the GitHub repository collector
func (r *Registry) GitHub() *GitHubCollector {
	return r.github
}

func newFragment(tag, format string, in *Input) *model.MetadataFragment {
	return &model.MetadataFragment{
		Tag:        tag,
		Format:     format,
		SourceURL:  in.URL,
		Properties: model.Properties{},
	}
}

func isHTML(in *Input) bool {
	if in.Class() == fetch.ClassHTML {
		return true
	}
	if in.ContentType != "" {
		return false
	}
	head := strings.ToLower(string(firstBytes(in.Body, 512)))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func firstBytes(b []byte, n int) []byte {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		return b[:n]
	}
	return b
}
