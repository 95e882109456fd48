// Package refdata provides the read-only reference tables used by the
// harvester and evaluators. A Provider is immutable after Load and safe for
// concurrent use.
package refdata

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/model"
)

//go:embed data/*
var embedded embed.FS

// Reference file names
const (
	FileLicenses           = "licenses.json"
	FileRepoDOIs           = "repodois.json"
	FileLinkedVocabs       = "linked_vocabs.json"
	FileDefaultNamespaces  = "default_namespaces.txt"
	FileProtocols          = "standard_protocols.yaml"
	FileFormats            = "file_formats.yaml"
	FileAccessRights       = "access_rights.yaml"
	FileIdentifierPatterns = "identifier_patterns.yaml"
	FileResourceTypes      = "resource_types.yaml"
	FileMetadataStandards  = "metadata_standards.yaml"
	FileProvenance         = "provenance.yaml"
	FileProjections        = "projections.yaml"
)

// License is an SPDX license list entry
type License struct {
	ID          string   `json:"licenseId"`
	Name        string   `json:"name"`
	Reference   string   `json:"reference"`
	SeeAlso     []string `json:"seeAlso"`
	OSIApproved bool     `json:"isOsiApproved"`
	Deprecated  bool     `json:"isDeprecatedLicenseId"`
}

// Vocabulary is a known linked-data vocabulary
type Vocabulary struct {
	Prefix    string `json:"prefix"`
	Namespace string `json:"namespace"`
	Title     string `json:"title"`
}

// IdentifierPattern is one table-driven identifier scheme
type IdentifierPattern struct {
	Scheme     model.Scheme `yaml:"scheme"`
	Persistent bool         `yaml:"persistent"`
	Resolver   string       `yaml:"resolver"`
	Lowercase  bool         `yaml:"lowercase"`
	Patterns   []string     `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Match returns the normalized identifier when s matches the scheme
func (p *IdentifierPattern) Match(s string) (string, bool) {
	for _, re := range p.compiled {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		norm := s
		if len(m) > 1 && m[1] != "" {
			norm = m[1]
		}
		if p.Lowercase {
			norm = strings.ToLower(norm)
		}
		return norm, true
	}
	return "", false
}

// AccessPattern maps a rights URI pattern onto an access level
type AccessPattern struct {
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`

	re *regexp.Regexp
}

// MetadataStandard is an entry of the metadata standards catalog
type MetadataStandard struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Subjects   []string `yaml:"subjects"`
	Namespaces []string `yaml:"namespaces"`
}

// Projection maps reference keys onto JMESPath expressions
type Projection struct {
	Fields    map[model.Key]string `yaml:"fields"`
	Relations map[string]string    `yaml:"relations"`
}

// Provider holds the reference tables
type Provider struct {
	Licenses           []License
	RepoPrefixes       map[string]string // DOI prefix -> re3data id
	RepoClients        map[string]string // DataCite client id -> re3data id
	Vocabularies       []Vocabulary
	DefaultNamespaces  []string
	Protocols          map[string]string
	ScienceFormats     map[string]string
	LongTermFormats    map[string]string
	OpenFormats        map[string]string
	ArchiveFormats     map[string]string
	AccessLevels       []string
	AccessPatterns     []AccessPattern
	AccessVocabulary   map[string]string
	IdentifierPatterns []IdentifierPattern
	ResourceTypes      []string
	SchemaOrgTypes     []string
	MetadataStandards  []MetadataStandard
	ProvNamespaces     []string
	ProvProperties     []model.Key
	ProvRelations      []string
	Projections        map[string]Projection

	licenseByID  map[string]int
	licenseByURL map[string]int
	vocabByNS    map[string]int
	defaultNS    map[string]bool
}

// Options selects overlay sources. Files in Dir replace embedded ones; entries
// in Store (written by Refresh) replace both.
type Options struct {
	Dir   string
	Store cache.Cache
}

var (
	defaultOnce     sync.Once
	defaultProvider *Provider
	defaultErr      error
)

// Default returns the provider built from the embedded files
func Default() (*Provider, error) {
	defaultOnce.Do(func() {
		defaultProvider, defaultErr = Load(Options{})
	})
	return defaultProvider, defaultErr
}

// Load builds a provider from the embedded files and overlays
func Load(opts Options) (*Provider, error) {
	l := loader{opts: opts}
	p := &Provider{}

	var licenseDoc struct {
		Licenses []License `json:"licenses"`
	}
	if err := l.json(FileLicenses, &licenseDoc); err != nil {
		return nil, err
	}
	p.Licenses = licenseDoc.Licenses

	var repos struct {
		Prefixes map[string]string `json:"prefixes"`
		Clients  map[string]string `json:"clients"`
	}
	if err := l.json(FileRepoDOIs, &repos); err != nil {
		return nil, err
	}
	p.RepoPrefixes, p.RepoClients = repos.Prefixes, repos.Clients

	if err := l.json(FileLinkedVocabs, &p.Vocabularies); err != nil {
		return nil, err
	}

	lines, err := l.lines(FileDefaultNamespaces)
	if err != nil {
		return nil, err
	}
	p.DefaultNamespaces = lines

	if err := l.yaml(FileProtocols, &p.Protocols); err != nil {
		return nil, err
	}

	var formats struct {
		Science  map[string]string `yaml:"science"`
		LongTerm map[string]string `yaml:"long_term"`
		Open     map[string]string `yaml:"open"`
		Archive  map[string]string `yaml:"archive"`
	}
	if err := l.yaml(FileFormats, &formats); err != nil {
		return nil, err
	}
	p.ScienceFormats, p.LongTermFormats = formats.Science, formats.LongTerm
	p.OpenFormats, p.ArchiveFormats = formats.Open, formats.Archive

	var access struct {
		Levels     []string          `yaml:"levels"`
		Patterns   []AccessPattern   `yaml:"patterns"`
		Vocabulary map[string]string `yaml:"vocabulary"`
	}
	if err := l.yaml(FileAccessRights, &access); err != nil {
		return nil, err
	}
	p.AccessLevels, p.AccessPatterns, p.AccessVocabulary = access.Levels, access.Patterns, access.Vocabulary

	if err := l.yaml(FileIdentifierPatterns, &p.IdentifierPatterns); err != nil {
		return nil, err
	}

	var types struct {
		General   []string `yaml:"general"`
		SchemaOrg []string `yaml:"schemaorg"`
	}
	if err := l.yaml(FileResourceTypes, &types); err != nil {
		return nil, err
	}
	p.ResourceTypes, p.SchemaOrgTypes = types.General, types.SchemaOrg

	if err := l.yaml(FileMetadataStandards, &p.MetadataStandards); err != nil {
		return nil, err
	}

	var prov struct {
		Namespaces    []string    `yaml:"namespaces"`
		Properties    []model.Key `yaml:"properties"`
		RelationTypes []string    `yaml:"relation_types"`
	}
	if err := l.yaml(FileProvenance, &prov); err != nil {
		return nil, err
	}
	p.ProvNamespaces, p.ProvProperties, p.ProvRelations = prov.Namespaces, prov.Properties, prov.RelationTypes

	if err := l.yaml(FileProjections, &p.Projections); err != nil {
		return nil, err
	}

	if err := p.index(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) index() error {
	if len(p.Licenses) == 0 {
		return apperr.Configf("refdata", "%s has no licenses", FileLicenses)
	}

	p.licenseByID = make(map[string]int, len(p.Licenses))
	p.licenseByURL = make(map[string]int, len(p.Licenses)*2)
	for i, lic := range p.Licenses {
		p.licenseByID[strings.ToLower(lic.ID)] = i
		p.licenseByURL[NormalizeURL(lic.Reference)] = i
		for _, u := range lic.SeeAlso {
			if _, dup := p.licenseByURL[NormalizeURL(u)]; !dup {
				p.licenseByURL[NormalizeURL(u)] = i
			}
		}
	}

	p.vocabByNS = make(map[string]int, len(p.Vocabularies))
	for i, v := range p.Vocabularies {
		p.vocabByNS[NormalizeNamespace(v.Namespace)] = i
	}

	p.defaultNS = make(map[string]bool, len(p.DefaultNamespaces))
	for _, ns := range p.DefaultNamespaces {
		p.defaultNS[NormalizeNamespace(ns)] = true
	}

	for i := range p.IdentifierPatterns {
		ip := &p.IdentifierPatterns[i]
		for _, expr := range ip.Patterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				return apperr.Config("refdata", fmt.Errorf("%s: scheme %s: %w", FileIdentifierPatterns, ip.Scheme, err))
			}
			ip.compiled = append(ip.compiled, re)
		}
	}

	for i := range p.AccessPatterns {
		re, err := regexp.Compile(p.AccessPatterns[i].Pattern)
		if err != nil {
			return apperr.Config("refdata", fmt.Errorf("%s: %w", FileAccessRights, err))
		}
		p.AccessPatterns[i].re = re
	}

	for _, name := range []string{"schemaorg", "datacite", "github"} {
		if _, ok := p.Projections[name]; !ok {
			return apperr.Configf("refdata", "%s: missing projection %q", FileProjections, name)
		}
	}
	return nil
}

// License finds a license by SPDX id or by one of its URLs
func (p *Provider) License(value string) (License, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return License{}, false
	}
	if i, ok := p.licenseByID[strings.ToLower(v)]; ok {
		return p.Licenses[i], true
	}
	if i, ok := p.licenseByURL[NormalizeURL(v)]; ok {
		return p.Licenses[i], true
	}
	// spdx.org/licenses/<id> without the .html suffix
	if idx := strings.Index(strings.ToLower(v), "spdx.org/licenses/"); idx >= 0 {
		id := strings.TrimSuffix(v[idx+len("spdx.org/licenses/"):], ".html")
		id = strings.TrimSuffix(strings.TrimSuffix(id, ".json"), "/")
		if i, ok := p.licenseByID[strings.ToLower(id)]; ok {
			return p.Licenses[i], true
		}
	}
	return License{}, false
}

// RepositoryID returns the re3data id of the repository minting doi, or of a DataCite client
func (p *Provider) RepositoryID(doi, client string) string {
	if client != "" {
		if id, ok := p.RepoClients[strings.ToLower(client)]; ok {
			return id
		}
	}
	prefix, _, found := strings.Cut(strings.ToLower(doi), "/")
	if !found {
		return ""
	}
	return p.RepoPrefixes[prefix]
}

// IsDefaultNamespace reports namespaces ignored by the semantic vocabulary check
func (p *Provider) IsDefaultNamespace(ns string) bool {
	return p.defaultNS[NormalizeNamespace(ns)]
}

// Vocabulary returns the known vocabulary for a namespace
func (p *Provider) Vocabulary(ns string) (Vocabulary, bool) {
	if i, ok := p.vocabByNS[NormalizeNamespace(ns)]; ok {
		return p.Vocabularies[i], true
	}
	return Vocabulary{}, false
}

// Protocol returns the name of a standard transfer protocol for a URL scheme
func (p *Provider) Protocol(scheme string) (string, bool) {
	name, ok := p.Protocols[strings.ToLower(scheme)]
	return name, ok
}

// FormatCategories returns the format lists a media type belongs to, sorted
func (p *Provider) FormatCategories(mediaType string) []string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	var cats []string
	if _, ok := p.ScienceFormats[mt]; ok {
		cats = append(cats, "scientific")
	}
	if _, ok := p.LongTermFormats[mt]; ok {
		cats = append(cats, "long-term")
	}
	if _, ok := p.OpenFormats[mt]; ok {
		cats = append(cats, "open")
	}
	sort.Strings(cats)
	return cats
}

// IsArchive reports archive and compression media types
func (p *Provider) IsArchive(mediaType string) bool {
	_, ok := p.ArchiveFormats[strings.ToLower(strings.TrimSpace(mediaType))]
	return ok
}

// AccessLevel maps a rights URI or free-text term onto a controlled access level
func (p *Provider) AccessLevel(value string) (level string, viaPattern bool, ok bool) {
	v := strings.TrimSpace(value)
	for _, ap := range p.AccessPatterns {
		if ap.re.MatchString(v) {
			return ap.Level, true, true
		}
	}
	term := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(v))
	if lvl, found := p.AccessVocabulary[term]; found {
		return lvl, false, true
	}
	return "", false, false
}

// IsAccessRightsURI reports whether value is recognized by an access-rights pattern
// other than the generic license patterns
func (p *Provider) IsAccessRightsURI(value string) bool {
	v := strings.TrimSpace(value)
	for _, ap := range p.AccessPatterns {
		if strings.Contains(ap.Pattern, "creativecommons") {
			continue
		}
		if ap.re.MatchString(v) {
			return true
		}
	}
	return false
}

// IsSchemaOrgType reports whether t is an accepted schema.org type
func (p *Provider) IsSchemaOrgType(t string) bool {
	t = strings.TrimPrefix(strings.TrimPrefix(t, "http://schema.org/"), "https://schema.org/")
	t = strings.TrimPrefix(t, "schema:")
	for _, s := range p.SchemaOrgTypes {
		if strings.EqualFold(s, t) {
			return true
		}
	}
	return false
}

// IsResourceType reports whether t is a known general resource type
func (p *Provider) IsResourceType(t string) bool {
	t = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), " ", ""))
	for _, s := range p.ResourceTypes {
		if s == t {
			return true
		}
	}
	return p.IsSchemaOrgType(t)
}

// IsProvNamespace reports provenance vocabularies
func (p *Provider) IsProvNamespace(ns string) bool {
	n := NormalizeNamespace(ns)
	for _, pn := range p.ProvNamespaces {
		if NormalizeNamespace(pn) == n {
			return true
		}
	}
	return false
}

// Standards returns the metadata standards whose namespaces match ns
func (p *Provider) Standards(ns string) []MetadataStandard {
	var out []MetadataStandard
	for _, std := range p.MetadataStandards {
		for _, pattern := range std.Namespaces {
			if MatchNamespace(pattern, ns) {
				out = append(out, std)
				break
			}
		}
	}
	return out
}

// Projection returns a named projection
func (p *Provider) Projection(name string) Projection {
	return p.Projections[name]
}

// NormalizeURL reduces a URL to a comparable form
func NormalizeURL(u string) string {
	s := strings.ToLower(strings.TrimSpace(u))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, "/legalcode")
	s = strings.TrimSuffix(s, ".html")
	return strings.TrimSuffix(s, "/")
}

// NormalizeNamespace reduces a namespace URI to a comparable form
func NormalizeNamespace(ns string) string {
	s := strings.ToLower(strings.TrimSpace(ns))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimRight(s, "#/")
}

// MatchNamespace matches ns against an exact namespace or a glob containing '*'
func MatchNamespace(pattern, ns string) bool {
	if !strings.Contains(pattern, "*") {
		return NormalizeNamespace(pattern) == NormalizeNamespace(ns)
	}
	// globs compare on the raw lowercased strings minus the scheme
	p := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(pattern), "https://"), "http://")
	n := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ns)), "https://"), "http://")
	ok, err := filepath.Match(p, n)
	if err == nil && ok {
		return true
	}
	// '*' at the end also spans path separators
	if strings.HasSuffix(p, "*") && !strings.Contains(strings.TrimSuffix(p, "*"), "*") {
		return strings.HasPrefix(n, strings.TrimSuffix(p, "*"))
	}
	return false
}

type loader struct {
	opts Options
}

func (l loader) read(name string) ([]byte, error) {
	if l.opts.Store != nil {
		if data, ok := l.opts.Store.Get(StoreKey(name)); ok {
			return data, nil
		}
	}
	if l.opts.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.opts.Dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, apperr.Config("refdata", fmt.Errorf("read %s: %w", name, err))
		}
	}
	data, err := fs.ReadFile(embedded, "data/"+name)
	if err != nil {
		return nil, apperr.Config("refdata", fmt.Errorf("read embedded %s: %w", name, err))
	}
	return data, nil
}

func (l loader) json(name string, v any) error {
	data, err := l.read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Config("refdata", fmt.Errorf("decode %s: %w", name, err))
	}
	return nil
}

func (l loader) yaml(name string, v any) error {
	data, err := l.read(name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return apperr.Config("refdata", fmt.Errorf("decode %s: %w", name, err))
	}
	return nil
}

func (l loader) lines(name string) ([]string, error) {
	data, err := l.read(name)
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// StoreKey is the cache key under which Refresh stores a reference file
func StoreKey(name string) string {
	return cache.Key("refdata", name)
}
