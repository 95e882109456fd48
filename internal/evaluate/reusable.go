package evaluate

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

var dataProvenanceTests = TestMap{
	"elements": {"1"},
	"formal":   {"2"},
}

// ProvenanceOutput is the output of the provenance metrics
type ProvenanceOutput struct {
	Elements   map[string]any          `json:"provenance_metadata_included"`
	Relations  []model.RelatedResource `json:"provenance_relations,omitempty"`
	Namespaces []string                `json:"structured_provenance_available,omitempty"`
}

type dataProvenance struct{ *Base }

func newDataProvenance(b *Base) Evaluator { return &dataProvenance{b} }

func (e *dataProvenance) Evaluate() model.MetricResult {
	e.warnInaccessible()
	out := e.provenance()

	if len(out.Elements) > 0 || len(out.Relations) > 0 {
		e.Log().Info("provenance elements found", zap.Int("elements", len(out.Elements)), zap.Int("relations", len(out.Relations)))
		e.Pass("elements")
	} else {
		e.Log().Warn("no provenance elements found in metadata")
	}
	if len(out.Namespaces) > 0 {
		e.Log().Info("formal provenance vocabulary used", zap.Strings("namespaces", out.Namespaces))
		e.Pass("formal")
	} else {
		e.Log().Warn("no formal provenance vocabulary (PROV-O, PAV) found")
	}
	return e.Result(out)
}

// provenance collects provenance-mapped properties, relations and namespaces
func (b *Base) provenance() ProvenanceOutput {
	props := b.Props()
	ref := b.Ref()
	out := ProvenanceOutput{Elements: map[string]any{}}
	for _, k := range ref.ProvProperties {
		if props.Has(k) {
			out.Elements[string(k)] = props[k]
		}
	}
	for _, r := range props.RelatedResources() {
		if containsFold(ref.ProvRelations, r.RelationType) {
			out.Relations = append(out.Relations, r)
		}
	}
	for _, ns := range b.State().Namespaces {
		if ref.IsProvNamespace(ns) {
			out.Namespaces = append(out.Namespaces, ns)
		}
	}
	return out
}

var codeProvenanceTests = TestMap{
	"history": {"1"},
	"formal":  {"2"},
}

// version relations that point at a development history
var versionRelations = []string{"IsVersionOf", "HasVersion", "IsNewVersionOf", "IsPreviousVersionOf"}

// CodeProvenanceOutput is the output of the code provenance metric
type CodeProvenanceOutput struct {
	ProvenanceOutput
	CodeRepository string `json:"code_repository,omitempty"`
}

type codeProvenance struct{ *Base }

func newCodeProvenance(b *Base) Evaluator { return &codeProvenance{b} }

func (e *codeProvenance) Evaluate() model.MetricResult {
	e.warnInaccessible()
	props := e.Props()
	out := CodeProvenanceOutput{ProvenanceOutput: e.provenance(), CodeRepository: props.String(model.KeyCodeRepository)}

	switch {
	case out.CodeRepository != "":
		e.Log().Info("source code repository referenced", zap.String("code_repository", out.CodeRepository))
		e.Pass("history")
	case e.State().HasFragment("github"):
		e.Log().Info("source code repository record found on GitHub")
		e.Pass("history")
	default:
		for _, r := range props.RelatedResources() {
			if containsFold(versionRelations, r.RelationType) {
				e.Log().Info("version history referenced", zap.String("relation", r.RelationType), zap.String("identifier", r.Identifier))
				e.Pass("history")
				break
			}
		}
	}
	if !e.Passed("history") {
		e.Log().Warn("no source code repository or version history referenced")
	}

	dated := props.Has(model.KeyCreatedDate) || props.Has(model.KeyModifiedDate) || props.Has(model.KeyPublicationDate)
	switch {
	case len(out.Namespaces) > 0:
		e.Log().Info("formal provenance vocabulary used", zap.Strings("namespaces", out.Namespaces))
		e.Pass("formal")
	case props.Has(model.KeyCreator) && dated:
		e.Log().Info("authorship and dates given")
		e.Pass("formal")
	default:
		e.Log().Warn("neither formal provenance nor authorship with dates found")
	}
	return e.Result(out)
}

var communityTests = TestMap{
	"generic":  {"1"},
	"specific": {"2"},
}

// StandardOutput is a detected metadata standard
type StandardOutput struct {
	ID        string   `json:"metadata_standard_id,omitempty"`
	Name      string   `json:"metadata_standard"`
	Subjects  []string `json:"subject_areas,omitempty"`
	Namespace string   `json:"namespace"`
}

type communityStandards struct{ *Base }

func newCommunityStandards(b *Base) Evaluator { return &communityStandards{b} }

// Evaluate correlates harvested namespaces and schemas with the standards catalog.
// The specific check uses the identifier requirements of its catalog test when
// given, entries with '*' matching as globs.
func (e *communityStandards) Evaluate() model.MetricResult {
	e.warnInaccessible()
	candidates := e.candidates()
	out := []StandardOutput{}
	seen := make(map[string]bool)
	for _, ns := range candidates {
		for _, std := range e.Ref().Standards(ns) {
			if seen[std.ID] {
				continue
			}
			seen[std.ID] = true
			out = append(out, StandardOutput{ID: std.ID, Name: std.Name, Subjects: std.Subjects, Namespace: ns})
		}
	}

	for _, std := range out {
		if isGeneric(std.Subjects) {
			e.Log().Info("multidisciplinary metadata standard found", zap.String("standard", std.Name))
			e.Pass("generic")
			break
		}
	}
	if !e.Passed("generic") {
		e.Log().Warn("no multidisciplinary metadata standard found")
	}

	if reqs := identifierRequirements(e.Requirements("specific")); len(reqs) > 0 {
		if matched, ok := matchRequirements(reqs, candidates); ok {
			e.Log().Info("required community metadata standard found", zap.Strings("namespaces", matched))
			e.Pass("specific")
		} else {
			e.Log().Warn("required community metadata standard not found", zap.Strings("required", requiredIdentifiers(reqs)))
		}
		return e.Result(out)
	}
	for _, std := range out {
		if !isGeneric(std.Subjects) {
			e.Log().Info("community specific metadata standard found", zap.String("standard", std.Name), zap.Strings("subjects", std.Subjects))
			e.Pass("specific")
			break
		}
	}
	if !e.Passed("specific") {
		e.Log().Warn("no community specific metadata standard found")
	}
	return e.Result(out)
}

// candidates are the namespaces and schemas seen in harvested metadata and services
func (e *communityStandards) candidates() []string {
	s := e.State()
	set := make(map[string]bool)
	for _, ns := range s.Namespaces {
		set[ns] = true
	}
	for _, f := range s.Fragments {
		if strings.Contains(f.Schema, "/") || strings.Contains(f.Schema, ":") {
			set[f.Schema] = true
		}
	}
	if s.Service != nil {
		for _, ns := range s.Service.Namespaces {
			set[ns] = true
		}
	}
	delete(set, "")
	return sortedKeys(set)
}

func identifierRequirements(reqs []catalog.Requirement) []catalog.Requirement {
	var out []catalog.Requirement
	for _, r := range reqs {
		if len(r.Required.Identifier) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// matchRequirements returns the candidates satisfying every requirement
func matchRequirements(reqs []catalog.Requirement, candidates []string) ([]string, bool) {
	var matched []string
	for _, r := range reqs {
		hits := 0
		for _, pattern := range r.Required.Identifier {
			for _, c := range candidates {
				if refdata.MatchNamespace(pattern, c) {
					matched = append(matched, c)
					hits++
					break
				}
			}
		}
		if hits == 0 || (r.All() && hits < len(r.Required.Identifier)) {
			return nil, false
		}
	}
	return matched, true
}

func requiredIdentifiers(reqs []catalog.Requirement) []string {
	var out []string
	for _, r := range reqs {
		out = append(out, r.Required.Identifier...)
	}
	return out
}

func isGeneric(subjects []string) bool {
	return containsFold(subjects, "generic")
}

var fileFormatTests = TestMap{
	"format": {"1"},
}

// FileFormatOutput is the format assessment of one data file
type FileFormatOutput struct {
	URL        string   `json:"file_uri"`
	MimeType   string   `json:"mime_type"`
	Categories []string `json:"file_format_category,omitempty"`
}

type fileFormat struct{ *Base }

func newFileFormat(b *Base) Evaluator { return &fileFormat{b} }

func (e *fileFormat) Evaluate() model.MetricResult {
	e.warnInaccessible()
	items := e.State().ContentItems()
	out := []FileFormatOutput{}
	if len(items) == 0 {
		e.Log().Warn("no data files found, file format unknown")
		return e.Result(out)
	}

	for _, it := range items {
		for _, mt := range itemTypes(it) {
			if e.Ref().IsArchive(mt) {
				continue
			}
			cats := e.Ref().FormatCategories(mt)
			if len(cats) == 0 && isStructuredText(mt) {
				cats = []string{"structured-text"}
			}
			out = append(out, FileFormatOutput{URL: it.URL, MimeType: mt, Categories: cats})
			if len(cats) > 0 {
				e.Log().Info("file format recognized", zap.String("mime_type", mt), zap.Strings("categories", cats))
				e.Pass("format")
			}
		}
	}
	if !e.Passed("format") {
		e.Log().Warn("no data file is in a long term, open or scientific file format")
	}
	return e.Result(out)
}

// itemTypes lists the distinct media types claimed, served or sniffed for a file
func itemTypes(it model.ContentItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append([]string{it.ClaimedType, it.HeaderContentType}, it.SniffedTypes...) {
		mt := strings.ToLower(strings.TrimSpace(t))
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		if mt == "" || seen[mt] {
			continue
		}
		seen[mt] = true
		out = append(out, mt)
	}
	return out
}

// text, json and xml serializations other than html
func isStructuredText(mt string) bool {
	if strings.Contains(mt, "html") {
		return false
	}
	return strings.HasPrefix(mt, "text/") || strings.HasSuffix(mt, "+json") || strings.HasSuffix(mt, "+xml") ||
		strings.HasSuffix(mt, "/json") || strings.HasSuffix(mt, "/xml")
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
