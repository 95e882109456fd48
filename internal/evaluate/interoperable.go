package evaluate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

var formalTests = TestMap{
	"embedded": {"1"},
	"graph":    {"2"},
}

// embedded structured data readable as a graph
var structuredTags = map[string]bool{
	"schemaorg": true,
	"microdata": true,
	"rdfa":      true,
}

var graphFormats = map[string]bool{
	"json-ld": true,
	"rdf":     true,
}

// FormalMetadataOutput is the output of the formal metadata metric
type FormalMetadataOutput struct {
	Representations []MetadataSource `json:"serialization"`
}

type formalMetadata struct{ *Base }

func newFormalMetadata(b *Base) Evaluator { return &formalMetadata{b} }

func (e *formalMetadata) Evaluate() model.MetricResult {
	e.warnInaccessible()
	out := FormalMetadataOutput{Representations: []MetadataSource{}}

	for _, f := range e.State().FragmentsBy(model.MethodEmbedded) {
		if !structuredTags[f.Tag] {
			continue
		}
		out.Representations = append(out.Representations, MetadataSource{Source: f.Tag, Method: f.Method, URL: f.SourceURL})
		if !e.Passed("embedded") {
			e.Log().Info("parsable structured metadata embedded in landing page", zap.String("source", f.Tag))
			e.Pass("embedded")
		}
	}

	linked := e.State().FragmentsBy(model.MethodContentNegotiation, model.MethodTypedLink, model.MethodSignposting)
	for _, f := range linked {
		if !graphFormats[f.Format] {
			continue
		}
		out.Representations = append(out.Representations, MetadataSource{Source: f.Tag, Method: f.Method, URL: f.SourceURL})
		if !e.Passed("graph") {
			e.Log().Info("parsable graph metadata accessible", zap.String("method", string(f.Method)), zap.String("format", f.Format))
			e.Pass("graph")
		}
	}

	if len(out.Representations) == 0 {
		e.Log().Warn("no formal metadata representation found")
	}
	return e.Result(out)
}

var semanticTests = TestMap{
	"namespaces": {"1"},
	"known":      {"2"},
}

// SemanticVocabularyOutput is the output of the semantic vocabulary metric
type SemanticVocabularyOutput struct {
	Namespaces []string             `json:"namespace"`
	Known      []refdata.Vocabulary `json:"known_vocabularies,omitempty"`
}

type semanticVocabulary struct{ *Base }

func newSemanticVocabulary(b *Base) Evaluator { return &semanticVocabulary{b} }

func (e *semanticVocabulary) Evaluate() model.MetricResult {
	e.warnInaccessible()
	ref := e.Ref()
	out := SemanticVocabularyOutput{Namespaces: []string{}}
	for _, ns := range e.State().Namespaces {
		if ref.IsDefaultNamespace(ns) {
			continue
		}
		out.Namespaces = append(out.Namespaces, ns)
		if v, ok := ref.Vocabulary(ns); ok {
			out.Known = append(out.Known, v)
		}
	}

	if len(out.Namespaces) == 0 {
		e.Log().Warn("no vocabulary namespaces found besides the default ones")
		return e.Result(out)
	}
	e.Log().Info("vocabulary namespaces found", zap.Strings("namespaces", out.Namespaces))
	e.Pass("namespaces")

	if len(out.Known) == 0 {
		e.Log().Warn("none of the namespaces belongs to a known semantic resource")
		return e.Result(out)
	}
	for _, v := range out.Known {
		e.Log().Info("known semantic resource found", zap.String("prefix", v.Prefix), zap.String("namespace", v.Namespace))
	}
	e.Pass("known")
	return e.Result(out)
}

var relatedTests = TestMap{
	"mentioned": {"1"},
	"linked":    {"2"},
}

// RelatedResourcesOutput is the output of the related resources metric
type RelatedResourcesOutput struct {
	Related []model.RelatedResource `json:"related_resources"`
}

type relatedResources struct{ *Base }

func newRelatedResources(b *Base) Evaluator { return &relatedResources{b} }

func (e *relatedResources) Evaluate() model.MetricResult {
	e.warnInaccessible()
	rels := e.Props().RelatedResources()
	out := RelatedResourcesOutput{Related: []model.RelatedResource{}}
	for _, r := range rels {
		if r.Identifier != "" {
			out.Related = append(out.Related, r)
		}
	}
	if len(out.Related) == 0 {
		e.Log().Warn("no related resources found in metadata")
		return e.Result(out)
	}
	e.Log().Info("related resources found", zap.Int("count", len(out.Related)))
	e.Pass("mentioned")

	for _, r := range out.Related {
		id := e.Classify(r.Identifier)
		if id.IsPersistent || id.Scheme == model.SchemeURL {
			e.Log().Info("related resource is given as a resolvable identifier",
				zap.String("relation", r.RelationType), zap.String("identifier", r.Identifier), zap.String("scheme", string(id.Scheme)))
			e.Pass("linked")
			break
		}
	}
	if !e.Passed("linked") {
		e.Log().Warn("related resources are not given as PIDs or URLs")
	}
	return e.Result(out)
}
