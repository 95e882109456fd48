package evaluate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/model"
)

var coreMetadataTests = TestMap{
	"some":     {"1"},
	"citation": {"2"},
	"all":      {"3"},
}

// Core metadata levels. Partial means the citation subset is complete.
const (
	LevelInsufficient = "insufficient"
	LevelSome         = "some"
	LevelPartial      = "partial"
	LevelAll          = "all"
)

// MetadataSource names where a fragment came from
type MetadataSource struct {
	Source string               `json:"source"`
	Method model.OfferingMethod `json:"method"`
	URL    string               `json:"url,omitempty"`
}

// CoreMetadataOutput is the output of the core metadata metric
type CoreMetadataOutput struct {
	Level           string           `json:"core_metadata_status"`
	Found           map[string]any   `json:"core_metadata_found"`
	Missing         []model.Key      `json:"core_metadata_missing,omitempty"`
	MetadataSources []MetadataSource `json:"core_metadata_source,omitempty"`
}

type coreMetadata struct{ *Base }

func newCoreMetadata(b *Base) Evaluator { return &coreMetadata{b} }

func (e *coreMetadata) Evaluate() model.MetricResult {
	e.warnInaccessible()
	props := e.Props()
	out := CoreMetadataOutput{Level: LevelInsufficient, Found: map[string]any{}}
	for _, f := range e.State().Fragments {
		out.MetadataSources = append(out.MetadataSources, MetadataSource{Source: f.Tag, Method: f.Method, URL: f.SourceURL})
	}

	for _, k := range model.CoreKeys {
		if props.Has(k) {
			out.Found[string(k)] = props[k]
		} else {
			out.Missing = append(out.Missing, k)
		}
	}
	if len(out.Found) == 0 {
		e.Log().Warn("no core metadata found")
		return e.Result(out)
	}

	out.Level = LevelSome
	e.Log().Info("core metadata found", zap.Int("elements", len(out.Found)), zap.Int("sources", len(out.MetadataSources)))
	e.Pass("some")

	if hasAll(props, model.CitationKeys) {
		e.Log().Info("core citation metadata is available")
		out.Level = LevelPartial
		e.Pass("citation")
	} else {
		e.Log().Warn("core citation metadata incomplete", zap.Strings("missing", keyNames(missing(props, model.CitationKeys))))
	}

	if len(out.Missing) == 0 {
		out.Level = LevelAll
		e.Pass("all")
	} else {
		e.Log().Warn("core descriptive metadata incomplete", zap.Strings("missing", keyNames(out.Missing)))
	}
	return e.Result(out)
}

var dataIDTests = TestMap{
	"info":     {"1"},
	"location": {"2"},
}

// DataIDOutput is the output of the data identifier metric
type DataIDOutput struct {
	ContentIdentifier []model.ContentItem `json:"object_content_identifier_included"`
}

type dataID struct{ *Base }

func newDataID(b *Base) Evaluator { return &dataID{b} }

func (e *dataID) Evaluate() model.MetricResult {
	e.warnInaccessible()
	items := e.State().ContentItems()
	out := DataIDOutput{ContentIdentifier: items}
	if len(items) == 0 {
		e.Log().Warn("no data content identifier found in metadata")
		return e.Result(out)
	}

	var described, located bool
	for _, it := range items {
		if it.Name != "" || it.ClaimedType != "" || it.ClaimedSize != "" {
			described = true
		}
		if it.URL == "" || it.Scheme == model.SchemeUnknown {
			continue
		}
		located = true
		switch {
		case it.Sampled && it.Verified:
			e.Log().Info("data link is accessible", zap.String("url", it.URL))
		case it.Sampled:
			e.Log().Warn("data link could not be accessed", zap.String("url", it.URL), zap.String("error", it.Error))
		}
	}

	if described {
		e.Log().Info("data content information (name, size, type) found", zap.Int("items", len(items)))
		e.Pass("info")
	} else {
		e.Log().Warn("data links given without name, size or type")
	}
	if located {
		e.Pass("location")
	} else {
		e.Log().Warn("no data link is a PID or URL")
	}
	return e.Result(out)
}

var searchableTests = TestMap{
	"structured": {"1"},
	"typed":      {"2"},
	"registry":   {"3"},
}

// default locations when the catalog test carries no requirement
var searchableDefaults = map[string][]string{
	"structured": {"schemaorg", "dublincore", "microdata", "rdfa", "opengraph", "highwire_eprints"},
	"typed":      {string(model.MethodTypedLink), string(model.MethodSignposting)},
	"registry":   {string(model.MethodRegistryLookup), string(model.MethodMetadataService)},
}

// SearchMechanism is one way the metadata can be found
type SearchMechanism struct {
	Mechanism string   `json:"mechanism"`
	Sources   []string `json:"sources"`
}

// SearchableOutput is the output of the searchable metric
type SearchableOutput struct {
	Mechanisms []SearchMechanism `json:"search_mechanisms"`
}

type searchable struct{ *Base }

func newSearchable(b *Base) Evaluator { return &searchable{b} }

func (e *searchable) Evaluate() model.MetricResult {
	e.warnInaccessible()
	out := SearchableOutput{Mechanisms: []SearchMechanism{}}
	for _, check := range []string{"structured", "typed", "registry"} {
		if !e.IsTestDefined(check) {
			continue
		}
		sources, ok := e.match(check)
		if !ok {
			e.Log().Warn("metadata not found via "+mechanismName(check), zap.Strings("locations", e.locations(check)))
			continue
		}
		out.Mechanisms = append(out.Mechanisms, SearchMechanism{Mechanism: mechanismName(check), Sources: sources})
		e.Log().Info("metadata found via "+mechanismName(check), zap.Strings("sources", sources))
		e.Pass(check)
	}
	return e.Result(out)
}

// locations are the sources a check accepts
func (e *searchable) locations(check string) []string {
	var locs []string
	for _, req := range e.Requirements(check) {
		locs = append(locs, req.Required.Location...)
	}
	if len(locs) == 0 {
		return searchableDefaults[check]
	}
	return locs
}

// match applies the location requirements of a check to the fragments. Embedded
// structured data only counts when it was embedded in the landing page.
func (e *searchable) match(check string) ([]string, bool) {
	reqs := e.Requirements(check)
	if len(reqs) == 0 {
		reqs = []catalog.Requirement{{Modality: catalog.ModalityAny, Required: catalog.Required{Location: searchableDefaults[check]}}}
	}

	found := make(map[string]bool)
	for _, req := range reqs {
		matched := 0
		for _, loc := range req.Required.Location {
			if e.hasSource(check, loc) {
				found[loc] = true
				matched++
			}
		}
		if req.All() && matched < len(req.Required.Location) {
			return nil, false
		}
	}
	if len(found) == 0 {
		return nil, false
	}
	return sortedKeys(found), true
}

func (e *searchable) hasSource(check, location string) bool {
	s := e.State()
	if check == "structured" {
		for _, f := range s.FragmentsBy(model.MethodEmbedded) {
			if f.Tag == location {
				return true
			}
		}
		return false
	}
	if location == string(model.MethodMetadataService) && s.Service != nil && s.Service.Available {
		return true
	}
	return s.HasFragment(location)
}

func mechanismName(check string) string {
	switch check {
	case "structured":
		return "structured data"
	case "typed":
		return "typed links"
	default:
		return "metadata registry"
	}
}

func hasAll(p model.Properties, keys []model.Key) bool {
	return len(missing(p, keys)) == 0
}

func missing(p model.Properties, keys []model.Key) []model.Key {
	var out []model.Key
	for _, k := range keys {
		if !p.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func keyNames(keys []model.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
