// Package harvest collects everything the evaluators look at: the landing
// response, metadata fragments in harvest order, the merged record, the PID
// collector, namespaces, typed links and sampled data files.
package harvest

import (
	"sort"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

// Agnostic metric ids used to scope harvester log lines
const (
	MetricUniqueID     = "FAIR-F1-01D"
	MetricPersistentID = "FAIR-F1-02D"
	MetricCore         = "FAIR-F2-01M"
	MetricDataID       = "FAIR-F3-01M"
	MetricSearchable   = "FAIR-F4-01M"
	MetricFormal       = "FAIR-I1-01M"
	MetricContent      = "FAIR-R1-01MD"
	MetricLicense      = "FAIR-R1.1-01M"
)

// State is the outcome of one harvest. It is owned by a single run.
type State struct {
	Input             model.Identifier
	OriginURL         string
	Landing           *fetch.Response
	LandingURL        string
	LandingAccessible bool

	Fragments  []model.MetadataFragment
	Merged     model.MergedMetadata
	PIDs       *PIDCollector
	Namespaces []string
	Links      []fetch.TypedLink

	// RepeatPIDCheck is set when a verifiable PID was found in the metadata of
	// an input that was not one; identifier metrics then assess that PID
	RepeatPIDCheck bool
	DiscoveredPID  *model.PidRecord

	Service *ServiceInfo
	Errors  []string
}

// ServiceInfo is the outcome of a metadata service probe
type ServiceInfo struct {
	URL        string   `json:"url"`
	Type       string   `json:"type"`
	Available  bool     `json:"available"`
	Namespaces []string `json:"namespaces,omitempty"`
}

// NewState returns an empty state for id
func NewState(id model.Identifier) *State {
	return &State{
		Input:  id,
		PIDs:   NewPIDCollector(),
		Merged: model.MergedMetadata{Properties: model.Properties{}, Sources: map[model.Key][]string{}},
	}
}

// ContentItems returns the data links of the merged record
func (s *State) ContentItems() []model.ContentItem {
	return s.Merged.Properties.ContentItems()
}

// Target returns the PID record identifier metrics assess: the PID discovered
// in the metadata when a repeated check was requested, the input otherwise
func (s *State) Target() model.PidRecord {
	if s.RepeatPIDCheck && s.DiscoveredPID != nil {
		return *s.DiscoveredPID
	}
	key := s.Input.ResolverURL
	if key == "" {
		key = s.Input.Normalized
	}
	if rec, ok := s.PIDs.Get(key); ok {
		return rec
	}
	return model.PidRecord{
		PID:          s.Input.Normalized,
		Scheme:       s.Input.Scheme,
		IsPersistent: s.Input.IsPersistent,
		ResolverURL:  s.Input.ResolverURL,
	}
}

// FragmentsBy returns the fragments obtained by one of the given methods
func (s *State) FragmentsBy(methods ...model.OfferingMethod) []model.MetadataFragment {
	var out []model.MetadataFragment
	for _, f := range s.Fragments {
		for _, m := range methods {
			if f.Method == m {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// HasFragment reports whether a fragment matches the collector tag or offering method
func (s *State) HasFragment(location string) bool {
	for _, f := range s.Fragments {
		if f.Tag == location || string(f.Method) == location {
			return true
		}
	}
	return false
}

// Info exposes the harvest provenance for reports
func (s *State) Info() *model.HarvestInfo {
	return &model.HarvestInfo{
		LandingURL:        s.LandingURL,
		LandingAccessible: s.LandingAccessible,
		Fragments:         s.Fragments,
		PIDs:              s.PIDs.Records(),
		Namespaces:        s.Namespaces,
		Merged:            s.Merged,
		Errors:            s.Errors,
	}
}

func (s *State) addFragment(f *model.MetadataFragment, method model.OfferingMethod) {
	f.Method = method
	s.Fragments = append(s.Fragments, *f)
}

func (s *State) remerge(extra []string) {
	s.Merged = Merge(s.Fragments)
	s.Namespaces = Namespaces(s.Fragments, extra)
}

// Namespaces returns the sorted set of namespaces seen in fragments plus extra
func Namespaces(fragments []model.MetadataFragment, extra []string) []string {
	seen := make(map[string]bool)
	for _, f := range fragments {
		for _, ns := range f.Namespaces {
			if ns != "" {
				seen[ns] = true
			}
		}
	}
	for _, ns := range extra {
		if ns != "" {
			seen[ns] = true
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}
