package evaluate

import (
	"sort"
	"strings"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/catalog"
)

// Family is an evaluator implementation registered under an agnostic metric id
type Family struct {
	Name  string
	Tests TestMap
	New   func(*Base) Evaluator
}

// Registry maps agnostic metric ids to evaluator families
type Registry struct {
	families map[string]Family
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// DefaultRegistry returns a registry holding every built-in family
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("FAIR-F1-01D", Family{Name: "unique identifier", Tests: uniqueIDTests, New: newUniqueID})
	r.Register("FAIR-F1-02D", Family{Name: "persistent identifier", Tests: persistentIDTests, New: newPersistentID})
	r.Register("FAIR-F2-01M", Family{Name: "core metadata", Tests: coreMetadataTests, New: newCoreMetadata})
	r.Register("FAIR-F3-01M", Family{Name: "data identifier", Tests: dataIDTests, New: newDataID})
	r.Register("FAIR-F4-01M", Family{Name: "searchable", Tests: searchableTests, New: newSearchable})
	r.Register("FAIR-A1-01M", Family{Name: "access level", Tests: accessLevelTests, New: newAccessLevel})
	r.Register("FAIR-A1-02M", Family{Name: "metadata protocol", Tests: protocolTests, New: newMetadataProtocol})
	r.Register("FAIR-A1-03D", Family{Name: "data protocol", Tests: protocolTests, New: newDataProtocol})
	r.Register("FAIR-A2-01M", Family{Name: "metadata preservation", Tests: preservationTests, New: newPreservation})
	r.Register("FAIR-I1-01M", Family{Name: "formal metadata", Tests: formalTests, New: newFormalMetadata})
	r.Register("FAIR-I2-01M", Family{Name: "semantic vocabulary", Tests: semanticTests, New: newSemanticVocabulary})
	r.Register("FAIR-I3-01M", Family{Name: "related resources", Tests: relatedTests, New: newRelatedResources})
	r.Register("FAIR-R1-01MD", Family{Name: "data content", Tests: contentTests, New: newDataContent})
	r.Register("FAIR-R1.1-01M", Family{Name: "license", Tests: licenseTests, New: newLicense})
	r.Register("FAIR-R1.2-01M", Family{Name: "data provenance", Tests: dataProvenanceTests, New: newDataProvenance})
	r.Register("FAIR-R1.2-02M", Family{Name: "code provenance", Tests: codeProvenanceTests, New: newCodeProvenance})
	r.Register("FAIR-R1.3-01M", Family{Name: "community standards", Tests: communityTests, New: newCommunityStandards})
	r.Register("FAIR-R1.3-02D", Family{Name: "file format", Tests: fileFormatTests, New: newFileFormat})
	return r
}

// Register adds or replaces a family
func (r *Registry) Register(agnosticID string, f Family) {
	r.families[agnosticID] = f
}

// Lookup returns the family registered for an agnostic metric id
func (r *Registry) Lookup(agnosticID string) (Family, bool) {
	f, ok := r.families[agnosticID]
	return f, ok
}

// IDs returns the registered agnostic ids, sorted
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.families))
	for id := range r.families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Verify checks that every metric of the catalog has a registered family
func (r *Registry) Verify(c *catalog.Catalog) error {
	var missing []string
	for _, m := range c.Metrics {
		if _, ok := r.families[m.AgnosticIdentifier]; !ok {
			missing = append(missing, m.Identifier+" ("+m.AgnosticIdentifier+")")
		}
	}
	if len(missing) > 0 {
		return apperr.Configf("evaluate.Verify", "no evaluator registered for %s", strings.Join(missing, ", "))
	}
	return nil
}
