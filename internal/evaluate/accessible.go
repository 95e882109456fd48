package evaluate

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/model"
)

var accessLevelTests = TestMap{
	"present":  {"1"},
	"readable": {"2"},
}

// AccessLevelOutput is the output of the access level metric
type AccessLevelOutput struct {
	AccessLevel   string `json:"access_level,omitempty"`
	AccessDetails string `json:"access_details,omitempty"`
	Source        string `json:"source,omitempty"`
}

type accessLevel struct{ *Base }

func newAccessLevel(b *Base) Evaluator { return &accessLevel{b} }

func (e *accessLevel) Evaluate() model.MetricResult {
	e.warnInaccessible()
	props := e.Props()
	ref := e.Ref()
	var out AccessLevelOutput

	values := props.Strings(model.KeyAccessLevel)
	if props.Has(model.KeyAccessFree) {
		values = append(values, props.String(model.KeyAccessFree))
	}
	for _, v := range values {
		level, viaPattern, ok := ref.AccessLevel(v)
		if out.AccessDetails == "" {
			out.AccessDetails = v
			out.Source = string(model.KeyAccessLevel)
		}
		if !ok {
			e.Log().Info("access information is not a known access right", zap.String("value", v))
			continue
		}
		out.AccessLevel, out.AccessDetails = level, v
		e.Log().Info("access level recognized", zap.String("level", level), zap.String("value", v))
		e.Pass("present")
		if viaPattern && ref.IsAccessRightsURI(v) {
			e.Log().Info("access information is given as a machine readable rights URI")
			e.Pass("readable")
		}
		break
	}

	if out.AccessLevel == "" && out.AccessDetails != "" {
		// unrecognized statements still describe access conditions
		e.Pass("present")
	}
	if out.AccessLevel == "" {
		for _, lic := range props.Strings(model.KeyLicense) {
			if level, _, ok := ref.AccessLevel(lic); ok {
				out.AccessLevel, out.AccessDetails, out.Source = level, lic, string(model.KeyLicense)
				e.Log().Info("access level derived from license", zap.String("level", level), zap.String("license", lic))
				e.Pass("present")
				break
			}
		}
	}

	if out.AccessLevel == "" && out.AccessDetails == "" {
		e.Log().Warn("no access information found in metadata")
		return e.Result(out)
	}
	if out.AccessLevel == "embargoed" && !props.Has(model.KeyDateAvailable) {
		e.Log().Warn("embargoed access, date of availability not given")
	}
	return e.Result(out)
}

var protocolTests = TestMap{
	"protocol": {"1"},
}

// ProtocolOutput is the output of the protocol metrics
type ProtocolOutput struct {
	URL      string `json:"url,omitempty"`
	Protocol string `json:"standard_protocol,omitempty"`
}

type metadataProtocol struct{ *Base }

func newMetadataProtocol(b *Base) Evaluator { return &metadataProtocol{b} }

func (e *metadataProtocol) Evaluate() model.MetricResult {
	s := e.State()
	var out ProtocolOutput
	if !s.LandingAccessible {
		e.Log().Warn("landing page inaccessible, metadata access protocol unknown", zap.String("identifier", s.Input.Raw))
		return e.Result(out)
	}
	out.URL = s.LandingURL
	name, ok := e.Ref().Protocol(scheme(s.LandingURL))
	if !ok {
		e.Log().Warn("landing page is not served by a standard protocol", zap.String("url", s.LandingURL))
		return e.Result(out)
	}
	out.Protocol = name
	e.Log().Info("metadata is accessible via standard protocol", zap.String("protocol", name))
	e.Pass("protocol")
	return e.Result(out)
}

type dataProtocol struct{ *Base }

func newDataProtocol(b *Base) Evaluator { return &dataProtocol{b} }

// Evaluate passes on a data link with a standard scheme that was not found
// unreachable when sampled
func (e *dataProtocol) Evaluate() model.MetricResult {
	e.warnInaccessible()
	var out ProtocolOutput
	items := e.State().ContentItems()
	if len(items) == 0 {
		e.Log().Warn("no data links found, data access protocol unknown")
		return e.Result(out)
	}
	for _, it := range items {
		name, ok := e.Ref().Protocol(scheme(it.URL))
		if !ok {
			continue
		}
		if it.Sampled && !it.Verified {
			e.Log().Warn("data link not resolvable", zap.String("url", it.URL))
			continue
		}
		out = ProtocolOutput{URL: it.URL, Protocol: name}
		e.Log().Info("data is accessible via standard protocol", zap.String("protocol", name), zap.String("url", it.URL))
		e.Pass("protocol")
		return e.Result(out)
	}
	e.Log().Warn("no data link uses a standard protocol")
	return e.Result(out)
}

var preservationTests = TestMap{
	"registry": {"1"},
}

// registry-backed schemes keep metadata after the data is gone
var preservedSchemes = map[model.Scheme]bool{
	model.SchemeDOI: true,
}

// PreservationOutput is the output of the metadata preservation metric
type PreservationOutput struct {
	PID          string `json:"pid,omitempty"`
	Registry     string `json:"metadata_registry,omitempty"`
	RepositoryID string `json:"re3data_id,omitempty"`
}

type preservation struct{ *Base }

func newPreservation(b *Base) Evaluator { return &preservation{b} }

func (e *preservation) Evaluate() model.MetricResult {
	s := e.State()
	rec := s.Target()
	var out PreservationOutput
	if !preservedSchemes[rec.Scheme] {
		for _, v := range s.PIDs.Verified() {
			if preservedSchemes[v.Scheme] {
				rec = v
				break
			}
		}
	}
	if !preservedSchemes[rec.Scheme] {
		e.Log().Warn("identifier scheme is not backed by a metadata registry", zap.String("scheme", string(rec.Scheme)))
		return e.Result(out)
	}

	out.PID = rec.PID
	out.Registry = "doi"
	for _, f := range s.FragmentsBy(model.MethodRegistryLookup) {
		if f.Tag == "datacite" {
			out.Registry = "datacite"
		}
	}
	out.RepositoryID = e.Ref().RepositoryID(rec.PID, e.Props().String(model.KeyDataCiteClient))
	if out.RepositoryID != "" {
		e.Log().Info("repository registered at re3data", zap.String("re3data_id", out.RepositoryID))
	}
	e.Log().Info("metadata is preserved by the identifier registry", zap.String("pid", rec.PID), zap.String("registry", out.Registry))
	e.Pass("registry")
	return e.Result(out)
}

func scheme(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
