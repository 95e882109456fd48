package evaluate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/model"
)

var uniqueIDTests = TestMap{
	"syntax": {"1"},
	"hash":   {"2"},
}

// UniqueIDOutput is the output of the unique identifier metric
type UniqueIDOutput struct {
	GUID       string         `json:"guid"`
	GUIDScheme []model.Scheme `json:"guid_scheme"`
}

type uniqueID struct{ *Base }

func newUniqueID(b *Base) Evaluator { return &uniqueID{b} }

func (e *uniqueID) Evaluate() model.MetricResult {
	s := e.State()
	out := UniqueIDOutput{GUID: s.Input.Raw}

	id := s.Input
	if s.RepeatPIDCheck && s.DiscoveredPID != nil {
		e.Log().Info("assessing persistent identifier found in metadata", zap.String("pid", s.DiscoveredPID.PID))
		out.GUID = s.DiscoveredPID.PID
		id = model.Identifier{
			Raw:          s.DiscoveredPID.PID,
			Normalized:   s.DiscoveredPID.PID,
			Scheme:       s.DiscoveredPID.Scheme,
			Schemes:      []model.Scheme{s.DiscoveredPID.Scheme},
			IsPersistent: s.DiscoveredPID.IsPersistent,
		}
	}

	if !id.Known() {
		e.Log().Warn("identifier does not follow a known scheme", zap.String("identifier", id.Raw))
		return e.Result(out)
	}
	out.GUIDScheme = id.Schemes
	if len(out.GUIDScheme) == 0 {
		out.GUIDScheme = []model.Scheme{id.Scheme}
	}

	switch id.Scheme {
	case model.SchemeUUID, model.SchemeHash:
		e.Log().Info("identifier follows a UUID or hash syntax", zap.String("scheme", string(id.Scheme)))
		e.Pass("hash")
	default:
		e.Log().Info("unique identifier scheme found", zap.String("scheme", string(id.Scheme)))
		e.Pass("syntax")
	}
	return e.Result(out)
}

var persistentIDTests = TestMap{
	"scheme":     {"1"},
	"resolvable": {"2"},
	"domain":     {"3"},
}

// PersistentIDOutput is the output of the persistent identifier metric
type PersistentIDOutput struct {
	PID              string       `json:"pid,omitempty"`
	PIDScheme        model.Scheme `json:"pid_scheme,omitempty"`
	ResolvedURL      string       `json:"resolved_url,omitempty"`
	ResolvableStatus bool         `json:"resolvable_status"`
	Verified         bool         `json:"verified"`
}

type persistentID struct{ *Base }

func newPersistentID(b *Base) Evaluator { return &persistentID{b} }

// Evaluate requires the identifier to resolve for the scheme check: a PID the
// resolver rejects is not usable as one.
func (e *persistentID) Evaluate() model.MetricResult {
	s := e.State()
	rec := s.Target()
	if s.RepeatPIDCheck && s.DiscoveredPID != nil {
		e.Log().Info("assessing persistent identifier found in metadata", zap.String("pid", rec.PID))
	}
	out := PersistentIDOutput{PID: rec.PID, PIDScheme: rec.Scheme, ResolvedURL: rec.ResolvedURL, Verified: rec.Verified}

	if !rec.IsPersistent {
		e.Log().Warn("identifier does not follow a persistent identifier scheme", zap.String("identifier", rec.PID), zap.String("scheme", string(rec.Scheme)))
		return e.Result(out)
	}
	if !rec.Resolvable {
		e.Log().Warn("persistent identifier does not resolve, landing page inaccessible",
			zap.String("pid", rec.PID), zap.Ints("status_chain", rec.StatusChain))
		return e.Result(out)
	}

	out.ResolvableStatus = true
	e.Log().Info("persistent identifier scheme found", zap.String("scheme", string(rec.Scheme)))
	e.Pass("scheme")
	e.Log().Info("persistent identifier resolves to landing page", zap.String("url", rec.ResolvedURL))
	e.Pass("resolvable")

	if rec.Verified {
		e.Pass("domain")
	} else {
		e.Log().Warn("landing page domain does not belong to the identifier registrant",
			zap.String("resolved_url", rec.ResolvedURL))
	}
	return e.Result(out)
}
