package evaluate

import (
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

var licenseTests = TestMap{
	"present": {"1"},
	"spdx":    {"2"},
}

// minimum similarity of a free-text license name to an SPDX license name
const licenseSimilarity = 0.85

// LicenseOutput is one license statement
type LicenseOutput struct {
	License     string `json:"license"`
	SPDXID      string `json:"spdx_license_id,omitempty"`
	DetailsURL  string `json:"details_url,omitempty"`
	OSIApproved bool   `json:"osi_approved"`
}

type license struct{ *Base }

func newLicense(b *Base) Evaluator { return &license{b} }

func (e *license) Evaluate() model.MetricResult {
	e.warnInaccessible()
	values := e.Props().Strings(model.KeyLicense)
	out := []LicenseOutput{}
	if len(values) == 0 {
		e.Log().Warn("no license information found in metadata")
		return e.Result(out)
	}
	e.Log().Info("license information found", zap.Strings("licenses", values))
	e.Pass("present")

	for _, v := range values {
		lo := LicenseOutput{License: v}
		lic, ok := e.Ref().License(v)
		if !ok {
			lic, ok = closestLicense(e.Ref(), v)
			if ok {
				e.Log().Info("license name matched approximately", zap.String("license", v), zap.String("spdx_id", lic.ID))
			}
		}
		if !ok {
			e.Log().Warn("license is not registered at SPDX", zap.String("license", v))
			out = append(out, lo)
			continue
		}
		lo.SPDXID, lo.DetailsURL, lo.OSIApproved = lic.ID, lic.Reference, lic.OSIApproved
		if lic.Deprecated {
			e.Log().Info("license id is deprecated at SPDX", zap.String("spdx_id", lic.ID))
		}
		e.Log().Info("recognized SPDX license", zap.String("spdx_id", lic.ID), zap.Bool("osi_approved", lic.OSIApproved))
		e.Pass("spdx")
		out = append(out, lo)
	}
	return e.Result(out)
}

// closestLicense matches a free-text name against the SPDX names
func closestLicense(ref *refdata.Provider, name string) (refdata.License, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || strings.Contains(n, "://") {
		return refdata.License{}, false
	}
	var best refdata.License
	bestScore := 0.0
	for _, lic := range ref.Licenses {
		score := levenshtein.Similarity(n, strings.ToLower(lic.Name), nil)
		if score > bestScore {
			best, bestScore = lic, score
		}
	}
	if bestScore < licenseSimilarity {
		return refdata.License{}, false
	}
	return best, true
}
