package evaluate

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

var contentTests = TestMap{
	"minimal":   {"1"},
	"matches":   {"2"},
	"variables": {"3"},
}

// relative difference tolerated between a human readable size claim and the real size
const sizeTolerance = 0.05

// ContentCheck is the comparison of one data file with its description
type ContentCheck struct {
	URL         string `json:"url"`
	ClaimedType string `json:"claimed_type,omitempty"`
	ClaimedSize string `json:"claimed_size,omitempty"`
	TypeMatches bool   `json:"type_matches"`
	SizeMatches bool   `json:"size_matches"`
}

// DataContentOutput is the output of the data content metric
type DataContentOutput struct {
	ObjectType        string         `json:"object_type,omitempty"`
	Checks            []ContentCheck `json:"data_content_descriptor,omitempty"`
	MeasuredVariables []string       `json:"measured_variables,omitempty"`
}

type dataContent struct{ *Base }

func newDataContent(b *Base) Evaluator { return &dataContent{b} }

func (e *dataContent) Evaluate() model.MetricResult {
	e.warnInaccessible()
	props := e.Props()
	items := e.State().ContentItems()
	out := DataContentOutput{
		ObjectType:        props.String(model.KeyObjectType),
		MeasuredVariables: props.Strings(model.KeyMeasuredVariable),
	}

	described := false
	for _, it := range items {
		if it.ClaimedType != "" || it.ClaimedSize != "" {
			described = true
		}
	}
	if len(items) > 0 && (described || props.Has(model.KeyObjectSize) || props.Has(model.KeyObjectFormat)) {
		e.Log().Info("minimal information about data content found", zap.Int("items", len(items)))
		e.Pass("minimal")
	} else {
		e.Log().Warn("no data content information found in metadata")
	}

	verified := false
	for _, it := range items {
		if !it.Sampled {
			continue
		}
		if !it.Verified {
			e.Log().Warn("data file could not be downloaded, content not verified", zap.String("url", it.URL))
			continue
		}
		verified = true
		c := e.compare(it)
		out.Checks = append(out.Checks, c)
		if c.TypeMatches && (c.ClaimedSize == "" || c.SizeMatches) && !e.Passed("matches") {
			e.Log().Info("data content matches file type and size given in metadata", zap.String("url", it.URL))
			e.Pass("matches")
		}
	}
	if len(out.Checks) > 0 && !e.Passed("matches") {
		e.Log().Warn("no data file matches the type and size given in metadata")
	}

	switch {
	case len(out.MeasuredVariables) == 0:
		e.Log().Warn("no measured variables or observation types given in metadata")
	case !verified:
		e.Log().Warn("measured variables given but no data file could be inspected", zap.Int("variables", len(out.MeasuredVariables)))
	default:
		e.Log().Info("measured variables given for inspected data", zap.Strings("variables", out.MeasuredVariables))
		e.Pass("variables")
	}
	return e.Result(out)
}

func (e *dataContent) compare(it model.ContentItem) ContentCheck {
	c := ContentCheck{URL: it.URL, ClaimedType: it.ClaimedType, ClaimedSize: it.ClaimedSize}

	if claimed := strings.ToLower(fetch.MediaType(it.ClaimedType)); claimed != "" {
		actual := append([]string{strings.ToLower(it.HeaderContentType)}, it.SniffedTypes...)
		for _, t := range actual {
			if t != "" && strings.EqualFold(t, claimed) {
				c.TypeMatches = true
				break
			}
		}
		if !c.TypeMatches {
			e.Log().Info("file type differs from metadata", zap.String("claimed", claimed), zap.Strings("found", actual))
		}
	}

	if it.ClaimedSize == "" {
		return c
	}
	claimed, err := humanize.ParseBytes(it.ClaimedSize)
	if err != nil {
		e.Log().Info("claimed file size not understood", zap.String("claimed_size", it.ClaimedSize))
		return c
	}
	switch {
	case it.HeaderContentSize > 0 && sizeMatches(it.ClaimedSize, claimed, uint64(it.HeaderContentSize)):
		c.SizeMatches = true
	case !it.Truncated && it.DownloadedSize > 0 && sizeMatches(it.ClaimedSize, claimed, uint64(it.DownloadedSize)):
		c.SizeMatches = true
	default:
		e.Log().Info("file size differs from metadata", zap.String("claimed_size", it.ClaimedSize),
			zap.Int64("header_size", it.HeaderContentSize), zap.Int64("downloaded_size", it.DownloadedSize), zap.Bool("truncated", it.Truncated))
	}
	return c
}

// sizeMatches compares exactly for plain byte counts, within tolerance for sizes with a unit
func sizeMatches(raw string, claimed, actual uint64) bool {
	if isDigits(strings.TrimSpace(raw)) {
		return claimed == actual
	}
	diff := math.Abs(float64(claimed) - float64(actual))
	return diff <= float64(claimed)*sizeTolerance
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
