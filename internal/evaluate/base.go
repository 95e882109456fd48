// Package evaluate runs the metric catalog against a harvest.
//
// Every catalog metric is served by an evaluator family registered under its
// agnostic identifier (FAIR-F1-02D, ...). A family names its internal checks and
// maps each onto agnostic test suffixes, so one implementation scores the tests of
// every catalog version that reuses the agnostic ids.
package evaluate

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/harvest"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

// Context is the read-only input shared by the evaluators of one run
type Context struct {
	State      *harvest.State
	Ref        *refdata.Provider
	Catalog    *catalog.Catalog
	Classifier *identifier.Classifier
	Logger     *zap.Logger
}

// TestMap maps an internal check name onto agnostic test suffixes ("1", "2a", ...)
type TestMap map[string][]string

// Evaluator scores one metric
type Evaluator interface {
	Evaluate() model.MetricResult
}

// Base carries the bookkeeping shared by all evaluator families
type Base struct {
	ctx    *Context
	metric *catalog.Metric
	tests  TestMap
	log    *zap.Logger

	passed map[string]bool // concrete test id -> passed
}

// NewBase prepares the bookkeeping of metric
func NewBase(ctx *Context, metric *catalog.Metric, tests TestMap) *Base {
	return &Base{
		ctx:    ctx,
		metric: metric,
		tests:  tests,
		log:    logging.ForMetric(ctx.Logger, metric.AgnosticIdentifier),
		passed: make(map[string]bool),
	}
}

// State returns the harvest being evaluated
func (b *Base) State() *harvest.State { return b.ctx.State }

// Props returns the merged metadata properties
func (b *Base) Props() model.Properties { return b.ctx.State.Merged.Properties }

// Ref returns the reference data
func (b *Base) Ref() *refdata.Provider { return b.ctx.Ref }

// Classify classifies an identifier found in the metadata
func (b *Base) Classify(s string) model.Identifier {
	if b.ctx.Classifier == nil {
		b.ctx.Classifier = identifier.NewClassifier(b.ctx.Ref)
	}
	return b.ctx.Classifier.Classify(s)
}

// Log returns the logger scoped to the metric
func (b *Base) Log() *zap.Logger { return b.log }

// catalogTests returns the catalog tests behind an internal check
func (b *Base) catalogTests(name string) []*catalog.Test {
	var out []*catalog.Test
	for _, suffix := range b.tests[name] {
		if t, ok := b.ctx.Catalog.Test(b.metric.AgnosticIdentifier + "-" + suffix); ok {
			out = append(out, t)
		}
	}
	return out
}

// IsTestDefined reports whether the catalog defines a test for the check
func (b *Base) IsTestDefined(name string) bool {
	return len(b.catalogTests(name)) > 0
}

// Requirements returns the structured requirements of the check
func (b *Base) Requirements(name string) []catalog.Requirement {
	var out []catalog.Requirement
	for _, t := range b.catalogTests(name) {
		out = append(out, t.Requirements...)
	}
	return out
}

// Pass marks every catalog test behind the check as passed
func (b *Base) Pass(name string) {
	tests := b.catalogTests(name)
	if len(tests) == 0 {
		b.log.Debug("test not defined in catalog", zap.String("test", name))
		return
	}
	for _, t := range tests {
		if !b.passed[t.Identifier] {
			b.passed[t.Identifier] = true
			b.log.Info("test passed", zap.String("test", t.Identifier))
		}
	}
}

// Passed reports whether the check passed
func (b *Base) Passed(name string) bool {
	for _, t := range b.catalogTests(name) {
		if b.passed[t.Identifier] {
			return true
		}
	}
	return false
}

// Result scores the metric. Earned is the sum of passing test weights capped at
// the metric total, maturity the highest contribution among passing tests.
func (b *Base) Result(output any) model.MetricResult {
	res := model.MetricResult{
		ID:                 b.metric.Number,
		MetricIdentifier:   b.metric.Identifier,
		MetricName:         b.metric.Name,
		AgnosticIdentifier: b.metric.AgnosticIdentifier,
		TestStatus:         model.StatusFail,
		Score:              model.Score{Total: b.metric.TotalScore},
		MetricTests:        make(map[string]model.TestResult, len(b.metric.Tests)),
		Output:             output,
	}

	for _, t := range b.metric.Tests {
		tr := model.TestResult{
			ID:     t.Identifier,
			Name:   t.Name,
			Score:  model.Score{Total: t.Score},
			Status: model.StatusFail,
		}
		if b.passed[t.Identifier] {
			tr.Status = model.StatusPass
			tr.Score.Earned = t.Score
			tr.Maturity = clampMaturity(t.Maturity)
			res.Score.Earned += t.Score
			if tr.Maturity > res.Maturity {
				res.Maturity = tr.Maturity
			}
			if t.Score > 0 {
				res.TestStatus = model.StatusPass
			}
		}
		res.MetricTests[t.Identifier] = tr
	}

	if res.Score.Earned > res.Score.Total {
		res.Score.Earned = res.Score.Total
	}
	return res
}

// warnInaccessible logs the partial-state warning for metrics that read metadata
func (b *Base) warnInaccessible() {
	s := b.ctx.State
	if s.LandingAccessible {
		return
	}
	if len(s.Fragments) == 0 {
		b.log.Warn("landing page inaccessible and no metadata found", zap.String("identifier", s.Input.Raw))
		return
	}
	b.log.Warn("landing page inaccessible, evaluating metadata from other sources", zap.Int("fragments", len(s.Fragments)))
}

func clampMaturity(m int) int {
	switch {
	case m < 0:
		return 0
	case m > 5:
		return 5
	default:
		return m
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
