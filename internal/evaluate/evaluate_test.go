package evaluate

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/harvest"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

type fixture struct {
	t      *testing.T
	ref    *refdata.Provider
	cat    *catalog.Catalog
	runner *Runner
}

func newFixture(t *testing.T, version string) *fixture {
	t.Helper()
	ref, err := refdata.Default()
	require.NoError(t, err)
	cat, err := catalog.LoadEmbedded(version)
	require.NoError(t, err)
	runner, err := NewRunner(DefaultRegistry(), cat, ref)
	require.NoError(t, err)
	return &fixture{t: t, ref: ref, cat: cat, runner: runner}
}

// state builds an accessible harvest of input from fragments
func (f *fixture) state(input string, fragments ...model.MetadataFragment) *harvest.State {
	s := harvest.NewState(identifier.NewClassifier(f.ref).Classify(input))
	s.LandingURL = "https://repo.example.org/record/1"
	s.LandingAccessible = true
	s.Fragments = fragments
	s.Merged = harvest.Merge(fragments)
	s.Namespaces = harvest.Namespaces(fragments, nil)
	return s
}

// run evaluates s and returns the results keyed by agnostic metric id
func (f *fixture) run(s *harvest.State) map[string]model.MetricResult {
	logger, sink := logging.New(logging.Options{})
	results := f.runner.Run(s, logger, sink)
	require.Len(f.t, results, f.cat.TotalMetrics())
	out := make(map[string]model.MetricResult, len(results))
	for _, r := range results {
		out[r.AgnosticIdentifier] = r
	}
	return out
}

func embedded(tag string, props model.Properties, namespaces ...string) model.MetadataFragment {
	return model.MetadataFragment{Tag: tag, Method: model.MethodEmbedded, Format: "html", Namespaces: namespaces, Properties: props}
}

func passedTests(r model.MetricResult) []string {
	var out []string
	for id, tr := range r.MetricTests {
		if tr.Status == model.StatusPass {
			out = append(out, id)
		}
	}
	return sortedKeys(toSet(out))
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func hasLine(r model.MetricResult, prefix, fragment string) bool {
	for _, l := range r.TestDebug {
		if strings.HasPrefix(l, prefix) && strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

func TestDefaultRegistryCoversEmbeddedCatalogs(t *testing.T) {
	for _, v := range catalog.Versions() {
		cat, err := catalog.LoadEmbedded(v)
		require.NoError(t, err, v)
		assert.NoError(t, DefaultRegistry().Verify(cat), v)
	}
}

func TestVerifyReportsUnregisteredMetrics(t *testing.T) {
	cat, err := catalog.LoadEmbedded("0.5")
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register("FAIR-F1-01D", Family{Name: "unique identifier", Tests: uniqueIDTests, New: newUniqueID})
	err = reg.Verify(cat)
	require.Error(t, err)
	assert.True(t, apperr.IsConfig(err))
	assert.Contains(t, err.Error(), "FsF-F1-02D (FAIR-F1-02D)")
	assert.NotContains(t, err.Error(), "FsF-F1-01D")

	ref, err := refdata.Default()
	require.NoError(t, err)
	_, err = NewRunner(reg, cat, ref)
	assert.True(t, apperr.IsConfig(err))
}

func TestEmptyStateProducesFailingResults(t *testing.T) {
	f := newFixture(t, "0.5")
	s := harvest.NewState(model.Identifier{Raw: "not an identifier", Scheme: model.SchemeUnknown})

	logger, sink := logging.New(logging.Options{})
	results := f.runner.Run(s, logger, sink)
	require.Len(t, results, f.cat.TotalMetrics())
	for i, r := range results {
		assert.Equal(t, f.cat.Metrics[i].Identifier, r.MetricIdentifier)
		assert.Equal(t, model.StatusFail, r.TestStatus, r.MetricIdentifier)
		assert.Zero(t, r.Score.Earned, r.MetricIdentifier)
		assert.Equal(t, f.cat.Metrics[i].TotalScore, r.Score.Total)
		assert.Zero(t, r.Maturity, r.MetricIdentifier)
		assert.Len(t, r.MetricTests, len(f.cat.Metrics[i].Tests))
	}
}

func TestBaseResultScoring(t *testing.T) {
	cat, err := catalog.Parse("metrics_v9.9.yaml", []byte(`
metric_specification: https://example.org/spec
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: Unique identifier
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1
        metric_test_score: 1
        metric_test_maturity: 3
      - metric_test_identifier: FsF-F1-01D-2
        metric_test_score: 1
        metric_test_maturity: 1
  - metric_identifier: FsF-F1-02D
    metric_name: Persistent identifier
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-02D-1
        metric_test_score: 0
        metric_test_maturity: 2
`))
	require.NoError(t, err)
	ctx := &Context{State: harvest.NewState(model.Identifier{}), Catalog: cat}

	b := NewBase(ctx, &cat.Metrics[0], uniqueIDTests)
	assert.True(t, b.IsTestDefined("syntax"))
	assert.False(t, b.IsTestDefined("nope"))
	b.Pass("syntax")
	b.Pass("hash")
	b.Pass("nope")
	res := b.Result(nil)
	assert.Equal(t, model.StatusPass, res.TestStatus)
	assert.Equal(t, 1.0, res.Score.Earned, "earned is capped at the total")
	assert.Equal(t, 3, res.Maturity)
	assert.Equal(t, 1, res.MetricTests["FsF-F1-01D-2"].Maturity)

	zero := NewBase(ctx, &cat.Metrics[1], persistentIDTests)
	zero.Pass("scheme")
	res = zero.Result(nil)
	assert.Equal(t, model.StatusFail, res.TestStatus, "zero weight tests do not pass a metric")
	assert.Equal(t, model.StatusPass, res.MetricTests["FsF-F1-02D-1"].Status)
	assert.Equal(t, 2, res.Maturity)
}

func TestRunnerScoringInvariants(t *testing.T) {
	f := newFixture(t, "0.5")
	s := f.state("10.1234/abc", embedded("schemaorg", model.Properties{
		model.KeyTitle:   "Ocean temperatures",
		model.KeyCreator: []string{"Doe, Jane"},
		model.KeyLicense: "https://creativecommons.org/licenses/by/4.0/",
	}, "http://schema.org/"))

	for _, r := range f.run(s) {
		assert.GreaterOrEqual(t, r.Score.Earned, 0.0, r.MetricIdentifier)
		assert.LessOrEqual(t, r.Score.Earned, r.Score.Total, r.MetricIdentifier)
		assert.True(t, r.Maturity >= 0 && r.Maturity <= 5, r.MetricIdentifier)

		positive := false
		for _, tr := range r.MetricTests {
			if tr.Status == model.StatusPass && tr.Score.Total > 0 {
				positive = true
			}
		}
		assert.Equal(t, positive, r.Passed(), r.MetricIdentifier)
	}
}

func TestRunnerAttachesDebugLinesAndCounts(t *testing.T) {
	f := newFixture(t, "0.5")
	counter := metrics.EvaluationsTotal.WithLabelValues("FAIR-R1.1-01M", "pass")
	before := testutil.ToFloat64(counter)

	s := f.state("https://repo.example.org/record/1", embedded("dublincore", model.Properties{
		model.KeyLicense: "CC-BY-4.0",
	}))
	res := f.run(s)["FAIR-R1.1-01M"]

	assert.True(t, res.Passed())
	assert.True(t, hasLine(res, "INFO: ", "recognized SPDX license"))
	for _, l := range res.TestDebug {
		assert.NotContains(t, l, "metric=", "lines are scoped, not tagged")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSoftwareCatalogUsesAgnosticTests(t *testing.T) {
	f := newFixture(t, "0.5_software")
	s := f.state("https://github.com/example/tool", model.MetadataFragment{
		Tag:    "github",
		Method: model.MethodRegistryLookup,
		Format: "json",
		Properties: model.Properties{
			model.KeyTitle:          "example/tool",
			model.KeyLicense:        "MIT",
			model.KeyCodeRepository: "https://github.com/example/tool.git",
			model.KeyCreator:        []string{"example"},
			model.KeyCreatedDate:    "2020-01-01",
		},
	})
	res := f.run(s)

	lic := res["FAIR-R1.1-01M"]
	assert.Equal(t, "FRSM-15-R1.1", lic.MetricIdentifier)
	assert.Equal(t, []string{"FRSM-15-R1.1-1", "FRSM-15-R1.1-2"}, passedTests(lic))

	prov := res["FAIR-R1.2-02M"]
	assert.Equal(t, []string{"FRSM-16-R1.2-1", "FRSM-16-R1.2-2"}, passedTests(prov))

	search := res["FAIR-F4-01M"]
	assert.Equal(t, []string{"FRSM-08-F4-3"}, passedTests(search))
}
