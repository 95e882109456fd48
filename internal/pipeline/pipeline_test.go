package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
	"github.com/ppiankov/fairmeter/internal/score"
)

const landingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Ocean temperatures</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Dataset",
  "@id": "https://doi.org/10.1234/abc",
  "identifier": "https://doi.org/10.1234/abc",
  "name": "Ocean temperatures",
  "description": "Monthly sea surface temperatures of the North Atlantic.",
  "creator": {"@type": "Person", "name": "Jane Doe"},
  "datePublished": "2021-06-01",
  "publisher": {"@type": "Organization", "name": "Example Repository"},
  "keywords": ["ocean", "temperature"],
  "license": "https://creativecommons.org/licenses/by/4.0/",
  "distribution": {"@type": "DataDownload", "contentUrl": "https://repo.example.org/files/temps.csv", "encodingFormat": "text/csv"}
}
</script>
</head>
<body><h1>Ocean temperatures</h1></body>
</html>`

// fakeNet routes every request to one test server, keyed by the original host
type fakeNet struct {
	srv *httptest.Server
}

func newFakeNet(t *testing.T) *fakeNet {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Original-Host") + r.URL.Path {
		case "doi.org/10.1234/abc":
			http.Redirect(rw, r, "https://repo.example.org/record/1", http.StatusFound)
		case "repo.example.org/record/1":
			rw.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = rw.Write([]byte(landingPage))
		case "repo.example.org/files/temps.csv":
			rw.Header().Set("Content-Type", "text/csv")
			_, _ = rw.Write([]byte("year,temp\n2010,15.1\n2011,15.3\n"))
		default:
			http.NotFound(rw, r)
		}
	})
	n := &fakeNet{srv: httptest.NewServer(mux)}
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNet) RoundTrip(req *http.Request) (*http.Response, error) {
	target, _ := url.Parse(n.srv.URL)
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	out.Host = ""
	out.Header.Set("X-Original-Host", req.URL.Host)
	resp, err := http.DefaultTransport.RoundTrip(out)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.HTTP.MaxRetries = 0
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Cache.Enabled = false
	cfg.Cache.Dir = ""
	return cfg
}

func newTestAssessor(t *testing.T, opts ...Option) *Assessor {
	t.Helper()
	ref, err := refdata.Default()
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	base := []Option{
		WithTransport(newFakeNet(t)),
		WithRefData(ref),
		WithCache(cache.Nop{}),
		WithClock(func() time.Time { return clock }),
	}
	a, err := NewAssessor(testConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return a
}

func request(id string) model.RunRequest {
	return model.RunRequest{ObjectIdentifier: id, VerifyPIDs: true}
}

func TestAssess(t *testing.T) {
	a := newTestAssessor(t)
	before := testutil.ToFloat64(metrics.AssessmentsTotal.WithLabelValues("ok"))

	report, err := a.Assess(context.Background(), request("  10.1234/abc "))
	require.NoError(t, err)

	cat := a.Catalog()
	assert.Equal(t, "10.1234/abc", report.Request.ObjectIdentifier)
	assert.Equal(t, RunID("10.1234/abc"), report.TestID)
	assert.Equal(t, model.SoftwareVersion, report.SoftwareVersion)
	assert.Equal(t, cat.Version, report.MetricVersion)
	assert.Equal(t, cat.TotalMetrics(), report.TotalMetrics)
	assert.Len(t, report.Results, cat.TotalMetrics())
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), report.Timestamp)
	assert.Nil(t, report.Harvest, "harvest details are only reported in debug mode")

	sum := report.Summary
	assert.Equal(t, cat.TotalScore(), sum.ScoreTotal[score.Overall])
	assert.Equal(t, len(report.Results), sum.StatusTotal[score.Overall])
	assert.Greater(t, sum.ScoreEarned[score.Overall], 0.0)
	for _, p := range score.Principles {
		assert.Contains(t, sum.ScoreTotal, p)
	}

	first := report.Results[0]
	assert.Equal(t, "FsF-F1-01D", first.MetricIdentifier)
	assert.True(t, first.Passed())

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AssessmentsTotal.WithLabelValues("ok")))
}

func TestAssessIsDeterministic(t *testing.T) {
	a := newTestAssessor(t)
	r1, err := a.Assess(context.Background(), request("10.1234/abc"))
	require.NoError(t, err)
	r2, err := a.Assess(context.Background(), request("10.1234/abc"))
	require.NoError(t, err)

	assert.Equal(t, r1.TestID, r2.TestID)
	assert.Equal(t, r1.Summary, r2.Summary)
	require.Len(t, r2.Results, len(r1.Results))
	for i := range r1.Results {
		assert.Equal(t, r1.Results[i].MetricIdentifier, r2.Results[i].MetricIdentifier)
		assert.Equal(t, r1.Results[i].Score, r2.Results[i].Score)
		assert.Equal(t, r1.Results[i].TestDebug, r2.Results[i].TestDebug)
	}
}

func TestAssessDebugIncludesHarvest(t *testing.T) {
	a := newTestAssessor(t)
	req := request("10.1234/abc")
	req.Debug = true

	report, err := a.Assess(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, report.Harvest)
	assert.True(t, report.Harvest.LandingAccessible)
	assert.Equal(t, "https://repo.example.org/record/1", report.Harvest.LandingURL)
}

func TestAssessInputErrors(t *testing.T) {
	a := newTestAssessor(t)
	before := testutil.ToFloat64(metrics.AssessmentsTotal.WithLabelValues("input_error"))

	_, err := a.Assess(context.Background(), request("   "))
	assert.True(t, apperr.IsInput(err))

	_, err = a.Assess(context.Background(), request("not an identifier"))
	assert.True(t, apperr.IsInput(err))

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.AssessmentsTotal.WithLabelValues("input_error")))
}

func TestAssessMetricVersion(t *testing.T) {
	a := newTestAssessor(t)

	req := request("10.1234/abc")
	req.MetricVersion = "9.9"
	_, err := a.Assess(context.Background(), req)
	assert.True(t, apperr.IsConfig(err))

	req.MetricVersion = "0.5_software"
	report, err := a.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0.5_software", report.MetricVersion)
	assert.Len(t, report.Results, report.TotalMetrics)
}

func TestNewAssessorUnknownCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog.Version = "0.1"
	_, err := NewAssessor(cfg, WithTransport(newFakeNet(t)))
	assert.True(t, apperr.IsConfig(err))
}

func TestRunID(t *testing.T) {
	assert.Equal(t, RunID("10.1234/abc"), RunID(" 10.1234/abc\n"))
	assert.NotEqual(t, RunID("10.1234/abc"), RunID("10.1234/abd"))
	assert.Len(t, RunID("x"), 36)
}

func TestResponseCache(t *testing.T) {
	assert.IsType(t, cache.Nop{}, ResponseCache(model.CacheConfig{}))
	assert.IsType(t, &cache.MemoryCache{}, ResponseCache(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}))
}

func TestRenderer(t *testing.T) {
	a := newTestAssessor(t)
	report, err := a.Assess(context.Background(), request("10.1234/abc"))
	require.NoError(t, err)

	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.RenderSummary(report)
	out := buf.String()
	assert.Contains(t, out, "10.1234/abc")
	assert.Contains(t, out, "FAIR")
	assert.Contains(t, out, "FsF-F1-01D")

	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, r.RenderJSON(report, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.TestID, decoded["test_id"])
	assert.Len(t, decoded["results"], len(report.Results))
}
