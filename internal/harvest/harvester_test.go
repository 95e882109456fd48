package harvest

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/extract"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

const originalHost = "X-Original-Host"

// world serves several fake hosts from one test server
type world struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{t: t, routes: make(map[string]http.HandlerFunc), hits: make(map[string]int)}
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(originalHost) + r.URL.Path
		w.mu.Lock()
		h, ok := w.routes[key]
		w.hits[key]++
		w.mu.Unlock()
		if !ok {
			http.NotFound(rw, r)
			return
		}
		h(rw, r)
	}))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *world) handle(hostPath string, h http.HandlerFunc) {
	w.routes[hostPath] = h
}

func (w *world) serve(hostPath, contentType string, body []byte, links ...string) {
	w.handle(hostPath, func(rw http.ResponseWriter, _ *http.Request) {
		for _, l := range links {
			rw.Header().Add("Link", l)
		}
		rw.Header().Set("Content-Type", contentType)
		_, _ = rw.Write(body)
	})
}

func (w *world) redirect(hostPath, target string) {
	w.handle(hostPath, func(rw http.ResponseWriter, r *http.Request) {
		http.Redirect(rw, r, target, http.StatusFound)
	})
}

func (w *world) hitCount(hostPath string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hits[hostPath]
}

// RoundTrip sends every request to the test server, keeping the original URL
// on the response so that redirects and final URLs use the fake hosts
func (w *world) RoundTrip(req *http.Request) (*http.Response, error) {
	target, _ := url.Parse(w.srv.URL)
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	out.Host = ""
	out.Header.Set(originalHost, req.URL.Host)
	resp, err := http.DefaultTransport.RoundTrip(out)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

func (w *world) harvester(logger *zap.Logger) *Harvester {
	w.t.Helper()
	ref, err := refdata.Default()
	require.NoError(w.t, err)

	cfg := model.DefaultConfig()
	cfg.HTTP.MaxRetries = 0
	cfg.HTTP.Timeout = 5 * time.Second
	n := fetch.New(cfg.HTTP, fetch.WithTransport(w), fetch.WithLogger(logger))
	return New(n, ref, nil, *cfg, logger)
}

func (w *world) classify(input string) model.Identifier {
	w.t.Helper()
	ref, err := refdata.Default()
	require.NoError(w.t, err)
	return identifier.NewClassifier(ref).Classify(input)
}

func testdata(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func defaultOptions() Options {
	return Options{UseDataCite: true, VerifyPIDs: true}
}

type taggedMethod struct {
	Tag    string
	Method model.OfferingMethod
}

func fragmentTrail(s *State) []taggedMethod {
	out := make([]taggedMethod, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		out = append(out, taggedMethod{f.Tag, f.Method})
	}
	return out
}

// repository sets up a DOI resolving to a repository landing page with
// signposting, a linkset, content negotiation and DataCite JSON
func repository(t *testing.T) *world {
	w := newWorld(t)
	w.handle("doi.org/10.1234/abc", func(rw http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/vnd.datacite.datacite+json") {
			rw.Header().Set("Content-Type", "application/vnd.datacite.datacite+json")
			_, _ = rw.Write(testdata(t, "datacite.json"))
			return
		}
		http.Redirect(rw, r, "https://repo.example.org/record/1", http.StatusFound)
	})
	w.handle("repo.example.org/record/1", func(rw http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Accept"), "text/turtle") {
			rw.Header().Set("Content-Type", "text/turtle")
			_, _ = rw.Write(testdata(t, "dataset.ttl"))
			return
		}
		rw.Header().Add("Link", `<https://repo.example.org/meta/1.ttl>; rel="describedby"; type="text/turtle"`)
		rw.Header().Add("Link", `<https://doi.org/10.1234/abc>; rel="cite-as"`)
		rw.Header().Add("Link", `<https://repo.example.org/linkset/1>; rel="linkset"; type="application/linkset+json"`)
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write(testdata(t, "landing.html"))
	})
	w.serve("repo.example.org/meta/1.ttl", "text/turtle", testdata(t, "dataset.ttl"))
	w.serve("repo.example.org/meta/1.xml", "application/xml", testdata(t, "record.xml"))
	w.serve("repo.example.org/linkset/1", "application/linkset+json", testdata(t, "linkset.json"))
	w.serve("repo.example.org/files/temps.csv", "text/csv", []byte("year,temp\n2010,15.1\n2011,15.3\n"))
	w.serve("repo.example.org/files/temps.zip", "application/zip", zipArchive(t, map[string]string{"readme.txt": "sea surface temperatures\n"}))
	return w
}

func TestHarvestRepositoryRecord(t *testing.T) {
	w := repository(t)
	logger, sink := logging.New(logging.Options{})
	h := w.harvester(logger)

	s := h.Harvest(context.Background(), w.classify("10.1234/abc"), defaultOptions())

	assert.True(t, s.LandingAccessible)
	assert.Equal(t, "https://repo.example.org/record/1", s.LandingURL)
	assert.Equal(t, "https://doi.org/10.1234/abc", s.OriginURL)

	assert.Equal(t, []taggedMethod{
		{extract.TagSchemaOrg, model.MethodEmbedded},
		{extract.TagDublinCore, model.MethodEmbedded},
		{extract.TagRDF, model.MethodContentNegotiation},
		{extract.TagDataCite, model.MethodRegistryLookup},
		{extract.TagRDF, model.MethodSignposting},
		{extract.TagXML, model.MethodSignposting},
	}, fragmentTrail(s))

	props := s.Merged.Properties
	assert.Equal(t, "Ocean temperatures", props.String(model.KeyTitle))
	assert.Equal(t, []string{extract.TagSchemaOrg}, s.Merged.SourcesOf(model.KeyTitle))
	assert.Equal(t, "en", props.String(model.KeyLanguage))
	assert.Equal(t, "2021-06-01", props.String(model.KeyDateAvailable))
	assert.Contains(t, props.Strings(model.KeyLicense), "https://creativecommons.org/licenses/by/4.0/")

	rec, ok := s.PIDs.Get("https://doi.org/10.1234/abc")
	require.True(t, ok)
	assert.Equal(t, model.SchemeDOI, rec.Scheme)
	assert.True(t, rec.Resolvable)
	assert.True(t, rec.Verified)
	assert.Equal(t, SourceInput, rec.Source)
	assert.Equal(t, []int{302, 200}, rec.StatusChain)
	assert.False(t, s.RepeatPIDCheck)

	assert.Contains(t, s.Namespaces, "http://www.w3.org/ns/dcat#")
	assert.Contains(t, s.Namespaces, "http://datacite.org/schema/kernel-4")

	assert.NotEmpty(t, fetch.FilterRel(s.Links, "cite-as"))
	assert.NotEmpty(t, fetch.FilterRel(s.Links, "item"))

	items := s.ContentItems()
	require.Len(t, items, 3)
	byURL := map[string]model.ContentItem{}
	for _, it := range items {
		byURL[it.URL] = it
	}
	csv := byURL["https://repo.example.org/files/temps.csv"]
	assert.True(t, csv.Sampled)
	assert.True(t, csv.Verified)
	assert.Equal(t, "text/csv", csv.HeaderContentType)
	assert.NotEmpty(t, csv.SniffedTypes)
	assert.Equal(t, model.SchemeURL, csv.Scheme)

	assert.False(t, byURL["https://repo.example.org/files/temps-full.csv"].Sampled)

	archive := byURL["https://repo.example.org/files/temps.zip"]
	assert.True(t, archive.Sampled)
	assert.Contains(t, archive.SniffedTypes, "application/zip")
	assert.Contains(t, archive.SniffedTypes, "text/plain")
	assert.Equal(t, 0, w.hitCount("repo.example.org/files/temps-full.csv"))

	assert.NotEmpty(t, sink.Lines(MetricCore))
	assert.Empty(t, s.Errors)
}

func TestHarvestIsDeterministic(t *testing.T) {
	w := repository(t)
	h := w.harvester(nil)
	id := w.classify("10.1234/abc")

	first := h.Harvest(context.Background(), id, defaultOptions())
	second := h.Harvest(context.Background(), id, defaultOptions())
	assert.Equal(t, fragmentTrail(first), fragmentTrail(second))
	assert.Equal(t, first.Merged, second.Merged)
	assert.Equal(t, first.Namespaces, second.Namespaces)
}

func TestHarvestWithoutDataCite(t *testing.T) {
	w := repository(t)
	s := w.harvester(nil).Harvest(context.Background(), w.classify("10.1234/abc"), Options{VerifyPIDs: true})
	assert.False(t, s.HasFragment(extract.TagDataCite))
	assert.True(t, s.HasFragment(string(model.MethodSignposting)))
}

func TestHarvestDiscoversPID(t *testing.T) {
	w := newWorld(t)
	page := `<html><head><script type="application/ld+json">
	{"@context": "https://schema.org", "@type": "Dataset", "name": "Sediment cores",
	 "identifier": "https://doi.org/10.5555/xyz", "creator": "Grace Hopper"}
	</script></head><body></body></html>`
	w.serve("example.org/dataset/1", "text/html", []byte(page),
		`<https://example.org/ore/1>; rel="resourcemap"; type="application/atom+xml"`)
	w.redirect("doi.org/10.5555/xyz", "https://example.org/dataset/1")
	w.serve("example.org/ore/1", "application/atom+xml", testdata(t, "resourcemap.xml"))

	logger, sink := logging.New(logging.Options{})
	s := w.harvester(logger).Harvest(context.Background(), w.classify("https://example.org/dataset/1"), defaultOptions())

	require.True(t, s.RepeatPIDCheck)
	require.NotNil(t, s.DiscoveredPID)
	assert.Equal(t, "10.5555/xyz", s.DiscoveredPID.PID)
	assert.True(t, s.DiscoveredPID.Verified)

	rec, ok := s.PIDs.Get("https://doi.org/10.5555/xyz")
	require.True(t, ok)
	assert.Equal(t, SourceMetadata, rec.Source)
	assert.Len(t, s.PIDs.Verified(), 1)

	input, ok := s.PIDs.Get("https://example.org/dataset/1")
	require.True(t, ok)
	assert.Equal(t, model.SchemeURL, input.Scheme)
	assert.False(t, input.IsPersistent)
	assert.True(t, input.Resolvable)
	assert.False(t, input.Verified)

	assert.Contains(t, fragmentTrail(s), taggedMethod{extract.TagOREAtom, model.MethodTypedLink})
	assert.Contains(t, strings.Join(sink.Lines(MetricPersistentID), "\n"), "persistent identifier found in metadata")
}

func TestHarvestInaccessibleLanding(t *testing.T) {
	w := newWorld(t)
	w.redirect("doi.org/10.1234/gone", "https://repo.example.org/record/gone")

	logger, sink := logging.New(logging.Options{})
	s := w.harvester(logger).Harvest(context.Background(), w.classify("10.1234/gone"), defaultOptions())

	assert.False(t, s.LandingAccessible)
	assert.Empty(t, s.LandingURL)
	assert.Empty(t, s.Fragments)
	assert.NotEmpty(t, s.Errors)

	rec, ok := s.PIDs.Get("https://doi.org/10.1234/gone")
	require.True(t, ok)
	assert.False(t, rec.Resolvable)
	assert.False(t, rec.Verified)
	assert.Equal(t, []int{302, 404}, rec.StatusChain)

	lines := sink.Lines(MetricPersistentID)
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "WARNING: landing page inaccessible"))
}

func TestHarvestRegisteredURLMismatch(t *testing.T) {
	w := newWorld(t)
	w.handle("doi.org/10.1234/abc", func(rw http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/vnd.datacite.datacite+json") {
			rw.Header().Set("Content-Type", "application/vnd.datacite.datacite+json")
			_, _ = rw.Write(testdata(t, "datacite.json"))
			return
		}
		http.Redirect(rw, r, "https://mirror.example.net/copy/1", http.StatusFound)
	})
	w.serve("mirror.example.net/copy/1", "text/html", []byte("<html><head><title>copy</title></head></html>"))

	logger, sink := logging.New(logging.Options{})
	s := w.harvester(logger).Harvest(context.Background(), w.classify("10.1234/abc"), defaultOptions())

	rec, ok := s.PIDs.Get("https://doi.org/10.1234/abc")
	require.True(t, ok)
	assert.True(t, rec.Resolvable)
	assert.False(t, rec.Verified)
	assert.Contains(t, strings.Join(sink.Lines(MetricPersistentID), "\n"), "resolved landing page differs from registered URL")
}

func TestHarvestGitHub(t *testing.T) {
	w := newWorld(t)
	w.serve("github.com/octo/fair-tool", "text/html", []byte("<html><head><title>octo/fair-tool</title></head></html>"))
	w.serve("api.github.com/repos/octo/fair-tool", "application/json", testdata(t, "github.json"))

	h := w.harvester(nil)
	id := w.classify("https://github.com/octo/fair-tool")

	s := h.Harvest(context.Background(), id, Options{UseGitHub: true})
	require.Contains(t, fragmentTrail(s), taggedMethod{extract.TagGitHub, model.MethodRegistryLookup})
	assert.Equal(t, []string{"MIT"}, s.Merged.Properties.Strings(model.KeyLicense))

	s = h.Harvest(context.Background(), id, Options{})
	assert.False(t, s.HasFragment(extract.TagGitHub))
}

func TestHarvestNotResolvable(t *testing.T) {
	w := newWorld(t)
	logger, sink := logging.New(logging.Options{})
	s := w.harvester(logger).Harvest(context.Background(), w.classify("urn:uuid:1b4e28ba-2fa1-11d2-883f-0016d3cca427"), defaultOptions())

	assert.False(t, s.LandingAccessible)
	assert.Empty(t, s.Fragments)
	assert.NotEmpty(t, sink.Lines(MetricPersistentID))
}

func TestHarvestCancelled(t *testing.T) {
	w := repository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := w.harvester(nil).Harvest(ctx, w.classify("10.1234/abc"), defaultOptions())
	require.NotNil(t, s)
	assert.Empty(t, s.Fragments)
	assert.NotNil(t, s.Merged.Properties)
	assert.Equal(t, 0, w.hitCount("doi.org/10.1234/abc"))
}

func TestIsMetadataType(t *testing.T) {
	tests := map[string]bool{
		"":                     true,
		"application/ld+json":  true,
		"text/turtle":          true,
		"application/xml":      true,
		"application/csl+json": true,
		"text/html":            false,
		"text/plain":           false,
		"image/png":            false,
	}
	for typ, want := range tests {
		assert.Equal(t, want, isMetadataType(typ), typ)
	}
}

func TestHarvestAuthenticatedLanding(t *testing.T) {
	w := newWorld(t)
	var leaked bool
	w.handle("doi.org/10.1234/private", func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			leaked = true
		}
		http.Redirect(rw, r, "https://repo.example.org/private/1", http.StatusFound)
	})
	w.handle("repo.example.org/private/1", func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(rw, "login required", http.StatusUnauthorized)
			return
		}
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write(testdata(t, "landing.html"))
	})

	opts := defaultOptions()
	opts.Auth = &model.Auth{Token: "secret", Scheme: "Bearer"}
	s := w.harvester(nil).Harvest(context.Background(), w.classify("10.1234/private"), opts)

	assert.True(t, s.LandingAccessible)
	assert.Equal(t, "https://repo.example.org/private/1", s.LandingURL)
	assert.True(t, s.HasFragment(extract.TagSchemaOrg))
	assert.False(t, leaked, "credentials are only sent to the landing host")

	rec, ok := s.PIDs.Get("https://doi.org/10.1234/private")
	require.True(t, ok)
	assert.True(t, rec.Resolvable)

	s = w.harvester(nil).Harvest(context.Background(), w.classify("10.1234/private"), defaultOptions())
	assert.False(t, s.LandingAccessible)
}
