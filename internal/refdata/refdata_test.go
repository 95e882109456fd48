package refdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

func TestDefaultLoads(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, p, again)

	assert.NotEmpty(t, p.Licenses)
	assert.NotEmpty(t, p.IdentifierPatterns)
	assert.Equal(t, model.SchemeDOI, p.IdentifierPatterns[0].Scheme)
	assert.Contains(t, p.Projections, "schemaorg")
	assert.Equal(t, "name || headline", p.Projection("schemaorg").Fields[model.KeyTitle])
}

func TestLicenseLookup(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"CC-BY-4.0", "CC-BY-4.0"},
		{"cc-by-4.0", "CC-BY-4.0"},
		{"https://creativecommons.org/licenses/by/4.0/", "CC-BY-4.0"},
		{"http://creativecommons.org/licenses/by/4.0/legalcode", "CC-BY-4.0"},
		{"https://spdx.org/licenses/MIT.html", "MIT"},
		{"https://spdx.org/licenses/Apache-2.0", "Apache-2.0"},
		{"https://opensource.org/licenses/Apache-2.0", "Apache-2.0"},
	}
	for _, tt := range tests {
		lic, ok := p.License(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, lic.ID, tt.in)
	}

	_, ok := p.License("All rights reserved")
	assert.False(t, ok)
	_, ok = p.License("")
	assert.False(t, ok)
}

func TestAccessLevel(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		in      string
		level   string
		pattern bool
	}{
		{"info:eu-repo/semantics/openAccess", "public", true},
		{"info:eu-repo/semantics/embargoedAccess", "embargoed", true},
		{"http://purl.org/coar/access_right/c_14cb", "metadataonly", true},
		{"http://publications.europa.eu/resource/authority/access-right/NON_PUBLIC", "closed", true},
		{"https://creativecommons.org/licenses/by/4.0/", "public", true},
		{"Open Access", "public", false},
		{"restricted", "restricted", false},
		{"metadata-only", "metadataonly", false},
	}
	for _, tt := range tests {
		level, viaPattern, ok := p.AccessLevel(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.level, level, tt.in)
		assert.Equal(t, tt.pattern, viaPattern, tt.in)
	}

	_, _, ok := p.AccessLevel("whatever")
	assert.False(t, ok)

	assert.True(t, p.IsAccessRightsURI("info:eu-repo/semantics/openAccess"))
	assert.False(t, p.IsAccessRightsURI("https://creativecommons.org/licenses/by/4.0/"))
}

func TestNamespaces(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.True(t, p.IsDefaultNamespace("http://www.w3.org/1999/02/22-rdf-syntax-ns#"))
	assert.True(t, p.IsDefaultNamespace("https://schema.org/"))
	assert.False(t, p.IsDefaultNamespace("http://www.w3.org/ns/dcat#"))

	v, ok := p.Vocabulary("http://www.w3.org/ns/dcat")
	require.True(t, ok)
	assert.Equal(t, "dcat", v.Prefix)

	assert.True(t, p.IsProvNamespace("http://www.w3.org/ns/prov#"))
	assert.False(t, p.IsProvNamespace("http://www.w3.org/ns/dcat#"))
}

func TestStandards(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	std := p.Standards("http://datacite.org/schema/kernel-4")
	require.Len(t, std, 1)
	assert.Equal(t, "datacite", std[0].ID)

	std = p.Standards("http://standards.iso.org/iso/19115/-3/mdb/2.0")
	require.Len(t, std, 1)
	assert.Equal(t, "iso-19115", std[0].ID)

	assert.Empty(t, p.Standards("http://example.org/ns#"))
}

func TestMatchNamespace(t *testing.T) {
	assert.True(t, MatchNamespace("http://purl.org/dc/terms/", "https://purl.org/dc/terms"))
	assert.True(t, MatchNamespace("http://datacite.org/schema/kernel-*", "http://datacite.org/schema/kernel-4.3"))
	assert.False(t, MatchNamespace("http://datacite.org/schema/kernel-*", "http://datacite.org/other"))
	assert.False(t, MatchNamespace("http://purl.org/dc/terms/", "http://purl.org/dc/elements/1.1/"))
}

func TestFormatsAndProtocols(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"long-term", "open"}, p.FormatCategories("text/csv"))
	assert.Equal(t, []string{"long-term", "open", "scientific"}, p.FormatCategories("application/x-netcdf"))
	assert.Empty(t, p.FormatCategories("application/msword"))
	assert.True(t, p.IsArchive("application/zip"))
	assert.False(t, p.IsArchive("text/csv"))

	name, ok := p.Protocol("HTTPS")
	assert.True(t, ok)
	assert.NotEmpty(t, name)
	_, ok = p.Protocol("gopher")
	assert.False(t, ok)
}

func TestRepositoryID(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "r3d100010468", p.RepositoryID("10.5281/zenodo.8347772", ""))
	assert.Equal(t, "r3d100010468", p.RepositoryID("", "cern.zenodo"))
	assert.Equal(t, "", p.RepositoryID("10.9999/x", ""))
}

func TestTypes(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.True(t, p.IsSchemaOrgType("Dataset"))
	assert.True(t, p.IsSchemaOrgType("http://schema.org/Dataset"))
	assert.False(t, p.IsSchemaOrgType("Person"))
	assert.True(t, p.IsResourceType("Dataset"))
	assert.True(t, p.IsResourceType("Journal Article"))
}

func TestDirOverlay(t *testing.T) {
	dir := t.TempDir()
	doc := `{"licenses":[{"licenseId":"X-1","name":"Example License","reference":"https://example.org/x","isOsiApproved":true}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileLicenses), []byte(doc), 0o644))

	p, err := Load(Options{Dir: dir})
	require.NoError(t, err)
	require.Len(t, p.Licenses, 1)

	lic, ok := p.License("https://example.org/x/")
	require.True(t, ok)
	assert.Equal(t, "X-1", lic.ID)
	assert.True(t, lic.OSIApproved)
}

func TestBrokenOverlayIsConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileAccessRights), []byte("patterns: [\n"), 0o644))

	_, err := Load(Options{Dir: dir})
	require.Error(t, err)
	assert.True(t, apperr.IsConfig(err))
}

func TestRefreshStoresLicenses(t *testing.T) {
	doc := `{"licenses":[{"licenseId":"Fresh-1.0","name":"Fresh","reference":"https://example.org/fresh"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte(`{"licenses":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	store := cache.NewMemoryCache(time.Hour, time.Hour)
	n := fetch.New(model.DefaultConfig().HTTP)

	results := Refresh(context.Background(), n, store, []Source{
		{Name: FileLicenses, URL: srv.URL + "/licenses.json", Validate: validateLicenses},
		{Name: "other.json", URL: srv.URL + "/bad", Validate: validateLicenses},
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, len(doc), results[0].Bytes)
	assert.Error(t, results[1].Err)

	p, err := Load(Options{Store: store})
	require.NoError(t, err)
	_, ok := p.License("Fresh-1.0")
	assert.True(t, ok)
}
