package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	ref, err := refdata.Default()
	require.NoError(t, err)
	return NewClassifier(ref)
}

func TestClassify(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		in         string
		scheme     model.Scheme
		normalized string
		persistent bool
		resolver   string
	}{
		{"10.5281/zenodo.8347772", model.SchemeDOI, "10.5281/zenodo.8347772", true, "https://doi.org/10.5281/zenodo.8347772"},
		{" https://doi.org/10.1594/PANGAEA.123 ", model.SchemeDOI, "10.1594/pangaea.123", true, "https://doi.org/10.1594/pangaea.123"},
		{"doi:10.1000/XYZ", model.SchemeDOI, "10.1000/xyz", true, "https://doi.org/10.1000/xyz"},
		{"hdl:11234/1-3105", model.SchemeHandle, "11234/1-3105", true, "https://hdl.handle.net/11234/1-3105"},
		{"https://hdl.handle.net/20.500.12345/abc", model.SchemeHandle, "20.500.12345/abc", true, "https://hdl.handle.net/20.500.12345/abc"},
		{"ark:13030/tf5p30086k", model.SchemeARK, "ark:/13030/tf5p30086k", true, "https://n2t.net/ark:/13030/tf5p30086k"},
		{"https://n2t.net/ark:/13030/tf5p30086k", model.SchemeARK, "ark:/13030/tf5p30086k", true, "https://n2t.net/ark:/13030/tf5p30086k"},
		{"urn:nbn:de:0000-12345", model.SchemeURN, "urn:nbn:de:0000-12345", true, "https://nbn-resolving.org/urn:nbn:de:0000-12345"},
		{"https://nbn-resolving.org/urn:nbn:de:0000-12345", model.SchemeURN, "urn:nbn:de:0000-12345", true, "https://nbn-resolving.org/urn:nbn:de:0000-12345"},
		{"https://w3id.org/example/dataset/1", model.SchemeW3ID, "https://w3id.org/example/dataset/1", true, "https://w3id.org/example/dataset/1"},
		{"https://identifiers.org/taxonomy:9606", model.SchemeIdentifiersOrg, "https://identifiers.org/taxonomy:9606", true, "https://identifiers.org/taxonomy:9606"},
		{"http://purl.org/example/x", model.SchemePURL, "http://purl.org/example/x", true, "http://purl.org/example/x"},
		{"https://orcid.org/0000-0002-1825-0097", model.SchemeORCID, "0000-0002-1825-0097", true, "https://orcid.org/0000-0002-1825-0097"},
		{"https://example.org/dataset/1", model.SchemeURL, "https://example.org/dataset/1", false, "https://example.org/dataset/1"},
		{"F47AC10B-58CC-4372-A567-0E02B2C3D479", model.SchemeUUID, "f47ac10b-58cc-4372-a567-0e02b2c3d479", false, ""},
		{"urn:uuid:f47ac10b-58cc-4372-a567-0e02b2c3d479", model.SchemeUUID, "f47ac10b-58cc-4372-a567-0e02b2c3d479", false, ""},
		{"d41d8cd98f00b204e9800998ecf8427e", model.SchemeHash, "d41d8cd98f00b204e9800998ecf8427e", false, ""},
		{"DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", model.SchemeHash, "da39a3ee5e6b4b0d3255bfef95601890afd80709", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id := c.Classify(tt.in)
			assert.Equal(t, tt.in, id.Raw)
			assert.Equal(t, tt.scheme, id.Scheme)
			assert.Equal(t, tt.normalized, id.Normalized)
			assert.Equal(t, tt.persistent, id.IsPersistent)
			assert.Equal(t, tt.resolver, id.ResolverURL)
			assert.True(t, id.Known())
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := newClassifier(t)

	for _, in := range []string{"", "   ", "not an identifier", "abc123"} {
		id := c.Classify(in)
		assert.Equal(t, model.SchemeUnknown, id.Scheme, in)
		assert.False(t, id.IsPersistent, in)
		assert.False(t, id.Known(), in)
	}
}

func TestClassifyTieBreak(t *testing.T) {
	c := newClassifier(t)

	id := c.Classify("https://doi.org/10.5281/zenodo.1")
	assert.Equal(t, model.SchemeDOI, id.Scheme)
	assert.NotContains(t, id.Schemes, model.SchemeURL)

	id = c.Classify("10.5281/zenodo.1")
	assert.Equal(t, []model.Scheme{model.SchemeDOI}, id.Schemes, "a DOI is not reported as a handle too")
	assert.Equal(t, model.SchemeDOI, id.Scheme)

	id = c.Classify("hdl:11234/1-3105")
	assert.Equal(t, []model.Scheme{model.SchemeHandle}, id.Schemes)
	assert.Equal(t, model.SchemeHandle, id.Scheme)
}

func TestClassifyIdempotent(t *testing.T) {
	c := newClassifier(t)

	inputs := []string{
		"https://doi.org/10.5281/ZENODO.1",
		"ark:13030/tf5p30086k",
		"https://nbn-resolving.org/urn:nbn:de:0000-12345",
		"hdl:11234/1-3105",
		"https://example.org/dataset/1",
		"F47AC10B-58CC-4372-A567-0E02B2C3D479",
		"https://identifiers.org/taxonomy:9606",
		"garbage",
	}
	for _, in := range inputs {
		first := c.Classify(in)
		second := c.Classify(first.Normalized)
		assert.Equal(t, first.Scheme, second.Scheme, in)
		assert.Equal(t, first.Normalized, second.Normalized, in)
		assert.Equal(t, first.IsPersistent, second.IsPersistent, in)
		assert.Equal(t, first.ResolverURL, second.ResolverURL, in)
	}
}

func TestPreferredPID(t *testing.T) {
	handle := model.Identifier{Scheme: model.SchemeHandle, IsPersistent: true, Normalized: "1/x"}
	doi := model.Identifier{Scheme: model.SchemeDOI, IsPersistent: true, Normalized: "10.1/x"}
	web := model.Identifier{Scheme: model.SchemeURL, Normalized: "https://x.org"}

	got, ok := PreferredPID([]model.Identifier{web, handle, doi})
	require.True(t, ok)
	assert.Equal(t, doi, got)

	got, ok = PreferredPID([]model.Identifier{web, handle})
	require.True(t, ok)
	assert.Equal(t, handle, got)

	_, ok = PreferredPID([]model.Identifier{web})
	assert.False(t, ok)
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://www.zenodo.org/records/1", "https://zenodo.org/api/records/1"))
	assert.False(t, SameHost("https://zenodo.org/", "https://example.org/"))
	assert.False(t, SameHost("", ""))
	assert.Equal(t, "zenodo.org", Host("https://ZENODO.org:443/x"))
}
