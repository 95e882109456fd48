package harvest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

func newDataHarvester(t *testing.T, cfg model.DataConfig) *DataHarvester {
	t.Helper()
	ref, err := refdata.Default()
	require.NoError(t, err)
	httpCfg := model.DefaultConfig().HTTP
	httpCfg.MaxRetries = 0
	return NewDataHarvester(fetch.New(httpCfg), identifier.NewClassifier(ref), cfg, nil)
}

func tarGz(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestSamplePicksSmallestPerType(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("a,b\n1,2\n3,4\n"))
	}))
	defer srv.Close()

	items := []model.ContentItem{
		{URL: srv.URL + "/big.csv", ClaimedType: "text/csv", ClaimedSize: "3 GB"},
		{URL: srv.URL + "/small.csv", ClaimedType: "text/csv", ClaimedSize: "1 kB"},
		{URL: srv.URL + "/unsized.csv", ClaimedType: "text/csv; charset=utf-8"},
		{URL: srv.URL + "/data.nc", ClaimedType: "application/x-netcdf", ClaimedSize: "2048"},
		{Name: "no url", ClaimedType: "text/plain"},
	}

	out := newDataHarvester(t, model.DataConfig{}).Sample(context.Background(), items)
	require.Len(t, out, len(items))
	assert.Equal(t, []string{"/small.csv", "/data.nc"}, requested)

	assert.False(t, out[0].Sampled)
	assert.True(t, out[1].Sampled)
	assert.True(t, out[1].Verified)
	assert.Equal(t, int64(12), out[1].DownloadedSize)
	assert.Equal(t, model.SchemeURL, out[1].Scheme)
	assert.False(t, out[2].Sampled)
	assert.True(t, out[3].Sampled)
	assert.False(t, out[4].Sampled)

	assert.False(t, items[1].Sampled, "input items are not modified")
}

func TestSampleCapsFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	items := []model.ContentItem{
		{URL: srv.URL + "/1", ClaimedType: "text/csv"},
		{URL: srv.URL + "/2", ClaimedType: "application/json"},
		{URL: srv.URL + "/3", ClaimedType: "image/png"},
	}
	out := newDataHarvester(t, model.DataConfig{MaxFiles: 2}).Sample(context.Background(), items)
	assert.True(t, out[0].Sampled)
	assert.True(t, out[1].Sampled)
	assert.False(t, out[2].Sampled)
}

func TestSampleTruncatesAndSkipsZipListing(t *testing.T) {
	archive := zipArchive(t, map[string]string{"notes.txt": "some notes about the data set, long enough"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	out := newDataHarvester(t, model.DataConfig{MaxBytes: 16}).Sample(context.Background(), []model.ContentItem{
		{URL: srv.URL + "/data.zip", ClaimedType: "application/zip"},
	})
	require.Len(t, out, 1)
	it := out[0]
	assert.True(t, it.Truncated)
	assert.Equal(t, int64(16), it.DownloadedSize)
	assert.Equal(t, int64(len(archive)), it.HeaderContentSize)
	assert.Equal(t, []string{"application/zip"}, it.SniffedTypes)
}

func TestSampleUnavailableFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	out := newDataHarvester(t, model.DataConfig{}).Sample(context.Background(), []model.ContentItem{
		{URL: srv.URL + "/missing.csv", ClaimedType: "text/csv"},
	})
	assert.True(t, out[0].Sampled)
	assert.False(t, out[0].Verified)
	assert.NotEmpty(t, out[0].Error)
}

func TestSniff(t *testing.T) {
	t.Run("zip", func(t *testing.T) {
		types := sniff(zipArchive(t, map[string]string{"readme.txt": "plain words here\n"}), false)
		assert.Equal(t, "application/zip", types[0])
		assert.Contains(t, types, "text/plain")
	})
	t.Run("tar.gz", func(t *testing.T) {
		types := sniff(tarGz(t, "readme.txt", "plain words here\n"), false)
		assert.Equal(t, "application/gzip", types[0])
		assert.Contains(t, types, "application/x-tar")
		assert.Contains(t, types, "text/plain")
	})
	t.Run("json", func(t *testing.T) {
		assert.Equal(t, []string{"application/json"}, sniff([]byte(`{"a": [1, 2, 3]}`), false))
	})
}

func TestClaimedSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"2 kB", 2000},
		{"1 KiB", 1024},
		{"1.5 MB", 1_500_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, claimedSize(model.ContentItem{ClaimedSize: tt.in}), tt.in)
	}
	assert.Greater(t, claimedSize(model.ContentItem{}), claimedSize(model.ContentItem{ClaimedSize: "100 TB"}))
	assert.Greater(t, claimedSize(model.ContentItem{ClaimedSize: "huge"}), claimedSize(model.ContentItem{ClaimedSize: "100 TB"}))
}
