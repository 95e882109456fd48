package identifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
)

func TestResolve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/10.1/x", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>x</title></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewResolver(newClassifier(t), fetch.New(model.DefaultConfig().HTTP), nil)

	id := model.Identifier{Normalized: "10.1/x", Scheme: model.SchemeDOI, IsPersistent: true, ResolverURL: srv.URL + "/10.1/x"}
	rec, resp, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, rec.Resolvable)
	assert.Equal(t, srv.URL+"/landing", rec.ResolvedURL)
	assert.Equal(t, []int{302, 200}, rec.StatusChain)
	assert.Equal(t, srv.URL+"/10.1/x", rec.Key())
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewResolver(newClassifier(t), fetch.New(model.DefaultConfig().HTTP), nil)
	id := model.Identifier{Normalized: "ark:/12345/x", Scheme: model.SchemeARK, IsPersistent: true, ResolverURL: srv.URL + "/ark:/12345/x"}

	rec, _, err := r.Resolve(context.Background(), id)
	require.Error(t, err)
	assert.False(t, rec.Resolvable)
	assert.Equal(t, []int{404}, rec.StatusChain)
}

func TestResolveWithoutResolver(t *testing.T) {
	r := NewResolver(newClassifier(t), fetch.New(model.DefaultConfig().HTTP), nil)
	rec, resp, err := r.Resolve(context.Background(), model.Identifier{Normalized: "abc", Scheme: model.SchemeHash})
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.False(t, rec.Resolvable)
	assert.Equal(t, "abc", rec.Key())
}
