package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"input", Inputf("bad identifier %q", "x"), KindInput},
		{"config", Config("catalog.Load", base), KindConfig},
		{"network", Network("fetch", base), KindNetwork},
		{"parse", Parse("rdf", base), KindParse},
		{"wrapped", fmt.Errorf("assess: %w", Input("empty")), KindInput},
		{"plain", base, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Config("catalog.Load", errors.New("missing metric_identifier"))
	assert.Equal(t, "catalog.Load: missing metric_identifier", err.Error())
	assert.True(t, IsConfig(err))
	assert.False(t, IsInput(err))

	err = Configf("registry", "no evaluator for %s", "FAIR-X1-01M")
	assert.Equal(t, "registry: no evaluator for FAIR-X1-01M", err.Error())
}

func TestErrorMessageParts(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"message only", Input("object identifier is empty"), "object identifier is empty"},
		{"op and cause", Network("fetch", base), "fetch: connection refused"},
		{"parse", Parse("rdf", errors.New("bad triple")), "rdf: bad triple"},
		{"all parts", &Error{Kind: KindConfig, Op: "refdata.Load", Msg: "licenses", Err: base}, "refdata.Load: licenses: connection refused"},
		{"cause only", &Error{Kind: KindParse, Err: base}, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.NotContains(t, tt.err.Error(), ": :")
		})
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("timeout")
	err := Network("fetch", base)
	assert.ErrorIs(t, err, base)
	assert.True(t, IsNetwork(err))
}
