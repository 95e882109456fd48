package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/fairmeter/internal/apperr"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := LoadEmbedded("0.5")
	require.NoError(t, err)

	assert.Equal(t, "0.5", c.Version)
	assert.NotEmpty(t, c.Specification)
	assert.Equal(t, 17, c.TotalMetrics())
	assert.InDelta(t, 25.0, c.TotalScore(), 1e-9)

	m, ok := c.Metric("FsF-F1-02D")
	require.True(t, ok)
	assert.Equal(t, "FAIR-F1-02D", m.AgnosticIdentifier)
	assert.Equal(t, 3, m.Maturity())
	assert.Len(t, m.Tests, 3)

	byAgnostic, ok := c.Metric("FAIR-F1-02D")
	require.True(t, ok)
	assert.Same(t, m, byAgnostic)
}

func TestEmbeddedCatalogsAreConsistent(t *testing.T) {
	for _, v := range Versions() {
		t.Run(v, func(t *testing.T) {
			c, err := LoadEmbedded(v)
			require.NoError(t, err)
			for _, m := range c.Metrics {
				assert.Regexp(t, AgnosticPattern, m.AgnosticIdentifier)
				for _, test := range m.Tests {
					assert.True(t, c.IsTestDefined(test.Identifier))
					assert.True(t, c.IsTestDefined(test.AgnosticIdentifier))
					assert.LessOrEqual(t, test.Score, m.TotalScore, test.Identifier)
				}
			}
		})
	}
}

func TestVersions(t *testing.T) {
	assert.Equal(t, []string{"0.5", "0.5_software"}, Versions())
}

func TestUnknownVersion(t *testing.T) {
	_, err := LoadEmbedded("9.9")
	require.Error(t, err)
	assert.True(t, apperr.IsConfig(err))
	assert.Contains(t, err.Error(), "0.5")
}

func TestTestHelpers(t *testing.T) {
	c, err := LoadEmbedded("0.5")
	require.NoError(t, err)

	assert.Equal(t, 0.25, c.TestWeight("FAIR-F1-02D-3"))
	assert.Equal(t, 0.25, c.TestWeight("FsF-F1-02D-3"))
	assert.Equal(t, 3, c.TestMaturity("FAIR-F1-02D-3"))
	assert.Zero(t, c.TestWeight("FAIR-F1-02D-9"))
	assert.Zero(t, c.TestMaturity("nope"))
	assert.False(t, c.IsTestDefined("FAIR-F1-02D-9"))

	reqs := c.Requirements("FAIR-F4-01M-2")
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].All())
	assert.Equal(t, []string{"typed-link", "signposting"}, reqs[0].Required.Location)
	assert.Nil(t, c.Requirements("FAIR-F1-01D-1"))
}

func TestSoftwareCatalogOverrides(t *testing.T) {
	c, err := LoadEmbedded("0.5_software")
	require.NoError(t, err)

	m, ok := c.Metric("FRSM-15-R1.1")
	require.True(t, ok)
	assert.Equal(t, "FAIR-R1.1-01M", m.AgnosticIdentifier)

	test, ok := c.Test("FAIR-R1.1-01M-2")
	require.True(t, ok)
	assert.Equal(t, "FRSM-15-R1.1-2", test.Identifier)

	reqs := c.Requirements("FRSM-17-R1.3-2")
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Required.Identifier, "https://w3id.org/codemeta/*")
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		yaml string
		want string
	}{
		{
			name: "no version in name",
			file: "metrics.yaml",
			yaml: "metric_specification: x\n",
			want: "does not encode a version",
		},
		{
			name: "missing specification",
			yaml: "metrics:\n  - metric_identifier: FsF-F1-01D\n",
			want: "metric_specification",
		},
		{
			name: "no metrics",
			yaml: "metric_specification: x\nmetrics: []\n",
			want: "no metrics",
		},
		{
			name: "missing total score",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1
        metric_test_score: 1
`,
			want: "missing total_score",
		},
		{
			name: "missing test score",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1
`,
			want: "missing metric_test_score",
		},
		{
			name: "bad test suffix",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-x
        metric_test_score: 1
`,
			want: "test identifier must be",
		},
		{
			name: "maturity out of range",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1
        metric_test_score: 1
        metric_test_maturity: 7
`,
			want: "outside 0..5",
		},
		{
			name: "underivable agnostic id",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: CUSTOM-1
    metric_name: n
    total_score: 1
    metric_tests:
      - metric_test_identifier: CUSTOM-1-1
        metric_test_score: 1
`,
			want: "metric_agnostic_identifier",
		},
		{
			name: "unknown modality",
			yaml: `metric_specification: x
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    total_score: 1
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1
        metric_test_score: 1
        metric_test_requirements:
          - modality: some
`,
			want: "unknown modality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := tt.file
			if file == "" {
				file = "metrics_v1.0.yaml"
			}
			_, err := Parse(file, []byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, apperr.IsConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseToleratesUnknownKeys(t *testing.T) {
	data := `metric_specification: x
created_by: someone
metrics:
  - metric_identifier: FsF-F1-01D
    metric_name: n
    total_score: 1
    something_new: true
    metric_tests:
      - metric_test_identifier: FsF-F1-01D-1a
        metric_test_score: 1
        metric_test_requirements:
          - required:
              keywords: [a]
`
	c, err := Parse("metrics_v1.0.yaml", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, "1.0", c.Version)
	assert.True(t, c.IsTestDefined("FAIR-F1-01D-1a"))
	assert.Equal(t, ModalityAny, c.Requirements("FsF-F1-01D-1a")[0].Modality)
	assert.Equal(t, 0, c.TestMaturity("FsF-F1-01D-1a"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "metrics_v2.1_custom.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`metric_specification: x
metrics:
  - metric_identifier: ABC-R1.1-01M
    metric_name: License
    total_score: 2
    metric_tests:
      - metric_test_identifier: ABC-R1.1-01M-1
        metric_test_score: 2
        metric_test_maturity: 3
`), 0o644))

	c, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "2.1_custom", c.Version)
	m, ok := c.Metric("FAIR-R1.1-01M")
	require.True(t, ok)
	assert.Equal(t, 1, m.Number)

	_, err = LoadFile(filepath.Join(dir, "missing_v1.0.yaml"))
	assert.True(t, apperr.IsConfig(err))
}
