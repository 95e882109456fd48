// Package catalog loads the declarative metric catalog.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/fairmeter/internal/apperr"
)

//go:embed data/*.yaml
var embedded embed.FS

var (
	versionRe  = regexp.MustCompile(`metrics_v([0-9]+\.[0-9]+(?:_[a-z]+)?)\.ya?ml$`)
	agnosticRe = regexp.MustCompile(`^([A-Za-z]+)-([FAIR][0-9](?:\.[0-9])?)-([0-9]+[MD]+)$`)
	// AgnosticPattern matches agnostic metric identifiers
	AgnosticPattern = regexp.MustCompile(`^FAIR-[FAIR][0-9](\.[0-9])?-[0-9]+[MD]+$`)
	testSuffixRe    = regexp.MustCompile(`^[0-9]+[a-z]?$`)
)

// Modality of a requirement
const (
	ModalityAny = "any"
	ModalityAll = "all"
)

// Required lists the values a requirement matches against
type Required struct {
	Keywords   []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Location   []string `yaml:"location,omitempty" json:"location,omitempty"`
	Identifier []string `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Name       []string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Requirement is a structured test requirement
type Requirement struct {
	Modality string   `yaml:"modality" json:"modality"`
	Required Required `yaml:"required" json:"required"`
}

// All reports whether every listed value must match
func (r Requirement) All() bool {
	return strings.EqualFold(r.Modality, ModalityAll)
}

// Test is a metric test definition
type Test struct {
	Identifier         string        `json:"metric_test_identifier"`
	AgnosticIdentifier string        `json:"agnostic_test_identifier"`
	Name               string        `json:"metric_test_name"`
	Score              float64       `json:"metric_test_score"`
	Maturity           int           `json:"metric_test_maturity"`
	Requirements       []Requirement `json:"metric_test_requirements,omitempty"`
}

// Metric is a metric definition
type Metric struct {
	Identifier         string  `json:"metric_identifier"`
	AgnosticIdentifier string  `json:"agnostic_identifier"`
	Number             int     `json:"metric_number"`
	Name               string  `json:"metric_name"`
	ShortName          string  `json:"metric_short_name,omitempty"`
	Principle          string  `json:"fair_principle,omitempty"`
	Description        string  `json:"description,omitempty"`
	TotalScore         float64 `json:"total_score"`
	Tests              []Test  `json:"metric_tests"`
}

// Maturity is the highest maturity a fully passing metric reaches
func (m *Metric) Maturity() int {
	max := 0
	for _, t := range m.Tests {
		if t.Maturity > max {
			max = t.Maturity
		}
	}
	return max
}

// Catalog is a loaded metric catalog
type Catalog struct {
	Version       string   `json:"metric_version"`
	Specification string   `json:"metric_specification"`
	Metrics       []Metric `json:"metrics"`

	metrics map[string]int
	tests   map[string]*Test
}

type rawCatalog struct {
	Specification string      `yaml:"metric_specification"`
	Metrics       []rawMetric `yaml:"metrics"`
}

type rawMetric struct {
	Identifier  string    `yaml:"metric_identifier"`
	Agnostic    string    `yaml:"metric_agnostic_identifier"`
	Number      int       `yaml:"metric_number"`
	Name        string    `yaml:"metric_name"`
	ShortName   string    `yaml:"metric_short_name"`
	Principle   string    `yaml:"fair_principle"`
	Description string    `yaml:"description"`
	TotalScore  *float64  `yaml:"total_score"`
	Tests       []rawTest `yaml:"metric_tests"`
}

type rawTest struct {
	Identifier   string        `yaml:"metric_test_identifier"`
	Name         string        `yaml:"metric_test_name"`
	Score        *float64      `yaml:"metric_test_score"`
	Maturity     *int          `yaml:"metric_test_maturity"`
	Requirements []Requirement `yaml:"metric_test_requirements"`
}

// Versions lists the embedded catalog versions, sorted
func Versions() []string {
	entries, err := fs.ReadDir(embedded, "data")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if m := versionRe.FindStringSubmatch(e.Name()); m != nil {
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}

// LoadEmbedded loads an embedded catalog by version, e.g. "0.5" or "0.5_software"
func LoadEmbedded(version string) (*Catalog, error) {
	name := "metrics_v" + version + ".yaml"
	data, err := fs.ReadFile(embedded, path.Join("data", name))
	if err != nil {
		return nil, apperr.Configf("catalog.Load", "unknown metric version %q (available: %s)", version, strings.Join(Versions(), ", "))
	}
	return Parse(name, data)
}

// LoadFile loads a catalog from disk; the version is taken from the file name
func LoadFile(p string) (*Catalog, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, apperr.Config("catalog.Load", err)
	}
	return Parse(filepath.Base(p), data)
}

// Parse decodes and validates a catalog. name must encode the version.
func Parse(name string, data []byte) (*Catalog, error) {
	m := versionRe.FindStringSubmatch(name)
	if m == nil {
		return nil, apperr.Configf("catalog.Load", "file name %q does not encode a version (metrics_vX.Y.yaml)", name)
	}

	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Config("catalog.Load", fmt.Errorf("decode %s: %w", name, err))
	}

	c := &Catalog{Version: m[1], Specification: raw.Specification}
	if err := c.build(raw); err != nil {
		return nil, apperr.Config("catalog.Load", fmt.Errorf("%s: %w", name, err))
	}
	return c, nil
}

func (c *Catalog) build(raw rawCatalog) error {
	if raw.Specification == "" {
		return fmt.Errorf("missing metric_specification")
	}
	if len(raw.Metrics) == 0 {
		return fmt.Errorf("no metrics defined")
	}

	c.metrics = make(map[string]int, len(raw.Metrics)*2)
	c.tests = make(map[string]*Test)

	for i, rm := range raw.Metrics {
		switch {
		case rm.Identifier == "":
			return fmt.Errorf("metric %d: missing metric_identifier", i+1)
		case rm.Name == "":
			return fmt.Errorf("%s: missing metric_name", rm.Identifier)
		case rm.TotalScore == nil:
			return fmt.Errorf("%s: missing total_score", rm.Identifier)
		case *rm.TotalScore <= 0:
			return fmt.Errorf("%s: total_score must be positive", rm.Identifier)
		case len(rm.Tests) == 0:
			return fmt.Errorf("%s: missing metric_tests", rm.Identifier)
		}

		agnostic, err := agnosticID(rm.Identifier, rm.Agnostic)
		if err != nil {
			return err
		}
		if _, dup := c.metrics[rm.Identifier]; dup {
			return fmt.Errorf("duplicate metric %s", rm.Identifier)
		}
		if _, dup := c.metrics[agnostic]; dup {
			return fmt.Errorf("%s: agnostic identifier %s used twice", rm.Identifier, agnostic)
		}

		number := rm.Number
		if number == 0 {
			number = i + 1
		}
		metric := Metric{
			Identifier:         rm.Identifier,
			AgnosticIdentifier: agnostic,
			Number:             number,
			Name:               rm.Name,
			ShortName:          rm.ShortName,
			Principle:          rm.Principle,
			Description:        strings.TrimSpace(rm.Description),
			TotalScore:         *rm.TotalScore,
		}

		for _, rt := range rm.Tests {
			test, err := buildTest(rm.Identifier, agnostic, rt)
			if err != nil {
				return err
			}
			metric.Tests = append(metric.Tests, test)
		}

		c.Metrics = append(c.Metrics, metric)
		c.metrics[rm.Identifier] = len(c.Metrics) - 1
		c.metrics[agnostic] = len(c.Metrics) - 1
	}

	for i := range c.Metrics {
		for j := range c.Metrics[i].Tests {
			t := &c.Metrics[i].Tests[j]
			c.tests[t.Identifier] = t
			c.tests[t.AgnosticIdentifier] = t
		}
	}
	return nil
}

func buildTest(metricID, agnostic string, rt rawTest) (Test, error) {
	switch {
	case rt.Identifier == "":
		return Test{}, fmt.Errorf("%s: test without metric_test_identifier", metricID)
	case rt.Score == nil:
		return Test{}, fmt.Errorf("%s: missing metric_test_score", rt.Identifier)
	case *rt.Score < 0:
		return Test{}, fmt.Errorf("%s: negative metric_test_score", rt.Identifier)
	}

	maturity := 0
	if rt.Maturity != nil {
		maturity = *rt.Maturity
	}
	if maturity < 0 || maturity > 5 {
		return Test{}, fmt.Errorf("%s: metric_test_maturity %d outside 0..5", rt.Identifier, maturity)
	}

	suffix := strings.TrimPrefix(rt.Identifier, metricID+"-")
	if suffix == rt.Identifier || !testSuffixRe.MatchString(suffix) {
		return Test{}, fmt.Errorf("%s: test identifier must be %s-<n>[a-z]", rt.Identifier, metricID)
	}

	for i, req := range rt.Requirements {
		if req.Modality == "" {
			rt.Requirements[i].Modality = ModalityAny
			continue
		}
		if !strings.EqualFold(req.Modality, ModalityAny) && !strings.EqualFold(req.Modality, ModalityAll) {
			return Test{}, fmt.Errorf("%s: unknown modality %q", rt.Identifier, req.Modality)
		}
	}

	return Test{
		Identifier:         rt.Identifier,
		AgnosticIdentifier: agnostic + "-" + suffix,
		Name:               rt.Name,
		Score:              *rt.Score,
		Maturity:           maturity,
		Requirements:       rt.Requirements,
	}, nil
}

// agnosticID derives FAIR-<principle>-<nn><MD> from a concrete identifier
// unless the catalog provides one
func agnosticID(id, override string) (string, error) {
	if override != "" {
		if !AgnosticPattern.MatchString(override) {
			return "", fmt.Errorf("%s: metric_agnostic_identifier %q is not FAIR-<principle>-<nn><M|D>", id, override)
		}
		return override, nil
	}
	m := agnosticRe.FindStringSubmatch(id)
	if m == nil {
		return "", fmt.Errorf("%s: cannot derive an agnostic identifier, set metric_agnostic_identifier", id)
	}
	return "FAIR-" + m[2] + "-" + m[3], nil
}

// Metric returns a metric by concrete or agnostic identifier
func (c *Catalog) Metric(id string) (*Metric, bool) {
	i, ok := c.metrics[id]
	if !ok {
		return nil, false
	}
	return &c.Metrics[i], true
}

// Test returns a test by concrete or agnostic identifier
func (c *Catalog) Test(id string) (*Test, bool) {
	t, ok := c.tests[id]
	return t, ok
}

// IsTestDefined reports whether the catalog defines a test
func (c *Catalog) IsTestDefined(id string) bool {
	_, ok := c.tests[id]
	return ok
}

// TestWeight returns the score contribution of a test, 0 when undefined
func (c *Catalog) TestWeight(id string) float64 {
	if t, ok := c.tests[id]; ok {
		return t.Score
	}
	return 0
}

// TestMaturity returns the maturity contribution of a test, 0 when undefined
func (c *Catalog) TestMaturity(id string) int {
	if t, ok := c.tests[id]; ok {
		return t.Maturity
	}
	return 0
}

// Requirements returns the structured requirements of a test
func (c *Catalog) Requirements(id string) []Requirement {
	if t, ok := c.tests[id]; ok {
		return t.Requirements
	}
	return nil
}

// TotalMetrics returns the number of metrics
func (c *Catalog) TotalMetrics() int {
	return len(c.Metrics)
}

// TotalScore returns the sum of metric total scores
func (c *Catalog) TotalScore() float64 {
	var sum float64
	for _, m := range c.Metrics {
		sum += m.TotalScore
	}
	return sum
}
