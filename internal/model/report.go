package model

import "time"

// SoftwareVersion is reported in every assessment
const SoftwareVersion = "0.3.0"

// RunRequest is the input of one assessment run
type RunRequest struct {
	ObjectIdentifier    string `json:"object_identifier" yaml:"object_identifier"`
	MetricVersion       string `json:"metric_version,omitempty" yaml:"metric_version,omitempty"`
	UseDataCite         bool   `json:"use_datacite" yaml:"use_datacite"`
	UseGitHub           bool   `json:"use_github" yaml:"use_github"`
	VerifyPIDs          bool   `json:"verify_pids" yaml:"verify_pids"`
	MetadataServiceURL  string `json:"metadata_service_url,omitempty" yaml:"metadata_service_url,omitempty"`
	MetadataServiceType string `json:"metadata_service_type,omitempty" yaml:"metadata_service_type,omitempty"` // oai_pmh, ogc_csw, sparql
	Auth                *Auth  `json:"auth,omitempty" yaml:"auth,omitempty"`
	Debug               bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Auth carries credentials for the landing host
type Auth struct {
	Token  string `json:"-" yaml:"token"`
	Scheme string `json:"scheme" yaml:"scheme"` // Basic or Bearer
}

// Metadata service types
const (
	ServiceOAIPMH = "oai_pmh"
	ServiceOGCCSW = "ogc_csw"
	ServiceSPARQL = "sparql"
)

// TestStatus is the outcome of a metric or a metric test
type TestStatus string

const (
	StatusPass TestStatus = "pass"
	StatusFail TestStatus = "fail"
)

// Score is an earned/total pair
type Score struct {
	Earned float64 `json:"earned"`
	Total  float64 `json:"total"`
}

// TestResult is the outcome of one metric test
type TestResult struct {
	ID       string     `json:"metric_test_identifier"`
	Name     string     `json:"metric_test_name,omitempty"`
	Score    Score      `json:"metric_test_score"`
	Maturity int        `json:"metric_test_maturity"`
	Status   TestStatus `json:"metric_test_status"`
}

// MetricResult is the outcome of one metric
type MetricResult struct {
	ID                 int                   `json:"id"`
	MetricIdentifier   string                `json:"metric_identifier"`
	MetricName         string                `json:"metric_name"`
	AgnosticIdentifier string                `json:"agnostic_identifier"`
	TestStatus         TestStatus            `json:"test_status"`
	Score              Score                 `json:"score"`
	Maturity           int                   `json:"maturity"`
	MetricTests        map[string]TestResult `json:"metric_tests"`
	Output             any                   `json:"output,omitempty"`
	TestDebug          []string              `json:"test_debug,omitempty"`
}

// Passed reports whether the metric passed
func (r MetricResult) Passed() bool { return r.TestStatus == StatusPass }

// Summary maps FAIR principle codes (F, F1, R1.1, ..., FAIR) to aggregate values
type Summary struct {
	ScoreEarned  map[string]float64 `json:"score_earned"`
	ScoreTotal   map[string]float64 `json:"score_total"`
	ScorePercent map[string]float64 `json:"score_percent"`
	StatusTotal  map[string]int     `json:"status_total"`
	StatusPassed map[string]int     `json:"status_passed"`
	Maturity     map[string]int     `json:"maturity"`
}

// Report is the serializable output of an assessment run
type Report struct {
	TestID              string         `json:"test_id"`
	SoftwareVersion     string         `json:"software_version"`
	MetricVersion       string         `json:"metric_version"`
	MetricSpecification string         `json:"metric_specification"`
	Timestamp           time.Time      `json:"timestamp"`
	TotalMetrics        int            `json:"total_metrics"`
	Request             RunRequest     `json:"request"`
	Summary             Summary        `json:"summary"`
	Results             []MetricResult `json:"results"`
	Harvest             *HarvestInfo   `json:"harvest,omitempty"`
	StartedAt           time.Time      `json:"started_at"`
	EndedAt             time.Time      `json:"ended_at"`
}

// HarvestInfo exposes provenance of the harvested metadata in the report
type HarvestInfo struct {
	LandingURL        string             `json:"landing_url,omitempty"`
	LandingAccessible bool               `json:"landing_accessible"`
	Fragments         []MetadataFragment `json:"metadata_sources"`
	PIDs              []PidRecord        `json:"pids,omitempty"`
	Namespaces        []string           `json:"namespaces,omitempty"`
	Merged            MergedMetadata     `json:"merged"`
	Errors            []string           `json:"errors,omitempty"`
}
