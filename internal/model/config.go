package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime settings
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Harvest      HarvestConfig      `yaml:"harvest" mapstructure:"harvest"`
	Data         DataConfig         `yaml:"data" mapstructure:"data"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Catalog      CatalogConfig      `yaml:"catalog" mapstructure:"catalog"`
	RefData      RefDataConfig      `yaml:"refdata" mapstructure:"refdata"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// HTTPConfig configures the negotiator
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRedirects  int           `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy" mapstructure:"no_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// RateLimitingConfig configures per-domain request rates
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// HarvestConfig configures the metadata harvester
type HarvestConfig struct {
	UseDataCite   bool `yaml:"use_datacite" mapstructure:"use_datacite"`
	UseGitHub     bool `yaml:"use_github" mapstructure:"use_github"`
	VerifyPIDs    bool `yaml:"verify_pids" mapstructure:"verify_pids"`
	LinkWorkers   int  `yaml:"link_workers" mapstructure:"link_workers"`
	MaxTypedLinks int  `yaml:"max_typed_links" mapstructure:"max_typed_links"`
}

// DataConfig configures the data harvester
type DataConfig struct {
	MaxFiles int           `yaml:"max_files" mapstructure:"max_files"`
	MaxBytes int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// CatalogConfig selects the metric catalog
type CatalogConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`       // empty uses the embedded catalog
	Version string `yaml:"version" mapstructure:"version"` // embedded catalog version
}

// RefDataConfig selects reference data sources
type RefDataConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"` // overlay directory with cached files
	Online bool   `yaml:"online" mapstructure:"online"`
}

// ConcurrencyConfig configures batch processing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	Debug   bool `yaml:"debug" mapstructure:"debug"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cacheDir := ".fairmeter/cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".fairmeter", "cache")
	}

	return &Config{
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "fairmeter/" + SoftwareVersion + " (+https://github.com/ppiankov/fairmeter)",
			MaxBodyBytes: 5_000_000,
			MaxRedirects: 10,
			MaxRetries:   2,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Harvest: HarvestConfig{
			UseDataCite:   true,
			VerifyPIDs:    true,
			LinkWorkers:   4,
			MaxTypedLinks: 20,
		},
		Data: DataConfig{
			MaxFiles: 5,
			MaxBytes: 1_000_000,
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Catalog: CatalogConfig{
			Version: "0.5",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}
