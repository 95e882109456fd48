package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/model"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fairmeter configuration",
	Long: `Manage fairmeter configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (FAIRMETER_*, e.g. FAIRMETER_HTTP_TIMEOUT=20s)
3. Config file (~/.fairmeter/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, env vars and flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(yamlData))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.fairmeter/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := filepath.Join(home, ".fairmeter")
		configPath := filepath.Join(configDir, "config.yaml")

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'fairmeter config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		var b strings.Builder
		b.WriteString("# fairmeter configuration file\n")
		b.WriteString("#\n")
		b.WriteString("# Configuration hierarchy (highest to lowest priority):\n")
		b.WriteString("#   1. CLI flags\n")
		b.WriteString("#   2. Environment variables (FAIRMETER_*)\n")
		b.WriteString("#   3. This config file\n")
		b.WriteString("#   4. Built-in defaults\n\n")
		b.Write(yamlData)

		if err := os.WriteFile(configPath, []byte(b.String()), 0644); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  fairmeter config show\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// configure registers defaults and the FAIRMETER_ environment binding on v.
// Nested keys map to env names with dots replaced, e.g. http.timeout -> FAIRMETER_HTTP_TIMEOUT.
func configure(v *viper.Viper) {
	d := model.DefaultConfig()

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)
	v.SetDefault("http.max_redirects", d.HTTP.MaxRedirects)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)
	v.SetDefault("http.insecure_tls", d.HTTP.InsecureTLS)
	v.SetDefault("http.http_proxy", d.HTTP.HTTPProxy)
	v.SetDefault("http.https_proxy", d.HTTP.HTTPSProxy)
	v.SetDefault("http.no_proxy", d.HTTP.NoProxy)
	v.SetDefault("http.respect_robots", d.HTTP.RespectRobots)

	v.SetDefault("rate_limiting.requests_per_second", d.RateLimiting.RequestsPerSecond)
	v.SetDefault("rate_limiting.burst_size", d.RateLimiting.BurstSize)

	v.SetDefault("harvest.use_datacite", d.Harvest.UseDataCite)
	v.SetDefault("harvest.use_github", d.Harvest.UseGitHub)
	v.SetDefault("harvest.verify_pids", d.Harvest.VerifyPIDs)
	v.SetDefault("harvest.link_workers", d.Harvest.LinkWorkers)
	v.SetDefault("harvest.max_typed_links", d.Harvest.MaxTypedLinks)

	v.SetDefault("data.max_files", d.Data.MaxFiles)
	v.SetDefault("data.max_bytes", d.Data.MaxBytes)
	v.SetDefault("data.timeout", d.Data.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)

	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.version", d.Catalog.Version)

	v.SetDefault("refdata.dir", d.RefData.Dir)
	v.SetDefault("refdata.online", d.RefData.Online)

	v.SetDefault("concurrency.workers", d.Concurrency.Workers)

	v.SetDefault("output.verbose", d.Output.Verbose)
	v.SetDefault("output.debug", d.Output.Debug)

	v.SetEnvPrefix("FAIRMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig decodes the merged configuration held by v
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperr.Config("config.Load", err)
	}
	if cfg.Catalog.Version == "" && cfg.Catalog.Path == "" {
		cfg.Catalog.Version = model.DefaultConfig().Catalog.Version
	}
	if cfg.Concurrency.Workers < 1 {
		return nil, apperr.Configf("config.Load", "concurrency.workers must be at least 1, got %d", cfg.Concurrency.Workers)
	}
	if cfg.RateLimiting.RequestsPerSecond <= 0 {
		return nil, apperr.Configf("config.Load", "rate_limiting.requests_per_second must be positive")
	}
	return cfg, nil
}
