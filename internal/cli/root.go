package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fairmeter",
	Short: "fairmeter - automated FAIR assessment of research data objects",
	Long: `fairmeter assesses how Findable, Accessible, Interoperable and Reusable
a digital research object is.

Given a persistent identifier or URL it resolves the object, harvests the
metadata offered by the landing page, signposting, content negotiation and
registries, inspects a sample of the data files and evaluates every metric
of a FAIR metric catalog. The result is a machine readable report with
per-metric scores, maturity levels and a per-principle summary.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of fairmeter and the embedded metric catalogs.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fairmeter v%s\n", model.SoftwareVersion)
		fmt.Printf("metric catalogs: %s\n", strings.Join(catalog.Versions(), ", "))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.fairmeter/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.Bool("debug", false, "keep debug messages in test_debug and include harvest details in reports")
	flags.String("catalog", "", "metric catalog file (default: embedded catalog)")
	flags.String("metric-version", "", "embedded metric catalog version")
	flags.String("cache-dir", "", "response and reference data cache directory")
	flags.String("refdata-dir", "", "directory with reference data files overriding the embedded ones")

	_ = viper.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("output.debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("catalog.path", flags.Lookup("catalog"))
	_ = viper.BindPFlag("catalog.version", flags.Lookup("metric-version"))
	_ = viper.BindPFlag("cache.dir", flags.Lookup("cache-dir"))
	_ = viper.BindPFlag("refdata.dir", flags.Lookup("refdata-dir"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".fairmeter"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	configure(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
