package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/fairmeter/internal/catalog"
	"github.com/ppiankov/fairmeter/internal/pipeline"
)

var (
	listVersions bool
	listTests    bool
	metricsJSON  bool
)

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the metrics of a metric catalog",
	Long: `Metrics prints the metrics, scores and maturity levels of the selected
catalog (--metric-version or --catalog).

Example:
  fairmeter metrics
  fairmeter metrics --metric-version 0.5_software --tests
  fairmeter metrics --versions`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().BoolVar(&listVersions, "versions", false, "list the embedded catalog versions")
	metricsCmd.Flags().BoolVar(&listTests, "tests", false, "include metric tests")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "print the catalog as JSON")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	if listVersions {
		for _, v := range catalog.Versions() {
			fmt.Println(v)
		}
		return nil
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cat, err := pipeline.LoadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}

	if metricsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cat)
	}

	fmt.Printf("Catalog %s: %d metrics, total score %s\n", cat.Version, cat.TotalMetrics(), humanize.Ftoa(cat.TotalScore()))
	if cat.Specification != "" {
		fmt.Printf("Specification: %s\n", cat.Specification)
	}
	fmt.Println(strings.Repeat("-", 60))

	for _, m := range cat.Metrics {
		fmt.Printf("%-14s %-5s max %d  %s\n", m.Identifier, humanize.Ftoa(m.TotalScore), m.Maturity(), m.Name)
		if !listTests {
			continue
		}
		for _, t := range m.Tests {
			fmt.Printf("    %-16s %-5s maturity %d  %s\n", t.Identifier, humanize.Ftoa(t.Score), t.Maturity, t.Name)
		}
	}
	return nil
}
