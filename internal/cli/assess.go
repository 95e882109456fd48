package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/pipeline"
)

var (
	outJSON     string
	showSummary bool
	timeout     time.Duration
	noCache     bool
	serviceURL  string
	serviceType string
	authToken   string
	authScheme  string
)

// assessCmd represents the assess command
var assessCmd = &cobra.Command{
	Use:   "assess <identifier>",
	Short: "Assess the FAIRness of one research data object",
	Long: `Assess resolves a persistent identifier or URL and:
- Harvests metadata from the landing page, signposting, content negotiation and registries
- Checks identifier resolvability and the accessibility of the data files
- Evaluates every metric of the selected FAIR metric catalog
- Writes a JSON report with per-metric scores and a per-principle summary

Example:
  fairmeter assess 10.5281/zenodo.8347772
  fairmeter assess https://doi.org/10.1594/PANGAEA.908011 --json report.json
  fairmeter assess https://github.com/owner/repo --metric-version 0.5_software --github`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	flags := assessCmd.Flags()
	flags.StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	flags.BoolVar(&showSummary, "summary", true, "print a score summary to stderr")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "overall assessment timeout")
	flags.BoolVar(&noCache, "no-cache", false, "disable the response cache (force fresh fetches)")

	flags.Bool("datacite", true, "query DataCite for DOI metadata")
	flags.Bool("github", false, "query the GitHub API for repositories hosted on github.com")
	flags.Bool("verify-pids", true, "resolve discovered PIDs to check that they lead back to the object")
	flags.Bool("online", false, "refresh reference data from authoritative sources before assessing")
	_ = viper.BindPFlag("harvest.use_datacite", flags.Lookup("datacite"))
	_ = viper.BindPFlag("harvest.use_github", flags.Lookup("github"))
	_ = viper.BindPFlag("harvest.verify_pids", flags.Lookup("verify-pids"))
	_ = viper.BindPFlag("refdata.online", flags.Lookup("online"))

	flags.StringVar(&serviceURL, "service-url", "", "metadata service endpoint to probe")
	flags.StringVar(&serviceType, "service-type", "", "metadata service type (oai_pmh, ogc_csw, sparql)")
	flags.StringVar(&authToken, "auth-token", "", "credentials for the landing host (default: $FAIRMETER_AUTH_TOKEN)")
	flags.StringVar(&authScheme, "auth-scheme", "Bearer", "authorization scheme (Basic or Bearer)")
}

func runAssess(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	req, err := buildRequest(cfg, args[0])
	if err != nil {
		return err
	}

	assessor, err := newAssessor(ctx, cfg)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Assessing: %s\n", req.ObjectIdentifier)
		fmt.Fprintf(os.Stderr, "Catalog:   %s\n", assessor.Catalog().Version)
		fmt.Fprintf(os.Stderr, "Cache:     %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
	}

	report, err := assessor.Assess(ctx, req)
	if err != nil {
		return fmt.Errorf("assessment failed: %w", err)
	}

	renderer := pipeline.NewRenderer(os.Stderr)
	if showSummary {
		renderer.RenderSummary(report)
	}
	if err := renderer.RenderJSON(report, outJSON); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if outJSON != "-" {
		fmt.Fprintf(os.Stderr, "\n✓ Report written to %s\n", outJSON)
	}
	return nil
}

// buildRequest turns the harvest settings and assess flags into a run request
func buildRequest(cfg *model.Config, input string) (model.RunRequest, error) {
	req := model.RunRequest{
		ObjectIdentifier: input,
		UseDataCite:      cfg.Harvest.UseDataCite,
		UseGitHub:        cfg.Harvest.UseGitHub,
		VerifyPIDs:       cfg.Harvest.VerifyPIDs,
		Debug:            cfg.Output.Debug,
	}

	if serviceURL != "" {
		switch serviceType {
		case model.ServiceOAIPMH, model.ServiceOGCCSW, model.ServiceSPARQL:
		default:
			return req, apperr.Inputf("unsupported metadata service type %q (oai_pmh, ogc_csw, sparql)", serviceType)
		}
		req.MetadataServiceURL = serviceURL
		req.MetadataServiceType = serviceType
	}

	token := authToken
	if token == "" {
		token = os.Getenv("FAIRMETER_AUTH_TOKEN")
	}
	if token != "" {
		scheme := strings.ToLower(authScheme)
		if scheme != "basic" && scheme != "bearer" {
			return req, apperr.Inputf("unsupported auth scheme %q (Basic or Bearer)", authScheme)
		}
		req.Auth = &model.Auth{Token: token, Scheme: strings.ToUpper(scheme[:1]) + scheme[1:]}
	}
	return req, nil
}

// newAssessor refreshes reference data when running online and builds the assessor
func newAssessor(ctx context.Context, cfg *model.Config) (*pipeline.Assessor, error) {
	if cfg.RefData.Online {
		if err := refreshRefData(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using cached reference data)\n", err)
		}
	}
	return pipeline.NewAssessor(cfg, pipeline.WithConsole(consoleWriter(cfg)))
}

// consoleWriter returns where run logs go; quiet unless verbose or debug
func consoleWriter(cfg *model.Config) io.Writer {
	if cfg.Output.Verbose || cfg.Output.Debug {
		return os.Stderr
	}
	return nil
}
