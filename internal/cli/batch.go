package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/fairmeter/internal/pipeline"
	"github.com/ppiankov/fairmeter/internal/score"
	"github.com/ppiankov/fairmeter/internal/worker"
)

var (
	outputDir    string
	batchTimeout time.Duration
	noProgress   bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Assess many identifiers from a file in parallel",
	Long: `Batch assesses every identifier listed in a file (one per line,
blank lines and # comments are skipped) with a pool of workers and writes
one JSON report per identifier.

Example:
  fairmeter batch ids.txt
  fairmeter batch ids.txt --workers 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	flags := batchCmd.Flags()
	flags.Int("workers", 4, "number of concurrent assessments")
	_ = viper.BindPFlag("concurrency.workers", flags.Lookup("workers"))
	flags.StringVar(&outputDir, "output-dir", "./fairmeter-reports", "output directory for reports")
	flags.DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	flags.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	flags.BoolVar(&noCache, "no-cache", false, "disable the response cache (force fresh fetches)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	ids, err := worker.ReadIdentifiers(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s (%d identifiers)\n", file, len(ids))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	req, err := buildRequest(cfg, "")
	if err != nil {
		return err
	}
	cfg.Output.Verbose = false
	assessor, err := newAssessor(ctx, cfg)
	if err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(assessor, cfg.Concurrency.Workers)
	var bar *pb.ProgressBar
	if !noProgress && len(ids) > 0 {
		bar = pb.Full.Start(len(ids))
		bar.Set("prefix", "Assessing: ")
		bar.Set(pb.CleanOnFinish, true)
		processor.OnProgress(func() { bar.Increment() })
	}
	results := processor.Process(ctx, ids, req)
	if bar != nil {
		bar.Finish()
	}

	renderer := pipeline.NewRenderer(os.Stderr)
	success, failure := 0, 0
	for _, result := range results {
		if result.Error != nil {
			failure++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Identifier, result.Error)
			continue
		}

		path := filepath.Join(outputDir, reportFilename(result.Identifier))
		if err := renderer.RenderJSON(result.Report, path); err != nil {
			failure++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Identifier, err)
			continue
		}
		success++

		sum := result.Report.Summary
		fmt.Fprintf(os.Stderr, "✓ %s (%.2f%%, maturity %d)\n", result.Identifier,
			sum.ScorePercent[score.Overall], sum.Maturity[score.Overall])
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d identifiers\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", success)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failure)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

var filenameReplacer = strings.NewReplacer(
	"https://", "", "http://", "",
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "-",
)

// reportFilename derives a unique, filesystem safe report name for an identifier
func reportFilename(id string) string {
	slug := filenameReplacer.Replace(strings.TrimSpace(id))
	if len(slug) > 100 {
		slug = slug[:100]
	}
	return slug + "-" + pipeline.RunID(id)[:8] + ".json"
}
