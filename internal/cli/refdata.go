package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/pipeline"
	"github.com/ppiankov/fairmeter/internal/refdata"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage reference data (licenses, vocabularies, format lists)",
}

var refdataRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download reference data from authoritative sources",
	Long: `Refresh downloads the SPDX license list and stores it in the reference
data cache (<cache.dir>/refdata). Later assessments use the cached copy in
place of the embedded one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is not set; refreshed reference data would not be kept")
		}
		return refreshRefData(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(refdataCmd)
	refdataCmd.AddCommand(refdataRefreshCmd)
}

// refreshRefData downloads every reference source into the refdata store.
// Failed sources keep their previous copy and are reported.
func refreshRefData(ctx context.Context, cfg *model.Config) error {
	n := fetch.New(cfg.HTTP)
	results := refdata.Refresh(ctx, n, pipeline.RefDataStore(cfg), refdata.DefaultSources)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s (%s from %s)\n", res.Name, humanize.Bytes(uint64(res.Bytes)), res.URL)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reference sources failed to refresh", failed, len(results))
	}
	return nil
}
