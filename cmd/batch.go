// File: cmd/batch.go
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/observability"
	"github.com/prodscout/prodscout-cli/internal/report"
	"github.com/prodscout/prodscout-cli/internal/scrape"
	"github.com/prodscout/prodscout-cli/internal/scrape/tradelle"
)

// newBatchCmd creates the multi-product driver: listing traversal,
// sequential detail scrapes, CSV plus sibling JSON export.
func newBatchCmd() *cobra.Command {
	var (
		count    int
		output   string
		debug    bool
		headless bool
	)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Scrape multiple products from the listing into CSV and JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCfg

			if headless {
				cfg.Browser.Headless = true
			}
			logger := observability.GetLogger()

			if output == "" {
				output = filepath.Join(cfg.Output.Dir, "products.csv")
			}

			comps, err := buildComponents(cfg, logger, tradelle.Options{UseSession: true})
			if err != nil {
				return err
			}
			if err := comps.Scraper.Initialize(ctx); err != nil {
				return fmt.Errorf("browser initialization failed: %w", err)
			}
			defer comps.Scraper.Close()

			if err := comps.Scraper.EnsureAuthenticated(ctx); err != nil {
				return err
			}

			urls, err := comps.Scraper.CollectProductURLs(ctx, count)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no product links found on the listing page")
			}

			results := comps.Scraper.ScrapeBatch(ctx, urls)

			writer, err := report.NewCSVWriter(output)
			if err != nil {
				return err
			}
			if err := writer.Write(results); err != nil {
				writer.Close()
				return err
			}
			if err := writer.Close(); err != nil {
				return err
			}
			jsonPath := report.SiblingJSONPath(output)
			if err := report.WriteJSON(jsonPath, results); err != nil {
				return err
			}

			for _, res := range results {
				report.LogSummary(logger, res)
			}
			valid, partial, failed := batchOutcomes(results)
			logger.Info("Batch complete.",
				zap.Int("products", len(results)),
				zap.Int("valid", valid),
				zap.Int("partial", partial),
				zap.Int("failed", failed),
				zap.String("csv", output),
				zap.String("json", jsonPath))
			if summary := comps.Metrics.Summary(); summary != "" {
				logger.Info("Run metrics.\n" + summary)
			}
			return nil
		},
	}

	batchCmd.Flags().IntVar(&count, "count", 10, "number of products to scrape")
	batchCmd.Flags().StringVar(&output, "output", "", "CSV output path (a sibling .json is written alongside)")
	batchCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	batchCmd.Flags().BoolVar(&headless, "headless", false, "force headless mode")

	return batchCmd
}

// batchOutcomes tallies results for the closing log line.
func batchOutcomes(results []*scrape.Result) (valid, partial, failed int) {
	for _, res := range results {
		switch {
		case res.Success:
			valid++
		case res.Raw != nil:
			partial++
		default:
			failed++
		}
	}
	return valid, partial, failed
}
