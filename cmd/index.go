// File: cmd/index.go
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/observability"
	"github.com/prodscout/prodscout-cli/internal/report"
	"github.com/prodscout/prodscout-cli/internal/scrape/tradelle"
)

// newIndexCmd creates the index-page driver: listing cards only, no
// detail-page navigation.
func newIndexCmd() *cobra.Command {
	var (
		count    int
		output   string
		debug    bool
		headless bool
	)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Scrape product cards straight off the listing page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCfg

			if headless {
				cfg.Browser.Headless = true
			}
			logger := observability.GetLogger()

			if output == "" {
				output = filepath.Join(cfg.Output.Dir, "listing.csv")
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

			items, err := comps.Scraper.CollectListingItems(ctx, count)
			if err != nil {
				return err
			}

			rows := make([]report.ListingRow, len(items))
			for i, item := range items {
				rows[i] = report.ListingRow{URL: item.URL, Title: item.Title, Price: item.Price}
			}
			if err := report.WriteListingCSV(output, rows); err != nil {
				return err
			}
			jsonPath := report.SiblingJSONPath(output)
			if err := report.WriteJSON(jsonPath, rows); err != nil {
				return err
			}

			logger.Info("Listing scrape complete.",
				zap.Int("items", len(items)),
				zap.String("csv", output),
				zap.String("json", jsonPath))
			return nil
		},
	}

	indexCmd.Flags().IntVar(&count, "count", 20, "number of listing entries to collect")
	indexCmd.Flags().StringVar(&output, "output", "", "CSV output path (a sibling .json is written alongside)")
	indexCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	indexCmd.Flags().BoolVar(&headless, "headless", false, "force headless mode")

	return indexCmd
}
