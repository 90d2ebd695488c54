// File: cmd/scrape.go
package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/observability"
	"github.com/prodscout/prodscout-cli/internal/report"
	"github.com/prodscout/prodscout-cli/internal/scrape/tradelle"
)

// newScrapeCmd creates the single-product test driver.
func newScrapeCmd() *cobra.Command {
	var (
		productURL string
		debug      bool
		visible    bool
		headless   bool
		save       bool
		noSession  bool
		forceLogin bool
	)

	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape a single product detail page and report extraction completeness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appCfg

			if visible {
				cfg.Browser.Headless = false
			}
			if headless {
				cfg.Browser.Headless = true
			}
			logger := observability.GetLogger()

			comps, err := buildComponents(cfg, logger, tradelle.Options{
				UseSession: !noSession,
				ForceLogin: forceLogin,
			})
			if err != nil {
				return err
			}
			if err := comps.Scraper.Initialize(ctx); err != nil {
				return fmt.Errorf("browser initialization failed: %w", err)
			}
			defer comps.Scraper.Close()

			res := comps.Scraper.Scrape(ctx, productURL)
			report.LogSummary(logger, res)

			if save {
				ts := time.Now().UTC().Format("2006-01-02T15-04-05Z")
				path := filepath.Join(cfg.Output.Dir, fmt.Sprintf("result-%s.json", ts))
				if err := report.WriteJSON(path, res); err != nil {
					return err
				}
				logger.Info("Result written.", zap.String("path", path))
			}

			if res.Validation == nil || !res.Validation.RequiredFieldsComplete {
				return fmt.Errorf("extraction incomplete for %s", res.SourceURL)
			}
			return nil
		},
	}

	scrapeCmd.Flags().StringVar(&productURL, "url", "", "product detail page URL (default: first product on the listing)")
	scrapeCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	scrapeCmd.Flags().BoolVar(&visible, "visible", false, "run the browser with a visible window")
	scrapeCmd.Flags().BoolVar(&headless, "headless", false, "force headless mode")
	scrapeCmd.Flags().BoolVar(&save, "save", false, "write the result to a timestamped JSON file")
	scrapeCmd.Flags().BoolVar(&noSession, "no-session", false, "do not restore or persist the login session")
	scrapeCmd.Flags().BoolVar(&forceLogin, "force-login", false, "discard the persisted session and log in again")
	scrapeCmd.MarkFlagsMutuallyExclusive("visible", "headless")

	return scrapeCmd
}
