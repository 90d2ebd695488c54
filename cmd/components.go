// File: cmd/components.go
package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/browser"
	"github.com/prodscout/prodscout-cli/internal/config"
	"github.com/prodscout/prodscout-cli/internal/metrics"
	"github.com/prodscout/prodscout-cli/internal/scrape/tradelle"
	"github.com/prodscout/prodscout-cli/internal/session"
)

// components bundles everything one scrape command needs.
type components struct {
	Scraper *tradelle.Scraper
	Metrics *metrics.Metrics
}

// buildComponents wires driver, session manager and site adapter from a
// finalized config.
func buildComponents(cfg *config.Config, logger *zap.Logger, opts tradelle.Options) (*components, error) {
	sessionDir, err := cfg.SessionDir()
	if err != nil {
		return nil, fmt.Errorf("could not resolve session directory: %w", err)
	}

	m := metrics.New()
	driver := browser.NewDriver(cfg, logger)
	sess := session.NewManager(cfg.Session, sessionDir, logger)

	return &components{
		Scraper: tradelle.NewScraper(cfg, driver, sess, m, logger, opts),
		Metrics: m,
	}, nil
}
