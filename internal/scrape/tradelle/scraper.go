// File: internal/scrape/tradelle/scraper.go

// Package tradelle is the site adapter for app.tradelle.io: selectors,
// login flow, listing traversal and detail-page extraction, composed on
// the shared browser driver.
package tradelle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prodscout/prodscout-cli/internal/browser"
	"github.com/prodscout/prodscout-cli/internal/config"
	"github.com/prodscout/prodscout-cli/internal/metrics"
	"github.com/prodscout/prodscout-cli/internal/scrape"
	"github.com/prodscout/prodscout-cli/internal/scrape/extract"
	"github.com/prodscout/prodscout-cli/internal/scrape/validate"
	"github.com/prodscout/prodscout-cli/internal/session"
)

// ProductSource is the capability set a site adapter provides to the
// CLI drivers.
type ProductSource interface {
	IsAuthenticated(ctx context.Context) bool
	EnsureAuthenticated(ctx context.Context) error
	CollectProductURLs(ctx context.Context, target int) ([]string, error)
	Scrape(ctx context.Context, productURL string) *scrape.Result
}

// Options tune one run of the adapter.
type Options struct {
	// UseSession enables restoring and saving the persisted session.
	UseSession bool
	// ForceLogin discards any persisted session before authenticating.
	ForceLogin bool
}

// Scraper drives the Tradelle SPA. One instance owns one browser
// driver and processes products strictly sequentially; the extraction
// heuristics assume a single settled page at snapshot time.
type Scraper struct {
	cfg     *config.Config
	driver  *browser.Driver
	session *session.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger
	step    *scrape.StepLogger
	limiter *rate.Limiter
	opts    Options
	runID   string

	authenticated bool
}

// NewScraper wires the adapter. The driver must not be started yet.
func NewScraper(cfg *config.Config, driver *browser.Driver, sess *session.Manager, m *metrics.Metrics, logger *zap.Logger, opts Options) *Scraper {
	log := logger.Named("tradelle")
	return &Scraper{
		cfg:     cfg,
		driver:  driver,
		session: sess,
		metrics: m,
		logger:  log,
		step:    scrape.NewStepLogger(log),
		limiter: rate.NewLimiter(rate.Every(cfg.Scrape.InterProductDelay), 1),
		opts:    opts,
		runID:   uuid.NewString(),
	}
}

// RunID identifies this scraper instance in emitted results.
func (s *Scraper) RunID() string { return s.runID }

// Initialize launches the browser. This is one of only two failures
// that abort a whole run; everything downstream degrades instead.
func (s *Scraper) Initialize(ctx context.Context) error {
	s.step.Step("Launch browser")
	if err := s.driver.Start(ctx); err != nil {
		return err
	}
	if s.opts.ForceLogin {
		if err := s.session.Clear(); err != nil {
			s.logger.Warn("Could not clear persisted session.", zap.Error(err))
		}
	}
	return nil
}

// Close releases browser resources. Safe to call from any state.
func (s *Scraper) Close() {
	s.driver.Stop()
}

// IsAuthenticated probes an ordered list of post-login markers and
// reports true on the first hit. The SPA exposes no stable logged-in
// signal, so any single miss is inconclusive.
func (s *Scraper) IsAuthenticated(ctx context.Context) bool {
	for _, selector := range s.cfg.Selectors.AuthIndicators {
		found, err := s.driver.WaitVisible(ctx, selector, 2*time.Second)
		if err != nil {
			s.logger.Warn("Auth probe aborted.", zap.String("selector", selector), zap.Error(err))
			return false
		}
		if found {
			s.logger.Debug("Auth indicator matched.", zap.String("selector", selector))
			return true
		}
	}
	return false
}

// EnsureAuthenticated restores the persisted session when possible and
// otherwise walks the manual login flow. A manual-login timeout is
// fatal; no further progress is possible without authentication.
func (s *Scraper) EnsureAuthenticated(ctx context.Context) error {
	if s.authenticated {
		return nil
	}

	s.step.Step("Check session")
	restored := false
	if s.opts.UseSession && s.session.HasValidSession() {
		restored = s.session.Load(ctx, s.driver)
		if restored {
			s.logger.Info("Persisted session restored.")
		} else {
			s.logger.Warn("Persisted session could not be restored, continuing unauthenticated.")
		}
	}

	s.step.Step("Navigate to listing")
	listingURL := s.cfg.Selectors.BaseURL + s.cfg.Selectors.ListingPath
	if err := s.navigateWithRetry(ctx, listingURL); err != nil {
		return err
	}

	s.step.Step("Navigate via menu")
	if sel := s.cfg.Selectors.NavMenuLink; sel != "" {
		if found, err := s.driver.WaitVisible(ctx, sel, 3*time.Second); err == nil && found {
			if err := s.driver.Click(ctx, sel); err != nil {
				s.logger.Debug("Menu navigation skipped.", zap.Error(err))
			}
		}
	}

	s.step.Step("Check authentication")
	if s.IsAuthenticated(ctx) {
		s.authenticated = true
		return nil
	}

	s.step.Step("Manual login")
	loginURL := s.cfg.Selectors.BaseURL + s.cfg.Selectors.LoginPath
	if err := s.driver.Navigate(ctx, loginURL); err != nil {
		return err
	}
	s.logger.Info("Waiting for manual login in the browser window.",
		zap.Duration("timeout", s.cfg.Session.LoginTimeout))
	if err := s.session.AwaitManualLogin(ctx, s.driver, s.cfg.Selectors.AuthIndicators, s.cfg.Selectors.LoginPath); err != nil {
		if errors.Is(err, session.ErrLoginTimeout) {
			return fmt.Errorf("manual login timed out: %w", err)
		}
		return err
	}

	s.authenticated = true
	if s.opts.UseSession {
		if err := s.session.Save(ctx, s.driver); err != nil {
			s.logger.Warn("Could not persist session after login.", zap.Error(err))
		}
	}
	return nil
}

// CollectProductURLs scrolls the listing until it has target unique
// product links, the page height stops growing, or the iteration bound
// is reached.
func (s *Scraper) CollectProductURLs(ctx context.Context, target int) ([]string, error) {
	s.step.Step("Collect product links")
	listingCtx, cancel := context.WithTimeout(ctx, s.cfg.Scrape.ListingTimeout)
	defer cancel()

	listingURL := s.cfg.Selectors.BaseURL + s.cfg.Selectors.ListingPath
	if err := s.navigateWithRetry(listingCtx, listingURL); err != nil {
		return nil, err
	}

	var urls []string
	lastHeight := -1
	for i := 0; i < s.cfg.Scrape.MaxScrollIterations; i++ {
		height, err := s.driver.ScrollToBottom(listingCtx)
		if err != nil {
			return urls, fmt.Errorf("listing scroll failed: %w", err)
		}

		urls, err = s.productLinks(listingCtx)
		if err != nil {
			return urls, err
		}
		s.logger.Debug("Listing scroll pass.",
			zap.Int("iteration", i+1),
			zap.Int("links", len(urls)),
			zap.Int("scroll_height", height))

		if target > 0 && len(urls) >= target {
			break
		}
		if height == lastHeight {
			s.logger.Debug("Listing height static, assuming end of content.")
			break
		}
		lastHeight = height

		select {
		case <-time.After(time.Second):
		case <-listingCtx.Done():
			return urls, listingCtx.Err()
		}
	}

	if target > 0 && len(urls) > target {
		urls = urls[:target]
	}
	s.step.FieldCount("product_links", len(urls))
	return urls, nil
}

// ListingItem is one entry scraped off the index page without opening
// its detail page.
type ListingItem struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Price string `json:"price,omitempty"`
}

// CollectListingItems reads product cards straight off the listing,
// reusing the scroll loop to load them first.
func (s *Scraper) CollectListingItems(ctx context.Context, target int) ([]ListingItem, error) {
	if _, err := s.CollectProductURLs(ctx, target); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(`(() => {
		const seen = new Set();
		const out = [];
		for (const a of document.querySelectorAll('a[href*=%q]')) {
			if (seen.has(a.href)) continue;
			seen.add(a.href);
			const text = a.innerText.trim();
			const priceMatch = text.match(/[$€£]\s*\d[\d,]*(?:\.\d{1,2})?/);
			out.push({
				url: a.href,
				title: text.split("\n")[0].trim(),
				price: priceMatch ? priceMatch[0] : "",
			});
		}
		return out;
	})()`, s.cfg.Selectors.ProductLinkHint)

	items := []ListingItem{}
	if err := s.driver.Evaluate(ctx, script, &items); err != nil {
		return nil, fmt.Errorf("could not read listing cards: %w", err)
	}
	if target > 0 && len(items) > target {
		items = items[:target]
	}
	s.step.FieldCount("listing_items", len(items))
	return items, nil
}

func (s *Scraper) productLinks(ctx context.Context) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		const seen = new Set();
		const out = [];
		for (const a of document.querySelectorAll('a[href*=%q]')) {
			const href = a.href;
			if (!seen.has(href)) { seen.add(href); out.push(href); }
		}
		return out;
	})()`, s.cfg.Selectors.ProductLinkHint)
	urls := []string{}
	if err := s.driver.Evaluate(ctx, script, &urls); err != nil {
		return nil, fmt.Errorf("could not enumerate product links: %w", err)
	}
	return urls, nil
}

// Scrape runs the full detail-page pipeline for one product URL. It
// never returns an error: every failure is recorded on the result and
// surfaces as Success=false with whatever partial data was captured.
func (s *Scraper) Scrape(ctx context.Context, productURL string) *scrape.Result {
	res := &scrape.Result{
		RunID:       s.runID,
		SourceURL:   productURL,
		StartedAt:   time.Now(),
		Screenshots: []string{},
		Errors:      []scrape.Error{},
	}
	defer func() {
		res.FinishedAt = time.Now()
		res.Duration = res.FinishedAt.Sub(res.StartedAt)
		s.metrics.ObserveScrape(res.Duration)
		s.recordOutcome(res)
	}()
	label := "scrape " + productURL
	if productURL == "" {
		label = "scrape first listing product"
	}
	stop := s.step.Timer(label)
	defer stop()

	if err := s.EnsureAuthenticated(ctx); err != nil {
		s.failResult(ctx, res, "authentication", err)
		return res
	}

	if productURL == "" {
		s.step.Step("Select product")
		urls, err := s.CollectProductURLs(ctx, 1)
		if err == nil && len(urls) == 0 {
			err = errors.New("listing yielded no product links")
		}
		if err != nil {
			s.failResult(ctx, res, "product-selection", err)
			return res
		}
		productURL = urls[0]
		res.SourceURL = productURL
	}

	s.step.Step("Navigate to product")
	if err := s.navigateWithRetry(ctx, productURL); err != nil {
		s.failResult(ctx, res, "navigation", err)
		return res
	}

	s.step.Step("Error page check")
	if err := s.recoverFromErrorPage(ctx); err != nil {
		s.failResult(ctx, res, "error-page-recovery", err)
		return res
	}

	s.step.Step("Extract fields")
	raw, err := s.extractDetail(ctx, productURL)
	if err != nil {
		s.failResult(ctx, res, "extraction", err)
		return res
	}
	res.Raw = raw

	s.step.Step("Validate")
	validation := validate.ValidateProduct(raw, time.Now())
	res.Validation = validation
	s.countFieldOutcomes(validation)

	if validation.IsValid {
		res.Success = true
		res.Product = validation.TransformedProduct
		meta := validation.TransformedMetadata
		res.Metadata = &meta
		if s.cfg.Scrape.ScreenshotOnSuccess {
			if path := s.driver.Screenshot(ctx, "product-success"); path != "" {
				res.Screenshots = append(res.Screenshots, path)
			}
		}
	} else {
		res.RecordError("validation", validationFailureMessage(validation), true)
	}

	s.step.Step("Done")
	return res
}

// ScrapeBatch processes product URLs in listing order, one page at a
// time, pacing navigations with the inter-product delay.
func (s *Scraper) ScrapeBatch(ctx context.Context, urls []string) []*scrape.Result {
	results := make([]*scrape.Result, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				s.logger.Warn("Batch interrupted.", zap.Error(err))
				break
			}
		}
		s.logger.Info("Scraping product.",
			zap.Int("index", i+1), zap.Int("total", len(urls)), zap.String("url", u))
		results = append(results, s.Scrape(ctx, u))
	}
	return results
}

// extractDetail snapshots the settled page once and runs the rule
// pipelines over it.
func (s *Scraper) extractDetail(ctx context.Context, productURL string) (*scrape.RawProduct, error) {
	html, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, err
	}
	location, err := s.driver.Location(ctx)
	if err != nil || location == "" {
		location = productURL
	}

	ex, err := extract.New(html, location, s.cfg.Selectors, s.step)
	if err != nil {
		return nil, fmt.Errorf("could not parse page snapshot: %w", err)
	}
	return ex.Product(), nil
}

// recoverFromErrorPage applies the single-reload policy for the SPA's
// known transient error page. This is deliberately not the exponential
// retry path: the glitch clears on one reload or not at all.
func (s *Scraper) recoverFromErrorPage(ctx context.Context) error {
	hit, err := s.errorPageVisible(ctx)
	if err != nil {
		return err
	}
	if !hit {
		return nil
	}

	s.logger.Warn("Transient error page detected, reloading once.",
		zap.Duration("wait", s.cfg.Scrape.ErrorPageReloadWait))
	select {
	case <-time.After(s.cfg.Scrape.ErrorPageReloadWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.driver.Reload(ctx); err != nil {
		return err
	}

	hit, err = s.errorPageVisible(ctx)
	if err != nil {
		return err
	}
	if hit {
		s.logger.Warn("Error page persisted after reload, extracting anyway.")
	}
	return nil
}

func (s *Scraper) errorPageVisible(ctx context.Context) (bool, error) {
	text, err := s.driver.Text(ctx, "body")
	if err != nil {
		return false, err
	}
	for _, phrase := range s.cfg.Selectors.ErrorPhrases {
		if phrase != "" && strings.Contains(text, phrase) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Scraper) navigateWithRetry(ctx context.Context, url string) error {
	attempt := 0
	return s.driver.WithRetry(ctx, "navigate", s.cfg.Scrape.MaxRetries, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.IncRetry("navigate")
		}
		err := s.driver.Navigate(ctx, url)
		if err != nil {
			s.metrics.IncNavigation("error")
			return err
		}
		s.metrics.IncNavigation("ok")
		return nil
	})
}

// failResult captures a terminal failure: screenshot if configured,
// non-recoverable error record, Success stays false.
func (s *Scraper) failResult(ctx context.Context, res *scrape.Result, stage string, err error) {
	s.logger.Error("Scrape stage failed.", zap.String("stage", stage), zap.Error(err))
	if s.cfg.Scrape.ScreenshotOnError {
		if path := s.driver.Screenshot(ctx, stage+"-failed"); path != "" {
			res.Screenshots = append(res.Screenshots, path)
		}
	}
	res.RecordError(stage, err.Error(), false)
}

// validationFailureMessage names what blocked a valid result: missing
// required fields, or the fields that were present but unusable.
func validationFailureMessage(v *scrape.ValidationResult) string {
	if !v.RequiredFieldsComplete {
		return "required fields incomplete"
	}
	names := make([]string, len(v.InvalidFields))
	for i, fe := range v.InvalidFields {
		names[i] = fe.Field
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

func (s *Scraper) countFieldOutcomes(v *scrape.ValidationResult) {
	missing := make(map[string]struct{}, len(v.MissingFields))
	for _, f := range v.MissingFields {
		missing[f] = struct{}{}
	}
	for _, f := range validate.FieldNames() {
		_, miss := missing[f]
		s.metrics.IncField(f, !miss)
	}
}

func (s *Scraper) recordOutcome(res *scrape.Result) {
	switch {
	case res.Success:
		s.metrics.IncProduct("valid")
	case res.Raw != nil:
		s.metrics.IncProduct("partial")
	default:
		s.metrics.IncProduct("failed")
	}
}

var _ ProductSource = (*Scraper)(nil)
