// File: internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/config"
)

// Driver owns the browser process for one scraper run: a single exec
// allocator, a single browser context, and a single page target. Site
// adapters compose a Driver rather than inheriting from it; every
// primitive here is site-agnostic.
//
// Failure semantics, deliberately split in two:
//   - infrastructure failures (launch, navigation, page gone) are errors;
//   - element absence is data, reported as ""/nil/false, never an error.
type Driver struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu             sync.Mutex
	started        bool
	stopped        bool
	screenshotSeq  int
	screenshotsDir string
}

// NewDriver creates a Driver. No browser resources are acquired until
// Start is called.
func NewDriver(cfg *config.Config, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:            cfg,
		logger:         logger.Named("browser"),
		screenshotsDir: cfg.Scrape.ScreenshotDir,
	}
}

// Start launches the browser process, creates the browser context and
// connects the single page target. Any sub-step failure is fatal to the
// run; Stop remains safe to call afterwards regardless of how far Start
// got.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("browser driver already started")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Browser.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(d.cfg.Browser.ViewportWidth, d.cfg.Browser.ViewportHeight),
		chromedp.UserAgent(d.cfg.Browser.UserAgent),
		// Shared memory in containers is routinely too small for Chrome.
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if execPath := d.cfg.BrowserExecPath(); execPath != "" {
		d.logger.Info("Using custom browser executable.", zap.String("path", execPath))
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	d.browserCtx, d.browserCancel = chromedp.NewContext(d.allocCtx)

	// Force the browser process to start and the page target to attach.
	launchCtx, cancel := context.WithTimeout(d.browserCtx, 60*time.Second)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	d.started = true
	d.logger.Info("Browser launched.",
		zap.Bool("headless", d.cfg.Browser.Headless),
		zap.Int("viewport_width", d.cfg.Browser.ViewportWidth),
		zap.Int("viewport_height", d.cfg.Browser.ViewportHeight))
	return nil
}

// Stop tears down the page, browser context and allocator. Each step is
// individually guarded; Stop never fails and may be called multiple times
// and from any state.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true

	if d.browserCancel != nil {
		d.browserCancel()
		d.logger.Debug("Browser context closed.")
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.logger.Debug("Browser process released.")
	}
	d.logger.Info("Browser driver stopped.")
}

// run executes chromedp actions against the page target, honoring both
// the driver lifetime and the caller's context, then applies the
// configured slow-mo pause.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	started, stopped := d.started, d.stopped
	d.mu.Unlock()
	if !started || stopped {
		return fmt.Errorf("browser driver is not running")
	}

	runCtx, cancel := CombineContext(d.browserCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return err
	}
	if d.cfg.Browser.SlowMo > 0 {
		time.Sleep(d.cfg.Browser.SlowMo)
	}
	return nil
}

// Run executes chromedp actions against the page target. It exists for
// collaborators (the session manager) that speak CDP directly.
func (d *Driver) Run(ctx context.Context, actions ...chromedp.Action) error {
	return d.run(ctx, actions...)
}

// Navigate loads the URL and waits for the document body. The operation
// is timed and logged; failures are returned as-is. Retrying is the
// caller's decision, via WithRetry.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.PageTimeout)
	defer cancel()

	err := d.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	elapsed := time.Since(start)
	if err != nil {
		d.logger.Warn("Navigation failed.",
			zap.String("url", url), zap.Duration("elapsed", elapsed), zap.Error(err))
		if d.cfg.Scrape.ScreenshotOnError {
			d.Screenshot(ctx, "navigation-error")
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	d.logger.Debug("Navigation complete.",
		zap.String("url", url), zap.Duration("elapsed", elapsed))
	return nil
}

// Reload reloads the current page and waits for the document body.
func (d *Driver) Reload(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.PageTimeout)
	defer cancel()
	if err := d.run(reloadCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("page reload failed: %w", err)
	}
	return nil
}

// Location returns the page's current URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("could not read page location: %w", err)
	}
	return url, nil
}

// WaitVisible waits up to timeout for the selector to become visible.
// A timeout is routine (the element simply is not there) and reports
// found=false with a nil error. Only page-level failures are errors.
func (d *Driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return true, nil
	}
	if waitCtx.Err() == context.DeadlineExceeded {
		return false, nil
	}
	if ctx.Err() != nil || d.browserCtx.Err() != nil {
		return false, fmt.Errorf("wait for %q aborted: %w", selector, err)
	}
	return false, nil
}

// Text returns the trimmed text content of the first element matching
// selector, or "" when no element matches.
func (d *Driver) Text(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? el.textContent.trim() : "";
	})()`, selector)
	var out string
	if err := d.Evaluate(ctx, script, &out); err != nil {
		return "", err
	}
	return out, nil
}

// Attribute returns the named attribute of the first element matching
// selector, or "" when the element or attribute is absent.
func (d *Driver) Attribute(ctx context.Context, selector, attr string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return "";
		return el.getAttribute(%q) || "";
	})()`, selector, attr)
	var out string
	if err := d.Evaluate(ctx, script, &out); err != nil {
		return "", err
	}
	return out, nil
}

// TextAll returns the trimmed text of every element matching selector.
// An empty slice means no matches.
func (d *Driver) TextAll(ctx context.Context, selector string) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		return Array.from(document.querySelectorAll(%q))
			.map(el => el.textContent.trim())
			.filter(t => t.length > 0);
	})()`, selector)
	out := []string{}
	if err := d.Evaluate(ctx, script, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HTML captures the full document markup of the settled page. The
// extraction pipeline runs over this single snapshot so that every field
// heuristic sees the same page state.
func (d *Driver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("could not capture page HTML: %w", err)
	}
	return html, nil
}

// Evaluate runs a JavaScript expression in the page and unmarshals the
// result into out (out may be nil when no result is expected).
func (d *Driver) Evaluate(ctx context.Context, script string, out any) error {
	evalCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.PageTimeout)
	defer cancel()
	if err := d.run(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("page evaluation failed: %w", err)
	}
	return nil
}

// BodyTextLength reports the length of the page's visible text. Used by
// login detection as a coarse "a real page rendered" signal.
func (d *Driver) BodyTextLength(ctx context.Context) (int, error) {
	var n int
	err := d.Evaluate(ctx, `document.body ? document.body.innerText.length : 0`, &n)
	return n, err
}

// Click clicks the first element matching selector, scrolling it into
// view first.
func (d *Driver) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.PageTimeout)
	defer cancel()
	if err := d.run(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// ScrollToBottom scrolls the page to its bottom and returns the new
// scroll height. Listing traversal polls this value to detect
// end-of-content.
func (d *Driver) ScrollToBottom(ctx context.Context) (int, error) {
	var height int
	script := `(() => {
		window.scrollTo(0, document.body.scrollHeight);
		return document.body.scrollHeight;
	})()`
	if err := d.Evaluate(ctx, script, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// WithRetry runs op up to maxAttempts times with exponential backoff
// capped at 10s, returning the last error once attempts are exhausted.
// This is the policy for infrastructure-level flakiness; the single-shot
// error-page reload in the site adapter is intentionally separate.
func (d *Driver) WithRetry(ctx context.Context, name string, maxAttempts int, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				d.logger.Info("Operation succeeded after retry.",
					zap.String("operation", name), zap.Int("attempt", attempt))
			}
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(1<<(attempt-1)) * time.Second
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		d.logger.Warn("Operation failed, backing off.",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s aborted during backoff: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}

// Screenshot captures the current viewport. On any capture or write
// failure it logs and returns "". Screenshots are diagnostics, never
// worth failing a scrape over.
func (d *Driver) Screenshot(ctx context.Context, name string) string {
	var buf []byte
	return d.writeScreenshot(name, func(shotCtx context.Context) error {
		return d.run(shotCtx, chromedp.CaptureScreenshot(&buf))
	}, &buf, ctx)
}

// ScreenshotFullPage captures the entire page height.
func (d *Driver) ScreenshotFullPage(ctx context.Context, name string) string {
	var buf []byte
	return d.writeScreenshot(name, func(shotCtx context.Context) error {
		return d.run(shotCtx, chromedp.FullScreenshot(&buf, 90))
	}, &buf, ctx)
}

// ScreenshotElement captures just the element matching selector.
func (d *Driver) ScreenshotElement(ctx context.Context, selector, name string) string {
	var buf []byte
	return d.writeScreenshot(name, func(shotCtx context.Context) error {
		return d.run(shotCtx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery))
	}, &buf, ctx)
}

func (d *Driver) writeScreenshot(name string, capture func(context.Context) error, buf *[]byte, ctx context.Context) string {
	shotCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := capture(shotCtx); err != nil {
		d.logger.Warn("Screenshot capture failed.", zap.String("name", name), zap.Error(err))
		return ""
	}

	path := d.nextScreenshotPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		d.logger.Warn("Could not create screenshot directory.", zap.Error(err))
		return ""
	}
	if err := os.WriteFile(path, *buf, 0o644); err != nil {
		d.logger.Warn("Could not write screenshot.", zap.String("path", path), zap.Error(err))
		return ""
	}
	d.logger.Debug("Screenshot written.", zap.String("path", path))
	return path
}

// nextScreenshotPath produces a zero-padded, monotonically numbered,
// timestamped filename unique within this driver instance.
func (d *Driver) nextScreenshotPath(name string) string {
	d.mu.Lock()
	d.screenshotSeq++
	seq := d.screenshotSeq
	d.mu.Unlock()

	ts := sanitizeName(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	return filepath.Join(d.screenshotsDir, fmt.Sprintf("%02d-%s-%s.png", seq, sanitizeName(name), ts))
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer(" ", "-", ":", "-", ".", "-", "/", "-")
	return replacer.Replace(name)
}
