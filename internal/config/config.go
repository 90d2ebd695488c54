// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. All values are
// populated through viper (defaults < config file < env < flags) and are
// treated as immutable once a run starts.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Scrape    ScrapeConfig    `mapstructure:"scrape" yaml:"scrape"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// SlowMo inserts a pause after every page action. Useful with
	// headless=false when watching the scraper work.
	SlowMo time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	// ExecPath points at a specific Chrome binary. It is used only when
	// the file actually exists; otherwise the bundled engine is launched.
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	PageTimeout    time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
}

// ScrapeConfig tunes the extraction pipeline.
type ScrapeConfig struct {
	MaxRetries          int           `mapstructure:"max_retries" yaml:"max_retries"`
	ScreenshotOnError   bool          `mapstructure:"screenshot_on_error" yaml:"screenshot_on_error"`
	ScreenshotOnSuccess bool          `mapstructure:"screenshot_on_success" yaml:"screenshot_on_success"`
	ScreenshotDir       string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ListingTimeout      time.Duration `mapstructure:"listing_timeout" yaml:"listing_timeout"`
	ErrorPageReloadWait time.Duration `mapstructure:"error_page_reload_wait" yaml:"error_page_reload_wait"`
	InterProductDelay   time.Duration `mapstructure:"inter_product_delay" yaml:"inter_product_delay"`
	MaxScrollIterations int           `mapstructure:"max_scroll_iterations" yaml:"max_scroll_iterations"`
}

// SessionConfig controls persisted authentication state.
type SessionConfig struct {
	Dir               string        `mapstructure:"dir" yaml:"dir"`
	Domain            string        `mapstructure:"domain" yaml:"domain"`
	TTLDays           int           `mapstructure:"ttl_days" yaml:"ttl_days"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	LoginPollInterval time.Duration `mapstructure:"login_poll_interval" yaml:"login_poll_interval"`
}

// OutputConfig controls where result files land.
type OutputConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	ResultFile string `mapstructure:"result_file" yaml:"result_file"`
}

// SelectorsConfig is the updatable selector table for the target SPA.
// The target exposes no stable DOM contract, so everything here is
// expected to need maintenance and must stay configuration, not code.
type SelectorsConfig struct {
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	ListingPath     string `mapstructure:"listing_path" yaml:"listing_path"`
	LoginPath       string `mapstructure:"login_path" yaml:"login_path"`
	ProductLinkHint string `mapstructure:"product_link_hint" yaml:"product_link_hint"`

	// NavMenuLink is the in-app menu entry for the products section.
	// Clicking it after landing keeps navigation on the SPA router.
	NavMenuLink string `mapstructure:"nav_menu_link" yaml:"nav_menu_link"`

	// AuthIndicators are tried in order; the first that resolves marks
	// the session as authenticated.
	AuthIndicators []string `mapstructure:"auth_indicators" yaml:"auth_indicators"`

	// ErrorPhrases identify the SPA's transient error page.
	ErrorPhrases []string `mapstructure:"error_phrases" yaml:"error_phrases"`

	WinningBadge   string   `mapstructure:"winning_badge" yaml:"winning_badge"`
	TagElements    []string `mapstructure:"tag_elements" yaml:"tag_elements"`
	SpecRows       []string `mapstructure:"spec_rows" yaml:"spec_rows"`
	RatingElements []string `mapstructure:"rating_elements" yaml:"rating_elements"`
	ReviewCount    []string `mapstructure:"review_count" yaml:"review_count"`

	// Price labels used by the labeled-container extraction rule.
	CostLabel   string `mapstructure:"cost_label" yaml:"cost_label"`
	PriceLabel  string `mapstructure:"price_label" yaml:"price_label"`
	ProfitLabel string `mapstructure:"profit_label" yaml:"profit_label"`

	// CDN host fragments used to rank candidate product images.
	ProductCDNHosts  []string `mapstructure:"product_cdn_hosts" yaml:"product_cdn_hosts"`
	SupplierCDNHosts []string `mapstructure:"supplier_cdn_hosts" yaml:"supplier_cdn_hosts"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "prodscout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0*time.Millisecond)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.page_timeout", 30*time.Second)

	// -- Scrape --
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.screenshot_on_error", true)
	v.SetDefault("scrape.screenshot_on_success", false)
	v.SetDefault("scrape.screenshot_dir", "screenshots")
	v.SetDefault("scrape.listing_timeout", 120*time.Second)
	v.SetDefault("scrape.error_page_reload_wait", 3*time.Second)
	v.SetDefault("scrape.inter_product_delay", 1*time.Second)
	v.SetDefault("scrape.max_scroll_iterations", 50)

	// -- Session --
	v.SetDefault("session.dir", ".prodscout-sessions")
	v.SetDefault("session.domain", "app.tradelle.io")
	v.SetDefault("session.ttl_days", 7)
	v.SetDefault("session.login_timeout", 5*time.Minute)
	v.SetDefault("session.login_poll_interval", 2*time.Second)

	// -- Output --
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.result_file", "")

	// -- Selectors --
	v.SetDefault("selectors.base_url", "https://app.tradelle.io")
	v.SetDefault("selectors.listing_path", "/products")
	v.SetDefault("selectors.login_path", "/login")
	v.SetDefault("selectors.product_link_hint", "/products/")
	v.SetDefault("selectors.nav_menu_link", "nav a[href*='/products'], aside a[href*='/products']")
	v.SetDefault("selectors.auth_indicators", []string{
		"nav[class*='sidebar']",
		"aside[class*='nav']",
		"[class*='avatar']",
		"[class*='profile']",
		"[data-testid='user-menu']",
	})
	v.SetDefault("selectors.error_phrases", []string{
		"Something went wrong",
		"An error occurred",
		"Please try again",
	})
	v.SetDefault("selectors.winning_badge", "[class*='winning'], [class*='badge-win']")
	v.SetDefault("selectors.tag_elements", []string{
		"[class*='tag']", "[class*='chip']",
	})
	v.SetDefault("selectors.spec_rows", []string{
		"[class*='specification'] tr", "[class*='spec'] li",
	})
	v.SetDefault("selectors.rating_elements", []string{
		"[class*='rating']", "[class*='stars']",
	})
	v.SetDefault("selectors.review_count", []string{
		"[class*='review-count']", "[class*='reviews']",
	})
	v.SetDefault("selectors.cost_label", "Product Cost")
	v.SetDefault("selectors.price_label", "Selling Price")
	v.SetDefault("selectors.profit_label", "Profit per Sale")
	v.SetDefault("selectors.product_cdn_hosts", []string{"cdn.tradelle.io"})
	v.SetDefault("selectors.supplier_cdn_hosts", []string{"cbu01.alicdn.com", "ae01.alicdn.com"})
}

// NewDefaultConfig creates a new configuration populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Scrape.MaxRetries < 1 {
		return fmt.Errorf("scrape.max_retries must be a positive integer")
	}
	if c.Scrape.MaxScrollIterations < 1 {
		return fmt.Errorf("scrape.max_scroll_iterations must be a positive integer")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Browser.PageTimeout <= 0 {
		return fmt.Errorf("browser.page_timeout must be a positive duration")
	}
	if c.Session.TTLDays < 1 {
		return fmt.Errorf("session.ttl_days must be at least 1")
	}
	if c.Session.Domain == "" {
		return fmt.Errorf("session.domain is required")
	}
	return nil
}

// SessionDir resolves the session directory, expanding a leading "~".
func (c *Config) SessionDir() (string, error) {
	dir := c.Session.Dir
	if strings.HasPrefix(dir, "~") {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("could not resolve home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir, nil
}

// BrowserExecPath returns the configured Chrome binary path only when the
// file exists on disk; an empty string selects the bundled engine.
func (c *Config) BrowserExecPath() string {
	if c.Browser.ExecPath == "" {
		return ""
	}
	if _, err := os.Stat(c.Browser.ExecPath); err != nil {
		return ""
	}
	return c.Browser.ExecPath
}
