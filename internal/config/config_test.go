// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
	assert.Equal(t, 30*time.Second, cfg.Browser.PageTimeout)
	assert.Equal(t, 3, cfg.Scrape.MaxRetries)
	assert.Equal(t, 50, cfg.Scrape.MaxScrollIterations)
	assert.Equal(t, time.Second, cfg.Scrape.InterProductDelay)
	assert.Equal(t, "app.tradelle.io", cfg.Session.Domain)
	assert.Equal(t, 7, cfg.Session.TTLDays)
	assert.Equal(t, 5*time.Minute, cfg.Session.LoginTimeout)
	assert.Equal(t, "https://app.tradelle.io", cfg.Selectors.BaseURL)
	assert.NotEmpty(t, cfg.Selectors.AuthIndicators)
	assert.NotEmpty(t, cfg.Selectors.ErrorPhrases)
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides apply over defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.headless", false)
		v.Set("scrape.max_retries", 5)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, 5, cfg.Scrape.MaxRetries)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("scrape.max_retries", 0)

		_, err := NewConfigFromViper(v)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero retries":      func(c *Config) { c.Scrape.MaxRetries = 0 },
		"zero scroll bound": func(c *Config) { c.Scrape.MaxScrollIterations = 0 },
		"bad viewport":      func(c *Config) { c.Browser.ViewportWidth = 0 },
		"zero page timeout": func(c *Config) { c.Browser.PageTimeout = 0 },
		"zero session ttl":  func(c *Config) { c.Session.TTLDays = 0 },
		"empty domain":      func(c *Config) { c.Session.Domain = "" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSessionDir(t *testing.T) {
	t.Run("plain path passes through", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Session.Dir = "/var/lib/prodscout"
		dir, err := cfg.SessionDir()
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/prodscout", dir)
	})

	t.Run("tilde expands to home", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Session.Dir = "~/.prodscout-sessions"
		dir, err := cfg.SessionDir()
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(dir))
		assert.Contains(t, dir, ".prodscout-sessions")
	})
}

func TestBrowserExecPath(t *testing.T) {
	t.Run("unset path selects bundled engine", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.Empty(t, cfg.BrowserExecPath())
	})

	t.Run("missing file falls back to bundled engine", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.ExecPath = "/definitely/not/chrome"
		assert.Empty(t, cfg.BrowserExecPath())
	})

	t.Run("existing file is used", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chrome")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

		cfg := NewDefaultConfig()
		cfg.Browser.ExecPath = path
		assert.Equal(t, path, cfg.BrowserExecPath())
	})
}
