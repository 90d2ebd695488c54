// File: internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion identifies the session file layout.
const FormatVersion = "1.0"

// ErrLoginTimeout reports that manual login did not complete in time.
// This is one of the two fatal conditions of a run: without a captured
// session there is nothing left to do.
var ErrLoginTimeout = errors.New("timed out waiting for manual login")

// Runner executes chromedp actions against the live page target. The
// browser Driver satisfies this; tests supply fakes.
type Runner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// Cookie is the persisted form of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Data is the on-disk session record: one file per domain, owned
// exclusively by the Manager. The file is the single source of truth.
type Data struct {
	Version      string            `json:"version"`
	Domain       string            `json:"domain"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
}

// Manager persists and restores authentication state for one domain.
type Manager struct {
	dir    string
	domain string
	ttl    time.Duration
	poll   time.Duration
	login  time.Duration
	logger *zap.Logger

	now func() time.Time
}

// NewManager creates a Manager rooted at dir for the configured domain.
func NewManager(cfg config.SessionConfig, dir string, logger *zap.Logger) *Manager {
	return &Manager{
		dir:    dir,
		domain: cfg.Domain,
		ttl:    time.Duration(cfg.TTLDays) * 24 * time.Hour,
		poll:   cfg.LoginPollInterval,
		login:  cfg.LoginTimeout,
		logger: logger.Named("session"),
		now:    time.Now,
	}
}

// FilePath returns the session file path for this manager's domain.
func (m *Manager) FilePath() string {
	name := strings.ReplaceAll(m.domain, ".", "-") + "-session.json"
	return filepath.Join(m.dir, name)
}

// HasValidSession reports whether a parseable, complete, unexpired
// session file exists. It never returns an error: any defect in the file
// simply means "no session".
func (m *Manager) HasValidSession() bool {
	data, err := m.read()
	if err != nil {
		return false
	}
	if data.Version == "" || data.Domain == "" || data.ExpiresAt.IsZero() {
		return false
	}
	if !m.now().Before(data.ExpiresAt) {
		m.logger.Info("Stored session has expired.",
			zap.Time("expired_at", data.ExpiresAt))
		return false
	}
	return true
}

// Save captures the browser's current cookies and, when a page is open,
// its localStorage, and writes a fresh session file with a TTL stamped
// from now. Any prior file for the domain is overwritten.
func (m *Manager) Save(ctx context.Context, r Runner) error {
	var cookies []*network.Cookie
	localStorage := map[string]string{}

	err := r.Run(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(c)
			return err
		}),
		chromedp.Evaluate(readLocalStorageJS, &localStorage),
	)
	if err != nil {
		return fmt.Errorf("could not capture browser storage: %w", err)
	}

	now := m.now()
	data := Data{
		Version:      FormatVersion,
		Domain:       m.domain,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		Cookies:      make([]Cookie, 0, len(cookies)),
		LocalStorage: localStorage,
	}
	for _, c := range cookies {
		data.Cookies = append(data.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	if err := m.write(&data); err != nil {
		return err
	}
	m.logger.Info("Session saved.",
		zap.String("path", m.FilePath()),
		zap.Int("cookies", len(data.Cookies)),
		zap.Int("local_storage_keys", len(data.LocalStorage)),
		zap.Time("expires_at", data.ExpiresAt))
	return nil
}

// Load injects the stored cookies into the browser and replays
// localStorage when a page is open. It reports whether a session was
// restored; every failure path degrades to false so the caller can
// continue unauthenticated.
func (m *Manager) Load(ctx context.Context, r Runner) bool {
	data, err := m.read()
	if err != nil {
		m.logger.Debug("No session to restore.", zap.Error(err))
		return false
	}
	if !m.now().Before(data.ExpiresAt) {
		m.logger.Info("Stored session has expired; continuing unauthenticated.")
		return false
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(c context.Context) error {
			for _, ck := range data.Cookies {
				p := network.SetCookie(ck.Name, ck.Value).
					WithDomain(ck.Domain).
					WithPath(ck.Path).
					WithHTTPOnly(ck.HTTPOnly).
					WithSecure(ck.Secure)
				if ck.Expires > 0 {
					expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
					p = p.WithExpires(&expires)
				}
				if ck.SameSite != "" {
					p = p.WithSameSite(network.CookieSameSite(ck.SameSite))
				}
				if err := p.Do(c); err != nil {
					return fmt.Errorf("could not set cookie %q: %w", ck.Name, err)
				}
			}
			return nil
		}),
	}
	if len(data.LocalStorage) > 0 {
		encoded, err := json.Marshal(data.LocalStorage)
		if err == nil {
			script := fmt.Sprintf(writeLocalStorageJS, string(encoded))
			actions = append(actions, chromedp.Evaluate(script, nil))
		}
	}

	if err := r.Run(ctx, actions...); err != nil {
		m.logger.Warn("Session restore failed; continuing unauthenticated.", zap.Error(err))
		return false
	}

	m.logger.Info("Session restored.",
		zap.Int("cookies", len(data.Cookies)),
		zap.Int("local_storage_keys", len(data.LocalStorage)))
	return true
}

// Clear deletes the session file. A missing file is a no-op.
func (m *Manager) Clear() error {
	err := os.Remove(m.FilePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove session file: %w", err)
	}
	if err == nil {
		m.logger.Info("Session cleared.", zap.String("path", m.FilePath()))
	}
	return nil
}

// AwaitManualLogin polls the page until one of three independent signals
// indicates a completed login, or the configured timeout elapses. The
// signals are deliberately redundant: the target SPA has no contractually
// stable post-login marker, so any single one may be a false negative.
//
//	a) the URL contained the login path at start and no longer does;
//	b) any of the comma-separated indicator selectors resolves;
//	c) the URL is off the login path and the page shows substantial text.
func (m *Manager) AwaitManualLogin(ctx context.Context, r Runner, indicators []string, loginPath string) error {
	deadline := m.now().Add(m.login)

	startURL, err := pageURL(ctx, r)
	if err != nil {
		return fmt.Errorf("could not read page location: %w", err)
	}
	startedOnLogin := strings.Contains(startURL, loginPath)

	m.logger.Info("Waiting for manual login.",
		zap.Duration("timeout", m.login),
		zap.String("current_url", startURL))

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !m.now().Before(deadline) {
			return ErrLoginTimeout
		}

		url, err := pageURL(ctx, r)
		if err != nil {
			// The page may be mid-navigation while the user logs in.
			continue
		}

		if startedOnLogin && !strings.Contains(url, loginPath) {
			m.logger.Info("Login detected: left the login page.", zap.String("url", url))
			return nil
		}

		if len(indicators) > 0 {
			if found, _ := anySelectorPresent(ctx, r, indicators); found {
				m.logger.Info("Login detected: auth indicator present.")
				return nil
			}
		}

		if !strings.Contains(url, loginPath) {
			var textLen int
			if err := r.Run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText.length : 0`, &textLen)); err == nil && textLen > 500 {
				m.logger.Info("Login detected: substantial page content off the login path.",
					zap.Int("text_length", textLen))
				return nil
			}
		}
	}
}

func pageURL(ctx context.Context, r Runner) (string, error) {
	var url string
	if err := r.Run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func anySelectorPresent(ctx context.Context, r Runner, selectors []string) (bool, error) {
	joined, err := json.Marshal(strings.Join(selectors, ", "))
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf(`!!document.querySelector(%s)`, string(joined))
	var present bool
	if err := r.Run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return false, err
	}
	return present, nil
}

func (m *Manager) read() (*Data, error) {
	raw, err := os.ReadFile(m.FilePath())
	if err != nil {
		return nil, err
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("malformed session file: %w", err)
	}
	return &data, nil
}

func (m *Manager) write(data *Data) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("could not create session directory: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode session data: %w", err)
	}
	if err := os.WriteFile(m.FilePath(), raw, 0o600); err != nil {
		return fmt.Errorf("could not write session file: %w", err)
	}
	return nil
}

const readLocalStorageJS = `(function() {
	let items = {};
	try {
		const s = window.localStorage;
		if (s) {
			for (let i = 0; i < s.length; i++) {
				const k = s.key(i);
				if (k) { items[k] = s.getItem(k); }
			}
		}
	} catch (e) { /* SecurityError or storage disabled */ }
	return items;
})()`

const writeLocalStorageJS = `(function(items) {
	try {
		for (const [k, v] of Object.entries(items)) {
			window.localStorage.setItem(k, v);
		}
	} catch (e) { /* storage disabled */ }
	return true;
})(%s)`
